package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"stockflow/internal/core/apperror"
	"stockflow/internal/core/idempotency"
	"stockflow/internal/infrastructure/http/v1/dto"
	"stockflow/pkg/logger"
)

// ErrorHandler middleware transforms errors into consistent JSON responses.
// Hides internal errors from clients while logging full details.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err

		// If response already written by handler, do not override it.
		if c.Writer.Written() {
			return
		}

		status := http.StatusInternalServerError
		body := dto.ErrorResponse{
			Code:    apperror.CodeInternal,
			Message: "Internal server error",
			Details: map[string]any{"request_id": c.GetString("request_id")},
		}

		if appErr, ok := apperror.AsAppError(err); ok {
			if appErr.Err != nil {
				logger.Error(c.Request.Context(), "request error",
					"code", appErr.Code,
					"cause", appErr.Err,
				)
			}
			status = appErr.HTTPStatus
			body = dto.ErrorResponse{Code: appErr.Code, Message: appErr.Message, Details: appErr.Details}
		} else {
			logger.Error(c.Request.Context(), "unhandled error", "error", err)
		}

		settleIdempotency(c, status, body)
		c.JSON(status, body)
	}
}

// settleIdempotency stores a client error for replay. Server errors release
// the key so the caller can retry.
func settleIdempotency(c *gin.Context, status int, body dto.ErrorResponse) {
	key, store, ok := idempotencyFromContext(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if status >= http.StatusInternalServerError {
		if err := store.ReleaseKey(ctx, key); err != nil {
			logger.Warn(ctx, "release idempotency key failed", "key", key, "error", err)
		}
		return
	}
	payload, _ := json.Marshal(body)
	if err := store.FailKey(ctx, key, status, "application/json", payload); err != nil {
		logger.Warn(ctx, "fail idempotency key failed", "key", key, "error", err)
	}
}

func idempotencyFromContext(c *gin.Context) (string, idempotency.Store, bool) {
	key := c.GetString(ContextIdempotencyKey)
	if key == "" {
		return "", nil, false
	}
	store, ok := c.Get(ContextIdempotencyStore)
	if !ok {
		return "", nil, false
	}
	s, ok := store.(idempotency.Store)
	return key, s, ok && s != nil
}
