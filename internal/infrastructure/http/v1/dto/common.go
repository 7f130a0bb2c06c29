// Package dto provides Data Transfer Objects for API requests/responses.
package dto

import (
	"stockflow/internal/core/apperror"
	"stockflow/internal/core/id"
)

// --- Pagination ---

// PageQuery carries limit/offset list parameters.
type PageQuery struct {
	Limit  int `form:"limit" binding:"omitempty,min=1,max=1000"`
	Offset int `form:"offset" binding:"omitempty,min=0"`
}

// Defaults sets the default page size.
func (p *PageQuery) Defaults() {
	if p.Limit == 0 {
		p.Limit = 100
	}
}

// --- List Response ---

// ListResponse wraps list results.
type ListResponse[T any] struct {
	Items  []T `json:"items"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// NewListResponse wraps items, never rendering a null list.
func NewListResponse[T any](items []T, page PageQuery) ListResponse[T] {
	if items == nil {
		items = []T{}
	}
	return ListResponse[T]{Items: items, Limit: page.Limit, Offset: page.Offset}
}

// --- ID Response ---

// IDResponse for create operations.
type IDResponse struct {
	ID string `json:"id"`
}

// NewIDResponse creates ID response.
func NewIDResponse(i id.ID) IDResponse {
	return IDResponse{ID: i.String()}
}

// --- Success Response ---

// SuccessResponse for operations without data.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// --- Error Response ---

// ErrorResponse is the body rendered for every failed request.
type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// AppError rebuilds the error a peer service reported. status is the HTTP
// status the body came with.
func (r ErrorResponse) AppError(status int) *apperror.AppError {
	return &apperror.AppError{
		Code:       r.Code,
		Message:    r.Message,
		Details:    r.Details,
		HTTPStatus: status,
	}
}

// ParseID parses a path or body identifier, reporting field on failure.
func ParseID(field, raw string) (id.ID, error) {
	v, err := id.Parse(raw)
	if err != nil {
		return id.Nil(), apperror.NewValidation("invalid " + field).WithDetail(field, raw)
	}
	return v, nil
}

// ParseOptionalID parses raw when it is set.
func ParseOptionalID(field string, raw *string) (*id.ID, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	v, err := ParseID(field, *raw)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
