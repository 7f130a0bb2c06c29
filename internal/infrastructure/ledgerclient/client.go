// Package ledgerclient is the allocation engine's HTTP client for the stock
// ledger service.
package ledgerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"stockflow/internal/core/apperror"
	appctx "stockflow/internal/core/context"
	"stockflow/internal/domain/allocation"
	"stockflow/internal/domain/ledger"
	"stockflow/internal/infrastructure/http/v1/dto"
)

const (
	upstreamName = "ledger"
	basePath     = "/api/v1/inventory"

	headerIdempotencyKey = "X-Idempotency-Key"
	headerRequestID      = "X-Request-ID"
)

var _ allocation.Ledger = (*Client)(nil)

// Client calls the stock ledger over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a ledger client. timeout bounds every call.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// GetLocationTotals returns every row the ledger holds for locationName.
func (c *Client) GetLocationTotals(ctx context.Context, locationName string) ([]allocation.StockLine, error) {
	q := url.Values{}
	q.Set("location_name", locationName)
	q.Set("limit", "1000")

	var lines []allocation.StockLine
	for offset := 0; ; {
		q.Set("offset", fmt.Sprint(offset))
		var page dto.ListResponse[ledger.LocationTotal]
		if err := c.do(ctx, http.MethodGet, basePath+"/locations?"+q.Encode(), nil, "", &page); err != nil {
			return nil, err
		}
		for _, row := range page.Items {
			lines = append(lines, allocation.StockLine{
				ItemID:   row.ItemID,
				ItemName: row.ItemName,
				Weight:   row.Weight,
				Quantity: row.Quantity,
			})
		}
		if len(page.Items) < 1000 {
			return lines, nil
		}
		offset += len(page.Items)
	}
}

// RecordOperation appends rec to the ledger. A replayed idempotency key
// returns the original outcome.
func (c *Client) RecordOperation(ctx context.Context, rec allocation.LedgerRecord) error {
	body := dto.RecordOperationRequest{
		OperationKind:  rec.Kind,
		ItemID:         rec.ItemID.String(),
		QuantityValue:  rec.QuantityValue,
		QuantityUnit:   rec.QuantityUnit,
		WeightValue:    rec.WeightValue,
		WeightUnit:     rec.WeightUnit,
		SourceLocation: rec.SourceLocation,
		TargetLocation: rec.TargetLocation,
	}
	return c.do(ctx, http.MethodPost, basePath+"/operations", body, rec.IdempotencyKey, nil)
}

// Ping checks that the ledger process is alive.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health/live", nil, "", nil)
}

func (c *Client) do(ctx context.Context, method, path string, in any, idempotencyKey string, out any) error {
	var reader io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal ledger request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build ledger request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set(headerIdempotencyKey, idempotencyKey)
	}
	if rid := appctx.GetRequestID(ctx); rid != "" {
		req.Header.Set(headerRequestID, rid)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperror.NewUpstreamUnavailable(upstreamName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return apperror.NewUpstreamUnavailable(upstreamName,
			fmt.Errorf("ledger returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))))
	}
	if resp.StatusCode >= 400 {
		var e dto.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&e); err != nil || e.Code == "" {
			return apperror.NewUpstreamUnavailable(upstreamName,
				fmt.Errorf("ledger returned %d", resp.StatusCode))
		}
		return e.AppError(resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperror.NewUpstreamUnavailable(upstreamName, fmt.Errorf("decode ledger response: %w", err))
	}
	return nil
}
