// Package catalog resolves items for the ledger: an HTTP client for the
// catalog service, a Redis read-through cache in front of it, and a static
// catalog loaded from a file.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"stockflow/internal/core/apperror"
	"stockflow/internal/core/id"
	"stockflow/internal/domain/ledger"
)

const upstreamName = "catalog"

var _ ledger.Catalog = (*Client)(nil)

// Client fetches items from the catalog service.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a catalog client. timeout bounds every call.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// GetItem calls GET /catalog/skus/{id}.
func (c *Client) GetItem(ctx context.Context, itemID id.ID) (ledger.CatalogItem, error) {
	endpoint := c.baseURL + "/catalog/skus/" + url.PathEscape(itemID.String())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return ledger.CatalogItem{}, fmt.Errorf("build catalog request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return ledger.CatalogItem{}, apperror.NewUpstreamUnavailable(upstreamName, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ledger.CatalogItem{}, apperror.NewNotFound("item", itemID)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return ledger.CatalogItem{}, apperror.NewUpstreamUnavailable(upstreamName,
			fmt.Errorf("catalog returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	var item ledger.CatalogItem
	if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
		return ledger.CatalogItem{}, apperror.NewUpstreamUnavailable(upstreamName,
			fmt.Errorf("decode catalog item: %w", err))
	}
	if id.IsNil(item.ID) {
		item.ID = itemID
	}
	return item, nil
}

// Static is a fixed in-process catalog.
type Static struct {
	items map[id.ID]ledger.CatalogItem
}

// NewStatic creates a catalog holding items.
func NewStatic(items ...ledger.CatalogItem) *Static {
	s := &Static{items: make(map[id.ID]ledger.CatalogItem, len(items))}
	for _, it := range items {
		s.items[it.ID] = it
	}
	return s
}

// LoadStatic reads a JSON array of catalog items.
func LoadStatic(r io.Reader) (*Static, error) {
	var items []ledger.CatalogItem
	if err := json.NewDecoder(r).Decode(&items); err != nil {
		return nil, fmt.Errorf("decode catalog file: %w", err)
	}
	for i, it := range items {
		if id.IsNil(it.ID) {
			return nil, fmt.Errorf("catalog file: item %d has no id", i)
		}
	}
	return NewStatic(items...), nil
}

func (s *Static) GetItem(_ context.Context, itemID id.ID) (ledger.CatalogItem, error) {
	it, ok := s.items[itemID]
	if !ok {
		return ledger.CatalogItem{}, apperror.NewNotFound("item", itemID)
	}
	return it, nil
}
