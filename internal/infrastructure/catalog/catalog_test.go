package catalog_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockflow/internal/core/apperror"
	"stockflow/internal/core/id"
	"stockflow/internal/domain/ledger"
	"stockflow/internal/infrastructure/catalog"
)

func TestClient_GetItem(t *testing.T) {
	itemID := id.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/catalog/skus/"+itemID.String(), r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(ledger.CatalogItem{
			ID:            itemID,
			Name:          "Flour",
			WeightValue:   decimal.NewFromInt(25),
			WeightUnit:    "kg",
			QuantityValue: decimal.NewFromInt(1),
			QuantityUnit:  "piece",
		})
	}))
	defer srv.Close()

	item, err := catalog.NewClient(srv.URL+"/", time.Second).GetItem(context.Background(), itemID)
	require.NoError(t, err)
	assert.Equal(t, "Flour", item.Name)
	assert.True(t, decimal.NewFromInt(25).Equal(item.WeightValue))
}

func TestClient_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := catalog.NewClient(srv.URL, time.Second).GetItem(context.Background(), id.New())
	assert.True(t, apperror.IsNotFound(err))
}

func TestClient_Unavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := catalog.NewClient(srv.URL, time.Second).GetItem(context.Background(), id.New())
	assert.True(t, apperror.IsUpstreamUnavailable(err))

	srv.Close()
	_, err = catalog.NewClient(srv.URL, time.Second).GetItem(context.Background(), id.New())
	assert.True(t, apperror.IsUpstreamUnavailable(err))
}

func TestStatic(t *testing.T) {
	itemID := id.New()
	s, err := catalog.LoadStatic(strings.NewReader(`[{"id":"` + itemID.String() + `","name":"Salt"}]`))
	require.NoError(t, err)

	item, err := s.GetItem(context.Background(), itemID)
	require.NoError(t, err)
	assert.Equal(t, "Salt", item.Name)

	_, err = s.GetItem(context.Background(), id.New())
	assert.True(t, apperror.IsNotFound(err))

	_, err = catalog.LoadStatic(strings.NewReader(`[{"name":"no id"}]`))
	assert.Error(t, err)
}

type countingCatalog struct {
	calls atomic.Int32
	inner ledger.Catalog
}

func (c *countingCatalog) GetItem(ctx context.Context, itemID id.ID) (ledger.CatalogItem, error) {
	c.calls.Add(1)
	return c.inner.GetItem(ctx, itemID)
}

func TestCachedClient_FallsThroughWhenRedisIsDown(t *testing.T) {
	itemID := id.New()
	origin := &countingCatalog{inner: catalog.NewStatic(ledger.CatalogItem{ID: itemID, Name: "Sugar"})}
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()

	c := catalog.NewCachedClient(origin, rdb, time.Minute)

	item, err := c.GetItem(context.Background(), itemID)
	require.NoError(t, err)
	assert.Equal(t, "Sugar", item.Name)

	_, err = c.GetItem(context.Background(), id.New())
	assert.True(t, apperror.IsNotFound(err))
	assert.EqualValues(t, 2, origin.calls.Load())
}
