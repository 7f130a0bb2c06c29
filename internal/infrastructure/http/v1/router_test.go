package v1_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockflow/internal/core/id"
	"stockflow/internal/domain/allocation"
	"stockflow/internal/domain/ledger"
	"stockflow/internal/infrastructure/catalog"
	v1 "stockflow/internal/infrastructure/http/v1"
	"stockflow/internal/infrastructure/http/v1/dto"
	"stockflow/internal/infrastructure/http/v1/handlers"
	"stockflow/internal/infrastructure/ledgerclient"
	"stockflow/internal/infrastructure/metrics"
	"stockflow/internal/infrastructure/notify"
	"stockflow/internal/infrastructure/storage/memory"
)

const primaryName = "Main Storage"

func init() {
	gin.SetMode(gin.TestMode)
}

func newLedgerServer(t *testing.T, items ...ledger.CatalogItem) *httptest.Server {
	t.Helper()
	txm := memory.NewTxManager()
	svc := ledger.NewService(memory.NewLedgerRepo(txm), txm, catalog.NewStatic(items...), notify.LogPublisher{}, primaryName)
	router := v1.NewLedgerRouter(v1.RouterConfig{
		Health:      handlers.NewHealthHandler("stockflow-ledger", "test", "memory", nil),
		Metrics:     metrics.NewRegistry("ledger"),
		Idempotency: memory.NewIdempotencyStore(time.Hour),
	}, svc)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url string, body any, headers ...string) (*http.Response, []byte) {
	t.Helper()
	var r *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	} else {
		r = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, r)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

func createBody(itemID id.ID, pieces int) map[string]any {
	return map[string]any{
		"operationKind": "create",
		"itemId":        itemID.String(),
		"quantityValue": pieces,
		"quantityUnit":  "piece",
		"weightValue":   1,
		"weightUnit":    "kg",
	}
}

func TestLedgerRouter_RecordAndRead(t *testing.T) {
	flour := ledger.CatalogItem{ID: id.New(), Name: "Flour"}
	srv := newLedgerServer(t, flour)
	base := srv.URL + "/api/v1/inventory"

	resp, body := do(t, http.MethodPost, base+"/operations", createBody(flour.ID, 40))
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var op ledger.StockOperation
	require.NoError(t, json.Unmarshal(body, &op))
	assert.Equal(t, int64(40), op.DeltaValue)
	assert.Equal(t, "Flour", op.ItemName)

	resp, body = do(t, http.MethodGet, base+"/locations/"+strings.ReplaceAll(primaryName, " ", "%20"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rows dto.ListResponse[ledger.LocationTotal]
	require.NoError(t, json.Unmarshal(body, &rows))
	require.Len(t, rows.Items, 1)
	assert.Equal(t, int64(40), rows.Items[0].Weight)

	resp, body = do(t, http.MethodGet, base+"/sku/totals", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var totals dto.ListResponse[ledger.ItemTotal]
	require.NoError(t, json.Unmarshal(body, &totals))
	require.Len(t, totals.Items, 1)
	assert.Equal(t, int64(40), totals.Items[0].TotalWeight)

	resp, body = do(t, http.MethodGet, base+"/sku/"+flour.ID.String()+"/history", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var history dto.ListResponse[ledger.StockOperation]
	require.NoError(t, json.Unmarshal(body, &history))
	assert.Len(t, history.Items, 1)
}

func TestLedgerRouter_Errors(t *testing.T) {
	srv := newLedgerServer(t)
	base := srv.URL + "/api/v1/inventory"

	tests := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"missing kind", map[string]any{"itemId": id.New().String()}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"bad item id", map[string]any{"operationKind": "create", "itemId": "nope"}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"item not in catalog", map[string]any{
			"operationKind": "create", "itemId": id.New().String(),
			"quantityValue": 1, "quantityUnit": "barrel", "weightValue": 1, "weightUnit": "kg",
		}, http.StatusNotFound, "NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := do(t, http.MethodPost, base+"/operations", tt.body)
			assert.Equal(t, tt.status, resp.StatusCode, string(body))
			var e dto.ErrorResponse
			require.NoError(t, json.Unmarshal(body, &e))
			assert.Equal(t, tt.code, e.Code)
		})
	}
}

func TestLedgerRouter_IdempotentReplay(t *testing.T) {
	flour := ledger.CatalogItem{ID: id.New(), Name: "Flour"}
	srv := newLedgerServer(t, flour)
	base := srv.URL + "/api/v1/inventory"

	first, firstBody := do(t, http.MethodPost, base+"/operations", createBody(flour.ID, 10), "X-Idempotency-Key", "k-1")
	require.Equal(t, http.StatusCreated, first.StatusCode)
	second, secondBody := do(t, http.MethodPost, base+"/operations", createBody(flour.ID, 10), "X-Idempotency-Key", "k-1")
	require.Equal(t, http.StatusCreated, second.StatusCode)
	assert.Equal(t, "true", second.Header.Get("Idempotent-Replayed"))
	assert.JSONEq(t, string(firstBody), string(secondBody))

	resp, body := do(t, http.MethodPost, base+"/operations", createBody(flour.ID, 11), "X-Idempotency-Key", "k-1")
	assert.Equal(t, http.StatusConflict, resp.StatusCode, string(body))

	_, body = do(t, http.MethodGet, base+"/sku/totals", nil)
	var totals dto.ListResponse[ledger.ItemTotal]
	require.NoError(t, json.Unmarshal(body, &totals))
	require.Len(t, totals.Items, 1)
	assert.Equal(t, int64(10), totals.Items[0].TotalWeight)
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newLedgerServer(t)

	resp, _ := do(t, http.MethodGet, srv.URL+"/health/live", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = do(t, http.MethodGet, srv.URL+"/health/ready", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := do(t, http.MethodGet, srv.URL+"/metrics", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "stockflow_http_requests_total")
}

func TestReadyReportsFailingCheck(t *testing.T) {
	health := handlers.NewHealthHandler("stockflow-allocator", "test", "memory", nil)
	health.AddCheck("ledger", func(context.Context) error { return fmt.Errorf("connection refused") })
	txm := memory.NewTxManager()
	router := v1.NewLedgerRouter(v1.RouterConfig{Health: health},
		ledger.NewService(memory.NewLedgerRepo(txm), txm, catalog.NewStatic(), nil, primaryName))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}

type allocator struct {
	base       string
	repo       *memory.AllocationRepo
	dispatcher *allocation.Dispatcher
	warehouses []allocation.Location
}

func newAllocator(t *testing.T, ledgerURL string, capacities ...int64) *allocator {
	t.Helper()
	ctx := context.Background()
	repo := memory.NewAllocationRepo()
	audit := memory.NewAuditLog()

	primary := allocation.Location{ID: id.New(), Name: primaryName, Kind: allocation.LocationPrimaryStorage, MaxCapacityKg: 100_000}
	require.NoError(t, repo.CreateLocation(ctx, primary))
	a := &allocator{repo: repo}
	for i, c := range capacities {
		w := allocation.Location{
			ID:            id.New(),
			Name:          fmt.Sprintf("Warehouse %c", 'A'+i),
			Kind:          allocation.LocationWarehouse,
			MaxCapacityKg: c,
			Position:      i + 1,
		}
		require.NoError(t, repo.CreateLocation(ctx, w))
		a.warehouses = append(a.warehouses, w)
	}

	engine := allocation.NewEngine(repo, ledgerclient.New(ledgerURL, 5*time.Second), allocation.NewLocationLocks(),
		allocation.EngineConfig{
			WarehouseCount:      len(capacities),
			TempStorageName:     "Temporary Storage",
			TempStorageCapacity: 1_000_000,
		}, allocation.WithAuditor(audit))
	a.dispatcher = allocation.NewDispatcher(engine, 2)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.dispatcher.Shutdown(ctx)
	})
	promoter := allocation.NewPromoter(engine, allocation.PromoterConfig{Interval: time.Minute, Dwell: time.Minute, StaleAge: time.Hour})
	svc := allocation.NewService(repo, engine, a.dispatcher, promoter, allocation.WithPlanReader(audit))

	router := v1.NewAllocatorRouter(v1.RouterConfig{
		Health: handlers.NewHealthHandler("stockflow-allocator", "test", "memory", nil),
	}, svc)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	a.base = srv.URL + "/api/v1/warehouse"
	return a
}

func (a *allocator) waitFinished(t *testing.T, operationID string) allocation.Operation {
	t.Helper()
	var op allocation.Operation
	require.Eventually(t, func() bool {
		resp, body := do(t, http.MethodGet, a.base+"/operations/"+operationID, nil)
		if resp.StatusCode != http.StatusOK {
			return false
		}
		if err := json.Unmarshal(body, &op); err != nil {
			return false
		}
		return op.Status != allocation.StatusPending
	}, 5*time.Second, 20*time.Millisecond)
	return op
}

func TestAllocatorRouter_DistributesThroughLedger(t *testing.T) {
	flour := ledger.CatalogItem{ID: id.New(), Name: "Flour"}
	ledgerSrv := newLedgerServer(t, flour)
	resp, body := do(t, http.MethodPost, ledgerSrv.URL+"/api/v1/inventory/operations", createBody(flour.ID, 8))
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	a := newAllocator(t, ledgerSrv.URL, 10, 10, 10, 1)

	resp, body = do(t, http.MethodPost, a.base+"/operations", map[string]any{
		"operationKind": "global_distribution_sku",
		"itemId":        flour.ID.String(),
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode, string(body))
	var accepted allocation.Operation
	require.NoError(t, json.Unmarshal(body, &accepted))
	assert.Equal(t, allocation.StatusPending, accepted.Status)

	done := a.waitFinished(t, accepted.ID.String())
	require.Equal(t, allocation.StatusCompleted, done.Status)
	assert.Equal(t, int64(8), done.QuantityKg)
	require.NotNil(t, done.ErrorMessage)
	assert.Contains(t, *done.ErrorMessage, "Temporary Storage")

	// Warehouse D holds 1 kg; the other kilogram of its share overflowed.
	resp, body = do(t, http.MethodGet, ledgerSrv.URL+"/api/v1/inventory/locations?item_id="+flour.ID.String(), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rows dto.ListResponse[ledger.LocationTotal]
	require.NoError(t, json.Unmarshal(body, &rows))
	weights := make(map[string]int64)
	for _, r := range rows.Items {
		weights[r.LocationName] = r.Weight
	}
	assert.Equal(t, map[string]int64{
		primaryName:         0,
		"Temporary Storage": 1,
		"Warehouse A":       2,
		"Warehouse B":       2,
		"Warehouse C":       2,
		"Warehouse D":       1,
	}, weights)

	resp, body = do(t, http.MethodGet, a.base+"/temp-storage?pending_only=true", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var temp dto.ListResponse[allocation.TempStorageItem]
	require.NoError(t, json.Unmarshal(body, &temp))
	require.Len(t, temp.Items, 1)
	assert.Equal(t, int64(1), temp.Items[0].QuantityKg)

	resp, body = do(t, http.MethodGet, a.base+"/operations/"+accepted.ID.String()+"/plan", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var plan allocation.PlanRecord
	require.NoError(t, json.Unmarshal(body, &plan))
	assert.Len(t, plan.Steps, 4)

	resp, body = do(t, http.MethodGet, a.base+"/locations/stats", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var stats dto.ListResponse[allocation.LocationStats]
	require.NoError(t, json.Unmarshal(body, &stats))
	for _, s := range stats.Items {
		if s.Name == "Warehouse D" {
			assert.Equal(t, int64(0), s.FreeKg)
		}
	}
}

func TestAllocatorRouter_Errors(t *testing.T) {
	ledgerSrv := newLedgerServer(t)
	a := newAllocator(t, ledgerSrv.URL, 10, 10, 10, 10)

	resp, body := do(t, http.MethodPost, a.base+"/operations", map[string]any{"operationKind": "teleport"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, string(body))

	resp, _ = do(t, http.MethodGet, a.base+"/operations/"+id.New().String(), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = do(t, http.MethodGet, a.base+"/operations/not-an-id", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = do(t, http.MethodPost, a.base+"/locations", map[string]any{
		"name": "Warehouse A", "kind": "warehouse", "maxCapacityKg": 5,
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode, string(body))

	// Nothing to move: the operation is accepted and then fails.
	resp, body = do(t, http.MethodPost, a.base+"/operations", map[string]any{"operationKind": "global_distribution_all"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode, string(body))
	var accepted allocation.Operation
	require.NoError(t, json.Unmarshal(body, &accepted))
	done := a.waitFinished(t, accepted.ID.String())
	assert.Equal(t, allocation.StatusFailed, done.Status)
	require.NotNil(t, done.ErrorMessage)
	assert.Contains(t, *done.ErrorMessage, "no stock to move")
}
