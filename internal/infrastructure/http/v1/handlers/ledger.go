package handlers

import (
	"github.com/gin-gonic/gin"

	"stockflow/internal/domain/ledger"
	"stockflow/internal/infrastructure/http/v1/dto"
)

// LedgerHandler serves /api/v1/inventory.
type LedgerHandler struct {
	*BaseHandler
	service *ledger.Service
}

// NewLedgerHandler creates a ledger handler.
func NewLedgerHandler(base *BaseHandler, service *ledger.Service) *LedgerHandler {
	return &LedgerHandler{BaseHandler: base, service: service}
}

// RegisterRoutes mounts the ledger endpoints on rg.
func (h *LedgerHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/operations", h.RecordOperation)
	rg.GET("/operations", h.ListOperations)
	rg.GET("/sku/totals", h.ListItemTotals)
	rg.GET("/sku/:itemId/history", h.ItemHistory)
	rg.GET("/locations", h.ListLocationTotals)
	rg.GET("/locations/summary", h.ListLocationSummaries)
	rg.GET("/locations/:name", h.GetLocationTotals)
}

// RecordOperation appends an operation.
// POST /operations
func (h *LedgerHandler) RecordOperation(c *gin.Context) {
	var req dto.RecordOperationRequest
	if !h.BindJSON(c, &req) {
		return
	}
	in, err := req.ToInput()
	if err != nil {
		h.Error(c, err)
		return
	}
	op, err := h.service.RecordOperation(c.Request.Context(), in)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, op)
}

// ListOperations lists ledger entries newest first.
// GET /operations?item_id=&operation_kind=&limit=&offset=
func (h *LedgerHandler) ListOperations(c *gin.Context) {
	var q dto.ListLedgerOperationsQuery
	if !h.BindQuery(c, &q) {
		return
	}
	q.Defaults()
	filter, err := q.ToFilter()
	if err != nil {
		h.Error(c, err)
		return
	}
	ops, err := h.service.ListOperations(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(ops, q.PageQuery))
}

// ListItemTotals lists per-item totals.
// GET /sku/totals
func (h *LedgerHandler) ListItemTotals(c *gin.Context) {
	totals, err := h.service.ListItemTotals(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(totals, dto.PageQuery{Limit: len(totals)}))
}

// ItemHistory lists the operations of one item.
// GET /sku/:itemId/history?limit=
func (h *LedgerHandler) ItemHistory(c *gin.Context) {
	itemID, ok := h.PathID(c, "itemId")
	if !ok {
		return
	}
	var q dto.PageQuery
	if !h.BindQuery(c, &q) {
		return
	}
	q.Defaults()
	ops, err := h.service.ItemHistory(c.Request.Context(), itemID, q.Limit)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(ops, q))
}

// ListLocationTotals lists location rows.
// GET /locations?location_name=&item_id=&limit=&offset=
func (h *LedgerHandler) ListLocationTotals(c *gin.Context) {
	var q dto.ListLocationTotalsQuery
	if !h.BindQuery(c, &q) {
		return
	}
	q.Defaults()
	filter, err := q.ToFilter()
	if err != nil {
		h.Error(c, err)
		return
	}
	rows, err := h.service.ListLocationTotals(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(rows, q.PageQuery))
}

// ListLocationSummaries aggregates stock per location.
// GET /locations/summary
func (h *LedgerHandler) ListLocationSummaries(c *gin.Context) {
	summaries, err := h.service.ListLocationSummaries(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(summaries, dto.PageQuery{Limit: len(summaries)}))
}

// GetLocationTotals returns the stock held at one location.
// GET /locations/:name
func (h *LedgerHandler) GetLocationTotals(c *gin.Context) {
	rows, err := h.service.GetLocationTotals(c.Request.Context(), c.Param("name"))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(rows, dto.PageQuery{Limit: len(rows)}))
}
