package handlers

import (
	"github.com/gin-gonic/gin"

	"stockflow/internal/domain/allocation"
	"stockflow/internal/infrastructure/http/v1/dto"
)

// WarehouseHandler serves /api/v1/warehouse.
type WarehouseHandler struct {
	*BaseHandler
	service *allocation.Service
}

// NewWarehouseHandler creates a warehouse handler.
func NewWarehouseHandler(base *BaseHandler, service *allocation.Service) *WarehouseHandler {
	return &WarehouseHandler{BaseHandler: base, service: service}
}

// RegisterRoutes mounts the warehouse endpoints on rg.
func (h *WarehouseHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/locations", h.ListLocations)
	rg.POST("/locations", h.CreateLocation)
	rg.GET("/locations/stats", h.LocationStats)
	rg.GET("/locations/:id", h.GetLocation)

	rg.POST("/operations", h.Submit)
	rg.GET("/operations", h.ListOperations)
	rg.GET("/operations/:id", h.GetOperation)
	rg.GET("/operations/:id/plan", h.GetPlan)

	rg.GET("/temp-storage", h.ListTempStorage)
	rg.POST("/temp-storage/process", h.ProcessTempStorage)
}

// ListLocations lists every location.
// GET /locations
func (h *WarehouseHandler) ListLocations(c *gin.Context) {
	locs, err := h.service.ListLocations(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(locs, dto.PageQuery{Limit: len(locs)}))
}

// CreateLocation adds primary storage or a warehouse.
// POST /locations
func (h *WarehouseHandler) CreateLocation(c *gin.Context) {
	var req dto.CreateLocationRequest
	if !h.BindJSON(c, &req) {
		return
	}
	loc, err := h.service.CreateLocation(c.Request.Context(), req.ToInput())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, loc)
}

// LocationStats returns every location with its usage, reconciled from
// the ledger when it is reachable.
// GET /locations/stats
func (h *WarehouseHandler) LocationStats(c *gin.Context) {
	stats, err := h.service.LocationStats(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(stats, dto.PageQuery{Limit: len(stats)}))
}

// GetLocation returns one location.
// GET /locations/:id
func (h *WarehouseHandler) GetLocation(c *gin.Context) {
	locationID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	loc, err := h.service.GetLocation(c.Request.Context(), locationID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, loc)
}

// Submit queues an operation and answers 202 with it still pending.
// POST /operations
func (h *WarehouseHandler) Submit(c *gin.Context) {
	var req dto.SubmitOperationRequest
	if !h.BindJSON(c, &req) {
		return
	}
	in, err := req.ToInput()
	if err != nil {
		h.Error(c, err)
		return
	}
	op, err := h.service.Submit(c.Request.Context(), in)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Accepted(c, op)
}

// ListOperations lists operations newest first.
// GET /operations?status=&operation_kind=&limit=&offset=
func (h *WarehouseHandler) ListOperations(c *gin.Context) {
	var q dto.ListWarehouseOperationsQuery
	if !h.BindQuery(c, &q) {
		return
	}
	q.Defaults()
	ops, err := h.service.ListOperations(c.Request.Context(), q.ToFilter())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(ops, q.PageQuery))
}

// GetOperation returns one operation.
// GET /operations/:id
func (h *WarehouseHandler) GetOperation(c *gin.Context) {
	operationID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	op, err := h.service.GetOperation(c.Request.Context(), operationID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, op)
}

// GetPlan returns the audited plan of a finished operation.
// GET /operations/:id/plan
func (h *WarehouseHandler) GetPlan(c *gin.Context) {
	operationID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	plan, err := h.service.GetPlan(c.Request.Context(), operationID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, plan)
}

// ListTempStorage lists temp storage items oldest first.
// GET /temp-storage?pending_only=
func (h *WarehouseHandler) ListTempStorage(c *gin.Context) {
	var q dto.TempStorageQuery
	if !h.BindQuery(c, &q) {
		return
	}
	items, err := h.service.ListTempItems(c.Request.Context(), q.PendingOnly)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(items, dto.PageQuery{Limit: len(items)}))
}

// ProcessTempStorage runs one promotion pass now.
// POST /temp-storage/process
func (h *WarehouseHandler) ProcessTempStorage(c *gin.Context) {
	res, err := h.service.ProcessTempStorage(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, res)
}
