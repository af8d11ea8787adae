package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"fieldstock/internal/core/apperror"
	"fieldstock/internal/core/id"
	"fieldstock/internal/domain"
	"fieldstock/internal/domain/procurement"
	"fieldstock/internal/domain/transfer"
	"fieldstock/internal/infrastructure/http/v1/dto"
)

// PurchaseHandler handles HTTP requests for purchase requests. Receiving
// goes through the transfer coordinator so stock lands on the ledger
// atomically with the document update.
type PurchaseHandler struct {
	*BaseHandler
	service     *procurement.Service
	coordinator *transfer.Coordinator
}

// NewPurchaseHandler creates a new purchase request handler.
func NewPurchaseHandler(base *BaseHandler, service *procurement.Service, coordinator *transfer.Coordinator) *PurchaseHandler {
	return &PurchaseHandler{
		BaseHandler: base,
		service:     service,
		coordinator: coordinator,
	}
}

// Create handles POST /purchase-requests
func (h *PurchaseHandler) Create(c *gin.Context) {
	var req dto.CreatePurchaseRequest
	if !h.BindJSON(c, &req) {
		return
	}

	pr, err := h.service.Create(c.Request.Context(), req.ToInput())
	if err != nil {
		h.Error(c, err)
		return
	}

	h.CompleteIdempotency(c, http.StatusCreated, "application/json", pr)
	c.JSON(http.StatusCreated, pr)
}

// List handles GET /purchase-requests
func (h *PurchaseHandler) List(c *gin.Context) {
	filter := procurement.ListFilter{
		ListFilter: domain.ListFilter{
			Search:         c.Query("search"),
			Limit:          h.ParseIntQuery(c, "limit", 50),
			Offset:         h.ParseIntQuery(c, "offset", 0),
			OrderBy:        c.DefaultQuery("orderBy", "created_at"),
			IncludeDeleted: c.Query("includeDeleted") == "true",
		},
		Requester: c.Query("requester"),
	}

	if statusesStr := c.Query("statuses"); statusesStr != "" {
		for _, s := range strings.Split(statusesStr, ",") {
			status := procurement.Status(strings.TrimSpace(s))
			if !status.IsValid() {
				h.Error(c, apperror.NewValidation("unknown status").
					WithDetail("value", string(status)))
				return
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}

	if itemStr := c.Query("itemId"); itemStr != "" {
		parsed, err := id.Parse(itemStr)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid itemId format"))
			return
		}
		filter.ItemID = &parsed
	}

	result, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ListResponse{
		Items:      result.Items,
		TotalCount: result.TotalCount,
		Limit:      result.Limit,
		Offset:     result.Offset,
	})
}

// Get handles GET /purchase-requests/:id
func (h *PurchaseHandler) Get(c *gin.Context) {
	reqID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	pr, err := h.service.GetByID(c.Request.Context(), reqID)
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, pr)
}

// AddLine handles POST /purchase-requests/:id/lines - add a line while
// the request is still a draft.
func (h *PurchaseHandler) AddLine(c *gin.Context) {
	reqID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	var req dto.AddLineRequest
	if !h.BindJSON(c, &req) {
		return
	}

	pr, err := h.service.AddLine(c.Request.Context(), reqID, req.ToInput())
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, pr)
}

// Submit handles POST /purchase-requests/:id/submit
func (h *PurchaseHandler) Submit(c *gin.Context) {
	h.mutate(c, func(ctx *gin.Context, reqID id.ID) (*procurement.PurchaseRequest, error) {
		return h.service.Submit(ctx.Request.Context(), reqID)
	})
}

// Approve handles POST /purchase-requests/:id/approve - optionally with
// per-line approved quantities.
func (h *PurchaseHandler) Approve(c *gin.Context) {
	reqID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	var req dto.ApproveRequest
	if !h.BindJSON(c, &req) {
		return
	}

	pr, err := h.service.Approve(c.Request.Context(), reqID, req.ToInput())
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, pr)
}

// Reject handles POST /purchase-requests/:id/reject
func (h *PurchaseHandler) Reject(c *gin.Context) {
	h.mutateWithNote(c, h.service.Reject)
}

// Cancel handles POST /purchase-requests/:id/cancel
func (h *PurchaseHandler) Cancel(c *gin.Context) {
	h.mutateWithNote(c, h.service.Cancel)
}

// MarkOrdered handles POST /purchase-requests/:id/mark-ordered
func (h *PurchaseHandler) MarkOrdered(c *gin.Context) {
	reqID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	var req dto.MarkOrderedRequest
	if !h.BindJSON(c, &req) {
		return
	}

	pr, err := h.service.MarkOrdered(c.Request.Context(), reqID, req.PONumber)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, pr)
}

// Transition handles POST /purchase-requests/:id/transition - explicit
// status transition with validation against the transition table.
func (h *PurchaseHandler) Transition(c *gin.Context) {
	reqID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	var req dto.TransitionRequest
	if !h.BindJSON(c, &req) {
		return
	}

	to := procurement.Status(req.To)
	if !to.IsValid() {
		h.Error(c, apperror.NewValidation("unknown status").WithDetail("value", req.To))
		return
	}

	pr, err := h.service.Transition(c.Request.Context(), reqID, to, req.Note)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, pr)
}

// Receive handles POST /purchase-requests/:id/receive - multi-line
// receipt. Lines commit independently; a mixed outcome returns 207 with
// per-line results so the caller can retry only the failed lines.
func (h *PurchaseHandler) Receive(c *gin.Context) {
	reqID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	var req dto.ReceiveRequest
	if !h.BindJSON(c, &req) {
		return
	}

	result, err := h.coordinator.ReceivePurchase(c.Request.Context(), req.ToInput(reqID))
	if err != nil {
		var appErr *apperror.AppError
		if result != nil && errors.As(err, &appErr) && appErr.Code == apperror.CodePartialFailure {
			response := dto.FromReceiveResult(result)
			h.CompleteIdempotency(c, http.StatusMultiStatus, "application/json", response)
			c.JSON(http.StatusMultiStatus, response)
			return
		}
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromReceiveResult(result))
}

// mutate runs a single-argument state mutation addressed by path id.
func (h *PurchaseHandler) mutate(c *gin.Context, fn func(*gin.Context, id.ID) (*procurement.PurchaseRequest, error)) {
	reqID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	pr, err := fn(c, reqID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, pr)
}

// mutateWithNote runs a state mutation that takes an optional note body.
func (h *PurchaseHandler) mutateWithNote(c *gin.Context, fn func(ctx context.Context, reqID id.ID, note string) (*procurement.PurchaseRequest, error)) {
	reqID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	var req dto.NoteRequest
	if c.Request.ContentLength > 0 {
		if !h.BindJSON(c, &req) {
			return
		}
	}

	pr, err := fn(c.Request.Context(), reqID, req.Note)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, pr)
}

// RegisterRoutes registers purchase request routes.
func (h *PurchaseHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.Create)
	rg.GET("", h.List)
	rg.GET("/:id", h.Get)
	rg.POST("/:id/lines", h.AddLine)
	rg.POST("/:id/submit", h.Submit)
	rg.POST("/:id/approve", h.Approve)
	rg.POST("/:id/reject", h.Reject)
	rg.POST("/:id/cancel", h.Cancel)
	rg.POST("/:id/mark-ordered", h.MarkOrdered)
	rg.POST("/:id/transition", h.Transition)
	rg.POST("/:id/receive", h.Receive)
}
