package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"fieldstock/internal/core/apperror"
	"fieldstock/internal/core/id"
	"fieldstock/internal/domain"
	"fieldstock/internal/domain/partsreq"
	"fieldstock/internal/infrastructure/http/v1/dto"
)

// PartRequestHandler handles HTTP requests for ticket part requests.
// Issuing and returning stock against a request lives under /stock;
// this handler covers the document workflow only.
type PartRequestHandler struct {
	*BaseHandler
	service *partsreq.Service
}

// NewPartRequestHandler creates a new part request handler.
func NewPartRequestHandler(base *BaseHandler, service *partsreq.Service) *PartRequestHandler {
	return &PartRequestHandler{
		BaseHandler: base,
		service:     service,
	}
}

// Create handles POST /part-requests
func (h *PartRequestHandler) Create(c *gin.Context) {
	var req dto.CreatePartRequest
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

// List handles GET /part-requests
func (h *PartRequestHandler) List(c *gin.Context) {
	filter := partsreq.ListFilter{
		ListFilter: domain.ListFilter{
			Search:         c.Query("search"),
			Limit:          h.ParseIntQuery(c, "limit", 50),
			Offset:         h.ParseIntQuery(c, "offset", 0),
			OrderBy:        c.DefaultQuery("orderBy", "created_at"),
			IncludeDeleted: c.Query("includeDeleted") == "true",
		},
	}

	if statusesStr := c.Query("statuses"); statusesStr != "" {
		for _, s := range strings.Split(statusesStr, ",") {
			status := partsreq.Status(strings.TrimSpace(s))
			if !status.IsValid() {
				h.Error(c, apperror.NewValidation("unknown status").
					WithDetail("value", string(status)))
				return
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}

	if ticketStr := c.Query("ticketId"); ticketStr != "" {
		parsed, err := id.Parse(ticketStr)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid ticketId format"))
			return
		}
		filter.TicketID = &parsed
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

// Get handles GET /part-requests/:id
func (h *PartRequestHandler) Get(c *gin.Context) {
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

// Approve handles POST /part-requests/:id/approve
func (h *PartRequestHandler) Approve(c *gin.Context) {
	h.mutateWithNote(c, h.service.Approve)
}

// Reject handles POST /part-requests/:id/reject
func (h *PartRequestHandler) Reject(c *gin.Context) {
	h.mutateWithNote(c, h.service.Reject)
}

// Cancel handles POST /part-requests/:id/cancel
func (h *PartRequestHandler) Cancel(c *gin.Context) {
	h.mutateWithNote(c, h.service.Cancel)
}

// MarkOrdered handles POST /part-requests/:id/mark-ordered
func (h *PartRequestHandler) MarkOrdered(c *gin.Context) {
	h.mutateWithNote(c, h.service.MarkOrdered)
}

// MarkAvailable handles POST /part-requests/:id/mark-available
func (h *PartRequestHandler) MarkAvailable(c *gin.Context) {
	h.mutateWithNote(c, h.service.MarkAvailable)
}

// Transition handles POST /part-requests/:id/transition
func (h *PartRequestHandler) Transition(c *gin.Context) {
	reqID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	var req dto.TransitionRequest
	if !h.BindJSON(c, &req) {
		return
	}

	to := partsreq.Status(req.To)
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

func (h *PartRequestHandler) mutateWithNote(c *gin.Context, fn func(ctx context.Context, reqID id.ID, note string) (*partsreq.TicketPartRequest, error)) {
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

// RegisterRoutes registers part request routes.
func (h *PartRequestHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.Create)
	rg.GET("", h.List)
	rg.GET("/:id", h.Get)
	rg.POST("/:id/approve", h.Approve)
	rg.POST("/:id/reject", h.Reject)
	rg.POST("/:id/cancel", h.Cancel)
	rg.POST("/:id/mark-ordered", h.MarkOrdered)
	rg.POST("/:id/mark-available", h.MarkAvailable)
	rg.POST("/:id/transition", h.Transition)
}
