package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"fieldstock/internal/core/apperror"
	"fieldstock/internal/core/id"
	"fieldstock/internal/infrastructure/storage/postgres"
)

// AuditHandler exposes the change history recorded for an entity.
type AuditHandler struct {
	*BaseHandler
	service *postgres.AuditService
}

// NewAuditHandler creates a new audit handler.
func NewAuditHandler(base *BaseHandler, service *postgres.AuditService) *AuditHandler {
	return &AuditHandler{
		BaseHandler: base,
		service:     service,
	}
}

// GetEntityHistory handles GET /audit/:entityType/:entityId
func (h *AuditHandler) GetEntityHistory(c *gin.Context) {
	entityType := c.Param("entityType")
	if entityType == "" {
		h.Error(c, apperror.NewValidation("entityType is required"))
		return
	}

	entityID, err := id.Parse(c.Param("entityId"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid entityId format"))
		return
	}

	limit := h.ParseIntQuery(c, "limit", 50)

	entries, err := h.service.GetEntityHistory(c.Request.Context(), entityType, entityID, limit)
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entityType": entityType,
		"entityId":   entityID.String(),
		"entries":    entries,
	})
}

// RegisterRoutes registers audit routes.
func (h *AuditHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/:entityType/:entityId", h.GetEntityHistory)
}
