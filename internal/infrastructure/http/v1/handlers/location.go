package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"fieldstock/internal/core/id"
	"fieldstock/internal/domain/catalog/location"
	"fieldstock/internal/infrastructure/http/v1/dto"
)

// LocationHandler handles HTTP requests for the Location catalog.
type LocationHandler struct {
	*CatalogHandler[*location.Location, dto.CreateLocationRequest, dto.UpdateLocationRequest]
	service *location.Service
}

// NewLocationHandler creates a new location handler.
func NewLocationHandler(base *BaseHandler, service *location.Service) *LocationHandler {
	cfg := CatalogHandlerConfig[*location.Location, dto.CreateLocationRequest, dto.UpdateLocationRequest]{
		Service:    service.CatalogService,
		EntityName: "location",
		MapCreateDTO: func(orgID id.ID, req dto.CreateLocationRequest) *location.Location {
			return req.ToEntity(orgID)
		},
		MapUpdateDTO: func(req dto.UpdateLocationRequest, existing *location.Location) *location.Location {
			req.ApplyTo(existing)
			return existing
		},
	}

	return &LocationHandler{
		CatalogHandler: NewCatalogHandler(base, cfg),
		service:        service,
	}
}

// GetDefault handles GET /catalog/locations/default - the default
// receiving location.
func (h *LocationHandler) GetDefault(c *gin.Context) {
	loc, err := h.service.GetDefault(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, loc)
}

// RegisterRoutes registers location routes.
func (h *LocationHandler) RegisterRoutes(rg *gin.RouterGroup) {
	h.CatalogHandler.RegisterRoutes(rg)
	rg.GET("/default", h.GetDefault)
}
