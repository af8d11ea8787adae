package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"fieldstock/internal/core/apperror"
	"fieldstock/internal/core/id"
	"fieldstock/internal/domain/catalog/item"
	"fieldstock/internal/infrastructure/http/v1/dto"
)

// ItemHandler handles HTTP requests for the Item catalog.
type ItemHandler struct {
	*CatalogHandler[*item.Item, dto.CreateItemRequest, dto.UpdateItemRequest]
	service *item.Service
}

// NewItemHandler creates a new item handler.
func NewItemHandler(base *BaseHandler, service *item.Service) *ItemHandler {
	cfg := CatalogHandlerConfig[*item.Item, dto.CreateItemRequest, dto.UpdateItemRequest]{
		Service:    service.CatalogService,
		EntityName: "item",
		MapCreateDTO: func(orgID id.ID, req dto.CreateItemRequest) *item.Item {
			return req.ToEntity(orgID)
		},
		MapUpdateDTO: func(req dto.UpdateItemRequest, existing *item.Item) *item.Item {
			req.ApplyTo(existing)
			return existing
		},
	}

	return &ItemHandler{
		CatalogHandler: NewCatalogHandler(base, cfg),
		service:        service,
	}
}

// GetBySKU handles GET /catalog/items/sku/:sku
func (h *ItemHandler) GetBySKU(c *gin.Context) {
	sku := c.Param("sku")
	if sku == "" {
		h.Error(c, apperror.NewValidation("sku is required"))
		return
	}

	it, err := h.service.FindBySKU(c.Request.Context(), sku)
	if err != nil {
		h.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, it)
}

// GetByBarcode handles GET /catalog/items/barcode/:barcode
func (h *ItemHandler) GetByBarcode(c *gin.Context) {
	barcode := c.Param("barcode")
	if barcode == "" {
		h.Error(c, apperror.NewValidation("barcode is required"))
		return
	}

	it, err := h.service.FindByBarcode(c.Request.Context(), barcode)
	if err != nil {
		h.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, it)
}

// RegisterRoutes registers item routes.
func (h *ItemHandler) RegisterRoutes(rg *gin.RouterGroup) {
	h.CatalogHandler.RegisterRoutes(rg)
	rg.GET("/sku/:sku", h.GetBySKU)
	rg.GET("/barcode/:barcode", h.GetByBarcode)
}
