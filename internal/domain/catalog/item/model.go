// Package item provides the Item catalog: spare parts, consumables and
// serviceable assets tracked by the stock ledger.
package item

import (
	"context"

	"fieldstock/internal/core/apperror"
	"fieldstock/internal/core/entity"
	"fieldstock/internal/core/id"
	"fieldstock/internal/core/types"
)

// ItemType defines the category of item.
type ItemType string

const (
	TypePart       ItemType = "part"       // spare part installed during repairs
	TypeConsumable ItemType = "consumable" // consumed, not tracked per unit
	TypeAsset      ItemType = "asset"      // serialized customer or company asset
	TypeTool       ItemType = "tool"       // technician tooling
)

// Item represents a stockable part, consumable or asset.
type Item struct {
	entity.Catalog

	// Type defines the item category
	Type ItemType `db:"type" json:"type"`

	// SKU is the stock keeping unit (unique within organization)
	SKU *string `db:"sku" json:"sku,omitempty"`

	// Barcode is the item barcode (EAN-13, etc.)
	Barcode *string `db:"barcode" json:"barcode,omitempty"`

	// Manufacturer is a free-form manufacturer name
	Manufacturer *string `db:"manufacturer" json:"manufacturer,omitempty"`

	// UnitCost is the default cost per unit for valuation
	UnitCost types.Money `db:"unit_cost" json:"unitCost"`

	// ReorderPoint triggers low-stock reporting when balance falls below it
	ReorderPoint types.Quantity `db:"reorder_point" json:"reorderPoint"`

	// TrackSerial indicates the item is tracked by serial numbers.
	// Serial-tracked items move in whole units only.
	TrackSerial bool `db:"track_serial" json:"trackSerial"`

	// IsActive indicates the item can appear on new documents
	IsActive bool `db:"is_active" json:"isActive"`

	// Description is a detailed description
	Description *string `db:"description" json:"description,omitempty"`
}

// NewItem creates a new Item with required fields.
func NewItem(orgID id.ID, code, name string, itemType ItemType) *Item {
	return &Item{
		Catalog:  entity.NewCatalog(orgID, code, name),
		Type:     itemType,
		UnitCost: types.ZeroMoney(),
		IsActive: true,
	}
}

// Validate implements entity.Validatable interface.
func (i *Item) Validate(ctx context.Context) error {
	// Base catalog validation
	if err := i.Catalog.Validate(ctx); err != nil {
		return err
	}

	// Type validation
	if !isValidItemType(i.Type) {
		return apperror.NewValidation("invalid item type").
			WithDetail("field", "type").
			WithDetail("value", string(i.Type))
	}

	if i.UnitCost.IsNegative() {
		return apperror.NewValidation("unit cost cannot be negative").
			WithDetail("field", "unitCost")
	}

	if i.ReorderPoint.IsNegative() {
		return apperror.NewValidation("reorder point cannot be negative").
			WithDetail("field", "reorderPoint")
	}

	return nil
}

// IsStockable returns true if movements of this item go through the ledger.
func (i *Item) IsStockable() bool {
	return i.Type != TypeTool
}

// --- Validation Helpers ---

func isValidItemType(t ItemType) bool {
	switch t {
	case TypePart, TypeConsumable, TypeAsset, TypeTool:
		return true
	}
	return false
}
