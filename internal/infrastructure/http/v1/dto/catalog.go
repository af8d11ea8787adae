package dto

import (
	"fieldstock/internal/core/id"
	"fieldstock/internal/core/types"
	"fieldstock/internal/domain/catalog/item"
	"fieldstock/internal/domain/catalog/location"
)

// --- Item ---

// CreateItemRequest for creating items. Code is optional; when empty it
// is generated by the numerator.
type CreateItemRequest struct {
	Code         string          `json:"code"`
	Name         string          `json:"name" binding:"required"`
	Type         string          `json:"type" binding:"required"`
	SKU          *string         `json:"sku"`
	Barcode      *string         `json:"barcode"`
	Manufacturer *string         `json:"manufacturer"`
	UnitCost     *types.Money    `json:"unitCost"`
	ReorderPoint *types.Quantity `json:"reorderPoint"`
	TrackSerial  bool            `json:"trackSerial"`
	Description  *string         `json:"description"`
}

// ToEntity maps the request to a new Item owned by orgID.
func (r CreateItemRequest) ToEntity(orgID id.ID) *item.Item {
	it := item.NewItem(orgID, r.Code, r.Name, item.ItemType(r.Type))
	it.SKU = r.SKU
	it.Barcode = r.Barcode
	it.Manufacturer = r.Manufacturer
	it.TrackSerial = r.TrackSerial
	it.Description = r.Description
	if r.UnitCost != nil {
		it.UnitCost = *r.UnitCost
	}
	if r.ReorderPoint != nil {
		it.ReorderPoint = *r.ReorderPoint
	}
	return it
}

// UpdateItemRequest for updating items. Nil fields stay unchanged;
// Version enforces optimistic locking.
type UpdateItemRequest struct {
	Code         *string         `json:"code"`
	Name         *string         `json:"name"`
	Type         *string         `json:"type"`
	SKU          *string         `json:"sku"`
	Barcode      *string         `json:"barcode"`
	Manufacturer *string         `json:"manufacturer"`
	UnitCost     *types.Money    `json:"unitCost"`
	ReorderPoint *types.Quantity `json:"reorderPoint"`
	TrackSerial  *bool           `json:"trackSerial"`
	IsActive     *bool           `json:"isActive"`
	Description  *string         `json:"description"`
	Version      int             `json:"version" binding:"required,min=1"`
}

// ApplyTo maps the changed fields onto an existing item.
func (r UpdateItemRequest) ApplyTo(it *item.Item) {
	if r.Code != nil {
		it.Code = *r.Code
	}
	if r.Name != nil {
		it.Name = *r.Name
	}
	if r.Type != nil {
		it.Type = item.ItemType(*r.Type)
	}
	if r.SKU != nil {
		it.SKU = r.SKU
	}
	if r.Barcode != nil {
		it.Barcode = r.Barcode
	}
	if r.Manufacturer != nil {
		it.Manufacturer = r.Manufacturer
	}
	if r.UnitCost != nil {
		it.UnitCost = *r.UnitCost
	}
	if r.ReorderPoint != nil {
		it.ReorderPoint = *r.ReorderPoint
	}
	if r.TrackSerial != nil {
		it.TrackSerial = *r.TrackSerial
	}
	if r.IsActive != nil {
		it.IsActive = *r.IsActive
	}
	if r.Description != nil {
		it.Description = r.Description
	}
	it.SetVersion(r.Version)
}

// --- Location ---

// CreateLocationRequest for creating locations.
type CreateLocationRequest struct {
	Code           string  `json:"code"`
	Name           string  `json:"name" binding:"required"`
	Type           string  `json:"type" binding:"required"`
	Address        *string `json:"address"`
	AssigneeID     *id.ID  `json:"assigneeId"`
	AllowsNegative bool    `json:"allowsNegative"`
	IsDefault      bool    `json:"isDefault"`
	Description    *string `json:"description"`
}

// ToEntity maps the request to a new Location owned by orgID.
func (r CreateLocationRequest) ToEntity(orgID id.ID) *location.Location {
	loc := location.NewLocation(orgID, r.Code, r.Name, location.LocationType(r.Type))
	loc.Address = r.Address
	loc.AssigneeID = r.AssigneeID
	loc.AllowsNegative = r.AllowsNegative
	loc.IsDefault = r.IsDefault
	loc.Description = r.Description
	return loc
}

// UpdateLocationRequest for updating locations.
type UpdateLocationRequest struct {
	Code           *string `json:"code"`
	Name           *string `json:"name"`
	Type           *string `json:"type"`
	Address        *string `json:"address"`
	AssigneeID     *id.ID  `json:"assigneeId"`
	IsActive       *bool   `json:"isActive"`
	AllowsNegative *bool   `json:"allowsNegative"`
	IsDefault      *bool   `json:"isDefault"`
	Description    *string `json:"description"`
	Version        int     `json:"version" binding:"required,min=1"`
}

// ApplyTo maps the changed fields onto an existing location.
func (r UpdateLocationRequest) ApplyTo(loc *location.Location) {
	if r.Code != nil {
		loc.Code = *r.Code
	}
	if r.Name != nil {
		loc.Name = *r.Name
	}
	if r.Type != nil {
		loc.Type = location.LocationType(*r.Type)
	}
	if r.Address != nil {
		loc.Address = r.Address
	}
	if r.AssigneeID != nil {
		loc.AssigneeID = r.AssigneeID
	}
	if r.IsActive != nil {
		loc.IsActive = *r.IsActive
	}
	if r.AllowsNegative != nil {
		loc.AllowsNegative = *r.AllowsNegative
	}
	if r.IsDefault != nil {
		loc.IsDefault = *r.IsDefault
	}
	if r.Description != nil {
		loc.Description = r.Description
	}
	loc.SetVersion(r.Version)
}
