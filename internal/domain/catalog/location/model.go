// Package location provides the Location catalog: warehouses, technician
// vans, customer sites and quarantine shelves that hold stock.
package location

import (
	"context"

	"fieldstock/internal/core/apperror"
	"fieldstock/internal/core/entity"
	"fieldstock/internal/core/id"
)

// LocationType defines the kind of stock location.
type LocationType string

const (
	TypeWarehouse  LocationType = "warehouse"  // central or branch warehouse
	TypeVan        LocationType = "van"        // technician van stock
	TypeSite       LocationType = "site"       // customer site
	TypeQuarantine LocationType = "quarantine" // damaged or pending-inspection stock
	TypeTransit    LocationType = "transit"    // goods in transit between locations
)

// Location represents a place that holds stock.
type Location struct {
	entity.Catalog

	// Type defines the location category
	Type LocationType `db:"type" json:"type"`

	// Address is the physical address
	Address *string `db:"address" json:"address,omitempty"`

	// AssigneeID references the technician responsible for vehicle stock
	AssigneeID *id.ID `db:"assignee_id" json:"assigneeId,omitempty"`

	// IsActive indicates the location is operational
	IsActive bool `db:"is_active" json:"isActive"`

	// AllowsNegative permits the balance at this location to go below
	// zero. Off by default; issues that would overdraw are rejected.
	AllowsNegative bool `db:"allows_negative" json:"allowsNegative"`

	// IsDefault marks the default receiving location
	IsDefault bool `db:"is_default" json:"isDefault"`

	// Description
	Description *string `db:"description" json:"description,omitempty"`
}

// NewLocation creates a new Location with required fields.
func NewLocation(orgID id.ID, code, name string, locType LocationType) *Location {
	return &Location{
		Catalog:  entity.NewCatalog(orgID, code, name),
		Type:     locType,
		IsActive: true,
	}
}

// Validate implements entity.Validatable interface.
func (l *Location) Validate(ctx context.Context) error {
	// Base catalog validation
	if err := l.Catalog.Validate(ctx); err != nil {
		return err
	}

	// Type validation
	if !isValidLocationType(l.Type) {
		return apperror.NewValidation("invalid location type").
			WithDetail("field", "type").
			WithDetail("value", string(l.Type))
	}

	return nil
}

// CanAcceptStock returns true if the location can receive stock.
func (l *Location) CanAcceptStock() bool {
	return l.IsActive && !l.DeletionMark
}

// CanIssueStock returns true if the location can issue stock.
func (l *Location) CanIssueStock() bool {
	return l.IsActive && !l.DeletionMark
}

// --- Validation Helpers ---

func isValidLocationType(t LocationType) bool {
	switch t {
	case TypeWarehouse, TypeVan, TypeSite, TypeQuarantine, TypeTransit:
		return true
	}
	return false
}
