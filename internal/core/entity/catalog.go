package entity

import (
	"context"

	"fieldstock/internal/core/apperror"
	"fieldstock/internal/core/id"
)

// Catalog is the base type for reference data.
// Examples: Item, Location.
type Catalog struct {
	BaseCatalog

	// Code is a human-readable identifier (unique within organization)
	Code string `db:"code" json:"code"`

	// Name is the display name
	Name string `db:"name" json:"name"`
}

// NewCatalog creates a new Catalog with generated ID.
func NewCatalog(orgID id.ID, code, name string) Catalog {
	return Catalog{
		BaseCatalog: NewBaseCatalog(orgID),
		Code:        code,
		Name:        name,
	}
}

// Validate implements Validatable interface.
func (c *Catalog) Validate(ctx context.Context) error {
	if id.IsNil(c.OrganizationID) {
		return apperror.NewValidation("organization is required").
			WithDetail("field", "organizationId")
	}

	if c.Name == "" {
		return apperror.NewValidation("name is required").
			WithDetail("field", "name")
	}

	// Code can be auto-generated, so it's optional at creation
	// but required at save time

	return nil
}
