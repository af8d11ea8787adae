package location

import (
	"context"

	"fieldstock/internal/domain"
)

// Repository defines the interface for Location persistence.
type Repository interface {
	domain.CatalogRepository[*Location]

	// GetDefault retrieves the default receiving location.
	GetDefault(ctx context.Context) (*Location, error)
}
