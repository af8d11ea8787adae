package item

import (
	"context"

	"fieldstock/internal/domain"
)

// Repository defines the interface for Item persistence.
type Repository interface {
	domain.CatalogRepository[*Item]

	// FindBySKU retrieves an item by SKU.
	FindBySKU(ctx context.Context, sku string) (*Item, error)

	// FindByBarcode retrieves an item by barcode.
	FindByBarcode(ctx context.Context, barcode string) (*Item, error)
}
