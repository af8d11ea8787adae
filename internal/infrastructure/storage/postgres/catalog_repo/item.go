package catalog_repo

import (
	"context"

	"github.com/Masterminds/squirrel"

	"fieldstock/internal/domain/catalog/item"
	"fieldstock/internal/infrastructure/storage/postgres"
)

const itemTable = "cat_items"

// ItemRepo is the PostgreSQL implementation of item.Repository.
type ItemRepo struct {
	*BaseCatalogRepo[*item.Item]
}

// Compile-time interface check.
var _ item.Repository = (*ItemRepo)(nil)

// NewItemRepo creates the item repository.
func NewItemRepo(txm *postgres.TxManager) *ItemRepo {
	return &ItemRepo{
		BaseCatalogRepo: NewBaseCatalogRepo(
			txm,
			itemTable,
			postgres.ExtractDBColumns[item.Item](),
			func() *item.Item { return &item.Item{} },
		),
	}
}

// FindBySKU retrieves an item by SKU.
func (r *ItemRepo) FindBySKU(ctx context.Context, sku string) (*item.Item, error) {
	q, err := r.ScopedSelect(ctx)
	if err != nil {
		return nil, err
	}
	return r.FindOne(ctx, q.
		Where(squirrel.Eq{"sku": sku}).
		Where(squirrel.Eq{"deletion_mark": false}).
		Limit(1))
}

// FindByBarcode retrieves an item by barcode.
func (r *ItemRepo) FindByBarcode(ctx context.Context, barcode string) (*item.Item, error) {
	q, err := r.ScopedSelect(ctx)
	if err != nil {
		return nil, err
	}
	return r.FindOne(ctx, q.
		Where(squirrel.Eq{"barcode": barcode}).
		Where(squirrel.Eq{"deletion_mark": false}).
		Limit(1))
}
