package catalog_repo

import (
	"context"

	"github.com/Masterminds/squirrel"

	"fieldstock/internal/domain/catalog/location"
	"fieldstock/internal/infrastructure/storage/postgres"
)

const locationTable = "cat_locations"

// LocationRepo is the PostgreSQL implementation of location.Repository.
type LocationRepo struct {
	*BaseCatalogRepo[*location.Location]
}

// Compile-time interface check.
var _ location.Repository = (*LocationRepo)(nil)

// NewLocationRepo creates the location repository.
func NewLocationRepo(txm *postgres.TxManager) *LocationRepo {
	return &LocationRepo{
		BaseCatalogRepo: NewBaseCatalogRepo(
			txm,
			locationTable,
			postgres.ExtractDBColumns[location.Location](),
			func() *location.Location { return &location.Location{} },
		),
	}
}

// GetDefault retrieves the default receiving location.
func (r *LocationRepo) GetDefault(ctx context.Context) (*location.Location, error) {
	q, err := r.ScopedSelect(ctx)
	if err != nil {
		return nil, err
	}
	return r.FindOne(ctx, q.
		Where(squirrel.Eq{"is_default": true}).
		Where(squirrel.Eq{"deletion_mark": false}).
		Limit(1))
}
