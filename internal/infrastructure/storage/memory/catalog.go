package memory

import (
	"context"
	"sort"
	"strings"

	"fieldstock/internal/core/apperror"
	"fieldstock/internal/core/id"
	"fieldstock/internal/domain"
	"fieldstock/internal/domain/catalog/item"
	"fieldstock/internal/domain/catalog/location"
)

// ItemRepository implements item.Repository over the store.
type ItemRepository struct {
	s *Store
}

func (r *ItemRepository) Create(ctx context.Context, it *item.Item) error {
	unlock := r.s.acquire(ctx)
	defer unlock()

	orgID, err := orgOf(ctx)
	if err != nil {
		return err
	}
	if it.OrganizationID != orgID {
		return apperror.NewForbidden("item belongs to a different organization")
	}
	if _, exists := r.s.items[it.ID]; exists {
		return apperror.NewDuplicate("item", "id", it.ID.String())
	}

	r.s.items[it.ID] = cloneItem(it)
	return nil
}

func (r *ItemRepository) GetByID(ctx context.Context, itemID id.ID) (*item.Item, error) {
	unlock := r.s.acquireRead(ctx)
	defer unlock()

	orgID, err := orgOf(ctx)
	if err != nil {
		return nil, err
	}

	it, ok := r.s.items[itemID]
	if !ok || it.OrganizationID != orgID {
		return nil, apperror.NewNotFound("item", itemID.String())
	}
	return cloneItem(it), nil
}

func (r *ItemRepository) GetByCode(ctx context.Context, code string) (*item.Item, error) {
	unlock := r.s.acquireRead(ctx)
	defer unlock()

	orgID, err := orgOf(ctx)
	if err != nil {
		return nil, err
	}

	for _, it := range r.s.items {
		if it.OrganizationID == orgID && it.Code == code {
			return cloneItem(it), nil
		}
	}
	return nil, apperror.NewNotFound("item", code)
}

func (r *ItemRepository) Update(ctx context.Context, it *item.Item) error {
	unlock := r.s.acquire(ctx)
	defer unlock()

	orgID, err := orgOf(ctx)
	if err != nil {
		return err
	}

	stored, ok := r.s.items[it.ID]
	if !ok || stored.OrganizationID != orgID {
		return apperror.NewNotFound("item", it.ID.String())
	}
	if it.Version < stored.Version {
		return apperror.NewConflict("item was modified concurrently").
			WithDetail("id", it.ID)
	}

	clone := cloneItem(it)
	clone.Version = stored.Version + 1
	r.s.items[it.ID] = clone
	it.Version = clone.Version
	return nil
}

func (r *ItemRepository) SetDeletionMark(ctx context.Context, itemID id.ID, marked bool) error {
	unlock := r.s.acquire(ctx)
	defer unlock()

	orgID, err := orgOf(ctx)
	if err != nil {
		return err
	}

	it, ok := r.s.items[itemID]
	if !ok || it.OrganizationID != orgID {
		return apperror.NewNotFound("item", itemID.String())
	}
	it.DeletionMark = marked
	it.Version++
	return nil
}

func (r *ItemRepository) List(ctx context.Context, filter domain.ListFilter) (domain.ListResult[*item.Item], error) {
	unlock := r.s.acquireRead(ctx)
	defer unlock()

	orgID, err := orgOf(ctx)
	if err != nil {
		return domain.ListResult[*item.Item]{}, err
	}

	var matched []*item.Item
	for _, it := range r.s.items {
		if it.OrganizationID != orgID {
			continue
		}
		if !matchCommon(filter, it.Code, it.Name, it.ID, it.DeletionMark) {
			continue
		}
		matched = append(matched, it)
	}

	sort.Slice(matched, func(i, j int) bool { return matched[i].Name < matched[j].Name })

	total := int64(len(matched))
	matched = page(matched, filter.Offset, filter.Limit)

	items := make([]*item.Item, len(matched))
	for i, it := range matched {
		items[i] = cloneItem(it)
	}
	return domain.ListResult[*item.Item]{
		Items:      items,
		TotalCount: total,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	}, nil
}

func (r *ItemRepository) Exists(ctx context.Context, itemID id.ID) (bool, error) {
	unlock := r.s.acquireRead(ctx)
	defer unlock()

	orgID, err := orgOf(ctx)
	if err != nil {
		return false, err
	}
	it, ok := r.s.items[itemID]
	return ok && it.OrganizationID == orgID, nil
}

func (r *ItemRepository) ExistsByCode(ctx context.Context, code string) (bool, error) {
	_, err := r.GetByCode(ctx, code)
	if err != nil {
		if apperror.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *ItemRepository) FindBySKU(ctx context.Context, sku string) (*item.Item, error) {
	unlock := r.s.acquireRead(ctx)
	defer unlock()

	orgID, err := orgOf(ctx)
	if err != nil {
		return nil, err
	}

	for _, it := range r.s.items {
		if it.OrganizationID == orgID && it.SKU != nil && *it.SKU == sku {
			return cloneItem(it), nil
		}
	}
	return nil, apperror.NewNotFound("item", sku)
}

func (r *ItemRepository) FindByBarcode(ctx context.Context, barcode string) (*item.Item, error) {
	unlock := r.s.acquireRead(ctx)
	defer unlock()

	orgID, err := orgOf(ctx)
	if err != nil {
		return nil, err
	}

	for _, it := range r.s.items {
		if it.OrganizationID == orgID && it.Barcode != nil && *it.Barcode == barcode {
			return cloneItem(it), nil
		}
	}
	return nil, apperror.NewNotFound("item", barcode)
}

// LocationRepository implements location.Repository over the store.
type LocationRepository struct {
	s *Store
}

func (r *LocationRepository) Create(ctx context.Context, loc *location.Location) error {
	unlock := r.s.acquire(ctx)
	defer unlock()

	orgID, err := orgOf(ctx)
	if err != nil {
		return err
	}
	if loc.OrganizationID != orgID {
		return apperror.NewForbidden("location belongs to a different organization")
	}
	if _, exists := r.s.locations[loc.ID]; exists {
		return apperror.NewDuplicate("location", "id", loc.ID.String())
	}

	r.s.locations[loc.ID] = cloneLocation(loc)
	return nil
}

func (r *LocationRepository) GetByID(ctx context.Context, locID id.ID) (*location.Location, error) {
	unlock := r.s.acquireRead(ctx)
	defer unlock()

	orgID, err := orgOf(ctx)
	if err != nil {
		return nil, err
	}

	loc, ok := r.s.locations[locID]
	if !ok || loc.OrganizationID != orgID {
		return nil, apperror.NewNotFound("location", locID.String())
	}
	return cloneLocation(loc), nil
}

func (r *LocationRepository) GetByCode(ctx context.Context, code string) (*location.Location, error) {
	unlock := r.s.acquireRead(ctx)
	defer unlock()

	orgID, err := orgOf(ctx)
	if err != nil {
		return nil, err
	}

	for _, loc := range r.s.locations {
		if loc.OrganizationID == orgID && loc.Code == code {
			return cloneLocation(loc), nil
		}
	}
	return nil, apperror.NewNotFound("location", code)
}

func (r *LocationRepository) Update(ctx context.Context, loc *location.Location) error {
	unlock := r.s.acquire(ctx)
	defer unlock()

	orgID, err := orgOf(ctx)
	if err != nil {
		return err
	}

	stored, ok := r.s.locations[loc.ID]
	if !ok || stored.OrganizationID != orgID {
		return apperror.NewNotFound("location", loc.ID.String())
	}
	if loc.Version < stored.Version {
		return apperror.NewConflict("location was modified concurrently").
			WithDetail("id", loc.ID)
	}

	clone := cloneLocation(loc)
	clone.Version = stored.Version + 1
	r.s.locations[loc.ID] = clone
	loc.Version = clone.Version
	return nil
}

func (r *LocationRepository) SetDeletionMark(ctx context.Context, locID id.ID, marked bool) error {
	unlock := r.s.acquire(ctx)
	defer unlock()

	orgID, err := orgOf(ctx)
	if err != nil {
		return err
	}

	loc, ok := r.s.locations[locID]
	if !ok || loc.OrganizationID != orgID {
		return apperror.NewNotFound("location", locID.String())
	}
	loc.DeletionMark = marked
	loc.Version++
	return nil
}

func (r *LocationRepository) List(ctx context.Context, filter domain.ListFilter) (domain.ListResult[*location.Location], error) {
	unlock := r.s.acquireRead(ctx)
	defer unlock()

	orgID, err := orgOf(ctx)
	if err != nil {
		return domain.ListResult[*location.Location]{}, err
	}

	var matched []*location.Location
	for _, loc := range r.s.locations {
		if loc.OrganizationID != orgID {
			continue
		}
		if !matchCommon(filter, loc.Code, loc.Name, loc.ID, loc.DeletionMark) {
			continue
		}
		matched = append(matched, loc)
	}

	sort.Slice(matched, func(i, j int) bool { return matched[i].Name < matched[j].Name })

	total := int64(len(matched))
	matched = page(matched, filter.Offset, filter.Limit)

	locations := make([]*location.Location, len(matched))
	for i, loc := range matched {
		locations[i] = cloneLocation(loc)
	}
	return domain.ListResult[*location.Location]{
		Items:      locations,
		TotalCount: total,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	}, nil
}

func (r *LocationRepository) Exists(ctx context.Context, locID id.ID) (bool, error) {
	unlock := r.s.acquireRead(ctx)
	defer unlock()

	orgID, err := orgOf(ctx)
	if err != nil {
		return false, err
	}
	loc, ok := r.s.locations[locID]
	return ok && loc.OrganizationID == orgID, nil
}

func (r *LocationRepository) ExistsByCode(ctx context.Context, code string) (bool, error) {
	_, err := r.GetByCode(ctx, code)
	if err != nil {
		if apperror.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *LocationRepository) GetDefault(ctx context.Context) (*location.Location, error) {
	unlock := r.s.acquireRead(ctx)
	defer unlock()

	orgID, err := orgOf(ctx)
	if err != nil {
		return nil, err
	}

	for _, loc := range r.s.locations {
		if loc.OrganizationID == orgID && loc.IsDefault && !loc.DeletionMark {
			return cloneLocation(loc), nil
		}
	}
	return nil, apperror.NewNotFound("default location", "")
}

// matchCommon applies the shared ListFilter predicates.
func matchCommon(filter domain.ListFilter, code, name string, entityID id.ID, deleted bool) bool {
	if deleted && !filter.IncludeDeleted {
		return false
	}
	if len(filter.IDs) > 0 {
		found := false
		for _, candidate := range filter.IDs {
			if candidate == entityID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.Search != "" {
		needle := strings.ToLower(filter.Search)
		if !strings.Contains(strings.ToLower(code), needle) &&
			!strings.Contains(strings.ToLower(name), needle) {
			return false
		}
	}
	return true
}
