package ledger

import (
	"context"
	"fmt"

	"fieldstock/internal/core/id"
	"fieldstock/internal/core/types"
	"fieldstock/internal/domain/catalog/location"
)

// ReservationSource reports quantity held by open workflow documents
// (approved but not yet issued part requests). The ledger itself never
// stores reservations; they live in the workflow layer.
type ReservationSource interface {
	// Reserved returns the reserved quantity for an item within the
	// organization in context. Reservations are item-scoped: a part
	// request does not name a location until issue.
	Reserved(ctx context.Context, itemID id.ID) (types.Quantity, error)
}

// NoReservations is a ReservationSource that always reports zero.
type NoReservations struct{}

func (NoReservations) Reserved(ctx context.Context, itemID id.ID) (types.Quantity, error) {
	return 0, nil
}

// Availability is the derived stock position for a key.
type Availability struct {
	Current   types.Quantity `json:"current"`
	Reserved  types.Quantity `json:"reserved"`
	Available types.Quantity `json:"available"`
}

// LocationBalance is the availability at one location.
type LocationBalance struct {
	LocationID id.ID `json:"locationId"`
	Availability
}

// Aggregator derives balances from the ledger. Read-only: it never
// writes entries.
type Aggregator struct {
	repo         Repository
	locations    location.Repository
	reservations ReservationSource
}

// NewAggregator creates an aggregator. A nil reservations source means
// nothing is reserved.
func NewAggregator(repo Repository, locations location.Repository, reservations ReservationSource) *Aggregator {
	if reservations == nil {
		reservations = NoReservations{}
	}
	return &Aggregator{
		repo:         repo,
		locations:    locations,
		reservations: reservations,
	}
}

// Balance returns availability for an item at one location.
//
// Reserved is item-scoped (a part request names no location until
// issue), so the whole reservation is attributed to the organization's
// default location; everywhere else reserved is zero. Available is
// current − reserved, floored at zero unless the location allows
// negative stock.
func (a *Aggregator) Balance(ctx context.Context, itemID, locationID id.ID) (Availability, error) {
	in, out, err := a.repo.SumByKey(ctx, itemID, locationID)
	if err != nil {
		return Availability{}, fmt.Errorf("sum balance: %w", err)
	}

	loc, err := a.locations.GetByID(ctx, locationID)
	if err != nil {
		return Availability{}, err
	}

	reserved, err := a.reservedAt(ctx, itemID, loc)
	if err != nil {
		return Availability{}, err
	}

	return availability(in-out, reserved, loc.AllowsNegative), nil
}

// BalanceAllLocations returns availability for an item at every
// location with ledger history.
func (a *Aggregator) BalanceAllLocations(ctx context.Context, itemID id.ID) ([]LocationBalance, error) {
	sums, err := a.repo.SumByItem(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("sum by item: %w", err)
	}

	balances := make([]LocationBalance, 0, len(sums))
	for _, s := range sums {
		loc, err := a.locations.GetByID(ctx, s.LocationID)
		if err != nil {
			return nil, err
		}
		reserved, err := a.reservedAt(ctx, itemID, loc)
		if err != nil {
			return nil, err
		}
		balances = append(balances, LocationBalance{
			LocationID:   s.LocationID,
			Availability: availability(s.Balance(), reserved, loc.AllowsNegative),
		})
	}

	return balances, nil
}

// reservedAt attributes the item-wide reservation to the default
// location only, so summing across locations never double-counts it.
func (a *Aggregator) reservedAt(ctx context.Context, itemID id.ID, loc *location.Location) (types.Quantity, error) {
	if !loc.IsDefault {
		return 0, nil
	}
	reserved, err := a.reservations.Reserved(ctx, itemID)
	if err != nil {
		return 0, fmt.Errorf("reserved: %w", err)
	}
	return reserved, nil
}

func availability(current, reserved types.Quantity, allowsNegative bool) Availability {
	available := current - reserved
	if available.IsNegative() && !allowsNegative {
		available = 0
	}
	return Availability{
		Current:   current,
		Reserved:  reserved,
		Available: available,
	}
}

// Recompute replays the full entry history for the key and returns the
// sum. It must always equal the incremental balance; reconciliation
// jobs and tests compare the two.
func (a *Aggregator) Recompute(ctx context.Context, itemID, locationID id.ID) (types.Quantity, error) {
	var total types.Quantity

	const page = 500
	offset := 0
	for {
		entries, err := a.repo.History(ctx, HistoryFilter{
			ItemID:     &itemID,
			LocationID: &locationID,
			Limit:      page,
			Offset:     offset,
		})
		if err != nil {
			return 0, fmt.Errorf("replay history: %w", err)
		}
		for _, e := range entries {
			total += e.Signed()
		}
		if len(entries) < page {
			break
		}
		offset += page
	}

	return total, nil
}
