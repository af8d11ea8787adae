package ledger

import (
	"context"
	"time"

	"fieldstock/internal/core/id"
	"fieldstock/internal/core/types"
)

// Repository defines persistence for ledger entries.
//
// The interface is append-only: there is no Update or Delete.
// Corrections are compensating entries. Implementations scope every
// query by the organization in context.
type Repository interface {
	// Append inserts the entry and assigns Seq. Must be called inside
	// a transaction with the key guard held (see LockKey).
	Append(ctx context.Context, entry *Entry) error

	// LockKey serializes appends for one (item, location) key within
	// the organization. Postgres takes pg_advisory_xact_lock; the
	// memory store holds a keyed mutex until the transaction ends.
	LockKey(ctx context.Context, itemID, locationID id.ID) error

	// GetByID retrieves a single entry.
	GetByID(ctx context.Context, entryID id.ID) (*Entry, error)

	// SumByKey returns total inbound and outbound quantity for the key.
	SumByKey(ctx context.Context, itemID, locationID id.ID) (in, out types.Quantity, err error)

	// SumByItem returns per-location totals for an item.
	SumByItem(ctx context.Context, itemID id.ID) ([]LocationSum, error)

	// History returns entries matching the filter, ordered by Seq.
	History(ctx context.Context, filter HistoryFilter) ([]*Entry, error)

	// GetByTransferID returns both halves of a transfer pair.
	GetByTransferID(ctx context.Context, transferID id.ID) ([]*Entry, error)
}

// LocationSum holds per-location inbound/outbound totals for an item.
type LocationSum struct {
	LocationID id.ID          `db:"location_id" json:"locationId"`
	In         types.Quantity `db:"total_in" json:"in"`
	Out        types.Quantity `db:"total_out" json:"out"`
}

// Balance returns the net quantity at the location.
func (s LocationSum) Balance() types.Quantity {
	return s.In - s.Out
}

// HistoryFilter selects and pages ledger history.
type HistoryFilter struct {
	ItemID     *id.ID
	LocationID *id.ID
	Types      []EntryType
	From       *time.Time
	To         *time.Time

	// Descending returns newest entries first; default is ascending Seq.
	Descending bool

	Limit  int
	Offset int
}
