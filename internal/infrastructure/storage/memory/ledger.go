package memory

import (
	"context"
	"fmt"
	"sort"

	"fieldstock/internal/core/apperror"
	"fieldstock/internal/core/id"
	"fieldstock/internal/core/types"
	"fieldstock/internal/domain/ledger"
)

// LedgerRepository implements ledger.Repository over the store.
type LedgerRepository struct {
	s *Store
}

// Append assigns Seq and stores a copy of the entry. Must run inside a
// transaction.
func (r *LedgerRepository) Append(ctx context.Context, entry *ledger.Entry) error {
	if txFrom(ctx) == nil {
		return fmt.Errorf("ledger append requires a transaction")
	}

	orgID, err := orgOf(ctx)
	if err != nil {
		return err
	}
	if entry.OrganizationID != orgID {
		return apperror.NewForbidden("entry belongs to a different organization")
	}

	r.s.ledgerSeq[orgID]++
	entry.Seq = r.s.ledgerSeq[orgID]
	r.s.entries = append(r.s.entries, cloneEntry(entry))
	return nil
}

// LockKey serializes appends for the key until the transaction ends.
// The store's write lock already serializes whole transactions; the
// key lock keeps the contract identical to the postgres repository.
func (r *LedgerRepository) LockKey(ctx context.Context, itemID, locationID id.ID) error {
	st := txFrom(ctx)
	if st == nil {
		return fmt.Errorf("key lock requires a transaction")
	}

	orgID, err := orgOf(ctx)
	if err != nil {
		return err
	}

	key := orgID.String() + ":" + itemID.String() + ":" + locationID.String()
	r.s.keys.Lock(key)
	st.cleanups = append(st.cleanups, func() { r.s.keys.Unlock(key) })
	return nil
}

// GetByID retrieves a single entry.
func (r *LedgerRepository) GetByID(ctx context.Context, entryID id.ID) (*ledger.Entry, error) {
	unlock := r.s.acquireRead(ctx)
	defer unlock()

	orgID, err := orgOf(ctx)
	if err != nil {
		return nil, err
	}

	for _, e := range r.s.entries {
		if e.ID == entryID && e.OrganizationID == orgID {
			return cloneEntry(e), nil
		}
	}
	return nil, apperror.NewNotFound("ledger entry", entryID.String())
}

// SumByKey returns total inbound and outbound quantity for the key.
func (r *LedgerRepository) SumByKey(ctx context.Context, itemID, locationID id.ID) (types.Quantity, types.Quantity, error) {
	unlock := r.s.acquireRead(ctx)
	defer unlock()

	orgID, err := orgOf(ctx)
	if err != nil {
		return 0, 0, err
	}

	var in, out types.Quantity
	for _, e := range r.s.entries {
		if e.OrganizationID != orgID || e.ItemID != itemID || e.LocationID != locationID {
			continue
		}
		in += e.QtyIn
		out += e.QtyOut
	}
	return in, out, nil
}

// SumByItem returns per-location totals for an item.
func (r *LedgerRepository) SumByItem(ctx context.Context, itemID id.ID) ([]ledger.LocationSum, error) {
	unlock := r.s.acquireRead(ctx)
	defer unlock()

	orgID, err := orgOf(ctx)
	if err != nil {
		return nil, err
	}

	byLoc := make(map[id.ID]*ledger.LocationSum)
	var order []id.ID
	for _, e := range r.s.entries {
		if e.OrganizationID != orgID || e.ItemID != itemID {
			continue
		}
		sum, ok := byLoc[e.LocationID]
		if !ok {
			sum = &ledger.LocationSum{LocationID: e.LocationID}
			byLoc[e.LocationID] = sum
			order = append(order, e.LocationID)
		}
		sum.In += e.QtyIn
		sum.Out += e.QtyOut
	}

	sums := make([]ledger.LocationSum, 0, len(order))
	for _, locID := range order {
		sums = append(sums, *byLoc[locID])
	}
	return sums, nil
}

// History returns entries matching the filter, ordered by Seq.
func (r *LedgerRepository) History(ctx context.Context, filter ledger.HistoryFilter) ([]*ledger.Entry, error) {
	unlock := r.s.acquireRead(ctx)
	defer unlock()

	orgID, err := orgOf(ctx)
	if err != nil {
		return nil, err
	}

	var matched []*ledger.Entry
	for _, e := range r.s.entries {
		if e.OrganizationID != orgID {
			continue
		}
		if filter.ItemID != nil && e.ItemID != *filter.ItemID {
			continue
		}
		if filter.LocationID != nil && e.LocationID != *filter.LocationID {
			continue
		}
		if len(filter.Types) > 0 && !containsType(filter.Types, e.Type) {
			continue
		}
		if filter.From != nil && e.CreatedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && e.CreatedAt.After(*filter.To) {
			continue
		}
		matched = append(matched, e)
	}

	sort.Slice(matched, func(i, j int) bool {
		if filter.Descending {
			return matched[i].Seq > matched[j].Seq
		}
		return matched[i].Seq < matched[j].Seq
	})

	matched = page(matched, filter.Offset, filter.Limit)

	out := make([]*ledger.Entry, len(matched))
	for i, e := range matched {
		out[i] = cloneEntry(e)
	}
	return out, nil
}

// GetByTransferID returns both halves of a transfer pair.
func (r *LedgerRepository) GetByTransferID(ctx context.Context, transferID id.ID) ([]*ledger.Entry, error) {
	unlock := r.s.acquireRead(ctx)
	defer unlock()

	orgID, err := orgOf(ctx)
	if err != nil {
		return nil, err
	}

	var out []*ledger.Entry
	for _, e := range r.s.entries {
		if e.OrganizationID != orgID || e.TransferID == nil || *e.TransferID != transferID {
			continue
		}
		out = append(out, cloneEntry(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func containsType(types []ledger.EntryType, t ledger.EntryType) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}

func page[T any](in []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(in) {
			return nil
		}
		in = in[offset:]
	}
	if limit > 0 && limit < len(in) {
		in = in[:limit]
	}
	return in
}
