// Package memory provides an in-memory implementation of every
// repository plus a snapshot/restore transaction manager. It backs the
// domain package tests and small single-process deployments; the
// production store is the postgres package.
package memory

import (
	"context"
	"sync"

	"fieldstock/internal/core/id"
	"fieldstock/internal/core/keylock"
	"fieldstock/internal/core/tenant"
	"fieldstock/internal/domain/catalog/item"
	"fieldstock/internal/domain/catalog/location"
	"fieldstock/internal/domain/ledger"
	"fieldstock/internal/domain/partsreq"
	"fieldstock/internal/domain/procurement"
)

// Store holds all data in maps guarded by one RWMutex. Transactions
// take the write lock for their whole duration, so everything inside a
// transaction is serialized; reads outside transactions share the read
// lock.
type Store struct {
	mu   sync.RWMutex
	keys *keylock.KeyLock

	entries   []*ledger.Entry
	ledgerSeq map[id.ID]int64 // per-organization append counter

	items     map[id.ID]*item.Item
	locations map[id.ID]*location.Location

	purchases map[id.ID]*procurement.PurchaseRequest
	partReqs  map[id.ID]*partsreq.TicketPartRequest
	issues    map[id.ID]*partsreq.PartIssue

	sequences map[string]int64 // document numbering
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		keys:      keylock.New(),
		ledgerSeq: make(map[id.ID]int64),
		items:     make(map[id.ID]*item.Item),
		locations: make(map[id.ID]*location.Location),
		purchases: make(map[id.ID]*procurement.PurchaseRequest),
		partReqs:  make(map[id.ID]*partsreq.TicketPartRequest),
		issues:    make(map[id.ID]*partsreq.PartIssue),
		sequences: make(map[string]int64),
	}
}

// Repository accessors.

func (s *Store) Ledger() *LedgerRepository      { return &LedgerRepository{s: s} }
func (s *Store) Items() *ItemRepository         { return &ItemRepository{s: s} }
func (s *Store) Locations() *LocationRepository { return &LocationRepository{s: s} }
func (s *Store) Purchases() *PurchaseRepository { return &PurchaseRepository{s: s} }
func (s *Store) PartRequests() *PartsRepository { return &PartsRepository{s: s} }
func (s *Store) Sequences() *SequenceQuerier    { return &SequenceQuerier{s: s} }
func (s *Store) TxManager() *TxManager          { return &TxManager{s: s} }

// --- locking helpers ---

// acquire takes the write lock unless a transaction already holds it.
func (s *Store) acquire(ctx context.Context) func() {
	if txFrom(ctx) != nil {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// acquireRead takes the read lock unless a transaction holds the write
// lock.
func (s *Store) acquireRead(ctx context.Context) func() {
	if txFrom(ctx) != nil {
		return func() {}
	}
	s.mu.RLock()
	return s.mu.RUnlock
}

func orgOf(ctx context.Context) (id.ID, error) {
	return tenant.OrgID(ctx)
}

// --- snapshot / restore ---

type snapshot struct {
	entries   []*ledger.Entry
	ledgerSeq map[id.ID]int64
	items     map[id.ID]*item.Item
	locations map[id.ID]*location.Location
	purchases map[id.ID]*procurement.PurchaseRequest
	partReqs  map[id.ID]*partsreq.TicketPartRequest
	issues    map[id.ID]*partsreq.PartIssue
	sequences map[string]int64
}

// takeSnapshot deep-copies the store state. Must hold the write lock.
func (s *Store) takeSnapshot() *snapshot {
	snap := &snapshot{
		entries:   make([]*ledger.Entry, len(s.entries)),
		ledgerSeq: make(map[id.ID]int64, len(s.ledgerSeq)),
		items:     make(map[id.ID]*item.Item, len(s.items)),
		locations: make(map[id.ID]*location.Location, len(s.locations)),
		purchases: make(map[id.ID]*procurement.PurchaseRequest, len(s.purchases)),
		partReqs:  make(map[id.ID]*partsreq.TicketPartRequest, len(s.partReqs)),
		issues:    make(map[id.ID]*partsreq.PartIssue, len(s.issues)),
		sequences: make(map[string]int64, len(s.sequences)),
	}
	for i, e := range s.entries {
		snap.entries[i] = cloneEntry(e)
	}
	for k, v := range s.ledgerSeq {
		snap.ledgerSeq[k] = v
	}
	for k, v := range s.items {
		snap.items[k] = cloneItem(v)
	}
	for k, v := range s.locations {
		snap.locations[k] = cloneLocation(v)
	}
	for k, v := range s.purchases {
		snap.purchases[k] = clonePurchase(v)
	}
	for k, v := range s.partReqs {
		snap.partReqs[k] = clonePartRequest(v)
	}
	for k, v := range s.issues {
		snap.issues[k] = cloneIssue(v)
	}
	for k, v := range s.sequences {
		snap.sequences[k] = v
	}
	return snap
}

// restore swaps the snapshot back in. Must hold the write lock.
func (s *Store) restore(snap *snapshot) {
	s.entries = snap.entries
	s.ledgerSeq = snap.ledgerSeq
	s.items = snap.items
	s.locations = snap.locations
	s.purchases = snap.purchases
	s.partReqs = snap.partReqs
	s.issues = snap.issues
	s.sequences = snap.sequences
}

// --- clone helpers ---

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneIDPtr(in *id.ID) *id.ID {
	if in == nil {
		return nil
	}
	v := *in
	return &v
}

func cloneStrPtr(in *string) *string {
	if in == nil {
		return nil
	}
	v := *in
	return &v
}

func cloneEntry(e *ledger.Entry) *ledger.Entry {
	c := *e
	c.Serials = cloneStrings(e.Serials)
	c.TransferID = cloneIDPtr(e.TransferID)
	c.FromLocationID = cloneIDPtr(e.FromLocationID)
	c.ToLocationID = cloneIDPtr(e.ToLocationID)
	if e.Reference != nil {
		ref := *e.Reference
		c.Reference = &ref
	}
	return &c
}

func cloneItem(i *item.Item) *item.Item {
	c := *i
	c.SKU = cloneStrPtr(i.SKU)
	c.Barcode = cloneStrPtr(i.Barcode)
	c.Manufacturer = cloneStrPtr(i.Manufacturer)
	c.Description = cloneStrPtr(i.Description)
	return &c
}

func cloneLocation(l *location.Location) *location.Location {
	c := *l
	c.Address = cloneStrPtr(l.Address)
	c.AssigneeID = cloneIDPtr(l.AssigneeID)
	c.Description = cloneStrPtr(l.Description)
	return &c
}

func clonePurchase(p *procurement.PurchaseRequest) *procurement.PurchaseRequest {
	c := *p
	c.VendorName = cloneStrPtr(p.VendorName)
	c.PONumber = cloneStrPtr(p.PONumber)
	c.Lines = make([]procurement.Line, len(p.Lines))
	copy(c.Lines, p.Lines)
	c.StatusHistory = make([]procurement.StatusChange, len(p.StatusHistory))
	copy(c.StatusHistory, p.StatusHistory)
	return &c
}

func clonePartRequest(r *partsreq.TicketPartRequest) *partsreq.TicketPartRequest {
	c := *r
	c.IssueID = cloneIDPtr(r.IssueID)
	c.StatusHistory = make([]partsreq.StatusChange, len(r.StatusHistory))
	copy(c.StatusHistory, r.StatusHistory)
	return &c
}

func cloneIssue(i *partsreq.PartIssue) *partsreq.PartIssue {
	c := *i
	c.RequestID = cloneIDPtr(i.RequestID)
	c.ReturnEntryID = cloneIDPtr(i.ReturnEntryID)
	c.Serials = cloneStrings(i.Serials)
	return &c
}
