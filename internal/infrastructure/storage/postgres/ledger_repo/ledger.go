// Package ledger_repo provides the PostgreSQL implementation of the
// append-only stock ledger.
package ledger_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"fieldstock/internal/core/apperror"
	"fieldstock/internal/core/id"
	"fieldstock/internal/core/tenant"
	"fieldstock/internal/core/types"
	"fieldstock/internal/domain/ledger"
	"fieldstock/internal/infrastructure/storage/postgres"
)

const (
	ledgerTable = "stock_ledger"

	// seqTable holds one last_seq counter per organization. The UPSERT
	// in nextSeq runs inside the append transaction, so the row lock it
	// takes orders concurrent appends within one organization.
	seqTable = "stock_ledger_seq"
)

// LedgerRepo is the PostgreSQL implementation of ledger.Repository.
// The table is append-only: no UPDATE or DELETE is ever issued.
type LedgerRepo struct {
	txm *postgres.TxManager
}

var _ ledger.Repository = (*LedgerRepo)(nil)

// NewLedgerRepo creates the ledger repository.
func NewLedgerRepo(txm *postgres.TxManager) *LedgerRepo {
	return &LedgerRepo{txm: txm}
}

func builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// entryRow is the scan target: the Reference value object is flattened
// into nullable columns.
type entryRow struct {
	ID             id.ID          `db:"id"`
	OrganizationID id.ID          `db:"organization_id"`
	Seq            int64          `db:"seq"`
	ItemID         id.ID          `db:"item_id"`
	LocationID     id.ID          `db:"location_id"`
	Type           string         `db:"entry_type"`
	QtyIn          types.Quantity `db:"qty_in"`
	QtyOut         types.Quantity `db:"qty_out"`
	Serials        []string       `db:"serials"`
	RefType        *string        `db:"reference_type"`
	RefID          *id.ID         `db:"reference_id"`
	RefNumber      *string        `db:"reference_number"`
	TransferID     *id.ID         `db:"transfer_id"`
	FromLocationID *id.ID         `db:"from_location_id"`
	ToLocationID   *id.ID         `db:"to_location_id"`
	UnitCost       types.Money    `db:"unit_cost"`
	TotalCost      types.Money    `db:"total_cost"`
	RunningBalance types.Quantity `db:"running_balance"`
	Notes          string         `db:"notes"`
	ActorID        string         `db:"actor_id"`
	ActorName      string         `db:"actor_name"`
	CreatedAt      time.Time      `db:"created_at"`
}

var entryColumns = postgres.ExtractDBColumns[entryRow]()

func (r entryRow) toEntry() *ledger.Entry {
	e := &ledger.Entry{
		ID:             r.ID,
		OrganizationID: r.OrganizationID,
		Seq:            r.Seq,
		ItemID:         r.ItemID,
		LocationID:     r.LocationID,
		Type:           ledger.EntryType(r.Type),
		QtyIn:          r.QtyIn,
		QtyOut:         r.QtyOut,
		Serials:        r.Serials,
		TransferID:     r.TransferID,
		FromLocationID: r.FromLocationID,
		ToLocationID:   r.ToLocationID,
		UnitCost:       r.UnitCost,
		TotalCost:      r.TotalCost,
		RunningBalance: r.RunningBalance,
		Notes:          r.Notes,
		ActorID:        r.ActorID,
		ActorName:      r.ActorName,
		CreatedAt:      r.CreatedAt,
	}
	if r.RefType != nil && r.RefID != nil {
		ref := &ledger.Reference{
			Type: ledger.ReferenceType(*r.RefType),
			ID:   *r.RefID,
		}
		if r.RefNumber != nil {
			ref.Number = *r.RefNumber
		}
		e.Reference = ref
	}
	return e
}

func fromEntry(e *ledger.Entry) map[string]any {
	row := map[string]any{
		"id":               e.ID,
		"organization_id":  e.OrganizationID,
		"seq":              e.Seq,
		"item_id":          e.ItemID,
		"location_id":      e.LocationID,
		"entry_type":       string(e.Type),
		"qty_in":           e.QtyIn,
		"qty_out":          e.QtyOut,
		"serials":          e.Serials,
		"transfer_id":      e.TransferID,
		"from_location_id": e.FromLocationID,
		"to_location_id":   e.ToLocationID,
		"unit_cost":        e.UnitCost,
		"total_cost":       e.TotalCost,
		"running_balance":  e.RunningBalance,
		"notes":            e.Notes,
		"actor_id":         e.ActorID,
		"actor_name":       e.ActorName,
		"created_at":       e.CreatedAt,
	}
	if e.Reference != nil {
		row["reference_type"] = string(e.Reference.Type)
		row["reference_id"] = e.Reference.ID
		row["reference_number"] = e.Reference.Number
	}
	return row
}

// Append assigns the next per-organization Seq and inserts the entry.
// Must be called inside a transaction with the key lock held.
func (r *LedgerRepo) Append(ctx context.Context, entry *ledger.Entry) error {
	if r.txm.GetTx(ctx) == nil {
		return fmt.Errorf("ledger append requires a transaction")
	}

	orgID, err := tenant.OrgID(ctx)
	if err != nil {
		return err
	}
	if entry.OrganizationID != orgID {
		return apperror.NewForbidden("entry belongs to a different organization")
	}

	seq, err := r.nextSeq(ctx, orgID)
	if err != nil {
		return err
	}
	entry.Seq = seq

	q := builder().
		Insert(ledgerTable).
		SetMap(fromEntry(entry))

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}

	return nil
}

// nextSeq increments and returns the organization's ledger counter.
// Runs inside the append transaction; the row lock on the counter row
// makes Seq assignment match commit order.
func (r *LedgerRepo) nextSeq(ctx context.Context, orgID id.ID) (int64, error) {
	const query = `
		INSERT INTO stock_ledger_seq (organization_id, last_seq)
		VALUES ($1, 1)
		ON CONFLICT (organization_id)
		DO UPDATE SET last_seq = stock_ledger_seq.last_seq + 1
		RETURNING last_seq`

	var seq int64
	if err := r.txm.GetQuerier(ctx).QueryRow(ctx, query, orgID).Scan(&seq); err != nil {
		return 0, fmt.Errorf("next ledger seq: %w", err)
	}
	return seq, nil
}

// LockKey takes a transaction-scoped advisory lock on the
// (org, item, location) key. Released automatically at commit/rollback.
func (r *LedgerRepo) LockKey(ctx context.Context, itemID, locationID id.ID) error {
	if r.txm.GetTx(ctx) == nil {
		return fmt.Errorf("key lock requires a transaction")
	}

	orgID, err := tenant.OrgID(ctx)
	if err != nil {
		return err
	}

	key := orgID.String() + ":" + itemID.String() + ":" + locationID.String()
	if _, err := r.txm.GetQuerier(ctx).Exec(ctx,
		"SELECT pg_advisory_xact_lock(hashtextextended($1, 0))", key); err != nil {
		return fmt.Errorf("acquire key lock: %w", err)
	}
	return nil
}

// GetByID retrieves a single entry.
func (r *LedgerRepo) GetByID(ctx context.Context, entryID id.ID) (*ledger.Entry, error) {
	orgID, err := tenant.OrgID(ctx)
	if err != nil {
		return nil, err
	}

	q := builder().
		Select(entryColumns...).
		From(ledgerTable).
		Where(squirrel.Eq{"organization_id": orgID}).
		Where(squirrel.Eq{"id": entryID}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var row entryRow
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &row, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("ledger entry", entryID.String())
		}
		return nil, fmt.Errorf("get ledger entry: %w", err)
	}

	return row.toEntry(), nil
}

// SumByKey returns total inbound and outbound quantity for the key.
func (r *LedgerRepo) SumByKey(ctx context.Context, itemID, locationID id.ID) (types.Quantity, types.Quantity, error) {
	orgID, err := tenant.OrgID(ctx)
	if err != nil {
		return 0, 0, err
	}

	q := builder().
		Select(
			"COALESCE(SUM(qty_in), 0) AS total_in",
			"COALESCE(SUM(qty_out), 0) AS total_out",
		).
		From(ledgerTable).
		Where(squirrel.Eq{"organization_id": orgID}).
		Where(squirrel.Eq{"item_id": itemID}).
		Where(squirrel.Eq{"location_id": locationID})

	sql, args, err := q.ToSql()
	if err != nil {
		return 0, 0, fmt.Errorf("build query: %w", err)
	}

	var in, out types.Quantity
	if err := r.txm.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&in, &out); err != nil {
		return 0, 0, fmt.Errorf("sum ledger by key: %w", err)
	}

	return in, out, nil
}

// SumByItem returns per-location totals for an item.
func (r *LedgerRepo) SumByItem(ctx context.Context, itemID id.ID) ([]ledger.LocationSum, error) {
	orgID, err := tenant.OrgID(ctx)
	if err != nil {
		return nil, err
	}

	q := builder().
		Select(
			"location_id",
			"COALESCE(SUM(qty_in), 0) AS total_in",
			"COALESCE(SUM(qty_out), 0) AS total_out",
		).
		From(ledgerTable).
		Where(squirrel.Eq{"organization_id": orgID}).
		Where(squirrel.Eq{"item_id": itemID}).
		GroupBy("location_id").
		OrderBy("MIN(seq)")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var sums []ledger.LocationSum
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &sums, sql, args...); err != nil {
		return nil, fmt.Errorf("sum ledger by item: %w", err)
	}

	return sums, nil
}

// History returns entries matching the filter, ordered by Seq.
func (r *LedgerRepo) History(ctx context.Context, filter ledger.HistoryFilter) ([]*ledger.Entry, error) {
	orgID, err := tenant.OrgID(ctx)
	if err != nil {
		return nil, err
	}

	q := builder().
		Select(entryColumns...).
		From(ledgerTable).
		Where(squirrel.Eq{"organization_id": orgID})

	if filter.ItemID != nil {
		q = q.Where(squirrel.Eq{"item_id": *filter.ItemID})
	}
	if filter.LocationID != nil {
		q = q.Where(squirrel.Eq{"location_id": *filter.LocationID})
	}
	if len(filter.Types) > 0 {
		typeStrs := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			typeStrs[i] = string(t)
		}
		q = q.Where(squirrel.Eq{"entry_type": typeStrs})
	}
	if filter.From != nil {
		q = q.Where(squirrel.GtOrEq{"created_at": *filter.From})
	}
	if filter.To != nil {
		q = q.Where(squirrel.LtOrEq{"created_at": *filter.To})
	}

	if filter.Descending {
		q = q.OrderBy("seq DESC")
	} else {
		q = q.OrderBy("seq ASC")
	}

	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []entryRow
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("ledger history: %w", err)
	}

	entries := make([]*ledger.Entry, len(rows))
	for i, row := range rows {
		entries[i] = row.toEntry()
	}
	return entries, nil
}

// GetByTransferID returns both halves of a transfer pair.
func (r *LedgerRepo) GetByTransferID(ctx context.Context, transferID id.ID) ([]*ledger.Entry, error) {
	orgID, err := tenant.OrgID(ctx)
	if err != nil {
		return nil, err
	}

	q := builder().
		Select(entryColumns...).
		From(ledgerTable).
		Where(squirrel.Eq{"organization_id": orgID}).
		Where(squirrel.Eq{"transfer_id": transferID}).
		OrderBy("seq ASC")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []entryRow
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("get transfer pair: %w", err)
	}

	entries := make([]*ledger.Entry, len(rows))
	for i, row := range rows {
		entries[i] = row.toEntry()
	}
	return entries, nil
}
