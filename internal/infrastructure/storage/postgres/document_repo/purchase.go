package document_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"fieldstock/internal/core/apperror"
	"fieldstock/internal/core/id"
	"fieldstock/internal/core/tenant"
	"fieldstock/internal/domain"
	"fieldstock/internal/domain/procurement"
	"fieldstock/internal/infrastructure/storage/postgres"
)

const (
	purchaseTable        = "doc_purchase_requests"
	purchaseLineTable    = "doc_purchase_request_lines"
	purchaseHistoryTable = "doc_purchase_status_history"
)

var purchaseHeaderColumns = postgres.ExtractDBColumns[procurement.PurchaseRequest]()

// purchaseLineRow joins a line to its header.
type purchaseLineRow struct {
	RequestID id.ID `db:"request_id"`
	LineNo    int   `db:"line_no"`
	procurement.Line
}

var purchaseLineColumns = postgres.ExtractDBColumns[purchaseLineRow]()

// purchaseHistoryRow joins a status change to its header.
type purchaseHistoryRow struct {
	RequestID id.ID `db:"request_id"`
	Seq       int   `db:"seq"`
	procurement.StatusChange
}

var purchaseHistoryColumns = postgres.ExtractDBColumns[purchaseHistoryRow]()

// PurchaseRepo is the PostgreSQL implementation of
// procurement.Repository.
type PurchaseRepo struct {
	txm *postgres.TxManager
}

var _ procurement.Repository = (*PurchaseRepo)(nil)

// NewPurchaseRepo creates the purchase request repository.
func NewPurchaseRepo(txm *postgres.TxManager) *PurchaseRepo {
	return &PurchaseRepo{txm: txm}
}

// Create inserts the header, lines and initial status history.
func (r *PurchaseRepo) Create(ctx context.Context, req *procurement.PurchaseRequest) error {
	orgID, err := tenant.OrgID(ctx)
	if err != nil {
		return err
	}
	if req.OrganizationID != orgID {
		return apperror.NewForbidden("request belongs to a different organization")
	}

	return r.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := insertRow(ctx, r.txm, purchaseTable, postgres.StructToMap(req)); err != nil {
			return err
		}
		if err := r.insertLines(ctx, req); err != nil {
			return err
		}
		return r.appendHistory(ctx, req, 0)
	})
}

// GetByID retrieves a request with lines and status history.
func (r *PurchaseRepo) GetByID(ctx context.Context, reqID id.ID) (*procurement.PurchaseRequest, error) {
	orgID, err := tenant.OrgID(ctx)
	if err != nil {
		return nil, err
	}
	return r.fetchOne(ctx, squirrel.Eq{"id": reqID, "organization_id": orgID}, reqID.String())
}

// GetByNumber retrieves a request by document number.
func (r *PurchaseRepo) GetByNumber(ctx context.Context, number string) (*procurement.PurchaseRequest, error) {
	orgID, err := tenant.OrgID(ctx)
	if err != nil {
		return nil, err
	}
	return r.fetchOne(ctx, squirrel.Eq{"number": number, "organization_id": orgID}, number)
}

func (r *PurchaseRepo) fetchOne(ctx context.Context, pred squirrel.Eq, key string) (*procurement.PurchaseRequest, error) {
	q := builder().
		Select(purchaseHeaderColumns...).
		From(purchaseTable).
		Where(pred).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var req procurement.PurchaseRequest
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &req, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("purchase request", key)
		}
		return nil, fmt.Errorf("get purchase request: %w", err)
	}

	if err := r.loadChildren(ctx, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *PurchaseRepo) loadChildren(ctx context.Context, req *procurement.PurchaseRequest) error {
	lineSQL, lineArgs, err := builder().
		Select(purchaseLineColumns...).
		From(purchaseLineTable).
		Where(squirrel.Eq{"request_id": req.ID}).
		OrderBy("line_no ASC").
		ToSql()
	if err != nil {
		return fmt.Errorf("build lines query: %w", err)
	}

	var lineRows []purchaseLineRow
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &lineRows, lineSQL, lineArgs...); err != nil {
		return fmt.Errorf("load purchase lines: %w", err)
	}
	req.Lines = make([]procurement.Line, len(lineRows))
	for i, row := range lineRows {
		req.Lines[i] = row.Line
	}

	histSQL, histArgs, err := builder().
		Select(purchaseHistoryColumns...).
		From(purchaseHistoryTable).
		Where(squirrel.Eq{"request_id": req.ID}).
		OrderBy("seq ASC").
		ToSql()
	if err != nil {
		return fmt.Errorf("build history query: %w", err)
	}

	var histRows []purchaseHistoryRow
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &histRows, histSQL, histArgs...); err != nil {
		return fmt.Errorf("load purchase status history: %w", err)
	}
	req.StatusHistory = make([]procurement.StatusChange, len(histRows))
	for i, row := range histRows {
		req.StatusHistory[i] = row.StatusChange
	}

	return nil
}

// Update persists the header, replaces lines and appends any new
// status history rows.
func (r *PurchaseRepo) Update(ctx context.Context, req *procurement.PurchaseRequest) error {
	orgID, err := tenant.OrgID(ctx)
	if err != nil {
		return err
	}

	return r.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := updateHeader(ctx, r.txm, purchaseTable, orgID, postgres.StructToMap(req)); err != nil {
			return err
		}

		// Lines are replaced wholesale: line sets are small and only
		// change in draft.
		delSQL, delArgs, err := builder().
			Delete(purchaseLineTable).
			Where(squirrel.Eq{"request_id": req.ID}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build delete lines: %w", err)
		}
		if _, err := r.txm.GetQuerier(ctx).Exec(ctx, delSQL, delArgs...); err != nil {
			return fmt.Errorf("delete purchase lines: %w", err)
		}
		if err := r.insertLines(ctx, req); err != nil {
			return err
		}

		// Status history is append-only: persist only the tail.
		persisted, err := historyCount(ctx, r.txm, purchaseHistoryTable, req.ID)
		if err != nil {
			return err
		}
		return r.appendHistory(ctx, req, persisted)
	})
}

func (r *PurchaseRepo) insertLines(ctx context.Context, req *procurement.PurchaseRequest) error {
	for i := range req.Lines {
		row := purchaseLineRow{RequestID: req.ID, LineNo: i + 1, Line: req.Lines[i]}
		if err := insertRow(ctx, r.txm, purchaseLineTable, postgres.StructToMap(row)); err != nil {
			return err
		}
	}
	return nil
}

func (r *PurchaseRepo) appendHistory(ctx context.Context, req *procurement.PurchaseRequest, from int) error {
	for i := from; i < len(req.StatusHistory); i++ {
		row := purchaseHistoryRow{RequestID: req.ID, Seq: i + 1, StatusChange: req.StatusHistory[i]}
		if err := insertRow(ctx, r.txm, purchaseHistoryTable, postgres.StructToMap(row)); err != nil {
			return err
		}
	}
	return nil
}

// List retrieves requests matching the filter, newest first.
func (r *PurchaseRepo) List(ctx context.Context, filter procurement.ListFilter) (domain.ListResult[*procurement.PurchaseRequest], error) {
	result := domain.ListResult[*procurement.PurchaseRequest]{
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}

	orgID, err := tenant.OrgID(ctx)
	if err != nil {
		return result, err
	}

	q := builder().
		Select(purchaseHeaderColumns...).
		From(purchaseTable).
		Where(squirrel.Eq{"organization_id": orgID})

	if !filter.IncludeDeleted {
		q = q.Where(squirrel.Eq{"deletion_mark": false})
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		q = q.Where(squirrel.Eq{"status": statuses})
	}
	if filter.Requester != "" {
		q = q.Where(squirrel.Eq{"requester": filter.Requester})
	}
	if filter.ItemID != nil {
		// Question placeholders here: the outer builder rewrites them
		// to dollars at final ToSql.
		sub := squirrel.
			Select("1").
			From(purchaseLineTable + " l").
			Where("l.request_id = " + purchaseTable + ".id").
			Where(squirrel.Eq{"l.item_id": *filter.ItemID})
		subSQL, subArgs, err := sub.ToSql()
		if err != nil {
			return result, fmt.Errorf("build line filter: %w", err)
		}
		q = q.Where("EXISTS ("+subSQL+")", subArgs...)
	}

	countSQL, countArgs, err := builder().
		Select("COUNT(*)").
		FromSelect(q, "sub").
		ToSql()
	if err != nil {
		return result, fmt.Errorf("build count query: %w", err)
	}

	querier := r.txm.GetQuerier(ctx)
	if err := querier.QueryRow(ctx, countSQL, countArgs...).Scan(&result.TotalCount); err != nil {
		return result, fmt.Errorf("count purchase requests: %w", err)
	}

	q = q.OrderBy("created_at DESC")
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return result, fmt.Errorf("build query: %w", err)
	}

	var reqs []*procurement.PurchaseRequest
	if err := pgxscan.Select(ctx, querier, &reqs, sql, args...); err != nil {
		return result, fmt.Errorf("list purchase requests: %w", err)
	}

	for _, req := range reqs {
		if err := r.loadChildren(ctx, req); err != nil {
			return result, err
		}
	}

	result.Items = reqs
	return result, nil
}
