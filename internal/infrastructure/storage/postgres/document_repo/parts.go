package document_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"fieldstock/internal/core/apperror"
	"fieldstock/internal/core/id"
	"fieldstock/internal/core/tenant"
	"fieldstock/internal/core/types"
	"fieldstock/internal/domain"
	"fieldstock/internal/domain/partsreq"
	"fieldstock/internal/infrastructure/storage/postgres"
)

const (
	partRequestTable = "doc_part_requests"
	partHistoryTable = "doc_part_request_status_history"
	partIssueTable   = "doc_part_issues"
)

var (
	partRequestColumns = postgres.ExtractDBColumns[partsreq.TicketPartRequest]()
	partIssueColumns   = postgres.ExtractDBColumns[partsreq.PartIssue]()
)

// partHistoryRow joins a status change to its request.
type partHistoryRow struct {
	RequestID id.ID `db:"request_id"`
	Seq       int   `db:"seq"`
	partsreq.StatusChange
}

var partHistoryColumns = postgres.ExtractDBColumns[partHistoryRow]()

// PartsRepo is the PostgreSQL implementation of partsreq.Repository.
type PartsRepo struct {
	txm *postgres.TxManager
}

var _ partsreq.Repository = (*PartsRepo)(nil)

// NewPartsRepo creates the part request repository.
func NewPartsRepo(txm *postgres.TxManager) *PartsRepo {
	return &PartsRepo{txm: txm}
}

// Create inserts the request with its initial status history.
func (r *PartsRepo) Create(ctx context.Context, req *partsreq.TicketPartRequest) error {
	orgID, err := tenant.OrgID(ctx)
	if err != nil {
		return err
	}
	if req.OrganizationID != orgID {
		return apperror.NewForbidden("request belongs to a different organization")
	}

	return r.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := insertRow(ctx, r.txm, partRequestTable, postgres.StructToMap(req)); err != nil {
			return err
		}
		return r.appendHistory(ctx, req, 0)
	})
}

// GetByID retrieves a request with its status history.
func (r *PartsRepo) GetByID(ctx context.Context, reqID id.ID) (*partsreq.TicketPartRequest, error) {
	orgID, err := tenant.OrgID(ctx)
	if err != nil {
		return nil, err
	}

	q := builder().
		Select(partRequestColumns...).
		From(partRequestTable).
		Where(squirrel.Eq{"id": reqID}).
		Where(squirrel.Eq{"organization_id": orgID}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var req partsreq.TicketPartRequest
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &req, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("part request", reqID.String())
		}
		return nil, fmt.Errorf("get part request: %w", err)
	}

	if err := r.loadHistory(ctx, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *PartsRepo) loadHistory(ctx context.Context, req *partsreq.TicketPartRequest) error {
	sql, args, err := builder().
		Select(partHistoryColumns...).
		From(partHistoryTable).
		Where(squirrel.Eq{"request_id": req.ID}).
		OrderBy("seq ASC").
		ToSql()
	if err != nil {
		return fmt.Errorf("build history query: %w", err)
	}

	var rows []partHistoryRow
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return fmt.Errorf("load part request status history: %w", err)
	}
	req.StatusHistory = make([]partsreq.StatusChange, len(rows))
	for i, row := range rows {
		req.StatusHistory[i] = row.StatusChange
	}
	return nil
}

// Update persists the request and appends any new status history rows.
func (r *PartsRepo) Update(ctx context.Context, req *partsreq.TicketPartRequest) error {
	orgID, err := tenant.OrgID(ctx)
	if err != nil {
		return err
	}

	return r.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := updateHeader(ctx, r.txm, partRequestTable, orgID, postgres.StructToMap(req)); err != nil {
			return err
		}
		persisted, err := historyCount(ctx, r.txm, partHistoryTable, req.ID)
		if err != nil {
			return err
		}
		return r.appendHistory(ctx, req, persisted)
	})
}

func (r *PartsRepo) appendHistory(ctx context.Context, req *partsreq.TicketPartRequest, from int) error {
	for i := from; i < len(req.StatusHistory); i++ {
		row := partHistoryRow{RequestID: req.ID, Seq: i + 1, StatusChange: req.StatusHistory[i]}
		if err := insertRow(ctx, r.txm, partHistoryTable, postgres.StructToMap(row)); err != nil {
			return err
		}
	}
	return nil
}

// List retrieves requests matching the filter, newest first.
func (r *PartsRepo) List(ctx context.Context, filter partsreq.ListFilter) (domain.ListResult[*partsreq.TicketPartRequest], error) {
	result := domain.ListResult[*partsreq.TicketPartRequest]{
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}

	orgID, err := tenant.OrgID(ctx)
	if err != nil {
		return result, err
	}

	q := builder().
		Select(partRequestColumns...).
		From(partRequestTable).
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
	if filter.TicketID != nil {
		q = q.Where(squirrel.Eq{"ticket_id": *filter.TicketID})
	}
	if filter.ItemID != nil {
		q = q.Where(squirrel.Eq{"item_id": *filter.ItemID})
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
		return result, fmt.Errorf("count part requests: %w", err)
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

	var reqs []*partsreq.TicketPartRequest
	if err := pgxscan.Select(ctx, querier, &reqs, sql, args...); err != nil {
		return result, fmt.Errorf("list part requests: %w", err)
	}

	for _, req := range reqs {
		if err := r.loadHistory(ctx, req); err != nil {
			return result, err
		}
	}

	result.Items = reqs
	return result, nil
}

// SumReserved returns the total quantity of open requests for an item.
func (r *PartsRepo) SumReserved(ctx context.Context, itemID id.ID) (types.Quantity, error) {
	orgID, err := tenant.OrgID(ctx)
	if err != nil {
		return 0, err
	}

	reserving := []string{
		string(partsreq.StatusApproved),
		string(partsreq.StatusOrdered),
		string(partsreq.StatusAvailable),
	}

	q := builder().
		Select("COALESCE(SUM(quantity), 0)").
		From(partRequestTable).
		Where(squirrel.Eq{"organization_id": orgID}).
		Where(squirrel.Eq{"item_id": itemID}).
		Where(squirrel.Eq{"status": reserving})

	sql, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}

	var total types.Quantity
	if err := r.txm.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum reserved: %w", err)
	}
	return total, nil
}

// CreateIssue inserts a part issue.
func (r *PartsRepo) CreateIssue(ctx context.Context, issue *partsreq.PartIssue) error {
	orgID, err := tenant.OrgID(ctx)
	if err != nil {
		return err
	}
	if issue.OrganizationID != orgID {
		return apperror.NewForbidden("issue belongs to a different organization")
	}

	return insertRow(ctx, r.txm, partIssueTable, postgres.StructToMap(issue))
}

// GetIssueByID retrieves a part issue.
func (r *PartsRepo) GetIssueByID(ctx context.Context, issueID id.ID) (*partsreq.PartIssue, error) {
	orgID, err := tenant.OrgID(ctx)
	if err != nil {
		return nil, err
	}

	q := builder().
		Select(partIssueColumns...).
		From(partIssueTable).
		Where(squirrel.Eq{"id": issueID}).
		Where(squirrel.Eq{"organization_id": orgID}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var issue partsreq.PartIssue
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &issue, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("part issue", issueID.String())
		}
		return nil, fmt.Errorf("get part issue: %w", err)
	}
	return &issue, nil
}

// UpdateIssue persists return progress on an issue.
func (r *PartsRepo) UpdateIssue(ctx context.Context, issue *partsreq.PartIssue) error {
	orgID, err := tenant.OrgID(ctx)
	if err != nil {
		return err
	}

	data := postgres.StructToMap(issue)
	setData := make(map[string]any, len(data))
	for col, val := range data {
		if col == "id" || col == "organization_id" || col == "created_at" {
			continue
		}
		setData[col] = val
	}

	q := builder().
		Update(partIssueTable).
		SetMap(setData).
		Where(squirrel.Eq{"id": issue.ID}).
		Where(squirrel.Eq{"organization_id": orgID})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	result, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update part issue: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewNotFound("part issue", issue.ID.String())
	}
	return nil
}

// ListIssuesByTicket returns issues for a ticket, oldest first.
func (r *PartsRepo) ListIssuesByTicket(ctx context.Context, ticketID id.ID) ([]*partsreq.PartIssue, error) {
	orgID, err := tenant.OrgID(ctx)
	if err != nil {
		return nil, err
	}

	q := builder().
		Select(partIssueColumns...).
		From(partIssueTable).
		Where(squirrel.Eq{"organization_id": orgID}).
		Where(squirrel.Eq{"ticket_id": ticketID}).
		OrderBy("created_at ASC")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var issues []*partsreq.PartIssue
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &issues, sql, args...); err != nil {
		return nil, fmt.Errorf("list part issues: %w", err)
	}
	return issues, nil
}
