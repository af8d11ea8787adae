package memory

import (
	"context"
	"sort"

	"fieldstock/internal/core/apperror"
	"fieldstock/internal/core/id"
	"fieldstock/internal/core/types"
	"fieldstock/internal/domain"
	"fieldstock/internal/domain/partsreq"
	"fieldstock/internal/domain/procurement"
)

// PurchaseRepository implements procurement.Repository over the store.
type PurchaseRepository struct {
	s *Store
}

func (r *PurchaseRepository) Create(ctx context.Context, req *procurement.PurchaseRequest) error {
	unlock := r.s.acquire(ctx)
	defer unlock()

	orgID, err := orgOf(ctx)
	if err != nil {
		return err
	}
	if req.OrganizationID != orgID {
		return apperror.NewForbidden("request belongs to a different organization")
	}
	if _, exists := r.s.purchases[req.ID]; exists {
		return apperror.NewDuplicate("purchase request", "id", req.ID.String())
	}

	r.s.purchases[req.ID] = clonePurchase(req)
	return nil
}

func (r *PurchaseRepository) GetByID(ctx context.Context, reqID id.ID) (*procurement.PurchaseRequest, error) {
	unlock := r.s.acquireRead(ctx)
	defer unlock()

	orgID, err := orgOf(ctx)
	if err != nil {
		return nil, err
	}

	req, ok := r.s.purchases[reqID]
	if !ok || req.OrganizationID != orgID {
		return nil, apperror.NewNotFound("purchase request", reqID.String())
	}
	return clonePurchase(req), nil
}

func (r *PurchaseRepository) GetByNumber(ctx context.Context, number string) (*procurement.PurchaseRequest, error) {
	unlock := r.s.acquireRead(ctx)
	defer unlock()

	orgID, err := orgOf(ctx)
	if err != nil {
		return nil, err
	}

	for _, req := range r.s.purchases {
		if req.OrganizationID == orgID && req.Number == number {
			return clonePurchase(req), nil
		}
	}
	return nil, apperror.NewNotFound("purchase request", number)
}

func (r *PurchaseRepository) Update(ctx context.Context, req *procurement.PurchaseRequest) error {
	unlock := r.s.acquire(ctx)
	defer unlock()

	orgID, err := orgOf(ctx)
	if err != nil {
		return err
	}

	stored, ok := r.s.purchases[req.ID]
	if !ok || stored.OrganizationID != orgID {
		return apperror.NewNotFound("purchase request", req.ID.String())
	}
	if req.Version < stored.Version {
		return apperror.NewConflict("purchase request was modified concurrently").
			WithDetail("id", req.ID)
	}

	r.s.purchases[req.ID] = clonePurchase(req)
	return nil
}

func (r *PurchaseRepository) List(ctx context.Context, filter procurement.ListFilter) (domain.ListResult[*procurement.PurchaseRequest], error) {
	unlock := r.s.acquireRead(ctx)
	defer unlock()

	orgID, err := orgOf(ctx)
	if err != nil {
		return domain.ListResult[*procurement.PurchaseRequest]{}, err
	}

	var matched []*procurement.PurchaseRequest
	for _, req := range r.s.purchases {
		if req.OrganizationID != orgID {
			continue
		}
		if req.DeletionMark && !filter.IncludeDeleted {
			continue
		}
		if len(filter.Statuses) > 0 && !containsPurchaseStatus(filter.Statuses, req.Status) {
			continue
		}
		if filter.Requester != "" && req.Requester != filter.Requester {
			continue
		}
		if filter.ItemID != nil && !purchaseHasItem(req, *filter.ItemID) {
			continue
		}
		matched = append(matched, req)
	}

	// Newest first: UUIDv7 document IDs are time-ordered.
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	matched = page(matched, filter.Offset, filter.Limit)

	reqs := make([]*procurement.PurchaseRequest, len(matched))
	for i, req := range matched {
		reqs[i] = clonePurchase(req)
	}
	return domain.ListResult[*procurement.PurchaseRequest]{
		Items:      reqs,
		TotalCount: total,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	}, nil
}

func containsPurchaseStatus(statuses []procurement.Status, s procurement.Status) bool {
	for _, candidate := range statuses {
		if candidate == s {
			return true
		}
	}
	return false
}

func purchaseHasItem(req *procurement.PurchaseRequest, itemID id.ID) bool {
	for i := range req.Lines {
		if req.Lines[i].ItemID == itemID {
			return true
		}
	}
	return false
}

// PartsRepository implements partsreq.Repository over the store.
type PartsRepository struct {
	s *Store
}

func (r *PartsRepository) Create(ctx context.Context, req *partsreq.TicketPartRequest) error {
	unlock := r.s.acquire(ctx)
	defer unlock()

	orgID, err := orgOf(ctx)
	if err != nil {
		return err
	}
	if req.OrganizationID != orgID {
		return apperror.NewForbidden("request belongs to a different organization")
	}
	if _, exists := r.s.partReqs[req.ID]; exists {
		return apperror.NewDuplicate("part request", "id", req.ID.String())
	}

	r.s.partReqs[req.ID] = clonePartRequest(req)
	return nil
}

func (r *PartsRepository) GetByID(ctx context.Context, reqID id.ID) (*partsreq.TicketPartRequest, error) {
	unlock := r.s.acquireRead(ctx)
	defer unlock()

	orgID, err := orgOf(ctx)
	if err != nil {
		return nil, err
	}

	req, ok := r.s.partReqs[reqID]
	if !ok || req.OrganizationID != orgID {
		return nil, apperror.NewNotFound("part request", reqID.String())
	}
	return clonePartRequest(req), nil
}

func (r *PartsRepository) Update(ctx context.Context, req *partsreq.TicketPartRequest) error {
	unlock := r.s.acquire(ctx)
	defer unlock()

	orgID, err := orgOf(ctx)
	if err != nil {
		return err
	}

	stored, ok := r.s.partReqs[req.ID]
	if !ok || stored.OrganizationID != orgID {
		return apperror.NewNotFound("part request", req.ID.String())
	}
	if req.Version < stored.Version {
		return apperror.NewConflict("part request was modified concurrently").
			WithDetail("id", req.ID)
	}

	r.s.partReqs[req.ID] = clonePartRequest(req)
	return nil
}

func (r *PartsRepository) List(ctx context.Context, filter partsreq.ListFilter) (domain.ListResult[*partsreq.TicketPartRequest], error) {
	unlock := r.s.acquireRead(ctx)
	defer unlock()

	orgID, err := orgOf(ctx)
	if err != nil {
		return domain.ListResult[*partsreq.TicketPartRequest]{}, err
	}

	var matched []*partsreq.TicketPartRequest
	for _, req := range r.s.partReqs {
		if req.OrganizationID != orgID {
			continue
		}
		if req.DeletionMark && !filter.IncludeDeleted {
			continue
		}
		if len(filter.Statuses) > 0 && !containsPartStatus(filter.Statuses, req.Status) {
			continue
		}
		if filter.TicketID != nil && req.TicketID != *filter.TicketID {
			continue
		}
		if filter.ItemID != nil && req.ItemID != *filter.ItemID {
			continue
		}
		matched = append(matched, req)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	matched = page(matched, filter.Offset, filter.Limit)

	reqs := make([]*partsreq.TicketPartRequest, len(matched))
	for i, req := range matched {
		reqs[i] = clonePartRequest(req)
	}
	return domain.ListResult[*partsreq.TicketPartRequest]{
		Items:      reqs,
		TotalCount: total,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	}, nil
}

func (r *PartsRepository) SumReserved(ctx context.Context, itemID id.ID) (types.Quantity, error) {
	unlock := r.s.acquireRead(ctx)
	defer unlock()

	orgID, err := orgOf(ctx)
	if err != nil {
		return 0, err
	}

	var total types.Quantity
	for _, req := range r.s.partReqs {
		if req.OrganizationID != orgID || req.ItemID != itemID {
			continue
		}
		if req.Status.IsReserving() {
			total += req.Quantity
		}
	}
	return total, nil
}

func (r *PartsRepository) CreateIssue(ctx context.Context, issue *partsreq.PartIssue) error {
	unlock := r.s.acquire(ctx)
	defer unlock()

	orgID, err := orgOf(ctx)
	if err != nil {
		return err
	}
	if issue.OrganizationID != orgID {
		return apperror.NewForbidden("issue belongs to a different organization")
	}
	if _, exists := r.s.issues[issue.ID]; exists {
		return apperror.NewDuplicate("part issue", "id", issue.ID.String())
	}

	r.s.issues[issue.ID] = cloneIssue(issue)
	return nil
}

func (r *PartsRepository) GetIssueByID(ctx context.Context, issueID id.ID) (*partsreq.PartIssue, error) {
	unlock := r.s.acquireRead(ctx)
	defer unlock()

	orgID, err := orgOf(ctx)
	if err != nil {
		return nil, err
	}

	issue, ok := r.s.issues[issueID]
	if !ok || issue.OrganizationID != orgID {
		return nil, apperror.NewNotFound("part issue", issueID.String())
	}
	return cloneIssue(issue), nil
}

func (r *PartsRepository) UpdateIssue(ctx context.Context, issue *partsreq.PartIssue) error {
	unlock := r.s.acquire(ctx)
	defer unlock()

	orgID, err := orgOf(ctx)
	if err != nil {
		return err
	}

	stored, ok := r.s.issues[issue.ID]
	if !ok || stored.OrganizationID != orgID {
		return apperror.NewNotFound("part issue", issue.ID.String())
	}

	r.s.issues[issue.ID] = cloneIssue(issue)
	return nil
}

func (r *PartsRepository) ListIssuesByTicket(ctx context.Context, ticketID id.ID) ([]*partsreq.PartIssue, error) {
	unlock := r.s.acquireRead(ctx)
	defer unlock()

	orgID, err := orgOf(ctx)
	if err != nil {
		return nil, err
	}

	var out []*partsreq.PartIssue
	for _, issue := range r.s.issues {
		if issue.OrganizationID == orgID && issue.TicketID == ticketID {
			out = append(out, cloneIssue(issue))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func containsPartStatus(statuses []partsreq.Status, s partsreq.Status) bool {
	for _, candidate := range statuses {
		if candidate == s {
			return true
		}
	}
	return false
}
