package procurement

import (
	"context"
	"fmt"
	"time"

	"fieldstock/internal/core/apperror"
	appctx "fieldstock/internal/core/context"
	"fieldstock/internal/core/id"
	"fieldstock/internal/core/tenant"
	"fieldstock/internal/core/tx"
	"fieldstock/internal/core/types"
	"fieldstock/internal/domain"
	"fieldstock/pkg/logger"
	"fieldstock/pkg/numerator"
)

// Service provides business logic for purchase requests.
type Service struct {
	repo      Repository
	txManager tx.Manager
	numerator *numerator.Service
	audit     domain.AuditRecorder
}

// NewService creates a purchase request service.
func NewService(repo Repository, txManager tx.Manager, num *numerator.Service) *Service {
	return &Service{
		repo:      repo,
		txManager: txManager,
		numerator: num,
	}
}

// WithAudit attaches an audit recorder; overrides and receipts are then
// written to the audit trail inside the same transaction.
func (s *Service) WithAudit(recorder domain.AuditRecorder) *Service {
	s.audit = recorder
	return s
}

// CreateInput describes a new draft request.
type CreateInput struct {
	VendorName *string
	Comment    string
	Lines      []LineInput
}

// LineInput is one requested line.
type LineInput struct {
	ItemID       id.ID
	Quantity     types.Quantity
	EstUnitPrice types.Money
	Note         string
}

// Create creates a draft purchase request with a generated number.
func (s *Service) Create(ctx context.Context, input CreateInput) (*PurchaseRequest, error) {
	orgID, err := tenant.OrgID(ctx)
	if err != nil {
		return nil, apperror.NewUnauthorized("organization scope missing")
	}

	req := NewPurchaseRequest(orgID, appctx.GetUserName(ctx))
	req.VendorName = input.VendorName
	req.Comment = input.Comment
	req.CreatedBy = appctx.GetUserID(ctx)

	for _, l := range input.Lines {
		if _, err := req.AddLine(l.ItemID, l.Quantity, l.EstUnitPrice, l.Note); err != nil {
			return nil, err
		}
	}

	number, err := s.numerator.Next(ctx, orgID, numerator.DefaultConfig("PR"), nil, time.Now())
	if err != nil {
		return nil, fmt.Errorf("generate number: %w", err)
	}
	req.Number = number

	if err := req.Validate(ctx); err != nil {
		return nil, err
	}

	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		return s.repo.Create(ctx, req)
	})
	if err != nil {
		return nil, fmt.Errorf("create purchase request: %w", err)
	}

	logger.Info(ctx, "created purchase request",
		"request_id", req.ID, "number", req.Number, "lines", len(req.Lines))

	return req, nil
}

// AddLine adds a line to a draft request.
func (s *Service) AddLine(ctx context.Context, reqID id.ID, input LineInput) (*PurchaseRequest, error) {
	return s.mutate(ctx, reqID, func(ctx context.Context, req *PurchaseRequest) error {
		_, err := req.AddLine(input.ItemID, input.Quantity, input.EstUnitPrice, input.Note)
		return err
	})
}

// Submit moves draft→pending. Requires at least one line.
func (s *Service) Submit(ctx context.Context, reqID id.ID) (*PurchaseRequest, error) {
	return s.mutate(ctx, reqID, func(ctx context.Context, req *PurchaseRequest) error {
		if len(req.Lines) == 0 {
			return apperror.NewValidation("request needs at least one line").
				WithDetail("field", "lines")
		}
		return req.ChangeStatus(StatusPending, appctx.GetUserName(ctx), "", false)
	})
}

// ApprovalInput caps approved quantities per line. Lines not listed are
// approved at the requested quantity.
type ApprovalInput struct {
	Note  string
	Lines map[id.ID]types.Quantity // line ID → approved quantity
}

// Approve moves pending→approved, capping approved ≤ requested.
func (s *Service) Approve(ctx context.Context, reqID id.ID, input ApprovalInput) (*PurchaseRequest, error) {
	return s.mutate(ctx, reqID, func(ctx context.Context, req *PurchaseRequest) error {
		for i := range req.Lines {
			l := &req.Lines[i]
			qty, ok := input.Lines[l.ID]
			if !ok {
				qty = l.QtyRequested
			}
			if qty.IsNegative() || qty > l.QtyRequested {
				return apperror.NewValidation("approved quantity must be between 0 and requested").
					WithDetail("lineId", l.ID).
					WithDetail("requested", l.QtyRequested).
					WithDetail("approved", qty)
			}
			l.QtyApproved = qty
		}

		req.Approver = appctx.GetUserName(ctx)
		return req.ChangeStatus(StatusApproved, req.Approver, input.Note, false)
	})
}

// Reject moves pending→rejected.
func (s *Service) Reject(ctx context.Context, reqID id.ID, note string) (*PurchaseRequest, error) {
	return s.mutate(ctx, reqID, func(ctx context.Context, req *PurchaseRequest) error {
		req.Approver = appctx.GetUserName(ctx)
		return req.ChangeStatus(StatusRejected, req.Approver, note, false)
	})
}

// Cancel moves any pre-ordered state→cancelled. No ledger effect.
func (s *Service) Cancel(ctx context.Context, reqID id.ID, note string) (*PurchaseRequest, error) {
	return s.mutate(ctx, reqID, func(ctx context.Context, req *PurchaseRequest) error {
		return req.ChangeStatus(StatusCancelled, appctx.GetUserName(ctx), note, false)
	})
}

// MarkOrdered moves approved→ordered, recording the PO number.
// Ordered quantities are fixed from the approved quantities.
func (s *Service) MarkOrdered(ctx context.Context, reqID id.ID, poNumber string) (*PurchaseRequest, error) {
	if poNumber == "" {
		return nil, apperror.NewValidation("PO number is required").
			WithDetail("field", "poNumber")
	}
	return s.mutate(ctx, reqID, func(ctx context.Context, req *PurchaseRequest) error {
		for i := range req.Lines {
			l := &req.Lines[i]
			l.QtyOrdered = l.QtyApproved
		}
		req.PONumber = &poNumber
		return req.ChangeStatus(StatusOrdered, appctx.GetUserName(ctx), "PO "+poNumber, false)
	})
}

// Transition moves the request to an arbitrary status. Non-admins are
// bound by the transition table; admins may override, and the override
// is recorded in status history.
func (s *Service) Transition(ctx context.Context, reqID id.ID, to Status, note string) (*PurchaseRequest, error) {
	return s.mutate(ctx, reqID, func(ctx context.Context, req *PurchaseRequest) error {
		actor := appctx.GetUserName(ctx)
		if CanTransition(req.Status, to) {
			return req.ChangeStatus(to, actor, note, false)
		}
		if !appctx.IsAdmin(ctx) {
			return apperror.NewIllegalTransition("purchase request", string(req.Status), string(to))
		}
		logger.Warn(ctx, "admin override on purchase request transition",
			"request_id", reqID, "from", req.Status, "to", to, "actor", actor)
		from := req.Status
		if err := req.ChangeStatus(to, actor, note, true); err != nil {
			return err
		}
		return s.recordAudit(ctx, req.ID, domain.AuditOverride, map[string]any{
			"from": string(from),
			"to":   string(to),
			"note": note,
		})
	})
}

// ApplyReceipt increments the received quantity on one line and
// recomputes the partial/received status. Called by the transfer
// coordinator inside its per-line transaction, after the ledger entry
// was appended.
func (s *Service) ApplyReceipt(ctx context.Context, reqID, lineID id.ID, qty types.Quantity, actualPrice *types.Money) (*PurchaseRequest, error) {
	if !qty.IsPositive() {
		return nil, apperror.NewValidation("received quantity must be positive").
			WithDetail("field", "quantity")
	}
	return s.mutate(ctx, reqID, func(ctx context.Context, req *PurchaseRequest) error {
		if req.Status != StatusOrdered && req.Status != StatusPartial {
			return apperror.NewConflict("request is not receivable").
				WithDetail("status", string(req.Status))
		}

		line, err := req.FindLine(lineID)
		if err != nil {
			return err
		}
		if qty > line.Outstanding() {
			return apperror.NewValidation("received quantity exceeds outstanding").
				WithDetail("lineId", lineID).
				WithDetail("outstanding", line.Outstanding()).
				WithDetail("received", qty)
		}

		line.QtyReceived += qty
		if actualPrice != nil {
			line.ActualUnitPrice = *actualPrice
		}

		if err := req.RecomputeReceiptStatus(appctx.GetUserName(ctx)); err != nil {
			return err
		}
		return s.recordAudit(ctx, req.ID, domain.AuditTransition, map[string]any{
			"lineId":   lineID.String(),
			"received": qty,
			"status":   string(req.Status),
		})
	})
}

// recordAudit writes to the audit trail when a recorder is attached.
func (s *Service) recordAudit(ctx context.Context, reqID id.ID, action string, changes map[string]any) error {
	if s.audit == nil {
		return nil
	}
	return s.audit.Record(ctx, "purchase_request", reqID, action, changes)
}

// GetByID retrieves a request.
func (s *Service) GetByID(ctx context.Context, reqID id.ID) (*PurchaseRequest, error) {
	req, err := s.repo.GetByID(ctx, reqID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.NewNotFound("purchase request", reqID.String())
		}
		return nil, err
	}
	return req, nil
}

// List retrieves requests matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) (domain.ListResult[*PurchaseRequest], error) {
	return s.repo.List(ctx, filter)
}

// mutate loads, mutates and saves a request in one transaction.
func (s *Service) mutate(ctx context.Context, reqID id.ID, fn func(context.Context, *PurchaseRequest) error) (*PurchaseRequest, error) {
	var req *PurchaseRequest
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		req, err = s.repo.GetByID(ctx, reqID)
		if err != nil {
			if apperror.IsNotFound(err) {
				return apperror.NewNotFound("purchase request", reqID.String())
			}
			return err
		}
		if err := fn(ctx, req); err != nil {
			return err
		}
		if err := req.Validate(ctx); err != nil {
			return err
		}
		return s.repo.Update(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}
