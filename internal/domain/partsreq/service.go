package partsreq

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

// Service provides business logic for ticket part requests.
//
// It also implements ledger.ReservationSource: open requests count as
// reserved stock until issued.
type Service struct {
	repo      Repository
	txManager tx.Manager
	numerator *numerator.Service
	audit     domain.AuditRecorder
}

// NewService creates a part request service.
func NewService(repo Repository, txManager tx.Manager, num *numerator.Service) *Service {
	return &Service{
		repo:      repo,
		txManager: txManager,
		numerator: num,
	}
}

// WithAudit attaches an audit recorder; admin overrides are then
// written to the audit trail inside the same transaction.
func (s *Service) WithAudit(recorder domain.AuditRecorder) *Service {
	s.audit = recorder
	return s
}

// CreateInput describes a new part request.
type CreateInput struct {
	TicketID id.ID
	ItemID   id.ID
	Quantity types.Quantity
	Comment  string
}

// Create creates a part request in requested state.
func (s *Service) Create(ctx context.Context, input CreateInput) (*TicketPartRequest, error) {
	orgID, err := tenant.OrgID(ctx)
	if err != nil {
		return nil, apperror.NewUnauthorized("organization scope missing")
	}

	req := NewTicketPartRequest(orgID, input.TicketID, input.ItemID, input.Quantity, appctx.GetUserName(ctx))
	req.Comment = input.Comment
	req.CreatedBy = appctx.GetUserID(ctx)

	number, err := s.numerator.Next(ctx, orgID, numerator.DefaultConfig("TPR"), nil, time.Now())
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
		return nil, fmt.Errorf("create part request: %w", err)
	}

	logger.Info(ctx, "created part request",
		"request_id", req.ID, "number", req.Number,
		"ticket_id", req.TicketID, "item_id", req.ItemID, "qty", req.Quantity)

	return req, nil
}

// Approve moves requested→approved.
func (s *Service) Approve(ctx context.Context, reqID id.ID, note string) (*TicketPartRequest, error) {
	return s.mutate(ctx, reqID, func(ctx context.Context, req *TicketPartRequest) error {
		req.Approver = appctx.GetUserName(ctx)
		return req.ChangeStatus(StatusApproved, req.Approver, note, false)
	})
}

// Reject rejects the request at any point before issue.
func (s *Service) Reject(ctx context.Context, reqID id.ID, note string) (*TicketPartRequest, error) {
	return s.mutate(ctx, reqID, func(ctx context.Context, req *TicketPartRequest) error {
		req.Approver = appctx.GetUserName(ctx)
		return req.ChangeStatus(StatusRejected, req.Approver, note, false)
	})
}

// Cancel cancels the request at any point before issue.
func (s *Service) Cancel(ctx context.Context, reqID id.ID, note string) (*TicketPartRequest, error) {
	return s.mutate(ctx, reqID, func(ctx context.Context, req *TicketPartRequest) error {
		return req.ChangeStatus(StatusCancelled, appctx.GetUserName(ctx), note, false)
	})
}

// MarkOrdered moves approved→ordered when stock has to be procured.
func (s *Service) MarkOrdered(ctx context.Context, reqID id.ID, note string) (*TicketPartRequest, error) {
	return s.mutate(ctx, reqID, func(ctx context.Context, req *TicketPartRequest) error {
		return req.ChangeStatus(StatusOrdered, appctx.GetUserName(ctx), note, false)
	})
}

// MarkAvailable moves approved/ordered→available.
func (s *Service) MarkAvailable(ctx context.Context, reqID id.ID, note string) (*TicketPartRequest, error) {
	return s.mutate(ctx, reqID, func(ctx context.Context, req *TicketPartRequest) error {
		return req.ChangeStatus(StatusAvailable, appctx.GetUserName(ctx), note, false)
	})
}

// Transition moves the request to an arbitrary status. Non-admins are
// bound by the transition table; admins may override, and the override
// is recorded in status history. StatusIssued is refused here entirely:
// it is entered only via the transfer coordinator.
func (s *Service) Transition(ctx context.Context, reqID id.ID, to Status, note string) (*TicketPartRequest, error) {
	if to == StatusIssued {
		return nil, apperror.NewConflict("issued is entered only by issuing stock").
			WithDetail("status", string(to))
	}
	return s.mutate(ctx, reqID, func(ctx context.Context, req *TicketPartRequest) error {
		actor := appctx.GetUserName(ctx)
		if CanTransition(req.Status, to) {
			return req.ChangeStatus(to, actor, note, false)
		}
		if !appctx.IsAdmin(ctx) {
			return apperror.NewIllegalTransition("part request", string(req.Status), string(to))
		}
		logger.Warn(ctx, "admin override on part request transition",
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

// recordAudit writes to the audit trail when a recorder is attached.
func (s *Service) recordAudit(ctx context.Context, reqID id.ID, action string, changes map[string]any) error {
	if s.audit == nil {
		return nil
	}
	return s.audit.Record(ctx, "part_request", reqID, action, changes)
}

// MarkIssued links the request to an issue and flips it to issued.
// Called by the transfer coordinator inside its transaction; not
// reachable from the HTTP surface.
func (s *Service) MarkIssued(ctx context.Context, reqID, issueID id.ID) (*TicketPartRequest, error) {
	return s.mutate(ctx, reqID, func(ctx context.Context, req *TicketPartRequest) error {
		req.IssueID = &issueID
		return req.ChangeStatus(StatusIssued, appctx.GetUserName(ctx), "", false)
	})
}

// MarkReturned flips issued→returned after a full return.
func (s *Service) MarkReturned(ctx context.Context, reqID id.ID) (*TicketPartRequest, error) {
	return s.mutate(ctx, reqID, func(ctx context.Context, req *TicketPartRequest) error {
		return req.ChangeStatus(StatusReturned, appctx.GetUserName(ctx), "", false)
	})
}

// GetByID retrieves a request.
func (s *Service) GetByID(ctx context.Context, reqID id.ID) (*TicketPartRequest, error) {
	req, err := s.repo.GetByID(ctx, reqID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.NewNotFound("part request", reqID.String())
		}
		return nil, err
	}
	return req, nil
}

// List retrieves requests matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) (domain.ListResult[*TicketPartRequest], error) {
	return s.repo.List(ctx, filter)
}

// CreateIssue persists a new issue. Called by the transfer coordinator
// inside its transaction.
func (s *Service) CreateIssue(ctx context.Context, issue *PartIssue) error {
	return s.repo.CreateIssue(ctx, issue)
}

// UpdateIssue persists return progress on an issue. Called by the
// transfer coordinator inside its transaction.
func (s *Service) UpdateIssue(ctx context.Context, issue *PartIssue) error {
	return s.repo.UpdateIssue(ctx, issue)
}

// GetIssue retrieves an issue.
func (s *Service) GetIssue(ctx context.Context, issueID id.ID) (*PartIssue, error) {
	issue, err := s.repo.GetIssueByID(ctx, issueID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.NewNotFound("part issue", issueID.String())
		}
		return nil, err
	}
	return issue, nil
}

// ListIssuesByTicket retrieves all issues for a ticket.
func (s *Service) ListIssuesByTicket(ctx context.Context, ticketID id.ID) ([]*PartIssue, error) {
	return s.repo.ListIssuesByTicket(ctx, ticketID)
}

// Reserved implements ledger.ReservationSource: the sum of open
// (approved but unissued) request quantities for the item.
func (s *Service) Reserved(ctx context.Context, itemID id.ID) (types.Quantity, error) {
	return s.repo.SumReserved(ctx, itemID)
}

// mutate loads, mutates and saves a request in one transaction.
func (s *Service) mutate(ctx context.Context, reqID id.ID, fn func(context.Context, *TicketPartRequest) error) (*TicketPartRequest, error) {
	var req *TicketPartRequest
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		req, err = s.repo.GetByID(ctx, reqID)
		if err != nil {
			if apperror.IsNotFound(err) {
				return apperror.NewNotFound("part request", reqID.String())
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
