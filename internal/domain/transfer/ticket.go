package transfer

import (
	"context"
	"time"

	"fieldstock/internal/core/apperror"
	"fieldstock/internal/core/id"
	"fieldstock/internal/core/tenant"
	"fieldstock/internal/core/types"
	"fieldstock/internal/domain/ledger"
	"fieldstock/internal/domain/partsreq"
	"fieldstock/pkg/logger"
)

// IssueInput describes issuing stock to a service ticket.
type IssueInput struct {
	TicketID   id.ID
	ItemID     id.ID
	LocationID id.ID
	Quantity   types.Quantity
	Serials    []string

	// RequestID links the issue to a part request, which is flipped
	// to issued in the same transaction.
	RequestID *id.ID

	Notes string
}

// IssueToTicket issues stock to a ticket: one outbound ledger entry
// plus a PartIssue record, atomically. When a part request is linked it
// must be in available state and is flipped to issued.
func (c *Coordinator) IssueToTicket(ctx context.Context, input IssueInput) (*partsreq.PartIssue, error) {
	orgID, err := tenant.OrgID(ctx)
	if err != nil {
		return nil, apperror.NewUnauthorized("organization scope missing")
	}
	if id.IsNil(input.TicketID) {
		return nil, apperror.NewValidation("ticket is required").
			WithDetail("field", "ticketId")
	}
	if !input.Quantity.IsPositive() {
		return nil, apperror.NewValidation("quantity must be positive").
			WithDetail("field", "quantity")
	}

	unitCost, err := c.defaultUnitCost(ctx, input.ItemID)
	if err != nil {
		return nil, err
	}

	actorID, actorName := actor(ctx)

	var issue *partsreq.PartIssue
	err = c.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		// Validate the linked request before touching the ledger. An
		// issue fulfilling a request releases that request's own
		// reservation, so it is excluded from the availability check.
		var release types.Quantity
		if input.RequestID != nil {
			req, err := c.parts.GetByID(ctx, *input.RequestID)
			if err != nil {
				return err
			}
			if req.Status != partsreq.StatusAvailable {
				return apperror.NewIllegalTransition("part request", string(req.Status), string(partsreq.StatusIssued))
			}
			if req.ItemID != input.ItemID {
				return apperror.NewValidation("request is for a different item").
					WithDetail("requestId", *input.RequestID).
					WithDetail("requestItemId", req.ItemID).
					WithDetail("itemId", input.ItemID)
			}
			release = req.Quantity
		}

		entry, err := c.engine.Append(ctx, ledger.Draft{
			ItemID:          input.ItemID,
			LocationID:      input.LocationID,
			Type:            ledger.TypeIssue,
			Quantity:        input.Quantity,
			Serials:         input.Serials,
			Reference:       &ledger.Reference{Type: ledger.RefTicket, ID: input.TicketID},
			UnitCost:        unitCost,
			Notes:           input.Notes,
			ReservedRelease: release,
			ActorID:         actorID,
			ActorName:       actorName,
		})
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		issue = &partsreq.PartIssue{
			ID:              id.New(),
			OrganizationID:  orgID,
			TicketID:        input.TicketID,
			ItemID:          input.ItemID,
			LocationID:      input.LocationID,
			RequestID:       input.RequestID,
			QtyIssued:       input.Quantity,
			Serials:         input.Serials,
			OutboundEntryID: entry.ID,
			ActorID:         actorID,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := c.parts.CreateIssue(ctx, issue); err != nil {
			return err
		}

		if input.RequestID != nil {
			if _, err := c.parts.MarkIssued(ctx, *input.RequestID, issue.ID); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "issued stock to ticket",
		"issue_id", issue.ID,
		"ticket_id", input.TicketID,
		"item_id", input.ItemID,
		"location_id", input.LocationID,
		"qty", input.Quantity,
	)

	return issue, nil
}

// ReturnInput describes returning previously issued stock.
type ReturnInput struct {
	IssueID  id.ID
	Quantity types.Quantity
	Serials  []string

	// LocationID overrides the return destination; defaults to the
	// location the stock was issued from.
	LocationID *id.ID

	Notes string
}

// ReturnFromTicket returns stock from a ticket: one inbound entry,
// bounded by the quantity still out on the issue.
func (c *Coordinator) ReturnFromTicket(ctx context.Context, input ReturnInput) (*ledger.Entry, error) {
	if !input.Quantity.IsPositive() {
		return nil, apperror.NewValidation("quantity must be positive").
			WithDetail("field", "quantity")
	}

	actorID, actorName := actor(ctx)

	var entry *ledger.Entry
	err := c.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		issue, err := c.parts.GetIssue(ctx, input.IssueID)
		if err != nil {
			return err
		}

		if input.Quantity > issue.Returnable() {
			return apperror.NewConflict("return exceeds issued quantity").
				WithDetail("issueId", input.IssueID).
				WithDetail("returnable", issue.Returnable()).
				WithDetail("requested", input.Quantity)
		}

		locationID := issue.LocationID
		if input.LocationID != nil {
			locationID = *input.LocationID
		}

		unitCost, err := c.defaultUnitCost(ctx, issue.ItemID)
		if err != nil {
			return err
		}

		entry, err = c.engine.Append(ctx, ledger.Draft{
			ItemID:     issue.ItemID,
			LocationID: locationID,
			Type:       ledger.TypeReturn,
			Quantity:   input.Quantity,
			Serials:    input.Serials,
			Reference:  &ledger.Reference{Type: ledger.RefTicket, ID: issue.TicketID},
			UnitCost:   unitCost,
			Notes:      input.Notes,
			ActorID:    actorID,
			ActorName:  actorName,
		})
		if err != nil {
			return err
		}

		issue.QtyReturned += input.Quantity
		issue.ReturnEntryID = &entry.ID
		issue.UpdatedAt = time.Now().UTC()
		if err := c.parts.UpdateIssue(ctx, issue); err != nil {
			return err
		}

		// A fully returned issue closes its request.
		if issue.RequestID != nil && issue.Returnable().IsZero() {
			if _, err := c.parts.MarkReturned(ctx, *issue.RequestID); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "returned stock from ticket",
		"issue_id", input.IssueID,
		"entry_id", entry.ID,
		"qty", input.Quantity,
	)

	return entry, nil
}
