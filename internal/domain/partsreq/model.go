// Package partsreq provides ticket part requests and issues: a
// technician asks for a part, the request is approved and fulfilled,
// and the actual movement out of stock is a ledger-backed PartIssue.
package partsreq

import (
	"context"
	"time"

	"fieldstock/internal/core/apperror"
	"fieldstock/internal/core/entity"
	"fieldstock/internal/core/id"
	"fieldstock/internal/core/types"
)

// Status is the closed set of part request states.
type Status string

const (
	StatusRequested Status = "requested"
	StatusApproved  Status = "approved"
	StatusOrdered   Status = "ordered" // out of stock, waiting on procurement
	StatusAvailable Status = "available"
	StatusIssued    Status = "issued"
	StatusReturned  Status = "returned"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
)

// transitions is the single source of truth for legal status moves.
// StatusIssued is entered only through the transfer coordinator, which
// is the sole path that touches the ledger.
var transitions = map[Status][]Status{
	StatusRequested: {StatusApproved, StatusRejected, StatusCancelled},
	StatusApproved:  {StatusOrdered, StatusAvailable, StatusRejected, StatusCancelled},
	StatusOrdered:   {StatusAvailable, StatusRejected, StatusCancelled},
	StatusAvailable: {StatusIssued, StatusRejected, StatusCancelled},
	StatusIssued:    {StatusReturned},
	StatusReturned:  {},
	StatusRejected:  {},
	StatusCancelled: {},
}

// CanTransition reports whether from→to is a legal move.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// IsValid reports whether the status is a known state.
func (s Status) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

// reservedStatuses hold stock earmarked but not yet issued.
var reservedStatuses = map[Status]bool{
	StatusApproved:  true,
	StatusOrdered:   true,
	StatusAvailable: true,
}

// IsReserving reports whether the status counts toward reserved stock.
func (s Status) IsReserving() bool {
	return reservedStatuses[s]
}

// StatusChange is one append-only status history record.
type StatusChange struct {
	From     Status    `db:"from_status" json:"from"`
	To       Status    `db:"to_status" json:"to"`
	Actor    string    `db:"actor" json:"actor"`
	Note     string    `db:"note" json:"note,omitempty"`
	At       time.Time `db:"changed_at" json:"at"`
	Override bool      `db:"override" json:"override,omitempty"`
}

// TicketPartRequest is a technician's request for a part on a ticket.
type TicketPartRequest struct {
	entity.Document

	TicketID id.ID `db:"ticket_id" json:"ticketId"`
	ItemID   id.ID `db:"item_id" json:"itemId"`

	Quantity types.Quantity `db:"quantity" json:"quantity"`

	Status Status `db:"status" json:"status"`

	Requester string `db:"requester" json:"requester"`
	Approver  string `db:"approver" json:"approver,omitempty"`

	// IssueID links the request to the issue that fulfilled it
	IssueID *id.ID `db:"issue_id" json:"issueId,omitempty"`

	StatusHistory []StatusChange `db:"-" json:"statusHistory"`
}

// NewTicketPartRequest creates a request in requested state.
func NewTicketPartRequest(orgID, ticketID, itemID id.ID, qty types.Quantity, requester string) *TicketPartRequest {
	return &TicketPartRequest{
		Document:  entity.NewDocument(orgID),
		TicketID:  ticketID,
		ItemID:    itemID,
		Quantity:  qty,
		Status:    StatusRequested,
		Requester: requester,
	}
}

// ChangeStatus moves the request to a new status, appending to the
// status history. With override the transition table is bypassed; the
// change is still recorded with the override flag set.
func (r *TicketPartRequest) ChangeStatus(to Status, actor, note string, override bool) error {
	if !to.IsValid() {
		return apperror.NewValidation("unknown status").
			WithDetail("value", string(to))
	}
	if !override && !CanTransition(r.Status, to) {
		return apperror.NewIllegalTransition("part request", string(r.Status), string(to))
	}

	r.StatusHistory = append(r.StatusHistory, StatusChange{
		From:     r.Status,
		To:       to,
		Actor:    actor,
		Note:     note,
		At:       time.Now().UTC(),
		Override: override,
	})
	r.Status = to
	r.Touch()
	return nil
}

// Validate implements entity.Validatable interface.
func (r *TicketPartRequest) Validate(ctx context.Context) error {
	if err := r.Document.Validate(ctx); err != nil {
		return err
	}

	if !r.Status.IsValid() {
		return apperror.NewValidation("invalid status").
			WithDetail("field", "status").
			WithDetail("value", string(r.Status))
	}
	if id.IsNil(r.TicketID) {
		return apperror.NewValidation("ticket is required").
			WithDetail("field", "ticketId")
	}
	if id.IsNil(r.ItemID) {
		return apperror.NewValidation("item is required").
			WithDetail("field", "itemId")
	}
	if !r.Quantity.IsPositive() {
		return apperror.NewValidation("quantity must be positive").
			WithDetail("field", "quantity")
	}
	if r.Requester == "" {
		return apperror.NewValidation("requester is required").
			WithDetail("field", "requester")
	}

	return nil
}

// PartIssue is the ledger-backed movement of a part out of stock onto
// a ticket. It references exactly one outbound entry and optionally one
// return entry.
type PartIssue struct {
	ID             id.ID `db:"id" json:"id"`
	OrganizationID id.ID `db:"organization_id" json:"organizationId"`

	TicketID   id.ID `db:"ticket_id" json:"ticketId"`
	ItemID     id.ID `db:"item_id" json:"itemId"`
	LocationID id.ID `db:"location_id" json:"locationId"`

	// RequestID links back to the part request, when one exists
	RequestID *id.ID `db:"request_id" json:"requestId,omitempty"`

	QtyIssued   types.Quantity `db:"qty_issued" json:"qtyIssued"`
	QtyReturned types.Quantity `db:"qty_returned" json:"qtyReturned"`

	Serials []string `db:"serials" json:"serials,omitempty"`

	// Ledger links
	OutboundEntryID id.ID  `db:"outbound_entry_id" json:"outboundEntryId"`
	ReturnEntryID   *id.ID `db:"return_entry_id" json:"returnEntryId,omitempty"`

	ActorID   string    `db:"actor_id" json:"actorId,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// QuantityUsed is the net consumption: issued − returned.
func (p *PartIssue) QuantityUsed() types.Quantity {
	return p.QtyIssued - p.QtyReturned
}

// Returnable is the quantity still out on the ticket.
func (p *PartIssue) Returnable() types.Quantity {
	return p.QtyIssued - p.QtyReturned
}
