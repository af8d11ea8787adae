// Package procurement provides the PurchaseRequest workflow document:
// procurement from draft through approval, ordering and receipt.
package procurement

import (
	"context"
	"time"

	"fieldstock/internal/core/apperror"
	"fieldstock/internal/core/entity"
	"fieldstock/internal/core/id"
	"fieldstock/internal/core/types"
)

// Status is the closed set of purchase request states.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusOrdered   Status = "ordered"
	StatusPartial   Status = "partial"
	StatusReceived  Status = "received"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
)

// transitions is the single source of truth for legal status moves.
// Admin override bypasses it but is always recorded in status history.
var transitions = map[Status][]Status{
	StatusDraft:     {StatusPending, StatusCancelled},
	StatusPending:   {StatusApproved, StatusRejected, StatusCancelled},
	StatusApproved:  {StatusOrdered, StatusCancelled},
	StatusOrdered:   {StatusPartial, StatusReceived},
	StatusPartial:   {StatusReceived},
	StatusReceived:  {},
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

// StatusChange is one append-only status history record.
type StatusChange struct {
	From     Status    `db:"from_status" json:"from"`
	To       Status    `db:"to_status" json:"to"`
	Actor    string    `db:"actor" json:"actor"`
	Note     string    `db:"note" json:"note,omitempty"`
	At       time.Time `db:"changed_at" json:"at"`
	Override bool      `db:"override" json:"override,omitempty"`
}

// Line is one purchase request line.
type Line struct {
	ID     id.ID `db:"id" json:"id"`
	ItemID id.ID `db:"item_id" json:"itemId"`

	QtyRequested types.Quantity `db:"qty_requested" json:"qtyRequested"`
	QtyApproved  types.Quantity `db:"qty_approved" json:"qtyApproved"`
	QtyOrdered   types.Quantity `db:"qty_ordered" json:"qtyOrdered"`
	QtyReceived  types.Quantity `db:"qty_received" json:"qtyReceived"`

	EstUnitPrice    types.Money `db:"est_unit_price" json:"estUnitPrice"`
	ActualUnitPrice types.Money `db:"actual_unit_price" json:"actualUnitPrice"`

	Note string `db:"note" json:"note,omitempty"`
}

// Outstanding returns the quantity still expected on this line.
func (l *Line) Outstanding() types.Quantity {
	remaining := l.QtyOrdered - l.QtyReceived
	if remaining.IsNegative() {
		return 0
	}
	return remaining
}

// Complete reports whether the line is fully received.
func (l *Line) Complete() bool {
	return l.QtyOrdered.IsPositive() && l.QtyReceived >= l.QtyOrdered
}

// PurchaseRequest is the procurement workflow document.
type PurchaseRequest struct {
	entity.Document

	Status Status `db:"status" json:"status"`

	// VendorName is a free-form vendor reference
	VendorName *string `db:"vendor_name" json:"vendorName,omitempty"`

	// Requester created the request, Approver approved or rejected it
	Requester string `db:"requester" json:"requester"`
	Approver  string `db:"approver" json:"approver,omitempty"`

	// PONumber is recorded on approved→ordered
	PONumber *string `db:"po_number" json:"poNumber,omitempty"`

	Lines []Line `db:"-" json:"lines"`

	// StatusHistory is the append-only transition audit trail
	StatusHistory []StatusChange `db:"-" json:"statusHistory"`
}

// NewPurchaseRequest creates a draft request.
func NewPurchaseRequest(orgID id.ID, requester string) *PurchaseRequest {
	return &PurchaseRequest{
		Document:  entity.NewDocument(orgID),
		Status:    StatusDraft,
		Requester: requester,
	}
}

// AddLine appends a line to the request. Only valid in draft.
func (r *PurchaseRequest) AddLine(itemID id.ID, qty types.Quantity, estPrice types.Money, note string) (*Line, error) {
	if r.Status != StatusDraft {
		return nil, apperror.NewConflict("lines can only be added in draft").
			WithDetail("status", string(r.Status))
	}
	if !qty.IsPositive() {
		return nil, apperror.NewValidation("line quantity must be positive").
			WithDetail("field", "quantity")
	}

	r.Lines = append(r.Lines, Line{
		ID:           id.New(),
		ItemID:       itemID,
		QtyRequested: qty,
		EstUnitPrice: estPrice,
		Note:         note,
	})
	return &r.Lines[len(r.Lines)-1], nil
}

// FindLine returns the line with the given ID.
func (r *PurchaseRequest) FindLine(lineID id.ID) (*Line, error) {
	for i := range r.Lines {
		if r.Lines[i].ID == lineID {
			return &r.Lines[i], nil
		}
	}
	return nil, apperror.NewNotFound("purchase request line", lineID.String())
}

// ChangeStatus moves the request to a new status, appending to the
// status history. With override the transition table is bypassed; the
// change is still recorded with the override flag set.
func (r *PurchaseRequest) ChangeStatus(to Status, actor, note string, override bool) error {
	if !to.IsValid() {
		return apperror.NewValidation("unknown status").
			WithDetail("value", string(to))
	}
	if !override && !CanTransition(r.Status, to) {
		return apperror.NewIllegalTransition("purchase request", string(r.Status), string(to))
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

// RecomputeReceiptStatus derives partial/received from line progress.
// Called after each receipt; received only when every line's received
// reaches ordered.
func (r *PurchaseRequest) RecomputeReceiptStatus(actor string) error {
	if r.Status != StatusOrdered && r.Status != StatusPartial {
		return apperror.NewIllegalTransition("purchase request", string(r.Status), string(StatusPartial))
	}

	allComplete := true
	anyReceived := false
	for i := range r.Lines {
		if r.Lines[i].QtyReceived.IsPositive() {
			anyReceived = true
		}
		if !r.Lines[i].Complete() {
			allComplete = false
		}
	}

	switch {
	case allComplete:
		return r.ChangeStatus(StatusReceived, actor, "all lines received", false)
	case anyReceived && r.Status == StatusOrdered:
		return r.ChangeStatus(StatusPartial, actor, "first receipt", false)
	default:
		// Still partial (or nothing received yet): no status change.
		return nil
	}
}

// Validate implements entity.Validatable interface.
func (r *PurchaseRequest) Validate(ctx context.Context) error {
	if err := r.Document.Validate(ctx); err != nil {
		return err
	}

	if !r.Status.IsValid() {
		return apperror.NewValidation("invalid status").
			WithDetail("field", "status").
			WithDetail("value", string(r.Status))
	}

	if r.Requester == "" {
		return apperror.NewValidation("requester is required").
			WithDetail("field", "requester")
	}

	for i := range r.Lines {
		l := &r.Lines[i]
		if id.IsNil(l.ItemID) {
			return apperror.NewValidation("line item is required").
				WithDetail("line", i)
		}
		if !l.QtyRequested.IsPositive() {
			return apperror.NewValidation("line quantity must be positive").
				WithDetail("line", i)
		}
		if l.QtyApproved.IsNegative() || l.QtyOrdered.IsNegative() || l.QtyReceived.IsNegative() {
			return apperror.NewValidation("line quantities cannot be negative").
				WithDetail("line", i)
		}
	}

	return nil
}
