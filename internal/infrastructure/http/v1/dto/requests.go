package dto

import (
	"fieldstock/internal/core/id"
	"fieldstock/internal/core/types"
	"fieldstock/internal/domain/partsreq"
	"fieldstock/internal/domain/procurement"
)

// --- Purchase requests ---

// CreatePurchaseRequest creates a draft purchase request.
type CreatePurchaseRequest struct {
	VendorName *string               `json:"vendorName"`
	Comment    string                `json:"comment"`
	Lines      []PurchaseLineRequest `json:"lines"`
}

// PurchaseLineRequest is one requested line.
type PurchaseLineRequest struct {
	ItemID       id.ID          `json:"itemId" binding:"required"`
	Quantity     types.Quantity `json:"quantity" binding:"required"`
	EstUnitPrice types.Money    `json:"estUnitPrice"`
	Note         string         `json:"note"`
}

// ToInput maps the request to a service input.
func (r CreatePurchaseRequest) ToInput() procurement.CreateInput {
	input := procurement.CreateInput{
		VendorName: r.VendorName,
		Comment:    r.Comment,
		Lines:      make([]procurement.LineInput, len(r.Lines)),
	}
	for i, l := range r.Lines {
		input.Lines[i] = l.toInput()
	}
	return input
}

func (l PurchaseLineRequest) toInput() procurement.LineInput {
	return procurement.LineInput{
		ItemID:       l.ItemID,
		Quantity:     l.Quantity,
		EstUnitPrice: l.EstUnitPrice,
		Note:         l.Note,
	}
}

// AddLineRequest appends a line to a draft purchase request.
type AddLineRequest struct {
	PurchaseLineRequest
}

// ToInput maps the request to a service input.
func (r AddLineRequest) ToInput() procurement.LineInput {
	return r.toInput()
}

// ApproveRequest approves a pending purchase request. Lines maps line
// IDs to approved quantities; omitted lines are approved as requested.
type ApproveRequest struct {
	Note  string                   `json:"note"`
	Lines map[id.ID]types.Quantity `json:"lines"`
}

// ToInput maps the request to a service input.
func (r ApproveRequest) ToInput() procurement.ApprovalInput {
	return procurement.ApprovalInput{
		Note:  r.Note,
		Lines: r.Lines,
	}
}

// NoteRequest carries an optional note for reject/cancel and similar
// transitions.
type NoteRequest struct {
	Note string `json:"note"`
}

// MarkOrderedRequest records the purchase order number.
type MarkOrderedRequest struct {
	PONumber string `json:"poNumber" binding:"required"`
}

// TransitionRequest is an explicit status transition. Moves outside the
// transition table require the admin flag and are recorded as
// overrides.
type TransitionRequest struct {
	To   string `json:"to" binding:"required"`
	Note string `json:"note"`
}

// --- Part requests ---

// CreatePartRequest creates a part request for a service ticket.
type CreatePartRequest struct {
	TicketID id.ID          `json:"ticketId" binding:"required"`
	ItemID   id.ID          `json:"itemId" binding:"required"`
	Quantity types.Quantity `json:"quantity" binding:"required"`
	Comment  string         `json:"comment"`
}

// ToInput maps the request to a service input.
func (r CreatePartRequest) ToInput() partsreq.CreateInput {
	return partsreq.CreateInput{
		TicketID: r.TicketID,
		ItemID:   r.ItemID,
		Quantity: r.Quantity,
		Comment:  r.Comment,
	}
}
