package partsreq

import (
	"context"

	"fieldstock/internal/core/id"
	"fieldstock/internal/core/types"
	"fieldstock/internal/domain"
)

// Repository defines persistence for part requests and issues.
// Implementations scope every query by the organization in context.
type Repository interface {
	// Requests

	Create(ctx context.Context, req *TicketPartRequest) error
	GetByID(ctx context.Context, reqID id.ID) (*TicketPartRequest, error)
	Update(ctx context.Context, req *TicketPartRequest) error
	List(ctx context.Context, filter ListFilter) (domain.ListResult[*TicketPartRequest], error)

	// SumReserved returns the total quantity of open requests
	// (approved/ordered/available) for an item. Feeds the ledger
	// aggregator's reserved figure.
	SumReserved(ctx context.Context, itemID id.ID) (types.Quantity, error)

	// Issues

	CreateIssue(ctx context.Context, issue *PartIssue) error
	GetIssueByID(ctx context.Context, issueID id.ID) (*PartIssue, error)
	UpdateIssue(ctx context.Context, issue *PartIssue) error
	ListIssuesByTicket(ctx context.Context, ticketID id.ID) ([]*PartIssue, error)
}

// ListFilter narrows part request listings.
type ListFilter struct {
	domain.ListFilter

	Statuses []Status
	TicketID *id.ID
	ItemID   *id.ID
}
