package procurement

import (
	"context"

	"fieldstock/internal/core/id"
	"fieldstock/internal/domain"
)

// Repository defines persistence for purchase requests.
// Implementations scope every query by the organization in context and
// store Lines and StatusHistory together with the document.
type Repository interface {
	// Create inserts a new request with its lines.
	Create(ctx context.Context, req *PurchaseRequest) error

	// GetByID retrieves a request with lines and status history.
	GetByID(ctx context.Context, reqID id.ID) (*PurchaseRequest, error)

	// GetByNumber retrieves a request by document number.
	GetByNumber(ctx context.Context, number string) (*PurchaseRequest, error)

	// Update persists the document, lines and any new status history
	// rows (with optimistic locking on Version).
	Update(ctx context.Context, req *PurchaseRequest) error

	// List retrieves requests matching the filter.
	List(ctx context.Context, filter ListFilter) (domain.ListResult[*PurchaseRequest], error)
}

// ListFilter narrows purchase request listings.
type ListFilter struct {
	domain.ListFilter

	Statuses  []Status
	Requester string
	ItemID    *id.ID
}
