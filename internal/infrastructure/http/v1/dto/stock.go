package dto

import (
	"fieldstock/internal/core/apperror"
	"fieldstock/internal/core/id"
	"fieldstock/internal/core/types"
	"fieldstock/internal/domain/ledger"
	"fieldstock/internal/domain/transfer"
)

// --- Stock operation requests ---

// TransferRequest moves stock between two locations.
type TransferRequest struct {
	ItemID         id.ID          `json:"itemId" binding:"required"`
	FromLocationID id.ID          `json:"fromLocationId" binding:"required"`
	ToLocationID   id.ID          `json:"toLocationId" binding:"required"`
	Quantity       types.Quantity `json:"quantity" binding:"required"`
	Serials        []string       `json:"serials"`
	Notes          string         `json:"notes"`
}

// ToInput maps the request to a coordinator input.
func (r TransferRequest) ToInput() transfer.TransferInput {
	return transfer.TransferInput{
		ItemID:         r.ItemID,
		FromLocationID: r.FromLocationID,
		ToLocationID:   r.ToLocationID,
		Quantity:       r.Quantity,
		Serials:        r.Serials,
		Notes:          r.Notes,
	}
}

// AdjustRequest corrects a balance after a physical count.
// Quantity is signed: positive adds stock, negative removes it.
type AdjustRequest struct {
	ItemID     id.ID          `json:"itemId" binding:"required"`
	LocationID id.ID          `json:"locationId" binding:"required"`
	Quantity   types.Quantity `json:"quantity" binding:"required"`
	Serials    []string       `json:"serials"`
	Reason     string         `json:"reason" binding:"required"`
}

// ToInput maps the request to a coordinator input.
func (r AdjustRequest) ToInput() transfer.AdjustInput {
	return transfer.AdjustInput{
		ItemID:     r.ItemID,
		LocationID: r.LocationID,
		Quantity:   r.Quantity,
		Serials:    r.Serials,
		Reason:     r.Reason,
	}
}

// IssueRequest issues stock to a service ticket, optionally fulfilling
// a part request.
type IssueRequest struct {
	TicketID   id.ID          `json:"ticketId" binding:"required"`
	ItemID     id.ID          `json:"itemId" binding:"required"`
	LocationID id.ID          `json:"locationId" binding:"required"`
	Quantity   types.Quantity `json:"quantity" binding:"required"`
	Serials    []string       `json:"serials"`
	RequestID  *id.ID         `json:"requestId"`
	Notes      string         `json:"notes"`
}

// ToInput maps the request to a coordinator input.
func (r IssueRequest) ToInput() transfer.IssueInput {
	return transfer.IssueInput{
		TicketID:   r.TicketID,
		ItemID:     r.ItemID,
		LocationID: r.LocationID,
		Quantity:   r.Quantity,
		Serials:    r.Serials,
		RequestID:  r.RequestID,
		Notes:      r.Notes,
	}
}

// ReturnRequest returns previously issued stock from a ticket.
type ReturnRequest struct {
	Quantity   types.Quantity `json:"quantity" binding:"required"`
	Serials    []string       `json:"serials"`
	LocationID *id.ID         `json:"locationId"`
	Notes      string         `json:"notes"`
}

// ToInput maps the request to a coordinator input for the given issue.
func (r ReturnRequest) ToInput(issueID id.ID) transfer.ReturnInput {
	return transfer.ReturnInput{
		IssueID:    issueID,
		Quantity:   r.Quantity,
		Serials:    r.Serials,
		LocationID: r.LocationID,
		Notes:      r.Notes,
	}
}

// ReceiveRequest receives stock against an ordered purchase request.
type ReceiveRequest struct {
	LocationID id.ID                `json:"locationId" binding:"required"`
	Lines      []ReceiveLineRequest `json:"lines" binding:"required,min=1"`
}

// ReceiveLineRequest is one received line.
type ReceiveLineRequest struct {
	LineID          *id.ID         `json:"lineId"`
	ItemID          id.ID          `json:"itemId" binding:"required"`
	Quantity        types.Quantity `json:"quantity" binding:"required"`
	Serials         []string       `json:"serials"`
	ActualUnitPrice *types.Money   `json:"actualUnitPrice"`
}

// ToInput maps the request to a coordinator input for the given
// purchase request.
func (r ReceiveRequest) ToInput(requestID id.ID) transfer.ReceiveInput {
	input := transfer.ReceiveInput{
		RequestID:  requestID,
		LocationID: r.LocationID,
		Lines:      make([]transfer.ReceiveLine, len(r.Lines)),
	}
	for i, l := range r.Lines {
		input.Lines[i] = transfer.ReceiveLine{
			LineID:          l.LineID,
			ItemID:          l.ItemID,
			Quantity:        l.Quantity,
			Serials:         l.Serials,
			ActualUnitPrice: l.ActualUnitPrice,
		}
	}
	return input
}

// --- Stock operation responses ---

// ReceiveLineResult reports the outcome of one received line.
// A line either carries its committed entry or the error that
// rejected it.
type ReceiveLineResult struct {
	ItemID string         `json:"itemId"`
	LineID string         `json:"lineId,omitempty"`
	Entry  *ledger.Entry  `json:"entry,omitempty"`
	Error  *ErrorResponse `json:"error,omitempty"`
}

// ReceiveResponse aggregates per-line receipt outcomes.
type ReceiveResponse struct {
	RequestID string              `json:"requestId"`
	Results   []ReceiveLineResult `json:"results"`
	Succeeded int                 `json:"succeeded"`
	Failed    int                 `json:"failed"`
}

// FromReceiveResult converts the coordinator result, flattening line
// errors into structured bodies.
func FromReceiveResult(res *transfer.ReceiveResult) ReceiveResponse {
	out := ReceiveResponse{
		RequestID: res.RequestID.String(),
		Results:   make([]ReceiveLineResult, len(res.Results)),
		Succeeded: res.Succeeded,
		Failed:    res.Failed,
	}
	for i, lr := range res.Results {
		r := ReceiveLineResult{
			ItemID: lr.ItemID.String(),
			Entry:  lr.Entry,
		}
		if !id.IsNil(lr.LineID) {
			r.LineID = lr.LineID.String()
		}
		if lr.Err != nil {
			if appErr, ok := apperror.AsAppError(lr.Err); ok {
				r.Error = &ErrorResponse{
					Code:    appErr.Code,
					Message: appErr.Message,
					Details: appErr.Details,
				}
			} else {
				r.Error = &ErrorResponse{
					Code:    apperror.CodeInternal,
					Message: lr.Err.Error(),
				}
			}
		}
		out.Results[i] = r
	}
	return out
}

// BalanceResponse is the availability of an item at one location.
type BalanceResponse struct {
	ItemID     string         `json:"itemId"`
	LocationID string         `json:"locationId"`
	Current    types.Quantity `json:"current"`
	Reserved   types.Quantity `json:"reserved"`
	Available  types.Quantity `json:"available"`
}

// FromAvailability converts an aggregator availability.
func FromAvailability(itemID, locationID id.ID, a ledger.Availability) BalanceResponse {
	return BalanceResponse{
		ItemID:     itemID.String(),
		LocationID: locationID.String(),
		Current:    a.Current,
		Reserved:   a.Reserved,
		Available:  a.Available,
	}
}

// ItemBalancesResponse lists per-location balances for an item.
type ItemBalancesResponse struct {
	ItemID    string                   `json:"itemId"`
	Locations []ledger.LocationBalance `json:"locations"`
}

// HistoryResponse pages ledger history.
type HistoryResponse struct {
	Items  []*ledger.Entry `json:"items"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

// TransferPairResponse returns both halves of a transfer.
type TransferPairResponse struct {
	TransferID string          `json:"transferId"`
	Entries    []*ledger.Entry `json:"entries"`
}

// RecomputeResponse reports a freshly replayed balance.
type RecomputeResponse struct {
	ItemID     string         `json:"itemId"`
	LocationID string         `json:"locationId"`
	Balance    types.Quantity `json:"balance"`
}
