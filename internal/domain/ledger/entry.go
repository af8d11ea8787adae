// Package ledger provides the append-only stock ledger: every stock
// movement is an immutable entry, and balances are derived by summation.
package ledger

import (
	"context"
	"time"

	"fieldstock/internal/core/apperror"
	"fieldstock/internal/core/id"
	"fieldstock/internal/core/types"
)

// EntryType defines the business reason for a stock movement.
type EntryType string

const (
	TypeOpening       EntryType = "opening"        // opening balance load
	TypePurchase      EntryType = "purchase"       // receipt against a purchase request
	TypeTransferIn    EntryType = "transfer_in"    // inbound half of a transfer pair
	TypeTransferOut   EntryType = "transfer_out"   // outbound half of a transfer pair
	TypeIssue         EntryType = "issue"          // issued to a service ticket
	TypeReturn        EntryType = "return"         // returned from a service ticket
	TypeAdjustmentIn  EntryType = "adjustment_in"  // manual count correction up
	TypeAdjustmentOut EntryType = "adjustment_out" // manual count correction down
	TypeDamage        EntryType = "damage"         // written off as damaged
	TypeSale          EntryType = "sale"           // sold directly
)

// inbound marks entry types that increase the balance.
var inbound = map[EntryType]bool{
	TypeOpening:      true,
	TypePurchase:     true,
	TypeTransferIn:   true,
	TypeReturn:       true,
	TypeAdjustmentIn: true,
}

var validTypes = map[EntryType]bool{
	TypeOpening: true, TypePurchase: true, TypeTransferIn: true,
	TypeTransferOut: true, TypeIssue: true, TypeReturn: true,
	TypeAdjustmentIn: true, TypeAdjustmentOut: true, TypeDamage: true,
	TypeSale: true,
}

// IsInbound returns true if the type increases the balance.
func (t EntryType) IsInbound() bool {
	return inbound[t]
}

// IsValid returns true for a known entry type.
func (t EntryType) IsValid() bool {
	return validTypes[t]
}

// ReferenceType identifies the document kind an entry points back to.
type ReferenceType string

const (
	RefTicket          ReferenceType = "ticket"
	RefPurchaseRequest ReferenceType = "purchase_request"
	RefPartRequest     ReferenceType = "part_request"
	RefManual          ReferenceType = "manual"
)

// Reference links an entry to the document that caused it.
type Reference struct {
	Type   ReferenceType `db:"reference_type" json:"type"`
	ID     id.ID         `db:"reference_id" json:"id"`
	Number string        `db:"reference_number" json:"number,omitempty"`
}

// Entry is one immutable row of the stock ledger.
//
// Entries are never updated or deleted. Corrections are made with
// compensating entries. Exactly one of QtyIn/QtyOut is positive, the
// other is zero.
type Entry struct {
	// ID is the primary key (UUIDv7, time-ordered)
	ID id.ID `db:"id" json:"id"`

	// OrganizationID is the owning tenant
	OrganizationID id.ID `db:"organization_id" json:"organizationId"`

	// Seq is assigned by the repository on append: monotonically
	// increasing in insertion order, giving entries a total order
	// within the organization.
	Seq int64 `db:"seq" json:"seq"`

	// Dimensions
	ItemID     id.ID `db:"item_id" json:"itemId"`
	LocationID id.ID `db:"location_id" json:"locationId"`

	// Type defines the movement reason and direction
	Type EntryType `db:"entry_type" json:"type"`

	// QtyIn increases the balance, QtyOut decreases it.
	QtyIn  types.Quantity `db:"qty_in" json:"qtyIn"`
	QtyOut types.Quantity `db:"qty_out" json:"qtyOut"`

	// Serials carried by this movement (one per unit for serialized items)
	Serials []string `db:"serials" json:"serials,omitempty"`

	// Reference points to the causing document
	Reference *Reference `db:"-" json:"reference,omitempty"`

	// Transfer correlation: both halves of a transfer pair share
	// TransferID and record the counterpart location.
	TransferID     *id.ID `db:"transfer_id" json:"transferId,omitempty"`
	FromLocationID *id.ID `db:"from_location_id" json:"fromLocationId,omitempty"`
	ToLocationID   *id.ID `db:"to_location_id" json:"toLocationId,omitempty"`

	// Valuation
	UnitCost  types.Money `db:"unit_cost" json:"unitCost"`
	TotalCost types.Money `db:"total_cost" json:"totalCost"`

	// RunningBalance is the balance for (item, location) immediately
	// after this entry. Advisory snapshot: the authoritative balance is
	// always the replay sum.
	RunningBalance types.Quantity `db:"running_balance" json:"runningBalance"`

	// Notes is a free-form comment
	Notes string `db:"notes" json:"notes,omitempty"`

	// Actor
	ActorID   string `db:"actor_id" json:"actorId,omitempty"`
	ActorName string `db:"actor_name" json:"actorName,omitempty"`

	// CreatedAt is when the entry was appended
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// Signed returns the balance delta of the entry (QtyIn - QtyOut).
func (e *Entry) Signed() types.Quantity {
	return e.QtyIn - e.QtyOut
}

// Quantity returns the positive magnitude of the movement.
func (e *Entry) Quantity() types.Quantity {
	if e.QtyIn > 0 {
		return e.QtyIn
	}
	return e.QtyOut
}

// ValidateStructure checks the structural invariants of an entry.
func (e *Entry) ValidateStructure(ctx context.Context) error {
	if !e.Type.IsValid() {
		return apperror.NewValidation("invalid entry type").
			WithDetail("field", "type").
			WithDetail("value", string(e.Type))
	}

	// Exactly one of qty_in/qty_out positive, the other zero.
	inPos := e.QtyIn.IsPositive()
	outPos := e.QtyOut.IsPositive()
	if inPos == outPos || e.QtyIn.IsNegative() || e.QtyOut.IsNegative() {
		return apperror.NewValidation("exactly one of qtyIn and qtyOut must be positive").
			WithDetail("code", "INVALID_QUANTITY_SPLIT").
			WithDetail("qtyIn", e.QtyIn).
			WithDetail("qtyOut", e.QtyOut)
	}

	// Direction must agree with the type.
	if e.Type.IsInbound() != inPos {
		return apperror.NewValidation("quantity direction does not match entry type").
			WithDetail("code", "INVALID_QUANTITY_SPLIT").
			WithDetail("type", string(e.Type))
	}

	// Transfer halves carry correlation.
	if e.Type == TypeTransferIn || e.Type == TypeTransferOut {
		if e.TransferID == nil || id.IsNil(*e.TransferID) {
			return apperror.NewValidation("transfer entries require a transfer id").
				WithDetail("field", "transferId")
		}
	}

	if id.IsNil(e.ItemID) {
		return apperror.NewValidation("item is required").WithDetail("field", "itemId")
	}
	if id.IsNil(e.LocationID) {
		return apperror.NewValidation("location is required").WithDetail("field", "locationId")
	}
	if id.IsNil(e.OrganizationID) {
		return apperror.NewValidation("organization is required").WithDetail("field", "organizationId")
	}

	return nil
}

// Draft is an append request. The engine turns it into an Entry:
// quantity is the positive magnitude, direction follows the type.
type Draft struct {
	ItemID     id.ID
	LocationID id.ID
	Type       EntryType
	Quantity   types.Quantity
	Serials    []string
	Reference  *Reference

	TransferID     *id.ID
	FromLocationID *id.ID
	ToLocationID   *id.ID

	UnitCost types.Money
	Notes    string

	// ReservedRelease is the share of the item's open reservations
	// that this movement itself fulfils (an issue against a linked
	// part request). It is excluded from the reserved holdback when
	// checking availability at the default location.
	ReservedRelease types.Quantity

	ActorID   string
	ActorName string
}
