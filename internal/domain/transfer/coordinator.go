// Package transfer provides the coordinator for multi-step stock
// movements: location-to-location transfers, issue to ticket, return
// from ticket and purchase receipt. Every movement goes through the
// ledger engine; the coordinator owns the pairing, atomicity and
// document side effects.
package transfer

import (
	"context"
	"fmt"

	"fieldstock/internal/core/apperror"
	appctx "fieldstock/internal/core/context"
	"fieldstock/internal/core/id"
	"fieldstock/internal/core/tx"
	"fieldstock/internal/core/types"
	"fieldstock/internal/domain/catalog/item"
	"fieldstock/internal/domain/catalog/location"
	"fieldstock/internal/domain/ledger"
	"fieldstock/internal/domain/partsreq"
	"fieldstock/internal/domain/procurement"
	"fieldstock/pkg/logger"
)

// Coordinator orchestrates multi-entry stock movements.
type Coordinator struct {
	engine     *ledger.Engine
	aggregator *ledger.Aggregator
	items      item.Repository
	locations  location.Repository
	purchases  *procurement.Service
	parts      *partsreq.Service
	txManager  tx.Manager
}

// NewCoordinator creates a transfer coordinator.
func NewCoordinator(
	engine *ledger.Engine,
	aggregator *ledger.Aggregator,
	items item.Repository,
	locations location.Repository,
	purchases *procurement.Service,
	parts *partsreq.Service,
	txManager tx.Manager,
) *Coordinator {
	return &Coordinator{
		engine:     engine,
		aggregator: aggregator,
		items:      items,
		locations:  locations,
		purchases:  purchases,
		parts:      parts,
		txManager:  txManager,
	}
}

// TransferInput describes a location-to-location movement.
type TransferInput struct {
	ItemID         id.ID
	FromLocationID id.ID
	ToLocationID   id.ID
	Quantity       types.Quantity
	Serials        []string
	Notes          string
}

// TransferResult holds both halves of the committed pair.
type TransferResult struct {
	TransferID id.ID         `json:"transferId"`
	OutEntry   *ledger.Entry `json:"outEntry"`
	InEntry    *ledger.Entry `json:"inEntry"`
}

// Transfer moves stock between two locations as an atomic pair of
// entries sharing a correlation id: either both commit or neither
// persists.
func (c *Coordinator) Transfer(ctx context.Context, input TransferInput) (*TransferResult, error) {
	if !input.Quantity.IsPositive() {
		return nil, apperror.NewValidation("quantity must be positive").
			WithDetail("field", "quantity")
	}
	if input.FromLocationID == input.ToLocationID {
		return nil, apperror.NewValidation("source and destination must differ").
			WithDetail("fromLocationId", input.FromLocationID).
			WithDetail("toLocationId", input.ToLocationID)
	}

	from, err := c.locations.GetByID(ctx, input.FromLocationID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.NewNotFound("location", input.FromLocationID.String())
		}
		return nil, err
	}

	// Availability pre-check: reserved stock does not leave the
	// source. The engine re-checks under the key guard.
	if !from.AllowsNegative {
		avail, err := c.aggregator.Balance(ctx, input.ItemID, input.FromLocationID)
		if err != nil {
			return nil, err
		}
		if avail.Available < input.Quantity {
			return nil, apperror.NewInsufficientStock(
				input.ItemID.String(),
				input.FromLocationID.String(),
				input.Quantity.Float64(),
				avail.Available.Float64(),
			)
		}
	}

	unitCost, err := c.defaultUnitCost(ctx, input.ItemID)
	if err != nil {
		return nil, err
	}

	transferID := id.New()
	actorID, actorName := actor(ctx)

	result := &TransferResult{TransferID: transferID}
	err = c.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		out, err := c.engine.Append(ctx, ledger.Draft{
			ItemID:         input.ItemID,
			LocationID:     input.FromLocationID,
			Type:           ledger.TypeTransferOut,
			Quantity:       input.Quantity,
			Serials:        input.Serials,
			TransferID:     &transferID,
			FromLocationID: &input.FromLocationID,
			ToLocationID:   &input.ToLocationID,
			UnitCost:       unitCost,
			Notes:          input.Notes,
			ActorID:        actorID,
			ActorName:      actorName,
		})
		if err != nil {
			return err
		}

		in, err := c.engine.Append(ctx, ledger.Draft{
			ItemID:         input.ItemID,
			LocationID:     input.ToLocationID,
			Type:           ledger.TypeTransferIn,
			Quantity:       input.Quantity,
			Serials:        input.Serials,
			TransferID:     &transferID,
			FromLocationID: &input.FromLocationID,
			ToLocationID:   &input.ToLocationID,
			UnitCost:       unitCost,
			Notes:          input.Notes,
			ActorID:        actorID,
			ActorName:      actorName,
		})
		if err != nil {
			return err
		}

		result.OutEntry = out
		result.InEntry = in
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "transferred stock",
		"transfer_id", transferID,
		"item_id", input.ItemID,
		"from", input.FromLocationID,
		"to", input.ToLocationID,
		"qty", input.Quantity,
	)

	return result, nil
}

// AdjustInput describes a manual count correction.
type AdjustInput struct {
	ItemID     id.ID
	LocationID id.ID

	// Quantity is signed: positive adds stock (adjustment_in),
	// negative removes it (adjustment_out).
	Quantity types.Quantity
	Serials  []string
	Reason   string
}

// Adjust appends a manual adjustment entry.
func (c *Coordinator) Adjust(ctx context.Context, input AdjustInput) (*ledger.Entry, error) {
	if input.Quantity.IsZero() {
		return nil, apperror.NewValidation("quantity must be non-zero").
			WithDetail("field", "quantity")
	}
	if input.Reason == "" {
		return nil, apperror.NewValidation("adjustment reason is required").
			WithDetail("field", "reason")
	}

	entryType := ledger.TypeAdjustmentIn
	qty := input.Quantity
	if qty.IsNegative() {
		entryType = ledger.TypeAdjustmentOut
		qty = qty.Neg()
	}

	unitCost, err := c.defaultUnitCost(ctx, input.ItemID)
	if err != nil {
		return nil, err
	}

	actorID, actorName := actor(ctx)
	return c.engine.Append(ctx, ledger.Draft{
		ItemID:     input.ItemID,
		LocationID: input.LocationID,
		Type:       entryType,
		Quantity:   qty,
		Serials:    input.Serials,
		Reference:  &ledger.Reference{Type: ledger.RefManual, ID: id.New()},
		UnitCost:   unitCost,
		Notes:      input.Reason,
		ActorID:    actorID,
		ActorName:  actorName,
	})
}

// defaultUnitCost reads the item's catalog cost for valuation.
func (c *Coordinator) defaultUnitCost(ctx context.Context, itemID id.ID) (types.Money, error) {
	it, err := c.items.GetByID(ctx, itemID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return types.ZeroMoney(), apperror.NewNotFound("item", itemID.String())
		}
		return types.ZeroMoney(), fmt.Errorf("get item: %w", err)
	}
	return it.UnitCost, nil
}

func actor(ctx context.Context) (actorID, actorName string) {
	if user := appctx.GetUser(ctx); user != nil {
		return user.UserID, user.UserName
	}
	return "", ""
}
