package ledger

import (
	"context"
	"fmt"
	"time"

	"fieldstock/internal/core/apperror"
	"fieldstock/internal/core/id"
	"fieldstock/internal/core/tenant"
	"fieldstock/internal/core/tx"
	"fieldstock/internal/core/types"
	"fieldstock/internal/domain/catalog/item"
	"fieldstock/internal/domain/catalog/location"
	"fieldstock/pkg/logger"
)

// Engine appends entries to the stock ledger.
//
// Append is the single write path for stock: it validates the draft,
// then serializes on the (org, item, location) key, re-checks the
// non-negative policy against the current balance and appends inside
// one transaction.
type Engine struct {
	repo         Repository
	items        item.Repository
	locations    location.Repository
	reservations ReservationSource
	txManager    tx.Manager
}

// NewEngine creates a ledger engine. A nil reservations source means
// nothing is reserved.
func NewEngine(repo Repository, items item.Repository, locations location.Repository, reservations ReservationSource, txManager tx.Manager) *Engine {
	if reservations == nil {
		reservations = NoReservations{}
	}
	return &Engine{
		repo:         repo,
		items:        items,
		locations:    locations,
		reservations: reservations,
		txManager:    txManager,
	}
}

// Append validates the draft and appends one entry.
//
// Outbound drafts that would take the balance below zero, or that would
// eat into stock reserved by open part requests, are rejected with a
// Conflict unless the location allows negative stock. On any error
// nothing is written.
func (e *Engine) Append(ctx context.Context, draft Draft) (*Entry, error) {
	orgID, err := tenant.OrgID(ctx)
	if err != nil {
		return nil, apperror.NewUnauthorized("organization scope missing")
	}

	entry, loc, err := e.buildEntry(ctx, orgID, draft)
	if err != nil {
		return nil, err
	}

	err = e.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := e.repo.LockKey(ctx, entry.ItemID, entry.LocationID); err != nil {
			return fmt.Errorf("lock key: %w", err)
		}

		in, out, err := e.repo.SumByKey(ctx, entry.ItemID, entry.LocationID)
		if err != nil {
			return fmt.Errorf("sum balance: %w", err)
		}
		current := in - out

		after := current + entry.Signed()
		if after.IsNegative() && !loc.AllowsNegative {
			return apperror.NewNegativeBalance(
				entry.ItemID.String(),
				entry.LocationID.String(),
				after.Float64(),
			)
		}

		// Reserved stock is earmarked at the default location; an
		// outbound movement there may not dip into it. The movement
		// fulfilling a reservation releases its own share first.
		if entry.QtyOut.IsPositive() && !loc.AllowsNegative && loc.IsDefault {
			reserved, err := e.reservations.Reserved(ctx, entry.ItemID)
			if err != nil {
				return fmt.Errorf("reserved: %w", err)
			}
			holdback := reserved - draft.ReservedRelease
			if holdback.IsNegative() {
				holdback = 0
			}
			if (after - holdback).IsNegative() {
				return apperror.NewInsufficientStock(
					entry.ItemID.String(),
					entry.LocationID.String(),
					entry.QtyOut.Float64(),
					(current - holdback).Float64(),
				)
			}
		}

		entry.RunningBalance = after

		if err := e.repo.Append(ctx, entry); err != nil {
			return fmt.Errorf("append entry: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "appended ledger entry",
		"entry_id", entry.ID,
		"type", entry.Type,
		"item_id", entry.ItemID,
		"location_id", entry.LocationID,
		"qty", entry.Quantity(),
		"seq", entry.Seq,
	)

	return entry, nil
}

// buildEntry validates the draft against catalogs and constructs the
// entry, returning the resolved location for the policy checks.
func (e *Engine) buildEntry(ctx context.Context, orgID id.ID, draft Draft) (*Entry, *location.Location, error) {
	if !draft.Quantity.IsPositive() {
		return nil, nil, apperror.NewValidation("quantity must be positive").
			WithDetail("field", "quantity")
	}

	it, err := e.items.GetByID(ctx, draft.ItemID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, nil, apperror.NewNotFound("item", draft.ItemID.String())
		}
		return nil, nil, err
	}
	if !it.IsActive || it.DeletionMark {
		return nil, nil, apperror.NewValidation("item is not active").
			WithDetail("itemId", draft.ItemID)
	}
	if !it.IsStockable() {
		return nil, nil, apperror.NewValidation("item type is not stockable").
			WithDetail("itemId", draft.ItemID).
			WithDetail("type", string(it.Type))
	}

	loc, err := e.locations.GetByID(ctx, draft.LocationID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, nil, apperror.NewNotFound("location", draft.LocationID.String())
		}
		return nil, nil, err
	}
	if draft.Type.IsInbound() && !loc.CanAcceptStock() {
		return nil, nil, apperror.NewValidation("location cannot accept stock").
			WithDetail("locationId", draft.LocationID)
	}
	if !draft.Type.IsInbound() && !loc.CanIssueStock() {
		return nil, nil, apperror.NewValidation("location cannot issue stock").
			WithDetail("locationId", draft.LocationID)
	}

	if err := e.checkSerials(it, draft); err != nil {
		return nil, nil, err
	}

	entry := &Entry{
		ID:             id.New(),
		OrganizationID: orgID,
		ItemID:         draft.ItemID,
		LocationID:     draft.LocationID,
		Type:           draft.Type,
		Serials:        draft.Serials,
		Reference:      draft.Reference,
		TransferID:     draft.TransferID,
		FromLocationID: draft.FromLocationID,
		ToLocationID:   draft.ToLocationID,
		UnitCost:       draft.UnitCost,
		TotalCost:      draft.Quantity.Mul(draft.UnitCost),
		Notes:          draft.Notes,
		ActorID:        draft.ActorID,
		ActorName:      draft.ActorName,
		CreatedAt:      time.Now().UTC(),
	}

	if draft.Type.IsInbound() {
		entry.QtyIn = draft.Quantity
	} else {
		entry.QtyOut = draft.Quantity
	}

	if err := entry.ValidateStructure(ctx); err != nil {
		return nil, nil, err
	}

	return entry, loc, nil
}

// checkSerials enforces serial tracking rules: serialized items move in
// whole units with one serial per unit; non-serialized items carry none.
func (e *Engine) checkSerials(it *item.Item, draft Draft) error {
	if !it.TrackSerial {
		if len(draft.Serials) > 0 {
			return apperror.NewValidation("item is not serial-tracked").
				WithDetail("code", "SERIAL_COUNT_MISMATCH").
				WithDetail("itemId", it.ID)
		}
		return nil
	}

	if !draft.Quantity.IsWholeUnits() {
		return apperror.NewValidation("serialized items move in whole units").
			WithDetail("field", "quantity").
			WithDetail("quantity", draft.Quantity)
	}

	if int64(len(draft.Serials)) != draft.Quantity.Units() {
		return apperror.NewValidation("serial count must match quantity").
			WithDetail("code", "SERIAL_COUNT_MISMATCH").
			WithDetail("expected", draft.Quantity.Units()).
			WithDetail("got", len(draft.Serials))
	}

	seen := make(map[string]bool, len(draft.Serials))
	for _, s := range draft.Serials {
		if s == "" {
			return apperror.NewValidation("empty serial number").
				WithDetail("field", "serials")
		}
		if seen[s] {
			return apperror.NewValidation("duplicate serial number").
				WithDetail("serial", s)
		}
		seen[s] = true
	}

	return nil
}

// Balance returns the current net balance for the key.
func (e *Engine) Balance(ctx context.Context, itemID, locationID id.ID) (types.Quantity, error) {
	in, out, err := e.repo.SumByKey(ctx, itemID, locationID)
	if err != nil {
		return 0, fmt.Errorf("sum balance: %w", err)
	}
	return in - out, nil
}

// History returns ledger entries matching the filter, ordered by Seq.
func (e *Engine) History(ctx context.Context, filter HistoryFilter) ([]*Entry, error) {
	return e.repo.History(ctx, filter)
}

// GetEntry retrieves a single entry by ID.
func (e *Engine) GetEntry(ctx context.Context, entryID id.ID) (*Entry, error) {
	entry, err := e.repo.GetByID(ctx, entryID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.NewNotFound("ledger entry", entryID.String())
		}
		return nil, err
	}
	return entry, nil
}
