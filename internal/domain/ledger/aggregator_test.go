package ledger_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"fieldstock/internal/core/id"
	"fieldstock/internal/core/types"
	"fieldstock/internal/domain/ledger"
)

type stubReservations struct {
	byItem map[id.ID]types.Quantity
}

func (s *stubReservations) Reserved(_ context.Context, itemID id.ID) (types.Quantity, error) {
	return s.byItem[itemID], nil
}

func TestAggregatorBalanceSubtractsReservations(t *testing.T) {
	e := newEnv(t)
	it := e.addItem(t, "CMP-10", false)
	loc := e.addDefaultLocation(t, "WH-1", false)

	_, err := e.engine.Append(e.ctx, ledger.Draft{
		ItemID: it.ID, LocationID: loc.ID,
		Type: ledger.TypePurchase, Quantity: units(10),
	})
	require.NoError(t, err)

	reservations := &stubReservations{byItem: map[id.ID]types.Quantity{it.ID: units(4)}}
	agg := ledger.NewAggregator(e.store.Ledger(), e.store.Locations(), reservations)

	av, err := agg.Balance(e.ctx, it.ID, loc.ID)
	require.NoError(t, err)
	require.Equal(t, units(10), av.Current)
	require.Equal(t, units(4), av.Reserved)
	require.Equal(t, units(6), av.Available)
}

func TestAggregatorAvailableFlooredAtZero(t *testing.T) {
	e := newEnv(t)
	it := e.addItem(t, "CMP-14", false)
	loc := e.addDefaultLocation(t, "WH-1", false)

	_, err := e.engine.Append(e.ctx, ledger.Draft{
		ItemID: it.ID, LocationID: loc.ID,
		Type: ledger.TypePurchase, Quantity: units(2),
	})
	require.NoError(t, err)

	// Over-reserved: available never goes below zero at a location
	// that forbids negative stock.
	reservations := &stubReservations{byItem: map[id.ID]types.Quantity{it.ID: units(5)}}
	agg := ledger.NewAggregator(e.store.Ledger(), e.store.Locations(), reservations)

	av, err := agg.Balance(e.ctx, it.ID, loc.ID)
	require.NoError(t, err)
	require.Equal(t, units(2), av.Current)
	require.Equal(t, units(5), av.Reserved)
	require.Equal(t, units(0), av.Available)
}

func TestAggregatorNegativeAvailableWhenPolicyAllows(t *testing.T) {
	e := newEnv(t)
	it := e.addItem(t, "CMP-15", false)
	loc := e.addDefaultLocation(t, "WH-1", true)

	_, err := e.engine.Append(e.ctx, ledger.Draft{
		ItemID: it.ID, LocationID: loc.ID,
		Type: ledger.TypePurchase, Quantity: units(2),
	})
	require.NoError(t, err)

	reservations := &stubReservations{byItem: map[id.ID]types.Quantity{it.ID: units(5)}}
	agg := ledger.NewAggregator(e.store.Ledger(), e.store.Locations(), reservations)

	av, err := agg.Balance(e.ctx, it.ID, loc.ID)
	require.NoError(t, err)
	require.Equal(t, units(-3), av.Available)
}

func TestAggregatorNilReservationsMeansZero(t *testing.T) {
	e := newEnv(t)
	it := e.addItem(t, "CMP-11", false)
	loc := e.addLocation(t, "WH-1", false)

	_, err := e.engine.Append(e.ctx, ledger.Draft{
		ItemID: it.ID, LocationID: loc.ID,
		Type: ledger.TypePurchase, Quantity: units(3),
	})
	require.NoError(t, err)

	agg := ledger.NewAggregator(e.store.Ledger(), e.store.Locations(), nil)
	av, err := agg.Balance(e.ctx, it.ID, loc.ID)
	require.NoError(t, err)
	require.Equal(t, units(3), av.Current)
	require.Equal(t, units(0), av.Reserved)
	require.Equal(t, units(3), av.Available)
}

func TestAggregatorBalanceAllLocations(t *testing.T) {
	e := newEnv(t)
	it := e.addItem(t, "CMP-12", false)
	wh := e.addDefaultLocation(t, "WH-1", false)
	van := e.addLocation(t, "VAN-1", false)

	for loc, qty := range map[id.ID]int64{wh.ID: 7, van.ID: 2} {
		_, err := e.engine.Append(e.ctx, ledger.Draft{
			ItemID: it.ID, LocationID: loc,
			Type: ledger.TypePurchase, Quantity: units(qty),
		})
		require.NoError(t, err)
	}

	reservations := &stubReservations{byItem: map[id.ID]types.Quantity{it.ID: units(1)}}
	agg := ledger.NewAggregator(e.store.Ledger(), e.store.Locations(), reservations)

	balances, err := agg.BalanceAllLocations(e.ctx, it.ID)
	require.NoError(t, err)
	require.Len(t, balances, 2)

	byLoc := make(map[id.ID]ledger.LocationBalance, len(balances))
	for _, b := range balances {
		byLoc[b.LocationID] = b
	}

	// The item-wide hold sits at the default location only; other
	// locations report it exactly once across the whole list.
	require.Equal(t, units(7), byLoc[wh.ID].Current)
	require.Equal(t, units(1), byLoc[wh.ID].Reserved)
	require.Equal(t, units(6), byLoc[wh.ID].Available)
	require.Equal(t, units(2), byLoc[van.ID].Current)
	require.Equal(t, units(0), byLoc[van.ID].Reserved)
	require.Equal(t, units(2), byLoc[van.ID].Available)

	var totalReserved types.Quantity
	for _, b := range balances {
		totalReserved += b.Reserved
	}
	require.Equal(t, units(1), totalReserved)
}

func TestRecomputeMatchesIncrementalBalance(t *testing.T) {
	e := newEnv(t)
	it := e.addItem(t, "CMP-13", false)
	loc := e.addLocation(t, "WH-1", false)

	moves := []struct {
		typ ledger.EntryType
		qty int64
	}{
		{ledger.TypePurchase, 20},
		{ledger.TypeIssue, 5},
		{ledger.TypeReturn, 2},
		{ledger.TypeAdjustmentOut, 1},
		{ledger.TypeDamage, 3},
	}
	for _, m := range moves {
		_, err := e.engine.Append(e.ctx, ledger.Draft{
			ItemID: it.ID, LocationID: loc.ID,
			Type: m.typ, Quantity: units(m.qty),
		})
		require.NoError(t, err)
	}

	agg := ledger.NewAggregator(e.store.Ledger(), e.store.Locations(), nil)

	incremental, err := e.engine.Balance(e.ctx, it.ID, loc.ID)
	require.NoError(t, err)

	replayed, err := agg.Recompute(e.ctx, it.ID, loc.ID)
	require.NoError(t, err)

	require.Equal(t, incremental, replayed)
	require.Equal(t, units(13), replayed)
}
