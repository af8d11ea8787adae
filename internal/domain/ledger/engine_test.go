package ledger_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"fieldstock/internal/core/apperror"
	appctx "fieldstock/internal/core/context"
	"fieldstock/internal/core/id"
	"fieldstock/internal/core/tenant"
	"fieldstock/internal/core/types"
	"fieldstock/internal/domain/catalog/item"
	"fieldstock/internal/domain/catalog/location"
	"fieldstock/internal/domain/ledger"
	"fieldstock/internal/infrastructure/storage/memory"
)

type env struct {
	ctx    context.Context
	orgID  id.ID
	store  *memory.Store
	engine *ledger.Engine
}

func newEnv(t *testing.T) *env {
	t.Helper()

	orgID := id.New()
	ctx := tenant.WithOrg(context.Background(), &tenant.Organization{ID: orgID, Slug: "acme"})
	ctx = appctx.WithUser(ctx, &appctx.UserContext{UserID: "u-1", UserName: "Dana"})

	store := memory.NewStore()
	engine := ledger.NewEngine(store.Ledger(), store.Items(), store.Locations(), nil, store.TxManager())

	return &env{ctx: ctx, orgID: orgID, store: store, engine: engine}
}

func (e *env) addItem(t *testing.T, code string, serialized bool) *item.Item {
	t.Helper()
	it := item.NewItem(e.orgID, code, "Part "+code, item.TypePart)
	it.TrackSerial = serialized
	it.UnitCost = types.NewMoney(25)
	require.NoError(t, e.store.Items().Create(e.ctx, it))
	return it
}

func (e *env) addLocation(t *testing.T, code string, allowsNegative bool) *location.Location {
	t.Helper()
	loc := location.NewLocation(e.orgID, code, "Location "+code, location.TypeWarehouse)
	loc.AllowsNegative = allowsNegative
	require.NoError(t, e.store.Locations().Create(e.ctx, loc))
	return loc
}

func (e *env) addDefaultLocation(t *testing.T, code string, allowsNegative bool) *location.Location {
	t.Helper()
	loc := location.NewLocation(e.orgID, code, "Location "+code, location.TypeWarehouse)
	loc.AllowsNegative = allowsNegative
	loc.IsDefault = true
	require.NoError(t, e.store.Locations().Create(e.ctx, loc))
	return loc
}

func units(n int64) types.Quantity {
	return types.NewQuantityFromUnits(n)
}

func TestAppendComputesRunningBalanceAndSeq(t *testing.T) {
	e := newEnv(t)
	it := e.addItem(t, "CMP-01", false)
	loc := e.addLocation(t, "WH-1", false)

	// Receive 10, issue 3, return 1 — classic repair flow.
	recv, err := e.engine.Append(e.ctx, ledger.Draft{
		ItemID: it.ID, LocationID: loc.ID,
		Type: ledger.TypePurchase, Quantity: units(10),
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), recv.Seq)
	require.Equal(t, units(10), recv.RunningBalance)

	issued, err := e.engine.Append(e.ctx, ledger.Draft{
		ItemID: it.ID, LocationID: loc.ID,
		Type: ledger.TypeIssue, Quantity: units(3),
	})
	require.NoError(t, err)
	require.Equal(t, int64(2), issued.Seq)
	require.Equal(t, units(7), issued.RunningBalance)

	returned, err := e.engine.Append(e.ctx, ledger.Draft{
		ItemID: it.ID, LocationID: loc.ID,
		Type: ledger.TypeReturn, Quantity: units(1),
	})
	require.NoError(t, err)
	require.Equal(t, int64(3), returned.Seq)
	require.Equal(t, units(8), returned.RunningBalance)

	balance, err := e.engine.Balance(e.ctx, it.ID, loc.ID)
	require.NoError(t, err)
	require.Equal(t, units(8), balance)

	history, err := e.engine.History(e.ctx, ledger.HistoryFilter{ItemID: &it.ID, LocationID: &loc.ID})
	require.NoError(t, err)
	require.Len(t, history, 3)
	require.Equal(t, ledger.TypePurchase, history[0].Type)
	require.Equal(t, ledger.TypeIssue, history[1].Type)
	require.Equal(t, ledger.TypeReturn, history[2].Type)
}

func TestAppendRejectsOverdrawWithoutWrites(t *testing.T) {
	e := newEnv(t)
	it := e.addItem(t, "CMP-02", false)
	loc := e.addLocation(t, "WH-1", false)

	_, err := e.engine.Append(e.ctx, ledger.Draft{
		ItemID: it.ID, LocationID: loc.ID,
		Type: ledger.TypePurchase, Quantity: units(5),
	})
	require.NoError(t, err)

	_, err = e.engine.Append(e.ctx, ledger.Draft{
		ItemID: it.ID, LocationID: loc.ID,
		Type: ledger.TypeIssue, Quantity: units(6),
	})
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, apperror.CodeNegativeBalance, appErr.Code)

	// Rejection leaves no trace in the ledger.
	history, err := e.engine.History(e.ctx, ledger.HistoryFilter{ItemID: &it.ID})
	require.NoError(t, err)
	require.Len(t, history, 1)

	balance, err := e.engine.Balance(e.ctx, it.ID, loc.ID)
	require.NoError(t, err)
	require.Equal(t, units(5), balance)
}

func TestAppendHoldsReservedStockAtDefaultLocation(t *testing.T) {
	e := newEnv(t)
	it := e.addItem(t, "CMP-08", false)
	wh := e.addDefaultLocation(t, "WH-1", false)
	van := e.addLocation(t, "VAN-1", false)

	reservations := &stubReservations{byItem: map[id.ID]types.Quantity{it.ID: units(3)}}
	engine := ledger.NewEngine(e.store.Ledger(), e.store.Items(), e.store.Locations(), reservations, e.store.TxManager())

	for _, loc := range []id.ID{wh.ID, van.ID} {
		_, err := engine.Append(e.ctx, ledger.Draft{
			ItemID: it.ID, LocationID: loc,
			Type: ledger.TypePurchase, Quantity: units(3),
		})
		require.NoError(t, err)
	}

	// current 3, reserved 3: nothing leaves the default location.
	_, err := engine.Append(e.ctx, ledger.Draft{
		ItemID: it.ID, LocationID: wh.ID,
		Type: ledger.TypeIssue, Quantity: units(3),
	})
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, apperror.CodeInsufficientStock, appErr.Code)

	balance, err := engine.Balance(e.ctx, it.ID, wh.ID)
	require.NoError(t, err)
	require.Equal(t, units(3), balance)

	// The hold does not follow the item to other locations.
	_, err = engine.Append(e.ctx, ledger.Draft{
		ItemID: it.ID, LocationID: van.ID,
		Type: ledger.TypeIssue, Quantity: units(3),
	})
	require.NoError(t, err)

	// A movement fulfilling the reservation releases its own share.
	_, err = engine.Append(e.ctx, ledger.Draft{
		ItemID: it.ID, LocationID: wh.ID,
		Type: ledger.TypeIssue, Quantity: units(3),
		ReservedRelease: units(3),
	})
	require.NoError(t, err)

	balance, err = engine.Balance(e.ctx, it.ID, wh.ID)
	require.NoError(t, err)
	require.Equal(t, units(0), balance)
}

func TestAppendAllowsNegativeWhenLocationPermits(t *testing.T) {
	e := newEnv(t)
	it := e.addItem(t, "CMP-03", false)
	loc := e.addLocation(t, "VAN-1", true)

	_, err := e.engine.Append(e.ctx, ledger.Draft{
		ItemID: it.ID, LocationID: loc.ID,
		Type: ledger.TypeIssue, Quantity: units(2),
	})
	require.NoError(t, err)

	balance, err := e.engine.Balance(e.ctx, it.ID, loc.ID)
	require.NoError(t, err)
	require.Equal(t, units(-2), balance)
}

func TestConcurrentIssuesOnlyOneSucceeds(t *testing.T) {
	e := newEnv(t)
	it := e.addItem(t, "CMP-04", false)
	loc := e.addLocation(t, "WH-1", false)

	_, err := e.engine.Append(e.ctx, ledger.Draft{
		ItemID: it.ID, LocationID: loc.ID,
		Type: ledger.TypePurchase, Quantity: units(3),
	})
	require.NoError(t, err)

	// Two concurrent issues of 3 against 3 available: exactly one may
	// pass the precondition.
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.engine.Append(e.ctx, ledger.Draft{
				ItemID: it.ID, LocationID: loc.ID,
				Type: ledger.TypeIssue, Quantity: units(3),
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			appErr, ok := apperror.AsAppError(err)
			require.True(t, ok)
			require.Equal(t, apperror.CodeNegativeBalance, appErr.Code)
		}
	}
	require.Equal(t, 1, succeeded)

	balance, err := e.engine.Balance(e.ctx, it.ID, loc.ID)
	require.NoError(t, err)
	require.Equal(t, units(0), balance)
}

func TestSerializedItemsRequireMatchingSerials(t *testing.T) {
	e := newEnv(t)
	it := e.addItem(t, "SSD-01", true)
	loc := e.addLocation(t, "WH-1", false)

	// Count mismatch.
	_, err := e.engine.Append(e.ctx, ledger.Draft{
		ItemID: it.ID, LocationID: loc.ID,
		Type: ledger.TypePurchase, Quantity: units(2),
		Serials: []string{"SN-1"},
	})
	require.Error(t, err)
	require.True(t, apperror.IsValidation(err))

	// Duplicate serial.
	_, err = e.engine.Append(e.ctx, ledger.Draft{
		ItemID: it.ID, LocationID: loc.ID,
		Type: ledger.TypePurchase, Quantity: units(2),
		Serials: []string{"SN-1", "SN-1"},
	})
	require.Error(t, err)
	require.True(t, apperror.IsValidation(err))

	// Fractional quantity.
	_, err = e.engine.Append(e.ctx, ledger.Draft{
		ItemID: it.ID, LocationID: loc.ID,
		Type: ledger.TypePurchase, Quantity: types.NewQuantityFromFloat64(1.5),
		Serials: []string{"SN-1"},
	})
	require.Error(t, err)
	require.True(t, apperror.IsValidation(err))

	// Correct shape.
	entry, err := e.engine.Append(e.ctx, ledger.Draft{
		ItemID: it.ID, LocationID: loc.ID,
		Type: ledger.TypePurchase, Quantity: units(2),
		Serials: []string{"SN-1", "SN-2"},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"SN-1", "SN-2"}, entry.Serials)

	// Serials on a non-serialized item are rejected.
	plain := e.addItem(t, "CBL-01", false)
	_, err = e.engine.Append(e.ctx, ledger.Draft{
		ItemID: plain.ID, LocationID: loc.ID,
		Type: ledger.TypePurchase, Quantity: units(1),
		Serials: []string{"SN-9"},
	})
	require.Error(t, err)
	require.True(t, apperror.IsValidation(err))
}

func TestEntriesAreImmutableToCallers(t *testing.T) {
	e := newEnv(t)
	it := e.addItem(t, "CMP-05", false)
	loc := e.addLocation(t, "WH-1", false)

	entry, err := e.engine.Append(e.ctx, ledger.Draft{
		ItemID: it.ID, LocationID: loc.ID,
		Type: ledger.TypePurchase, Quantity: units(4),
	})
	require.NoError(t, err)

	// Mutating the returned entry must not affect the stored one.
	entry.QtyIn = units(999)
	entry.Notes = "tampered"

	stored, err := e.engine.GetEntry(e.ctx, entry.ID)
	require.NoError(t, err)
	require.Equal(t, units(4), stored.QtyIn)
	require.Empty(t, stored.Notes)
}

func TestAppendValidatesCatalogState(t *testing.T) {
	e := newEnv(t)
	it := e.addItem(t, "CMP-06", false)
	loc := e.addLocation(t, "WH-1", false)

	// Unknown item.
	_, err := e.engine.Append(e.ctx, ledger.Draft{
		ItemID: id.New(), LocationID: loc.ID,
		Type: ledger.TypePurchase, Quantity: units(1),
	})
	require.True(t, apperror.IsNotFound(err))

	// Unknown location.
	_, err = e.engine.Append(e.ctx, ledger.Draft{
		ItemID: it.ID, LocationID: id.New(),
		Type: ledger.TypePurchase, Quantity: units(1),
	})
	require.True(t, apperror.IsNotFound(err))

	// Inactive item.
	it.IsActive = false
	require.NoError(t, e.store.Items().Update(e.ctx, it))
	_, err = e.engine.Append(e.ctx, ledger.Draft{
		ItemID: it.ID, LocationID: loc.ID,
		Type: ledger.TypePurchase, Quantity: units(1),
	})
	require.True(t, apperror.IsValidation(err))

	// Zero quantity.
	_, err = e.engine.Append(e.ctx, ledger.Draft{
		ItemID: it.ID, LocationID: loc.ID,
		Type: ledger.TypePurchase, Quantity: 0,
	})
	require.True(t, apperror.IsValidation(err))
}

func TestHistoryPagingAndOrder(t *testing.T) {
	e := newEnv(t)
	it := e.addItem(t, "CMP-07", false)
	loc := e.addLocation(t, "WH-1", false)

	for i := 0; i < 5; i++ {
		_, err := e.engine.Append(e.ctx, ledger.Draft{
			ItemID: it.ID, LocationID: loc.ID,
			Type: ledger.TypePurchase, Quantity: units(1),
		})
		require.NoError(t, err)
	}

	asc, err := e.engine.History(e.ctx, ledger.HistoryFilter{ItemID: &it.ID, Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, asc, 2)
	require.Equal(t, int64(2), asc[0].Seq)
	require.Equal(t, int64(3), asc[1].Seq)

	desc, err := e.engine.History(e.ctx, ledger.HistoryFilter{ItemID: &it.ID, Descending: true, Limit: 2})
	require.NoError(t, err)
	require.Len(t, desc, 2)
	require.Equal(t, int64(5), desc[0].Seq)
	require.Equal(t, int64(4), desc[1].Seq)
}

func TestLedgerIsScopedByOrganization(t *testing.T) {
	e := newEnv(t)
	it := e.addItem(t, "CMP-08", false)
	loc := e.addLocation(t, "WH-1", false)

	_, err := e.engine.Append(e.ctx, ledger.Draft{
		ItemID: it.ID, LocationID: loc.ID,
		Type: ledger.TypePurchase, Quantity: units(5),
	})
	require.NoError(t, err)

	// A different organization sees nothing.
	otherCtx := tenant.WithOrg(context.Background(), &tenant.Organization{ID: id.New(), Slug: "other"})
	balance, err := e.engine.Balance(otherCtx, it.ID, loc.ID)
	require.NoError(t, err)
	require.Equal(t, units(0), balance)
}
