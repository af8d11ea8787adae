package transfer_test

import (
	"context"
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
	"fieldstock/internal/domain/partsreq"
	"fieldstock/internal/domain/procurement"
	"fieldstock/internal/domain/transfer"
	"fieldstock/internal/infrastructure/storage/memory"
	"fieldstock/pkg/numerator"
)

type env struct {
	ctx       context.Context
	orgID     id.ID
	store     *memory.Store
	engine    *ledger.Engine
	purchases *procurement.Service
	parts     *partsreq.Service
	coord     *transfer.Coordinator
}

func newEnv(t *testing.T) *env {
	t.Helper()

	orgID := id.New()
	ctx := tenant.WithOrg(context.Background(), &tenant.Organization{ID: orgID, Slug: "acme"})
	ctx = appctx.WithUser(ctx, &appctx.UserContext{UserID: "u-1", UserName: "Dana"})

	store := memory.NewStore()
	txm := store.TxManager()
	num := numerator.New(store.Sequences())

	purchases := procurement.NewService(store.Purchases(), txm, num)
	parts := partsreq.NewService(store.PartRequests(), txm, num)
	engine := ledger.NewEngine(store.Ledger(), store.Items(), store.Locations(), parts, txm)
	aggregator := ledger.NewAggregator(store.Ledger(), store.Locations(), parts)
	coord := transfer.NewCoordinator(engine, aggregator, store.Items(), store.Locations(), purchases, parts, txm)

	return &env{
		ctx:       ctx,
		orgID:     orgID,
		store:     store,
		engine:    engine,
		purchases: purchases,
		parts:     parts,
		coord:     coord,
	}
}

func (e *env) addItem(t *testing.T, code string) *item.Item {
	t.Helper()
	it := item.NewItem(e.orgID, code, "Part "+code, item.TypePart)
	it.UnitCost = types.NewMoney(12.5)
	require.NoError(t, e.store.Items().Create(e.ctx, it))
	return it
}

func (e *env) addLocation(t *testing.T, code string) *location.Location {
	t.Helper()
	loc := location.NewLocation(e.orgID, code, "Location "+code, location.TypeWarehouse)
	require.NoError(t, e.store.Locations().Create(e.ctx, loc))
	return loc
}

func (e *env) addDefaultLocation(t *testing.T, code string) *location.Location {
	t.Helper()
	loc := location.NewLocation(e.orgID, code, "Location "+code, location.TypeWarehouse)
	loc.IsDefault = true
	require.NoError(t, e.store.Locations().Create(e.ctx, loc))
	return loc
}

func (e *env) seedStock(t *testing.T, itemID, locationID id.ID, qty int64) {
	t.Helper()
	_, err := e.engine.Append(e.ctx, ledger.Draft{
		ItemID: itemID, LocationID: locationID,
		Type: ledger.TypeOpening, Quantity: units(qty),
	})
	require.NoError(t, err)
}

func (e *env) balance(t *testing.T, itemID, locationID id.ID) types.Quantity {
	t.Helper()
	b, err := e.engine.Balance(e.ctx, itemID, locationID)
	require.NoError(t, err)
	return b
}

func units(n int64) types.Quantity {
	return types.NewQuantityFromUnits(n)
}

func TestTransferCreatesCorrelatedPair(t *testing.T) {
	e := newEnv(t)
	it := e.addItem(t, "CMP-01")
	wh := e.addLocation(t, "WH-1")
	van := e.addLocation(t, "VAN-1")
	e.seedStock(t, it.ID, wh.ID, 10)

	res, err := e.coord.Transfer(e.ctx, transfer.TransferInput{
		ItemID:         it.ID,
		FromLocationID: wh.ID,
		ToLocationID:   van.ID,
		Quantity:       units(5),
	})
	require.NoError(t, err)

	require.Equal(t, ledger.TypeTransferOut, res.OutEntry.Type)
	require.Equal(t, ledger.TypeTransferIn, res.InEntry.Type)
	require.NotNil(t, res.OutEntry.TransferID)
	require.NotNil(t, res.InEntry.TransferID)
	require.Equal(t, res.TransferID, *res.OutEntry.TransferID)
	require.Equal(t, res.TransferID, *res.InEntry.TransferID)
	require.Equal(t, wh.ID, *res.InEntry.FromLocationID)
	require.Equal(t, van.ID, *res.InEntry.ToLocationID)

	require.Equal(t, units(5), e.balance(t, it.ID, wh.ID))
	require.Equal(t, units(5), e.balance(t, it.ID, van.ID))

	pair, err := e.store.Ledger().GetByTransferID(e.ctx, res.TransferID)
	require.NoError(t, err)
	require.Len(t, pair, 2)
}

func TestTransferRejectsInsufficientStock(t *testing.T) {
	e := newEnv(t)
	it := e.addItem(t, "CMP-02")
	wh := e.addLocation(t, "WH-1")
	van := e.addLocation(t, "VAN-1")
	e.seedStock(t, it.ID, wh.ID, 3)

	_, err := e.coord.Transfer(e.ctx, transfer.TransferInput{
		ItemID:         it.ID,
		FromLocationID: wh.ID,
		ToLocationID:   van.ID,
		Quantity:       units(5),
	})
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, apperror.CodeInsufficientStock, appErr.Code)

	require.Equal(t, units(3), e.balance(t, it.ID, wh.ID))
	require.Equal(t, units(0), e.balance(t, it.ID, van.ID))
}

func TestTransferIsAtomicWhenSecondHalfFails(t *testing.T) {
	e := newEnv(t)
	it := e.addItem(t, "CMP-03")
	wh := e.addLocation(t, "WH-1")
	dead := e.addLocation(t, "OLD-1")
	e.seedStock(t, it.ID, wh.ID, 10)

	// An inactive destination rejects the inbound half; the committed
	// outbound half must roll back with it.
	dead.IsActive = false
	require.NoError(t, e.store.Locations().Update(e.ctx, dead))

	_, err := e.coord.Transfer(e.ctx, transfer.TransferInput{
		ItemID:         it.ID,
		FromLocationID: wh.ID,
		ToLocationID:   dead.ID,
		Quantity:       units(4),
	})
	require.Error(t, err)

	require.Equal(t, units(10), e.balance(t, it.ID, wh.ID))
	require.Equal(t, units(0), e.balance(t, it.ID, dead.ID))

	history, err := e.engine.History(e.ctx, ledger.HistoryFilter{ItemID: &it.ID})
	require.NoError(t, err)
	require.Len(t, history, 1) // the opening entry only
}

func TestTransferRejectsSameLocation(t *testing.T) {
	e := newEnv(t)
	it := e.addItem(t, "CMP-04")
	wh := e.addLocation(t, "WH-1")
	e.seedStock(t, it.ID, wh.ID, 5)

	_, err := e.coord.Transfer(e.ctx, transfer.TransferInput{
		ItemID:         it.ID,
		FromLocationID: wh.ID,
		ToLocationID:   wh.ID,
		Quantity:       units(1),
	})
	require.True(t, apperror.IsValidation(err))
}

func TestTransferCannotTakeReservedStock(t *testing.T) {
	e := newEnv(t)
	it := e.addItem(t, "CMP-20")
	wh := e.addDefaultLocation(t, "WH-1")
	van := e.addLocation(t, "VAN-1")
	e.seedStock(t, it.ID, wh.ID, 3)

	// An open part request holds the whole balance.
	req, err := e.parts.Create(e.ctx, partsreq.CreateInput{
		TicketID: id.New(), ItemID: it.ID, Quantity: units(3),
	})
	require.NoError(t, err)
	_, err = e.parts.Approve(e.ctx, req.ID, "")
	require.NoError(t, err)

	_, err = e.coord.Transfer(e.ctx, transfer.TransferInput{
		ItemID:         it.ID,
		FromLocationID: wh.ID,
		ToLocationID:   van.ID,
		Quantity:       units(3),
	})
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, apperror.CodeInsufficientStock, appErr.Code)

	require.Equal(t, units(3), e.balance(t, it.ID, wh.ID))
	require.Equal(t, units(0), e.balance(t, it.ID, van.ID))

	// Cancelling the request frees the stock again.
	_, err = e.parts.Cancel(e.ctx, req.ID, "")
	require.NoError(t, err)
	_, err = e.coord.Transfer(e.ctx, transfer.TransferInput{
		ItemID:         it.ID,
		FromLocationID: wh.ID,
		ToLocationID:   van.ID,
		Quantity:       units(3),
	})
	require.NoError(t, err)
}

func TestIssueReleasesItsOwnReservation(t *testing.T) {
	e := newEnv(t)
	it := e.addItem(t, "CMP-21")
	wh := e.addDefaultLocation(t, "WH-1")
	e.seedStock(t, it.ID, wh.ID, 3)
	ticketID := id.New()

	req, err := e.parts.Create(e.ctx, partsreq.CreateInput{
		TicketID: ticketID, ItemID: it.ID, Quantity: units(3),
	})
	require.NoError(t, err)
	_, err = e.parts.Approve(e.ctx, req.ID, "")
	require.NoError(t, err)
	_, err = e.parts.MarkAvailable(e.ctx, req.ID, "")
	require.NoError(t, err)

	// An unlinked issue may not dip into the hold.
	_, err = e.coord.IssueToTicket(e.ctx, transfer.IssueInput{
		TicketID:   id.New(),
		ItemID:     it.ID,
		LocationID: wh.ID,
		Quantity:   units(3),
	})
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, apperror.CodeInsufficientStock, appErr.Code)
	require.Equal(t, units(3), e.balance(t, it.ID, wh.ID))

	// The issue fulfilling the request consumes its own hold.
	issue, err := e.coord.IssueToTicket(e.ctx, transfer.IssueInput{
		TicketID:   ticketID,
		ItemID:     it.ID,
		LocationID: wh.ID,
		Quantity:   units(3),
		RequestID:  &req.ID,
	})
	require.NoError(t, err)
	require.Equal(t, units(3), issue.QtyIssued)
	require.Equal(t, units(0), e.balance(t, it.ID, wh.ID))
}

func TestIssueAndReturnFlow(t *testing.T) {
	e := newEnv(t)
	it := e.addItem(t, "CMP-05")
	wh := e.addLocation(t, "WH-1")
	e.seedStock(t, it.ID, wh.ID, 10)
	ticketID := id.New()

	req, err := e.parts.Create(e.ctx, partsreq.CreateInput{
		TicketID: ticketID, ItemID: it.ID, Quantity: units(3),
	})
	require.NoError(t, err)

	_, err = e.parts.Approve(e.ctx, req.ID, "")
	require.NoError(t, err)
	_, err = e.parts.MarkAvailable(e.ctx, req.ID, "")
	require.NoError(t, err)

	issue, err := e.coord.IssueToTicket(e.ctx, transfer.IssueInput{
		TicketID:   ticketID,
		ItemID:     it.ID,
		LocationID: wh.ID,
		Quantity:   units(3),
		RequestID:  &req.ID,
	})
	require.NoError(t, err)
	require.Equal(t, units(3), issue.QtyIssued)
	require.Equal(t, units(7), e.balance(t, it.ID, wh.ID))

	updated, err := e.parts.GetByID(e.ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, partsreq.StatusIssued, updated.Status)
	require.NotNil(t, updated.IssueID)
	require.Equal(t, issue.ID, *updated.IssueID)

	// Partial return.
	_, err = e.coord.ReturnFromTicket(e.ctx, transfer.ReturnInput{
		IssueID: issue.ID, Quantity: units(1),
	})
	require.NoError(t, err)
	require.Equal(t, units(8), e.balance(t, it.ID, wh.ID))

	updated, err = e.parts.GetByID(e.ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, partsreq.StatusIssued, updated.Status)

	// Returning the rest closes the request.
	_, err = e.coord.ReturnFromTicket(e.ctx, transfer.ReturnInput{
		IssueID: issue.ID, Quantity: units(2),
	})
	require.NoError(t, err)
	require.Equal(t, units(10), e.balance(t, it.ID, wh.ID))

	updated, err = e.parts.GetByID(e.ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, partsreq.StatusReturned, updated.Status)

	// Nothing left to return.
	_, err = e.coord.ReturnFromTicket(e.ctx, transfer.ReturnInput{
		IssueID: issue.ID, Quantity: units(1),
	})
	require.True(t, apperror.IsConflict(err))
}

func TestIssueRequiresAvailableRequest(t *testing.T) {
	e := newEnv(t)
	it := e.addItem(t, "CMP-06")
	wh := e.addLocation(t, "WH-1")
	e.seedStock(t, it.ID, wh.ID, 5)
	ticketID := id.New()

	req, err := e.parts.Create(e.ctx, partsreq.CreateInput{
		TicketID: ticketID, ItemID: it.ID, Quantity: units(2),
	})
	require.NoError(t, err)

	// Still in requested state.
	_, err = e.coord.IssueToTicket(e.ctx, transfer.IssueInput{
		TicketID:   ticketID,
		ItemID:     it.ID,
		LocationID: wh.ID,
		Quantity:   units(2),
		RequestID:  &req.ID,
	})
	require.True(t, apperror.IsConflict(err))

	// The failed issue wrote nothing.
	require.Equal(t, units(5), e.balance(t, it.ID, wh.ID))
	issues, err := e.parts.ListIssuesByTicket(e.ctx, ticketID)
	require.NoError(t, err)
	require.Empty(t, issues)
}

func TestIssueWithoutRequest(t *testing.T) {
	e := newEnv(t)
	it := e.addItem(t, "CMP-07")
	wh := e.addLocation(t, "WH-1")
	e.seedStock(t, it.ID, wh.ID, 5)
	ticketID := id.New()

	issue, err := e.coord.IssueToTicket(e.ctx, transfer.IssueInput{
		TicketID:   ticketID,
		ItemID:     it.ID,
		LocationID: wh.ID,
		Quantity:   units(2),
	})
	require.NoError(t, err)
	require.Nil(t, issue.RequestID)
	require.Equal(t, units(3), e.balance(t, it.ID, wh.ID))
}

func TestReceivePurchaseFullFlow(t *testing.T) {
	e := newEnv(t)
	it := e.addItem(t, "CMP-08")
	wh := e.addLocation(t, "WH-1")

	req := e.orderedRequest(t, it.ID, 10)

	res, err := e.coord.ReceivePurchase(e.ctx, transfer.ReceiveInput{
		RequestID:  req.ID,
		LocationID: wh.ID,
		Lines: []transfer.ReceiveLine{
			{ItemID: it.ID, Quantity: units(10)},
		},
	})
	require.NoError(t, err)
	require.Equal(t, 1, res.Succeeded)
	require.Equal(t, 0, res.Failed)
	require.Equal(t, units(10), e.balance(t, it.ID, wh.ID))

	updated, err := e.purchases.GetByID(e.ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, procurement.StatusReceived, updated.Status)
}

func TestReceivePurchasePartialQuantityLeavesRequestPartial(t *testing.T) {
	e := newEnv(t)
	it := e.addItem(t, "CMP-09")
	wh := e.addLocation(t, "WH-1")

	req := e.orderedRequest(t, it.ID, 10)

	_, err := e.coord.ReceivePurchase(e.ctx, transfer.ReceiveInput{
		RequestID:  req.ID,
		LocationID: wh.ID,
		Lines: []transfer.ReceiveLine{
			{ItemID: it.ID, Quantity: units(4)},
		},
	})
	require.NoError(t, err)

	updated, err := e.purchases.GetByID(e.ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, procurement.StatusPartial, updated.Status)
	require.Equal(t, units(6), updated.Lines[0].Outstanding())
}

func TestReceivePurchaseMixedLinesCommitIndependently(t *testing.T) {
	e := newEnv(t)
	good := e.addItem(t, "CMP-10")
	stranger := e.addItem(t, "CMP-11")
	wh := e.addLocation(t, "WH-1")

	req := e.orderedRequest(t, good.ID, 10)

	res, err := e.coord.ReceivePurchase(e.ctx, transfer.ReceiveInput{
		RequestID:  req.ID,
		LocationID: wh.ID,
		Lines: []transfer.ReceiveLine{
			{ItemID: good.ID, Quantity: units(6)},
			// Not on the request: this line fails, the first stays.
			{ItemID: stranger.ID, Quantity: units(1)},
		},
	})
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, apperror.CodePartialFailure, appErr.Code)

	require.NotNil(t, res)
	require.Equal(t, 1, res.Succeeded)
	require.Equal(t, 1, res.Failed)
	require.NoError(t, res.Results[0].Err)
	require.Error(t, res.Results[1].Err)

	// The good line committed; the bad one wrote nothing.
	require.Equal(t, units(6), e.balance(t, good.ID, wh.ID))
	require.Equal(t, units(0), e.balance(t, stranger.ID, wh.ID))

	updated, err := e.purchases.GetByID(e.ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, procurement.StatusPartial, updated.Status)
}

func TestReceivePurchaseFailingLineRollsBackItsEntry(t *testing.T) {
	e := newEnv(t)
	it := e.addItem(t, "CMP-12")
	wh := e.addLocation(t, "WH-1")

	req := e.orderedRequest(t, it.ID, 5)

	// Over-receipt fails after the ledger entry was appended inside the
	// line transaction; the rollback must take the entry with it.
	res, err := e.coord.ReceivePurchase(e.ctx, transfer.ReceiveInput{
		RequestID:  req.ID,
		LocationID: wh.ID,
		Lines: []transfer.ReceiveLine{
			{ItemID: it.ID, Quantity: units(9)},
		},
	})
	require.Error(t, err)
	require.Equal(t, 1, res.Failed)

	require.Equal(t, units(0), e.balance(t, it.ID, wh.ID))

	updated, err := e.purchases.GetByID(e.ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, procurement.StatusOrdered, updated.Status)
}

func TestReceivePurchaseRejectsUnorderedRequest(t *testing.T) {
	e := newEnv(t)
	it := e.addItem(t, "CMP-13")
	wh := e.addLocation(t, "WH-1")

	req, err := e.purchases.Create(e.ctx, procurement.CreateInput{
		Lines: []procurement.LineInput{
			{ItemID: it.ID, Quantity: units(5)},
		},
	})
	require.NoError(t, err)

	_, err = e.coord.ReceivePurchase(e.ctx, transfer.ReceiveInput{
		RequestID:  req.ID,
		LocationID: wh.ID,
		Lines: []transfer.ReceiveLine{
			{ItemID: it.ID, Quantity: units(5)},
		},
	})
	require.True(t, apperror.IsConflict(err))
}

func TestAdjustSignedQuantity(t *testing.T) {
	e := newEnv(t)
	it := e.addItem(t, "CMP-14")
	wh := e.addLocation(t, "WH-1")
	e.seedStock(t, it.ID, wh.ID, 5)

	up, err := e.coord.Adjust(e.ctx, transfer.AdjustInput{
		ItemID: it.ID, LocationID: wh.ID,
		Quantity: units(2), Reason: "found during count",
	})
	require.NoError(t, err)
	require.Equal(t, ledger.TypeAdjustmentIn, up.Type)
	require.Equal(t, units(7), e.balance(t, it.ID, wh.ID))

	down, err := e.coord.Adjust(e.ctx, transfer.AdjustInput{
		ItemID: it.ID, LocationID: wh.ID,
		Quantity: units(-3), Reason: "count shortfall",
	})
	require.NoError(t, err)
	require.Equal(t, ledger.TypeAdjustmentOut, down.Type)
	require.Equal(t, units(4), e.balance(t, it.ID, wh.ID))

	_, err = e.coord.Adjust(e.ctx, transfer.AdjustInput{
		ItemID: it.ID, LocationID: wh.ID,
		Quantity: units(1),
	})
	require.True(t, apperror.IsValidation(err)) // reason is required
}

// orderedRequest creates a purchase request for one line of the item
// and walks it to ordered.
func (e *env) orderedRequest(t *testing.T, itemID id.ID, qty int64) *procurement.PurchaseRequest {
	t.Helper()

	req, err := e.purchases.Create(e.ctx, procurement.CreateInput{
		Lines: []procurement.LineInput{
			{ItemID: itemID, Quantity: units(qty), EstUnitPrice: types.NewMoney(10)},
		},
	})
	require.NoError(t, err)

	_, err = e.purchases.Submit(e.ctx, req.ID)
	require.NoError(t, err)
	_, err = e.purchases.Approve(e.ctx, req.ID, procurement.ApprovalInput{})
	require.NoError(t, err)
	req, err = e.purchases.MarkOrdered(e.ctx, req.ID, "PO-1001")
	require.NoError(t, err)
	return req
}
