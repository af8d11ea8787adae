package partsreq_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"fieldstock/internal/core/apperror"
	appctx "fieldstock/internal/core/context"
	"fieldstock/internal/core/id"
	"fieldstock/internal/core/tenant"
	"fieldstock/internal/core/types"
	"fieldstock/internal/domain/partsreq"
	"fieldstock/internal/infrastructure/storage/memory"
	"fieldstock/pkg/numerator"
)

func newService(t *testing.T) (context.Context, *partsreq.Service) {
	t.Helper()

	orgID := id.New()
	ctx := tenant.WithOrg(context.Background(), &tenant.Organization{ID: orgID, Slug: "acme"})
	ctx = appctx.WithUser(ctx, &appctx.UserContext{UserID: "u-1", UserName: "Dana"})

	store := memory.NewStore()
	svc := partsreq.NewService(store.PartRequests(), store.TxManager(), numerator.New(store.Sequences()))
	return ctx, svc
}

func units(n int64) types.Quantity {
	return types.NewQuantityFromUnits(n)
}

type auditRecord struct {
	entityType string
	entityID   id.ID
	action     string
	changes    map[string]any
}

type stubAudit struct {
	records []auditRecord
}

func (s *stubAudit) Record(_ context.Context, entityType string, entityID id.ID, action string, changes map[string]any) error {
	s.records = append(s.records, auditRecord{entityType, entityID, action, changes})
	return nil
}

func newRequest(t *testing.T, ctx context.Context, svc *partsreq.Service, itemID id.ID, qty int64) *partsreq.TicketPartRequest {
	t.Helper()
	req, err := svc.Create(ctx, partsreq.CreateInput{
		TicketID: id.New(),
		ItemID:   itemID,
		Quantity: units(qty),
	})
	require.NoError(t, err)
	return req
}

func TestCreateStartsRequested(t *testing.T) {
	ctx, svc := newService(t)

	req := newRequest(t, ctx, svc, id.New(), 2)
	require.Equal(t, partsreq.StatusRequested, req.Status)
	require.Equal(t, "Dana", req.Requester)
	require.Contains(t, req.Number, "TPR-")
}

func TestApprovalFlow(t *testing.T) {
	ctx, svc := newService(t)
	req := newRequest(t, ctx, svc, id.New(), 2)

	approved, err := svc.Approve(ctx, req.ID, "in stock")
	require.NoError(t, err)
	require.Equal(t, partsreq.StatusApproved, approved.Status)
	require.Equal(t, "Dana", approved.Approver)

	available, err := svc.MarkAvailable(ctx, req.ID, "")
	require.NoError(t, err)
	require.Equal(t, partsreq.StatusAvailable, available.Status)
}

func TestOrderedPathForOutOfStock(t *testing.T) {
	ctx, svc := newService(t)
	req := newRequest(t, ctx, svc, id.New(), 2)

	_, err := svc.Approve(ctx, req.ID, "")
	require.NoError(t, err)
	ordered, err := svc.MarkOrdered(ctx, req.ID, "waiting on vendor")
	require.NoError(t, err)
	require.Equal(t, partsreq.StatusOrdered, ordered.Status)

	available, err := svc.MarkAvailable(ctx, req.ID, "delivery arrived")
	require.NoError(t, err)
	require.Equal(t, partsreq.StatusAvailable, available.Status)
}

func TestRejectAndCancel(t *testing.T) {
	ctx, svc := newService(t)

	rejected := newRequest(t, ctx, svc, id.New(), 1)
	req, err := svc.Reject(ctx, rejected.ID, "use refurbished")
	require.NoError(t, err)
	require.Equal(t, partsreq.StatusRejected, req.Status)

	// Rejection is still open after approval, right up to issue.
	lateReject := newRequest(t, ctx, svc, id.New(), 1)
	_, err = svc.Approve(ctx, lateReject.ID, "")
	require.NoError(t, err)
	_, err = svc.MarkAvailable(ctx, lateReject.ID, "")
	require.NoError(t, err)
	req, err = svc.Reject(ctx, lateReject.ID, "ticket resolved without part")
	require.NoError(t, err)
	require.Equal(t, partsreq.StatusRejected, req.Status)

	cancelled := newRequest(t, ctx, svc, id.New(), 1)
	_, err = svc.Approve(ctx, cancelled.ID, "")
	require.NoError(t, err)
	req, err = svc.Cancel(ctx, cancelled.ID, "ticket closed")
	require.NoError(t, err)
	require.Equal(t, partsreq.StatusCancelled, req.Status)

	// Terminal.
	_, err = svc.Approve(ctx, cancelled.ID, "")
	require.True(t, apperror.IsConflict(err))
}

func TestTransitionRefusesIssued(t *testing.T) {
	ctx, svc := newService(t)
	req := newRequest(t, ctx, svc, id.New(), 1)

	_, err := svc.Approve(ctx, req.ID, "")
	require.NoError(t, err)
	_, err = svc.MarkAvailable(ctx, req.ID, "")
	require.NoError(t, err)

	// Even though available→issued is in the table, the generic
	// transition endpoint never enters issued.
	_, err = svc.Transition(ctx, req.ID, partsreq.StatusIssued, "")
	require.True(t, apperror.IsConflict(err))

	// Admins cannot shortcut it either.
	admin := appctx.WithUser(ctx, &appctx.UserContext{UserID: "admin-1", UserName: "Root", IsAdmin: true})
	_, err = svc.Transition(admin, req.ID, partsreq.StatusIssued, "")
	require.True(t, apperror.IsConflict(err))
}

func TestAdminOverrideIsRecorded(t *testing.T) {
	ctx, svc := newService(t)
	audit := &stubAudit{}
	svc = svc.WithAudit(audit)
	req := newRequest(t, ctx, svc, id.New(), 1)

	// requested→available skips approval; only an admin may force it.
	_, err := svc.Transition(ctx, req.ID, partsreq.StatusAvailable, "")
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, apperror.CodeIllegalTransition, appErr.Code)

	admin := appctx.WithUser(ctx, &appctx.UserContext{UserID: "admin-1", UserName: "Root", IsAdmin: true})
	updated, err := svc.Transition(admin, req.ID, partsreq.StatusAvailable, "walk-in stock")
	require.NoError(t, err)
	require.Equal(t, partsreq.StatusAvailable, updated.Status)

	last := updated.StatusHistory[len(updated.StatusHistory)-1]
	require.True(t, last.Override)
	require.Equal(t, "Root", last.Actor)

	// The override lands in the audit trail.
	require.Len(t, audit.records, 1)
	rec := audit.records[0]
	require.Equal(t, "part_request", rec.entityType)
	require.Equal(t, req.ID, rec.entityID)
	require.Equal(t, "override", rec.action)
	require.Equal(t, "requested", rec.changes["from"])
	require.Equal(t, "available", rec.changes["to"])
}

func TestReservedSumsOpenRequests(t *testing.T) {
	ctx, svc := newService(t)
	itemID := id.New()

	// requested: not yet reserving.
	first := newRequest(t, ctx, svc, itemID, 3)
	reserved, err := svc.Reserved(ctx, itemID)
	require.NoError(t, err)
	require.Equal(t, units(0), reserved)

	// approved: reserving.
	_, err = svc.Approve(ctx, first.ID, "")
	require.NoError(t, err)

	// second request approved and ordered: still reserving.
	second := newRequest(t, ctx, svc, itemID, 2)
	_, err = svc.Approve(ctx, second.ID, "")
	require.NoError(t, err)
	_, err = svc.MarkOrdered(ctx, second.ID, "")
	require.NoError(t, err)

	// other item: never counted.
	other := newRequest(t, ctx, svc, id.New(), 10)
	_, err = svc.Approve(ctx, other.ID, "")
	require.NoError(t, err)

	reserved, err = svc.Reserved(ctx, itemID)
	require.NoError(t, err)
	require.Equal(t, units(5), reserved)

	// Cancelling releases the reservation.
	_, err = svc.Cancel(ctx, second.ID, "")
	require.NoError(t, err)
	reserved, err = svc.Reserved(ctx, itemID)
	require.NoError(t, err)
	require.Equal(t, units(3), reserved)
}

func TestTransitionTable(t *testing.T) {
	legal := []struct{ from, to partsreq.Status }{
		{partsreq.StatusRequested, partsreq.StatusApproved},
		{partsreq.StatusRequested, partsreq.StatusRejected},
		{partsreq.StatusApproved, partsreq.StatusOrdered},
		{partsreq.StatusApproved, partsreq.StatusAvailable},
		{partsreq.StatusOrdered, partsreq.StatusAvailable},
		{partsreq.StatusAvailable, partsreq.StatusIssued},
		{partsreq.StatusIssued, partsreq.StatusReturned},
		// Rejection stays open until the part actually leaves stock.
		{partsreq.StatusApproved, partsreq.StatusRejected},
		{partsreq.StatusOrdered, partsreq.StatusRejected},
		{partsreq.StatusAvailable, partsreq.StatusRejected},
	}
	for _, tc := range legal {
		require.True(t, partsreq.CanTransition(tc.from, tc.to), "%s→%s", tc.from, tc.to)
	}

	illegal := []struct{ from, to partsreq.Status }{
		{partsreq.StatusRequested, partsreq.StatusIssued},
		{partsreq.StatusIssued, partsreq.StatusCancelled},
		{partsreq.StatusIssued, partsreq.StatusRejected},
		{partsreq.StatusReturned, partsreq.StatusRequested},
		{partsreq.StatusRejected, partsreq.StatusApproved},
	}
	for _, tc := range illegal {
		require.False(t, partsreq.CanTransition(tc.from, tc.to), "%s→%s", tc.from, tc.to)
	}

	require.True(t, partsreq.StatusApproved.IsReserving())
	require.True(t, partsreq.StatusOrdered.IsReserving())
	require.True(t, partsreq.StatusAvailable.IsReserving())
	require.False(t, partsreq.StatusRequested.IsReserving())
	require.False(t, partsreq.StatusIssued.IsReserving())
}
