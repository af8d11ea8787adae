package procurement_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"fieldstock/internal/core/apperror"
	appctx "fieldstock/internal/core/context"
	"fieldstock/internal/core/id"
	"fieldstock/internal/core/tenant"
	"fieldstock/internal/core/types"
	"fieldstock/internal/domain/procurement"
	"fieldstock/internal/infrastructure/storage/memory"
	"fieldstock/pkg/numerator"
)

func newService(t *testing.T) (context.Context, *procurement.Service) {
	t.Helper()

	orgID := id.New()
	ctx := tenant.WithOrg(context.Background(), &tenant.Organization{ID: orgID, Slug: "acme"})
	ctx = appctx.WithUser(ctx, &appctx.UserContext{UserID: "u-1", UserName: "Dana"})

	store := memory.NewStore()
	svc := procurement.NewService(store.Purchases(), store.TxManager(), numerator.New(store.Sequences()))
	return ctx, svc
}

func adminCtx(ctx context.Context) context.Context {
	return appctx.WithUser(ctx, &appctx.UserContext{UserID: "admin-1", UserName: "Root", IsAdmin: true})
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

func draftWithLine(t *testing.T, ctx context.Context, svc *procurement.Service, qty int64) *procurement.PurchaseRequest {
	t.Helper()
	req, err := svc.Create(ctx, procurement.CreateInput{
		Lines: []procurement.LineInput{
			{ItemID: id.New(), Quantity: units(qty), EstUnitPrice: types.NewMoney(40)},
		},
	})
	require.NoError(t, err)
	return req
}

func TestCreateAssignsNumberAndDraftStatus(t *testing.T) {
	ctx, svc := newService(t)

	req := draftWithLine(t, ctx, svc, 5)
	require.Equal(t, procurement.StatusDraft, req.Status)
	require.Equal(t, "Dana", req.Requester)
	require.NotEmpty(t, req.Number)
	require.Contains(t, req.Number, "PR-")

	second := draftWithLine(t, ctx, svc, 1)
	require.NotEqual(t, req.Number, second.Number)
}

func TestSubmitRequiresLines(t *testing.T) {
	ctx, svc := newService(t)

	req, err := svc.Create(ctx, procurement.CreateInput{})
	require.NoError(t, err)

	_, err = svc.Submit(ctx, req.ID)
	require.True(t, apperror.IsValidation(err))

	_, err = svc.AddLine(ctx, req.ID, procurement.LineInput{ItemID: id.New(), Quantity: units(2)})
	require.NoError(t, err)

	updated, err := svc.Submit(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, procurement.StatusPending, updated.Status)
}

func TestApproveCapsQuantities(t *testing.T) {
	ctx, svc := newService(t)

	req := draftWithLine(t, ctx, svc, 10)
	_, err := svc.Submit(ctx, req.ID)
	require.NoError(t, err)

	lineID := req.Lines[0].ID

	// Over-approval is rejected.
	_, err = svc.Approve(ctx, req.ID, procurement.ApprovalInput{
		Lines: map[id.ID]types.Quantity{lineID: units(11)},
	})
	require.True(t, apperror.IsValidation(err))

	// Reduced approval sticks.
	updated, err := svc.Approve(ctx, req.ID, procurement.ApprovalInput{
		Lines: map[id.ID]types.Quantity{lineID: units(6)},
	})
	require.NoError(t, err)
	require.Equal(t, procurement.StatusApproved, updated.Status)
	require.Equal(t, units(6), updated.Lines[0].QtyApproved)
	require.Equal(t, "Dana", updated.Approver)
}

func TestApproveDefaultsToRequestedQuantity(t *testing.T) {
	ctx, svc := newService(t)

	req := draftWithLine(t, ctx, svc, 7)
	_, err := svc.Submit(ctx, req.ID)
	require.NoError(t, err)

	updated, err := svc.Approve(ctx, req.ID, procurement.ApprovalInput{})
	require.NoError(t, err)
	require.Equal(t, units(7), updated.Lines[0].QtyApproved)
}

func TestMarkOrderedFixesOrderedQuantities(t *testing.T) {
	ctx, svc := newService(t)

	req := draftWithLine(t, ctx, svc, 4)
	_, err := svc.Submit(ctx, req.ID)
	require.NoError(t, err)
	_, err = svc.Approve(ctx, req.ID, procurement.ApprovalInput{})
	require.NoError(t, err)

	_, err = svc.MarkOrdered(ctx, req.ID, "")
	require.True(t, apperror.IsValidation(err))

	updated, err := svc.MarkOrdered(ctx, req.ID, "PO-77")
	require.NoError(t, err)
	require.Equal(t, procurement.StatusOrdered, updated.Status)
	require.Equal(t, units(4), updated.Lines[0].QtyOrdered)
	require.Equal(t, "PO-77", *updated.PONumber)
}

func TestIllegalTransitionRejected(t *testing.T) {
	ctx, svc := newService(t)

	req := draftWithLine(t, ctx, svc, 3)

	// draft→received is not in the table.
	_, err := svc.Transition(ctx, req.ID, procurement.StatusReceived, "")
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, apperror.CodeIllegalTransition, appErr.Code)
}

func TestAdminOverrideIsRecorded(t *testing.T) {
	ctx, svc := newService(t)
	audit := &stubAudit{}
	svc = svc.WithAudit(audit)

	req := draftWithLine(t, ctx, svc, 3)

	updated, err := svc.Transition(adminCtx(ctx), req.ID, procurement.StatusReceived, "emergency close")
	require.NoError(t, err)
	require.Equal(t, procurement.StatusReceived, updated.Status)

	last := updated.StatusHistory[len(updated.StatusHistory)-1]
	require.True(t, last.Override)
	require.Equal(t, procurement.StatusDraft, last.From)
	require.Equal(t, procurement.StatusReceived, last.To)
	require.Equal(t, "Root", last.Actor)

	// The override lands in the audit trail.
	require.Len(t, audit.records, 1)
	rec := audit.records[0]
	require.Equal(t, "purchase_request", rec.entityType)
	require.Equal(t, req.ID, rec.entityID)
	require.Equal(t, "override", rec.action)
	require.Equal(t, "draft", rec.changes["from"])
	require.Equal(t, "received", rec.changes["to"])
}

func TestTableTransitionIsNotAudited(t *testing.T) {
	ctx, svc := newService(t)
	audit := &stubAudit{}
	svc = svc.WithAudit(audit)

	req := draftWithLine(t, ctx, svc, 2)
	_, err := svc.Transition(ctx, req.ID, procurement.StatusPending, "")
	require.NoError(t, err)
	require.Empty(t, audit.records)
}

func TestApplyReceiptWalksPartialToReceived(t *testing.T) {
	ctx, svc := newService(t)
	audit := &stubAudit{}
	svc = svc.WithAudit(audit)

	req := draftWithLine(t, ctx, svc, 10)
	_, err := svc.Submit(ctx, req.ID)
	require.NoError(t, err)
	_, err = svc.Approve(ctx, req.ID, procurement.ApprovalInput{})
	require.NoError(t, err)
	req, err = svc.MarkOrdered(ctx, req.ID, "PO-88")
	require.NoError(t, err)

	lineID := req.Lines[0].ID

	updated, err := svc.ApplyReceipt(ctx, req.ID, lineID, units(4), nil)
	require.NoError(t, err)
	require.Equal(t, procurement.StatusPartial, updated.Status)
	require.Equal(t, units(4), updated.Lines[0].QtyReceived)

	// Over-receipt of the remainder is rejected.
	_, err = svc.ApplyReceipt(ctx, req.ID, lineID, units(7), nil)
	require.True(t, apperror.IsValidation(err))

	price := types.NewMoney(38.5)
	updated, err = svc.ApplyReceipt(ctx, req.ID, lineID, units(6), &price)
	require.NoError(t, err)
	require.Equal(t, procurement.StatusReceived, updated.Status)
	require.True(t, updated.Lines[0].ActualUnitPrice.Equal(price))

	// Terminal: nothing more can be received.
	_, err = svc.ApplyReceipt(ctx, req.ID, lineID, units(1), nil)
	require.True(t, apperror.IsConflict(err))

	// Both successful receipts were audited; the rejected ones were not.
	require.Len(t, audit.records, 2)
	require.Equal(t, "transition", audit.records[0].action)
	require.Equal(t, "partial", audit.records[0].changes["status"])
	require.Equal(t, "received", audit.records[1].changes["status"])
}

func TestCancelBeforeOrderOnly(t *testing.T) {
	ctx, svc := newService(t)

	req := draftWithLine(t, ctx, svc, 2)
	updated, err := svc.Cancel(ctx, req.ID, "duplicate")
	require.NoError(t, err)
	require.Equal(t, procurement.StatusCancelled, updated.Status)

	// Terminal after cancel.
	_, err = svc.Submit(ctx, req.ID)
	require.True(t, apperror.IsConflict(err))

	// Once the order is placed the request can no longer be cancelled.
	ordered := draftWithLine(t, ctx, svc, 3)
	_, err = svc.Submit(ctx, ordered.ID)
	require.NoError(t, err)
	_, err = svc.Approve(ctx, ordered.ID, procurement.ApprovalInput{})
	require.NoError(t, err)
	_, err = svc.MarkOrdered(ctx, ordered.ID, "PO-42")
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, ordered.ID, "too late")
	require.True(t, apperror.IsConflict(err))
}

func TestTransitionTable(t *testing.T) {
	legal := []struct{ from, to procurement.Status }{
		{procurement.StatusDraft, procurement.StatusPending},
		{procurement.StatusPending, procurement.StatusApproved},
		{procurement.StatusPending, procurement.StatusRejected},
		{procurement.StatusApproved, procurement.StatusOrdered},
		{procurement.StatusOrdered, procurement.StatusPartial},
		{procurement.StatusOrdered, procurement.StatusReceived},
		{procurement.StatusPartial, procurement.StatusReceived},
	}
	for _, tc := range legal {
		require.True(t, procurement.CanTransition(tc.from, tc.to), "%s→%s", tc.from, tc.to)
	}

	illegal := []struct{ from, to procurement.Status }{
		{procurement.StatusDraft, procurement.StatusApproved},
		{procurement.StatusReceived, procurement.StatusOrdered},
		{procurement.StatusOrdered, procurement.StatusCancelled},
		{procurement.StatusPartial, procurement.StatusCancelled},
		{procurement.StatusRejected, procurement.StatusPending},
		{procurement.StatusCancelled, procurement.StatusDraft},
	}
	for _, tc := range illegal {
		require.False(t, procurement.CanTransition(tc.from, tc.to), "%s→%s", tc.from, tc.to)
	}

	require.True(t, procurement.StatusReceived.IsTerminal())
	require.True(t, procurement.StatusRejected.IsTerminal())
	require.True(t, procurement.StatusCancelled.IsTerminal())
	require.False(t, procurement.StatusPartial.IsTerminal())
}
