package transfer

import (
	"context"

	"fieldstock/internal/core/apperror"
	"fieldstock/internal/core/id"
	"fieldstock/internal/core/types"
	"fieldstock/internal/domain/ledger"
	"fieldstock/internal/domain/procurement"
	"fieldstock/pkg/logger"
)

// ReceiveInput describes a (possibly multi-line) purchase receipt.
type ReceiveInput struct {
	RequestID  id.ID
	LocationID id.ID
	Lines      []ReceiveLine
}

// ReceiveLine is one received line.
type ReceiveLine struct {
	// LineID selects the purchase request line. When nil, the first
	// line for ItemID with outstanding quantity is used.
	LineID *id.ID
	ItemID id.ID

	Quantity types.Quantity
	Serials  []string

	// ActualUnitPrice overrides the estimated price on the line.
	ActualUnitPrice *types.Money
}

// LineResult reports the outcome of one line.
type LineResult struct {
	ItemID id.ID         `json:"itemId"`
	LineID id.ID         `json:"lineId,omitempty"`
	Entry  *ledger.Entry `json:"entry,omitempty"`
	Err    error         `json:"error,omitempty"`
}

// ReceiveResult aggregates per-line outcomes.
type ReceiveResult struct {
	RequestID id.ID        `json:"requestId"`
	Results   []LineResult `json:"results"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
}

// ReceivePurchase receives stock against an ordered purchase request.
//
// Each line commits independently: its purchase entry and line update
// share one transaction, and a failing line does not undo the lines
// already committed. The request's partial/received status is
// recomputed as lines land. A mix of success and failure returns the
// per-line results together with a PartialFailure error.
func (c *Coordinator) ReceivePurchase(ctx context.Context, input ReceiveInput) (*ReceiveResult, error) {
	if len(input.Lines) == 0 {
		return nil, apperror.NewValidation("nothing to receive").
			WithDetail("field", "lines")
	}

	req, err := c.purchases.GetByID(ctx, input.RequestID)
	if err != nil {
		return nil, err
	}
	if req.Status != procurement.StatusOrdered && req.Status != procurement.StatusPartial {
		return nil, apperror.NewConflict("request is not receivable").
			WithDetail("requestId", input.RequestID).
			WithDetail("status", string(req.Status))
	}

	actorID, actorName := actor(ctx)

	result := &ReceiveResult{RequestID: input.RequestID}
	for _, line := range input.Lines {
		lr := c.receiveLine(ctx, req, input.LocationID, line, actorID, actorName)
		result.Results = append(result.Results, lr)
		if lr.Err != nil {
			result.Failed++
		} else {
			result.Succeeded++
		}
	}

	logger.Info(ctx, "received purchase",
		"request_id", input.RequestID,
		"succeeded", result.Succeeded,
		"failed", result.Failed,
	)

	if result.Failed > 0 && result.Succeeded > 0 {
		return result, apperror.NewPartialFailure("some lines failed to receive", result.Results)
	}
	if result.Failed > 0 {
		// Every line failed: surface the first error directly.
		return result, result.Results[0].Err
	}
	return result, nil
}

// receiveLine commits one line: ledger entry + line update in one
// transaction.
func (c *Coordinator) receiveLine(
	ctx context.Context,
	req *procurement.PurchaseRequest,
	locationID id.ID,
	line ReceiveLine,
	actorID, actorName string,
) LineResult {
	result := LineResult{ItemID: line.ItemID}

	prLine, err := c.matchLine(req, line)
	if err != nil {
		result.Err = err
		return result
	}
	result.LineID = prLine.ID

	unitCost := prLine.EstUnitPrice
	if line.ActualUnitPrice != nil {
		unitCost = *line.ActualUnitPrice
	}

	err = c.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		entry, err := c.engine.Append(ctx, ledger.Draft{
			ItemID:     line.ItemID,
			LocationID: locationID,
			Type:       ledger.TypePurchase,
			Quantity:   line.Quantity,
			Serials:    line.Serials,
			Reference: &ledger.Reference{
				Type:   ledger.RefPurchaseRequest,
				ID:     req.ID,
				Number: req.Number,
			},
			UnitCost:  unitCost,
			ActorID:   actorID,
			ActorName: actorName,
		})
		if err != nil {
			return err
		}

		updated, err := c.purchases.ApplyReceipt(ctx, req.ID, prLine.ID, line.Quantity, line.ActualUnitPrice)
		if err != nil {
			return err
		}

		// Keep the in-memory document current for subsequent lines.
		*req = *updated
		result.Entry = entry
		return nil
	})
	if err != nil {
		result.Err = err
		result.Entry = nil
	}
	return result
}

// matchLine resolves the purchase request line a receipt targets.
func (c *Coordinator) matchLine(req *procurement.PurchaseRequest, line ReceiveLine) (*procurement.Line, error) {
	if line.LineID != nil {
		prLine, err := req.FindLine(*line.LineID)
		if err != nil {
			return nil, err
		}
		if prLine.ItemID != line.ItemID {
			return nil, apperror.NewValidation("line is for a different item").
				WithDetail("lineId", *line.LineID).
				WithDetail("lineItemId", prLine.ItemID).
				WithDetail("itemId", line.ItemID)
		}
		return prLine, nil
	}

	for i := range req.Lines {
		l := &req.Lines[i]
		if l.ItemID == line.ItemID && l.Outstanding().IsPositive() {
			return l, nil
		}
	}
	return nil, apperror.NewNotFound("receivable line for item", line.ItemID.String())
}
