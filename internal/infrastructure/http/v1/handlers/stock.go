package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"fieldstock/internal/core/apperror"
	"fieldstock/internal/core/id"
	"fieldstock/internal/domain/ledger"
	"fieldstock/internal/domain/partsreq"
	"fieldstock/internal/domain/transfer"
	"fieldstock/internal/infrastructure/http/v1/dto"
)

// StockHandler handles HTTP requests for stock movements and balances.
// All mutating operations go through the transfer coordinator; reads go
// to the ledger engine and aggregator.
type StockHandler struct {
	*BaseHandler
	coordinator *transfer.Coordinator
	engine      *ledger.Engine
	aggregator  *ledger.Aggregator
	repo        ledger.Repository
	parts       *partsreq.Service
}

// NewStockHandler creates a new stock handler.
func NewStockHandler(
	base *BaseHandler,
	coordinator *transfer.Coordinator,
	engine *ledger.Engine,
	aggregator *ledger.Aggregator,
	repo ledger.Repository,
	parts *partsreq.Service,
) *StockHandler {
	return &StockHandler{
		BaseHandler: base,
		coordinator: coordinator,
		engine:      engine,
		aggregator:  aggregator,
		repo:        repo,
		parts:       parts,
	}
}

// Transfer handles POST /stock/transfers
func (h *StockHandler) Transfer(c *gin.Context) {
	var req dto.TransferRequest
	if !h.BindJSON(c, &req) {
		return
	}

	result, err := h.coordinator.Transfer(c.Request.Context(), req.ToInput())
	if err != nil {
		h.Error(c, err)
		return
	}

	h.CompleteIdempotency(c, http.StatusCreated, "application/json", result)
	c.JSON(http.StatusCreated, result)
}

// GetTransfer handles GET /stock/transfers/:transferId - both halves of
// a transfer pair.
func (h *StockHandler) GetTransfer(c *gin.Context) {
	transferID, err := id.Parse(c.Param("transferId"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid transferId format"))
		return
	}

	entries, err := h.repo.GetByTransferID(c.Request.Context(), transferID)
	if err != nil {
		h.Error(c, err)
		return
	}
	if len(entries) == 0 {
		h.Error(c, apperror.NewNotFound("transfer", transferID.String()))
		return
	}

	c.JSON(http.StatusOK, dto.TransferPairResponse{
		TransferID: transferID.String(),
		Entries:    entries,
	})
}

// Adjust handles POST /stock/adjustments
func (h *StockHandler) Adjust(c *gin.Context) {
	var req dto.AdjustRequest
	if !h.BindJSON(c, &req) {
		return
	}

	entry, err := h.coordinator.Adjust(c.Request.Context(), req.ToInput())
	if err != nil {
		h.Error(c, err)
		return
	}

	h.CompleteIdempotency(c, http.StatusCreated, "application/json", entry)
	c.JSON(http.StatusCreated, entry)
}

// Issue handles POST /stock/issues - issue stock to a service ticket.
func (h *StockHandler) Issue(c *gin.Context) {
	var req dto.IssueRequest
	if !h.BindJSON(c, &req) {
		return
	}

	issue, err := h.coordinator.IssueToTicket(c.Request.Context(), req.ToInput())
	if err != nil {
		h.Error(c, err)
		return
	}

	h.CompleteIdempotency(c, http.StatusCreated, "application/json", issue)
	c.JSON(http.StatusCreated, issue)
}

// Return handles POST /stock/issues/:id/return - return previously
// issued stock.
func (h *StockHandler) Return(c *gin.Context) {
	issueID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	var req dto.ReturnRequest
	if !h.BindJSON(c, &req) {
		return
	}

	entry, err := h.coordinator.ReturnFromTicket(c.Request.Context(), req.ToInput(issueID))
	if err != nil {
		h.Error(c, err)
		return
	}

	h.CompleteIdempotency(c, http.StatusCreated, "application/json", entry)
	c.JSON(http.StatusCreated, entry)
}

// GetIssue handles GET /stock/issues/:id
func (h *StockHandler) GetIssue(c *gin.Context) {
	issueID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	issue, err := h.parts.GetIssue(c.Request.Context(), issueID)
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, issue)
}

// ListIssues handles GET /stock/issues?ticketId=...
func (h *StockHandler) ListIssues(c *gin.Context) {
	ticketID, err := id.Parse(c.Query("ticketId"))
	if err != nil {
		h.Error(c, apperror.NewValidation("ticketId is required"))
		return
	}

	issues, err := h.parts.ListIssuesByTicket(c.Request.Context(), ticketID)
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ListResponse{
		Items:      issues,
		TotalCount: int64(len(issues)),
		Limit:      len(issues),
	})
}

// Balance handles GET /stock/balances/:itemId
// With locationId it returns availability at one location, otherwise
// per-location balances for the item.
func (h *StockHandler) Balance(c *gin.Context) {
	ctx := c.Request.Context()

	itemID, err := id.Parse(c.Param("itemId"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid itemId format"))
		return
	}

	if locStr := c.Query("locationId"); locStr != "" {
		locationID, err := id.Parse(locStr)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid locationId format"))
			return
		}

		avail, err := h.aggregator.Balance(ctx, itemID, locationID)
		if err != nil {
			h.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, dto.FromAvailability(itemID, locationID, avail))
		return
	}

	balances, err := h.aggregator.BalanceAllLocations(ctx, itemID)
	if err != nil {
		h.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.ItemBalancesResponse{
		ItemID:    itemID.String(),
		Locations: balances,
	})
}

// Recompute handles POST /stock/balances/:itemId/recompute - replay the
// ledger for one key and return the authoritative balance.
func (h *StockHandler) Recompute(c *gin.Context) {
	itemID, err := id.Parse(c.Param("itemId"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid itemId format"))
		return
	}

	locationID, err := id.Parse(c.Query("locationId"))
	if err != nil {
		h.Error(c, apperror.NewValidation("locationId is required"))
		return
	}

	balance, err := h.aggregator.Recompute(c.Request.Context(), itemID, locationID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.RecomputeResponse{
		ItemID:     itemID.String(),
		LocationID: locationID.String(),
		Balance:    balance,
	})
}

// History handles GET /stock/ledger - paged ledger history.
func (h *StockHandler) History(c *gin.Context) {
	filter := ledger.HistoryFilter{
		Limit:      h.ParseIntQuery(c, "limit", 100),
		Offset:     h.ParseIntQuery(c, "offset", 0),
		Descending: c.Query("order") == "desc",
	}

	if itemStr := c.Query("itemId"); itemStr != "" {
		parsed, err := id.Parse(itemStr)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid itemId format"))
			return
		}
		filter.ItemID = &parsed
	}

	if locStr := c.Query("locationId"); locStr != "" {
		parsed, err := id.Parse(locStr)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid locationId format"))
			return
		}
		filter.LocationID = &parsed
	}

	if typesStr := c.Query("types"); typesStr != "" {
		for _, t := range strings.Split(typesStr, ",") {
			entryType := ledger.EntryType(strings.TrimSpace(t))
			if !entryType.IsValid() {
				h.Error(c, apperror.NewValidation("unknown entry type").
					WithDetail("value", string(entryType)))
				return
			}
			filter.Types = append(filter.Types, entryType)
		}
	}

	if fromStr := c.Query("from"); fromStr != "" {
		if parsed, err := time.Parse(time.RFC3339, fromStr); err == nil {
			filter.From = &parsed
		}
	}
	if toStr := c.Query("to"); toStr != "" {
		if parsed, err := time.Parse(time.RFC3339, toStr); err == nil {
			filter.To = &parsed
		}
	}

	entries, err := h.engine.History(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.HistoryResponse{
		Items:  entries,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	})
}

// GetEntry handles GET /stock/ledger/:id
func (h *StockHandler) GetEntry(c *gin.Context) {
	entryID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	entry, err := h.engine.GetEntry(c.Request.Context(), entryID)
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, entry)
}

// RegisterRoutes registers stock routes. Recompute is admin-only.
func (h *StockHandler) RegisterRoutes(rg *gin.RouterGroup, requireAdmin gin.HandlerFunc) {
	rg.POST("/transfers", h.Transfer)
	rg.GET("/transfers/:transferId", h.GetTransfer)
	rg.POST("/adjustments", h.Adjust)
	rg.POST("/issues", h.Issue)
	rg.GET("/issues", h.ListIssues)
	rg.GET("/issues/:id", h.GetIssue)
	rg.POST("/issues/:id/return", h.Return)
	rg.GET("/balances/:itemId", h.Balance)
	rg.POST("/balances/:itemId/recompute", requireAdmin, h.Recompute)
	rg.GET("/ledger", h.History)
	rg.GET("/ledger/:id", h.GetEntry)
}
