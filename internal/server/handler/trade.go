package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/MixasV/werpool/internal/domain"
	"github.com/MixasV/werpool/internal/service"
)

// TradeExecutor defines the pricing and execution operations the trade
// handler needs from the service layer.
type TradeExecutor interface {
	Quote(ctx context.Context, marketID string, cmd service.TradeCommand) (domain.QuoteResult, error)
	Execute(ctx context.Context, marketID string, cmd service.TradeCommand) (domain.TradeReceipt, error)
}

// TradeReader lists the persisted trade history.
type TradeReader interface {
	ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Trade, error)
}

// TradeHandler serves quote, execute, and trade-history endpoints.
type TradeHandler struct {
	executor TradeExecutor
	reader   TradeReader
	logger   *slog.Logger
}

// NewTradeHandler creates a TradeHandler.
func NewTradeHandler(executor TradeExecutor, reader TradeReader, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{
		executor: executor,
		reader:   reader,
		logger:   logger,
	}
}

type tradeRequest struct {
	OutcomeIndex       int      `json:"outcome_index"`
	Shares             float64  `json:"shares"`
	IsBuy              bool     `json:"is_buy"`
	Signer             string   `json:"signer"`
	MaxFlowAmount      *float64 `json:"max_flow_amount"`
	BonusCollectibleID string   `json:"bonus_collectible_id"`
}

func (req tradeRequest) command() service.TradeCommand {
	return service.TradeCommand{
		OutcomeIndex:       req.OutcomeIndex,
		Shares:             req.Shares,
		IsBuy:              req.IsBuy,
		Signer:             req.Signer,
		MaxFlowAmount:      req.MaxFlowAmount,
		BonusCollectibleID: req.BonusCollectibleID,
	}
}

// Quote prices a trade without executing it.
// POST /api/markets/{id}/quote
func (h *TradeHandler) Quote(w http.ResponseWriter, r *http.Request) {
	var req tradeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.executor.Quote(r.Context(), pathParam(r, "id"), req.command())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ExecuteTrade prices and settles one trade.
// POST /api/markets/{id}/trades
func (h *TradeHandler) ExecuteTrade(w http.ResponseWriter, r *http.Request) {
	var req tradeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	marketID := pathParam(r, "id")
	receipt, err := h.executor.Execute(r.Context(), marketID, req.command())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: trade execution failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

type listTradesResponse struct {
	Trades []domain.Trade `json:"trades"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// ListTrades returns the trade history of a market, newest first.
// GET /api/markets/{id}/trades?limit=50&offset=0&since=...&until=...
func (h *TradeHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	trades, err := h.reader.ListByMarket(r.Context(), pathParam(r, "id"), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list trades failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list trades")
		return
	}

	writeJSON(w, http.StatusOK, listTradesResponse{
		Trades: trades,
		Limit:  opts.Limit,
		Offset: opts.Offset,
	})
}
