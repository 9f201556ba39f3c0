package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/MixasV/werpool/internal/domain"
	"github.com/MixasV/werpool/internal/service"
)

// MarketLifecycle defines the lifecycle operations the market handler needs
// from the service layer.
type MarketLifecycle interface {
	Create(ctx context.Context, params service.CreateMarketParams) (domain.Market, error)
	CreatePool(ctx context.Context, marketID string, params service.CreatePoolParams) (domain.Market, error)
	Activate(ctx context.Context, marketID string) (domain.Market, error)
	Suspend(ctx context.Context, marketID string) (domain.Market, error)
	Close(ctx context.Context, marketID string) (domain.Market, error)
	Void(ctx context.Context, marketID, reason string) (domain.Market, error)
	Settle(ctx context.Context, marketID, outcomeID, notes string) (domain.Market, error)
	OverrideSettlement(ctx context.Context, marketID, outcomeID, notes, reason string) (domain.Market, error)
	RecordPatrolSignal(ctx context.Context, marketID string, params service.PatrolSignalParams) (domain.PatrolSignal, error)
	ClearPatrolSignal(ctx context.Context, marketID, signalID string) error
}

// MarketReader defines the read operations the market handler needs.
type MarketReader interface {
	GetByID(ctx context.Context, id string) (domain.Market, error)
	GetBySlug(ctx context.Context, slug string) (domain.Market, error)
	List(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error)
}

// MarketHandler serves market CRUD and lifecycle HTTP endpoints.
type MarketHandler struct {
	lifecycle MarketLifecycle
	reader    MarketReader
	logger    *slog.Logger
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(lifecycle MarketLifecycle, reader MarketReader, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		lifecycle: lifecycle,
		reader:    reader,
		logger:    logger,
	}
}

type createMarketRequest struct {
	LedgerID         uint64     `json:"ledger_id"`
	Slug             string     `json:"slug"`
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	Category         string     `json:"category"`
	Tags             []string   `json:"tags"`
	Outcomes         []string   `json:"outcomes"`
	ScheduledStartAt *time.Time `json:"scheduled_start_at"`
	TradingLockAt    *time.Time `json:"trading_lock_at"`
}

// CreateMarket registers a new draft market.
// POST /api/markets
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req createMarketRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	market, err := h.lifecycle.Create(r.Context(), service.CreateMarketParams{
		LedgerID:    req.LedgerID,
		Slug:        req.Slug,
		Title:       req.Title,
		Description: req.Description,
		Category:    domain.MarketCategory(req.Category),
		Tags:        req.Tags,
		Outcomes:    req.Outcomes,
		Schedule: domain.Schedule{
			ScheduledStartAt: req.ScheduledStartAt,
			TradingLockAt:    req.TradingLockAt,
		},
	})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: create market failed",
			slog.String("slug", req.Slug),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, market)
}

type createPoolRequest struct {
	LiquidityParameter float64 `json:"liquidity_parameter"`
	InitialLiquidity   float64 `json:"initial_liquidity"`
	TokenSymbol        string  `json:"token_symbol"`
	FeeBps             int     `json:"fee_bps"`
}

// CreatePool creates the on-ledger liquidity pool for a draft market.
// POST /api/markets/{id}/pool
func (h *MarketHandler) CreatePool(w http.ResponseWriter, r *http.Request) {
	var req createPoolRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	market, err := h.lifecycle.CreatePool(r.Context(), pathParam(r, "id"), service.CreatePoolParams{
		LiquidityParameter: req.LiquidityParameter,
		InitialLiquidity:   req.InitialLiquidity,
		TokenSymbol:        req.TokenSymbol,
		FeeBps:             req.FeeBps,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, market)
}

type listMarketsResponse struct {
	Markets []domain.Market `json:"markets"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
}

// ListMarkets returns markets with pagination.
// GET /api/markets?limit=50&offset=0
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	markets, err := h.reader.List(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list markets failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list markets")
		return
	}

	writeJSON(w, http.StatusOK, listMarketsResponse{
		Markets: markets,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
}

// GetMarket returns a single market by its ID.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	market, err := h.reader.GetByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, market)
}

// GetMarketBySlug returns a single market by its slug.
// GET /api/markets/slug/{slug}
func (h *MarketHandler) GetMarketBySlug(w http.ResponseWriter, r *http.Request) {
	slug := pathParam(r, "slug")
	if slug == "" {
		writeError(w, http.StatusBadRequest, "missing market slug")
		return
	}

	market, err := h.reader.GetBySlug(r.Context(), slug)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, market)
}

// Activate moves a market to live.
// POST /api/markets/{id}/activate
func (h *MarketHandler) Activate(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.lifecycle.Activate)
}

// Suspend pauses trading on a market.
// POST /api/markets/{id}/suspend
func (h *MarketHandler) Suspend(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.lifecycle.Suspend)
}

// Close ends trading on a market.
// POST /api/markets/{id}/close
func (h *MarketHandler) Close(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.lifecycle.Close)
}

func (h *MarketHandler) transition(w http.ResponseWriter, r *http.Request, fn func(context.Context, string) (domain.Market, error)) {
	market, err := fn(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, market)
}

type voidRequest struct {
	Reason string `json:"reason"`
}

// Void cancels a market.
// POST /api/markets/{id}/void
func (h *MarketHandler) Void(w http.ResponseWriter, r *http.Request) {
	var req voidRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	market, err := h.lifecycle.Void(r.Context(), pathParam(r, "id"), req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, market)
}

type settleRequest struct {
	OutcomeID string `json:"outcome_id"`
	Notes     string `json:"notes"`
}

// Settle resolves a closed market to one of its outcomes.
// POST /api/markets/{id}/settle
func (h *MarketHandler) Settle(w http.ResponseWriter, r *http.Request) {
	var req settleRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	market, err := h.lifecycle.Settle(r.Context(), pathParam(r, "id"), req.OutcomeID, req.Notes)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, market)
}

type overrideSettlementRequest struct {
	OutcomeID string `json:"outcome_id"`
	Notes     string `json:"notes"`
	Reason    string `json:"reason"`
}

// OverrideSettlement replaces an existing settlement.
// POST /api/markets/{id}/settlement/override
func (h *MarketHandler) OverrideSettlement(w http.ResponseWriter, r *http.Request) {
	var req overrideSettlementRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	market, err := h.lifecycle.OverrideSettlement(r.Context(), pathParam(r, "id"), req.OutcomeID, req.Notes, req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, market)
}

type patrolSignalRequest struct {
	Issuer    string     `json:"issuer"`
	Severity  string     `json:"severity"`
	Code      string     `json:"code"`
	Weight    float64    `json:"weight"`
	Notes     string     `json:"notes"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// RecordPatrolSignal raises a risk marker against a market.
// POST /api/markets/{id}/patrol-signals
func (h *MarketHandler) RecordPatrolSignal(w http.ResponseWriter, r *http.Request) {
	var req patrolSignalRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	signal, err := h.lifecycle.RecordPatrolSignal(r.Context(), pathParam(r, "id"), service.PatrolSignalParams{
		Issuer:    req.Issuer,
		Severity:  domain.PatrolSignalSeverity(req.Severity),
		Code:      req.Code,
		Weight:    req.Weight,
		Notes:     req.Notes,
		ExpiresAt: req.ExpiresAt,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, signal)
}

// ClearPatrolSignal removes a previously recorded risk marker.
// DELETE /api/markets/{id}/patrol-signals/{signalID}
func (h *MarketHandler) ClearPatrolSignal(w http.ResponseWriter, r *http.Request) {
	if err := h.lifecycle.ClearPatrolSignal(r.Context(), pathParam(r, "id"), pathParam(r, "signalID")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
