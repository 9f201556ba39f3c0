package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/MixasV/werpool/internal/domain"
)

// PoolStateSource defines the pool-state operations the pool handler needs.
type PoolStateSource interface {
	Get(ctx context.Context, market domain.Market) (domain.PoolState, error)
	RefreshFromLedger(ctx context.Context, market domain.Market) (domain.PoolState, error)
	SyncExternal(ctx context.Context, market domain.Market, state domain.PoolState) (domain.PoolState, error)
}

// PoolHandler serves the per-market pricing-state endpoints. Every route
// resolves the market first so requests address markets by API id, not by
// ledger id.
type PoolHandler struct {
	markets MarketReader
	pool    PoolStateSource
	logger  *slog.Logger
}

// NewPoolHandler creates a PoolHandler.
func NewPoolHandler(markets MarketReader, pool PoolStateSource, logger *slog.Logger) *PoolHandler {
	return &PoolHandler{
		markets: markets,
		pool:    pool,
		logger:  logger,
	}
}

type poolStateResponse struct {
	MarketID string           `json:"market_id"`
	LedgerID uint64           `json:"ledger_id"`
	State    domain.PoolState `json:"state"`
}

// GetPoolState returns the current pricing state of a market.
// GET /api/markets/{id}/pool
func (h *PoolHandler) GetPoolState(w http.ResponseWriter, r *http.Request) {
	market, err := h.markets.GetByID(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	state, err := h.pool.Get(r.Context(), market)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: get pool state failed",
			slog.String("market_id", market.ID),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, poolStateResponse{
		MarketID: market.ID,
		LedgerID: market.LedgerID,
		State:    state,
	})
}

// RefreshPoolState re-reads the pricing state from the ledger, bypassing the
// cache.
// POST /api/markets/{id}/pool/refresh
func (h *PoolHandler) RefreshPoolState(w http.ResponseWriter, r *http.Request) {
	market, err := h.markets.GetByID(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	state, err := h.pool.RefreshFromLedger(r.Context(), market)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, poolStateResponse{
		MarketID: market.ID,
		LedgerID: market.LedgerID,
		State:    state,
	})
}

// SyncPoolState overwrites the local pricing state with an externally
// observed one, last write wins.
// PUT /api/markets/{id}/pool
func (h *PoolHandler) SyncPoolState(w http.ResponseWriter, r *http.Request) {
	var state domain.PoolState
	if err := decodeBody(r, &state); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	market, err := h.markets.GetByID(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	synced, err := h.pool.SyncExternal(r.Context(), market, state)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, poolStateResponse{
		MarketID: market.ID,
		LedgerID: market.LedgerID,
		State:    synced,
	})
}
