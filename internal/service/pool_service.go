package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/MixasV/werpool/internal/domain"
)

// PoolService fronts the pool-state store for the API surface. Reads pass
// through untouched; the reconciliation paths (ledger refresh, external sync)
// publish the resulting state so subscribers see every pool-state change, not
// only the ones trades produce.
type PoolService struct {
	pool   PoolStore
	bus    domain.Broadcaster
	logger *slog.Logger
}

// NewPoolService creates a PoolService.
func NewPoolService(pool PoolStore, bus domain.Broadcaster, logger *slog.Logger) *PoolService {
	return &PoolService{
		pool:   pool,
		bus:    bus,
		logger: logger,
	}
}

// Get returns the market's current pool state.
func (s *PoolService) Get(ctx context.Context, market domain.Market) (domain.PoolState, error) {
	return s.pool.Get(ctx, market.ID, market.LedgerID)
}

// RefreshFromLedger reloads ground truth from the ledger and publishes the
// refreshed state.
func (s *PoolService) RefreshFromLedger(ctx context.Context, market domain.Market) (domain.PoolState, error) {
	state, err := s.pool.RefreshFromLedger(ctx, market.ID, market.LedgerID)
	if err != nil {
		return domain.PoolState{}, err
	}
	s.publish(ctx, market, state)
	return state, nil
}

// SyncExternal overwrites the local state with an externally observed one and
// publishes the result.
func (s *PoolService) SyncExternal(ctx context.Context, market domain.Market, state domain.PoolState) (domain.PoolState, error) {
	synced, err := s.pool.SyncExternal(ctx, market.ID, market.LedgerID, state)
	if err != nil {
		return domain.PoolState{}, err
	}
	s.publish(ctx, market, synced)
	return synced, nil
}

// publish broadcasts a pool-state update. Delivery is best-effort; failures
// are logged and never propagate to the caller.
func (s *PoolService) publish(ctx context.Context, market domain.Market, state domain.PoolState) {
	err := s.bus.PublishPoolState(ctx, domain.PoolStateUpdate{
		MarketID:  market.ID,
		Slug:      market.Slug,
		State:     state,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		s.logger.WarnContext(ctx, "pool: state broadcast failed",
			slog.String("market_id", market.ID),
			slog.String("error", err.Error()),
		)
	}
}
