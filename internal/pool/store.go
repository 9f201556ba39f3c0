// Package pool maintains the off-chain view of per-market LMSR pricing
// state, mediating between the hot cache, the durable record, and the
// ledger's ground truth.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/MixasV/werpool/internal/domain"
	"github.com/MixasV/werpool/internal/lmsr"
)

// LedgerReader reads authoritative pool state from the settlement network.
type LedgerReader interface {
	PoolState(ctx context.Context, ledgerID uint64) (domain.PoolState, error)
}

// Store is the authoritative off-chain cache of pool state. Mutations for
// one market are serialized through a per-market mutex; markets never
// contend with each other.
type Store struct {
	cache   domain.PoolCache
	records domain.PoolStateRecordStore
	reader  LedgerReader
	logger  *slog.Logger

	mu    sync.Mutex
	locks map[uint64]*sync.Mutex
}

// NewStore creates a Store over the given cache, durable record store, and
// ledger reader.
func NewStore(cache domain.PoolCache, records domain.PoolStateRecordStore, reader LedgerReader, logger *slog.Logger) *Store {
	return &Store{
		cache:   cache,
		records: records,
		reader:  reader,
		logger:  logger,
		locks:   make(map[uint64]*sync.Mutex),
	}
}

// lockFor returns the market's mutation lock, creating it on first use.
// Locks live for the life of the process.
func (s *Store) lockFor(ledgerID uint64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[ledgerID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[ledgerID] = l
	}
	return l
}

// Get returns the market's pool state, preferring the hot cache, then the
// durable record, then a ledger refresh. It returns ErrLedgerUnavailable
// only when no cached copy exists anywhere and the ledger cannot answer.
func (s *Store) Get(ctx context.Context, marketID string, ledgerID uint64) (domain.PoolState, error) {
	state, err := s.cache.Get(ctx, ledgerID)
	if err == nil {
		return state, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		// A degraded cache must not take reads down; fall through to the record.
		s.logger.WarnContext(ctx, "pool: cache read failed",
			slog.Uint64("ledger_id", ledgerID),
			slog.String("error", err.Error()),
		)
	}

	state, err = s.records.Get(ctx, ledgerID)
	if err == nil {
		if cacheErr := s.cache.Set(ctx, ledgerID, state); cacheErr != nil {
			s.logger.WarnContext(ctx, "pool: cache warm failed",
				slog.Uint64("ledger_id", ledgerID),
				slog.String("error", cacheErr.Error()),
			)
		}
		return state, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.PoolState{}, fmt.Errorf("pool: load record for market %d: %w", ledgerID, err)
	}

	return s.RefreshFromLedger(ctx, marketID, ledgerID)
}

// RefreshFromLedger bypasses every cache and reloads ground truth from the
// ledger, persisting the result. Used after any action that can change pool
// composition outside this process.
func (s *Store) RefreshFromLedger(ctx context.Context, marketID string, ledgerID uint64) (domain.PoolState, error) {
	lock := s.lockFor(ledgerID)
	lock.Lock()
	defer lock.Unlock()

	state, err := s.reader.PoolState(ctx, ledgerID)
	if err != nil {
		return domain.PoolState{}, fmt.Errorf("pool: refresh market %d: %w", ledgerID, err)
	}
	if err := s.persist(ctx, marketID, ledgerID, state); err != nil {
		return domain.PoolState{}, err
	}
	return state, nil
}

// SyncExternal overwrites the cached and persisted state with an
// externally-computed one. This is an explicit trust-the-caller path: no
// recomputation, no reconciliation. When it races a ledger refresh for the
// same market the two serialize on the market lock and the later write wins.
func (s *Store) SyncExternal(ctx context.Context, marketID string, ledgerID uint64, state domain.PoolState) (domain.PoolState, error) {
	if err := state.Validate(); err != nil {
		return domain.PoolState{}, err
	}

	lock := s.lockFor(ledgerID)
	lock.Lock()
	defer lock.Unlock()

	if err := s.persist(ctx, marketID, ledgerID, state); err != nil {
		return domain.PoolState{}, err
	}
	return state, nil
}

// ApplyDelta advances the pool to the post-trade state a quote already
// computed for a ledger-confirmed trade. It writes exactly the quote's
// numbers and never reprices.
func (s *Store) ApplyDelta(ctx context.Context, marketID string, ledgerID uint64, current domain.PoolState, quote domain.TradeQuote) (domain.PoolState, error) {
	next := domain.PoolState{
		LiquidityParameter: current.LiquidityParameter,
		TotalLiquidity:     quote.NewTotalLiquidity,
		BVector:            quote.NewBVector,
		OutcomeSupply:      quote.NewOutcomeSupply,
	}
	if err := next.Validate(); err != nil {
		return domain.PoolState{}, err
	}

	lock := s.lockFor(ledgerID)
	lock.Lock()
	defer lock.Unlock()

	if err := s.persist(ctx, marketID, ledgerID, next); err != nil {
		return domain.PoolState{}, err
	}
	return next, nil
}

// persist writes one atomic state unit to the record store and the cache.
// Vectors are rounded to the engine's fixed 8-decimal resolution before
// storage.
func (s *Store) persist(ctx context.Context, marketID string, ledgerID uint64, state domain.PoolState) error {
	rounded := domain.PoolState{
		LiquidityParameter: state.LiquidityParameter,
		TotalLiquidity:     lmsr.Round(state.TotalLiquidity),
		BVector:            roundVector(state.BVector),
		OutcomeSupply:      roundVector(state.OutcomeSupply),
	}

	if err := s.records.Save(ctx, marketID, ledgerID, rounded); err != nil {
		return fmt.Errorf("pool: persist state for market %d: %w", ledgerID, err)
	}
	if err := s.cache.Set(ctx, ledgerID, rounded); err != nil {
		s.logger.WarnContext(ctx, "pool: cache write failed",
			slog.Uint64("ledger_id", ledgerID),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

func roundVector(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = lmsr.Round(v)
	}
	return out
}
