package pool_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/MixasV/werpool/internal/domain"
	"github.com/MixasV/werpool/internal/pool"
)

type fakeCache struct {
	mu     sync.Mutex
	states map[uint64]domain.PoolState
	getErr error
}

func newFakeCache() *fakeCache {
	return &fakeCache{states: make(map[uint64]domain.PoolState)}
}

func (c *fakeCache) Get(ctx context.Context, id uint64) (domain.PoolState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return domain.PoolState{}, c.getErr
	}
	state, ok := c.states[id]
	if !ok {
		return domain.PoolState{}, domain.ErrNotFound
	}
	return state.Clone(), nil
}

func (c *fakeCache) Set(ctx context.Context, id uint64, state domain.PoolState) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states[id] = state.Clone()
	return nil
}

func (c *fakeCache) Invalidate(ctx context.Context, id uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.states, id)
	return nil
}

type fakeRecords struct {
	mu     sync.Mutex
	states map[uint64]domain.PoolState
	saves  int
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{states: make(map[uint64]domain.PoolState)}
}

func (r *fakeRecords) Get(ctx context.Context, id uint64) (domain.PoolState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.states[id]
	if !ok {
		return domain.PoolState{}, domain.ErrNotFound
	}
	return state.Clone(), nil
}

func (r *fakeRecords) Save(ctx context.Context, marketID string, id uint64, state domain.PoolState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[id] = state.Clone()
	r.saves++
	return nil
}

type fakeReader struct {
	mu    sync.Mutex
	state domain.PoolState
	err   error
	calls int
}

func (f *fakeReader) PoolState(ctx context.Context, id uint64) (domain.PoolState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return domain.PoolState{}, f.err
	}
	return f.state.Clone(), nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func baseState() domain.PoolState {
	return domain.PoolState{
		LiquidityParameter: 10,
		TotalLiquidity:     100,
		BVector:            []float64{0, 0},
		OutcomeSupply:      []float64{0, 0},
	}
}

func TestStore_GetColdRefreshesFromLedger(t *testing.T) {
	cache := newFakeCache()
	records := newFakeRecords()
	reader := &fakeReader{state: baseState()}
	store := pool.NewStore(cache, records, reader, testLogger())

	state, err := store.Get(context.Background(), "mkt-1", 1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if state.LiquidityParameter != 10 {
		t.Errorf("state = %+v", state)
	}
	if reader.calls != 1 {
		t.Errorf("reader calls = %d, want 1", reader.calls)
	}
	// The refresh must persist and warm the cache.
	if _, err := records.Get(context.Background(), 1); err != nil {
		t.Errorf("record not persisted: %v", err)
	}
	if _, err := cache.Get(context.Background(), 1); err != nil {
		t.Errorf("cache not warmed: %v", err)
	}
}

func TestStore_GetWarmSkipsLedger(t *testing.T) {
	cache := newFakeCache()
	records := newFakeRecords()
	reader := &fakeReader{state: baseState()}
	store := pool.NewStore(cache, records, reader, testLogger())

	_ = cache.Set(context.Background(), 1, baseState())

	if _, err := store.Get(context.Background(), "mkt-1", 1); err != nil {
		t.Fatalf("get: %v", err)
	}
	if reader.calls != 0 {
		t.Errorf("reader calls = %d, want 0", reader.calls)
	}
}

func TestStore_GetFallsBackToRecordAndWarmsCache(t *testing.T) {
	cache := newFakeCache()
	records := newFakeRecords()
	reader := &fakeReader{err: domain.ErrLedgerUnavailable}
	store := pool.NewStore(cache, records, reader, testLogger())

	_ = records.Save(context.Background(), "mkt-1", 1, baseState())

	state, err := store.Get(context.Background(), "mkt-1", 1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if state.TotalLiquidity != 100 {
		t.Errorf("state = %+v", state)
	}
	if _, err := cache.Get(context.Background(), 1); err != nil {
		t.Errorf("cache not warmed: %v", err)
	}
}

func TestStore_GetColdLedgerDownFails(t *testing.T) {
	store := pool.NewStore(newFakeCache(), newFakeRecords(), &fakeReader{err: domain.ErrLedgerUnavailable}, testLogger())

	_, err := store.Get(context.Background(), "mkt-1", 1)
	if !errors.Is(err, domain.ErrLedgerUnavailable) {
		t.Fatalf("err = %v, want ErrLedgerUnavailable", err)
	}
}

func TestStore_RefreshBypassesCache(t *testing.T) {
	cache := newFakeCache()
	records := newFakeRecords()
	fresh := baseState()
	fresh.TotalLiquidity = 250
	reader := &fakeReader{state: fresh}
	store := pool.NewStore(cache, records, reader, testLogger())

	stale := baseState()
	_ = cache.Set(context.Background(), 1, stale)

	state, err := store.RefreshFromLedger(context.Background(), "mkt-1", 1)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if state.TotalLiquidity != 250 {
		t.Errorf("total liquidity = %v, want ledger truth 250", state.TotalLiquidity)
	}
	cached, _ := cache.Get(context.Background(), 1)
	if cached.TotalLiquidity != 250 {
		t.Errorf("cache still stale: %+v", cached)
	}
}

func TestStore_SyncExternalOverwritesUnconditionally(t *testing.T) {
	cache := newFakeCache()
	records := newFakeRecords()
	reader := &fakeReader{state: baseState()}
	store := pool.NewStore(cache, records, reader, testLogger())

	_ = cache.Set(context.Background(), 1, baseState())

	trusted := domain.PoolState{
		LiquidityParameter: 10,
		TotalLiquidity:     77,
		BVector:            []float64{3, -1},
		OutcomeSupply:      []float64{3, 0},
	}
	state, err := store.SyncExternal(context.Background(), "mkt-1", 1, trusted)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if state.TotalLiquidity != 77 {
		t.Errorf("state = %+v", state)
	}
	stored, _ := records.Get(context.Background(), 1)
	if stored.BVector[0] != 3 || stored.BVector[1] != -1 {
		t.Errorf("record = %+v", stored)
	}
	if reader.calls != 0 {
		t.Errorf("sync must not touch the ledger, reader calls = %d", reader.calls)
	}
}

func TestStore_SyncExternalRejectsInvalidState(t *testing.T) {
	store := pool.NewStore(newFakeCache(), newFakeRecords(), &fakeReader{}, testLogger())

	_, err := store.SyncExternal(context.Background(), "mkt-1", 1, domain.PoolState{
		LiquidityParameter: 0,
		BVector:            []float64{0},
		OutcomeSupply:      []float64{0},
	})
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("err = %v, want ErrInvalidState", err)
	}
}

func TestStore_ApplyDeltaWritesQuoteNumbers(t *testing.T) {
	cache := newFakeCache()
	records := newFakeRecords()
	store := pool.NewStore(cache, records, &fakeReader{}, testLogger())

	current := baseState()
	quote := domain.TradeQuote{
		FlowAmount:        2.80929804,
		OutcomeAmount:     5,
		NewBVector:        []float64{5, 0},
		NewTotalLiquidity: 102.80929804,
		NewOutcomeSupply:  []float64{5, 0},
		Probabilities:     []float64{0.62245933, 0.37754067},
	}

	next, err := store.ApplyDelta(context.Background(), "mkt-1", 1, current, quote)
	if err != nil {
		t.Fatalf("apply delta: %v", err)
	}
	if next.LiquidityParameter != current.LiquidityParameter {
		t.Errorf("liquidity parameter changed: %v", next.LiquidityParameter)
	}
	if next.TotalLiquidity != 102.80929804 {
		t.Errorf("total liquidity = %v", next.TotalLiquidity)
	}
	if next.BVector[0] != 5 || next.OutcomeSupply[0] != 5 {
		t.Errorf("vectors = %v / %v", next.BVector, next.OutcomeSupply)
	}

	stored, err := records.Get(context.Background(), 1)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if stored.TotalLiquidity != 102.80929804 {
		t.Errorf("persisted total = %v", stored.TotalLiquidity)
	}
}

func TestStore_PersistRoundsVectors(t *testing.T) {
	records := newFakeRecords()
	store := pool.NewStore(newFakeCache(), records, &fakeReader{}, testLogger())

	_, err := store.SyncExternal(context.Background(), "mkt-1", 1, domain.PoolState{
		LiquidityParameter: 10,
		TotalLiquidity:     100.123456789,
		BVector:            []float64{1.0000000049, 0},
		OutcomeSupply:      []float64{1.0000000049, 0},
	})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}

	stored, _ := records.Get(context.Background(), 1)
	if stored.TotalLiquidity != 100.12345679 {
		t.Errorf("total liquidity = %.10f, want 100.12345679", stored.TotalLiquidity)
	}
	if stored.BVector[0] != 1 {
		t.Errorf("b vector[0] = %.10f, want 1", stored.BVector[0])
	}
}
