package service_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/MixasV/werpool/internal/domain"
	"github.com/MixasV/werpool/internal/ledger"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeMarketStore struct {
	mu          sync.Mutex
	markets     map[string]domain.Market
	settlements map[string]domain.Settlement
}

func newFakeMarketStore(markets ...domain.Market) *fakeMarketStore {
	s := &fakeMarketStore{
		markets:     make(map[string]domain.Market),
		settlements: make(map[string]domain.Settlement),
	}
	for _, m := range markets {
		s.markets[m.ID] = m
	}
	return s
}

func (s *fakeMarketStore) Create(ctx context.Context, m domain.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markets[m.ID] = m
	return nil
}

func (s *fakeMarketStore) GetByID(ctx context.Context, id string) (domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	if settlement, ok := s.settlements[id]; ok {
		m.Settlement = &settlement
	}
	return m, nil
}

func (s *fakeMarketStore) GetByLedgerID(ctx context.Context, ledgerID uint64) (domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.markets {
		if m.LedgerID == ledgerID {
			return m, nil
		}
	}
	return domain.Market{}, domain.ErrNotFound
}

func (s *fakeMarketStore) GetBySlug(ctx context.Context, slug string) (domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.markets {
		if m.Slug == slug {
			return m, nil
		}
	}
	return domain.Market{}, domain.ErrNotFound
}

func (s *fakeMarketStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Market
	for _, m := range s.markets {
		out = append(out, m)
	}
	return out, nil
}

func (s *fakeMarketStore) UpdateState(ctx context.Context, id string, state domain.MarketState, closedAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[id]
	if !ok {
		return domain.ErrNotFound
	}
	m.State = state
	if closedAt != nil {
		m.ClosedAt = closedAt
	}
	s.markets[id] = m
	return nil
}

func (s *fakeMarketStore) SetLiquidityPool(ctx context.Context, id string, pool domain.LiquidityPool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[id]
	if !ok {
		return domain.ErrNotFound
	}
	m.LiquidityPool = &pool
	s.markets[id] = m
	return nil
}

func (s *fakeMarketStore) UpsertSettlement(ctx context.Context, settlement domain.Settlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settlements[settlement.MarketID] = settlement
	return nil
}

func (s *fakeMarketStore) AddPatrolSignal(ctx context.Context, signal domain.PatrolSignal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[signal.MarketID]
	if !ok {
		return domain.ErrNotFound
	}
	m.PatrolSignals = append(m.PatrolSignals, signal)
	s.markets[signal.MarketID] = m
	return nil
}

func (s *fakeMarketStore) DeletePatrolSignal(ctx context.Context, marketID, signalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[marketID]
	if !ok {
		return domain.ErrNotFound
	}
	kept := m.PatrolSignals[:0]
	for _, sig := range m.PatrolSignals {
		if sig.ID != signalID {
			kept = append(kept, sig)
		}
	}
	m.PatrolSignals = kept
	s.markets[marketID] = m
	return nil
}

type fakeTradeStore struct {
	mu        sync.Mutex
	trades    []domain.Trade
	insertErr error
}

func (s *fakeTradeStore) Insert(ctx context.Context, t domain.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	s.trades = append(s.trades, t)
	return nil
}

func (s *fakeTradeStore) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Trade
	for _, t := range s.trades {
		if t.MarketID == marketID {
			out = append(out, t)
		}
	}
	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return nil, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (s *fakeTradeStore) NetPosition(ctx context.Context, marketID, signer string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var net float64
	for _, t := range s.trades {
		if t.MarketID != marketID || t.Signer != signer {
			continue
		}
		if t.IsBuy {
			net += t.FlowAmount
		} else {
			net -= t.FlowAmount
		}
	}
	return net, nil
}

func (s *fakeTradeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.trades)
}

type fakeTxLogStore struct {
	mu      sync.Mutex
	entries []domain.TransactionLog
}

func (s *fakeTxLogStore) Insert(ctx context.Context, entry domain.TransactionLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *fakeTxLogStore) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.TransactionLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.TransactionLog
	for _, e := range s.entries {
		if e.MarketID == marketID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *fakeTxLogStore) byType(typ domain.TransactionType) []domain.TransactionLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.TransactionLog
	for _, e := range s.entries {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

type fakePoolStore struct {
	mu         sync.Mutex
	state      domain.PoolState
	applyCount int
	getErr     error
}

func (p *fakePoolStore) Get(ctx context.Context, marketID string, ledgerID uint64) (domain.PoolState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.getErr != nil {
		return domain.PoolState{}, p.getErr
	}
	return p.state.Clone(), nil
}

func (p *fakePoolStore) RefreshFromLedger(ctx context.Context, marketID string, ledgerID uint64) (domain.PoolState, error) {
	return p.Get(ctx, marketID, ledgerID)
}

func (p *fakePoolStore) SyncExternal(ctx context.Context, marketID string, ledgerID uint64, state domain.PoolState) (domain.PoolState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = state.Clone()
	return state, nil
}

func (p *fakePoolStore) ApplyDelta(ctx context.Context, marketID string, ledgerID uint64, current domain.PoolState, quote domain.TradeQuote) (domain.PoolState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = domain.PoolState{
		LiquidityParameter: current.LiquidityParameter,
		TotalLiquidity:     quote.NewTotalLiquidity,
		BVector:            append([]float64(nil), quote.NewBVector...),
		OutcomeSupply:      append([]float64(nil), quote.NewOutcomeSupply...),
	}
	p.applyCount++
	return p.state.Clone(), nil
}

func (p *fakePoolStore) current() domain.PoolState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.Clone()
}

type fakeSubmitter struct {
	mu       sync.Mutex
	requests []ledger.TransactionRequest
	err      error
	nextID   int
}

func (f *fakeSubmitter) Submit(ctx context.Context, req ledger.TransactionRequest) (ledger.TransactionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return ledger.TransactionResult{}, f.err
	}
	f.requests = append(f.requests, req)
	f.nextID++
	return ledger.TransactionResult{TransactionID: fmt.Sprintf("tx%04d", f.nextID)}, nil
}

func (f *fakeSubmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeSubmitter) last() ledger.TransactionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

type fakeBus struct {
	mu        sync.Mutex
	pool      []domain.PoolStateUpdate
	trades    []domain.Trade
	txlogs    []domain.TransactionLog
	analytics []domain.AnalyticsSnapshot
	poolErr   error
}

func (b *fakeBus) PublishPoolState(ctx context.Context, update domain.PoolStateUpdate) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.poolErr != nil {
		return b.poolErr
	}
	b.pool = append(b.pool, update)
	return nil
}

func (b *fakeBus) PublishTrade(ctx context.Context, trade domain.Trade) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trades = append(b.trades, trade)
	return nil
}

func (b *fakeBus) PublishTransactionLog(ctx context.Context, entry domain.TransactionLog) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.txlogs = append(b.txlogs, entry)
	return nil
}

func (b *fakeBus) PublishAnalytics(ctx context.Context, snapshot domain.AnalyticsSnapshot) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.analytics = append(b.analytics, snapshot)
	return nil
}

type fakeAnalytics struct {
	mu      sync.Mutex
	samples []domain.TradeSample
	err     error
}

func (a *fakeAnalytics) RecordTrade(ctx context.Context, sample domain.TradeSample) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.samples = append(a.samples, sample)
	return nil
}

type bonusEvent struct {
	marketID      string
	address       string
	collectibleID string
	status        domain.BonusLockStatus
	release       bool
}

type fakeBonusLocker struct {
	mu     sync.Mutex
	events []bonusEvent
}

func (b *fakeBonusLocker) Lock(ctx context.Context, marketID, address, collectibleID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, bonusEvent{marketID: marketID, address: address, collectibleID: collectibleID})
	return nil
}

func (b *fakeBonusLocker) Release(ctx context.Context, marketID, address string, status domain.BonusLockStatus) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, bonusEvent{marketID: marketID, address: address, status: status, release: true})
	return nil
}

type fakeWorkflowStore struct {
	mu      sync.Mutex
	actions map[string]domain.WorkflowAction
}

func newFakeWorkflowStore(actions ...domain.WorkflowAction) *fakeWorkflowStore {
	s := &fakeWorkflowStore{actions: make(map[string]domain.WorkflowAction)}
	for _, a := range actions {
		s.actions[a.ID] = a
	}
	return s
}

func (s *fakeWorkflowStore) Add(ctx context.Context, action domain.WorkflowAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions[action.ID] = action
	return nil
}

func (s *fakeWorkflowStore) ListPending(ctx context.Context, marketID string, typ domain.WorkflowActionType) ([]domain.WorkflowAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.WorkflowAction
	for _, a := range s.actions {
		if a.MarketID == marketID && a.Type == typ &&
			(a.Status == domain.WorkflowPending || a.Status == domain.WorkflowScheduled) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *fakeWorkflowStore) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.WorkflowAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.WorkflowAction
	for _, a := range s.actions {
		if a.TriggersAt == nil || a.TriggersAt.After(now) {
			continue
		}
		if a.Status == domain.WorkflowPending || a.Status == domain.WorkflowScheduled {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *fakeWorkflowStore) MarkExecuted(ctx context.Context, id string, metadata map[string]any) error {
	return s.mark(id, domain.WorkflowExecuted)
}

func (s *fakeWorkflowStore) MarkFailed(ctx context.Context, id string, metadata map[string]any) error {
	return s.mark(id, domain.WorkflowFailed)
}

func (s *fakeWorkflowStore) mark(id string, status domain.WorkflowActionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.actions[id]
	if !ok {
		return domain.ErrNotFound
	}
	if a.Status != domain.WorkflowPending && a.Status != domain.WorkflowScheduled {
		return nil
	}
	a.Status = status
	s.actions[id] = a
	return nil
}

type fakeBlobWriter struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newFakeBlobWriter() *fakeBlobWriter {
	return &fakeBlobWriter{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (w *fakeBlobWriter) Put(ctx context.Context, key, contentType string, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.objects[key] = append([]byte(nil), data...)
	w.types[key] = contentType
	return nil
}
