package service_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/MixasV/werpool/internal/domain"
	"github.com/MixasV/werpool/internal/ledger"
	"github.com/MixasV/werpool/internal/service"
)

func liveMarket() domain.Market {
	return domain.Market{
		ID:       "mkt-1",
		LedgerID: 42,
		Slug:     "btc-above-100k",
		Title:    "BTC above 100k by year end",
		State:    domain.MarketStateLive,
		Category: domain.CategoryCrypto,
		Outcomes: []domain.Outcome{
			{ID: "out-yes", Index: 0, Label: "Yes", Status: domain.OutcomeActive},
			{ID: "out-no", Index: 1, Label: "No", Status: domain.OutcomeActive},
		},
	}
}

func freshPool() *fakePoolStore {
	return &fakePoolStore{state: domain.PoolState{
		LiquidityParameter: 10,
		TotalLiquidity:     100,
		BVector:            []float64{0, 0},
		OutcomeSupply:      []float64{0, 0},
	}}
}

type tradeFixture struct {
	svc       *service.TradeService
	markets   *fakeMarketStore
	trades    *fakeTradeStore
	txlogs    *fakeTxLogStore
	pool      *fakePoolStore
	submitter *fakeSubmitter
	bus       *fakeBus
	analytics *fakeAnalytics
	bonus     *fakeBonusLocker
}

func newTradeFixture(market domain.Market) *tradeFixture {
	f := &tradeFixture{
		markets:   newFakeMarketStore(market),
		trades:    &fakeTradeStore{},
		txlogs:    &fakeTxLogStore{},
		pool:      freshPool(),
		submitter: &fakeSubmitter{},
		bus:       &fakeBus{},
		analytics: &fakeAnalytics{},
		bonus:     &fakeBonusLocker{},
	}
	f.svc = service.NewTradeService(
		f.markets, f.trades, f.txlogs, f.pool, f.submitter, f.bus, f.analytics, f.bonus,
		service.TradingConfig{MaxPositionPerMarket: 1000, Signer: "market-svc", Network: "testnet"},
		testLogger(),
	)
	return f
}

func TestTradeService_ExecuteBuy(t *testing.T) {
	f := newTradeFixture(liveMarket())

	receipt, err := f.svc.Execute(context.Background(), "mkt-1", service.TradeCommand{
		OutcomeIndex: 0,
		Shares:       5,
		IsBuy:        true,
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	if receipt.Quote.FlowAmount != 2.80929804 {
		t.Errorf("flow amount = %.8f, want 2.80929804", receipt.Quote.FlowAmount)
	}
	if receipt.Quote.NewTotalLiquidity != 102.80929804 {
		t.Errorf("new total = %.8f, want 102.80929804", receipt.Quote.NewTotalLiquidity)
	}
	if receipt.TransactionID == "" {
		t.Error("receipt missing transaction id")
	}
	if receipt.Trade.Signer != "market-svc" || receipt.Trade.Network != "testnet" {
		t.Errorf("trade identity = %s/%s", receipt.Trade.Signer, receipt.Trade.Network)
	}

	// The submitted quote is the applied quote.
	applied := f.pool.current()
	if applied.TotalLiquidity != receipt.Quote.NewTotalLiquidity {
		t.Errorf("pool total = %.8f, want %.8f", applied.TotalLiquidity, receipt.Quote.NewTotalLiquidity)
	}
	if applied.BVector[0] != 5 {
		t.Errorf("pool bVector = %v", applied.BVector)
	}

	req := f.submitter.last()
	if req.Path != ledger.ExecuteTradeTx {
		t.Errorf("submitted path = %s", req.Path)
	}
	if len(req.Arguments) != 8 {
		t.Errorf("submitted %d arguments, want 8", len(req.Arguments))
	}

	if f.trades.count() != 1 {
		t.Errorf("trade records = %d, want 1", f.trades.count())
	}
	if got := len(f.txlogs.byType(domain.TxExecuteTrade)); got != 1 {
		t.Errorf("execute_trade log rows = %d, want 1", got)
	}
	if len(f.bus.trades) != 1 || len(f.bus.pool) != 1 {
		t.Errorf("broadcasts = %d trades / %d pool updates, want 1/1", len(f.bus.trades), len(f.bus.pool))
	}
	if len(f.analytics.samples) != 1 {
		t.Errorf("analytics samples = %d, want 1", len(f.analytics.samples))
	}
}

func TestTradeService_ExecuteRejectsNonTradableMarket(t *testing.T) {
	market := liveMarket()
	market.State = domain.MarketStateSuspended
	f := newTradeFixture(market)

	_, err := f.svc.Execute(context.Background(), "mkt-1", service.TradeCommand{
		OutcomeIndex: 0, Shares: 5, IsBuy: true,
	})
	if !errors.Is(err, domain.ErrMarketNotTradable) {
		t.Fatalf("err = %v, want ErrMarketNotTradable", err)
	}
	if f.submitter.count() != 0 {
		t.Error("nothing should reach the ledger")
	}
}

func TestTradeService_ExecuteRejectsOutOfRangeOutcome(t *testing.T) {
	f := newTradeFixture(liveMarket())

	_, err := f.svc.Execute(context.Background(), "mkt-1", service.TradeCommand{
		OutcomeIndex: 2, Shares: 5, IsBuy: true,
	})
	if !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("err = %v, want ErrInvalidRequest", err)
	}
}

func TestTradeService_ExecuteSlippageCeiling(t *testing.T) {
	f := newTradeFixture(liveMarket())

	ceiling := 2.0
	_, err := f.svc.Execute(context.Background(), "mkt-1", service.TradeCommand{
		OutcomeIndex:  0,
		Shares:        5,
		IsBuy:         true,
		MaxFlowAmount: &ceiling,
	})
	if !errors.Is(err, domain.ErrSlippageExceeded) {
		t.Fatalf("err = %v, want ErrSlippageExceeded", err)
	}
	if f.submitter.count() != 0 {
		t.Error("nothing should reach the ledger")
	}
	if f.pool.current().TotalLiquidity != 100 {
		t.Error("pool must be untouched")
	}
}

func TestTradeService_ExecutePositionCap(t *testing.T) {
	f := newTradeFixture(liveMarket())
	f.trades.trades = append(f.trades.trades, domain.Trade{
		MarketID: "mkt-1", Signer: "market-svc", IsBuy: true, FlowAmount: 999,
	})

	_, err := f.svc.Execute(context.Background(), "mkt-1", service.TradeCommand{
		OutcomeIndex: 0, Shares: 5, IsBuy: true,
	})
	if !errors.Is(err, domain.ErrPositionLimitExceeded) {
		t.Fatalf("err = %v, want ErrPositionLimitExceeded", err)
	}
	if f.submitter.count() != 0 {
		t.Error("nothing should reach the ledger")
	}
}

func TestTradeService_SellsBypassPositionCap(t *testing.T) {
	f := newTradeFixture(liveMarket())
	f.pool.state.BVector = []float64{5, 0}
	f.pool.state.OutcomeSupply = []float64{5, 0}
	f.pool.state.TotalLiquidity = 102.80929804
	f.trades.trades = append(f.trades.trades, domain.Trade{
		MarketID: "mkt-1", Signer: "market-svc", IsBuy: true, FlowAmount: 1000,
	})

	_, err := f.svc.Execute(context.Background(), "mkt-1", service.TradeCommand{
		OutcomeIndex: 0, Shares: 3, IsBuy: false,
	})
	if err != nil {
		t.Fatalf("sell should not hit the position cap: %v", err)
	}
}

func TestTradeService_LedgerFailureLeavesEverythingUnchanged(t *testing.T) {
	f := newTradeFixture(liveMarket())
	f.submitter.err = domain.ErrLedgerUnavailable

	_, err := f.svc.Execute(context.Background(), "mkt-1", service.TradeCommand{
		OutcomeIndex:       0,
		Shares:             5,
		IsBuy:              true,
		BonusCollectibleID: "moment-777",
	})
	if !errors.Is(err, domain.ErrLedgerUnavailable) {
		t.Fatalf("err = %v, want ErrLedgerUnavailable", err)
	}

	if got := f.pool.current(); got.TotalLiquidity != 100 || got.BVector[0] != 0 {
		t.Errorf("pool mutated on ledger failure: %+v", got)
	}
	if f.pool.applyCount != 0 {
		t.Errorf("apply count = %d, want 0", f.pool.applyCount)
	}
	if f.trades.count() != 0 {
		t.Error("no trade record may exist")
	}

	// The collectible reservation must be released as cancelled.
	var released bool
	for _, ev := range f.bonus.events {
		if ev.release && ev.status == domain.BonusLockCancelled {
			released = true
		}
	}
	if !released {
		t.Error("bonus reservation not cancelled")
	}
}

func TestTradeService_BonusConsumedOnSuccess(t *testing.T) {
	f := newTradeFixture(liveMarket())

	_, err := f.svc.Execute(context.Background(), "mkt-1", service.TradeCommand{
		OutcomeIndex:       0,
		Shares:             5,
		IsBuy:              true,
		BonusCollectibleID: "moment-777",
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	if len(f.bonus.events) != 2 {
		t.Fatalf("bonus events = %d, want lock + release", len(f.bonus.events))
	}
	if f.bonus.events[0].collectibleID != "moment-777" {
		t.Errorf("locked collectible = %q", f.bonus.events[0].collectibleID)
	}
	if !f.bonus.events[1].release || f.bonus.events[1].status != domain.BonusLockConsumed {
		t.Errorf("final event = %+v, want consumed release", f.bonus.events[1])
	}
}

func TestTradeService_PostCommitFailureDoesNotFailTrade(t *testing.T) {
	f := newTradeFixture(liveMarket())
	f.trades.insertErr = errors.New("db down")
	f.analytics.err = errors.New("analytics down")

	receipt, err := f.svc.Execute(context.Background(), "mkt-1", service.TradeCommand{
		OutcomeIndex: 0, Shares: 5, IsBuy: true,
	})
	if err != nil {
		t.Fatalf("execute must succeed despite post-commit failures: %v", err)
	}
	if receipt.TransactionID == "" {
		t.Error("receipt missing transaction id")
	}
	// Later hooks still ran.
	if len(f.bus.trades) != 1 || len(f.bus.pool) != 1 {
		t.Errorf("broadcasts = %d/%d, want 1/1", len(f.bus.trades), len(f.bus.pool))
	}
}

func TestTradeService_ConcurrentExecutesNeverShareASnapshot(t *testing.T) {
	f := newTradeFixture(liveMarket())

	const workers = 4
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Execute(context.Background(), "mkt-1", service.TradeCommand{
				OutcomeIndex: 0, Shares: 5, IsBuy: true,
			})
			if err != nil {
				t.Errorf("execute: %v", err)
			}
		}()
	}
	wg.Wait()

	final := f.pool.current()
	if final.BVector[0] != float64(workers)*5 {
		t.Errorf("bVector[0] = %v, want %v; a shared snapshot lost a trade", final.BVector[0], workers*5)
	}
	if f.pool.applyCount != workers {
		t.Errorf("apply count = %d, want %d", f.pool.applyCount, workers)
	}
	if f.trades.count() != workers {
		t.Errorf("trade records = %d, want %d", f.trades.count(), workers)
	}
}

func TestTradeService_QuoteWithPositionAdvisory(t *testing.T) {
	f := newTradeFixture(liveMarket())
	f.trades.trades = append(f.trades.trades, domain.Trade{
		MarketID: "mkt-1", Signer: "market-svc", IsBuy: true, FlowAmount: 998,
	})

	result, err := f.svc.Quote(context.Background(), "mkt-1", service.TradeCommand{
		OutcomeIndex: 0, Shares: 5, IsBuy: true,
	})
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if result.Quote.FlowAmount != 2.80929804 {
		t.Errorf("flow = %.8f", result.Quote.FlowAmount)
	}
	if result.Position == nil {
		t.Fatal("advisory missing")
	}
	if result.Position.CurrentPosition != 998 || result.Position.MaxPosition != 1000 {
		t.Errorf("advisory = %+v", result.Position)
	}
	if math.Abs(result.Position.RemainingCapacity-2) > 1e-9 {
		t.Errorf("remaining = %v, want 2", result.Position.RemainingCapacity)
	}
	if !result.Position.WouldExceedLimit {
		t.Error("advisory should flag the limit")
	}
	if f.submitter.count() != 0 {
		t.Error("a quote never reaches the ledger")
	}
	if f.pool.applyCount != 0 {
		t.Error("a quote never mutates the pool")
	}
}
