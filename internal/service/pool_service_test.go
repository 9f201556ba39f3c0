package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/MixasV/werpool/internal/domain"
	"github.com/MixasV/werpool/internal/service"
)

func newPoolServiceFixture() (*service.PoolService, *fakePoolStore, *fakeBus) {
	pool := freshPool()
	bus := &fakeBus{}
	return service.NewPoolService(pool, bus, testLogger()), pool, bus
}

func TestPoolService_GetDoesNotPublish(t *testing.T) {
	svc, _, bus := newPoolServiceFixture()

	state, err := svc.Get(context.Background(), liveMarket())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if state.TotalLiquidity != 100 {
		t.Errorf("total liquidity = %v", state.TotalLiquidity)
	}
	if len(bus.pool) != 0 {
		t.Errorf("pool updates = %d, want 0", len(bus.pool))
	}
}

func TestPoolService_RefreshPublishesState(t *testing.T) {
	svc, _, bus := newPoolServiceFixture()
	market := liveMarket()

	state, err := svc.RefreshFromLedger(context.Background(), market)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if len(bus.pool) != 1 {
		t.Fatalf("pool updates = %d, want 1", len(bus.pool))
	}
	update := bus.pool[0]
	if update.MarketID != market.ID || update.Slug != market.Slug {
		t.Errorf("update = %+v", update)
	}
	if update.State.TotalLiquidity != state.TotalLiquidity {
		t.Errorf("published total = %v, returned %v", update.State.TotalLiquidity, state.TotalLiquidity)
	}
}

func TestPoolService_SyncExternalPublishesState(t *testing.T) {
	svc, pool, bus := newPoolServiceFixture()
	market := liveMarket()

	next := domain.PoolState{
		LiquidityParameter: 10,
		TotalLiquidity:     102.80929804,
		BVector:            []float64{5, 0},
		OutcomeSupply:      []float64{5, 0},
	}
	synced, err := svc.SyncExternal(context.Background(), market, next)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if synced.TotalLiquidity != next.TotalLiquidity {
		t.Errorf("synced total = %v", synced.TotalLiquidity)
	}
	if pool.current().TotalLiquidity != next.TotalLiquidity {
		t.Errorf("stored total = %v", pool.current().TotalLiquidity)
	}
	if len(bus.pool) != 1 {
		t.Fatalf("pool updates = %d, want 1", len(bus.pool))
	}
	if bus.pool[0].State.TotalLiquidity != next.TotalLiquidity {
		t.Errorf("published state = %+v", bus.pool[0].State)
	}
}

func TestPoolService_RefreshFailureDoesNotPublish(t *testing.T) {
	svc, pool, bus := newPoolServiceFixture()
	pool.getErr = domain.ErrLedgerUnavailable

	_, err := svc.RefreshFromLedger(context.Background(), liveMarket())
	if !errors.Is(err, domain.ErrLedgerUnavailable) {
		t.Fatalf("err = %v, want ErrLedgerUnavailable", err)
	}
	if len(bus.pool) != 0 {
		t.Errorf("pool updates = %d, want 0", len(bus.pool))
	}
}

func TestPoolService_BroadcastFailureDoesNotFailRefresh(t *testing.T) {
	svc, _, bus := newPoolServiceFixture()
	bus.poolErr = errors.New("bus down")

	if _, err := svc.RefreshFromLedger(context.Background(), liveMarket()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
}
