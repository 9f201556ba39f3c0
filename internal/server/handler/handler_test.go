package handler_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MixasV/werpool/internal/domain"
	"github.com/MixasV/werpool/internal/server/handler"
	"github.com/MixasV/werpool/internal/service"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func jsonRequest(method, target, body string) *http.Request {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	return httptest.NewRequest(method, target, rd)
}

// --- fakes -----------------------------------------------------------------

type fakeLifecycle struct {
	market     domain.Market
	signal     domain.PatrolSignal
	err        error
	lastReason string
}

func (f *fakeLifecycle) Create(ctx context.Context, params service.CreateMarketParams) (domain.Market, error) {
	return f.market, f.err
}

func (f *fakeLifecycle) CreatePool(ctx context.Context, marketID string, params service.CreatePoolParams) (domain.Market, error) {
	return f.market, f.err
}

func (f *fakeLifecycle) Activate(ctx context.Context, marketID string) (domain.Market, error) {
	return f.market, f.err
}

func (f *fakeLifecycle) Suspend(ctx context.Context, marketID string) (domain.Market, error) {
	return f.market, f.err
}

func (f *fakeLifecycle) Close(ctx context.Context, marketID string) (domain.Market, error) {
	return f.market, f.err
}

func (f *fakeLifecycle) Void(ctx context.Context, marketID, reason string) (domain.Market, error) {
	f.lastReason = reason
	return f.market, f.err
}

func (f *fakeLifecycle) Settle(ctx context.Context, marketID, outcomeID, notes string) (domain.Market, error) {
	return f.market, f.err
}

func (f *fakeLifecycle) OverrideSettlement(ctx context.Context, marketID, outcomeID, notes, reason string) (domain.Market, error) {
	f.lastReason = reason
	return f.market, f.err
}

func (f *fakeLifecycle) RecordPatrolSignal(ctx context.Context, marketID string, params service.PatrolSignalParams) (domain.PatrolSignal, error) {
	return f.signal, f.err
}

func (f *fakeLifecycle) ClearPatrolSignal(ctx context.Context, marketID, signalID string) error {
	return f.err
}

type fakeMarketReader struct {
	market domain.Market
	err    error
}

func (f *fakeMarketReader) GetByID(ctx context.Context, id string) (domain.Market, error) {
	return f.market, f.err
}

func (f *fakeMarketReader) GetBySlug(ctx context.Context, slug string) (domain.Market, error) {
	return f.market, f.err
}

func (f *fakeMarketReader) List(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []domain.Market{f.market}, nil
}

type fakeExecutor struct {
	quote   domain.QuoteResult
	receipt domain.TradeReceipt
	err     error
	lastCmd service.TradeCommand
}

func (f *fakeExecutor) Quote(ctx context.Context, marketID string, cmd service.TradeCommand) (domain.QuoteResult, error) {
	f.lastCmd = cmd
	return f.quote, f.err
}

func (f *fakeExecutor) Execute(ctx context.Context, marketID string, cmd service.TradeCommand) (domain.TradeReceipt, error) {
	f.lastCmd = cmd
	return f.receipt, f.err
}

type fakePoolSource struct {
	state     domain.PoolState
	err       error
	refreshes int
	syncs     int
}

func (f *fakePoolSource) Get(ctx context.Context, market domain.Market) (domain.PoolState, error) {
	return f.state, f.err
}

func (f *fakePoolSource) RefreshFromLedger(ctx context.Context, market domain.Market) (domain.PoolState, error) {
	f.refreshes++
	return f.state, f.err
}

func (f *fakePoolSource) SyncExternal(ctx context.Context, market domain.Market, state domain.PoolState) (domain.PoolState, error) {
	f.syncs++
	if f.err != nil {
		return domain.PoolState{}, f.err
	}
	f.state = state
	return state, nil
}

type fakeTradeReader struct {
	trades []domain.Trade
	err    error
}

func (f *fakeTradeReader) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Trade, error) {
	return f.trades, f.err
}

// --- market handler --------------------------------------------------------

func TestMarketHandler_GetMarket(t *testing.T) {
	reader := &fakeMarketReader{market: domain.Market{ID: "mkt-1", Slug: "btc-above-100k"}}
	h := handler.NewMarketHandler(&fakeLifecycle{}, reader, testLogger())

	req := jsonRequest(http.MethodGet, "/api/markets/mkt-1", "")
	req.SetPathValue("id", "mkt-1")
	rec := httptest.NewRecorder()
	h.GetMarket(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"slug":"btc-above-100k"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestMarketHandler_GetMarketNotFound(t *testing.T) {
	reader := &fakeMarketReader{err: domain.ErrNotFound}
	h := handler.NewMarketHandler(&fakeLifecycle{}, reader, testLogger())

	req := jsonRequest(http.MethodGet, "/api/markets/nope", "")
	req.SetPathValue("id", "nope")
	rec := httptest.NewRecorder()
	h.GetMarket(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestMarketHandler_CreateMarket(t *testing.T) {
	lc := &fakeLifecycle{market: domain.Market{ID: "mkt-1", State: domain.MarketStateDraft}}
	h := handler.NewMarketHandler(lc, &fakeMarketReader{}, testLogger())

	body := `{"ledger_id":42,"slug":"btc-above-100k","title":"BTC above 100k","outcomes":["yes","no"]}`
	rec := httptest.NewRecorder()
	h.CreateMarket(rec, jsonRequest(http.MethodPost, "/api/markets", body))

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"state":"draft"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestMarketHandler_CreateMarketRejectsBadBody(t *testing.T) {
	h := handler.NewMarketHandler(&fakeLifecycle{}, &fakeMarketReader{}, testLogger())

	rec := httptest.NewRecorder()
	h.CreateMarket(rec, jsonRequest(http.MethodPost, "/api/markets", `{"slug":`))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestMarketHandler_CreateMarketValidationMapsTo400(t *testing.T) {
	lc := &fakeLifecycle{err: domain.ErrInvalidRequest}
	h := handler.NewMarketHandler(lc, &fakeMarketReader{}, testLogger())

	rec := httptest.NewRecorder()
	h.CreateMarket(rec, jsonRequest(http.MethodPost, "/api/markets", `{"slug":"x"}`))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestMarketHandler_InvalidTransitionMapsTo409(t *testing.T) {
	lc := &fakeLifecycle{err: domain.ErrInvalidTransition}
	h := handler.NewMarketHandler(lc, &fakeMarketReader{}, testLogger())

	req := jsonRequest(http.MethodPost, "/api/markets/mkt-1/activate", "")
	req.SetPathValue("id", "mkt-1")
	rec := httptest.NewRecorder()
	h.Activate(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestMarketHandler_VoidPassesReason(t *testing.T) {
	lc := &fakeLifecycle{market: domain.Market{ID: "mkt-1", State: domain.MarketStateVoided}}
	h := handler.NewMarketHandler(lc, &fakeMarketReader{}, testLogger())

	req := jsonRequest(http.MethodPost, "/api/markets/mkt-1/void", `{"reason":"bad feed"}`)
	req.SetPathValue("id", "mkt-1")
	rec := httptest.NewRecorder()
	h.Void(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if lc.lastReason != "bad feed" {
		t.Errorf("reason = %q", lc.lastReason)
	}
}

// --- trade handler ---------------------------------------------------------

func TestTradeHandler_Quote(t *testing.T) {
	exec := &fakeExecutor{quote: domain.QuoteResult{
		Quote: domain.TradeQuote{FlowAmount: 2.80929804},
	}}
	h := handler.NewTradeHandler(exec, &fakeTradeReader{}, testLogger())

	req := jsonRequest(http.MethodPost, "/api/markets/mkt-1/quote", `{"outcome_index":0,"shares":5,"is_buy":true}`)
	req.SetPathValue("id", "mkt-1")
	rec := httptest.NewRecorder()
	h.Quote(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if exec.lastCmd.Shares != 5 || !exec.lastCmd.IsBuy {
		t.Errorf("cmd = %+v", exec.lastCmd)
	}
	if !strings.Contains(rec.Body.String(), `"flow_amount":2.80929804`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestTradeHandler_ExecutePassesSlippageCeiling(t *testing.T) {
	exec := &fakeExecutor{receipt: domain.TradeReceipt{TransactionID: "tx0001"}}
	h := handler.NewTradeHandler(exec, &fakeTradeReader{}, testLogger())

	body := `{"outcome_index":1,"shares":3,"is_buy":true,"max_flow_amount":2.5}`
	req := jsonRequest(http.MethodPost, "/api/markets/mkt-1/trades", body)
	req.SetPathValue("id", "mkt-1")
	rec := httptest.NewRecorder()
	h.ExecuteTrade(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if exec.lastCmd.MaxFlowAmount == nil || *exec.lastCmd.MaxFlowAmount != 2.5 {
		t.Errorf("max flow = %v", exec.lastCmd.MaxFlowAmount)
	}
}

func TestTradeHandler_ErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.ErrSlippageExceeded, http.StatusUnprocessableEntity},
		{domain.ErrPositionLimitExceeded, http.StatusUnprocessableEntity},
		{domain.ErrMarketNotTradable, http.StatusConflict},
		{domain.ErrLedgerUnavailable, http.StatusBadGateway},
		{domain.ErrNotFound, http.StatusNotFound},
	}

	for _, tc := range cases {
		h := handler.NewTradeHandler(&fakeExecutor{err: tc.err}, &fakeTradeReader{}, testLogger())

		req := jsonRequest(http.MethodPost, "/api/markets/mkt-1/trades", `{"outcome_index":0,"shares":1,"is_buy":true}`)
		req.SetPathValue("id", "mkt-1")
		rec := httptest.NewRecorder()
		h.ExecuteTrade(rec, req)

		if rec.Code != tc.want {
			t.Errorf("%v: status = %d, want %d", tc.err, rec.Code, tc.want)
		}
	}
}

// --- pool handler ----------------------------------------------------------

func TestPoolHandler_GetPoolState(t *testing.T) {
	reader := &fakeMarketReader{market: domain.Market{ID: "mkt-1", LedgerID: 42}}
	pool := &fakePoolSource{state: domain.PoolState{
		LiquidityParameter: 10,
		TotalLiquidity:     100,
		BVector:            []float64{0, 0},
		OutcomeSupply:      []float64{0, 0},
	}}
	h := handler.NewPoolHandler(reader, pool, testLogger())

	req := jsonRequest(http.MethodGet, "/api/markets/mkt-1/pool", "")
	req.SetPathValue("id", "mkt-1")
	rec := httptest.NewRecorder()
	h.GetPoolState(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"ledger_id":42`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestPoolHandler_RefreshLedgerUnavailableMapsTo502(t *testing.T) {
	reader := &fakeMarketReader{market: domain.Market{ID: "mkt-1", LedgerID: 42}}
	pool := &fakePoolSource{err: domain.ErrLedgerUnavailable}
	h := handler.NewPoolHandler(reader, pool, testLogger())

	req := jsonRequest(http.MethodPost, "/api/markets/mkt-1/pool/refresh", "")
	req.SetPathValue("id", "mkt-1")
	rec := httptest.NewRecorder()
	h.RefreshPoolState(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	if pool.refreshes != 1 {
		t.Errorf("refreshes = %d, want 1", pool.refreshes)
	}
}

func TestTradeHandler_ListTrades(t *testing.T) {
	reader := &fakeTradeReader{trades: []domain.Trade{
		{ID: "t1", MarketID: "mkt-1"},
		{ID: "t2", MarketID: "mkt-1"},
	}}
	h := handler.NewTradeHandler(&fakeExecutor{}, reader, testLogger())

	req := jsonRequest(http.MethodGet, "/api/markets/mkt-1/trades?limit=10", "")
	req.SetPathValue("id", "mkt-1")
	rec := httptest.NewRecorder()
	h.ListTrades(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"limit":10`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}
