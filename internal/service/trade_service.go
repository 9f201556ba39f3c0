// Package service contains the orchestrators that tie stores, the pricing
// engine, the ledger, and the broadcast bus together.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MixasV/werpool/internal/domain"
	"github.com/MixasV/werpool/internal/ledger"
	"github.com/MixasV/werpool/internal/lmsr"
)

// PoolStore is the pool-state collaborator used by the orchestrators.
type PoolStore interface {
	Get(ctx context.Context, marketID string, ledgerID uint64) (domain.PoolState, error)
	RefreshFromLedger(ctx context.Context, marketID string, ledgerID uint64) (domain.PoolState, error)
	SyncExternal(ctx context.Context, marketID string, ledgerID uint64, state domain.PoolState) (domain.PoolState, error)
	ApplyDelta(ctx context.Context, marketID string, ledgerID uint64, current domain.PoolState, quote domain.TradeQuote) (domain.PoolState, error)
}

// LedgerSubmitter submits signed transactions to the settlement network.
type LedgerSubmitter interface {
	Submit(ctx context.Context, req ledger.TransactionRequest) (ledger.TransactionResult, error)
}

// TradingConfig carries the orchestrator's operating parameters. Signer and
// network are injected here once at construction, not read from the
// environment per call.
type TradingConfig struct {
	MaxPositionPerMarket float64
	Signer               string
	Network              string
}

// TradeCommand is one execute or quote request as received from the API.
type TradeCommand struct {
	OutcomeIndex       int
	Shares             float64
	IsBuy              bool
	Signer             string   // empty means the service signer
	MaxFlowAmount      *float64 // optional slippage ceiling on the flow amount
	BonusCollectibleID string   // optional collectible reserved for the trade
}

// TradeService prices and executes trades against live markets. A per-market
// mutex covers each execution from the state read through the delta
// application, so two concurrent trades on one market can never price against
// the same snapshot.
type TradeService struct {
	markets   domain.MarketStore
	trades    domain.TradeStore
	txlogs    domain.TransactionLogStore
	pool      PoolStore
	submitter LedgerSubmitter
	bus       domain.Broadcaster
	analytics domain.Analytics
	bonus     domain.BonusLocker
	cfg       TradingConfig
	logger    *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewTradeService creates a TradeService.
func NewTradeService(
	markets domain.MarketStore,
	trades domain.TradeStore,
	txlogs domain.TransactionLogStore,
	pool PoolStore,
	submitter LedgerSubmitter,
	bus domain.Broadcaster,
	analytics domain.Analytics,
	bonus domain.BonusLocker,
	cfg TradingConfig,
	logger *slog.Logger,
) *TradeService {
	return &TradeService{
		markets:   markets,
		trades:    trades,
		txlogs:    txlogs,
		pool:      pool,
		submitter: submitter,
		bus:       bus,
		analytics: analytics,
		bonus:     bonus,
		cfg:       cfg,
		logger:    logger,
		locks:     make(map[string]*sync.Mutex),
	}
}

func (s *TradeService) lockFor(marketID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[marketID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[marketID] = l
	}
	return l
}

func (s *TradeService) signer(cmd TradeCommand) string {
	if cmd.Signer != "" {
		return cmd.Signer
	}
	return s.cfg.Signer
}

// Quote prices a trade without executing it and attaches a position advisory
// for the signer.
func (s *TradeService) Quote(ctx context.Context, marketID string, cmd TradeCommand) (domain.QuoteResult, error) {
	market, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return domain.QuoteResult{}, err
	}
	if _, ok := market.OutcomeByIndex(cmd.OutcomeIndex); !ok {
		return domain.QuoteResult{}, fmt.Errorf("%w: outcome index %d out of range", domain.ErrInvalidRequest, cmd.OutcomeIndex)
	}

	state, err := s.pool.Get(ctx, market.ID, market.LedgerID)
	if err != nil {
		return domain.QuoteResult{}, err
	}

	quote, err := lmsr.Quote(state, domain.TradeRequest{
		OutcomeIndex: cmd.OutcomeIndex,
		Shares:       cmd.Shares,
		IsBuy:        cmd.IsBuy,
	})
	if err != nil {
		return domain.QuoteResult{}, err
	}

	result := domain.QuoteResult{Quote: quote}

	position, err := s.positionInfo(ctx, market.ID, s.signer(cmd), quote, cmd.IsBuy)
	if err != nil {
		// The advisory is best effort; the quote itself stands.
		s.logger.WarnContext(ctx, "trade: position advisory failed",
			slog.String("market_id", market.ID),
			slog.String("error", err.Error()),
		)
	} else {
		result.Position = &position
	}
	return result, nil
}

// Execute prices and settles one trade. The quote that is submitted to the
// ledger is the same value later applied to the pool; on ledger failure no
// local state changes.
func (s *TradeService) Execute(ctx context.Context, marketID string, cmd TradeCommand) (domain.TradeReceipt, error) {
	market, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return domain.TradeReceipt{}, err
	}
	if !market.State.Tradable() {
		return domain.TradeReceipt{}, fmt.Errorf("%w: market %s is %s", domain.ErrMarketNotTradable, market.ID, market.State)
	}
	outcome, ok := market.OutcomeByIndex(cmd.OutcomeIndex)
	if !ok {
		return domain.TradeReceipt{}, fmt.Errorf("%w: outcome index %d out of range", domain.ErrInvalidRequest, cmd.OutcomeIndex)
	}

	signer := s.signer(cmd)

	lock := s.lockFor(market.ID)
	lock.Lock()
	defer lock.Unlock()

	state, err := s.pool.Get(ctx, market.ID, market.LedgerID)
	if err != nil {
		return domain.TradeReceipt{}, err
	}

	quote, err := lmsr.Quote(state, domain.TradeRequest{
		OutcomeIndex: cmd.OutcomeIndex,
		Shares:       cmd.Shares,
		IsBuy:        cmd.IsBuy,
	})
	if err != nil {
		return domain.TradeReceipt{}, err
	}

	if cmd.MaxFlowAmount != nil && quote.FlowAmount > *cmd.MaxFlowAmount {
		return domain.TradeReceipt{}, fmt.Errorf("%w: flow %.8f exceeds ceiling %.8f",
			domain.ErrSlippageExceeded, quote.FlowAmount, *cmd.MaxFlowAmount)
	}

	if cmd.IsBuy {
		net, err := s.trades.NetPosition(ctx, market.ID, signer)
		if err != nil {
			return domain.TradeReceipt{}, fmt.Errorf("trade: net position: %w", err)
		}
		if net+quote.FlowAmount > s.cfg.MaxPositionPerMarket {
			return domain.TradeReceipt{}, fmt.Errorf("%w: position %.8f + %.8f exceeds cap %.8f",
				domain.ErrPositionLimitExceeded, net, quote.FlowAmount, s.cfg.MaxPositionPerMarket)
		}
	}

	if cmd.BonusCollectibleID != "" {
		if err := s.bonus.Lock(ctx, market.ID, signer, cmd.BonusCollectibleID); err != nil {
			return domain.TradeReceipt{}, fmt.Errorf("trade: reserve collectible: %w", err)
		}
	}

	result, err := s.submitter.Submit(ctx, ledger.TransactionRequest{
		Path:      ledger.ExecuteTradeTx,
		Arguments: executeTradeArgs(market.LedgerID, cmd.OutcomeIndex, cmd.IsBuy, quote),
		Signer:    signer,
		Network:   s.cfg.Network,
	})
	if err != nil {
		if cmd.BonusCollectibleID != "" {
			if relErr := s.bonus.Release(ctx, market.ID, signer, domain.BonusLockCancelled); relErr != nil {
				s.logger.ErrorContext(ctx, "trade: cancel collectible reservation failed",
					slog.String("market_id", market.ID),
					slog.String("error", relErr.Error()),
				)
			}
		}
		return domain.TradeReceipt{}, err
	}

	newState, err := s.pool.ApplyDelta(ctx, market.ID, market.LedgerID, state, quote)
	if err != nil {
		// The ledger has already sealed the trade; the local view will catch
		// up on the next refresh.
		s.logger.ErrorContext(ctx, "trade: apply delta failed after sealed transaction",
			slog.String("market_id", market.ID),
			slog.String("transaction_id", result.TransactionID),
			slog.String("error", err.Error()),
		)
		return domain.TradeReceipt{}, err
	}

	trade := domain.Trade{
		ID:            uuid.NewString(),
		MarketID:      market.ID,
		MarketSlug:    market.Slug,
		OutcomeID:     outcome.ID,
		OutcomeLabel:  outcome.Label,
		OutcomeIndex:  cmd.OutcomeIndex,
		Shares:        quote.OutcomeAmount,
		FlowAmount:    quote.FlowAmount,
		IsBuy:         cmd.IsBuy,
		Probabilities: quote.Probabilities,
		MaxFlowAmount: cmd.MaxFlowAmount,
		TransactionID: result.TransactionID,
		Signer:        signer,
		Network:       s.cfg.Network,
		CreatedAt:     time.Now().UTC(),
	}

	s.runPostCommit(ctx, market, trade, quote, newState, cmd)

	return domain.TradeReceipt{
		Trade:         trade,
		Quote:         quote,
		PoolState:     newState,
		TransactionID: result.TransactionID,
		Signer:        signer,
		Network:       s.cfg.Network,
	}, nil
}

// runPostCommit runs the ordered side effects of a committed trade. Each hook
// failure is logged and swallowed; the sealed transaction and applied delta
// are never unwound.
func (s *TradeService) runPostCommit(ctx context.Context, market domain.Market, trade domain.Trade, quote domain.TradeQuote, state domain.PoolState, cmd TradeCommand) {
	hooks := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"transaction_log", func(ctx context.Context) error {
			return s.txlogs.Insert(ctx, domain.TransactionLog{
				ID:            uuid.NewString(),
				MarketID:      market.ID,
				Type:          domain.TxExecuteTrade,
				Status:        "sealed",
				TransactionID: trade.TransactionID,
				Signer:        trade.Signer,
				Network:       trade.Network,
				Payload: map[string]any{
					"outcome_index": trade.OutcomeIndex,
					"shares":        trade.Shares,
					"flow_amount":   trade.FlowAmount,
					"is_buy":        trade.IsBuy,
				},
				CreatedAt: trade.CreatedAt,
			})
		}},
		{"trade_record", func(ctx context.Context) error {
			return s.trades.Insert(ctx, trade)
		}},
		{"bonus_consume", func(ctx context.Context) error {
			if cmd.BonusCollectibleID == "" {
				return nil
			}
			return s.bonus.Release(ctx, market.ID, trade.Signer, domain.BonusLockConsumed)
		}},
		{"analytics", func(ctx context.Context) error {
			return s.analytics.RecordTrade(ctx, domain.TradeSample{
				TradeID:      trade.ID,
				MarketID:     market.ID,
				MarketSlug:   market.Slug,
				OutcomeID:    trade.OutcomeID,
				OutcomeIndex: trade.OutcomeIndex,
				OutcomeLabel: trade.OutcomeLabel,
				Probability:  quote.Probabilities[trade.OutcomeIndex],
				Shares:       trade.Shares,
				FlowAmount:   trade.FlowAmount,
				IsBuy:        trade.IsBuy,
				OccurredAt:   trade.CreatedAt,
			})
		}},
		{"trade_broadcast", func(ctx context.Context) error {
			return s.bus.PublishTrade(ctx, trade)
		}},
		{"pool_broadcast", func(ctx context.Context) error {
			return s.bus.PublishPoolState(ctx, domain.PoolStateUpdate{
				MarketID:  market.ID,
				Slug:      market.Slug,
				State:     state,
				Timestamp: trade.CreatedAt,
			})
		}},
	}

	for _, hook := range hooks {
		if err := hook.fn(ctx); err != nil {
			s.logger.WarnContext(ctx, "trade: post-commit hook failed",
				slog.String("hook", hook.name),
				slog.String("market_id", market.ID),
				slog.String("trade_id", trade.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (s *TradeService) positionInfo(ctx context.Context, marketID, signer string, quote domain.TradeQuote, isBuy bool) (domain.PositionInfo, error) {
	net, err := s.trades.NetPosition(ctx, marketID, signer)
	if err != nil {
		return domain.PositionInfo{}, err
	}
	info := domain.PositionInfo{
		CurrentPosition:   net,
		MaxPosition:       s.cfg.MaxPositionPerMarket,
		RemainingCapacity: s.cfg.MaxPositionPerMarket - net,
	}
	if isBuy && net+quote.FlowAmount > s.cfg.MaxPositionPerMarket {
		info.WouldExceedLimit = true
	}
	return info, nil
}

func executeTradeArgs(ledgerID uint64, outcomeIndex int, isBuy bool, quote domain.TradeQuote) []ledger.Value {
	newB := make([]ledger.Value, len(quote.NewBVector))
	for i, v := range quote.NewBVector {
		newB[i] = ledger.Fix64(v)
	}
	newSupply := make([]ledger.Value, len(quote.NewOutcomeSupply))
	for i, v := range quote.NewOutcomeSupply {
		newSupply[i] = ledger.UFix64(v)
	}
	return []ledger.Value{
		ledger.UInt64(ledgerID),
		ledger.Int(int64(outcomeIndex)),
		ledger.UFix64(quote.FlowAmount),
		ledger.UFix64(quote.OutcomeAmount),
		ledger.Array(newB...),
		ledger.UFix64(quote.NewTotalLiquidity),
		ledger.Array(newSupply...),
		ledger.Bool(isBuy),
	}
}
