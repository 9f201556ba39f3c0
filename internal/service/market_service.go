package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MixasV/werpool/internal/domain"
	"github.com/MixasV/werpool/internal/ledger"
)

// LifecycleConfig carries the lifecycle service's signing identity.
type LifecycleConfig struct {
	Signer  string
	Network string
}

// CreateMarketParams describes a new market. Markets start in draft.
type CreateMarketParams struct {
	LedgerID    uint64
	Slug        string
	Title       string
	Description string
	Category    domain.MarketCategory
	Tags        []string
	Outcomes    []string
	Schedule    domain.Schedule
}

// CreatePoolParams describes the on-ledger pool backing a market.
type CreatePoolParams struct {
	LiquidityParameter float64
	InitialLiquidity   float64
	TokenSymbol        string
	FeeBps             int
}

// PatrolSignalParams describes a risk marker raised against a market.
type PatrolSignalParams struct {
	Issuer    string
	Severity  domain.PatrolSignalSeverity
	Code      string
	Weight    float64
	Notes     string
	ExpiresAt *time.Time
}

// MarketService drives market lifecycle transitions. Every ledger-affecting
// transition submits a transaction, records a transaction-log row, broadcasts
// it, and marks matching pending workflow actions executed.
type MarketService struct {
	markets   domain.MarketStore
	workflow  domain.WorkflowStore
	txlogs    domain.TransactionLogStore
	pool      PoolStore
	submitter LedgerSubmitter
	bus       domain.Broadcaster
	cfg       LifecycleConfig
	logger    *slog.Logger
}

// NewMarketService creates a MarketService.
func NewMarketService(
	markets domain.MarketStore,
	workflow domain.WorkflowStore,
	txlogs domain.TransactionLogStore,
	pool PoolStore,
	submitter LedgerSubmitter,
	bus domain.Broadcaster,
	cfg LifecycleConfig,
	logger *slog.Logger,
) *MarketService {
	return &MarketService{
		markets:   markets,
		workflow:  workflow,
		txlogs:    txlogs,
		pool:      pool,
		submitter: submitter,
		bus:       bus,
		cfg:       cfg,
		logger:    logger,
	}
}

// Create registers a new draft market with its outcomes and, when a schedule
// is present, the workflow actions that will open and lock it.
func (s *MarketService) Create(ctx context.Context, params CreateMarketParams) (domain.Market, error) {
	if strings.TrimSpace(params.Slug) == "" || strings.TrimSpace(params.Title) == "" {
		return domain.Market{}, fmt.Errorf("%w: slug and title are required", domain.ErrInvalidRequest)
	}
	if len(params.Outcomes) < 2 {
		return domain.Market{}, fmt.Errorf("%w: a market needs at least two outcomes", domain.ErrInvalidRequest)
	}

	market := domain.Market{
		ID:          uuid.NewString(),
		LedgerID:    params.LedgerID,
		Slug:        params.Slug,
		Title:       params.Title,
		Description: params.Description,
		State:       domain.MarketStateDraft,
		Category:    params.Category,
		Tags:        params.Tags,
		Schedule:    params.Schedule,
		CreatedAt:   time.Now().UTC(),
	}
	for i, label := range params.Outcomes {
		market.Outcomes = append(market.Outcomes, domain.Outcome{
			ID:     uuid.NewString(),
			Index:  i,
			Label:  label,
			Status: domain.OutcomeActive,
		})
	}
	if params.Schedule.ScheduledStartAt != nil {
		market.Workflow = append(market.Workflow, domain.WorkflowAction{
			ID:          uuid.NewString(),
			MarketID:    market.ID,
			Type:        domain.WorkflowOpen,
			Status:      domain.WorkflowScheduled,
			Description: "open market at scheduled start",
			TriggersAt:  params.Schedule.ScheduledStartAt,
		})
	}
	if params.Schedule.TradingLockAt != nil {
		market.Workflow = append(market.Workflow, domain.WorkflowAction{
			ID:          uuid.NewString(),
			MarketID:    market.ID,
			Type:        domain.WorkflowClose,
			Status:      domain.WorkflowScheduled,
			Description: "close market at trading lock",
			TriggersAt:  params.Schedule.TradingLockAt,
		})
	}

	if err := s.markets.Create(ctx, market); err != nil {
		return domain.Market{}, err
	}
	return market, nil
}

// CreatePool creates the on-ledger liquidity pool for a draft market and
// pulls the resulting pool state into the local view.
func (s *MarketService) CreatePool(ctx context.Context, marketID string, params CreatePoolParams) (domain.Market, error) {
	market, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return domain.Market{}, err
	}
	if market.State != domain.MarketStateDraft {
		return domain.Market{}, fmt.Errorf("%w: pool can only be created for a draft market, not %s",
			domain.ErrInvalidState, market.State)
	}
	if params.LiquidityParameter <= 0 || params.InitialLiquidity <= 0 {
		return domain.Market{}, fmt.Errorf("%w: liquidity parameter and initial liquidity must be positive",
			domain.ErrInvalidRequest)
	}

	result, err := s.submitter.Submit(ctx, ledger.TransactionRequest{
		Path: ledger.CreatePoolTx,
		Arguments: []ledger.Value{
			ledger.UInt64(market.LedgerID),
			ledger.Int(int64(len(market.Outcomes))),
			ledger.UFix64(params.LiquidityParameter),
			ledger.UFix64(params.InitialLiquidity),
		},
		Signer:  s.cfg.Signer,
		Network: s.cfg.Network,
	})
	if err != nil {
		return domain.Market{}, err
	}

	pool := domain.LiquidityPool{
		ID:             uuid.NewString(),
		TokenSymbol:    params.TokenSymbol,
		TotalLiquidity: params.InitialLiquidity,
		FeeBps:         params.FeeBps,
	}
	if err := s.markets.SetLiquidityPool(ctx, market.ID, pool); err != nil {
		return domain.Market{}, err
	}
	market.LiquidityPool = &pool

	if state, err := s.pool.RefreshFromLedger(ctx, market.ID, market.LedgerID); err != nil {
		s.logger.WarnContext(ctx, "market: pool refresh after create failed",
			slog.String("market_id", market.ID),
			slog.String("error", err.Error()),
		)
	} else if err := s.bus.PublishPoolState(ctx, domain.PoolStateUpdate{
		MarketID:  market.ID,
		Slug:      market.Slug,
		State:     state,
		Timestamp: time.Now().UTC(),
	}); err != nil {
		s.logger.WarnContext(ctx, "market: pool broadcast after create failed",
			slog.String("market_id", market.ID),
			slog.String("error", err.Error()),
		)
	}

	s.recordTransaction(ctx, market.ID, domain.TxCreatePool, result.TransactionID, map[string]any{
		"liquidity_parameter": params.LiquidityParameter,
		"initial_liquidity":   params.InitialLiquidity,
	})
	return market, nil
}

// Activate moves a draft or suspended market to live.
func (s *MarketService) Activate(ctx context.Context, marketID string) (domain.Market, error) {
	return s.transition(ctx, marketID, domain.MarketStateLive,
		ledger.ActivateMarketTx, domain.TxActivate, domain.WorkflowOpen, nil)
}

// Suspend pauses trading on a live market.
func (s *MarketService) Suspend(ctx context.Context, marketID string) (domain.Market, error) {
	return s.transition(ctx, marketID, domain.MarketStateSuspended,
		ledger.SuspendMarketTx, domain.TxSuspend, domain.WorkflowSuspend, nil)
}

// Close ends trading on a live or suspended market.
func (s *MarketService) Close(ctx context.Context, marketID string) (domain.Market, error) {
	return s.transition(ctx, marketID, domain.MarketStateClosed,
		ledger.CloseMarketTx, domain.TxClose, domain.WorkflowClose, nil)
}

// Void cancels a market from any non-terminal state.
func (s *MarketService) Void(ctx context.Context, marketID, reason string) (domain.Market, error) {
	return s.transition(ctx, marketID, domain.MarketStateVoided,
		ledger.VoidMarketTx, domain.TxVoid, domain.WorkflowVoid,
		[]ledger.Value{ledger.OptionalString(reason)})
}

// Settle resolves a closed market to one of its outcomes.
func (s *MarketService) Settle(ctx context.Context, marketID, outcomeID, notes string) (domain.Market, error) {
	market, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return domain.Market{}, err
	}
	if !market.State.CanTransition(domain.MarketStateSettled) {
		return domain.Market{}, fmt.Errorf("%w: cannot settle a %s market",
			domain.ErrInvalidTransition, market.State)
	}
	if !market.HasOutcome(outcomeID) {
		return domain.Market{}, fmt.Errorf("%w: outcome %s does not belong to market %s",
			domain.ErrInvalidRequest, outcomeID, market.ID)
	}

	return s.settleWith(ctx, market, outcomeID, notes, "")
}

// OverrideSettlement replaces an existing settlement. It requires the market
// to already be settled and a non-empty reason.
func (s *MarketService) OverrideSettlement(ctx context.Context, marketID, outcomeID, notes, reason string) (domain.Market, error) {
	if strings.TrimSpace(reason) == "" {
		return domain.Market{}, fmt.Errorf("%w: settlement override requires a reason", domain.ErrInvalidRequest)
	}

	market, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return domain.Market{}, err
	}
	if market.State != domain.MarketStateSettled {
		return domain.Market{}, fmt.Errorf("%w: override is only valid on a settled market, not %s",
			domain.ErrInvalidTransition, market.State)
	}
	if market.Settlement == nil {
		return domain.Market{}, fmt.Errorf("%w: market %s has no settlement to override",
			domain.ErrInvalidState, market.ID)
	}
	if !market.HasOutcome(outcomeID) {
		return domain.Market{}, fmt.Errorf("%w: outcome %s does not belong to market %s",
			domain.ErrInvalidRequest, outcomeID, market.ID)
	}

	return s.settleWith(ctx, market, outcomeID, notes, reason)
}

func (s *MarketService) settleWith(ctx context.Context, market domain.Market, outcomeID, notes, overrideReason string) (domain.Market, error) {
	path := ledger.SettleMarketTx
	txType := domain.TxSettle
	if overrideReason != "" {
		path = ledger.OverrideSettlementTx
		txType = domain.TxOverrideSettlement
	}

	result, err := s.submitter.Submit(ctx, ledger.TransactionRequest{
		Path: path,
		Arguments: []ledger.Value{
			ledger.UInt64(market.LedgerID),
			ledger.String(outcomeID),
			ledger.OptionalString(overrideReason),
		},
		Signer:  s.cfg.Signer,
		Network: s.cfg.Network,
	})
	if err != nil {
		return domain.Market{}, err
	}

	settlement := domain.Settlement{
		ID:                uuid.NewString(),
		MarketID:          market.ID,
		ResolvedOutcomeID: outcomeID,
		TxID:              result.TransactionID,
		SettledAt:         time.Now().UTC(),
		Notes:             notes,
		OverrideReason:    overrideReason,
	}
	if market.Settlement != nil {
		settlement.ID = market.Settlement.ID
	}
	if err := s.markets.UpsertSettlement(ctx, settlement); err != nil {
		return domain.Market{}, err
	}

	if market.State != domain.MarketStateSettled {
		if err := s.markets.UpdateState(ctx, market.ID, domain.MarketStateSettled, nil); err != nil {
			return domain.Market{}, err
		}
	}
	market.State = domain.MarketStateSettled
	market.Settlement = &settlement

	s.recordTransaction(ctx, market.ID, txType, result.TransactionID, map[string]any{
		"outcome_id":      outcomeID,
		"override_reason": overrideReason,
	})
	s.markWorkflowExecuted(ctx, market.ID, domain.WorkflowSettle, result.TransactionID)
	return market, nil
}

// RecordPatrolSignal raises a risk marker against the market, on ledger and
// locally.
func (s *MarketService) RecordPatrolSignal(ctx context.Context, marketID string, params PatrolSignalParams) (domain.PatrolSignal, error) {
	market, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return domain.PatrolSignal{}, err
	}
	if market.State.Terminal() {
		return domain.PatrolSignal{}, fmt.Errorf("%w: market %s is %s",
			domain.ErrInvalidState, market.ID, market.State)
	}

	signal := domain.PatrolSignal{
		ID:        uuid.NewString(),
		MarketID:  market.ID,
		Issuer:    params.Issuer,
		Severity:  params.Severity,
		Code:      params.Code,
		Weight:    params.Weight,
		Notes:     params.Notes,
		CreatedAt: time.Now().UTC(),
		ExpiresAt: params.ExpiresAt,
	}

	result, err := s.submitter.Submit(ctx, ledger.TransactionRequest{
		Path: ledger.RecordPatrolTx,
		Arguments: []ledger.Value{
			ledger.UInt64(market.LedgerID),
			ledger.String(signal.Code),
			ledger.String(string(signal.Severity)),
			ledger.UFix64(signal.Weight),
		},
		Signer:  s.cfg.Signer,
		Network: s.cfg.Network,
	})
	if err != nil {
		return domain.PatrolSignal{}, err
	}

	if err := s.markets.AddPatrolSignal(ctx, signal); err != nil {
		return domain.PatrolSignal{}, err
	}
	s.recordTransaction(ctx, market.ID, domain.TxRecordPatrol, result.TransactionID, map[string]any{
		"signal_id": signal.ID,
		"code":      signal.Code,
		"severity":  signal.Severity,
	})
	return signal, nil
}

// ClearPatrolSignal removes a previously recorded risk marker.
func (s *MarketService) ClearPatrolSignal(ctx context.Context, marketID, signalID string) error {
	market, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return err
	}

	result, err := s.submitter.Submit(ctx, ledger.TransactionRequest{
		Path: ledger.ClearPatrolTx,
		Arguments: []ledger.Value{
			ledger.UInt64(market.LedgerID),
			ledger.String(signalID),
		},
		Signer:  s.cfg.Signer,
		Network: s.cfg.Network,
	})
	if err != nil {
		return err
	}

	if err := s.markets.DeletePatrolSignal(ctx, market.ID, signalID); err != nil {
		return err
	}
	s.recordTransaction(ctx, market.ID, domain.TxClearPatrol, result.TransactionID, map[string]any{
		"signal_id": signalID,
	})
	return nil
}

// RunDueActions executes workflow actions whose trigger time has passed.
// Failures mark the action failed and move on; one bad action never stalls
// the batch.
func (s *MarketService) RunDueActions(ctx context.Context, now time.Time, limit int) error {
	due, err := s.workflow.ListDue(ctx, now, limit)
	if err != nil {
		return err
	}

	for _, action := range due {
		var runErr error
		switch action.Type {
		case domain.WorkflowOpen:
			_, runErr = s.Activate(ctx, action.MarketID)
		case domain.WorkflowSuspend:
			_, runErr = s.Suspend(ctx, action.MarketID)
		case domain.WorkflowClose:
			_, runErr = s.Close(ctx, action.MarketID)
		case domain.WorkflowVoid:
			_, runErr = s.Void(ctx, action.MarketID, "scheduled void")
		default:
			runErr = fmt.Errorf("%w: unknown workflow action type %q", domain.ErrInvalidState, action.Type)
		}

		if runErr != nil {
			s.logger.ErrorContext(ctx, "market: workflow action failed",
				slog.String("action_id", action.ID),
				slog.String("market_id", action.MarketID),
				slog.String("type", string(action.Type)),
				slog.String("error", runErr.Error()),
			)
			if err := s.workflow.MarkFailed(ctx, action.ID, map[string]any{"error": runErr.Error()}); err != nil {
				s.logger.ErrorContext(ctx, "market: mark workflow action failed",
					slog.String("action_id", action.ID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
	return nil
}

// transition moves the market to next, submitting the matching ledger
// transaction first. No local state changes when the submission fails.
func (s *MarketService) transition(
	ctx context.Context,
	marketID string,
	next domain.MarketState,
	txPath string,
	txType domain.TransactionType,
	wfType domain.WorkflowActionType,
	extraArgs []ledger.Value,
) (domain.Market, error) {
	market, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return domain.Market{}, err
	}
	if !market.State.CanTransition(next) {
		return domain.Market{}, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, market.State, next)
	}

	args := append([]ledger.Value{ledger.UInt64(market.LedgerID)}, extraArgs...)
	result, err := s.submitter.Submit(ctx, ledger.TransactionRequest{
		Path:      txPath,
		Arguments: args,
		Signer:    s.cfg.Signer,
		Network:   s.cfg.Network,
	})
	if err != nil {
		return domain.Market{}, err
	}

	var closedAt *time.Time
	if next == domain.MarketStateClosed {
		now := time.Now().UTC()
		closedAt = &now
	}
	if err := s.markets.UpdateState(ctx, market.ID, next, closedAt); err != nil {
		return domain.Market{}, err
	}
	market.State = next
	if closedAt != nil {
		market.ClosedAt = closedAt
	}

	s.recordTransaction(ctx, market.ID, txType, result.TransactionID, nil)
	s.markWorkflowExecuted(ctx, market.ID, wfType, result.TransactionID)
	return market, nil
}

// recordTransaction appends a transaction-log row and broadcasts it. Both are
// post-commit effects; failures are logged, never returned.
func (s *MarketService) recordTransaction(ctx context.Context, marketID string, txType domain.TransactionType, transactionID string, payload map[string]any) {
	entry := domain.TransactionLog{
		ID:            uuid.NewString(),
		MarketID:      marketID,
		Type:          txType,
		Status:        "sealed",
		TransactionID: transactionID,
		Signer:        s.cfg.Signer,
		Network:       s.cfg.Network,
		Payload:       payload,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.txlogs.Insert(ctx, entry); err != nil {
		s.logger.WarnContext(ctx, "market: transaction log insert failed",
			slog.String("market_id", marketID),
			slog.String("type", string(txType)),
			slog.String("error", err.Error()),
		)
	}
	if err := s.bus.PublishTransactionLog(ctx, entry); err != nil {
		s.logger.WarnContext(ctx, "market: transaction log broadcast failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
	}
}

// markWorkflowExecuted flips matching pending actions to executed. Re-running
// a transition with no pending action left is a no-op.
func (s *MarketService) markWorkflowExecuted(ctx context.Context, marketID string, wfType domain.WorkflowActionType, transactionID string) {
	pending, err := s.workflow.ListPending(ctx, marketID, wfType)
	if err != nil {
		s.logger.WarnContext(ctx, "market: list pending workflow actions failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
		return
	}
	for _, action := range pending {
		if err := s.workflow.MarkExecuted(ctx, action.ID, map[string]any{"transaction_id": transactionID}); err != nil {
			s.logger.WarnContext(ctx, "market: mark workflow action executed failed",
				slog.String("action_id", action.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}
