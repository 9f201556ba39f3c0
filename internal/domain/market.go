package domain

import "time"

// MarketState is the lifecycle state of a market. It is the single authority
// for whether trading and settlement operations are permitted.
type MarketState string

const (
	MarketStateDraft     MarketState = "draft"
	MarketStateLive      MarketState = "live"
	MarketStateSuspended MarketState = "suspended"
	MarketStateClosed    MarketState = "closed"
	MarketStateSettled   MarketState = "settled"
	MarketStateVoided    MarketState = "voided"
)

// Terminal reports whether no further transitions are possible from s,
// other than a settlement override on a settled market.
func (s MarketState) Terminal() bool {
	return s == MarketStateSettled || s == MarketStateVoided
}

// Tradable reports whether trade execution is permitted in state s.
func (s MarketState) Tradable() bool {
	return s == MarketStateLive
}

// CanTransition reports whether the lifecycle state machine permits moving
// from s to next. Voiding is allowed from any non-terminal state. A settled
// market can only be "re-settled" through the explicit override path, which
// callers must gate separately.
func (s MarketState) CanTransition(next MarketState) bool {
	switch next {
	case MarketStateLive:
		return s == MarketStateDraft || s == MarketStateSuspended
	case MarketStateSuspended:
		return s == MarketStateLive
	case MarketStateClosed:
		return s == MarketStateLive || s == MarketStateSuspended
	case MarketStateSettled:
		return s == MarketStateClosed
	case MarketStateVoided:
		return !s.Terminal()
	default:
		return false
	}
}

// MarketCategory classifies a market for downstream consumers.
type MarketCategory string

const (
	CategoryCrypto MarketCategory = "crypto"
	CategorySports MarketCategory = "sports"
	CategoryCustom MarketCategory = "custom"
)

// OutcomeStatus tracks the per-outcome status within a market.
type OutcomeStatus string

const (
	OutcomeActive    OutcomeStatus = "active"
	OutcomeSuspended OutcomeStatus = "suspended"
	OutcomeSettled   OutcomeStatus = "settled"
)

// Outcome is one tradable outcome of a market.
type Outcome struct {
	ID                 string        `json:"id"`
	Index              int           `json:"index"`
	Label              string        `json:"label"`
	Status             OutcomeStatus `json:"status"`
	ImpliedProbability float64       `json:"implied_probability"`
}

// Schedule holds the optional trading windows of a market.
type Schedule struct {
	ScheduledStartAt *time.Time `json:"scheduled_start_at,omitempty"`
	TradingLockAt    *time.Time `json:"trading_lock_at,omitempty"`
}

// LiquidityPool describes the on-ledger pool backing a market.
type LiquidityPool struct {
	ID             string  `json:"id"`
	TokenSymbol    string  `json:"token_symbol"`
	TotalLiquidity float64 `json:"total_liquidity"`
	FeeBps         int     `json:"fee_bps"`
}

// WorkflowActionType identifies a scheduled lifecycle side-effect.
type WorkflowActionType string

const (
	WorkflowOpen    WorkflowActionType = "open"
	WorkflowSuspend WorkflowActionType = "suspend"
	WorkflowClose   WorkflowActionType = "close"
	WorkflowSettle  WorkflowActionType = "settle"
	WorkflowVoid    WorkflowActionType = "void"
)

// WorkflowActionStatus tracks whether a workflow action has run.
type WorkflowActionStatus string

const (
	WorkflowPending   WorkflowActionStatus = "pending"
	WorkflowScheduled WorkflowActionStatus = "scheduled"
	WorkflowExecuted  WorkflowActionStatus = "executed"
	WorkflowFailed    WorkflowActionStatus = "failed"
)

// WorkflowAction is a pending or scheduled lifecycle side-effect tracked
// against a market, e.g. auto-open or auto-close.
type WorkflowAction struct {
	ID          string               `json:"id"`
	MarketID    string               `json:"market_id"`
	Type        WorkflowActionType   `json:"type"`
	Status      WorkflowActionStatus `json:"status"`
	Description string               `json:"description,omitempty"`
	TriggersAt  *time.Time           `json:"triggers_at,omitempty"`
	ExecutedAt  *time.Time           `json:"executed_at,omitempty"`
	Metadata    map[string]any       `json:"metadata,omitempty"`
}

// PatrolSignalSeverity grades risk/anomaly markers raised against a market.
type PatrolSignalSeverity string

const (
	PatrolInfo     PatrolSignalSeverity = "info"
	PatrolWarning  PatrolSignalSeverity = "warning"
	PatrolCritical PatrolSignalSeverity = "critical"
)

// PatrolSignal is a risk or anomaly marker recorded against a market.
type PatrolSignal struct {
	ID        string               `json:"id"`
	MarketID  string               `json:"market_id"`
	Issuer    string               `json:"issuer"`
	Severity  PatrolSignalSeverity `json:"severity"`
	Code      string               `json:"code"`
	Weight    float64              `json:"weight"`
	Notes     string               `json:"notes,omitempty"`
	CreatedAt time.Time            `json:"created_at"`
	ExpiresAt *time.Time           `json:"expires_at,omitempty"`
}

// Settlement records the resolved outcome of a market. At most one exists
// per market; it is replaceable only through the explicit override path,
// which must carry a non-empty reason.
type Settlement struct {
	ID                string    `json:"id"`
	MarketID          string    `json:"market_id"`
	ResolvedOutcomeID string    `json:"resolved_outcome_id"`
	TxID              string    `json:"tx_id"`
	SettledAt         time.Time `json:"settled_at"`
	Notes             string    `json:"notes,omitempty"`
	OverrideReason    string    `json:"override_reason,omitempty"`
}

// Market is the aggregate root for a prediction market.
type Market struct {
	ID            string           `json:"id"`
	LedgerID      uint64           `json:"ledger_id"` // numeric on-ledger market identifier
	Slug          string           `json:"slug"`
	Title         string           `json:"title"`
	Description   string           `json:"description,omitempty"`
	State         MarketState      `json:"state"`
	Category      MarketCategory   `json:"category"`
	Tags          []string         `json:"tags,omitempty"`
	Schedule      Schedule         `json:"schedule"`
	LiquidityPool *LiquidityPool   `json:"liquidity_pool,omitempty"`
	Outcomes      []Outcome        `json:"outcomes"`
	Workflow      []WorkflowAction `json:"workflow,omitempty"`
	Settlement    *Settlement      `json:"settlement,omitempty"`
	PatrolSignals []PatrolSignal   `json:"patrol_signals,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	ClosedAt      *time.Time       `json:"closed_at,omitempty"`
}

// OutcomeByIndex returns the outcome at the given index, or false when the
// index is out of bounds.
func (m *Market) OutcomeByIndex(idx int) (Outcome, bool) {
	if idx < 0 || idx >= len(m.Outcomes) {
		return Outcome{}, false
	}
	return m.Outcomes[idx], true
}

// HasOutcome reports whether the given outcome id belongs to the market.
func (m *Market) HasOutcome(outcomeID string) bool {
	for _, o := range m.Outcomes {
		if o.ID == outcomeID {
			return true
		}
	}
	return false
}

// TransactionType identifies the kind of ledger transaction recorded in the
// transaction log.
type TransactionType string

const (
	TxCreatePool         TransactionType = "create_pool"
	TxExecuteTrade       TransactionType = "execute_trade"
	TxActivate           TransactionType = "activate"
	TxSuspend            TransactionType = "suspend"
	TxClose              TransactionType = "close"
	TxVoid               TransactionType = "void"
	TxSettle             TransactionType = "settle"
	TxOverrideSettlement TransactionType = "override_settlement"
	TxRecordPatrol       TransactionType = "record_patrol_signal"
	TxClearPatrol        TransactionType = "clear_patrol_signal"
	TxArchiveTrades      TransactionType = "archive_trades"
)

// TransactionLog is an append-only record of a ledger transaction submitted
// on behalf of a market.
type TransactionLog struct {
	ID            string          `json:"id"`
	MarketID      string          `json:"market_id"`
	Type          TransactionType `json:"type"`
	Status        string          `json:"status"`
	TransactionID string          `json:"transaction_id,omitempty"`
	Signer        string          `json:"signer,omitempty"`
	Network       string          `json:"network,omitempty"`
	Payload       map[string]any  `json:"payload,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}
