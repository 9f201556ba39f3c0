package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and time filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// MarketStore persists market aggregates and their settlement records.
type MarketStore interface {
	Create(ctx context.Context, market Market) error
	GetByID(ctx context.Context, id string) (Market, error)
	GetByLedgerID(ctx context.Context, ledgerID uint64) (Market, error)
	GetBySlug(ctx context.Context, slug string) (Market, error)
	List(ctx context.Context, opts ListOpts) ([]Market, error)
	UpdateState(ctx context.Context, id string, state MarketState, closedAt *time.Time) error
	SetLiquidityPool(ctx context.Context, id string, pool LiquidityPool) error
	UpsertSettlement(ctx context.Context, settlement Settlement) error
	AddPatrolSignal(ctx context.Context, signal PatrolSignal) error
	DeletePatrolSignal(ctx context.Context, marketID, signalID string) error
}

// WorkflowStore persists workflow actions attached to markets.
type WorkflowStore interface {
	Add(ctx context.Context, action WorkflowAction) error
	ListPending(ctx context.Context, marketID string, typ WorkflowActionType) ([]WorkflowAction, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]WorkflowAction, error)
	MarkExecuted(ctx context.Context, id string, metadata map[string]any) error
	MarkFailed(ctx context.Context, id string, metadata map[string]any) error
}

// PoolStateRecordStore is the durable record of per-market pricing state.
// Get returns ErrNotFound when no record exists and ErrCorruptState when a
// stored vector fails to decode.
type PoolStateRecordStore interface {
	Get(ctx context.Context, ledgerID uint64) (PoolState, error)
	Save(ctx context.Context, marketID string, ledgerID uint64, state PoolState) error
}

// TradeStore persists the append-only trade history.
type TradeStore interface {
	Insert(ctx context.Context, trade Trade) error
	ListByMarket(ctx context.Context, marketID string, opts ListOpts) ([]Trade, error)
	// NetPosition returns the signer's buy-minus-sell ledger amount across
	// all trades in the market.
	NetPosition(ctx context.Context, marketID, signer string) (float64, error)
}

// TransactionLogStore persists the append-only ledger transaction log.
type TransactionLogStore interface {
	Insert(ctx context.Context, entry TransactionLog) error
	ListByMarket(ctx context.Context, marketID string, opts ListOpts) ([]TransactionLog, error)
}
