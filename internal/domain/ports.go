package domain

import (
	"context"
	"time"
)

// PoolStateUpdate is published after every pool-state change.
type PoolStateUpdate struct {
	MarketID  string    `json:"market_id"`
	Slug      string    `json:"slug"`
	State     PoolState `json:"state"`
	Timestamp time.Time `json:"timestamp"`
}

// Broadcaster fans events out to connected clients. Delivery is at-most-once
// and best-effort; persistence remains the source of truth, so a dropped
// broadcast is never a correctness failure.
type Broadcaster interface {
	PublishPoolState(ctx context.Context, update PoolStateUpdate) error
	PublishTrade(ctx context.Context, trade Trade) error
	PublishTransactionLog(ctx context.Context, entry TransactionLog) error
	PublishAnalytics(ctx context.Context, snapshot AnalyticsSnapshot) error
}

// BusMessage is one received pub/sub payload together with the concrete
// channel it arrived on. Pattern subscriptions report the matched channel,
// not the pattern, so consumers can route per market.
type BusMessage struct {
	Channel string
	Payload []byte
}

// SignalBus is the subscribe side of the broadcast bus. The returned channel
// is closed when the context is cancelled.
type SignalBus interface {
	Subscribe(ctx context.Context, channel string) (<-chan BusMessage, error)
}

// PoolCache is the hot cache of per-market pricing state.
// Get returns ErrNotFound on a cache miss.
type PoolCache interface {
	Get(ctx context.Context, ledgerID uint64) (PoolState, error)
	Set(ctx context.Context, ledgerID uint64, state PoolState) error
	Invalidate(ctx context.Context, ledgerID uint64) error
}

// BonusLockStatus is the terminal status of a released collectible lock.
type BonusLockStatus string

const (
	BonusLockCancelled BonusLockStatus = "cancelled"
	BonusLockConsumed  BonusLockStatus = "consumed"
)

// BonusLocker reserves a collectible for a bonus attached to a trade. The
// reservation must be released back to cancelled when the trade's ledger
// submission fails.
type BonusLocker interface {
	Lock(ctx context.Context, marketID, address, collectibleID string) error
	Release(ctx context.Context, marketID, address string, status BonusLockStatus) error
}

// BlobWriter stores immutable archive objects.
type BlobWriter interface {
	Put(ctx context.Context, key, contentType string, data []byte) error
}
