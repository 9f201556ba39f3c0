package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/MixasV/werpool/internal/domain"
)

// Channel name builders shared by the bus and its subscribers.
func PoolChannel(marketID string) string      { return "ch:pool:" + marketID }
func TradeChannel(marketID string) string     { return "ch:trade:" + marketID }
func TxLogChannel(marketID string) string     { return "ch:txlog:" + marketID }
func AnalyticsChannel(marketID string) string { return "ch:analytics:" + marketID }

// SignalBus implements domain.Broadcaster over Redis Pub/Sub. One process
// publishes, every process with connected clients fans the message out, so
// broadcasts survive horizontal scaling of the API layer.
type SignalBus struct {
	rdb *redis.Client
}

// NewSignalBus creates a SignalBus backed by the given Client.
func NewSignalBus(c *Client) *SignalBus {
	return &SignalBus{rdb: c.Underlying()}
}

// PublishPoolState announces a pool-state change on the market's pool channel.
func (sb *SignalBus) PublishPoolState(ctx context.Context, update domain.PoolStateUpdate) error {
	return sb.publishJSON(ctx, PoolChannel(update.MarketID), "pool_state", update)
}

// PublishTrade announces an executed trade on the market's trade channel.
func (sb *SignalBus) PublishTrade(ctx context.Context, trade domain.Trade) error {
	return sb.publishJSON(ctx, TradeChannel(trade.MarketID), "trade", trade)
}

// PublishTransactionLog announces a recorded ledger transaction.
func (sb *SignalBus) PublishTransactionLog(ctx context.Context, entry domain.TransactionLog) error {
	return sb.publishJSON(ctx, TxLogChannel(entry.MarketID), "transaction_log", entry)
}

// PublishAnalytics announces an updated analytics snapshot.
func (sb *SignalBus) PublishAnalytics(ctx context.Context, snapshot domain.AnalyticsSnapshot) error {
	return sb.publishJSON(ctx, AnalyticsChannel(snapshot.MarketID), "analytics", snapshot)
}

type envelope struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

func (sb *SignalBus) publishJSON(ctx context.Context, channel, event string, payload any) error {
	data, err := json.Marshal(envelope{Event: event, Payload: payload})
	if err != nil {
		return fmt.Errorf("redis: marshal %s event: %w", event, err)
	}
	if err := sb.rdb.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe creates a Redis Pub/Sub subscription and returns a read-only
// channel of received messages. The subscription is closed when the context
// is cancelled; the returned channel is closed at that point as well.
func (sb *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan domain.BusMessage, error) {
	var pubsub *redis.PubSub
	if hasPattern(channel) {
		pubsub = sb.rdb.PSubscribe(ctx, channel)
	} else {
		pubsub = sb.rdb.Subscribe(ctx, channel)
	}

	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}

	out := make(chan domain.BusMessage, 128)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- domain.BusMessage{Channel: msg.Channel, Payload: []byte(msg.Payload)}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// hasPattern returns true when the Redis channel includes glob-style
// wildcards, in which case PSubscribe must be used instead of Subscribe.
func hasPattern(channel string) bool {
	return strings.ContainsAny(channel, "*?[")
}

// Compile-time interface checks.
var (
	_ domain.Broadcaster = (*SignalBus)(nil)
	_ domain.SignalBus   = (*SignalBus)(nil)
)
