package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MixasV/werpool/internal/domain"
)

const poolStateTTL = 5 * time.Minute

// PoolCache implements domain.PoolCache using Redis string keys holding
// JSON-serialized pool state.
//
// Key schema:
//
//	pool:{ledgerID} - JSON-encoded domain.PoolState
type PoolCache struct {
	rdb *redis.Client
}

// NewPoolCache creates a PoolCache backed by the given Client.
func NewPoolCache(c *Client) *PoolCache {
	return &PoolCache{rdb: c.Underlying()}
}

func poolKey(ledgerID uint64) string {
	return "pool:" + strconv.FormatUint(ledgerID, 10)
}

// Get retrieves the cached pool state for a market.
// It returns domain.ErrNotFound on a cache miss.
func (pc *PoolCache) Get(ctx context.Context, ledgerID uint64) (domain.PoolState, error) {
	data, err := pc.rdb.Get(ctx, poolKey(ledgerID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.PoolState{}, domain.ErrNotFound
		}
		return domain.PoolState{}, fmt.Errorf("redis: get pool state %d: %w", ledgerID, err)
	}

	var state domain.PoolState
	if err := json.Unmarshal(data, &state); err != nil {
		return domain.PoolState{}, fmt.Errorf("redis: unmarshal pool state %d: %w", ledgerID, err)
	}
	return state, nil
}

// Set stores the pool state with a 5-minute TTL.
func (pc *PoolCache) Set(ctx context.Context, ledgerID uint64, state domain.PoolState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("redis: marshal pool state %d: %w", ledgerID, err)
	}
	if err := pc.rdb.Set(ctx, poolKey(ledgerID), data, poolStateTTL).Err(); err != nil {
		return fmt.Errorf("redis: set pool state %d: %w", ledgerID, err)
	}
	return nil
}

// Invalidate removes the cached pool state.
func (pc *PoolCache) Invalidate(ctx context.Context, ledgerID uint64) error {
	if err := pc.rdb.Del(ctx, poolKey(ledgerID)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate pool state %d: %w", ledgerID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.PoolCache = (*PoolCache)(nil)
