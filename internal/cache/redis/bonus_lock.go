package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MixasV/werpool/internal/domain"
)

const bonusLockTTL = 2 * time.Minute

// releaseLua deletes the reservation and records its terminal status in one
// atomic step, so a crash between the two cannot leave a consumed
// collectible looking reserved.
const releaseLua = `
redis.call('DEL', KEYS[1])
redis.call('SET', KEYS[2], ARGV[1], 'EX', ARGV[2])
return 1
`

// BonusLocker implements domain.BonusLocker using Redis SETNX reservations
// with a TTL safety net. A reservation that is never released expires on its
// own rather than pinning the collectible forever.
//
// Key schema:
//
//	bonus:{marketID}:{address}        - reserved collectible ID
//	bonus:{marketID}:{address}:status - terminal status of the last release
type BonusLocker struct {
	rdb       *redis.Client
	releaseSc *redis.Script
}

// NewBonusLocker creates a BonusLocker backed by the given Client.
func NewBonusLocker(c *Client) *BonusLocker {
	return &BonusLocker{
		rdb:       c.Underlying(),
		releaseSc: redis.NewScript(releaseLua),
	}
}

func bonusKey(marketID, address string) string {
	return "bonus:" + marketID + ":" + address
}

// Lock reserves a collectible for the address's in-flight trade.
// It returns domain.ErrLockHeld when a reservation already exists.
func (bl *BonusLocker) Lock(ctx context.Context, marketID, address, collectibleID string) error {
	ok, err := bl.rdb.SetNX(ctx, bonusKey(marketID, address), collectibleID, bonusLockTTL).Result()
	if err != nil {
		return fmt.Errorf("redis: lock bonus for %s: %w", address, err)
	}
	if !ok {
		return domain.ErrLockHeld
	}
	return nil
}

// Release ends the reservation with the given terminal status. Releasing a
// reservation that has already expired is not an error.
func (bl *BonusLocker) Release(ctx context.Context, marketID, address string, status domain.BonusLockStatus) error {
	key := bonusKey(marketID, address)
	err := bl.releaseSc.Run(ctx, bl.rdb,
		[]string{key, key + ":status"},
		string(status), int(bonusLockTTL.Seconds()),
	).Err()
	if err != nil {
		return fmt.Errorf("redis: release bonus for %s: %w", address, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.BonusLocker = (*BonusLocker)(nil)
