package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/backitlabs/backit-oracle/internal/domain"
)

// unlockLua deletes a lock key only if its value matches the caller's unique
// token, so one worker cannot release a lock a slower worker still holds.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// CallLock implements domain.CallLocker using Redis SETNX with a TTL and a
// Lua-based conditional unlock. It keeps multiple worker replicas from
// running the same call's pipeline simultaneously; the store's conditional
// claim remains the correctness guarantee.
type CallLock struct {
	rdb      *redis.Client
	unlockSc *redis.Script
}

// NewCallLock creates a CallLock backed by the given Client.
func NewCallLock(c *Client) *CallLock {
	return &CallLock{
		rdb:      c.Underlying(),
		unlockSc: redis.NewScript(unlockLua),
	}
}

func lockKey(callID int64) string {
	return "settle:" + strconv.FormatInt(callID, 10)
}

// Acquire attempts to obtain the per-call lock with the specified TTL. On
// success it returns an unlock function that is safe to call multiple times.
// It returns domain.ErrLockHeld if another worker owns the lock.
func (l *CallLock) Acquire(ctx context.Context, callID int64, ttl time.Duration) (func(), error) {
	token := uuid.New().String()
	key := lockKey(callID)

	ok, err := l.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock for call %d: %w", callID, err)
	}
	if !ok {
		return nil, domain.ErrLockHeld
	}

	released := false
	unlock := func() {
		if released {
			return
		}
		released = true

		// Background context so unlock succeeds even after the caller's
		// context is cancelled.
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = l.unlockSc.Run(unlockCtx, l.rdb, []string{key}, token).Err()
	}

	return unlock, nil
}

// Compile-time interface check.
var _ domain.CallLocker = (*CallLock)(nil)
