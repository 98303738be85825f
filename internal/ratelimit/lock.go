package ratelimit

import (
	"context"
	"errors"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// releaseIfOwner deletes the lock only while it still carries our token, so a
// lease that expired and was taken by another replica is left alone.
const releaseIfOwner = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

var ErrLockUnavailable = errors.New("resync_lock_unavailable")

// ResyncLock keeps two reconciliations of one order code apart across
// replicas. A lease lasts ResyncLockTTL.
type ResyncLock struct {
	client  *redis.Client
	release *redis.Script
}

// NewResyncLock returns nil without a redis client; payments then resync
// without cross-replica locking.
func NewResyncLock(client *redis.Client) *ResyncLock {
	if client == nil {
		return nil
	}
	return &ResyncLock{
		client:  client,
		release: redis.NewScript(releaseIfOwner),
	}
}

// Acquire takes the lease for orderCode. ok is false when another resync
// holds it.
func (l *ResyncLock) Acquire(ctx context.Context, orderCode int64) (token string, ok bool, err error) {
	if l == nil || l.client == nil {
		return "", false, ErrLockUnavailable
	}
	token = uuid.NewString()
	ok, err = l.client.SetNX(ctx, ResyncLockKey(orderCode), token, ResyncLockTTL).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

func (l *ResyncLock) Release(ctx context.Context, orderCode int64, token string) error {
	if l == nil || l.client == nil || token == "" {
		return nil
	}
	return l.release.Run(ctx, l.client, []string{ResyncLockKey(orderCode)}, token).Err()
}
