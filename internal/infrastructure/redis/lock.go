package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	domainErrors "github.com/cassiomorais/checkout-reconciler/internal/domain/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Lua script for safe lock release (only owner can release)
var releaseLockScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// DistributedLock is a single SET NX PX lock owned by a random token.
type DistributedLock struct {
	client   redis.Cmdable
	key      string
	value    string
	ttl      time.Duration
	acquired bool
}

// NewDistributedLock creates a new distributed lock
func NewDistributedLock(client redis.Cmdable, key string, ttl time.Duration) *DistributedLock {
	return &DistributedLock{
		client: client,
		key:    "lock:" + key,
		value:  uuid.New().String(),
		ttl:    ttl,
	}
}

// Acquire attempts to acquire the lock once.
func (l *DistributedLock) Acquire(ctx context.Context) (bool, error) {
	success, err := l.client.SetNX(ctx, l.key, l.value, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire %s: %w", l.key, err)
	}
	l.acquired = success
	return success, nil
}

// AcquireWithin polls until the lock is taken or wait has elapsed.
func (l *DistributedLock) AcquireWithin(ctx context.Context, wait, retryDelay time.Duration) error {
	deadline := time.Now().Add(wait)
	for {
		acquired, err := l.Acquire(ctx)
		if err != nil {
			return err
		}
		if acquired {
			return nil
		}
		if time.Now().Add(retryDelay).After(deadline) {
			return fmt.Errorf("%s held elsewhere: %w", l.key, domainErrors.ErrLockAcquisitionFailed)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryDelay):
		}
	}
}

// Release deletes the key if this lock still owns it.
func (l *DistributedLock) Release(ctx context.Context) error {
	if !l.acquired {
		return nil
	}

	result, err := releaseLockScript.Run(ctx, l.client, []string{l.key}, l.value).Result()
	if err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}

	val, ok := result.(int64)
	if !ok || val == 0 {
		return fmt.Errorf("%s: %w", l.key, domainErrors.ErrLockNotHeld)
	}

	l.acquired = false
	return nil
}

// IsAcquired returns whether the lock is acquired
func (l *DistributedLock) IsAcquired() bool {
	return l.acquired
}

// OrderLocker hands out per-order locks so the redirect return, the webhook
// and a manual re-query of one order do not run at the same time.
type OrderLocker struct {
	client     redis.Cmdable
	ttl        time.Duration
	wait       time.Duration
	retryDelay time.Duration
}

func NewOrderLocker(client redis.Cmdable, ttl, wait time.Duration) *OrderLocker {
	return &OrderLocker{
		client:     client,
		ttl:        ttl,
		wait:       wait,
		retryDelay: 100 * time.Millisecond,
	}
}

// OrderLockKey is the redis key suffix used for an order.
func OrderLockKey(orderID int64) string {
	return "order:" + strconv.FormatInt(orderID, 10)
}

// Lock blocks for up to the configured wait. The returned function releases
// the lock; it fails with ErrLockNotHeld if the TTL ran out first.
func (o *OrderLocker) Lock(ctx context.Context, orderID int64) (func(context.Context) error, error) {
	l := NewDistributedLock(o.client, OrderLockKey(orderID), o.ttl)
	if err := l.AcquireWithin(ctx, o.wait, o.retryDelay); err != nil {
		return nil, err
	}
	return l.Release, nil
}
