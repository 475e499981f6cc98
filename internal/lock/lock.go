package lock

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/modernalchemist/magic-sub000/internal/log"
	"github.com/modernalchemist/magic-sub000/internal/model"
)

// Locker is a TTL bounded mutex keyed by name. Implementations shared by several
// processes (e.g a database) make it a distributed lock.
type Locker interface {
	// TryLock acquires key for owner if it's free or expired, it doesn't wait.
	TryLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	// Release releases key only if owner holds it.
	Release(ctx context.Context, key, owner string) (bool, error)
}

// DeliveryLockConfig is the configuration for the delivery lock.
type DeliveryLockConfig struct {
	Locker Locker
	// AcquireTimeout is how long to wait for a held lock. Zero fails right away.
	AcquireTimeout time.Duration
	// RetryInterval is the interval between acquire attempts when waiting.
	RetryInterval time.Duration
	Logger        log.Logger
}

func (c *DeliveryLockConfig) defaults() error {
	if c.Locker == nil {
		return fmt.Errorf("locker is required")
	}
	if c.AcquireTimeout < 0 {
		return fmt.Errorf("acquire timeout can't be negative")
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = 50 * time.Millisecond
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "lock.DeliveryLock"})
	return nil
}

// DeliveryLock serializes the frame deliveries of the same sandbox.
type DeliveryLock struct {
	locker         Locker
	acquireTimeout time.Duration
	retryInterval  time.Duration
	logger         log.Logger
}

// NewDeliveryLock returns a new delivery lock.
func NewDeliveryLock(cfg DeliveryLockConfig) (*DeliveryLock, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &DeliveryLock{
		locker:         cfg.Locker,
		acquireTimeout: cfg.AcquireTimeout,
		retryInterval:  cfg.RetryInterval,
		logger:         cfg.Logger,
	}, nil
}

// WithLock runs fn holding the delivery lock of sandboxID. The lock is always
// released, even if fn panics. If the lock can't be acquired returns
// model.ErrConcurrentDelivery and fn is not run.
func (d *DeliveryLock) WithLock(ctx context.Context, sandboxID string, ttl time.Duration, fn func(ctx context.Context) error) (err error) {
	if sandboxID == "" {
		return fmt.Errorf("sandbox id is required: %w", model.ErrNotValid)
	}

	key := "delivery:" + sandboxID
	owner := ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()

	if err := d.acquire(ctx, key, owner, ttl); err != nil {
		return err
	}
	defer func() {
		// Use a fresh context, a cancelled one must not leave the lock held until it expires.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		ok, rErr := d.locker.Release(releaseCtx, key, owner)
		switch {
		case rErr != nil:
			d.logger.Errorf("Could not release lock %s: %s", key, rErr)
		case !ok:
			d.logger.Warningf("Lock %s expired before being released", key)
		}
	}()

	return fn(ctx)
}

func (d *DeliveryLock) acquire(ctx context.Context, key, owner string, ttl time.Duration) error {
	deadline := time.Now().Add(d.acquireTimeout)
	for {
		ok, err := d.locker.TryLock(ctx, key, owner, ttl)
		if err != nil {
			return fmt.Errorf("could not acquire lock %s: %w", key, err)
		}
		if ok {
			return nil
		}

		if d.acquireTimeout == 0 || time.Now().Add(d.retryInterval).After(deadline) {
			return fmt.Errorf("lock %s is held by another delivery: %w", key, model.ErrConcurrentDelivery)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("lock %s: %w: %w", key, model.ErrConcurrentDelivery, ctx.Err())
		case <-time.After(d.retryInterval):
		}
	}
}
