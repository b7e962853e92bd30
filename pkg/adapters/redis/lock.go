package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/CentralLabFacilities/bonsai-sub000/pkg/ports"
	"github.com/google/uuid"
	backend "github.com/redis/go-redis/v9"
)

var (
	// ErrLockAcquire is returned when the lock cannot be acquired.
	ErrLockAcquire = errors.New("failed to acquire distributed lock")
)

// DefaultRetryInterval is the polling interval while a lease is held elsewhere.
const DefaultRetryInterval = 100 * time.Millisecond

// releaseScript deletes the lease only if it still holds our token.
var releaseScript = backend.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// extendScript refreshes the lease TTL only if it still holds our token.
var extendScript = backend.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
else
	return 0
end
`)

// ErrLeaseLost is reported when a held lease was taken over or expired.
var ErrLeaseLost = errors.New("distributed lease lost")

// Locker implements ports.DistributedLocker using Redis.
type Locker struct {
	client *backend.Client
	prefix string
	retry  time.Duration
}

var _ ports.DistributedLocker = (*Locker)(nil)

// NewLocker creates a new Redis locker.
func NewLocker(client *backend.Client, prefix string) *Locker {
	return &Locker{
		client: client,
		prefix: prefix,
		retry:  DefaultRetryInterval,
	}
}

// WithRetryInterval sets the polling interval.
func (l *Locker) WithRetryInterval(d time.Duration) *Locker {
	l.retry = d
	return l
}

// Lock acquires the lease for key using SET NX PX with a unique token and
// polls until it succeeds or ctx is done.
func (l *Locker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	unlock, _, err := l.acquire(ctx, key, ttl)
	return unlock, err
}

// Hold acquires the lease like Lock and keeps it alive by refreshing its
// TTL every ttl/3 until unlocked. lost is called once if a refresh finds
// the lease gone.
func (l *Locker) Hold(ctx context.Context, key string, ttl time.Duration, lost func(error)) (ports.UnlockFunc, error) {
	release, held, err := l.acquire(ctx, key, ttl)
	if err != nil {
		return nil, err
	}

	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(max(ttl/3, time.Millisecond))
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				n, err := extendScript.Run(context.Background(), l.client, []string{held.key}, held.token, ttl.Milliseconds()).Int()
				switch {
				case err != nil:
					err = fmt.Errorf("%w: %s: %w", ErrLeaseLost, key, err)
				case n == 0:
					err = fmt.Errorf("%w: %s", ErrLeaseLost, key)
				}
				if err != nil {
					if lost != nil {
						lost(err)
					}
					return
				}
			}
		}
	}()

	var once sync.Once
	return func(ctx context.Context) error {
		once.Do(func() { close(done) })
		<-stopped
		return release(ctx)
	}, nil
}

type lease struct {
	key   string
	token string
}

func (l *Locker) acquire(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, lease, error) {
	lockKey := l.prefix + "lock:" + key
	token := uuid.NewString()

	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, lockKey, token, ttl).Result()
		if err != nil {
			return nil, lease{}, fmt.Errorf("%w: %w", ErrLockAcquire, err)
		}
		if ok {
			return func(ctx context.Context) error {
				return releaseScript.Run(ctx, l.client, []string{lockKey}, token).Err()
			}, lease{lockKey, token}, nil
		}

		select {
		case <-ctx.Done():
			return nil, lease{}, fmt.Errorf("%w: %w", ErrLockAcquire, ctx.Err())
		case <-ticker.C:
		}
	}
}
