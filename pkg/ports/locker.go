package ports

import (
	"context"
	"time"
)

// UnlockFunc is a function that releases a distributed lock.
type UnlockFunc func(ctx context.Context) error

// DistributedLocker grants an exclusive control lease, so only one process
// drives the charts of a given robot at a time.
type DistributedLocker interface {
	// Lock blocks until the lease for key is acquired or ctx is canceled.
	// The returned UnlockFunc MUST be called to release it.
	Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}
