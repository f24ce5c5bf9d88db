package lock

import (
	"context"
	"errors"
	"strings"
	"time"
)

const keyPrefix = "hris:lock"

// ErrNotAcquired is returned when another holder owns the key.
var ErrNotAcquired = errors.New("lock is held by another request")

// Locker is a best-effort mutual exclusion keyed by string. A lock expires
// after its TTL even if the holder never releases it.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, err error)
}

// Key joins parts under the shared lock prefix.
func Key(parts ...string) string {
	return keyPrefix + ":" + strings.Join(parts, ":")
}
