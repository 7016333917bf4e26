package flowrepo

import (
	"context"
	"time"
)

// Repo is a token-keyed store for short-lived flow records. Values are
// opaque bytes stamped with a TTL; a record is handed to at most one
// caller via TakeOnce.
type Repo interface {
	// Put stores value under key for at most ttl.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// TakeOnce atomically retrieves and removes the value for key.
	// Returns apperrors.ErrNotFound when the key is absent or expired.
	TakeOnce(ctx context.Context, key string) ([]byte, error)
	// SweepExpired removes expired entries and returns how many were
	// removed. Backends with native per-key expiry treat this as a
	// no-op.
	SweepExpired(ctx context.Context) (int, error)
}

// Prober reports whether a backend is currently reachable. The result
// must reflect the backend's state now, not a cached answer.
type Prober interface {
	Probe(ctx context.Context) error
}
