package flowrepo

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/jomafilms/openclaw-multitenant/internal/errors"
)

var _ Repo = (*FallbackRepo)(nil)

// PrimaryRepo is a durable backend that can also report its own
// liveness.
type PrimaryRepo interface {
	Repo
	Prober
}

// FallbackRepo writes through to a durable primary and falls back to
// an in-process store only when the primary is confirmed unavailable.
// State is never merged between the two backends: a flow written under
// one backend and consumed after a switch fails closed. Liveness is
// re-checked on every operation that needs it, never cached.
type FallbackRepo struct {
	primary  PrimaryRepo
	fallback Repo
}

func NewFallbackRepo(primary PrimaryRepo, fallback Repo) *FallbackRepo {
	return &FallbackRepo{primary: primary, fallback: fallback}
}

func (r *FallbackRepo) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	err := r.primary.Put(ctx, key, value, ttl)
	if err == nil {
		return nil
	}
	if !r.primaryDown(ctx, err) {
		return err
	}
	log.Warn().Msg("durable flow store unavailable, writing to in-process fallback")
	return r.fallback.Put(ctx, key, value, ttl)
}

func (r *FallbackRepo) TakeOnce(ctx context.Context, key string) ([]byte, error) {
	value, err := r.primary.TakeOnce(ctx, key)
	if err == nil {
		return value, nil
	}
	// A plain miss on a live primary is final. Consulting the fallback
	// here would let a record written under the other backend resurface
	// and reopen the replay window.
	if apperrors.Is(err, apperrors.ErrNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if !r.primaryDown(ctx, err) {
		return nil, err
	}
	log.Warn().Msg("durable flow store unavailable, reading in-process fallback")
	return r.fallback.TakeOnce(ctx, key)
}

func (r *FallbackRepo) SweepExpired(ctx context.Context) (int, error) {
	// Only the in-process side needs sweeping; the primary expires
	// keys natively.
	return r.fallback.SweepExpired(ctx)
}

// primaryDown confirms an operation failure really means the primary
// is unreachable, using a fresh probe rather than the failed call
// alone.
func (r *FallbackRepo) primaryDown(ctx context.Context, opErr error) bool {
	if !apperrors.Is(opErr, apperrors.ErrBackendUnavailable) {
		return false
	}
	return r.primary.Probe(ctx) != nil
}
