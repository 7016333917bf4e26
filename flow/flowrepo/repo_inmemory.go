package flowrepo

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/jomafilms/openclaw-multitenant/internal/errors"
)

var _ Repo = (*InMemoryRepo)(nil)

type entry struct {
	value     []byte
	expiresAt time.Time
}

// InMemoryRepo is a thread-safe in-process implementation of the Repo
// interface. Expiry is enforced at read time, so a record past its TTL
// is never returned even if the sweeper has not run yet; the sweeper
// exists only to bound memory for records nobody reads back.
type InMemoryRepo struct {
	mu      sync.Mutex
	entries map[string]entry
	nowTime func() time.Time

	sweepDone chan struct{}
	sweepOnce sync.Once
}

type InMemoryRepoOption func(*InMemoryRepo)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) InMemoryRepoOption {
	return func(r *InMemoryRepo) {
		r.nowTime = nowFunc
	}
}

func NewInMemoryRepo(options ...InMemoryRepoOption) *InMemoryRepo {
	r := &InMemoryRepo{
		entries:   make(map[string]entry),
		nowTime:   time.Now,
		sweepDone: make(chan struct{}),
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

func (r *InMemoryRepo) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return apperrors.ErrInvalidRequest
	}
	stored := make([]byte, len(value))
	copy(stored, value)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[key] = entry{value: stored, expiresAt: r.nowTime().Add(ttl)}
	return nil
}

func (r *InMemoryRepo) TakeOnce(_ context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, apperrors.ErrInvalidRequest
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[key]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	delete(r.entries, key)

	if !r.nowTime().Before(e.expiresAt) {
		return nil, apperrors.ErrNotFound
	}
	return e.value, nil
}

func (r *InMemoryRepo) SweepExpired(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.nowTime()
	removed := 0
	for key, e := range r.entries {
		if !now.Before(e.expiresAt) {
			delete(r.entries, key)
			removed++
		}
	}
	return removed, nil
}

// StartSweeper runs SweepExpired on a fixed interval until Stop is
// called. The interval should be well below the smallest TTL written
// to the store.
func (r *InMemoryRepo) StartSweeper(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				_, _ = r.SweepExpired(context.Background())
			case <-r.sweepDone:
				return
			}
		}
	}()
}

func (r *InMemoryRepo) Stop() {
	r.sweepOnce.Do(func() { close(r.sweepDone) })
}

// Len reports the number of live entries, expired or not.
func (r *InMemoryRepo) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
