package vault

import (
	"crypto/rand"
	"encoding/base64"
	"sync"
	"time"

	"github.com/pkg/errors"
)

const sessionTokenLength = 32

// Registry tracks live vault unlock sessions. It is the sole owner of
// session lifetimes: construct one at process start and inject it into
// whatever needs an unlock check. Expired entries are evicted on sight
// and by the background reaper, never merely rejected.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	sessionTTL time.Duration
	nowTime    func() time.Time

	reapDone chan struct{}
	reapOnce sync.Once
}

// RegistryOption defines a function type to modify the Registry instance.
type RegistryOption func(*Registry)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) RegistryOption {
	return func(r *Registry) {
		r.nowTime = nowFunc
	}
}

// WithSessionTTL overrides the default session lifetime.
func WithSessionTTL(ttl time.Duration) RegistryOption {
	return func(r *Registry) {
		r.sessionTTL = ttl
	}
}

func NewRegistry(options ...RegistryOption) *Registry {
	r := &Registry{
		sessions:   make(map[string]*Session),
		sessionTTL: 30 * time.Minute,
		nowTime:    time.Now,
		reapDone:   make(chan struct{}),
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// CreateSession registers a fresh unlock session and returns its token.
func (r *Registry) CreateSession(ownerUserID string, method UnlockMethod) (string, error) {
	if ownerUserID == "" {
		return "", errors.New("[Registry.CreateSession] ownerUserID is required")
	}

	bytes := make([]byte, sessionTokenLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", errors.Wrap(err, "[Registry.CreateSession] rand.Read")
	}
	token := base64.RawURLEncoding.EncodeToString(bytes)

	now := r.nowTime()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[token] = &Session{
		Token:       token,
		OwnerUserID: ownerUserID,
		Method:      method,
		UnlockedAt:  now,
		ExpiresAt:   now.Add(r.sessionTTL),
	}
	return token, nil
}

// Validate reports whether token is a live session owned by
// expectedOwner. An expired entry found here is evicted as a side
// effect.
func (r *Registry) Validate(token, expectedOwnerUserID string) bool {
	if token == "" || expectedOwnerUserID == "" {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[token]
	if !ok {
		return false
	}
	if !r.nowTime().Before(session.ExpiresAt) {
		delete(r.sessions, token)
		return false
	}
	return session.OwnerUserID == expectedOwnerUserID
}

// Get returns a copy of the session for token if it is still live.
func (r *Registry) Get(token string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[token]
	if !ok {
		return Session{}, false
	}
	if !r.nowTime().Before(session.ExpiresAt) {
		delete(r.sessions, token)
		return Session{}, false
	}
	return *session, true
}

// Extend resets the expiry of a live session to now + TTL. Extension
// never resurrects an expired or unknown session.
func (r *Registry) Extend(token string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[token]
	if !ok {
		return false
	}
	now := r.nowTime()
	if !now.Before(session.ExpiresAt) {
		delete(r.sessions, token)
		return false
	}
	session.ExpiresAt = now.Add(r.sessionTTL)
	return true
}

// Revoke removes a session unconditionally (explicit lock or logout).
func (r *Registry) Revoke(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, token)
}

// Reap removes every session past its expiry and returns how many were
// removed.
func (r *Registry) Reap() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.nowTime()
	removed := 0
	for token, session := range r.sessions {
		if !now.Before(session.ExpiresAt) {
			delete(r.sessions, token)
			removed++
		}
	}
	return removed
}

// StartReaper runs Reap on a fixed interval until Stop is called,
// bounding memory even when stale tokens are never presented again.
func (r *Registry) StartReaper(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.Reap()
			case <-r.reapDone:
				return
			}
		}
	}()
}

func (r *Registry) Stop() {
	r.reapOnce.Do(func() { close(r.reapDone) })
}

// Len reports the number of tracked sessions, expired or not.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
