package vault

import "time"

// UnlockMethod records how the user proved their identity when the
// vault was unlocked.
type UnlockMethod string

const (
	UnlockMethodPassword  UnlockMethod = "password"
	UnlockMethodBiometric UnlockMethod = "biometric"
)

// Session is a time-boxed proof that a user recently unlocked their
// vault. It carries no key material; the agent holds that.
type Session struct {
	Token       string
	OwnerUserID string
	Method      UnlockMethod
	UnlockedAt  time.Time
	ExpiresAt   time.Time
}
