package accounts

import "time"

// LinkedAccount is the only artifact a completed flow leaves behind in
// this tier: which provider account a user connected, and at what
// scope level. No token or credential fields exist here on purpose.
type LinkedAccount struct {
	OwnerUserID string
	Provider    string
	Email       string
	ScopeLevel  *string
	LinkedAt    time.Time
}
