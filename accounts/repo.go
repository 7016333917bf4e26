package accounts

import "context"

// Repo persists linked-account metadata. The relational implementation
// lives with the rest of the management backend; this module only
// depends on the contract.
type Repo interface {
	Upsert(ctx context.Context, account LinkedAccount) error
	ListByOwner(ctx context.Context, ownerUserID string) ([]LinkedAccount, error)
	Delete(ctx context.Context, ownerUserID, provider string) error
}
