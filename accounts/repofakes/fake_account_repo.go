package repofakes

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/jomafilms/openclaw-multitenant/accounts"
)

var _ accounts.Repo = (*FakeAccountRepo)(nil)

type FakeAccountRepo struct {
	lock     sync.RWMutex
	accounts map[string]map[string]accounts.LinkedAccount // ownerUserID -> provider -> account

	UpsertErr error // returned by Upsert when set
}

func NewFakeAccountRepo() *FakeAccountRepo {
	return &FakeAccountRepo{
		accounts: make(map[string]map[string]accounts.LinkedAccount),
	}
}

func (r *FakeAccountRepo) Upsert(_ context.Context, account accounts.LinkedAccount) error {
	if r.UpsertErr != nil {
		return r.UpsertErr
	}
	if account.OwnerUserID == "" || account.Provider == "" {
		return errors.New("owner and provider are required")
	}

	r.lock.Lock()
	defer r.lock.Unlock()
	if _, ok := r.accounts[account.OwnerUserID]; !ok {
		r.accounts[account.OwnerUserID] = make(map[string]accounts.LinkedAccount)
	}
	r.accounts[account.OwnerUserID][account.Provider] = account
	return nil
}

func (r *FakeAccountRepo) ListByOwner(_ context.Context, ownerUserID string) ([]accounts.LinkedAccount, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	list := make([]accounts.LinkedAccount, 0, len(r.accounts[ownerUserID]))
	for _, account := range r.accounts[ownerUserID] {
		list = append(list, account)
	}
	return list, nil
}

func (r *FakeAccountRepo) Delete(_ context.Context, ownerUserID, provider string) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	owned, ok := r.accounts[ownerUserID]
	if !ok {
		return nil
	}
	delete(owned, provider)
	if len(owned) == 0 {
		delete(r.accounts, ownerUserID)
	}
	return nil
}

// Get is a test helper for asserting on stored metadata.
func (r *FakeAccountRepo) Get(ownerUserID, provider string) (accounts.LinkedAccount, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	account, ok := r.accounts[ownerUserID][provider]
	return account, ok
}
