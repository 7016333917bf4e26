package vault_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jomafilms/openclaw-multitenant/vault"
)

const testOwner = "user-1"

func newTestRegistry(t *testing.T, now *time.Time) *vault.Registry {
	t.Helper()
	return vault.NewRegistry(
		vault.WithSessionTTL(30*time.Minute),
		vault.WithNowTime(func() time.Time { return *now }),
	)
}

func TestRegistry_CreateAndValidate(t *testing.T) {
	now := time.Now()
	registry := newTestRegistry(t, &now)

	token, err := registry.CreateSession(testOwner, vault.UnlockMethodPassword)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	t.Run("valid for the owner", func(t *testing.T) {
		require.True(t, registry.Validate(token, testOwner))
	})

	t.Run("invalid for a different owner", func(t *testing.T) {
		require.False(t, registry.Validate(token, "user-2"))
	})

	t.Run("invalid for an unknown token", func(t *testing.T) {
		require.False(t, registry.Validate("no-such-token", testOwner))
	})

	t.Run("distinct tokens per session", func(t *testing.T) {
		other, err := registry.CreateSession(testOwner, vault.UnlockMethodBiometric)
		require.NoError(t, err)
		require.NotEqual(t, token, other)
	})

	t.Run("requires an owner", func(t *testing.T) {
		_, err := registry.CreateSession("", vault.UnlockMethodPassword)
		require.Error(t, err)
	})
}

func TestRegistry_Expiry(t *testing.T) {
	now := time.Now()
	registry := newTestRegistry(t, &now)

	token, err := registry.CreateSession(testOwner, vault.UnlockMethodPassword)
	require.NoError(t, err)

	now = now.Add(30*time.Minute + time.Second)

	t.Run("expired session fails validation and is evicted", func(t *testing.T) {
		require.False(t, registry.Validate(token, testOwner))
		require.Equal(t, 0, registry.Len())
	})

	t.Run("extend cannot resurrect an expired session", func(t *testing.T) {
		require.False(t, registry.Extend(token))
		require.False(t, registry.Validate(token, testOwner))
	})
}

func TestRegistry_Extend(t *testing.T) {
	now := time.Now()
	registry := newTestRegistry(t, &now)

	token, err := registry.CreateSession(testOwner, vault.UnlockMethodPassword)
	require.NoError(t, err)

	// 20 minutes in, still valid; extend resets the clock.
	now = now.Add(20 * time.Minute)
	require.True(t, registry.Extend(token))

	// 25 more minutes would have expired the original window.
	now = now.Add(25 * time.Minute)
	require.True(t, registry.Validate(token, testOwner))

	// Extension is explicit only: validation alone never moved expiry.
	now = now.Add(6 * time.Minute)
	require.False(t, registry.Validate(token, testOwner))
}

func TestRegistry_Revoke(t *testing.T) {
	now := time.Now()
	registry := newTestRegistry(t, &now)

	token, err := registry.CreateSession(testOwner, vault.UnlockMethodPassword)
	require.NoError(t, err)

	registry.Revoke(token)
	require.False(t, registry.Validate(token, testOwner))
	require.False(t, registry.Extend(token))
}

func TestRegistry_Reap(t *testing.T) {
	now := time.Now()
	registry := newTestRegistry(t, &now)

	expired, err := registry.CreateSession(testOwner, vault.UnlockMethodPassword)
	require.NoError(t, err)

	now = now.Add(31 * time.Minute)
	live, err := registry.CreateSession(testOwner, vault.UnlockMethodPassword)
	require.NoError(t, err)

	removed := registry.Reap()
	require.Equal(t, 1, removed)
	require.Equal(t, 1, registry.Len())
	require.False(t, registry.Validate(expired, testOwner))
	require.True(t, registry.Validate(live, testOwner))
}
