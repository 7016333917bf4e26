package server_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jomafilms/openclaw-multitenant/accounts/repofakes"
	"github.com/jomafilms/openclaw-multitenant/agent"
	"github.com/jomafilms/openclaw-multitenant/audit/auditfakes"
	"github.com/jomafilms/openclaw-multitenant/flow"
	"github.com/jomafilms/openclaw-multitenant/flow/flowrepo"
	"github.com/jomafilms/openclaw-multitenant/internal/config"
	"github.com/jomafilms/openclaw-multitenant/server"
	"github.com/jomafilms/openclaw-multitenant/vault"
)

const (
	testUserID   = "user-1"
	testProvider = "google_drive"
)

// fakeAgent is a stand-in agent service behind a real HTTP listener.
type fakeAgent struct {
	verifyStatus  int
	exchangeCalls int
}

func (a *fakeAgent) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /containers/{user}/oauth/pkce/init", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{
			"flow_token":            "agent-flow-1",
			"code_challenge":        "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM",
			"code_challenge_method": "S256",
		})
	})
	mux.HandleFunc("POST /containers/{user}/oauth/pkce/exchange", func(w http.ResponseWriter, _ *http.Request) {
		a.exchangeCalls++
		_ = json.NewEncoder(w).Encode(map[string]string{
			"provider_account_email": "john.doe@example.com",
		})
	})
	mux.HandleFunc("POST /containers/{user}/vault/challenge", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"challenge":"nonce-1","kdf":"argon2id"}`))
	})
	mux.HandleFunc("POST /containers/{user}/vault/verify", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(a.verifyStatus)
		_, _ = w.Write([]byte(`{}`))
	})
	mux.HandleFunc("POST /containers/{user}/vault/lock", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})
	mux.HandleFunc("POST /containers/{user}/vault/extend", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})
	mux.HandleFunc("GET /containers/{user}/vault/status", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"locked":false}`))
	})
	return mux
}

type testFixture struct {
	server   *server.Server
	registry *vault.Registry
	agent    *fakeAgent
	accounts *repofakes.FakeAccountRepo
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	t.Setenv("GOOGLE_DRIVE_CLIENT_ID", "test-client-1")

	fa := &fakeAgent{verifyStatus: http.StatusOK}
	agentSrv := httptest.NewServer(fa.handler())
	t.Cleanup(agentSrv.Close)

	agentClient, err := agent.NewClient(agentSrv.URL, "service-token-1")
	require.NoError(t, err)

	cfg := config.New()
	registry := vault.NewRegistry(vault.WithSessionTTL(cfg.GetSessionTTL()))
	accountRepo := repofakes.NewFakeAccountRepo()

	flows, err := flow.NewManager(flow.Deps{
		Records:  flowrepo.NewInMemoryRepo(),
		Sessions: registry,
		Agent:    agentClient,
		Accounts: accountRepo,
		Audit:    auditfakes.NewFakeSink(),
		Config:   cfg,
	})
	require.NoError(t, err)

	srv, err := server.New(cfg, flows, registry, agentClient, auditfakes.NewFakeSink())
	require.NoError(t, err)

	return &testFixture{server: srv, registry: registry, agent: fa, accounts: accountRepo}
}

func (f *testFixture) unlockVault(t *testing.T) string {
	t.Helper()
	token, err := f.registry.CreateSession(testUserID, vault.UnlockMethodPassword)
	require.NoError(t, err)
	return token
}

func (f *testFixture) startFlow(t *testing.T, sessionToken string) *url.URL {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, server.RouteFlowStart+"?provider="+testProvider+"&scope_level=minimal", nil)
	req.Header.Set("X-User-ID", testUserID)
	req.Header.Set("X-Vault-Session", sessionToken)

	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusFound, rec.Code)

	location, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	return location
}

func TestStartFlowHandler(t *testing.T) {
	t.Run("redirects to the provider with state and challenge", func(t *testing.T) {
		f := setupTestFixture(t)
		location := f.startFlow(t, f.unlockVault(t))

		require.Equal(t, "accounts.google.com", location.Host)
		require.NotEmpty(t, location.Query().Get("state"))
		require.NotEmpty(t, location.Query().Get("code_challenge"))
		require.Equal(t, "test-client-1", location.Query().Get("client_id"))
	})

	t.Run("locked vault redirects with an opaque code", func(t *testing.T) {
		f := setupTestFixture(t)
		req := httptest.NewRequest(http.MethodGet, server.RouteFlowStart+"?provider="+testProvider, nil)
		req.Header.Set("X-User-ID", testUserID)

		rec := httptest.NewRecorder()
		f.server.ServeHTTP(rec, req)
		require.Equal(t, http.StatusFound, rec.Code)
		require.Contains(t, rec.Header().Get("Location"), "error=vault_locked")
	})

	t.Run("unconfigured provider redirects with an opaque code", func(t *testing.T) {
		f := setupTestFixture(t)
		req := httptest.NewRequest(http.MethodGet, server.RouteFlowStart+"?provider=mystery", nil)
		req.Header.Set("X-User-ID", testUserID)
		req.Header.Set("X-Vault-Session", f.unlockVault(t))

		rec := httptest.NewRecorder()
		f.server.ServeHTTP(rec, req)
		require.Contains(t, rec.Header().Get("Location"), "error=not_configured")
	})

	t.Run("unauthenticated request is rejected", func(t *testing.T) {
		f := setupTestFixture(t)
		req := httptest.NewRequest(http.MethodGet, server.RouteFlowStart+"?provider="+testProvider, nil)

		rec := httptest.NewRecorder()
		f.server.ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestCallbackHandler(t *testing.T) {
	completeFlow := func(t *testing.T, f *testFixture, state string) *httptest.ResponseRecorder {
		t.Helper()
		req := httptest.NewRequest(http.MethodGet, server.RouteCallback+"?state="+url.QueryEscape(state)+"&code=auth-code", nil)
		rec := httptest.NewRecorder()
		f.server.ServeHTTP(rec, req)
		return rec
	}

	t.Run("completes the flow and redirects with the provider name", func(t *testing.T) {
		f := setupTestFixture(t)
		location := f.startFlow(t, f.unlockVault(t))
		state := location.Query().Get("state")

		rec := completeFlow(t, f, state)
		require.Equal(t, http.StatusFound, rec.Code)
		require.Contains(t, rec.Header().Get("Location"), "linked="+testProvider)

		account, ok := f.accounts.Get(testUserID, testProvider)
		require.True(t, ok)
		require.Equal(t, "john.doe@example.com", account.Email)
	})

	t.Run("replayed callback fails with invalid state", func(t *testing.T) {
		f := setupTestFixture(t)
		location := f.startFlow(t, f.unlockVault(t))
		state := location.Query().Get("state")

		first := completeFlow(t, f, state)
		require.Contains(t, first.Header().Get("Location"), "linked=")

		second := completeFlow(t, f, state)
		require.Contains(t, second.Header().Get("Location"), "error=invalid_state")
		require.Equal(t, 1, f.agent.exchangeCalls)
	})

	t.Run("locked vault abandons the flow without an exchange", func(t *testing.T) {
		f := setupTestFixture(t)
		sessionToken := f.unlockVault(t)
		location := f.startFlow(t, sessionToken)
		state := location.Query().Get("state")

		f.registry.Revoke(sessionToken)

		rec := completeFlow(t, f, state)
		require.Contains(t, rec.Header().Get("Location"), "error=vault_locked")
		require.Equal(t, 0, f.agent.exchangeCalls)
	})

	t.Run("provider error text is never relayed", func(t *testing.T) {
		f := setupTestFixture(t)
		req := httptest.NewRequest(http.MethodGet, server.RouteCallback+"?error=access_denied&error_description=The+user+said+no", nil)
		rec := httptest.NewRecorder()
		f.server.ServeHTTP(rec, req)

		location := rec.Header().Get("Location")
		require.Contains(t, location, "error=provider_denied")
		require.NotContains(t, location, "access_denied")
		require.NotContains(t, location, "user said no")
	})

	t.Run("missing state fails closed", func(t *testing.T) {
		f := setupTestFixture(t)
		req := httptest.NewRequest(http.MethodGet, server.RouteCallback+"?code=auth-code", nil)
		rec := httptest.NewRecorder()
		f.server.ServeHTTP(rec, req)
		require.Contains(t, rec.Header().Get("Location"), "error=invalid_state")
	})
}

func TestVaultHandlers(t *testing.T) {
	t.Run("challenge relays the agent payload verbatim", func(t *testing.T) {
		f := setupTestFixture(t)
		req := httptest.NewRequest(http.MethodPost, server.RouteVaultChallenge, strings.NewReader(`{}`))
		req.Header.Set("X-User-ID", testUserID)

		rec := httptest.NewRecorder()
		f.server.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		require.JSONEq(t, `{"challenge":"nonce-1","kdf":"argon2id"}`, rec.Body.String())
	})

	t.Run("challenge without authentication is rejected", func(t *testing.T) {
		f := setupTestFixture(t)
		req := httptest.NewRequest(http.MethodPost, server.RouteVaultChallenge, nil)

		rec := httptest.NewRecorder()
		f.server.ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("unlock creates a session cookie", func(t *testing.T) {
		f := setupTestFixture(t)
		req := httptest.NewRequest(http.MethodPost, server.RouteVaultUnlock, strings.NewReader(`{"response":"xyz"}`))
		req.Header.Set("X-User-ID", testUserID)

		rec := httptest.NewRecorder()
		f.server.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		cookies := rec.Result().Cookies()
		require.NotEmpty(t, cookies)
		require.Equal(t, "vault_session", cookies[0].Name)
		require.True(t, f.registry.Validate(cookies[0].Value, testUserID))
	})

	t.Run("failed verification relays the agent verdict and creates nothing", func(t *testing.T) {
		f := setupTestFixture(t)
		f.agent.verifyStatus = http.StatusUnauthorized

		req := httptest.NewRequest(http.MethodPost, server.RouteVaultUnlock, strings.NewReader(`{"response":"bad"}`))
		req.Header.Set("X-User-ID", testUserID)

		rec := httptest.NewRecorder()
		f.server.ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Equal(t, 0, f.registry.Len())
	})

	t.Run("lock revokes the session", func(t *testing.T) {
		f := setupTestFixture(t)
		sessionToken := f.unlockVault(t)

		req := httptest.NewRequest(http.MethodPost, server.RouteVaultLock, nil)
		req.Header.Set("X-User-ID", testUserID)
		req.Header.Set("X-Vault-Session", sessionToken)

		rec := httptest.NewRecorder()
		f.server.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		require.False(t, f.registry.Validate(sessionToken, testUserID))
	})

	t.Run("gated routes refuse without a live session", func(t *testing.T) {
		f := setupTestFixture(t)
		req := httptest.NewRequest(http.MethodPost, server.RouteVaultExtend, nil)
		req.Header.Set("X-User-ID", testUserID)

		rec := httptest.NewRecorder()
		f.server.ServeHTTP(rec, req)
		require.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("extend pushes expiry forward", func(t *testing.T) {
		f := setupTestFixture(t)
		sessionToken := f.unlockVault(t)

		req := httptest.NewRequest(http.MethodPost, server.RouteVaultExtend, nil)
		req.Header.Set("X-User-ID", testUserID)
		req.Header.Set("X-Vault-Session", sessionToken)

		rec := httptest.NewRecorder()
		f.server.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	})
}
