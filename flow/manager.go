package flow

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"

	"github.com/jomafilms/openclaw-multitenant/accounts"
	"github.com/jomafilms/openclaw-multitenant/agent"
	"github.com/jomafilms/openclaw-multitenant/audit"
	"github.com/jomafilms/openclaw-multitenant/flow/flowrepo"
	"github.com/jomafilms/openclaw-multitenant/internal/config"
	apperrors "github.com/jomafilms/openclaw-multitenant/internal/errors"
	"github.com/jomafilms/openclaw-multitenant/internal/utils"
)

// SessionValidator is the unlock-session check consulted at flow start
// and again at completion. Satisfied by *vault.Registry.
type SessionValidator interface {
	Validate(token, expectedOwnerUserID string) bool
}

// Delegator is the slice of the agent client the flow manager needs:
// PKCE setup and code exchange. The agent alone touches credential
// material.
type Delegator interface {
	InitPKCE(ctx context.Context, ownerUserID, provider, scope string) (*agent.PKCEInit, error)
	ExchangeCode(ctx context.Context, ownerUserID, agentFlowToken, authorizationCode, redirectURI string) (*agent.ExchangeResult, error)
}

// Deps holds all collaborator dependencies for the Manager.
type Deps struct {
	Records  flowrepo.Repo     // Ephemeral store for correlation state
	Sessions SessionValidator  // Vault session registry
	Agent    Delegator         // Agent delegation client
	Accounts accounts.Repo     // Linked-account metadata collaborator
	Audit    audit.Sink        // Audit event sink
	Config   config.FlowConfig // Provider allow-list and TTLs
}

// Manager runs the OAuth/PKCE handshake state machine: it issues
// correlation tokens, parks the state needed to resume a flow, and
// consumes that state exactly once on callback.
type Manager struct {
	deps    Deps
	flowTTL time.Duration
	nowTime func() time.Time
}

// ManagerOption defines a function type to modify the Manager instance.
type ManagerOption func(*Manager)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowTime = nowFunc
	}
}

// WithFlowTTL overrides the configured flow TTL.
func WithFlowTTL(ttl time.Duration) ManagerOption {
	return func(m *Manager) {
		m.flowTTL = ttl
	}
}

func NewManager(deps Deps, options ...ManagerOption) (*Manager, error) {
	if deps.Records == nil {
		return nil, errors.New("[NewManager] Records repo is required")
	}
	if deps.Sessions == nil {
		return nil, errors.New("[NewManager] Sessions validator is required")
	}
	if deps.Agent == nil {
		return nil, errors.New("[NewManager] Agent delegator is required")
	}
	if deps.Accounts == nil {
		return nil, errors.New("[NewManager] Accounts repo is required")
	}
	if deps.Audit == nil {
		return nil, errors.New("[NewManager] Audit sink is required")
	}
	if deps.Config == nil {
		return nil, errors.New("[NewManager] Config is required")
	}

	m := &Manager{
		deps:    deps,
		flowTTL: deps.Config.GetFlowTTL(),
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(m)
	}
	return m, nil
}

// StartResult is what the route layer needs to send the browser off to
// the identity provider.
type StartResult struct {
	CorrelationToken string
	AuthorizationURL string
}

// Completion reports a finished flow. Metadata only; the exchanged
// credential never reaches this tier.
type Completion struct {
	OwnerUserID          string
	Provider             string
	ProviderAccountEmail string
}

// StartFlow begins an external-authorization handshake for a user who
// holds a live vault session. It asks the agent for a PKCE challenge,
// parks a FlowRecord under a fresh correlation token, and returns the
// provider authorization URL with that token as the state parameter.
func (m *Manager) StartFlow(ctx context.Context, ownerUserID, providerName string, scopeLevel *string, vaultSessionToken string) (*StartResult, error) {
	provider, ok := m.deps.Config.GetProvider(providerName)
	if !ok {
		m.auditFailure(ctx, ownerUserID, audit.KindFlowFailed, providerName, "provider_not_configured")
		return nil, errors.Wrapf(apperrors.ErrProviderNotConfigured, "[Manager.StartFlow] provider %q", providerName)
	}

	scopes, err := resolveScopes(provider, scopeLevel)
	if err != nil {
		m.auditFailure(ctx, ownerUserID, audit.KindFlowFailed, providerName, "invalid_scope_level")
		return nil, errors.Wrap(err, "[Manager.StartFlow]")
	}

	if !m.deps.Sessions.Validate(vaultSessionToken, ownerUserID) {
		m.auditFailure(ctx, ownerUserID, audit.KindFlowFailed, providerName, "vault_locked")
		return nil, errors.Wrap(apperrors.ErrVaultLocked, "[Manager.StartFlow]")
	}

	requestedScope := strings.Join(scopes, " ")
	pkce, err := m.deps.Agent.InitPKCE(ctx, ownerUserID, provider.Name, requestedScope)
	if err != nil {
		m.auditFailure(ctx, ownerUserID, audit.KindFlowFailed, providerName, "pkce_init_failed")
		return nil, errors.Wrap(err, "[Manager.StartFlow] agent InitPKCE")
	}

	correlationToken, err := generateCorrelationToken(m.deps.Config.GetCorrelationTokenLength())
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.StartFlow]")
	}

	record := &FlowRecord{
		CorrelationToken:  correlationToken,
		AgentFlowToken:    pkce.AgentFlowToken,
		OwnerUserID:       ownerUserID,
		Provider:          provider.Name,
		RequestedScope:    requestedScope,
		ScopeLevel:        scopeLevel,
		VaultSessionToken: vaultSessionToken,
		RedirectURI:       provider.RedirectURI,
		CreatedAt:         m.nowTime(),
	}
	data, err := record.encode()
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.StartFlow]")
	}
	if err := m.deps.Records.Put(ctx, recordKey(correlationToken), data, m.flowTTL); err != nil {
		return nil, errors.Wrap(err, "[Manager.StartFlow] store record")
	}

	m.deps.Audit.Record(ctx, audit.NewEvent(ownerUserID, audit.KindFlowStarted, true, map[string]string{
		"provider":    provider.Name,
		"scope_level": utils.Value(scopeLevel),
	}))

	return &StartResult{
		CorrelationToken: correlationToken,
		AuthorizationURL: buildAuthorizationURL(provider, scopes, correlationToken, pkce),
	}, nil
}

// CompleteFlow resumes a flow when the identity provider redirects
// back. The correlation record is consumed before anything else
// happens, so a replayed callback always fails with ErrInvalidState.
// Not idempotent by design.
func (m *Manager) CompleteFlow(ctx context.Context, correlationToken, authorizationCode string) (*Completion, error) {
	data, err := m.deps.Records.TakeOnce(ctx, recordKey(correlationToken))
	if apperrors.Is(err, apperrors.ErrNotFound) {
		m.auditFailure(ctx, "unknown", audit.KindFlowFailed, "", "invalid_state")
		return nil, errors.Wrap(apperrors.ErrInvalidState, "[Manager.CompleteFlow]")
	}
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.CompleteFlow] take record")
	}

	record, err := decodeRecord(data)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.CompleteFlow]")
	}

	// Belt and braces: the store enforces TTL on read, but the record
	// itself is stamped, so a stale record never proceeds regardless of
	// which backend returned it.
	if m.nowTime().After(record.CreatedAt.Add(m.flowTTL)) {
		m.auditFailure(ctx, record.OwnerUserID, audit.KindFlowFailed, record.Provider, "invalid_state")
		return nil, errors.Wrap(apperrors.ErrInvalidState, "[Manager.CompleteFlow] record expired")
	}

	// The unlock that authorized this flow must still be live. If the
	// vault locked in the meantime the flow is abandoned, not retried;
	// the record is already consumed.
	if !m.deps.Sessions.Validate(record.VaultSessionToken, record.OwnerUserID) {
		m.auditFailure(ctx, record.OwnerUserID, audit.KindFlowFailed, record.Provider, "vault_locked")
		return nil, errors.Wrap(apperrors.ErrVaultLocked, "[Manager.CompleteFlow]")
	}

	result, err := m.deps.Agent.ExchangeCode(ctx, record.OwnerUserID, record.AgentFlowToken, authorizationCode, record.RedirectURI)
	if err != nil {
		reason := "exchange_failed"
		if apperrors.Is(err, apperrors.ErrUpstreamTimeout) {
			reason = "upstream_timeout"
		}
		m.auditFailure(ctx, record.OwnerUserID, audit.KindFlowFailed, record.Provider, reason)
		return nil, errors.Wrap(err, "[Manager.CompleteFlow] agent ExchangeCode")
	}

	if err := m.deps.Accounts.Upsert(ctx, accounts.LinkedAccount{
		OwnerUserID: record.OwnerUserID,
		Provider:    record.Provider,
		Email:       result.ProviderAccountEmail,
		ScopeLevel:  record.ScopeLevel,
		LinkedAt:    m.nowTime(),
	}); err != nil {
		m.auditFailure(ctx, record.OwnerUserID, audit.KindFlowFailed, record.Provider, "account_store_failed")
		return nil, errors.Wrap(err, "[Manager.CompleteFlow] store account metadata")
	}

	m.deps.Audit.Record(ctx, audit.NewEvent(record.OwnerUserID, audit.KindFlowCompleted, true, map[string]string{
		"provider": record.Provider,
	}))

	return &Completion{
		OwnerUserID:          record.OwnerUserID,
		Provider:             record.Provider,
		ProviderAccountEmail: result.ProviderAccountEmail,
	}, nil
}

func (m *Manager) auditFailure(ctx context.Context, actor, kind, provider, reason string) {
	detail := map[string]string{"reason": reason}
	if provider != "" {
		detail["provider"] = provider
	}
	m.deps.Audit.Record(ctx, audit.NewEvent(actor, kind, false, detail))
}

func resolveScopes(provider config.Provider, scopeLevel *string) ([]string, error) {
	level := "minimal"
	if scopeLevel != nil {
		level = *scopeLevel
	}
	scopes, ok := provider.Scopes[level]
	if !ok {
		return nil, errors.Wrapf(apperrors.ErrInvalidRequest, "unknown scope level %q", level)
	}
	return scopes, nil
}

func buildAuthorizationURL(provider config.Provider, scopes []string, correlationToken string, pkce *agent.PKCEInit) string {
	cfg := oauth2.Config{
		ClientID:    provider.ClientID,
		RedirectURL: provider.RedirectURI,
		Scopes:      scopes,
		Endpoint:    oauth2.Endpoint{AuthURL: provider.AuthURL},
	}
	return cfg.AuthCodeURL(correlationToken,
		oauth2.SetAuthURLParam("code_challenge", pkce.CodeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", pkce.CodeChallengeMethod),
	)
}

func generateCorrelationToken(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", errors.Wrap(err, "generateCorrelationToken rand.Read")
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}
