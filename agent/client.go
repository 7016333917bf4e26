package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/pkg/errors"

	apperrors "github.com/jomafilms/openclaw-multitenant/internal/errors"
)

const maxResponseBytes = 1 << 20

// Client talks to the per-user agent service over HTTP with a static
// service credential. The credential lives only here and on the wire
// to the agent; no response built from this client ever includes it.
type Client struct {
	baseURL         string
	serviceToken    string
	statusClient    *http.Client // status/challenge calls
	exchangeClient  *http.Client // exchange/wake calls, which may start a dormant agent
	wakeMaxAttempts uint
}

type ClientOption func(*Client)

// WithTimeouts overrides the default status and exchange call timeouts.
func WithTimeouts(status, exchange time.Duration) ClientOption {
	return func(c *Client) {
		c.statusClient.Timeout = status
		c.exchangeClient.Timeout = exchange
	}
}

func NewClient(baseURL, serviceToken string, options ...ClientOption) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("[agent.NewClient] baseURL is required")
	}
	if serviceToken == "" {
		return nil, errors.New("[agent.NewClient] serviceToken is required")
	}

	c := &Client{
		baseURL:         baseURL,
		serviceToken:    serviceToken,
		statusClient:    &http.Client{Timeout: 10 * time.Second},
		exchangeClient:  &http.Client{Timeout: 30 * time.Second},
		wakeMaxAttempts: 3,
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// InitPKCE asks the agent to generate a code verifier/challenge pair
// for a new flow and returns the public half.
func (c *Client) InitPKCE(ctx context.Context, ownerUserID, provider, scope string) (*PKCEInit, error) {
	body, err := json.Marshal(pkceInitRequest{Provider: provider, Scope: scope})
	if err != nil {
		return nil, errors.Wrap(err, "[Client.InitPKCE] marshal")
	}

	resp, err := c.do(ctx, c.statusClient, http.MethodPost, c.containerPath(ownerUserID, "oauth/pkce/init"), body)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.InitPKCE]")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Wrapf(apperrors.ErrExchangeFailed, "[Client.InitPKCE] agent status %d", resp.StatusCode)
	}

	var init PKCEInit
	if err := json.Unmarshal(resp.Body, &init); err != nil {
		return nil, errors.Wrap(err, "[Client.InitPKCE] decode")
	}
	if init.AgentFlowToken == "" || init.CodeChallenge == "" {
		return nil, errors.Wrap(apperrors.ErrExchangeFailed, "[Client.InitPKCE] incomplete agent response")
	}
	return &init, nil
}

// ExchangeCode hands the authorization code to the agent, which alone
// performs the token-endpoint exchange. Only account metadata returns.
func (c *Client) ExchangeCode(ctx context.Context, ownerUserID, agentFlowToken, authorizationCode, redirectURI string) (*ExchangeResult, error) {
	body, err := json.Marshal(pkceExchangeRequest{
		FlowToken:         agentFlowToken,
		AuthorizationCode: authorizationCode,
		RedirectURI:       redirectURI,
	})
	if err != nil {
		return nil, errors.Wrap(err, "[Client.ExchangeCode] marshal")
	}

	resp, err := c.do(ctx, c.exchangeClient, http.MethodPost, c.containerPath(ownerUserID, "oauth/pkce/exchange"), body)
	if err != nil {
		// An unreachable agent means the exchange did not happen. Timeouts
		// keep their own identity; anything else on this path is an
		// exchange failure as far as callers are concerned.
		if apperrors.Is(err, apperrors.ErrBackendUnavailable) {
			return nil, errors.Wrapf(apperrors.ErrExchangeFailed, "[Client.ExchangeCode] %v", err)
		}
		return nil, errors.Wrap(err, "[Client.ExchangeCode]")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Wrapf(apperrors.ErrExchangeFailed, "[Client.ExchangeCode] agent status %d", resp.StatusCode)
	}

	var result ExchangeResult
	if err := json.Unmarshal(resp.Body, &result); err != nil {
		return nil, errors.Wrap(err, "[Client.ExchangeCode] decode")
	}
	if result.ProviderAccountEmail == "" {
		return nil, errors.Wrap(apperrors.ErrExchangeFailed, "[Client.ExchangeCode] no account email in agent response")
	}
	return &result, nil
}

// Wake starts the user's agent if it is dormant. Wake is idempotent on
// the agent side, so it is retried with backoff within the caller's
// deadline.
func (c *Client) Wake(ctx context.Context, ownerUserID string) error {
	operation := func() (struct{}, error) {
		resp, err := c.do(ctx, c.exchangeClient, http.MethodPost, c.containerPath(ownerUserID, "wake"), nil)
		if err != nil {
			return struct{}{}, err
		}
		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
			return struct{}{}, fmt.Errorf("agent status %d", resp.StatusCode)
		}
		return struct{}{}, nil
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(c.wakeMaxAttempts))
	if err != nil {
		return errors.Wrap(err, "[Client.Wake]")
	}
	return nil
}

// VaultStatus reports the agent's view of the vault for a user.
func (c *Client) VaultStatus(ctx context.Context, ownerUserID string) (*ProxyResult, error) {
	return c.proxy(ctx, http.MethodGet, ownerUserID, "vault/status", nil)
}

// VaultChallenge fetches an unlock challenge from the agent.
func (c *Client) VaultChallenge(ctx context.Context, ownerUserID string, body []byte) (*ProxyResult, error) {
	return c.proxy(ctx, http.MethodPost, ownerUserID, "vault/challenge", body)
}

// VaultVerify forwards an unlock challenge response for verification.
func (c *Client) VaultVerify(ctx context.Context, ownerUserID string, body []byte) (*ProxyResult, error) {
	return c.proxy(ctx, http.MethodPost, ownerUserID, "vault/verify", body)
}

// VaultLock asks the agent to discard its decrypted vault state.
func (c *Client) VaultLock(ctx context.Context, ownerUserID string) (*ProxyResult, error) {
	return c.proxy(ctx, http.MethodPost, ownerUserID, "vault/lock", nil)
}

// VaultExtend asks the agent to keep its unlocked state alive.
func (c *Client) VaultExtend(ctx context.Context, ownerUserID string) (*ProxyResult, error) {
	return c.proxy(ctx, http.MethodPost, ownerUserID, "vault/extend", nil)
}

// proxy forwards the caller's body unmodified and relays the agent's
// status code and body, success or not. Transport failures still map
// to the usual taxonomy.
func (c *Client) proxy(ctx context.Context, method, ownerUserID, suffix string, body []byte) (*ProxyResult, error) {
	resp, err := c.do(ctx, c.statusClient, method, c.containerPath(ownerUserID, suffix), body)
	if err != nil {
		return nil, errors.Wrapf(err, "[Client.proxy] %s", suffix)
	}
	return resp, nil
}

func (c *Client) containerPath(ownerUserID, suffix string) string {
	return fmt.Sprintf("%s/containers/%s/%s", c.baseURL, url.PathEscape(ownerUserID), suffix)
}

func (c *Client) do(ctx context.Context, httpClient *http.Client, method, requestURL string, body []byte) (*ProxyResult, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, requestURL, reader)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Authorization", "Bearer "+c.serviceToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, apperrors.ErrUpstreamTimeout
		}
		return nil, errors.Wrap(apperrors.ErrBackendUnavailable, err.Error())
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if isTimeout(err) {
			return nil, apperrors.ErrUpstreamTimeout
		}
		return nil, errors.Wrap(err, "read response")
	}
	return &ProxyResult{StatusCode: resp.StatusCode, Body: respBody}, nil
}

func isTimeout(err error) bool {
	if apperrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var urlErr *url.Error
	if apperrors.As(err, &urlErr) {
		return urlErr.Timeout()
	}
	return false
}
