package agent

// PKCEInit is the agent's half of a freshly started PKCE exchange. The
// code verifier never leaves the agent; this tier only sees the
// challenge and an opaque flow token to hand back at exchange time.
type PKCEInit struct {
	AgentFlowToken      string `json:"flow_token"`
	CodeChallenge       string `json:"code_challenge"`
	CodeChallengeMethod string `json:"code_challenge_method"`
}

// ExchangeResult is what the agent reports after a successful
// authorization-code exchange. Only account metadata comes back; the
// exchanged credential stays with the agent.
type ExchangeResult struct {
	ProviderAccountEmail string `json:"provider_account_email"`
}

// ProxyResult relays an agent vault response verbatim to the caller.
type ProxyResult struct {
	StatusCode int
	Body       []byte
}

type pkceInitRequest struct {
	Provider string `json:"provider"`
	Scope    string `json:"scope"`
}

type pkceExchangeRequest struct {
	FlowToken         string `json:"flow_token"`
	AuthorizationCode string `json:"authorization_code"`
	RedirectURI       string `json:"redirect_uri"`
}
