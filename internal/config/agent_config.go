package config

import "time"

type AgentConfig interface {
	GetAgentBaseURL() string
	GetAgentServiceToken() string
	GetAgentStatusTimeout() time.Duration
	GetAgentExchangeTimeout() time.Duration
}

type Agent struct{}

var _ AgentConfig = Agent{}

func (Agent) GetAgentBaseURL() string {
	return GetEnv("AGENT_BASE_URL", "http://localhost:9090")
}

// GetAgentServiceToken is the static service-to-service credential for
// the agent. It is sent only on outbound agent calls, never to the
// browser.
func (Agent) GetAgentServiceToken() string {
	return GetEnv("AGENT_SERVICE_TOKEN", "")
}

func (Agent) GetAgentStatusTimeout() time.Duration {
	return 10 * time.Second
}

// GetAgentExchangeTimeout covers exchange and wake calls, which may
// need to start a dormant agent first.
func (Agent) GetAgentExchangeTimeout() time.Duration {
	return 30 * time.Second
}
