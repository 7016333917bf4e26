package config

type Config interface {
	EnvConfig
	FlowConfig
	AgentConfig
	StoreConfig
}

type mainConfig struct {
	EnvVars
	Flow
	Agent
	Store
}

func New() Config {
	return mainConfig{}
}
