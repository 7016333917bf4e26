package config

import (
	"strings"
	"time"
)

type FlowConfig interface {
	GetFlowTTL() time.Duration
	GetSweepInterval() time.Duration
	GetSessionTTL() time.Duration
	GetReaperInterval() time.Duration
	GetCorrelationTokenLength() int
	GetProvider(name string) (Provider, bool)
}

// Provider holds the OAuth client settings for one allow-listed
// identity provider. The client secret lives with the agent, not here.
type Provider struct {
	Name        string
	ClientID    string
	AuthURL     string
	RedirectURI string
	Scopes      map[string][]string // scope level -> provider scope strings
}

type Flow struct{}

var _ FlowConfig = Flow{}

func (Flow) GetFlowTTL() time.Duration {
	return 10 * time.Minute
}

// GetSweepInterval is the in-process fallback store sweep cadence.
// Kept well below the flow TTL so expired records cannot pile up
// between sweeps.
func (Flow) GetSweepInterval() time.Duration {
	return 1 * time.Minute
}

func (Flow) GetSessionTTL() time.Duration {
	return 30 * time.Minute
}

func (Flow) GetReaperInterval() time.Duration {
	return 1 * time.Minute
}

func (Flow) GetCorrelationTokenLength() int {
	return 32 // 32 bytes = 256 bits
}

// Fixed provider allow-list. A provider is configured only when a
// client ID is present in the environment.
var providerAllowList = map[string]struct {
	envPrefix string
	authURL   string
	scopes    map[string][]string
}{
	"google_drive": {
		envPrefix: "GOOGLE_DRIVE",
		authURL:   "https://accounts.google.com/o/oauth2/v2/auth",
		scopes: map[string][]string{
			"minimal": {"https://www.googleapis.com/auth/drive.file"},
			"full":    {"https://www.googleapis.com/auth/drive"},
		},
	},
	"dropbox": {
		envPrefix: "DROPBOX",
		authURL:   "https://www.dropbox.com/oauth2/authorize",
		scopes: map[string][]string{
			"minimal": {"files.content.read"},
			"full":    {"files.content.read", "files.content.write"},
		},
	},
	"github": {
		envPrefix: "GITHUB",
		authURL:   "https://github.com/login/oauth/authorize",
		scopes: map[string][]string{
			"minimal": {"read:user"},
			"full":    {"read:user", "repo"},
		},
	},
}

func (f Flow) GetProvider(name string) (Provider, bool) {
	entry, ok := providerAllowList[strings.ToLower(name)]
	if !ok {
		return Provider{}, false
	}
	clientID := GetEnv(entry.envPrefix+"_CLIENT_ID", "")
	if clientID == "" {
		return Provider{}, false
	}
	return Provider{
		Name:        name,
		ClientID:    clientID,
		AuthURL:     entry.authURL,
		RedirectURI: EnvVars{}.GetBaseURL() + "/oauth/callback",
		Scopes:      entry.scopes,
	}, true
}
