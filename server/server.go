package server

import (
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/jomafilms/openclaw-multitenant/agent"
	"github.com/jomafilms/openclaw-multitenant/audit"
	"github.com/jomafilms/openclaw-multitenant/flow"
	"github.com/jomafilms/openclaw-multitenant/internal/config"
	"github.com/jomafilms/openclaw-multitenant/vault"
)

// Server is the thin route layer over the credential-flow orchestrator.
// All state lives in the injected components; the server itself only
// translates HTTP to typed calls and typed errors to redirects.
type Server struct {
	mux    *http.ServeMux
	routes []string
	env    string
	config config.Config

	flows    *flow.Manager
	sessions *vault.Registry
	agent    *agent.Client
	audit    audit.Sink
}

func New(cfg config.Config, flows *flow.Manager, sessions *vault.Registry, agentClient *agent.Client, auditSink audit.Sink) (*Server, error) {
	if flows == nil {
		return nil, errors.New("[Server.New] flow manager is required")
	}
	if sessions == nil {
		return nil, errors.New("[Server.New] vault session registry is required")
	}
	if agentClient == nil {
		return nil, errors.New("[Server.New] agent client is required")
	}
	if auditSink == nil {
		return nil, errors.New("[Server.New] audit sink is required")
	}

	s := &Server{
		mux:      http.NewServeMux(),
		env:      cfg.GetEnv(),
		config:   cfg,
		flows:    flows,
		sessions: sessions,
		agent:    agentClient,
		audit:    auditSink,
	}
	s.initRoutes()
	s.logRoutes()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)
		if len(parts) == 2 {
			log.Debug().Str("method", parts[0]).Str("path", parts[1]).Msg("route registered")
		}
	}
}
