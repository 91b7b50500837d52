// Package server exposes the agent over HTTP: the chat endpoint,
// Google account integration endpoints, health, and Prometheus
// metrics. Handlers stay thin; every decision belongs to the resolver.
package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/patmakesapps/cortexagent/internal/accounts"
	"github.com/patmakesapps/cortexagent/internal/resolver"
)

// Deps collects everything the HTTP layer delegates to. Accounts
// fields may be nil when Google integration is not configured; the
// integration endpoints then answer 503.
type Deps struct {
	Resolver      *resolver.Resolver
	Credentials   *accounts.Resolver
	Accounts      *accounts.Store
	OAuth         *accounts.GoogleOAuth
	TokenCache    *accounts.TokenCache
	PrepareScript string
	Gatherer      prometheus.Gatherer
	Logger        *zap.Logger
}

type Server struct {
	deps Deps
}

func New(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Server{deps: deps}
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/agent/threads/{id}/chat", s.handleChat)
	mux.HandleFunc("POST /v1/agent/integrations/google/connect", s.handleGoogleConnect)
	mux.HandleFunc("GET /v1/agent/integrations/google/status", s.handleGoogleStatus)
	mux.HandleFunc("POST /v1/agent/integrations/google/disconnect", s.handleGoogleDisconnect)
	mux.HandleFunc("GET /health", s.handleHealth)
	if s.deps.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}
