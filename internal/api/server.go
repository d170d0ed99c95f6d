// Package api binds the admission components into the gateway's HTTP
// surface: session issuance, the proxy pipeline, and approval decisions.
package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trustgate/gateway/internal/approvals"
	"github.com/trustgate/gateway/internal/credentials"
	"github.com/trustgate/gateway/internal/middleware"
	"github.com/trustgate/gateway/internal/monitoring"
	"github.com/trustgate/gateway/internal/policy"
	"github.com/trustgate/gateway/internal/proxy"
	"github.com/trustgate/gateway/internal/session"
)

// Server composes the admission pipeline. Components are passed-in
// collaborators so tests can wire isolated pipelines.
type Server struct {
	sessions  *session.Manager
	broker    *credentials.Broker
	policies  *policy.Engine
	approvals *approvals.Orchestrator
	forwarder *proxy.Forwarder
	metrics   *monitoring.Metrics
	limiter   *middleware.RateLimiter

	sessionTTL time.Duration
}

func NewServer(
	sessions *session.Manager,
	broker *credentials.Broker,
	policies *policy.Engine,
	orchestrator *approvals.Orchestrator,
	forwarder *proxy.Forwarder,
	metrics *monitoring.Metrics,
	limiter *middleware.RateLimiter,
	sessionTTL time.Duration,
) *Server {
	if sessionTTL <= 0 {
		sessionTTL = time.Hour
	}
	return &Server{
		sessions:   sessions,
		broker:     broker,
		policies:   policies,
		approvals:  orchestrator,
		forwarder:  forwarder,
		metrics:    metrics,
		limiter:    limiter,
		sessionTTL: sessionTTL,
	}
}

// Router builds the gateway's route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/session/new", s.handleNewSession).Methods(http.MethodPost)
	r.HandleFunc("/session", s.authenticated(s.handleRevokeSession)).Methods(http.MethodDelete)

	r.HandleFunc("/approvals/request", s.authenticated(s.handleApprovalRequest)).Methods(http.MethodPost)
	r.HandleFunc("/approvals/{id}/approve", s.authenticated(s.handleApprove)).Methods(http.MethodPost)
	r.HandleFunc("/approvals/{id}/deny", s.authenticated(s.handleDeny)).Methods(http.MethodPost)
	r.HandleFunc("/approvals/{id}/status", s.authenticated(s.handleApprovalStatus)).Methods(http.MethodGet)

	r.HandleFunc("/credentials/fetch", s.authenticated(s.handleCredentialsFetch)).Methods(http.MethodPost)

	proxyRoute := r.PathPrefix("/api/v1/proxy/").Handler(
		http.HandlerFunc(s.authenticated(s.handleProxy)),
	)
	proxyRoute.Methods(
		http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch,
		http.MethodDelete, http.MethodHead, http.MethodOptions,
	)

	if s.limiter != nil {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				if strings.HasPrefix(req.URL.Path, "/api/v1/proxy/") {
					s.limiter.Limit(next).ServeHTTP(w, req)
					return
				}
				next.ServeHTTP(w, req)
			})
		})
	}

	return r
}

// ListenAndServe runs the router on the given port.
func (s *Server) ListenAndServe(port int) error {
	addr := fmt.Sprintf(":%d", port)
	slog.Info("gateway listening", "addr", addr)
	return http.ListenAndServe(addr, s.Router())
}

// sessionHandler receives the authenticated session and its bearer token.
type sessionHandler func(w http.ResponseWriter, r *http.Request, sess *session.Session, token string)

// authenticated parses the bearer token and resolves the session before
// invoking the handler. Missing, malformed, unknown and expired tokens all
// yield the same 401.
func (s *Server) authenticated(next sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "missing or invalid session")
			return
		}
		token := strings.TrimPrefix(auth, "Bearer ")

		sess, ok := s.sessions.ValidateToken(token)
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing or invalid session")
			return
		}
		next(w, r, sess, token)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
