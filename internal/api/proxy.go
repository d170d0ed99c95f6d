package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/trustgate/gateway/internal/credentials"
	"github.com/trustgate/gateway/internal/policy"
	"github.com/trustgate/gateway/internal/session"
)

const proxyPrefix = "/api/v1/proxy/"

// admission is the per-request record threading the pipeline. It lives for
// one admission and is logged on completion with its correlation id.
type admission struct {
	ID               string
	Timestamp        time.Time
	Method           string
	Path             string
	Provider         string
	Classification   policy.ActionType
	RequiresApproval bool
	CredSelector     string
	ApprovalID       string
}

// handleProxy runs the admission pipeline: classify, gate, fetch
// credentials, forward, relay. The caller is already authenticated.
func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request, sess *session.Session, token string) {
	targetPath := strings.TrimPrefix(r.URL.Path, proxyPrefix)

	adm := &admission{
		ID:             uuid.NewString(),
		Timestamp:      time.Now(),
		Method:         r.Method,
		Path:           targetPath,
		Provider:       r.Header.Get("X-Provider"),
		Classification: policy.ClassifyHTTP(r.Method),
		CredSelector:   r.Header.Get("X-Creds"),
	}
	if adm.Provider == "" {
		adm.Provider = "unknown"
	}
	w.Header().Set("X-Gateway-Request-ID", adm.ID)

	adm.RequiresApproval = s.policies.RequiresApproval(
		sess.TenantID, adm.Classification, adm.Provider, adm.Method, adm.Path,
	)

	slog.Info("admission classified",
		"request_id", adm.ID,
		"tenant", sess.TenantID,
		"method", adm.Method,
		"path", adm.Path,
		"provider", adm.Provider,
		"classification", adm.Classification,
		"requires_approval", adm.RequiresApproval,
	)

	if adm.RequiresApproval {
		adm.ApprovalID = s.approvals.Request(sess.TenantID, adm.ID, map[string]interface{}{
			"method":   adm.Method,
			"path":     adm.Path,
			"provider": adm.Provider,
		})

		waitStart := time.Now()
		approved := s.approvals.Wait(r.Context(), adm.ApprovalID, 0)
		if s.metrics != nil {
			s.metrics.ApprovalWaitTime.Observe(time.Since(waitStart).Seconds())
		}

		if !approved {
			s.recordAdmission(adm, "denied")
			slog.Warn("admission not approved", "request_id", adm.ID, "approval_id", adm.ApprovalID)
			// Denied, expired and abandoned waits surface identically;
			// only the log distinguishes them.
			failRequest(w, adm.ID, errPolicyDenied)
			return
		}
		slog.Info("admission approved", "request_id", adm.ID, "approval_id", adm.ApprovalID)
	}

	var bundle credentials.Bundle
	if adm.CredSelector != "" {
		selector := normalizeSelector(sess.TenantID, adm.CredSelector)
		var err error
		bundle, err = s.broker.Get(r.Context(), sess.TenantID, selector)
		if err != nil {
			s.recordAdmission(adm, "error")
			// The agent asked for credentials the gateway cannot produce.
			failRequest(w, adm.ID, errors.Join(errConfig, err))
			return
		}
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.recordAdmission(adm, "error")
		failRequest(w, adm.ID, errBadRequest)
		return
	}

	forwardStart := time.Now()
	result, err := s.forwarder.Forward(r.Context(), adm.Method, adm.Path, r.Header, body, bundle, adm.Provider)
	if s.metrics != nil {
		s.metrics.ForwardDuration.WithLabelValues(adm.Provider).Observe(time.Since(forwardStart).Seconds())
	}
	if err != nil {
		if s.metrics != nil {
			s.metrics.ForwardErrors.WithLabelValues(adm.Provider).Inc()
		}
		s.recordAdmission(adm, "error")
		failRequest(w, adm.ID, err)
		return
	}

	s.recordAdmission(adm, "forwarded")
	slog.Info("admission completed", "request_id", adm.ID, "status", result.StatusCode)

	for k, vs := range result.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(result.StatusCode)
	w.Write(result.Body)
}

func (s *Server) recordAdmission(adm *admission, outcome string) {
	if s.metrics != nil {
		s.metrics.AdmissionsTotal.WithLabelValues(adm.Provider, string(adm.Classification), outcome).Inc()
	}
}

// normalizeSelector strips a leading tenant segment from a full
// "tenant:provider:name" selector so cache keys stay "tenant:provider:name"
// rather than doubling the tenant. A selector naming another tenant is left
// as-is and will simply miss.
func normalizeSelector(tenantID, selector string) string {
	if parts := strings.SplitN(selector, ":", 3); len(parts) == 3 && parts[0] == tenantID {
		return parts[1] + ":" + parts[2]
	}
	return selector
}
