package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/trustgate/gateway/internal/approvals"
	"github.com/trustgate/gateway/internal/session"
)

func (s *Server) handleNewSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TenantID         string `json:"tenant_id"`
		EnrollmentSecret string `json:"enrollment_secret"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TenantID == "" || req.EnrollmentSecret == "" {
		writeError(w, http.StatusBadRequest, "missing tenant_id or enrollment_secret")
		return
	}

	if !s.sessions.VerifyEnrollment(req.TenantID, req.EnrollmentSecret) {
		slog.Warn("failed enrollment attempt", "tenant", req.TenantID)
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, expiresAt := s.sessions.CreateSession(req.TenantID, s.sessionTTL)
	if s.metrics != nil {
		s.metrics.SessionsIssued.Inc()
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"session_token": token,
		"ttl_seconds":   int(s.sessionTTL.Seconds()),
		"expires_at":    expiresAt.UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleRevokeSession(w http.ResponseWriter, r *http.Request, sess *session.Session, token string) {
	s.sessions.Revoke(token)
	w.WriteHeader(http.StatusNoContent)
}

// handleApprovalRequest opens an approval for a CLI write on behalf of the
// wrapper. The wrapper polls the status endpoint for the decision rather
// than blocking here.
func (s *Server) handleApprovalRequest(w http.ResponseWriter, r *http.Request, sess *session.Session, token string) {
	var req struct {
		Command    string                 `json:"command"`
		Args       []string               `json:"args"`
		ActionType string                 `json:"action_type"`
		Details    map[string]interface{} `json:"details"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Command == "" {
		writeError(w, http.StatusBadRequest, "missing command")
		return
	}

	details := req.Details
	if details == nil {
		details = map[string]interface{}{}
	}
	details["command"] = req.Command
	details["args"] = req.Args
	details["action_type"] = req.ActionType

	id := s.approvals.Request(sess.TenantID, "cli-"+req.Command, details)
	writeJSON(w, http.StatusCreated, map[string]string{
		"approval_id": id,
		"status":      string(approvals.StatusPending),
	})
}

// TODO: bind decider identity to the approval record; today any valid
// session may decide, matching the original contract.
func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request, sess *session.Session, token string) {
	id := mux.Vars(r)["id"]

	var req struct {
		DurationMinutes int    `json:"duration_minutes"`
		DecidedBy       string `json:"decided_by"`
	}
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req) // optional body
	}
	if req.DecidedBy == "" {
		req.DecidedBy = sess.TenantID
	}

	err := s.approvals.Decide(id, approvals.StatusApproved, req.DecidedBy, time.Duration(req.DurationMinutes)*time.Minute)
	if err != nil {
		s.writeDecisionError(w, id, err)
		return
	}
	if s.metrics != nil {
		s.metrics.ApprovalsTotal.WithLabelValues(string(approvals.StatusApproved)).Inc()
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "approved"})
}

func (s *Server) handleDeny(w http.ResponseWriter, r *http.Request, sess *session.Session, token string) {
	id := mux.Vars(r)["id"]

	var req struct {
		DecidedBy string `json:"decided_by"`
	}
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}
	if req.DecidedBy == "" {
		req.DecidedBy = sess.TenantID
	}

	err := s.approvals.Decide(id, approvals.StatusDenied, req.DecidedBy, 0)
	if err != nil {
		s.writeDecisionError(w, id, err)
		return
	}
	if s.metrics != nil {
		s.metrics.ApprovalsTotal.WithLabelValues(string(approvals.StatusDenied)).Inc()
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "denied"})
}

func (s *Server) writeDecisionError(w http.ResponseWriter, id string, err error) {
	switch err {
	case approvals.ErrNotFound:
		writeError(w, http.StatusNotFound, "approval not found")
	case approvals.ErrAlreadyDecided:
		writeError(w, http.StatusConflict, "approval already decided")
	default:
		slog.Error("approval decision failed", "approval_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (s *Server) handleApprovalStatus(w http.ResponseWriter, r *http.Request, sess *session.Session, token string) {
	id := mux.Vars(r)["id"]

	snapshot, ok := s.approvals.Status(id)
	if !ok {
		writeError(w, http.StatusNotFound, "approval not found")
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

// handleCredentialsFetch serves the wrapper's credential lookups. The
// selector may be "provider:name" (tenant taken from the session) or the
// full "tenant:provider:name" form, which must name the caller's tenant.
func (s *Server) handleCredentialsFetch(w http.ResponseWriter, r *http.Request, sess *session.Session, token string) {
	var req struct {
		Selector string `json:"selector"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Selector == "" {
		writeError(w, http.StatusBadRequest, "missing selector")
		return
	}

	selector := req.Selector
	if parts := strings.SplitN(selector, ":", 3); len(parts) == 3 {
		if parts[0] != sess.TenantID {
			writeError(w, http.StatusForbidden, "selector names another tenant")
			return
		}
		selector = parts[1] + ":" + parts[2]
	}

	bundle, err := s.broker.Get(r.Context(), sess.TenantID, selector)
	if err != nil {
		writeError(w, http.StatusNotFound, "credentials not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"credentials": bundle})
}
