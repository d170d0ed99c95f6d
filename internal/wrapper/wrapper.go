// Package wrapper implements the tool-wrapper side of the gateway
// contract: classify the argv, gate writes on a human decision, fetch
// credentials, and exec the tool with a scrubbed environment.
package wrapper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"time"

	"github.com/trustgate/gateway/internal/credentials"
	"github.com/trustgate/gateway/internal/policy"
)

// Config is the wrapper's gateway binding, normally read from the
// environment the restricted shell sets up.
type Config struct {
	GatewayURL      string
	SessionToken    string
	TenantID        string
	CredSelector    string
	PollInterval    time.Duration
	DecisionTimeout time.Duration
}

// ConfigFromEnv builds a Config from GATEWAY_URL, GATEWAY_SESSION_TOKEN,
// GATEWAY_TENANT_ID, and GATEWAY_CREDS.
func ConfigFromEnv() Config {
	cfg := Config{
		GatewayURL:      os.Getenv("GATEWAY_URL"),
		SessionToken:    os.Getenv("GATEWAY_SESSION_TOKEN"),
		TenantID:        os.Getenv("GATEWAY_TENANT_ID"),
		CredSelector:    os.Getenv("GATEWAY_CREDS"),
		PollInterval:    2 * time.Second,
		DecisionTimeout: time.Hour,
	}
	if cfg.GatewayURL == "" {
		cfg.GatewayURL = "http://localhost:8080"
	}
	if cfg.TenantID == "" {
		cfg.TenantID = "default"
	}
	return cfg
}

// Wrapper runs one wrapped tool invocation.
type Wrapper struct {
	tool   string
	args   []string
	cfg    Config
	client *http.Client
}

func New(tool string, args []string, cfg Config) *Wrapper {
	return &Wrapper{
		tool:   tool,
		args:   args,
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// Run executes the admission flow and the tool. The return value is the
// process exit code: the child's code after exec, 1 for any admission or
// pre-exec failure.
func (w *Wrapper) Run(ctx context.Context) int {
	action := policy.ClassifyCLI(w.tool, w.args)
	slog.Info("tool invocation classified", "tool", w.tool, "classification", action)

	if action == policy.ActionWrite {
		approved, err := w.requestApproval(ctx, action)
		if err != nil {
			slog.Error("approval request failed", "tool", w.tool, "error", err)
			fmt.Fprintln(os.Stderr, "Error: request not approved")
			return 1
		}
		if !approved {
			fmt.Fprintln(os.Stderr, "Error: request not approved")
			return 1
		}
	}

	var bundle credentials.Bundle
	if w.cfg.CredSelector != "" {
		var err error
		bundle, err = w.fetchCredentials(ctx)
		if err != nil {
			slog.Error("credential fetch failed", "tool", w.tool, "error", err)
			fmt.Fprintln(os.Stderr, "Error: could not obtain credentials")
			return 1
		}
	}

	return w.execTool(bundle)
}

// requestApproval opens an approval at the gateway and polls the status
// endpoint until the record turns terminal or the local deadline passes.
func (w *Wrapper) requestApproval(ctx context.Context, action policy.ActionType) (bool, error) {
	if w.cfg.SessionToken == "" {
		return false, errors.New("no session token configured")
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"command":     w.tool,
		"args":        w.args,
		"action_type": string(action),
		"details":     map[string]interface{}{"tenant_id": w.cfg.TenantID},
	})

	var created struct {
		ApprovalID string `json:"approval_id"`
	}
	if err := w.post(ctx, "/approvals/request", payload, http.StatusCreated, &created); err != nil {
		return false, err
	}
	if created.ApprovalID == "" {
		return false, errors.New("gateway returned no approval id")
	}
	slog.Info("approval requested, waiting for decision", "approval_id", created.ApprovalID)

	deadline := time.Now().Add(w.cfg.DecisionTimeout)
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		var status struct {
			Status string `json:"status"`
		}
		if err := w.get(ctx, "/approvals/"+created.ApprovalID+"/status", &status); err != nil {
			return false, err
		}
		switch status.Status {
		case "approved":
			return true, nil
		case "denied", "expired":
			return false, nil
		}

		if time.Now().After(deadline) {
			return false, nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
}

func (w *Wrapper) fetchCredentials(ctx context.Context) (credentials.Bundle, error) {
	payload, _ := json.Marshal(map[string]string{"selector": w.cfg.CredSelector})

	var resp struct {
		Credentials credentials.Bundle `json:"credentials"`
	}
	if err := w.post(ctx, "/credentials/fetch", payload, http.StatusOK, &resp); err != nil {
		return nil, err
	}
	return resp.Credentials, nil
}

// execTool runs the tool with the scrubbed-then-injected environment and
// propagates its exit code. Credential values are never written to the
// wrapper's own stdout, stderr, or logs.
func (w *Wrapper) execTool(bundle credentials.Bundle) int {
	env, cleanup, err := BuildEnv(w.tool, os.Environ(), bundle)
	if err != nil {
		slog.Error("environment preparation failed", "tool", w.tool, "error", err)
		fmt.Fprintln(os.Stderr, "Error: could not prepare environment")
		return 1
	}
	defer cleanup()

	cmd := exec.Command(w.tool, w.args...)
	cmd.Env = env
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode()
		}
		fmt.Fprintf(os.Stderr, "Error: %s failed to start\n", w.tool)
		return 1
	}
	return 0
}

func (w *Wrapper) post(ctx context.Context, path string, payload []byte, wantStatus int, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.GatewayURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+w.cfg.SessionToken)
	req.Header.Set("Content-Type", "application/json")
	return w.do(req, wantStatus, out)
}

func (w *Wrapper) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.cfg.GatewayURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+w.cfg.SessionToken)
	return w.do(req, http.StatusOK, out)
}

func (w *Wrapper) do(req *http.Request, wantStatus int, out interface{}) error {
	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		return fmt.Errorf("gateway returned %d for %s", resp.StatusCode, req.URL.Path)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
