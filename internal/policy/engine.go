// Package policy classifies actions as read or write and decides whether a
// write needs human approval under the tenant's security mode.
package policy

import (
	"encoding/json"
	"log/slog"
	"os"
	"path"
	"sync"
)

// ActionType classifies one action.
type ActionType string

const (
	ActionRead  ActionType = "read"
	ActionWrite ActionType = "write"
)

// SecurityMode selects how writes are gated for a tenant.
type SecurityMode string

const (
	// ModeStrict gates every write.
	ModeStrict SecurityMode = "strict"
	// ModeCautious gates writes that do not match an exception.
	ModeCautious SecurityMode = "cautious"
)

// Exception exempts matching writes from approval in cautious mode. Absent
// fields act as wildcards; Paths entries are anchored shell-style globs.
type Exception struct {
	Provider string   `json:"provider,omitempty"`
	Methods  []string `json:"methods,omitempty"`
	Paths    []string `json:"paths,omitempty"`
}

// Policy is one tenant's gating configuration.
type Policy struct {
	Mode       SecurityMode `json:"mode"`
	Exceptions []Exception  `json:"exceptions"`
}

// Engine holds per-tenant policies. Tenants without a policy fall back to
// the "default" entry; with no config at all, everything is strict.
type Engine struct {
	mu       sync.RWMutex
	policies map[string]Policy
}

// NewEngine loads policies from the JSON config file. A missing file
// installs a strict default policy.
func NewEngine(policiesFile string) *Engine {
	e := &Engine{policies: map[string]Policy{
		"default": {Mode: ModeStrict},
	}}

	if policiesFile != "" {
		if err := e.loadFile(policiesFile); err != nil {
			slog.Warn("policy file not loaded, all tenants strict", "path", policiesFile, "error", err)
		}
	}

	return e
}

func (e *Engine) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var policies map[string]Policy
	if err := json.Unmarshal(data, &policies); err != nil {
		return err
	}
	if _, ok := policies["default"]; !ok {
		policies["default"] = Policy{Mode: ModeStrict}
	}

	e.mu.Lock()
	e.policies = policies
	e.mu.Unlock()

	slog.Info("policies loaded", "path", path, "tenants", len(policies))
	return nil
}

// Reload re-reads the policy file. Admin action only.
func (e *Engine) Reload(path string) error {
	return e.loadFile(path)
}

// PolicyFor returns the tenant's policy, falling back to "default".
func (e *Engine) PolicyFor(tenantID string) Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if p, ok := e.policies[tenantID]; ok {
		return p
	}
	return e.policies["default"]
}

// RequiresApproval decides whether the action needs a human decision.
// Reads are never gated. Strict mode gates every write; cautious mode
// gates writes not covered by an exception.
func (e *Engine) RequiresApproval(tenantID string, action ActionType, provider, method, reqPath string) bool {
	if action == ActionRead {
		return false
	}

	p := e.PolicyFor(tenantID)
	switch p.Mode {
	case ModeStrict:
		return true
	case ModeCautious:
		for _, exc := range p.Exceptions {
			if exc.matches(provider, method, reqPath) {
				return false
			}
		}
		return true
	default:
		// Unknown mode in config: fail closed.
		return true
	}
}

func (exc Exception) matches(provider, method, reqPath string) bool {
	if exc.Provider != "" && exc.Provider != provider {
		return false
	}
	if len(exc.Methods) > 0 && !contains(exc.Methods, method) {
		return false
	}
	if len(exc.Paths) > 0 {
		for _, pattern := range exc.Paths {
			if ok, err := path.Match(pattern, reqPath); err == nil && ok {
				return true
			}
		}
		return false
	}
	return true
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
