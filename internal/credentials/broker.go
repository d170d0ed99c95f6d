// Package credentials resolves (tenant, selector) pairs to credential
// bundles from an in-memory cache, the environment, or pluggable backends.
// Bundle values must never reach logs or error messages.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
)

// ErrNotFound is returned when every resolver misses.
var ErrNotFound = errors.New("credentials not found")

// Bundle is an immutable set of provider-specific credential fields
// (token, access_key, secret_key, api_key, ...). Callers always receive a
// defensive copy.
type Bundle map[string]string

// Clone returns an independent copy of the bundle.
func (b Bundle) Clone() Bundle {
	out := make(Bundle, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// Redacted lists the field names only, for logging.
func (b Bundle) Redacted() string {
	fields := make([]string, 0, len(b))
	for k := range b {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	return "[" + strings.Join(fields, " ") + "]"
}

// Broker resolves selectors against the cache, the process environment, and
// the configured backends, in that order.
type Broker struct {
	mu       sync.RWMutex
	cache    map[string]Bundle // "tenant:selector" → bundle
	backends []Backend
}

// NewBroker loads the credentials file (JSON: {"tenant:selector": {field:
// value}}) into the cache. A missing file is not an error; the broker then
// serves only env and backend lookups.
func NewBroker(credentialsFile string, backends ...Backend) *Broker {
	b := &Broker{
		cache:    make(map[string]Bundle),
		backends: backends,
	}

	if credentialsFile != "" {
		if err := b.loadFile(credentialsFile); err != nil {
			slog.Warn("credentials file not loaded", "path", credentialsFile, "error", err)
		}
	}

	return b
}

func (b *Broker) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var cache map[string]Bundle
	if err := json.Unmarshal(data, &cache); err != nil {
		return err
	}

	b.mu.Lock()
	b.cache = cache
	b.mu.Unlock()

	slog.Info("credentials loaded", "path", path, "entries", len(cache))
	return nil
}

// Reload re-reads the credentials file. Admin action only.
func (b *Broker) Reload(path string) error {
	return b.loadFile(path)
}

// Get resolves a bundle for the tenant and selector. Resolution order:
// cache, CRED_<TENANT>_<SELECTOR> environment variable, configured
// backends. Returns ErrNotFound when everything misses.
func (b *Broker) Get(ctx context.Context, tenantID, selector string) (Bundle, error) {
	key := tenantID + ":" + selector

	b.mu.RLock()
	cached, ok := b.cache[key]
	b.mu.RUnlock()
	if ok {
		slog.Debug("credentials resolved from cache", "selector", selector)
		return cached.Clone(), nil
	}

	if envKey := envVarName(tenantID, selector); envKey != "" {
		if v, ok := os.LookupEnv(envKey); ok {
			slog.Debug("credentials resolved from environment", "selector", selector)
			return Bundle{"token": v}, nil
		}
	}

	for _, backend := range b.backends {
		bundle, err := backend.Get(ctx, tenantID, selector)
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrBackendNotConfigured) {
			continue
		}
		if err != nil {
			slog.Warn("credential backend lookup failed", "backend", backend.Name(), "selector", selector, "error", err)
			continue
		}
		slog.Debug("credentials resolved from backend", "backend", backend.Name(), "selector", selector)
		return bundle.Clone(), nil
	}

	slog.Warn("credentials not found", "tenant", tenantID, "selector", selector)
	return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
}

// envVarName maps (tenant, selector) to CRED_<TENANT>_<SELECTOR>, upper-
// cased with "-" and ":" folded to "_".
func envVarName(tenantID, selector string) string {
	sanitize := func(s string) string {
		s = strings.ToUpper(s)
		s = strings.ReplaceAll(s, "-", "_")
		return strings.ReplaceAll(s, ":", "_")
	}
	return "CRED_" + sanitize(tenantID) + "_" + sanitize(selector)
}
