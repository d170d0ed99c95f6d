// Package proxy forwards admitted requests to provider APIs with
// credential injection and response scrubbing.
package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/trustgate/gateway/internal/credentials"
)

var (
	// ErrMethodNotAllowed marks an unrecognized HTTP method.
	ErrMethodNotAllowed = errors.New("method not allowed")
	// ErrUpstream wraps transport failures talking to the provider.
	ErrUpstream = errors.New("upstream request failed")
	// ErrSigningRequired rejects providers whose requests need
	// cryptographic signing this path does not perform. AWS SigV4 traffic
	// must use the CLI wrapper path instead.
	ErrSigningRequired = errors.New("provider requires request signing; use the CLI wrapper path")
)

// defaultBaseURLs maps known providers to their API roots. Unknown
// providers fall back to the configurable default base.
var defaultBaseURLs = map[string]string{
	"github":  "https://api.github.com",
	"gcp":     "https://www.googleapis.com",
	"slack":   "https://slack.com/api",
	"datadog": "https://api.datadoghq.com",
	"linear":  "https://api.linear.app/graphql",
}

var allowedMethods = map[string]bool{
	http.MethodGet: true, http.MethodPost: true, http.MethodPut: true,
	http.MethodPatch: true, http.MethodDelete: true, http.MethodHead: true,
	http.MethodOptions: true,
}

// gatewayHeaders are internal to the admission pipeline and stripped before
// forwarding.
var gatewayHeaders = []string{"Authorization", "X-Creds", "X-Provider"}

// hopHeaders are connection-scoped and never forwarded in either direction.
var hopHeaders = []string{
	"Connection", "Keep-Alive", "Proxy-Authorization", "Proxy-Authenticate",
	"Te", "Trailer", "Transfer-Encoding", "Upgrade",
}

// sensitiveResponseHeaders are scrubbed from provider responses before they
// reach the client.
var sensitiveResponseHeaders = []string{"Authorization", "X-Api-Key", "Cookie", "Set-Cookie"}

// Result is the scrubbed outcome of one forwarded request.
type Result struct {
	StatusCode int
	Body       []byte
	Header     http.Header
}

// Forwarder issues outbound provider requests with a bounded timeout.
type Forwarder struct {
	client      *http.Client
	baseURLs    map[string]string
	defaultBase string
}

// NewForwarder builds a forwarder. overrides replace or extend the built-in
// provider table; defaultBase serves unknown providers.
func NewForwarder(timeout time.Duration, defaultBase string, overrides map[string]string) *Forwarder {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if defaultBase == "" {
		defaultBase = "https://api.example.com"
	}

	baseURLs := make(map[string]string, len(defaultBaseURLs)+len(overrides))
	for k, v := range defaultBaseURLs {
		baseURLs[k] = v
	}
	for k, v := range overrides {
		baseURLs[k] = v
	}

	return &Forwarder{
		client:      &http.Client{Timeout: timeout},
		baseURLs:    baseURLs,
		defaultBase: defaultBase,
	}
}

// Forward sends the request to the provider's API, injecting credentials
// and scrubbing both directions. The inbound Authorization, X-Creds, and
// X-Provider headers never leave the gateway.
func (f *Forwarder) Forward(ctx context.Context, method, path string, inbound http.Header, body []byte, creds credentials.Bundle, provider string) (*Result, error) {
	method = strings.ToUpper(method)
	if !allowedMethods[method] {
		return nil, fmt.Errorf("%w: %s", ErrMethodNotAllowed, method)
	}

	base, ok := f.baseURLs[provider]
	if !ok {
		base = f.defaultBase
	}
	url := strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(path, "/")

	outbound := scrubOutbound(inbound)
	if creds != nil {
		injected, err := InjectHeaders(provider, creds)
		if err != nil {
			return nil, err
		}
		for k, v := range injected {
			outbound.Set(k, v)
		}
	}

	var reqBody io.Reader
	if len(body) > 0 {
		reqBody = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	req.Header = outbound

	slog.Debug("forwarding request", "method", method, "provider", provider, "path", path)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrUpstream, err)
	}

	return &Result{
		StatusCode: resp.StatusCode,
		Body:       respBody,
		Header:     scrubResponse(resp.Header),
	}, nil
}

func scrubOutbound(inbound http.Header) http.Header {
	out := make(http.Header, len(inbound))
	for k, vs := range inbound {
		out[k] = append([]string(nil), vs...)
	}
	for _, h := range gatewayHeaders {
		out.Del(h)
	}
	for _, h := range hopHeaders {
		out.Del(h)
	}
	// Host is derived from the target URL, not relayed.
	out.Del("Host")
	return out
}

func scrubResponse(upstream http.Header) http.Header {
	out := make(http.Header, len(upstream))
	for k, vs := range upstream {
		out[k] = append([]string(nil), vs...)
	}
	for _, h := range sensitiveResponseHeaders {
		out.Del(h)
	}
	for _, h := range hopHeaders {
		out.Del(h)
	}
	return out
}
