package proxy

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trustgate/gateway/internal/credentials"
)

func TestForwardStripsGatewayHeadersAndInjects(t *testing.T) {
	var received *http.Request
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received = r.Clone(context.Background())
		w.Header().Set("Authorization", "leaked")
		w.Header().Set("X-Api-Key", "leaked")
		w.Header().Set("Set-Cookie", "session=leaked")
		w.Header().Set("X-RateLimit-Remaining", "42")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"login":"octocat"}`))
	}))
	defer upstream.Close()

	f := NewForwarder(5*time.Second, "", map[string]string{"github": upstream.URL})

	inbound := http.Header{}
	inbound.Set("Authorization", "Bearer session-token")
	inbound.Set("X-Creds", "default:github:personal")
	inbound.Set("X-Provider", "github")
	inbound.Set("Accept", "application/vnd.github+json")

	bundle := credentials.Bundle{"token": "ghs_test_token_12345"}
	result, err := f.Forward(context.Background(), "GET", "user", inbound, nil, bundle, "github")
	require.NoError(t, err)

	require.NotNil(t, received)
	assert.Equal(t, "/user", received.URL.Path)
	assert.Equal(t, "token ghs_test_token_12345", received.Header.Get("Authorization"))
	assert.Empty(t, received.Header.Get("X-Creds"))
	assert.Empty(t, received.Header.Get("X-Provider"))
	assert.Equal(t, "application/vnd.github+json", received.Header.Get("Accept"))

	// Sensitive response headers are scrubbed; the rest pass through.
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Empty(t, result.Header.Get("Authorization"))
	assert.Empty(t, result.Header.Get("X-Api-Key"))
	assert.Empty(t, result.Header.Get("Set-Cookie"))
	assert.Equal(t, "42", result.Header.Get("X-RateLimit-Remaining"))
	assert.JSONEq(t, `{"login":"octocat"}`, string(result.Body))
}

func TestForwardBody(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, `{"title":"bug"}`, string(body))
		w.WriteHeader(http.StatusCreated)
	}))
	defer upstream.Close()

	f := NewForwarder(5*time.Second, "", map[string]string{"github": upstream.URL})

	result, err := f.Forward(context.Background(), "POST", "repos/o/r/issues", http.Header{}, []byte(`{"title":"bug"}`), nil, "github")
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, result.StatusCode)
}

func TestForwardUnknownProviderUsesDefaultBase(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/some/path", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	f := NewForwarder(5*time.Second, upstream.URL, nil)

	result, err := f.Forward(context.Background(), "GET", "some/path", http.Header{}, nil, nil, "something-new")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, result.StatusCode)
}

func TestForwardMethodNotAllowed(t *testing.T) {
	f := NewForwarder(time.Second, "", nil)

	_, err := f.Forward(context.Background(), "TRACE", "user", http.Header{}, nil, nil, "github")
	assert.ErrorIs(t, err, ErrMethodNotAllowed)
}

func TestForwardUpstreamFailure(t *testing.T) {
	f := NewForwarder(time.Second, "", map[string]string{"github": "http://127.0.0.1:1"})

	_, err := f.Forward(context.Background(), "GET", "user", http.Header{}, nil, nil, "github")
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestForwardRejectsUnsignedAWS(t *testing.T) {
	f := NewForwarder(time.Second, "", nil)

	bundle := credentials.Bundle{"access_key": "AKIA...", "secret_key": "..."}
	_, err := f.Forward(context.Background(), "GET", "buckets", http.Header{}, nil, bundle, "aws")
	assert.ErrorIs(t, err, ErrSigningRequired)
}
