package credentials

import (
	"context"
	"errors"
	"time"
)

// ErrBackendNotConfigured marks a backend stub whose transport is not wired
// into this build. The broker skips it and tries the next resolver.
var ErrBackendNotConfigured = errors.New("credential backend not configured")

// Backend is an external secret store the broker can consult after the
// cache and environment miss.
type Backend interface {
	Name() string
	Get(ctx context.Context, tenantID, selector string) (Bundle, error)
}

// RedisClient is the minimal Redis surface the backend needs. The concrete
// go-redis client is constructed and injected in cmd/gatewayd so this
// package does not depend on a specific driver.
type RedisClient interface {
	HGetAll(ctx context.Context, key string) (map[string]string, error)
}

// RedisBackend reads bundles from Redis hashes at
// <prefix><tenant>:<selector>.
type RedisBackend struct {
	client    RedisClient
	keyPrefix string
	timeout   time.Duration
}

func NewRedisBackend(client RedisClient, keyPrefix string) *RedisBackend {
	if keyPrefix == "" {
		keyPrefix = "gateway:creds:"
	}
	return &RedisBackend{client: client, keyPrefix: keyPrefix, timeout: 5 * time.Second}
}

func (r *RedisBackend) Name() string { return "redis" }

func (r *RedisBackend) Get(ctx context.Context, tenantID, selector string) (Bundle, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	fields, err := r.client.HGetAll(ctx, r.keyPrefix+tenantID+":"+selector)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return Bundle(fields), nil
}

// The remaining backends are enumerated integration points. Their
// transports live outside this repository; until one is wired in, lookups
// fall through to the next resolver.

type OnePasswordBackend struct{}

func NewOnePasswordBackend() *OnePasswordBackend { return &OnePasswordBackend{} }

func (o *OnePasswordBackend) Name() string { return "1password" }

func (o *OnePasswordBackend) Get(ctx context.Context, tenantID, selector string) (Bundle, error) {
	return nil, ErrBackendNotConfigured
}

type VaultBackend struct{}

func NewVaultBackend() *VaultBackend { return &VaultBackend{} }

func (v *VaultBackend) Name() string { return "vault" }

func (v *VaultBackend) Get(ctx context.Context, tenantID, selector string) (Bundle, error) {
	return nil, ErrBackendNotConfigured
}

type AWSSecretsBackend struct{}

func NewAWSSecretsBackend() *AWSSecretsBackend { return &AWSSecretsBackend{} }

func (a *AWSSecretsBackend) Name() string { return "aws-secrets-manager" }

func (a *AWSSecretsBackend) Get(ctx context.Context, tenantID, selector string) (Bundle, error) {
	return nil, ErrBackendNotConfigured
}
