package proxy

import (
	"github.com/trustgate/gateway/internal/credentials"
)

// headerInjector maps a credential bundle to the headers a provider's API
// expects. Injectors are pure so each provider stays isolated and testable.
type headerInjector func(creds credentials.Bundle) map[string]string

var headerInjectors = map[string]headerInjector{
	"github":  injectGitHub,
	"slack":   injectBearer,
	"gcp":     injectBearer,
	"linear":  injectBearer,
	"datadog": injectDatadog,
}

// InjectHeaders returns the provider-specific auth headers derived from the
// bundle. AWS is rejected: its requests need SigV4 signing over the full
// canonical request, which this forward path does not perform.
func InjectHeaders(provider string, creds credentials.Bundle) (map[string]string, error) {
	if provider == "aws" {
		return nil, ErrSigningRequired
	}
	inject, ok := headerInjectors[provider]
	if !ok {
		return map[string]string{}, nil
	}
	return inject(creds), nil
}

func injectGitHub(creds credentials.Bundle) map[string]string {
	headers := map[string]string{}
	if token, ok := creds["token"]; ok {
		headers["Authorization"] = "token " + token
	} else if bearer, ok := creds["bearer_token"]; ok {
		headers["Authorization"] = "Bearer " + bearer
	}
	return headers
}

// injectBearer covers providers that take a plain bearer token, whichever
// field name the bundle stores it under.
func injectBearer(creds credentials.Bundle) map[string]string {
	for _, field := range []string{"token", "bearer_token", "api_key"} {
		if v, ok := creds[field]; ok {
			return map[string]string{"Authorization": "Bearer " + v}
		}
	}
	return map[string]string{}
}

func injectDatadog(creds credentials.Bundle) map[string]string {
	headers := map[string]string{}
	if v, ok := creds["api_key"]; ok {
		headers["DD-API-KEY"] = v
	}
	if v, ok := creds["app_key"]; ok {
		headers["DD-APPLICATION-KEY"] = v
	}
	return headers
}
