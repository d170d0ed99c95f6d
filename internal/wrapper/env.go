package wrapper

import (
	"os"
	"strings"

	"github.com/trustgate/gateway/internal/credentials"
)

// sensitiveMarkers flag parent environment variables that must not leak
// into the child. Matching is on the upper-cased name.
var sensitiveMarkers = []string{"KEY", "SECRET", "TOKEN", "PASSWORD"}

// ScrubEnv drops every variable whose name contains a sensitive marker.
func ScrubEnv(environ []string) []string {
	out := make([]string, 0, len(environ))
	for _, kv := range environ {
		name, _, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if isSensitiveName(name) {
			continue
		}
		out = append(out, kv)
	}
	return out
}

func isSensitiveName(name string) bool {
	upper := strings.ToUpper(name)
	for _, marker := range sensitiveMarkers {
		if strings.Contains(upper, marker) {
			return true
		}
	}
	return false
}

// BuildEnv scrubs the parent environment and overlays the provider-specific
// credential variables for this invocation. The returned cleanup removes
// any temp files the injection created (gcloud service-account JSON).
func BuildEnv(tool string, environ []string, bundle credentials.Bundle) ([]string, func(), error) {
	env := ScrubEnv(environ)
	cleanup := func() {}

	if bundle == nil {
		return env, cleanup, nil
	}

	switch tool {
	case "aws":
		env = appendIf(env, bundle, "access_key", "AWS_ACCESS_KEY_ID")
		env = appendIf(env, bundle, "secret_key", "AWS_SECRET_ACCESS_KEY")
		env = appendIf(env, bundle, "session_token", "AWS_SESSION_TOKEN")
		env = appendIf(env, bundle, "region", "AWS_REGION")

	case "gcloud", "gcp":
		if creds, ok := bundle["credentials_json"]; ok {
			path, err := writeTempCredentials(creds)
			if err != nil {
				return nil, cleanup, err
			}
			env = append(env, "GOOGLE_APPLICATION_CREDENTIALS="+path)
			cleanup = func() { os.Remove(path) }
		}
		env = appendIf(env, bundle, "project_id", "GCLOUD_PROJECT")

	case "gh":
		env = appendIf(env, bundle, "token", "GH_TOKEN")
		env = appendIf(env, bundle, "host", "GH_HOST")

	case "kubectl":
		env = appendIf(env, bundle, "kubeconfig", "KUBECONFIG")

	case "terraform":
		env = appendIf(env, bundle, "token", "TF_VAR_api_token")
		env = appendIf(env, bundle, "credentials_json", "GOOGLE_APPLICATION_CREDENTIALS")

	case "datadog":
		env = appendIf(env, bundle, "api_key", "DD_API_KEY")
		env = appendIf(env, bundle, "app_key", "DD_APP_KEY")

	case "linear":
		env = appendIf(env, bundle, "api_key", "LINEAR_API_KEY")

	case "curl":
		env = appendIf(env, bundle, "token", "GATEWAY_BEARER_TOKEN")
	}

	return env, cleanup, nil
}

func appendIf(env []string, bundle credentials.Bundle, field, varName string) []string {
	if v, ok := bundle[field]; ok {
		return append(env, varName+"="+v)
	}
	return env
}

func writeTempCredentials(contents string) (string, error) {
	f, err := os.CreateTemp("", "gateway-sa-*.json")
	if err != nil {
		return "", err
	}
	defer f.Close()

	if _, err := f.WriteString(contents); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Chmod(0o600); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}
