package policy

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyHTTP(t *testing.T) {
	assert.Equal(t, ActionRead, ClassifyHTTP("GET"))
	assert.Equal(t, ActionRead, ClassifyHTTP("head"))
	assert.Equal(t, ActionRead, ClassifyHTTP("OPTIONS"))
	assert.Equal(t, ActionWrite, ClassifyHTTP("POST"))
	assert.Equal(t, ActionWrite, ClassifyHTTP("PUT"))
	assert.Equal(t, ActionWrite, ClassifyHTTP("DELETE"))
}

func TestClassifyCLI(t *testing.T) {
	cases := []struct {
		provider string
		cmdline  string
		want     ActionType
	}{
		{"aws", "list-buckets", ActionRead},
		{"aws", "describe-instances --region us-east-1", ActionRead},
		{"aws", "get-object s3://bucket/key", ActionRead},
		{"aws", "put-object s3://bucket/key", ActionWrite},
		{"aws", "delete-bucket mybucket", ActionWrite},

		{"gcloud", "list", ActionRead},
		{"gcloud", "describe", ActionRead},
		{"gcloud", "create instance", ActionWrite},
		{"gcloud", "deploy app", ActionWrite},
		{"gcloud", "version", ActionRead}, // unknown gcloud verbs default read
		{"gcp", "delete instance", ActionWrite},

		{"terraform", "plan", ActionRead},
		{"terraform", "apply", ActionWrite},
		{"terraform", "destroy -auto-approve", ActionWrite},
		{"terraform", "taint aws_instance.web", ActionWrite},
		{"terraform", "show", ActionRead},

		{"kubectl", "get pods", ActionRead},
		{"kubectl", "apply -f x.yaml", ActionWrite},
		{"kubectl", "delete pod web", ActionWrite},
		{"kubectl", "rollout restart deploy/web", ActionWrite},
		{"kubectl", "logs web", ActionRead},
		{"kubectl", "drain node-1", ActionWrite},

		{"gh", "pr list", ActionRead},
		{"gh", "pr view 42", ActionRead},
		{"gh", "create issue", ActionWrite},
		{"gh", "merge 42", ActionWrite},

		{"curl", "https://example.com", ActionRead},
		{"curl", "-X POST https://example.com", ActionWrite},
		{"curl", "-X DELETE https://example.com", ActionWrite},
		{"curl", "-d {} https://example.com", ActionWrite},
		{"curl", "-I https://example.com", ActionRead},

		{"datadog", "monitor show 1", ActionRead},
		{"datadog", "create monitor", ActionWrite},
		{"linear", "issue view ENG-1", ActionRead},
		{"linear", "assign ENG-1 me", ActionWrite},
		{"linear", "move ENG-1 done", ActionWrite},

		{"mystery-tool", "status", ActionWrite}, // unknown providers are conservative
	}

	for _, tc := range cases {
		got := ClassifyCLI(tc.provider, strings.Fields(tc.cmdline))
		assert.Equalf(t, tc.want, got, "%s %q", tc.provider, tc.cmdline)
	}
}

func TestClassifySkipsLeadingFlags(t *testing.T) {
	assert.Equal(t, ActionWrite, ClassifyCLI("kubectl", []string{"--kubeconfig=/tmp/kc", "delete", "pod", "web"}))
	assert.Equal(t, ActionRead, ClassifyCLI("gh", []string{"--repo=octo/demo", "pr", "list"}))
}

func TestClassifyEmptyArgs(t *testing.T) {
	assert.Equal(t, ActionRead, ClassifyCLI("kubectl", nil))
	assert.Equal(t, ActionRead, ClassifyCLI("aws", nil))
	assert.Equal(t, ActionWrite, ClassifyCLI("something-else", nil))
}
