package policy

import "strings"

// ClassifyHTTP classifies an HTTP-surface action purely by method.
func ClassifyHTTP(method string) ActionType {
	switch strings.ToUpper(method) {
	case "GET", "HEAD", "OPTIONS":
		return ActionRead
	default:
		return ActionWrite
	}
}

var (
	gcloudReadVerbs  = map[string]bool{"list": true, "describe": true}
	gcloudWriteVerbs = map[string]bool{
		"create": true, "delete": true, "update": true, "deploy": true,
		"set": true, "enable": true, "disable": true,
	}

	terraformWriteVerbs = map[string]bool{
		"apply": true, "destroy": true, "taint": true, "untaint": true, "import": true,
	}

	kubectlWriteVerbs = map[string]bool{
		"apply": true, "delete": true, "scale": true, "patch": true, "set": true,
		"rollout": true, "expose": true, "autoscale": true, "cordon": true,
		"drain": true, "taint": true,
	}

	ghWritePrefixes = []string{"create", "delete", "update", "edit", "merge", "close", "open", "fork"}

	datadogWriteVerbs = map[string]bool{
		"create": true, "delete": true, "update": true, "edit": true, "set": true,
	}

	linearWriteVerbs = map[string]bool{
		"create": true, "delete": true, "update": true, "edit": true, "set": true,
		"assign": true, "move": true,
	}

	curlWriteMarkers = []string{"-x post", "-x put", "-x patch", "-x delete", "-d "}
)

// ClassifyCLI classifies a tool invocation from its argument vector.
// Rules key on the first positional token (lower-cased), except curl which
// scans the whole command line. Unknown providers classify WRITE.
func ClassifyCLI(provider string, args []string) ActionType {
	verb := firstPositional(args)

	switch strings.ToLower(provider) {
	case "aws":
		for _, p := range []string{"list", "describe", "get"} {
			if strings.HasPrefix(verb, p) {
				return ActionRead
			}
		}
		if verb == "" {
			return ActionRead
		}
		return ActionWrite

	case "gcloud", "gcp":
		if gcloudReadVerbs[verb] {
			return ActionRead
		}
		if gcloudWriteVerbs[verb] {
			return ActionWrite
		}
		return ActionRead

	case "terraform":
		if terraformWriteVerbs[verb] {
			return ActionWrite
		}
		return ActionRead

	case "kubectl":
		if kubectlWriteVerbs[verb] {
			return ActionWrite
		}
		return ActionRead

	case "gh", "github":
		for _, p := range ghWritePrefixes {
			if strings.HasPrefix(verb, p) {
				return ActionWrite
			}
		}
		return ActionRead

	case "curl":
		line := strings.ToLower(strings.Join(args, " "))
		for _, marker := range curlWriteMarkers {
			if strings.Contains(line, marker) {
				return ActionWrite
			}
		}
		return ActionRead

	case "datadog":
		if datadogWriteVerbs[verb] {
			return ActionWrite
		}
		return ActionRead

	case "linear":
		if linearWriteVerbs[verb] {
			return ActionWrite
		}
		return ActionRead

	default:
		// Conservative: unknown tools are treated as mutating.
		return ActionWrite
	}
}

// firstPositional returns the first argument that is not a flag,
// lower-cased. Wrappers may pass global flags before the verb.
func firstPositional(args []string) string {
	for _, a := range args {
		if !strings.HasPrefix(a, "-") {
			return strings.ToLower(a)
		}
	}
	return ""
}
