// toolwrap is the restricted-shell wrapper binary. Installed once and
// symlinked per tool (aws, gcloud, gh, terraform, kubectl, datadog, linear,
// curl), or invoked by sshd's ForceCommand with SSH_ORIGINAL_COMMAND set.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/trustgate/gateway/internal/wrapper"
)

var allowedTools = map[string]bool{
	"aws": true, "gcloud": true, "gh": true, "terraform": true,
	"kubectl": true, "datadog": true, "linear": true, "curl": true,
}

func main() {
	setupLogging()

	tool, args, err := resolveInvocation()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if !allowedTools[tool] {
		fmt.Fprintf(os.Stderr, "Error: Command '%s' is not allowed\n", tool)
		os.Exit(1)
	}

	w := wrapper.New(tool, args, wrapper.ConfigFromEnv())
	os.Exit(w.Run(context.Background()))
}

// resolveInvocation determines the wrapped tool. Symlink installs carry the
// tool in argv[0]; the ssh front-end passes the whole command line in
// SSH_ORIGINAL_COMMAND instead.
func resolveInvocation() (string, []string, error) {
	if cmdline := os.Getenv("SSH_ORIGINAL_COMMAND"); cmdline != "" {
		parts := strings.Fields(cmdline)
		if len(parts) == 0 {
			return "", nil, fmt.Errorf("no command provided")
		}
		return parts[0], parts[1:], nil
	}

	self := filepath.Base(os.Args[0])
	if self != "toolwrap" {
		return self, os.Args[1:], nil
	}

	if len(os.Args) < 2 {
		return "", nil, fmt.Errorf("usage: toolwrap <tool> [args...]")
	}
	return os.Args[1], os.Args[2:], nil
}

func setupLogging() {
	level := slog.LevelWarn
	if strings.EqualFold(os.Getenv("LOG_LEVEL"), "debug") || strings.EqualFold(os.Getenv("DEBUG"), "true") {
		level = slog.LevelDebug
	}
	// The wrapper shares the tool's stderr; keep its own logging quiet.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
