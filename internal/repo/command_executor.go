package repo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/miradorstack/mirador-remedy/internal/engine"
	"github.com/miradorstack/mirador-remedy/internal/models"
)

const defaultCommandTimeout = 10 * time.Second

// CommandExecutor runs an external program as an action. The target is
// passed through MIRADOR_TARGET_ID and MIRADOR_TARGET_TITLE.
type CommandExecutor struct {
	argv    []string
	timeout time.Duration
}

// NewCommandExecutor returns an executor for argv. A zero timeout uses 10s.
func NewCommandExecutor(argv []string, timeout time.Duration) (*CommandExecutor, error) {
	if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
		return nil, errors.New("command executor: empty command")
	}
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	return &CommandExecutor{argv: append([]string(nil), argv...), timeout: timeout}, nil
}

// Run executes the command and fails on a non-zero exit.
func (e *CommandExecutor) Run(ctx context.Context, target models.Target) error {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, e.argv[0], e.argv[1:]...)
	cmd.Env = append(os.Environ(),
		"MIRADOR_TARGET_ID="+target.ID,
		"MIRADOR_TARGET_TITLE="+target.Title,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%s: %w: %s", e.argv[0], err, msg)
		}
		return fmt.Errorf("%s: %w", e.argv[0], err)
	}
	return nil
}

// Binder resolves catalog entries to executors: entries with a command run
// locally, everything else is delegated to the agent.
func Binder(agent *AgentClient, logger *slog.Logger) func(engine.CatalogEntry) engine.Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return func(entry engine.CatalogEntry) engine.Executor {
		if len(entry.Command) > 0 {
			runner, err := NewCommandExecutor(entry.Command, entry.CommandTimeout())
			if err != nil {
				logger.Error("cannot bind command action", slog.String("action", entry.Name), slog.Any("error", err))
				return nil
			}
			return runner
		}
		if agent == nil {
			return nil
		}
		return agent.Executor(entry.Name)
	}
}
