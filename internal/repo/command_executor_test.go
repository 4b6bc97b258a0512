package repo

import (
	"context"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/miradorstack/mirador-remedy/internal/config"
	"github.com/miradorstack/mirador-remedy/internal/engine"
	"github.com/miradorstack/mirador-remedy/internal/models"
)

func skipWithoutShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}
}

func TestCommandExecutorPassesTarget(t *testing.T) {
	skipWithoutShell(t)
	exec, err := NewCommandExecutor([]string{"/bin/sh", "-c", `test "$MIRADOR_TARGET_ID" = "w7"`}, time.Second)
	if err != nil {
		t.Fatalf("new executor: %v", err)
	}
	if err := exec.Run(context.Background(), models.Target{ID: "w7"}); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if err := exec.Run(context.Background(), models.Target{ID: "other"}); err == nil {
		t.Fatalf("expected failure for mismatched target")
	}
}

func TestCommandExecutorReportsStderr(t *testing.T) {
	skipWithoutShell(t)
	exec, _ := NewCommandExecutor([]string{"/bin/sh", "-c", "echo macro missing >&2; exit 3"}, 0)
	err := exec.Run(context.Background(), models.Target{ID: "w1"})
	if err == nil || !strings.Contains(err.Error(), "macro missing") {
		t.Fatalf("expected stderr in error, got %v", err)
	}
}

func TestCommandExecutorTimeout(t *testing.T) {
	skipWithoutShell(t)
	exec, _ := NewCommandExecutor([]string{"/bin/sh", "-c", "sleep 5"}, 50*time.Millisecond)
	start := time.Now()
	if err := exec.Run(context.Background(), models.Target{}); err == nil {
		t.Fatalf("expected timeout error")
	}
	if time.Since(start) > 3*time.Second {
		t.Fatalf("timeout not enforced")
	}
}

func TestNewCommandExecutorRejectsEmpty(t *testing.T) {
	if _, err := NewCommandExecutor(nil, 0); err == nil {
		t.Fatalf("expected error for empty command")
	}
}

func TestBinderChoosesExecutor(t *testing.T) {
	agent := NewAgentClient(config.Default().Agent)
	bind := Binder(agent, nil)

	if _, ok := bind(engine.CatalogEntry{Name: "macro", Command: []string{"true"}}).(*CommandExecutor); !ok {
		t.Fatalf("expected command executor for entries with a command")
	}
	if bind(engine.CatalogEntry{Name: "mouse_swipe_up"}) == nil {
		t.Fatalf("expected agent executor")
	}
	if Binder(nil, nil)(engine.CatalogEntry{Name: "mouse_swipe_up"}) != nil {
		t.Fatalf("expected nil executor without agent")
	}
}
