package utils

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestFormatUptime(t *testing.T) {
	cases := map[time.Duration]string{
		0:                                  "0s",
		42 * time.Second:                   "42s",
		3*time.Minute + 5*time.Second:      "3m05s",
		2*time.Hour + 7*time.Minute + 1500: "2h07m00s",
		-time.Second:                       "0s",
	}
	for in, want := range cases {
		if got := FormatUptime(in); got != want {
			t.Fatalf("FormatUptime(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestRatio(t *testing.T) {
	if Ratio(3, 0) != 0 {
		t.Fatalf("expected 0 for empty denominator")
	}
	if Ratio(1, 4) != 0.25 {
		t.Fatalf("expected 0.25")
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("DEBUG") != slog.LevelDebug || ParseLevel("bogus") != slog.LevelInfo {
		t.Fatalf("unexpected level mapping")
	}
}

func TestAppErrorUnwraps(t *testing.T) {
	cause := errors.New("disk full")
	err := NewAppError("state.save", "write registry", cause)
	if !errors.Is(err, cause) {
		t.Fatalf("expected AppError to unwrap to cause")
	}
	if !strings.Contains(err.Error(), "state.save: write registry") {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestFileLoggerWritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "remedy.log")
	logger, closer, err := NewFileLogger("info", false, path)
	if err != nil {
		t.Fatalf("new file logger: %v", err)
	}
	logger.Debug("hidden")
	logger.Info("resolution finished", slog.String("action", "mouse_swipe_up"))
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	text := string(data)
	if !strings.Contains(text, `"action":"mouse_swipe_up"`) || strings.Contains(text, "hidden") {
		t.Fatalf("unexpected log file contents: %s", text)
	}
}

func TestWrapOp(t *testing.T) {
	if WrapOp("noop", nil) != nil {
		t.Fatalf("expected nil for nil error")
	}
	err := WrapOp("history.record", errors.New("locked"))
	if OpOf(err) != "history.record" || err.Error() != "history.record: locked" {
		t.Fatalf("unexpected wrap: %v", err)
	}
	if OpOf(errors.New("plain")) != "" {
		t.Fatalf("plain errors carry no op")
	}
}
