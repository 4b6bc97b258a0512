package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/miradorstack/mirador-remedy/internal/api"
	"github.com/miradorstack/mirador-remedy/internal/models"
)

func TestClientAddress(t *testing.T) {
	if got := clientAddress(":50061"); got != "127.0.0.1:50061" {
		t.Fatalf("unexpected address %q", got)
	}
	if got := clientAddress("engine:50061"); got != "engine:50061" {
		t.Fatalf("unexpected address %q", got)
	}
}

func TestPrintActions(t *testing.T) {
	payload := api.ToProtoActions([]models.Action{
		{Name: "mouse_swipe_up", Priority: 2, Enabled: true, Attempts: 4, Successes: 3},
	}).AsMap()

	var buf bytes.Buffer
	printActions(&buf, "Actions", list(payload, "actions"))
	out := buf.String()
	for _, want := range []string{"NAME", "mouse_swipe_up", "75.0%"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}

	buf.Reset()
	printActions(&buf, "Actions", nil)
	if !strings.Contains(buf.String(), "No actions registered") {
		t.Fatalf("unexpected empty output: %q", buf.String())
	}
}

func TestPrintResolutionDetail(t *testing.T) {
	payload := api.ToProtoResolution(models.Resolution{
		ID:       "r1",
		TargetID: "w1",
		Status:   models.ResolutionFailure,
		Cycles:   1,
		Duration: 2 * time.Second,
		Trail: []models.AttemptOutcome{
			{Action: "enhanced_keyboard", Cycle: 1, Duration: 300 * time.Millisecond, Err: "execute enhanced_keyboard: agent unavailable"},
			{Action: "mouse_swipe_up", Cycle: 1, Duration: 400 * time.Millisecond, Fingerprint: "0123456789abcdef0123"},
		},
		BaselineFingerprint: "0123456789abcdef0123",
	}).AsMap()

	var buf bytes.Buffer
	printResolutionDetail(&buf, payload)
	out := buf.String()
	for _, want := range []string{"r1", "enhanced_keyboard", "agent unavailable", "300ms", "Baseline state: 0123456789ab", "0123456789ab (unchanged)"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}
