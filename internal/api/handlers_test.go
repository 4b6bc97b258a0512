package api

import (
	"testing"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/mirador-remedy/internal/engine"
	"github.com/miradorstack/mirador-remedy/internal/models"
)

func mustStruct(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	if err != nil {
		t.Fatalf("new struct: %v", err)
	}
	return s
}

func TestFromProtoTriggerRequest(t *testing.T) {
	target, err := FromProtoTriggerRequest(mustStruct(t, map[string]any{"target_id": " w1 ", "title": "TikTok", "width": 420}))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if target.ID != "w1" || target.Title != "TikTok" || target.Width != 420 {
		t.Fatalf("unexpected target: %+v", target)
	}
	if _, err := FromProtoTriggerRequest(mustStruct(t, map[string]any{"title": "x"})); err == nil {
		t.Fatalf("expected error without target_id")
	}
}

func TestFromProtoUpdateActionRequest(t *testing.T) {
	name, enabled, err := FromProtoUpdateActionRequest(mustStruct(t, map[string]any{"name": "external_macro", "enabled": true}))
	if err != nil || name != "external_macro" || !enabled {
		t.Fatalf("unexpected parse: %s %v %v", name, enabled, err)
	}
	if _, _, err := FromProtoUpdateActionRequest(mustStruct(t, map[string]any{"name": "a", "enabled": "yes"})); err == nil {
		t.Fatalf("expected error for non-boolean enabled")
	}
}

func TestFromProtoListResolutionsRequest(t *testing.T) {
	if n, err := FromProtoListResolutionsRequest(nil); err != nil || n != 20 {
		t.Fatalf("expected default limit 20, got %d %v", n, err)
	}
	if n, _ := FromProtoListResolutionsRequest(mustStruct(t, map[string]any{"limit": 5})); n != 5 {
		t.Fatalf("expected 5, got %d", n)
	}
	for _, bad := range []any{0, 2.5, 10_000} {
		if _, err := FromProtoListResolutionsRequest(mustStruct(t, map[string]any{"limit": bad})); err == nil {
			t.Fatalf("limit %v should be rejected", bad)
		}
	}
}

func TestToProtoResolution(t *testing.T) {
	res := models.Resolution{
		ID:        "01J00000000000000000000000",
		TargetID:  "w1",
		Status:    models.ResolutionSuccess,
		Action:    "mouse_swipe_up",
		Cycles:    1,
		StartedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Duration:  1250 * time.Millisecond,
		Trail: []models.AttemptOutcome{
			{Action: "enhanced_keyboard", Cycle: 1, Duration: 200 * time.Millisecond, Err: "boom"},
			{Action: "mouse_swipe_up", Cycle: 1, Succeeded: true, Duration: 900 * time.Millisecond, Fingerprint: "bb22"},
		},
		BaselineFingerprint: "aa11",
	}
	out := ToProtoResolution(res).AsMap()
	if out["status"] != "success" || out["attempts"] != 2.0 || out["duration_ms"] != 1250.0 {
		t.Fatalf("unexpected resolution payload: %v", out)
	}
	if out["started_at"] != "2026-01-02T03:04:05Z" {
		t.Fatalf("unexpected started_at: %v", out["started_at"])
	}
	trail := out["trail"].([]any)
	first := trail[0].(map[string]any)
	if first["error"] != "boom" || first["succeeded"] != false {
		t.Fatalf("unexpected first attempt: %v", first)
	}
	if _, ok := trail[1].(map[string]any)["error"]; ok {
		t.Fatalf("successful attempt must not carry an error field")
	}
	if out["baseline_fingerprint"] != "aa11" || trail[1].(map[string]any)["fingerprint"] != "bb22" {
		t.Fatalf("fingerprints not surfaced: %v", out)
	}
	if _, ok := first["fingerprint"]; ok {
		t.Fatalf("attempt without a capture must not carry a fingerprint")
	}
}

func TestToProtoStatsAndStatus(t *testing.T) {
	report := models.StatsReport{
		Session: models.SessionTotals{SessionID: "s1", TotalTriggers: 4, TotalSuccesses: 3},
		Uptime:  90 * time.Second,
		Actions: []models.Action{{Name: "a", Priority: 1, Enabled: true, Attempts: 4, Successes: 3}},
	}
	out := ToProtoStats(report).AsMap()
	if out["success_ratio"] != 0.75 || out["uptime_seconds"] != 90.0 || out["started_at"] != nil {
		t.Fatalf("unexpected stats payload: %v", out)
	}
	action := out["actions"].([]any)[0].(map[string]any)
	if action["success_rate"] != 0.75 {
		t.Fatalf("unexpected action payload: %v", action)
	}

	status := ToProtoStatus(engine.Status{State: engine.StateResolvedSuccess, Action: "a", Cycle: 1}).AsMap()
	if status["state"] != "RESOLVED_SUCCESS" || status["terminal"] != true {
		t.Fatalf("unexpected status payload: %v", status)
	}
}
