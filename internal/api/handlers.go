package api

import (
	"fmt"
	"math"
	"strings"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/mirador-remedy/internal/engine"
	"github.com/miradorstack/mirador-remedy/internal/models"
)

const maxListLimit = 500

// FromProtoTriggerRequest maps {target_id, title?} into a domain Target.
func FromProtoTriggerRequest(req *structpb.Struct) (models.Target, error) {
	if req == nil {
		return models.Target{}, fmt.Errorf("request is nil")
	}
	fields := req.GetFields()
	id := strings.TrimSpace(fields["target_id"].GetStringValue())
	if id == "" {
		return models.Target{}, fmt.Errorf("target_id is required")
	}
	return models.Target{
		ID:     id,
		Title:  fields["title"].GetStringValue(),
		Width:  int(fields["width"].GetNumberValue()),
		Height: int(fields["height"].GetNumberValue()),
	}, nil
}

// FromProtoUpdateActionRequest maps {name, enabled}.
func FromProtoUpdateActionRequest(req *structpb.Struct) (string, bool, error) {
	if req == nil {
		return "", false, fmt.Errorf("request is nil")
	}
	fields := req.GetFields()
	name := strings.TrimSpace(fields["name"].GetStringValue())
	if name == "" {
		return "", false, fmt.Errorf("name is required")
	}
	enabled, ok := fields["enabled"].GetKind().(*structpb.Value_BoolValue)
	if !ok {
		return "", false, fmt.Errorf("enabled must be a boolean")
	}
	return name, enabled.BoolValue, nil
}

// FromProtoListResolutionsRequest extracts {limit?}. A missing limit is 20.
func FromProtoListResolutionsRequest(req *structpb.Struct) (int, error) {
	v, ok := req.GetFields()["limit"]
	if !ok {
		return 20, nil
	}
	n := v.GetNumberValue()
	if n != math.Trunc(n) || n < 1 || n > maxListLimit {
		return 0, fmt.Errorf("limit must be an integer between 1 and %d", maxListLimit)
	}
	return int(n), nil
}

// ToProtoResolution converts a resolution and its attempt trail.
func ToProtoResolution(res models.Resolution) *structpb.Struct {
	trail := make([]*structpb.Value, 0, len(res.Trail))
	for _, a := range res.Trail {
		attempt := fields{
			"action":      structpb.NewStringValue(a.Action),
			"cycle":       structpb.NewNumberValue(float64(a.Cycle)),
			"succeeded":   structpb.NewBoolValue(a.Succeeded),
			"duration_ms": millis(a.Duration),
		}
		if a.Err != "" {
			attempt["error"] = structpb.NewStringValue(a.Err)
		}
		if a.Fingerprint != "" {
			attempt["fingerprint"] = structpb.NewStringValue(a.Fingerprint)
		}
		trail = append(trail, structpb.NewStructValue(attempt.build()))
	}
	out := fields{
		"id":          structpb.NewStringValue(res.ID),
		"target_id":   structpb.NewStringValue(res.TargetID),
		"status":      structpb.NewStringValue(string(res.Status)),
		"action":      structpb.NewStringValue(res.Action),
		"cycles":      structpb.NewNumberValue(float64(res.Cycles)),
		"attempts":    structpb.NewNumberValue(float64(res.Attempts())),
		"started_at":  timestamp(res.StartedAt),
		"duration_ms": millis(res.Duration),
		"trail":       structpb.NewListValue(&structpb.ListValue{Values: trail}),
	}
	if res.BaselineFingerprint != "" {
		out["baseline_fingerprint"] = structpb.NewStringValue(res.BaselineFingerprint)
	}
	return out.build()
}

// ToProtoResolutions wraps a list of resolutions as {resolutions: [...]}.
func ToProtoResolutions(list []models.Resolution) *structpb.Struct {
	values := make([]*structpb.Value, 0, len(list))
	for _, res := range list {
		values = append(values, structpb.NewStructValue(ToProtoResolution(res)))
	}
	return fields{"resolutions": structpb.NewListValue(&structpb.ListValue{Values: values})}.build()
}

// ToProtoActions converts the action table as {actions: [...]}.
func ToProtoActions(actions []models.Action) *structpb.Struct {
	return fields{"actions": actionList(actions)}.build()
}

// ToProtoStats converts the detailed statistics report.
func ToProtoStats(report models.StatsReport) *structpb.Struct {
	return fields{
		"session_id":      structpb.NewStringValue(report.Session.SessionID),
		"started_at":      timestamp(report.Session.StartedAt),
		"uptime_seconds":  structpb.NewNumberValue(math.Floor(report.Uptime.Seconds())),
		"total_triggers":  structpb.NewNumberValue(float64(report.Session.TotalTriggers)),
		"total_successes": structpb.NewNumberValue(float64(report.Session.TotalSuccesses)),
		"success_ratio":   structpb.NewNumberValue(report.Session.SuccessRatio()),
		"attempt_p50_ms":  millis(report.AttemptP50),
		"attempt_p95_ms":  millis(report.AttemptP95),
		"actions":         actionList(report.Actions),
	}.build()
}

// ToProtoStatus converts a controller status snapshot.
func ToProtoStatus(st engine.Status) *structpb.Struct {
	return fields{
		"state":         structpb.NewStringValue(string(st.State)),
		"terminal":      structpb.NewBoolValue(st.State.Terminal()),
		"resolution_id": structpb.NewStringValue(st.ResolutionID),
		"target_id":     structpb.NewStringValue(st.TargetID),
		"action":        structpb.NewStringValue(st.Action),
		"cycle":         structpb.NewNumberValue(float64(st.Cycle)),
		"updated_at":    timestamp(st.UpdatedAt),
	}.build()
}

// ToProtoHealth returns {status}.
func ToProtoHealth(state string) *structpb.Struct {
	return fields{"status": structpb.NewStringValue(state)}.build()
}

type fields map[string]*structpb.Value

func (f fields) build() *structpb.Struct {
	return &structpb.Struct{Fields: f}
}

func actionList(actions []models.Action) *structpb.Value {
	values := make([]*structpb.Value, 0, len(actions))
	for _, a := range actions {
		values = append(values, structpb.NewStructValue(fields{
			"name":         structpb.NewStringValue(a.Name),
			"priority":     structpb.NewNumberValue(float64(a.Priority)),
			"enabled":      structpb.NewBoolValue(a.Enabled),
			"attempts":     structpb.NewNumberValue(float64(a.Attempts)),
			"successes":    structpb.NewNumberValue(float64(a.Successes)),
			"success_rate": structpb.NewNumberValue(a.SuccessRate()),
		}.build()))
	}
	return structpb.NewListValue(&structpb.ListValue{Values: values})
}

func millis(d time.Duration) *structpb.Value {
	return structpb.NewNumberValue(float64(d.Milliseconds()))
}

func timestamp(t time.Time) *structpb.Value {
	if t.IsZero() {
		return structpb.NewNullValue()
	}
	return structpb.NewStringValue(t.UTC().Format(time.RFC3339Nano))
}
