package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/miradorstack/mirador-remedy/internal/config"
	"github.com/miradorstack/mirador-remedy/internal/engine"
	"github.com/miradorstack/mirador-remedy/internal/models"
)

// ErrAgentUnavailable is returned when the client has no agent endpoint configured.
var ErrAgentUnavailable = errors.New("desktop agent not configured")

// AgentClient talks to the desktop agent that owns window discovery, pixel
// capture, text classification and input injection.
type AgentClient struct {
	baseURL           string
	targetsPath       string
	capturePath       string
	classifyPath      string
	actionsPath       string
	titleKeywords     []string
	minWidth          int
	minHeight         int
	conditionKeywords []string
	httpClient        *http.Client
}

// NewAgentClient constructs a client targeting the configured agent.
func NewAgentClient(cfg config.AgentConfig) *AgentClient {
	keywords := make([]string, 0, len(cfg.TitleKeywords))
	for _, k := range cfg.TitleKeywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			keywords = append(keywords, k)
		}
	}
	return &AgentClient{
		baseURL:           strings.TrimRight(cfg.BaseURL, "/"),
		targetsPath:       cfg.TargetsPath,
		capturePath:       cfg.CapturePath,
		classifyPath:      cfg.ClassifyPath,
		actionsPath:       cfg.ActionsPath,
		titleKeywords:     keywords,
		minWidth:          cfg.MinWidth,
		minHeight:         cfg.MinHeight,
		conditionKeywords: cfg.ConditionKeywords,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

type agentTarget struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Visible bool   `json:"visible"`
}

type agentFrame struct {
	TargetID   string    `json:"target_id,omitempty"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	Pixels     []byte    `json:"pixels"`
	CapturedAt time.Time `json:"captured_at,omitempty"`
}

// FindTargets lists visible windows whose title matches a keyword and whose
// size exceeds the configured minimum.
func (c *AgentClient) FindTargets(ctx context.Context) ([]models.Target, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}

	var response struct {
		Targets []agentTarget `json:"targets"`
	}
	if err := c.postJSON(ctx, c.resolvePath(c.targetsPath), struct{}{}, &response); err != nil {
		return nil, fmt.Errorf("agent targets request failed: %w", err)
	}

	targets := make([]models.Target, 0, len(response.Targets))
	for _, t := range response.Targets {
		if !c.accept(t) {
			continue
		}
		targets = append(targets, models.Target{ID: t.ID, Title: t.Title, Width: t.Width, Height: t.Height})
	}
	return targets, nil
}

func (c *AgentClient) accept(t agentTarget) bool {
	if !t.Visible || t.Width <= c.minWidth || t.Height <= c.minHeight {
		return false
	}
	if len(c.titleKeywords) == 0 {
		return true
	}
	title := strings.ToLower(t.Title)
	for _, k := range c.titleKeywords {
		if strings.Contains(title, k) {
			return true
		}
	}
	return false
}

// Capture fetches a greyscale frame of target.
func (c *AgentClient) Capture(ctx context.Context, target models.Target) (*models.Snapshot, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}

	var frame agentFrame
	payload := map[string]any{"target_id": target.ID}
	if err := c.postJSON(ctx, c.resolvePath(c.capturePath), payload, &frame); err != nil {
		return nil, fmt.Errorf("agent capture request failed: %w", err)
	}

	snap := &models.Snapshot{
		TargetID:   target.ID,
		Width:      frame.Width,
		Height:     frame.Height,
		Pixels:     frame.Pixels,
		CapturedAt: frame.CapturedAt,
	}
	if snap.CapturedAt.IsZero() {
		snap.CapturedAt = time.Now().UTC()
	}
	if !snap.Valid() {
		return nil, fmt.Errorf("agent capture returned a malformed %dx%d frame with %d samples", frame.Width, frame.Height, len(frame.Pixels))
	}
	return snap, nil
}

// ConditionPresent asks the agent whether any condition keyword is visible in snapshot.
func (c *AgentClient) ConditionPresent(ctx context.Context, snapshot *models.Snapshot) (bool, error) {
	if err := c.ready(); err != nil {
		return false, err
	}
	if !snapshot.Valid() {
		return false, errors.New("classify: invalid snapshot")
	}

	payload := struct {
		agentFrame
		Keywords []string `json:"keywords"`
	}{
		agentFrame: agentFrame{TargetID: snapshot.TargetID, Width: snapshot.Width, Height: snapshot.Height, Pixels: snapshot.Pixels},
		Keywords:   c.conditionKeywords,
	}
	var response struct {
		Present bool   `json:"present"`
		Keyword string `json:"keyword"`
	}
	if err := c.postJSON(ctx, c.resolvePath(c.classifyPath), payload, &response); err != nil {
		return false, fmt.Errorf("agent classify request failed: %w", err)
	}
	return response.Present, nil
}

// Executor returns an executor that asks the agent to run the named action.
func (c *AgentClient) Executor(name string) engine.Executor {
	return engine.ExecutorFunc(func(ctx context.Context, target models.Target) error {
		if err := c.ready(); err != nil {
			return err
		}
		payload := map[string]any{"target_id": target.ID, "title": target.Title}
		var response struct {
			OK    bool   `json:"ok"`
			Error string `json:"error"`
		}
		endpoint := c.resolvePath(path.Join(c.actionsPath, url.PathEscape(name), "run"))
		if err := c.postJSON(ctx, endpoint, payload, &response); err != nil {
			return fmt.Errorf("agent action %s failed: %w", name, err)
		}
		if !response.OK {
			return fmt.Errorf("agent action %s rejected: %s", name, firstNonEmpty(response.Error, "no reason given"))
		}
		return nil
	})
}

func (c *AgentClient) ready() error {
	if c == nil || c.baseURL == "" {
		return ErrAgentUnavailable
	}
	return nil
}

func (c *AgentClient) resolvePath(p string) string {
	if c.baseURL == "" {
		return ""
	}
	cleaned := "/" + strings.TrimLeft(p, "/")
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return c.baseURL + cleaned
	}
	u.Path = path.Join(u.Path, cleaned)
	return u.String()
}

func (c *AgentClient) postJSON(ctx context.Context, endpoint string, payload any, out any) error {
	if endpoint == "" {
		return fmt.Errorf("empty endpoint")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if text := strings.TrimSpace(string(msg)); text != "" {
			return fmt.Errorf("agent returned %s: %s", resp.Status, text)
		}
		return fmt.Errorf("agent returned %s", resp.Status)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
