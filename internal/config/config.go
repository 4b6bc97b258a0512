package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/miradorstack/mirador-remedy/internal/engine"
)

// Config captures every setting the remedy engine needs to boot.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Agent        AgentConfig        `yaml:"agent"`
	Logging      LoggingConfig      `yaml:"logging"`
	Catalog      CatalogConfig      `yaml:"catalog"`
	Retry        RetrySettings      `yaml:"retry"`
	Verification VerificationConfig `yaml:"verification"`
	Monitor      MonitorConfig      `yaml:"monitor"`
	State        StateConfig        `yaml:"state"`
	Cache        CacheConfig        `yaml:"cache"`
	History      HistoryConfig      `yaml:"history"`
}

// ServerConfig controls gRPC listener behaviour.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// AgentConfig configures access to the desktop agent that finds, captures,
// classifies and acts on targets.
type AgentConfig struct {
	BaseURL           string        `yaml:"baseURL"`
	TargetsPath       string        `yaml:"targetsPath"`
	CapturePath       string        `yaml:"capturePath"`
	ClassifyPath      string        `yaml:"classifyPath"`
	ActionsPath       string        `yaml:"actionsPath"`
	Timeout           time.Duration `yaml:"timeout"`
	TitleKeywords     []string      `yaml:"titleKeywords"`
	MinWidth          int           `yaml:"minWidth"`
	MinHeight         int           `yaml:"minHeight"`
	ConditionKeywords []string      `yaml:"conditionKeywords"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
	File  string `yaml:"file"`
}

// CatalogConfig points at the action catalog. An empty path uses the built-in set.
type CatalogConfig struct {
	Path string `yaml:"path"`
}

// RetrySettings mirrors engine.RetryConfig in YAML form.
type RetrySettings struct {
	MaxCycles        int           `yaml:"maxCycles"`
	InterActionDelay time.Duration `yaml:"interActionDelay"`
	InterCycleDelay  time.Duration `yaml:"interCycleDelay"`
	MaxDelay         time.Duration `yaml:"maxDelay"`
	AdaptiveTiming   bool          `yaml:"adaptiveTiming"`
	AdaptiveFormula  string        `yaml:"adaptiveFormula"`
	SettleDelay      time.Duration `yaml:"settleDelay"`
}

// VerificationConfig mirrors engine.VerifierConfig in YAML form.
type VerificationConfig struct {
	Enabled         bool    `yaml:"enabled"`
	DiffEnabled     bool    `yaml:"diffEnabled"`
	ChangeThreshold float64 `yaml:"changeThreshold"`
	RegionFraction  float64 `yaml:"regionFraction"`
	SampleThreshold int     `yaml:"sampleThreshold"`
}

// MonitorConfig controls the scan loop.
type MonitorConfig struct {
	Enabled         bool          `yaml:"enabled"`
	ScanInterval    time.Duration `yaml:"scanInterval"`
	IdleBackoffBase time.Duration `yaml:"idleBackoffBase"`
	IdleBackoffStep time.Duration `yaml:"idleBackoffStep"`
	IdleBackoffMax  time.Duration `yaml:"idleBackoffMax"`
	SuccessCooldown time.Duration `yaml:"successCooldown"`
}

// StateConfig selects where learned action statistics are persisted.
type StateConfig struct {
	// Backend is one of file, valkey, memory or none.
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
	Key     string `yaml:"key"`
}

// CacheConfig controls the Valkey connection used by the valkey state backend.
type CacheConfig struct {
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	MaxRetries   int           `yaml:"maxRetries"`
	TLS          bool          `yaml:"tls"`
	StateTTL     time.Duration `yaml:"stateTTL"`
}

// HistoryConfig controls the SQLite resolution history.
type HistoryConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Path      string        `yaml:"path"`
	Retention time.Duration `yaml:"retention"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("MIRADOR_REMEDY_CONFIG")
	}

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is supplied.
func Default() Config {
	retry := engine.DefaultRetryConfig()
	verify := engine.DefaultVerifierConfig()
	return Config{
		Server: ServerConfig{
			Address:         ":50061",
			MetricsAddress:  ":2113",
			GracefulTimeout: 10 * time.Second,
		},
		Agent: AgentConfig{
			BaseURL:       "http://127.0.0.1:8765",
			TargetsPath:   "/v1/targets",
			CapturePath:   "/v1/capture",
			ClassifyPath:  "/v1/classify",
			ActionsPath:   "/v1/actions",
			Timeout:       5 * time.Second,
			TitleKeywords: []string{"tiktok", "tik tok"},
			MinWidth:      300,
			MinHeight:     400,
			ConditionKeywords: []string{
				"LIVE", "Live", "live",
				"TRỰC TIẾP", "Trực tiếp", "trực tiếp",
				"ĐANG LIVE", "Đang live",
				"PHÁT TRỰC TIẾP", "Phát trực tiếp",
			},
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Retry: RetrySettings{
			MaxCycles:        retry.MaxCycles,
			InterActionDelay: retry.InterActionDelay,
			InterCycleDelay:  retry.InterCycleDelay,
			MaxDelay:         retry.MaxDelay,
			AdaptiveTiming:   retry.AdaptiveTiming,
			AdaptiveFormula:  retry.AdaptiveFormula,
			SettleDelay:      retry.SettleDelay,
		},
		Verification: VerificationConfig{
			Enabled:         verify.Enabled,
			DiffEnabled:     verify.DiffEnabled,
			ChangeThreshold: verify.ChangeThreshold,
			RegionFraction:  verify.RegionFraction,
			SampleThreshold: verify.SampleThreshold,
		},
		Monitor: MonitorConfig{
			Enabled:         true,
			ScanInterval:    3 * time.Second,
			IdleBackoffBase: 3 * time.Second,
			IdleBackoffStep: time.Second,
			IdleBackoffMax:  10 * time.Second,
			SuccessCooldown: 800 * time.Millisecond,
		},
		State: StateConfig{
			Backend: "file",
			Path:    "data/actions.yaml",
			Key:     "mirador:remedy:actions",
		},
		Cache: CacheConfig{
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
			MaxRetries:   2,
		},
		History: HistoryConfig{
			Enabled:   true,
			Path:      "data/history.db",
			Retention: 14 * 24 * time.Hour,
		},
	}
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	switch c.State.Backend {
	case "file", "valkey", "memory", "none":
	default:
		return fmt.Errorf("state.backend %q: must be one of file, valkey, memory, none", c.State.Backend)
	}
	if c.State.Backend == "file" && c.State.Path == "" {
		return errors.New("state.path is required for the file backend")
	}
	if c.State.Backend == "valkey" && c.Cache.Addr == "" {
		return errors.New("cache.addr is required for the valkey backend")
	}
	switch c.Retry.AdaptiveFormula {
	case "", engine.FormulaBlend, engine.FormulaInverse:
	default:
		return fmt.Errorf("retry.adaptiveFormula %q: must be %s or %s", c.Retry.AdaptiveFormula, engine.FormulaBlend, engine.FormulaInverse)
	}
	if c.Verification.ChangeThreshold < 0 || c.Verification.ChangeThreshold > 1 {
		return fmt.Errorf("verification.changeThreshold %.2f out of [0,1]", c.Verification.ChangeThreshold)
	}
	if c.Verification.RegionFraction <= 0 || c.Verification.RegionFraction > 1 {
		return fmt.Errorf("verification.regionFraction %.2f out of (0,1]", c.Verification.RegionFraction)
	}
	return nil
}

// RetryConfig converts the retry section to the engine type.
func (c *Config) RetryConfig() engine.RetryConfig {
	r := c.Retry
	return engine.RetryConfig{
		MaxCycles:        r.MaxCycles,
		InterActionDelay: r.InterActionDelay,
		InterCycleDelay:  r.InterCycleDelay,
		MaxDelay:         r.MaxDelay,
		AdaptiveTiming:   r.AdaptiveTiming,
		AdaptiveFormula:  r.AdaptiveFormula,
		SettleDelay:      r.SettleDelay,
	}
}

// VerifierConfig converts the verification section to the engine type.
func (c *Config) VerifierConfig() engine.VerifierConfig {
	v := c.Verification
	return engine.VerifierConfig{
		Enabled:         v.Enabled,
		DiffEnabled:     v.DiffEnabled,
		ChangeThreshold: v.ChangeThreshold,
		RegionFraction:  v.RegionFraction,
		SampleThreshold: v.SampleThreshold,
	}
}

func applyEnvOverrides(cfg *Config) {
	setString(&cfg.Server.Address, "MIRADOR_REMEDY_SERVER_ADDRESS")
	setString(&cfg.Server.MetricsAddress, "MIRADOR_REMEDY_METRICS_ADDRESS")
	setString(&cfg.Agent.BaseURL, "MIRADOR_REMEDY_AGENT_URL")
	setDuration(&cfg.Agent.Timeout, "MIRADOR_REMEDY_AGENT_TIMEOUT")
	if v := os.Getenv("MIRADOR_REMEDY_AGENT_TITLE_KEYWORDS"); v != "" {
		cfg.Agent.TitleKeywords = splitList(v)
	}
	setString(&cfg.Logging.Level, "MIRADOR_REMEDY_LOG_LEVEL")
	if v := os.Getenv("MIRADOR_REMEDY_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	setString(&cfg.Logging.File, "MIRADOR_REMEDY_LOG_FILE")
	setString(&cfg.Catalog.Path, "MIRADOR_REMEDY_CATALOG_PATH")
	setInt(&cfg.Retry.MaxCycles, "MIRADOR_REMEDY_MAX_CYCLES")
	setBool(&cfg.Retry.AdaptiveTiming, "MIRADOR_REMEDY_ADAPTIVE_TIMING")
	setString(&cfg.Retry.AdaptiveFormula, "MIRADOR_REMEDY_ADAPTIVE_FORMULA")
	setBool(&cfg.Verification.Enabled, "MIRADOR_REMEDY_VERIFICATION_ENABLED")
	setBool(&cfg.Monitor.Enabled, "MIRADOR_REMEDY_MONITOR_ENABLED")
	setDuration(&cfg.Monitor.ScanInterval, "MIRADOR_REMEDY_SCAN_INTERVAL")
	setString(&cfg.State.Backend, "MIRADOR_REMEDY_STATE_BACKEND")
	setString(&cfg.State.Path, "MIRADOR_REMEDY_STATE_PATH")
	setString(&cfg.Cache.Addr, "MIRADOR_REMEDY_CACHE_ADDR")
	setString(&cfg.Cache.Username, "MIRADOR_REMEDY_CACHE_USERNAME")
	setString(&cfg.Cache.Password, "MIRADOR_REMEDY_CACHE_PASSWORD")
	setInt(&cfg.Cache.DB, "MIRADOR_REMEDY_CACHE_DB")
	setBool(&cfg.Cache.TLS, "MIRADOR_REMEDY_CACHE_TLS")
	setDuration(&cfg.Cache.DialTimeout, "MIRADOR_REMEDY_CACHE_DIAL_TIMEOUT")
	setInt(&cfg.Cache.MaxRetries, "MIRADOR_REMEDY_CACHE_MAX_RETRIES")
	setBool(&cfg.History.Enabled, "MIRADOR_REMEDY_HISTORY_ENABLED")
	setString(&cfg.History.Path, "MIRADOR_REMEDY_HISTORY_PATH")
	setDuration(&cfg.History.Retention, "MIRADOR_REMEDY_HISTORY_RETENTION")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = strings.EqualFold(v, "true") || v == "1"
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
