package engine

import (
	"context"
	"time"
)

const (
	// FormulaBlend scales the base delay by (2 - success rate).
	FormulaBlend = "blend"
	// FormulaInverse divides the base delay by the success rate.
	FormulaInverse = "inverse"

	minInverseRate = 0.05
)

// RetryConfig controls the retry loop. It is fixed for the lifetime of a Controller.
type RetryConfig struct {
	MaxCycles        int
	InterActionDelay time.Duration
	InterCycleDelay  time.Duration
	MaxDelay         time.Duration
	AdaptiveTiming   bool
	AdaptiveFormula  string
	// SettleDelay is waited after an action runs and before the post-action capture.
	SettleDelay time.Duration
}

// DefaultRetryConfig returns the tuned defaults: 3 cycles, 100ms between
// actions capped at 1s, 500ms between cycles.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxCycles:        3,
		InterActionDelay: 100 * time.Millisecond,
		InterCycleDelay:  500 * time.Millisecond,
		MaxDelay:         time.Second,
		AdaptiveTiming:   true,
		AdaptiveFormula:  FormulaBlend,
		SettleDelay:      600 * time.Millisecond,
	}
}

func normaliseRetryConfig(cfg RetryConfig) RetryConfig {
	if cfg.MaxCycles <= 0 {
		cfg.MaxCycles = 1
	}
	if cfg.InterActionDelay < 0 {
		cfg.InterActionDelay = 0
	}
	if cfg.InterCycleDelay < 0 {
		cfg.InterCycleDelay = 0
	}
	if cfg.SettleDelay < 0 {
		cfg.SettleDelay = 0
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = cfg.InterActionDelay
	}
	if cfg.AdaptiveFormula == "" {
		cfg.AdaptiveFormula = FormulaBlend
	}
	return cfg
}

// InterActionDelayFor returns the wait applied after an action with the given
// success rate failed.
func (cfg RetryConfig) InterActionDelayFor(rate float64) time.Duration {
	base := cfg.InterActionDelay
	if !cfg.AdaptiveTiming || base <= 0 {
		return base
	}
	if rate < 0 {
		rate = 0
	}
	if rate > 1 {
		rate = 1
	}

	var scaled float64
	switch cfg.AdaptiveFormula {
	case FormulaInverse:
		if rate < minInverseRate {
			rate = minInverseRate
		}
		scaled = float64(base) / rate
	default:
		scaled = float64(base) * (2 - rate)
	}

	delay := time.Duration(scaled)
	if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	return delay
}

// SleepFunc blocks for d or until ctx is done. It reports false when the
// context ended first.
type SleepFunc func(ctx context.Context, d time.Duration) bool

// SleepContext is the default SleepFunc.
func SleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
