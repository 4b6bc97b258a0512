// Package monitor scans for targets showing the trigger condition and hands
// them to the resolver.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/miradorstack/mirador-remedy/internal/engine"
	"github.com/miradorstack/mirador-remedy/internal/metrics"
	"github.com/miradorstack/mirador-remedy/internal/models"
)

// Locator lists candidate targets.
type Locator interface {
	FindTargets(ctx context.Context) ([]models.Target, error)
}

// Resolver handles one trigger event for a target.
type Resolver interface {
	Resolve(ctx context.Context, target models.Target) (models.Resolution, error)
}

// Result classifies one scan pass.
type Result string

const (
	ResultIdle      Result = "idle"
	ResultClear     Result = "clear"
	ResultTriggered Result = "triggered"
	ResultError     Result = "error"
)

// Config controls pacing of the scan loop.
type Config struct {
	ScanInterval    time.Duration
	IdleBackoffBase time.Duration
	IdleBackoffStep time.Duration
	IdleBackoffMax  time.Duration
	SuccessCooldown time.Duration
}

// Option customises a Monitor.
type Option func(*Monitor)

// WithSleep replaces the wait implementation.
func WithSleep(sleep engine.SleepFunc) Option {
	return func(m *Monitor) {
		if sleep != nil {
			m.sleep = sleep
		}
	}
}

// Monitor runs the scan → capture → classify → resolve loop.
type Monitor struct {
	cfg        Config
	locator    Locator
	capturer   engine.Capturer
	classifier engine.Classifier
	resolver   Resolver
	logger     *slog.Logger
	sleep      engine.SleepFunc

	scans    atomic.Int64
	triggers atomic.Int64
}

// New constructs a Monitor.
func New(cfg Config, locator Locator, capturer engine.Capturer, classifier engine.Classifier, resolver Resolver, logger *slog.Logger, opts ...Option) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Monitor{
		cfg:        cfg,
		locator:    locator,
		capturer:   capturer,
		classifier: classifier,
		resolver:   resolver,
		logger:     logger,
		sleep:      engine.SleepContext,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Scans returns the number of completed scan passes.
func (m *Monitor) Scans() int64 { return m.scans.Load() }

// Triggers returns how many targets were handed to the resolver.
func (m *Monitor) Triggers() int64 { return m.triggers.Load() }

// Run scans until ctx is done. It always returns nil once ctx ends.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("monitor started", slog.Duration("scan_interval", m.cfg.ScanInterval))
	idle := 0
	for {
		result, resolved := m.Scan(ctx)
		if ctx.Err() != nil {
			m.logger.Info("monitor stopped", slog.Int64("scans", m.Scans()))
			return nil
		}

		wait := m.cfg.ScanInterval
		switch {
		case result == ResultIdle:
			idle++
			wait = m.IdleDelay(idle)
			m.logger.Debug("no targets found", slog.Int("consecutive", idle), slog.Duration("wait", wait))
		case resolved:
			idle = 0
			wait += m.cfg.SuccessCooldown
		default:
			idle = 0
		}

		if !m.sleep(ctx, wait) {
			m.logger.Info("monitor stopped", slog.Int64("scans", m.Scans()))
			return nil
		}
	}
}

// IdleDelay returns the wait after n consecutive scans without targets:
// base + n*step, capped at max.
func (m *Monitor) IdleDelay(n int) time.Duration {
	d := m.cfg.IdleBackoffBase + time.Duration(n)*m.cfg.IdleBackoffStep
	if m.cfg.IdleBackoffMax > 0 && d > m.cfg.IdleBackoffMax {
		d = m.cfg.IdleBackoffMax
	}
	return d
}

// Scan performs one pass over all targets. resolved reports whether any
// resolution succeeded.
func (m *Monitor) Scan(ctx context.Context) (result Result, resolved bool) {
	defer func() {
		if ctx.Err() == nil {
			m.scans.Add(1)
			metrics.ObserveScan(string(result))
		}
	}()

	targets, err := m.locator.FindTargets(ctx)
	if err != nil {
		m.logger.Warn("target lookup failed", slog.Any("error", err))
		return ResultIdle, false
	}
	if len(targets) == 0 {
		return ResultIdle, false
	}

	result = ResultClear
	for _, target := range targets {
		if ctx.Err() != nil {
			return result, resolved
		}
		logger := m.logger.With(slog.String("target_id", target.ID), slog.String("title", target.Title))

		snap, err := m.capturer.Capture(ctx, target)
		if err != nil || snap == nil {
			logger.Warn("capture failed", slog.Any("error", err))
			result = worse(result, ResultError)
			continue
		}
		present, err := m.classifier.ConditionPresent(ctx, snap)
		if err != nil {
			logger.Warn("classification failed", slog.Any("error", err))
			result = worse(result, ResultError)
			continue
		}
		if !present {
			logger.Debug("condition absent")
			continue
		}

		logger.Info("condition detected, resolving")
		m.triggers.Add(1)
		result = ResultTriggered
		res, err := m.resolver.Resolve(ctx, target)
		switch {
		case err == nil:
			resolved = true
			logger.Info("condition resolved", slog.String("action", res.Action), slog.Int("attempts", res.Attempts()))
		case errors.Is(err, engine.ErrResolutionCanceled):
			return result, resolved
		default:
			logger.Warn("resolution failed", slog.Int("attempts", res.Attempts()), slog.Any("error", err))
		}
	}
	return result, resolved
}

func worse(current, next Result) Result {
	if current == ResultTriggered {
		return current
	}
	return next
}
