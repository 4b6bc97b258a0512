package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/miradorstack/mirador-remedy/internal/metrics"
	"github.com/miradorstack/mirador-remedy/internal/models"
)

// Capturer takes side-effect-free snapshots of a target.
type Capturer interface {
	Capture(ctx context.Context, target models.Target) (*models.Snapshot, error)
}

// ControllerOption customises a Controller.
type ControllerOption func(*Controller)

// WithSleep replaces the delay implementation (tests use it to avoid real waits).
func WithSleep(sleep SleepFunc) ControllerOption {
	return func(c *Controller) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

// WithAttemptObserver registers a callback invoked after each recorded attempt.
func WithAttemptObserver(fn func(models.AttemptOutcome)) ControllerOption {
	return func(c *Controller) {
		c.observe = fn
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) ControllerOption {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// Controller drives the bounded retry loop for one trigger event at a time.
// It is not safe for concurrent Resolve calls; callers serialise triggers.
type Controller struct {
	cfg      RetryConfig
	registry *Registry
	capturer Capturer
	verifier *Verifier
	stats    *SessionStats
	logger   *slog.Logger

	sleep   SleepFunc
	observe func(models.AttemptOutcome)
	now     func() time.Time

	status atomic.Pointer[Status]
}

// NewController constructs a Controller. A nil verifier disables
// verification; a nil stats starts a fresh session.
func NewController(
	cfg RetryConfig,
	registry *Registry,
	capturer Capturer,
	verifier *Verifier,
	stats *SessionStats,
	logger *slog.Logger,
	opts ...ControllerOption,
) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	if registry == nil {
		registry = NewRegistry()
	}
	if verifier == nil {
		verifier = NewVerifier(VerifierConfig{Enabled: false}, nil, logger)
	}
	if stats == nil {
		stats = NewSessionStats()
	}

	c := &Controller{
		cfg:      normaliseRetryConfig(cfg),
		registry: registry,
		capturer: capturer,
		verifier: verifier,
		stats:    stats,
		logger:   logger,
		sleep:    SleepContext,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.status.Store(&Status{State: StateIdle, UpdatedAt: c.now()})
	return c
}

// Registry exposes the action registry owned by the controller.
func (c *Controller) Registry() *Registry { return c.registry }

// Stats exposes the session statistics.
func (c *Controller) Stats() *SessionStats { return c.stats }

// Config returns the retry configuration in effect.
func (c *Controller) Config() RetryConfig { return c.cfg }

// Status returns the latest published status.
func (c *Controller) Status() Status {
	return *c.status.Load()
}

// Resolve handles one trigger event against target. It returns the
// resolution summary together with ErrNoActionsAvailable, a
// *ResolutionExhaustedError, or an error wrapping ErrResolutionCanceled when
// the resolution did not succeed.
func (c *Controller) Resolve(ctx context.Context, target models.Target) (models.Resolution, error) {
	start := c.now()
	res := models.Resolution{
		ID:        ulid.Make().String(),
		TargetID:  target.ID,
		StartedAt: start.UTC(),
	}
	logger := c.logger.With(slog.String("resolution_id", res.ID), slog.String("target_id", target.ID))

	c.stats.OnTrigger()
	c.publish(&res, StateIdle, "", 0)

	var baseline *models.Snapshot
	if c.verifier.Enabled() {
		snap, err := c.capture(ctx, target)
		if err != nil {
			logger.Warn("baseline capture failed, falling back to classifier verification",
				slog.Any("error", &CollaboratorError{Op: "capture baseline", Err: err}))
		} else {
			baseline = snap
			res.BaselineFingerprint = snap.Fingerprint()
		}
	}
	c.publish(&res, StateBaselineCaptured, "", 0)

	c.publish(&res, StateSelecting, "", 0)
	// The order is fixed for the whole resolution; outcomes recorded below
	// only affect the next trigger.
	ranked := Rank(c.registry.EnabledActions())
	if len(ranked) == 0 {
		logger.Error("no enabled actions")
		c.finish(&res, models.ResolutionFailure, start)
		return res, fmt.Errorf("resolve %s: %w", target.ID, ErrNoActionsAvailable)
	}
	logger.Info("resolving trigger", slog.Int("actions", len(ranked)), slog.Int("max_cycles", c.cfg.MaxCycles))

	for cycle := 1; cycle <= c.cfg.MaxCycles; cycle++ {
		if ctx.Err() != nil {
			return c.canceled(ctx, &res, start, logger)
		}
		res.Cycles = cycle
		logger.Debug("cycle started", slog.Int("cycle", cycle), slog.Int("max_cycles", c.cfg.MaxCycles))

		for i, action := range ranked {
			if ctx.Err() != nil {
				return c.canceled(ctx, &res, start, logger)
			}

			outcome, completed := c.attempt(ctx, &res, target, baseline, action, cycle, logger)
			if !completed {
				return c.canceled(ctx, &res, start, logger)
			}

			updated, err := c.registry.RecordOutcome(action.Name, outcome.Succeeded)
			if err != nil {
				logger.Error("record outcome failed", slog.String("action", action.Name), slog.Any("error", err))
				updated = action
			}
			res.Trail = append(res.Trail, outcome)
			metrics.ObserveAttempt(action.Name, outcome.Succeeded, updated.SuccessRate())
			if c.observe != nil {
				c.observe(outcome)
			}

			logger.Info("attempt finished",
				slog.String("action", action.Name),
				slog.Int("cycle", cycle),
				slog.Bool("succeeded", outcome.Succeeded),
				slog.Duration("duration", outcome.Duration),
				slog.Float64("success_rate", updated.SuccessRate()))

			if outcome.Succeeded {
				res.Action = action.Name
				c.stats.OnSuccess()
				c.finish(&res, models.ResolutionSuccess, start)
				return res, nil
			}

			if i < len(ranked)-1 {
				if !c.sleep(ctx, c.cfg.InterActionDelayFor(updated.SuccessRate())) {
					return c.canceled(ctx, &res, start, logger)
				}
			}
		}

		if cycle < c.cfg.MaxCycles {
			if !c.sleep(ctx, c.cfg.InterCycleDelay) {
				return c.canceled(ctx, &res, start, logger)
			}
		}
	}

	logger.Warn("all actions failed", slog.Int("cycles", res.Cycles), slog.Int("attempts", len(res.Trail)))
	c.finish(&res, models.ResolutionFailure, start)
	return res, &ResolutionExhaustedError{
		Cycles: res.Cycles,
		Trail:  append([]models.AttemptOutcome(nil), res.Trail...),
	}
}

// attempt runs one action and judges it. It reports false when the context
// ended while the attempt was in flight; such attempts are not recorded.
func (c *Controller) attempt(
	ctx context.Context,
	res *models.Resolution,
	target models.Target,
	baseline *models.Snapshot,
	action models.Action,
	cycle int,
	logger *slog.Logger,
) (models.AttemptOutcome, bool) {
	outcome := models.AttemptOutcome{Action: action.Name, Cycle: cycle}
	started := c.now()
	c.publish(res, StateExecuting, action.Name, cycle)

	if err := c.execute(ctx, action.Name, target); err != nil {
		if ctx.Err() != nil {
			return outcome, false
		}
		cerr := &CollaboratorError{Op: "execute", Action: action.Name, Err: err}
		logger.Warn("action execution failed", slog.String("action", action.Name), slog.Any("error", cerr))
		outcome.Err = cerr.Error()
		outcome.Duration = c.now().Sub(started)
		return outcome, true
	}

	c.publish(res, StateVerifying, action.Name, cycle)
	var post *models.Snapshot
	if c.verifier.Enabled() {
		if !c.sleep(ctx, c.cfg.SettleDelay) {
			return outcome, false
		}
		snap, err := c.capture(ctx, target)
		if err != nil {
			if ctx.Err() != nil {
				return outcome, false
			}
			cerr := &CollaboratorError{Op: "capture", Action: action.Name, Err: err}
			logger.Warn("post-action capture failed", slog.String("action", action.Name), slog.Any("error", cerr))
			outcome.Err = cerr.Error()
		} else {
			post = snap
			outcome.Fingerprint = snap.Fingerprint()
			if outcome.Fingerprint == res.BaselineFingerprint {
				logger.Debug("target state unchanged after action", slog.String("action", action.Name))
			}
		}
	}

	verdict := c.verifier.Judge(ctx, baseline, post)
	if ctx.Err() != nil {
		return outcome, false
	}
	if verdict.Method == MethodDiff {
		metrics.ObserveChangeRatio(verdict.ChangeRatio)
	}
	outcome.Succeeded = verdict.Success
	outcome.Duration = c.now().Sub(started)
	return outcome, true
}

func (c *Controller) execute(ctx context.Context, name string, target models.Target) (err error) {
	executor, err := c.registry.Executor(name)
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("executor panic: %v", r)
		}
	}()
	return executor.Run(ctx, target)
}

func (c *Controller) capture(ctx context.Context, target models.Target) (*models.Snapshot, error) {
	if c.capturer == nil {
		return nil, errors.New("no state capturer configured")
	}
	snap, err := c.capturer.Capture(ctx, target)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, errors.New("capture returned no snapshot")
	}
	return snap, nil
}

func (c *Controller) canceled(ctx context.Context, res *models.Resolution, start time.Time, logger *slog.Logger) (models.Resolution, error) {
	logger.Warn("resolution canceled", slog.Int("attempts", len(res.Trail)), slog.Any("error", ctx.Err()))
	c.finish(res, models.ResolutionCanceled, start)
	return *res, fmt.Errorf("%w: %w", ErrResolutionCanceled, ctx.Err())
}

func (c *Controller) finish(res *models.Resolution, status models.ResolutionStatus, start time.Time) {
	res.Status = status
	res.Duration = c.now().Sub(start)
	state := StateResolvedFailure
	if status == models.ResolutionSuccess {
		state = StateResolvedSuccess
	}
	c.publish(res, state, res.Action, res.Cycles)
	metrics.ObserveResolution(res.Duration, string(status))
}

func (c *Controller) publish(res *models.Resolution, state State, action string, cycle int) {
	c.status.Store(&Status{
		State:        state,
		ResolutionID: res.ID,
		TargetID:     res.TargetID,
		Action:       action,
		Cycle:        cycle,
		UpdatedAt:    c.now(),
	})
}
