package engine

import (
	"context"
	"log/slog"

	"github.com/miradorstack/mirador-remedy/internal/models"
)

// Classifier reports whether the undesired condition that raised a trigger is
// still visible in a snapshot.
type Classifier interface {
	ConditionPresent(ctx context.Context, snapshot *models.Snapshot) (bool, error)
}

// VerifierConfig tunes the verification policy.
type VerifierConfig struct {
	// Enabled=false makes every verification succeed (fire and forget).
	Enabled bool
	// DiffEnabled selects the region-restricted difference policy when a
	// baseline exists. When false the classifier is always used.
	DiffEnabled bool
	// ChangeThreshold is the change ratio that must be exceeded for success.
	ChangeThreshold float64
	// RegionFraction is the share of each dimension, centred, that is compared.
	RegionFraction float64
	// SampleThreshold is the per-sample difference above which a position
	// counts as changed.
	SampleThreshold int
}

// DefaultVerifierConfig returns the region-restricted defaults: middle half,
// 15% change.
func DefaultVerifierConfig() VerifierConfig {
	return VerifierConfig{
		Enabled:         true,
		DiffEnabled:     true,
		ChangeThreshold: 0.15,
		RegionFraction:  0.5,
		SampleThreshold: 25,
	}
}

// Verdict explains how a verification was decided.
type Verdict struct {
	Success     bool
	Method      string
	ChangeRatio float64
}

const (
	MethodDisabled   = "disabled"
	MethodNoCapture  = "no_capture"
	MethodDiff       = "diff"
	MethodClassifier = "classifier"
)

// Verifier judges whether an action changed the target in the desired direction.
type Verifier struct {
	cfg        VerifierConfig
	classifier Classifier
	logger     *slog.Logger
}

// NewVerifier constructs a Verifier. classifier may be nil, in which case the
// fallback policy fails closed.
func NewVerifier(cfg VerifierConfig, classifier Classifier, logger *slog.Logger) *Verifier {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RegionFraction <= 0 || cfg.RegionFraction > 1 {
		cfg.RegionFraction = 1
	}
	if cfg.SampleThreshold < 0 {
		cfg.SampleThreshold = 0
	}
	return &Verifier{cfg: cfg, classifier: classifier, logger: logger}
}

// Enabled reports whether verification actually inspects state.
func (v *Verifier) Enabled() bool {
	return v.cfg.Enabled
}

// Verify reports whether post differs enough from baseline, or, without a
// baseline, whether the classifier no longer sees the condition.
func (v *Verifier) Verify(ctx context.Context, baseline, post *models.Snapshot) bool {
	return v.Judge(ctx, baseline, post).Success
}

// Judge is Verify with the deciding method and change ratio attached.
func (v *Verifier) Judge(ctx context.Context, baseline, post *models.Snapshot) Verdict {
	if !v.cfg.Enabled {
		return Verdict{Success: true, Method: MethodDisabled}
	}
	if post == nil || !post.Valid() {
		return Verdict{Success: false, Method: MethodNoCapture}
	}

	if v.cfg.DiffEnabled && baseline.Valid() {
		ratio := v.ChangeRatio(baseline, post)
		ok := ratio > v.cfg.ChangeThreshold
		v.logger.Debug("difference verification",
			slog.Float64("change_ratio", ratio),
			slog.Float64("threshold", v.cfg.ChangeThreshold),
			slog.Bool("success", ok))
		return Verdict{Success: ok, Method: MethodDiff, ChangeRatio: ratio}
	}

	if v.classifier == nil {
		return Verdict{Success: false, Method: MethodClassifier}
	}
	present, err := v.classifier.ConditionPresent(ctx, post)
	if err != nil {
		v.logger.Warn("classifier verification failed", slog.Any("error", err))
		return Verdict{Success: false, Method: MethodClassifier}
	}
	return Verdict{Success: !present, Method: MethodClassifier}
}

// ChangeRatio returns the fraction of positions in the central region whose
// sample moved by more than the per-sample threshold.
func (v *Verifier) ChangeRatio(baseline, post *models.Snapshot) float64 {
	if baseline.Width != post.Width || baseline.Height != post.Height {
		return 1
	}
	x0, x1 := centralSpan(baseline.Width, v.cfg.RegionFraction)
	y0, y1 := centralSpan(baseline.Height, v.cfg.RegionFraction)
	total := (x1 - x0) * (y1 - y0)
	if total <= 0 {
		return 0
	}

	changed := 0
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			d := int(baseline.At(x, y)) - int(post.At(x, y))
			if d < 0 {
				d = -d
			}
			if d > v.cfg.SampleThreshold {
				changed++
			}
		}
	}
	return float64(changed) / float64(total)
}

// centralSpan returns the half-open [start, end) range covering fraction of
// size, centred. At least one position is always covered.
func centralSpan(size int, fraction float64) (int, int) {
	span := int(float64(size) * fraction)
	if span < 1 {
		span = 1
	}
	if span > size {
		span = size
	}
	start := (size - span) / 2
	return start, start + span
}
