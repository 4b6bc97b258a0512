package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels resolutions and attempts that verified.
	OutcomeSuccess = "success"
	// OutcomeFailure labels exhausted resolutions and failed attempts.
	OutcomeFailure = "failure"
	// OutcomeCanceled labels resolutions stopped by an external cancel.
	OutcomeCanceled = "canceled"
)

var (
	resolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_remedy",
			Name:      "resolutions_total",
			Help:      "Total number of trigger resolutions, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	resolutionDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "mirador_remedy",
			Name:      "resolution_seconds",
			Help:      "Trigger resolution latency in seconds.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
		},
	)

	actionAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_remedy",
			Name:      "action_attempts_total",
			Help:      "Action invocations, partitioned by action and verified outcome.",
		},
		[]string{"action", "outcome"},
	)

	actionSuccessRate = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "mirador_remedy",
			Name:      "action_success_rate",
			Help:      "Empirical success rate per action.",
		},
		[]string{"action"},
	)

	changeRatio = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "mirador_remedy",
			Name:      "change_ratio",
			Help:      "Centre-region change ratio observed by difference verification.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.15, 0.2, 0.3, 0.5, 0.75, 1},
		},
	)

	monitorScansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_remedy",
			Name:      "monitor_scans_total",
			Help:      "Monitor scans, partitioned by result.",
		},
		[]string{"result"},
	)
)

// Register attaches mirador-remedy collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		resolutionsTotal,
		resolutionDurationSeconds,
		actionAttemptsTotal,
		actionSuccessRate,
		changeRatio,
		monitorScansTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveResolution records a resolution duration and outcome label.
func ObserveResolution(duration time.Duration, outcome string) {
	switch outcome {
	case OutcomeSuccess, OutcomeCanceled:
	default:
		outcome = OutcomeFailure
	}
	resolutionsTotal.WithLabelValues(outcome).Inc()
	if duration < 0 {
		duration = 0
	}
	resolutionDurationSeconds.Observe(duration.Seconds())
}

// ObserveAttempt records one action invocation and the action's updated success rate.
func ObserveAttempt(action string, succeeded bool, rate float64) {
	outcome := OutcomeFailure
	if succeeded {
		outcome = OutcomeSuccess
	}
	actionAttemptsTotal.WithLabelValues(action, outcome).Inc()
	actionSuccessRate.WithLabelValues(action).Set(rate)
}

// ObserveChangeRatio records a change ratio computed during verification.
func ObserveChangeRatio(ratio float64) {
	changeRatio.Observe(ratio)
}

// ObserveScan records a monitor scan result ("idle", "clear", "triggered", "error").
func ObserveScan(result string) {
	monitorScansTotal.WithLabelValues(result).Inc()
}
