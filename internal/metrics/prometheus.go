package metrics

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	AnalysisDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "veritas_analysis_duration_seconds",
			Help:    "End-to-end analysis duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 180, 600},
		},
		[]string{"kind"},
	)

	AnalysisTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "veritas_analysis_total",
			Help: "Total analyses by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	VerdictTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "veritas_verdict_total",
			Help: "Verdicts issued by kind",
		},
		[]string{"kind", "verdict"},
	)

	FakeScore = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "veritas_fake_score",
			Help:    "Distribution of final fake scores",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
		[]string{"kind"},
	)

	FramesScored = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "veritas_frames_scored_total",
			Help: "Total video frames sent to the classifier",
		},
	)

	FactChecksFound = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "veritas_fact_checks_found",
			Help:    "Fact-check records returned per claim",
			Buckets: []float64{0, 1, 2, 3, 5, 10},
		},
	)

	ExternalErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "veritas_external_errors_total",
			Help: "Failed calls to external collaborators",
		},
		[]string{"service"},
	)

	CircuitState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "veritas_circuit_state",
			Help: "Circuit breaker state per collaborator (0 closed, 1 half-open, 2 open)",
		},
		[]string{"service"},
	)
)

var registerOnce sync.Once

func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(AnalysisDuration)
		prometheus.MustRegister(AnalysisTotal)
		prometheus.MustRegister(VerdictTotal)
		prometheus.MustRegister(FakeScore)
		prometheus.MustRegister(FramesScored)
		prometheus.MustRegister(FactChecksFound)
		prometheus.MustRegister(ExternalErrors)
		prometheus.MustRegister(CircuitState)
	})
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
