package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rimkus-dev/sentiment/internal/engine"
)

const (
	resultSuccess = "success"
	resultError   = "error"
)

// SentimentMetrics records session lifecycle events. It satisfies
// sentiment.Observer.
type SentimentMetrics struct {
	LoadsTotal       *prometheus.CounterVec
	LoadDuration     *prometheus.HistogramVec
	AnalysesTotal    *prometheus.CounterVec
	AnalyzeDuration  prometheus.Histogram
	EnginesReleased  prometheus.Counter
	ActiveSessions   prometheus.Gauge
	PredictionLabels *prometheus.CounterVec
}

// NewSentimentMetrics creates and registers sentiment metrics on the given registry.
func NewSentimentMetrics(reg prometheus.Registerer) *SentimentMetrics {
	m := &SentimentMetrics{
		LoadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sentiment",
			Name:      "loads_total",
			Help:      "Total number of engine loads by dtype and result.",
		}, []string{"dtype", "result"}),
		LoadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sentiment",
			Name:      "load_duration_seconds",
			Help:      "Duration of engine loads in seconds, downloads included.",
			Buckets:   []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"dtype"}),
		AnalysesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sentiment",
			Name:      "analyses_total",
			Help:      "Total number of classify calls by result.",
		}, []string{"result"}),
		AnalyzeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sentiment",
			Name:      "analyze_duration_seconds",
			Help:      "Duration of classify calls in seconds.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		EnginesReleased: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sentiment",
			Name:      "engines_released_total",
			Help:      "Total number of engines released.",
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sentiment",
			Name:      "active_sessions",
			Help:      "Number of open sentiment sessions.",
		}),
		PredictionLabels: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sentiment",
			Name:      "predictions_total",
			Help:      "Total number of predictions by label.",
		}, []string{"label"}),
	}

	reg.MustRegister(
		m.LoadsTotal,
		m.LoadDuration,
		m.AnalysesTotal,
		m.AnalyzeDuration,
		m.EnginesReleased,
		m.ActiveSessions,
		m.PredictionLabels,
	)
	return m
}

// LoadFinished records an engine load.
func (m *SentimentMetrics) LoadFinished(_ string, dtype engine.DType, took time.Duration, err error) {
	m.LoadsTotal.WithLabelValues(string(dtype), result(err)).Inc()
	m.LoadDuration.WithLabelValues(string(dtype)).Observe(took.Seconds())
}

// AnalyzeFinished records a classify call.
func (m *SentimentMetrics) AnalyzeFinished(took time.Duration, label string, err error) {
	m.AnalysesTotal.WithLabelValues(result(err)).Inc()
	m.AnalyzeDuration.Observe(took.Seconds())
	if err == nil && label != "" {
		m.PredictionLabels.WithLabelValues(label).Inc()
	}
}

// EngineReleased records an engine release.
func (m *SentimentMetrics) EngineReleased() {
	m.EnginesReleased.Inc()
}

// SessionOpened increments the active session gauge.
func (m *SentimentMetrics) SessionOpened() {
	m.ActiveSessions.Inc()
}

// SessionClosed decrements the active session gauge.
func (m *SentimentMetrics) SessionClosed() {
	m.ActiveSessions.Dec()
}

func result(err error) string {
	if err != nil {
		return resultError
	}
	return resultSuccess
}
