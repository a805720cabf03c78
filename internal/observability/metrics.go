package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yungbote/careline-backend/internal/platform/envutil"
)

const namespace = "careline"

// Metrics is safe to use as a nil pointer; every method is a no-op then.
type Metrics struct {
	gatherer prometheus.Gatherer

	apiRequests *prometheus.CounterVec
	apiLatency  *prometheus.HistogramVec
	apiInflight prometheus.Gauge

	turns       *prometheus.CounterVec
	turnLatency prometheus.Histogram

	crisisVerdicts *prometheus.CounterVec
	crisisLatency  prometheus.Histogram
	crisisSlow     prometheus.Counter
	crisisFailures prometheus.Counter

	collaboratorFailures *prometheus.CounterVec

	escalations       *prometheus.CounterVec
	notifyAttempts    *prometheus.CounterVec
	notifyExhausted   prometheus.Counter
	escalationsSwept  prometheus.Counter
	contactCollection *prometheus.CounterVec
}

func Enabled() bool {
	return envutil.Bool("METRICS_ENABLED", true)
}

// NewMetrics registers every collector on reg. Pass a fresh registry in tests.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	m := &Metrics{gatherer: reg}

	m.apiRequests = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "api_requests_total",
		Help:      "HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})
	m.apiLatency = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "api_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})
	m.apiInflight = f.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "api_requests_in_flight",
		Help:      "HTTP requests currently being served.",
	})

	m.turns = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "turns_total",
		Help:      "Processed conversation turns by resulting topic.",
	}, []string{"topic"})
	m.turnLatency = f.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "turn_duration_seconds",
		Help:      "End to end turn latency including collaborator calls.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
	})

	m.crisisVerdicts = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "crisis_verdicts_total",
		Help:      "Crisis classifier verdicts by severity and category.",
	}, []string{"severity", "category"})
	m.crisisLatency = f.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "crisis_classify_duration_seconds",
		Help:      "Crisis classifier latency.",
		Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1},
	})
	m.crisisSlow = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "crisis_classify_degraded_total",
		Help:      "Classifications slower than the configured threshold.",
	})
	m.crisisFailures = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "crisis_classify_failures_total",
		Help:      "Classifier errors or panics handled by failing closed.",
	})

	m.collaboratorFailures = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "collaborator_failures_total",
		Help:      "Content search and completion failures absorbed by the engine.",
	}, []string{"collaborator"})

	m.escalations = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "escalations_total",
		Help:      "Executed escalations by type and priority.",
	}, []string{"type", "priority"})
	m.notifyAttempts = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notification_attempts_total",
		Help:      "Notification delivery attempts by outcome.",
	}, []string{"outcome"})
	m.notifyExhausted = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notification_exhausted_total",
		Help:      "Escalation notifications that failed after every retry.",
	})
	m.escalationsSwept = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "escalations_swept_total",
		Help:      "Stale escalation records closed by the monitor.",
	})
	m.contactCollection = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "contact_collection_events_total",
		Help:      "Contact collection events by purpose and event.",
	}, []string{"purpose", "event"})

	return m
}

// Init builds metrics on a registry that also carries the Go and process
// collectors. Returns nil when METRICS_ENABLED=false.
func Init() *Metrics {
	if !Enabled() {
		return nil
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewMetrics(reg)
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.apiRequests.WithLabelValues(method, route, status).Inc()
	m.apiLatency.WithLabelValues(method, route).Observe(dur.Seconds())
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) ObserveTurn(topic string, dur time.Duration) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues(topic).Inc()
	m.turnLatency.Observe(dur.Seconds())
}

func (m *Metrics) ObserveCrisis(severity, category string, dur time.Duration, degraded bool) {
	if m == nil {
		return
	}
	if category == "" {
		category = "none"
	}
	m.crisisVerdicts.WithLabelValues(severity, category).Inc()
	m.crisisLatency.Observe(dur.Seconds())
	if degraded {
		m.crisisSlow.Inc()
	}
}

func (m *Metrics) IncCrisisFailure() {
	if m == nil {
		return
	}
	m.crisisFailures.Inc()
}

func (m *Metrics) IncCollaboratorFailure(name string) {
	if m == nil {
		return
	}
	m.collaboratorFailures.WithLabelValues(name).Inc()
}

func (m *Metrics) IncEscalation(kind, priority string) {
	if m == nil {
		return
	}
	m.escalations.WithLabelValues(kind, priority).Inc()
}

func (m *Metrics) IncNotifyAttempt(outcome string) {
	if m == nil {
		return
	}
	m.notifyAttempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncNotifyExhausted() {
	if m == nil {
		return
	}
	m.notifyExhausted.Inc()
}

func (m *Metrics) AddEscalationsSwept(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.escalationsSwept.Add(float64(n))
}

func (m *Metrics) IncContactCollection(purpose, event string) {
	if m == nil {
		return
	}
	m.contactCollection.WithLabelValues(purpose, event).Inc()
}
