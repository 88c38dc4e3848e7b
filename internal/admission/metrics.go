package admission

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics tracks the admission-layer counters spec §7 asks /stats and
// /metrics to expose: accepted/rejected request totals (by rejection
// reason), a rolling average latency over the last 1000 requests, and
// process uptime.
type Metrics struct {
	registry *prometheus.Registry
	accepted prometheus.Counter
	rejected *prometheus.CounterVec
	latency  prometheus.Histogram

	started time.Time

	mu      sync.Mutex
	samples []time.Duration
	cursor  int
}

const rollingWindow = 1000

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	accepted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "devctx_mcp_requests_accepted_total",
		Help: "Total requests admitted past the gate.",
	})
	rejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "devctx_mcp_requests_rejected_total",
		Help: "Total requests rejected by the gate, labeled by reason.",
	}, []string{"reason"})
	latency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "devctx_mcp_request_duration_seconds",
		Help:    "Request handling latency observed by the gate.",
		Buckets: prometheus.DefBuckets,
	})

	registry.MustRegister(accepted, rejected, latency, prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	return &Metrics{
		registry: registry,
		accepted: accepted,
		rejected: rejected,
		latency:  latency,
		started:  time.Now(),
	}
}

func (m *Metrics) recordAccepted() {
	if m == nil {
		return
	}
	m.accepted.Inc()
}

func (m *Metrics) recordRejected(reason string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(reason).Inc()
}

// Observe records one request's latency into both the Prometheus
// histogram and the rolling-average ring buffer backing /stats.
func (m *Metrics) Observe(d time.Duration) {
	if m == nil {
		return
	}
	m.latency.Observe(d.Seconds())

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.samples) < rollingWindow {
		m.samples = append(m.samples, d)
	} else {
		m.samples[m.cursor] = d
		m.cursor = (m.cursor + 1) % rollingWindow
	}
}

func (m *Metrics) rollingAverage() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.samples) == 0 {
		return 0
	}
	var total time.Duration
	for _, s := range m.samples {
		total += s
	}
	return total / time.Duration(len(m.samples))
}

// Handler returns the /metrics Prometheus text exposition handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

type statsPayload struct {
	UptimeSeconds    float64 `json:"uptime_seconds"`
	AvgLatencyMillis float64 `json:"avg_latency_ms"`
	SampleCount      int     `json:"sample_count"`
}

// StatsHandler returns the /stats JSON endpoint spec §7 names alongside
// /metrics: a human-readable summary rather than Prometheus exposition.
func (m *Metrics) StatsHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		count := len(m.samples)
		m.mu.Unlock()

		payload := statsPayload{
			UptimeSeconds:    time.Since(m.started).Seconds(),
			AvgLatencyMillis: float64(m.rollingAverage().Microseconds()) / 1000,
			SampleCount:      count,
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(payload)
	})
}
