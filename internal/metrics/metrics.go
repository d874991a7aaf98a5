// Package metrics exposes provider, publisher and runtime metrics on a
// private Prometheus registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"matchbot/internal/provider"
	"matchbot/internal/ratelimit"
	rtsup "matchbot/internal/runtime/supervisor"
)

const namespace = "matchbot"

// Manager owns the registry and every collector.
type Manager struct {
	reg *prometheus.Registry

	providerRequests *prometheus.CounterVec
	providerLatency  *prometheus.HistogramVec
	publishOps       *prometheus.CounterVec
	publishAttempts  *prometheus.HistogramVec
}

func New() *Manager {
	reg := prometheus.NewRegistry()
	auto := promauto.With(reg)
	return &Manager{
		reg: reg,
		providerRequests: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "requests_total",
			Help:      "Provider request attempts by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		providerLatency: auto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "request_duration_seconds",
			Help:      "Provider request attempt latency, rate limiter wait included.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		publishOps: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "publisher",
			Name:      "operations_total",
			Help:      "Finished platform operations by op and result.",
		}, []string{"op", "result"}),
		publishAttempts: auto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "publisher",
			Name:      "attempts",
			Help:      "Attempts used per finished platform operation.",
			Buckets:   []float64{1, 2, 3, 5},
		}, []string{"op"}),
	}
}

// ObserveRequest implements provider.Observer.
func (m *Manager) ObserveRequest(endpoint string, kind provider.Kind, d time.Duration) {
	m.providerRequests.WithLabelValues(endpoint, kind.String()).Inc()
	m.providerLatency.WithLabelValues(endpoint).Observe(d.Seconds())
}

// ObservePublish implements publisher.Observer.
func (m *Manager) ObservePublish(op string, ok bool, attempts int) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.publishOps.WithLabelValues(op, result).Inc()
	m.publishAttempts.WithLabelValues(op).Observe(float64(attempts))
}

// WatchLimiter exports per-endpoint limiter state, read at scrape time.
func (m *Manager) WatchLimiter(l *ratelimit.Limiter) {
	m.reg.MustRegister(&limiterCollector{snap: l.Snapshot})
}

// WatchSupervisor exports running task counts, read at scrape time.
func (m *Manager) WatchSupervisor(s *rtsup.Supervisor) {
	m.reg.MustRegister(&taskCollector{snap: s.Snapshot})
}

func (m *Manager) Registry() *prometheus.Registry { return m.reg }

func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

var (
	inFlightDesc = prometheus.NewDesc(namespace+"_ratelimit_in_flight",
		"Requests currently holding a concurrency slot.", []string{"endpoint"}, nil)
	windowDesc = prometheus.NewDesc(namespace+"_ratelimit_window_calls",
		"Timestamps held in the rolling window.", []string{"endpoint"}, nil)
	admittedDesc = prometheus.NewDesc(namespace+"_ratelimit_admitted_total",
		"Requests admitted by the limiter.", []string{"endpoint"}, nil)
	tasksDesc = prometheus.NewDesc(namespace+"_tasks_active",
		"Running supervised tasks by name.", []string{"task"}, nil)
	panicsDesc = prometheus.NewDesc(namespace+"_task_panics_total",
		"Recovered panics by task name.", []string{"task"}, nil)
)

type limiterCollector struct {
	snap func() []ratelimit.EndpointStats
}

func (c *limiterCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- inFlightDesc
	ch <- windowDesc
	ch <- admittedDesc
}

func (c *limiterCollector) Collect(ch chan<- prometheus.Metric) {
	for _, st := range c.snap() {
		ch <- prometheus.MustNewConstMetric(inFlightDesc, prometheus.GaugeValue, float64(st.InFlight), st.Name)
		ch <- prometheus.MustNewConstMetric(windowDesc, prometheus.GaugeValue, float64(st.Window), st.Name)
		ch <- prometheus.MustNewConstMetric(admittedDesc, prometheus.CounterValue, float64(st.Admitted), st.Name)
	}
}

type taskCollector struct {
	snap func() []rtsup.TaskStats
}

func (c *taskCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- tasksDesc
	ch <- panicsDesc
}

func (c *taskCollector) Collect(ch chan<- prometheus.Metric) {
	for _, st := range c.snap() {
		ch <- prometheus.MustNewConstMetric(tasksDesc, prometheus.GaugeValue, float64(st.Active), st.Name)
		ch <- prometheus.MustNewConstMetric(panicsDesc, prometheus.CounterValue, float64(st.Panics), st.Name)
	}
}
