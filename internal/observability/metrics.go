package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the client core.
// A nil *Metrics is valid and records nothing, so library code never
// has to check whether instrumentation is wired.
type Metrics struct {
	BridgeRequests  *prometheus.CounterVec
	BridgeInFlight  prometheus.Gauge
	PushEvents      *prometheus.CounterVec
	PushDrops       *prometheus.CounterVec
	PushDecodeFails *prometheus.CounterVec
	StoreRefreshes  prometheus.Counter
	BucketSizes     *prometheus.GaugeVec
	Notifications   *prometheus.CounterVec
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		BridgeRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bridge_requests_total",
			Help:      "Bridge calls by method and outcome.",
		}, []string{"method", "outcome"}),
		BridgeInFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bridge_requests_in_flight",
			Help:      "Bridge calls currently awaiting a response.",
		}),
		PushEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_events_total",
			Help:      "Push events delivered by topic.",
		}, []string{"topic"}),
		PushDrops: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_events_dropped_total",
			Help:      "Push events dropped because a subscriber was full.",
		}, []string{"topic"}),
		PushDecodeFails: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_decode_failures_total",
			Help:      "Frames or push payloads that failed to decode.",
		}, []string{"kind"}),
		StoreRefreshes: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_store_refreshes_total",
			Help:      "Full bucket refetches performed by the task store.",
		}),
		BucketSizes: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "task_bucket_size",
			Help:      "Tasks currently held in each status bucket.",
		}, []string{"status"}),
		Notifications: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "User-visible notifications by level.",
		}, []string{"level"}),
	}
}

func (m *Metrics) BridgeRequest(method, outcome string) {
	if m == nil {
		return
	}
	m.BridgeRequests.WithLabelValues(method, outcome).Inc()
}

func (m *Metrics) BridgeInflight(delta float64) {
	if m == nil {
		return
	}
	m.BridgeInFlight.Add(delta)
}

func (m *Metrics) PushEvent(topic string) {
	if m == nil {
		return
	}
	m.PushEvents.WithLabelValues(topic).Inc()
}

func (m *Metrics) PushDropped(topic string) {
	if m == nil {
		return
	}
	m.PushDrops.WithLabelValues(topic).Inc()
}

func (m *Metrics) PushDecodeError(kind string) {
	if m == nil {
		return
	}
	m.PushDecodeFails.WithLabelValues(kind).Inc()
}

func (m *Metrics) StoreRefresh() {
	if m == nil {
		return
	}
	m.StoreRefreshes.Inc()
}

func (m *Metrics) SetBucketSize(status string, n int) {
	if m == nil {
		return
	}
	m.BucketSizes.WithLabelValues(status).Set(float64(n))
}

func (m *Metrics) Notification(level string) {
	if m == nil {
		return
	}
	m.Notifications.WithLabelValues(level).Inc()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
