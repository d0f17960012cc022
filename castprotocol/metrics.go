package castprotocol

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the client's Prometheus collectors. A nil *Metrics records
// nothing.
type Metrics struct {
	framesIn          prometheus.Counter
	framesOut         prometheus.Counter
	requests          *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	decodeErrors      prometheus.Counter
	unhandled         prometheus.Counter
	heartbeatTimeouts prometheus.Counter
	disconnects       *prometheus.CounterVec
	pending           prometheus.Gauge
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	const ns = "castlink"

	return &Metrics{
		framesIn: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "frames_received_total",
			Help:      "Frames read from devices",
		}),
		framesOut: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "frames_sent_total",
			Help:      "Frames written to devices",
		}),
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "requests_total",
			Help:      "Correlated requests by message type and outcome",
		}, []string{"type", "outcome"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "request_duration_seconds",
			Help:      "Time from request write to reply",
			Buckets:   prometheus.DefBuckets,
		}, []string{"type"}),
		decodeErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "decode_errors_total",
			Help:      "Frames or payloads dropped because they could not be decoded",
		}),
		unhandled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "unhandled_messages_total",
			Help:      "Messages on namespaces without a registered channel",
		}),
		heartbeatTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "heartbeat_timeouts_total",
			Help:      "Connections torn down after device silence",
		}),
		disconnects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "disconnects_total",
			Help:      "Connection teardowns by reason",
		}, []string{"reason"}),
		pending: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "pending_requests",
			Help:      "Requests awaiting a reply",
		}),
	}
}

func (m *Metrics) frameIn() {
	if m != nil {
		m.framesIn.Inc()
	}
}

func (m *Metrics) frameOut() {
	if m != nil {
		m.framesOut.Inc()
	}
}

func (m *Metrics) request(typ, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(typ, outcome).Inc()
	if outcome == "ok" {
		m.requestDuration.WithLabelValues(typ).Observe(d.Seconds())
	}
}

func (m *Metrics) decodeError() {
	if m != nil {
		m.decodeErrors.Inc()
	}
}

func (m *Metrics) unhandledMessage() {
	if m != nil {
		m.unhandled.Inc()
	}
}

func (m *Metrics) heartbeatTimeout() {
	if m != nil {
		m.heartbeatTimeouts.Inc()
	}
}

func (m *Metrics) disconnect(reason string) {
	if m != nil {
		m.disconnects.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) setPending(n int) {
	if m != nil {
		m.pending.Set(float64(n))
	}
}
