package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics.
// Every Record method is safe to call on a nil *Metrics.
type Metrics struct {
	// Session metrics
	ActiveSession   prometheus.Gauge
	SessionsStarted prometheus.Counter
	SessionsStopped prometheus.Counter
	StartFailures   *prometheus.CounterVec
	SessionFailures prometheus.Counter
	SessionDuration prometheus.Histogram

	// Encoded unit metrics
	UnitsEncoded  prometheus.Counter
	KeyFrames     prometheus.Counter
	UnitsDropped  *prometheus.CounterVec
	UnitSize      prometheus.Histogram
	BytesStreamed prometheus.Counter

	// Viewer metrics
	ActiveClients   prometheus.Gauge
	ClientsAttached prometheus.Counter
	ClientsRejected prometheus.Counter
	ClientsDropped  prometheus.Counter

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// New creates all metrics and registers them with reg.
// A nil reg leaves them unregistered, which is what tests want.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{
		// Session metrics
		ActiveSession: factory.NewGauge(prometheus.GaugeOpts{
			Name: "rapidcast_active_session",
			Help: "1 while a casting session is active",
		}),
		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "rapidcast_sessions_started_total",
			Help: "Total number of sessions that reached the active state",
		}),
		SessionsStopped: factory.NewCounter(prometheus.CounterOpts{
			Name: "rapidcast_sessions_stopped_total",
			Help: "Total number of sessions torn down",
		}),
		StartFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rapidcast_start_failures_total",
				Help: "Total number of rejected or rolled back session starts",
			},
			[]string{"reason"},
		),
		SessionFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "rapidcast_session_failures_total",
			Help: "Total number of sessions ended by a fatal pipeline error",
		}),
		SessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "rapidcast_session_duration_seconds",
			Help:    "Duration of sessions in seconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10s to ~2.8h
		}),

		// Encoded unit metrics
		UnitsEncoded: factory.NewCounter(prometheus.CounterOpts{
			Name: "rapidcast_units_encoded_total",
			Help: "Total number of access units produced by the encoder",
		}),
		KeyFrames: factory.NewCounter(prometheus.CounterOpts{
			Name: "rapidcast_keyframes_total",
			Help: "Total number of keyframes produced by the encoder",
		}),
		UnitsDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rapidcast_units_dropped_total",
				Help: "Total number of access units not delivered to a viewer",
			},
			[]string{"reason"},
		),
		UnitSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "rapidcast_unit_size_bytes",
			Help:    "Size of encoded access units in bytes",
			Buckets: prometheus.ExponentialBuckets(256, 2, 12), // 256B to ~512KB
		}),
		BytesStreamed: factory.NewCounter(prometheus.CounterOpts{
			Name: "rapidcast_bytes_streamed_total",
			Help: "Total bytes written to viewers",
		}),

		// Viewer metrics
		ActiveClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "rapidcast_active_clients",
			Help: "Number of attached viewers (0 or 1)",
		}),
		ClientsAttached: factory.NewCounter(prometheus.CounterOpts{
			Name: "rapidcast_clients_attached_total",
			Help: "Total number of viewers that completed the handshake",
		}),
		ClientsRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "rapidcast_clients_rejected_total",
			Help: "Total number of connections refused because a viewer was attached",
		}),
		ClientsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "rapidcast_clients_dropped_total",
			Help: "Total number of viewers lost to disconnects or write failures",
		}),

		// HTTP metrics
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rapidcast_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rapidcast_http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}

	return m
}

// RecordSessionStart records a session becoming active
func (m *Metrics) RecordSessionStart() {
	if m == nil {
		return
	}
	m.ActiveSession.Set(1)
	m.SessionsStarted.Inc()
}

// RecordSessionStop records a session being torn down
func (m *Metrics) RecordSessionStop(durationSeconds float64, failed bool) {
	if m == nil {
		return
	}
	m.ActiveSession.Set(0)
	m.SessionsStopped.Inc()
	m.SessionDuration.Observe(durationSeconds)
	if failed {
		m.SessionFailures.Inc()
	}
}

// RecordStartFailure records a start that never reached the active state
func (m *Metrics) RecordStartFailure(reason string) {
	if m == nil {
		return
	}
	m.StartFailures.WithLabelValues(reason).Inc()
}

// RecordUnit records an access unit coming out of the encoder
func (m *Metrics) RecordUnit(size int, keyFrame bool) {
	if m == nil {
		return
	}
	m.UnitsEncoded.Inc()
	m.UnitSize.Observe(float64(size))
	if keyFrame {
		m.KeyFrames.Inc()
	}
}

// RecordUnitDropped records an access unit that reached no viewer
func (m *Metrics) RecordUnitDropped(reason string) {
	if m == nil {
		return
	}
	m.UnitsDropped.WithLabelValues(reason).Inc()
}

// RecordBytesStreamed records bytes written to a viewer
func (m *Metrics) RecordBytesStreamed(n int) {
	if m == nil {
		return
	}
	m.BytesStreamed.Add(float64(n))
}

// RecordClientAttached records a viewer completing the handshake
func (m *Metrics) RecordClientAttached() {
	if m == nil {
		return
	}
	m.ActiveClients.Set(1)
	m.ClientsAttached.Inc()
}

// RecordClientDetached records a viewer going away; dropped is false on session stop
func (m *Metrics) RecordClientDetached(dropped bool) {
	if m == nil {
		return
	}
	m.ActiveClients.Set(0)
	if dropped {
		m.ClientsDropped.Inc()
	}
}

// RecordClientRejected records a connection refused while busy
func (m *Metrics) RecordClientRejected() {
	if m == nil {
		return
	}
	m.ClientsRejected.Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path string, status int, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, path, statusClass(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, path).Observe(durationSeconds)
}

// statusClass converts an HTTP status code to its class
func statusClass(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
