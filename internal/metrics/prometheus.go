package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"iatbridge/internal/domain"
	"iatbridge/internal/errorsx"
	"iatbridge/internal/ports"
)

// Metrics contains all Prometheus metrics for the bridge. It implements
// ports.SessionObserver so the session controller reports into it directly.
type Metrics struct {
	Registry *prometheus.Registry

	// Session metrics
	ActiveSessions  prometheus.Gauge
	SessionsTotal   *prometheus.CounterVec
	SessionDuration prometheus.Histogram
	StateChanges    *prometheus.CounterVec

	// Frame metrics
	FramesSent     *prometheus.CounterVec
	AudioBytesSent prometheus.Counter

	// Result metrics
	PartialUpdates prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		Registry: registry,

		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "iat_active_sessions",
			Help: "Current number of streaming recognition sessions",
		}),
		SessionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "iat_sessions_total",
			Help: "Finished sessions by outcome reason",
		}, []string{"outcome"}),
		SessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "iat_session_duration_seconds",
			Help:    "Wall time of a recognition session",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		StateChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "iat_session_state_changes_total",
			Help: "Session lifecycle transitions by target state",
		}, []string{"state"}),

		FramesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "iat_frames_sent_total",
			Help: "Outbound audio frames by frame state",
		}, []string{"state"}),
		AudioBytesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "iat_audio_bytes_sent_total",
			Help: "Raw audio bytes carried by outbound frames",
		}),

		PartialUpdates: factory.NewCounter(prometheus.CounterOpts{
			Name: "iat_partial_updates_total",
			Help: "Partial results applied to session transcripts",
		}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "iat_http_requests_total",
			Help: "HTTP requests by route and status code",
		}, []string{"route", "status"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "iat_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

func (m *Metrics) SessionStateChanged(_ string, state domain.SessionState) {
	m.StateChanges.WithLabelValues(string(state)).Inc()
	if state == domain.SessionStateConnecting {
		m.ActiveSessions.Inc()
	}
}

func (m *Metrics) FrameSent(_ string, state domain.FrameState, size int) {
	m.FramesSent.WithLabelValues(state.String()).Inc()
	m.AudioBytesSent.Add(float64(size))
}

func (m *Metrics) PartialTranscript(string, string) {
	m.PartialUpdates.Inc()
}

func (m *Metrics) SessionFinished(_ string, err error, elapsed time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = string(errorsx.Reason(err))
	}
	m.SessionsTotal.WithLabelValues(outcome).Inc()
	m.SessionDuration.Observe(elapsed.Seconds())
	m.ActiveSessions.Dec()
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(route string, status int, elapsed time.Duration) {
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

var _ ports.SessionObserver = (*Metrics)(nil)
