package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dkeye/voicegate/internal/app/sfu"
)

// PrometheusCollector records control channel and room access metrics.
// It implements sfu.Recorder.
type PrometheusCollector struct {
	gatherer prometheus.Gatherer

	channelState         prometheus.Gauge
	reconnects           *prometheus.CounterVec
	reconnectDelay       prometheus.Histogram
	reconnectsExhausted  prometheus.Counter
	registrations        prometheus.Counter
	registrationFailures prometheus.Counter
	keepAliveFailures    prometheus.Counter
	pendingRooms         prometheus.Gauge
	joinRequests         *prometheus.CounterVec
}

// NewPrometheusCollector registers its metrics on a private registry so that
// several collectors can coexist in tests.
func NewPrometheusCollector() *PrometheusCollector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &PrometheusCollector{
		gatherer: reg,

		channelState: f.NewGauge(prometheus.GaugeOpts{
			Name: "voice_sfu_channel_state",
			Help: "Control channel state (0 disconnected, 1 connecting, 2 connected)",
		}),
		reconnects: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voice_sfu_reconnects_total",
				Help: "Reconnect attempts scheduled, by attempt number",
			},
			[]string{"attempt"},
		),
		reconnectDelay: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "voice_sfu_reconnect_delay_seconds",
			Help:    "Backoff delay before a reconnect attempt",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 8),
		}),
		reconnectsExhausted: f.NewCounter(prometheus.CounterOpts{
			Name: "voice_sfu_reconnects_exhausted_total",
			Help: "Times the reconnect budget ran out",
		}),
		registrations: f.NewCounter(prometheus.CounterOpts{
			Name: "voice_sfu_room_registrations_total",
			Help: "Room registration envelopes sent to the SFU",
		}),
		registrationFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "voice_sfu_room_registration_failures_total",
			Help: "Room registrations that could not be sent",
		}),
		keepAliveFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "voice_sfu_keepalive_failures_total",
			Help: "Keep-alive sends that failed",
		}),
		pendingRooms: f.NewGauge(prometheus.GaugeOpts{
			Name: "voice_sfu_pending_rooms",
			Help: "Rooms waiting for (re-)registration",
		}),
		joinRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voice_join_requests_total",
				Help: "Room access requests by outcome",
			},
			[]string{"outcome"},
		),
	}
}

func (c *PrometheusCollector) StateChanged(state sfu.State) {
	c.channelState.Set(float64(state))
}

func (c *PrometheusCollector) ReconnectScheduled(attempt int, delay time.Duration) {
	c.reconnects.WithLabelValues(strconv.Itoa(attempt)).Inc()
	c.reconnectDelay.Observe(delay.Seconds())
}

func (c *PrometheusCollector) ReconnectsExhausted()    { c.reconnectsExhausted.Inc() }
func (c *PrometheusCollector) RoomRegistered()         { c.registrations.Inc() }
func (c *PrometheusCollector) RoomRegistrationFailed() { c.registrationFailures.Inc() }
func (c *PrometheusCollector) KeepAliveFailed()        { c.keepAliveFailures.Inc() }
func (c *PrometheusCollector) PendingRooms(n int)      { c.pendingRooms.Set(float64(n)) }

// JoinRequest counts one room access request; outcome is "granted",
// "unavailable", "invalid" or "error".
func (c *PrometheusCollector) JoinRequest(outcome string) {
	c.joinRequests.WithLabelValues(outcome).Inc()
}

// Handler returns an HTTP handler for the metrics endpoint.
func (c *PrometheusCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}
