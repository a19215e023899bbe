// Package metrics exposes Prometheus collectors for the game server.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "gameserver"

// Transport label values.
const (
	Stream   = "stream"
	Datagram = "datagram"
)

// Datagram drop reasons.
const (
	DropShort     = "short"
	DropUnknown   = "unknown_id"
	DropNoConn    = "no_connection"
	DropSpoofed   = "endpoint_mismatch"
	DropMalformed = "malformed"
)

// Metrics holds every collector the server updates.
type Metrics struct {
	activeSessions   prometheus.Gauge
	connections      *prometheus.CounterVec
	disconnects      *prometheus.CounterVec
	framesReceived   *prometheus.CounterVec
	datagramsDropped *prometheus.CounterVec
	packetsSent      *prometheus.CounterVec
	sendsDropped     prometheus.Counter
	dispatchErrors   *prometheus.CounterVec
	tickDuration     prometheus.Histogram
	tickActions      prometheus.Histogram
	tickOverruns     prometheus.Counter
	tickBudget       time.Duration
}

// New registers the collectors on reg.
//
// Parameters:
//   - reg: Registry the collectors are registered on; nil uses prometheus.DefaultRegisterer
//   - tickBudget: Tick duration above which a tick counts as an overrun
//
// Returns:
//   - A Metrics ready for use
func New(reg prometheus.Registerer, tickBudget time.Duration) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of occupied session slots",
		}),

		connections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Stream connections by outcome",
		}, []string{"result"}),

		disconnects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "disconnects_total",
			Help:      "Session disconnects by reason",
		}, []string{"reason"}),

		framesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Complete frames received by transport",
		}, []string{"transport"}),

		datagramsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "datagrams_dropped_total",
			Help:      "Datagrams discarded before dispatch by reason",
		}, []string{"reason"}),

		packetsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_sent_total",
			Help:      "Packets handed to a transport",
		}, []string{"transport"}),

		sendsDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sends_dropped_total",
			Help:      "Stream sends discarded because the session outbox was full",
		}),

		dispatchErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_errors_total",
			Help:      "Frames that failed dispatch by packet type",
		}, []string{"packet"}),

		tickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Time spent draining the action queue and running tick functions",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .02, .05, .1},
		}),

		tickActions: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_actions",
			Help:      "Deferred actions run per tick",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),

		tickOverruns: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tick_overruns_total",
			Help:      "Ticks that took longer than the tick interval",
		}),

		tickBudget: tickBudget,
	}
}

// SessionOpened records an accepted stream connection bound to a slot.
func (m *Metrics) SessionOpened() {
	m.connections.WithLabelValues("accepted").Inc()
	m.activeSessions.Inc()
}

// SessionRejected records a connection closed because every slot was taken.
func (m *Metrics) SessionRejected() {
	m.connections.WithLabelValues("rejected").Inc()
}

// SessionClosed records a disconnect and the reason for it.
func (m *Metrics) SessionClosed(reason string) {
	m.disconnects.WithLabelValues(reason).Inc()
	m.activeSessions.Dec()
}

// FrameReceived counts one complete inbound frame.
func (m *Metrics) FrameReceived(transport string) {
	m.framesReceived.WithLabelValues(transport).Inc()
}

// DatagramDropped counts one discarded datagram.
func (m *Metrics) DatagramDropped(reason string) {
	m.datagramsDropped.WithLabelValues(reason).Inc()
}

// PacketSent counts one packet handed to a transport.
func (m *Metrics) PacketSent(transport string) {
	m.packetsSent.WithLabelValues(transport).Inc()
}

// SendDropped counts one stream send lost to a full outbox.
func (m *Metrics) SendDropped() {
	m.sendsDropped.Inc()
}

// DispatchFailed counts a frame whose handler was missing, failed or panicked.
func (m *Metrics) DispatchFailed(packetName string) {
	m.dispatchErrors.WithLabelValues(packetName).Inc()
}

// ObserveTick records one tick of the logical loop.
func (m *Metrics) ObserveTick(elapsed time.Duration, actions int) {
	m.tickDuration.Observe(elapsed.Seconds())
	m.tickActions.Observe(float64(actions))
	if m.tickBudget > 0 && elapsed > m.tickBudget {
		m.tickOverruns.Inc()
	}
}
