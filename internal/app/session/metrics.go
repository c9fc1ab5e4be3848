package session

import (
	"github.com/dkeye/meshcall/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are optional; a nil *Metrics records nothing.
type Metrics struct {
	connections     *prometheus.GaugeVec
	attempts        *prometheus.CounterVec
	acquisitions    *prometheus.CounterVec
	broadcastActive prometheus.Gauge
	auxConnections  prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		connections: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "meshcall",
			Subsystem: "session",
			Name:      "connections",
			Help:      "Registered peer connections by direction.",
		}, []string{"direction"}),
		attempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "meshcall",
			Subsystem: "session",
			Name:      "connection_attempts_total",
			Help:      "Connection attempts by direction and result.",
		}, []string{"direction", "result"}),
		acquisitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "meshcall",
			Subsystem: "session",
			Name:      "acquisitions_total",
			Help:      "Capture device acquisitions by result.",
		}, []string{"result"}),
		broadcastActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "meshcall",
			Subsystem: "session",
			Name:      "broadcast_active",
			Help:      "1 while the amplified broadcast is on.",
		}),
		auxConnections: f.NewCounter(prometheus.CounterOpts{
			Namespace: "meshcall",
			Subsystem: "session",
			Name:      "broadcast_connections_total",
			Help:      "Auxiliary broadcast connections opened.",
		}),
	}
}

func (m *Metrics) setConnections(d domain.Direction, n int) {
	if m == nil {
		return
	}
	m.connections.WithLabelValues(d.String()).Set(float64(n))
}

func (m *Metrics) attempt(d domain.Direction, result string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(d.String(), result).Inc()
}

func (m *Metrics) acquisition(err error) {
	if m == nil {
		return
	}
	result := "granted"
	if err != nil {
		result = "failed"
	}
	m.acquisitions.WithLabelValues(result).Inc()
}

func (m *Metrics) broadcast(active bool, opened int) {
	if m == nil {
		return
	}
	if active {
		m.broadcastActive.Set(1)
	} else {
		m.broadcastActive.Set(0)
	}
	m.auxConnections.Add(float64(opened))
}
