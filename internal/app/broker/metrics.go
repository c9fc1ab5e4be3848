package broker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	online   prometheus.Gauge
	relayed  *prometheus.CounterVec
	rejected *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		online: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "meshcall",
			Subsystem: "broker",
			Name:      "peers_online",
			Help:      "Peers holding a signaling connection.",
		}),
		relayed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "meshcall",
			Subsystem: "broker",
			Name:      "relayed_total",
			Help:      "Messages relayed between peers by type.",
		}, []string{"type"}),
		rejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "meshcall",
			Subsystem: "broker",
			Name:      "rejected_total",
			Help:      "Messages answered with an error, by error kind.",
		}, []string{"reason"}),
	}
}

func (m *Metrics) setOnline(n int) {
	if m != nil {
		m.online.Set(float64(n))
	}
}

func (m *Metrics) relay(msgType string) {
	if m != nil {
		m.relayed.WithLabelValues(msgType).Inc()
	}
}

func (m *Metrics) reject(reason string) {
	if m != nil {
		m.rejected.WithLabelValues(reason).Inc()
	}
}
