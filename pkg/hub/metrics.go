package hub

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "patternkit"

type metrics struct {
	envelopes *prometheus.CounterVec
	relayed   prometheus.Counter
	dropped   *prometheus.CounterVec
	saves     *prometheus.CounterVec
	peers     prometheus.Gauge
	projects  prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		envelopes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "hub",
			Name:      "envelopes_total",
			Help:      "Envelopes received from peers, by type.",
		}, []string{"type"}),
		relayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "hub",
			Name:      "relayed_total",
			Help:      "Envelopes forwarded to other peers.",
		}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "hub",
			Name:      "dropped_total",
			Help:      "Envelopes that were not applied, by reason.",
		}, []string{"reason"}),
		saves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "hub",
			Name:      "saves_total",
			Help:      "Project snapshots written to the store, by result.",
		}, []string{"result"}),
		peers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "hub",
			Name:      "peers",
			Help:      "Connected peers.",
		}),
		projects: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "hub",
			Name:      "open_projects",
			Help:      "Projects held in memory.",
		}),
	}
	reg.MustRegister(m.envelopes, m.relayed, m.dropped, m.saves, m.peers, m.projects)
	return m
}
