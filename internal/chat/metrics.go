package chat

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts relay and connection activity. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	connections         prometheus.Gauge
	persisted           prometheus.Counter
	rejected            *prometheus.CounterVec
	localDeliveries     prometheus.Counter
	broadcastDeliveries prometheus.Counter
	pushFailures        prometheus.Counter
	publishFailures     prometheus.Counter
	echoesSkipped       prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "recipechat_connections",
			Help: "Live websocket connections registered on this instance.",
		}),
		persisted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "recipechat_messages_persisted_total",
			Help: "Messages appended to the ledger.",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recipechat_messages_rejected_total",
			Help: "Sends refused before or during persistence, by reason.",
		}, []string{"reason"}),
		localDeliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "recipechat_local_deliveries_total",
			Help: "Delivery frames pushed by the relay to a receiver on this instance.",
		}),
		broadcastDeliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "recipechat_broadcast_deliveries_total",
			Help: "Delivery frames pushed after receiving a broadcast event.",
		}),
		pushFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "recipechat_push_failures_total",
			Help: "Delivery frames that could not be queued on a connection.",
		}),
		publishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "recipechat_publish_failures_total",
			Help: "Broadcast events that failed to publish.",
		}),
		echoesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "recipechat_broadcast_echoes_skipped_total",
			Help: "Broadcast events ignored because this instance published them.",
		}),
	}

	reg.MustRegister(
		m.connections,
		m.persisted,
		m.rejected,
		m.localDeliveries,
		m.broadcastDeliveries,
		m.pushFailures,
		m.publishFailures,
		m.echoesSkipped,
	)
	return m
}

func (m *Metrics) SetConnections(n int) {
	if m == nil {
		return
	}
	m.connections.Set(float64(n))
}

func (m *Metrics) incPersisted() {
	if m == nil {
		return
	}
	m.persisted.Inc()
}

func (m *Metrics) incRejected(reason string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) incLocal() {
	if m == nil {
		return
	}
	m.localDeliveries.Inc()
}

func (m *Metrics) incBroadcast() {
	if m == nil {
		return
	}
	m.broadcastDeliveries.Inc()
}

func (m *Metrics) incPushFailure() {
	if m == nil {
		return
	}
	m.pushFailures.Inc()
}

func (m *Metrics) incPublishFailure() {
	if m == nil {
		return
	}
	m.publishFailures.Inc()
}

func (m *Metrics) incEchoSkipped() {
	if m == nil {
		return
	}
	m.echoesSkipped.Inc()
}
