package client

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "arena_client"

// Metrics 客户端运行期关键指标（用于监控与调试）
type Metrics struct {
	MessagesReceived *prometheus.CounterVec
	DecodeErrors     prometheus.Counter
	ActionsSent      *prometheus.CounterVec
	ActionsDropped   *prometheus.CounterVec
	Reconnects       prometheus.Counter
	BytesReceived    prometheus.Counter
	ConnState        prometheus.Gauge
	Entities         prometheus.Gauge
	FrameSeconds     prometheus.Histogram
}

// NewMetrics 创建指标并注册到 reg；reg 为 nil 时不注册（测试或禁用监控）
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		MessagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "messages_received_total",
			Help:      "Decoded inbound messages by action.",
		}, []string{"action"}),
		DecodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "decode_errors_total",
			Help:      "Inbound payloads dropped as malformed.",
		}),
		ActionsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "actions_sent_total",
			Help:      "Outbound actions handed to the transport.",
		}, []string{"action"}),
		ActionsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "actions_dropped_total",
			Help:      "Outbound actions discarded, by reason.",
		}, []string{"reason"}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "reconnect_attempts_total",
			Help:      "Reconnect attempts fired by the retry timer.",
		}),
		BytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "received_bytes_total",
			Help:      "Inbound payload bytes.",
		}),
		ConnState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "connection_state",
			Help:      "0 disconnected, 1 connecting, 2 connected.",
		}),
		Entities: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "entities",
			Help:      "Entities in the local world mirror.",
		}),
		FrameSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "frame_duration_seconds",
			Help:      "Time spent producing one frame.",
			Buckets:   []float64{0.0005, 0.001, 0.002, 0.004, 0.008, 0.016, 0.033},
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.MessagesReceived, m.DecodeErrors, m.ActionsSent, m.ActionsDropped,
			m.Reconnects, m.BytesReceived, m.ConnState, m.Entities, m.FrameSeconds,
		)
	}
	return m
}

func (m *Metrics) IncReceived(action string) { m.MessagesReceived.WithLabelValues(action).Inc() }
func (m *Metrics) IncDecodeError()           { m.DecodeErrors.Inc() }
func (m *Metrics) IncSent(action string)     { m.ActionsSent.WithLabelValues(action).Inc() }
func (m *Metrics) IncDropped(reason string)  { m.ActionsDropped.WithLabelValues(reason).Inc() }
func (m *Metrics) IncReconnect()             { m.Reconnects.Inc() }
func (m *Metrics) AddBytes(n int)            { m.BytesReceived.Add(float64(n)) }
func (m *Metrics) SetState(s ConnState)      { m.ConnState.Set(float64(s)) }
func (m *Metrics) SetEntities(n int)         { m.Entities.Set(float64(n)) }
func (m *Metrics) ObserveFrame(sec float64)  { m.FrameSeconds.Observe(sec) }
