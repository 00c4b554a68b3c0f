// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Prometheus collectors for endpoint traffic, decode activity and events.
// Every method is safe on a nil *Metrics so instrumented code never checks.

package control

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors of one engine.
type Metrics struct {
	bytesRead    *prometheus.CounterVec
	bytesWritten *prometheus.CounterVec
	decodeCalls  *prometheus.CounterVec
	events       *prometheus.CounterVec
	errors       *prometheus.CounterVec
	endpoints    *prometheus.GaugeVec
	queueing     *prometheus.GaugeVec
}

// NewMetrics builds unregistered collectors under namespace.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		bytesRead: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_read_total",
			Help:      "Bytes read from endpoints.",
		}, []string{"kind"}),
		bytesWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_written_total",
			Help:      "Bytes written to endpoints.",
		}, []string{"kind"}),
		decodeCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_calls_total",
			Help:      "Decoder invocations.",
		}, []string{"kind"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Events delivered to handlers.",
		}, []string{"kind", "event"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Failures by error code.",
		}, []string{"kind", "code"}),
		endpoints: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "endpoints",
			Help:      "Endpoints currently registered.",
		}, []string{"kind"}),
		queueing: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queueing_bytes",
			Help:      "Bytes accepted for write and not yet flushed.",
		}, []string{"kind"}),
	}
}

// Collectors returns every collector for registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.bytesRead, m.bytesWritten, m.decodeCalls,
		m.events, m.errors, m.endpoints, m.queueing,
	}
}

// Register adds the collectors to reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) BytesRead(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.bytesRead.WithLabelValues(kind).Add(float64(n))
}

func (m *Metrics) BytesWritten(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.bytesWritten.WithLabelValues(kind).Add(float64(n))
}

func (m *Metrics) DecodeCall(kind string) {
	if m == nil {
		return
	}
	m.decodeCalls.WithLabelValues(kind).Inc()
}

// Event counts one delivered event: data, flush, close or error.
func (m *Metrics) Event(kind, event string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(kind, event).Inc()
}

func (m *Metrics) Error(kind, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(kind, code).Inc()
}

func (m *Metrics) EndpointAdded(kind string) {
	if m == nil {
		return
	}
	m.endpoints.WithLabelValues(kind).Inc()
}

func (m *Metrics) EndpointRemoved(kind string) {
	if m == nil {
		return
	}
	m.endpoints.WithLabelValues(kind).Dec()
}

// Queueing moves the queued-bytes gauge by delta.
func (m *Metrics) Queueing(kind string, delta int) {
	if m == nil || delta == 0 {
		return
	}
	m.queueing.WithLabelValues(kind).Add(float64(delta))
}
