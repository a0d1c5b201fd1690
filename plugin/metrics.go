package plugin

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/srediag/fsplugin/api"
)

const metricsNamespace = "fsplugin"

type clientMetrics struct {
	requests   *prometheus.CounterVec
	reconnects prometheus.Counter
	state      prometheus.Gauge
	pending    prometheus.Gauge
	queued     prometheus.Gauge
}

func newClientMetrics(reg prometheus.Registerer) (*clientMetrics, error) {
	m := &clientMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "client",
			Name:      "requests_total",
			Help:      "Requests to the sync engine by operation and result.",
		}, []string{"op", "result"}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "client",
			Name:      "connection_invalidations_total",
			Help:      "Times an established connection to the sync engine was lost.",
		}),
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "client",
			Name:      "connection_state",
			Help:      "Connection state: 0 disconnected, 1 connecting, 2 connected, 3 failed.",
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "client",
			Name:      "pending_requests",
			Help:      "Requests sent and waiting for a reply.",
		}),
		queued: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "client",
			Name:      "queued_requests",
			Help:      "Requests waiting to be sent.",
		}),
	}
	if reg == nil {
		return m, nil
	}
	var err error
	if m.requests, err = register(reg, m.requests); err != nil {
		return nil, err
	}
	if m.reconnects, err = register(reg, m.reconnects); err != nil {
		return nil, err
	}
	if m.state, err = register(reg, m.state); err != nil {
		return nil, err
	}
	if m.pending, err = register(reg, m.pending); err != nil {
		return nil, err
	}
	if m.queued, err = register(reg, m.queued); err != nil {
		return nil, err
	}
	return m, nil
}

// register adds c to reg, reusing an identical collector registered by another client.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (m *clientMetrics) observeRequest(op api.Operation, err error) {
	res := "ok"
	var re *RemoteError
	switch {
	case err == nil:
	case errors.As(err, &re):
		res = "remote_error"
	case errors.Is(err, ErrRequestTimeout):
		res = "timeout"
	default:
		res = "error"
	}
	m.requests.WithLabelValues(string(op), res).Inc()
}

func (m *clientMetrics) setState(s api.ConnState) {
	m.state.Set(float64(s))
}
