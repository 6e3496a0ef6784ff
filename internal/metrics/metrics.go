// Package metrics counts operation transitions, failed reads and wallet
// notifications. The watch command serves them over HTTP.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/zephyra-labs/zephyra-cli/internal/execution"
)

type Registry struct {
	registry      *prometheus.Registry
	operations    *prometheus.CounterVec
	readFailures  *prometheus.CounterVec
	notifications *prometheus.CounterVec
	connected     prometheus.Gauge
}

func New() *Registry {
	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zephyra",
		Name:      "operation_transitions_total",
		Help:      "Pending operation transitions by action, step kind and status.",
	}, []string{"action", "kind", "status"})

	readFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zephyra",
		Name:      "read_failures_total",
		Help:      "Aggregated reads that failed, by component.",
	}, []string{"component"})

	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zephyra",
		Name:      "provider_notifications_total",
		Help:      "Wallet provider notifications consumed by the session manager.",
	}, []string{"kind"})

	connected := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "zephyra",
		Name:      "session_connected",
		Help:      "1 while a signing session is held.",
	})

	r := prometheus.NewRegistry()
	r.MustRegister(operations, readFailures, notifications, connected)

	return &Registry{
		registry:      r,
		operations:    operations,
		readFailures:  readFailures,
		notifications: notifications,
		connected:     connected,
	}
}

func (m *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Observer counts every transition the orchestrator emits.
func (m *Registry) Observer() execution.Observer {
	return execution.ObserverFunc(func(op execution.PendingOperation) {
		m.operations.WithLabelValues(op.Action, string(op.Kind), string(op.Status)).Inc()
	})
}

func (m *Registry) IncReadFailure(component string) {
	m.readFailures.WithLabelValues(component).Inc()
}

func (m *Registry) IncNotification(kind string) {
	m.notifications.WithLabelValues(kind).Inc()
}

func (m *Registry) SetConnected(connected bool) {
	if connected {
		m.connected.Set(1)
		return
	}
	m.connected.Set(0)
}
