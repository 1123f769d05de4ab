package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every series when New is given an empty namespace.
const DefaultNamespace = "airlink"

// Result label values.
const (
	resultSuccess = "success"
	resultError   = "error"
)

// statuses lists every connection status so the gauge always carries all
// three series, with exactly one set to 1.
var statuses = []string{"disconnected", "local", "cloud"}

// Metrics holds the Prometheus collectors for one appliance.
type Metrics struct {
	registry *prometheus.Registry

	ConnectAttempts  *prometheus.CounterVec
	ConnectionStatus *prometheus.GaugeVec
	StatusChanges    prometheus.Counter
	MessagesReceived *prometheus.CounterVec
	MessagesDropped  *prometheus.CounterVec
	CommandsSent     *prometheus.CounterVec
}

// New creates the collectors and registers them on a private registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ConnectAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "connect_attempts_total",
				Help:      "Transport connection attempts by transport and result",
			},
			[]string{"transport", "result"},
		),
		ConnectionStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "connection_status",
				Help:      "Current connection status (1 for the active status, 0 otherwise)",
			},
			[]string{"status"},
		),
		StatusChanges: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "status_changes_total",
				Help:      "Number of connection status transitions",
			},
		),
		MessagesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_received_total",
				Help:      "Decoded appliance messages by message type",
			},
			[]string{"type"},
		),
		MessagesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_dropped_total",
				Help:      "Appliance payloads dropped before decoding, by reason",
			},
			[]string{"reason"},
		),
		CommandsSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commands_sent_total",
				Help:      "Commands published to the appliance by command and result",
			},
			[]string{"command", "result"},
		),
	}

	m.registry.MustRegister(
		m.ConnectAttempts,
		m.ConnectionStatus,
		m.StatusChanges,
		m.MessagesReceived,
		m.MessagesDropped,
		m.CommandsSent,
	)

	m.setStatus("disconnected")
	return m
}

// Registry returns the private registry, mainly for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler serving the registry in exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ConnectAttempt counts one transport attempt.
func (m *Metrics) ConnectAttempt(transport string, ok bool) {
	m.ConnectAttempts.WithLabelValues(transport, result(ok)).Inc()
}

// StatusChanged moves the status gauge and counts the transition.
func (m *Metrics) StatusChanged(status string) {
	m.StatusChanges.Inc()
	m.setStatus(status)
}

// MessageReceived counts a decoded message.
func (m *Metrics) MessageReceived(messageType string) {
	m.MessagesReceived.WithLabelValues(messageType).Inc()
}

// MessageDropped counts a dropped payload.
func (m *Metrics) MessageDropped(reason string) {
	m.MessagesDropped.WithLabelValues(reason).Inc()
}

// CommandSent counts a command publish.
func (m *Metrics) CommandSent(command string, err error) {
	m.CommandsSent.WithLabelValues(command, result(err == nil)).Inc()
}

func (m *Metrics) setStatus(current string) {
	for _, s := range statuses {
		v := 0.0
		if s == current {
			v = 1
		}
		m.ConnectionStatus.WithLabelValues(s).Set(v)
	}
}

func result(ok bool) string {
	if ok {
		return resultSuccess
	}
	return resultError
}
