// Package metrics exposes the server's Prometheus counters/gauges on a
// debug HTTP listener separate from the TCP command port.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ConnectionsAccepted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "minidb_connections_accepted_total",
			Help: "Total number of accepted TCP connections.",
		},
	)

	ConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "minidb_connections_active",
			Help: "Number of currently open connections.",
		},
	)

	ConnectionsReaped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "minidb_connections_reaped_total",
			Help: "Total number of connections closed by the idle monitor.",
		},
	)

	ConnectionsRejected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "minidb_connections_rejected_total",
			Help: "Total number of connections rejected because the server was at capacity.",
		},
	)

	CommandsExecuted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minidb_commands_executed_total",
			Help: "Total number of commands executed, by command name (under the command_class label) and outcome.",
		},
		[]string{"command_class", "outcome"},
	)

	// TransactionsActive and TransactionsRolledBack are registered, but
	// no code path updates them: both always report zero.
	TransactionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "minidb_transactions_active",
			Help: "Number of currently active transactions.",
		},
	)

	TransactionsRolledBack = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "minidb_transactions_rolled_back_total",
			Help: "Total number of rolled-back transactions.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		ConnectionsAccepted,
		ConnectionsActive,
		ConnectionsReaped,
		ConnectionsRejected,
		CommandsExecuted,
		TransactionsActive,
		TransactionsRolledBack,
	)
}

// Handler returns the promhttp handler for the debug listener to serve.
func Handler() http.Handler {
	return promhttp.Handler()
}
