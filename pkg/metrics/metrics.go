package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path and status
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// DatabaseConnectionsGauge tracks pool state by connection state
	DatabaseConnectionsGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "database_connections",
			Help: "Database connection pool state",
		},
		[]string{"state"},
	)

	// DepositsTotal counts deposits by method, currency and outcome
	DepositsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deposits_total",
			Help: "Total number of deposits processed",
		},
		[]string{"method", "currency", "status"},
	)

	// DepositVolumeUSD accumulates credited deposit value by currency
	DepositVolumeUSD = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deposit_volume_usd_total",
			Help: "Total credited deposit value in USD",
		},
		[]string{"currency"},
	)

	// WithdrawalsTotal counts withdrawals by method and outcome
	WithdrawalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "withdrawals_total",
			Help: "Total number of withdrawals processed",
		},
		[]string{"method", "status"},
	)

	// WebhookEventsTotal counts inbound webhook items by result
	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Total number of inbound webhook transactions",
		},
		[]string{"result"},
	)

	// SweepRunsTotal counts sweep passes by outcome
	SweepRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sweep_runs_total",
			Help: "Total number of sweep engine passes",
		},
		[]string{"status"},
	)

	// SweepTransfersTotal counts individual sweep transfers by currency
	SweepTransfersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sweep_transfers_total",
			Help: "Total number of sweep transfers submitted",
		},
		[]string{"currency"},
	)

	// ChainRPCErrorsTotal counts failed chain RPC operations
	ChainRPCErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chain_rpc_errors_total",
			Help: "Total number of failed chain RPC operations",
		},
		[]string{"operation"},
	)
)

// RecordDeposit records a deposit outcome
func RecordDeposit(method, currency, status string) {
	DepositsTotal.WithLabelValues(method, currency, status).Inc()
}

// RecordDepositVolume records credited USD value
func RecordDepositVolume(currency string, amountUSD float64) {
	DepositVolumeUSD.WithLabelValues(currency).Add(amountUSD)
}

// RecordWithdrawal records a withdrawal outcome
func RecordWithdrawal(method, status string) {
	WithdrawalsTotal.WithLabelValues(method, status).Inc()
}

// RecordWebhookEvent records one inbound webhook transaction result
func RecordWebhookEvent(result string) {
	WebhookEventsTotal.WithLabelValues(result).Inc()
}

// Handler exposes the Prometheus scrape endpoint
func Handler() http.Handler {
	return promhttp.Handler()
}
