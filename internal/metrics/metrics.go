package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"route", "method", "status"},
	)

	// Ledger
	DeductionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "credit_deductions_total",
			Help: "Authoritative credit deductions by result",
		},
		[]string{"result"}, // ok|insufficient|error
	)
	RefundsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "credit_refunds_total",
			Help: "Compensating refunds by result",
		},
		[]string{"result"}, // ok|duplicate|error
	)
	GrantItemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grant_batch_items_total",
			Help: "Admin grant batch items by result",
		},
		[]string{"result"}, // ok|error
	)
	ClaimsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "code_claims_total",
			Help: "Redeemable code claim attempts by result",
		},
		[]string{"result"}, // won|lost|not_found
	)

	// BillingShortfalls counts paid actions whose external effect succeeded
	// but whose authoritative billing lost a race. These are reconciled out
	// of band; the counter is the monitoring signal.
	BillingShortfalls = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "credits_billing_shortfall_total",
			Help: "Successful paid actions that could not be billed",
		},
	)

	WorkerQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "worker_queue_depth",
			Help: "Current worker queue depth",
		},
	)
)

var Handler = promhttp.Handler

func Init() {
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(DeductionsTotal)
	prometheus.MustRegister(RefundsTotal)
	prometheus.MustRegister(GrantItemsTotal)
	prometheus.MustRegister(ClaimsTotal)
	prometheus.MustRegister(BillingShortfalls)
	prometheus.MustRegister(WorkerQueueDepth)
}
