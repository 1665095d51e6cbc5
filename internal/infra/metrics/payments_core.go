package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		paymentsStartedTotal,
		paymentsRevenueTotal,
	)
}

var (
	paymentsStartedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_started_total",
			Help: "Start-payment calls by outcome (accepted/rejected/fast_tracked/error).",
		},
		[]string{"outcome"},
	)

	paymentsRevenueTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "payments_revenue_toman_total",
			Help: "Total monetary value of verified payments, in Toman.",
		},
	)
)

func IncPaymentStarted(outcome string) {
	paymentsStartedTotal.WithLabelValues(norm(outcome)).Inc()
}

func AddPaymentRevenue(amount int64) {
	paymentsRevenueTotal.Add(float64(amount))
}
