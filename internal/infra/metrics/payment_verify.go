package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		PaymentVerifyRequests,
		PaymentVerifyDuration,
	)
}

var (
	// Count of verify calls grouped by mapped gateway outcome.
	// outcome: success|already_verified|processing|gateway_failure|user_canceled|
	// rate_limited|rate_limited_count|rate_limited_amount|invalid_card_issuer|
	// switch_error|card_not_found|unknown, plus local reasons bad_callback|not_found|error.
	PaymentVerifyRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_verify_requests_total",
			Help: "Count of payment verify calls by mapped outcome.",
		},
		[]string{"outcome"},
	)

	// Latency of the verify handler grouped by outcome.
	PaymentVerifyDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payment_verify_duration_seconds",
			Help:    "Duration of the payment verify handler in seconds.",
			Buckets: []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"outcome"},
	)
)

func IncPaymentVerify(outcome string) {
	PaymentVerifyRequests.WithLabelValues(norm(outcome)).Inc()
}

func ObservePaymentVerify(outcome string, seconds float64) {
	PaymentVerifyDuration.WithLabelValues(norm(outcome)).Observe(seconds)
}
