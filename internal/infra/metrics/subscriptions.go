package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		subscriptionTransitions,
		subscriptionSweepTotal,
	)
}

var (
	subscriptionTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscription_transitions_total",
			Help: "Subscription status transitions (to: reserve/active/expired/canceled).",
		},
		[]string{"to"},
	)

	subscriptionSweepTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscription_sweep_total",
			Help: "Rows changed by the sweep worker, by action (expired/canceled).",
		},
		[]string{"action"},
	)
)

func IncSubscriptionTransition(to string) {
	subscriptionTransitions.WithLabelValues(norm(to)).Inc()
}

func AddSubscriptionSweep(action string, n int64) {
	subscriptionSweepTotal.WithLabelValues(norm(action)).Add(float64(n))
}
