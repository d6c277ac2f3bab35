package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// promoValidations counts validation outcomes by result ("valid" or a
	// rejection reason).
	promoValidations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promocode_validations_total",
			Help: "Promocode validations by outcome.",
		},
		[]string{"result"},
	)

	promoApplies = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "promocode_applies_total",
			Help: "Successful promocode applications.",
		},
	)

	// promoTransitions counts lifecycle transitions by target status.
	promoTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promocode_status_transitions_total",
			Help: "Promocode status transitions by target status.",
		},
		[]string{"to"},
	)

	recsServed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommendations_served_total",
			Help: "Recommendation items returned, by kind.",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(promoValidations, promoApplies, promoTransitions, recsServed)
}
