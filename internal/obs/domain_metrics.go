package obs

import "github.com/prometheus/client_golang/prometheus"

// Payment domain collectors, registered once at startup.
var (
	// PaymentHashTotal counts checkout hash requests by result
	// (success, invalid_argument, configuration_error).
	PaymentHashTotal *prometheus.CounterVec
	// PaymentNotifyTotal counts notify callbacks by outcome
	// (completed, already_processed, order_not_found, not_successful,
	// signature_mismatch, invalid_argument, replay, store_failure).
	PaymentNotifyTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics registers payment counters on the registry.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	PaymentHashTotal = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payment_hash_total",
		Help:      "Checkout hash requests by result.",
	}, []string{"result"}))
	PaymentNotifyTotal = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payment_notify_total",
		Help:      "Payment notify callbacks by outcome.",
	}, []string{"outcome"}))
}

// CountNotify increments the notify counter when metrics are enabled.
func CountNotify(outcome string) {
	if PaymentNotifyTotal != nil {
		PaymentNotifyTotal.WithLabelValues(outcome).Inc()
	}
}

// CountHash increments the hash counter when metrics are enabled.
func CountHash(result string) {
	if PaymentHashTotal != nil {
		PaymentHashTotal.WithLabelValues(result).Inc()
	}
}
