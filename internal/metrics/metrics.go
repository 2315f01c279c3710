// Package metrics holds the prometheus collectors shared by the gateway, the
// session manager and the HTTP surfaces.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	gatewayCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "absen",
		Subsystem: "gateway",
		Name:      "calls_total",
		Help:      "Calls made by the credential gateway, by operation and outcome.",
	}, []string{"op", "outcome"})

	sessionTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "absen",
		Subsystem: "session",
		Name:      "transitions_total",
		Help:      "Session state transitions, by target state.",
	}, []string{"state"})

	staleCompletions = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "absen",
		Subsystem: "session",
		Name:      "stale_completions_total",
		Help:      "Session operations whose result was discarded because a newer one was issued.",
	})

	redemptions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "absen",
		Subsystem: "devapi",
		Name:      "redemptions_total",
		Help:      "Attendance code redemptions handled by the development service, by result.",
	}, []string{"result"})

	expiredCodes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "absen",
		Subsystem: "devapi",
		Name:      "expired_codes_total",
		Help:      "Attendance codes deactivated by the expiry job.",
	})
)

func init() {
	prometheus.MustRegister(gatewayCalls, sessionTransitions, staleCompletions, redemptions, expiredCodes)
}

// GatewayCall records the outcome of one gateway operation.
func GatewayCall(op, outcome string) {
	gatewayCalls.WithLabelValues(op, outcome).Inc()
}

// SessionTransition records a transition into state.
func SessionTransition(state string) {
	sessionTransitions.WithLabelValues(state).Inc()
}

func StaleCompletion() {
	staleCompletions.Inc()
}

// Redemption records one redemption attempt by result (present, late,
// duplicate, expired, invalid).
func Redemption(result string) {
	redemptions.WithLabelValues(result).Inc()
}

func ExpiredCodes(n int) {
	expiredCodes.Add(float64(n))
}
