package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(sessionTransitionsTotal, sessionsCreatedTotal) }

var sessionTransitionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "tryon_session_transitions_total",
		Help: "Session status transitions, labeled by target status.",
	},
	[]string{"to"}, // 'processing', 'completed', 'failed'
)

var sessionsCreatedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "tryon_sessions_created_total",
		Help: "Total number of try-on sessions created.",
	},
)

func IncSessionCreated() { sessionsCreatedTotal.Inc() }

func IncSessionTransition(to string) {
	sessionTransitionsTotal.WithLabelValues(norm(to)).Inc()
}
