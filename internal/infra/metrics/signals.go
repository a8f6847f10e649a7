package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(signalsTotal, orphanSignalsTotal) }

var signalsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "tryon_signals_total",
		Help: "Normalized completion signals, labeled by source and apply result.",
	},
	[]string{"source", "result"}, // source: webhook|poll; result: applied|ignored|orphan
)

var orphanSignalsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "tryon_orphan_signals_total",
		Help: "Signals whose target session could not be resolved.",
	},
)

func IncSignal(source, result string) {
	signalsTotal.WithLabelValues(norm(source), norm(result)).Inc()
}

func IncOrphanSignal() { orphanSignalsTotal.Inc() }
