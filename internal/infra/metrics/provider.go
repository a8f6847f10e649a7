package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(providerCallLatencyMs, submitRetriesTotal) }

var providerCallLatencyMs = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "tryon_provider_call_latency_ms",
		Help:    "Provider call latency distribution in milliseconds.",
		Buckets: []float64{25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
	},
	[]string{"op", "success"}, // op: submit|poll
)

var submitRetriesTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "tryon_submit_retries_total",
		Help: "Provider submission attempts that were rescheduled with backoff.",
	},
)

func ObserveProviderCall(op string, latencyMs int, success bool) {
	providerCallLatencyMs.WithLabelValues(norm(op), strconv.FormatBool(success)).
		Observe(float64(latencyMs))
}

func IncSubmitRetry() { submitRetriesTotal.Inc() }
