package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		aiCallsLatencyMs,
		aiTokensOut,
		aiErrorsTotal,
	)
}

var (
	aiCallsLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_calls_latency_ms",
			Help:    "Provider call latency distribution in milliseconds.",
			Buckets: []float64{10, 25, 50, 100, 200, 400, 800, 1600, 3000, 5000, 10000},
		},
		[]string{"provider", "op", "success"},
	)

	aiTokensOut = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_tokens_out",
			Help: "Estimated completion tokens streamed per provider/assistant.",
		},
		[]string{"provider", "assistant"},
	)

	aiErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_errors_total",
			Help: "Provider failures by error category.",
		},
		[]string{"provider", "category"},
	)
)

func ObserveAICall(provider, op string, latencyMs int64, success bool) {
	aiCallsLatencyMs.WithLabelValues(norm(provider), norm(op), strconv.FormatBool(success)).
		Observe(float64(latencyMs))
}

func AddAnswerTokens(provider, assistant string, n int) {
	if n <= 0 {
		return
	}
	aiTokensOut.WithLabelValues(norm(provider), norm(assistant)).Add(float64(n))
}

func IncAIError(provider, category string) {
	aiErrorsTotal.WithLabelValues(norm(provider), norm(category)).Inc()
}
