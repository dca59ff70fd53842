package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(relayTurnsTotal, relayFallbackTotal, relayFanoutTotal, relayCitationLayer)
}

var (
	relayTurnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_turns_total",
			Help: "Relay turns by outcome (cache_hit, completed, or an error category).",
		},
		[]string{"outcome"},
	)

	relayFallbackTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_fallback_total",
			Help: "No-content fallback activations by result (recovered, empty).",
		},
		[]string{"result"},
	)

	relayFanoutTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_fanout_turns_total",
			Help: "Mention fan-out turns started.",
		},
	)

	relayCitationLayer = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_citation_layer_total",
			Help: "Which citation layer served a finalized turn (structured, mined, disclaimer).",
		},
		[]string{"layer"},
	)
)

func IncRelayTurn(outcome string) { relayTurnsTotal.WithLabelValues(norm(outcome)).Inc() }
func IncRelayFallback(result string) { relayFallbackTotal.WithLabelValues(norm(result)).Inc() }
func IncRelayFanout() { relayFanoutTotal.Inc() }
func IncRelayCitationLayer(layer string) { relayCitationLayer.WithLabelValues(norm(layer)).Inc() }
