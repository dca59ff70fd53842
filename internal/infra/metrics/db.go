package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(sessionStoreConns, sessionStoreWaits) }

// Pool behind session books and the durable response cache.
var sessionStoreConns = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "session_store_pool_conns",
		Help: "Connections of the session store pool by state.",
	},
	[]string{"state"}, // total, idle, acquired, max
)

var sessionStoreWaits = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "session_store_pool_empty_acquires",
	Help: "Acquires that had to wait for a free session store connection since start.",
})

func SetSessionStorePool(total, idle, acquired, maxConns int32, emptyAcquires int64) {
	sessionStoreConns.WithLabelValues("total").Set(float64(total))
	sessionStoreConns.WithLabelValues("idle").Set(float64(idle))
	sessionStoreConns.WithLabelValues("acquired").Set(float64(acquired))
	sessionStoreConns.WithLabelValues("max").Set(float64(maxConns))
	sessionStoreWaits.Set(float64(emptyAcquires))
}
