//go:build !integration

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestSetSessionStorePool(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(sessionStoreConns, sessionStoreWaits)

	SetSessionStorePool(5, 2, 3, 10, 7)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	got := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			key := mf.GetName()
			for _, lp := range m.GetLabel() {
				key += "/" + lp.GetValue()
			}
			got[key] = m.GetGauge().GetValue()
		}
	}

	want := map[string]float64{
		"session_store_pool_conns/total":    5,
		"session_store_pool_conns/idle":     2,
		"session_store_pool_conns/acquired": 3,
		"session_store_pool_conns/max":      10,
		"session_store_pool_empty_acquires": 7,
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %v, want %v", k, got[k], v)
		}
	}
}
