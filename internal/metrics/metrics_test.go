package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestCollectorReportsLiveCounters(t *testing.T) {
	c := &Counters{}
	c.ActiveWorkers.Store(4)
	c.RecordSuccess(10, 20)
	c.RecordSuccess(5, 15)
	c.RecordFailure()

	reg := prometheus.NewRegistry()
	if err := reg.Register(NewCollector(c)); err != nil {
		t.Fatalf("register: %v", err)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	values := make(map[string]float64)
	for _, f := range families {
		for _, m := range f.Metric {
			var v float64
			switch {
			case m.Gauge != nil:
				v = m.Gauge.GetValue()
			case m.Counter != nil:
				v = m.Counter.GetValue()
			}
			values[f.GetName()] = v
		}
	}

	if values["perfcore_active_workers"] != 4 {
		t.Errorf("active_workers = %v, want 4", values["perfcore_active_workers"])
	}
	if values["perfcore_requests_total"] != 3 {
		t.Errorf("requests_total = %v, want 3", values["perfcore_requests_total"])
	}
	if values["perfcore_failed_requests_total"] != 1 {
		t.Errorf("failed_requests_total = %v, want 1", values["perfcore_failed_requests_total"])
	}
	if values["perfcore_input_tokens_total"] != 15 {
		t.Errorf("input_tokens_total = %v, want 15", values["perfcore_input_tokens_total"])
	}
	if values["perfcore_output_tokens_total"] != 35 {
		t.Errorf("output_tokens_total = %v, want 35", values["perfcore_output_tokens_total"])
	}
}
