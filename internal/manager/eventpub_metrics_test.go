package manager

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func gathered(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var sum float64
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetGauge() != nil:
				sum += m.GetGauge().GetValue()
			case m.GetCounter() != nil:
				sum += m.GetCounter().GetValue()
			}
		}
	}
	return sum
}

func TestMetricsPublisher_TracksGaugesAndForwards(t *testing.T) {
	reg := prometheus.NewRegistry()
	next := NewMemoryPublisher()
	p, err := NewMetricsPublisher(reg, next)
	if err != nil {
		t.Fatalf("NewMetricsPublisher: %v", err)
	}
	for _, e := range []Event{
		{Name: EventZMapCreated, ZMapID: "z1"},
		{Name: EventZMapCreated, ZMapID: "z2"},
		{Name: EventViewCreated, ZMapID: "z1", ViewID: "v1"},
		{Name: EventDataLoaded, ZMapID: "z1", ViewID: "v1", Fields: map[string]any{"new_features": 7}},
		{Name: EventZMapDeleted, ZMapID: "z2"},
	} {
		p.Publish(e)
	}
	if got := gathered(t, reg, "zmapd_manager_zmaps"); got != 1 {
		t.Fatalf("zmaps=%v want 1", got)
	}
	if got := gathered(t, reg, "zmapd_manager_views"); got != 1 {
		t.Fatalf("views=%v want 1", got)
	}
	if got := gathered(t, reg, "zmapd_manager_features_loaded_total"); got != 7 {
		t.Fatalf("features=%v want 7", got)
	}
	if got := gathered(t, reg, "zmapd_manager_events_total"); got != 5 {
		t.Fatalf("events=%v want 5", got)
	}
	if n := len(next.Events()); n != 5 {
		t.Fatalf("forwarded %d events", n)
	}
	if _, err := NewMetricsPublisher(reg, nil); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
}
