package manager

import "github.com/prometheus/client_golang/prometheus"

// MetricsPublisher exports manager events as prometheus metrics and forwards
// them to an optional next publisher.
type MetricsPublisher struct {
	next   EventPublisher
	events *prometheus.CounterVec
	zmaps  prometheus.Gauge
	views  prometheus.Gauge
	loaded prometheus.Counter
}

// NewMetricsPublisher registers its collectors with reg.
func NewMetricsPublisher(reg prometheus.Registerer, next EventPublisher) (*MetricsPublisher, error) {
	if next == nil {
		next = noopPublisher{}
	}
	p := &MetricsPublisher{
		next: next,
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "zmapd",
				Subsystem: "manager",
				Name:      "events_total",
				Help:      "Manager lifecycle events by name",
			},
			[]string{"event"},
		),
		zmaps: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "zmapd",
			Subsystem: "manager",
			Name:      "zmaps",
			Help:      "Registered ZMaps",
		}),
		views: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "zmapd",
			Subsystem: "manager",
			Name:      "views",
			Help:      "Live views",
		}),
		loaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "zmapd",
			Subsystem: "manager",
			Name:      "features_loaded_total",
			Help:      "Features merged into views",
		}),
	}
	for _, c := range []prometheus.Collector{p.events, p.zmaps, p.views, p.loaded} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *MetricsPublisher) Publish(e Event) {
	p.events.WithLabelValues(e.Name).Inc()
	switch e.Name {
	case EventZMapCreated:
		p.zmaps.Inc()
	case EventZMapDeleted:
		p.zmaps.Dec()
	case EventViewCreated:
		p.views.Inc()
	case EventViewDied:
		p.views.Dec()
	case EventDataLoaded:
		if n, ok := e.Fields["new_features"].(int); ok {
			p.loaded.Add(float64(n))
		}
	}
	p.next.Publish(e)
}
