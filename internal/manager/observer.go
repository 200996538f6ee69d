package manager

import (
	"zmapd/internal/connection"
	"zmapd/internal/feature"
	"zmapd/internal/view"
)

// viewObserver forwards view notifications to the manager. Views only call
// it from the loop goroutine, with the registry locked.
type viewObserver struct {
	m *Manager
	z *ZMap
}

func (o *viewObserver) StateChanged(v *view.View, from, to view.State) {
	o.z.refresh()
	o.m.publish(EventViewState, o.z, v, map[string]any{"from": from.String(), "to": to.String()})
}

func (o *viewObserver) DataLoaded(v *view.View, server string, p *connection.Payload, stats feature.MergeStats) {
	o.m.loadsTotal++
	o.m.publish(EventDataLoaded, o.z, v, map[string]any{
		"server":       server,
		"features":     p.Features,
		"new_features": stats.NewFeatures,
		"new_sets":     stats.NewSets,
	})
}

func (o *viewObserver) ConnectionFailed(v *view.View, server string, err error) {
	o.m.failuresTotal++
	o.m.publish(EventConnectionFailed, o.z, v, map[string]any{"server": server, "error": err.Error()})
}

func (o *viewObserver) Died(v *view.View) {
	z := o.z
	z.removeView(v)
	o.m.publish(EventViewDied, z, v, nil)
	if len(z.views) == 0 {
		z.State = ZMapDying
		o.m.deleteZMap(z)
		return
	}
	z.refresh()
	o.m.persist(z)
}
