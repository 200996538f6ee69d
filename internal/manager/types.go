package manager

import (
	"time"

	"zmapd/internal/view"
)

// State is the lifecycle state of the manager.
type State string

const (
	StateStarting     State = "starting"
	StateReady        State = "ready"
	StateShuttingDown State = "shutting_down"
)

// ZMapState is the lifecycle state of one ZMap.
type ZMapState string

const (
	ZMapInit      ZMapState = "init"
	ZMapViews     ZMapState = "views"
	ZMapResetting ZMapState = "resetting"
	ZMapDying     ZMapState = "dying"
)

// AddResult is the outcome of Add.
type AddResult int

const (
	// AddOK: the ZMap and its first view are connected.
	AddOK AddResult = iota
	// AddNotConnected: no server could be reached; the ZMap is being torn down.
	AddNotConnected
	// AddDisaster: tearing down the half built ZMap failed as well.
	AddDisaster
)

func (r AddResult) String() string {
	switch r {
	case AddOK:
		return "ok"
	case AddNotConnected:
		return "not_connected"
	case AddDisaster:
		return "disaster"
	}
	return "unknown"
}

// ZMap is a top level shell holding one or more views.
type ZMap struct {
	ID      string
	State   ZMapState
	Created time.Time

	views []*view.View
	// reload lists views to load again once their reset completes.
	reload map[string]bool
}

func (z *ZMap) viewByID(id string) *view.View {
	for _, v := range z.views {
		if v.ID() == id {
			return v
		}
	}
	return nil
}

func (z *ZMap) removeView(v *view.View) {
	for i, x := range z.views {
		if x == v {
			z.views = append(z.views[:i], z.views[i+1:]...)
			break
		}
	}
	delete(z.reload, v.ID())
}

// refresh derives the ZMap state from its views. DYING is sticky.
func (z *ZMap) refresh() {
	if z.State == ZMapDying {
		return
	}
	st := ZMapInit
	for _, v := range z.views {
		switch v.State() {
		case view.StateResetting:
			z.State = ZMapResetting
			return
		case view.StateRunning:
			st = ZMapViews
		}
	}
	z.State = st
}

// Snapshot is a read-only projection of the manager state.
type Snapshot struct {
	State State
	ZMaps int
	Views int
	Err   string
}
