package view

import (
	"errors"

	"zmapd/internal/connection"
	"zmapd/internal/feature"
)

// State is the lifecycle state of a View.
type State int

const (
	StateInit State = iota
	StateRunning
	StateResetting
	StateDying
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateRunning:
		return "running"
	case StateResetting:
		return "resetting"
	case StateDying:
		return "dying"
	default:
		return "unknown"
	}
}

var (
	// ErrNoConnections is returned by Connect when no server connection could
	// be created. The view is then DYING.
	ErrNoConnections = errors.New("view: no server connections could be created")
	// ErrInvalidState is returned for operations the current state forbids.
	ErrInvalidState = errors.New("view: operation not allowed in current state")
)

// Window displays the data of a view.
type Window interface {
	// DisplayData is called with the merged view context and the payload
	// that was just merged into it.
	DisplayData(view, payload *feature.Context)
	// Reset blanks the window.
	Reset()
	Destroy()
}

// Observer receives lifecycle notifications. Calls happen on the goroutine
// driving the view.
type Observer interface {
	StateChanged(v *View, from, to State)
	DataLoaded(v *View, server string, payload *connection.Payload, stats feature.MergeStats)
	ConnectionFailed(v *View, server string, err error)
	// Died fires once, after every connection reached a terminal reply.
	Died(v *View)
}

// NopObserver ignores all notifications.
type NopObserver struct{}

func (NopObserver) StateChanged(*View, State, State)                                  {}
func (NopObserver) DataLoaded(*View, string, *connection.Payload, feature.MergeStats) {}
func (NopObserver) ConnectionFailed(*View, string, error)                             {}
func (NopObserver) Died(*View)                                                        {}
