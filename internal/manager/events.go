package manager

// Event represents a manager lifecycle event.
// Minimal and stable: name, ids and optional fields via key/values.
type Event struct {
	Name   string
	ZMapID string
	ViewID string
	Fields map[string]any
}

// Event names.
const (
	EventZMapCreated      = "zmap_created"
	EventZMapDeleted      = "zmap_deleted"
	EventViewCreated      = "view_created"
	EventViewState        = "view_state"
	EventViewDied         = "view_died"
	EventDataLoaded       = "data_loaded"
	EventConnectionFailed = "connection_failed"
	EventAddFailed        = "add_failed"
	EventShutdown         = "shutdown"
)

// EventPublisher receives events from the manager. Implementations should be
// lightweight and non-blocking; Publish must not panic.
type EventPublisher interface {
	Publish(Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}
