package manager

import "errors"

// ErrNotRunning is returned when an operation is posted while Run is not
// active.
var ErrNotRunning = errors.New("manager: not running")

type zmapNotFoundError struct{ id string }

func (e zmapNotFoundError) Error() string { return "zmap not found: " + e.id }

// ErrZMapNotFound returns an error for an unknown ZMap id.
func ErrZMapNotFound(id string) error { return zmapNotFoundError{id: id} }

// IsZMapNotFound reports whether err indicates a missing ZMap id.
func IsZMapNotFound(err error) bool {
	var e zmapNotFoundError
	return errors.As(err, &e)
}

type viewNotFoundError struct{ id string }

func (e viewNotFoundError) Error() string { return "view not found: " + e.id }

// ErrViewNotFound returns an error for an unknown view id.
func ErrViewNotFound(id string) error { return viewNotFoundError{id: id} }

// IsViewNotFound reports whether err indicates a missing view id.
func IsViewNotFound(err error) bool {
	var e viewNotFoundError
	return errors.As(err, &e)
}

// dyingError signals an operation on a ZMap that is already being destroyed.
// Both the HTTP and remote surfaces answer 409.
type dyingError struct{ id string }

func (e dyingError) Error() string { return "zmap is dying: " + e.id }

// ErrDying returns the error for an operation on a dying ZMap.
func ErrDying(id string) error { return dyingError{id: id} }

// IsDying reports whether err indicates a ZMap in DYING.
func IsDying(err error) bool {
	var e dyingError
	return errors.As(err, &e)
}

// shuttingDownError signals that the manager accepts no new work (503).
type shuttingDownError struct{}

func (shuttingDownError) Error() string { return "manager is shutting down" }

// IsShuttingDown reports whether err was caused by a pending shutdown.
func IsShuttingDown(err error) bool {
	var e shuttingDownError
	return errors.As(err, &e) || errors.Is(err, ErrNotRunning)
}
