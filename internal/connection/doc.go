// Package connection runs one server adapter on its own goroutine and exposes
// the results through a mutex guarded mailbox that the view polls without
// blocking.
package connection
