// Package manager is the process wide registry of ZMaps. It is structured
// into small files by concern:
//
//   - manager.go: Manager type, the command/poll loop (Run) and getters.
//   - config.go: ManagerConfig and package defaults; NewWithConfig applies defaults.
//   - types.go: ZMap, ZMap and manager states, AddResult, Snapshot.
//   - errors.go: error types and helpers (IsZMapNotFound, IsViewNotFound, ...).
//   - ops.go: Add, AddView, Load, Reset, Kill, KillAll, Shutdown.
//   - observer.go: per view observer feeding ZMap state, counters and events.
//   - sessions.go: persistence of open ZMaps and Restore.
//   - status_report.go: Status/Snapshot reporting.
//   - events.go, eventpub_*.go: lifecycle events and their publishers.
//
// All views are driven by the single goroutine running Run. Public
// operations post closures to it and wait for the result, so views and
// ZMaps are never touched concurrently. Status reads under the registry
// read lock.
package manager
