package types

// SequenceRequest names a region to load.
type SequenceRequest struct {
	// Sequence name.
	// example: chr1
	Sequence string `json:"sequence" example:"chr1"`
	// 1-based start; 0 with End 0 loads the whole sequence.
	// example: 1
	Start int `json:"start,omitempty" example:"1"`
	// 1-based inclusive end.
	// example: 100000
	End int `json:"end,omitempty" example:"100000"`
}

// AddResponse is returned when a ZMap or view is created.
type AddResponse struct {
	// Outcome of the add (ok, not_connected, disaster).
	// example: ok
	Result string `json:"result" example:"ok"`
	// ID of the ZMap.
	ZMapID string `json:"zmap_id"`
	// ID of the view created inside it.
	ViewID string `json:"view_id,omitempty"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: zmap not found
	Error string `json:"error" example:"zmap not found"`
	// HTTP status code.
	// example: 404
	Code int `json:"code" example:"404"`
}

// ConnectionStatus describes one worker connection of a view.
type ConnectionStatus struct {
	ID string `json:"id"`
	// Server name.
	// example: worm-curated
	Server string `json:"server" example:"worm-curated"`
	// Reply state as seen by the poller.
	// example: WAIT
	Reply string `json:"reply" example:"WAIT"`
	// Request state of the mailbox.
	// example: WAIT
	Request string `json:"request" example:"WAIT"`
	// Number of payloads delivered.
	Loads int `json:"loads"`
	// Queued reports a load waiting for the previous reply to be acknowledged.
	Queued bool `json:"queued,omitempty"`
	// Last error message, if any.
	Error string `json:"error,omitempty"`
}

// FeatureSetStatus is a per feature set count.
type FeatureSetStatus struct {
	Name     string `json:"name"`
	Style    string `json:"style"`
	Features int    `json:"features"`
}

// ViewStatus summarises one view.
type ViewStatus struct {
	ID string `json:"id"`
	// View state (init, running, resetting, dying).
	// example: running
	State string `json:"state" example:"running"`
	// Loaded region, rendered as name:start-end.
	// example: chr1:1-100000
	Sequence    string             `json:"sequence" example:"chr1:1-100000"`
	Connections []ConnectionStatus `json:"connections"`
	Featuresets []FeatureSetStatus `json:"featuresets,omitempty"`
	Features    int                `json:"features"`
	HasDNA      bool               `json:"has_dna,omitempty"`
}

// ZMapStatus summarises one top level ZMap.
type ZMapStatus struct {
	ID string `json:"id"`
	// ZMap state (init, views, resetting, dying).
	// example: views
	State string       `json:"state" example:"views"`
	Views []ViewStatus `json:"views"`
	// Creation time in unix seconds.
	CreatedUnix int64 `json:"created_unix"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	ZMaps []ZMapStatus `json:"zmaps"`
	// Configured data sources.
	Sources []Source `json:"sources"`
	// Overall manager state (starting, ready, shutting_down).
	// example: ready
	State string `json:"state" example:"ready"`
	// Last error observed by the manager (if any).
	LastError string `json:"last_error,omitempty"`
	// Uptime of the server in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	ServerTimeUnix int64 `json:"server_time_unix"`
	// Total payloads merged into views.
	LoadsTotal uint64 `json:"loads_total"`
	// Total server connection failures (create errors, request errors, deaths).
	ConnectionFailuresTotal uint64 `json:"connection_failures_total"`
}
