package httpapi

import "time"

const defaultMaxBodyBytes int64 = 1 << 20

const defaultCommandTimeout = 30 * time.Second

var (
	// maxBodyBytes caps JSON and XML request bodies.
	maxBodyBytes = defaultMaxBodyBytes
	// commandTimeout bounds how long a handler waits for the manager loop.
	commandTimeout = defaultCommandTimeout
)

// SetMaxBodyBytes sets the request body cap; n <= 0 restores 1 MiB.
func SetMaxBodyBytes(n int64) {
	if n <= 0 {
		n = defaultMaxBodyBytes
	}
	maxBodyBytes = n
}

// SetCommandTimeout sets the per request manager timeout; d <= 0 restores 30s.
func SetCommandTimeout(d time.Duration) {
	if d <= 0 {
		d = defaultCommandTimeout
	}
	commandTimeout = d
}

// CORS is off unless SetCORSOptions enables it before NewMux runs.
var (
	corsEnabled        bool
	corsAllowedOrigins []string
	corsAllowedMethods []string
	corsAllowedHeaders []string
)

func SetCORSOptions(enabled bool, origins, methods, headers []string) {
	corsEnabled = enabled
	corsAllowedOrigins = append([]string(nil), origins...)
	corsAllowedMethods = append([]string(nil), methods...)
	corsAllowedHeaders = append([]string(nil), headers...)
}
