//go:build !swagger

package httpapi

import (
	"github.com/go-chi/chi/v5"
)

// MountSwagger adds nothing to r in the default build; -tags=swagger serves
// the API docs under /swagger/.
func MountSwagger(chi.Router) {}
