package httpapi

import (
	"context"
)

// serverBaseCtx ends when the daemon shuts down; handlers derived from it
// give up on pending manager commands at that point.
var serverBaseCtx = context.Background()

// SetBaseContext installs the daemon context. nil restores Background.
func SetBaseContext(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	serverBaseCtx = ctx
}

// commandContext bounds one manager command by the request, the daemon
// context and commandTimeout, whichever ends first.
func commandContext(r context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(r, commandTimeout)
	stop := context.AfterFunc(serverBaseCtx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
