// Package app holds the process scoped state shared by the daemon's
// components: the root logger, the configuration directory and the two
// callbacks the view manager reports to.
package app

import (
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"zmapd/internal/common/fsutil"
)

// ErrCallbacksSet is returned when callbacks are installed twice.
var ErrCallbacksSet = errors.New("app: callbacks already set")

// Callbacks are supplied once by whoever embeds the manager.
type Callbacks struct {
	// ZMapDeleted fires after a ZMap and all of its views are gone.
	ZMapDeleted func(id string)
	// Exit fires once when a requested shutdown has completed.
	Exit func()
}

// Context is created once at startup and passed to every component.
type Context struct {
	Logger    zerolog.Logger
	ConfigDir string

	mu       sync.Mutex
	cb       Callbacks
	cbSet    bool
	exitOnce sync.Once
	closed   bool
}

// New returns a context. An empty configDir resolves to $ZMAPD_CONFIG_DIR or
// the user config directory.
func New(logger zerolog.Logger, configDir string) (*Context, error) {
	dir, err := ResolveConfigDir(configDir)
	if err != nil {
		return nil, err
	}
	return &Context{Logger: logger, ConfigDir: dir}, nil
}

// ResolveConfigDir expands dir or falls back to the defaults.
func ResolveConfigDir(dir string) (string, error) {
	if dir == "" {
		dir = os.Getenv("ZMAPD_CONFIG_DIR")
	}
	if dir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(base, "zmapd")
	}
	return fsutil.ExpandHome(dir)
}

// SetCallbacks installs the manager callbacks. It may be called once.
func (c *Context) SetCallbacks(cb Callbacks) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cbSet {
		return ErrCallbacksSet
	}
	c.cb, c.cbSet = cb, true
	return nil
}

// ZMapDeleted forwards to the installed callback.
func (c *Context) ZMapDeleted(id string) {
	c.mu.Lock()
	fn := c.cb.ZMapDeleted
	closed := c.closed
	c.mu.Unlock()
	if fn != nil && !closed {
		fn(id)
	}
}

// Exit forwards to the installed callback at most once.
func (c *Context) Exit() {
	c.exitOnce.Do(func() {
		c.mu.Lock()
		fn := c.cb.Exit
		c.mu.Unlock()
		c.Logger.Info().Str("event", "exit").Msg("shutdown complete")
		if fn != nil {
			fn()
		}
	})
}

// Path joins elem onto the configuration directory.
func (c *Context) Path(elem ...string) string {
	return filepath.Join(append([]string{c.ConfigDir}, elem...)...)
}

// Teardown drops the callbacks; later notifications are ignored.
func (c *Context) Teardown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.cb = Callbacks{}
}
