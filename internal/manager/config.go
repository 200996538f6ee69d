package manager

import (
	"time"

	"github.com/rs/zerolog"

	"zmapd/internal/app"
	"zmapd/internal/view"
	"zmapd/pkg/types"
)

// Defaults applied when corresponding ManagerConfig fields are unset.
const (
	defaultPollInterval  = 50 * time.Millisecond
	defaultTeardownGrace = 10 * time.Second
)

// WindowFactory creates the display window attached to a new view.
type WindowFactory func(zmapID string, v *view.View) view.Window

// ManagerConfig encapsulates all tunables for Manager construction.
type ManagerConfig struct {
	App     *app.Context
	Sources []types.Source
	// PollInterval is the idle tick driving every view's poll step.
	PollInterval time.Duration
	// TeardownGrace bounds how long Run waits for views to die on exit.
	TeardownGrace time.Duration
	WindowFactory WindowFactory
	Store         SessionStore
	Publisher     EventPublisher
	// DNA asks every source for the region sequence as well.
	DNA bool
	// Samtools is passed to file sources for CRAM decoding.
	Samtools string
}

// NewWithConfig constructs a Manager from ManagerConfig.
func NewWithConfig(cfg ManagerConfig) *Manager {
	if cfg.App == nil {
		cfg.App = &app.Context{Logger: zerolog.Nop()}
	}
	m := &Manager{
		state:     StateStarting,
		app:       cfg.App,
		log:       cfg.App.Logger.With().Str("component", "manager").Logger(),
		zmaps:     make(map[string]*ZMap),
		sources:   append([]types.Source(nil), cfg.Sources...),
		windows:   cfg.WindowFactory,
		store:     cfg.Store,
		pub:       cfg.Publisher,
		dna:       cfg.DNA,
		samtools:  cfg.Samtools,
		cmds:      make(chan func()),
		stopped:   make(chan struct{}),
		startTime: time.Now(),
	}
	// Apply defaults if unset
	if cfg.PollInterval <= 0 {
		m.pollInterval = defaultPollInterval
	} else {
		m.pollInterval = cfg.PollInterval
	}
	if cfg.TeardownGrace <= 0 {
		m.grace = defaultTeardownGrace
	} else {
		m.grace = cfg.TeardownGrace
	}
	if m.pub == nil {
		m.pub = noopPublisher{}
	}
	return m
}
