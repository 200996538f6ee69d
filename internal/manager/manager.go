package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"zmapd/internal/app"
	"zmapd/internal/feature"
	"zmapd/internal/server"
	"zmapd/internal/view"
	"zmapd/pkg/types"
)

type Manager struct {
	mu      sync.RWMutex
	state   State
	err     string
	zmaps   map[string]*ZMap
	order   []string
	sources []types.Source

	app      *app.Context
	log      zerolog.Logger
	windows  WindowFactory
	store    SessionStore
	pub      EventPublisher
	dna      bool
	samtools string

	pollInterval time.Duration
	grace        time.Duration
	startTime    time.Time

	// exitOnEmpty is set by Shutdown; keepSessions stops deletions from
	// reaching the session store while the process goes down.
	exitOnEmpty  bool
	keepSessions bool

	loadsTotal    uint64
	failuresTotal uint64

	cmds    chan func()
	running atomic.Bool
	stopped chan struct{}
}

// New builds a manager for sources with package defaults.
func New(a *app.Context, sources []types.Source) *Manager {
	return NewWithConfig(ManagerConfig{App: a, Sources: sources})
}

// SetEventPublisher replaces the event sink. Call before Run.
func (m *Manager) SetEventPublisher(p EventPublisher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p == nil {
		p = noopPublisher{}
	}
	m.pub = p
}

func (m *Manager) publish(name string, z *ZMap, v *view.View, fields map[string]any) {
	e := Event{Name: name, Fields: fields}
	if z != nil {
		e.ZMapID = z.ID
	}
	if v != nil {
		e.ViewID = v.ID()
	}
	m.pub.Publish(e)
}

// Ready reports whether the loop runs and accepts new ZMaps.
func (m *Manager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == StateReady
}

// Sources returns a copy of the configured sources.
func (m *Manager) Sources() []types.Source {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.Source, len(m.sources))
	copy(out, m.sources)
	return out
}

// SetServers replaces the source list used by views created from now on.
func (m *Manager) SetServers(sources []types.Source) {
	m.mu.Lock()
	m.sources = append([]types.Source(nil), sources...)
	m.mu.Unlock()
	m.log.Info().Str("event", "sources_updated").Int("sources", len(sources)).Msg("source list replaced")
}

func (m *Manager) params() []server.Params {
	out := make([]server.Params, 0, len(m.sources))
	for _, s := range m.sources {
		out = append(out, paramsOf(s, m.samtools))
	}
	return out
}

func paramsOf(s types.Source, samtools string) server.Params {
	return server.Params{
		Name:        s.Name,
		URL:         s.URL,
		Format:      s.Format,
		Version:     s.Version,
		Timeout:     time.Duration(s.TimeoutSeconds) * time.Second,
		Featuresets: append([]string(nil), s.Featuresets...),
		Samtools:    samtools,
	}
}

// Run drives every view until ctx is done, then kills all ZMaps and waits
// up to the teardown grace for their views to die. It is the only goroutine
// that touches views.
func (m *Manager) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return errors.New("manager: already running")
	}
	defer close(m.stopped)
	m.mu.Lock()
	if m.state == StateStarting {
		m.state = StateReady
	}
	m.mu.Unlock()
	m.log.Info().Str("event", "run_start").Dur("poll", m.pollInterval).Msg("manager loop started")
	t := time.NewTicker(m.pollInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			m.teardown()
			return nil
		case fn := <-m.cmds:
			m.mu.Lock()
			fn()
			m.mu.Unlock()
		case <-t.C:
			m.mu.Lock()
			m.pollAll()
			m.mu.Unlock()
		}
	}
}

// do runs fn on the loop goroutine with the registry locked.
func (m *Manager) do(ctx context.Context, fn func() error) error {
	if !m.running.Load() {
		return ErrNotRunning
	}
	done := make(chan error, 1)
	cmd := func() {
		defer func() {
			if r := recover(); r != nil {
				m.log.Error().Str("event", "panic").Interface("panic", r).Msg("manager command panicked")
				done <- fmt.Errorf("manager: panic: %v", r)
			}
		}()
		done <- fn()
	}
	select {
	case m.cmds <- cmd:
	case <-m.stopped:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) pollAll() {
	for _, id := range append([]string(nil), m.order...) {
		z := m.zmaps[id]
		if z == nil {
			continue
		}
		for _, v := range append([]*view.View(nil), z.views...) {
			v.Poll()
			if z.reload[v.ID()] && v.State() == view.StateInit {
				delete(z.reload, v.ID())
				if err := v.Load(nil); err != nil {
					m.log.Warn().Str("event", "reload_failed").Str("zmap", z.ID).Str("view", v.ID()).Err(err).Msg("reload after reset failed")
				}
			}
		}
		z.refresh()
	}
}

func (m *Manager) teardown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = StateShuttingDown
	m.keepSessions = true
	for _, id := range append([]string(nil), m.order...) {
		if z := m.zmaps[id]; z != nil {
			m.kill(z)
		}
	}
	deadline := time.Now().Add(m.grace)
	for len(m.zmaps) > 0 {
		m.pollAll()
		if len(m.zmaps) == 0 || time.Now().After(deadline) {
			break
		}
		m.mu.Unlock()
		time.Sleep(m.pollInterval)
		m.mu.Lock()
	}
	if n := len(m.zmaps); n > 0 {
		m.log.Warn().Str("event", "teardown_incomplete").Int("zmaps", n).Msg("views still waiting on servers at exit")
		return
	}
	m.log.Info().Str("event", "teardown_done").Msg("all zmaps destroyed")
}

func (m *Manager) newZMap(id string) *ZMap {
	if id == "" {
		id = uuid.NewString()
	}
	z := &ZMap{ID: id, State: ZMapInit, Created: time.Now(), reload: make(map[string]bool)}
	m.zmaps[id] = z
	m.order = append(m.order, id)
	m.publish(EventZMapCreated, z, nil, nil)
	return z
}

func (m *Manager) newView(z *ZMap, seq feature.Sequence) *view.View {
	v := view.New(view.Config{
		Sequence: seq,
		Servers:  m.params(),
		Observer: &viewObserver{m: m, z: z},
		Logger:   m.log.With().Str("zmap", z.ID).Logger(),
		DNA:      m.dna,
	})
	z.views = append(z.views, v)
	if m.windows != nil {
		if w := m.windows(z.ID, v); w != nil {
			v.AddWindow(w)
		}
	}
	m.publish(EventViewCreated, z, v, map[string]any{"sequence": seq.String()})
	return v
}

// deleteZMap drops z once its last view has died.
func (m *Manager) deleteZMap(z *ZMap) {
	if _, ok := m.zmaps[z.ID]; !ok {
		return
	}
	delete(m.zmaps, z.ID)
	for i, id := range m.order {
		if id == z.ID {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	if m.store != nil && !m.keepSessions {
		if err := m.store.Delete(z.ID); err != nil {
			m.log.Warn().Str("event", "session_delete_failed").Str("zmap", z.ID).Err(err).Msg("could not delete session")
		}
	}
	m.log.Info().Str("event", "zmap_deleted").Str("zmap", z.ID).Msg("zmap destroyed")
	m.publish(EventZMapDeleted, z, nil, nil)
	m.app.ZMapDeleted(z.ID)
	if m.exitOnEmpty && len(m.zmaps) == 0 {
		m.exitOnEmpty = false
		m.publish(EventShutdown, nil, nil, nil)
		m.app.Exit()
	}
}

func (m *Manager) lookup(id string) (*ZMap, error) {
	z, ok := m.zmaps[id]
	if !ok {
		return nil, ErrZMapNotFound(id)
	}
	return z, nil
}

func (m *Manager) lookupView(id string) (*ZMap, *view.View, error) {
	for _, zid := range m.order {
		z := m.zmaps[zid]
		if v := z.viewByID(id); v != nil {
			return z, v, nil
		}
	}
	return nil, nil, ErrViewNotFound(id)
}
