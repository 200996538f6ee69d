package manager

import (
	"context"
	"errors"
	"fmt"

	"zmapd/internal/feature"
	"zmapd/internal/view"
)

// Added describes the outcome of Add.
type Added struct {
	Result AddResult
	ZMapID string
	ViewID string
	// Reason explains a result other than AddOK.
	Reason string
}

// Add creates a ZMap holding one view of seq and connects it to every
// configured source. Partial failures are logged and tolerated; when no
// source connects the ZMap is torn down again and AddNotConnected returned.
func (m *Manager) Add(ctx context.Context, seq feature.Sequence) (Added, error) {
	var out Added
	err := m.do(ctx, func() error {
		var err error
		out, err = m.add("", seq)
		return err
	})
	return out, err
}

func (m *Manager) add(id string, seq feature.Sequence) (Added, error) {
	var out Added
	if err := seq.Validate(); err != nil {
		return out, err
	}
	if m.state != StateReady {
		return out, shuttingDownError{}
	}
	if _, dup := m.zmaps[id]; dup && id != "" {
		return out, fmt.Errorf("manager: zmap %s already exists", id)
	}
	z := m.newZMap(id)
	out.ZMapID = z.ID
	v, err := m.build(z, seq)
	if v != nil {
		out.ViewID = v.ID()
	}
	if err == nil {
		z.refresh()
		m.persist(z)
		m.log.Info().Str("event", "zmap_added").Str("zmap", z.ID).Str("sequence", seq.String()).Msg("zmap added")
		return out, nil
	}
	out.Reason = err.Error()
	m.err = err.Error()
	if rerr := m.rollback(z); rerr != nil {
		m.log.Error().Str("event", "add_disaster").Str("zmap", z.ID).AnErr("cause", err).Err(rerr).Msg("could not destroy half built zmap")
		m.forget(z)
		out.Result = AddDisaster
		out.Reason = rerr.Error()
		m.publish(EventAddFailed, z, v, map[string]any{"result": out.Result.String(), "error": out.Reason})
		return out, nil
	}
	m.log.Warn().Str("event", "add_not_connected").Str("zmap", z.ID).Err(err).Msg("zmap could not connect to any server")
	out.Result = AddNotConnected
	m.publish(EventAddFailed, z, v, map[string]any{"result": out.Result.String(), "error": out.Reason})
	return out, nil
}

// build creates the first view and connects it.
func (m *Manager) build(z *ZMap, seq feature.Sequence) (v *view.View, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("building view: panic: %v", r)
		}
	}()
	v = m.newView(z, seq)
	return v, v.Load(nil)
}

// rollback destroys a half built ZMap.
func (m *Manager) rollback(z *ZMap) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("rollback: panic: %v", r)
		}
	}()
	m.kill(z)
	return nil
}

// forget drops z without waiting for its views. Only used after a failed
// rollback, where the views can no longer be trusted to die cleanly.
func (m *Manager) forget(z *ZMap) {
	for _, v := range z.views {
		m.publish(EventViewDied, z, v, map[string]any{"forced": true})
	}
	z.views = nil
	z.State = ZMapDying
	m.deleteZMap(z)
}

// AddView adds another view of seq to an existing ZMap.
func (m *Manager) AddView(ctx context.Context, zmapID string, seq feature.Sequence) (string, error) {
	var id string
	err := m.do(ctx, func() error {
		if err := seq.Validate(); err != nil {
			return err
		}
		if m.state != StateReady {
			return shuttingDownError{}
		}
		z, err := m.lookup(zmapID)
		if err != nil {
			return err
		}
		if z.State == ZMapDying {
			return dyingError{id: z.ID}
		}
		v := m.newView(z, seq)
		id = v.ID()
		if err := v.Load(nil); err != nil {
			return err
		}
		z.refresh()
		m.persist(z)
		return nil
	})
	return id, err
}

// Load asks a view to fetch seq, or its current region when seq is nil.
func (m *Manager) Load(ctx context.Context, viewID string, seq *feature.Sequence) error {
	return m.do(ctx, func() error {
		z, v, err := m.lookupView(viewID)
		if err != nil {
			return err
		}
		if z.State == ZMapDying {
			return dyingError{id: z.ID}
		}
		if err := v.Load(seq); err != nil {
			return err
		}
		z.refresh()
		m.persist(z)
		return nil
	})
}

// Reset blanks every running view of a ZMap; each is reloaded once its
// connections are gone.
func (m *Manager) Reset(ctx context.Context, zmapID string) error {
	return m.do(ctx, func() error {
		z, err := m.lookup(zmapID)
		if err != nil {
			return err
		}
		if z.State == ZMapDying {
			return dyingError{id: z.ID}
		}
		for _, v := range z.views {
			if v.State() != view.StateRunning {
				continue
			}
			if err := v.Reset(); err != nil {
				return err
			}
			z.reload[v.ID()] = true
		}
		z.refresh()
		return nil
	})
}

// Kill requests destruction of a ZMap. It turns DYING at once and is
// removed after all of its views died.
func (m *Manager) Kill(ctx context.Context, zmapID string) error {
	return m.do(ctx, func() error {
		z, err := m.lookup(zmapID)
		if err != nil {
			return err
		}
		m.kill(z)
		return nil
	})
}

func (m *Manager) kill(z *ZMap) {
	if z.State == ZMapDying {
		return
	}
	z.State = ZMapDying
	m.log.Info().Str("event", "zmap_kill").Str("zmap", z.ID).Int("views", len(z.views)).Msg("zmap destruction requested")
	for _, v := range z.views {
		v.Destroy()
	}
	if len(z.views) == 0 {
		m.deleteZMap(z)
	}
}

// CloseView destroys one view. The ZMap goes with its last view.
func (m *Manager) CloseView(ctx context.Context, viewID string) error {
	return m.do(ctx, func() error {
		_, v, err := m.lookupView(viewID)
		if err != nil {
			return err
		}
		v.Destroy()
		return nil
	})
}

// KillAll kills every ZMap.
func (m *Manager) KillAll(ctx context.Context) error {
	return m.do(ctx, func() error {
		m.killAll()
		return nil
	})
}

func (m *Manager) killAll() {
	for _, id := range append([]string(nil), m.order...) {
		if z := m.zmaps[id]; z != nil {
			m.kill(z)
		}
	}
}

// Shutdown kills every ZMap and invokes the Exit callback once the registry
// is empty. Sessions are kept for the next start.
func (m *Manager) Shutdown(ctx context.Context) error {
	return m.do(ctx, func() error {
		if m.state == StateShuttingDown {
			return nil
		}
		m.state = StateShuttingDown
		m.keepSessions = true
		m.exitOnEmpty = true
		m.log.Info().Str("event", "shutdown").Int("zmaps", len(m.zmaps)).Msg("shutdown requested")
		m.killAll()
		if len(m.zmaps) == 0 && m.exitOnEmpty {
			m.exitOnEmpty = false
			m.publish(EventShutdown, nil, nil, nil)
			m.app.Exit()
		}
		return nil
	})
}

// IsNotConnected reports whether err means a view reached no server.
func IsNotConnected(err error) bool { return errors.Is(err, view.ErrNoConnections) }

// IsInvalidState reports whether err was an operation refused by a view in
// its current state.
func IsInvalidState(err error) bool { return errors.Is(err, view.ErrInvalidState) }
