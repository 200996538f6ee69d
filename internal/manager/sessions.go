package manager

import (
	"context"

	"zmapd/internal/feature"
	"zmapd/internal/store"
)

// SessionStore persists the open ZMaps.
type SessionStore interface {
	Put(store.Session) error
	Delete(id string) error
	List() ([]store.Session, error)
}

func (m *Manager) persist(z *ZMap) {
	if m.store == nil || z.State == ZMapDying {
		return
	}
	sess := store.Session{ID: z.ID, Created: z.Created}
	for _, v := range z.views {
		sess.Sequences = append(sess.Sequences, v.Sequence())
	}
	if err := m.store.Put(sess); err != nil {
		m.log.Warn().Str("event", "session_put_failed").Str("zmap", z.ID).Err(err).Msg("could not record session")
	}
}

// Restore re-creates the ZMaps found in the session store under their old
// ids and returns how many connected.
func (m *Manager) Restore(ctx context.Context) (int, error) {
	if m.store == nil {
		return 0, nil
	}
	sessions, err := m.store.List()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, s := range sessions {
		if len(s.Sequences) == 0 {
			_ = m.store.Delete(s.ID)
			continue
		}
		var out Added
		err := m.do(ctx, func() error {
			var err error
			out, err = m.add(s.ID, s.Sequences[0])
			if err != nil || out.Result != AddOK {
				return err
			}
			z := m.zmaps[s.ID]
			z.Created = s.Created
			for _, seq := range s.Sequences[1:] {
				m.restoreView(z, seq)
			}
			m.persist(z)
			return nil
		})
		if err != nil {
			m.log.Warn().Str("event", "restore_failed").Str("zmap", s.ID).Err(err).Msg("could not restore session")
			continue
		}
		if out.Result == AddOK {
			n++
		}
	}
	m.log.Info().Str("event", "restored").Int("sessions", len(sessions)).Int("zmaps", n).Msg("sessions restored")
	return n, nil
}

func (m *Manager) restoreView(z *ZMap, seq feature.Sequence) {
	if err := seq.Validate(); err != nil {
		m.log.Warn().Str("event", "restore_view_skipped").Str("zmap", z.ID).Err(err).Msg("invalid stored region")
		return
	}
	v := m.newView(z, seq)
	if err := v.Load(nil); err != nil {
		m.log.Warn().Str("event", "restore_view_failed").Str("zmap", z.ID).Str("view", v.ID()).Err(err).Msg("restored view did not connect")
	}
}
