package view

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"zmapd/internal/connection"
	"zmapd/internal/feature"
	"zmapd/internal/server"
	"zmapd/pkg/types"
)

// Config describes a view.
type Config struct {
	ID       string
	Sequence feature.Sequence
	Servers  []server.Params
	Observer Observer
	Logger   zerolog.Logger
	// DNA requests the region sequence from every server.
	DNA bool
	// Featuresets overrides the per server feature set lists.
	Featuresets []string
	// Styles are predefined styles offered to every connection.
	Styles feature.StyleTable
}

type viewConn struct {
	c      *connection.Connection
	name   string
	queued *connection.Request
	loads  int
}

// View is a loaded sequence and the connections feeding it.
type View struct {
	id       string
	cfg      Config
	seq      feature.Sequence
	state    State
	conns    []*viewConn
	windows  []Window
	fc       *feature.Context
	observer Observer
	log      zerolog.Logger
	died     bool
}

// New returns a view in INIT.
func New(cfg Config) *View {
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.Observer == nil {
		cfg.Observer = NopObserver{}
	}
	return &View{
		id:       cfg.ID,
		cfg:      cfg,
		seq:      cfg.Sequence,
		state:    StateInit,
		fc:       feature.NewContext(cfg.Sequence),
		observer: cfg.Observer,
		log:      cfg.Logger.With().Str("component", "view").Str("view", cfg.ID).Logger(),
	}
}

func (v *View) ID() string                 { return v.id }
func (v *View) State() State               { return v.state }
func (v *View) Sequence() feature.Sequence { return v.seq }

// Features returns the merged context. Callers must not modify it.
func (v *View) Features() *feature.Context { return v.fc }

// Connections returns the number of live connections.
func (v *View) Connections() int { return len(v.conns) }

// AddWindow attaches a display window.
func (v *View) AddWindow(w Window) {
	v.windows = append(v.windows, w)
}

func (v *View) setState(s State) {
	if s == v.state {
		return
	}
	from := v.state
	v.state = s
	v.log.Debug().Str("event", "state").Str("from", from.String()).Str("to", s.String()).Msg("view state changed")
	v.observer.StateChanged(v, from, s)
}

func (v *View) request() *connection.Request {
	return &connection.Request{
		Sequence:    v.seq,
		Featuresets: append([]string(nil), v.cfg.Featuresets...),
		Styles:      v.cfg.Styles,
		DNA:         v.cfg.DNA,
	}
}

// Connect creates one connection per configured server. It succeeds when at
// least one connection was created.
func (v *View) Connect() error {
	return v.connect(nil)
}

func (v *View) connect(initial *connection.Request) error {
	if v.state != StateInit {
		return fmt.Errorf("%w: connect while %s", ErrInvalidState, v.state)
	}
	for _, p := range v.cfg.Servers {
		var req *connection.Request
		if initial != nil {
			cp := *initial
			req = &cp
		}
		c, err := connection.New(p, req, connection.Options{Logger: v.log})
		name := p.Name
		if name == "" {
			name = p.URL
		}
		if err != nil {
			v.log.Warn().Str("event", "connect_failed").Str("server", name).Err(err).Msg("could not create server connection")
			v.observer.ConnectionFailed(v, name, err)
			continue
		}
		v.conns = append(v.conns, &viewConn{c: c, name: name})
	}
	if len(v.conns) == 0 {
		v.log.Error().Str("event", "no_connections").Int("servers", len(v.cfg.Servers)).Msg("no server connections")
		v.destroyWindows()
		v.setState(StateDying)
		return ErrNoConnections
	}
	v.log.Info().Str("event", "connected").Int("connections", len(v.conns)).Int("servers", len(v.cfg.Servers)).Msg("view connected")
	v.setState(StateRunning)
	return nil
}

// Load asks every connection for seq, or the current sequence when seq is
// nil. From INIT it connects first.
func (v *View) Load(seq *feature.Sequence) error {
	if v.state == StateResetting || v.state == StateDying {
		return fmt.Errorf("%w: load while %s", ErrInvalidState, v.state)
	}
	if seq != nil {
		if err := seq.Validate(); err != nil {
			return err
		}
		v.seq = *seq
		v.fc.SetSequence(*seq)
	}
	if v.state == StateInit {
		return v.connect(v.request())
	}
	for _, vc := range v.conns {
		req := v.request()
		err := vc.c.Request(req)
		switch {
		case err == nil:
			vc.queued = nil
		case errors.Is(err, connection.ErrRequestOutstanding):
			vc.queued = req
		default:
			v.log.Warn().Str("event", "request_failed").Str("server", vc.name).Err(err).Msg("load not issued")
		}
	}
	return nil
}

// Reset kills every connection and blanks the windows; the view returns to
// INIT once all connections are gone. Reset on INIT does nothing.
func (v *View) Reset() error {
	switch v.state {
	case StateInit:
		return nil
	case StateRunning:
	default:
		return fmt.Errorf("%w: reset while %s", ErrInvalidState, v.state)
	}
	v.setState(StateResetting)
	for _, w := range v.windows {
		w.Reset()
	}
	for _, vc := range v.conns {
		vc.queued = nil
		vc.c.Kill()
	}
	v.fc = feature.NewContext(v.seq)
	return nil
}

// Destroy tears the view down. Windows go immediately; connections are killed
// and reaped by Poll, which fires Observer.Died when the last one is gone.
// Destroy on a DYING view does nothing.
func (v *View) Destroy() {
	if v.state == StateDying {
		return
	}
	v.setState(StateDying)
	v.destroyWindows()
	for _, vc := range v.conns {
		vc.queued = nil
		vc.c.Kill()
	}
}

func (v *View) destroyWindows() {
	for _, w := range v.windows {
		w.Destroy()
	}
	v.windows = nil
}

// Dead reports whether Observer.Died has fired.
func (v *View) Dead() bool { return v.died }

// Poll drains every connection once. It reports whether it should be called
// again.
func (v *View) Poll() bool {
	if v.died {
		return false
	}
	live := v.conns[:0]
	for _, vc := range v.conns {
		if v.pollConn(vc) {
			live = append(live, vc)
		}
	}
	for i := len(live); i < len(v.conns); i++ {
		v.conns[i] = nil
	}
	v.conns = live
	if len(v.conns) > 0 {
		return true
	}
	switch v.state {
	case StateResetting:
		v.setState(StateInit)
		return false
	case StateRunning:
		v.log.Error().Str("event", "all_died").Msg("Cannot show ZMap because server connections have all died")
		v.destroyWindows()
		v.setState(StateDying)
		v.die()
		return false
	case StateDying:
		v.die()
		return false
	}
	return false
}

func (v *View) die() {
	if v.died {
		return
	}
	v.died = true
	v.log.Debug().Str("event", "died").Msg("view died")
	v.observer.Died(v)
}

// pollConn handles one reply and reports whether the connection stays.
func (v *View) pollConn(vc *viewConn) bool {
	r := vc.c.ReplyWithData()
	switch r.State {
	case connection.ReplyGotData:
		if err := vc.c.SetReply(connection.ReplyWait); err != nil {
			v.log.Error().Str("event", "ack_failed").Str("server", vc.name).Err(err).Msg("could not acknowledge reply")
		}
		if v.state == StateRunning && r.Payload != nil {
			v.deliver(vc, r.Payload)
		} else {
			v.log.Debug().Str("event", "drop_payload").Str("server", vc.name).Str("state", v.state.String()).Msg("payload discarded")
		}
		v.flush(vc)
	case connection.ReplyReqError:
		if err := vc.c.SetReply(connection.ReplyWait); err != nil {
			v.log.Error().Str("event", "ack_failed").Str("server", vc.name).Err(err).Msg("could not acknowledge reply")
		}
		v.log.Warn().Str("event", "request_error").Str("server", vc.name).Str("err", r.Err).Msg("server rejected request")
		v.observer.ConnectionFailed(v, vc.name, errors.New(r.Err))
		v.flush(vc)
	case connection.ReplyWait:
		v.flush(vc)
	case connection.ReplyDied, connection.ReplyCancelled:
		if r.State == connection.ReplyDied {
			v.log.Warn().Str("event", "connection_died").Str("server", vc.name).Str("err", r.Err).Msg("server connection died")
			v.observer.ConnectionFailed(v, vc.name, errors.New(r.Err))
		}
		if err := r.Corpse.Destroy(); err != nil {
			v.log.Error().Str("event", "destroy_failed").Str("server", vc.name).Err(err).Msg("connection destroy failed")
		}
		return false
	}
	return true
}

// flush re-issues a load that was rejected while a reply was outstanding.
func (v *View) flush(vc *viewConn) {
	if vc.queued == nil || v.state != StateRunning {
		return
	}
	err := vc.c.Request(vc.queued)
	switch {
	case err == nil:
		vc.queued = nil
	case errors.Is(err, connection.ErrRequestOutstanding):
	default:
		vc.queued = nil
	}
}

func (v *View) deliver(vc *viewConn, p *connection.Payload) {
	stats := v.fc.Merge(p.Context)
	vc.loads++
	v.log.Info().Str("event", "data_loaded").Str("server", vc.name).Int("features", p.Features).Int("new_features", stats.NewFeatures).Strs("new_sets", stats.NewSets).Dur("dur", p.Elapsed).Msg("merged server data")
	for _, w := range v.windows {
		w.DisplayData(v.fc, p.Context)
	}
	v.observer.DataLoaded(v, vc.name, p, stats)
}

// Status reports the view and its connections.
func (v *View) Status() types.ViewStatus {
	st := types.ViewStatus{
		ID:          v.id,
		State:       v.state.String(),
		Sequence:    v.seq.String(),
		Connections: make([]types.ConnectionStatus, 0, len(v.conns)),
		Features:    v.fc.FeatureCount(),
	}
	for _, vc := range v.conns {
		r := vc.c.ReplyWithData()
		st.Connections = append(st.Connections, types.ConnectionStatus{
			ID:      vc.c.ID(),
			Server:  vc.name,
			Reply:   r.State.String(),
			Request: r.Request.String(),
			Loads:   vc.loads,
			Queued:  vc.queued != nil,
			Error:   r.Err,
		})
	}
	for _, s := range v.fc.Summary() {
		st.Featuresets = append(st.Featuresets, types.FeatureSetStatus{Name: s.Name, Style: s.Style, Features: s.Features})
	}
	if b := v.fc.MasterBlock(); b != nil && b.DNA != "" {
		st.HasDNA = true
	}
	return st
}
