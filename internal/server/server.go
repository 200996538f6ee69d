package server

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"zmapd/internal/feature"
)

// DefaultTimeout bounds a single backend request when Params.Timeout is unset.
const DefaultTimeout = 120 * time.Second

// Params is the immutable description of one data source.
type Params struct {
	// Name identifies the source in logs; it defaults to the URL.
	Name        string
	URL         string
	Format      string
	Version     string
	Timeout     time.Duration
	Featuresets []string
	// Samtools is the binary used to decode CRAM files.
	Samtools string
}

// Address is the parsed form of Params.URL.
type Address struct {
	Protocol string
	Host     string
	Port     int
	Path     string
	Query    url.Values
	User     string
	Password string
}

// Info describes a connected server.
type Info struct {
	Protocol    string
	Database    string
	Version     string
	Description string
}

// Backend is implemented once per protocol. Methods are only ever called by
// Server, which serialises them and enforces the open/close lifecycle.
type Backend interface {
	Open(ctx context.Context) error
	Info(ctx context.Context) (Info, error)
	Styles(ctx context.Context) (feature.StyleTable, error)
	HaveModes() bool
	FeatureSets(ctx context.Context, requested []string) ([]string, error)
	SetContext(fc *feature.Context) error
	Features(ctx context.Context, styles feature.StyleTable) error
	ContextSequences(ctx context.Context) error
	Sequences(ctx context.Context, names []string) (map[string]string, error)
	Close() error
}

// Factory builds a Backend for a validated address.
type Factory func(p Params, addr Address) (Backend, error)

var (
	factoriesMu sync.RWMutex
	factories   = map[string]Factory{
		"acedb": newAcedb,
		"das":   newDAS,
		"http":  newDAS,
		"https": newDAS,
		"file":  newFile,
		"pipe":  newPipe,
	}
)

// Register installs or replaces the factory for a URL scheme.
func Register(scheme string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[strings.ToLower(scheme)] = f
}

type lifecycle int

const (
	stateCreated lifecycle = iota
	stateOpen
	stateClosed
	stateDestroyed
)

// Server is the uniform adapter handed to a worker connection. It is not safe
// for concurrent use: the owning worker issues one call at a time.
type Server struct {
	params  Params
	addr    Address
	backend Backend

	mu       sync.Mutex
	state    lifecycle
	inFlight bool
	lastErr  string
}

// ParseAddress parses and validates a source URL without touching the network.
func ParseAddress(raw string) (Address, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Address{}, newError(ResponseBadReq, "invalid url %q: %v", raw, err)
	}
	addr := Address{Protocol: strings.ToLower(u.Scheme), Host: u.Hostname(), Path: u.Path, Query: u.Query()}
	if addr.Protocol == "" {
		return Address{}, newError(ResponseBadReq, "url %q has no protocol", raw)
	}
	if u.User != nil {
		addr.User = u.User.Username()
		addr.Password, _ = u.User.Password()
	}
	if p := u.Port(); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 || n > 65535 {
			return Address{}, newError(ResponseBadReq, "url %q: invalid port %q", raw, p)
		}
		addr.Port = n
	}
	return addr, nil
}

// Known reports whether a factory is registered for protocol.
func Known(protocol string) bool {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	_, ok := factories[strings.ToLower(protocol)]
	return ok
}

// Create validates p and binds it to the backend for its protocol. It does not
// connect; Open does.
func Create(p Params) (*Server, error) {
	addr, err := ParseAddress(p.URL)
	if err != nil {
		return nil, err
	}
	factoriesMu.RLock()
	f, ok := factories[addr.Protocol]
	factoriesMu.RUnlock()
	if !ok {
		return nil, newError(ResponseUnsupported, "unknown protocol %q", addr.Protocol)
	}
	if p.Timeout <= 0 {
		p.Timeout = DefaultTimeout
	}
	if p.Name == "" {
		p.Name = p.URL
	}
	b, err := f(p, addr)
	if err != nil {
		return nil, asError(err)
	}
	return &Server{params: p, addr: addr, backend: b}, nil
}

// Params returns the creation parameters.
func (s *Server) Params() Params { return s.params }

// Address returns the parsed source address.
func (s *Server) Address() Address { return s.addr }

// begin checks the lifecycle and marks a call in flight.
func (s *Server) begin(need lifecycle, op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight {
		return s.failLocked(newError(ResponseBadReq, "%s: another request is in progress", op))
	}
	if s.state != need {
		return s.failLocked(newError(ResponseBadReq, "%s: server is %s", op, s.state))
	}
	s.inFlight = true
	return nil
}

func (s *Server) end(err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = false
	if err == nil {
		return nil
	}
	return s.failLocked(asError(err))
}

func (s *Server) failLocked(e *Error) error {
	s.lastErr = e.Error()
	return e
}

// call runs fn with the lifecycle guard held and the request timeout
// applied. A panicking backend is reported as SERVERDIED.
func (s *Server) call(ctx context.Context, need lifecycle, op string, fn func(ctx context.Context) error) (err error) {
	if err := s.begin(need, op); err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			err = newError(ResponseServerDied, "%s: backend panic: %v", op, r)
		}
		err = s.end(err)
	}()
	ctx, cancel := context.WithTimeout(ctx, s.params.Timeout)
	defer cancel()
	return fn(ctx)
}

// Open connects to the server. It may succeed at most once.
func (s *Server) Open(ctx context.Context) error {
	return s.call(ctx, stateCreated, "open", func(ctx context.Context) error {
		if err := s.backend.Open(ctx); err != nil {
			return err
		}
		s.mu.Lock()
		s.state = stateOpen
		s.mu.Unlock()
		return nil
	})
}

// GetInfo returns server metadata.
func (s *Server) GetInfo(ctx context.Context) (info Info, err error) {
	err = s.call(ctx, stateOpen, "get info", func(ctx context.Context) error {
		info, err = s.backend.Info(ctx)
		return err
	})
	return info, err
}

// GetStyles returns the styles the server defines.
func (s *Server) GetStyles(ctx context.Context) (st feature.StyleTable, err error) {
	err = s.call(ctx, stateOpen, "get styles", func(ctx context.Context) error {
		st, err = s.backend.Styles(ctx)
		return err
	})
	return st, err
}

// HaveModes reports whether server styles carry display modes.
func (s *Server) HaveModes() bool {
	s.mu.Lock()
	b := s.backend
	s.mu.Unlock()
	return b != nil && b.HaveModes()
}

// GetFeatureSets resolves which of the requested sets the server can supply.
func (s *Server) GetFeatureSets(ctx context.Context, requested []string) (sets []string, err error) {
	err = s.call(ctx, stateOpen, "get feature sets", func(ctx context.Context) error {
		sets, err = s.backend.FeatureSets(ctx, requested)
		return err
	})
	return sets, err
}

// SetContext gives the backend the context that GetFeatures fills.
func (s *Server) SetContext(fc *feature.Context) error {
	return s.call(context.Background(), stateOpen, "set context", func(context.Context) error {
		if fc == nil || fc.MasterBlock() == nil {
			return newError(ResponseBadReq, "set context: context has no master block")
		}
		return s.backend.SetContext(fc)
	})
}

// GetFeatures loads features into the context given to SetContext.
func (s *Server) GetFeatures(ctx context.Context, styles feature.StyleTable) error {
	return s.call(ctx, stateOpen, "get features", func(ctx context.Context) error {
		return s.backend.Features(ctx, styles)
	})
}

// GetContextSequences loads the DNA of the context block.
func (s *Server) GetContextSequences(ctx context.Context) error {
	return s.call(ctx, stateOpen, "get context sequences", func(ctx context.Context) error {
		return s.backend.ContextSequences(ctx)
	})
}

// GetSequences fetches DNA for the named sequences.
func (s *Server) GetSequences(ctx context.Context, names []string) (out map[string]string, err error) {
	err = s.call(ctx, stateOpen, "get sequences", func(ctx context.Context) error {
		out, err = s.backend.Sequences(ctx, names)
		return err
	})
	return out, err
}

// ErrMsg returns the message of the last failed call.
func (s *Server) ErrMsg() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Close releases transport resources. Closing a server that never opened is
// allowed so that a failed Open can still be destroyed.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return s.fail(newError(ResponseBadReq, "close: request in progress"))
	}
	prev := s.state
	if prev == stateClosed || prev == stateDestroyed {
		s.mu.Unlock()
		return nil
	}
	s.state = stateClosed
	s.mu.Unlock()
	if prev != stateOpen {
		return nil
	}
	if err := s.backend.Close(); err != nil {
		return s.fail(asError(err))
	}
	return nil
}

// Destroy releases the server. It must follow Close.
func (s *Server) Destroy() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight {
		return s.failLocked(newError(ResponseBadReq, "destroy: request in progress"))
	}
	if s.state != stateClosed {
		return s.failLocked(newError(ResponseBadReq, "destroy: server is %s, not closed", s.state))
	}
	s.state = stateDestroyed
	s.backend = nil
	return nil
}

func (s *Server) fail(e *Error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failLocked(e)
}

func (l lifecycle) String() string {
	switch l {
	case stateCreated:
		return "created"
	case stateOpen:
		return "open"
	case stateClosed:
		return "closed"
	case stateDestroyed:
		return "destroyed"
	default:
		return fmt.Sprintf("lifecycle(%d)", int(l))
	}
}
