package connection

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"zmapd/internal/feature"
	"zmapd/internal/server"
)

// Request asks the worker to load one region.
type Request struct {
	Sequence    feature.Sequence
	Featuresets []string
	// Styles are predefined styles merged under the server's own.
	Styles feature.StyleTable
	// DNA also fetches the sequence of the region.
	DNA bool
}

// Payload is the data delivered with a GOTDATA reply. The poller takes
// ownership of it after acknowledging the reply.
type Payload struct {
	Context  *feature.Context
	Styles   feature.StyleTable
	Info     server.Info
	Sets     []string
	Features int
	Elapsed  time.Duration
}

// Reply is a consistent snapshot of the mailbox.
type Reply struct {
	State   ReplyState
	Request RequestState
	Payload *Payload
	Err     string
	// Corpse is set once State is terminal.
	Corpse *Corpse
}

// Options configure New.
type Options struct {
	Logger zerolog.Logger
	// ID defaults to a random uuid.
	ID string
}

// Connection pairs one server with the goroutine that drives it.
type Connection struct {
	id     string
	params server.Params
	srv    *server.Server
	log    zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	cond     *sync.Cond
	reqState RequestState
	reply    ReplyState
	pending  *Request
	payload  *Payload
	errMsg   string
	killed   bool
	corpse   *Corpse

	// worker owned
	haveInfo bool
	info     server.Info
}

// New creates the server and starts the worker, which opens it and then
// services initial, if given. Only a failure to create the server is
// reported here; everything later arrives as a reply.
func New(params server.Params, initial *Request, opts Options) (*Connection, error) {
	srv, err := server.Create(params)
	if err != nil {
		return nil, err
	}
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		id:       id,
		params:   srv.Params(),
		srv:      srv,
		log:      opts.Logger.With().Str("component", "connection").Str("conn", id).Str("server", srv.Params().Name).Logger(),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		reqState: RequestInit,
		reply:    ReplyInit,
		pending:  initial,
	}
	c.cond = sync.NewCond(&c.mu)
	go c.run()
	return c, nil
}

// ID returns the connection id.
func (c *Connection) ID() string { return c.id }

// Params returns the server parameters.
func (c *Connection) Params() server.Params { return c.params }

// Request posts r for the worker. At most one request is outstanding.
func (c *Connection) Request(r *Request) error {
	if r == nil {
		return fmt.Errorf("connection: nil request")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.killed || c.reply.Terminal() {
		return ErrConnectionDead
	}
	if c.pending != nil || c.reqState == RequestGetData || c.reply.needsAck() {
		return ErrRequestOutstanding
	}
	c.pending = r
	c.cond.Signal()
	return nil
}

// Reply returns the current reply state without blocking.
func (c *Connection) Reply() ReplyState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reply
}

// ReplyWithData returns a snapshot of the mailbox without blocking.
func (c *Connection) ReplyWithData() Reply {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Reply{State: c.reply, Request: c.reqState, Payload: c.payload, Err: c.errMsg, Corpse: c.corpse}
}

// SetReply acknowledges a GOTDATA or REQERROR reply. The only accepted
// state is ReplyWait.
func (c *Connection) SetReply(s ReplyState) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s != ReplyWait || !c.reply.needsAck() {
		return fmt.Errorf("%w: %s -> %s", ErrBadTransition, c.reply, s)
	}
	c.reply = ReplyWait
	c.payload = nil
	c.errMsg = ""
	return nil
}

// Kill asks the worker to stop and returns immediately. The poller must keep
// polling until the reply is terminal.
func (c *Connection) Kill() {
	c.mu.Lock()
	already := c.killed
	c.killed = true
	c.pending = nil
	c.cond.Broadcast()
	c.mu.Unlock()
	if !already {
		c.log.Debug().Str("event", "kill").Msg("connection kill requested")
	}
	c.cancel()
}

// Corpse is the join handle of a finished worker. Destroy is the only way to
// release the server.
type Corpse struct {
	c         *Connection
	destroyed atomic.Bool
}

// Destroy waits for the worker goroutine to exit and destroys the server. It
// is safe to call more than once.
func (k *Corpse) Destroy() error {
	<-k.c.done
	if !k.destroyed.CompareAndSwap(false, true) {
		return nil
	}
	k.c.cancel()
	if err := k.c.srv.Destroy(); err != nil {
		return fmt.Errorf("connection %s: destroy server: %w", k.c.id, err)
	}
	return nil
}

// Done is closed when the worker goroutine has exited.
func (c *Connection) Done() <-chan struct{} { return c.done }
