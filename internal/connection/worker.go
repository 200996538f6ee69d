package connection

import (
	"fmt"
	"runtime/debug"
	"time"

	"zmapd/internal/feature"
	"zmapd/internal/server"
)

// outcome classifies a serviced request.
type outcome int

const (
	outcomeData outcome = iota
	outcomeReqError
	outcomeDied
)

func classify(err error) outcome {
	switch server.ResponseOf(err) {
	case server.ResponseOK, server.ResponseNoContent:
		return outcomeData
	case server.ResponseBadReq:
		return outcomeReqError
	default:
		return outcomeDied
	}
}

func (c *Connection) run() {
	defer close(c.done)
	defer func() {
		if r := recover(); r != nil {
			c.log.Error().Str("event", "worker_panic").Interface("panic", r).Bytes("stack", debug.Stack()).Msg("worker panicked")
			c.finish(ReplyDied, fmt.Sprintf("worker panic: %v", r))
		}
	}()

	start := time.Now()
	if err := c.srv.Open(c.ctx); err != nil {
		c.log.Warn().Str("event", "open_failed").Err(err).Msg("server open failed")
		c.finish(c.failState(), err.Error())
		return
	}
	c.log.Info().Str("event", "open").Dur("dur", time.Since(start)).Msg("server open")

	c.mu.Lock()
	if c.reply == ReplyInit {
		c.reply = ReplyWait
	}
	c.reqState = RequestWait
	c.mu.Unlock()

	for {
		c.mu.Lock()
		for !c.killed && c.pending == nil {
			c.cond.Wait()
		}
		if c.killed {
			c.mu.Unlock()
			c.finish(ReplyCancelled, "")
			return
		}
		req := c.pending
		c.pending = nil
		c.reqState = RequestGetData
		c.mu.Unlock()

		start := time.Now()
		payload, err := c.service(req)
		switch classify(err) {
		case outcomeData:
			if payload == nil {
				payload = &Payload{Context: feature.NewContext(req.Sequence)}
			}
			payload.Elapsed = time.Since(start)
			c.log.Debug().Str("event", "got_data").Str("seq", req.Sequence.String()).Int("features", payload.Features).Dur("dur", payload.Elapsed).Msg("request serviced")
			c.mu.Lock()
			c.reqState = RequestWait
			c.reply = ReplyGotData
			c.payload = payload
			c.mu.Unlock()
		case outcomeReqError:
			c.log.Warn().Str("event", "request_error").Err(err).Msg("request rejected")
			c.mu.Lock()
			c.reqState = RequestWait
			c.reply = ReplyReqError
			c.errMsg = err.Error()
			c.mu.Unlock()
		default:
			c.mu.Lock()
			if server.ResponseOf(err) == server.ResponseTimedOut {
				c.reqState = RequestTimedOut
			}
			c.mu.Unlock()
			c.log.Warn().Str("event", "request_failed").Err(err).Msg("request failed, worker exiting")
			c.finish(c.failState(), err.Error())
			return
		}
	}
}

// failState is CANCELLED when the failure was caused by Kill.
func (c *Connection) failState() ReplyState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.killed {
		return ReplyCancelled
	}
	return ReplyDied
}

// finish closes the server and publishes the terminal reply.
func (c *Connection) finish(state ReplyState, msg string) {
	if err := c.srv.Close(); err != nil {
		c.log.Warn().Str("event", "close_failed").Err(err).Msg("server close failed")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reply.Terminal() {
		return
	}
	c.reply = state
	c.payload = nil
	c.pending = nil
	c.errMsg = msg
	c.corpse = &Corpse{c: c}
	c.log.Debug().Str("event", "terminal").Str("reply", state.String()).Msg("worker finished")
}

// service runs one load request against the server. Panics from backends are
// turned into SERVERDIED errors.
func (c *Connection) service(req *Request) (p *Payload, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error().Str("event", "backend_panic").Interface("panic", r).Bytes("stack", debug.Stack()).Msg("backend panicked")
			p, err = nil, &server.Error{Code: server.ResponseServerDied, Msg: fmt.Sprintf("backend panic: %v", r)}
		}
	}()
	ctx := c.ctx
	fc := feature.NewContext(req.Sequence)
	p = &Payload{Context: fc, Styles: feature.StyleTable{}}
	if !c.haveInfo {
		info, err := c.srv.GetInfo(ctx)
		switch {
		case err == nil:
			c.info, c.haveInfo = info, true
		case server.IsNoContent(err):
			return p, nil
		default:
			return nil, err
		}
	}
	p.Info = c.info

	styles := feature.StyleTable{}
	srvStyles, err := c.srv.GetStyles(ctx)
	switch {
	case err == nil:
		styles.Merge(srvStyles.Clone())
	case server.IsUnsupported(err), server.IsNoContent(err):
	default:
		return nil, err
	}
	styles.Merge(req.Styles.Clone())
	p.Styles = styles
	fc.Styles = styles

	requested := req.Featuresets
	if len(requested) == 0 {
		requested = c.params.Featuresets
	}
	sets, err := c.srv.GetFeatureSets(ctx, requested)
	if server.IsNoContent(err) {
		return p, nil
	}
	if err != nil {
		return nil, err
	}
	p.Sets = sets
	fc.Requested = sets

	if err := c.srv.SetContext(fc); err != nil {
		if server.IsNoContent(err) {
			return p, nil
		}
		return nil, err
	}
	if err := c.srv.GetFeatures(ctx, styles); err != nil && !server.IsNoContent(err) {
		return nil, err
	}
	if req.DNA {
		err := c.srv.GetContextSequences(ctx)
		if err != nil && !server.IsUnsupported(err) && !server.IsNoContent(err) {
			return nil, err
		}
	}
	for _, s := range fc.MasterBlock().Sets {
		styles.Ensure(s.Name)
	}
	if !c.srv.HaveModes() {
		styles.InferModes()
	}
	p.Features = fc.FeatureCount()
	return p, nil
}
