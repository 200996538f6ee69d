package remote

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"zmapd/internal/feature"
	"zmapd/internal/manager"
	"zmapd/pkg/types"
)

// Controller is the part of the view manager a peer can drive.
type Controller interface {
	Add(ctx context.Context, seq feature.Sequence) (manager.Added, error)
	AddView(ctx context.Context, zmapID string, seq feature.Sequence) (string, error)
	Load(ctx context.Context, viewID string, seq *feature.Sequence) error
	Reset(ctx context.Context, zmapID string) error
	CloseView(ctx context.Context, viewID string) error
	Shutdown(ctx context.Context) error
	Status() types.StatusResponse
}

// Handler executes requests against a Controller.
type Handler struct {
	c   Controller
	log zerolog.Logger
}

func NewHandler(c Controller, logger zerolog.Logger) *Handler {
	return &Handler{c: c, log: logger.With().Str("component", "remote").Logger()}
}

// Handle runs req and always returns a response; failures are encoded in
// its result code.
func (h *Handler) Handle(ctx context.Context, req Request) Response {
	resp := h.handle(ctx, req)
	resp.Command = req.Command
	ev := h.log.Info()
	if resp.Result != CodeOK {
		ev = h.log.Warn()
	}
	ev.Str("event", "remote_request").Str("command", req.Command).Int("result", resp.Result).Str("reason", resp.Reason).Msg("remote command")
	return resp
}

func (h *Handler) handle(ctx context.Context, req Request) Response {
	switch req.Command {
	case CmdPing:
		return Response{Result: CodeOK, Reason: "pong"}
	case CmdNewView:
		seq, resp, ok := needSequence(req)
		if !ok {
			return resp
		}
		out, err := h.c.Add(ctx, seq)
		if err != nil {
			return failure(err)
		}
		resp = Response{ViewID: out.ViewID, ZMapID: out.ZMapID, Reason: out.Reason}
		switch out.Result {
		case manager.AddOK:
			resp.Result = CodeOK
		case manager.AddNotConnected:
			resp.Result = CodeUnavailable
		default:
			resp.Result = CodeError
		}
		return resp
	case CmdAddView:
		if req.ZMapID == "" {
			return badRequest("add_view needs zmapid")
		}
		seq, resp, ok := needSequence(req)
		if !ok {
			return resp
		}
		id, err := h.c.AddView(ctx, req.ZMapID, seq)
		if err != nil {
			resp := failure(err)
			resp.ViewID, resp.ZMapID = id, req.ZMapID
			return resp
		}
		return Response{Result: CodeOK, ViewID: id, ZMapID: req.ZMapID}
	case CmdLoad:
		if req.ViewID == "" {
			return badRequest("load needs viewid")
		}
		var seq *feature.Sequence
		if req.Sequence != nil {
			s, err := req.Sequence.region()
			if err != nil {
				return badRequest(err.Error())
			}
			seq = &s
		}
		if err := h.c.Load(ctx, req.ViewID, seq); err != nil {
			return failure(err)
		}
		return Response{Result: CodeOK, ViewID: req.ViewID}
	case CmdReset:
		if req.ZMapID == "" {
			return badRequest("reset needs zmapid")
		}
		if err := h.c.Reset(ctx, req.ZMapID); err != nil {
			return failure(err)
		}
		return Response{Result: CodeOK, ZMapID: req.ZMapID}
	case CmdCloseView:
		if req.ViewID == "" {
			return badRequest("close_view needs viewid")
		}
		if err := h.c.CloseView(ctx, req.ViewID); err != nil {
			return failure(err)
		}
		return Response{Result: CodeOK, ViewID: req.ViewID}
	case CmdListViews:
		resp := Response{Result: CodeOK}
		for _, z := range h.c.Status().ZMaps {
			for _, v := range z.Views {
				resp.Views = append(resp.Views, View{ID: v.ID, ZMapID: z.ID, State: v.State, Sequence: v.Sequence, Features: v.Features})
			}
		}
		return resp
	case CmdShutdown:
		if err := h.c.Shutdown(ctx); err != nil {
			return failure(err)
		}
		return Response{Result: CodeOK}
	case "":
		return badRequest("missing command")
	}
	return badRequest("unknown command " + req.Command)
}

func needSequence(req Request) (feature.Sequence, Response, bool) {
	if req.Sequence == nil {
		return feature.Sequence{}, badRequest(req.Command + " needs a sequence"), false
	}
	seq, err := req.Sequence.region()
	if err != nil {
		return seq, badRequest(err.Error()), false
	}
	return seq, Response{}, true
}

func badRequest(reason string) Response {
	return Response{Result: CodeBadRequest, Reason: reason}
}

// failure maps manager errors onto result codes.
func failure(err error) Response {
	code := CodeError
	switch {
	case manager.IsZMapNotFound(err), manager.IsViewNotFound(err):
		code = CodeNotFound
	case manager.IsDying(err), manager.IsInvalidState(err):
		code = CodeConflict
	case manager.IsNotConnected(err), manager.IsShuttingDown(err):
		code = CodeUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		code = CodeUnavailable
	case errors.Is(err, feature.ErrInvalidSequence):
		code = CodeBadRequest
	}
	return Response{Result: code, Reason: err.Error()}
}
