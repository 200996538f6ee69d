package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"zmapd/internal/feature"
	"zmapd/internal/manager"
	"zmapd/internal/remote"
	"zmapd/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	remote.Controller
	Kill(ctx context.Context, zmapID string) error
	Ready() bool
}

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	// Compression for JSON endpoints
	r.Use(middleware.Compress(5))
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
		}))
	}

	rc := remote.NewHandler(svc, zlog)
	h := &handlers{svc: svc, remote: rc}

	r.Post("/remote", h.remoteCommand)
	r.Get("/status", h.status)
	r.Route("/zmaps", func(r chi.Router) {
		r.Get("/", h.listZMaps)
		r.Post("/", h.addZMap)
		r.Post("/{id}/views", h.addView)
		r.Post("/{id}/reset", h.reset)
		r.Delete("/{id}", h.kill)
	})
	r.Route("/views", func(r chi.Router) {
		r.Post("/{id}/load", h.load)
		r.Delete("/{id}", h.closeView)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("not ready"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)
	return r
}

type handlers struct {
	svc    Service
	remote *remote.Handler
}

// remoteCommand godoc
// @Summary      Run a remote control command
// @Description  Accepts one XML request envelope and answers with a response envelope.
// @Accept       xml
// @Produce      xml
// @Success      200  {string}  string  "response envelope"
// @Failure      400  {string}  string  "malformed envelope"
// @Router       /remote [post]
func (h *handlers) remoteCommand(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	w.Header().Set("Content-Type", "application/xml")
	req, err := remote.DecodeRequest(r.Body)
	if err != nil {
		countRemote("", remote.CodeBadRequest)
		w.WriteHeader(http.StatusBadRequest)
		_ = remote.EncodeResponse(w, remote.Response{Result: remote.CodeBadRequest, Reason: err.Error()})
		logCommand(r, "remote", http.StatusBadRequest, start, err)
		return
	}
	ctx, cancel := commandContext(r.Context())
	defer cancel()
	resp := h.remote.Handle(ctx, req)
	countRemote(req.Command, resp.Result)
	_ = remote.EncodeResponse(w, resp)
	logCommand(r, "remote_"+req.Command, http.StatusOK, start, nil)
}

// status godoc
// @Summary  Manager, ZMap and view status
// @Produce  json
// @Success  200  {object}  types.StatusResponse
// @Router   /status [get]
func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Status())
}

func (h *handlers) listZMaps(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"zmaps": h.svc.Status().ZMaps})
}

// decodeSequence reads an optional SequenceRequest body. It returns nil when
// the body is empty and allowEmpty is set.
func decodeSequence(w http.ResponseWriter, r *http.Request, allowEmpty bool) (*feature.Sequence, error) {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		return nil, errors.New("Content-Type must be application/json")
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req types.SequenceRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	if errors.Is(err, io.EOF) && allowEmpty {
		return nil, nil
	}
	if err != nil {
		return nil, errors.New("invalid JSON body")
	}
	seq := feature.Sequence{Name: req.Sequence, Start: req.Start, End: req.End}
	if err := seq.Validate(); err != nil {
		return nil, err
	}
	return &seq, nil
}

// addZMap godoc
// @Summary  Open a ZMap with one view of a region
// @Accept   json
// @Produce  json
// @Param    body  body      types.SequenceRequest  true  "region"
// @Success  201   {object}  types.AddResponse
// @Failure  503   {object}  types.AddResponse
// @Router   /zmaps [post]
func (h *handlers) addZMap(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	seq, err := decodeSequence(w, r, false)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := commandContext(r.Context())
	defer cancel()
	out, err := h.svc.Add(ctx, *seq)
	if err != nil {
		status := statusFor(err)
		writeJSONError(w, status, err.Error())
		logCommand(r, "add", status, start, err)
		return
	}
	status := http.StatusCreated
	switch out.Result {
	case manager.AddNotConnected:
		status = http.StatusServiceUnavailable
	case manager.AddDisaster:
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, types.AddResponse{Result: out.Result.String(), ZMapID: out.ZMapID, ViewID: out.ViewID})
	logCommand(r, "add", status, start, nil)
}

func (h *handlers) addView(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	seq, err := decodeSequence(w, r, false)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	zid := chi.URLParam(r, "id")
	ctx, cancel := commandContext(r.Context())
	defer cancel()
	id, err := h.svc.AddView(ctx, zid, *seq)
	if err != nil {
		status := statusFor(err)
		writeJSONError(w, status, err.Error())
		logCommand(r, "add_view", status, start, err)
		return
	}
	writeJSON(w, http.StatusCreated, types.AddResponse{Result: manager.AddOK.String(), ZMapID: zid, ViewID: id})
	logCommand(r, "add_view", http.StatusCreated, start, nil)
}

func (h *handlers) load(w http.ResponseWriter, r *http.Request) {
	seq, err := decodeSequence(w, r, true)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	id := chi.URLParam(r, "id")
	h.accepted(w, r, "load", func(ctx context.Context) error { return h.svc.Load(ctx, id, seq) })
}

func (h *handlers) reset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.accepted(w, r, "reset", func(ctx context.Context) error { return h.svc.Reset(ctx, id) })
}

func (h *handlers) kill(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.accepted(w, r, "kill", func(ctx context.Context) error { return h.svc.Kill(ctx, id) })
}

func (h *handlers) closeView(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.accepted(w, r, "close_view", func(ctx context.Context) error { return h.svc.CloseView(ctx, id) })
}

// accepted runs an asynchronous command and answers 202 once the manager
// took it.
func (h *handlers) accepted(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context) error) {
	start := time.Now()
	ctx, cancel := commandContext(r.Context())
	defer cancel()
	if err := fn(ctx); err != nil {
		status := statusFor(err)
		writeJSONError(w, status, err.Error())
		logCommand(r, op, status, start, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
	logCommand(r, op, http.StatusAccepted, start, nil)
}
