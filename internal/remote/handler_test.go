package remote

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"zmapd/internal/feature"
	"zmapd/internal/manager"
	"zmapd/internal/view"
	"zmapd/pkg/types"
)

type fakeController struct {
	added    manager.Added
	err      error
	calls    []string
	lastSeq  *feature.Sequence
	status   types.StatusResponse
	shutdown int
}

func (f *fakeController) record(format string, args ...any) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeController) Add(ctx context.Context, seq feature.Sequence) (manager.Added, error) {
	f.record("add %s", seq)
	return f.added, f.err
}

func (f *fakeController) AddView(ctx context.Context, zmapID string, seq feature.Sequence) (string, error) {
	f.record("add_view %s %s", zmapID, seq)
	return "v2", f.err
}

func (f *fakeController) Load(ctx context.Context, viewID string, seq *feature.Sequence) error {
	f.record("load %s", viewID)
	f.lastSeq = seq
	return f.err
}

func (f *fakeController) Reset(ctx context.Context, zmapID string) error {
	f.record("reset %s", zmapID)
	return f.err
}

func (f *fakeController) CloseView(ctx context.Context, viewID string) error {
	f.record("close_view %s", viewID)
	return f.err
}

func (f *fakeController) Shutdown(ctx context.Context) error {
	f.shutdown++
	return f.err
}

func (f *fakeController) Status() types.StatusResponse { return f.status }

func roundTrip(t *testing.T, h *Handler, body string) Response {
	t.Helper()
	req, err := DecodeRequest(strings.NewReader(body))
	if err != nil {
		t.Fatalf("decode request: %v", err)
	}
	var buf bytes.Buffer
	if err := EncodeResponse(&buf, h.Handle(context.Background(), req)); err != nil {
		t.Fatalf("encode: %v", err)
	}
	resp, err := DecodeResponse(&buf)
	if err != nil {
		t.Fatalf("decode response: %v\n%s", err, buf.String())
	}
	return resp
}

func TestNewView(t *testing.T) {
	fc := &fakeController{added: manager.Added{Result: manager.AddOK, ZMapID: "z1", ViewID: "v1"}}
	h := NewHandler(fc, zerolog.Nop())
	resp := roundTrip(t, h, `<zmap><request command="new_view"><sequence name="chr1" start="1" end="5000"/></request></zmap>`)
	want := Response{Command: "new_view", Result: CodeOK, ZMapID: "z1", ViewID: "v1"}
	if diff := cmp.Diff(want, resp); diff != "" {
		t.Fatalf("response (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"add chr1:1-5000"}, fc.calls); diff != "" {
		t.Fatalf("calls (-want +got):\n%s", diff)
	}
}

func TestNewView_AddResults(t *testing.T) {
	cases := map[manager.AddResult]int{
		manager.AddNotConnected: CodeUnavailable,
		manager.AddDisaster:     CodeError,
	}
	for res, code := range cases {
		fc := &fakeController{added: manager.Added{Result: res, ZMapID: "z", Reason: "no servers"}}
		resp := NewHandler(fc, zerolog.Nop()).Handle(context.Background(), Request{Command: CmdNewView, Sequence: &Sequence{Name: "chr1"}})
		if resp.Result != code || resp.Reason != "no servers" {
			t.Fatalf("%s: got %+v", res, resp)
		}
	}
}

func TestBadRequests(t *testing.T) {
	h := NewHandler(&fakeController{}, zerolog.Nop())
	reqs := []Request{
		{},
		{Command: "explode"},
		{Command: CmdNewView},
		{Command: CmdNewView, Sequence: &Sequence{Name: "chr1", Start: 10, End: 2}},
		{Command: CmdAddView, Sequence: &Sequence{Name: "chr1"}},
		{Command: CmdLoad},
		{Command: CmdReset},
		{Command: CmdCloseView},
	}
	for _, r := range reqs {
		if resp := h.Handle(context.Background(), r); resp.Result != CodeBadRequest || resp.Reason == "" {
			t.Fatalf("%+v: got %+v", r, resp)
		}
	}
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{manager.ErrViewNotFound("v"), CodeNotFound},
		{manager.ErrZMapNotFound("z"), CodeNotFound},
		{manager.ErrDying("z"), CodeConflict},
		{fmt.Errorf("wrapped: %w", view.ErrInvalidState), CodeConflict},
		{view.ErrNoConnections, CodeUnavailable},
		{manager.ErrNotRunning, CodeUnavailable},
		{context.DeadlineExceeded, CodeUnavailable},
		{fmt.Errorf("boom"), CodeError},
	}
	for _, tc := range cases {
		fc := &fakeController{err: tc.err}
		resp := NewHandler(fc, zerolog.Nop()).Handle(context.Background(), Request{Command: CmdLoad, ViewID: "v"})
		if resp.Result != tc.code {
			t.Fatalf("%v: result=%d want %d", tc.err, resp.Result, tc.code)
		}
	}
}

func TestLoadWithAndWithoutSequence(t *testing.T) {
	fc := &fakeController{}
	h := NewHandler(fc, zerolog.Nop())
	if resp := roundTrip(t, h, `<zmap><request command="load" viewid="v1"/></zmap>`); resp.Result != CodeOK || resp.ViewID != "v1" {
		t.Fatalf("load: %+v", resp)
	}
	if fc.lastSeq != nil {
		t.Fatalf("expected nil sequence")
	}
	roundTrip(t, h, `<zmap><request command="load" viewid="v1"><sequence name="chr2" start="5" end="9"/></request></zmap>`)
	if fc.lastSeq == nil || fc.lastSeq.String() != "chr2:5-9" {
		t.Fatalf("sequence not passed: %+v", fc.lastSeq)
	}
}

func TestListViewsAndShutdown(t *testing.T) {
	fc := &fakeController{status: types.StatusResponse{ZMaps: []types.ZMapStatus{{
		ID:    "z1",
		Views: []types.ViewStatus{{ID: "v1", State: "running", Sequence: "chr1:1-10", Features: 4}},
	}}}}
	h := NewHandler(fc, zerolog.Nop())
	resp := roundTrip(t, h, `<zmap><request command="list_views"/></zmap>`)
	want := []View{{ID: "v1", ZMapID: "z1", State: "running", Sequence: "chr1:1-10", Features: 4}}
	if diff := cmp.Diff(want, resp.Views); diff != "" {
		t.Fatalf("views (-want +got):\n%s", diff)
	}
	if resp := roundTrip(t, h, `<zmap><request command="shutdown"/></zmap>`); resp.Result != CodeOK || fc.shutdown != 1 {
		t.Fatalf("shutdown: %+v calls=%d", resp, fc.shutdown)
	}
	if resp := roundTrip(t, h, `<zmap><request command="ping"/></zmap>`); resp.Reason != "pong" {
		t.Fatalf("ping: %+v", resp)
	}
}

func TestDecodeErrors(t *testing.T) {
	if _, err := DecodeRequest(strings.NewReader("<zmap>")); err == nil {
		t.Fatalf("expected syntax error")
	}
	if _, err := DecodeRequest(strings.NewReader("<zmap/>")); err == nil {
		t.Fatalf("expected missing request error")
	}
	var buf bytes.Buffer
	if err := EncodeRequest(&buf, Request{Command: CmdReset, ZMapID: "z"}); err != nil {
		t.Fatal(err)
	}
	req, err := DecodeRequest(&buf)
	if err != nil || req.Command != CmdReset || req.ZMapID != "z" {
		t.Fatalf("request round trip: %+v %v", req, err)
	}
}
