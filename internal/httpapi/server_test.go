package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"zmapd/internal/feature"
	"zmapd/internal/manager"
	"zmapd/internal/remote"
	"zmapd/pkg/types"
)

type mockService struct {
	status  types.StatusResponse
	ready   bool
	added   manager.Added
	err     error
	killed  []string
	loaded  []*feature.Sequence
	lastSeq feature.Sequence
}

func (m *mockService) Add(ctx context.Context, seq feature.Sequence) (manager.Added, error) {
	m.lastSeq = seq
	return m.added, m.err
}
func (m *mockService) AddView(ctx context.Context, zmapID string, seq feature.Sequence) (string, error) {
	m.lastSeq = seq
	return "v2", m.err
}
func (m *mockService) Load(ctx context.Context, viewID string, seq *feature.Sequence) error {
	m.loaded = append(m.loaded, seq)
	return m.err
}
func (m *mockService) Reset(ctx context.Context, zmapID string) error     { return m.err }
func (m *mockService) CloseView(ctx context.Context, viewID string) error { return m.err }
func (m *mockService) Shutdown(ctx context.Context) error                 { return m.err }
func (m *mockService) Kill(ctx context.Context, zmapID string) error {
	m.killed = append(m.killed, zmapID)
	return m.err
}
func (m *mockService) Status() types.StatusResponse { return m.status }
func (m *mockService) Ready() bool                  { return m.ready }

type mockHTTPError struct {
	msg  string
	code int
}

func (e mockHTTPError) Error() string   { return e.msg }
func (e mockHTTPError) StatusCode() int { return e.code }

func do(t *testing.T, svc Service, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Buffer
	if body != "" {
		rd = bytes.NewBufferString(body)
	} else {
		rd = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, rd)
	if strings.HasPrefix(body, "{") {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	NewMux(svc).ServeHTTP(w, req)
	return w
}

func TestStatusHandler(t *testing.T) {
	svc := &mockService{status: types.StatusResponse{State: "ready", LoadsTotal: 3}}
	w := do(t, svc, http.MethodGet, "/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Fatalf("content-type=%s", ct)
	}
	var body types.StatusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if body.State != "ready" || body.LoadsTotal != 3 {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestReadyz(t *testing.T) {
	if w := do(t, &mockService{ready: true}, http.MethodGet, "/readyz", ""); w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	w := do(t, &mockService{}, http.MethodGet, "/readyz", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "not ready") {
		t.Fatalf("body=%q", w.Body.String())
	}
	if w := do(t, &mockService{}, http.MethodGet, "/healthz", ""); w.Code != http.StatusOK {
		t.Fatalf("healthz=%d", w.Code)
	}
}

func TestAddZMap(t *testing.T) {
	cases := []struct {
		res  manager.AddResult
		code int
	}{
		{manager.AddOK, http.StatusCreated},
		{manager.AddNotConnected, http.StatusServiceUnavailable},
		{manager.AddDisaster, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		svc := &mockService{added: manager.Added{Result: tc.res, ZMapID: "z1", ViewID: "v1"}}
		w := do(t, svc, http.MethodPost, "/zmaps", `{"sequence":"chr1","start":1,"end":500}`)
		if w.Code != tc.code {
			t.Fatalf("%s: status=%d body=%s", tc.res, w.Code, w.Body.String())
		}
		var body types.AddResponse
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("json: %v", err)
		}
		if body.Result != tc.res.String() || body.ZMapID != "z1" {
			t.Fatalf("unexpected body: %+v", body)
		}
		if svc.lastSeq.String() != "chr1:1-500" {
			t.Fatalf("sequence=%s", svc.lastSeq)
		}
	}
}

func TestAddZMap_BadBodies(t *testing.T) {
	svc := &mockService{}
	for _, body := range []string{"", "not-json", `{"sequence":""}`, `{"sequence":"chr1","start":9,"end":2}`} {
		if w := do(t, svc, http.MethodPost, "/zmaps", body); w.Code != http.StatusBadRequest {
			t.Fatalf("body %q: status=%d", body, w.Code)
		}
	}
	req := httptest.NewRequest(http.MethodPost, "/zmaps", strings.NewReader(`{"sequence":"chr1"}`))
	req.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()
	NewMux(svc).ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("content type: status=%d", w.Code)
	}
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{manager.ErrZMapNotFound("z"), http.StatusNotFound},
		{manager.ErrViewNotFound("v"), http.StatusNotFound},
		{manager.ErrDying("z"), http.StatusConflict},
		{manager.ErrNotRunning, http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{mockHTTPError{msg: "teapot", code: http.StatusTeapot}, http.StatusTeapot},
		{feature.ErrInvalidSequence, http.StatusBadRequest},
	}
	for _, tc := range cases {
		svc := &mockService{err: tc.err}
		w := do(t, svc, http.MethodDelete, "/zmaps/z", "")
		if w.Code != tc.code {
			t.Fatalf("%v: status=%d want %d", tc.err, w.Code, tc.code)
		}
		var body types.ErrorResponse
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil || body.Code != tc.code {
			t.Fatalf("%v: error body %q", tc.err, w.Body.String())
		}
	}
}

func TestAsyncCommandsAccepted(t *testing.T) {
	svc := &mockService{}
	for _, rc := range []struct{ method, path, body string }{
		{http.MethodPost, "/zmaps/z1/reset", ""},
		{http.MethodDelete, "/zmaps/z1", ""},
		{http.MethodPost, "/views/v1/load", ""},
		{http.MethodPost, "/views/v1/load", `{"sequence":"chr2","start":5,"end":10}`},
		{http.MethodDelete, "/views/v1", ""},
	} {
		if w := do(t, svc, rc.method, rc.path, rc.body); w.Code != http.StatusAccepted {
			t.Fatalf("%s %s: status=%d body=%s", rc.method, rc.path, w.Code, w.Body.String())
		}
	}
	if len(svc.killed) != 1 || svc.killed[0] != "z1" {
		t.Fatalf("kill not forwarded: %v", svc.killed)
	}
	if len(svc.loaded) != 2 || svc.loaded[0] != nil || svc.loaded[1].String() != "chr2:5-10" {
		t.Fatalf("loads: %+v", svc.loaded)
	}
}

func TestAddView(t *testing.T) {
	svc := &mockService{}
	w := do(t, svc, http.MethodPost, "/zmaps/z1/views", `{"sequence":"chr3"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status=%d", w.Code)
	}
	var body types.AddResponse
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body.ViewID != "v2" || body.ZMapID != "z1" {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestRemoteEndpoint(t *testing.T) {
	svc := &mockService{added: manager.Added{Result: manager.AddOK, ZMapID: "z1", ViewID: "v1"}}
	w := do(t, svc, http.MethodPost, "/remote", `<zmap><request command="new_view"><sequence name="chr1" start="1" end="10"/></request></zmap>`)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	resp, err := remote.DecodeResponse(w.Body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Result != remote.CodeOK || resp.ViewID != "v1" || resp.Command != remote.CmdNewView {
		t.Fatalf("unexpected response: %+v", resp)
	}

	w = do(t, svc, http.MethodPost, "/remote", `<zmap><request`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("malformed: status=%d", w.Code)
	}
	resp, err = remote.DecodeResponse(w.Body)
	if err != nil || resp.Result != remote.CodeBadRequest {
		t.Fatalf("malformed response: %+v %v", resp, err)
	}
}

func TestCORS_OptIn(t *testing.T) {
	SetCORSOptions(true, []string{"http://example.org"}, []string{"GET", "POST"}, []string{"Content-Type"})
	defer SetCORSOptions(false, nil, nil, nil)
	req := httptest.NewRequest(http.MethodOptions, "/status", nil)
	req.Header.Set("Origin", "http://example.org")
	req.Header.Set("Access-Control-Request-Method", "GET")
	w := httptest.NewRecorder()
	NewMux(&mockService{}).ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://example.org" {
		t.Fatalf("allow-origin=%q", got)
	}
}
