package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"zmapd/internal/app"
	"zmapd/internal/httpapi"
	"zmapd/internal/manager"
	"zmapd/internal/registry"
	"zmapd/internal/window"
)

const curatedGFF = `##gff-version 3
##sequence-region chr1 1 1000
chr1	curated	mRNA	100	400	.	+	.	ID=tx1;Name=TX1
chr1	curated	exon	100	150	.	+	.	Parent=tx1
chr1	curated	exon	300	400	.	+	.	Parent=tx1
`

const repeatsGFF = `##gff-version 3
chr1	repeats	repeat_region	600	700	.	.	.	ID=rp1
chr1	repeats	repeat_region	800	820	.	.	.	ID=rp2
`

// createTempDataDir writes the given GFF files into a fresh directory.
func createTempDataDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatalf("write temp source %s: %v", p, err)
		}
	}
	return dir
}

type harness struct {
	srv    *httptest.Server
	mgr    *manager.Manager
	events *manager.MemoryPublisher
	exits  atomic.Int32
}

// newServerForDir runs a manager over every source found in dataDir behind
// an httptest server.
func newServerForDir(t *testing.T, dataDir string) *harness {
	t.Helper()
	sources, err := registry.LoadDir(dataDir)
	if err != nil {
		t.Fatalf("scan sources: %v", err)
	}
	h := &harness{events: manager.NewMemoryPublisher()}
	a := &app.Context{Logger: zerolog.Nop()}
	if err := a.SetCallbacks(app.Callbacks{Exit: func() { h.exits.Add(1) }}); err != nil {
		t.Fatalf("callbacks: %v", err)
	}
	h.mgr = manager.NewWithConfig(manager.ManagerConfig{
		App:           a,
		Sources:       sources,
		PollInterval:  2 * time.Millisecond,
		TeardownGrace: time.Second,
		WindowFactory: window.Factory(zerolog.Nop()),
		Publisher:     h.events,
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { _ = h.mgr.Run(ctx); close(done) }()
	t.Cleanup(func() { cancel(); <-done })
	waitFor(t, "manager ready", h.mgr.Ready)

	h.srv = httptest.NewServer(httpapi.NewMux(h.mgr))
	t.Cleanup(h.srv.Close)
	return h
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func httpDo(t *testing.T, method, url, contentType string, body []byte) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), method, url, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp, b
}

func decodeJSON(t *testing.T, b []byte, v any) {
	t.Helper()
	if err := json.Unmarshal(b, v); err != nil {
		t.Fatalf("json: %v: %s", err, b)
	}
}
