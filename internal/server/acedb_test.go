package server

import (
	"context"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"zmapd/internal/feature"
)

const aceMethods = `Method : "curated"
Colour	 "RED"
Width	 2.0
Strand_sensitive
Zmap_mode	 "Transcript"

Method : "est"
Remark	 "ESTs"
Style	 "align"
// 2 objects dumped
`

const aceFeatures = `##gff-version 2
##sequence-region chr1 1 1000
chr1	curated	transcript	100	400	.	+	.	Sequence "t1"
chr1	curated	exon	100	150	.	+	.	Sequence "t1"
chr1	curated	exon	300	400	.	+	.	Sequence "t1"
chr1	est	similarity	500	600	80	-	.	Target "Sequence:e1" 1 100
// 4 features
`

// fakeAcedb is a minimal acedb socket server. Replies are chosen by the
// first word of each request.
type fakeAcedb struct {
	ln      net.Listener
	version string
	mu      sync.Mutex
	queries []string
	hangOn  string
}

func startFakeAcedb(t *testing.T, version string) *fakeAcedb {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	f := &fakeAcedb{ln: ln, version: version}
	go f.serve()
	t.Cleanup(func() { ln.Close() })
	return f
}

func (f *fakeAcedb) url() string {
	return "acedb://" + f.ln.Addr().String()
}

func (f *fakeAcedb) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

func (f *fakeAcedb) serve() {
	for {
		c, err := f.ln.Accept()
		if err != nil {
			return
		}
		go f.handle(c)
	}
}

func (f *fakeAcedb) handle(c net.Conn) {
	defer c.Close()
	reply := func(typ, body string) {
		_ = writeAceMessage(c, aceHeader{Version: aceInterfaceVer, ClientID: 7, MaxBytes: aceDefaultMaxSize, Type: typ}, body)
	}
	for {
		_, q, err := readAceMessage(c, 0)
		if err != nil {
			return
		}
		f.mu.Lock()
		f.queries = append(f.queries, q)
		hang := f.hangOn != "" && strings.HasPrefix(q, f.hangOn)
		f.mu.Unlock()
		if hang {
			time.Sleep(time.Second)
			return
		}
		switch {
		case q == aceHello:
			reply(aceMsgOK, "nonce42")
		case strings.HasPrefix(q, "anonymous "):
			if strings.TrimPrefix(q, "anonymous ") != aceHash("anonymous", "guest", "nonce42") {
				reply(aceMsgOK, "sod off")
				continue
			}
			reply(aceMsgOK, aceHelloDone)
		case q == "status":
			reply(aceMsgOK, "// Server\n// Version: ACEDB "+f.version+" build\n")
		case q == "find Method":
			reply(aceMsgOK, "// Found 2 objects")
		case q == "show -a":
			// Split over an encore continuation.
			reply(aceMsgEncore, aceMethods[:40])
			if _, more, err := readAceMessage(c, 0); err != nil || more != aceEncore {
				return
			}
			reply(aceMsgOK, aceMethods[40:])
		case strings.HasSuffix(q, "seqdna"):
			reply(aceMsgOK, ">chr1\nACGTACGT\n// done\n")
		case strings.HasSuffix(q, "-rawmethods"):
			reply(aceMsgOK, aceFeatures)
		case q == "quit":
			return
		default:
			reply(aceMsgFail, "unknown command")
		}
	}
}

func TestAcedbHashIsStable(t *testing.T) {
	if aceHash("a", "b", "n") != aceHash("a", "b", "n") {
		t.Fatalf("hash not deterministic")
	}
	if aceHash("a", "b", "n") == aceHash("a", "b", "m") {
		t.Fatalf("nonce not mixed into hash")
	}
}

func TestAcedbVersionParsing(t *testing.T) {
	if v := parseAcedbVersion("// Version: ACEDB 4_9_52,  build dir\n"); v != "4.9.52" {
		t.Fatalf("got %q", v)
	}
	if compareVersions("4.9.48", "4.9.52") >= 0 || compareVersions("4.10", "4.9.99") <= 0 || compareVersions("4.9", "4.9.0") != 0 {
		t.Fatalf("compareVersions ordering wrong")
	}
}

func TestAcedbLoad(t *testing.T) {
	fake := startFakeAcedb(t, "4_9_52")
	s, err := Create(Params{URL: fake.url(), Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	ctx := context.Background()
	if err := s.Open(ctx); err != nil {
		t.Fatalf("open: %v", err)
	}
	info, err := s.GetInfo(ctx)
	if err != nil || info.Version != "4.9.52" {
		t.Fatalf("info %+v err %v", info, err)
	}
	styles, err := s.GetStyles(ctx)
	if err != nil {
		t.Fatalf("styles: %v", err)
	}
	if len(styles) != 2 {
		t.Fatalf("expected 2 styles, got %d", len(styles))
	}
	cur, ok := styles.Get("curated")
	if !ok || cur.Colour != "RED" || cur.Width != 2 || !cur.StrandSpecific || cur.Mode != feature.ModeTranscript {
		t.Fatalf("curated parsed wrong: %+v", cur)
	}
	if est, _ := styles.Get("est"); est.Parent != "align" || est.Description != "ESTs" {
		t.Fatalf("est parsed wrong: %+v", est)
	}
	if s.HaveModes() {
		t.Fatalf("est has no mode, HaveModes should be false")
	}
	sets, err := s.GetFeatureSets(ctx, []string{"est", "missing"})
	if err != nil || len(sets) != 1 || sets[0] != "est" {
		t.Fatalf("sets %v err %v", sets, err)
	}
	fc := feature.NewContext(feature.Sequence{Name: "chr1", Start: 1, End: 1000})
	if err := s.SetContext(fc); err != nil {
		t.Fatalf("set context: %v", err)
	}
	if err := s.GetFeatures(ctx, styles); err != nil {
		t.Fatalf("features: %v", err)
	}
	if n := fc.FeatureCount(); n != 2 {
		t.Fatalf("expected 2 features (exons folded), got %d", n)
	}
	if err := s.GetContextSequences(ctx); err != nil {
		t.Fatalf("dna: %v", err)
	}
	if fc.MasterBlock().DNA != "acgtacgt" {
		t.Fatalf("dna %q", fc.MasterBlock().DNA)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.Destroy(); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	q := fake.seen()
	if len(q) == 0 || q[0] != aceHello {
		t.Fatalf("handshake not first: %v", q)
	}
	var sawSeqget bool
	for _, x := range q {
		if strings.HasPrefix(x, "gif seqget chr1 -coords 1 1000") {
			sawSeqget = true
		}
	}
	if !sawSeqget {
		t.Fatalf("seqget with coords not sent: %v", q)
	}
}

func TestAcedbRejectsOldServer(t *testing.T) {
	fake := startFakeAcedb(t, "4_9_30")
	s, err := Create(Params{URL: fake.url(), Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	err = s.Open(context.Background())
	if ResponseOf(err) != ResponseReqFail {
		t.Fatalf("expected REQFAIL, got %v", err)
	}
	if !strings.Contains(s.ErrMsg(), "older") {
		t.Fatalf("ErrMsg %q", s.ErrMsg())
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close after failed open: %v", err)
	}
}

func TestAcedbRequestTimeout(t *testing.T) {
	fake := startFakeAcedb(t, "4_9_52")
	fake.mu.Lock()
	fake.hangOn = "show"
	fake.mu.Unlock()
	s, err := Create(Params{URL: fake.url(), Timeout: 200 * time.Millisecond})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	_, err = s.GetStyles(context.Background())
	if ResponseOf(err) != ResponseTimedOut {
		t.Fatalf("expected TIMEDOUT, got %v", err)
	}
}

func TestAcedbUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	s, err := Create(Params{URL: "acedb://127.0.0.1:" + strconv.Itoa(port), Timeout: time.Second})
	if err != nil {
		t.Fatalf("create must not touch the network: %v", err)
	}
	if err := s.Open(context.Background()); err == nil {
		t.Fatalf("expected open to fail")
	}
}
