package server

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strconv"
	"sync"

	"zmapd/internal/common/fsutil"
	"zmapd/internal/feature"
)

// pipeBackend runs a script per request and parses GFF from its stdout. The
// script receives the URL query as --key=value flags plus the region.
type pipeBackend struct {
	params Params
	script string
	args   []string
	fc     *feature.Context
	hasDNA bool
}

func newPipe(p Params, addr Address) (Backend, error) {
	script := addr.Path
	if addr.Host != "" && addr.Host != "localhost" {
		script = addr.Host + script
	}
	if script == "" {
		return nil, newError(ResponseBadReq, "pipe url %q has no script", p.URL)
	}
	ok, err := fsutil.IsExecutable(script)
	if err != nil {
		return nil, wrapError(ResponseBadReq, err, "pipe")
	}
	if !ok {
		return nil, newError(ResponseBadReq, "pipe %q is not executable", script)
	}
	keys := make([]string, 0, len(addr.Query))
	for k := range addr.Query {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var args []string
	for _, k := range keys {
		for _, v := range addr.Query[k] {
			args = append(args, fmt.Sprintf("--%s=%s", k, v))
		}
	}
	return &pipeBackend{params: p, script: script, args: args}, nil
}

func (p *pipeBackend) Open(ctx context.Context) error { return nil }

func (p *pipeBackend) Info(ctx context.Context) (Info, error) {
	return Info{Protocol: "pipe", Database: p.script}, nil
}

func (p *pipeBackend) Styles(ctx context.Context) (feature.StyleTable, error) {
	return nil, ErrUnsupported
}

func (p *pipeBackend) HaveModes() bool { return false }

func (p *pipeBackend) FeatureSets(ctx context.Context, requested []string) ([]string, error) {
	return requested, nil
}

func (p *pipeBackend) SetContext(fc *feature.Context) error {
	p.fc = fc
	return nil
}

func (p *pipeBackend) Features(ctx context.Context, styles feature.StyleTable) error {
	if p.fc == nil {
		return newError(ResponseBadReq, "pipe: no context set")
	}
	seq := p.fc.Sequence
	args := append(append([]string(nil), p.args...), "--gff_seqname="+seq.Name)
	if !seq.Whole() {
		args = append(args, "--start="+strconv.Itoa(seq.Start), "--end="+strconv.Itoa(seq.End))
	}
	cmd := exec.CommandContext(ctx, p.script, args...)
	stderr := &tailBuffer{max: 4096}
	cmd.Stderr = stderr
	out, err := cmd.StdoutPipe()
	if err != nil {
		return wrapError(ResponseReqFail, err, "pipe")
	}
	if err := cmd.Start(); err != nil {
		return wrapError(ResponseReqFail, err, "pipe %s", p.script)
	}
	before := p.fc.MasterBlock().DNA
	st, perr := feature.ParseGFF(out, p.fc, feature.ParseOptions{})
	if perr != nil {
		// Unblock a script still writing after a parse failure.
		out.Close()
	}
	werr := cmd.Wait()
	if ctx.Err() != nil {
		return wrapError(ResponseOf(ctx.Err()), ctx.Err(), "pipe %s", p.script)
	}
	if werr != nil {
		return newError(ResponseReqFail, "pipe %s exited: %v; stderr tail: %s", p.script, werr, stderr.String())
	}
	if perr != nil {
		return wrapError(ResponseReqFail, perr, "pipe %s", p.script)
	}
	p.hasDNA = before == "" && p.fc.MasterBlock().DNA != ""
	if st.Features == 0 {
		return newError(ResponseNoContent, "pipe %s: no features for %s", p.script, seq)
	}
	return nil
}

func (p *pipeBackend) ContextSequences(ctx context.Context) error {
	if p.hasDNA {
		return nil
	}
	return ErrUnsupported
}

func (p *pipeBackend) Sequences(ctx context.Context, names []string) (map[string]string, error) {
	return nil, ErrUnsupported
}

func (p *pipeBackend) Close() error { return nil }

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf bytes.Buffer
}

func (t *tailBuffer) Write(b []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(b)
	if len(b) > t.max {
		b = b[len(b)-t.max:]
	}
	if over := t.buf.Len() + len(b) - t.max; over > 0 {
		t.buf.Next(over)
	}
	t.buf.Write(b)
	return n, nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.String()
}
