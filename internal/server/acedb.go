package server

import (
	"bufio"
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"zmapd/internal/feature"
)

// Acedb servers older than this lack the seqfeatures options used below.
const (
	acedbMinVersion  = "4.9.48"
	acedbDefaultPort = 23100
	acedbDefaultUser = "anonymous"
	acedbDefaultPass = "guest"
)

var versionRe = regexp.MustCompile(`\d+(?:[._]\d+)+`)

type acedbBackend struct {
	params  Params
	addr    Address
	conn    *aceConn
	version string
	methods feature.StyleTable
	modes   bool
	fc      *feature.Context
}

func newAcedb(p Params, addr Address) (Backend, error) {
	if addr.Host == "" {
		return nil, newError(ResponseBadReq, "acedb url %q has no host", p.URL)
	}
	if addr.Port == 0 {
		addr.Port = acedbDefaultPort
	}
	if addr.User == "" {
		addr.User, addr.Password = acedbDefaultUser, acedbDefaultPass
	}
	return &acedbBackend{params: p, addr: addr}, nil
}

func (a *acedbBackend) Open(ctx context.Context) error {
	conn, err := dialAce(ctx, a.addr.Host, a.addr.Port, a.params.Timeout)
	if err != nil {
		if ResponseOf(err) == ResponseTimedOut {
			return wrapError(ResponseTimedOut, err, "acedb connect %s:%d", a.addr.Host, a.addr.Port)
		}
		return wrapError(ResponseReqFail, err, "acedb connect %s:%d", a.addr.Host, a.addr.Port)
	}
	a.conn = conn
	if err := conn.handshake(ctx, a.addr.User, a.addr.Password); err != nil {
		_ = conn.close()
		return err
	}
	status, err := conn.exchange(ctx, "status")
	if err != nil {
		_ = conn.close()
		return err
	}
	a.version = parseAcedbVersion(status)
	if a.version == "" {
		_ = conn.close()
		return newError(ResponseReqFail, "acedb: could not determine server version")
	}
	if compareVersions(a.version, acedbMinVersion) < 0 {
		_ = conn.close()
		return newError(ResponseReqFail, "acedb server version %s is older than required %s", a.version, acedbMinVersion)
	}
	return nil
}

// parseAcedbVersion finds the version on the first line mentioning one.
func parseAcedbVersion(status string) string {
	for _, line := range strings.Split(status, "\n") {
		if !strings.Contains(strings.ToLower(line), "version") {
			continue
		}
		if v := versionRe.FindString(line); v != "" {
			return strings.ReplaceAll(v, "_", ".")
		}
	}
	return ""
}

// compareVersions compares dotted numeric versions.
func compareVersions(a, b string) int {
	pa, pb := strings.Split(a, "."), strings.Split(b, ".")
	for i := 0; i < len(pa) || i < len(pb); i++ {
		var x, y int
		if i < len(pa) {
			x, _ = strconv.Atoi(pa[i])
		}
		if i < len(pb) {
			y, _ = strconv.Atoi(pb[i])
		}
		if x != y {
			if x < y {
				return -1
			}
			return 1
		}
	}
	return 0
}

func (a *acedbBackend) Info(ctx context.Context) (Info, error) {
	return Info{
		Protocol:    "acedb",
		Database:    fmt.Sprintf("%s:%d", a.addr.Host, a.addr.Port),
		Version:     a.version,
		Description: "acedb socket server",
	}, nil
}

func (a *acedbBackend) Styles(ctx context.Context) (feature.StyleTable, error) {
	if a.methods != nil {
		return a.methods, nil
	}
	if _, err := a.conn.exchange(ctx, "find Method"); err != nil {
		return nil, err
	}
	text, err := a.conn.exchange(ctx, "show -a")
	if err != nil {
		return nil, err
	}
	tbl, modes := parseAceMethods(text)
	if len(tbl) == 0 {
		return nil, newError(ResponseNoContent, "acedb: no methods defined")
	}
	a.methods, a.modes = tbl, modes
	return tbl, nil
}

// parseAceMethods reads .ace formatted Method objects. The second result is
// true when every method declared a Zmap_mode.
func parseAceMethods(text string) (feature.StyleTable, bool) {
	tbl := feature.StyleTable{}
	allModes := true
	var cur *feature.Style
	finish := func() {
		if cur != nil {
			if cur.Mode == feature.ModeInvalid {
				allModes = false
			}
			tbl.Add(cur)
			cur = nil
		}
	}
	sc := bufio.NewScanner(strings.NewReader(text))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "//") {
			finish()
			continue
		}
		tag, val := splitAceLine(line)
		if tag == "Method" {
			finish()
			cur = &feature.Style{Name: val}
			continue
		}
		if cur == nil {
			continue
		}
		switch tag {
		case "Colour":
			cur.Colour = val
		case "Width":
			cur.Width, _ = strconv.ParseFloat(val, 64)
		case "Strand_sensitive":
			cur.StrandSpecific = true
		case "Frame_sensitive":
			cur.FrameSpecific = true
		case "Remark":
			cur.Description = val
		case "Zmap_mode":
			cur.Mode = feature.Mode(strings.ToLower(val))
		case "Style", "Parent":
			cur.Parent = val
		}
	}
	finish()
	return tbl, allModes && len(tbl) > 0
}

// splitAceLine splits `Tag : "value"` or `Tag   value`.
func splitAceLine(line string) (string, string) {
	tag, rest, _ := strings.Cut(line, " ")
	if i := strings.IndexByte(tag, '\t'); i >= 0 {
		tag, rest = line[:i], line[i+1:]
	}
	rest = strings.TrimSpace(rest)
	rest = strings.TrimPrefix(rest, ":")
	rest = strings.TrimSpace(rest)
	return tag, strings.Trim(rest, `"`)
}

func (a *acedbBackend) HaveModes() bool { return a.modes }

func (a *acedbBackend) FeatureSets(ctx context.Context, requested []string) ([]string, error) {
	methods, err := a.Styles(ctx)
	if err != nil {
		return nil, err
	}
	var out []string
	if len(requested) == 0 {
		for _, s := range methods {
			out = append(out, s.Name)
		}
		sort.Strings(out)
		return out, nil
	}
	for _, r := range requested {
		if s, ok := methods.Get(r); ok {
			out = append(out, s.Name)
		}
	}
	if len(out) == 0 {
		return nil, newError(ResponseNoContent, "acedb: none of the requested feature sets %v exist", requested)
	}
	return out, nil
}

func (a *acedbBackend) SetContext(fc *feature.Context) error {
	a.fc = fc
	return nil
}

func (a *acedbBackend) seqget(name string, seq feature.Sequence) string {
	q := "gif seqget " + name
	if !seq.Whole() {
		q += fmt.Sprintf(" -coords %d %d", seq.Start, seq.End)
	}
	return q
}

func (a *acedbBackend) Features(ctx context.Context, styles feature.StyleTable) error {
	if a.fc == nil {
		return newError(ResponseBadReq, "acedb: no context set")
	}
	reply, err := a.conn.exchange(ctx, a.seqget(a.fc.Sequence.Name, a.fc.Sequence)+" ; seqfeatures -version 2 -rawmethods")
	if err != nil {
		return err
	}
	st, err := feature.ParseGFF(strings.NewReader(stripAceComments(reply)), a.fc, feature.ParseOptions{DefaultVersion: 2})
	if err != nil {
		return wrapError(ResponseReqFail, err, "acedb: bad feature reply")
	}
	if st.Features == 0 {
		return newError(ResponseNoContent, "acedb: no features for %s", a.fc.Sequence)
	}
	return nil
}

// stripAceComments drops the "// ..." lines acedb appends to replies.
func stripAceComments(s string) string {
	var b strings.Builder
	for _, line := range strings.Split(s, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "//") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

func (a *acedbBackend) dna(ctx context.Context, name string, seq feature.Sequence) (string, error) {
	reply, err := a.conn.exchange(ctx, a.seqget(name, seq)+" ; seqdna")
	if err != nil {
		return "", err
	}
	recs, err := feature.ParseFASTA(strings.NewReader(stripAceComments(reply)))
	if err != nil {
		return "", wrapError(ResponseReqFail, err, "acedb: bad dna reply")
	}
	if len(recs) == 0 || recs[0].Seq == "" {
		return "", newError(ResponseNoContent, "acedb: no dna for %s", name)
	}
	return recs[0].Seq, nil
}

func (a *acedbBackend) ContextSequences(ctx context.Context) error {
	if a.fc == nil {
		return newError(ResponseBadReq, "acedb: no context set")
	}
	dna, err := a.dna(ctx, a.fc.Sequence.Name, a.fc.Sequence)
	if err != nil {
		return err
	}
	a.fc.MasterBlock().DNA = dna
	return nil
}

func (a *acedbBackend) Sequences(ctx context.Context, names []string) (map[string]string, error) {
	out := make(map[string]string, len(names))
	for _, n := range names {
		dna, err := a.dna(ctx, n, feature.Sequence{Name: n})
		if err != nil {
			return out, err
		}
		out[n] = dna
	}
	return out, nil
}

func (a *acedbBackend) Close() error {
	if a.conn == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), a.params.Timeout)
	defer cancel()
	stop := a.conn.guard(ctx)
	_ = a.conn.send(aceMsgReq, "quit")
	stop()
	return a.conn.close()
}
