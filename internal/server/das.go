package server

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"

	"zmapd/internal/feature"
)

// DAS/1 XML documents.
type dasDSNList struct {
	XMLName xml.Name `xml:"DASDSN"`
	DSNs    []struct {
		Source struct {
			ID      string `xml:"id,attr"`
			Version string `xml:"version,attr"`
			Name    string `xml:",chardata"`
		} `xml:"SOURCE"`
		MapMaster   string `xml:"MAPMASTER"`
		Description string `xml:"DESCRIPTION"`
	} `xml:"DSN"`
}

type dasTypes struct {
	XMLName  xml.Name `xml:"DASTYPES"`
	Segments []struct {
		Types []struct {
			ID       string `xml:"id,attr"`
			Method   string `xml:"method,attr"`
			Category string `xml:"category,attr"`
		} `xml:"TYPE"`
	} `xml:"GFF>SEGMENT"`
}

type dasFeature struct {
	ID    string `xml:"id,attr"`
	Label string `xml:"label,attr"`
	Type  struct {
		ID       string `xml:"id,attr"`
		Category string `xml:"category,attr"`
	} `xml:"TYPE"`
	Method struct {
		ID string `xml:"id,attr"`
	} `xml:"METHOD"`
	Start       int    `xml:"START"`
	End         int    `xml:"END"`
	Score       string `xml:"SCORE"`
	Orientation string `xml:"ORIENTATION"`
	Phase       string `xml:"PHASE"`
	Groups      []struct {
		ID    string `xml:"id,attr"`
		Type  string `xml:"type,attr"`
		Label string `xml:"label,attr"`
	} `xml:"GROUP"`
}

type dasGFF struct {
	XMLName  xml.Name `xml:"DASGFF"`
	Segments []struct {
		ID       string       `xml:"id,attr"`
		Features []dasFeature `xml:"FEATURE"`
	} `xml:"GFF>SEGMENT"`
}

type dasDNA struct {
	XMLName   xml.Name `xml:"DASDNA"`
	Sequences []struct {
		ID  string `xml:"id,attr"`
		DNA string `xml:"DNA"`
	} `xml:"SEQUENCE"`
}

type dasBackend struct {
	params Params
	base   string
	dsn    string
	client *http.Client
	info   Info
	types  feature.StyleTable
	fc     *feature.Context
}

func newDAS(p Params, addr Address) (Backend, error) {
	if addr.Host == "" {
		return nil, newError(ResponseBadReq, "das url %q has no host", p.URL)
	}
	scheme := addr.Protocol
	if scheme == "das" {
		scheme = "http"
	}
	clean := strings.TrimRight(addr.Path, "/")
	dsn := path.Base(clean)
	if dsn == "." || dsn == "/" || dsn == "" {
		return nil, newError(ResponseBadReq, "das url %q names no data source", p.URL)
	}
	host := addr.Host
	if addr.Port != 0 {
		host = fmt.Sprintf("%s:%d", addr.Host, addr.Port)
	}
	base := (&url.URL{Scheme: scheme, Host: host, Path: path.Dir(clean)}).String()
	// Timeout stays zero: every call carries a context deadline.
	return &dasBackend{params: p, base: strings.TrimRight(base, "/"), dsn: dsn, client: &http.Client{Timeout: 0}}, nil
}

// get fetches base/elem and decodes the XML reply into v.
func (d *dasBackend) get(ctx context.Context, elem string, q url.Values, v any) error {
	u := d.base + "/" + elem
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return wrapError(ResponseBadReq, err, "das")
	}
	resp, err := d.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return wrapError(ResponseOf(ctx.Err()), err, "das %s", elem)
		}
		return wrapError(ResponseReqFail, err, "das %s", elem)
	}
	defer resp.Body.Close()
	if ver := resp.Header.Get("X-DAS-Version"); ver != "" && d.info.Version == "" {
		d.info.Version = ver
	}
	if status := resp.Header.Get("X-DAS-Status"); status != "" && !strings.HasPrefix(status, "200") {
		return dasStatusError(elem, status)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		code := ResponseReqFail
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			code = ResponseBadReq
		}
		return newError(code, "das %s: http error: %s: %s", elem, resp.Status, strings.TrimSpace(string(b)))
	}
	if err := xml.NewDecoder(resp.Body).Decode(v); err != nil {
		return wrapError(ResponseReqFail, err, "das %s: malformed reply", elem)
	}
	return nil
}

func dasStatusError(elem, status string) error {
	code := ResponseReqFail
	if strings.HasPrefix(status, "4") {
		code = ResponseBadReq
	}
	return newError(code, "das %s: X-DAS-Status %s", elem, status)
}

func (d *dasBackend) Open(ctx context.Context) error {
	var list dasDSNList
	if err := d.get(ctx, "dsn", nil, &list); err != nil {
		return err
	}
	for _, s := range list.DSNs {
		if s.Source.ID == d.dsn {
			d.info.Protocol = "das"
			d.info.Database = s.Source.ID
			d.info.Description = strings.TrimSpace(s.Description)
			if d.info.Version == "" {
				d.info.Version = s.Source.Version
			}
			return nil
		}
	}
	return newError(ResponseReqFail, "das: data source %q not served by %s", d.dsn, d.base)
}

func (d *dasBackend) Info(ctx context.Context) (Info, error) { return d.info, nil }

func (d *dasBackend) Styles(ctx context.Context) (feature.StyleTable, error) {
	if d.types != nil {
		return d.types, nil
	}
	var doc dasTypes
	if err := d.get(ctx, d.dsn+"/types", nil, &doc); err != nil {
		return nil, err
	}
	tbl := feature.StyleTable{}
	for _, seg := range doc.Segments {
		for _, t := range seg.Types {
			name := t.Method
			if name == "" {
				name = t.ID
			}
			if _, ok := tbl.Get(name); !ok {
				tbl.Add(&feature.Style{Name: name, Description: t.Category})
			}
		}
	}
	if len(tbl) == 0 {
		return nil, newError(ResponseNoContent, "das: no types for %s", d.dsn)
	}
	d.types = tbl
	return tbl, nil
}

func (d *dasBackend) HaveModes() bool { return false }

func (d *dasBackend) FeatureSets(ctx context.Context, requested []string) ([]string, error) {
	tbl, err := d.Styles(ctx)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, s := range tbl {
		if len(requested) == 0 {
			out = append(out, s.Name)
		}
	}
	for _, r := range requested {
		if s, ok := tbl.Get(r); ok {
			out = append(out, s.Name)
		}
	}
	if len(out) == 0 {
		return nil, newError(ResponseNoContent, "das: none of the requested feature sets %v exist", requested)
	}
	sort.Strings(out)
	return out, nil
}

func (d *dasBackend) SetContext(fc *feature.Context) error {
	d.fc = fc
	return nil
}

func segment(seq feature.Sequence) string {
	if seq.Whole() {
		return seq.Name
	}
	return fmt.Sprintf("%s:%d,%d", seq.Name, seq.Start, seq.End)
}

func (d *dasBackend) Features(ctx context.Context, styles feature.StyleTable) error {
	if d.fc == nil {
		return newError(ResponseBadReq, "das: no context set")
	}
	var doc dasGFF
	if err := d.get(ctx, d.dsn+"/features", url.Values{"segment": {segment(d.fc.Sequence)}}, &doc); err != nil {
		return err
	}
	var b strings.Builder
	b.WriteString("##gff-version 3\n")
	for _, seg := range doc.Segments {
		for _, line := range dasToGFF3(seg.ID, seg.Features) {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	st, err := feature.ParseGFF(strings.NewReader(b.String()), d.fc, feature.ParseOptions{})
	if err != nil {
		return wrapError(ResponseReqFail, err, "das: bad features")
	}
	if st.Features == 0 {
		return newError(ResponseNoContent, "das: no features for %s", d.fc.Sequence)
	}
	return nil
}

// dasToGFF3 translates DAS features to GFF3 lines. Features sharing a GROUP
// become children of a synthesised parent spanning them.
func dasToGFF3(seqID string, feats []dasFeature) []string {
	type group struct {
		rec   feature.Record
		order int
	}
	groups := map[string]*group{}
	var children, singles []feature.Record
	for _, f := range feats {
		set := f.Method.ID
		if set == "" {
			set = f.Type.ID
		}
		rec := feature.Record{
			SeqID: seqID, Source: set, Type: f.Type.ID, Start: f.Start, End: f.End,
			Strand: dasStrand(f.Orientation), Phase: -1,
		}
		if sc, err := strconv.ParseFloat(f.Score, 64); err == nil {
			rec.Score = &sc
		}
		if p, err := strconv.Atoi(f.Phase); err == nil {
			rec.Phase = p
		}
		name := f.Label
		if name == "" {
			name = f.ID
		}
		if len(f.Groups) > 0 && f.Groups[0].ID != "" && f.Groups[0].ID != f.ID {
			g := f.Groups[0]
			gk := set + "\x00" + g.ID
			pg := groups[gk]
			if pg == nil {
				label := g.Label
				if label == "" {
					label = g.ID
				}
				typ := g.Type
				if typ == "" {
					typ = "transcript"
				}
				pg = &group{order: len(groups), rec: feature.Record{
					SeqID: seqID, Source: set, Type: typ, Start: f.Start, End: f.End, Strand: rec.Strand, Phase: -1,
					Attributes: [][2]string{{"ID", g.ID}, {"Name", label}},
				}}
				groups[gk] = pg
			}
			if f.Start < pg.rec.Start {
				pg.rec.Start = f.Start
			}
			if f.End > pg.rec.End {
				pg.rec.End = f.End
			}
			rec.Type = childType(rec.Type)
			rec.Attributes = [][2]string{{"Parent", g.ID}}
			children = append(children, rec)
			continue
		}
		rec.Attributes = [][2]string{{"ID", f.ID}, {"Name", name}}
		singles = append(singles, rec)
	}
	parents := make([]*group, 0, len(groups))
	for _, g := range groups {
		parents = append(parents, g)
	}
	sort.Slice(parents, func(i, j int) bool { return parents[i].order < parents[j].order })
	var out []string
	for _, g := range parents {
		out = append(out, feature.FormatGFF3(g.rec))
	}
	for _, r := range append(singles, children...) {
		out = append(out, feature.FormatGFF3(r))
	}
	return out
}

// childType keeps recognised subpart types and maps anything else to exon.
func childType(t string) string {
	switch strings.ToLower(t) {
	case "exon", "cds", "coding_exon", "intron", "five_prime_utr", "three_prime_utr", "match_part":
		return t
	}
	return "exon"
}

func dasStrand(o string) feature.Strand {
	switch o {
	case "+":
		return feature.StrandForward
	case "-":
		return feature.StrandReverse
	}
	return feature.StrandNone
}

func (d *dasBackend) dna(ctx context.Context, seq feature.Sequence) (string, error) {
	var doc dasDNA
	if err := d.get(ctx, d.dsn+"/dna", url.Values{"segment": {segment(seq)}}, &doc); err != nil {
		return "", err
	}
	if len(doc.Sequences) == 0 {
		return "", newError(ResponseNoContent, "das: no dna for %s", seq)
	}
	return strings.ToLower(strings.Join(strings.Fields(doc.Sequences[0].DNA), "")), nil
}

func (d *dasBackend) ContextSequences(ctx context.Context) error {
	if d.fc == nil {
		return newError(ResponseBadReq, "das: no context set")
	}
	dna, err := d.dna(ctx, d.fc.Sequence)
	if err != nil {
		return err
	}
	d.fc.MasterBlock().DNA = dna
	return nil
}

func (d *dasBackend) Sequences(ctx context.Context, names []string) (map[string]string, error) {
	out := make(map[string]string, len(names))
	for _, n := range names {
		dna, err := d.dna(ctx, feature.Sequence{Name: n})
		if err != nil {
			return out, err
		}
		out[n] = dna
	}
	return out, nil
}

func (d *dasBackend) Close() error {
	d.client.CloseIdleConnections()
	return nil
}
