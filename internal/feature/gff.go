package feature

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// ErrNoVersion is returned when a GFF stream has no ##gff-version header and
// no default version was configured.
var ErrNoVersion = errors.New("gff: missing ##gff-version header")

// UnsupportedVersionError reports a GFF version other than 2 or 3.
type UnsupportedVersionError struct{ Version string }

func (e UnsupportedVersionError) Error() string { return "gff: unsupported version " + e.Version }

// ParseOptions control ParseGFF.
type ParseOptions struct {
	// DefaultVersion is used when the stream carries no header; 0 makes the
	// header mandatory.
	DefaultVersion int
}

// ParseStats describes a parsed stream.
type ParseStats struct {
	Version        int
	Lines          int
	Features       int
	Skipped        int
	SequenceRegion *Sequence
}

// childTypes are folded into their parent feature as subparts.
var childTypes = map[string]bool{
	"exon": true, "cds": true, "coding_exon": true, "intron": true,
	"five_prime_utr": true, "three_prime_utr": true, "match_part": true,
}

type pendingChild struct {
	set    *Set
	key    string
	f      *Feature
	parent string
}

// ParseGFF reads GFF v2 or v3 records from r into the master block of c.
// Records on other sequences, outside the context range, or belonging to sets
// that were not requested are skipped. A ##FASTA section matching the context
// sequence becomes the block DNA.
func ParseGFF(r io.Reader, c *Context, opts ParseOptions) (ParseStats, error) {
	st := ParseStats{Version: opts.DefaultVersion}
	blk := c.MasterBlock()
	if blk == nil {
		return st, fmt.Errorf("gff: context has no master block")
	}
	seqID := CanonicalID(c.Sequence.Name)
	var children []pendingChild
	byKey := map[string]*Feature{}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	sawHeader := false
scan:
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		st.Lines++
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "##") {
			fields := strings.Fields(line[2:])
			if len(fields) == 0 {
				continue
			}
			switch strings.ToLower(fields[0]) {
			case "gff-version":
				if len(fields) < 2 {
					return st, UnsupportedVersionError{Version: ""}
				}
				v, err := strconv.Atoi(strings.SplitN(fields[1], ".", 2)[0])
				if err != nil || (v != 2 && v != 3) {
					return st, UnsupportedVersionError{Version: fields[1]}
				}
				st.Version = v
				sawHeader = true
			case "sequence-region":
				if len(fields) >= 4 {
					s, _ := strconv.Atoi(fields[2])
					e, _ := strconv.Atoi(fields[3])
					st.SequenceRegion = &Sequence{Name: fields[1], Start: s, End: e}
				}
			case "fasta":
				recs, err := ReadFASTA(sc)
				if err != nil {
					return st, err
				}
				for _, rec := range recs {
					if CanonicalID(rec.Name) == seqID && blk.DNA == "" {
						blk.DNA = rec.Seq
					}
				}
				break scan
			}
			continue
		}
		if line[0] == '#' {
			continue
		}
		if !sawHeader && st.Version == 0 {
			return st, ErrNoVersion
		}
		f, set, ok, err := parseRecord(line, st.Version)
		if err != nil {
			return st, fmt.Errorf("gff line %d: %w", st.Lines, err)
		}
		if !ok || CanonicalID(f.attrSeq) != seqID || !c.Sequence.Overlaps(f.Start, f.End) || !c.Wants(set) {
			st.Skipped++
			continue
		}
		style := ""
		if s, ok := c.Styles.Get(set); ok {
			style = s.ID
		}
		fs := blk.EnsureSet(set, style)
		feat := f.Feature
		if childTypes[strings.ToLower(feat.Type)] && f.parent != "" {
			children = append(children, pendingChild{set: fs, key: fs.ID + "\x00" + CanonicalID(f.parent), f: &feat, parent: f.parent})
			continue
		}
		if fs.Add(&feat) {
			st.Features++
			for _, k := range f.keys {
				byKey[fs.ID+"\x00"+CanonicalID(k)] = fs.Features[feat.ID]
			}
		}
	}
	if err := sc.Err(); err != nil {
		return st, fmt.Errorf("gff: read: %w", err)
	}
	for _, ch := range children {
		if p := byKey[ch.key]; p != nil {
			p.Subparts = append(p.Subparts, ch.f.Span)
			continue
		}
		ch.f.Parent = ch.parent
		if ch.set.Add(ch.f) {
			st.Features++
		}
	}
	for _, a := range c.Alignments {
		for _, b := range a.Blocks {
			for _, s := range b.Sets {
				for _, f := range s.Features {
					if len(f.Subparts) > 1 {
						sort.Slice(f.Subparts, func(i, j int) bool { return f.Subparts[i].Start < f.Subparts[j].Start })
					}
				}
			}
		}
	}
	return st, nil
}

type parsedRecord struct {
	Feature
	attrSeq string
	parent  string
	keys    []string
}

func parseRecord(line string, version int) (parsedRecord, string, bool, error) {
	cols := strings.Split(line, "\t")
	if len(cols) < 8 && version == 2 {
		cols = strings.Fields(line)
	}
	if len(cols) < 8 {
		return parsedRecord{}, "", false, fmt.Errorf("expected at least 8 columns, got %d", len(cols))
	}
	start, err := strconv.Atoi(cols[3])
	if err != nil {
		return parsedRecord{}, "", false, fmt.Errorf("bad start %q", cols[3])
	}
	end, err := strconv.Atoi(cols[4])
	if err != nil {
		return parsedRecord{}, "", false, fmt.Errorf("bad end %q", cols[4])
	}
	if start > end {
		start, end = end, start
	}
	rec := parsedRecord{attrSeq: cols[0]}
	rec.Source = cols[1]
	rec.Type = cols[2]
	rec.Span = Span{Start: start, End: end}
	rec.Strand = ParseStrand(cols[6])
	rec.Phase = -1
	if cols[5] != "." && cols[5] != "" {
		if sc, err := strconv.ParseFloat(cols[5], 64); err == nil {
			rec.Score, rec.HasScore = sc, true
		}
	}
	if p, err := strconv.Atoi(cols[7]); err == nil && p >= 0 && p <= 2 {
		rec.Phase = p
	}
	attrText := ""
	if len(cols) > 8 {
		attrText = strings.Join(cols[8:], "\t")
	}
	if version == 3 {
		rec.Attributes = parseAttrsV3(attrText)
		rec.Name = firstNonEmpty(rec.Attributes["Name"], rec.Attributes["ID"])
		rec.parent = rec.Attributes["Parent"]
		if i := strings.IndexByte(rec.parent, ','); i >= 0 {
			rec.parent = rec.parent[:i]
		}
		rec.keys = nonEmpty(rec.Attributes["ID"], rec.Attributes["Name"])
	} else {
		var first string
		rec.Attributes, first = parseAttrsV2(attrText)
		rec.Name = first
		if childTypes[strings.ToLower(rec.Type)] {
			rec.parent = first
		}
		rec.keys = nonEmpty(first)
	}
	if rec.Name == "" {
		rec.Name = fmt.Sprintf("%s_%d_%d", rec.Type, start, end)
	}
	rec.ID = FeatureID(rec.Name, rec.Type, rec.Strand, start, end)
	return rec, rec.Source, true, nil
}

func parseAttrsV3(s string) map[string]string {
	out := map[string]string{}
	for _, kv := range strings.Split(s, ";") {
		kv = strings.TrimSpace(kv)
		if kv == "" {
			continue
		}
		k, v, _ := strings.Cut(kv, "=")
		if dk, err := url.PathUnescape(k); err == nil {
			k = dk
		}
		if dv, err := url.PathUnescape(v); err == nil {
			v = dv
		}
		out[k] = v
	}
	return out
}

// parseAttrsV2 parses `Tag "value" ; Tag value value` groups. The value of the
// first tag names the feature in acedb style output.
func parseAttrsV2(s string) (map[string]string, string) {
	out := map[string]string{}
	first := ""
	for i, grp := range splitV2Groups(s) {
		grp = strings.TrimSpace(grp)
		if grp == "" {
			continue
		}
		tag, val, _ := strings.Cut(grp, " ")
		val = strings.TrimSpace(val)
		if strings.HasPrefix(val, "\"") {
			if j := strings.Index(val[1:], "\""); j >= 0 {
				val = val[1:j+1] + val[j+2:]
			}
		}
		val = strings.TrimSpace(val)
		out[tag] = val
		if (i == 0 || first == "") && val != "" {
			first = strings.Fields(val)[0]
			first = strings.TrimPrefix(first, "Sequence:")
		}
	}
	return out, first
}

func splitV2Groups(s string) []string {
	var groups []string
	inQuote := false
	last := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			inQuote = !inQuote
		case ';':
			if !inQuote {
				groups = append(groups, s[last:i])
				last = i + 1
			}
		}
	}
	return append(groups, s[last:])
}

func firstNonEmpty(v ...string) string {
	for _, s := range v {
		if s != "" {
			return s
		}
	}
	return ""
}

func nonEmpty(v ...string) []string {
	var out []string
	for _, s := range v {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Record is one GFF3 line as produced by translators.
type Record struct {
	SeqID      string
	Source     string
	Type       string
	Start, End int
	Score      *float64
	Strand     Strand
	Phase      int
	Attributes [][2]string
}

// FormatGFF3 renders r as a GFF3 line without trailing newline.
func FormatGFF3(r Record) string {
	score := "."
	if r.Score != nil {
		score = strconv.FormatFloat(*r.Score, 'g', -1, 64)
	}
	phase := "."
	if r.Phase >= 0 && r.Phase <= 2 && strings.EqualFold(r.Type, "CDS") {
		phase = strconv.Itoa(r.Phase)
	}
	var attrs []string
	for _, kv := range r.Attributes {
		attrs = append(attrs, escapeGFF3(kv[0])+"="+escapeGFF3(kv[1]))
	}
	attr := "."
	if len(attrs) > 0 {
		attr = strings.Join(attrs, ";")
	}
	return strings.Join([]string{
		escapeGFF3(r.SeqID), escapeGFF3(r.Source), r.Type,
		strconv.Itoa(r.Start), strconv.Itoa(r.End), score, r.Strand.String(), phase, attr,
	}, "\t")
}

var gff3Escaper = strings.NewReplacer("%", "%25", ";", "%3B", "=", "%3D", "&", "%26", ",", "%2C", "\t", "%09", "\n", "%0A")

func escapeGFF3(s string) string { return gff3Escaper.Replace(s) }
