package feature

import "strings"

// Mode selects how features of a style are displayed and grouped.
type Mode string

const (
	ModeInvalid    Mode = ""
	ModeBasic      Mode = "basic"
	ModeTranscript Mode = "transcript"
	ModeAlignment  Mode = "alignment"
	ModeSequence   Mode = "sequence"
	ModeText       Mode = "text"
	ModeGraph      Mode = "graph"
)

// Style carries display attributes for a feature set.
type Style struct {
	ID             string
	Name           string
	Mode           Mode
	Parent         string
	Colour         string
	Width          float64
	StrandSpecific bool
	FrameSpecific  bool
	Description    string
}

// StyleTable maps canonical style ids to styles.
type StyleTable map[string]*Style

// Add inserts or replaces s.
func (t StyleTable) Add(s *Style) {
	if s.ID == "" {
		s.ID = CanonicalID(s.Name)
	}
	t[s.ID] = s
}

// Get looks a style up by name.
func (t StyleTable) Get(name string) (*Style, bool) {
	s, ok := t[CanonicalID(name)]
	return s, ok
}

// Merge adds the styles of other that t lacks.
func (t StyleTable) Merge(other StyleTable) {
	for id, s := range other {
		if _, ok := t[id]; !ok {
			t[id] = s
		}
	}
}

// HaveModes reports whether every style carries a display mode.
func (t StyleTable) HaveModes() bool {
	for _, s := range t {
		if s.Mode == ModeInvalid {
			return false
		}
	}
	return true
}

var modeHints = []struct {
	mode  Mode
	words []string
}{
	{ModeTranscript, []string{"transcript", "curated", "coding", "gene", "cds", "mrna_model"}},
	{ModeAlignment, []string{"blast", "align", "est", "mrna", "read", "bam", "sam", "cram", "match", "wublast"}},
	{ModeSequence, []string{"dna", "sequence", "peptide"}},
	{ModeText, []string{"text", "label"}},
	{ModeGraph, []string{"coverage", "graph", "wiggle", "density"}},
}

// InferModes fills in missing modes, first from a parent style and then from
// the style name.
func (t StyleTable) InferModes() {
	for _, s := range t {
		if s.Mode != ModeInvalid {
			continue
		}
		if p, ok := t.Get(s.Parent); ok && p.Mode != ModeInvalid {
			s.Mode = p.Mode
			continue
		}
		s.Mode = guessMode(s.Name)
	}
}

func guessMode(name string) Mode {
	n := strings.ToLower(name)
	for _, h := range modeHints {
		for _, w := range h.words {
			if strings.Contains(n, w) {
				return h.mode
			}
		}
	}
	return ModeBasic
}

// Ensure returns the style for a set, creating a default one if missing.
func (t StyleTable) Ensure(name string) *Style {
	if s, ok := t.Get(name); ok {
		return s
	}
	s := &Style{Name: name, Mode: guessMode(name), Width: 8}
	t.Add(s)
	return s
}

// Clone returns a deep copy of t.
func (t StyleTable) Clone() StyleTable {
	out := make(StyleTable, len(t))
	for id, s := range t {
		cp := *s
		out[id] = &cp
	}
	return out
}
