package feature

import (
	"fmt"
	"sort"
	"strings"
)

// Strand of a feature on the reference.
type Strand int8

const (
	StrandNone    Strand = 0
	StrandForward Strand = 1
	StrandReverse Strand = -1
)

// ParseStrand maps the GFF strand column to a Strand.
func ParseStrand(s string) Strand {
	switch s {
	case "+":
		return StrandForward
	case "-":
		return StrandReverse
	default:
		return StrandNone
	}
}

func (s Strand) String() string {
	switch s {
	case StrandForward:
		return "+"
	case StrandReverse:
		return "-"
	default:
		return "."
	}
}

// Span is a 1-based inclusive coordinate pair.
type Span struct {
	Start int
	End   int
}

// Feature is a single annotation. Transcripts and gapped alignments keep their
// exons/match parts in Subparts.
type Feature struct {
	ID     string
	Name   string
	Type   string
	Source string
	Span
	Strand     Strand
	Phase      int
	Score      float64
	HasScore   bool
	Parent     string
	Subparts   []Span
	Attributes map[string]string
}

// Set groups the features of one data source / method.
type Set struct {
	ID       string
	Name     string
	Style    string
	Features map[string]*Feature
}

// Block is a contiguous region of an alignment.
type Block struct {
	ID string
	Span
	DNA  string
	Sets map[string]*Set
}

// Alignment holds the blocks aligned to one reference.
type Alignment struct {
	ID     string
	Master bool
	Blocks map[string]*Block
}

// Context is the merged, server independent representation of loaded data.
type Context struct {
	Sequence   Sequence
	Master     *Alignment
	Alignments map[string]*Alignment
	Styles     StyleTable
	// Requested lists the feature sets asked for; empty means all.
	Requested []string
}

// CanonicalID normalises names used as map keys.
func CanonicalID(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// FeatureID builds the unique key of a feature within its set.
func FeatureID(name, typ string, strand Strand, start, end int) string {
	return CanonicalID(fmt.Sprintf("%s_%s_%s_%d_%d", name, typ, strand, start, end))
}

func blockID(seq Sequence) string {
	return CanonicalID(fmt.Sprintf("%s:%d-%d", seq.Name, seq.Start, seq.End))
}

// NewContext returns an empty context with a master alignment and one block
// covering seq.
func NewContext(seq Sequence) *Context {
	align := &Alignment{ID: CanonicalID(seq.Name), Master: true, Blocks: map[string]*Block{}}
	blk := &Block{ID: blockID(seq), Span: Span{Start: seq.Start, End: seq.End}, Sets: map[string]*Set{}}
	align.Blocks[blk.ID] = blk
	return &Context{
		Sequence:   seq,
		Master:     align,
		Alignments: map[string]*Alignment{align.ID: align},
		Styles:     StyleTable{},
	}
}

// SetSequence moves the context to seq. The master alignment follows the
// sequence name and is nil until data for the new sequence has been merged.
func (c *Context) SetSequence(seq Sequence) {
	c.Sequence = seq
	c.Master = c.Alignments[CanonicalID(seq.Name)]
}

// MasterBlock returns the block of the master alignment covering the context
// sequence.
func (c *Context) MasterBlock() *Block {
	if c.Master == nil {
		return nil
	}
	return c.Master.Blocks[blockID(c.Sequence)]
}

// Wants reports whether the named set was requested.
func (c *Context) Wants(set string) bool {
	if len(c.Requested) == 0 {
		return true
	}
	id := CanonicalID(set)
	for _, r := range c.Requested {
		if CanonicalID(r) == id {
			return true
		}
	}
	return false
}

// EnsureSet returns the named set of the block, creating it if needed.
func (b *Block) EnsureSet(name, style string) *Set {
	id := CanonicalID(name)
	if s := b.Sets[id]; s != nil {
		return s
	}
	if style == "" {
		style = name
	}
	s := &Set{ID: id, Name: name, Style: CanonicalID(style), Features: map[string]*Feature{}}
	b.Sets[id] = s
	return s
}

// Add inserts f unless a feature with the same ID exists. It reports whether f
// was added.
func (s *Set) Add(f *Feature) bool {
	if f.ID == "" {
		f.ID = FeatureID(f.Name, f.Type, f.Strand, f.Start, f.End)
	}
	if _, ok := s.Features[f.ID]; ok {
		return false
	}
	s.Features[f.ID] = f
	return true
}

// MergeStats summarises what a Merge added.
type MergeStats struct {
	NewSets     []string
	NewFeatures int
}

// Merge adds the contents of diff to c. Features already present are left
// untouched and diff itself is never modified; feature values are shared by
// reference.
func (c *Context) Merge(diff *Context) MergeStats {
	var st MergeStats
	if diff == nil {
		return st
	}
	if c.Alignments == nil {
		c.Alignments = map[string]*Alignment{}
	}
	if c.Styles == nil {
		c.Styles = StyleTable{}
	}
	c.Styles.Merge(diff.Styles)
	for aid, da := range diff.Alignments {
		a := c.Alignments[aid]
		if a == nil {
			a = &Alignment{ID: aid, Master: da.Master, Blocks: map[string]*Block{}}
			c.Alignments[aid] = a
		}
		if da.Master && (c.Master == nil || aid == CanonicalID(c.Sequence.Name)) {
			c.Master = a
		}
		for bid, db := range da.Blocks {
			b := a.Blocks[bid]
			if b == nil {
				b = &Block{ID: bid, Span: db.Span, Sets: map[string]*Set{}}
				a.Blocks[bid] = b
			}
			if b.DNA == "" && db.DNA != "" {
				b.DNA = db.DNA
			}
			for sid, ds := range db.Sets {
				s := b.Sets[sid]
				if s == nil {
					s = &Set{ID: sid, Name: ds.Name, Style: ds.Style, Features: make(map[string]*Feature, len(ds.Features))}
					b.Sets[sid] = s
					st.NewSets = append(st.NewSets, ds.Name)
				}
				for fid, f := range ds.Features {
					if _, ok := s.Features[fid]; ok {
						continue
					}
					s.Features[fid] = f
					st.NewFeatures++
				}
			}
		}
	}
	sort.Strings(st.NewSets)
	return st
}

// SetSummary is a per set feature count.
type SetSummary struct {
	Name     string
	Style    string
	Features int
}

// Summary lists the sets of all blocks, sorted by name.
func (c *Context) Summary() []SetSummary {
	byName := map[string]*SetSummary{}
	for _, a := range c.Alignments {
		for _, b := range a.Blocks {
			for _, s := range b.Sets {
				ss := byName[s.ID]
				if ss == nil {
					ss = &SetSummary{Name: s.Name, Style: s.Style}
					byName[s.ID] = ss
				}
				ss.Features += len(s.Features)
			}
		}
	}
	out := make([]SetSummary, 0, len(byName))
	for _, ss := range byName {
		out = append(out, *ss)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// FeatureCount returns the number of features in all blocks.
func (c *Context) FeatureCount() int {
	n := 0
	for _, a := range c.Alignments {
		for _, b := range a.Blocks {
			for _, s := range b.Sets {
				n += len(s.Features)
			}
		}
	}
	return n
}
