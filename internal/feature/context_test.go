package feature

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func addFeature(t *testing.T, c *Context, set, name string, start, end int) *Feature {
	t.Helper()
	f := &Feature{Name: name, Type: "gene", Span: Span{Start: start, End: end}, Strand: StrandForward}
	if !c.MasterBlock().EnsureSet(set, "").Add(f) {
		t.Fatalf("duplicate feature %s", name)
	}
	return f
}

func TestMergeOnlyAddsAndLeavesDiffUntouched(t *testing.T) {
	seq := Sequence{Name: "chr1", Start: 1, End: 1000}
	view := NewContext(seq)
	orig := addFeature(t, view, "s1", "f1", 1, 10)

	diff := NewContext(seq)
	addFeature(t, diff, "s1", "f1", 1, 10)
	f2 := addFeature(t, diff, "s1", "f2", 20, 30)
	addFeature(t, diff, "s2", "f3", 40, 50)

	st := view.Merge(diff)
	if diff := cmp.Diff([]string{"s2"}, st.NewSets); diff != "" {
		t.Fatalf("new sets (-want +got):\n%s", diff)
	}
	if st.NewFeatures != 2 {
		t.Fatalf("new features=%d want 2", st.NewFeatures)
	}
	vs := view.MasterBlock().Sets["s1"]
	ds := diff.MasterBlock().Sets["s1"]
	if vs == ds {
		t.Fatalf("merge must not alias sets of the diff")
	}
	if len(ds.Features) != 2 {
		t.Fatalf("diff mutated: %d features", len(ds.Features))
	}
	if vs.Features[orig.ID] != orig {
		t.Fatalf("existing feature replaced")
	}
	if vs.Features[f2.ID] != f2 {
		t.Fatalf("merged feature should be shared by reference")
	}
	if view.FeatureCount() != 3 {
		t.Fatalf("feature count=%d", view.FeatureCount())
	}
}

func TestSummarySorted(t *testing.T) {
	c := NewContext(Sequence{Name: "chr1"})
	addFeature(t, c, "zeta", "a", 1, 2)
	addFeature(t, c, "alpha", "b", 1, 2)
	addFeature(t, c, "alpha", "c", 3, 4)
	want := []SetSummary{{Name: "alpha", Style: "alpha", Features: 2}, {Name: "zeta", Style: "zeta", Features: 1}}
	if diff := cmp.Diff(want, c.Summary()); diff != "" {
		t.Fatalf("summary (-want +got):\n%s", diff)
	}
}

func TestStyleInferModes(t *testing.T) {
	tbl := StyleTable{}
	tbl.Add(&Style{Name: "curated"})
	tbl.Add(&Style{Name: "wublastx_worm"})
	tbl.Add(&Style{Name: "child", Parent: "curated"})
	tbl.Add(&Style{Name: "repeats", Mode: ModeBasic})
	if tbl.HaveModes() {
		t.Fatalf("expected missing modes")
	}
	tbl.InferModes()
	if !tbl.HaveModes() {
		t.Fatalf("modes still missing")
	}
	cases := map[string]Mode{"curated": ModeTranscript, "wublastx_worm": ModeAlignment, "repeats": ModeBasic}
	for name, want := range cases {
		if s, _ := tbl.Get(name); s.Mode != want {
			t.Fatalf("%s mode=%q want %q", name, s.Mode, want)
		}
	}
}

func TestParseSequence(t *testing.T) {
	cases := []struct {
		in      string
		want    Sequence
		wantErr bool
	}{
		{in: "chr1", want: Sequence{Name: "chr1"}},
		{in: "chr1:1,000-2,000", want: Sequence{Name: "chr1", Start: 1000, End: 2000}},
		{in: "chr1:200-100", wantErr: true},
		{in: ":1-2", wantErr: true},
		{in: "chr1:x-2", wantErr: true},
	}
	for _, c := range cases {
		got, err := ParseSequence(c.in)
		if (err != nil) != c.wantErr {
			t.Fatalf("%q: err=%v wantErr=%v", c.in, err, c.wantErr)
		}
		if err == nil && got != c.want {
			t.Fatalf("%q: got %+v want %+v", c.in, got, c.want)
		}
	}
}

func TestSetSequenceFollowsMasterAlignment(t *testing.T) {
	c := NewContext(Sequence{Name: "chr1", Start: 1, End: 100})
	c.MasterBlock().DNA = "acgt"

	next := Sequence{Name: "chr2", Start: 1, End: 50}
	c.SetSequence(next)
	if c.MasterBlock() != nil {
		t.Fatalf("no data for chr2 yet")
	}
	diff := NewContext(next)
	diff.MasterBlock().DNA = "tttt"
	c.Merge(diff)
	if b := c.MasterBlock(); b == nil || b.DNA != "tttt" {
		t.Fatalf("master block after merge: %+v", b)
	}

	c.SetSequence(Sequence{Name: "chr1", Start: 1, End: 100})
	if b := c.MasterBlock(); b == nil || b.DNA != "acgt" {
		t.Fatalf("master block after switching back: %+v", b)
	}
}
