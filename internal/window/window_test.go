package window

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"zmapd/internal/feature"
	"zmapd/internal/view"
)

func context(t *testing.T, sets map[string]int) *feature.Context {
	t.Helper()
	c := feature.NewContext(feature.Sequence{Name: "chr1", Start: 1, End: 500})
	for name, n := range sets {
		s := c.MasterBlock().EnsureSet(name, "")
		for i := 0; i < n; i++ {
			s.Add(&feature.Feature{Name: name, Type: "gene", Span: feature.Span{Start: i*10 + 1, End: i*10 + 5}})
		}
	}
	return c
}

func TestSummary_DisplayResetDestroy(t *testing.T) {
	var logs bytes.Buffer
	w := NewSummary(zerolog.New(&logs), "z1", "v1")
	c := context(t, map[string]int{"genes": 2, "est": 1})
	w.DisplayData(c, c)

	want := Report{
		Displays: 1,
		Features: 3,
		Sets: []feature.SetSummary{
			{Name: "est", Style: "est", Features: 1},
			{Name: "genes", Style: "genes", Features: 2},
		},
	}
	if diff := cmp.Diff(want, w.Report()); diff != "" {
		t.Fatalf("report (-want +got):\n%s", diff)
	}
	if !strings.Contains(logs.String(), `"event":"display"`) || !strings.Contains(logs.String(), `"view":"v1"`) {
		t.Fatalf("display not logged: %s", logs.String())
	}

	w.Reset()
	if r := w.Report(); r.Features != 0 || len(r.Sets) != 0 || r.Displays != 1 {
		t.Fatalf("after reset: %+v", r)
	}
	w.Destroy()
	w.DisplayData(c, c)
	if r := w.Report(); !r.Destroyed || r.Displays != 1 {
		t.Fatalf("destroyed window kept displaying: %+v", r)
	}
}

func TestFactory(t *testing.T) {
	v := view.New(view.Config{Sequence: feature.Sequence{Name: "chr1"}})
	w := Factory(zerolog.Nop())("z", v)
	if _, ok := w.(*Summary); !ok {
		t.Fatalf("factory returned %T", w)
	}
}

func TestWriteSummary(t *testing.T) {
	c := context(t, map[string]int{"genes": 2})
	c.MasterBlock().DNA = "acgt"
	var out bytes.Buffer
	if err := WriteSummary(&out, c); err != nil {
		t.Fatalf("WriteSummary: %v", err)
	}
	got := out.String()
	for _, want := range []string{"FEATURESET", "genes", "chr1:1-500", "4 bp"} {
		if !strings.Contains(got, want) {
			t.Fatalf("summary missing %q:\n%s", want, got)
		}
	}
}

func TestText_KeepsLastRendering(t *testing.T) {
	var w Text
	c := context(t, map[string]int{"genes": 1})
	w.DisplayData(c, c)
	w.Destroy()
	if got := w.String(); !strings.Contains(got, "genes") {
		t.Fatalf("text lost after destroy:\n%s", got)
	}
	w.Reset()
	if w.String() != "" {
		t.Fatalf("reset kept %q", w.String())
	}
}
