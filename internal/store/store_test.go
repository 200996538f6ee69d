package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"zmapd/internal/feature"
)

func openTemp(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state", "sessions.db")
	st, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return st, path
}

func TestPutListDelete(t *testing.T) {
	st, _ := openTemp(t)
	defer st.Close()
	a := Session{ID: "a", Sequences: []feature.Sequence{{Name: "chr1", Start: 1, End: 100}}, Created: time.Now().Add(-time.Hour)}
	b := Session{ID: "b", Sequences: []feature.Sequence{{Name: "chr2"}}}
	for _, s := range []Session{b, a} {
		if err := st.Put(s); err != nil {
			t.Fatalf("put: %v", err)
		}
	}
	got, err := st.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	ignore := cmpopts.IgnoreFields(Session{}, "Created", "Updated")
	want := []Session{a, b}
	if diff := cmp.Diff(want, got, ignore); diff != "" {
		t.Fatalf("list mismatch (-want +got):\n%s", diff)
	}
	if err := st.Delete("a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := st.Delete("missing"); err != nil {
		t.Fatalf("delete missing: %v", err)
	}
	if _, ok, _ := st.Get("a"); ok {
		t.Fatalf("a still present")
	}
	if s, ok, err := st.Get("b"); err != nil || !ok || s.Sequences[0].Name != "chr2" {
		t.Fatalf("get b: %+v %v %v", s, ok, err)
	}
}

func TestReopenKeepsSessions(t *testing.T) {
	st, path := openTemp(t)
	if err := st.Put(Session{ID: "x", Sequences: []feature.Sequence{{Name: "chrX"}}}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	st2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st2.Close()
	got, err := st2.List()
	if err != nil || len(got) != 1 || got[0].ID != "x" {
		t.Fatalf("after reopen: %+v %v", got, err)
	}
}

func TestPutRequiresID(t *testing.T) {
	st, _ := openTemp(t)
	defer st.Close()
	if err := st.Put(Session{}); err == nil {
		t.Fatalf("expected error")
	}
}
