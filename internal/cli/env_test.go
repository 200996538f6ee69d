package cli

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestEnvStr(t *testing.T) {
	key := "ZMAPD_TEST_ENV_STR"
	t.Setenv(key, "")
	if got := envStr(key, "def"); got != "def" {
		t.Fatalf("envStr default: got %q", got)
	}
	t.Setenv(key, "val")
	if got := envStr(key, "def"); got != "val" {
		t.Fatalf("envStr set: got %q", got)
	}
}

func TestEnvBool(t *testing.T) {
	key := "ZMAPD_TEST_ENV_BOOL"
	t.Setenv(key, "")
	if got := envBool(key, true); !got {
		t.Fatalf("envBool default true -> false")
	}
	for _, v := range []string{"1", "true", "YES"} {
		t.Setenv(key, v)
		if got := envBool(key, false); !got {
			t.Fatalf("envBool %s -> false", v)
		}
	}
	t.Setenv(key, "no")
	if got := envBool(key, true); got {
		t.Fatalf("envBool no -> true")
	}
}

func TestEnvInt(t *testing.T) {
	key := "ZMAPD_TEST_ENV_INT"
	t.Setenv(key, "42")
	if got := envInt(key, 7); got != 42 {
		t.Fatalf("envInt: got %d", got)
	}
	t.Setenv(key, "x")
	if got := envInt(key, 7); got != 7 {
		t.Fatalf("envInt invalid: got %d", got)
	}
}

func TestSplitCSV(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"a,b,c", []string{"a", "b", "c"}},
		{" a , b , c ", []string{"a", "b", "c"}},
		{"a,,c", []string{"a", "c"}},
		{"", nil},
	}
	for _, c := range cases {
		if diff := cmp.Diff(c.want, splitCSV(c.in)); diff != "" {
			t.Fatalf("%q (-want +got):\n%s", c.in, diff)
		}
	}
}
