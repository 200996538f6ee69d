package httpapi

import (
	"testing"
	"time"
)

func TestSetMaxBodyBytes_DefaultWhenNonPositive(t *testing.T) {
	SetMaxBodyBytes(-1)
	if maxBodyBytes != 1<<20 {
		t.Fatalf("expected default 1MiB, got %d", maxBodyBytes)
	}
	SetMaxBodyBytes(0)
	if maxBodyBytes != 1<<20 {
		t.Fatalf("expected default 1MiB on zero, got %d", maxBodyBytes)
	}
}

func TestSetMaxBodyBytes_PositiveSetsValue(t *testing.T) {
	SetMaxBodyBytes(1234)
	defer SetMaxBodyBytes(0)
	if maxBodyBytes != 1234 {
		t.Fatalf("expected 1234, got %d", maxBodyBytes)
	}
}

func TestSetCommandTimeout_NormalizesNonPositive(t *testing.T) {
	SetCommandTimeout(-5)
	if commandTimeout != 30*time.Second {
		t.Fatalf("expected default, got %s", commandTimeout)
	}
	SetCommandTimeout(3 * time.Second)
	defer SetCommandTimeout(0)
	if commandTimeout != 3*time.Second {
		t.Fatalf("expected 3s, got %s", commandTimeout)
	}
}
