package idhash

import (
	"testing"
)

func TestComputeAttemptID(t *testing.T) {
	got := ComputeAttemptID("order-1", "pool-1", 250_000_000, 1704067234567)
	if len(got) != 64 {
		t.Fatalf("length = %d, want 64", len(got))
	}
	if again := ComputeAttemptID("order-1", "pool-1", 250_000_000, 1704067234567); again != got {
		t.Errorf("not deterministic: %s != %s", got, again)
	}
}

func TestComputeAttemptID_DifferentInputs(t *testing.T) {
	base := ComputeAttemptID("order", "pool", 100, 1000)

	variants := map[string]string{
		"order":   ComputeAttemptID("other", "pool", 100, 1000),
		"pool":    ComputeAttemptID("order", "other", 100, 1000),
		"slot":    ComputeAttemptID("order", "pool", 101, 1000),
		"started": ComputeAttemptID("order", "pool", 100, 1001),
	}
	for field, v := range variants {
		if v == base {
			t.Errorf("different %s should produce different hash", field)
		}
	}
}
