package utils

import (
	"strings"
	"testing"
)

func TestGenerateReference_Format(t *testing.T) {
	ref := GenerateReference()
	if !strings.HasPrefix(ref, "INV-") {
		t.Fatalf("expected INV- prefix, got %q", ref)
	}
	if len(ref) != len("INV-")+12 {
		t.Fatalf("expected 12 digits after prefix, got %q", ref)
	}
	for _, c := range ref[len("INV-"):] {
		if c < '0' || c > '9' {
			t.Fatalf("non-digit %q in reference %q", c, ref)
		}
	}
}

func TestGenerateReference_NoImmediateCollisions(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		ref := GenerateReference()
		if seen[ref] {
			t.Fatalf("duplicate reference %q after %d generations", ref, i)
		}
		seen[ref] = true
	}
}
