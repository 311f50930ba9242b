package ledger

import (
	"strings"
	"testing"
)

func TestFingerprintDeterministic(t *testing.T) {
	inputs := []string{"", "a", "hello world", strings.Repeat("block content ", 1000)}
	for _, in := range inputs {
		first := Fingerprint(in)
		if first == "" {
			t.Fatalf("empty fingerprint for input len=%d", len(in))
		}
		for i := 0; i < 3; i++ {
			if got := Fingerprint(in); got != first {
				t.Fatalf("fingerprint not stable for input len=%d: %q vs %q", len(in), got, first)
			}
		}
	}
}

func TestFingerprintEmptyString(t *testing.T) {
	got := Fingerprint("")
	if got == "" {
		t.Fatal("expected stable non-empty token for empty input")
	}
	if got != Fingerprint("") {
		t.Fatal("empty-string fingerprint not stable")
	}
}

func TestFingerprintDistinguishesContent(t *testing.T) {
	if Fingerprint("lesson v1") == Fingerprint("lesson v2") {
		t.Fatal("expected different tokens for different content")
	}
	// Same bytes, different lengths must differ via the length suffix.
	if Fingerprint("aa") == Fingerprint("a") {
		t.Fatal("expected length to be part of the token")
	}
}

func TestDiffMagnitudeZeroOnlyWhenSampledEqual(t *testing.T) {
	if got := DiffMagnitude("same", "same"); got != 0 {
		t.Fatalf("identical strings: want 0, got %d", got)
	}
	if got := DiffMagnitude("", ""); got != 0 {
		t.Fatalf("empty strings: want 0, got %d", got)
	}
	if got := DiffMagnitude("abc", "abd"); got <= 0 {
		t.Fatalf("changed byte: want > 0, got %d", got)
	}
	if got := DiffMagnitude("abc", "abcdef"); got != 3 {
		t.Fatalf("pure append: want 3, got %d", got)
	}
}

func TestDiffMagnitudeDeterministicSampling(t *testing.T) {
	oldContent := strings.Repeat("x", 100000)
	newContent := strings.Repeat("x", 50000) + strings.Repeat("y", 50000)
	first := DiffMagnitude(oldContent, newContent)
	if first <= 0 {
		t.Fatalf("half-changed large string: want > 0, got %d", first)
	}
	for i := 0; i < 3; i++ {
		if got := DiffMagnitude(oldContent, newContent); got != first {
			t.Fatalf("sampling not deterministic: %d vs %d", got, first)
		}
	}
}

func TestDiffMagnitudeLargeIdentical(t *testing.T) {
	content := strings.Repeat("paragraph ", 20000)
	if got := DiffMagnitude(content, content); got != 0 {
		t.Fatalf("large identical strings: want 0, got %d", got)
	}
}
