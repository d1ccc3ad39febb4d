package redact

import (
	"strings"
	"testing"
)

func TestRedactDisabled(t *testing.T) {
	SetEnabled(false)
	in := "email a@b.com and phone +62 812 3456 7890"
	if got := Text(in); got != in {
		t.Fatalf("expected no redaction, got %q", got)
	}
}

func TestRedactEnabled(t *testing.T) {
	SetEnabled(true)
	defer SetEnabled(false)
	in := "email a@b.com and phone +62 812 3456 7890"
	got := Text(in)
	if got == in {
		t.Fatalf("expected redaction")
	}
	if want := "[REDACTED_EMAIL]"; !strings.Contains(got, want) {
		t.Fatalf("expected %q in output", want)
	}
	if want := "[REDACTED_PHONE]"; !strings.Contains(got, want) {
		t.Fatalf("expected %q in output", want)
	}
}

func TestClip(t *testing.T) {
	if got := Clip("  hello  ", 10); got != "hello" {
		t.Fatalf("expected trimmed text, got %q", got)
	}
	if got := Clip("abcdefghij", 4); got != "abcd..." {
		t.Fatalf("expected clipped text, got %q", got)
	}
}
