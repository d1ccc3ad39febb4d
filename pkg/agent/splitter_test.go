package agent

import "testing"

func TestSplitterCutsAtTerminalPunctuation(t *testing.T) {
	s := NewSentenceSplitter(4)
	if got := s.AddToken("Halo, apa"); got != "" {
		t.Fatalf("expected no sentence yet, got %q", got)
	}
	got := s.AddToken(" kabar?")
	if got != "Halo, apa kabar?" {
		t.Fatalf("expected complete sentence, got %q", got)
	}
}

func TestSplitterHoldsShortFragments(t *testing.T) {
	s := NewSentenceSplitter(8)
	if got := s.AddToken("Ok."); got != "" {
		t.Fatalf("expected fragment held below min length, got %q", got)
	}
	if got := s.AddToken(" Lanjut ya."); got == "" {
		t.Fatalf("expected sentence once long enough")
	}
}

func TestSplitterFlushReturnsRemainder(t *testing.T) {
	s := NewSentenceSplitter(4)
	s.AddToken("tanpa titik akhir")
	if got := s.Flush(); got != "tanpa titik akhir" {
		t.Fatalf("expected remainder flushed, got %q", got)
	}
	if got := s.Flush(); got != "" {
		t.Fatalf("expected empty after flush, got %q", got)
	}
}
