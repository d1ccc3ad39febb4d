package agent

import "strings"

// SentenceSplitter accumulates streamed tokens and cuts complete sentences
// at terminal punctuation, so a reply can be spoken sentence-by-sentence
// while the model is still generating.
type SentenceSplitter struct {
	sb     strings.Builder
	minLen int
}

// NewSentenceSplitter creates a splitter; sentences shorter than minLen
// keep accumulating (avoids speaking fragments like "Dr.").
func NewSentenceSplitter(minLen int) *SentenceSplitter {
	if minLen <= 0 {
		minLen = 8
	}
	return &SentenceSplitter{minLen: minLen}
}

// AddToken appends one streamed token and returns a completed sentence,
// or "" when the boundary has not been reached yet.
func (s *SentenceSplitter) AddToken(tok string) string {
	s.sb.WriteString(tok)
	text := s.sb.String()
	if !eosDetected(text) {
		return ""
	}
	out := strings.TrimSpace(text)
	if len(out) < s.minLen {
		return ""
	}
	s.sb.Reset()
	return out
}

// Flush returns whatever partial sentence remains.
func (s *SentenceSplitter) Flush() string {
	out := strings.TrimSpace(s.sb.String())
	s.sb.Reset()
	return out
}

func eosDetected(s string) bool {
	t := strings.TrimSpace(s)
	if len(t) == 0 {
		return false
	}
	if strings.HasSuffix(t, "...") {
		return len(t) >= 12
	}
	last := t[len(t)-1]
	return last == '.' || last == '!' || last == '?' || last == '\n'
}
