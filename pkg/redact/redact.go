package redact

import (
	"regexp"
	"strings"
	"sync/atomic"
)

var enabled atomic.Bool

var (
	emailRe  = regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`)
	phoneRe  = regexp.MustCompile(`\b\+?\d[\d\s\-]{7,}\d\b`)
	digitsRe = regexp.MustCompile(`\b\d{9,}\b`)
)

// SetEnabled toggles PII redaction for transcript/reply logging.
func SetEnabled(v bool) {
	enabled.Store(v)
}

// Enabled returns true when redaction is active.
func Enabled() bool {
	return enabled.Load()
}

// Text redacts emails, phone numbers and long digit runs when enabled.
func Text(in string) string {
	if !enabled.Load() || strings.TrimSpace(in) == "" {
		return in
	}
	out := emailRe.ReplaceAllString(in, "[REDACTED_EMAIL]")
	out = phoneRe.ReplaceAllString(out, "[REDACTED_PHONE]")
	out = digitsRe.ReplaceAllString(out, "[REDACTED_NUMBER]")
	return out
}

// Clip trims text for log lines so transcripts never flood the log stream.
func Clip(in string, max int) string {
	in = strings.TrimSpace(in)
	if max <= 0 || len(in) <= max {
		return in
	}
	return in[:max] + "..."
}
