package observers

import (
	"log/slog"
	"sync"
	"time"

	"github.com/raihanmd/cakap/pkg/metrics"
)

// LatencyObserver correlates per-session pipeline events into one latency
// log line per turn: transcript finalized → first agent sentence → first
// synthesized audio.
type LatencyObserver struct {
	mu     sync.Mutex
	turns  map[string]*turnTrace
	log    *slog.Logger
}

type turnTrace struct {
	finalized  time.Time
	firstSent  time.Time
	firstAudio time.Time
}

func NewLatencyObserver(log *slog.Logger) *LatencyObserver {
	if log == nil {
		log = slog.Default()
	}
	return &LatencyObserver{
		turns: make(map[string]*turnTrace),
		log:   log,
	}
}

func (o *LatencyObserver) RecordEvent(ev metrics.MetricsEvent) {
	sessionID := ""
	if ev.Tags != nil {
		sessionID = ev.Tags["session_id"]
	}
	if sessionID == "" {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	t := o.turns[sessionID]
	if t == nil {
		t = &turnTrace{}
		o.turns[sessionID] = t
	}
	switch ev.Name {
	case metrics.EventTurnFinalized:
		// A new turn restarts the trace.
		*t = turnTrace{finalized: ev.Time}
	case metrics.EventAgentFirstSent:
		if t.firstSent.IsZero() {
			t.firstSent = ev.Time
		}
	case metrics.EventFirstAudio:
		if t.firstAudio.IsZero() {
			t.firstAudio = ev.Time
			o.logTurnLocked(sessionID, t)
		}
	case metrics.EventInterrupt:
		delete(o.turns, sessionID)
	}
}

func (o *LatencyObserver) logTurnLocked(sessionID string, t *turnTrace) {
	o.log.Info("turn_latency",
		"session_id", sessionID,
		"agent_first_sentence_ms", durationMs(t.finalized, t.firstSent),
		"tts_first_audio_ms", durationMs(t.firstSent, t.firstAudio),
		"ttfb_ms", durationMs(t.finalized, t.firstAudio),
	)
}

func durationMs(a, b time.Time) int64 {
	if a.IsZero() || b.IsZero() {
		return -1
	}
	return b.Sub(a).Milliseconds()
}
