package metrics

import "time"

type MetricsEvent struct {
	Name   string
	Time   time.Time
	Value  float64
	Tags   map[string]string
	Fields map[string]any
}

type Observer interface {
	RecordEvent(ev MetricsEvent)
}

type NoopObserver struct{}

func (NoopObserver) RecordEvent(MetricsEvent) {}

// Event names recorded by the session engine.
const (
	EventTurnFinalized  = "turn_finalized"
	EventAgentFirstSent = "agent_first_sentence"
	EventFirstAudio     = "tts_first_audio"
	EventTrackComplete  = "track_complete"
	EventTrackTimeout   = "track_timeout"
	EventInterrupt      = "interrupt"
	EventSTTReconnect   = "stt_reconnect"
)
