package session

import (
	"time"

	"github.com/raihanmd/cakap/pkg/agent"
)

// TranscriptEvent is a user or assistant transcript update.
type TranscriptEvent struct {
	Type      string    `json:"type"`
	Content   string    `json:"content"`
	IsFinal   bool      `json:"isFinal"`
	Timestamp time.Time `json:"timestamp"`
}

// AudioEvent carries one aligned chunk of synthesized audio.
type AudioEvent struct {
	Data       string `json:"data"` // base64 PCM16 mono
	SampleRate int    `json:"sampleRate"`
	TrackID    int64  `json:"trackId"`
}

// TrackStartEvent announces a new utterance about to be spoken.
type TrackStartEvent struct {
	TrackID int64  `json:"trackId"`
	Label   string `json:"label"`
	Text    string `json:"text"`
}

// Sink receives every event a session emits toward the transport layer.
// The fixed method set keeps the event vocabulary closed; implementations
// must not call back into the session synchronously.
type Sink interface {
	OnStateChange(state State)
	OnTranscript(ev TranscriptEvent)
	OnAudio(ev AudioEvent)
	OnTrackStart(ev TrackStartEvent)
	OnTrackComplete(trackID int64)
	OnToolStatus(ev agent.ToolStatus)
	OnMedia(ev agent.Media)
	OnConnected(sessionID string)
	OnDisconnected(sessionID string)
	OnError(err error)
}

// NoopSink discards every event.
type NoopSink struct{}

func (NoopSink) OnStateChange(State)           {}
func (NoopSink) OnTranscript(TranscriptEvent)  {}
func (NoopSink) OnAudio(AudioEvent)            {}
func (NoopSink) OnTrackStart(TrackStartEvent)  {}
func (NoopSink) OnTrackComplete(int64)         {}
func (NoopSink) OnToolStatus(agent.ToolStatus) {}
func (NoopSink) OnMedia(agent.Media)           {}
func (NoopSink) OnConnected(string)            {}
func (NoopSink) OnDisconnected(string)         {}
func (NoopSink) OnError(error)                 {}

var _ Sink = NoopSink{}
