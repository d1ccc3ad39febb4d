package ws

import (
	"time"

	"github.com/raihanmd/cakap/pkg/agent"
	"github.com/raihanmd/cakap/pkg/session"
)

// envelope is the wire format both directions. Type selects which fields
// are populated.
type envelope struct {
	Type string `json:"type"`

	// outbound
	SessionID  string         `json:"session_id,omitempty"`
	State      string         `json:"state,omitempty"`
	Content    string         `json:"content,omitempty"`
	Role       string         `json:"role,omitempty"`
	IsFinal    bool           `json:"is_final,omitempty"`
	SampleRate int            `json:"sample_rate,omitempty"`
	Label      string         `json:"label,omitempty"`
	Tool       string         `json:"tool,omitempty"`
	Status     string         `json:"status,omitempty"`
	Media      map[string]any `json:"media,omitempty"`
	Message    string         `json:"message,omitempty"`
	Timestamp  time.Time      `json:"timestamp,omitempty"`

	// both directions
	Data    string `json:"data,omitempty"`
	TrackID int64  `json:"track_id,omitempty"`

	// inbound
	Text  string `json:"text,omitempty"`
	Muted bool   `json:"muted,omitempty"`
}

// sink forwards session events to the websocket client as JSON envelopes.
// Every method only enqueues, never blocks, and never calls back into the
// session.
type sink struct {
	client    *client
	sessionID string
}

func (s *sink) OnStateChange(st session.State) {
	s.client.enqueue(envelope{Type: "state", State: st.String()})
}

func (s *sink) OnTranscript(ev session.TranscriptEvent) {
	s.client.enqueue(envelope{
		Type:      "transcript",
		Role:      ev.Type,
		Content:   ev.Content,
		IsFinal:   ev.IsFinal,
		Timestamp: ev.Timestamp,
	})
}

func (s *sink) OnAudio(ev session.AudioEvent) {
	s.client.enqueue(envelope{
		Type:       "audio",
		Data:       ev.Data,
		SampleRate: ev.SampleRate,
		TrackID:    ev.TrackID,
	})
}

func (s *sink) OnTrackStart(ev session.TrackStartEvent) {
	s.client.enqueue(envelope{
		Type:    "track_start",
		TrackID: ev.TrackID,
		Label:   ev.Label,
		Content: ev.Text,
	})
}

func (s *sink) OnTrackComplete(trackID int64) {
	s.client.enqueue(envelope{Type: "track_complete", TrackID: trackID})
}

func (s *sink) OnToolStatus(ev agent.ToolStatus) {
	s.client.enqueue(envelope{Type: "tool_status", Tool: ev.Tool, Status: ev.Status})
}

func (s *sink) OnMedia(ev agent.Media) {
	s.client.enqueue(envelope{
		Type:  "media",
		Media: map[string]any{"media_type": ev.Type, "url": ev.URL, "payload": ev.Payload},
	})
}

func (s *sink) OnConnected(sessionID string) {
	s.client.enqueue(envelope{Type: "connected", SessionID: sessionID})
}

func (s *sink) OnDisconnected(sessionID string) {
	s.client.enqueue(envelope{Type: "disconnected", SessionID: sessionID})
}

func (s *sink) OnError(err error) {
	s.client.enqueue(envelope{Type: "error", Message: err.Error()})
}

var _ session.Sink = (*sink)(nil)
