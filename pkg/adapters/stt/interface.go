package stt

import "context"

// Event is one item of a recognizer's result stream: either a transcript
// update or a transport error. Typed fields keep the event set closed.
type Event struct {
	Transcript string
	IsFinal    bool
	Err        error
}

// IsError reports whether the event carries an error instead of text.
func (e Event) IsError() bool { return e.Err != nil }

// Recognizer defines the contract for any streaming STT vendor
// implementation. Implementations track their own connection liveness and
// mark themselves fatal on unrecoverable auth/quota failures.
type Recognizer interface {
	// Name returns adapter name for logging/metrics.
	Name() string
	// Start opens the live recognition connection.
	Start(ctx context.Context) error
	// Stop tears the connection down.
	Stop() error
	// SendAudio forwards raw microphone bytes (16kHz mono PCM16).
	SendAudio(pcm []byte) error
	// Finalize returns the best-effort final transcript for the turn.
	Finalize(ctx context.Context) (string, error)
	// ClearTranscript discards accumulated transcript state.
	ClearTranscript()
	// Connected reports connection liveness.
	Connected() bool
	// Fatal reports an unrecoverable failure; fatal recognizers are never
	// reconnected.
	Fatal() bool
	// Events returns the transcript/error stream.
	Events() <-chan Event
}

// Config contains vendor-agnostic recognition configuration.
type Config struct {
	SessionID  string
	SampleRate int
	Language   string
	Interim    bool
}
