package tts

import "context"

// EmitFunc receives one aligned PCM16 chunk of synthesized audio.
// Returning an error aborts the vendor stream; the adapter must stop
// emitting and surface the error from Synthesize.
type EmitFunc func(pcm []byte) error

// Synthesizer defines the contract for any TTS vendor implementation.
// Adapters own the vendor wire format: they decode network chunks to raw
// PCM16 mono samples and emit only whole playback-aligned chunks, with the
// first chunk of every track fade-in adjusted.
type Synthesizer interface {
	// Name returns adapter name for logging/metrics.
	Name() string
	// ConfigureVoice applies provider-specific voice settings.
	ConfigureVoice(settings map[string]any) error
	// Synthesize streams speech for text, invoking emit per aligned chunk.
	// It returns once the vendor stream is drained, aborted via ctx, or
	// failed. trackID identifies the utterance for logging.
	Synthesize(ctx context.Context, text string, trackID int64, emit EmitFunc) error
	// Teardown releases vendor resources.
	Teardown() error
}

// Config contains vendor-agnostic synthesis configuration.
type Config struct {
	SessionID  string
	SampleRate int
	AlignBytes int
}
