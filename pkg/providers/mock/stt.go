package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/raihanmd/cakap/pkg/adapters/stt"
)

type STTConfig struct {
	// Transcripts are returned in order, one per finalized turn.
	Transcripts []string
	StartErr    error
	Fatal       bool
}

// Recognizer is a deterministic recognizer for examples and tests: it
// ignores audio and replays scripted transcripts.
type Recognizer struct {
	cfg    STTConfig
	mu     sync.Mutex
	live   bool
	turn   int
	frames int
	events chan stt.Event
	once   sync.Once
}

func NewRecognizer(cfg STTConfig) *Recognizer {
	return &Recognizer{
		cfg:    cfg,
		events: make(chan stt.Event, 16),
	}
}

func (r *Recognizer) Name() string { return "mock_stt" }

func (r *Recognizer) Start(ctx context.Context) error {
	if r.cfg.StartErr != nil {
		return r.cfg.StartErr
	}
	r.mu.Lock()
	r.live = true
	r.mu.Unlock()
	return nil
}

func (r *Recognizer) Stop() error {
	r.mu.Lock()
	r.live = false
	r.mu.Unlock()
	r.once.Do(func() { close(r.events) })
	return nil
}

func (r *Recognizer) SendAudio(pcm []byte) error {
	r.mu.Lock()
	r.frames++
	r.mu.Unlock()
	return nil
}

func (r *Recognizer) Finalize(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.turn >= len(r.cfg.Transcripts) {
		return "", nil
	}
	text := r.cfg.Transcripts[r.turn]
	r.turn++
	return strings.TrimSpace(text), nil
}

func (r *Recognizer) ClearTranscript() {}

func (r *Recognizer) Connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.live
}

func (r *Recognizer) Fatal() bool { return r.cfg.Fatal }

func (r *Recognizer) Events() <-chan stt.Event { return r.events }

var _ stt.Recognizer = (*Recognizer)(nil)
