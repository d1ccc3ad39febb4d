package mock

import (
	"context"
	"encoding/binary"
	"math"

	"github.com/raihanmd/cakap/pkg/adapters/tts"
	"github.com/raihanmd/cakap/pkg/audio"
)

type TTSConfig struct {
	SampleRate int
	AlignBytes int
	// MillisPerChar scales utterance length with text length; zero uses 20.
	MillisPerChar int
}

// Synthesizer generates a deterministic sine tone whose duration tracks
// the text length, routed through the same chunker as real vendors.
type Synthesizer struct {
	cfg TTSConfig
}

func NewSynthesizer(cfg TTSConfig) *Synthesizer {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = audio.OutputSampleRate
	}
	if cfg.AlignBytes == 0 {
		cfg.AlignBytes = audio.DefaultAlignBytes
	}
	if cfg.MillisPerChar == 0 {
		cfg.MillisPerChar = 20
	}
	return &Synthesizer{cfg: cfg}
}

func (s *Synthesizer) Name() string { return "mock_tts" }

func (s *Synthesizer) ConfigureVoice(settings map[string]any) error { return nil }

func (s *Synthesizer) Synthesize(ctx context.Context, text string, trackID int64, emit tts.EmitFunc) error {
	samples := s.cfg.SampleRate * len(text) * s.cfg.MillisPerChar / 1000
	if samples == 0 {
		return nil
	}
	pcm := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		v := int16(3000 * math.Sin(2*math.Pi*440*float64(i)/float64(s.cfg.SampleRate)))
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(v))
	}

	chunker := audio.NewChunker(s.cfg.AlignBytes)
	for _, chunk := range chunker.Push(pcm) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := emit(chunk); err != nil {
			return err
		}
	}
	for _, chunk := range chunker.Flush() {
		if err := emit(chunk); err != nil {
			return err
		}
	}
	return nil
}

func (s *Synthesizer) Teardown() error { return nil }

var _ tts.Synthesizer = (*Synthesizer)(nil)
