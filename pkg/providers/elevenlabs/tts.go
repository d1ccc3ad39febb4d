package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/raihanmd/cakap/pkg/adapters/tts"
	"github.com/raihanmd/cakap/pkg/audio"
	"github.com/raihanmd/cakap/pkg/configutil"
	"github.com/raihanmd/cakap/pkg/errorsx"
	"github.com/raihanmd/cakap/pkg/logging"
	"github.com/raihanmd/cakap/pkg/resilience"
)

type Config struct {
	APIKey       string
	VoiceID      string
	ModelID      string
	OutputFormat string
	BaseURL      string
	SampleRate   int
	AlignBytes   int
	SessionID    string
}

type voiceSettings struct {
	VoiceID         string  `mapstructure:"voice_id"`
	ModelID         string  `mapstructure:"model_id"`
	Stability       float64 `mapstructure:"stability"`
	SimilarityBoost float64 `mapstructure:"similarity_boost"`
	Speed           float64 `mapstructure:"speed"`
}

// Synthesizer speaks one utterance per websocket connection to the
// ElevenLabs stream-input endpoint. Audio arrives as JSON envelopes with
// base64 PCM; the chunker re-frames it into aligned playback chunks.
type Synthesizer struct {
	cfg    Config
	logger *slog.Logger
	dialer *websocket.Dialer

	mu    sync.Mutex
	voice voiceSettings
}

func New(cfg Config) *Synthesizer {
	if cfg.OutputFormat == "" {
		cfg.OutputFormat = "pcm_24000"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "wss://api.elevenlabs.io"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = audio.OutputSampleRate
	}
	if cfg.AlignBytes == 0 {
		cfg.AlignBytes = audio.DefaultAlignBytes
	}
	return &Synthesizer{
		cfg:    cfg,
		logger: logging.NewComponentLogger(slog.Default(), "elevenlabs_tts"),
		dialer: &websocket.Dialer{Proxy: http.ProxyFromEnvironment},
		voice: voiceSettings{
			VoiceID:         cfg.VoiceID,
			ModelID:         cfg.ModelID,
			Stability:       0.5,
			SimilarityBoost: 0.8,
		},
	}
}

func (s *Synthesizer) Name() string { return "elevenlabs_tts" }

func (s *Synthesizer) ConfigureVoice(settings map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return configutil.DecodeSettings(settings, &s.voice)
}

func (s *Synthesizer) Synthesize(ctx context.Context, text string, trackID int64, emit tts.EmitFunc) error {
	s.mu.Lock()
	voice := s.voice
	s.mu.Unlock()
	if s.cfg.APIKey == "" || voice.VoiceID == "" {
		return errors.New("missing elevenlabs config")
	}

	conn, err := s.dial(ctx, voice)
	if err != nil {
		return err
	}
	defer conn.Close()

	// Unblock the read loop when the track is interrupted.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	settings := map[string]any{
		"stability":        voice.Stability,
		"similarity_boost": voice.SimilarityBoost,
	}
	if voice.Speed > 0 {
		settings["speed"] = voice.Speed
	}
	init := map[string]any{
		"text":           " ",
		"voice_settings": settings,
		"generation_config": map[string]any{
			"chunk_length_schedule": []int{120, 160, 250, 290},
		},
	}
	if err := send(conn, init); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonTTSConnect)
	}
	if !strings.HasSuffix(text, " ") {
		text += " "
	}
	if err := send(conn, map[string]any{"text": text, "try_trigger_generation": true}); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonTTSStream)
	}
	// Empty text closes the generation.
	if err := send(conn, map[string]any{"text": ""}); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonTTSStream)
	}

	s.logger.Debug("stream opened",
		slog.String("session_id", s.cfg.SessionID),
		slog.Int64("track_id", trackID))

	chunker := audio.NewChunker(s.cfg.AlignBytes)
	for {
		_, data, rerr := conn.ReadMessage()
		if rerr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(rerr, websocket.CloseNormalClosure) || errors.Is(rerr, io.EOF) {
				break
			}
			return errorsx.Wrap(rerr, errorsx.ReasonTTSStream)
		}
		final, err := s.handleEnvelope(data, chunker, emit)
		if err != nil {
			return err
		}
		if final {
			break
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

func (s *Synthesizer) dial(ctx context.Context, voice voiceSettings) (*websocket.Conn, error) {
	base := s.cfg.BaseURL + "/v1/text-to-speech/" + voice.VoiceID + "/stream-input"
	q := url.Values{}
	if voice.ModelID != "" {
		q.Set("model_id", voice.ModelID)
	}
	q.Set("output_format", s.cfg.OutputFormat)
	q.Set("optimize_streaming_latency", "4")

	conn, resp, err := s.dialer.DialContext(ctx, base+"?"+q.Encode(), http.Header{
		"xi-api-key": []string{s.cfg.APIKey},
	})
	if err != nil {
		if resp != nil {
			switch resp.StatusCode {
			case http.StatusTooManyRequests:
				return nil, resilience.RateLimitError{Provider: "elevenlabs", Message: resp.Status}
			case http.StatusUnauthorized, http.StatusForbidden:
				return nil, resilience.FatalError{Provider: "elevenlabs", Message: resp.Status}
			}
		}
		return nil, errorsx.Wrap(err, errorsx.ReasonTTSConnect)
	}
	return conn, nil
}

// handleEnvelope decodes one websocket JSON message. Alignment metadata and
// other non-audio envelopes are skipped; isFinal ends the stream.
func (s *Synthesizer) handleEnvelope(data []byte, chunker *audio.Chunker, emit tts.EmitFunc) (bool, error) {
	var env struct {
		Audio       string `json:"audio"`
		AudioBase64 string `json:"audio_base_64"`
		IsFinal     *bool  `json:"isFinal"`
		Error       string `json:"error"`
		Message     string `json:"message"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		s.logger.Debug("unparseable envelope skipped",
			slog.String("session_id", s.cfg.SessionID))
		return false, nil
	}
	if env.Error != "" {
		return false, errorsx.Wrap(errors.New(env.Error+" "+env.Message), errorsx.ReasonTTSVendor)
	}
	b64 := env.Audio
	if b64 == "" {
		b64 = env.AudioBase64
	}
	if b64 != "" {
		raw, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return false, errorsx.Wrap(err, errorsx.ReasonTTSDecode)
		}
		for _, chunk := range chunker.Push(raw) {
			if err := emit(chunk); err != nil {
				return false, err
			}
		}
	}
	return env.IsFinal != nil && *env.IsFinal, nil
}

func send(conn *websocket.Conn, payload map[string]any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, b)
}

var _ tts.Synthesizer = (*Synthesizer)(nil)
