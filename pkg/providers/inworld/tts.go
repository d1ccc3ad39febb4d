package inworld

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/raihanmd/cakap/pkg/adapters/tts"
	"github.com/raihanmd/cakap/pkg/audio"
	"github.com/raihanmd/cakap/pkg/configutil"
	"github.com/raihanmd/cakap/pkg/errorsx"
	"github.com/raihanmd/cakap/pkg/logging"
	"github.com/raihanmd/cakap/pkg/resilience"
)

// maxLineBytes bounds one NDJSON line; audio envelopes carry base64 so
// lines run long.
const maxLineBytes = 4 << 20

type Config struct {
	APIKey     string
	VoiceID    string
	ModelID    string
	BaseURL    string
	SampleRate int
	AlignBytes int
	SessionID  string
	Client     *http.Client
}

type voiceSettings struct {
	VoiceID      string  `mapstructure:"voice_id"`
	ModelID      string  `mapstructure:"model_id"`
	SpeakingRate float64 `mapstructure:"speaking_rate"`
	Pitch        float64 `mapstructure:"pitch"`
}

// Synthesizer streams speech from Inworld's TTS endpoint. The response is
// newline-delimited JSON: result envelopes carrying base64 WAV-wrapped PCM
// plus optional usage metadata, or an embedded error envelope. Unparseable
// lines are skipped; the first audio envelope's WAV header is stripped by
// the chunker.
type Synthesizer struct {
	cfg    Config
	logger *slog.Logger

	mu    sync.Mutex
	voice voiceSettings
}

func New(cfg Config) *Synthesizer {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.inworld.ai"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = audio.OutputSampleRate
	}
	if cfg.AlignBytes == 0 {
		cfg.AlignBytes = audio.DefaultAlignBytes
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 60 * time.Second}
	}
	return &Synthesizer{
		cfg:    cfg,
		logger: logging.NewComponentLogger(slog.Default(), "inworld_tts"),
		voice: voiceSettings{
			VoiceID: cfg.VoiceID,
			ModelID: cfg.ModelID,
		},
	}
}

func (s *Synthesizer) Name() string { return "inworld_tts" }

func (s *Synthesizer) ConfigureVoice(settings map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return configutil.DecodeSettings(settings, &s.voice)
}

type streamLine struct {
	Result *struct {
		AudioContent string `json:"audioContent"`
		Usage        *struct {
			Characters      int `json:"characters"`
			ProcessedBytes  int `json:"processedBytes"`
			DurationSeconds int `json:"durationSeconds"`
		} `json:"usage"`
	} `json:"result"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (s *Synthesizer) Synthesize(ctx context.Context, text string, trackID int64, emit tts.EmitFunc) error {
	s.mu.Lock()
	voice := s.voice
	s.mu.Unlock()
	if voice.VoiceID == "" {
		return errors.New("missing inworld voice id")
	}

	payload := map[string]any{
		"text":    text,
		"voiceId": voice.VoiceID,
		"audioConfig": map[string]any{
			"audioEncoding":   "LINEAR16",
			"sampleRateHertz": s.cfg.SampleRate,
		},
	}
	if voice.ModelID != "" {
		payload["modelId"] = voice.ModelID
	}
	if voice.SpeakingRate > 0 {
		payload["audioConfig"].(map[string]any)["speakingRate"] = voice.SpeakingRate
	}
	if voice.Pitch != 0 {
		payload["audioConfig"].(map[string]any)["pitch"] = voice.Pitch
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.cfg.BaseURL+"/tts/v1/voice:stream", bytes.NewReader(body))
	if err != nil {
		return errorsx.Wrap(err, errorsx.ReasonTTSConnect)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Basic "+s.cfg.APIKey)

	resp, err := s.cfg.Client.Do(req)
	if err != nil {
		return errorsx.Wrap(err, errorsx.ReasonTTSConnect)
	}
	defer resp.Body.Close()
	if err := classifyStatus(resp); err != nil {
		return err
	}

	s.logger.Debug("stream opened",
		slog.String("session_id", s.cfg.SessionID),
		slog.Int64("track_id", trackID),
		slog.String("voice_id", voice.VoiceID))

	chunker := audio.NewChunker(s.cfg.AlignBytes)
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64<<10), maxLineBytes)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var env streamLine
		if err := json.Unmarshal(line, &env); err != nil {
			s.logger.Debug("unparseable line skipped",
				slog.String("session_id", s.cfg.SessionID))
			continue
		}
		if env.Error != nil {
			return errorsx.Wrap(
				fmt.Errorf("inworld: %d %s", env.Error.Code, env.Error.Message),
				errorsx.ReasonTTSVendor)
		}
		if env.Result == nil {
			continue
		}
		if env.Result.Usage != nil {
			s.logger.Debug("usage reported",
				slog.String("session_id", s.cfg.SessionID),
				slog.Int("characters", env.Result.Usage.Characters))
		}
		if env.Result.AudioContent == "" {
			continue
		}
		raw, err := base64.StdEncoding.DecodeString(env.Result.AudioContent)
		if err != nil {
			return errorsx.Wrap(err, errorsx.ReasonTTSDecode)
		}
		for _, chunk := range chunker.Push(raw) {
			if err := emit(chunk); err != nil {
				return err
			}
		}
	}
	if serr := scanner.Err(); serr != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errorsx.Wrap(serr, errorsx.ReasonTTSStream)
	}
	for _, chunk := range chunker.Flush() {
		if err := emit(chunk); err != nil {
			return err
		}
	}
	return nil
}

func (s *Synthesizer) Teardown() error {
	s.cfg.Client.CloseIdleConnections()
	return nil
}

func classifyStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		body, _ := io.ReadAll(resp.Body)
		return resilience.RateLimitError{Provider: "inworld", Message: string(body)}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden ||
		resp.StatusCode == http.StatusPaymentRequired:
		body, _ := io.ReadAll(resp.Body)
		return resilience.FatalError{Provider: "inworld", Message: string(body)}
	default:
		body, _ := io.ReadAll(resp.Body)
		return errorsx.Wrap(errors.New(string(body)), errorsx.ReasonTTSVendor)
	}
}

var _ tts.Synthesizer = (*Synthesizer)(nil)
