package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/raihanmd/cakap/pkg/adapters/tts"
	"github.com/raihanmd/cakap/pkg/audio"
	"github.com/raihanmd/cakap/pkg/configutil"
	"github.com/raihanmd/cakap/pkg/errorsx"
	"github.com/raihanmd/cakap/pkg/logging"
	"github.com/raihanmd/cakap/pkg/resilience"
)

// TTSConfig configures the Aura speech endpoint. The response is a WAV
// container around linear16 PCM; the chunker strips the header and emits
// aligned, fade-in adjusted chunks.
type TTSConfig struct {
	APIKey     string
	Model      string
	BaseURL    string
	SampleRate int
	AlignBytes int
	SessionID  string
	Client     *http.Client
}

type Synthesizer struct {
	cfg     TTSConfig
	logger  *slog.Logger
	breaker *resilience.CircuitBreaker

	mu    sync.Mutex
	model string
}

func NewSynthesizer(cfg TTSConfig) *Synthesizer {
	if cfg.Model == "" {
		cfg.Model = "aura-asteria-en"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.deepgram.com"
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
		cfg:     cfg,
		logger:  logging.NewComponentLogger(slog.Default(), "deepgram_tts"),
		breaker: resilience.NewCircuitBreaker(3, 30*time.Second),
		model:   cfg.Model,
	}
}

func (s *Synthesizer) Name() string { return "deepgram_aura" }

type auraVoiceSettings struct {
	Model string `mapstructure:"model"`
}

func (s *Synthesizer) ConfigureVoice(settings map[string]any) error {
	var vs auraVoiceSettings
	if err := configutil.DecodeSettings(settings, &vs); err != nil {
		return err
	}
	if vs.Model != "" {
		s.mu.Lock()
		s.model = vs.Model
		s.mu.Unlock()
	}
	return nil
}

func (s *Synthesizer) Synthesize(ctx context.Context, text string, trackID int64, emit tts.EmitFunc) error {
	if !s.breaker.Allow() {
		return resilience.RateLimitError{Provider: "deepgram", Message: "circuit open"}
	}

	s.mu.Lock()
	model := s.model
	s.mu.Unlock()

	q := url.Values{}
	q.Set("model", model)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(s.cfg.SampleRate))
	q.Set("container", "wav")
	endpoint := s.cfg.BaseURL + "/v1/speak?" + q.Encode()

	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return errorsx.Wrap(err, errorsx.ReasonTTSConnect)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Token "+s.cfg.APIKey)

	resp, err := s.cfg.Client.Do(req)
	if err != nil {
		s.breaker.OnError(err)
		return errorsx.Wrap(err, errorsx.ReasonTTSConnect)
	}
	defer resp.Body.Close()

	if err := classifyStatus("deepgram", resp); err != nil {
		s.breaker.OnError(err)
		return err
	}
	s.breaker.OnSuccess()

	s.logger.Debug("aura stream opened",
		slog.String("session_id", s.cfg.SessionID),
		slog.Int64("track_id", trackID),
		slog.String("model", model))

	chunker := audio.NewChunker(s.cfg.AlignBytes)
	buf := make([]byte, 4096)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			for _, chunk := range chunker.Push(buf[:n]) {
				if err := emit(chunk); err != nil {
					return err
				}
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return errorsx.Wrap(rerr, errorsx.ReasonTTSStream)
		}
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

// classifyStatus maps vendor HTTP failures onto the resilience error types
// so the session layer can tell a retryable stumble from a dead key.
func classifyStatus(provider string, resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		body, _ := io.ReadAll(resp.Body)
		return resilience.RateLimitError{Provider: provider, Message: string(body)}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden ||
		resp.StatusCode == http.StatusPaymentRequired:
		body, _ := io.ReadAll(resp.Body)
		return resilience.FatalError{Provider: provider, Message: string(body)}
	default:
		body, _ := io.ReadAll(resp.Body)
		return errorsx.Wrap(errors.New(string(body)), errorsx.ReasonTTSVendor)
	}
}

var _ tts.Synthesizer = (*Synthesizer)(nil)
