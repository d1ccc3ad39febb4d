package deepgram

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/raihanmd/cakap/pkg/adapters/stt"
	"github.com/raihanmd/cakap/pkg/audio"
	"github.com/raihanmd/cakap/pkg/logging"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
)

// finalizeGrace is how long Finalize waits for in-flight final results
// still crossing the wire after the last audio frame.
const finalizeGrace = 200 * time.Millisecond

type Config struct {
	APIKey         string
	Model          string
	Language       string
	Encoding       string
	SampleRate     int
	Interim        bool
	UtteranceEndMS int
	SessionID      string
}

// Recognizer streams microphone audio to Deepgram's live transcription
// websocket and accumulates final transcript segments per turn.
type Recognizer struct {
	cfg    Config
	logger *slog.Logger

	ctx        context.Context
	cancel     context.CancelFunc
	dgClient   *client.WSCallback
	pipeReader *io.PipeReader
	pipeWriter *io.PipeWriter

	mu         sync.Mutex
	live       bool
	fatalFlag  bool
	metaLogged bool
	parts      []string

	events    chan stt.Event
	closeOnce sync.Once
}

func NewRecognizer(cfg Config) *Recognizer {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = audio.InputSampleRate
	}
	if cfg.Encoding == "" {
		cfg.Encoding = "linear16"
	}
	if cfg.Model == "" {
		cfg.Model = "nova-2"
	}
	return &Recognizer{
		cfg:    cfg,
		logger: logging.NewComponentLogger(slog.Default(), "deepgram_stt"),
		events: make(chan stt.Event, 256),
	}
}

func (r *Recognizer) Name() string { return "deepgram_streaming" }

func (r *Recognizer) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.pipeReader, r.pipeWriter = io.Pipe()

	clientOptions := &interfaces.ClientOptions{
		EnableKeepAlive: true,
	}
	transcriptOptions := &interfaces.LiveTranscriptionOptions{
		Model:          r.cfg.Model,
		Language:       r.cfg.Language,
		Encoding:       r.cfg.Encoding,
		SampleRate:     r.cfg.SampleRate,
		InterimResults: r.cfg.Interim,
		SmartFormat:    true,
	}
	if r.cfg.UtteranceEndMS > 0 {
		transcriptOptions.UtteranceEndMs = fmt.Sprintf("%d", r.cfg.UtteranceEndMS)
	}

	r.logger.Info("initializing deepgram connection",
		slog.String("session_id", r.cfg.SessionID),
		slog.String("model", r.cfg.Model),
		slog.Int("sample_rate", r.cfg.SampleRate))

	cb := &callback{parent: r}
	dgClient, err := client.NewWSUsingCallback(r.ctx, r.cfg.APIKey, clientOptions, transcriptOptions, cb)
	if err != nil {
		r.logger.Error("deepgram_client_create_error",
			slog.String("error", err.Error()),
			slog.String("session_id", r.cfg.SessionID))
		return err
	}
	r.dgClient = dgClient

	if connected := r.dgClient.Connect(); !connected {
		r.logger.Error("deepgram_connect_failed",
			slog.String("session_id", r.cfg.SessionID))
		return fmt.Errorf("deepgram connection failed")
	}

	r.mu.Lock()
	r.live = true
	r.mu.Unlock()
	r.logger.Info("deepgram_connected",
		slog.String("session_id", r.cfg.SessionID),
		slog.String("model", r.cfg.Model))

	go func() {
		if err := r.dgClient.Stream(r.pipeReader); err != nil && r.ctx.Err() == nil {
			r.logger.Error("deepgram_stream_error",
				slog.String("error", err.Error()),
				slog.String("session_id", r.cfg.SessionID))
			r.mu.Lock()
			r.live = false
			r.mu.Unlock()
		}
	}()
	return nil
}

func (r *Recognizer) Stop() error {
	r.logger.Info("closing deepgram connection",
		slog.String("session_id", r.cfg.SessionID))
	r.mu.Lock()
	r.live = false
	r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
	}
	if r.pipeWriter != nil {
		_ = r.pipeWriter.Close()
	}
	if r.dgClient != nil {
		r.dgClient.Stop()
	}
	r.closeOnce.Do(func() { close(r.events) })
	return nil
}

func (r *Recognizer) SendAudio(pcm []byte) error {
	if r.pipeWriter == nil {
		return fmt.Errorf("not started")
	}
	_, err := r.pipeWriter.Write(pcm)
	if err != nil {
		r.logger.Error("failed to send audio to deepgram",
			slog.String("error", err.Error()),
			slog.String("session_id", r.cfg.SessionID))
		r.mu.Lock()
		r.live = false
		r.mu.Unlock()
	}
	return err
}

// Finalize joins the accumulated final segments after a short grace period
// for results still in flight.
func (r *Recognizer) Finalize(ctx context.Context) (string, error) {
	timer := time.NewTimer(finalizeGrace)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return strings.Join(r.parts, " "), nil
}

func (r *Recognizer) ClearTranscript() {
	r.mu.Lock()
	r.parts = nil
	r.mu.Unlock()
}

func (r *Recognizer) Connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.live
}

func (r *Recognizer) Fatal() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fatalFlag
}

func (r *Recognizer) Events() <-chan stt.Event { return r.events }

func (r *Recognizer) emit(ev stt.Event) {
	select {
	case r.events <- ev:
	default:
		r.logger.Warn("deepgram_out_channel_full",
			slog.String("session_id", r.cfg.SessionID))
	}
}

// fatalDeepgramError reports whether an error code/message names an
// unrecoverable condition. Reconnecting with the same credentials cannot
// fix these.
func fatalDeepgramError(code, msg string) bool {
	combined := strings.ToLower(code + " " + msg)
	for _, marker := range []string{
		"auth", "unauthorized", "forbidden", "invalid credentials",
		"insufficient", "payment", "quota", "4401", "4403",
	} {
		if strings.Contains(combined, marker) {
			return true
		}
	}
	return false
}

// --- Callback Implementation ---

type callback struct {
	parent *Recognizer
}

func (c *callback) Open(or *msginterfaces.OpenResponse) error {
	c.parent.logger.Info("deepgram_connection_opened",
		slog.String("session_id", c.parent.cfg.SessionID))
	return nil
}

func (c *callback) Message(mr *msginterfaces.MessageResponse) error {
	if len(mr.Channel.Alternatives) == 0 {
		return nil
	}
	transcript := mr.Channel.Alternatives[0].Transcript
	if transcript == "" {
		return nil
	}
	isFinal := mr.IsFinal || mr.SpeechFinal

	c.parent.logger.Debug("transcript_received",
		slog.String("session_id", c.parent.cfg.SessionID),
		slog.Bool("is_final", isFinal))

	if isFinal {
		c.parent.mu.Lock()
		c.parent.parts = append(c.parent.parts, transcript)
		c.parent.mu.Unlock()
	}
	c.parent.emit(stt.Event{Transcript: transcript, IsFinal: isFinal})
	return nil
}

func (c *callback) Metadata(md *msginterfaces.MetadataResponse) error {
	if !c.parent.metaLogged {
		c.parent.metaLogged = true
		c.parent.logger.Info("deepgram_metadata_received",
			slog.String("session_id", c.parent.cfg.SessionID),
			slog.String("request_id", md.RequestID))
	}
	return nil
}

func (c *callback) SpeechStarted(ssr *msginterfaces.SpeechStartedResponse) error {
	c.parent.logger.Debug("speech_started_event",
		slog.String("session_id", c.parent.cfg.SessionID))
	return nil
}

func (c *callback) UtteranceEnd(ur *msginterfaces.UtteranceEndResponse) error {
	c.parent.logger.Debug("utterance_end_event",
		slog.String("session_id", c.parent.cfg.SessionID))
	return nil
}

func (c *callback) Close(cr *msginterfaces.CloseResponse) error {
	c.parent.logger.Info("deepgram_connection_closed",
		slog.String("session_id", c.parent.cfg.SessionID))
	c.parent.mu.Lock()
	c.parent.live = false
	c.parent.mu.Unlock()
	return nil
}

func (c *callback) Error(er *msginterfaces.ErrorResponse) error {
	c.parent.logger.Error("deepgram_error",
		slog.String("session_id", c.parent.cfg.SessionID),
		slog.String("error_code", er.ErrCode),
		slog.String("error_message", er.ErrMsg))
	c.parent.mu.Lock()
	c.parent.live = false
	if fatalDeepgramError(er.ErrCode, er.ErrMsg) {
		c.parent.fatalFlag = true
	}
	c.parent.mu.Unlock()
	c.parent.emit(stt.Event{Err: fmt.Errorf("deepgram: %s %s", er.ErrCode, er.ErrMsg)})
	return nil
}

func (c *callback) UnhandledEvent(byData []byte) error {
	c.parent.logger.Debug("deepgram_unhandled_event",
		slog.String("session_id", c.parent.cfg.SessionID))
	return nil
}

var _ stt.Recognizer = (*Recognizer)(nil)
