package session

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/raihanmd/cakap/pkg/adapters/stt"
	"github.com/raihanmd/cakap/pkg/adapters/tts"
	"github.com/raihanmd/cakap/pkg/agent"
	"github.com/raihanmd/cakap/pkg/audio"
	"github.com/raihanmd/cakap/pkg/errorsx"
	"github.com/raihanmd/cakap/pkg/logging"
	"github.com/raihanmd/cakap/pkg/metrics"
	"github.com/raihanmd/cakap/pkg/redact"
)

const (
	// DefaultInterUtterancePause separates consecutive tracks so audio does
	// not run together at the client.
	DefaultInterUtterancePause = 400 * time.Millisecond
	// DefaultTrackTimeout is the fail-open bound on waiting for a playback
	// acknowledgement.
	DefaultTrackTimeout = 10 * time.Second
	// DefaultMaxHistory bounds the conversation history, oldest evicted first.
	DefaultMaxHistory = 100
)

// Config tunes one session. Zero values select the defaults.
type Config struct {
	ID                  string
	SampleRate          int
	InterUtterancePause time.Duration
	TrackTimeout        time.Duration
	MaxReconnects       int
	MaxHistory          int
}

// Deps are the collaborators a session orchestrates. Recognizer is a
// factory because recognition connections are re-created on reconnect.
type Deps struct {
	Recognizer  func() stt.Recognizer
	Synthesizer tts.Synthesizer
	Agent       agent.Agent
	Sink        Sink
	Observer    metrics.Observer
	Logger      *slog.Logger
}

// ConnectConfig carries per-connection settings.
type ConnectConfig struct {
	EntityID string
	Voice    map[string]any
	Muted    bool
}

// Session is the per-user voice turn pipeline: microphone audio in,
// transcripts to the agent, the agent's streamed reply synthesized and
// shipped out track by track. All session state is guarded by one mutex;
// the only suspension points are network I/O and the fixed pauses, so
// interrupt can cut in between any two of them.
type Session struct {
	cfg  Config
	deps Deps
	log  *slog.Logger

	recog *recogManager

	mu            sync.Mutex
	ctx           context.Context
	cancel        context.CancelFunc
	gen           uint64
	connected     bool
	muted         bool
	state         State
	entityID      string
	history       []agent.Turn
	sentenceQueue []queueItem
	pendingBatch  []string
	firstSentence bool
	speaking      bool
	processing    bool
	streaming     bool
	agentCancel   context.CancelFunc
	synthCancel   context.CancelFunc
	nextTrackID   int64
	chunkSeq      int
	fillerSeq     int
	waiters       *waiterTable
}

// New creates a disconnected session.
func New(cfg Config, deps Deps) *Session {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = audio.OutputSampleRate
	}
	if cfg.InterUtterancePause <= 0 {
		cfg.InterUtterancePause = DefaultInterUtterancePause
	}
	if cfg.TrackTimeout <= 0 {
		cfg.TrackTimeout = DefaultTrackTimeout
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = DefaultMaxHistory
	}
	if deps.Sink == nil {
		deps.Sink = NoopSink{}
	}
	if deps.Observer == nil {
		deps.Observer = metrics.NoopObserver{}
	}
	base := deps.Logger
	if base == nil {
		base = slog.Default()
	}
	return &Session{
		cfg:  cfg,
		deps: deps,
		log: logging.NewComponentLogger(base, "session").With(
			slog.String("session_id", cfg.ID)),
		waiters: newWaiterTable(),
	}
}

// Connect applies voice settings, opens the recognition connection and
// moves the session to idle.
func (s *Session) Connect(ctx context.Context, cc ConnectConfig) error {
	s.mu.Lock()
	if s.connected {
		s.mu.Unlock()
		return errors.New("session already connected")
	}
	s.mu.Unlock()

	if len(cc.Voice) > 0 && s.deps.Synthesizer != nil {
		if err := s.deps.Synthesizer.ConfigureVoice(cc.Voice); err != nil {
			return errorsx.Wrap(err, errorsx.ReasonTTSConnect)
		}
	}

	base, cancel := context.WithCancel(context.Background())
	recog := newRecogManager(s.deps.Recognizer, s.cfg.MaxReconnects, s.handleRecogEvent, s.log)
	if err := recog.start(ctx); err != nil {
		cancel()
		return err
	}

	s.mu.Lock()
	s.ctx = base
	s.cancel = cancel
	s.recog = recog
	s.connected = true
	s.muted = cc.Muted
	s.entityID = cc.EntityID
	s.firstSentence = true
	s.state = StateIdle
	s.mu.Unlock()

	s.log.Info("session connected",
		slog.String("entity_id", cc.EntityID))
	s.deps.Sink.OnConnected(s.cfg.ID)
	s.deps.Sink.OnStateChange(StateIdle)
	return nil
}

// Disconnect aborts everything in flight, tears down providers and clears
// history. Safe to call repeatedly.
func (s *Session) Disconnect() {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return
	}
	s.abortLocked()
	s.connected = false
	s.history = nil
	recog := s.recog
	s.recog = nil
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if recog != nil {
		_ = recog.stop()
	}
	if s.deps.Synthesizer != nil {
		_ = s.deps.Synthesizer.Teardown()
	}
	s.log.Info("session disconnected")
	s.deps.Sink.OnDisconnected(s.cfg.ID)
}

// SendAudio forwards one microphone frame (16kHz mono PCM16). No-op while
// muted, disconnected or processing. The first frame after idle moves the
// session to listening.
func (s *Session) SendAudio(frame []byte) {
	s.mu.Lock()
	if !s.connected || s.muted || s.processing {
		s.mu.Unlock()
		return
	}
	changed := false
	if s.state == StateIdle {
		s.state = StateListening
		changed = true
	}
	ctx := s.ctx
	recog := s.recog
	s.mu.Unlock()

	if changed {
		s.deps.Sink.OnStateChange(StateListening)
	}
	if err := recog.sendAudio(ctx, frame); err != nil {
		s.log.Debug("mic forward failed",
			slog.String("reason_code", string(errorsx.Reason(err))),
			slog.String("error", err.Error()))
	}
}

// ProcessBufferedAudio finalizes the recognizer transcript and hands the
// user turn to the agent. The caller invokes it once the user's turn ends.
// At most one call runs at a time; overlapping calls are no-ops.
func (s *Session) ProcessBufferedAudio(ctx context.Context) {
	s.mu.Lock()
	if !s.connected || s.processing {
		s.mu.Unlock()
		return
	}
	s.processing = true
	gen := s.gen
	s.state = StateProcessing
	recog := s.recog
	s.mu.Unlock()
	s.deps.Sink.OnStateChange(StateProcessing)

	text, err := recog.finalize(ctx)
	recog.clearTranscript()
	if err != nil {
		s.log.Warn("transcript finalize failed",
			slog.String("reason_code", string(errorsx.Reason(err))),
			slog.String("error", err.Error()))
	}
	text = strings.TrimSpace(text)
	if text == "" {
		s.releaseToIdle(gen)
		return
	}
	s.process(ctx, gen, text)
}

// SendText injects a typed user turn, bypassing recognition.
func (s *Session) SendText(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	s.mu.Lock()
	if !s.connected || s.processing {
		s.mu.Unlock()
		return
	}
	s.processing = true
	gen := s.gen
	s.state = StateProcessing
	ctx := s.ctx
	s.mu.Unlock()
	s.deps.Sink.OnStateChange(StateProcessing)
	s.process(ctx, gen, text)
}

// Interrupt is the barge-in entry point: cancel the agent stream, drop all
// queued speech, force-resolve every track waiter and fall back to idle.
// Idempotent and safe from any state, including mid-drain.
func (s *Session) Interrupt() {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return
	}
	resolved := s.abortLocked()
	ctx := s.ctx
	recog := s.recog
	s.mu.Unlock()

	if recog != nil {
		go recog.reset(ctx)
	}
	s.observe(metrics.EventInterrupt, nil)
	s.log.Info("session interrupted",
		slog.Int("waiters_resolved", resolved))
	s.deps.Sink.OnStateChange(StateIdle)
}

// SetMuted toggles microphone forwarding.
func (s *Session) SetMuted(muted bool) {
	s.mu.Lock()
	s.muted = muted
	s.mu.Unlock()
}

// TrackPlaybackComplete is the transport's acknowledgement that a track
// finished playing at the client. Unknown ids are ignored.
func (s *Session) TrackPlaybackComplete(trackID int64) {
	if s.waiters.Resolve(trackID) {
		s.log.Debug("track playback acknowledged",
			slog.Int64("track_id", trackID))
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connected reports whether the session is live.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// History returns a copy of the bounded conversation history.
func (s *Session) History() []agent.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]agent.Turn, len(s.history))
	copy(out, s.history)
	return out
}

// process hands one finalized user turn to the agent, streaming when the
// agent supports it and falling back to a synchronous query otherwise.
func (s *Session) process(ctx context.Context, gen uint64, text string) {
	s.observe(metrics.EventTurnFinalized, nil)

	s.mu.Lock()
	if s.gen != gen || !s.connected {
		s.mu.Unlock()
		return
	}
	s.appendHistoryLocked(agent.RoleUser, text)
	hist := make([]agent.Turn, len(s.history))
	copy(hist, s.history)
	entityID := s.entityID
	s.mu.Unlock()

	s.deps.Sink.OnTranscript(TranscriptEvent{
		Type:      "user",
		Content:   text,
		IsFinal:   true,
		Timestamp: time.Now(),
	})
	s.log.Info("user turn",
		slog.String("text", redact.Clip(redact.Text(text), 120)))

	if streamer, ok := s.deps.Agent.(agent.Streamer); ok {
		s.mu.Lock()
		if s.gen != gen {
			s.mu.Unlock()
			return
		}
		streamCtx, cancel := context.WithCancel(s.ctx)
		s.agentCancel = cancel
		s.streaming = true
		s.firstSentence = true
		s.mu.Unlock()

		h := &streamHandle{s: s, gen: gen}
		go func() {
			if err := streamer.QueryStreaming(streamCtx, text, entityID, hist, h); err != nil {
				s.streamError(gen, err)
			}
		}()
		return
	}

	res, err := s.deps.Agent.Query(ctx, text, entityID, hist)
	if err != nil {
		s.streamError(gen, errorsx.Wrap(err, errorsx.ReasonAgentQuery))
		return
	}
	reply := strings.TrimSpace(res.Text)
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.processing = false
	if reply == "" {
		idle := s.idleTransitionLocked()
		s.mu.Unlock()
		if idle {
			s.deps.Sink.OnStateChange(StateIdle)
		}
		return
	}
	s.appendHistoryLocked(agent.RoleAssistant, reply)
	s.sentenceQueue = append(s.sentenceQueue, queueItem{text: reply, kind: kindFull})
	s.maybeStartDrainLocked()
	s.mu.Unlock()

	s.deps.Sink.OnTranscript(TranscriptEvent{
		Type:      "assistant",
		Content:   reply,
		IsFinal:   true,
		Timestamp: time.Now(),
	})
}

// streamHandle is the agent.StreamHandler given to one streaming query.
// It pins every callback to the generation that launched the stream, so a
// cancelled stream's late events cannot touch a newer turn.
type streamHandle struct {
	s   *Session
	gen uint64
}

func (h *streamHandle) OnSentence(text string) { h.s.onSentence(h.gen, text) }

func (h *streamHandle) OnFiller(text string) { h.s.onFiller(h.gen, text) }

func (h *streamHandle) OnToolStatus(ev agent.ToolStatus) { h.s.onToolStatus(h.gen, ev) }

func (h *streamHandle) OnThinking(active bool) { h.s.onThinking(active) }

func (h *streamHandle) OnMedia(ev agent.Media) { h.s.onMedia(h.gen, ev) }

func (h *streamHandle) OnComplete(fullText string) { h.s.onComplete(h.gen, fullText) }

func (h *streamHandle) OnError(err error) { h.s.streamError(h.gen, err) }

// onSentence: the first sentence of a reply bypasses batching for minimal
// time-to-first-audio; later sentences join the pending batch and flush
// once nothing is speaking.
func (s *Session) onSentence(gen uint64, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	s.mu.Lock()
	if s.gen != gen || !s.streaming {
		s.mu.Unlock()
		return
	}
	first := s.firstSentence
	if first {
		s.firstSentence = false
		s.sentenceQueue = append(s.sentenceQueue, queueItem{text: text, kind: kindChunk})
		s.maybeStartDrainLocked()
	} else {
		s.pendingBatch = append(s.pendingBatch, text)
		if !s.speaking {
			s.flushPendingLocked()
			s.maybeStartDrainLocked()
		}
	}
	s.mu.Unlock()

	if first {
		s.observe(metrics.EventAgentFirstSent, nil)
	}
}

// onFiller: fillers are spoken only into silence. If anything is queued,
// batched or speaking they are dropped so they never interrupt substantive
// content.
func (s *Session) onFiller(gen uint64, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	s.mu.Lock()
	if s.gen != gen || !s.streaming || s.speaking || len(s.sentenceQueue) > 0 || len(s.pendingBatch) > 0 {
		s.mu.Unlock()
		return
	}
	s.sentenceQueue = append(s.sentenceQueue, queueItem{text: text, kind: kindFiller})
	s.maybeStartDrainLocked()
	s.mu.Unlock()
}

func (s *Session) onToolStatus(gen uint64, ev agent.ToolStatus) {
	s.mu.Lock()
	stale := s.gen != gen
	s.mu.Unlock()
	if stale {
		return
	}
	s.deps.Sink.OnToolStatus(ev)
}

func (s *Session) onThinking(active bool) {
	s.log.Debug("agent thinking",
		slog.Bool("active", active))
}

func (s *Session) onMedia(gen uint64, ev agent.Media) {
	s.mu.Lock()
	stale := s.gen != gen
	s.mu.Unlock()
	if stale {
		return
	}
	s.deps.Sink.OnMedia(ev)
}

// onComplete flushes the remaining batch, records the assistant turn and
// lets the drain loop return to idle once the queue empties.
func (s *Session) onComplete(gen uint64, fullText string) {
	fullText = strings.TrimSpace(fullText)
	s.mu.Lock()
	if s.gen != gen || !s.streaming {
		s.mu.Unlock()
		return
	}
	s.streaming = false
	s.processing = false
	s.agentCancel = nil
	s.flushPendingLocked()
	s.maybeStartDrainLocked()
	if fullText != "" {
		s.appendHistoryLocked(agent.RoleAssistant, fullText)
	}
	idle := s.idleTransitionLocked()
	s.mu.Unlock()

	if fullText != "" {
		s.deps.Sink.OnTranscript(TranscriptEvent{
			Type:      "assistant",
			Content:   fullText,
			IsFinal:   true,
			Timestamp: time.Now(),
		})
	}
	if idle {
		s.deps.Sink.OnStateChange(StateIdle)
	}
}

// streamError handles a failed agent turn: abort processing, surface the
// error and force idle. The client never sees a silent hang. Cancellation
// is not a failure: a barge-in cancels the stream, and agents that return
// ctx.Err() land here, so context.Canceled is discarded silently. Errors
// from a stale generation are likewise dropped since interrupt already
// tore that turn down.
func (s *Session) streamError(gen uint64, err error) {
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	s.mu.Lock()
	if !s.connected || s.gen != gen {
		s.mu.Unlock()
		return
	}
	active := s.streaming || s.processing || s.speaking
	if !active {
		s.mu.Unlock()
		s.deps.Sink.OnError(errorsx.Wrap(err, errorsx.ReasonAgentStream))
		return
	}
	s.abortLocked()
	s.mu.Unlock()

	s.log.Error("agent stream failed",
		slog.String("reason_code", string(errorsx.Reason(errorsx.Wrap(err, errorsx.ReasonAgentStream)))),
		slog.String("error", err.Error()))
	s.deps.Sink.OnError(errorsx.Wrap(err, errorsx.ReasonAgentStream))
	s.deps.Sink.OnStateChange(StateIdle)
}

// drain is the single-flight playback loop: one track at a time, playback
// acknowledgement awaited fail-open, pending batch flushed with priority
// after every track. gen pins the loop to the interrupt generation that
// started it; any mismatch means the output must be discarded.
func (s *Session) drain(gen uint64) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.gen == gen {
			s.speaking = false
		}
		s.mu.Unlock()
	}()

	for {
		s.mu.Lock()
		if s.gen != gen || !s.connected {
			s.mu.Unlock()
			return
		}
		if len(s.sentenceQueue) == 0 {
			s.speaking = false
			idle := s.idleTransitionLocked()
			s.mu.Unlock()
			if idle {
				s.deps.Sink.OnStateChange(StateIdle)
			}
			return
		}
		item := s.sentenceQueue[0]
		s.sentenceQueue = s.sentenceQueue[1:]
		s.nextTrackID++
		id := s.nextTrackID
		label := s.labelLocked(item.kind)
		stateChanged := s.state != StateSpeaking
		s.state = StateSpeaking
		wait := s.waiters.Begin(id)
		synthCtx, cancel := context.WithCancel(ctx)
		s.synthCancel = cancel
		s.mu.Unlock()

		if stateChanged {
			s.deps.Sink.OnStateChange(StateSpeaking)
		}
		s.deps.Sink.OnTrackStart(TrackStartEvent{TrackID: id, Label: label, Text: item.text})
		s.log.Info("track start",
			slog.Int64("track_id", id),
			slog.String("label", label),
			slog.String("text", redact.Clip(redact.Text(item.text), 120)))

		err := s.synthesizeTrack(synthCtx, item.text, id)
		cancel()
		if err != nil {
			s.waiters.Resolve(id)
			if errors.Is(err, context.Canceled) {
				// Interrupted mid-synthesis: discard, never re-queue.
				return
			}
			s.failTrack(gen, id, err)
			return
		}

		timer := time.NewTimer(s.cfg.TrackTimeout)
		select {
		case <-wait:
			timer.Stop()
		case <-timer.C:
			s.waiters.Resolve(id)
			s.observe(metrics.EventTrackTimeout, map[string]string{"label": label})
			s.log.Warn("track completion timed out",
				slog.Int64("track_id", id))
		}
		// An interrupt force-resolves the waiter; that is an abort, not a
		// completed track, so nothing gets reported for it.
		s.mu.Lock()
		aborted := s.gen != gen
		s.mu.Unlock()
		if aborted {
			return
		}
		s.deps.Sink.OnTrackComplete(id)
		s.observe(metrics.EventTrackComplete, map[string]string{"label": label})

		pause := time.NewTimer(s.cfg.InterUtterancePause)
		select {
		case <-pause.C:
		case <-ctx.Done():
			pause.Stop()
			return
		}

		s.mu.Lock()
		if s.gen != gen {
			s.mu.Unlock()
			return
		}
		// Newly arrived batch takes priority over older queue entries.
		s.flushPendingLocked()
		s.mu.Unlock()
	}
}

func (s *Session) synthesizeTrack(ctx context.Context, text string, id int64) error {
	first := true
	emit := func(pcm []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.deps.Sink.OnAudio(AudioEvent{
			Data:       base64.StdEncoding.EncodeToString(pcm),
			SampleRate: s.cfg.SampleRate,
			TrackID:    id,
		})
		if first {
			first = false
			s.observe(metrics.EventFirstAudio, nil)
		}
		return nil
	}
	return s.deps.Synthesizer.Synthesize(ctx, text, id, emit)
}

// failTrack handles a synthesis failure: only the current turn dies, the
// queue is cleared and the session returns to idle.
func (s *Session) failTrack(gen uint64, id int64, err error) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	if s.agentCancel != nil {
		s.agentCancel()
		s.agentCancel = nil
	}
	s.streaming = false
	s.processing = false
	s.sentenceQueue = nil
	s.pendingBatch = nil
	s.firstSentence = true
	s.waiters.ResolveAll()
	s.state = StateIdle
	s.mu.Unlock()

	wrapped := errorsx.Wrap(err, errorsx.ReasonTTSStream)
	s.log.Error("track synthesis failed",
		slog.Int64("track_id", id),
		slog.String("reason_code", string(errorsx.Reason(wrapped))),
		slog.String("error", err.Error()))
	s.deps.Sink.OnError(wrapped)
	s.deps.Sink.OnStateChange(StateIdle)
}

// abortLocked is the shared teardown of everything in flight: bump the
// generation, cancel the agent stream and synthesis, clear the queue and
// batch, resolve all waiters and force idle.
func (s *Session) abortLocked() int {
	s.gen++
	if s.agentCancel != nil {
		s.agentCancel()
		s.agentCancel = nil
	}
	if s.synthCancel != nil {
		s.synthCancel()
		s.synthCancel = nil
	}
	s.streaming = false
	s.processing = false
	s.speaking = false
	s.sentenceQueue = nil
	s.pendingBatch = nil
	s.firstSentence = true
	resolved := s.waiters.ResolveAll()
	s.state = StateIdle
	return resolved
}

// idleTransitionLocked moves to idle when nothing is queued, speaking or
// streaming. Returns true when the state actually changed.
func (s *Session) idleTransitionLocked() bool {
	if s.streaming || s.processing || s.speaking || len(s.sentenceQueue) > 0 {
		return false
	}
	if s.state == StateIdle {
		return false
	}
	s.state = StateIdle
	return true
}

// releaseToIdle clears the processing flag after an empty turn.
func (s *Session) releaseToIdle(gen uint64) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.processing = false
	idle := s.idleTransitionLocked()
	s.mu.Unlock()
	if idle {
		s.deps.Sink.OnStateChange(StateIdle)
	}
}

func (s *Session) appendHistoryLocked(role, content string) {
	s.history = append(s.history, agent.Turn{
		Role:    role,
		Content: content,
		Time:    time.Now(),
	})
	if len(s.history) > s.cfg.MaxHistory {
		s.history = s.history[len(s.history)-s.cfg.MaxHistory:]
	}
}

func (s *Session) handleRecogEvent(ev stt.Event) {
	if ev.IsError() {
		s.log.Warn("stt stream error",
			slog.String("error", ev.Err.Error()))
		return
	}
	s.mu.Lock()
	connected := s.connected
	s.mu.Unlock()
	if !connected || ev.Transcript == "" {
		return
	}
	s.deps.Sink.OnTranscript(TranscriptEvent{
		Type:      "user",
		Content:   ev.Transcript,
		IsFinal:   ev.IsFinal,
		Timestamp: time.Now(),
	})
}

func (s *Session) observe(name string, tags map[string]string) {
	all := map[string]string{"session_id": s.cfg.ID}
	for k, v := range tags {
		all[k] = v
	}
	s.deps.Observer.RecordEvent(metrics.MetricsEvent{
		Name: name,
		Time: time.Now(),
		Tags: all,
	})
}

var _ agent.StreamHandler = (*streamHandle)(nil)
