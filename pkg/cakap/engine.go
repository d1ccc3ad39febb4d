package cakap

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/raihanmd/cakap/pkg/adapters/stt"
	"github.com/raihanmd/cakap/pkg/agent"
	"github.com/raihanmd/cakap/pkg/configutil"
	"github.com/raihanmd/cakap/pkg/logging"
	"github.com/raihanmd/cakap/pkg/metrics"
	"github.com/raihanmd/cakap/pkg/observers"
	"github.com/raihanmd/cakap/pkg/providers/mock"
	"github.com/raihanmd/cakap/pkg/redact"
	"github.com/raihanmd/cakap/pkg/session"
	"github.com/raihanmd/cakap/pkg/transports/ws"
)

const asyncObserverBuffer = 256

// Engine assembles sessions from the configured vendor stack. It is the
// SessionBuilder handed to transports: each accepted connection gets its
// own recognizer and synthesizer while the agent and metrics pipeline are
// shared.
type Engine struct {
	cfg      Config
	registry *ProviderRegistry
	logger   *slog.Logger

	agent    agent.Agent
	observer *metrics.AsyncObserver

	mu       sync.Mutex
	sessions map[string]*session.Session
	draining bool
}

// NewEngine validates the vendor config eagerly so misconfiguration
// surfaces at startup rather than on the first connection.
func NewEngine(cfg Config, registry *ProviderRegistry, logger *slog.Logger) (*Engine, error) {
	if registry == nil {
		registry = DefaultRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}
	redact.SetEnabled(cfg.Privacy.RedactPII)
	shared, err := registry.BuildAgent(cfg.Vendors.Agent, cfg.BasePrompt)
	if err != nil {
		return nil, fmt.Errorf("build agent: %w", err)
	}
	// Build and discard one recognizer and synthesizer so bad vendor
	// settings fail at startup, not on the first caller.
	rec, err := registry.BuildRecognizer(cfg.Vendors.STT, "startup-probe")
	if err != nil {
		return nil, fmt.Errorf("build recognizer: %w", err)
	}
	_ = rec.Stop()
	synth, err := registry.BuildSynthesizer(cfg.Vendors.TTS, "startup-probe")
	if err != nil {
		return nil, fmt.Errorf("build synthesizer: %w", err)
	}
	_ = synth.Teardown()
	inner := observers.NewMultiObserver(
		observers.NewLatencyObserver(logging.NewComponentLogger(logger, "latency")),
		observers.NewLoggerObserver(logging.NewComponentLogger(logger, "metrics")),
	)
	e := &Engine{
		cfg:      cfg,
		registry: registry,
		logger:   logging.NewComponentLogger(logger, "engine"),
		agent:    shared,
		observer: metrics.NewAsyncObserver(inner, asyncObserverBuffer),
		sessions: make(map[string]*session.Session),
	}
	return e, nil
}

// NewSession implements ws.SessionBuilder.
func (e *Engine) NewSession(id string, sink session.Sink) (*session.Session, error) {
	e.mu.Lock()
	if e.draining {
		e.mu.Unlock()
		return nil, fmt.Errorf("engine draining, session %s rejected", id)
	}
	e.mu.Unlock()

	synth, err := e.registry.BuildSynthesizer(e.cfg.Vendors.TTS, id)
	if err != nil {
		return nil, fmt.Errorf("build synthesizer: %w", err)
	}
	recogFactory := func() stt.Recognizer {
		r, err := e.registry.BuildRecognizer(e.cfg.Vendors.STT, id)
		if err != nil {
			// Settings were validated at startup, so this is unreachable
			// short of runtime mutation. A fatal stub keeps the session's
			// reconnect logic from calling into a nil recognizer.
			e.logger.Error("recognizer build failed", "session_id", id, "error", err)
			return mock.NewRecognizer(mock.STTConfig{StartErr: err, Fatal: true})
		}
		return r
	}
	sc := e.cfg.Session
	sess := session.New(session.Config{
		ID:                  id,
		SampleRate:          sc.SampleRate,
		InterUtterancePause: configutil.MillisValue(sc.InterUtterancePauseMS, session.DefaultInterUtterancePause),
		TrackTimeout:        configutil.MillisValue(sc.TrackTimeoutMS, session.DefaultTrackTimeout),
		MaxReconnects:       sc.MaxReconnects,
		MaxHistory:          sc.MaxHistory,
	}, session.Deps{
		Recognizer:  recogFactory,
		Synthesizer: synth,
		Agent:       e.agent,
		Sink:        &engineSink{Sink: sink, engine: e, id: id},
		Observer:    e.observer,
		Logger:      logging.NewComponentLogger(e.logger, "session"),
	})

	e.mu.Lock()
	e.sessions[id] = sess
	count := len(e.sessions)
	e.mu.Unlock()
	e.logger.Info("session created", "session_id", id, "active", count)
	return sess, nil
}

// SessionCount reports the number of live sessions.
func (e *Engine) SessionCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sessions)
}

// Drain stops accepting new sessions, disconnects the live ones and
// flushes the metrics pipeline. Safe to call more than once.
func (e *Engine) Drain(ctx context.Context) error {
	e.mu.Lock()
	if e.draining {
		e.mu.Unlock()
		return nil
	}
	e.draining = true
	live := make([]*session.Session, 0, len(e.sessions))
	for _, s := range e.sessions {
		live = append(live, s)
	}
	e.mu.Unlock()

	e.logger.Info("draining", "sessions", len(live))
	for _, s := range live {
		s.Disconnect()
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	e.observer.Close()
	if dropped := e.observer.Dropped(); dropped > 0 {
		e.logger.Warn("metric events dropped", "count", dropped)
	}
	return nil
}

func (e *Engine) detach(id string) {
	e.mu.Lock()
	delete(e.sessions, id)
	count := len(e.sessions)
	e.mu.Unlock()
	e.logger.Info("session detached", "session_id", id, "active", count)
}

// engineSink forwards every event to the transport sink and removes the
// session from the engine's table when it disconnects.
type engineSink struct {
	session.Sink
	engine *Engine
	id     string
}

func (s *engineSink) OnDisconnected(sessionID string) {
	s.engine.detach(s.id)
	s.Sink.OnDisconnected(sessionID)
}

var _ ws.SessionBuilder = (*Engine)(nil)
