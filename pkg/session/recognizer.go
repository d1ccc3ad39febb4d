package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/raihanmd/cakap/pkg/adapters/stt"
	"github.com/raihanmd/cakap/pkg/errorsx"
)

// DefaultMaxReconnects bounds consecutive recognizer reconnection attempts.
const DefaultMaxReconnects = 3

// recogManager owns the live speech-recognition connection for one session.
// Recognizers are re-created fully through the factory on every reconnect;
// fatal (auth/quota) recognizers are never replaced until an external reset.
type recogManager struct {
	factory func() stt.Recognizer
	onEvent func(stt.Event)
	log     *slog.Logger
	max     int

	mu         sync.Mutex
	rec        stt.Recognizer
	attempts   int
	warned     bool
	finalizing bool
}

func newRecogManager(factory func() stt.Recognizer, max int, onEvent func(stt.Event), log *slog.Logger) *recogManager {
	if max <= 0 {
		max = DefaultMaxReconnects
	}
	if log == nil {
		log = slog.Default()
	}
	return &recogManager{
		factory: factory,
		onEvent: onEvent,
		log:     log,
		max:     max,
	}
}

// start opens the initial recognition connection.
func (m *recogManager) start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connectLocked(ctx)
}

func (m *recogManager) connectLocked(ctx context.Context) error {
	rec := m.factory()
	err := rec.Start(ctx)
	// Keep the instance even on failure so its fatal flag sticks.
	m.rec = rec
	if err != nil {
		return errorsx.Wrap(err, errorsx.ReasonSTTConnect)
	}
	m.attempts = 0
	m.warned = false
	m.pump(rec)
	return nil
}

func (m *recogManager) pump(rec stt.Recognizer) {
	handler := m.onEvent
	if handler == nil {
		return
	}
	go func() {
		for ev := range rec.Events() {
			handler(ev)
		}
	}()
}

// sendAudio forwards one microphone frame, reconnecting first when the
// connection dropped. Frames are silently discarded once the reconnect
// bound is reached or the recognizer is fatal.
func (m *recogManager) sendAudio(ctx context.Context, pcm []byte) error {
	m.mu.Lock()
	if !m.ensureLocked(ctx) {
		m.mu.Unlock()
		return nil
	}
	rec := m.rec
	m.mu.Unlock()
	if err := rec.SendAudio(pcm); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonSTTSend)
	}
	return nil
}

// ensureLocked reconnects a dropped non-fatal connection, bounded by max
// consecutive attempts. The exhaustion warning is logged exactly once.
func (m *recogManager) ensureLocked(ctx context.Context) bool {
	if m.rec != nil && m.rec.Connected() {
		return true
	}
	if m.rec != nil && m.rec.Fatal() {
		return false
	}
	if m.attempts >= m.max {
		if !m.warned {
			m.warned = true
			m.log.Warn("stt reconnect attempts exhausted",
				slog.Int("max_attempts", m.max))
		}
		return false
	}
	m.attempts++
	if m.rec != nil {
		_ = m.rec.Stop()
	}
	if err := m.connectLocked(ctx); err != nil {
		m.log.Error("stt reconnect failed",
			slog.Int("attempt", m.attempts),
			slog.String("reason_code", string(errorsx.Reason(err))),
			slog.String("error", err.Error()))
		return false
	}
	m.log.Info("stt reconnected",
		slog.Int("attempt", m.attempts))
	return true
}

// finalize returns the best-effort final transcript. At most one finalize
// runs at a time; overlapping calls return empty.
func (m *recogManager) finalize(ctx context.Context) (string, error) {
	m.mu.Lock()
	if m.finalizing || m.rec == nil {
		m.mu.Unlock()
		return "", nil
	}
	m.finalizing = true
	rec := m.rec
	m.mu.Unlock()

	text, err := rec.Finalize(ctx)

	m.mu.Lock()
	m.finalizing = false
	m.mu.Unlock()
	if err != nil {
		return text, errorsx.Wrap(err, errorsx.ReasonSTTFinalize)
	}
	return text, nil
}

func (m *recogManager) clearTranscript() {
	m.mu.Lock()
	rec := m.rec
	m.mu.Unlock()
	if rec != nil {
		rec.ClearTranscript()
	}
}

// reset clears the reconnect bound so later frames may attempt again, and
// opportunistically re-establishes a dropped non-fatal connection.
func (m *recogManager) reset(ctx context.Context) {
	m.mu.Lock()
	m.attempts = 0
	m.warned = false
	if m.rec != nil && !m.rec.Connected() && !m.rec.Fatal() {
		_ = m.rec.Stop()
		if err := m.connectLocked(ctx); err != nil {
			m.log.Debug("stt opportunistic reconnect failed",
				slog.String("error", err.Error()))
		}
	}
	m.mu.Unlock()
}

func (m *recogManager) stop() error {
	m.mu.Lock()
	rec := m.rec
	m.rec = nil
	m.mu.Unlock()
	if rec == nil {
		return nil
	}
	return rec.Stop()
}

func (m *recogManager) connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rec != nil && m.rec.Connected()
}

func (m *recogManager) fatal() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rec != nil && m.rec.Fatal()
}
