package cakap

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/raihanmd/cakap/pkg/session"
)

func testEngineConfig() Config {
	return Config{
		Environment: "test",
		Vendors: VendorsConfig{
			STT:   VendorConfig{Provider: "mock"},
			TTS:   VendorConfig{Provider: "mock"},
			Agent: VendorConfig{Provider: "mock"},
		},
		Session: SessionConfig{
			InterUtterancePauseMS: 1,
			TrackTimeoutMS:        20,
		},
	}
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e, err := NewEngine(testEngineConfig(), nil, logger)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return e
}

func TestEngineSessionLifecycle(t *testing.T) {
	e := newTestEngine(t)

	sess, err := e.NewSession("s1", session.NoopSink{})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if err := sess.Connect(context.Background(), session.ConnectConfig{EntityID: "caller"}); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if got := e.SessionCount(); got != 1 {
		t.Fatalf("expected 1 live session, got %d", got)
	}

	sess.Disconnect()
	deadline := time.Now().Add(2 * time.Second)
	for e.SessionCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("session never detached after disconnect")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestEngineRejectsBadVendorConfig(t *testing.T) {
	cfg := testEngineConfig()
	cfg.Vendors.TTS = VendorConfig{Provider: "elevenlabs"} // no api key
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if _, err := NewEngine(cfg, nil, logger); err == nil {
		t.Fatal("expected startup error for unconfigured vendor")
	}
}

func TestEngineDrain(t *testing.T) {
	e := newTestEngine(t)

	sess, err := e.NewSession("s1", session.NoopSink{})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if err := sess.Connect(context.Background(), session.ConnectConfig{}); err != nil {
		t.Fatalf("connect: %v", err)
	}

	if err := e.Drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if sess.Connected() {
		t.Fatal("expected session disconnected by drain")
	}
	if _, err := e.NewSession("s2", session.NoopSink{}); err == nil {
		t.Fatal("expected new sessions rejected while draining")
	}
	// Second drain is a no-op.
	if err := e.Drain(context.Background()); err != nil {
		t.Fatalf("second drain: %v", err)
	}
}
