package session

import (
	"context"
	"errors"
	"testing"

	"github.com/raihanmd/cakap/pkg/adapters/stt"
)

func TestRecogReconnectBound(t *testing.T) {
	made := 0
	factory := func() stt.Recognizer {
		made++
		return &fakeRecognizer{startErr: errors.New("dial refused")}
	}
	m := newRecogManager(factory, 3, nil, quietLogger())

	if err := m.start(context.Background()); err == nil {
		t.Fatalf("start succeeded against a refusing endpoint")
	}
	frame := make([]byte, 320)
	for i := 0; i < 10; i++ {
		if err := m.sendAudio(context.Background(), frame); err != nil {
			t.Fatalf("sendAudio returned error on dropped frame: %v", err)
		}
	}

	// Initial connect plus exactly three bounded reconnect attempts.
	if made != 4 {
		t.Fatalf("recognizers created = %d, want 4", made)
	}
}

func TestRecogFatalNeverReconnected(t *testing.T) {
	made := 0
	factory := func() stt.Recognizer {
		made++
		return &fakeRecognizer{startErr: errors.New("401 unauthorized"), fatalFlag: true}
	}
	m := newRecogManager(factory, 3, nil, quietLogger())

	_ = m.start(context.Background())
	frame := make([]byte, 320)
	for i := 0; i < 5; i++ {
		_ = m.sendAudio(context.Background(), frame)
	}

	if made != 1 {
		t.Fatalf("recognizers created = %d, fatal recognizer must never be replaced", made)
	}
	if !m.fatal() {
		t.Fatalf("manager does not report fatal")
	}
}

func TestRecogResetClearsBound(t *testing.T) {
	made := 0
	healthy := false
	factory := func() stt.Recognizer {
		made++
		if healthy {
			return newFakeRecognizer()
		}
		return &fakeRecognizer{startErr: errors.New("dial refused")}
	}
	m := newRecogManager(factory, 2, nil, quietLogger())

	_ = m.start(context.Background())
	frame := make([]byte, 320)
	for i := 0; i < 5; i++ {
		_ = m.sendAudio(context.Background(), frame)
	}
	if m.connected() {
		t.Fatalf("manager connected while endpoint refuses")
	}

	healthy = true
	m.reset(context.Background())

	if !m.connected() {
		t.Fatalf("reset did not re-establish the connection")
	}
	if err := m.sendAudio(context.Background(), frame); err != nil {
		t.Fatalf("sendAudio after reset: %v", err)
	}
}

func TestRecogAttemptsResetOnSuccess(t *testing.T) {
	made := 0
	failNext := true
	factory := func() stt.Recognizer {
		made++
		if failNext {
			return &fakeRecognizer{startErr: errors.New("dial refused")}
		}
		return newFakeRecognizer()
	}
	m := newRecogManager(factory, 3, nil, quietLogger())

	_ = m.start(context.Background())
	frame := make([]byte, 320)
	_ = m.sendAudio(context.Background(), frame) // one failed attempt

	failNext = false
	if err := m.sendAudio(context.Background(), frame); err != nil {
		t.Fatalf("sendAudio after recovery: %v", err)
	}
	m.mu.Lock()
	attempts := m.attempts
	m.mu.Unlock()
	if attempts != 0 {
		t.Fatalf("attempts after successful reconnect = %d, want 0", attempts)
	}
}

func TestRecogFinalizeSingleFlight(t *testing.T) {
	rec := newFakeRecognizer()
	rec.setTranscript("hello there")
	m := newRecogManager(func() stt.Recognizer { return rec }, 3, nil, quietLogger())
	if err := m.start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	m.mu.Lock()
	m.finalizing = true
	m.mu.Unlock()
	text, err := m.finalize(context.Background())
	if err != nil || text != "" {
		t.Fatalf("overlapping finalize = (%q, %v), want empty no-op", text, err)
	}

	m.mu.Lock()
	m.finalizing = false
	m.mu.Unlock()
	text, err = m.finalize(context.Background())
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if text != "hello there" {
		t.Fatalf("finalize = %q, want %q", text, "hello there")
	}
}
