package ws

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/raihanmd/cakap/pkg/adapters/stt"
	"github.com/raihanmd/cakap/pkg/providers/mock"
	"github.com/raihanmd/cakap/pkg/session"
)

type stubBuilder struct{}

func (stubBuilder) NewSession(id string, sk session.Sink) (*session.Session, error) {
	return session.New(session.Config{
		ID:                  id,
		InterUtterancePause: time.Millisecond,
		TrackTimeout:        20 * time.Millisecond,
	}, session.Deps{
		Recognizer: func() stt.Recognizer {
			return mock.NewRecognizer(mock.STTConfig{Transcripts: []string{"what is up"}})
		},
		Synthesizer: mock.NewSynthesizer(mock.TTSConfig{}),
		Agent:       mock.NewAgent(mock.AgentConfig{Sentences: []string{"Hi there."}}),
		Sink:        sk,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}), nil
}

func dialTestTransport(t *testing.T) (*websocket.Conn, func()) {
	t.Helper()
	tr := New(Config{}, stubBuilder{})
	srv := httptest.NewServer(tr)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("dial: %v", err)
	}
	return conn, func() {
		conn.Close()
		srv.Close()
	}
}

func readEnvelopes(t *testing.T, conn *websocket.Conn, until func(map[string]envelope) bool) map[string]envelope {
	t.Helper()
	seen := make(map[string]envelope)
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		_ = conn.SetReadDeadline(time.Now().Add(time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v (seen: %v)", err, keys(seen))
		}
		var ev envelope
		if err := json.Unmarshal(msg, &ev); err != nil {
			t.Fatalf("bad envelope %q: %v", msg, err)
		}
		seen[ev.Type] = ev
		if until(seen) {
			return seen
		}
	}
	t.Fatalf("timed out, seen: %v", keys(seen))
	return nil
}

func keys(m map[string]envelope) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestTextTurnOverWebsocket(t *testing.T) {
	conn, done := dialTestTransport(t)
	defer done()

	seen := readEnvelopes(t, conn, func(m map[string]envelope) bool {
		_, ok := m["connected"]
		return ok
	})
	if seen["connected"].SessionID == "" {
		t.Fatalf("connected envelope missing session id")
	}

	if err := conn.WriteJSON(map[string]any{"type": "text", "text": "hi"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	seen = readEnvelopes(t, conn, func(m map[string]envelope) bool {
		_, ok := m["track_complete"]
		return ok
	})
	if tr, ok := seen["transcript"]; !ok || tr.Role != "user" || tr.Content != "hi" {
		t.Fatalf("transcript envelope = %+v", seen["transcript"])
	}
	if ts, ok := seen["track_start"]; !ok || ts.Label != "chunk-1" || ts.Content != "Hi there." {
		t.Fatalf("track_start envelope = %+v", seen["track_start"])
	}
	if au, ok := seen["audio"]; !ok || au.SampleRate != 24000 || au.Data == "" {
		t.Fatalf("audio envelope = %+v", seen["audio"])
	}
}

func TestCommitFinalizesBufferedAudio(t *testing.T) {
	conn, done := dialTestTransport(t)
	defer done()

	readEnvelopes(t, conn, func(m map[string]envelope) bool {
		_, ok := m["connected"]
		return ok
	})

	silence := make([]byte, 320)
	if err := conn.WriteJSON(map[string]any{"type": "audio", "data": silence}); err != nil {
		t.Fatalf("write audio: %v", err)
	}
	if err := conn.WriteJSON(map[string]any{"type": "commit"}); err != nil {
		t.Fatalf("write commit: %v", err)
	}

	seen := readEnvelopes(t, conn, func(m map[string]envelope) bool {
		tr, ok := m["transcript"]
		return ok && tr.Role == "user"
	})
	if seen["transcript"].Content != "what is up" {
		t.Fatalf("transcript = %+v", seen["transcript"])
	}
}

func TestCheckOrigin(t *testing.T) {
	tr := New(Config{AllowedOrigins: []string{"app.example.com"}}, stubBuilder{})
	req := httptest.NewRequest(http.MethodGet, "/v1/stream", nil)
	req.Header.Set("Origin", "https://app.example.com")
	if !tr.checkOrigin(req) {
		t.Fatalf("allowed origin rejected")
	}
	req.Header.Set("Origin", "https://evil.example.com")
	if tr.checkOrigin(req) {
		t.Fatalf("unknown origin accepted")
	}
}

func TestStopRejectsNewConnections(t *testing.T) {
	tr := New(Config{}, stubBuilder{})
	_ = tr.Stop()
	rec := httptest.NewRecorder()
	tr.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/stream", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}
