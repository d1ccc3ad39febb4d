package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{}

func pcmOf(samples int, value int16) []byte {
	out := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(value))
	}
	return out
}

func b64(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

// serveScript upgrades the request, records inbound JSON messages and
// replies with the scripted envelopes once the empty-text close arrives.
func serveScript(t *testing.T, envelopes []map[string]any, received *[]map[string]any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg map[string]any
			if err := json.Unmarshal(data, &msg); err != nil {
				t.Errorf("client sent invalid JSON: %v", err)
				return
			}
			*received = append(*received, msg)
			if text, _ := msg["text"].(string); text == "" {
				for _, env := range envelopes {
					if err := conn.WriteJSON(env); err != nil {
						return
					}
				}
				msgType := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
				_ = conn.WriteMessage(websocket.CloseMessage, msgType)
				return
			}
		}
	}
}

func newTestSynth(srvURL string) *Synthesizer {
	return New(Config{
		APIKey:  "test-key",
		VoiceID: "voice-1",
		ModelID: "eleven_turbo_v2",
		BaseURL: "ws" + strings.TrimPrefix(srvURL, "http"),
	})
}

func TestSynthesizeEmitsAlignedChunks(t *testing.T) {
	isFinal := true
	var received []map[string]any
	srv := httptest.NewServer(serveScript(t, []map[string]any{
		{"audio": b64(pcmOf(100, 800))},
		{"alignment": map[string]any{"chars": []string{"h"}}},
		{"audio": b64(pcmOf(100, 800))},
		{"isFinal": &isFinal},
	}, &received))
	defer srv.Close()

	s := newTestSynth(srv.URL)
	var chunks [][]byte
	err := s.Synthesize(context.Background(), "hello", 7, func(pcm []byte) error {
		cp := make([]byte, len(pcm))
		copy(cp, pcm)
		chunks = append(chunks, cp)
		return nil
	})
	if err != nil {
		t.Fatalf("Synthesize() error: %v", err)
	}

	// 400 bytes align down to 256: one full chunk, 144-byte residual dropped.
	if len(chunks) != 1 || len(chunks[0]) != 256 {
		t.Fatalf("chunks = %d, want one 256-byte chunk", len(chunks))
	}
	if got := int16(binary.LittleEndian.Uint16(chunks[0])); got != 0 {
		t.Fatalf("first faded sample = %d, want 0", got)
	}

	if len(received) != 3 {
		t.Fatalf("messages received = %d, want init+text+close", len(received))
	}
	if _, ok := received[0]["voice_settings"]; !ok {
		t.Fatalf("init message missing voice_settings: %v", received[0])
	}
	if text, _ := received[1]["text"].(string); text != "hello " {
		t.Fatalf("text message = %q, want trailing space", text)
	}
}

func TestSynthesizeSurfacesErrorEnvelope(t *testing.T) {
	var received []map[string]any
	srv := httptest.NewServer(serveScript(t, []map[string]any{
		{"error": "voice_not_found", "message": "no such voice"},
	}, &received))
	defer srv.Close()

	s := newTestSynth(srv.URL)
	err := s.Synthesize(context.Background(), "hello", 1, func([]byte) error { return nil })
	if err == nil || !strings.Contains(err.Error(), "voice_not_found") {
		t.Fatalf("error = %v, want vendor error envelope", err)
	}
}

func TestSynthesizeSkipsUnparseableMessages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg map[string]any
			_ = json.Unmarshal(data, &msg)
			if text, _ := msg["text"].(string); text == "" {
				_ = conn.WriteMessage(websocket.TextMessage, []byte("not json at all"))
				final := true
				_ = conn.WriteJSON(map[string]any{"audio": b64(pcmOf(256, 100)), "isFinal": &final})
				return
			}
		}
	}))
	defer srv.Close()

	s := newTestSynth(srv.URL)
	var total int
	err := s.Synthesize(context.Background(), "hello", 1, func(pcm []byte) error {
		total += len(pcm)
		return nil
	})
	if err != nil {
		t.Fatalf("Synthesize() error: %v", err)
	}
	if total != 512 {
		t.Fatalf("emitted bytes = %d, want 512", total)
	}
}

func TestMissingVoiceConfig(t *testing.T) {
	s := New(Config{APIKey: "k"})
	err := s.Synthesize(context.Background(), "hi", 1, func([]byte) error { return nil })
	if err == nil {
		t.Fatalf("expected config error for missing voice id")
	}
}
