package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/raihanmd/cakap/pkg/agent"
	"github.com/raihanmd/cakap/pkg/resilience"
)

type captureHandler struct {
	mu        sync.Mutex
	sentences []string
	complete  string
	errs      []error
}

func (c *captureHandler) OnSentence(text string) {
	c.mu.Lock()
	c.sentences = append(c.sentences, text)
	c.mu.Unlock()
}

func (c *captureHandler) OnFiller(text string)            {}
func (c *captureHandler) OnToolStatus(ev agent.ToolStatus) {}
func (c *captureHandler) OnThinking(active bool)          {}
func (c *captureHandler) OnMedia(ev agent.Media)          {}

func (c *captureHandler) OnComplete(fullText string) {
	c.mu.Lock()
	c.complete = fullText
	c.mu.Unlock()
}

func (c *captureHandler) OnError(err error) {
	c.mu.Lock()
	c.errs = append(c.errs, err)
	c.mu.Unlock()
}

func sseChunk(token string) string {
	payload, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"delta": map[string]string{"content": token}},
		},
	})
	return "data: " + string(payload) + "\n\n"
}

func TestQueryStreamingSplitsSentences(t *testing.T) {
	tokens := []string{"The sky ", "is blue.", " Water is", " wet"}
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "text/event-stream")
		for _, tok := range tokens {
			fmt.Fprint(w, sseChunk(tok))
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	a := New(Config{APIKey: "k", BaseURL: srv.URL, SystemPrompt: "be brief"})
	h := &captureHandler{}
	err := a.QueryStreaming(context.Background(), "why is the sky blue", "user-1",
		[]agent.Turn{{Role: agent.RoleUser, Content: "hi"}, {Role: agent.RoleAssistant, Content: "hello"}}, h)
	if err != nil {
		t.Fatalf("QueryStreaming() error: %v", err)
	}

	want := []string{"The sky is blue.", "Water is wet"}
	if len(h.sentences) != len(want) {
		t.Fatalf("sentences = %v, want %v", h.sentences, want)
	}
	for i := range want {
		if h.sentences[i] != want[i] {
			t.Fatalf("sentence %d = %q, want %q", i, h.sentences[i], want[i])
		}
	}
	if h.complete != "The sky is blue. Water is wet" {
		t.Fatalf("complete = %q", h.complete)
	}

	msgs, _ := gotBody["messages"].([]any)
	if len(msgs) != 4 {
		t.Fatalf("request messages = %d, want system+2 history+user", len(msgs))
	}
	first, _ := msgs[0].(map[string]any)
	if first["role"] != "system" || first["content"] != "be brief" {
		t.Fatalf("first message = %v", first)
	}
	if gotBody["user"] != "user-1" {
		t.Fatalf("user field = %v", gotBody["user"])
	}
}

func TestQueryNonStreaming(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"content": "Twelve."}},
			},
		})
	}))
	defer srv.Close()

	a := New(Config{APIKey: "k", BaseURL: srv.URL})
	res, err := a.Query(context.Background(), "six plus six", "", nil)
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}
	if res.Text != "Twelve." {
		t.Fatalf("Text = %q", res.Text)
	}
}

func TestRateLimitAndAuthClassification(t *testing.T) {
	for _, tc := range []struct {
		status int
		check  func(error) bool
		name   string
	}{
		{http.StatusTooManyRequests, resilience.IsRateLimit, "rate limit"},
		{http.StatusUnauthorized, resilience.IsFatal, "fatal"},
	} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))
		a := New(Config{APIKey: "k", BaseURL: srv.URL})
		_, err := a.Query(context.Background(), "hi", "", nil)
		srv.Close()
		if !tc.check(err) {
			t.Fatalf("status %d: error = %v, want %s", tc.status, err, tc.name)
		}
	}
}

func TestQueryStreamingSkipsMalformedChunks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: this is not json\n\n")
		fmt.Fprint(w, sseChunk("All good here."))
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	a := New(Config{APIKey: "k", BaseURL: srv.URL})
	h := &captureHandler{}
	if err := a.QueryStreaming(context.Background(), "hi", "", nil, h); err != nil {
		t.Fatalf("QueryStreaming() error: %v", err)
	}
	if len(h.sentences) != 1 || h.sentences[0] != "All good here." {
		t.Fatalf("sentences = %v", h.sentences)
	}
}
