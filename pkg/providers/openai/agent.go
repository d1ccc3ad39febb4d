package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/raihanmd/cakap/pkg/agent"
	"github.com/raihanmd/cakap/pkg/errorsx"
	"github.com/raihanmd/cakap/pkg/logging"
	"github.com/raihanmd/cakap/pkg/resilience"
)

type Config struct {
	APIKey       string
	Model        string
	BaseURL      string
	SystemPrompt string
	Temperature  float64
	Client       *http.Client
}

// ChatAgent answers turns through the chat-completions API. Streaming
// replies are cut into sentences as tokens arrive so synthesis can start
// before the model finishes.
type ChatAgent struct {
	cfg    Config
	retry  resilience.RetryPolicy
	logger *slog.Logger
}

func New(cfg Config) *ChatAgent {
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 60 * time.Second}
	}
	return &ChatAgent{
		cfg:    cfg,
		retry:  resilience.NewRetryPolicy(2, 200*time.Millisecond),
		logger: logging.NewComponentLogger(slog.Default(), "openai_agent"),
	}
}

func (a *ChatAgent) Name() string { return "openai" }

// Query retries transient failures; the streaming path never retries
// because partial sentences may already have been spoken.
func (a *ChatAgent) Query(ctx context.Context, text, entityID string, history []agent.Turn) (agent.Result, error) {
	var result agent.Result
	err := a.retry.Do(func() error {
		resp, err := a.post(ctx, text, entityID, history, false)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		var payload struct {
			Choices []struct {
				Message struct {
					Content string `json:"content"`
				} `json:"message"`
			} `json:"choices"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return errorsx.Wrap(err, errorsx.ReasonAgentQuery)
		}
		if len(payload.Choices) == 0 {
			return errors.New("no choices")
		}
		result = agent.Result{Text: payload.Choices[0].Message.Content}
		return nil
	})
	return result, err
}

func (a *ChatAgent) QueryStreaming(ctx context.Context, text, entityID string, history []agent.Turn, h agent.StreamHandler) error {
	resp, err := a.post(ctx, text, entityID, history, true)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	splitter := agent.NewSentenceSplitter(0)
	var full strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			break
		}
		var chunk struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
			} `json:"choices"`
		}
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		tok := chunk.Choices[0].Delta.Content
		if tok == "" {
			continue
		}
		full.WriteString(tok)
		if sentence := splitter.AddToken(tok); sentence != "" {
			h.OnSentence(sentence)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	if serr := scanner.Err(); serr != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errorsx.Wrap(serr, errorsx.ReasonAgentStream)
	}
	if tail := splitter.Flush(); tail != "" {
		h.OnSentence(tail)
	}
	h.OnComplete(strings.TrimSpace(full.String()))
	return nil
}

func (a *ChatAgent) post(ctx context.Context, text, entityID string, history []agent.Turn, stream bool) (*http.Response, error) {
	messages := make([]map[string]string, 0, len(history)+2)
	if a.cfg.SystemPrompt != "" {
		messages = append(messages, map[string]string{"role": "system", "content": a.cfg.SystemPrompt})
	}
	for _, turn := range history {
		messages = append(messages, map[string]string{"role": turn.Role, "content": turn.Content})
	}
	messages = append(messages, map[string]string{"role": "user", "content": text})

	req := map[string]any{
		"model":    a.cfg.Model,
		"stream":   stream,
		"messages": messages,
	}
	if a.cfg.Temperature > 0 {
		req["temperature"] = a.cfg.Temperature
	}
	if entityID != "" {
		req["user"] = entityID
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)

	resp, err := a.cfg.Client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		msg, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, resilience.RateLimitError{Provider: "openai", Message: string(msg)}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		msg, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, resilience.FatalError{Provider: "openai", Message: string(msg)}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		msg, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, errors.New(string(msg))
	}
	a.logger.Debug("request accepted",
		slog.String("model", a.cfg.Model),
		slog.Bool("stream", stream))
	return resp, nil
}

var (
	_ agent.Agent    = (*ChatAgent)(nil)
	_ agent.Streamer = (*ChatAgent)(nil)
)
