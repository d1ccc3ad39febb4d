package mock

import (
	"context"
	"strings"

	"github.com/raihanmd/cakap/pkg/agent"
)

type AgentConfig struct {
	// Sentences are streamed one OnSentence each; empty uses a default reply.
	Sentences []string
	Filler    string
	QueryErr  error
}

// ChatAgent is a canned agent for examples and tests.
type ChatAgent struct {
	cfg AgentConfig
}

func NewAgent(cfg AgentConfig) *ChatAgent {
	if len(cfg.Sentences) == 0 {
		cfg.Sentences = []string{"This is a mock reply.", "It has two sentences."}
	}
	return &ChatAgent{cfg: cfg}
}

func (a *ChatAgent) Name() string { return "mock_agent" }

func (a *ChatAgent) Query(ctx context.Context, text, entityID string, history []agent.Turn) (agent.Result, error) {
	if a.cfg.QueryErr != nil {
		return agent.Result{}, a.cfg.QueryErr
	}
	return agent.Result{Text: strings.Join(a.cfg.Sentences, " ")}, nil
}

func (a *ChatAgent) QueryStreaming(ctx context.Context, text, entityID string, history []agent.Turn, h agent.StreamHandler) error {
	if a.cfg.QueryErr != nil {
		return a.cfg.QueryErr
	}
	if a.cfg.Filler != "" {
		h.OnFiller(a.cfg.Filler)
	}
	for _, sentence := range a.cfg.Sentences {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		h.OnSentence(sentence)
	}
	h.OnComplete(strings.Join(a.cfg.Sentences, " "))
	return nil
}

var (
	_ agent.Agent    = (*ChatAgent)(nil)
	_ agent.Streamer = (*ChatAgent)(nil)
)
