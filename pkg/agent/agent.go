package agent

import (
	"context"
	"time"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one entry of the bounded conversation history.
type Turn struct {
	Role    string
	Content string
	Time    time.Time
}

// ToolStatus reports tool execution progress during a streamed reply.
type ToolStatus struct {
	Tool   string
	Status string
	Detail map[string]any
}

// Media is an out-of-band media event emitted by the agent (images, links).
type Media struct {
	Type    string
	URL     string
	Payload map[string]any
}

// Result is the response of a non-streaming query.
type Result struct {
	Text string
	Tool string
}

// StreamHandler receives the agent's reply as a typed event stream.
// The fixed method set gives compile-time coverage of every event kind.
type StreamHandler interface {
	OnSentence(text string)
	OnFiller(text string)
	OnToolStatus(ev ToolStatus)
	OnThinking(active bool)
	OnMedia(ev Media)
	OnComplete(fullText string)
	OnError(err error)
}

// Agent answers one user turn synchronously.
type Agent interface {
	Name() string
	Query(ctx context.Context, text, entityID string, history []Turn) (Result, error)
}

// Streamer is the optional streaming capability. Sessions prefer it and
// fall back to Query when the agent does not implement it. QueryStreaming
// must honor ctx cancellation promptly; after cancellation no further
// handler callbacks may fire except OnError/OnComplete already in flight.
type Streamer interface {
	QueryStreaming(ctx context.Context, text, entityID string, history []Turn, h StreamHandler) error
}
