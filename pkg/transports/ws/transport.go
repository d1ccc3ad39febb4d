package ws

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/raihanmd/cakap/pkg/logging"
	"github.com/raihanmd/cakap/pkg/session"
	"github.com/raihanmd/cakap/pkg/transports"
)

var (
	_ transports.Transport     = (*Transport)(nil)
	_ transports.ReadyReporter = (*Transport)(nil)
)

type Config struct {
	ServerAddr     string   `mapstructure:"server_addr"`
	Path           string   `mapstructure:"path"`
	AllowAnyOrigin bool     `mapstructure:"allow_any_origin"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

func (c Config) withDefaults() Config {
	if c.ServerAddr == "" {
		c.ServerAddr = ":8080"
	}
	if c.Path == "" {
		c.Path = "/v1/stream"
	}
	if !c.AllowAnyOrigin && len(c.AllowedOrigins) == 0 {
		c.AllowAnyOrigin = true
	}
	return c
}

// SessionBuilder creates one voice session per websocket connection,
// wired to the connection's sink.
type SessionBuilder interface {
	NewSession(id string, sink session.Sink) (*session.Session, error)
}

// Transport serves the JSON websocket protocol: inbound envelopes carry
// microphone audio, typed text, interrupts and playback acks; outbound
// envelopes mirror the session Sink events.
type Transport struct {
	cfg      Config
	builder  SessionBuilder
	logger   *slog.Logger
	server   *http.Server
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[string]*client

	draining atomic.Bool
}

func New(cfg Config, builder SessionBuilder) *Transport {
	cfg = cfg.withDefaults()
	t := &Transport{
		cfg:     cfg,
		builder: builder,
		logger:  logging.NewComponentLogger(slog.Default(), "ws_transport"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		clients: make(map[string]*client),
	}
	t.upgrader.CheckOrigin = t.checkOrigin
	return t
}

func (t *Transport) Name() string { return "ws" }

func (t *Transport) ReadyFields() map[string]any {
	return map[string]any{
		"listen_addr": t.cfg.ServerAddr,
		"stream_path": t.cfg.Path,
	}
}

func (t *Transport) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	mux := http.NewServeMux()
	mux.Handle(t.cfg.Path, t)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	t.server = &http.Server{
		Addr:              t.cfg.ServerAddr,
		ReadHeaderTimeout: 5 * time.Second,
		Handler:           mux,
	}
	go func() {
		<-ctx.Done()
		_ = t.server.Close()
	}()
	go func() {
		if err := t.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.logger.Error("ws_transport_server_error",
				slog.String("error", err.Error()))
		}
	}()
	return nil
}

func (t *Transport) Stop() error {
	t.draining.Store(true)
	if t.server != nil {
		_ = t.server.Close()
	}
	t.mu.Lock()
	for _, c := range t.clients {
		_ = c.close()
	}
	t.clients = make(map[string]*client)
	t.mu.Unlock()
	return nil
}

func (t *Transport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if t.draining.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	id := uuid.NewString()
	c := &client{conn: conn, sendCh: make(chan []byte, 256)}
	t.mu.Lock()
	t.clients[id] = c
	t.mu.Unlock()
	go c.loop()
	defer t.detach(id)

	sess, err := t.builder.NewSession(id, &sink{client: c, sessionID: id})
	if err != nil {
		t.logger.Error("session build failed",
			slog.String("session_id", id),
			slog.String("error", err.Error()))
		return
	}
	cc := session.ConnectConfig{EntityID: r.URL.Query().Get("entity_id")}
	if err := sess.Connect(r.Context(), cc); err != nil {
		t.logger.Error("session connect failed",
			slog.String("session_id", id),
			slog.String("error", err.Error()))
		c.enqueue(envelope{Type: "error", Message: err.Error()})
		return
	}
	defer sess.Disconnect()

	t.logger.Info("client connected",
		slog.String("session_id", id),
		slog.String("remote", r.RemoteAddr))

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var ev envelope
		if err := json.Unmarshal(msg, &ev); err != nil {
			continue
		}
		t.dispatch(r.Context(), sess, ev)
	}
}

func (t *Transport) dispatch(ctx context.Context, sess *session.Session, ev envelope) {
	switch ev.Type {
	case "audio":
		pcm, err := base64.StdEncoding.DecodeString(ev.Data)
		if err != nil {
			return
		}
		sess.SendAudio(pcm)
	case "commit":
		// Finalize runs network round-trips; keep the read loop free for
		// interrupts.
		go sess.ProcessBufferedAudio(ctx)
	case "text":
		go sess.SendText(ev.Text)
	case "interrupt":
		sess.Interrupt()
	case "mute":
		sess.SetMuted(ev.Muted)
	case "track_complete":
		sess.TrackPlaybackComplete(ev.TrackID)
	}
}

func (t *Transport) detach(id string) {
	t.mu.Lock()
	c := t.clients[id]
	delete(t.clients, id)
	t.mu.Unlock()
	if c != nil {
		_ = c.close()
	}
}

func (t *Transport) checkOrigin(r *http.Request) bool {
	if t.cfg.AllowAnyOrigin {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	origin = strings.TrimRight(origin, "/")
	originHost := strings.TrimPrefix(origin, "https://")
	originHost = strings.TrimPrefix(originHost, "http://")
	for _, allowed := range t.cfg.AllowedOrigins {
		a := strings.TrimRight(strings.TrimSpace(allowed), "/")
		if a == "" {
			continue
		}
		if strings.HasPrefix(a, "http://") || strings.HasPrefix(a, "https://") {
			if strings.EqualFold(a, origin) {
				return true
			}
			continue
		}
		if strings.EqualFold(a, originHost) {
			return true
		}
	}
	return false
}

type client struct {
	conn   *websocket.Conn
	sendCh chan []byte
	mu     sync.Mutex
	closed bool
}

func (c *client) enqueue(ev envelope) {
	b, err := json.Marshal(ev)
	if err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.sendCh <- b:
	default:
	}
}

func (c *client) loop() {
	for msg := range c.sendCh {
		_ = c.conn.WriteMessage(websocket.TextMessage, msg)
	}
}

func (c *client) close() error {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.sendCh)
	}
	c.mu.Unlock()
	return c.conn.Close()
}
