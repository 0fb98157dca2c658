package actions

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/harunnryd/voicetrigger/pkg/detect"
	"github.com/harunnryd/voicetrigger/pkg/errorsx"
	"github.com/harunnryd/voicetrigger/pkg/logging"
)

type HubConfig struct {
	Addr           string   `mapstructure:"addr"`
	Path           string   `mapstructure:"path"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

func (c HubConfig) withDefaults() HubConfig {
	if c.Addr == "" {
		c.Addr = "127.0.0.1:8765"
	}
	if c.Path == "" {
		c.Path = "/events"
	}
	return c
}

// DetectionMessage is the JSON pushed to websocket clients.
type DetectionMessage struct {
	Type     string    `json:"type"`
	ID       string    `json:"id"`
	At       time.Time `json:"at"`
	Backend  string    `json:"backend"`
	WakeWord string    `json:"wake_word"`
}

// Hub broadcasts detections to connected websocket clients.
type Hub struct {
	cfg      HubConfig
	upgrader websocket.Upgrader
	server   *http.Server
	logger   *slog.Logger

	mu       sync.Mutex
	clients  map[*client]struct{}
	draining atomic.Bool
}

func NewHub(cfg HubConfig) *Hub {
	h := &Hub{
		cfg:     cfg.withDefaults(),
		logger:  logging.NewComponentLogger(slog.Default(), "ws_hub"),
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	h.upgrader.CheckOrigin = h.checkOrigin
	return h
}

func (h *Hub) Name() string { return "websocket" }

// Start listens on cfg.Addr. A bind failure is returned synchronously.
func (h *Hub) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", h.cfg.Addr)
	if err != nil {
		return errorsx.Wrapf(err, errorsx.ReasonConfiguration, "websocket hub listen %s", h.cfg.Addr)
	}
	mux := http.NewServeMux()
	mux.Handle(h.cfg.Path, h)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h.server = &http.Server{
		ReadHeaderTimeout: 5 * time.Second,
		Handler:           mux,
	}
	go func() {
		<-ctx.Done()
		_ = h.Close()
	}()
	go func() {
		if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("ws_hub_server_error", slog.String("error", err.Error()))
		}
	}()
	h.logger.Info("ws_hub_listening", slog.String("addr", ln.Addr().String()), slog.String("path", h.cfg.Path))
	return nil
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.draining.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &client{conn: conn, sendCh: make(chan []byte, 16)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	go c.loop()

	// Clients only listen; reading detects the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	_ = c.close()
}

// Fire broadcasts ev. Slow clients miss messages rather than stall others.
func (h *Hub) Fire(_ context.Context, ev detect.Event) error {
	b, err := json.Marshal(DetectionMessage{
		Type:     "wake_word",
		ID:       ev.ID,
		At:       ev.At.UTC(),
		Backend:  ev.Backend.String(),
		WakeWord: ev.WakeWord,
	})
	if err != nil {
		return errorsx.Wrapf(err, errorsx.ReasonActionSend, "encode detection")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.enqueue(b)
	}
	return nil
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) Close() error {
	if !h.draining.CompareAndSwap(false, true) {
		return nil
	}
	var err error
	if h.server != nil {
		err = h.server.Close()
	}
	h.mu.Lock()
	for c := range h.clients {
		_ = c.close()
	}
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()
	return err
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := strings.TrimRight(strings.TrimSpace(r.Header.Get("Origin")), "/")
	if origin == "" || len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if strings.EqualFold(strings.TrimRight(strings.TrimSpace(allowed), "/"), origin) {
			return true
		}
	}
	return false
}

type client struct {
	conn   *websocket.Conn
	sendCh chan []byte
	closed atomic.Bool
}

func (c *client) enqueue(b []byte) {
	if c.closed.Load() {
		return
	}
	select {
	case c.sendCh <- b:
	default:
	}
}

func (c *client) loop() {
	for msg := range c.sendCh {
		_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (c *client) close() error {
	if c.closed.CompareAndSwap(false, true) {
		close(c.sendCh)
	}
	return c.conn.Close()
}

var _ Action = (*Hub)(nil)
