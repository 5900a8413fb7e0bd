package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/normanking/cortexmotion/internal/bus"
	"github.com/normanking/cortexmotion/internal/metrics"
	"github.com/rs/zerolog"
)

// Config configures the trigger server.
type Config struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
	// Rate of parameter snapshots pushed to subscribed websocket clients.
	StreamHz float32 `mapstructure:"stream_hz"`
	// Largest accepted command body in bytes.
	MaxMessageSize int64 `mapstructure:"max_message_size"`
}

// DefaultConfig returns the server defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:        true,
		Addr:           "127.0.0.1:8765",
		StreamHz:       30,
		MaxMessageSize: 4096,
	}
}

// SnapshotSource provides the latest parameter values. It must be safe to
// call from any goroutine.
type SnapshotSource interface {
	Snapshot() map[string]float32
}

// Reply is written back to websocket clients.
type Reply struct {
	Type       string             `json:"type"`
	ID         string             `json:"id,omitempty"`
	Command    Name               `json:"command,omitempty"`
	Message    string             `json:"message,omitempty"`
	Time       float64            `json:"time,omitempty"`
	Parameters map[string]float32 `json:"parameters,omitempty"`
}

type client struct {
	id         string
	conn       *websocket.Conn
	writeMu    sync.Mutex
	subscribed atomic.Bool
}

func (c *client) write(r Reply) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	return c.conn.WriteJSON(r)
}

// Server accepts trigger commands over websocket and HTTP and publishes
// them on the bus as EventTypeTrigger.
type Server struct {
	cfg       Config
	log       zerolog.Logger
	bus       *bus.EventBus
	snapshots SnapshotSource
	metrics   *metrics.Recorder
	upgrader  websocket.Upgrader
	started   time.Time

	mu      sync.RWMutex
	clients map[string]*client
}

// NewServer creates a trigger server. snapshots and rec may be nil.
func NewServer(cfg Config, eventBus *bus.EventBus, snapshots SnapshotSource, rec *metrics.Recorder, log zerolog.Logger) *Server {
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = DefaultConfig().MaxMessageSize
	}
	return &Server{
		cfg:       cfg,
		log:       log,
		bus:       eventBus,
		snapshots: snapshots,
		metrics:   rec,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		started: time.Now(),
		clients: make(map[string]*client),
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("POST /trigger", s.handleTrigger)
	mux.Handle("GET /metrics", s.metrics.Handler())
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return mux
}

// Run listens on the configured address until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln and streams snapshots until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	s.log.Info().Str("addr", ln.Addr().String()).Msg("Trigger server listening")

	go s.Stream(ctx)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		s.closeClients()
		return err
	case err := <-errCh:
		s.closeClients()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Stream pushes snapshots to subscribed clients at StreamHz until ctx is
// cancelled.
func (s *Server) Stream(ctx context.Context) {
	if s.snapshots == nil || s.cfg.StreamHz <= 0 {
		return
	}
	ticker := time.NewTicker(time.Duration(float64(time.Second) / float64(s.cfg.StreamHz)))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.broadcast()
		}
	}
}

func (s *Server) broadcast() {
	var targets []*client
	s.mu.RLock()
	for _, c := range s.clients {
		if c.subscribed.Load() {
			targets = append(targets, c)
		}
	}
	s.mu.RUnlock()
	if len(targets) == 0 {
		return
	}

	r := Reply{
		Type:       "snapshot",
		Time:       time.Since(s.started).Seconds(),
		Parameters: s.snapshots.Snapshot(),
	}
	for _, c := range targets {
		if err := c.write(r); err != nil {
			s.log.Debug().Err(err).Str("client", c.id).Msg("Snapshot write failed")
		}
	}
}

// Clients returns the number of connected websocket clients.
func (s *Server) Clients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

func (s *Server) closeClients() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.clients {
		c.conn.Close()
		delete(s.clients, id)
	}
}

// dispatch stamps cmd with an id and publishes it. Delivery is synchronous
// so commands from one connection reach subscribers in arrival order;
// subscribers must not block.
func (s *Server) dispatch(cmd Command, source string) Command {
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}
	s.log.Debug().Str("id", cmd.ID).Str("command", cmd.String()).Str("source", source).Msg("Trigger received")
	if s.bus != nil {
		s.bus.PublishSync(bus.Event{
			Type: bus.EventTypeTrigger,
			Data: map[string]any{"command": cmd, "source": source},
		})
	}
	return cmd
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn.SetReadLimit(s.cfg.MaxMessageSize)

	c := &client{id: uuid.NewString(), conn: conn}
	s.mu.Lock()
	s.clients[c.id] = c
	s.mu.Unlock()
	s.metrics.ClientConnected()
	s.publishClient(bus.EventTypeClientConnected, c.id)
	s.log.Info().Str("client", c.id).Str("remote", r.RemoteAddr).Msg("Client connected")

	defer func() {
		s.mu.Lock()
		delete(s.clients, c.id)
		s.mu.Unlock()
		conn.Close()
		s.metrics.ClientDisconnected()
		s.publishClient(bus.EventTypeClientDisconnected, c.id)
		s.log.Info().Str("client", c.id).Msg("Client disconnected")
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug().Err(err).Str("client", c.id).Msg("WebSocket read ended")
			}
			return
		}
		if err := c.write(s.handleMessage(c, data)); err != nil {
			return
		}
	}
}

func (s *Server) handleMessage(c *client, data []byte) Reply {
	cmd, err := Parse(data)
	if err != nil {
		return Reply{Type: "error", Message: err.Error()}
	}
	switch cmd.Name {
	case CmdSubscribe:
		c.subscribed.Store(true)
		return Reply{Type: "ack", ID: cmd.ID, Command: cmd.Name}
	case CmdUnsubscribe:
		c.subscribed.Store(false)
		return Reply{Type: "ack", ID: cmd.ID, Command: cmd.Name}
	}
	cmd = s.dispatch(cmd, "ws:"+c.id)
	return Reply{Type: "ack", ID: cmd.ID, Command: cmd.Name}
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, s.cfg.MaxMessageSize+1))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Reply{Type: "error", Message: err.Error()})
		return
	}
	if int64(len(data)) > s.cfg.MaxMessageSize {
		writeJSON(w, http.StatusRequestEntityTooLarge, Reply{Type: "error", Message: "command too large"})
		return
	}

	cmd, err := Parse(data)
	switch {
	case errors.Is(err, ErrUnknownCommand):
		writeJSON(w, http.StatusNotFound, Reply{Type: "error", Message: err.Error()})
		return
	case err != nil:
		writeJSON(w, http.StatusBadRequest, Reply{Type: "error", Message: err.Error()})
		return
	case cmd.Name == CmdSubscribe || cmd.Name == CmdUnsubscribe:
		writeJSON(w, http.StatusBadRequest, Reply{Type: "error", Message: "subscriptions need a websocket"})
		return
	}

	cmd = s.dispatch(cmd, "http")
	writeJSON(w, http.StatusAccepted, Reply{Type: "ack", ID: cmd.ID, Command: cmd.Name})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"clients": s.Clients(),
		"uptime":  time.Since(s.started).Seconds(),
	})
}

func (s *Server) publishClient(t bus.EventType, id string) {
	if s.bus != nil {
		s.bus.Publish(bus.Event{Type: t, Data: map[string]any{"client": id}})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
