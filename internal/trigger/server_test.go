package trigger

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/normanking/cortexmotion/internal/bus"
	"github.com/normanking/cortexmotion/internal/metrics"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSnapshots struct {
	mu     sync.Mutex
	values map[string]float32
}

func (s *staticSnapshots) Snapshot() map[string]float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]float32, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

func newTestServer(t *testing.T) (*Server, *httptest.Server, chan Command) {
	t.Helper()
	b := bus.NewEventBus()
	got := make(chan Command, 16)
	b.Subscribe(bus.EventTypeTrigger, func(e bus.Event) {
		got <- e.Data["command"].(Command)
	})

	cfg := DefaultConfig()
	cfg.StreamHz = 100
	snaps := &staticSnapshots{values: map[string]float32{"ParamEyeLOpen": 1, "ParamAngleX": 4.5}}
	s := NewServer(cfg, b, snaps, metrics.NewRecorder(), zerolog.Nop())
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts, got
}

func receive(t *testing.T, ch chan Command) Command {
	t.Helper()
	select {
	case c := <-ch:
		return c
	case <-time.After(2 * time.Second):
		require.Fail(t, "no command published")
		return Command{}
	}
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHTTPTrigger(t *testing.T) {
	_, ts, got := newTestServer(t)

	resp, err := http.Post(ts.URL+"/trigger", "application/json", strings.NewReader(`{"command":"START_SPEAK"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	var reply Reply
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&reply))
	assert.Equal(t, "ack", reply.Type)
	assert.Equal(t, CmdStartSpeaking, reply.Command)
	assert.NotEmpty(t, reply.ID)

	cmd := receive(t, got)
	assert.Equal(t, CmdStartSpeaking, cmd.Name)
	assert.Equal(t, reply.ID, cmd.ID)
}

func TestHTTPTriggerErrors(t *testing.T) {
	_, ts, _ := newTestServer(t)

	tests := []struct {
		body   string
		status int
	}{
		{"dance", http.StatusNotFound},
		{"shake loud", http.StatusBadRequest},
		{"subscribe", http.StatusBadRequest},
		{strings.Repeat("x", 5000), http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		resp, err := http.Post(ts.URL+"/trigger", "text/plain", strings.NewReader(tt.body))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, tt.status, resp.StatusCode, tt.body[:min(len(tt.body), 12)])
	}

	resp, err := http.Get(ts.URL + "/trigger")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestWebSocketCommands(t *testing.T) {
	s, ts, got := newTestServer(t)
	conn := dial(t, ts)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("shake 1.5")))
	var reply Reply
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "ack", reply.Type)
	assert.Equal(t, CmdShake, reply.Command)

	cmd := receive(t, got)
	assert.Equal(t, float32(1.5), cmd.Intensity)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"command":"nope"}`)))
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "error", reply.Type)
	assert.Contains(t, reply.Message, "unknown command")

	assert.Eventually(t, func() bool { return s.Clients() == 1 }, time.Second, 10*time.Millisecond)
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()
	assert.Eventually(t, func() bool { return s.Clients() == 0 }, time.Second, 10*time.Millisecond)
}

func TestCommandsKeepArrivalOrder(t *testing.T) {
	_, ts, got := newTestServer(t)
	conn := dial(t, ts)

	sent := []string{"start-speaking", "stop-speaking", "shake", "auto-shake off", "reseed"}
	for _, msg := range sent {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(msg)))
	}
	var reply Reply
	for range sent {
		require.NoError(t, conn.ReadJSON(&reply))
		require.Equal(t, "ack", reply.Type)
	}

	want := []Name{CmdStartSpeaking, CmdStopSpeaking, CmdShake, CmdAutoShake, CmdReseed}
	for _, name := range want {
		assert.Equal(t, name, receive(t, got).Name)
	}

	for _, body := range []string{"set-mode vertical-nod", "set-mode look-around", "start-speaking", "stop-speaking"} {
		resp, err := http.Post(ts.URL+"/trigger", "text/plain", strings.NewReader(body))
		require.NoError(t, err)
		resp.Body.Close()
	}
	assert.Equal(t, "vertical-nod", receive(t, got).Mode)
	assert.Equal(t, "look-around", receive(t, got).Mode)
	assert.Equal(t, CmdStartSpeaking, receive(t, got).Name)
	assert.Equal(t, CmdStopSpeaking, receive(t, got).Name)
}

func TestWebSocketSnapshotStream(t *testing.T) {
	s, ts, _ := newTestServer(t)
	conn := dial(t, ts)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Stream(ctx)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("SUBSCRIBE")))

	var snapshot *Reply
	deadline := time.Now().Add(2 * time.Second)
	for snapshot == nil && time.Now().Before(deadline) {
		var r Reply
		require.NoError(t, conn.ReadJSON(&r))
		if r.Type == "snapshot" {
			snapshot = &r
		}
	}
	require.NotNil(t, snapshot)
	assert.Equal(t, float32(4.5), snapshot.Parameters["ParamAngleX"])
	assert.Equal(t, float32(1), snapshot.Parameters["ParamEyeLOpen"])
}

func TestHealthAndMetrics(t *testing.T) {
	_, ts, _ := newTestServer(t)
	dial(t, ts)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health["status"])

	resp2, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp2.Body.Close()
	body, err := io.ReadAll(resp2.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "cortexmotion_clients_active")
}

func TestServeShutsDownOnCancel(t *testing.T) {
	s := NewServer(Config{Addr: "127.0.0.1:0"}, nil, nil, nil, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		require.Fail(t, "server did not stop")
	}
}
