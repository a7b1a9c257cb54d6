package transport

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

// inbox records submitted commands.
type inbox struct {
	mu     sync.Mutex
	cmds   []string
	reject bool
}

func (in *inbox) submit(cmd string) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.reject {
		return false
	}
	in.cmds = append(in.cmds, cmd)
	return true
}

func (in *inbox) commands() []string {
	in.mu.Lock()
	defer in.mu.Unlock()
	return append([]string(nil), in.cmds...)
}

func newTestServer(t *testing.T, opts ServerOptions) (*Hub, *inbox, *httptest.Server) {
	t.Helper()
	parser, err := NewCommandParser()
	require.NoError(t, err)

	in := &inbox{}
	hub := NewHub(parser, in.submit)
	srv := NewServer(hub, opts)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		hub.Close()
		ts.Close()
	})
	return hub, in, ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	return msg
}

func TestHub_CommandsReachInput(t *testing.T) {
	hub, in, ts := newTestServer(t, ServerOptions{})
	conn := dial(t, ts)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("examine bookshelf")))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"action":"talk","data":{"target":"owner"}}`)))

	require.Eventually(t, func() bool { return len(in.commands()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"examine bookshelf", "talk owner"}, in.commands())
}

func TestHub_InvalidCommandGetsErrorReply(t *testing.T) {
	hub, in, ts := newTestServer(t, ServerOptions{})
	conn := dial(t, ts)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"data":{}}`)))

	reply := gjson.ParseBytes(readFrame(t, conn))
	assert.Equal(t, "error", reply.Get("type").String())
	assert.Contains(t, reply.Get("data.message").String(), "invalid command")
	assert.Empty(t, in.commands())
	assert.Equal(t, uint64(1), hub.Stats().Rejected)
}

func TestHub_BroadcastAndDedup(t *testing.T) {
	hub, _, ts := newTestServer(t, ServerOptions{})
	a := dial(t, ts)
	b := dial(t, ts)
	require.Eventually(t, func() bool { return hub.Clients() == 2 }, time.Second, 5*time.Millisecond)

	hub.Send([]byte(`{"n":1}`))
	hub.Send([]byte(`{"n":1}`))
	hub.Send([]byte(`{"n":2}`))

	for _, conn := range []*websocket.Conn{a, b} {
		assert.Equal(t, `{"n":1}`, string(readFrame(t, conn)))
		assert.Equal(t, `{"n":2}`, string(readFrame(t, conn)))
	}
	assert.Equal(t, uint64(1), hub.Stats().Skipped)
}

func TestHub_NewClientGetsLastFrame(t *testing.T) {
	hub, _, ts := newTestServer(t, ServerOptions{})
	hub.Send([]byte(`{"state":"Exploring"}`))

	conn := dial(t, ts)
	assert.Equal(t, `{"state":"Exploring"}`, string(readFrame(t, conn)))
}

func TestHub_ErrorFramesAreNotReplayed(t *testing.T) {
	hub, _, ts := newTestServer(t, ServerOptions{})
	a := dial(t, ts)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	state := `{"type":"gameState","data":{"state":"Exploring"}}`
	hub.Send([]byte(state))
	hub.Send(ErrorResponse("unknown command: dance", 400))
	hub.Send(ErrorResponse("unknown command: dance", 400))

	assert.Equal(t, state, string(readFrame(t, a)))
	for range 2 {
		assert.Equal(t, "error", gjson.GetBytes(readFrame(t, a), "type").String())
	}
	assert.Zero(t, hub.Stats().Skipped)

	b := dial(t, ts)
	assert.Equal(t, state, string(readFrame(t, b)))
}

func TestHub_CloseDisconnectsClients(t *testing.T) {
	hub, _, ts := newTestServer(t, ServerOptions{})
	conn := dial(t, ts)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	hub.Close()
	assert.Zero(t, hub.Clients())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)

	assert.NotPanics(t, func() { hub.Send([]byte("late")) })
}

func TestServer_Health(t *testing.T) {
	_, _, ts := newTestServer(t, ServerOptions{})

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_Stats(t *testing.T) {
	_, _, ts := newTestServer(t, ServerOptions{
		Stats: func() any { return map[string]int{"ticks": 7} },
	})

	resp, err := http.Get(ts.URL + "/stats")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body bytes.Buffer
	_, err = body.ReadFrom(resp.Body)
	require.NoError(t, err)
	doc := gjson.Parse(body.String())
	assert.Equal(t, int64(7), doc.Get("runtime.ticks").Int())
	assert.True(t, doc.Get("hub.clients").Exists())
}

func TestServer_Command(t *testing.T) {
	_, in, ts := newTestServer(t, ServerOptions{})

	resp, err := http.Post(ts.URL+"/command", "application/json", strings.NewReader(`{"optionId":"opt2"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, []string{"choose opt2"}, in.commands())

	resp, err = http.Post(ts.URL+"/command", "application/json", strings.NewReader(`{"nope":1}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	in.mu.Lock()
	in.reject = true
	in.mu.Unlock()
	resp, err = http.Post(ts.URL+"/command", "text/plain", strings.NewReader("pause"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestServer_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "memento_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	_, _, ts := newTestServer(t, ServerOptions{Gatherer: reg})

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body bytes.Buffer
	_, err = body.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, body.String(), "memento_test_total 1")
}

func TestServer_MetricsDisabled(t *testing.T) {
	_, _, ts := newTestServer(t, ServerOptions{})

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_ServeStopsOnContext(t *testing.T) {
	parser, err := NewCommandParser()
	require.NoError(t, err)
	hub := NewHub(parser, func(string) bool { return true })
	srv := NewServer(hub, ServerOptions{ShutdownTimeout: time.Second})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}
