package transport

import (
	"bytes"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
)

const (
	writeWait       = 5 * time.Second
	maxMessageSize  = 4096
	defaultSendSize = 64
)

// Sink receives serialized frames from the active state's Render and
// command errors.
type Sink interface {
	Send(msg []byte)
}

// InputFunc hands a textual command to the engine. It returns false when
// the command was dropped.
type InputFunc func(cmd string) bool

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithHubLogger sets the hub's logger.
func WithHubLogger(logger *slog.Logger) HubOption {
	return func(h *Hub) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithSendBuffer sets the per-client outbound buffer. Clients that fall
// further behind are disconnected.
func WithSendBuffer(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.sendBuffer = n
		}
	}
}

// WithCheckOrigin overrides the WebSocket origin check.
func WithCheckOrigin(fn func(r *http.Request) bool) HubOption {
	return func(h *Hub) {
		h.upgrader.CheckOrigin = fn
	}
}

// HubStats is a snapshot of hub activity.
type HubStats struct {
	Clients     int    `json:"clients"`
	Connections uint64 `json:"connections"`
	Received    uint64 `json:"received"`
	Rejected    uint64 `json:"rejected"`
	Sent        uint64 `json:"sent"`
	Skipped     uint64 `json:"skipped"`
	Evicted     uint64 `json:"evicted"`
}

// Hub fans frames out to WebSocket clients and feeds their commands to
// the engine. It implements Sink.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	last    []byte
	closed  bool

	parser     *CommandParser
	input      InputFunc
	upgrader   websocket.Upgrader
	sendBuffer int
	logger     *slog.Logger

	connections atomic.Uint64
	received    atomic.Uint64
	rejected    atomic.Uint64
	sent        atomic.Uint64
	skipped     atomic.Uint64
	evicted     atomic.Uint64
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates a hub that submits parsed commands through input.
func NewHub(parser *CommandParser, input InputFunc, opts ...HubOption) *Hub {
	h := &Hub{
		clients:    make(map[*client]struct{}),
		parser:     parser,
		input:      input,
		sendBuffer: defaultSendSize,
		logger:     slog.New(slog.DiscardHandler),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With("component", "transport.hub")
	return h
}

// Send broadcasts msg to every client. A frame identical to the previous
// one is skipped. Clients whose buffer is full are disconnected.
func (h *Hub) Send(msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	// Error frames answer one command; they are never deduplicated or
	// replayed to clients that connect later.
	if gjson.GetBytes(msg, "type").String() != KindError {
		if bytes.Equal(msg, h.last) {
			h.skipped.Add(1)
			return
		}
		h.last = append(h.last[:0], msg...)
	}

	frame := make([]byte, len(msg))
	copy(frame, msg)
	for c := range h.clients {
		select {
		case c.send <- frame:
			h.sent.Add(1)
		default:
			h.evicted.Add(1)
			h.logger.Warn("slow client evicted", "remote", c.conn.RemoteAddr().String())
			h.removeLocked(c)
		}
	}
}

// Submit parses msg and hands the command to the engine.
func (h *Hub) Submit(msg []byte) (string, error) {
	h.received.Add(1)

	cmd, err := h.parser.Parse(msg)
	if err != nil {
		h.rejected.Add(1)
		return "", err
	}
	if !h.input(cmd) {
		h.rejected.Add(1)
		return cmd, ErrInputRejected
	}
	return cmd, nil
}

// ServeHTTP upgrades the request and serves the client until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, h.sendBuffer)}
	if !h.register(c) {
		_ = conn.Close()
		return
	}
	h.connections.Add(1)
	h.logger.Info("client connected", "remote", conn.RemoteAddr().String())

	go c.writeLoop()
	h.readLoop(c)
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Stats returns a snapshot of hub activity.
func (h *Hub) Stats() HubStats {
	return HubStats{
		Clients:     h.Clients(),
		Connections: h.connections.Load(),
		Received:    h.received.Load(),
		Rejected:    h.rejected.Load(),
		Sent:        h.sent.Load(),
		Skipped:     h.skipped.Load(),
		Evicted:     h.evicted.Load(),
	}
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for c := range h.clients {
		h.removeLocked(c)
	}
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	if h.last != nil {
		frame := make([]byte, len(h.last))
		copy(frame, h.last)
		c.send <- frame
	}
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

// removeLocked closes c's send channel, which ends its write loop.
func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

// reply queues msg for c alone. It is dropped if the buffer is full.
func (h *Hub) reply(c *client, msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

func (h *Hub) readLoop(c *client) {
	defer func() {
		h.unregister(c)
		h.logger.Info("client disconnected", "remote", c.conn.RemoteAddr().String())
	}()

	c.conn.SetReadLimit(maxMessageSize)
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("client read failed", "error", err)
			}
			return
		}

		cmd, err := h.Submit(msg)
		if err != nil {
			h.logger.Debug("command rejected", "command", cmd, "error", err)
			h.reply(c, ErrorResponse(err.Error(), 400))
		}
	}
}

func (c *client) writeLoop() {
	defer c.conn.Close()

	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
