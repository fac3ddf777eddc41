package ws

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"cadcore/internal/logging"
	"cadcore/internal/scene"
)

// Message types sent to clients.
const (
	TypeSnapshot = "snapshot"
	TypeUpsert   = "upsert"
	TypeRemove   = "remove"
)

// Defaults for Hub options.
const (
	DefaultPingInterval = 15 * time.Second
	DefaultWriteTimeout = 5 * time.Second
	DefaultQueueSize    = 256
)

// Message is one frame of the scene feed. Seq increases by one per broadcast
// delta. A snapshot's Seq is read before its nodes are captured, so it is a
// lower bound: deltas numbered after it may repeat changes the snapshot
// already shows. Clients apply them idempotently.
type Message struct {
	Type  string       `json:"type"`
	Seq   uint64       `json:"seq"`
	ID    string       `json:"id,omitempty"`
	Node  *scene.Node  `json:"node,omitempty"`
	Nodes []scene.Node `json:"nodes,omitempty"`
}

// Source is the scene the hub mirrors.
type Source interface {
	Nodes() []scene.Node
	Subscribe(fn func(scene.Event)) func()
}

type client struct {
	w    *SafeWriter
	send chan Message
	done chan struct{}
	once sync.Once
}

func (c *client) stop() { c.once.Do(func() { close(c.done) }) }

// Hub fans scene events out to connected websocket clients.
type Hub struct {
	src      Source
	upgrader websocket.Upgrader
	logger   *slog.Logger

	pingInterval time.Duration
	writeTimeout time.Duration
	queueSize    int

	mu      sync.Mutex
	seq     uint64
	clients map[*client]struct{}
	closed  bool
	unsub   func()
	wg      sync.WaitGroup
}

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the hub logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) { h.logger = l }
}

// WithPingInterval sets the keepalive interval; 0 disables pings.
func WithPingInterval(d time.Duration) Option {
	return func(h *Hub) { h.pingInterval = d }
}

// WithQueueSize bounds the per-client backlog. Clients that fall further
// behind are disconnected.
func WithQueueSize(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.queueSize = n
		}
	}
}

// WithCheckOrigin overrides the upgrader origin check.
func WithCheckOrigin(fn func(*http.Request) bool) Option {
	return func(h *Hub) { h.upgrader.CheckOrigin = fn }
}

// NewHub subscribes to src and returns a hub ready to serve.
func NewHub(src Source, opts ...Option) *Hub {
	h := &Hub{
		src:          src,
		pingInterval: DefaultPingInterval,
		writeTimeout: DefaultWriteTimeout,
		queueSize:    DefaultQueueSize,
		clients:      make(map[*client]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = logging.Or(h.logger).With("component", "ws")
	h.unsub = src.Subscribe(h.broadcast)
	return h
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) broadcast(ev scene.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.seq++
	msg := Message{Type: TypeRemove, Seq: h.seq, ID: ev.ID}
	if ev.Kind == scene.EventUpsert {
		n := ev.Node
		msg.Type = TypeUpsert
		msg.Node = &n
	}
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.logger.Warn("dropping slow client", "backlog", len(c.send))
			delete(h.clients, c)
			c.stop()
		}
	}
}

// ServeHTTP upgrades the request and streams the scene until the client
// disconnects or the hub closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("upgrade failed", "error", err)
		return
	}
	c := &client{
		w:    NewSafeWriter(conn, h.writeTimeout),
		send: make(chan Message, h.queueSize),
		done: make(chan struct{}),
	}

	// Register before taking the snapshot so no delta falls between them.
	// Deltas queued meanwhile are replayed after it; upserts and removes are
	// idempotent on the client.
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = c.w.CloseWith(websocket.CloseGoingAway, "shutting down")
		return
	}
	h.clients[c] = struct{}{}
	seq := h.seq
	h.wg.Add(1)
	h.mu.Unlock()
	defer h.wg.Done()

	h.logger.Info("client connected", "remote", conn.RemoteAddr().String())
	snap := Message{Type: TypeSnapshot, Seq: seq, Nodes: h.src.Nodes()}
	if snap.Nodes == nil {
		snap.Nodes = []scene.Node{}
	}
	if err := c.w.WriteJSON(snap); err != nil {
		h.drop(c)
		_ = conn.Close()
		return
	}

	go h.readLoop(conn, c)
	h.writeLoop(c)
	h.drop(c)
	_ = c.w.CloseWith(websocket.CloseNormalClosure, "")
	h.logger.Info("client disconnected", "remote", conn.RemoteAddr().String())
}

// readLoop discards client frames; it exists to process control frames and
// notice disconnects.
func (h *Hub) readLoop(conn *websocket.Conn, c *client) {
	defer c.stop()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	var tick <-chan time.Time
	if h.pingInterval > 0 {
		t := time.NewTicker(h.pingInterval)
		defer t.Stop()
		tick = t.C
	}
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			if err := c.w.WriteJSON(msg); err != nil {
				h.logger.Debug("write failed", "error", err)
				return
			}
		case <-tick:
			if err := c.w.Ping(); err != nil {
				return
			}
		}
	}
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.stop()
}

// Close unsubscribes from the scene, disconnects every client and waits for
// their handlers to return.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		c.stop()
	}
	h.mu.Unlock()
	h.unsub()
	h.wg.Wait()
}
