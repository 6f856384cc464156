// Package wsbus implements the broadcast bus backend over WebSocket
// connections — the "PUB/SUB proxied by a central broker" topology, where
// one process hosts the Hub and every other process (producer, consumer,
// viewer) dials in as a Client scoped to one topic.
//
// Grounded on the teacher's Broker/Client fan-out in main.go: per-client
// buffered send channel, ping/pong keepalive on a fixed writeWait deadline,
// and best-effort broadcast that drops a client's message rather than
// blocking on a slow reader.
package wsbus

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"ivis-core/internal/bus"
	busauth "ivis-core/internal/bus/auth"
)

const (
	writeWait      = 10 * time.Second
	sendBufferSize = 256
)

// pongWait is the read-deadline window: a connection that neither sends a
// frame nor answers a ping within this window is considered dead. It is a
// var rather than a const so tests can shrink it to exercise the
// unresponsive-peer disconnect path without a 30-second sleep.
var pongWait = 30 * time.Second

func pingInterval() time.Duration { return pongWait / 2 }

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Hub fans out messages published on a topic to every WebSocket client
// currently subscribed to that topic, and satisfies bus.PubSub so a process
// can use it both as the in-process bus and as the HTTP endpoint remote
// processes dial into.
type Hub struct {
	mu     sync.Mutex
	topics map[string]map[*wsClient]bool
	closed bool
	auth   busauth.Authenticator
}

// NewHub constructs an empty broadcast hub that accepts every connection
// without checking credentials.
func NewHub() *Hub {
	return &Hub{topics: make(map[string]map[*wsClient]bool), auth: busauth.AllowAll{}}
}

// NewAuthenticatedHub constructs a hub that rejects connections failing
// auth.Authenticate before upgrading them.
func NewAuthenticatedHub(auth busauth.Authenticator) *Hub {
	return &Hub{topics: make(map[string]map[*wsClient]bool), auth: auth}
}

type wsClient struct {
	conn  *websocket.Conn
	send  chan []byte
	topic string
}

// ServeHTTP upgrades the request to a WebSocket connection scoped to the
// `topic` query parameter and pumps messages between the socket and the
// hub until the connection closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	topic := r.URL.Query().Get("topic")
	if topic == "" {
		http.Error(w, "topic query parameter required", http.StatusBadRequest)
		return
	}
	if h.auth != nil {
		if _, err := h.auth.Authenticate(r); err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	client := &wsClient{conn: conn, send: make(chan []byte, sendBufferSize), topic: topic}
	h.register(client)
	go h.writePump(client)
	h.readPump(client)
}

func (h *Hub) register(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.topics[c.topic] == nil {
		h.topics[c.topic] = make(map[*wsClient]bool)
	}
	h.topics[c.topic][c] = true
}

func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if clients, ok := h.topics[c.topic]; ok {
		if _, ok := clients[c]; ok {
			delete(clients, c)
			close(c.send)
		}
	}
}

func (h *Hub) readPump(c *wsClient) {
	defer func() {
		h.unregister(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		h.broadcastExcept(c.topic, c, payload)
	}
}

func (h *Hub) writePump(c *wsClient) {
	ticker := time.NewTicker(pingInterval())
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
				return
			}
		}
	}
}

// broadcastExcept delivers payload to every client on topic other than
// exclude (the client that just sent it, when called from readPump).
func (h *Hub) broadcastExcept(topic string, exclude *wsClient, payload []byte) bool {
	h.mu.Lock()
	clients := make([]*wsClient, 0, len(h.topics[topic]))
	for c := range h.topics[topic] {
		if c != exclude {
			clients = append(clients, c)
		}
	}
	h.mu.Unlock()

	delivered := len(clients) == 0
	for _, c := range clients {
		select {
		case c.send <- payload:
			delivered = true
		default:
		}
	}
	return delivered
}

// Publish broadcasts payload to every WebSocket client subscribed to topic.
// Used when the hub-hosting process is itself a publisher (e.g. detection
// publishing results on the same process that hosts the hub).
func (h *Hub) Publish(ctx context.Context, topic string, payload []byte) (bus.Outcome, error) {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return bus.Dropped, bus.ErrClosed
	}
	if topic == "" {
		return bus.Dropped, bus.ErrNoTopic
	}
	if h.broadcastExcept(topic, nil, payload) {
		return bus.Delivered, nil
	}
	return bus.Dropped, nil
}

// Subscribe is not supported directly on the Hub: remote processes
// subscribe by dialing ServeHTTP with Dial. A hub-local subscriber that
// wants in-process delivery should use bus.Local instead.
func (h *Hub) Subscribe(ctx context.Context, topic string) (*bus.Subscription, error) {
	return nil, errors.New("wsbus: Hub does not support local Subscribe, use Dial")
}

// Close disconnects every client and stops accepting further publishes.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	for _, clients := range h.topics {
		for c := range clients {
			_ = c.conn.Close()
		}
	}
	return nil
}

// Conn is a single WebSocket connection to a Hub, scoped to one topic, used
// by producer/consumer/viewer processes that dial into the hub process.
type Conn struct {
	conn  *websocket.Conn
	topic string

	mu     sync.Mutex
	subCh  chan bus.Message
	closed bool
}

// Dial connects to a Hub's ServeHTTP endpoint at rawURL (a ws:// or wss://
// URL, without the topic query parameter) scoped to topic. authToken is
// sent as the auth_token query parameter for hubs constructed with
// NewAuthenticatedHub; pass "" against a NewHub with no authenticator.
func Dial(ctx context.Context, rawURL, topic string, authToken ...string) (*Conn, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("topic", topic)
	if len(authToken) > 0 && authToken[0] != "" {
		q.Set("auth_token", authToken[0])
	}
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, err
	}
	c := &Conn{conn: conn, topic: topic, subCh: make(chan bus.Message, sendBufferSize)}
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	go c.readLoop()
	go c.pingLoop()
	return c, nil
}

func (c *Conn) readLoop() {
	defer close(c.subCh)
	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		select {
		case c.subCh <- bus.Message{Topic: c.topic, Payload: payload}:
		default:
		}
	}
}

func (c *Conn) pingLoop() {
	ticker := time.NewTicker(pingInterval())
	defer ticker.Stop()
	for range ticker.C {
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return
		}
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
			return
		}
	}
}

// Publish sends payload to the hub for broadcast to this connection's
// topic. The Conn must have been dialed with the matching topic.
func (c *Conn) Publish(ctx context.Context, topic string, payload []byte) (bus.Outcome, error) {
	if topic != c.topic {
		return bus.Dropped, errors.New("wsbus: connection is scoped to a single topic")
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return bus.Dropped, err
	}
	return bus.Delivered, nil
}

// Subscribe returns the connection's single subscription. topic must match
// the topic the connection was dialed with.
func (c *Conn) Subscribe(ctx context.Context, topic string) (*bus.Subscription, error) {
	if topic != c.topic {
		return nil, errors.New("wsbus: connection is scoped to a single topic")
	}
	return bus.NewSubscription(topic, c.subCh, func() { _ = c.Close() }), nil
}

// Close closes the underlying WebSocket connection.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	return c.conn.Close()
}
