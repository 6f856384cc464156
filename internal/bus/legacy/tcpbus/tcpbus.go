// Package tcpbus implements the naive line-framed TCP bus backend: one JSON
// message per line, no length prefix, newline-terminated. It is the
// "legacy" transport carried forward for compatibility, not used by
// default.
//
// Framing is grounded on the magic+length-prefixed Frame in
// sadewadee-maboo's wire protocol, simplified per spec to a bare
// newline delimiter — the legacy TCP bus predates that binary framing and
// never adopted it.
package tcpbus

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"net"
	"sync"

	"ivis-core/internal/bus"
)

// maxLineBytes bounds a single frame to guard against an unbounded read
// from a misbehaving peer.
const maxLineBytes = 1 << 20

// Server accepts TCP connections and fans out every line one publisher
// writes to every other connected reader on the same topic. Topic
// separation is per-listener: run one Server per topic (frames, results).
type Server struct {
	listener net.Listener
	topic    string

	mu      sync.Mutex
	readers map[*net.TCPConn]chan []byte
	closed  bool
}

// Listen starts a Server accepting connections on addr for topic.
func Listen(addr, topic string) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s := &Server{listener: ln, topic: topic, readers: make(map[*net.TCPConn]chan []byte)}
	go s.acceptLoop()
	return s, nil
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		tcpConn, ok := conn.(*net.TCPConn)
		if !ok {
			conn.Close()
			continue
		}
		go s.handleConn(tcpConn)
	}
}

func (s *Server) handleConn(conn *net.TCPConn) {
	ch := make(chan []byte, 64)
	s.mu.Lock()
	s.readers[conn] = ch
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for line := range ch {
			if _, err := conn.Write(append(line, '\n')); err != nil {
				return
			}
		}
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 4096), maxLineBytes)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		s.broadcast(conn, append([]byte(nil), line...))
	}

	s.mu.Lock()
	if existing, ok := s.readers[conn]; ok {
		delete(s.readers, conn)
		close(existing)
	}
	s.mu.Unlock()
	conn.Close()
	<-done
}

func (s *Server) broadcast(exclude *net.TCPConn, line []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn, ch := range s.readers {
		if conn == exclude {
			continue
		}
		select {
		case ch <- line:
		default:
		}
	}
}

// Publish writes payload as a single line to every connected reader.
func (s *Server) Publish(ctx context.Context, topic string, payload []byte) (bus.Outcome, error) {
	if topic != s.topic {
		return bus.Dropped, errors.New("tcpbus: server is scoped to a single topic")
	}
	s.broadcast(nil, payload)
	return bus.Delivered, nil
}

// Subscribe is unsupported on the server side: remote readers connect via
// Dial, the same as wsbus.
func (s *Server) Subscribe(ctx context.Context, topic string) (*bus.Subscription, error) {
	return nil, errors.New("tcpbus: Server does not support local Subscribe, use Dial")
}

// Close stops accepting connections and disconnects every reader.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for conn, ch := range s.readers {
		close(ch)
		conn.Close()
	}
	s.readers = nil
	s.mu.Unlock()
	return s.listener.Close()
}

// Conn is a single dialed TCP connection to a Server, scoped to one topic.
type Conn struct {
	conn  net.Conn
	topic string
	ch    chan bus.Message

	mu     sync.Mutex
	closed bool
}

// Dial connects to a Server listening at addr for topic.
func Dial(addr, topic string) (*Conn, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	c := &Conn{conn: conn, topic: topic, ch: make(chan bus.Message, 64)}
	go c.readLoop()
	return c, nil
}

func (c *Conn) readLoop() {
	defer close(c.ch)
	scanner := bufio.NewScanner(c.conn)
	scanner.Buffer(make([]byte, 4096), maxLineBytes)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		select {
		case c.ch <- bus.Message{Topic: c.topic, Payload: append([]byte(nil), line...)}:
		default:
		}
	}
}

// Publish writes payload as a single newline-terminated line.
func (c *Conn) Publish(ctx context.Context, topic string, payload []byte) (bus.Outcome, error) {
	if topic != c.topic {
		return bus.Dropped, errors.New("tcpbus: connection is scoped to a single topic")
	}
	if bytes.ContainsRune(payload, '\n') {
		return bus.Dropped, errors.New("tcpbus: payload must not contain a newline")
	}
	if _, err := c.conn.Write(append(payload, '\n')); err != nil {
		return bus.Dropped, err
	}
	return bus.Delivered, nil
}

// Subscribe returns the connection's single subscription.
func (c *Conn) Subscribe(ctx context.Context, topic string) (*bus.Subscription, error) {
	if topic != c.topic {
		return nil, errors.New("tcpbus: connection is scoped to a single topic")
	}
	return bus.NewSubscription(topic, c.ch, func() { _ = c.Close() }), nil
}

// Close closes the underlying TCP connection.
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
