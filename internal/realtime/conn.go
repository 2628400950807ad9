package realtime

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Connection-level errors.
var (
	// ErrConnClosed is returned when enqueuing to a connection that has
	// already been closed.
	ErrConnClosed = errors.New("connection closed")

	// ErrSendBufferFull is returned when a connection's outbound queue is
	// full. The caller treats this as a slow consumer and drops the connection.
	ErrSendBufferFull = errors.New("connection send buffer full")
)

// Conn is a single client websocket connection, bound to one verified user
// identity for its entire lifetime. All writes flow through a buffered send
// queue drained by a single write pump goroutine, which preserves the
// per-connection delivery order of enqueued events.
type Conn struct {
	id     string
	userID uuid.UUID
	sock   *websocket.Conn
	logger *slog.Logger

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// NewConn wraps an upgraded websocket for the given user. The socket may be
// nil in tests that only exercise queueing and room membership.
func NewConn(sock *websocket.Conn, userID uuid.UUID, sendBufferSize int, logger *slog.Logger) *Conn {
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.New().String()
	return &Conn{
		id:     id,
		userID: userID,
		sock:   sock,
		logger: logger.With(slog.String("connection_id", id)),
		send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
	}
}

// ID returns the connection's transport identifier.
func (c *Conn) ID() string { return c.id }

// UserID returns the verified user identity attached at admission.
func (c *Conn) UserID() uuid.UUID { return c.userID }

// Enqueue places a payload on the outbound queue without blocking.
// Returns ErrConnClosed if the connection is closed and ErrSendBufferFull if
// the queue is full.
func (c *Conn) Enqueue(payload []byte) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}

	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return ErrConnClosed
	default:
		return ErrSendBufferFull
	}
}

// Close shuts the connection down. Safe to call multiple times and from any
// goroutine; the write pump exits and the underlying socket is closed.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.sock != nil {
			_ = c.sock.Close()
		}
	})
}

// WritePump drains the send queue onto the socket, pinging on idle. It is the
// only goroutine that writes to the socket and must be started exactly once.
// Any write failure closes the connection; that is the only failure signal
// the push layer has.
func (c *Conn) WritePump(writeTimeout, pingInterval time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case payload := <-c.send:
			_ = c.sock.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.sock.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.logger.Debug("websocket write failed, closing connection", "error", err)
				return
			}
		case <-ticker.C:
			_ = c.sock.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("websocket ping failed, closing connection", "error", err)
				return
			}
		case <-c.done:
			return
		}
	}
}
