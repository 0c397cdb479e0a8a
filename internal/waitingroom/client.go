package waitingroom

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait bounds a single websocket write.
	writeWait = 10 * time.Second
	// maxMessageSize bounds inbound client messages; the contract only
	// ever carries tiny JSON objects.
	maxMessageSize = 512
	// sendBuffer is the per-client outbound queue.  A client that
	// cannot drain it fast enough gets dropped rather than stalling
	// the fan-out for everyone else.
	sendBuffer = 32
)

// Client wraps one websocket connection.  Writes go through a
// buffered channel drained by WritePump so that broadcasts from the
// hub never block on a slow socket; gorilla connections allow only
// one concurrent writer.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

// NewClient wraps an upgraded connection.
func NewClient(conn *websocket.Conn) *Client {
	return &Client{conn: conn, send: make(chan []byte, sendBuffer)}
}

// Send enqueues a payload for delivery.  It returns false when the
// client's queue is full or already closed; the caller treats that as
// a dead connection.
func (c *Client) Send(payload []byte) (ok bool) {
	defer func() {
		// Send on a closed channel panics; a concurrently closing
		// client simply reports failure.
		if recover() != nil {
			ok = false
		}
	}()
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// WritePump drains the send queue onto the socket.  It runs in its
// own goroutine for the lifetime of the connection and exits when
// Close is called or a write fails.
func (c *Client) WritePump() {
	for payload := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
	// Queue closed: say goodbye before the socket goes away.
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// ReadMessage blocks for the next inbound text frame.
func (c *Client) ReadMessage() ([]byte, error) {
	c.conn.SetReadLimit(maxMessageSize)
	_, payload, err := c.conn.ReadMessage()
	return payload, err
}

// Close shuts the outbound queue (ending WritePump) and closes the
// socket.  Safe to call from any goroutine, any number of times.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.send)
		_ = c.conn.Close()
	})
}
