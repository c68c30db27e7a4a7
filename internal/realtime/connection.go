package realtime

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var ErrBackpressure = errors.New("backpressure")
var ErrConnectionClosed = errors.New("connection closed")

// Envelope is the wire format for every room-scoped message: a type tag and
// an opaque payload the relay never inspects.
type Envelope struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// Connection is a live participant endpoint. Send is best-effort and must
// not block: implementations drop on backpressure rather than stall the
// registry or relay.
type Connection interface {
	Send(env Envelope) error
	Close()
}

const (
	sendBufferSize = 64
	writeDeadline  = 5 * time.Second
)

// wsConn is an indirection over *websocket.Conn to ease testing.
type wsConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(mt int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// WSConnection adapts a gorilla websocket to Connection. All writes go
// through a buffered channel drained by a single write loop, which keeps
// per-sender delivery ordered and the websocket free of concurrent writers.
type WSConnection struct {
	conn wsConn
	send chan []byte

	mu     sync.Mutex
	closed bool
}

func NewWSConnection(conn *websocket.Conn) *WSConnection {
	return newWSConnection(conn)
}

func newWSConnection(conn wsConn) *WSConnection {
	return &WSConnection{
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
}

func (c *WSConnection) Send(env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnectionClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrBackpressure
	}
}

func (c *WSConnection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
}

// StartWriteLoop pumps queued envelopes to the network. It owns the
// transport and closes it on exit.
func (c *WSConnection) StartWriteLoop() {
	go func() {
		defer c.Close()
		for data := range c.send {
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}()
}
