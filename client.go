package main

import (
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Client wraps one live websocket connection. Its id is assigned at
// upgrade time and doubles as the player id in whichever room the
// connection joins.
type Client struct {
	id   string
	conn *websocket.Conn

	mu     sync.Mutex
	send   chan any
	closed bool
}

func newClient(conn *websocket.Conn) *Client {
	return &Client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan any, 8),
	}
}

// closeSend closes the outbound channel, and the connection itself so
// the client's read loop winds down promptly. It can be reached from
// both the slow-client drop path and connection teardown, and races
// with trySend, so the closed flag is settled under the lock.
func (c *Client) closeSend() {
	c.mu.Lock()
	alreadyClosed := c.closed
	c.closed = true
	if !alreadyClosed {
		close(c.send)
	}
	c.mu.Unlock()

	if !alreadyClosed && c.conn != nil {
		_ = c.conn.Close()
	}
}

// trySend queues a message for this client without blocking, reporting
// whether it was accepted. Messages to a closed or saturated client
// are dropped.
func (c *Client) trySend(msg any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) readPump(cfg *Config, reg *Registry) {
	defer func() {
		reg.Leave(cfg, c)
		c.closeSend()
	}()

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		dispatch(cfg, reg, c, msg)
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}
