package wss

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var errClientClosed = errors.New("client connection closed")

// Client wraps a websocket connection with an opaque id and a write lock.
// gorilla conns do not allow concurrent writers, and the id lets broadcasts
// exclude an originator without comparing connection identity.
type Client struct {
	id     string
	sock   *websocket.Conn
	mu     sync.Mutex
	closed atomic.Bool
}

func NewClient(sock *websocket.Conn) *Client {
	return &Client{
		id:   uuid.New().String(),
		sock: sock,
	}
}

func (c *Client) ID() string {
	return c.id
}

func (c *Client) Open() bool {
	return !c.closed.Load()
}

func (c *Client) SendJSON(v any) error {
	if c.closed.Load() {
		return errClientClosed
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sock.WriteJSON(v)
}

func (c *Client) markClosed() {
	c.closed.Store(true)
}
