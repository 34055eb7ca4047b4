package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 64
)

// Client is one websocket connection. The read pump runs in the caller's
// goroutine; WriteMessages is the only writer of data frames.
type Client struct {
	conn   *connWrapper
	send   chan *WSMessage
	done   chan struct{}
	once   sync.Once
	id     string
	logger *zap.SugaredLogger
}

func NewClient(conn *websocket.Conn, id string, logger *zap.SugaredLogger) *Client {
	return &Client{
		conn:   newConnWrapper(conn),
		send:   make(chan *WSMessage, sendBuffer), // buffered so a slow reader never stalls a room
		done:   make(chan struct{}),
		id:     id,
		logger: logger,
	}
}

func (c *Client) ID() string {
	return c.id
}

// Enqueue hands msg to the write pump without blocking. It reports false
// when the client is closed or its buffer is full.
func (c *Client) Enqueue(msg *WSMessage) bool {
	if c.Closed() {
		return false
	}

	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// ReadMessages delivers every inbound frame to handle until the connection
// fails or is closed.
func (c *Client) ReadMessages(handle func(raw []byte)) {
	defer c.Close()

	ws := c.conn.conn
	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warnw("ws read error", "client", c.id, "error", err)
			}
			return
		}
		handle(raw)
	}
}

func (c *Client) WriteMessages() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			if err := c.conn.WriteJSON(msg); err != nil {
				c.logger.Debugw("ws write error", "client", c.id, "error", err)
				return
			}
		case <-ticker.C:
			if err := c.conn.WritePing(); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// Closed reports whether Close has begun.
func (c *Client) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Evict closes a client that cannot keep up. The socket is torn down on its
// own goroutine since callers may hold a room lock.
func (c *Client) Evict() {
	go c.Close()
}

// Close is safe to call from any goroutine, any number of times.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.WriteClose()
		_ = c.conn.Close()
	})
}
