package ws

import (
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"backoffice/internal/model"
	"backoffice/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// Client is one websocket session. Frames are queued on a bounded
// channel drained by writePump; Send never blocks.
type Client struct {
	id     string
	conn   *websocket.Conn
	logger *zap.Logger

	mu     sync.Mutex
	send   chan protocol.Envelope
	closed bool
}

func newClient(id string, conn *websocket.Conn, queueSize int, logger *zap.Logger) *Client {
	return &Client{
		id:     id,
		conn:   conn,
		logger: logger,
		send:   make(chan protocol.Envelope, queueSize),
	}
}

func (c *Client) ID() string {
	return c.id
}

// Send queues env, failing with model.ErrDeliveryFailed when the queue is
// full or the client is closed.
func (c *Client) Send(env protocol.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("client %s closed: %w", c.id, model.ErrDeliveryFailed)
	}
	select {
	case c.send <- env:
		return nil
	default:
		return fmt.Errorf("client %s send queue full: %w", c.id, model.ErrDeliveryFailed)
	}
}

// close stops writePump after it flushes what is queued.
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case env, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(env); err != nil {
				c.logger.Debug("Websocket write failed", zap.String("connection_id", c.id), zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
