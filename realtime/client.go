package realtime

import (
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 4 * 1024
	sendBuffer     = 64

	// DefaultIdleTimeout closes connections that have not sent any
	// control message (including heartbeat pings) within the window.
	DefaultIdleTimeout = 90 * time.Second
)

// Client owns one websocket connection and its per-connection state
// machine: connected (unsubscribed) -> subscribed -> closed. It is the
// only place raw frames are parsed; everything else happens through the
// registry's and hub's synchronized entry points.
type Client struct {
	conn        *websocket.Conn
	userID      string
	registry    *Registry
	hub         *Hub
	logger      *log.Logger
	idleTimeout time.Duration

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// NewClient wraps an accepted connection for the given verified user.
func NewClient(conn *websocket.Conn, userID string, registry *Registry, hub *Hub, logger *log.Logger, idleTimeout time.Duration) *Client {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	return &Client{
		conn:        conn,
		userID:      userID,
		registry:    registry,
		hub:         hub,
		logger:      logger,
		idleTimeout: idleTimeout,
		send:        make(chan []byte, sendBuffer),
		done:        make(chan struct{}),
	}
}

// UserID returns the identity the connection authenticated with.
func (c *Client) UserID() string { return c.userID }

// Serve sends the welcome acknowledgement and services the connection
// until it closes. It blocks; run it from the connection's handler
// goroutine.
func (c *Client) Serve() {
	go c.writePump()
	c.sendEnvelope(newEnvelope(MsgConnection, "", c.userID, map[string]string{"status": "connected"}))
	c.readPump()
}

// Close tears the connection down. Safe to call from any goroutine and
// more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

// trySend queues data for the write pump without blocking. false means
// the connection is closed or its buffer is full; the hub treats either
// as a dead connection.
func (c *Client) trySend(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) sendEnvelope(env Envelope) {
	data, err := sonic.Marshal(env)
	if err != nil {
		c.logger.Errorf("encode envelope: %v", err)
		return
	}
	c.trySend(data)
}

func (c *Client) readPump() {
	defer c.shutdown()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.idleTimeout))
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.WithField("user", c.userID).Debugf("connection closed: %v", err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(c.idleTimeout))
		c.handleMessage(data)
	}
}

// handleMessage dispatches one parsed control message. Malformed and
// unknown messages are answered with an error envelope on this connection
// only; the connection stays open.
func (c *Client) handleMessage(data []byte) {
	msg, err := decodeControl(data)
	if err != nil {
		c.sendError("malformed message")
		return
	}
	switch msg.Type {
	case MsgSubscribeBoard:
		if msg.BoardID == "" {
			c.sendError("subscribe_board requires boardId")
			return
		}
		prev, already := c.registry.Subscribe(c, msg.BoardID)
		if prev != "" {
			c.hub.NotifyPresence(prev, c.userID, PresenceLeft)
		}
		c.sendEnvelope(newEnvelope(MsgSubscriptionConfirmed, msg.BoardID, c.userID, nil))
		// A re-subscribe to the same board is acknowledged but announces
		// nothing; the user never left.
		if !already {
			c.hub.NotifyPresence(msg.BoardID, c.userID, PresenceJoined)
		}
	case MsgUnsubscribeBoard:
		if boardID, ok := c.registry.Unsubscribe(c); ok {
			c.hub.NotifyPresence(boardID, c.userID, PresenceLeft)
		}
	case MsgPing:
		c.sendEnvelope(newEnvelope(MsgPong, "", "", nil))
	default:
		c.sendError(fmt.Sprintf("unknown message type %q", msg.Type))
	}
}

func (c *Client) sendError(message string) {
	c.sendEnvelope(newEnvelope(MsgError, "", "", errorPayload{Message: message}))
}

// shutdown runs when the transport closes or errors from any state: the
// connection leaves whatever board it watched and terminates.
func (c *Client) shutdown() {
	if boardID, ok := c.registry.Unsubscribe(c); ok {
		c.hub.NotifyPresence(boardID, c.userID, PresenceLeft)
	}
	c.Close()
}

func (c *Client) writePump() {
	// Transport-level pings keep intermediaries from dropping quiet
	// connections. They deliberately do not extend the read deadline:
	// only application messages count as heartbeats.
	ticker := time.NewTicker(c.idleTimeout / 3)
	defer ticker.Stop()
	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}
