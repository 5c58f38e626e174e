package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"cargoride/pkg/livefeed"
	"cargoride/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 512
	sendBuffer     = 256
)

// Subscription names one live feed a client asked for.
type Subscription struct {
	Feed      string `json:"feed"`
	ServiceID string `json:"service_id,omitempty"`
	Sort      string `json:"sort,omitempty"`
}

func (s Subscription) key() string {
	return s.Feed + ":" + s.ServiceID
}

// Viewer is the authenticated caller behind a socket.
type Viewer struct {
	UserID string
	Role   string
}

// Source opens the live feeds a socket can subscribe to.
type Source interface {
	OpenFeed(ctx context.Context, viewer Viewer, sub Subscription) (*livefeed.Feed[any], error)
}

type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	source Source
	send   chan []byte
	UserID string
	Role   string
	rooms  map[string]bool

	ctx    context.Context
	cancel context.CancelFunc
	logger *logger.Logger

	pongWait   time.Duration
	pingPeriod time.Duration

	mu    sync.Mutex
	feeds map[string]*livefeed.Feed[any]
}

func NewClient(ctx context.Context, hub *Hub, conn *websocket.Conn, source Source, viewer Viewer, pongWait, pingPeriod time.Duration) *Client {
	ctx, cancel := context.WithCancel(ctx)
	return &Client{
		hub:        hub,
		conn:       conn,
		source:     source,
		send:       make(chan []byte, sendBuffer),
		UserID:     viewer.UserID,
		Role:       viewer.Role,
		rooms:      make(map[string]bool),
		ctx:        ctx,
		cancel:     cancel,
		logger:     hub.logger.WithUserID(viewer.UserID),
		pongWait:   pongWait,
		pingPeriod: pingPeriod,
		feeds:      make(map[string]*livefeed.Feed[any]),
	}
}

func (c *Client) readPump() {
	defer c.close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.WithError(err).Warn("WebSocket read failed")
			}
			return
		}
		c.handleMessage(message)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.cancel()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.cancel()
				return
			}
		}
	}
}

func (c *Client) handleMessage(message []byte) {
	var msg struct {
		Type string `json:"type"`
		Subscription
	}
	if err := json.Unmarshal(message, &msg); err != nil {
		c.enqueue(Message{Type: MessageError, Error: "malformed message", Timestamp: now()})
		return
	}

	switch msg.Type {
	case MessageSubscribe:
		c.subscribe(msg.Subscription)
	case MessageUnsubscribe:
		c.unsubscribe(msg.Subscription)
	default:
		c.enqueue(Message{Type: MessageError, Error: "unknown message type " + msg.Type, Timestamp: now()})
	}
}

func (c *Client) subscribe(sub Subscription) {
	c.mu.Lock()
	_, exists := c.feeds[sub.key()]
	c.mu.Unlock()
	if exists {
		return
	}

	feed, err := c.source.OpenFeed(c.ctx, Viewer{UserID: c.UserID, Role: c.Role}, sub)
	if err != nil {
		c.enqueue(Message{Type: MessageError, Feed: sub.Feed, ServiceID: sub.ServiceID, Error: err.Error(), Timestamp: now()})
		return
	}

	c.mu.Lock()
	c.feeds[sub.key()] = feed
	c.mu.Unlock()
	if sub.ServiceID != "" {
		c.hub.JoinService(c, sub.ServiceID)
	}

	go c.forward(sub, feed)
}

func (c *Client) forward(sub Subscription, feed *livefeed.Feed[any]) {
	for snapshot := range feed.Updates() {
		c.enqueue(Message{Type: MessageSnapshot, Feed: sub.Feed, ServiceID: sub.ServiceID, Data: snapshot, Timestamp: now()})
	}
	if err := feed.Err(); err != nil {
		c.logger.WithError(err).WithField("feed", sub.key()).Warn("Live feed stopped")
		c.enqueue(Message{Type: MessageError, Feed: sub.Feed, ServiceID: sub.ServiceID, Error: err.Error(), Timestamp: now()})

		// A failed feed also stops the service's pushed events.
		c.mu.Lock()
		if c.feeds[sub.key()] == feed {
			delete(c.feeds, sub.key())
		}
		c.mu.Unlock()
		if sub.ServiceID != "" {
			c.hub.LeaveService(c, sub.ServiceID)
		}
	}
}

func (c *Client) unsubscribe(sub Subscription) {
	c.mu.Lock()
	feed, ok := c.feeds[sub.key()]
	delete(c.feeds, sub.key())
	c.mu.Unlock()
	if !ok {
		return
	}
	feed.Close()
	if sub.ServiceID != "" {
		c.hub.LeaveService(c, sub.ServiceID)
	}
}

// enqueue blocks until the writer takes the message or the client goes away.
func (c *Client) enqueue(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.WithError(err).Error("Failed to encode websocket message")
		return
	}
	select {
	case c.send <- data:
	case <-c.ctx.Done():
	}
}

func (c *Client) close() {
	c.cancel()
	c.hub.remove(c)

	c.mu.Lock()
	feeds := c.feeds
	c.feeds = make(map[string]*livefeed.Feed[any])
	c.mu.Unlock()
	for _, feed := range feeds {
		feed.Close()
	}
	c.conn.Close()
}
