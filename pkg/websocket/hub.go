package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"cargoride/internal/models"
	"cargoride/pkg/logger"
)

type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	rooms      map[string]map[*Client]bool
	mutex      sync.RWMutex
	logger     *logger.Logger
	done       chan struct{}
}

// Message is the envelope for everything written to or read from a socket.
type Message struct {
	Type      string      `json:"type"`
	Feed      string      `json:"feed,omitempty"`
	ServiceID string      `json:"service_id,omitempty"`
	Timestamp int64       `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
}

const (
	MessageWelcome     = "welcome"
	MessageSubscribe   = "subscribe"
	MessageUnsubscribe = "unsubscribe"
	MessageSnapshot    = "snapshot"
	MessageEvent       = "event"
	MessageError       = "error"
)

func NewHub(log *logger.Logger) *Hub {
	if log == nil {
		log = logger.Discard()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		rooms:      make(map[string]map[*Client]bool),
		logger:     log.WithField("component", "websocket"),
		done:       make(chan struct{}),
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			h.registerClient(client)
		case client := <-h.unregister:
			h.unregisterClient(client)
		}
	}
}

func (h *Hub) add(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

func (h *Hub) remove(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func userRoom(userID string) string {
	return "user:" + userID
}

func serviceRoom(serviceID string) string {
	return "service:" + serviceID
}

func (h *Hub) registerClient(client *Client) {
	h.mutex.Lock()
	h.clients[client] = true
	h.joinRoom(client, userRoom(client.UserID))
	h.mutex.Unlock()

	h.logger.WithUserID(client.UserID).Debug("Client registered")
	client.enqueue(Message{Type: MessageWelcome, Timestamp: now()})
}

func (h *Hub) unregisterClient(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	for roomID := range client.rooms {
		h.leaveRoom(client, roomID)
	}
	h.logger.WithUserID(client.UserID).Debug("Client unregistered")
}

// Publish forwards a committed domain event to the service room and to both participants.
func (h *Hub) Publish(_ context.Context, event *models.DomainEvent) error {
	data, err := json.Marshal(Message{
		Type:      MessageEvent,
		ServiceID: event.ServiceID,
		Timestamp: event.OccurredAt.Unix(),
		Data:      event,
	})
	if err != nil {
		return err
	}

	rooms := []string{serviceRoom(event.ServiceID)}
	if event.RequesterID != "" {
		rooms = append(rooms, userRoom(event.RequesterID))
	}
	if event.DriverID != "" {
		rooms = append(rooms, userRoom(event.DriverID))
	}

	h.mutex.RLock()
	defer h.mutex.RUnlock()

	delivered := make(map[*Client]bool)
	for _, roomID := range rooms {
		for client := range h.rooms[roomID] {
			if delivered[client] {
				continue
			}
			delivered[client] = true
			h.offer(client, data)
		}
	}
	return nil
}

// offer never blocks the hub: a client with a full buffer misses the event.
func (h *Hub) offer(client *Client, data []byte) {
	select {
	case client.send <- data:
	default:
		h.logger.WithUserID(client.UserID).Warn("Dropping event for slow websocket client")
	}
}

func (h *Hub) JoinService(client *Client, serviceID string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.joinRoom(client, serviceRoom(serviceID))
}

func (h *Hub) LeaveService(client *Client, serviceID string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.leaveRoom(client, serviceRoom(serviceID))
}

func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

func (h *Hub) joinRoom(client *Client, roomID string) {
	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[*Client]bool)
	}
	h.rooms[roomID][client] = true
	client.rooms[roomID] = true
}

func (h *Hub) leaveRoom(client *Client, roomID string) {
	if room, exists := h.rooms[roomID]; exists {
		delete(room, client)
		if len(room) == 0 {
			delete(h.rooms, roomID)
		}
	}
	delete(client.rooms, roomID)
}

func now() int64 {
	return time.Now().Unix()
}
