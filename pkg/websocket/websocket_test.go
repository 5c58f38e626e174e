package websocket

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"cargoride/internal/config"
	"cargoride/internal/models"
	"cargoride/pkg/livefeed"
)

type fakeSource struct {
	snapshots []any
	opened    chan Subscription
}

func (s *fakeSource) OpenFeed(ctx context.Context, _ Viewer, sub Subscription) (*livefeed.Feed[any], error) {
	if sub.Feed == "unknown" {
		return nil, errors.New("unknown feed")
	}
	s.opened <- sub
	return livefeed.Start(ctx, func(ctx context.Context, emit func(any) bool) error {
		for _, snap := range s.snapshots {
			if !emit(snap) {
				return nil
			}
		}
		<-ctx.Done()
		return ctx.Err()
	}), nil
}

func newTestServer(t *testing.T, source Source) (*Hub, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := NewHub(nil)
	cfg := &config.WebSocketConfig{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: time.Second,
		PingInterval:     time.Second,
		PongTimeout:      2 * time.Second,
		AllowedOrigins:   []string{"*"},
	}
	handler := NewHandler(ctx, hub, source, cfg)

	router := gin.New()
	router.GET("/ws", func(c *gin.Context) {
		c.Set("user_id", c.Query("user"))
		handler.HandleWebSocket(c)
	})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return hub, "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn, msgType string) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("waiting for %s: %v", msgType, err)
		}
		if msg.Type == msgType {
			return msg
		}
	}
}

func TestSubscribeStreamsSnapshots(t *testing.T) {
	source := &fakeSource{snapshots: []any{"first", "second"}, opened: make(chan Subscription, 1)}
	_, url := newTestServer(t, source)
	conn := dial(t, url+"?user=r1")

	readMessage(t, conn, MessageWelcome)
	if err := conn.WriteJSON(map[string]string{"type": "subscribe", "feed": "offers", "service_id": "svc-1", "sort": "price"}); err != nil {
		t.Fatal(err)
	}

	sub := <-source.opened
	if sub.Feed != "offers" || sub.ServiceID != "svc-1" || sub.Sort != "price" {
		t.Errorf("subscription = %+v", sub)
	}

	first := readMessage(t, conn, MessageSnapshot)
	second := readMessage(t, conn, MessageSnapshot)
	if first.Data != "first" || second.Data != "second" || first.ServiceID != "svc-1" {
		t.Errorf("snapshots = %+v, %+v", first, second)
	}
}

func TestSubscribeErrorIsReported(t *testing.T) {
	source := &fakeSource{opened: make(chan Subscription, 1)}
	_, url := newTestServer(t, source)
	conn := dial(t, url+"?user=r1")

	readMessage(t, conn, MessageWelcome)
	conn.WriteJSON(map[string]string{"type": "subscribe", "feed": "unknown"})

	msg := readMessage(t, conn, MessageError)
	if msg.Error != "unknown feed" {
		t.Errorf("error = %q", msg.Error)
	}
}

func TestHubRoutesEventsToParticipants(t *testing.T) {
	source := &fakeSource{opened: make(chan Subscription, 1)}
	hub, url := newTestServer(t, source)

	driver := dial(t, url+"?user=d1")
	stranger := dial(t, url+"?user=x9")
	readMessage(t, driver, MessageWelcome)
	readMessage(t, stranger, MessageWelcome)

	err := hub.Publish(context.Background(), &models.DomainEvent{
		Type:       models.EventOfferAccepted,
		ServiceID:  "svc-1",
		DriverID:   "d1",
		OccurredAt: time.Now(),
	})
	if err != nil {
		t.Fatal(err)
	}

	msg := readMessage(t, driver, MessageEvent)
	if msg.ServiceID != "svc-1" {
		t.Errorf("event = %+v", msg)
	}

	stranger.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	var unexpected Message
	if err := stranger.ReadJSON(&unexpected); err == nil {
		t.Errorf("stranger received %+v", unexpected)
	}
}

func TestUnauthenticatedUpgradeRejected(t *testing.T) {
	_, url := newTestServer(t, &fakeSource{opened: make(chan Subscription, 1)})

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected handshake failure")
	}
	if resp == nil || resp.StatusCode != 401 {
		t.Errorf("response = %v", resp)
	}
}
