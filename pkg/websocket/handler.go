package websocket

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"cargoride/internal/config"
)

type Handler struct {
	hub      *Hub
	source   Source
	upgrader websocket.Upgrader
	config   *config.WebSocketConfig
}

// NewHandler starts the hub on ctx and serves sockets whose feeds come from source.
func NewHandler(ctx context.Context, hub *Hub, source Source, cfg *config.WebSocketConfig) *Handler {
	go hub.Run(ctx)

	return &Handler{
		hub:    hub,
		source: source,
		config: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:   cfg.ReadBufferSize,
			WriteBufferSize:  cfg.WriteBufferSize,
			HandshakeTimeout: cfg.HandshakeTimeout,
			CheckOrigin:      originChecker(cfg.AllowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}

func (h *Handler) HandleWebSocket(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "Unauthorized"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.hub.logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	// The request context ends with the handler, so the client gets its own.
	client := NewClient(context.Background(), h.hub, conn, h.source, Viewer{UserID: userID, Role: c.GetString("role")}, h.config.PongTimeout, h.config.PingInterval)
	h.hub.add(client)

	go client.writePump()
	go client.readPump()
}

func (h *Handler) Hub() *Hub {
	return h.hub
}
