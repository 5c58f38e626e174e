package config

import (
	"time"
)

type WebSocketConfig struct {
	Path             string        `yaml:"path"`
	ReadBufferSize   int           `yaml:"read_buffer_size"`
	WriteBufferSize  int           `yaml:"write_buffer_size"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	PingInterval     time.Duration `yaml:"ping_interval"`
	PongTimeout      time.Duration `yaml:"pong_timeout"`
	AllowedOrigins   []string      `yaml:"allowed_origins"`
}

func defaultWebSocketConfig() *WebSocketConfig {
	return &WebSocketConfig{
		Path:             "/ws",
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: 10 * time.Second,
		PingInterval:     54 * time.Second,
		PongTimeout:      60 * time.Second,
		AllowedOrigins:   []string{"*"},
	}
}

func applyWebSocketEnv(c *WebSocketConfig) {
	c.Path = getEnv("WEBSOCKET_PATH", c.Path)
	c.ReadBufferSize = getEnvAsInt("WEBSOCKET_READ_BUFFER_SIZE", c.ReadBufferSize)
	c.WriteBufferSize = getEnvAsInt("WEBSOCKET_WRITE_BUFFER_SIZE", c.WriteBufferSize)
	c.HandshakeTimeout = getEnvAsDuration("WEBSOCKET_HANDSHAKE_TIMEOUT", c.HandshakeTimeout)
	c.PingInterval = getEnvAsDuration("WEBSOCKET_PING_INTERVAL", c.PingInterval)
	c.PongTimeout = getEnvAsDuration("WEBSOCKET_PONG_TIMEOUT", c.PongTimeout)
	c.AllowedOrigins = getEnvAsSlice("WEBSOCKET_ALLOWED_ORIGINS", c.AllowedOrigins)
}
