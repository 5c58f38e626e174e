package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"cargoride/internal/utils"
)

type Config struct {
	App         *AppConfig         `yaml:"app"`
	Database    *DatabaseConfig    `yaml:"database"`
	Redis       *RedisConfig       `yaml:"redis"`
	Kafka       *KafkaConfig       `yaml:"kafka"`
	Events      *EventsConfig      `yaml:"events"`
	Push        *PushConfig        `yaml:"push"`
	Payment     *PaymentConfig     `yaml:"payment"`
	Maps        *MapsConfig        `yaml:"maps"`
	Storage     *StorageConfig     `yaml:"storage"`
	WebSocket   *WebSocketConfig   `yaml:"websocket"`
	Security    *SecurityConfig    `yaml:"security"`
	Marketplace *MarketplaceConfig `yaml:"marketplace"`
	Transaction *TransactionConfig `yaml:"transaction"`
	Metrics     *MetricsConfig     `yaml:"metrics"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
	Port        int    `yaml:"port"`
	Host        string `yaml:"host"`
	BaseURL     string `yaml:"base_url"`
	Debug       bool   `yaml:"debug"`
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	Timezone    string `yaml:"timezone"`
}

type SecurityConfig struct {
	JWTSecret          string        `yaml:"jwt_secret"`
	JWTAccessTokenTTL  time.Duration `yaml:"jwt_access_token_ttl"`
	JWTIssuer          string        `yaml:"jwt_issuer"`
	RateLimitPerMinute int           `yaml:"rate_limit_per_minute"`
	CORSAllowedOrigins []string      `yaml:"cors_allowed_origins"`
	TrustedProxies     []string      `yaml:"trusted_proxies"`
}

type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

// Load builds the configuration from defaults, then the YAML file named by CONFIG_FILE (if
// any), then environment variables. Later sources win.
func Load() (*Config, error) {
	config := defaultConfig()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, config); err != nil {
			return nil, err
		}
	}

	applyEnv(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func loadFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func defaultConfig() *Config {
	return &Config{
		App: &AppConfig{
			Name:        "cargoride",
			Version:     "1.0.0",
			Environment: "development",
			Port:        8080,
			Host:        "0.0.0.0",
			BaseURL:     "http://localhost:8080",
			LogLevel:    "info",
			LogFormat:   "json",
			Timezone:    "UTC",
		},
		Database:    defaultDatabaseConfig(),
		Redis:       defaultRedisConfig(),
		Kafka:       defaultKafkaConfig(),
		Events:      &EventsConfig{Backend: "redis", Channel: "cargoride.events"},
		Push:        defaultPushConfig(),
		Payment:     defaultPaymentConfig(),
		Maps:        defaultMapsConfig(),
		Storage:     defaultStorageConfig(),
		WebSocket:   defaultWebSocketConfig(),
		Marketplace: defaultMarketplaceConfig(),
		Transaction: defaultTransactionConfig(),
		Security: &SecurityConfig{
			JWTAccessTokenTTL:  24 * time.Hour,
			JWTIssuer:          "cargoride",
			RateLimitPerMinute: 100,
			CORSAllowedOrigins: []string{"*"},
		},
		Metrics: &MetricsConfig{
			Enabled:   true,
			Path:      "/metrics",
			Namespace: "cargoride",
		},
	}
}

func applyEnv(c *Config) {
	c.App.Name = getEnv("APP_NAME", c.App.Name)
	c.App.Version = getEnv("APP_VERSION", c.App.Version)
	c.App.Environment = getEnv("APP_ENV", c.App.Environment)
	c.App.Port = getEnvAsInt("APP_PORT", c.App.Port)
	c.App.Host = getEnv("APP_HOST", c.App.Host)
	c.App.BaseURL = getEnv("APP_BASE_URL", c.App.BaseURL)
	c.App.Debug = getEnvAsBool("APP_DEBUG", c.App.Debug)
	c.App.LogLevel = getEnv("LOG_LEVEL", c.App.LogLevel)
	c.App.LogFormat = getEnv("LOG_FORMAT", c.App.LogFormat)
	c.App.Timezone = getEnv("APP_TIMEZONE", c.App.Timezone)

	c.Security.JWTSecret = getEnv("JWT_SECRET", c.Security.JWTSecret)
	c.Security.JWTAccessTokenTTL = getEnvAsDuration("JWT_ACCESS_TOKEN_TTL", c.Security.JWTAccessTokenTTL)
	c.Security.JWTIssuer = getEnv("JWT_ISSUER", c.Security.JWTIssuer)
	c.Security.RateLimitPerMinute = getEnvAsInt("RATE_LIMIT_PER_MINUTE", c.Security.RateLimitPerMinute)
	c.Security.CORSAllowedOrigins = getEnvAsSlice("CORS_ALLOWED_ORIGINS", c.Security.CORSAllowedOrigins)
	c.Security.TrustedProxies = getEnvAsSlice("TRUSTED_PROXIES", c.Security.TrustedProxies)

	c.Metrics.Enabled = getEnvAsBool("METRICS_ENABLED", c.Metrics.Enabled)
	c.Metrics.Path = getEnv("METRICS_PATH", c.Metrics.Path)
	c.Metrics.Namespace = getEnv("METRICS_NAMESPACE", c.Metrics.Namespace)

	applyDatabaseEnv(c.Database)
	applyRedisEnv(c.Redis)
	applyKafkaEnv(c.Kafka, c.Events)
	applyPushEnv(c.Push)
	applyPaymentEnv(c.Payment)
	applyMapsEnv(c.Maps)
	applyStorageEnv(c.Storage)
	applyWebSocketEnv(c.WebSocket)
	applyMarketplaceEnv(c.Marketplace, c.Transaction)
}

func (c *Config) Validate() error {
	var errs []error
	if c.Marketplace.DefaultCommissionRate < 0 || c.Marketplace.DefaultCommissionRate >= 1 {
		errs = append(errs, fmt.Errorf("marketplace.default_commission_rate must be in [0,1), got %v", c.Marketplace.DefaultCommissionRate))
	}
	if !utils.ValidateCurrencyCode(c.Marketplace.Currency) {
		errs = append(errs, fmt.Errorf("marketplace.currency %q is not supported", c.Marketplace.Currency))
	}
	if c.Transaction.MaxAttempts <= 0 {
		errs = append(errs, errors.New("transaction.max_attempts must be positive"))
	}
	switch c.Events.Backend {
	case "redis", "kafka", "none":
	default:
		errs = append(errs, fmt.Errorf("events.backend must be redis, kafka or none, got %q", c.Events.Backend))
	}
	if IsProduction() && c.Security.JWTSecret == "" {
		errs = append(errs, errors.New("security.jwt_secret is required in production"))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func IsProduction() bool {
	return getEnv("APP_ENV", "development") == "production"
}

func IsDevelopment() bool {
	return getEnv("APP_ENV", "development") == "development"
}
