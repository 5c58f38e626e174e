package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"cargoride/internal/config"
	"cargoride/internal/handlers"
	"cargoride/internal/repositories/mongodb"
	"cargoride/internal/services"
	"cargoride/internal/utils"
	"cargoride/pkg/cache"
	"cargoride/pkg/database"
	"cargoride/pkg/events"
	"cargoride/pkg/logger"
	"cargoride/pkg/maps"
	"cargoride/pkg/metrics"
	"cargoride/pkg/payment"
	"cargoride/pkg/push"
	"cargoride/pkg/storage"
	"cargoride/pkg/websocket"
	"cargoride/routes"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(&logger.Config{
		Level:   logger.LogLevel(cfg.App.LogLevel),
		Format:  cfg.App.LogFormat,
		Output:  "stdout",
		Caller:  cfg.App.Debug,
		AppName: cfg.App.Name,
		Version: cfg.App.Version,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.WithError(err).Fatal("Server stopped with error")
	}
	log.Info("Server stopped")
}

func run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	if !cfg.App.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewMongoDB(&database.DatabaseConfig{
		URI:            cfg.Database.URI,
		Database:       cfg.Database.Database,
		MaxPoolSize:    cfg.Database.MaxPoolSize,
		MinPoolSize:    cfg.Database.MinPoolSize,
		ConnectTimeout: cfg.Database.ConnectTimeout,
		SocketTimeout:  cfg.Database.SocketTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	defer db.Close()

	if cfg.Database.RunMigrations {
		if err := database.NewMigrator(db.Database, log).Up(); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	checks := map[string]handlers.Pinger{"mongodb": db}

	var redisCache *cache.RedisCache
	if cfg.Redis.Enabled {
		redisCache, err = cache.NewRedisCache(ctx, &cache.RedisConfig{
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		defer redisCache.Close()
		checks["redis"] = redisCache
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(cfg.Metrics.Namespace, prometheus.NewRegistry())
	}

	storeOpts := []mongodb.Option{mongodb.WithMaxAttempts(cfg.Transaction.MaxAttempts)}
	if redisCache != nil {
		storeOpts = append(storeOpts, mongodb.WithCache(redisCache))
	}
	if m != nil {
		storeOpts = append(storeOpts, mongodb.WithAttemptHook(m.ObserveAttempt))
	}
	store := mongodb.NewStore(db, log, storeOpts...)

	hub := websocket.NewHub(log)
	publisher, closePublisher, err := newEventPublisher(cfg, redisCache)
	if err != nil {
		return err
	}
	defer closePublisher()

	deps := services.Dependencies{
		Store:       store,
		Logger:      log,
		Events:      events.Fanout{publisher, hub},
		Marketplace: cfg.Marketplace,
		Transaction: cfg.Transaction,
	}
	if m != nil {
		deps.Metrics = m
	}

	var pushProvider push.PushProvider
	if cfg.Push.Provider == "fcm" {
		fcm, err := push.NewFCMProvider(ctx, cfg.Push.FCM.Credentials)
		if err != nil {
			return fmt.Errorf("failed to initialize FCM: %w", err)
		}
		pushProvider = fcm
		deps.Push = fcm
	}

	if cfg.Maps.Provider == "google" {
		routeProvider, err := maps.NewGoogleMapsProvider(cfg.Maps.GoogleMaps.APIKey)
		if err != nil {
			return fmt.Errorf("failed to initialize Google Maps: %w", err)
		}
		deps.Routes = routeProvider
	}

	receipts, closeReceipts, err := newReceiptStorage(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer closeReceipts()
	deps.Receipts = receipts

	var verifier payment.PaymentVerifier
	if cfg.Payment.Provider == "stripe" {
		verifier = payment.NewStripeProvider(cfg.Payment.Stripe.SecretKey, cfg.Payment.Stripe.WebhookSecret)
		deps.Payments = verifier
	}

	settlement := services.NewSettlementService(deps)
	lifecycle := services.NewServiceLifecycleService(deps, settlement)
	offers := services.NewOfferService(deps)
	acceptance := services.NewAcceptanceService(deps)
	history := services.NewHistoryService(deps)
	organizations := services.NewOrganizationService(deps)

	var feedObserver handlers.FeedObserver
	if m != nil {
		feedObserver = m
	}
	feeds := handlers.NewFeedSource(offers, lifecycle, history, feedObserver)

	var dedupe handlers.WebhookDeduper
	if redisCache != nil {
		dedupe = redisCache
	}
	var devices handlers.TopicSubscriber
	if pushProvider != nil {
		devices = pushProvider
	}

	h := &routes.Handlers{
		Services:      handlers.NewServiceHandler(lifecycle, history),
		Offers:        handlers.NewOfferHandler(offers, acceptance, lifecycle),
		Settlement:    handlers.NewSettlementHandler(settlement, lifecycle, verifier, dedupe, log),
		Organizations: handlers.NewOrganizationHandler(organizations),
		Devices:       handlers.NewDeviceHandler(devices),
		Health:        handlers.NewHealthHandler(cfg.App.Version, checks),
		WebSocket:     websocket.NewHandler(ctx, hub, feeds, cfg.WebSocket),
	}

	opts := routes.Options{
		Signer:         utils.NewTokenSigner(cfg.Security.JWTSecret, cfg.Security.JWTIssuer, cfg.Security.JWTAccessTokenTTL),
		Logger:         log,
		RatePerMinute:  cfg.Security.RateLimitPerMinute,
		AllowedOrigins: cfg.Security.CORSAllowedOrigins,
		MetricsPath:    cfg.Metrics.Path,
		WebSocketPath:  cfg.WebSocket.Path,
	}
	if m != nil {
		h.Metrics = m.Handler()
		opts.Observer = m
	}
	if redisCache != nil {
		opts.RateLimiter = redisCache
	}

	router := routes.SetupRoutes(h, opts)
	if err := router.SetTrustedProxies(cfg.Security.TrustedProxies); err != nil {
		return fmt.Errorf("invalid trusted proxies: %w", err)
	}

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.App.Host, cfg.App.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(map[string]interface{}{
			"addr":        server.Addr,
			"environment": cfg.App.Environment,
			"events":      cfg.Events.Backend,
		}).Info("Starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// newEventPublisher picks the out-of-process event sink. The websocket hub is always added on top.
func newEventPublisher(cfg *config.Config, redisCache *cache.RedisCache) (events.Publisher, func(), error) {
	switch cfg.Events.Backend {
	case "kafka":
		p, err := events.NewKafkaPublisher(cfg.Kafka)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize Kafka publisher: %w", err)
		}
		return p, func() { _ = p.Close() }, nil
	case "redis":
		if redisCache == nil {
			return nil, nil, errors.New("redis event backend requires redis to be enabled")
		}
		p := events.NewRedisPublisher(redisCache, cfg.Events.Channel)
		return p, func() { _ = p.Close() }, nil
	case "none", "":
		return events.NoopPublisher{}, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown events backend %q", cfg.Events.Backend)
	}
}

func newReceiptStorage(ctx context.Context, cfg *config.StorageConfig) (services.ReceiptStorage, func(), error) {
	switch cfg.Provider {
	case "aws":
		s, err := storage.NewAWSS3Storage(ctx, storage.AWSS3Options{
			Region:          cfg.AWS.Region,
			Bucket:          cfg.AWS.Bucket,
			AccessKeyID:     cfg.AWS.AccessKeyID,
			SecretAccessKey: cfg.AWS.SecretAccessKey,
			CDNDomain:       cfg.AWS.CDNDomain,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, func() {}, nil
	case "gcp":
		s, err := storage.NewGCPStorage(ctx, cfg.GCP.Bucket, cfg.GCP.CredentialsFile, cfg.GCP.CDNDomain)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize GCP storage: %w", err)
		}
		return s, func() { _ = s.Close() }, nil
	case "local":
		s, err := storage.NewLocalStorage(cfg.Local.BasePath, cfg.Local.BaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize local storage: %w", err)
		}
		return s, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage provider %q", cfg.Provider)
	}
}
