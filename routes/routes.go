package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"cargoride/internal/handlers"
	"cargoride/internal/middleware"
	"cargoride/internal/utils"
	"cargoride/pkg/logger"
	"cargoride/pkg/websocket"
)

// Handlers bundles everything the router mounts. Metrics and WebSocket are optional.
type Handlers struct {
	Services      *handlers.ServiceHandler
	Offers        *handlers.OfferHandler
	Settlement    *handlers.SettlementHandler
	Organizations *handlers.OrganizationHandler
	Devices       *handlers.DeviceHandler
	Health        *handlers.HealthHandler
	WebSocket     *websocket.Handler
	Metrics       http.Handler
}

type Options struct {
	Signer         *utils.TokenSigner
	Logger         *logger.Logger
	Observer       middleware.HTTPObserver
	RateLimiter    middleware.Counter
	RatePerMinute  int
	AllowedOrigins []string
	MetricsPath    string
	WebSocketPath  string
}

// SetupRoutes builds the gin engine serving the public API
func SetupRoutes(h *Handlers, opts Options) *gin.Engine {
	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.RequestIDMiddleware(),
		middleware.LoggingMiddleware(opts.Logger, opts.Observer),
		middleware.CORSMiddleware(opts.AllowedOrigins),
	)

	router.GET("/health", h.Health.Health)
	if h.Metrics != nil {
		router.GET(opts.MetricsPath, gin.WrapH(h.Metrics))
	}

	// Public webhook routes (signature checked by the handler)
	router.POST("/webhooks/stripe", h.Settlement.HandleStripeWebhook)

	auth := middleware.AuthRequired(opts.Signer, opts.Logger)
	limit := middleware.RateLimitMiddleware(opts.RateLimiter, opts.RatePerMinute, opts.Logger)

	if h.WebSocket != nil {
		router.GET(opts.WebSocketPath, auth, h.WebSocket.HandleWebSocket)
	}

	api := router.Group("/api/v1")
	api.Use(auth, limit)
	{
		SetupServiceRoutes(api, h)
		SetupDriverRoutes(api, h)

		api.POST("/devices", h.Devices.RegisterDevice)
		api.DELETE("/devices", h.Devices.UnregisterDevice)
		api.GET("/history", h.Services.GetHistory)
	}

	return router
}

func SetupServiceRoutes(r *gin.RouterGroup, h *Handlers) {
	services := r.Group("/services")
	{
		services.POST("", h.Services.CreateService)
		services.GET("/:id", h.Services.GetService)
		services.POST("/:id/cancel", h.Services.CancelService)
		services.POST("/:id/receipt", h.Services.UploadReceipt)
		services.GET("/:id/receipt", h.Services.GetReceipt)
		services.POST("/:id/rating", h.Services.RateService)
		services.POST("/:id/payment", h.Settlement.AcknowledgePayment)

		// Bidding
		services.GET("/:id/offers", h.Offers.ListOffers)
		services.POST("/:id/offers", middleware.DriverRequired(), h.Offers.SubmitOffer)
		services.POST("/:id/offers/:offer_id/reject", h.Offers.RejectOffer)
		services.POST("/:id/offers/:offer_id/accept", h.Offers.AcceptOffer)

		// Trip execution
		services.POST("/:id/start", middleware.DriverRequired(), h.Services.StartTrip)
		services.POST("/:id/complete", middleware.DriverRequired(), h.Services.CompleteTrip)
		services.PUT("/:id/location", middleware.DriverRequired(), h.Services.UpdateDriverLocation)

		services.POST("/:id/settle", middleware.AdminRequired(), h.Settlement.SettleService)
	}
}

func SetupDriverRoutes(r *gin.RouterGroup, h *Handlers) {
	drivers := r.Group("/drivers/me")
	drivers.Use(middleware.DriverRequired())
	{
		drivers.GET("/account", h.Settlement.GetMyAccount)
		drivers.GET("/ledger", h.Settlement.GetMyLedger)

		drivers.GET("/organizations", h.Organizations.ListMemberships)
		drivers.PUT("/organization", h.Organizations.JoinOrganization)
		drivers.DELETE("/organizations/:org_id", h.Organizations.LeaveOrganization)
	}
}
