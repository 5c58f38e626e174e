package utils

import "time"

// Application Constants
const (
	AppName    = "cargoride"
	AppVersion = "1.0.0"

	DefaultCurrency = "PYG"

	// Authentication
	JWTAccessTokenTTL = 24 * time.Hour

	// Roles carried in access tokens
	RoleRequester = "requester"
	RoleDriver    = "driver"
	RoleAdmin     = "admin"

	// Receipts
	MaxReceiptSize = 10 * 1024 * 1024 // 10MB

	// Ratings
	MinRating = 1.0
	MaxRating = 5.0
)

// HTTP Status Messages
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Error Messages
const (
	ErrInvalidToken     = "invalid token"
	ErrInternalServer   = "internal server error"
	ErrUnauthorized     = "unauthorized"
	ErrForbidden        = "forbidden"
	ErrValidationFailed = "validation failed"
	ErrUnavailable      = "service temporarily unavailable, retry"
)

// Cache Keys
const (
	CacheWebhookPrefix   = "webhook:"
	CacheRateLimitPrefix = "rate_limit:"
)

var AllowedReceiptTypes = []string{"image/jpeg", "image/png", "image/webp", "application/pdf"}
