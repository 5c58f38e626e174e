package handlers

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"cargoride/internal/services"
	"cargoride/internal/utils"
	"cargoride/pkg/logger"
	"cargoride/pkg/payment"
)

const (
	maxWebhookBody  = 64 * 1024
	webhookDedupTTL = 72 * time.Hour
)

// WebhookDeduper remembers processed webhook deliveries. The Redis cache satisfies it.
type WebhookDeduper interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error)
	Delete(ctx context.Context, keys ...string) error
}

type SettlementHandler struct {
	settlement services.SettlementService
	lifecycle  services.ServiceLifecycleService
	verifier   payment.PaymentVerifier
	dedupe     WebhookDeduper
	logger     *logger.Logger
}

func NewSettlementHandler(settlement services.SettlementService, lifecycle services.ServiceLifecycleService, verifier payment.PaymentVerifier, dedupe WebhookDeduper, log *logger.Logger) *SettlementHandler {
	if log == nil {
		log = logger.Discard()
	}
	return &SettlementHandler{
		settlement: settlement,
		lifecycle:  lifecycle,
		verifier:   verifier,
		dedupe:     dedupe,
		logger:     log.WithField("component", "settlement_handler"),
	}
}

type paymentAcknowledgement struct {
	PaymentReference string `json:"payment_reference" validate:"required,max=255"`
}

// AcknowledgePayment records that the requester paid an in-app service
func (h *SettlementHandler) AcknowledgePayment(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req paymentAcknowledgement
	if !bindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	svc, err := h.lifecycle.GetService(ctx, c.Param("id"))
	if err != nil {
		utils.EngineErrorResponse(c, err)
		return
	}
	if svc.RequesterID != userID && !isAdmin(c) {
		utils.ForbiddenResponse(c)
		return
	}

	result, err := h.settlement.AcknowledgeInAppPayment(ctx, svc.ID, req.PaymentReference)
	if err != nil {
		utils.EngineErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Payment acknowledged", result)
}

// SettleService posts the commission of a completed service. Admin only.
func (h *SettlementHandler) SettleService(c *gin.Context) {
	result, err := h.settlement.Settle(c.Request.Context(), c.Param("id"), services.SettleOptions{})
	if err != nil {
		utils.EngineErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Service settled", result)
}

func (h *SettlementHandler) GetMyAccount(c *gin.Context) {
	driverID, ok := currentUser(c)
	if !ok {
		return
	}

	account, err := h.settlement.GetDriverAccount(c.Request.Context(), driverID)
	if err != nil {
		utils.EngineErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Account retrieved successfully", account)
}

func (h *SettlementHandler) GetMyLedger(c *gin.Context) {
	driverID, ok := currentUser(c)
	if !ok {
		return
	}

	entries, err := h.settlement.ListLedgerEntries(c.Request.Context(), driverID)
	if err != nil {
		utils.EngineErrorResponse(c, err)
		return
	}

	utils.SuccessResponseWithMeta(c, "Ledger retrieved successfully", entries, &utils.Meta{Count: len(entries)})
}

// HandleStripeWebhook acknowledges in-app payments reported by payment_intent.succeeded.
// Only failures worth retrying answer non-2xx, since the gateway redelivers on those.
func (h *SettlementHandler) HandleStripeWebhook(c *gin.Context) {
	if h.verifier == nil {
		utils.ErrorResponse(c, http.StatusNotFound, "NOT_FOUND", "payment gateway is not configured")
		return
	}

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		utils.BadRequestResponse(c, "Unreadable payload")
		return
	}

	ctx := c.Request.Context()
	event, err := h.verifier.ValidateWebhook(ctx, payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		h.logger.LogSecurityEvent("webhook_signature_invalid", "high", map[string]interface{}{
			"client_ip": c.ClientIP(),
			"reason":    err.Error(),
		})
		utils.BadRequestResponse(c, "Invalid webhook signature")
		return
	}

	log := h.logger.WithFields(map[string]interface{}{"event_id": event.EventID, "event_type": event.EventType})
	if event.EventType != "payment_intent.succeeded" || event.Payment == nil {
		utils.SuccessResponse(c, "Event ignored", nil)
		return
	}
	serviceID := event.Payment.Metadata["service_id"]
	if serviceID == "" {
		log.Warn("Payment intent carries no service_id")
		utils.SuccessResponse(c, "Event ignored", nil)
		return
	}

	key := utils.CacheWebhookPrefix + event.EventID
	if h.dedupe != nil {
		first, err := h.dedupe.SetNX(ctx, key, serviceID, webhookDedupTTL)
		if err != nil {
			log.WithError(err).Warn("Webhook dedupe unavailable, processing anyway")
		} else if !first {
			utils.SuccessResponse(c, "Event already processed", nil)
			return
		}
	}

	result, err := h.settlement.AcknowledgeInAppPayment(ctx, serviceID, event.Payment.Reference)
	if err != nil {
		if status, _ := utils.EngineErrorStatus(err); status >= http.StatusInternalServerError {
			if h.dedupe != nil {
				if err := h.dedupe.Delete(ctx, key); err != nil {
					log.WithError(err).Error("Failed to release webhook dedupe key, redelivery will be skipped")
				}
			}
			utils.EngineErrorResponse(c, err)
			return
		}
		log.WithServiceID(serviceID).WithError(err).Warn("Webhook payment could not be applied")
		utils.SuccessResponse(c, "Event not applicable", nil)
		return
	}

	utils.SuccessResponse(c, "Payment acknowledged", gin.H{"already_settled": result.AlreadySettled})
}
