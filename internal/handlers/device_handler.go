package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"cargoride/internal/utils"
	"cargoride/internal/validators"
	"cargoride/pkg/push"
)

// TopicSubscriber manages device subscriptions to push topics.
type TopicSubscriber interface {
	SubscribeToTopic(ctx context.Context, tokens []string, topic string) error
	UnsubscribeFromTopic(ctx context.Context, tokens []string, topic string) error
}

type DeviceHandler struct {
	push TopicSubscriber
}

func NewDeviceHandler(subscriber TopicSubscriber) *DeviceHandler {
	return &DeviceHandler{push: subscriber}
}

// RegisterDevice subscribes the device token to the caller's personal topic, where every
// notification about their services is delivered
func (h *DeviceHandler) RegisterDevice(c *gin.Context) {
	h.updateSubscription(c, true)
}

func (h *DeviceHandler) UnregisterDevice(c *gin.Context) {
	h.updateSubscription(c, false)
}

func (h *DeviceHandler) updateSubscription(c *gin.Context, subscribe bool) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	if h.push == nil {
		utils.ErrorResponse(c, http.StatusServiceUnavailable, "PUSH_DISABLED", "push notifications are not configured")
		return
	}

	var req validators.DeviceRegistrationRequest
	if !bindJSON(c, &req) {
		return
	}

	topic := push.UserTopic(userID)
	var err error
	if subscribe {
		err = h.push.SubscribeToTopic(c.Request.Context(), []string{req.Token}, topic)
	} else {
		err = h.push.UnsubscribeFromTopic(c.Request.Context(), []string{req.Token}, topic)
	}
	if err != nil {
		c.Error(err)
		utils.ErrorResponse(c, http.StatusBadGateway, "PUSH_FAILED", "Failed to update device subscription")
		return
	}

	utils.SuccessResponse(c, "Device subscription updated", gin.H{"topic": topic})
}
