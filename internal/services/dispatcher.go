package services

import (
	"context"
	"fmt"
	"time"

	"cargoride/internal/models"
	"cargoride/internal/utils"
	"cargoride/pkg/logger"
	"cargoride/pkg/push"
)

// dispatcher fans committed domain events out to the event bus and push notifications.
// Failures are logged and never fail the operation that produced the event.
type dispatcher struct {
	events   EventPublisher
	push     PushSender
	logger   *logger.Logger
	currency string
}

func (d *dispatcher) dispatch(ctx context.Context, events ...*models.DomainEvent) {
	for _, event := range events {
		if d.events != nil {
			if err := d.events.Publish(ctx, event); err != nil {
				d.logger.WithServiceID(event.ServiceID).
					WithField("event", string(event.Type)).
					WithError(err).
					Warn("Failed to publish domain event")
			}
		}
		d.notify(ctx, event)
	}
}

func (d *dispatcher) notify(ctx context.Context, event *models.DomainEvent) {
	if d.push == nil {
		return
	}

	var recipient, title, body string
	switch event.Type {
	case models.EventOfferSubmitted:
		recipient, title = event.RequesterID, "New offer received"
		body = "A driver sent an offer for your service request"
		if event.Amount != nil {
			body = fmt.Sprintf("A driver offered %s for your service request", utils.FormatCurrency(*event.Amount, d.currency))
		}
	case models.EventOfferAccepted:
		recipient, title = event.DriverID, "Offer accepted"
		body = "Your offer was accepted. Head to the pickup point"
		if event.Amount != nil {
			body = fmt.Sprintf("Your offer was accepted at %s. Head to the pickup point", utils.FormatCurrency(*event.Amount, d.currency))
		}
	case models.EventServiceStarted:
		recipient, title = event.RequesterID, "Trip started"
		body = "Your driver has started the trip"
	case models.EventServiceCompleted:
		recipient, title = event.RequesterID, "Trip completed"
		body = "Your service has been completed"
	case models.EventServiceCancelled:
		recipient, title = event.DriverID, "Service cancelled"
		body = "The service you were assigned to was cancelled"
	default:
		return
	}
	if recipient == "" {
		return
	}

	request := &push.NotificationRequest{
		Topic: push.UserTopic(recipient),
		Title: title,
		Body:  body,
		Data: map[string]string{
			"service_id": event.ServiceID,
			"event":      string(event.Type),
		},
		Priority: "high",
	}
	if _, err := d.push.SendNotification(ctx, request); err != nil {
		d.logger.WithServiceID(event.ServiceID).WithError(err).Warn("Failed to send push notification")
	}
}

func newEvent(eventType models.EventType, svc *models.Service, at time.Time) *models.DomainEvent {
	return &models.DomainEvent{
		Type:        eventType,
		ServiceID:   svc.ID,
		RequesterID: svc.RequesterID,
		DriverID:    svc.ParticipantDriverID(),
		OfferID:     acceptedOfferID(svc),
		OccurredAt:  at,
	}
}

func acceptedOfferID(svc *models.Service) string {
	if svc.AcceptedOfferID == "" && svc.Cancellation != nil {
		return svc.Cancellation.OfferID
	}
	return svc.AcceptedOfferID
}
