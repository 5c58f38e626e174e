package models

import (
	"time"
)

type EventType string

const (
	EventServiceCreated   EventType = "service.created"
	EventOfferSubmitted   EventType = "offer.submitted"
	EventOfferRejected    EventType = "offer.rejected"
	EventOfferAccepted    EventType = "offer.accepted"
	EventServiceStarted   EventType = "service.started"
	EventServiceCompleted EventType = "service.completed"
	EventServiceCancelled EventType = "service.cancelled"
	EventServiceSettled   EventType = "service.settled"
)

// DomainEvent is published after the transaction that produced it has committed.
type DomainEvent struct {
	Type        EventType         `json:"type"`
	ServiceID   string            `json:"service_id"`
	RequesterID string            `json:"requester_id,omitempty"`
	DriverID    string            `json:"driver_id,omitempty"`
	OfferID     string            `json:"offer_id,omitempty"`
	Amount      *float64          `json:"amount,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	OccurredAt  time.Time         `json:"occurred_at"`
}
