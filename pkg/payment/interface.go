package payment

import (
	"context"
)

// PaymentVerifier confirms that an in-app payment reported by a client was really captured.
type PaymentVerifier interface {
	VerifyPayment(ctx context.Context, reference string) (*PaymentStatus, error)
	ValidateWebhook(ctx context.Context, payload []byte, signature string) (*WebhookEvent, error)
}

const (
	StatusSucceeded  = "succeeded"
	StatusProcessing = "processing"
	StatusCanceled   = "canceled"
)

type PaymentStatus struct {
	Reference string            `json:"reference"`
	Status    string            `json:"status"`
	Amount    float64           `json:"amount"`
	Currency  string            `json:"currency"`
	Metadata  map[string]string `json:"metadata"`
	CreatedAt int64             `json:"created_at"`
}

func (s *PaymentStatus) Succeeded() bool {
	return s != nil && s.Status == StatusSucceeded
}

type WebhookEvent struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	// Payment is set for payment intent events.
	Payment   *PaymentStatus `json:"payment,omitempty"`
	CreatedAt int64          `json:"created_at"`
}
