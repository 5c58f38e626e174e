package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

type StripeProvider struct {
	client        *client.API
	webhookSecret string
}

func NewStripeProvider(secretKey, webhookSecret string) *StripeProvider {
	sc := &client.API{}
	sc.Init(secretKey, nil)

	return &StripeProvider{
		client:        sc,
		webhookSecret: webhookSecret,
	}
}

// VerifyPayment looks up the PaymentIntent named by reference.
func (s *StripeProvider) VerifyPayment(ctx context.Context, reference string) (*PaymentStatus, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := s.client.PaymentIntents.Get(reference, params)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve payment intent: %w", err)
	}
	return convertPaymentIntent(pi), nil
}

func (s *StripeProvider) ValidateWebhook(ctx context.Context, payload []byte, signature string) (*WebhookEvent, error) {
	event, err := webhook.ConstructEvent(payload, signature, s.webhookSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to verify webhook signature: %w", err)
	}

	result := &WebhookEvent{
		EventID:   event.ID,
		EventType: string(event.Type),
		CreatedAt: event.Created,
	}
	if strings.HasPrefix(string(event.Type), "payment_intent.") {
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payment intent: %w", err)
		}
		result.Payment = convertPaymentIntent(&pi)
	}
	return result, nil
}

func convertPaymentIntent(pi *stripe.PaymentIntent) *PaymentStatus {
	amount := pi.AmountReceived
	if amount == 0 {
		amount = pi.Amount
	}
	return &PaymentStatus{
		Reference: pi.ID,
		Status:    string(pi.Status),
		Amount:    fromMinorUnits(amount, string(pi.Currency)),
		Currency:  strings.ToUpper(string(pi.Currency)),
		Metadata:  pi.Metadata,
		CreatedAt: pi.Created,
	}
}

// Stripe reports zero-decimal currencies in whole units.
var zeroDecimalCurrencies = map[string]bool{
	"pyg": true, "jpy": true, "krw": true, "clp": true, "vnd": true, "xaf": true, "xof": true,
}

func fromMinorUnits(amount int64, currency string) float64 {
	if zeroDecimalCurrencies[strings.ToLower(currency)] {
		return float64(amount)
	}
	return float64(amount) / 100
}
