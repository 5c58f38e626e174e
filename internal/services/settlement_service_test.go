package services

import (
	"context"
	"errors"
	"testing"

	"cargoride/internal/models"
	"cargoride/internal/repositories/interfaces"
	"cargoride/pkg/payment"
)

func TestSettlementRounding(t *testing.T) {
	tests := []struct {
		gross, rate     float64
		commission, net float64
	}{
		{18.50, 0.05, 0.93, 17.57},
		{20.00, 0.05, 1.00, 19.00},
		{10.10, 0.05, 0.51, 9.59},
		{33.33, 0.10, 3.33, 30.00},
		{0.10, 0.05, 0.01, 0.09},
		{0, 0.05, 0, 0},
	}

	for _, tt := range tests {
		h := newHarness(t)
		svc := h.acceptedService(t, tt.gross)
		rate := tt.rate
		done, err := h.lifecycle.CompleteTrip(context.Background(), svc.ID, &CompleteTripInput{CommissionRate: &rate})
		if err != nil {
			t.Fatalf("gross %v: %v", tt.gross, err)
		}

		entries, _ := h.store.ListLedgerEntriesByService(context.Background(), done.ID)
		if len(entries) != 1 {
			t.Fatalf("gross %v: ledger entries = %d", tt.gross, len(entries))
		}
		e := entries[0]
		if e.CommissionAmount != tt.commission || e.NetAmount != tt.net {
			t.Errorf("gross %v rate %v: commission %v net %v, want %v/%v", tt.gross, tt.rate, e.CommissionAmount, e.NetAmount, tt.commission, tt.net)
		}
		if e.GrossAmount != tt.gross {
			t.Errorf("gross = %v, want %v", e.GrossAmount, tt.gross)
		}
	}
}

func TestSettleAccumulatesDriverAccount(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for _, price := range []float64{18.50, 40.00} {
		svc := h.acceptedService(t, price)
		if _, err := h.lifecycle.CompleteTrip(ctx, svc.ID, nil); err != nil {
			t.Fatal(err)
		}
	}

	account, err := h.settlement.GetDriverAccount(ctx, "d1")
	if err != nil {
		t.Fatal(err)
	}
	if account.OwedCommission != 2.93 || account.LifetimeCommission != 2.93 || account.LifetimeGrossIncome != 58.50 {
		t.Errorf("account = %+v", account)
	}

	entries, err := h.settlement.ListLedgerEntries(ctx, "d1")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Errorf("entries = %d", len(entries))
	}
}

func TestSettleIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	svc := h.acceptedService(t, 18.50)
	if _, err := h.lifecycle.CompleteTrip(ctx, svc.ID, nil); err != nil {
		t.Fatal(err)
	}

	result, err := h.settlement.Settle(ctx, svc.ID, SettleOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if !result.AlreadySettled || result.Entry == nil {
		t.Errorf("result = %+v", result)
	}

	account, _ := h.store.GetDriverAccount(ctx, "d1")
	if account.OwedCommission != 0.93 {
		t.Errorf("owed commission = %v", account.OwedCommission)
	}
	if n := h.events.count(models.EventServiceSettled); n != 1 {
		t.Errorf("service.settled events = %d", n)
	}
}

func TestSettleRequiresCompletedService(t *testing.T) {
	h := newHarness(t)
	svc := h.acceptedService(t, 10)

	_, err := h.settlement.Settle(context.Background(), svc.ID, SettleOptions{})
	assertKind(t, err, models.ErrInvalidState)
}

func TestSettleFallsBackToEstimatedPrice(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	svc := h.acceptedService(t, 10, func(in *CreateServiceInput) { in.EstimatedPrice = floatPtr(30) })
	err := h.store.RunTransaction(ctx, func(ctx context.Context, tx interfaces.Tx) error {
		s, err := tx.GetService(svc.ID)
		if err != nil {
			return err
		}
		s.FinalPrice = nil
		s.Status = models.ServiceStatusCompleted
		return tx.PutService(s)
	})
	if err != nil {
		t.Fatal(err)
	}

	result, err := h.settlement.Settle(ctx, svc.ID, SettleOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if result.Entry.GrossAmount != 30 || result.Entry.CommissionAmount != 1.5 {
		t.Errorf("entry = %+v", result.Entry)
	}
}

func TestSettleWithoutAnyPrice(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	svc := h.acceptedService(t, 10, func(in *CreateServiceInput) { in.EstimatedPrice = nil })
	err := h.store.RunTransaction(ctx, func(ctx context.Context, tx interfaces.Tx) error {
		s, err := tx.GetService(svc.ID)
		if err != nil {
			return err
		}
		s.FinalPrice = nil
		s.Status = models.ServiceStatusCompleted
		return tx.PutService(s)
	})
	if err != nil {
		t.Fatal(err)
	}

	_, err = h.settlement.Settle(ctx, svc.ID, SettleOptions{})
	assertKind(t, err, models.ErrValidation)
	if entries, _ := h.store.ListLedgerEntriesByService(ctx, svc.ID); len(entries) != 0 {
		t.Errorf("ledger entries = %d", len(entries))
	}
}

func TestAcknowledgeInAppPayment(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	svc := h.acceptedService(t, 25, func(in *CreateServiceInput) { in.PaymentMethod = models.PaymentMethodInApp })
	h.payments.status = paidIntent(svc.ID, 25)

	_, err := h.settlement.AcknowledgeInAppPayment(ctx, svc.ID, "pi_123")
	assertKind(t, err, models.ErrInvalidState)

	if _, err := h.lifecycle.CompleteTrip(ctx, svc.ID, nil); err != nil {
		t.Fatal(err)
	}

	_, err = h.settlement.AcknowledgeInAppPayment(ctx, svc.ID, "")
	assertKind(t, err, models.ErrValidation)

	result, err := h.settlement.AcknowledgeInAppPayment(ctx, svc.ID, "pi_123")
	if err != nil {
		t.Fatal(err)
	}
	if !result.Service.PaidInApp || result.Service.Commission == nil {
		t.Errorf("service = %+v", result.Service)
	}
	if result.Entry.Reference != "pi_123" || result.Entry.CommissionAmount != 1.25 {
		t.Errorf("entry = %+v", result.Entry)
	}

	again, err := h.settlement.AcknowledgeInAppPayment(ctx, svc.ID, "pi_123")
	if err != nil {
		t.Fatal(err)
	}
	if !again.AlreadySettled {
		t.Error("second acknowledgement should be a no-op")
	}
	if h.payments.calls != 1 {
		t.Errorf("payment verifications = %d", h.payments.calls)
	}
}

func TestAcknowledgeInAppPaymentRejectsUnpaid(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	svc := h.acceptedService(t, 25, func(in *CreateServiceInput) { in.PaymentMethod = models.PaymentMethodInApp })
	if _, err := h.lifecycle.CompleteTrip(ctx, svc.ID, nil); err != nil {
		t.Fatal(err)
	}

	h.payments.status = &payment.PaymentStatus{Status: payment.StatusProcessing}
	_, err := h.settlement.AcknowledgeInAppPayment(ctx, svc.ID, "pi_1")
	assertKind(t, err, models.ErrInvalidState)

	h.payments.err = errors.New("gateway down")
	if _, err := h.settlement.AcknowledgeInAppPayment(ctx, svc.ID, "pi_1"); err == nil {
		t.Error("gateway failure should surface")
	}

	stored, _ := h.store.GetService(ctx, svc.ID)
	if stored.PaidInApp || stored.Commission != nil {
		t.Errorf("unverified payment changed the service: %+v", stored)
	}
}

func TestAcknowledgeInAppPaymentChecksIntent(t *testing.T) {
	tests := []struct {
		name   string
		intent func(serviceID string) *payment.PaymentStatus
	}{
		{"other service", func(string) *payment.PaymentStatus { return paidIntent("some-other-service", 50) }},
		{"no service", func(string) *payment.PaymentStatus {
			return &payment.PaymentStatus{Status: payment.StatusSucceeded, Amount: 50}
		}},
		{"short amount", func(id string) *payment.PaymentStatus { return paidIntent(id, 1) }},
		{"over amount", func(id string) *payment.PaymentStatus { return paidIntent(id, 50.02) }},
		{"other currency", func(id string) *payment.PaymentStatus {
			p := paidIntent(id, 50)
			p.Currency = "EUR"
			return p
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()
			svc := h.acceptedService(t, 50, func(in *CreateServiceInput) { in.PaymentMethod = models.PaymentMethodInApp })
			if _, err := h.lifecycle.CompleteTrip(ctx, svc.ID, nil); err != nil {
				t.Fatal(err)
			}

			h.payments.status = tt.intent(svc.ID)
			_, err := h.settlement.AcknowledgeInAppPayment(ctx, svc.ID, "pi_other")
			assertKind(t, err, models.ErrInvalidState)

			stored, _ := h.store.GetService(ctx, svc.ID)
			if stored.PaidInApp || stored.Commission != nil {
				t.Errorf("service changed: %+v", stored)
			}
			if entries, _ := h.store.ListLedgerEntriesByService(ctx, svc.ID); len(entries) != 0 {
				t.Errorf("ledger entries = %d", len(entries))
			}
		})
	}
}

func TestAcknowledgeInAppPaymentAcceptsMatchingIntent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	svc := h.acceptedService(t, 50, func(in *CreateServiceInput) { in.PaymentMethod = models.PaymentMethodInApp })
	if _, err := h.lifecycle.CompleteTrip(ctx, svc.ID, nil); err != nil {
		t.Fatal(err)
	}

	intent := paidIntent(svc.ID, 50)
	intent.Currency = "usd"
	h.payments.status = intent
	result, err := h.settlement.AcknowledgeInAppPayment(ctx, svc.ID, "pi_ok")
	if err != nil {
		t.Fatal(err)
	}
	if result.Entry.GrossAmount != 50 || result.Entry.CommissionAmount != 2.5 {
		t.Errorf("entry = %+v", result.Entry)
	}
}

func TestAcknowledgeCashServiceFails(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	svc := h.acceptedService(t, 25)
	if _, err := h.lifecycle.CompleteTrip(ctx, svc.ID, nil); err != nil {
		t.Fatal(err)
	}

	_, err := h.settlement.AcknowledgeInAppPayment(ctx, svc.ID, "pi_1")
	assertKind(t, err, models.ErrInvalidState)
}
