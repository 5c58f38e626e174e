package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cargoride/internal/models"
	"cargoride/internal/repositories/interfaces"
	"cargoride/internal/utils"
	"cargoride/pkg/payment"
)

type SettleOptions struct {
	// Rate overrides the configured default commission rate.
	Rate      *float64
	Reference string
}

type SettlementResult struct {
	Service        *models.Service
	Entry          *models.LedgerEntry
	Account        *models.DriverAccount
	AlreadySettled bool
}

type SettlementService interface {
	// SettleInTx posts commission for a completed service inside the caller's transaction.
	SettleInTx(ctx context.Context, tx interfaces.Tx, service *models.Service, opts SettleOptions) (*SettlementResult, error)
	Settle(ctx context.Context, serviceID string, opts SettleOptions) (*SettlementResult, error)
	AcknowledgeInAppPayment(ctx context.Context, serviceID, paymentReference string) (*SettlementResult, error)

	GetDriverAccount(ctx context.Context, driverID string) (*models.DriverAccount, error)
	ListLedgerEntries(ctx context.Context, driverID string) ([]*models.LedgerEntry, error)
}

type settlementService struct {
	*engine
	payments payment.PaymentVerifier
}

func NewSettlementService(deps Dependencies) SettlementService {
	return &settlementService{
		engine:   newEngine(deps, "settlement"),
		payments: deps.Payments,
	}
}

func (s *settlementService) SettleInTx(ctx context.Context, tx interfaces.Tx, service *models.Service, opts SettleOptions) (*SettlementResult, error) {
	const op = "settle"

	if service.IsSettled() {
		result := &SettlementResult{Service: service, AlreadySettled: true}
		if entry, err := tx.GetLedgerEntryByService(service.ID); err == nil {
			result.Entry = entry
		}
		return result, nil
	}
	if service.Status != models.ServiceStatusCompleted {
		return nil, invalidState(op, service, "service is "+string(service.Status))
	}

	gross, err := s.grossAmount(service)
	if err != nil {
		return nil, err
	}

	rate := s.marketplace.DefaultCommissionRate
	if opts.Rate != nil {
		rate = *opts.Rate
	}
	if rate < 0 || rate >= 1 {
		return nil, &models.EngineError{Op: op, Kind: models.ErrValidation, ServiceID: service.ID, Detail: fmt.Sprintf("commission rate %v out of range", rate)}
	}

	split := utils.SplitCommission(gross, rate)
	now := s.now()

	entry := &models.LedgerEntry{
		ID:               models.LedgerEntryIDForService(service.ID),
		ServiceID:        service.ID,
		DriverID:         service.DriverID,
		GrossAmount:      split.Gross,
		CommissionAmount: split.Commission,
		NetAmount:        split.Net,
		Reference:        opts.Reference,
		Status:           models.LedgerEntryStatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := tx.CreateLedgerEntry(entry); err != nil {
		return nil, err
	}

	account, err := tx.GetDriverAccount(service.DriverID)
	if errors.Is(err, models.ErrNotFound) {
		account = models.NewDriverAccount(service.DriverID, now)
	} else if err != nil {
		return nil, err
	}
	account.OwedCommission = utils.AddMoney(account.OwedCommission, split.Commission)
	account.LifetimeGrossIncome = utils.AddMoney(account.LifetimeGrossIncome, split.Gross)
	account.LifetimeCommission = utils.AddMoney(account.LifetimeCommission, split.Commission)
	account.LastLedgerEntryID = entry.ID
	account.LastLedgerEntryAt = timePtr(now)
	account.UpdatedAt = now
	if err := tx.PutDriverAccount(account); err != nil {
		return nil, err
	}

	service.Commission = &models.CommissionBlock{
		BasisType:  models.CommissionBasisPercentage,
		BasisValue: rate,
		Amount:     split.Commission,
		Status:     models.CommissionStatusPendingCollection,
		AccruedAt:  now,
	}
	service.CommissionPending = true
	service.UpdatedAt = now
	if err := tx.PutService(service); err != nil {
		return nil, err
	}

	return &SettlementResult{Service: service, Entry: entry, Account: account}, nil
}

// grossAmount prefers the agreed price and falls back to the estimate.
func (s *settlementService) grossAmount(service *models.Service) (float64, error) {
	if service.FinalPrice != nil {
		return *service.FinalPrice, nil
	}
	if service.EstimatedPrice != nil {
		s.logger.WithServiceID(service.ID).
			WithField("estimated_price", *service.EstimatedPrice).
			Warn("Settling on estimated price, service has no final price")
		return *service.EstimatedPrice, nil
	}
	return 0, &models.EngineError{Op: "settle", Kind: models.ErrValidation, ServiceID: service.ID, Detail: "service has neither final nor estimated price"}
}

func (s *settlementService) Settle(ctx context.Context, serviceID string, opts SettleOptions) (*SettlementResult, error) {
	const op = "settle"

	var result *SettlementResult
	err := s.runTx(ctx, op, func(ctx context.Context, tx interfaces.Tx) error {
		result = nil
		svc, err := tx.GetService(serviceID)
		if err != nil {
			return err
		}
		result, err = s.SettleInTx(ctx, tx, svc, opts)
		return err
	})
	if err != nil {
		s.logFailure(op, serviceID, err)
		return nil, err
	}

	s.publishSettlement(ctx, result)
	return result, nil
}

func (s *settlementService) AcknowledgeInAppPayment(ctx context.Context, serviceID, paymentReference string) (*SettlementResult, error) {
	const op = "acknowledge payment"

	if paymentReference == "" {
		return nil, &models.EngineError{Op: op, Kind: models.ErrValidation, ServiceID: serviceID, Detail: "payment reference is required"}
	}

	svc, err := s.store.GetService(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	if err := checkInAppCompleted(op, svc); err != nil {
		s.logFailure(op, serviceID, err)
		return nil, err
	}
	if svc.IsSettled() {
		return &SettlementResult{Service: svc, AlreadySettled: true}, nil
	}

	if err := s.verifyPayment(ctx, svc, paymentReference); err != nil {
		s.logFailure(op, serviceID, err)
		return nil, err
	}

	var result *SettlementResult
	err = s.runTx(ctx, op, func(ctx context.Context, tx interfaces.Tx) error {
		result = nil
		svc, err := tx.GetService(serviceID)
		if err != nil {
			return err
		}
		if err := checkInAppCompleted(op, svc); err != nil {
			return err
		}
		if !svc.IsSettled() {
			svc.PaidInApp = true
		}
		result, err = s.SettleInTx(ctx, tx, svc, SettleOptions{Reference: paymentReference})
		return err
	})
	if err != nil {
		s.logFailure(op, serviceID, err)
		return nil, err
	}

	s.publishSettlement(ctx, result)
	return result, nil
}

func checkInAppCompleted(op string, svc *models.Service) error {
	if svc.PaymentMethod != models.PaymentMethodInApp {
		return invalidState(op, svc, "service is not paid in app")
	}
	if svc.Status != models.ServiceStatusCompleted {
		return invalidState(op, svc, "service is "+string(svc.Status))
	}
	return nil
}

func (s *settlementService) verifyPayment(ctx context.Context, svc *models.Service, reference string) error {
	if s.payments == nil {
		s.logger.WithServiceID(svc.ID).Warn("No payment verifier configured, accepting payment reference unverified")
		return nil
	}

	status, err := s.payments.VerifyPayment(ctx, reference)
	if err != nil {
		return fmt.Errorf("failed to verify payment %s: %w", reference, err)
	}
	if !status.Succeeded() {
		return paymentMismatch(svc, reference, "payment status is "+status.Status)
	}
	if status.Metadata["service_id"] != svc.ID {
		return paymentMismatch(svc, reference, "payment belongs to another service")
	}
	if status.Currency != "" && !strings.EqualFold(status.Currency, s.marketplace.Currency) {
		return paymentMismatch(svc, reference, "payment currency is "+status.Currency)
	}
	if price := chargeablePrice(svc); price != nil && utils.RoundMoney(status.Amount) != utils.RoundMoney(*price) {
		s.logger.WithServiceID(svc.ID).WithFields(map[string]interface{}{
			"paid_amount": status.Amount,
			"price":       *price,
			"reference":   reference,
		}).Warn("Paid amount differs from service price")
		return paymentMismatch(svc, reference, fmt.Sprintf("paid %.2f, expected %.2f", status.Amount, *price))
	}
	return nil
}

// chargeablePrice is the amount settlement will post as gross.
func chargeablePrice(svc *models.Service) *float64 {
	if svc.FinalPrice != nil {
		return svc.FinalPrice
	}
	return svc.EstimatedPrice
}

func paymentMismatch(svc *models.Service, reference, detail string) error {
	return &models.EngineError{Op: "acknowledge payment", Kind: models.ErrInvalidState, ServiceID: svc.ID, Detail: detail + " (" + reference + ")"}
}

func (s *settlementService) GetDriverAccount(ctx context.Context, driverID string) (*models.DriverAccount, error) {
	return s.store.GetDriverAccount(ctx, driverID)
}

func (s *settlementService) ListLedgerEntries(ctx context.Context, driverID string) ([]*models.LedgerEntry, error) {
	return s.store.ListLedgerEntriesByDriver(ctx, driverID)
}
