package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cargoride/internal/config"
	"cargoride/internal/models"
	"cargoride/internal/repositories/interfaces"
	"cargoride/pkg/logger"
	"cargoride/pkg/maps"
	"cargoride/pkg/payment"
	"cargoride/pkg/push"
	"cargoride/pkg/storage"
)

// EventPublisher receives domain events once the producing transaction has committed.
type EventPublisher interface {
	Publish(ctx context.Context, event *models.DomainEvent) error
}

type PushSender interface {
	SendNotification(ctx context.Context, request *push.NotificationRequest) (*push.NotificationResponse, error)
}

type ReceiptStorage interface {
	Upload(ctx context.Context, request *storage.UploadRequest) (*storage.UploadResponse, error)
	Delete(ctx context.Context, key string) error
	GetURL(ctx context.Context, key string, expiration time.Duration) (string, error)
}

type MetricsRecorder interface {
	ObserveOperation(operation string, err error, elapsed time.Duration)
	ObserveSettlement(gross, commission float64)
}

// Dependencies wires the engine services. Only Store is required.
type Dependencies struct {
	Store       interfaces.Store
	Logger      *logger.Logger
	Events      EventPublisher
	Push        PushSender
	Routes      maps.RouteEstimator
	Receipts    ReceiptStorage
	Payments    payment.PaymentVerifier
	Metrics     MetricsRecorder
	Marketplace *config.MarketplaceConfig
	Transaction *config.TransactionConfig
	Now         func() time.Time
}

type engine struct {
	store       interfaces.Store
	logger      *logger.Logger
	metrics     MetricsRecorder
	dispatcher  *dispatcher
	marketplace config.MarketplaceConfig
	txTimeout   time.Duration
	now         func() time.Time
}

func newEngine(deps Dependencies, component string) *engine {
	log := deps.Logger
	if log == nil {
		log = logger.Discard()
	}
	log = log.WithField("component", component)

	marketplace := config.MarketplaceConfig{DefaultCommissionRate: 0.05, Currency: "PYG", DefaultSLAMinutes: 60}
	if deps.Marketplace != nil {
		marketplace = *deps.Marketplace
	}

	var timeout time.Duration
	if deps.Transaction != nil {
		timeout = deps.Transaction.Timeout
	}

	now := deps.Now
	if now == nil {
		now = time.Now
	}

	metrics := deps.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}

	return &engine{
		store:       deps.Store,
		logger:      log,
		metrics:     metrics,
		dispatcher:  &dispatcher{events: deps.Events, push: deps.Push, logger: log, currency: marketplace.Currency},
		marketplace: marketplace,
		txTimeout:   timeout,
		now:         now,
	}
}

// runTx executes fn as one store transaction bounded by the configured timeout.
func (e *engine) runTx(ctx context.Context, operation string, fn interfaces.TxFunc) error {
	start := time.Now()
	if e.txTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.txTimeout)
		defer cancel()
	}

	err := e.store.RunTransaction(ctx, fn)
	e.metrics.ObserveOperation(operation, err, time.Since(start))
	return err
}

// logFailure logs guard rejections at debug and everything else at error.
func (e *engine) logFailure(operation, serviceID string, err error) {
	log := e.logger.WithFields(map[string]interface{}{
		"operation":  operation,
		"service_id": serviceID,
	}).WithError(err)

	if isGuardError(err) {
		log.Debug("Operation rejected")
		return
	}
	if models.IsRetryable(err) {
		log.Warn("Operation aborted, caller may retry")
		return
	}
	log.Error("Operation failed")
}

// publishSettlement runs the post-commit side effects of a fresh settlement.
func (e *engine) publishSettlement(ctx context.Context, result *SettlementResult) {
	if result == nil || result.AlreadySettled || result.Entry == nil {
		return
	}
	entry := result.Entry

	e.metrics.ObserveSettlement(entry.GrossAmount, entry.CommissionAmount)
	e.logger.LogSettlementEvent(entry.ServiceID, entry.DriverID, entry.GrossAmount, entry.CommissionAmount, entry.NetAmount, e.marketplace.Currency)

	event := newEvent(models.EventServiceSettled, result.Service, e.now())
	event.Amount = floatPtr(entry.CommissionAmount)
	event.Attributes = map[string]string{
		"gross": fmt.Sprintf("%.2f", entry.GrossAmount),
		"net":   fmt.Sprintf("%.2f", entry.NetAmount),
	}
	e.dispatcher.dispatch(ctx, event)
}

func isGuardError(err error) bool {
	return errors.Is(err, models.ErrNotFound) ||
		errors.Is(err, models.ErrInvalidState) ||
		errors.Is(err, models.ErrDuplicateOffer) ||
		errors.Is(err, models.ErrAlreadyAccepted) ||
		errors.Is(err, models.ErrValidation)
}

func invalidState(op string, svc *models.Service, detail string) error {
	return &models.EngineError{Op: op, Kind: models.ErrInvalidState, ServiceID: svc.ID, Detail: detail}
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func floatPtr(v float64) *float64 {
	return &v
}

type noopMetrics struct{}

func (noopMetrics) ObserveOperation(string, error, time.Duration) {}

func (noopMetrics) ObserveSettlement(float64, float64) {}
