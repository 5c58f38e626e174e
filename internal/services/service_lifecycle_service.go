package services

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"cargoride/internal/models"
	"cargoride/internal/repositories/interfaces"
	"cargoride/internal/utils"
	"cargoride/pkg/livefeed"
	"cargoride/pkg/maps"
	"cargoride/pkg/storage"

	"github.com/google/uuid"
)

const receiptLinkTTL = 15 * time.Minute

type CreateServiceInput struct {
	Route            []models.Waypoint
	Kind             models.ServiceKind
	SLAMinutes       int
	DistanceKm       *float64
	EstimatedMinutes *int
	EstimatedPrice   *float64
	PaymentMethod    models.PaymentMethod
	ReceiptType      models.ReceiptType
	Cargo            models.CargoDetails
	ScheduledFor     *time.Time
	Notes            string
}

type CompleteTripInput struct {
	DriverID       string
	CommissionRate *float64
}

type CancelServiceInput struct {
	Reason string
	Actor  string
}

type ReceiptUpload struct {
	FileName    string
	ContentType string
	Size        int64
	Reader      io.Reader
}

type ServiceLifecycleService interface {
	CreateService(ctx context.Context, requesterID string, input *CreateServiceInput) (*models.Service, error)
	GetService(ctx context.Context, serviceID string) (*models.Service, error)
	WatchService(ctx context.Context, serviceID string) (*livefeed.Feed[*models.Service], error)

	StartTrip(ctx context.Context, serviceID, driverID string) (*models.Service, error)
	CompleteTrip(ctx context.Context, serviceID string, input *CompleteTripInput) (*models.Service, error)
	CancelService(ctx context.Context, serviceID string, input *CancelServiceInput) (*models.Service, error)

	AttachReceipt(ctx context.Context, serviceID string, upload *ReceiptUpload) (*models.Service, error)
	// ReceiptURL returns a short-lived download link for the attached receipt.
	ReceiptURL(ctx context.Context, serviceID string) (string, error)
	RateService(ctx context.Context, serviceID, raterID string, rating float64) (*models.Service, error)
	UpdateDriverLocation(ctx context.Context, serviceID, driverID string, lat, lng float64) (*models.Service, error)
}

// IsSLACompliant is nil when the duration or the SLA is unknown.
func IsSLACompliant(service *models.Service) *bool {
	return service.SLACompliant()
}

type serviceLifecycleService struct {
	*engine
	settlement SettlementService
	routes     maps.RouteEstimator
	receipts   ReceiptStorage
}

func NewServiceLifecycleService(deps Dependencies, settlement SettlementService) ServiceLifecycleService {
	return &serviceLifecycleService{
		engine:     newEngine(deps, "service_lifecycle"),
		settlement: settlement,
		routes:     deps.Routes,
		receipts:   deps.Receipts,
	}
}

func (s *serviceLifecycleService) CreateService(ctx context.Context, requesterID string, input *CreateServiceInput) (*models.Service, error) {
	const op = "create service"

	if requesterID == "" {
		return nil, models.NewValidationError(op, "requester is required")
	}
	if err := s.validateCreate(op, input); err != nil {
		return nil, err
	}

	now := s.now()
	svc := &models.Service{
		RequesterID:      requesterID,
		Route:            input.Route,
		Kind:             input.Kind,
		DistanceKm:       input.DistanceKm,
		EstimatedMinutes: input.EstimatedMinutes,
		SLAMinutes:       input.SLAMinutes,
		EstimatedPrice:   input.EstimatedPrice,
		PaymentMethod:    input.PaymentMethod,
		ReceiptType:      input.ReceiptType,
		Cargo:            input.Cargo,
		ScheduledFor:     input.ScheduledFor,
		Notes:            input.Notes,
		Status:           models.ServiceStatusPendingOffers,
		RequestedAt:      now,
		UpdatedAt:        now,
	}
	if svc.SLAMinutes == 0 {
		svc.SLAMinutes = s.marketplace.DefaultSLAMinutes
	}
	if svc.PaymentMethod == "" {
		svc.PaymentMethod = models.PaymentMethodCash
	}
	if svc.ReceiptType == "" {
		svc.ReceiptType = models.ReceiptTypeNone
	}
	s.estimateRoute(ctx, svc)

	if err := s.store.CreateService(ctx, svc); err != nil {
		s.logFailure(op, svc.ID, err)
		return nil, err
	}

	s.logger.LogServiceEvent(svc.ID, string(models.EventServiceCreated), map[string]interface{}{
		"requester_id": requesterID,
		"service_kind": string(svc.Kind),
	})
	s.dispatcher.dispatch(ctx, newEvent(models.EventServiceCreated, svc, now))
	return svc, nil
}

func (s *serviceLifecycleService) validateCreate(op string, input *CreateServiceInput) error {
	if input == nil {
		return models.NewValidationError(op, "input is required")
	}
	if len(input.Route) < 2 {
		return models.NewValidationError(op, "route needs an origin and a destination")
	}
	for i, wp := range input.Route {
		if strings.TrimSpace(wp.Address) == "" {
			return models.NewValidationError(op, fmt.Sprintf("route stop %d has no address", i))
		}
	}
	if !input.Kind.Valid() {
		return models.NewValidationError(op, "unknown service kind "+string(input.Kind))
	}
	if input.SLAMinutes < 0 {
		return models.NewValidationError(op, "sla minutes must be positive")
	}
	if input.PaymentMethod != "" && !input.PaymentMethod.Valid() {
		return models.NewValidationError(op, "unknown payment method "+string(input.PaymentMethod))
	}
	if input.ReceiptType != "" && !input.ReceiptType.Valid() {
		return models.NewValidationError(op, "unknown receipt type "+string(input.ReceiptType))
	}
	if input.EstimatedPrice != nil && *input.EstimatedPrice < 0 {
		return models.NewValidationError(op, "estimated price must not be negative")
	}
	if input.EstimatedPrice != nil && !utils.IsWholeCents(*input.EstimatedPrice) {
		return models.NewValidationError(op, "estimated price has fractions of a cent")
	}
	return nil
}

// estimateRoute fills distance and duration when the caller did not provide them. Estimation
// is advisory; failures are logged and the service is created without the figures.
func (s *serviceLifecycleService) estimateRoute(ctx context.Context, svc *models.Service) {
	if s.routes == nil || (svc.DistanceKm != nil && svc.EstimatedMinutes != nil) {
		return
	}

	request := &maps.RouteRequest{Stops: make([]maps.Stop, len(svc.Route))}
	for i, wp := range svc.Route {
		stop := maps.Stop{Address: wp.Address}
		if wp.Lat != nil && wp.Lng != nil {
			stop.Location = &maps.Location{Latitude: *wp.Lat, Longitude: *wp.Lng}
		}
		request.Stops[i] = stop
	}

	estimate, err := s.routes.EstimateRoute(ctx, request)
	if err != nil {
		s.logger.WithError(err).Warn("Route estimation failed")
		return
	}
	if svc.DistanceKm == nil {
		svc.DistanceKm = floatPtr(estimate.DistanceKm)
	}
	if svc.EstimatedMinutes == nil {
		minutes := estimate.DurationMinutes
		svc.EstimatedMinutes = &minutes
	}
}

func (s *serviceLifecycleService) GetService(ctx context.Context, serviceID string) (*models.Service, error) {
	return s.store.GetService(ctx, serviceID)
}

func (s *serviceLifecycleService) WatchService(ctx context.Context, serviceID string) (*livefeed.Feed[*models.Service], error) {
	if _, err := s.store.GetService(ctx, serviceID); err != nil {
		return nil, err
	}
	return s.store.WatchService(ctx, serviceID)
}

func (s *serviceLifecycleService) StartTrip(ctx context.Context, serviceID, driverID string) (*models.Service, error) {
	const op = "start trip"

	var updated *models.Service
	err := s.runTx(ctx, op, func(ctx context.Context, tx interfaces.Tx) error {
		svc, err := tx.GetService(serviceID)
		if err != nil {
			return err
		}
		if svc.Status != models.ServiceStatusAccepted {
			return invalidState(op, svc, "service is "+string(svc.Status))
		}
		if err := checkAssignedDriver(op, svc, driverID); err != nil {
			return err
		}

		now := s.now()
		svc.Status = models.ServiceStatusInProgress
		svc.StartedAt = timePtr(now)
		svc.ActualDurationMinutes = nil
		svc.UpdatedAt = now
		updated = svc
		return tx.PutService(svc)
	})
	if err != nil {
		s.logFailure(op, serviceID, err)
		return nil, err
	}

	s.logger.LogServiceEvent(serviceID, string(models.EventServiceStarted), map[string]interface{}{"driver_id": updated.DriverID})
	s.dispatcher.dispatch(ctx, newEvent(models.EventServiceStarted, updated, s.now()))
	return updated, nil
}

func (s *serviceLifecycleService) CompleteTrip(ctx context.Context, serviceID string, input *CompleteTripInput) (*models.Service, error) {
	const op = "complete trip"
	if input == nil {
		input = &CompleteTripInput{}
	}

	var (
		updated          *models.Service
		settlement       *SettlementResult
		alreadyCompleted bool
	)
	err := s.runTx(ctx, op, func(ctx context.Context, tx interfaces.Tx) error {
		updated, settlement, alreadyCompleted = nil, nil, false

		svc, err := tx.GetService(serviceID)
		if err != nil {
			return err
		}
		if svc.Status == models.ServiceStatusCompleted {
			updated, alreadyCompleted = svc, true
			return nil
		}
		if svc.Status != models.ServiceStatusAccepted && svc.Status != models.ServiceStatusInProgress {
			return invalidState(op, svc, "service is "+string(svc.Status))
		}
		if err := checkAssignedDriver(op, svc, input.DriverID); err != nil {
			return err
		}

		now := s.now()
		duration := actualDurationMinutes(svc.StartedAt, now)
		svc.Status = models.ServiceStatusCompleted
		svc.EndedAt = timePtr(now)
		svc.ActualDurationMinutes = &duration
		svc.UpdatedAt = now
		updated = svc

		if svc.PaymentMethod.IsOffPlatform() {
			settlement, err = s.settlement.SettleInTx(ctx, tx, svc, SettleOptions{Rate: input.CommissionRate})
			return err
		}

		// In-app payments settle once the payment is acknowledged.
		svc.CommissionPending = false
		return tx.PutService(svc)
	})
	if err != nil {
		s.logFailure(op, serviceID, err)
		return nil, err
	}
	if alreadyCompleted {
		s.logger.WithServiceID(serviceID).Debug("Service already completed")
		return updated, nil
	}

	s.logger.LogServiceEvent(serviceID, string(models.EventServiceCompleted), map[string]interface{}{
		"driver_id":               updated.DriverID,
		"actual_duration_minutes": *updated.ActualDurationMinutes,
		"payment_method":          string(updated.PaymentMethod),
	})
	s.dispatcher.dispatch(ctx, newEvent(models.EventServiceCompleted, updated, s.now()))
	s.publishSettlement(ctx, settlement)
	return updated, nil
}

// actualDurationMinutes floors the elapsed minutes; an unknown or non-positive duration is 1.
func actualDurationMinutes(startedAt *time.Time, now time.Time) int {
	if startedAt == nil {
		return 1
	}
	minutes := int(now.Sub(*startedAt) / time.Minute)
	if minutes <= 0 {
		return 1
	}
	return minutes
}

func (s *serviceLifecycleService) CancelService(ctx context.Context, serviceID string, input *CancelServiceInput) (*models.Service, error) {
	const op = "cancel service"

	if input == nil || strings.TrimSpace(input.Actor) == "" {
		return nil, &models.EngineError{Op: op, Kind: models.ErrValidation, ServiceID: serviceID, Detail: "cancelling actor is required"}
	}

	var updated *models.Service
	err := s.runTx(ctx, op, func(ctx context.Context, tx interfaces.Tx) error {
		svc, err := tx.GetService(serviceID)
		if err != nil {
			return err
		}
		if svc.Status.IsTerminal() {
			return invalidState(op, svc, "service is "+string(svc.Status))
		}

		now := s.now()
		offers, err := tx.ListOffers(serviceID)
		if err != nil {
			return err
		}
		for _, offer := range offers {
			if offer.Status != models.OfferStatusPending {
				continue
			}
			offer.Status = models.OfferStatusRejected
			offer.UpdatedAt = now
			if err := tx.PutOffer(offer); err != nil {
				return err
			}
		}

		svc.Status = models.ServiceStatusCancelled
		svc.Cancellation = &models.Cancellation{
			Reason:   input.Reason,
			Actor:    input.Actor,
			DriverID: svc.DriverID,
			OfferID:  svc.AcceptedOfferID,
		}
		svc.DriverID, svc.AcceptedOfferID = "", ""
		svc.EndedAt = timePtr(now)
		svc.UpdatedAt = now
		updated = svc
		return tx.PutService(svc)
	})
	if err != nil {
		s.logFailure(op, serviceID, err)
		return nil, err
	}

	s.logger.LogServiceEvent(serviceID, string(models.EventServiceCancelled), map[string]interface{}{
		"actor":  input.Actor,
		"reason": input.Reason,
	})
	event := newEvent(models.EventServiceCancelled, updated, s.now())
	event.Attributes = map[string]string{"actor": input.Actor, "reason": input.Reason}
	s.dispatcher.dispatch(ctx, event)
	return updated, nil
}

func (s *serviceLifecycleService) AttachReceipt(ctx context.Context, serviceID string, upload *ReceiptUpload) (*models.Service, error) {
	const op = "attach receipt"

	if upload == nil || upload.Reader == nil {
		return nil, &models.EngineError{Op: op, Kind: models.ErrValidation, ServiceID: serviceID, Detail: "receipt file is required"}
	}
	if s.receipts == nil {
		return nil, fmt.Errorf("%s: receipt storage is not configured", op)
	}

	svc, err := s.store.GetService(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	if svc.Status != models.ServiceStatusCompleted {
		err := invalidState(op, svc, "receipts can only be attached to completed services")
		s.logFailure(op, serviceID, err)
		return nil, err
	}

	// Upload outside the transaction; the body may run more than once.
	key := path.Join("receipts", serviceID, uuid.NewString()+"-"+path.Base(upload.FileName))
	stored, err := s.receipts.Upload(ctx, &storage.UploadRequest{
		Key:         key,
		Reader:      upload.Reader,
		ContentType: upload.ContentType,
		Size:        upload.Size,
		Metadata:    map[string]string{"service_id": serviceID},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload receipt: %w", err)
	}

	var updated *models.Service
	var replaced string
	err = s.runTx(ctx, op, func(ctx context.Context, tx interfaces.Tx) error {
		svc, err := tx.GetService(serviceID)
		if err != nil {
			return err
		}
		if svc.Status != models.ServiceStatusCompleted {
			return invalidState(op, svc, "receipts can only be attached to completed services")
		}
		replaced = svc.ReceiptKey
		svc.ClientReceipt = stored.URL
		svc.ReceiptKey = stored.Key
		svc.UpdatedAt = s.now()
		updated = svc
		return tx.PutService(svc)
	})
	if err != nil {
		s.logFailure(op, serviceID, err)
		s.discardReceipt(ctx, serviceID, stored.Key)
		return nil, err
	}

	s.logger.LogServiceEvent(serviceID, "receipt.attached", map[string]interface{}{"key": stored.Key})
	if replaced != "" && replaced != stored.Key {
		s.discardReceipt(ctx, serviceID, replaced)
	}
	return updated, nil
}

// discardReceipt removes a blob no service points at. It runs after the caller's context may
// already be done, so it is detached from its cancellation.
func (s *serviceLifecycleService) discardReceipt(ctx context.Context, serviceID, key string) {
	if err := s.receipts.Delete(context.WithoutCancel(ctx), key); err != nil {
		s.logger.WithServiceID(serviceID).WithError(err).WithField("key", key).Warn("Failed to delete orphaned receipt")
	}
}

func (s *serviceLifecycleService) ReceiptURL(ctx context.Context, serviceID string) (string, error) {
	const op = "receipt url"

	if s.receipts == nil {
		return "", fmt.Errorf("%s: receipt storage is not configured", op)
	}
	svc, err := s.store.GetService(ctx, serviceID)
	if err != nil {
		return "", err
	}
	if svc.ReceiptKey == "" {
		return "", &models.EngineError{Op: op, Kind: models.ErrNotFound, ServiceID: serviceID, Detail: "no receipt attached"}
	}

	url, err := s.receipts.GetURL(ctx, svc.ReceiptKey, receiptLinkTTL)
	if err != nil {
		return "", fmt.Errorf("failed to sign receipt link: %w", err)
	}
	return url, nil
}

func (s *serviceLifecycleService) RateService(ctx context.Context, serviceID, raterID string, rating float64) (*models.Service, error) {
	const op = "rate service"

	if rating < 1 || rating > 5 {
		return nil, &models.EngineError{Op: op, Kind: models.ErrValidation, ServiceID: serviceID, Detail: "rating must be between 1 and 5"}
	}

	var updated *models.Service
	err := s.runTx(ctx, op, func(ctx context.Context, tx interfaces.Tx) error {
		svc, err := tx.GetService(serviceID)
		if err != nil {
			return err
		}
		if svc.Status != models.ServiceStatusCompleted {
			return invalidState(op, svc, "only completed services can be rated")
		}

		switch raterID {
		case svc.RequesterID:
			if svc.DriverRating != nil {
				return invalidState(op, svc, "driver already rated")
			}
			svc.DriverRating = floatPtr(rating)
		case svc.DriverID:
			if svc.RequesterRating != nil {
				return invalidState(op, svc, "requester already rated")
			}
			svc.RequesterRating = floatPtr(rating)
		default:
			return invalidState(op, svc, "rater is not part of the service")
		}
		svc.UpdatedAt = s.now()
		updated = svc
		return tx.PutService(svc)
	})
	if err != nil {
		s.logFailure(op, serviceID, err)
		return nil, err
	}
	return updated, nil
}

func (s *serviceLifecycleService) UpdateDriverLocation(ctx context.Context, serviceID, driverID string, lat, lng float64) (*models.Service, error) {
	const op = "update driver location"

	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return nil, &models.EngineError{Op: op, Kind: models.ErrValidation, ServiceID: serviceID, Detail: "coordinates out of range"}
	}

	var updated *models.Service
	err := s.runTx(ctx, op, func(ctx context.Context, tx interfaces.Tx) error {
		svc, err := tx.GetService(serviceID)
		if err != nil {
			return err
		}
		if svc.Status != models.ServiceStatusAccepted && svc.Status != models.ServiceStatusInProgress {
			return invalidState(op, svc, "service is "+string(svc.Status))
		}
		if err := checkAssignedDriver(op, svc, driverID); err != nil {
			return err
		}
		svc.DriverLocation = &models.GeoPoint{Lat: lat, Lng: lng}
		svc.UpdatedAt = s.now()
		updated = svc
		return tx.PutService(svc)
	})
	if err != nil {
		s.logFailure(op, serviceID, err)
		return nil, err
	}
	return updated, nil
}

// checkAssignedDriver is skipped for system callers that pass no driver id.
func checkAssignedDriver(op string, svc *models.Service, driverID string) error {
	if driverID == "" || svc.DriverID == driverID {
		return nil
	}
	return &models.EngineError{Op: op, Kind: models.ErrInvalidState, ServiceID: svc.ID, DriverID: driverID, Detail: "caller is not the assigned driver"}
}
