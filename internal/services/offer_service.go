package services

import (
	"context"
	"errors"
	"strings"

	"cargoride/internal/models"
	"cargoride/internal/repositories/interfaces"
	"cargoride/internal/utils"
	"cargoride/pkg/livefeed"
)

type SubmitOfferInput struct {
	ServiceID                string
	DriverID                 string
	Price                    float64
	EstimatedMinutes         int
	Notes                    string
	UsesOrganizationAsIssuer bool
}

type OfferSort string

const (
	OfferSortDefault OfferSort = ""
	OfferSortPrice   OfferSort = "price"
	OfferSortETA     OfferSort = "eta"
)

type OfferService interface {
	SubmitOffer(ctx context.Context, input *SubmitOfferInput) (*models.Offer, error)
	RejectOffer(ctx context.Context, serviceID, offerID string) (*models.Offer, error)
	ListOffers(ctx context.Context, serviceID string, sortBy OfferSort) ([]*models.Offer, error)
	WatchOffers(ctx context.Context, serviceID string) (*livefeed.Feed[[]*models.Offer], error)
}

type offerService struct {
	*engine
}

func NewOfferService(deps Dependencies) OfferService {
	return &offerService{engine: newEngine(deps, "offers")}
}

func (s *offerService) SubmitOffer(ctx context.Context, input *SubmitOfferInput) (*models.Offer, error) {
	const op = "submit offer"

	if err := validateOfferInput(op, input); err != nil {
		return nil, err
	}

	var (
		offer   *models.Offer
		service *models.Service
	)
	err := s.runTx(ctx, op, func(ctx context.Context, tx interfaces.Tx) error {
		offer, service = nil, nil

		svc, err := tx.GetService(input.ServiceID)
		if err != nil {
			return err
		}
		if svc.Status != models.ServiceStatusPendingOffers {
			return invalidState(op, svc, "service is "+string(svc.Status))
		}

		now := s.now()
		offerID := models.OfferIDForDriver(input.DriverID)
		existing, err := tx.GetOffer(svc.ID, offerID)
		switch {
		case errors.Is(err, models.ErrNotFound):
			existing = nil
		case err != nil:
			return err
		case existing.Status.IsActive():
			return &models.EngineError{Op: op, Kind: models.ErrDuplicateOffer, ServiceID: svc.ID, OfferID: offerID, DriverID: input.DriverID}
		}

		next := &models.Offer{
			ID:                       offerID,
			ServiceID:                svc.ID,
			DriverID:                 input.DriverID,
			OfferedPrice:             input.Price,
			EstimatedMinutes:         input.EstimatedMinutes,
			Notes:                    strings.TrimSpace(input.Notes),
			Status:                   models.OfferStatusPending,
			UsesOrganizationAsIssuer: input.UsesOrganizationAsIssuer,
			CreatedAt:                now,
			UpdatedAt:                now,
		}
		if err := tx.PutOffer(next); err != nil {
			return err
		}

		// Touch the service so a concurrent acceptance conflicts with this bid.
		svc.OfferCount++
		svc.UpdatedAt = now
		if err := tx.PutService(svc); err != nil {
			return err
		}

		offer, service = next, svc
		return nil
	})
	if err != nil {
		s.logFailure(op, input.ServiceID, err)
		return nil, err
	}

	s.logger.WithServiceID(offer.ServiceID).WithDriverID(offer.DriverID).
		WithField("offered_price", offer.OfferedPrice).
		Info("Offer submitted")

	event := newEvent(models.EventOfferSubmitted, service, offer.CreatedAt)
	event.DriverID = offer.DriverID
	event.OfferID = offer.ID
	event.Amount = floatPtr(offer.OfferedPrice)
	s.dispatcher.dispatch(ctx, event)
	return offer, nil
}

func validateOfferInput(op string, input *SubmitOfferInput) error {
	if input == nil {
		return models.NewValidationError(op, "input is required")
	}
	if input.ServiceID == "" || input.DriverID == "" {
		return models.NewValidationError(op, "service and driver are required")
	}
	if input.Price < 0 {
		return &models.EngineError{Op: op, Kind: models.ErrValidation, ServiceID: input.ServiceID, DriverID: input.DriverID, Detail: "price must not be negative"}
	}
	if !utils.IsWholeCents(input.Price) {
		return &models.EngineError{Op: op, Kind: models.ErrValidation, ServiceID: input.ServiceID, DriverID: input.DriverID, Detail: "price has fractions of a cent"}
	}
	if input.EstimatedMinutes <= 0 {
		return &models.EngineError{Op: op, Kind: models.ErrValidation, ServiceID: input.ServiceID, DriverID: input.DriverID, Detail: "estimated minutes must be positive"}
	}
	return nil
}

func (s *offerService) RejectOffer(ctx context.Context, serviceID, offerID string) (*models.Offer, error) {
	const op = "reject offer"

	var (
		offer   *models.Offer
		service *models.Service
		changed bool
	)
	err := s.runTx(ctx, op, func(ctx context.Context, tx interfaces.Tx) error {
		offer, service, changed = nil, nil, false

		svc, err := tx.GetService(serviceID)
		if err != nil {
			return err
		}
		if svc.Status != models.ServiceStatusPendingOffers {
			return invalidState(op, svc, "service is "+string(svc.Status))
		}

		o, err := tx.GetOffer(serviceID, offerID)
		if err != nil {
			return err
		}
		offer, service = o, svc
		if o.Status == models.OfferStatusRejected {
			return nil
		}

		o.Status = models.OfferStatusRejected
		o.UpdatedAt = s.now()
		changed = true
		return tx.PutOffer(o)
	})
	if err != nil {
		s.logFailure(op, serviceID, err)
		return nil, err
	}
	if !changed {
		return offer, nil
	}

	s.logger.WithServiceID(serviceID).WithDriverID(offer.DriverID).Info("Offer rejected")
	event := newEvent(models.EventOfferRejected, service, offer.UpdatedAt)
	event.DriverID = offer.DriverID
	event.OfferID = offer.ID
	s.dispatcher.dispatch(ctx, event)
	return offer, nil
}

func (s *offerService) ListOffers(ctx context.Context, serviceID string, sortBy OfferSort) ([]*models.Offer, error) {
	offers, err := s.store.ListOffers(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	SortOffers(offers, sortBy)
	return offers, nil
}

func (s *offerService) WatchOffers(ctx context.Context, serviceID string) (*livefeed.Feed[[]*models.Offer], error) {
	if _, err := s.store.GetService(ctx, serviceID); err != nil {
		return nil, err
	}
	return s.store.WatchOffers(ctx, serviceID)
}

// SortOffers reorders a feed snapshot for display. The default keeps the feed order.
func SortOffers(offers []*models.Offer, sortBy OfferSort) {
	switch sortBy {
	case OfferSortPrice:
		models.SortOffersByPrice(offers)
	case OfferSortETA:
		models.SortOffersByETA(offers)
	}
}
