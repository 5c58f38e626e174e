package services

import (
	"context"
	"errors"

	"cargoride/internal/models"
	"cargoride/internal/repositories/interfaces"
	"cargoride/internal/utils"
)

type AcceptOfferInput struct {
	ServiceID       string
	OfferID         string
	VehicleID       string
	NegotiatedPrice *float64
	PaymentMethod   models.PaymentMethod
	ReceiptType     models.ReceiptType
}

type AcceptanceResult struct {
	Service  *models.Service
	Offer    *models.Offer
	Rejected []*models.Offer
}

type AcceptanceService interface {
	// AcceptOffer promotes one offer to winner and rejects its siblings in one transaction.
	AcceptOffer(ctx context.Context, input *AcceptOfferInput) (*AcceptanceResult, error)
}

type acceptanceService struct {
	*engine
}

func NewAcceptanceService(deps Dependencies) AcceptanceService {
	return &acceptanceService{engine: newEngine(deps, "acceptance")}
}

func (s *acceptanceService) AcceptOffer(ctx context.Context, input *AcceptOfferInput) (*AcceptanceResult, error) {
	const op = "accept offer"

	if err := validateAcceptInput(op, input); err != nil {
		return nil, err
	}

	var result *AcceptanceResult
	err := s.runTx(ctx, op, func(ctx context.Context, tx interfaces.Tx) error {
		result = nil

		svc, err := tx.GetService(input.ServiceID)
		if err != nil {
			return err
		}
		if svc.AcceptedOfferID != "" {
			return &models.EngineError{Op: op, Kind: models.ErrAlreadyAccepted, ServiceID: svc.ID, OfferID: svc.AcceptedOfferID}
		}
		if svc.Status != models.ServiceStatusPendingOffers {
			return invalidState(op, svc, "service is "+string(svc.Status))
		}

		winner, err := tx.GetOffer(svc.ID, input.OfferID)
		if err != nil {
			return err
		}

		siblings, err := tx.ListOffers(svc.ID)
		if err != nil {
			return err
		}
		for _, sibling := range siblings {
			if sibling.ID != winner.ID && sibling.Status == models.OfferStatusAccepted {
				return &models.EngineError{Op: op, Kind: models.ErrAlreadyAccepted, ServiceID: svc.ID, OfferID: sibling.ID}
			}
		}

		now := s.now()
		var rejected []*models.Offer
		for _, sibling := range siblings {
			if sibling.ID == winner.ID || sibling.Status == models.OfferStatusRejected {
				continue
			}
			sibling.Status = models.OfferStatusRejected
			sibling.UpdatedAt = now
			if err := tx.PutOffer(sibling); err != nil {
				return err
			}
			rejected = append(rejected, sibling)
		}

		winner.Status = models.OfferStatusAccepted
		winner.UpdatedAt = now
		if err := tx.PutOffer(winner); err != nil {
			return err
		}

		finalPrice := winner.OfferedPrice
		if input.NegotiatedPrice != nil {
			finalPrice = *input.NegotiatedPrice
		}
		svc.Status = models.ServiceStatusAccepted
		svc.DriverID = winner.DriverID
		svc.AcceptedOfferID = winner.ID
		svc.FinalPrice = floatPtr(finalPrice)
		svc.AcceptedAt = timePtr(now)
		svc.UpdatedAt = now
		if input.VehicleID != "" {
			svc.VehicleID = input.VehicleID
		}
		if input.PaymentMethod != "" {
			svc.PaymentMethod = input.PaymentMethod
		}
		if input.ReceiptType != "" {
			svc.ReceiptType = input.ReceiptType
		}
		if winner.UsesOrganizationAsIssuer {
			s.stampIssuer(tx, svc, winner.DriverID)
		}
		if err := tx.PutService(svc); err != nil {
			return err
		}

		result = &AcceptanceResult{Service: svc, Offer: winner, Rejected: rejected}
		return nil
	})
	if err != nil {
		s.logFailure(op, input.ServiceID, err)
		return nil, err
	}

	svc := result.Service
	s.logger.LogServiceEvent(svc.ID, string(models.EventOfferAccepted), map[string]interface{}{
		"offer_id":        svc.AcceptedOfferID,
		"driver_id":       svc.DriverID,
		"final_price":     *svc.FinalPrice,
		"rejected_offers": len(result.Rejected),
	})

	accepted := newEvent(models.EventOfferAccepted, svc, *svc.AcceptedAt)
	accepted.Amount = floatPtr(*svc.FinalPrice)
	events := []*models.DomainEvent{accepted}
	for _, offer := range result.Rejected {
		rejected := newEvent(models.EventOfferRejected, svc, offer.UpdatedAt)
		rejected.DriverID = offer.DriverID
		rejected.OfferID = offer.ID
		events = append(events, rejected)
	}
	s.dispatcher.dispatch(ctx, events...)
	return result, nil
}

// stampIssuer bills the service through the driver's company when the membership allows it.
// A failed lookup never fails the acceptance.
func (s *acceptanceService) stampIssuer(tx interfaces.Tx, svc *models.Service, driverID string) {
	membership, err := tx.FindActiveMembership(driverID)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			s.logger.WithServiceID(svc.ID).WithDriverID(driverID).WithError(err).
				Warn("Organization lookup failed, accepting without issuer")
		}
		return
	}
	if membership.ActsAsInvoiceIssuer {
		svc.OrganizationID = membership.OrganizationID
	}
}

func validateAcceptInput(op string, input *AcceptOfferInput) error {
	if input == nil || input.ServiceID == "" || input.OfferID == "" {
		return models.NewValidationError(op, "service and offer are required")
	}
	if input.NegotiatedPrice != nil && *input.NegotiatedPrice < 0 {
		return &models.EngineError{Op: op, Kind: models.ErrValidation, ServiceID: input.ServiceID, OfferID: input.OfferID, Detail: "negotiated price must not be negative"}
	}
	if input.NegotiatedPrice != nil && !utils.IsWholeCents(*input.NegotiatedPrice) {
		return &models.EngineError{Op: op, Kind: models.ErrValidation, ServiceID: input.ServiceID, OfferID: input.OfferID, Detail: "negotiated price has fractions of a cent"}
	}
	if input.PaymentMethod != "" && !input.PaymentMethod.Valid() {
		return models.NewValidationError(op, "unknown payment method "+string(input.PaymentMethod))
	}
	if input.ReceiptType != "" && !input.ReceiptType.Valid() {
		return models.NewValidationError(op, "unknown receipt type "+string(input.ReceiptType))
	}
	return nil
}
