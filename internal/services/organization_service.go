package services

import (
	"context"
	"errors"

	"cargoride/internal/models"
	"cargoride/internal/repositories/interfaces"
)

type UpsertMembershipInput struct {
	DriverID            string
	OrganizationID      string
	ActsAsInvoiceIssuer bool
}

type OrganizationService interface {
	UpsertMembership(ctx context.Context, input *UpsertMembershipInput) (*models.OrganizationMembership, error)
	DeactivateMembership(ctx context.Context, driverID, organizationID string) (*models.OrganizationMembership, error)
	ListMemberships(ctx context.Context, driverID string) ([]*models.OrganizationMembership, error)
}

type organizationService struct {
	*engine
}

func NewOrganizationService(deps Dependencies) OrganizationService {
	return &organizationService{engine: newEngine(deps, "organizations")}
}

// UpsertMembership activates the membership. A driver bills through at most one company, so
// any other active membership is deactivated in the same transaction.
func (s *organizationService) UpsertMembership(ctx context.Context, input *UpsertMembershipInput) (*models.OrganizationMembership, error) {
	const op = "upsert membership"

	if input == nil || input.DriverID == "" || input.OrganizationID == "" {
		return nil, models.NewValidationError(op, "driver and organization are required")
	}

	var membership *models.OrganizationMembership
	err := s.runTx(ctx, op, func(ctx context.Context, tx interfaces.Tx) error {
		membership = nil
		now := s.now()

		current, err := tx.FindActiveMembership(input.DriverID)
		switch {
		case errors.Is(err, models.ErrNotFound):
			current = nil
		case err != nil:
			return err
		}

		id := models.MembershipID(input.DriverID, input.OrganizationID)
		if current != nil && current.ID != id {
			current.Status = models.MembershipStatusInactive
			current.UpdatedAt = now
			if err := tx.PutMembership(current); err != nil {
				return err
			}
		}

		next := &models.OrganizationMembership{
			ID:                  id,
			DriverID:            input.DriverID,
			OrganizationID:      input.OrganizationID,
			Status:              models.MembershipStatusActive,
			ActsAsInvoiceIssuer: input.ActsAsInvoiceIssuer,
			CreatedAt:           now,
			UpdatedAt:           now,
		}
		if current != nil && current.ID == id {
			next.CreatedAt = current.CreatedAt
		}
		membership = next
		return tx.PutMembership(next)
	})
	if err != nil {
		s.logFailure(op, "", err)
		return nil, err
	}

	s.logger.WithDriverID(input.DriverID).
		WithField("organization_id", input.OrganizationID).
		WithField("acts_as_invoice_issuer", input.ActsAsInvoiceIssuer).
		Info("Organization membership activated")
	return membership, nil
}

func (s *organizationService) DeactivateMembership(ctx context.Context, driverID, organizationID string) (*models.OrganizationMembership, error) {
	const op = "deactivate membership"

	var membership *models.OrganizationMembership
	err := s.runTx(ctx, op, func(ctx context.Context, tx interfaces.Tx) error {
		membership = nil
		current, err := tx.FindActiveMembership(driverID)
		if err != nil {
			return err
		}
		if current.OrganizationID != organizationID {
			return &models.EngineError{Op: op, Kind: models.ErrNotFound, DriverID: driverID, Detail: "no active membership with organization " + organizationID}
		}
		current.Status = models.MembershipStatusInactive
		current.UpdatedAt = s.now()
		membership = current
		return tx.PutMembership(current)
	})
	if err != nil {
		s.logFailure(op, "", err)
		return nil, err
	}

	s.logger.WithDriverID(driverID).WithField("organization_id", organizationID).Info("Organization membership deactivated")
	return membership, nil
}

func (s *organizationService) ListMemberships(ctx context.Context, driverID string) ([]*models.OrganizationMembership, error) {
	return s.store.ListMembershipsByDriver(ctx, driverID)
}
