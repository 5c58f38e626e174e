package mongodb

import (
	"fmt"

	"cargoride/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// mongoTx binds every operation to the session of one WithTransaction attempt.
type mongoTx struct {
	ctx      mongo.SessionContext
	store    *Store
	services []string
}

func (t *mongoTx) GetService(id string) (*models.Service, error) {
	return decodeService(t.store.services.FindOne(t.ctx, bson.M{"_id": id}), id)
}

func (t *mongoTx) PutService(service *models.Service) error {
	if err := service.Validate(); err != nil {
		return err
	}
	_, err := t.store.services.ReplaceOne(t.ctx, bson.M{"_id": service.ID}, service, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to update service: %w", err)
	}
	t.services = append(t.services, service.ID)
	return nil
}

func (t *mongoTx) GetOffer(serviceID, offerID string) (*models.Offer, error) {
	var offer models.Offer
	err := t.store.offers.FindOne(t.ctx, bson.M{"_id": offerDocID(serviceID, offerID)}).Decode(&offer)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, &models.EngineError{Op: "get offer", Kind: models.ErrNotFound, ServiceID: serviceID, OfferID: offerID}
		}
		return nil, fmt.Errorf("failed to get offer: %w", err)
	}
	if err := offer.Validate(); err != nil {
		return nil, err
	}
	return &offer, nil
}

func (t *mongoTx) ListOffers(serviceID string) ([]*models.Offer, error) {
	return findOffers(t.ctx, t.store.offers, serviceID)
}

func (t *mongoTx) PutOffer(offer *models.Offer) error {
	if err := offer.Validate(); err != nil {
		return err
	}
	filter := bson.M{"_id": offerDocID(offer.ServiceID, offer.ID)}
	_, err := t.store.offers.ReplaceOne(t.ctx, filter, offer, options.Replace().SetUpsert(true))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return &models.EngineError{Op: "put offer", Kind: models.ErrDuplicateOffer, ServiceID: offer.ServiceID, DriverID: offer.DriverID}
		}
		return fmt.Errorf("failed to save offer: %w", err)
	}
	return nil
}

func (t *mongoTx) GetDriverAccount(driverID string) (*models.DriverAccount, error) {
	return decodeAccount(t.store.accounts.FindOne(t.ctx, bson.M{"_id": driverID}), driverID)
}

func (t *mongoTx) PutDriverAccount(account *models.DriverAccount) error {
	if err := account.Validate(); err != nil {
		return err
	}
	_, err := t.store.accounts.ReplaceOne(t.ctx, bson.M{"_id": account.ID}, account, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save driver account: %w", err)
	}
	return nil
}

func (t *mongoTx) GetLedgerEntryByService(serviceID string) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	err := t.store.ledger.FindOne(t.ctx, bson.M{"service_id": serviceID}).Decode(&entry)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, &models.EngineError{Op: "get ledger entry", Kind: models.ErrNotFound, ServiceID: serviceID}
		}
		return nil, fmt.Errorf("failed to get ledger entry: %w", err)
	}
	return &entry, nil
}

func (t *mongoTx) CreateLedgerEntry(entry *models.LedgerEntry) error {
	_, err := t.store.ledger.InsertOne(t.ctx, entry)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return &models.EngineError{Op: "create ledger entry", Kind: models.ErrInvalidState, ServiceID: entry.ServiceID, Detail: "service already has a ledger entry"}
		}
		return fmt.Errorf("failed to create ledger entry: %w", err)
	}
	return nil
}

func (t *mongoTx) FindActiveMembership(driverID string) (*models.OrganizationMembership, error) {
	var membership models.OrganizationMembership
	filter := bson.M{"driver_id": driverID, "status": models.MembershipStatusActive}
	err := t.store.memberships.FindOne(t.ctx, filter).Decode(&membership)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, &models.EngineError{Op: "find membership", Kind: models.ErrNotFound, DriverID: driverID}
		}
		return nil, fmt.Errorf("failed to find membership: %w", err)
	}
	return &membership, nil
}

func (t *mongoTx) PutMembership(membership *models.OrganizationMembership) error {
	if membership.ID == "" || membership.DriverID == "" || membership.OrganizationID == "" {
		return models.NewValidationError("put membership", "missing identity fields")
	}
	_, err := t.store.memberships.ReplaceOne(t.ctx, bson.M{"_id": membership.ID}, membership, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save membership: %w", err)
	}
	return nil
}
