package interfaces

import (
	"cargoride/internal/models"
)

// Tx is the document view of one transaction attempt. Reads observe the transaction snapshot
// plus its own buffered writes; nothing is visible to other readers before commit.
type Tx interface {
	GetService(id string) (*models.Service, error)
	PutService(service *models.Service) error

	GetOffer(serviceID, offerID string) (*models.Offer, error)
	ListOffers(serviceID string) ([]*models.Offer, error)
	PutOffer(offer *models.Offer) error

	// GetDriverAccount returns models.ErrNotFound when the driver was never settled.
	GetDriverAccount(driverID string) (*models.DriverAccount, error)
	PutDriverAccount(account *models.DriverAccount) error

	GetLedgerEntryByService(serviceID string) (*models.LedgerEntry, error)
	CreateLedgerEntry(entry *models.LedgerEntry) error

	// FindActiveMembership returns models.ErrNotFound when the driver has no active membership.
	FindActiveMembership(driverID string) (*models.OrganizationMembership, error)
	PutMembership(membership *models.OrganizationMembership) error
}
