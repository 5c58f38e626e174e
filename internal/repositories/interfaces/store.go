package interfaces

import (
	"context"

	"cargoride/internal/models"
	"cargoride/pkg/livefeed"
)

// TxFunc is a read-check-write body. It may be executed more than once when the store detects
// a conflicting writer, so it must not have side effects outside tx.
type TxFunc func(ctx context.Context, tx Tx) error

// Store is the only infrastructure dependency of the engine. Every mutation of a service, its
// offers, a driver account or the ledger goes through RunTransaction.
type Store interface {
	RunTransaction(ctx context.Context, fn TxFunc) error

	ServiceRepository
	OfferRepository
	LedgerRepository
	MembershipRepository
}

type ServiceRepository interface {
	// CreateService assigns the id and persists a new service document.
	CreateService(ctx context.Context, service *models.Service) error
	GetService(ctx context.Context, id string) (*models.Service, error)
	ListServicesByRequester(ctx context.Context, requesterID string) ([]*models.Service, error)
	ListServicesByDriver(ctx context.Context, driverID string) ([]*models.Service, error)

	WatchService(ctx context.Context, id string) (*livefeed.Feed[*models.Service], error)
	WatchServicesByRequester(ctx context.Context, requesterID string) (*livefeed.Feed[[]*models.Service], error)
	WatchServicesByDriver(ctx context.Context, driverID string) (*livefeed.Feed[[]*models.Service], error)
}

type OfferRepository interface {
	// ListOffers returns the offers of a service in feed order.
	ListOffers(ctx context.Context, serviceID string) ([]*models.Offer, error)
	WatchOffers(ctx context.Context, serviceID string) (*livefeed.Feed[[]*models.Offer], error)
}

type LedgerRepository interface {
	GetDriverAccount(ctx context.Context, driverID string) (*models.DriverAccount, error)
	ListLedgerEntriesByDriver(ctx context.Context, driverID string) ([]*models.LedgerEntry, error)
	ListLedgerEntriesByService(ctx context.Context, serviceID string) ([]*models.LedgerEntry, error)
}

type MembershipRepository interface {
	ListMembershipsByDriver(ctx context.Context, driverID string) ([]*models.OrganizationMembership, error)
}
