package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cargoride/internal/models"
	"cargoride/internal/repositories/interfaces"
	"cargoride/pkg/database"
	"cargoride/pkg/logger"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const DefaultMaxAttempts = 5

type Store struct {
	db          *database.MongoDB
	services    *mongo.Collection
	offers      *mongo.Collection
	accounts    *mongo.Collection
	ledger      *mongo.Collection
	memberships *mongo.Collection

	cache       *serviceCache
	logger      *logger.Logger
	maxAttempts int
	onAttempt   func(attempt int)
}

type Option func(*Store)

func WithCache(cache SnapshotCache) Option {
	return func(s *Store) {
		s.cache = &serviceCache{cache: cache}
	}
}

func WithMaxAttempts(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

func WithAttemptHook(fn func(attempt int)) Option {
	return func(s *Store) {
		s.onAttempt = fn
	}
}

func NewStore(db *database.MongoDB, log *logger.Logger, opts ...Option) *Store {
	s := &Store{
		db:          db,
		services:    db.Collection(database.ServicesCollection),
		offers:      db.Collection(database.OffersCollection),
		accounts:    db.Collection(database.AccountsCollection),
		ledger:      db.Collection(database.LedgerCollection),
		memberships: db.Collection(database.MembershipsCollection),
		logger:      log,
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cache != nil {
		s.cache.logger = log
	}
	return s
}

var _ interfaces.Store = (*Store)(nil)

// offerDocID keys offer documents by service so that one driver's bids on different services
// never collide.
func offerDocID(serviceID, offerID string) string {
	return serviceID + "/" + offerID
}

func (s *Store) RunTransaction(ctx context.Context, fn interfaces.TxFunc) error {
	attempt := 0
	exhausted := false
	var written []string

	_, err := s.db.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		attempt++
		if attempt > s.maxAttempts {
			exhausted = true
			return nil, models.ErrTransactionConflict
		}
		if s.onAttempt != nil {
			s.onAttempt(attempt)
		}

		tx := &mongoTx{ctx: sessCtx, store: s}
		if err := fn(sessCtx, tx); err != nil {
			return nil, err
		}
		written = tx.services
		return nil, nil
	})
	if err != nil {
		if exhausted || isTransientTransactionError(err) {
			return fmt.Errorf("mongodb store: gave up after %d attempts: %w", attempt, models.ErrTransactionConflict)
		}
		if mongo.IsTimeout(err) && !errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("mongodb store: %w: %v", context.DeadlineExceeded, err)
		}
		return err
	}

	if s.cache != nil {
		s.cache.invalidate(ctx, written)
	}
	return nil
}

func isTransientTransactionError(err error) bool {
	var se mongo.ServerError
	return errors.As(err, &se) && se.HasErrorLabel("TransientTransactionError")
}

func (s *Store) CreateService(ctx context.Context, service *models.Service) error {
	if service.ID == "" {
		service.ID = uuid.NewString()
	}
	if service.UpdatedAt.IsZero() {
		service.UpdatedAt = time.Now()
	}
	if err := service.Validate(); err != nil {
		return err
	}

	_, err := s.services.InsertOne(ctx, service)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}
	return nil
}

func (s *Store) GetService(ctx context.Context, id string) (*models.Service, error) {
	var gen string
	if s.cache != nil {
		cached, g, ok := s.cache.get(ctx, id)
		if ok {
			return cached, nil
		}
		gen = g
	}

	service, err := decodeService(s.services.FindOne(ctx, bson.M{"_id": id}), id)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.put(ctx, gen, service)
	}
	return service, nil
}

func (s *Store) ListServicesByRequester(ctx context.Context, requesterID string) ([]*models.Service, error) {
	return s.findServices(ctx, bson.M{"requester_id": requesterID})
}

func (s *Store) ListServicesByDriver(ctx context.Context, driverID string) ([]*models.Service, error) {
	return s.findServices(ctx, driverFilter(driverID))
}

// driverFilter also matches services the driver lost to a cancellation.
func driverFilter(driverID string) bson.M {
	return bson.M{"$or": bson.A{
		bson.M{"driver_id": driverID},
		bson.M{"cancellation.driver_id": driverID},
	}}
}

func (s *Store) findServices(ctx context.Context, filter bson.M) ([]*models.Service, error) {
	opts := options.Find().SetSort(bson.D{{Key: "requested_at", Value: -1}})
	cursor, err := s.services.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	defer cursor.Close(ctx)

	var services []*models.Service
	if err := cursor.All(ctx, &services); err != nil {
		return nil, fmt.Errorf("failed to decode services: %w", err)
	}
	for _, svc := range services {
		if err := svc.Validate(); err != nil {
			return nil, err
		}
	}
	return services, nil
}

func (s *Store) ListOffers(ctx context.Context, serviceID string) ([]*models.Offer, error) {
	return findOffers(ctx, s.offers, serviceID)
}

func (s *Store) GetDriverAccount(ctx context.Context, driverID string) (*models.DriverAccount, error) {
	return decodeAccount(s.accounts.FindOne(ctx, bson.M{"_id": driverID}), driverID)
}

func (s *Store) ListLedgerEntriesByDriver(ctx context.Context, driverID string) ([]*models.LedgerEntry, error) {
	return s.findLedger(ctx, bson.M{"driver_id": driverID})
}

func (s *Store) ListLedgerEntriesByService(ctx context.Context, serviceID string) ([]*models.LedgerEntry, error) {
	return s.findLedger(ctx, bson.M{"service_id": serviceID})
}

func (s *Store) findLedger(ctx context.Context, filter bson.M) ([]*models.LedgerEntry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := s.ledger.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	defer cursor.Close(ctx)

	var entries []*models.LedgerEntry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode ledger entries: %w", err)
	}
	return entries, nil
}

func (s *Store) ListMembershipsByDriver(ctx context.Context, driverID string) ([]*models.OrganizationMembership, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cursor, err := s.memberships.Find(ctx, bson.M{"driver_id": driverID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	defer cursor.Close(ctx)

	var memberships []*models.OrganizationMembership
	if err := cursor.All(ctx, &memberships); err != nil {
		return nil, fmt.Errorf("failed to decode memberships: %w", err)
	}
	return memberships, nil
}

func findOffers(ctx context.Context, collection *mongo.Collection, serviceID string) ([]*models.Offer, error) {
	cursor, err := collection.Find(ctx, bson.M{"service_id": serviceID})
	if err != nil {
		return nil, fmt.Errorf("failed to list offers: %w", err)
	}
	defer cursor.Close(ctx)

	var offers []*models.Offer
	if err := cursor.All(ctx, &offers); err != nil {
		return nil, fmt.Errorf("failed to decode offers: %w", err)
	}
	for _, o := range offers {
		if err := o.Validate(); err != nil {
			return nil, err
		}
	}
	models.SortOffers(offers)
	return offers, nil
}

func decodeService(result *mongo.SingleResult, id string) (*models.Service, error) {
	var service models.Service
	if err := result.Decode(&service); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, &models.EngineError{Op: "get service", Kind: models.ErrNotFound, ServiceID: id}
		}
		return nil, fmt.Errorf("failed to get service: %w", err)
	}
	if err := service.Validate(); err != nil {
		return nil, err
	}
	return &service, nil
}

func decodeAccount(result *mongo.SingleResult, driverID string) (*models.DriverAccount, error) {
	var account models.DriverAccount
	if err := result.Decode(&account); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, &models.EngineError{Op: "get driver account", Kind: models.ErrNotFound, DriverID: driverID}
		}
		return nil, fmt.Errorf("failed to get driver account: %w", err)
	}
	if err := account.Validate(); err != nil {
		return nil, err
	}
	return &account, nil
}
