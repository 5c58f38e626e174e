package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"cargoride/internal/models"
	"cargoride/internal/repositories/interfaces"
	"cargoride/pkg/livefeed"

	"github.com/google/uuid"
)

const DefaultMaxAttempts = 5

// Store is an in-process document store with optimistic, serializable transactions: each
// attempt records the version of every key it read and commits only if none changed.
type Store struct {
	mu       sync.Mutex
	docs     map[string]record
	seq      uint64
	watchers map[uint64]*watcher
	nextID   uint64

	maxAttempts int
	onAttempt   func(attempt int)
}

type record struct {
	version uint64
	value   any
}

type Option func(*Store)

// WithMaxAttempts bounds how often a conflicting transaction body is re-run.
func WithMaxAttempts(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithAttemptHook is called before each transaction attempt, starting at 1.
func WithAttemptHook(fn func(attempt int)) Option {
	return func(s *Store) {
		s.onAttempt = fn
	}
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		docs:        make(map[string]record),
		watchers:    make(map[uint64]*watcher),
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ interfaces.Store = (*Store)(nil)

func serviceKey(id string) string { return "services/" + id }

func offerKey(serviceID, offerID string) string { return "offers/" + serviceID + "/" + offerID }

func offerSetKey(serviceID string) string { return "offersets/" + serviceID }

func accountKey(driverID string) string { return "accounts/" + driverID }

func ledgerKey(id string) string { return "ledger/" + id }

func ledgerServiceKey(serviceID string) string { return "ledger_services/" + serviceID }

func membershipKey(id string) string { return "memberships/" + id }

func driverMembershipsKey(driverID string) string { return "driver_memberships/" + driverID }

func (s *Store) RunTransaction(ctx context.Context, fn interfaces.TxFunc) error {
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.onAttempt != nil {
			s.onAttempt(attempt)
		}

		tx := newTx(s)
		if err := fn(ctx, tx); err != nil {
			return err
		}
		if s.commit(tx) {
			return nil
		}
	}
	return fmt.Errorf("memory store: gave up after %d attempts: %w", s.maxAttempts, models.ErrTransactionConflict)
}

// commit applies tx if every key it read is still at the observed version.
func (s *Store) commit(tx *memTx) bool {
	s.mu.Lock()
	for key, version := range tx.reads {
		if s.docs[key].version != version {
			s.mu.Unlock()
			return false
		}
	}
	if len(tx.writes) == 0 {
		s.mu.Unlock()
		return true
	}

	s.seq++
	changes := make([]change, 0, len(tx.writes))
	for _, key := range tx.order {
		before := s.docs[key].value
		after := tx.writes[key]
		s.docs[key] = record{version: s.seq, value: after}
		changes = append(changes, change{key: key, before: before, after: after})
	}
	s.notifyLocked(changes)
	s.mu.Unlock()
	return true
}

func (s *Store) get(key string) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.docs[key].value
}

// write is the non-transactional single-document insert used by CreateService and seeding.
func (s *Store) write(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	before := s.docs[key].value
	s.docs[key] = record{version: s.seq, value: value}
	s.notifyLocked([]change{{key: key, before: before, after: value}})
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
	if s.get(serviceKey(service.ID)) != nil {
		return fmt.Errorf("memory store: service %s already exists", service.ID)
	}
	s.write(serviceKey(service.ID), service.Clone())
	return nil
}

func (s *Store) GetService(ctx context.Context, id string) (*models.Service, error) {
	v, _ := s.get(serviceKey(id)).(*models.Service)
	if v == nil {
		return nil, &models.EngineError{Op: "get service", Kind: models.ErrNotFound, ServiceID: id}
	}
	return v.Clone(), nil
}

func (s *Store) ListServicesByRequester(ctx context.Context, requesterID string) ([]*models.Service, error) {
	return s.listServices(func(svc *models.Service) bool { return svc.RequesterID == requesterID }), nil
}

func (s *Store) ListServicesByDriver(ctx context.Context, driverID string) ([]*models.Service, error) {
	return s.listServices(func(svc *models.Service) bool { return svc.ParticipantDriverID() == driverID }), nil
}

func (s *Store) listServices(match func(*models.Service) bool) []*models.Service {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.Service
	for key, rec := range s.docs {
		if !strings.HasPrefix(key, "services/") {
			continue
		}
		svc, _ := rec.value.(*models.Service)
		if svc != nil && match(svc) {
			out = append(out, svc.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].RequestedAt.After(out[j].RequestedAt)
	})
	return out
}

func (s *Store) ListOffers(ctx context.Context, serviceID string) ([]*models.Offer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offersLocked(serviceID), nil
}

func (s *Store) offersLocked(serviceID string) []*models.Offer {
	prefix := "offers/" + serviceID + "/"
	var out []*models.Offer
	for key, rec := range s.docs {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if o, _ := rec.value.(*models.Offer); o != nil {
			out = append(out, o.Clone())
		}
	}
	models.SortOffers(out)
	return out
}

func (s *Store) GetDriverAccount(ctx context.Context, driverID string) (*models.DriverAccount, error) {
	v, _ := s.get(accountKey(driverID)).(*models.DriverAccount)
	if v == nil {
		return nil, &models.EngineError{Op: "get driver account", Kind: models.ErrNotFound, DriverID: driverID}
	}
	return v.Clone(), nil
}

func (s *Store) ListLedgerEntriesByDriver(ctx context.Context, driverID string) ([]*models.LedgerEntry, error) {
	return s.listLedger(func(e *models.LedgerEntry) bool { return e.DriverID == driverID }), nil
}

func (s *Store) ListLedgerEntriesByService(ctx context.Context, serviceID string) ([]*models.LedgerEntry, error) {
	return s.listLedger(func(e *models.LedgerEntry) bool { return e.ServiceID == serviceID }), nil
}

func (s *Store) listLedger(match func(*models.LedgerEntry) bool) []*models.LedgerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.LedgerEntry
	for key, rec := range s.docs {
		if !strings.HasPrefix(key, "ledger/") {
			continue
		}
		if e, _ := rec.value.(*models.LedgerEntry); e != nil && match(e) {
			out = append(out, e.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (s *Store) ListMembershipsByDriver(ctx context.Context, driverID string) ([]*models.OrganizationMembership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.OrganizationMembership
	for key, rec := range s.docs {
		if !strings.HasPrefix(key, "memberships/") {
			continue
		}
		if m, _ := rec.value.(*models.OrganizationMembership); m != nil && m.DriverID == driverID {
			out = append(out, m.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Watch feeds

func (s *Store) WatchService(ctx context.Context, id string) (*livefeed.Feed[*models.Service], error) {
	key := serviceKey(id)
	query := func() *models.Service {
		v, _ := s.get(key).(*models.Service)
		return v.Clone()
	}
	return watch(ctx, s, func(c change) bool { return c.key == key }, query), nil
}

func (s *Store) WatchOffers(ctx context.Context, serviceID string) (*livefeed.Feed[[]*models.Offer], error) {
	prefix := "offers/" + serviceID + "/"
	query := func() []*models.Offer {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.offersLocked(serviceID)
	}
	return watch(ctx, s, func(c change) bool { return strings.HasPrefix(c.key, prefix) }, query), nil
}

func (s *Store) WatchServicesByRequester(ctx context.Context, requesterID string) (*livefeed.Feed[[]*models.Service], error) {
	match := func(svc *models.Service) bool { return svc.RequesterID == requesterID }
	return s.watchServices(ctx, match), nil
}

func (s *Store) WatchServicesByDriver(ctx context.Context, driverID string) (*livefeed.Feed[[]*models.Service], error) {
	match := func(svc *models.Service) bool { return svc.ParticipantDriverID() == driverID }
	return s.watchServices(ctx, match), nil
}

func (s *Store) watchServices(ctx context.Context, match func(*models.Service) bool) *livefeed.Feed[[]*models.Service] {
	relevant := func(c change) bool {
		if !strings.HasPrefix(c.key, "services/") {
			return false
		}
		before, _ := c.before.(*models.Service)
		after, _ := c.after.(*models.Service)
		return (before != nil && match(before)) || (after != nil && match(after))
	}
	return watch(ctx, s, relevant, func() []*models.Service { return s.listServices(match) })
}
