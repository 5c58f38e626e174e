package memory

import (
	"strings"

	"cargoride/internal/models"
)

type memTx struct {
	store  *Store
	reads  map[string]uint64
	writes map[string]any
	order  []string
}

func newTx(s *Store) *memTx {
	return &memTx{
		store:  s,
		reads:  make(map[string]uint64),
		writes: make(map[string]any),
	}
}

// read returns the value of key as seen by this transaction and records its version.
func (t *memTx) read(key string) any {
	if v, ok := t.writes[key]; ok {
		return v
	}
	t.store.mu.Lock()
	rec := t.store.docs[key]
	t.store.mu.Unlock()
	t.observe(key, rec.version)
	return rec.value
}

func (t *memTx) observe(key string, version uint64) {
	if _, seen := t.reads[key]; !seen {
		t.reads[key] = version
	}
}

func (t *memTx) put(key string, value any) {
	if _, ok := t.writes[key]; !ok {
		t.order = append(t.order, key)
	}
	t.writes[key] = value
}

func (t *memTx) GetService(id string) (*models.Service, error) {
	v, _ := t.read(serviceKey(id)).(*models.Service)
	if v == nil {
		return nil, &models.EngineError{Op: "get service", Kind: models.ErrNotFound, ServiceID: id}
	}
	return v.Clone(), nil
}

func (t *memTx) PutService(service *models.Service) error {
	if err := service.Validate(); err != nil {
		return err
	}
	t.put(serviceKey(service.ID), service.Clone())
	return nil
}

func (t *memTx) GetOffer(serviceID, offerID string) (*models.Offer, error) {
	v, _ := t.read(offerKey(serviceID, offerID)).(*models.Offer)
	if v == nil {
		return nil, &models.EngineError{Op: "get offer", Kind: models.ErrNotFound, ServiceID: serviceID, OfferID: offerID}
	}
	return v.Clone(), nil
}

// ListOffers reads the offer set marker so that a concurrent insert invalidates the read.
func (t *memTx) ListOffers(serviceID string) ([]*models.Offer, error) {
	prefix := "offers/" + serviceID + "/"
	setKey := offerSetKey(serviceID)

	byKey := make(map[string]*models.Offer)
	t.store.mu.Lock()
	t.observe(setKey, t.store.docs[setKey].version)
	for key, rec := range t.store.docs {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		t.observe(key, rec.version)
		if o, _ := rec.value.(*models.Offer); o != nil {
			byKey[key] = o
		}
	}
	t.store.mu.Unlock()

	for key, v := range t.writes {
		if o, _ := v.(*models.Offer); o != nil && strings.HasPrefix(key, prefix) {
			byKey[key] = o
		}
	}

	out := make([]*models.Offer, 0, len(byKey))
	for _, o := range byKey {
		out = append(out, o.Clone())
	}
	models.SortOffers(out)
	return out, nil
}

func (t *memTx) PutOffer(offer *models.Offer) error {
	if err := offer.Validate(); err != nil {
		return err
	}
	key := offerKey(offer.ServiceID, offer.ID)
	if t.read(key) == nil {
		setKey := offerSetKey(offer.ServiceID)
		t.read(setKey)
		t.put(setKey, struct{}{})
	}
	t.put(key, offer.Clone())
	return nil
}

func (t *memTx) GetDriverAccount(driverID string) (*models.DriverAccount, error) {
	v, _ := t.read(accountKey(driverID)).(*models.DriverAccount)
	if v == nil {
		return nil, &models.EngineError{Op: "get driver account", Kind: models.ErrNotFound, DriverID: driverID}
	}
	return v.Clone(), nil
}

func (t *memTx) PutDriverAccount(account *models.DriverAccount) error {
	if err := account.Validate(); err != nil {
		return err
	}
	t.put(accountKey(account.ID), account.Clone())
	return nil
}

func (t *memTx) GetLedgerEntryByService(serviceID string) (*models.LedgerEntry, error) {
	id, _ := t.read(ledgerServiceKey(serviceID)).(string)
	if id == "" {
		return nil, &models.EngineError{Op: "get ledger entry", Kind: models.ErrNotFound, ServiceID: serviceID}
	}
	v, _ := t.read(ledgerKey(id)).(*models.LedgerEntry)
	if v == nil {
		return nil, &models.EngineError{Op: "get ledger entry", Kind: models.ErrNotFound, ServiceID: serviceID}
	}
	return v.Clone(), nil
}

// CreateLedgerEntry enforces one entry per service, like the unique index in MongoDB.
func (t *memTx) CreateLedgerEntry(entry *models.LedgerEntry) error {
	if existing, _ := t.read(ledgerServiceKey(entry.ServiceID)).(string); existing != "" {
		return &models.EngineError{Op: "create ledger entry", Kind: models.ErrInvalidState, ServiceID: entry.ServiceID, Detail: "service already has a ledger entry"}
	}
	if t.read(ledgerKey(entry.ID)) != nil {
		return &models.EngineError{Op: "create ledger entry", Kind: models.ErrInvalidState, ServiceID: entry.ServiceID, Detail: "duplicate ledger entry id"}
	}
	t.put(ledgerServiceKey(entry.ServiceID), entry.ID)
	t.put(ledgerKey(entry.ID), entry.Clone())
	return nil
}

func (t *memTx) FindActiveMembership(driverID string) (*models.OrganizationMembership, error) {
	ids, _ := t.read(driverMembershipsKey(driverID)).([]string)
	for _, id := range ids {
		m, _ := t.read(membershipKey(id)).(*models.OrganizationMembership)
		if m != nil && m.Status == models.MembershipStatusActive {
			return m.Clone(), nil
		}
	}
	return nil, &models.EngineError{Op: "find membership", Kind: models.ErrNotFound, DriverID: driverID}
}

func (t *memTx) PutMembership(membership *models.OrganizationMembership) error {
	if membership.ID == "" || membership.DriverID == "" || membership.OrganizationID == "" {
		return models.NewValidationError("put membership", "missing identity fields")
	}
	indexKey := driverMembershipsKey(membership.DriverID)
	ids, _ := t.read(indexKey).([]string)
	known := false
	for _, id := range ids {
		if id == membership.ID {
			known = true
			break
		}
	}
	if !known {
		next := append(append([]string(nil), ids...), membership.ID)
		t.put(indexKey, next)
	}
	t.put(membershipKey(membership.ID), membership.Clone())
	return nil
}
