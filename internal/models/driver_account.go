package models

import (
	"time"
)

type DriverAccountStatus string
type LedgerEntryStatus string

const (
	DriverAccountStatusActive  DriverAccountStatus = "active"
	DriverAccountStatusBlocked DriverAccountStatus = "blocked"
	DriverAccountStatusClosed  DriverAccountStatus = "closed"

	LedgerEntryStatusPending LedgerEntryStatus = "pending"
	LedgerEntryStatusSettled LedgerEntryStatus = "settled"
	LedgerEntryStatusVoid    LedgerEntryStatus = "void"
)

type DriverAccount struct {
	ID                  string              `json:"id" bson:"_id"`
	AvailableBalance    float64             `json:"available_balance" bson:"available_balance"`
	HeldBalance         float64             `json:"held_balance" bson:"held_balance"`
	OwedCommission      float64             `json:"owed_commission" bson:"owed_commission"`
	LifetimeGrossIncome float64             `json:"lifetime_gross_income" bson:"lifetime_gross_income"`
	LifetimeCommission  float64             `json:"lifetime_commission" bson:"lifetime_commission"`
	Status              DriverAccountStatus `json:"status" bson:"status"`
	LastLedgerEntryID   string              `json:"last_ledger_entry_id,omitempty" bson:"last_ledger_entry_id,omitempty"`
	LastLedgerEntryAt   *time.Time          `json:"last_ledger_entry_at,omitempty" bson:"last_ledger_entry_at,omitempty"`
	CreatedAt           time.Time           `json:"created_at" bson:"created_at"`
	UpdatedAt           time.Time           `json:"updated_at" bson:"updated_at"`
}

// NewDriverAccount returns a zeroed, active account for driverID.
func NewDriverAccount(driverID string, now time.Time) *DriverAccount {
	return &DriverAccount{
		ID:        driverID,
		Status:    DriverAccountStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (a *DriverAccount) Validate() error {
	if a.ID == "" {
		return NewValidationError("decode driver account", "missing id")
	}
	if a.OwedCommission < 0 {
		return NewValidationError("decode driver account", "negative owed_commission")
	}
	return nil
}

func (a *DriverAccount) Clone() *DriverAccount {
	if a == nil {
		return nil
	}
	c := *a
	c.LastLedgerEntryAt = cloneTime(a.LastLedgerEntryAt)
	return &c
}

// LedgerEntry is the single financial record of a settled trip.
type LedgerEntry struct {
	ID               string            `json:"id" bson:"_id"`
	ServiceID        string            `json:"service_id" bson:"service_id"`
	DriverID         string            `json:"driver_id" bson:"driver_id"`
	GrossAmount      float64           `json:"gross_amount" bson:"gross_amount"`
	CommissionAmount float64           `json:"commission_amount" bson:"commission_amount"`
	NetAmount        float64           `json:"net_amount" bson:"net_amount"`
	Reference        string            `json:"reference,omitempty" bson:"reference,omitempty"`
	Status           LedgerEntryStatus `json:"status" bson:"status"`
	CreatedAt        time.Time         `json:"created_at" bson:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at" bson:"updated_at"`
}

// LedgerEntryIDForService is deterministic so that a retried settlement cannot post twice.
func LedgerEntryIDForService(serviceID string) string {
	return "le_" + serviceID
}

func (e *LedgerEntry) Clone() *LedgerEntry {
	if e == nil {
		return nil
	}
	c := *e
	return &c
}
