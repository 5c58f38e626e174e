package models

import (
	"sort"
	"time"
)

type OfferStatus string

const (
	OfferStatusPending  OfferStatus = "pending"
	OfferStatusAccepted OfferStatus = "accepted"
	OfferStatusRejected OfferStatus = "rejected"
)

func (s OfferStatus) Valid() bool {
	return s == OfferStatusPending || s == OfferStatusAccepted || s == OfferStatusRejected
}

// IsActive reports whether the offer still blocks a new bid from the same driver.
func (s OfferStatus) IsActive() bool {
	return s == OfferStatusPending || s == OfferStatusAccepted
}

// rank orders pending and accepted bids ahead of rejected ones.
func (s OfferStatus) rank() int {
	switch s {
	case OfferStatusPending:
		return 0
	case OfferStatusAccepted:
		return 1
	default:
		return 2
	}
}

// Offer is a driver's bid. One document exists per (service, driver); its ID is derived from
// the driver so a resubmission after rejection reuses it.
type Offer struct {
	ID                       string      `json:"id" bson:"offer_id"`
	ServiceID                string      `json:"service_id" bson:"service_id"`
	DriverID                 string      `json:"driver_id" bson:"driver_id"`
	OfferedPrice             float64     `json:"offered_price" bson:"offered_price"`
	EstimatedMinutes         int         `json:"estimated_minutes" bson:"estimated_minutes"`
	Notes                    string      `json:"notes,omitempty" bson:"notes,omitempty"`
	Status                   OfferStatus `json:"status" bson:"status"`
	UsesOrganizationAsIssuer bool        `json:"uses_organization_as_issuer" bson:"uses_organization_as_issuer"`
	CreatedAt                time.Time   `json:"created_at" bson:"created_at"`
	UpdatedAt                time.Time   `json:"updated_at" bson:"updated_at"`
}

// OfferIDForDriver returns the stable offer id of a driver's bid on a service.
func OfferIDForDriver(driverID string) string {
	return "drv_" + driverID
}

func (o *Offer) Validate() error {
	if o.ServiceID == "" || o.DriverID == "" || o.ID == "" {
		return NewValidationError("decode offer", "missing identity fields")
	}
	if o.OfferedPrice < 0 {
		return NewValidationError("decode offer", "negative offered_price")
	}
	if o.EstimatedMinutes <= 0 {
		return NewValidationError("decode offer", "non-positive estimated_minutes")
	}
	if !o.Status.Valid() {
		return NewValidationError("decode offer", "unknown status "+string(o.Status))
	}
	return nil
}

func (o *Offer) Clone() *Offer {
	if o == nil {
		return nil
	}
	c := *o
	return &c
}

// SortOffers applies the feed order: status rank ascending, then newest first.
func SortOffers(offers []*Offer) {
	sort.SliceStable(offers, func(i, j int) bool {
		ri, rj := offers[i].Status.rank(), offers[j].Status.rank()
		if ri != rj {
			return ri < rj
		}
		return offers[i].CreatedAt.After(offers[j].CreatedAt)
	})
}

// SortOffersByPrice is a secondary client view; ties keep the feed order.
func SortOffersByPrice(offers []*Offer) {
	sort.SliceStable(offers, func(i, j int) bool {
		return offers[i].OfferedPrice < offers[j].OfferedPrice
	})
}

func SortOffersByETA(offers []*Offer) {
	sort.SliceStable(offers, func(i, j int) bool {
		return offers[i].EstimatedMinutes < offers[j].EstimatedMinutes
	})
}
