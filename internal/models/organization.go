package models

import (
	"time"
)

type MembershipStatus string

const (
	MembershipStatusActive   MembershipStatus = "active"
	MembershipStatusInactive MembershipStatus = "inactive"
)

// OrganizationMembership links a driver to a transport company (empresa). When the membership
// acts as invoice issuer, services the driver wins on behalf of the company are billed by it.
type OrganizationMembership struct {
	ID                  string           `json:"id" bson:"_id"`
	DriverID            string           `json:"driver_id" bson:"driver_id"`
	OrganizationID      string           `json:"organization_id" bson:"organization_id"`
	Status              MembershipStatus `json:"status" bson:"status"`
	ActsAsInvoiceIssuer bool             `json:"acts_as_invoice_issuer" bson:"acts_as_invoice_issuer"`
	CreatedAt           time.Time        `json:"created_at" bson:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at" bson:"updated_at"`
}

func MembershipID(driverID, organizationID string) string {
	return driverID + ":" + organizationID
}

func (m *OrganizationMembership) Clone() *OrganizationMembership {
	if m == nil {
		return nil
	}
	c := *m
	return &c
}
