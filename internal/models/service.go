package models

import (
	"time"
)

type ServiceStatus string
type ServiceKind string
type PaymentMethod string
type ReceiptType string
type CommissionStatus string

const (
	ServiceStatusPendingOffers ServiceStatus = "pending_offers"
	ServiceStatusAccepted      ServiceStatus = "accepted"
	ServiceStatusInProgress    ServiceStatus = "in_progress"
	ServiceStatusCompleted     ServiceStatus = "completed"
	ServiceStatusCancelled     ServiceStatus = "cancelled"

	ServiceKindPassenger  ServiceKind = "passenger"
	ServiceKindLightCargo ServiceKind = "light_cargo"
	ServiceKindHeavyCargo ServiceKind = "heavy_cargo"
	ServiceKindMoving     ServiceKind = "moving"

	PaymentMethodCash     PaymentMethod = "cash"
	PaymentMethodTransfer PaymentMethod = "transfer"
	PaymentMethodInApp    PaymentMethod = "in_app"

	ReceiptTypeNone      ReceiptType = "none"
	ReceiptTypeSalesNote ReceiptType = "sales_note"
	ReceiptTypeInvoice   ReceiptType = "invoice"

	CommissionStatusPendingCollection CommissionStatus = "pending_collection"
	CommissionStatusCollected         CommissionStatus = "collected"

	CommissionBasisPercentage = "percentage"
)

func (s ServiceStatus) Valid() bool {
	switch s {
	case ServiceStatusPendingOffers, ServiceStatusAccepted, ServiceStatusInProgress,
		ServiceStatusCompleted, ServiceStatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is allowed out of s.
func (s ServiceStatus) IsTerminal() bool {
	return s == ServiceStatusCompleted || s == ServiceStatusCancelled
}

// HasAssignment reports whether a service in status s must carry an accepted offer and driver.
func (s ServiceStatus) HasAssignment() bool {
	return s == ServiceStatusAccepted || s == ServiceStatusInProgress || s == ServiceStatusCompleted
}

func (k ServiceKind) Valid() bool {
	switch k {
	case ServiceKindPassenger, ServiceKindLightCargo, ServiceKindHeavyCargo, ServiceKindMoving:
		return true
	}
	return false
}

func (p PaymentMethod) Valid() bool {
	switch p {
	case PaymentMethodCash, PaymentMethodTransfer, PaymentMethodInApp:
		return true
	}
	return false
}

// IsOffPlatform reports whether the money changes hands outside the app, in which case the
// commission is settled together with trip completion.
func (p PaymentMethod) IsOffPlatform() bool {
	return p != PaymentMethodInApp
}

func (r ReceiptType) Valid() bool {
	switch r {
	case ReceiptTypeNone, ReceiptTypeSalesNote, ReceiptTypeInvoice:
		return true
	}
	return false
}

type Waypoint struct {
	Address string     `json:"address" bson:"address"`
	Lat     *float64   `json:"lat,omitempty" bson:"lat,omitempty"`
	Lng     *float64   `json:"lng,omitempty" bson:"lng,omitempty"`
	ETA     *time.Time `json:"eta,omitempty" bson:"eta,omitempty"`
	CheckAt *time.Time `json:"check_at,omitempty" bson:"check_at,omitempty"`
}

type GeoPoint struct {
	Lat float64 `json:"lat" bson:"lat"`
	Lng float64 `json:"lng" bson:"lng"`
}

type CargoDetails struct {
	WeightTons    *float64 `json:"weight_tons,omitempty" bson:"weight_tons,omitempty"`
	VolumeM3      *float64 `json:"volume_m3,omitempty" bson:"volume_m3,omitempty"`
	NeedsHelpers  *bool    `json:"needs_helpers,omitempty" bson:"needs_helpers,omitempty"`
	HelperCount   *int     `json:"helper_count,omitempty" bson:"helper_count,omitempty"`
	NeedsForklift *bool    `json:"needs_forklift,omitempty" bson:"needs_forklift,omitempty"`
	CargoNotes    string   `json:"cargo_notes,omitempty" bson:"cargo_notes,omitempty"`
}

type CommissionBlock struct {
	BasisType  string           `json:"basis_type" bson:"basis_type"`
	BasisValue float64          `json:"basis_value" bson:"basis_value"`
	Amount     float64          `json:"amount" bson:"amount"`
	Status     CommissionStatus `json:"status" bson:"status"`
	AccruedAt  time.Time        `json:"accrued_at" bson:"accrued_at"`
}

// Cancellation keeps the assignment a service lost when it was cancelled.
type Cancellation struct {
	Reason   string `json:"reason" bson:"reason"`
	Actor    string `json:"actor" bson:"actor"`
	DriverID string `json:"driver_id,omitempty" bson:"driver_id,omitempty"`
	OfferID  string `json:"offer_id,omitempty" bson:"offer_id,omitempty"`
}

type Service struct {
	ID              string      `json:"id" bson:"_id"`
	RequesterID     string      `json:"requester_id" bson:"requester_id"`
	DriverID        string      `json:"driver_id,omitempty" bson:"driver_id,omitempty"`
	VehicleID       string      `json:"vehicle_id,omitempty" bson:"vehicle_id,omitempty"`
	OrganizationID  string      `json:"organization_id,omitempty" bson:"organization_id,omitempty"`
	AcceptedOfferID string      `json:"accepted_offer_id,omitempty" bson:"accepted_offer_id,omitempty"`
	Route           []Waypoint  `json:"route" bson:"route"`
	Kind            ServiceKind `json:"service_kind" bson:"service_kind"`

	DistanceKm       *float64 `json:"distance_km,omitempty" bson:"distance_km,omitempty"`
	EstimatedMinutes *int     `json:"estimated_minutes,omitempty" bson:"estimated_minutes,omitempty"`
	SLAMinutes       int      `json:"sla_minutes" bson:"sla_minutes"`
	EstimatedPrice   *float64 `json:"estimated_price,omitempty" bson:"estimated_price,omitempty"`
	FinalPrice       *float64 `json:"final_price,omitempty" bson:"final_price,omitempty"`

	PaymentMethod     PaymentMethod `json:"payment_method" bson:"payment_method"`
	ReceiptType       ReceiptType   `json:"receipt_type" bson:"receipt_type"`
	CommissionPending bool          `json:"commission_pending" bson:"commission_pending"`
	PaidInApp         bool          `json:"paid_in_app" bson:"paid_in_app"`

	Cargo          CargoDetails  `json:"cargo" bson:"cargo"`
	DriverLocation *GeoPoint     `json:"driver_location,omitempty" bson:"driver_location,omitempty"`
	Status         ServiceStatus `json:"status" bson:"status"`

	ScheduledFor *time.Time `json:"scheduled_for,omitempty" bson:"scheduled_for,omitempty"`
	RequestedAt  time.Time  `json:"requested_at" bson:"requested_at"`
	AcceptedAt   *time.Time `json:"accepted_at,omitempty" bson:"accepted_at,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty" bson:"started_at,omitempty"`
	EndedAt      *time.Time `json:"ended_at,omitempty" bson:"ended_at,omitempty"`

	DriverRating    *float64         `json:"driver_rating,omitempty" bson:"driver_rating,omitempty"`
	RequesterRating *float64         `json:"requester_rating,omitempty" bson:"requester_rating,omitempty"`
	Notes           string           `json:"notes,omitempty" bson:"notes,omitempty"`
	ClientReceipt   string           `json:"client_receipt,omitempty" bson:"client_receipt,omitempty"`
	ReceiptKey      string           `json:"receipt_key,omitempty" bson:"receipt_key,omitempty"`
	Commission      *CommissionBlock `json:"commission_block,omitempty" bson:"commission_block,omitempty"`
	Cancellation    *Cancellation    `json:"cancellation,omitempty" bson:"cancellation,omitempty"`

	ActualDurationMinutes *int `json:"actual_duration_minutes,omitempty" bson:"actual_duration_minutes,omitempty"`

	OfferCount int       `json:"offer_count" bson:"offer_count"`
	UpdatedAt  time.Time `json:"updated_at" bson:"updated_at"`
}

func (s *Service) Origin() Waypoint {
	return s.Route[0]
}

func (s *Service) Destination() Waypoint {
	return s.Route[len(s.Route)-1]
}

// IsSettled reports whether commission has already been posted for the service.
func (s *Service) IsSettled() bool {
	return s.Status == ServiceStatusCompleted && s.Commission != nil
}

// SLACompliant is derived from stored fields and is nil when the duration or SLA is unknown.
func (s *Service) SLACompliant() *bool {
	if s.ActualDurationMinutes == nil || s.SLAMinutes <= 0 {
		return nil
	}
	ok := *s.ActualDurationMinutes <= s.SLAMinutes
	return &ok
}

// ParticipantDriverID is the driver who holds or, before cancellation, held the assignment.
func (s *Service) ParticipantDriverID() string {
	if s.DriverID != "" {
		return s.DriverID
	}
	if s.Cancellation != nil {
		return s.Cancellation.DriverID
	}
	return ""
}

// HistoryTime is the sort key of the history feed.
func (s *Service) HistoryTime() time.Time {
	if s.EndedAt != nil {
		return *s.EndedAt
	}
	return s.RequestedAt
}

// Validate checks the decoded document against the entity invariants.
func (s *Service) Validate() error {
	if s.ID == "" {
		return NewValidationError("decode service", "missing id")
	}
	if s.RequesterID == "" {
		return NewValidationError("decode service", "missing requester_id")
	}
	if len(s.Route) < 2 {
		return NewValidationError("decode service", "route needs origin and destination")
	}
	if !s.Kind.Valid() {
		return NewValidationError("decode service", "unknown service_kind "+string(s.Kind))
	}
	if !s.Status.Valid() {
		return NewValidationError("decode service", "unknown status "+string(s.Status))
	}
	if s.Status.HasAssignment() && (s.AcceptedOfferID == "" || s.DriverID == "") {
		return NewValidationError("decode service", "status "+string(s.Status)+" without accepted offer")
	}
	if !s.Status.HasAssignment() && (s.AcceptedOfferID != "" || s.DriverID != "") {
		return NewValidationError("decode service", "status "+string(s.Status)+" carries an assignment")
	}
	return nil
}

// Clone returns a deep copy so that store snapshots never alias caller-owned memory.
func (s *Service) Clone() *Service {
	if s == nil {
		return nil
	}
	c := *s
	c.Route = make([]Waypoint, len(s.Route))
	for i, wp := range s.Route {
		c.Route[i] = Waypoint{
			Address: wp.Address,
			Lat:     cloneFloat(wp.Lat),
			Lng:     cloneFloat(wp.Lng),
			ETA:     cloneTime(wp.ETA),
			CheckAt: cloneTime(wp.CheckAt),
		}
	}
	c.DistanceKm = cloneFloat(s.DistanceKm)
	c.EstimatedMinutes = cloneInt(s.EstimatedMinutes)
	c.EstimatedPrice = cloneFloat(s.EstimatedPrice)
	c.FinalPrice = cloneFloat(s.FinalPrice)
	c.Cargo = CargoDetails{
		WeightTons:    cloneFloat(s.Cargo.WeightTons),
		VolumeM3:      cloneFloat(s.Cargo.VolumeM3),
		NeedsHelpers:  cloneBool(s.Cargo.NeedsHelpers),
		HelperCount:   cloneInt(s.Cargo.HelperCount),
		NeedsForklift: cloneBool(s.Cargo.NeedsForklift),
		CargoNotes:    s.Cargo.CargoNotes,
	}
	if s.DriverLocation != nil {
		loc := *s.DriverLocation
		c.DriverLocation = &loc
	}
	c.ScheduledFor = cloneTime(s.ScheduledFor)
	c.AcceptedAt = cloneTime(s.AcceptedAt)
	c.StartedAt = cloneTime(s.StartedAt)
	c.EndedAt = cloneTime(s.EndedAt)
	c.DriverRating = cloneFloat(s.DriverRating)
	c.RequesterRating = cloneFloat(s.RequesterRating)
	if s.Commission != nil {
		cb := *s.Commission
		c.Commission = &cb
	}
	if s.Cancellation != nil {
		cn := *s.Cancellation
		c.Cancellation = &cn
	}
	c.ActualDurationMinutes = cloneInt(s.ActualDurationMinutes)
	return &c
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneBool(v *bool) *bool {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
