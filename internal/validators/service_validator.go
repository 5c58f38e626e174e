package validators

import (
	"time"
)

type WaypointRequest struct {
	Address string   `json:"address" validate:"required,max=500"`
	Lat     *float64 `json:"lat" validate:"omitempty,latitude"`
	Lng     *float64 `json:"lng" validate:"omitempty,longitude"`
}

type CargoRequest struct {
	WeightTons    *float64 `json:"weight_tons" validate:"omitempty,gte=0,lte=100"`
	VolumeM3      *float64 `json:"volume_m3" validate:"omitempty,gte=0,lte=500"`
	NeedsHelpers  *bool    `json:"needs_helpers"`
	HelperCount   *int     `json:"helper_count" validate:"omitempty,gte=0,lte=20"`
	NeedsForklift *bool    `json:"needs_forklift"`
	CargoNotes    string   `json:"cargo_notes" validate:"omitempty,max=1000"`
}

type CreateServiceRequest struct {
	Route            []WaypointRequest `json:"route" validate:"required,min=2,max=10,dive"`
	Kind             string            `json:"service_kind" validate:"required,service_kind"`
	SLAMinutes       int               `json:"sla_minutes" validate:"omitempty,gt=0,lte=10080"`
	DistanceKm       *float64          `json:"distance_km" validate:"omitempty,gte=0"`
	EstimatedMinutes *int              `json:"estimated_minutes" validate:"omitempty,gt=0"`
	EstimatedPrice   *float64          `json:"estimated_price" validate:"omitempty,gte=0"`
	PaymentMethod    string            `json:"payment_method" validate:"omitempty,payment_method"`
	ReceiptType      string            `json:"receipt_type" validate:"omitempty,receipt_type"`
	Cargo            CargoRequest      `json:"cargo"`
	ScheduledFor     *time.Time        `json:"scheduled_for"`
	Notes            string            `json:"notes" validate:"omitempty,max=1000"`
}

type CompleteTripRequest struct {
	CommissionRate *float64 `json:"commission_rate" validate:"omitempty,gte=0,lt=1"`
}

type CancelServiceRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=500"`
}

type RateServiceRequest struct {
	Rating float64 `json:"rating" validate:"required,rating_value"`
}

type LocationUpdateRequest struct {
	Lat float64 `json:"lat" validate:"latitude"`
	Lng float64 `json:"lng" validate:"longitude"`
}

func ValidateCreateService(req *CreateServiceRequest) ValidationErrors {
	errors := ValidateStruct(req)

	if req.ScheduledFor != nil && req.ScheduledFor.Before(time.Now().Add(-time.Minute)) {
		errors = append(errors, ValidationError{
			Field:   "scheduled_for",
			Tag:     "future_date",
			Value:   req.ScheduledFor.Format(time.RFC3339),
			Message: "Scheduled time must not be in the past",
		})
	}

	if req.Cargo.HelperCount != nil && *req.Cargo.HelperCount > 0 &&
		(req.Cargo.NeedsHelpers == nil || !*req.Cargo.NeedsHelpers) {
		errors = append(errors, ValidationError{
			Field:   "cargo.helper_count",
			Tag:     "needs_helpers",
			Message: "Helper count requires needs_helpers",
		})
	}

	return errors
}
