package validators

type SubmitOfferRequest struct {
	Price                    float64 `json:"offered_price" validate:"gt=0"`
	EstimatedMinutes         int     `json:"estimated_minutes" validate:"gt=0,lte=1440"`
	Notes                    string  `json:"notes" validate:"omitempty,max=500"`
	UsesOrganizationAsIssuer bool    `json:"uses_organization_as_issuer"`
}

type AcceptOfferRequest struct {
	VehicleID       string   `json:"vehicle_id" validate:"omitempty,max=64"`
	NegotiatedPrice *float64 `json:"negotiated_price" validate:"omitempty,gt=0"`
	PaymentMethod   string   `json:"payment_method" validate:"omitempty,payment_method"`
	ReceiptType     string   `json:"receipt_type" validate:"omitempty,receipt_type"`
}

type ListOffersQuery struct {
	Sort string `form:"sort" json:"sort" validate:"offer_sort"`
}
