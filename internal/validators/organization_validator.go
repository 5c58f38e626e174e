package validators

type MembershipRequest struct {
	OrganizationID      string `json:"organization_id" validate:"required,max=64"`
	ActsAsInvoiceIssuer bool   `json:"acts_as_invoice_issuer"`
}

type DeviceRegistrationRequest struct {
	Token    string `json:"token" validate:"required,max=4096"`
	Platform string `json:"platform" validate:"required,oneof=android ios web"`
}
