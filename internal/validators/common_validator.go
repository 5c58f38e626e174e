package validators

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"cargoride/internal/models"
)

var validate *validator.Validate

func init() {
	validate = validator.New()

	// Report the json name of a field, not the Go one
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})

	validate.RegisterValidation("service_kind", validateServiceKind)
	validate.RegisterValidation("payment_method", validatePaymentMethod)
	validate.RegisterValidation("receipt_type", validateReceiptType)
	validate.RegisterValidation("rating_value", validateRatingValue)
	validate.RegisterValidation("offer_sort", validateOfferSort)
}

// ValidationError represents a field validation error
type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Value   string `json:"value"`
	Message string `json:"message"`
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	var messages []string
	for _, err := range v {
		messages = append(messages, fmt.Sprintf("%s: %s", err.Field, err.Message))
	}
	return strings.Join(messages, "; ")
}

// Map keys each message by field path, the shape the API error details use.
func (v ValidationErrors) Map() map[string]string {
	out := make(map[string]string, len(v))
	for _, err := range v {
		out[err.Field] = err.Message
	}
	return out
}

// ValidateStruct validates a struct and returns detailed errors
func ValidateStruct(s interface{}) ValidationErrors {
	var validationErrors ValidationErrors

	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	fieldErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return ValidationErrors{{Field: "request", Tag: "invalid", Message: err.Error()}}
	}

	for _, err := range fieldErrors {
		validationErrors = append(validationErrors, ValidationError{
			Field:   fieldPath(err),
			Tag:     err.Tag(),
			Value:   fmt.Sprintf("%v", err.Value()),
			Message: getErrorMessage(err),
		})
	}

	return validationErrors
}

// fieldPath drops the root struct name: "CreateServiceRequest.route[0].address" -> "route[0].address".
func fieldPath(err validator.FieldError) string {
	ns := err.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func getErrorMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", err.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s", err.Field(), err.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", err.Field(), err.Param())
	case "gt", "gte", "lt", "lte":
		return fmt.Sprintf("%s is out of range", err.Field())
	case "latitude":
		return "Latitude must be between -90 and 90"
	case "longitude":
		return "Longitude must be between -180 and 180"
	case "service_kind":
		return "Unknown service kind"
	case "payment_method":
		return "Unknown payment method"
	case "receipt_type":
		return "Unknown receipt type"
	case "rating_value":
		return "Rating must be between 1 and 5"
	case "offer_sort":
		return "Sort must be price or eta"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", err.Field(), err.Param())
	default:
		return fmt.Sprintf("Validation failed for %s", err.Field())
	}
}

func validateServiceKind(fl validator.FieldLevel) bool {
	return models.ServiceKind(fl.Field().String()).Valid()
}

func validatePaymentMethod(fl validator.FieldLevel) bool {
	return models.PaymentMethod(fl.Field().String()).Valid()
}

func validateReceiptType(fl validator.FieldLevel) bool {
	return models.ReceiptType(fl.Field().String()).Valid()
}

func validateRatingValue(fl validator.FieldLevel) bool {
	rating := fl.Field().Float()
	return rating >= 1 && rating <= 5
}

func validateOfferSort(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "", "price", "eta":
		return true
	}
	return false
}
