package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidState        = errors.New("invalid state")
	ErrDuplicateOffer      = errors.New("duplicate offer")
	ErrAlreadyAccepted     = errors.New("offer already accepted")
	ErrValidation          = errors.New("validation failed")
	ErrTransactionConflict = errors.New("transaction conflict")
)

// EngineError carries the failing operation and the ids a caller needs to build a message.
type EngineError struct {
	Op        string
	Kind      error
	ServiceID string
	OfferID   string
	DriverID  string
	Detail    string
}

func (e *EngineError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	b.WriteString(": ")
	b.WriteString(e.Kind.Error())
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	var ids []string
	if e.ServiceID != "" {
		ids = append(ids, "service="+e.ServiceID)
	}
	if e.OfferID != "" {
		ids = append(ids, "offer="+e.OfferID)
	}
	if e.DriverID != "" {
		ids = append(ids, "driver="+e.DriverID)
	}
	if len(ids) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(ids, " "))
	}
	return b.String()
}

func (e *EngineError) Unwrap() error {
	return e.Kind
}

func NewValidationError(op, detail string) *EngineError {
	return &EngineError{Op: op, Kind: ErrValidation, Detail: detail}
}

// IsRetryable reports whether the whole operation may be re-run by the caller.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransactionConflict) || errors.Is(err, context.DeadlineExceeded)
}
