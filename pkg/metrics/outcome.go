package metrics

import (
	"context"
	"errors"

	"cargoride/internal/models"
)

// Outcome maps an engine error onto a low-cardinality label value.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, models.ErrNotFound):
		return "not_found"
	case errors.Is(err, models.ErrValidation):
		return "invalid"
	case errors.Is(err, models.ErrInvalidState),
		errors.Is(err, models.ErrDuplicateOffer),
		errors.Is(err, models.ErrAlreadyAccepted):
		return "rejected"
	case errors.Is(err, models.ErrTransactionConflict):
		return "conflict"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}
