package bot

import (
	"errors"

	"fixora/internal/service"
)

// errorMessage is shown to the professional when an action fails. A nil error
// stands for a remote backend that gave no answer.
func errorMessage(err error) string {
	if err == nil {
		return "⚠️ Service is unavailable right now. Please try again later."
	}

	var verr *service.ValidationError
	var transitionErr *service.InvalidTransitionError

	switch {
	case errors.As(err, &verr):
		return "⚠️ " + verr.Error()
	case errors.Is(err, service.ErrNotFound):
		return "⚠️ Booking not found. It may have been removed."
	case errors.As(err, &transitionErr):
		return "⚠️ This booking is already " + transitionErr.From + "."
	case errors.Is(err, service.ErrForbidden):
		return "⚠️ This booking is assigned to another professional."
	}
	return "❌ Something went wrong. Please try again later."
}
