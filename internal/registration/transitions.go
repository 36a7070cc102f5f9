package registration

import (
	"ms-registration/internal/apperr"
	"ms-registration/internal/models"
)

// registrationTransitions lists the allowed status moves. CANCELLED is
// terminal; a user who wants back in registers again.
var registrationTransitions = map[models.RegistrationStatus][]models.RegistrationStatus{
	models.RegistrationConfirmed:  {models.RegistrationWaitlisted, models.RegistrationCancelled},
	models.RegistrationWaitlisted: {models.RegistrationConfirmed, models.RegistrationCancelled},
}

func isStatusTransitionAllowed(from, to models.RegistrationStatus) bool {
	if from == to {
		return true
	}
	for _, next := range registrationTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func checkTransition(from, to models.RegistrationStatus) error {
	if _, ok := models.ParseRegistrationStatus(string(to)); !ok {
		return apperr.InvalidArgument("unknown registration status %q", to)
	}
	if !isStatusTransitionAllowed(from, to) {
		return apperr.InvalidTransition("registration cannot move from %s to %s", from, to)
	}
	return nil
}
