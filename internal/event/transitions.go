package event

import (
	"ms-registration/internal/apperr"
	"ms-registration/internal/models"
)

var eventTransitions = map[models.EventStatus][]models.EventStatus{
	models.EventStatusDraft:     {models.EventStatusPublished, models.EventStatusCancelled},
	models.EventStatusPublished: {models.EventStatusCancelled},
}

func isStatusTransitionAllowed(from, to models.EventStatus) bool {
	if from == to {
		return true
	}
	for _, next := range eventTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func checkTransition(from, to models.EventStatus) error {
	if !isStatusTransitionAllowed(from, to) {
		return apperr.InvalidTransition("event cannot move from %s to %s", from, to)
	}
	return nil
}
