package event

import (
	"strings"
	"time"

	"ms-registration/internal/apperr"
	"ms-registration/internal/models"
)

// validateFields checks the descriptive fields of an event. Creation also
// requires the schedule to lie in the future.
func validateFields(f models.EventFields, now time.Time, creating bool) error {
	if strings.TrimSpace(f.Title) == "" {
		return apperr.InvalidArgument("title is required")
	}
	if len(f.Title) > 200 {
		return apperr.InvalidArgument("title must be at most 200 characters")
	}
	if strings.TrimSpace(f.Description) == "" {
		return apperr.InvalidArgument("description is required")
	}
	if !f.Category.Valid() {
		return apperr.InvalidArgument("unknown category %q", f.Category)
	}
	if f.Capacity < 1 {
		return apperr.InvalidArgument("capacity must be at least 1")
	}
	if f.StartDateTime.IsZero() || f.EndDateTime.IsZero() || f.RegistrationDeadline.IsZero() {
		return apperr.InvalidArgument("start, end and registration deadline are required")
	}
	if !f.EndDateTime.After(f.StartDateTime) {
		return apperr.InvalidArgument("end must be after start")
	}
	if f.RegistrationDeadline.After(f.StartDateTime) {
		return apperr.InvalidArgument("registration deadline must not be after start")
	}
	if creating {
		if !f.StartDateTime.After(now) {
			return apperr.InvalidArgument("start must be in the future")
		}
		if !f.EndDateTime.After(now) || !f.RegistrationDeadline.After(now) {
			return apperr.InvalidArgument("end and registration deadline must be in the future")
		}
	}

	switch f.Location.Type {
	case models.LocationPhysical, models.LocationOnline, models.LocationHybrid:
	default:
		return apperr.InvalidArgument("unknown location type %q", f.Location.Type)
	}
	return nil
}
