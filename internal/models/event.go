package models

import (
	"strings"
	"time"

	"github.com/uptrace/bun"
)

type EventStatus string

const (
	EventStatusDraft     EventStatus = "DRAFT"
	EventStatusPublished EventStatus = "PUBLISHED"
	EventStatusCancelled EventStatus = "CANCELLED"
)

// ParseEventStatus resolves a status by name, case-insensitively.
func ParseEventStatus(name string) (EventStatus, bool) {
	switch EventStatus(strings.ToUpper(strings.TrimSpace(name))) {
	case EventStatusDraft:
		return EventStatusDraft, true
	case EventStatusPublished:
		return EventStatusPublished, true
	case EventStatusCancelled:
		return EventStatusCancelled, true
	}
	return "", false
}

type EventCategory string

const (
	CategoryConference EventCategory = "CONFERENCE"
	CategoryWorkshop   EventCategory = "WORKSHOP"
	CategoryWebinar    EventCategory = "WEBINAR"
	CategorySocial     EventCategory = "SOCIAL"
	CategorySports     EventCategory = "SPORTS"
)

// Categories lists every category in display order.
func Categories() []EventCategory {
	return []EventCategory{CategoryConference, CategoryWorkshop, CategoryWebinar, CategorySocial, CategorySports}
}

func (c EventCategory) Valid() bool {
	for _, known := range Categories() {
		if c == known {
			return true
		}
	}
	return false
}

type LocationType string

const (
	LocationPhysical LocationType = "PHYSICAL"
	LocationOnline   LocationType = "ONLINE"
	LocationHybrid   LocationType = "HYBRID"
)

type Location struct {
	Type        LocationType `bun:"type" json:"type"`
	Address     string       `bun:"address" json:"address,omitempty"`
	City        string       `bun:"city" json:"city,omitempty"`
	Country     string       `bun:"country" json:"country,omitempty"`
	VirtualLink string       `bun:"virtual_link" json:"virtual_link,omitempty"`
}

type Event struct {
	bun.BaseModel `bun:"table:events,alias:e"`

	ID                   string        `bun:"id,pk" json:"id"`
	Title                string        `bun:"title,notnull" json:"title"`
	Description          string        `bun:"description,notnull" json:"description"`
	Category             EventCategory `bun:"category,notnull" json:"category"`
	OrganizerID          string        `bun:"organizer_id,notnull" json:"organizer_id"`
	StartDateTime        time.Time     `bun:"start_date_time,notnull" json:"start_date_time"`
	EndDateTime          time.Time     `bun:"end_date_time,notnull" json:"end_date_time"`
	Location             Location      `bun:"embed:location_" json:"location"`
	Capacity             int           `bun:"capacity,notnull" json:"capacity"`
	RegistrationDeadline time.Time     `bun:"registration_deadline,notnull" json:"registration_deadline"`
	Status               EventStatus   `bun:"status,notnull" json:"status"`
	Tags                 []string      `bun:"tags" json:"tags"`
	ImageURL             string        `bun:"image_url" json:"image_url,omitempty"`
	Requirements         string        `bun:"requirements" json:"requirements,omitempty"`
	Agenda               string        `bun:"agenda" json:"agenda,omitempty"`
	CancellationPending  bool          `bun:"cancellation_pending,notnull" json:"-"`
	CreatedAt            time.Time     `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt            time.Time     `bun:"updated_at,notnull" json:"updated_at"`
}

// Retired reports whether readers must treat the event as absent. An event
// with a cascade still in flight is already retired.
func (e Event) Retired() bool {
	return e.Status == EventStatusCancelled || e.CancellationPending
}

// EventFields is the mutable, caller-supplied part of an event.
type EventFields struct {
	Title                string        `json:"title"`
	Description          string        `json:"description"`
	Category             EventCategory `json:"category"`
	StartDateTime        time.Time     `json:"start_date_time"`
	EndDateTime          time.Time     `json:"end_date_time"`
	Location             Location      `json:"location"`
	Capacity             int           `json:"capacity"`
	RegistrationDeadline time.Time     `json:"registration_deadline"`
	Tags                 []string      `json:"tags"`
	ImageURL             string        `json:"image_url"`
	Requirements         string        `json:"requirements"`
	Agenda               string        `json:"agenda"`
}

// Apply copies the descriptive fields onto an event.
func (f EventFields) Apply(e *Event) {
	e.Title = f.Title
	e.Description = f.Description
	e.Category = f.Category
	e.StartDateTime = f.StartDateTime
	e.EndDateTime = f.EndDateTime
	e.Location = f.Location
	e.Capacity = f.Capacity
	e.RegistrationDeadline = f.RegistrationDeadline
	e.Tags = f.Tags
	e.ImageURL = f.ImageURL
	e.Requirements = f.Requirements
	e.Agenda = f.Agenda
}

// EventView is an event as presented to readers.
type EventView struct {
	Event
	RegisteredCount int `json:"registered_count"`
}
