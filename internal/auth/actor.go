package auth

import (
	"context"
	"slices"
)

type Role string

const (
	RoleAttendee  Role = "ATTENDEE"
	RoleOrganizer Role = "ORGANIZER"
	RoleAdmin     Role = "ADMIN"
)

// Actor is the authenticated caller of a request.
type Actor struct {
	ID    string `json:"id"`
	Roles []Role `json:"roles"`
}

func (a Actor) HasRole(roles ...Role) bool {
	for _, r := range roles {
		if slices.Contains(a.Roles, r) {
			return true
		}
	}
	return false
}

func (a Actor) IsAdmin() bool {
	return a.HasRole(RoleAdmin)
}

type contextKey string

const actorKey contextKey = "actor"

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey, a)
}

func ActorFrom(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey).(Actor)
	return a, ok
}

// UserID returns the caller's ID, empty outside an authenticated request.
func UserID(ctx context.Context) string {
	a, _ := ActorFrom(ctx)
	return a.ID
}

// parseRoles keeps the roles this service knows and drops the rest.
func parseRoles(names []string) []Role {
	roles := []Role{}
	for _, n := range names {
		switch r := Role(n); r {
		case RoleAttendee, RoleOrganizer, RoleAdmin:
			if !slices.Contains(roles, r) {
				roles = append(roles, r)
			}
		}
	}
	return roles
}
