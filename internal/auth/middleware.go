package auth

import (
	"context"
	"fmt"
	"net/http"

	"ms-registration/internal/logger"
	"ms-registration/internal/utils"

	"github.com/go-chi/chi/v5"
)

// Middleware authenticates the bearer token and stores the Actor on the
// request context.
func Middleware(verifier TokenVerifier, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawToken, err := ExtractTokenFromRequest(r)
			if err != nil {
				utils.WriteErrorMessage(w, http.StatusUnauthorized, err.Error())
				return
			}

			actor, _, err := verifier.Verify(r.Context(), rawToken)
			if err != nil {
				log.LogSecurity("TOKEN_REJECTED", fmt.Sprintf("%s: %v", r.URL.Path, err))
				utils.WriteErrorMessage(w, http.StatusUnauthorized, "invalid token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}

// RequireRole lets through callers holding any of roles. Admins always pass.
func RequireRole(roles ...Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFrom(r.Context())
			if !ok {
				utils.WriteErrorMessage(w, http.StatusUnauthorized, "not authenticated")
				return
			}
			if !actor.IsAdmin() && !actor.HasRole(roles...) {
				utils.WriteErrorMessage(w, http.StatusForbidden, fmt.Sprintf("requires one of roles %v", roles))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// OwnerLookup returns the organizer ID of an event.
type OwnerLookup func(ctx context.Context, eventID string) (string, error)

// EventOwnerOrAdmin restricts a route to the organizer of the event named by
// the URL parameter param, or to an admin.
func EventOwnerOrAdmin(lookup OwnerLookup, param string, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFrom(r.Context())
			if !ok {
				utils.WriteErrorMessage(w, http.StatusUnauthorized, "not authenticated")
				return
			}
			if actor.IsAdmin() {
				next.ServeHTTP(w, r)
				return
			}

			eventID := chi.URLParam(r, param)
			owner, err := lookup(r.Context(), eventID)
			if err != nil {
				utils.WriteError(w, err)
				return
			}
			if owner != actor.ID {
				log.LogSecurity("OWNERSHIP_DENIED", fmt.Sprintf("user %s on event %s (%s)", actor.ID, eventID, r.URL.Path))
				utils.WriteErrorMessage(w, http.StatusForbidden, "not the organizer of this event")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
