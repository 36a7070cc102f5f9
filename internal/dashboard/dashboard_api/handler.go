package dashboard_api

import (
	"net/http"

	"ms-registration/internal/apperr"
	"ms-registration/internal/auth"
	"ms-registration/internal/dashboard"
	"ms-registration/internal/logger"
	"ms-registration/internal/utils"

	"github.com/go-chi/chi/v5"
)

// Handler serves the attendee and organizer dashboards.
type Handler struct {
	Service *dashboard.Service
	Owners  auth.OwnerLookup
	Logger  *logger.Logger
}

func NewHandler(service *dashboard.Service, owners auth.OwnerLookup, log *logger.Logger) *Handler {
	return &Handler{Service: service, Owners: owners, Logger: log}
}

// RegisterRoutes expects to be mounted behind auth.Middleware.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/dashboard/registrations", h.MyRegistrations)
	r.Get("/dashboard/events", h.MyEvents)
	r.With(auth.EventOwnerOrAdmin(h.Owners, "eventId", h.Logger)).Get("/events/{eventId}/stats", h.EventStats)
}

// MyRegistrations lists live registrations with their events;
// ?status=confirmed narrows it to confirmed seats.
func (h *Handler) MyRegistrations(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var (
		data interface{}
		err  error
	)
	switch r.URL.Query().Get("status") {
	case "":
		data, err = h.Service.ActiveRegistrationsWithEvent(r.Context(), userID)
	case "confirmed", "CONFIRMED":
		data, err = h.Service.ConfirmedRegistrationsWithEvent(r.Context(), userID)
	default:
		err = apperr.InvalidArgument("status filter must be empty or confirmed")
	}
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "registrations", data)
}

func (h *Handler) MyEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.Service.RegisteredEvents(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "events", events)
}

func (h *Handler) EventStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Service.EventStats(r.Context(), chi.URLParam(r, "eventId"))
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "stats", stats)
}
