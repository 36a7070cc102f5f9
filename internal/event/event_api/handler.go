package event_api

import (
	"fmt"
	"net/http"
	"strconv"

	"ms-registration/internal/apperr"
	"ms-registration/internal/auth"
	"ms-registration/internal/event"
	"ms-registration/internal/logger"
	"ms-registration/internal/models"
	"ms-registration/internal/utils"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	Service *event.EventService
	Logger  *logger.Logger
}

func NewHandler(service *event.EventService, log *logger.Logger) *Handler {
	return &Handler{Service: service, Logger: log}
}

// RegisterPublicRoutes registers the read-only catalogue.
func (h *Handler) RegisterPublicRoutes(r chi.Router) {
	r.Get("/events", h.ListEvents)
	r.Get("/events/categories", h.ListCategories)
	r.Get("/events/{eventId}", h.GetEvent)
	r.Get("/organizers/{organizerId}/events", h.ListByOrganizer)
}

// RegisterRoutes registers the organizer routes. It expects to be mounted
// behind auth.Middleware.
func (h *Handler) RegisterRoutes(r chi.Router) {
	owner := auth.EventOwnerOrAdmin(h.Service.OrganizerOf, "eventId", h.Logger)
	organizer := auth.RequireRole(auth.RoleOrganizer)

	r.With(organizer).Post("/events", h.CreateEvent)
	r.With(organizer).Get("/events/mine", h.ListMine)
	r.With(owner).Put("/events/{eventId}", h.UpdateEvent)
	r.With(owner).Patch("/events/{eventId}/status", h.UpdateEventStatus)
	r.With(owner).Delete("/events/{eventId}", h.CancelEvent)
}

func pageRequest(r *http.Request) (models.PageRequest, error) {
	var req models.PageRequest
	q := r.URL.Query()
	for name, dst := range map[string]*int{"page": &req.Page, "size": &req.Size} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return req, apperr.InvalidArgument("%s must be a number", name)
		}
		*dst = n
	}
	return req, nil
}

func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	req, err := pageRequest(r)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	page, err := h.Service.ListEvents(r.Context(), req)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "events", page)
}

func (h *Handler) ListByOrganizer(w http.ResponseWriter, r *http.Request) {
	h.listByOrganizer(w, r, chi.URLParam(r, "organizerId"))
}

func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	h.listByOrganizer(w, r, auth.UserID(r.Context()))
}

func (h *Handler) listByOrganizer(w http.ResponseWriter, r *http.Request, organizerID string) {
	req, err := pageRequest(r)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	page, err := h.Service.ListByOrganizer(r.Context(), organizerID, req)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "events", page)
}

func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	utils.WriteSuccess(w, http.StatusOK, "categories", h.Service.ListCategories())
}

func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := h.Service.GetEventByID(r.Context(), chi.URLParam(r, "eventId"))
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "event", ev)
}

func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var fields models.EventFields
	if err := utils.DecodeJSON(r, &fields); err != nil {
		utils.WriteError(w, err)
		return
	}
	ev, err := h.Service.CreateEvent(r.Context(), auth.UserID(r.Context()), fields)
	if err != nil {
		h.Logger.Warn("API", fmt.Sprintf("CreateEvent: %v", err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusCreated, "event created", ev)
}

func (h *Handler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	var fields models.EventFields
	if err := utils.DecodeJSON(r, &fields); err != nil {
		utils.WriteError(w, err)
		return
	}
	ev, err := h.Service.UpdateEvent(r.Context(), chi.URLParam(r, "eventId"), fields)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "event updated", ev)
}

func (h *Handler) UpdateEventStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, err)
		return
	}
	ev, err := h.Service.UpdateEventStatus(r.Context(), chi.URLParam(r, "eventId"), req.Status)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "event status updated", ev)
}

func (h *Handler) CancelEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "eventId")
	if err := h.Service.CancelEvent(r.Context(), id); err != nil {
		h.Logger.Error("API", fmt.Sprintf("CancelEvent: event %s: %v", id, err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "event cancelled", nil)
}
