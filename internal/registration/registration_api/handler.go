package registration_api

import (
	"fmt"
	"net/http"

	"ms-registration/internal/apperr"
	"ms-registration/internal/auth"
	"ms-registration/internal/logger"
	"ms-registration/internal/models"
	"ms-registration/internal/registration"
	"ms-registration/internal/sse"
	"ms-registration/internal/utils"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	Service *registration.RegistrationService
	Owners  auth.OwnerLookup
	Emitter *sse.RegistrationEventEmitter
	Logger  *logger.Logger
}

func NewHandler(service *registration.RegistrationService, owners auth.OwnerLookup, emitter *sse.RegistrationEventEmitter, log *logger.Logger) *Handler {
	return &Handler{Service: service, Owners: owners, Emitter: emitter, Logger: log}
}

// RegisterRoutes expects to be mounted behind auth.Middleware.
func (h *Handler) RegisterRoutes(r chi.Router) {
	owner := auth.EventOwnerOrAdmin(h.Owners, "eventId", h.Logger)

	r.Post("/registrations", h.Register)
	r.Get("/registrations/me", h.ListMine)
	r.Get("/registrations/me/stream", h.StreamMine)
	r.With(auth.RequireRole(auth.RoleAdmin)).Post("/registrations/checkin", h.CheckIn)
	r.Get("/registrations/{registrationId}", h.GetRegistration)
	r.Put("/registrations/{registrationId}", h.UpdateRegistration)
	r.Delete("/registrations/{registrationId}", h.CancelRegistration)
	r.Put("/registrations/{registrationId}/attendance", h.MarkAttendance)
	r.Get("/registrations/{registrationId}/qr", h.CheckinQR)

	r.With(owner).Get("/events/{eventId}/registrations", h.ListByEvent)
	r.With(owner).Get("/events/{eventId}/registrations/stream", h.StreamEvent)
	r.With(owner).Post("/events/{eventId}/registrations/promote", h.PromoteWaitlist)
	r.With(owner).Post("/events/{eventId}/checkin", h.CheckInForEvent)
}

// organizerOrAdmin allows the organizer of reg's event and admins.
func (h *Handler) organizerOrAdmin(r *http.Request, reg *models.Registration) error {
	actor, _ := auth.ActorFrom(r.Context())
	if actor.IsAdmin() {
		return nil
	}
	owner, err := h.Owners(r.Context(), reg.EventID)
	if err != nil {
		return err
	}
	if owner != actor.ID {
		return apperr.Forbidden("only the event organizer can manage registration %s", reg.ID)
	}
	return nil
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegistrationRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, err)
		return
	}
	if req.EventID == "" {
		utils.WriteError(w, apperr.InvalidArgument("event_id is required"))
		return
	}

	reg, err := h.Service.Register(r.Context(), auth.UserID(r.Context()), req.EventID, req.Notes)
	if err != nil {
		h.Logger.Warn("API", fmt.Sprintf("Register: event %s: %v", req.EventID, err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusCreated, fmt.Sprintf("registration %s", reg.Status), reg)
}

func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	regs, err := h.Service.ListByUser(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "registrations", regs)
}

func (h *Handler) GetRegistration(w http.ResponseWriter, r *http.Request) {
	reg, err := h.Service.GetRegistration(r.Context(), chi.URLParam(r, "registrationId"))
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	if reg.UserID != auth.UserID(r.Context()) {
		if err := h.organizerOrAdmin(r, reg); err != nil {
			utils.WriteError(w, err)
			return
		}
	}
	utils.WriteSuccess(w, http.StatusOK, "registration", reg)
}

func (h *Handler) UpdateRegistration(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "registrationId")
	var req models.RegistrationUpdateRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, err)
		return
	}

	current, err := h.Service.GetRegistration(r.Context(), id)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	if err := h.organizerOrAdmin(r, current); err != nil {
		utils.WriteError(w, err)
		return
	}

	reg, err := h.Service.UpdateRegistration(r.Context(), id, req.Status, req.Notes)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "registration updated", reg)
}

func (h *Handler) CancelRegistration(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "registrationId")
	if err := h.Service.CancelRegistration(r.Context(), id, auth.UserID(r.Context())); err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "registration cancelled", nil)
}

func (h *Handler) MarkAttendance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "registrationId")
	var req struct {
		Attended bool `json:"attended"`
	}
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, err)
		return
	}

	current, err := h.Service.GetRegistration(r.Context(), id)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	if err := h.organizerOrAdmin(r, current); err != nil {
		utils.WriteError(w, err)
		return
	}

	reg, err := h.Service.MarkAttendance(r.Context(), id, req.Attended)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "attendance recorded", reg)
}

func (h *Handler) CheckinQR(w http.ResponseWriter, r *http.Request) {
	png, err := h.Service.CheckinQR(r.Context(), chi.URLParam(r, "registrationId"), auth.UserID(r.Context()))
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(png); err != nil {
		h.Logger.Error("API", fmt.Sprintf("CheckinQR: write failed: %v", err))
	}
}

type checkinRequest struct {
	Code string `json:"code"`
}

func (h *Handler) decodeCode(r *http.Request) (string, error) {
	var req checkinRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		return "", err
	}
	if req.Code == "" {
		return "", apperr.InvalidArgument("code is required")
	}
	return req.Code, nil
}

func (h *Handler) CheckIn(w http.ResponseWriter, r *http.Request) {
	code, err := h.decodeCode(r)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	reg, err := h.Service.CheckIn(r.Context(), code)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "checked in", reg)
}

func (h *Handler) CheckInForEvent(w http.ResponseWriter, r *http.Request) {
	code, err := h.decodeCode(r)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	reg, err := h.Service.CheckInForEvent(r.Context(), chi.URLParam(r, "eventId"), code)
	if err != nil {
		h.Logger.LogSecurity("CHECKIN_REJECTED", fmt.Sprintf("user %s: %v", auth.UserID(r.Context()), err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "checked in", reg)
}

func (h *Handler) ListByEvent(w http.ResponseWriter, r *http.Request) {
	regs, err := h.Service.ListByEvent(r.Context(), chi.URLParam(r, "eventId"))
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "registrations", regs)
}

func (h *Handler) PromoteWaitlist(w http.ResponseWriter, r *http.Request) {
	promoted, err := h.Service.PromoteWaitlist(r.Context(), chi.URLParam(r, "eventId"))
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, fmt.Sprintf("%d promoted", len(promoted)), promoted)
}

func (h *Handler) StreamEvent(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")
	updates := h.Emitter.SubscribeToEvent(r.Context(), eventID)
	h.Logger.Info("SSE", fmt.Sprintf("Client connected to registration stream of event %s", eventID))
	sse.Serve(w, r, updates, map[string]string{"status": "connected", "event_id": eventID}, h.Logger)
}

func (h *Handler) StreamMine(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	updates := h.Emitter.SubscribeToUser(r.Context(), userID)
	sse.Serve(w, r, updates, map[string]string{"status": "connected", "user_id": userID}, h.Logger)
}
