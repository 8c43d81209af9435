package scheduling

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/torqueworks/torqueworks/internal/platform/httpx"
	"github.com/torqueworks/torqueworks/internal/shared"
)

// Handler exposes appointments over JSON.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler creates a new handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers routes on the router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Post("/check", h.check)
	r.Get("/{id}", h.show)
	r.Put("/{id}/schedule", h.reschedule)
	r.Put("/{id}/parts", h.updateParts)
	r.Post("/{id}/status", h.updateStatus)
}

// list handles GET /appointments?resource_id=&date=YYYY-MM-DD
func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	resourceID, err := strconv.ParseInt(q.Get("resource_id"), 10, 64)
	if err != nil || resourceID <= 0 {
		httpx.RespondError(w, shared.Invalid("resource_id", "is required"))
		return
	}
	day, err := time.Parse("2006-01-02", q.Get("date"))
	if err != nil {
		httpx.RespondError(w, shared.Invalid("date", "must be YYYY-MM-DD"))
		return
	}
	out, err := h.service.ListByResourceDay(r.Context(), resourceID, day)
	if err != nil {
		h.fail(w, "list appointments failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	appt, err := h.service.Create(r.Context(), req, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, "create appointment failed", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, appt)
}

func (h *Handler) check(w http.ResponseWriter, r *http.Request) {
	var req AvailabilityRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	conflicts, err := h.service.CheckAvailability(r.Context(), req)
	if err != nil {
		h.fail(w, "check availability failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, AvailabilityResponse{Available: len(conflicts) == 0, Conflicts: conflicts})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	appt, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get appointment failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, appt)
}

func (h *Handler) reschedule(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req RescheduleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	appt, err := h.service.Reschedule(r.Context(), id, req)
	if err != nil {
		h.fail(w, "reschedule appointment failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, appt)
}

func (h *Handler) updateParts(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req PartsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	appt, err := h.service.UpdateParts(r.Context(), id, req)
	if err != nil {
		h.fail(w, "update parts failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, appt)
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req StatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	appt, err := h.service.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		h.fail(w, "update appointment status failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, appt)
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	h.logger.Warn(msg, slog.Any("error", err))
	httpx.RespondError(w, err)
}
