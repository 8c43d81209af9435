package workorders

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/torqueworks/torqueworks/internal/platform/httpx"
	"github.com/torqueworks/torqueworks/internal/shared"
)

// Handler exposes work orders over JSON.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler creates a new handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers routes on the router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.create)
	r.Post("/from-appointment/{id}", h.createFromAppointment)
	r.Get("/{id}", h.show)
	r.Get("/{id}/cost", h.cost)
	r.Post("/{id}/status", h.updateStatus)
	r.Put("/{id}/services", h.updateServices)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.service.Create(r.Context(), req, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, "create work order failed", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

// createFromAppointment approves an appointment. The approver defaults to the
// calling actor.
func (h *Handler) createFromAppointment(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req FromAppointmentRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	if req.ApproverID == 0 {
		req.ApproverID = shared.ActorFromContext(r.Context())
	}
	order, err := h.service.CreateFromAppointment(r.Context(), id, req.ApproverID)
	if err != nil {
		h.fail(w, "create work order from appointment failed", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get work order failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) cost(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	cost, err := h.service.Cost(r.Context(), id)
	if err != nil {
		h.fail(w, "work order cost failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, cost)
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
	if err := shared.ValidateStruct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.service.UpdateStatus(r.Context(), id, req.Status, req.Notes, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, "update work order status failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) updateServices(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req ServicesRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.service.UpdateServices(r.Context(), id, req)
	if err != nil {
		h.fail(w, "update work order services failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	h.logger.Warn(msg, slog.Any("error", err))
	httpx.RespondError(w, err)
}
