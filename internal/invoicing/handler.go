package invoicing

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/torqueworks/torqueworks/internal/platform/httpx"
	"github.com/torqueworks/torqueworks/internal/shared"
)

// IdempotencyHeader carries the client's retry key on payment requests.
const IdempotencyHeader = "Idempotency-Key"

// Handler exposes invoices over JSON.
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
	r.Post("/", h.create)
	r.Get("/{id}", h.show)
	r.Put("/{id}/items", h.updateItems)
	r.Post("/{id}/recalculate", h.recalculate)
	r.Post("/{id}/send", h.send)
	r.Post("/{id}/cancel", h.cancel)
	r.Post("/{id}/payments", h.addPayment)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := shared.ValidateStruct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	inv, err := h.service.Create(r.Context(), req.Draft(h.service.Terms()), shared.ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, "create invoice failed", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, inv)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	inv, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get invoice failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) updateItems(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req ItemsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := shared.ValidateStruct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	inv, err := h.service.UpdateItems(r.Context(), id, toItems(req.Items), shared.ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, "update invoice items failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) recalculate(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	inv, err := h.service.Recalculate(r.Context(), id)
	if err != nil {
		h.fail(w, "recalculate invoice failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) send(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	inv, err := h.service.MarkSent(r.Context(), id, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, "send invoice failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req CancelRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	inv, err := h.service.Cancel(r.Context(), id, shared.ActorFromContext(r.Context()), req.Reason)
	if err != nil {
		h.fail(w, "cancel invoice failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

type paymentResponse struct {
	Invoice Invoice `json:"invoice"`
	Payment Payment `json:"payment"`
}

func (h *Handler) addPayment(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req PaymentInput
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	key := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
	inv, p, err := h.service.AddPaymentOnce(r.Context(), key, id, req, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, "add payment failed", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, paymentResponse{Invoice: inv, Payment: p})
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	h.logger.Warn(msg, slog.Any("error", err))
	httpx.RespondError(w, err)
}
