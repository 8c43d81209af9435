package billing

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/torqueworks/torqueworks/internal/platform/httpx"
	"github.com/torqueworks/torqueworks/internal/shared"
)

// Handler exposes invoice generation under /work-orders.
type Handler struct {
	logger   *slog.Logger
	pipeline *Pipeline
}

// NewHandler creates a new handler.
func NewHandler(logger *slog.Logger, pipeline *Pipeline) *Handler {
	return &Handler{logger: logger, pipeline: pipeline}
}

// MountRoutes registers routes on the work order router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/{id}/invoice", h.generate)
	r.Get("/{id}/invoices", h.list)
}

func (h *Handler) generate(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	opts := Options{ActorID: shared.ActorFromContext(r.Context())}
	if raw := r.URL.Query().Get("replace"); raw != "" {
		opts.Replace, err = strconv.ParseBool(raw)
		if err != nil {
			httpx.RespondError(w, shared.Invalid("replace", "must be a boolean"))
			return
		}
	}
	res, err := h.pipeline.GenerateFromWorkOrder(r.Context(), id, opts)
	if err != nil {
		h.logger.Warn("generate invoice failed", slog.Int64("work_order_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, res)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out, err := h.pipeline.invoices.ListByWorkOrder(r.Context(), id)
	if err != nil {
		h.logger.Warn("list work order invoices failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}
