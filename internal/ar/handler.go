package ar

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/torqueworks/torqueworks/internal/platform/httpx"
	"github.com/torqueworks/torqueworks/internal/shared"
)

// Handler exposes receivables reports.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the receivables handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers receivables routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/aging", h.aging)
	r.Get("/customers/{id}/statement", h.statement)
}

func (h *Handler) aging(w http.ResponseWriter, r *http.Request) {
	asOf, err := parseAsOf(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	report, err := h.service.Aging(r.Context(), asOf)
	if err != nil {
		h.fail(w, "aging report", err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) statement(w http.ResponseWriter, r *http.Request) {
	customerID, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	asOf, err := parseAsOf(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	st, err := h.service.CustomerStatement(r.Context(), customerID, asOf)
	if err != nil {
		h.fail(w, "customer statement", err)
		return
	}
	httpx.JSON(w, http.StatusOK, st)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, ErrCustomerRequired) {
		httpx.RespondError(w, shared.Invalid("id", "required"))
		return
	}
	h.logger.Error(op, slog.Any("error", err))
	httpx.RespondError(w, err)
}

func parseAsOf(r *http.Request) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("as_of"))
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, shared.Invalid("as_of", "must be YYYY-MM-DD")
	}
	return t, nil
}
