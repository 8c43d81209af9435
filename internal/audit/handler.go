package audit

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/torqueworks/torqueworks/internal/platform/httpx"
	"github.com/torqueworks/torqueworks/internal/shared"
)

const (
	exportRateLimit  = 10
	exportRateWindow = time.Minute
	defaultDateRange = 7 * 24 * time.Hour
	maxDateRange     = 90 * 24 * time.Hour
)

// TimelineService defines the business contract for timeline data.
type TimelineService interface {
	Timeline(ctx context.Context, filters TimelineFilters) (Result, error)
	Export(ctx context.Context, filters TimelineFilters) ([]TimelineRow, error)
}

// Handler serves the audit timeline.
type Handler struct {
	logger  *slog.Logger
	service TimelineService
	now     func() time.Time
}

// NewHandler constructs the audit handler.
func NewHandler(logger *slog.Logger, service TimelineService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, now: time.Now}
}

// MountRoutes registers the timeline and CSV export endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	limiter := httprate.Limit(exportRateLimit, exportRateWindow,
		httprate.WithKeyFuncs(rateLimitKey),
	)
	r.Get("/", h.handleTimeline)
	r.With(limiter).Get("/export.csv", h.handleExport)
}

func rateLimitKey(r *http.Request) (string, error) {
	if actor := shared.ActorFromContext(r.Context()); actor > 0 {
		return "actor:" + strconv.FormatInt(actor, 10), nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}

func (h *Handler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.logger.Error("load audit timeline", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rows, err := h.service.Export(r.Context(), filters)
	if err != nil {
		h.logger.Error("export audit timeline", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	body, err := WriteCSV(rows)
	if err != nil {
		h.logger.Error("encode csv", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="audit-timeline.csv"`)
	if _, err := w.Write(body); err != nil {
		h.logger.Warn("write csv", slog.Any("error", err))
	}
}

// parseFilters reads from/to as dates; to is inclusive.
func (h *Handler) parseFilters(r *http.Request) (TimelineFilters, error) {
	q := r.URL.Query()
	verr := &shared.ValidationError{}

	to := h.now().UTC().Truncate(24 * time.Hour)
	if v := strings.TrimSpace(q.Get("to")); v != "" {
		parsed, err := time.Parse(time.DateOnly, v)
		if err != nil {
			verr.Add("to", "must be YYYY-MM-DD")
		}
		to = parsed
	}
	from := to.Add(-defaultDateRange)
	if v := strings.TrimSpace(q.Get("from")); v != "" {
		parsed, err := time.Parse(time.DateOnly, v)
		if err != nil {
			verr.Add("from", "must be YYYY-MM-DD")
		}
		from = parsed
	}
	if from.After(to) {
		verr.Add("range", "from must not be after to")
	} else if to.Sub(from) > maxDateRange {
		verr.Add("range", "at most 90 days")
	}

	f := TimelineFilters{
		From:     from,
		To:       to.Add(24 * time.Hour),
		Entity:   strings.TrimSpace(q.Get("entity")),
		EntityID: strings.TrimSpace(q.Get("entity_id")),
		Action:   strings.TrimSpace(q.Get("action")),
	}
	f.ActorID = positiveInt(q.Get("actor_id"), "actor_id", verr)
	f.Page = int(positiveInt(q.Get("page"), "page", verr))
	f.PageSize = int(positiveInt(q.Get("page_size"), "page_size", verr))
	return f, verr.OrNil()
}

func positiveInt(raw, field string, verr *shared.ValidationError) int64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		verr.Add(field, "must be a positive integer")
		return 0
	}
	return v
}
