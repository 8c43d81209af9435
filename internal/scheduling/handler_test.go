package scheduling

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	svc, _, _ := newTestService(newMemoryRepo())
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc)
	r := chi.NewRouter()
	r.Route("/appointments", h.MountRoutes)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

const bookBody = `{
	"customer_id": 3,
	"assigned_resource_id": 7,
	"service_description": "Oil change",
	"scheduled_date": "2024-03-04T00:00:00Z",
	"scheduled_time": "%s",
	"estimated_duration_minutes": 60,
	"estimated_labor": "80.00"
}`

func TestHandlerCreateAndConflict(t *testing.T) {
	h := newTestRouter(t)

	rr := do(t, h, http.MethodPost, "/appointments", strings.Replace(bookBody, "%s", "09:00", 1))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var created Appointment
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	assert.Equal(t, "09:00", created.ScheduledTime.String())

	rr = do(t, h, http.MethodPost, "/appointments", strings.Replace(bookBody, "%s", "09:30", 1))
	require.Equal(t, http.StatusConflict, rr.Code)
	var problem struct {
		Status    int           `json:"status"`
		Conflicts []Appointment `json:"conflicts"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &problem))
	require.Len(t, problem.Conflicts, 1)
	assert.Equal(t, created.ID, problem.Conflicts[0].ID)

	rr = do(t, h, http.MethodGet, "/appointments?resource_id=7&date=2024-03-04", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var list []Appointment
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	assert.Len(t, list, 1)
}

func TestHandlerErrors(t *testing.T) {
	h := newTestRouter(t)

	rr := do(t, h, http.MethodGet, "/appointments/99", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, h, http.MethodPost, "/appointments", `{"customer_id": "x"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodPost, "/appointments", strings.Replace(bookBody, "%s", "25:00", 1))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodPost, "/appointments", strings.Replace(bookBody, "%s", "09:00", 1))
	require.Equal(t, http.StatusCreated, rr.Code)
	rr = do(t, h, http.MethodPost, "/appointments/1/status", `{"status":"completed"}`)
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestHandlerCheck(t *testing.T) {
	h := newTestRouter(t)
	rr := do(t, h, http.MethodPost, "/appointments/check", `{
		"assigned_resource_id": 7,
		"scheduled_date": "2024-03-04T00:00:00Z",
		"scheduled_time": "09:00",
		"estimated_duration_minutes": 30
	}`)
	require.Equal(t, http.StatusOK, rr.Code)
	var resp AvailabilityResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.True(t, resp.Available)
	assert.Empty(t, resp.Conflicts)
}
