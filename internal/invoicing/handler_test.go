package invoicing

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
	f := newFixture(t)
	f.svc.SetIdempotencyStore(&memoryIdempotency{keys: map[string]bool{}})
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), f.svc)
	r := chi.NewRouter()
	r.Route("/invoices", h.MountRoutes)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

const invoiceBody = `{
	"customer_id": 3,
	"items": [
		{"type": "labor", "description": "Brake job - Labor", "quantity": "2", "unit_price": "100"},
		{"type": "part", "description": "Brake pads", "quantity": "2", "unit_price": "30"},
		{"type": "overhead", "description": "Shop supplies", "quantity": "1", "unit_price": "40"}
	],
	"discount_type": "fixed",
	"discount_value": "20"
}`

func TestHandlerInvoiceFlow(t *testing.T) {
	h := newTestRouter(t)

	rr := do(t, h, http.MethodPost, "/invoices", invoiceBody)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var inv Invoice
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &inv))
	assert.Equal(t, "INV-20240310-001", inv.Number)
	assert.True(t, inv.Total.Equal(dec("304")))

	rr = do(t, h, http.MethodPost, "/invoices/1/send", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = do(t, h, http.MethodPost, "/invoices/1/payments", `{"amount": "500"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = do(t, h, http.MethodPost, "/invoices/1/payments", `{"amount": "304", "method": "card"}`, IdempotencyHeader, "abc")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var paid paymentResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &paid))
	assert.Equal(t, StatusPaid, paid.Invoice.Status)

	rr = do(t, h, http.MethodPost, "/invoices/1/payments", `{"amount": "304", "method": "card"}`, IdempotencyHeader, "abc")
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = do(t, h, http.MethodPost, "/invoices/1/cancel", `{"reason": "oops"}`)
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestHandlerRejectsBadInput(t *testing.T) {
	h := newTestRouter(t)

	rr := do(t, h, http.MethodPost, "/invoices", `{"customer_id": 3, "items": []}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodPost, "/invoices", `{"customer_id": 3, "bogus": 1}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodGet, "/invoices/42", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, h, http.MethodGet, "/invoices/abc", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
