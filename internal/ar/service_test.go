package ar

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRepo struct {
	open         []Receivable
	lastCustomer int64
}

func (s *stubRepo) Outstanding(_ context.Context, customerID int64) ([]Receivable, error) {
	s.lastCustomer = customerID
	if customerID == 0 {
		return s.open, nil
	}
	var out []Receivable
	for _, r := range s.open {
		if r.CustomerID == customerID {
			out = append(out, r)
		}
	}
	return out, nil
}

var asOf = time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func receivable(id, customer int64, currency, balance string, due time.Time) Receivable {
	return Receivable{InvoiceID: id, CustomerID: customer, Currency: currency, Balance: dec(balance), Total: dec(balance), DueDate: due, Status: "sent"}
}

func sampleOpen() []Receivable {
	return []Receivable{
		receivable(1, 10, "USD", "100", asOf.AddDate(0, 0, 5)),
		receivable(2, 10, "USD", "50.25", asOf.AddDate(0, 0, -1)),
		receivable(3, 11, "USD", "75", asOf.AddDate(0, 0, -45)),
		receivable(4, 11, "USD", "20", asOf.AddDate(0, 0, -90)),
		receivable(5, 12, "USD", "10", asOf.AddDate(0, 0, -91)),
		receivable(6, 12, "EUR", "40", asOf),
		receivable(7, 12, "USD", "0", asOf.AddDate(0, 0, -10)),
	}
}

func TestBuildAgingBuckets(t *testing.T) {
	report := BuildAging(sampleOpen(), asOf)

	usd := report.Buckets["USD"]
	assert.True(t, usd.Current.Equal(dec("100")))
	assert.True(t, usd.Bucket30.Equal(dec("50.25")))
	assert.True(t, usd.Bucket60.Equal(dec("75")))
	assert.True(t, usd.Bucket90.Equal(dec("20")))
	assert.True(t, usd.Bucket120.Equal(dec("10")))
	assert.True(t, usd.Total.Equal(dec("255.25")))

	eur := report.Buckets["EUR"]
	assert.True(t, eur.Current.Equal(dec("40")))
	assert.True(t, eur.Total.Equal(dec("40")))
}

func TestDaysPastDueIgnoresTimeOfDay(t *testing.T) {
	due := time.Date(2024, 6, 29, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, 1, DaysPastDue(due, asOf.Add(time.Minute)))
	assert.Equal(t, 0, DaysPastDue(asOf, asOf.Add(23*time.Hour)))
}

func TestCustomerStatement(t *testing.T) {
	repo := &stubRepo{open: sampleOpen()}
	svc := NewService(repo)

	st, err := svc.CustomerStatement(context.Background(), 11, asOf)
	require.NoError(t, err)
	assert.Equal(t, int64(11), repo.lastCustomer)
	require.Len(t, st.Invoices, 2)
	assert.Equal(t, 45, st.Invoices[0].DaysLate)
	assert.True(t, st.Balance["USD"].Equal(dec("95")))

	_, err = svc.CustomerStatement(context.Background(), 0, asOf)
	require.ErrorIs(t, err, ErrCustomerRequired)
}

func TestAgingDefaultsToNow(t *testing.T) {
	svc := NewService(&stubRepo{})
	svc.now = func() time.Time { return asOf }
	report, err := svc.Aging(context.Background(), time.Time{})
	require.NoError(t, err)
	assert.Equal(t, asOf, report.AsOf)
	assert.Empty(t, report.Buckets)
}

func TestHandlerRoutes(t *testing.T) {
	r := chi.NewRouter()
	r.Route("/receivables", NewHandler(nil, NewService(&stubRepo{open: sampleOpen()})).MountRoutes)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/receivables/aging?as_of=2024-06-30", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"days_over_90":"10"`)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/receivables/aging?as_of=june", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/receivables/customers/10/statement?as_of=2024-06-30", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"customer_id":10`)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/receivables/customers/x/statement", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
