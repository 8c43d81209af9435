package billing

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/torqueworks/torqueworks/internal/events"
	"github.com/torqueworks/torqueworks/internal/invoicing"
	"github.com/torqueworks/torqueworks/internal/shared"
	"github.com/torqueworks/torqueworks/internal/workorders"
)

func newPipeline(orders ...workorders.WorkOrder) (*Pipeline, *fakeOrders, *fakeInvoices) {
	fo := &fakeOrders{orders: map[int64]workorders.WorkOrder{}}
	for _, o := range orders {
		fo.orders[o.ID] = o
	}
	fi := &fakeInvoices{}
	p := NewPipeline(fo, fi, slog.New(slog.NewTextHandler(io.Discard, nil)))
	p.now = func() time.Time { return issueDay }
	return p, fo, fi
}

func TestGenerateFromWorkOrder(t *testing.T) {
	p, fo, fi := newPipeline(brakeOrder())

	res, err := p.GenerateFromWorkOrder(context.Background(), 21, Options{ActorID: 2})
	require.NoError(t, err)
	assert.Equal(t, "INV-20250110-001", res.Invoice.Number)
	assert.True(t, res.Invoice.Total.Equal(dec("270")))
	assert.Equal(t, workorders.StatusInvoiced, res.WorkOrder.Status)
	assert.Equal(t, res.Invoice.ID, fo.orders[21].InvoiceID)
	assert.Equal(t, 1, fi.live())
}

func TestGenerateTwiceFailsWithDuplicate(t *testing.T) {
	p, _, fi := newPipeline(brakeOrder())
	ctx := context.Background()

	_, err := p.GenerateFromWorkOrder(ctx, 21, Options{})
	require.NoError(t, err)

	_, err = p.GenerateFromWorkOrder(ctx, 21, Options{})
	require.ErrorIs(t, err, ErrInvoiceExists)
	require.ErrorIs(t, err, shared.ErrConflict)
	var cerr *shared.ConflictError
	require.ErrorAs(t, err, &cerr)
	assert.Len(t, fi.invoices, 1)
}

func TestGenerateRequiresCompletedOrder(t *testing.T) {
	order := brakeOrder()
	order.Status = workorders.StatusInProgress
	p, _, fi := newPipeline(order)

	_, err := p.GenerateFromWorkOrder(context.Background(), 21, Options{})
	require.ErrorIs(t, err, shared.ErrIllegalTransition)
	assert.Empty(t, fi.invoices)

	_, err = p.GenerateFromWorkOrder(context.Background(), 99, Options{})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestGenerateReplaceCancelsUnpaidInvoice(t *testing.T) {
	p, fo, fi := newPipeline(brakeOrder())
	ctx := context.Background()

	first, err := p.GenerateFromWorkOrder(ctx, 21, Options{})
	require.NoError(t, err)

	second, err := p.GenerateFromWorkOrder(ctx, 21, Options{Replace: true})
	require.NoError(t, err)
	assert.Equal(t, []string{first.Invoice.Number}, second.Replaced)
	assert.NotEqual(t, first.Invoice.ID, second.Invoice.ID)
	assert.Equal(t, 1, fi.live())
	assert.Equal(t, invoicing.StatusCancelled, fi.invoices[0].Status)
	assert.Equal(t, second.Invoice.ID, fo.orders[21].InvoiceID)
	assert.Equal(t, 1, fo.relinked)
}

func TestGenerateReplaceKeepsOldInvoiceWhenInsertFails(t *testing.T) {
	p, fo, fi := newPipeline(brakeOrder())
	ctx := context.Background()

	first, err := p.GenerateFromWorkOrder(ctx, 21, Options{})
	require.NoError(t, err)

	fi.insertErr = errors.New("db down")
	_, err = p.GenerateFromWorkOrder(ctx, 21, Options{Replace: true})
	require.Error(t, err)

	assert.Equal(t, 1, fi.live())
	assert.Equal(t, invoicing.StatusDraft, fi.invoices[0].Status)
	assert.Equal(t, workorders.StatusInvoiced, fo.orders[21].Status)
	assert.Equal(t, first.Invoice.ID, fo.orders[21].InvoiceID)
	assert.Zero(t, fo.relinked)
}

func TestGenerateReplaceRefusesPaidInvoice(t *testing.T) {
	p, _, fi := newPipeline(brakeOrder())
	ctx := context.Background()

	_, err := p.GenerateFromWorkOrder(ctx, 21, Options{})
	require.NoError(t, err)
	fi.invoices[0].PaidAmount = dec("50")

	_, err = p.GenerateFromWorkOrder(ctx, 21, Options{Replace: true})
	require.ErrorIs(t, err, shared.ErrIllegalTransition)
	assert.Len(t, fi.invoices, 1)
	assert.Equal(t, invoicing.StatusDraft, fi.invoices[0].Status)
}

func TestGenerateRepairsUnlinkedOrder(t *testing.T) {
	p, fo, fi := newPipeline(brakeOrder())
	ctx := context.Background()
	fo.linkErr = errors.New("db down")

	res, err := p.GenerateFromWorkOrder(ctx, 21, Options{})
	require.Error(t, err)
	assert.NotZero(t, res.Invoice.ID)
	assert.Equal(t, workorders.StatusCompleted, fo.orders[21].Status)

	fo.linkErr = nil
	_, err = p.GenerateFromWorkOrder(ctx, 21, Options{})
	require.ErrorIs(t, err, ErrInvoiceExists)
	assert.Equal(t, workorders.StatusInvoiced, fo.orders[21].Status)
	assert.Equal(t, res.Invoice.ID, fo.orders[21].InvoiceID)
	assert.Len(t, fi.invoices, 1)
}

func TestHandleWorkOrderCompletedIsIdempotent(t *testing.T) {
	p, _, fi := newPipeline(brakeOrder())
	ctx := context.Background()
	evt := events.New(events.KindWorkOrderCompleted, 21, "", issueDay)

	require.NoError(t, p.HandleWorkOrderCompleted(ctx, evt))
	require.NoError(t, p.HandleWorkOrderCompleted(ctx, evt))
	assert.Len(t, fi.invoices, 1)

	require.NoError(t, p.HandleWorkOrderCompleted(ctx, events.New(events.KindInvoiceSent, 21, "", issueDay)))
}

func TestHandlerGenerate(t *testing.T) {
	p, _, _ := newPipeline(brakeOrder())
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), p)
	r := chi.NewRouter()
	r.Route("/work-orders", h.MountRoutes)

	call := func(method, path string) *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(method, path, nil))
		return rr
	}

	rr := call(http.MethodPost, "/work-orders/21/invoice")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = call(http.MethodPost, "/work-orders/21/invoice")
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = call(http.MethodPost, "/work-orders/21/invoice?replace=yes")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = call(http.MethodPost, "/work-orders/21/invoice?replace=true")
	assert.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = call(http.MethodGet, "/work-orders/21/invoices")
	assert.Equal(t, http.StatusOK, rr.Code)
}
