package billing

import (
	"context"
	"sync"

	"github.com/torqueworks/torqueworks/internal/invoicing"
	"github.com/torqueworks/torqueworks/internal/workorders"
)

type fakeOrders struct {
	mu       sync.Mutex
	orders   map[int64]workorders.WorkOrder
	linkErr  error
	links    int
	relinked int
}

func (f *fakeOrders) Get(_ context.Context, id int64) (workorders.WorkOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return workorders.WorkOrder{}, workorders.ErrNotFound
	}
	return o, nil
}

func (f *fakeOrders) MarkInvoiced(_ context.Context, id, invoiceID, _ int64) (workorders.WorkOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.linkErr != nil {
		return workorders.WorkOrder{}, f.linkErr
	}
	o := f.orders[id]
	next, err := workorders.Transition(o, workorders.StatusInvoiced, "", 0, issueDay)
	if err != nil {
		return workorders.WorkOrder{}, err
	}
	next.InvoiceID = invoiceID
	f.orders[id] = next
	f.links++
	return next, nil
}

func (f *fakeOrders) RelinkInvoice(_ context.Context, id, invoiceID, _ int64) (workorders.WorkOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o := f.orders[id]
	o.InvoiceID = invoiceID
	f.orders[id] = o
	f.relinked++
	return o, nil
}

// fakeInvoices enforces one live invoice per work order like the database's
// partial unique index.
type fakeInvoices struct {
	mu        sync.Mutex
	invoices  []invoicing.Invoice
	insertErr error
}

func (f *fakeInvoices) Terms() invoicing.Terms { return shopTerms() }

func (f *fakeInvoices) ListByWorkOrder(_ context.Context, workOrderID int64) ([]invoicing.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []invoicing.Invoice
	for _, inv := range f.invoices {
		if inv.WorkOrderID == workOrderID {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (f *fakeInvoices) Create(_ context.Context, draft invoicing.Invoice, _ int64) (invoicing.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.insert(draft)
}

func (f *fakeInvoices) insert(draft invoicing.Invoice) (invoicing.Invoice, error) {
	if f.insertErr != nil {
		return invoicing.Invoice{}, f.insertErr
	}
	for _, inv := range f.invoices {
		if inv.WorkOrderID == draft.WorkOrderID && inv.Status != invoicing.StatusCancelled {
			return invoicing.Invoice{}, invoicing.ErrWorkOrderInvoiced
		}
	}
	draft.ID = int64(len(f.invoices) + 1)
	draft.Number = invoicing.FormatNumber(draft.IssueDate, int(draft.ID))
	f.invoices = append(f.invoices, draft)
	return draft, nil
}

// Replace mirrors the invoice service: the cancellations only stick when the
// new invoice is stored.
func (f *fakeInvoices) Replace(_ context.Context, ids []int64, draft invoicing.Invoice, _ int64, _ string) (invoicing.Invoice, []invoicing.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snapshot := append([]invoicing.Invoice(nil), f.invoices...)
	var cancelled []invoicing.Invoice
	for _, id := range ids {
		i := int(id) - 1
		if i < 0 || i >= len(f.invoices) {
			f.invoices = snapshot
			return invoicing.Invoice{}, nil, invoicing.ErrNotFound
		}
		next, err := invoicing.Cancel(f.invoices[i], issueDay)
		if err != nil {
			f.invoices = snapshot
			return invoicing.Invoice{}, nil, err
		}
		f.invoices[i] = next
		cancelled = append(cancelled, next)
	}
	inv, err := f.insert(draft)
	if err != nil {
		f.invoices = snapshot
		return invoicing.Invoice{}, nil, err
	}
	return inv, cancelled, nil
}

func (f *fakeInvoices) live() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, inv := range f.invoices {
		if inv.Status != invoicing.StatusCancelled {
			n++
		}
	}
	return n
}
