package invoicing

import (
	"context"
	"sort"
	"sync"
	"time"
)

// memoryRepo is a transactional in-memory invoice store. WithTx holds the
// lock for the whole transaction and restores the snapshot on failure.
type memoryRepo struct {
	mu       sync.Mutex
	invoices map[int64]Invoice
	nextID   int64
	nextPay  int64

	// taken makes Insert report these numbers as already used.
	taken map[string]bool
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{invoices: map[int64]Invoice{}, taken: map[string]bool{}}
}

func (r *memoryRepo) Get(_ context.Context, id int64) (Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invoices[id]
	if !ok {
		return Invoice{}, ErrNotFound
	}
	return inv, nil
}

func (r *memoryRepo) ListByWorkOrder(_ context.Context, workOrderID int64) ([]Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Invoice
	for _, inv := range r.invoices {
		if inv.WorkOrderID == workOrderID {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memoryRepo) ListOverdueCandidates(_ context.Context, asOf time.Time) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []int64
	for id, inv := range r.invoices {
		if inv.Status == StatusSent && inv.Balance.Sign() > 0 && inv.DueDate.Before(asOf) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	snapshot := make(map[int64]Invoice, len(r.invoices))
	for k, v := range r.invoices {
		snapshot[k] = v
	}
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.invoices = snapshot
		return err
	}
	return nil
}

type memoryTx struct {
	repo *memoryRepo
}

func (t *memoryTx) MaxSequence(_ context.Context, day time.Time) (int, error) {
	max := 0
	for _, inv := range t.repo.invoices {
		d, seq, err := ParseNumber(inv.Number)
		if err == nil && d.Equal(dateOnly(day)) && seq > max {
			max = seq
		}
	}
	return max, nil
}

func (t *memoryTx) Insert(_ context.Context, inv Invoice) (int64, error) {
	if t.repo.taken[inv.Number] {
		return 0, ErrNumberTaken
	}
	for _, existing := range t.repo.invoices {
		if existing.Number == inv.Number {
			return 0, ErrNumberTaken
		}
		if inv.WorkOrderID > 0 && existing.WorkOrderID == inv.WorkOrderID && existing.Status != StatusCancelled {
			return 0, ErrWorkOrderInvoiced
		}
	}
	t.repo.nextID++
	inv.ID = t.repo.nextID
	t.repo.invoices[inv.ID] = inv
	return inv.ID, nil
}

func (t *memoryTx) GetForUpdate(_ context.Context, id int64) (Invoice, error) {
	inv, ok := t.repo.invoices[id]
	if !ok {
		return Invoice{}, ErrNotFound
	}
	return inv, nil
}

func (t *memoryTx) Update(_ context.Context, inv Invoice) error {
	cur, ok := t.repo.invoices[inv.ID]
	if !ok {
		return ErrNotFound
	}
	inv.Payments = cur.Payments
	inv.Items = cur.Items
	t.repo.invoices[inv.ID] = inv
	return nil
}

func (t *memoryTx) ReplaceItems(_ context.Context, invoiceID int64, items []Item) error {
	inv, ok := t.repo.invoices[invoiceID]
	if !ok {
		return ErrNotFound
	}
	inv.Items = append([]Item(nil), items...)
	t.repo.invoices[invoiceID] = inv
	return nil
}

func (t *memoryTx) InsertPayment(_ context.Context, p Payment) (int64, error) {
	inv, ok := t.repo.invoices[p.InvoiceID]
	if !ok {
		return 0, ErrNotFound
	}
	t.repo.nextPay++
	p.ID = t.repo.nextPay
	inv.Payments = append(append([]Payment(nil), inv.Payments...), p)
	t.repo.invoices[p.InvoiceID] = inv
	return p.ID, nil
}
