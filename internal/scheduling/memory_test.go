package scheduling

import (
	"context"
	"sort"
	"sync"
	"time"
)

// memoryRepo mimics the Postgres repository, including the exclusion
// constraint on overlapping slot-holding rows.
type memoryRepo struct {
	mu     sync.Mutex
	txMu   sync.Mutex
	nextID int64
	rows   map[int64]Appointment

	// staleReads hides committed rows from in-transaction reads so the
	// storage guard is the only thing standing between two bookings.
	staleReads bool
}

func newMemoryRepo(seed ...Appointment) *memoryRepo {
	r := &memoryRepo{rows: map[int64]Appointment{}}
	for _, a := range seed {
		r.nextID++
		if a.ID == 0 {
			a.ID = r.nextID
		}
		r.rows[a.ID] = a
		if a.ID > r.nextID {
			r.nextID = a.ID
		}
	}
	return r
}

func (r *memoryRepo) Get(_ context.Context, id int64) (Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.rows[id]
	if !ok {
		return Appointment{}, ErrNotFound
	}
	return a, nil
}

func (r *memoryRepo) ListByResourceDay(_ context.Context, resourceID int64, day time.Time) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.list(resourceID, day), nil
}

func (r *memoryRepo) list(resourceID int64, day time.Time) []Appointment {
	out := make([]Appointment, 0)
	for _, a := range r.rows {
		if a.AssignedResourceID == resourceID && a.Day().Equal(DayOf(day)) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if !r.staleReads {
		r.txMu.Lock()
		defer r.txMu.Unlock()
	}
	r.mu.Lock()
	snapshot := make(map[int64]Appointment, len(r.rows))
	for k, v := range r.rows {
		snapshot[k] = v
	}
	r.mu.Unlock()

	tx := &memoryTx{repo: r}
	if err := fn(ctx, tx); err != nil {
		r.mu.Lock()
		for _, id := range tx.touched {
			if prev, ok := snapshot[id]; ok {
				r.rows[id] = prev
			} else {
				delete(r.rows, id)
			}
		}
		r.mu.Unlock()
		return err
	}
	return nil
}

type memoryTx struct {
	repo    *memoryRepo
	touched []int64
}

func (t *memoryTx) LockResourceDay(context.Context, int64, time.Time) error { return nil }

func (t *memoryTx) ListByResourceDay(ctx context.Context, resourceID int64, day time.Time) ([]Appointment, error) {
	if t.repo.staleReads {
		return []Appointment{}, nil
	}
	return t.repo.ListByResourceDay(ctx, resourceID, day)
}

func (t *memoryTx) GetForUpdate(ctx context.Context, id int64) (Appointment, error) {
	return t.repo.Get(ctx, id)
}

func (t *memoryTx) Insert(_ context.Context, a Appointment) (int64, error) {
	r := t.repo
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.violates(a) {
		return 0, ErrSlotTaken
	}
	r.nextID++
	a.ID = r.nextID
	r.rows[a.ID] = a
	t.touched = append(t.touched, a.ID)
	return a.ID, nil
}

func (t *memoryTx) Update(_ context.Context, a Appointment) error {
	r := t.repo
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[a.ID]; !ok {
		return ErrNotFound
	}
	if r.violates(a) {
		return ErrSlotTaken
	}
	r.rows[a.ID] = a
	t.touched = append(t.touched, a.ID)
	return nil
}

func (r *memoryRepo) violates(a Appointment) bool {
	if !a.Status.HoldsSlot() {
		return false
	}
	return len(FindConflicts(a, r.list(a.AssignedResourceID, a.Day()))) > 0
}
