package workorders

import (
	"context"
	"sync"
	"time"

	"github.com/torqueworks/torqueworks/internal/scheduling"
)

// memoryRepo is a transactional in-memory store for work orders and the
// appointments they are created from. A failing transaction restores both.
type memoryRepo struct {
	mu           sync.Mutex
	orders       map[int64]WorkOrder
	appointments map[int64]scheduling.Appointment
	seq          int64

	failInsert error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		orders:       map[int64]WorkOrder{},
		appointments: map[int64]scheduling.Appointment{},
	}
}

func (r *memoryRepo) Get(_ context.Context, id int64) (WorkOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return WorkOrder{}, ErrNotFound
	}
	return o, nil
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	orders := make(map[int64]WorkOrder, len(r.orders))
	for k, v := range r.orders {
		orders[k] = v
	}
	appts := make(map[int64]scheduling.Appointment, len(r.appointments))
	for k, v := range r.appointments {
		appts[k] = v
	}
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.orders = orders
		r.appointments = appts
		return err
	}
	return nil
}

// memoryTx runs with repo.mu held by WithTx.
type memoryTx struct {
	repo *memoryRepo
}

func (t *memoryTx) Appointments() scheduling.TxRepository { return &memoryAppointments{repo: t.repo} }

func (t *memoryTx) NextNumber(_ context.Context, day time.Time) (string, error) {
	t.repo.seq++
	return FormatNumber(day, t.repo.seq), nil
}

func (t *memoryTx) Insert(_ context.Context, o WorkOrder) (int64, error) {
	if t.repo.failInsert != nil {
		return 0, t.repo.failInsert
	}
	o.ID = int64(len(t.repo.orders) + 1)
	o.Notes = nil
	t.repo.orders[o.ID] = o
	return o.ID, nil
}

func (t *memoryTx) GetForUpdate(_ context.Context, id int64) (WorkOrder, error) {
	o, ok := t.repo.orders[id]
	if !ok {
		return WorkOrder{}, ErrNotFound
	}
	return o, nil
}

func (t *memoryTx) UpdateStatus(_ context.Context, o WorkOrder, from Status) error {
	cur, ok := t.repo.orders[o.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Status != from {
		return ErrStaleStatus
	}
	cur.Status = o.Status
	cur.StartedAt = o.StartedAt
	cur.CompletedAt = o.CompletedAt
	cur.InvoiceID = o.InvoiceID
	cur.UpdatedAt = o.UpdatedAt
	t.repo.orders[o.ID] = cur
	return nil
}

func (t *memoryTx) UpdateServices(_ context.Context, o WorkOrder) error {
	cur, ok := t.repo.orders[o.ID]
	if !ok {
		return ErrNotFound
	}
	cur.Services = o.Services
	cur.UpdatedAt = o.UpdatedAt
	t.repo.orders[o.ID] = cur
	return nil
}

func (t *memoryTx) InsertNote(_ context.Context, orderID int64, n Note) error {
	cur, ok := t.repo.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	cur.Notes = append(append([]Note(nil), cur.Notes...), n)
	t.repo.orders[orderID] = cur
	return nil
}

type memoryAppointments struct {
	repo *memoryRepo
}

func (m *memoryAppointments) LockResourceDay(context.Context, int64, time.Time) error { return nil }

func (m *memoryAppointments) ListByResourceDay(_ context.Context, resourceID int64, day time.Time) ([]scheduling.Appointment, error) {
	out := []scheduling.Appointment{}
	for _, a := range m.repo.appointments {
		if a.AssignedResourceID == resourceID && a.Day().Equal(scheduling.DayOf(day)) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memoryAppointments) GetForUpdate(_ context.Context, id int64) (scheduling.Appointment, error) {
	a, ok := m.repo.appointments[id]
	if !ok {
		return scheduling.Appointment{}, scheduling.ErrNotFound
	}
	return a, nil
}

func (m *memoryAppointments) Insert(_ context.Context, a scheduling.Appointment) (int64, error) {
	a.ID = int64(len(m.repo.appointments) + 1)
	m.repo.appointments[a.ID] = a
	return a.ID, nil
}

func (m *memoryAppointments) Update(_ context.Context, a scheduling.Appointment) error {
	if _, ok := m.repo.appointments[a.ID]; !ok {
		return scheduling.ErrNotFound
	}
	m.repo.appointments[a.ID] = a
	return nil
}

type stubDirectory struct {
	customers map[int64]Customer
	vehicles  map[int64]VehicleSnapshot
}

func (d stubDirectory) Customer(_ context.Context, id int64) (Customer, error) {
	c, ok := d.customers[id]
	if !ok {
		return Customer{}, ErrCustomerNotFound
	}
	return c, nil
}

func (d stubDirectory) Vehicle(_ context.Context, _, vehicleID int64) (VehicleSnapshot, error) {
	v, ok := d.vehicles[vehicleID]
	if !ok {
		return VehicleSnapshot{}, ErrVehicleNotFound
	}
	return v, nil
}

type stubCatalog struct {
	services map[string]CatalogService
	parts    map[string]CatalogPart
}

func (c stubCatalog) Service(_ context.Context, ref string) (CatalogService, error) {
	s, ok := c.services[ref]
	if !ok {
		return CatalogService{}, ErrCatalogNotFound
	}
	return s, nil
}

func (c stubCatalog) Part(_ context.Context, partNumber string) (CatalogPart, error) {
	p, ok := c.parts[partNumber]
	if !ok {
		return CatalogPart{}, ErrCatalogNotFound
	}
	return p, nil
}
