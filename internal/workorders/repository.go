package workorders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/torqueworks/torqueworks/internal/platform/db"
	"github.com/torqueworks/torqueworks/internal/scheduling"
)

// Repository defines work order persistence.
type Repository interface {
	Get(ctx context.Context, id int64) (WorkOrder, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes transactional write operations.
type TxRepository interface {
	// Appointments shares the transaction with the scheduling queries.
	Appointments() scheduling.TxRepository
	NextNumber(ctx context.Context, day time.Time) (string, error)
	Insert(ctx context.Context, order WorkOrder) (int64, error)
	GetForUpdate(ctx context.Context, id int64) (WorkOrder, error)
	// UpdateStatus persists the lifecycle fields only if the stored status is
	// still from.
	UpdateStatus(ctx context.Context, order WorkOrder, from Status) error
	UpdateServices(ctx context.Context, order WorkOrder) error
	InsertNote(ctx context.Context, orderID int64, note Note) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a Postgres-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository binds work order queries to a transaction opened elsewhere.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

// WithTx runs fn in a read-committed transaction; rows are guarded with
// FOR UPDATE and status compare-and-set.
func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithReadCommitted(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const workOrderColumns = `
	id, number, customer_id, customer_name, vehicle_id, vehicle, appointment_id,
	services, technician_id, status, priority, payment_terms_days, invoice_id,
	started_at, completed_at, created_by, created_at, updated_at`

func (r *repository) Get(ctx context.Context, id int64) (WorkOrder, error) {
	order, err := scanWorkOrder(r.pool.QueryRow(ctx, `SELECT `+workOrderColumns+` FROM work_orders WHERE id = $1`, id))
	if err != nil {
		return WorkOrder{}, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, created_at, COALESCE(actor_id, 0), COALESCE(from_status, ''), to_status, body
		FROM work_order_notes
		WHERE work_order_id = $1
		ORDER BY created_at, id`, id)
	if err != nil {
		return WorkOrder{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			n        Note
			from, to string
		)
		if err := rows.Scan(&n.ID, &n.At, &n.ActorID, &from, &to, &n.Text); err != nil {
			return WorkOrder{}, err
		}
		n.From, n.To = Status(from), Status(to)
		order.Notes = append(order.Notes, n)
	}
	return order, rows.Err()
}

func scanWorkOrder(row pgx.Row) (WorkOrder, error) {
	var (
		o                 WorkOrder
		vehicleID, apptID *int64
		techID, invoiceID *int64
		createdBy         *int64
		terms             *int32
		vehicle, services []byte
		status, priority  string
	)
	err := row.Scan(
		&o.ID, &o.Number, &o.CustomerID, &o.CustomerName, &vehicleID, &vehicle, &apptID,
		&services, &techID, &status, &priority, &terms, &invoiceID,
		&o.StartedAt, &o.CompletedAt, &createdBy, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return WorkOrder{}, ErrNotFound
		}
		return WorkOrder{}, err
	}
	o.VehicleID = deref(vehicleID)
	o.AppointmentID = deref(apptID)
	o.TechnicianID = deref(techID)
	o.InvoiceID = deref(invoiceID)
	o.CreatedBy = deref(createdBy)
	o.Status = Status(status)
	o.Priority = Priority(priority)
	if terms != nil {
		days := int(*terms)
		o.PaymentTermsDays = &days
	}
	if len(vehicle) > 0 {
		if err := json.Unmarshal(vehicle, &o.Vehicle); err != nil {
			return WorkOrder{}, fmt.Errorf("decode vehicle: %w", err)
		}
	}
	if len(services) > 0 {
		if err := json.Unmarshal(services, &o.Services); err != nil {
			return WorkOrder{}, fmt.Errorf("decode services: %w", err)
		}
	}
	return o, nil
}

func deref(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}

func nullable(id int64) *int64 {
	if id <= 0 {
		return nil
	}
	return &id
}
