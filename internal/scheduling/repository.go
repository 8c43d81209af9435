package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/torqueworks/torqueworks/internal/platform/db"
	"github.com/torqueworks/torqueworks/internal/shared"
)

// Repository defines appointment persistence.
type Repository interface {
	Get(ctx context.Context, id int64) (Appointment, error)
	ListByResourceDay(ctx context.Context, resourceID int64, day time.Time) ([]Appointment, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	// LockResourceDay serializes writers booking the same technician-day.
	LockResourceDay(ctx context.Context, resourceID int64, day time.Time) error
	ListByResourceDay(ctx context.Context, resourceID int64, day time.Time) ([]Appointment, error)
	GetForUpdate(ctx context.Context, id int64) (Appointment, error)
	Insert(ctx context.Context, appt Appointment) (int64, error)
	Update(ctx context.Context, appt Appointment) error
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

// NewTxRepository binds appointment queries to a transaction opened by another
// package, so appointment changes commit together with that package's writes.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

const appointmentColumns = `
	id, customer_id, vehicle_id, assigned_resource_id, service_description,
	scheduled_date, scheduled_minute, duration_minutes, status,
	estimated_parts, estimated_labor, estimated_total,
	actual_parts, actual_labor, actual_total,
	parts_required, notes, created_by, created_at, updated_at`

// WithTx runs fn in a read-committed transaction. The advisory lock taken by
// LockResourceDay must be followed by fresh reads, which a repeatable-read
// snapshot would not give.
func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithReadCommitted(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *repository) Get(ctx context.Context, id int64) (Appointment, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id)
	return scanAppointment(row)
}

func (r *repository) ListByResourceDay(ctx context.Context, resourceID int64, day time.Time) ([]Appointment, error) {
	return listByResourceDay(ctx, r.pool, resourceID, day)
}

func (t *txRepository) LockResourceDay(ctx context.Context, resourceID int64, day time.Time) error {
	return db.AdvisoryXactLock(ctx, t.tx, shared.SlotLockKey(resourceID, day.Format("2006-01-02")))
}

func (t *txRepository) ListByResourceDay(ctx context.Context, resourceID int64, day time.Time) ([]Appointment, error) {
	return listByResourceDay(ctx, t.tx, resourceID, day)
}

func (t *txRepository) GetForUpdate(ctx context.Context, id int64) (Appointment, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1 FOR UPDATE`, id)
	return scanAppointment(row)
}

func (t *txRepository) Insert(ctx context.Context, a Appointment) (int64, error) {
	parts, err := json.Marshal(a.PartsRequired)
	if err != nil {
		return 0, err
	}
	var id int64
	err = t.tx.QueryRow(ctx, `
		INSERT INTO appointments (
			customer_id, vehicle_id, assigned_resource_id, service_description,
			scheduled_date, scheduled_minute, duration_minutes, status,
			estimated_parts, estimated_labor, estimated_total,
			actual_parts, actual_labor, actual_total,
			parts_required, notes, created_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		RETURNING id`,
		a.CustomerID, nullableID(a.VehicleID), a.AssignedResourceID, a.ServiceDescription,
		a.ScheduledDate, a.ScheduledTime.Minutes(), a.EstimatedDurationMinutes, string(a.Status),
		a.EstimatedCost.Parts, a.EstimatedCost.Labor, a.EstimatedCost.Total,
		a.ActualCost.Parts, a.ActualCost.Labor, a.ActualCost.Total,
		string(parts), a.Notes, nullableID(a.CreatedBy), a.CreatedAt, a.UpdatedAt,
	).Scan(&id)
	if err != nil {
		return 0, translate(err)
	}
	return id, nil
}

func (t *txRepository) Update(ctx context.Context, a Appointment) error {
	parts, err := json.Marshal(a.PartsRequired)
	if err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx, `
		UPDATE appointments SET
			assigned_resource_id = $2, scheduled_date = $3, scheduled_minute = $4,
			duration_minutes = $5, status = $6,
			estimated_parts = $7, estimated_labor = $8, estimated_total = $9,
			actual_parts = $10, actual_labor = $11, actual_total = $12,
			parts_required = $13, notes = $14, updated_at = $15
		WHERE id = $1`,
		a.ID, a.AssignedResourceID, a.ScheduledDate, a.ScheduledTime.Minutes(),
		a.EstimatedDurationMinutes, string(a.Status),
		a.EstimatedCost.Parts, a.EstimatedCost.Labor, a.EstimatedCost.Total,
		a.ActualCost.Parts, a.ActualCost.Labor, a.ActualCost.Total,
		string(parts), a.Notes, a.UpdatedAt,
	)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func listByResourceDay(ctx context.Context, q querier, resourceID int64, day time.Time) ([]Appointment, error) {
	rows, err := q.Query(ctx, `SELECT `+appointmentColumns+`
		FROM appointments
		WHERE assigned_resource_id = $1 AND scheduled_date = $2
		ORDER BY scheduled_minute, id`, resourceID, DayOf(day))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Appointment, 0)
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAppointment(row pgx.Row) (Appointment, error) {
	var (
		a         Appointment
		vehicleID *int64
		createdBy *int64
		minute    int
		status    string
		parts     []byte
	)
	err := row.Scan(
		&a.ID, &a.CustomerID, &vehicleID, &a.AssignedResourceID, &a.ServiceDescription,
		&a.ScheduledDate, &minute, &a.EstimatedDurationMinutes, &status,
		&a.EstimatedCost.Parts, &a.EstimatedCost.Labor, &a.EstimatedCost.Total,
		&a.ActualCost.Parts, &a.ActualCost.Labor, &a.ActualCost.Total,
		&parts, &a.Notes, &createdBy, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Appointment{}, ErrNotFound
		}
		return Appointment{}, err
	}
	if vehicleID != nil {
		a.VehicleID = *vehicleID
	}
	if createdBy != nil {
		a.CreatedBy = *createdBy
	}
	a.ScheduledTime = ClockTime(minute)
	a.Status = Status(status)
	if len(parts) > 0 {
		if err := json.Unmarshal(parts, &a.PartsRequired); err != nil {
			return Appointment{}, fmt.Errorf("decode parts_required: %w", err)
		}
	}
	return a, nil
}

func translate(err error) error {
	if db.IsExclusionViolation(err) {
		return fmt.Errorf("%w: %v", ErrSlotTaken, err)
	}
	return err
}

func nullableID(id int64) *int64 {
	if id <= 0 {
		return nil
	}
	return &id
}
