package workorders

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/torqueworks/torqueworks/internal/scheduling"
)

// Appointments returns appointment queries bound to the same transaction.
func (t *txRepository) Appointments() scheduling.TxRepository {
	return scheduling.NewTxRepository(t.tx)
}

// NextNumber draws from work_order_number_seq, so numbers are never reused
// even when the surrounding transaction rolls back.
func (t *txRepository) NextNumber(ctx context.Context, day time.Time) (string, error) {
	var seq int64
	if err := t.tx.QueryRow(ctx, `SELECT nextval('work_order_number_seq')`).Scan(&seq); err != nil {
		return "", err
	}
	return FormatNumber(day, seq), nil
}

// Insert creates the work order row.
func (t *txRepository) Insert(ctx context.Context, o WorkOrder) (int64, error) {
	vehicle, err := json.Marshal(o.Vehicle)
	if err != nil {
		return 0, err
	}
	services, err := json.Marshal(o.Services)
	if err != nil {
		return 0, err
	}
	var id int64
	err = t.tx.QueryRow(ctx, `
		INSERT INTO work_orders (
			number, customer_id, customer_name, vehicle_id, vehicle, appointment_id,
			services, technician_id, status, priority, payment_terms_days, invoice_id,
			started_at, completed_at, created_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING id`,
		o.Number, o.CustomerID, o.CustomerName, nullable(o.VehicleID), string(vehicle), nullable(o.AppointmentID),
		string(services), nullable(o.TechnicianID), string(o.Status), string(o.Priority), o.PaymentTermsDays, nullable(o.InvoiceID),
		o.StartedAt, o.CompletedAt, nullable(o.CreatedBy), o.CreatedAt, o.UpdatedAt,
	).Scan(&id)
	return id, err
}

// GetForUpdate loads and row-locks a work order.
func (t *txRepository) GetForUpdate(ctx context.Context, id int64) (WorkOrder, error) {
	return scanWorkOrder(t.tx.QueryRow(ctx, `SELECT `+workOrderColumns+` FROM work_orders WHERE id = $1 FOR UPDATE`, id))
}

// UpdateStatus writes status, timestamps and the invoice link.
func (t *txRepository) UpdateStatus(ctx context.Context, o WorkOrder, from Status) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE work_orders
		SET status = $3, started_at = $4, completed_at = $5, invoice_id = $6, updated_at = $7
		WHERE id = $1 AND status = $2`,
		o.ID, string(from), string(o.Status), o.StartedAt, o.CompletedAt, nullable(o.InvoiceID), o.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: expected %s", ErrStaleStatus, from)
	}
	return nil
}

// UpdateServices rewrites the service lines.
func (t *txRepository) UpdateServices(ctx context.Context, o WorkOrder) error {
	services, err := json.Marshal(o.Services)
	if err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx, `UPDATE work_orders SET services = $2, updated_at = $3 WHERE id = $1`,
		o.ID, string(services), o.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertNote appends an audit note.
func (t *txRepository) InsertNote(ctx context.Context, orderID int64, n Note) error {
	var from *string
	if n.From != "" {
		f := string(n.From)
		from = &f
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO work_order_notes (work_order_id, actor_id, from_status, to_status, body, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		orderID, nullable(n.ActorID), from, string(n.To), n.Text, n.At,
	)
	return err
}
