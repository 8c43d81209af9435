package invoicing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/torqueworks/torqueworks/internal/platform/db"
)

// Constraint names from the invoices migration.
const (
	constraintNumber        = "invoices_number_key"
	constraintLiveWorkOrder = "invoices_work_order_live_idx"
)

// Repository defines invoice persistence.
type Repository interface {
	Get(ctx context.Context, id int64) (Invoice, error)
	ListByWorkOrder(ctx context.Context, workOrderID int64) ([]Invoice, error)
	// ListOverdueCandidates returns ids of sent invoices due before asOf.
	ListOverdueCandidates(ctx context.Context, asOf time.Time) ([]int64, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	SequenceSource
	// Insert stores the invoice with its items. A duplicate number yields
	// ErrNumberTaken and leaves the transaction usable for another attempt.
	Insert(ctx context.Context, inv Invoice) (int64, error)
	GetForUpdate(ctx context.Context, id int64) (Invoice, error)
	// Update writes header and derived amounts.
	Update(ctx context.Context, inv Invoice) error
	ReplaceItems(ctx context.Context, invoiceID int64, items []Item) error
	InsertPayment(ctx context.Context, p Payment) (int64, error)
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

type queryer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// WithTx runs fn in a read-committed transaction; invoices are row-locked by
// GetForUpdate.
func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithReadCommitted(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const invoiceColumns = `
	id, number, customer_id, work_order_id, appointment_id, currency,
	subtotal, tax_rate, tax_amount, discount_type, discount_value, discount_amount,
	total, paid_amount, balance, status, issue_date, due_date, paid_date, notes,
	created_by, created_at, updated_at`

func (r *repository) Get(ctx context.Context, id int64) (Invoice, error) {
	return loadInvoice(ctx, r.pool, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id)
}

func (r *repository) ListByWorkOrder(ctx context.Context, workOrderID int64) ([]Invoice, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM invoices WHERE work_order_id = $1 ORDER BY id`, workOrderID)
	if err != nil {
		return nil, err
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, err
	}
	out := make([]Invoice, 0, len(ids))
	for _, id := range ids {
		inv, err := r.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, nil
}

func (r *repository) ListOverdueCandidates(ctx context.Context, asOf time.Time) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id FROM invoices
		WHERE status = 'sent' AND balance > 0 AND due_date < $1
		ORDER BY due_date, id`, asOf)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

func (t *txRepository) MaxSequence(ctx context.Context, day time.Time) (int, error) {
	rows, err := t.tx.Query(ctx, `SELECT number FROM invoices WHERE number LIKE $1`, numberPrefix+day.Format("20060102")+"-%")
	if err != nil {
		return 0, err
	}
	numbers, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return 0, err
	}
	max := 0
	for _, n := range numbers {
		if _, seq, err := ParseNumber(n); err == nil && seq > max {
			max = seq
		}
	}
	return max, nil
}

func (t *txRepository) Insert(ctx context.Context, inv Invoice) (int64, error) {
	sp, err := t.tx.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = sp.Rollback(ctx) }()

	var id int64
	err = sp.QueryRow(ctx, `
		INSERT INTO invoices (
			number, customer_id, work_order_id, appointment_id, currency,
			subtotal, tax_rate, tax_amount, discount_type, discount_value, discount_amount,
			total, paid_amount, balance, status, issue_date, due_date, paid_date, notes,
			created_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
		RETURNING id`,
		inv.Number, inv.CustomerID, nullable(inv.WorkOrderID), nullable(inv.AppointmentID), inv.Currency,
		inv.Subtotal, inv.TaxRate, inv.TaxAmount, string(inv.DiscountType), inv.DiscountValue, inv.DiscountAmount,
		inv.Total, inv.PaidAmount, inv.Balance, string(inv.Status), inv.IssueDate, inv.DueDate, inv.PaidDate, inv.Notes,
		nullable(inv.CreatedBy), inv.CreatedAt, inv.UpdatedAt,
	).Scan(&id)
	if err != nil {
		switch {
		case db.IsUniqueViolation(err, constraintNumber):
			return 0, fmt.Errorf("%w: %s", ErrNumberTaken, inv.Number)
		case db.IsUniqueViolation(err, constraintLiveWorkOrder):
			return 0, ErrWorkOrderInvoiced
		}
		return 0, err
	}
	if err := insertItems(ctx, sp, id, inv.Items); err != nil {
		return 0, err
	}
	if err := sp.Commit(ctx); err != nil {
		return 0, err
	}
	return id, nil
}

func (t *txRepository) GetForUpdate(ctx context.Context, id int64) (Invoice, error) {
	return loadInvoice(ctx, t.tx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1 FOR UPDATE`, id)
}

func (t *txRepository) Update(ctx context.Context, inv Invoice) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE invoices SET
			subtotal = $2, tax_rate = $3, tax_amount = $4, discount_type = $5, discount_value = $6,
			discount_amount = $7, total = $8, paid_amount = $9, balance = $10, status = $11,
			due_date = $12, paid_date = $13, notes = $14, updated_at = $15
		WHERE id = $1`,
		inv.ID, inv.Subtotal, inv.TaxRate, inv.TaxAmount, string(inv.DiscountType), inv.DiscountValue,
		inv.DiscountAmount, inv.Total, inv.PaidAmount, inv.Balance, string(inv.Status),
		inv.DueDate, inv.PaidDate, inv.Notes, inv.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepository) ReplaceItems(ctx context.Context, invoiceID int64, items []Item) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM invoice_items WHERE invoice_id = $1`, invoiceID); err != nil {
		return err
	}
	return insertItems(ctx, t.tx, invoiceID, items)
}

func (t *txRepository) InsertPayment(ctx context.Context, p Payment) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO invoice_payments (invoice_id, amount, method, reference, received_at, recorded_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		p.InvoiceID, p.Amount, p.Method, p.Reference, p.ReceivedAt, nullable(p.RecordedBy),
	).Scan(&id)
	return id, err
}

func insertItems(ctx context.Context, tx pgx.Tx, invoiceID int64, items []Item) error {
	if len(items) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for i, item := range items {
		meta, err := json.Marshal(item.Metadata)
		if err != nil {
			return err
		}
		batch.Queue(`
			INSERT INTO invoice_items (invoice_id, line_no, type, description, quantity, unit_price, total_price, metadata)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			invoiceID, i+1, string(item.Type), item.Description, item.Quantity, item.UnitPrice, item.TotalPrice, string(meta))
	}
	return tx.SendBatch(ctx, batch).Close()
}

func loadInvoice(ctx context.Context, q queryer, sql string, id int64) (Invoice, error) {
	inv, err := scanInvoice(q.QueryRow(ctx, sql, id))
	if err != nil {
		return Invoice{}, err
	}
	rows, err := q.Query(ctx, `
		SELECT id, type, description, quantity, unit_price, total_price, metadata
		FROM invoice_items WHERE invoice_id = $1 ORDER BY line_no`, id)
	if err != nil {
		return Invoice{}, err
	}
	inv.Items, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (Item, error) {
		var (
			it   Item
			typ  string
			meta []byte
		)
		if err := row.Scan(&it.ID, &typ, &it.Description, &it.Quantity, &it.UnitPrice, &it.TotalPrice, &meta); err != nil {
			return Item{}, err
		}
		it.Type = ItemType(typ)
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &it.Metadata); err != nil {
				return Item{}, fmt.Errorf("decode item metadata: %w", err)
			}
		}
		return it, nil
	})
	if err != nil {
		return Invoice{}, err
	}
	rows, err = q.Query(ctx, `
		SELECT id, invoice_id, amount, COALESCE(method, ''), COALESCE(reference, ''), received_at, COALESCE(recorded_by, 0)
		FROM invoice_payments WHERE invoice_id = $1 ORDER BY received_at, id`, id)
	if err != nil {
		return Invoice{}, err
	}
	inv.Payments, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (Payment, error) {
		var p Payment
		err := row.Scan(&p.ID, &p.InvoiceID, &p.Amount, &p.Method, &p.Reference, &p.ReceivedAt, &p.RecordedBy)
		return p, err
	})
	if err != nil {
		return Invoice{}, err
	}
	return inv, nil
}

func scanInvoice(row pgx.Row) (Invoice, error) {
	var (
		inv                  Invoice
		workOrderID, apptID  *int64
		createdBy            *int64
		discountType, status string
	)
	err := row.Scan(
		&inv.ID, &inv.Number, &inv.CustomerID, &workOrderID, &apptID, &inv.Currency,
		&inv.Subtotal, &inv.TaxRate, &inv.TaxAmount, &discountType, &inv.DiscountValue, &inv.DiscountAmount,
		&inv.Total, &inv.PaidAmount, &inv.Balance, &status, &inv.IssueDate, &inv.DueDate, &inv.PaidDate, &inv.Notes,
		&createdBy, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, ErrNotFound
		}
		return Invoice{}, err
	}
	inv.WorkOrderID = deref(workOrderID)
	inv.AppointmentID = deref(apptID)
	inv.CreatedBy = deref(createdBy)
	inv.DiscountType = DiscountType(discountType)
	inv.Status = Status(status)
	return inv, nil
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
