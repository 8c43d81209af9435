package ar

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NewRepository returns the pgx-backed receivables reader.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

type repository struct {
	pool *pgxpool.Pool
}

// Outstanding lists sent and overdue invoices with a positive balance. A
// customerID of zero lists every customer.
func (r *repository) Outstanding(ctx context.Context, customerID int64) ([]Receivable, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, number, customer_id, status, currency, total, balance, issue_date, due_date
		FROM invoices
		WHERE status IN ('sent', 'overdue') AND balance > 0
		  AND ($1::bigint = 0 OR customer_id = $1)
		ORDER BY due_date, id`, customerID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Receivable, error) {
		var rec Receivable
		err := row.Scan(&rec.InvoiceID, &rec.Number, &rec.CustomerID, &rec.Status, &rec.Currency,
			&rec.Total, &rec.Balance, &rec.IssueDate, &rec.DueDate)
		return rec, err
	})
}
