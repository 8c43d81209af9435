package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NewRepository returns the pgx-backed audit reader.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

type repository struct {
	pool *pgxpool.Pool
}

func (r *repository) Window(ctx context.Context, filters TimelineFilters, offset, limit int) ([]TimelineRow, error) {
	where, args := whereClause(filters)
	args = append(args, limit, offset)
	sql := fmt.Sprintf(`SELECT id, occurred_at, COALESCE(actor_id, 0), action, entity, entity_id, meta
		FROM audit_logs%s ORDER BY occurred_at DESC, id DESC LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args))
	return r.query(ctx, sql, args...)
}

func (r *repository) All(ctx context.Context, filters TimelineFilters) ([]TimelineRow, error) {
	where, args := whereClause(filters)
	return r.query(ctx, `SELECT id, occurred_at, COALESCE(actor_id, 0), action, entity, entity_id, meta
		FROM audit_logs`+where+` ORDER BY occurred_at DESC, id DESC`, args...)
}

func (r *repository) query(ctx context.Context, sql string, args ...any) ([]TimelineRow, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (TimelineRow, error) {
		var (
			out  TimelineRow
			meta []byte
		)
		if err := row.Scan(&out.ID, &out.At, &out.ActorID, &out.Action, &out.Entity, &out.EntityID, &meta); err != nil {
			return TimelineRow{}, err
		}
		if len(meta) > 0 && string(meta) != "null" {
			if err := json.Unmarshal(meta, &out.Meta); err != nil {
				return TimelineRow{}, fmt.Errorf("decode audit meta %d: %w", out.ID, err)
			}
		}
		return out, nil
	})
}

func whereClause(f TimelineFilters) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if !f.From.IsZero() {
		add("occurred_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("occurred_at < $%d", f.To)
	}
	if f.ActorID > 0 {
		add("actor_id = $%d", f.ActorID)
	}
	if f.Entity != "" {
		add("entity = $%d", f.Entity)
	}
	if f.EntityID != "" {
		add("entity_id = $%d", f.EntityID)
	}
	if f.Action != "" {
		add("action = $%d", f.Action)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
