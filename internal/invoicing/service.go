package invoicing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/torqueworks/torqueworks/internal/events"
	"github.com/torqueworks/torqueworks/internal/money"
	"github.com/torqueworks/torqueworks/internal/shared"
)

// Locker provides per-key mutual exclusion.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// IdempotencyStore claims request keys.
type IdempotencyStore interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Auditor records audit log entries.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Metrics receives domain counters.
type Metrics interface {
	InvoiceIssued(source string)
	PaymentApplied(status string)
	IllegalTransition(entity string)
}

// Options tune a Service.
type Options struct {
	Terms          Terms
	NumberAttempts int
}

const (
	actionItemsUpdated = "invoice.items_updated"
	actionRecalculated = "invoice.recalculated"
)

// Service manages invoices.
type Service struct {
	repo      Repository
	locker    Locker
	idem      IdempotencyStore
	auditor   Auditor
	publisher events.Publisher
	metrics   Metrics
	logger    *slog.Logger
	opts      Options
	now       func() time.Time
}

// NewService constructs an invoice service. Payments are serialized per
// invoice through locker.
func NewService(repo Repository, locker Locker, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if locker == nil {
		locker = shared.NewKeyedMutex()
	}
	if opts.Terms.Currency == "" {
		opts.Terms.Currency = "USD"
	}
	return &Service{
		repo:      repo,
		locker:    locker,
		publisher: events.Discard{},
		logger:    logger,
		opts:      opts,
		now:       time.Now,
	}
}

// SetPublisher sets the event publisher.
func (s *Service) SetPublisher(p events.Publisher) {
	if p != nil {
		s.publisher = p
	}
}

// SetIdempotencyStore enables Idempotency-Key handling for payments.
func (s *Service) SetIdempotencyStore(store IdempotencyStore) {
	s.idem = store
}

// SetAuditor enables audit logging.
func (s *Service) SetAuditor(a Auditor) {
	s.auditor = a
}

// SetMetrics attaches domain counters.
func (s *Service) SetMetrics(m Metrics) {
	s.metrics = m
}

// Terms returns the shop defaults.
func (s *Service) Terms() Terms {
	return s.opts.Terms
}

// Get returns an invoice with items and payments.
func (s *Service) Get(ctx context.Context, id int64) (Invoice, error) {
	return s.repo.Get(ctx, id)
}

// ListByWorkOrder returns every invoice referencing a work order, cancelled
// ones included.
func (s *Service) ListByWorkOrder(ctx context.Context, workOrderID int64) ([]Invoice, error) {
	return s.repo.ListByWorkOrder(ctx, workOrderID)
}

// Create totals, numbers and stores a new draft invoice. Shop defaults fill
// currency, issue date and due date when they are not set. The number is
// allocated with collision retry inside the insert transaction.
func (s *Service) Create(ctx context.Context, draft Invoice, actorID int64) (Invoice, error) {
	inv, err := s.prepare(draft, actorID)
	if err != nil {
		return Invoice{}, err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err = s.insertNumbered(ctx, tx, inv)
		return err
	})
	if err != nil {
		return Invoice{}, err
	}
	s.created(ctx, inv, actorID)
	return inv, nil
}

// Replace cancels the invoices in replaceIDs and stores draft in their place
// within one transaction. Either every old invoice is cancelled and the new
// one exists, or nothing changes. Invoices that cannot be cancelled, such as
// paid ones, abort the replacement.
func (s *Service) Replace(ctx context.Context, replaceIDs []int64, draft Invoice, actorID int64, reason string) (Invoice, []Invoice, error) {
	inv, err := s.prepare(draft, actorID)
	if err != nil {
		return Invoice{}, nil, err
	}
	var cancelled []Invoice
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		cancelled = cancelled[:0]
		for _, id := range replaceIDs {
			old, err := tx.GetForUpdate(ctx, id)
			if err != nil {
				return err
			}
			next, err := Cancel(old, s.now())
			if err != nil {
				return fmt.Errorf("replace invoice %s: %w", old.Number, err)
			}
			next = withCancelReason(next, reason)
			if err := tx.Update(ctx, next); err != nil {
				return err
			}
			cancelled = append(cancelled, next)
		}
		inv, err = s.insertNumbered(ctx, tx, inv)
		return err
	})
	if err != nil {
		s.countIllegal(err)
		return Invoice{}, nil, err
	}
	for _, old := range cancelled {
		s.audit(ctx, actorID, "invoice.cancelled", old.ID, map[string]any{
			"status": string(old.Status), "replaced_by": inv.Number,
		})
	}
	s.created(ctx, inv, actorID)
	return inv, cancelled, nil
}

func (s *Service) insertNumbered(ctx context.Context, tx TxRepository, inv Invoice) (Invoice, error) {
	_, err := AllocateNumber(ctx, tx, inv.IssueDate, s.opts.NumberAttempts, func(ctx context.Context, number string) error {
		candidate := inv
		candidate.Number = number
		id, err := tx.Insert(ctx, candidate)
		if err != nil {
			return err
		}
		candidate.ID = id
		inv = candidate
		return nil
	})
	return inv, err
}

func (s *Service) created(ctx context.Context, inv Invoice, actorID int64) {
	source := "manual"
	if inv.WorkOrderID > 0 {
		source = "work_order"
	}
	if s.metrics != nil {
		s.metrics.InvoiceIssued(source)
	}
	s.audit(ctx, actorID, "invoice.created", inv.ID, map[string]any{
		"number": inv.Number, "total": inv.Total.StringFixed(2), "work_order_id": inv.WorkOrderID,
	})
	s.logger.Info("invoice created",
		slog.Int64("id", inv.ID),
		slog.String("number", inv.Number),
		slog.String("total", inv.Total.StringFixed(2)))
	s.publish(ctx, events.New(events.KindInvoiceGenerated, inv.ID, inv.Number, inv.CreatedAt).
		With("number", inv.Number).
		With("total", inv.Total.StringFixed(2)).
		With("due_date", inv.DueDate.Format("2006-01-02")).
		With("work_order_id", inv.WorkOrderID),
		inv.CustomerID,
		fmt.Sprintf("Invoice %s for %s is due %s", inv.Number,
			money.Format(inv.Total, inv.Currency), inv.DueDate.Format("2006-01-02")))
}

func (s *Service) prepare(draft Invoice, actorID int64) (Invoice, error) {
	if draft.CustomerID <= 0 {
		return Invoice{}, shared.Invalid("customer_id", "is required")
	}
	if len(draft.Items) == 0 {
		return Invoice{}, shared.Invalid("items", "at least one item is required")
	}
	now := s.now()
	draft.ID = 0
	draft.Number = ""
	draft.Status = StatusDraft
	draft.PaidAmount = decimal.Zero
	draft.PaidDate = nil
	draft.Payments = nil
	if draft.Currency == "" {
		draft.Currency = s.opts.Terms.Currency
	}
	if draft.IssueDate.IsZero() {
		draft.IssueDate = now
	}
	draft.IssueDate = dateOnly(draft.IssueDate)
	if draft.DueDate.IsZero() {
		draft.DueDate = DueDate(draft.IssueDate, s.opts.Terms.PaymentTermsDays)
	}
	draft.DueDate = dateOnly(draft.DueDate)
	if draft.DueDate.Before(draft.IssueDate) {
		return Invoice{}, shared.Invalid("due_date", "must not be before issue_date")
	}
	draft.CreatedBy = actorID
	draft.CreatedAt = now
	draft.UpdatedAt = now

	inv, err := CalculateTotals(draft)
	if err != nil {
		return Invoice{}, err
	}
	if inv.Total.Sign() <= 0 {
		return Invoice{}, shared.Invalid("total", "must be positive")
	}
	return inv, nil
}

// Recalculate recomputes derived amounts from stored inputs.
func (s *Service) Recalculate(ctx context.Context, id int64) (Invoice, error) {
	return s.mutate(ctx, id, 0, actionRecalculated, func(inv Invoice) (Invoice, error) {
		return CalculateTotals(inv)
	})
}

// UpdateItems replaces the lines of a draft invoice.
func (s *Service) UpdateItems(ctx context.Context, id int64, items []Item, actorID int64) (Invoice, error) {
	if len(items) == 0 {
		return Invoice{}, shared.Invalid("items", "at least one item is required")
	}
	return s.mutate(ctx, id, actorID, actionItemsUpdated, func(inv Invoice) (Invoice, error) {
		if !inv.Status.CanEdit() {
			return Invoice{}, illegal(inv.Status, inv.Status, "only drafts can be edited")
		}
		inv.Items = items
		next, err := CalculateTotals(inv)
		if err != nil {
			return Invoice{}, err
		}
		if next.Total.Sign() <= 0 {
			return Invoice{}, shared.Invalid("total", "must be positive")
		}
		next.UpdatedAt = s.now()
		return next, nil
	})
}

// MarkSent moves a draft to sent.
func (s *Service) MarkSent(ctx context.Context, id, actorID int64) (Invoice, error) {
	inv, err := s.mutate(ctx, id, actorID, "invoice.sent", func(inv Invoice) (Invoice, error) {
		return MarkSent(inv, s.now())
	})
	if err != nil {
		return Invoice{}, err
	}
	s.publish(ctx, events.New(events.KindInvoiceSent, inv.ID, "", inv.UpdatedAt).With("number", inv.Number),
		inv.CustomerID,
		fmt.Sprintf("Invoice %s: %s due %s", inv.Number, money.Format(inv.Balance, inv.Currency), inv.DueDate.Format("2006-01-02")))
	return inv, nil
}

// Cancel voids an invoice.
func (s *Service) Cancel(ctx context.Context, id, actorID int64, reason string) (Invoice, error) {
	return s.mutate(ctx, id, actorID, "invoice.cancelled", func(inv Invoice) (Invoice, error) {
		next, err := Cancel(inv, s.now())
		if err != nil {
			return Invoice{}, err
		}
		return withCancelReason(next, reason), nil
	})
}

func withCancelReason(inv Invoice, reason string) Invoice {
	if reason == "" {
		return inv
	}
	if inv.Notes != "" {
		inv.Notes += "\n"
	}
	inv.Notes += "cancelled: " + reason
	return inv
}

// AddPayment applies a payment under the invoice's lock. The read, the pure
// computation and the write happen while the lock is held, so concurrent
// payments never see a stale paid amount.
func (s *Service) AddPayment(ctx context.Context, id int64, in PaymentInput, actorID int64) (Invoice, Payment, error) {
	if err := shared.ValidateStruct(in); err != nil {
		return Invoice{}, Payment{}, err
	}
	unlock, err := s.locker.Lock(ctx, shared.InvoiceLockKey(id))
	if err != nil {
		return Invoice{}, Payment{}, fmt.Errorf("lock invoice %d: %w", id, err)
	}
	defer unlock()

	var (
		out     Invoice
		payment Payment
	)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		next, p, err := AddPayment(inv, in, actorID, s.now())
		if err != nil {
			return err
		}
		pid, err := tx.InsertPayment(ctx, p)
		if err != nil {
			return err
		}
		p.ID = pid
		next.Payments[len(next.Payments)-1].ID = pid
		if err := tx.Update(ctx, next); err != nil {
			return err
		}
		out, payment = next, p
		return nil
	})
	if err != nil {
		s.countIllegal(err)
		return Invoice{}, Payment{}, err
	}

	if s.metrics != nil {
		s.metrics.PaymentApplied(string(out.Status))
	}
	s.audit(ctx, actorID, "invoice.payment", out.ID, map[string]any{
		"payment_id": payment.ID, "amount": payment.Amount.StringFixed(2), "balance": out.Balance.StringFixed(2),
	})
	s.logger.Info("payment applied",
		slog.Int64("invoice_id", out.ID),
		slog.String("amount", payment.Amount.StringFixed(2)),
		slog.String("status", string(out.Status)))
	s.publish(ctx, events.New(events.KindPaymentReceived, out.ID, strconv.FormatInt(payment.ID, 10), payment.ReceivedAt).
		With("number", out.Number).
		With("amount", payment.Amount.StringFixed(2)).
		With("balance", out.Balance.StringFixed(2)),
		out.CustomerID,
		fmt.Sprintf("Payment of %s received for invoice %s", money.Format(payment.Amount, out.Currency), out.Number))
	return out, payment, nil
}

// AddPaymentOnce is AddPayment guarded by a client idempotency key. A key that
// was already used yields shared.ErrIdempotencyConflict; a failed attempt
// releases its key so the client can retry.
func (s *Service) AddPaymentOnce(ctx context.Context, key string, id int64, in PaymentInput, actorID int64) (Invoice, Payment, error) {
	if key == "" || s.idem == nil {
		return s.AddPayment(ctx, id, in, actorID)
	}
	scoped := shared.IdempotencyModulePayment + ":" + strconv.FormatInt(id, 10) + ":" + key
	if err := s.idem.CheckAndInsert(ctx, scoped, shared.IdempotencyModulePayment); err != nil {
		return Invoice{}, Payment{}, err
	}
	inv, p, err := s.AddPayment(ctx, id, in, actorID)
	if err != nil {
		if derr := s.idem.Delete(ctx, scoped); derr != nil {
			s.logger.Warn("release idempotency key failed", slog.Any("error", derr))
		}
		return Invoice{}, Payment{}, err
	}
	return inv, p, nil
}

// MarkOverdue flags every sent invoice past its due date and returns how many
// changed.
func (s *Service) MarkOverdue(ctx context.Context, now time.Time) (int, error) {
	ids, err := s.repo.ListOverdueCandidates(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("list overdue candidates: %w", err)
	}
	changed := 0
	for _, id := range ids {
		var (
			inv     Invoice
			flagged bool
		)
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			cur, err := tx.GetForUpdate(ctx, id)
			if err != nil {
				return err
			}
			inv, flagged = MarkOverdue(cur, now)
			if !flagged {
				return nil
			}
			return tx.Update(ctx, inv)
		})
		if err != nil {
			return changed, fmt.Errorf("mark invoice %d overdue: %w", id, err)
		}
		if !flagged {
			continue
		}
		changed++
		s.publish(ctx, events.New(events.KindInvoiceOverdue, inv.ID, inv.DueDate.Format("20060102"), now).
			With("number", inv.Number).
			With("balance", inv.Balance.StringFixed(2)),
			inv.CustomerID,
			fmt.Sprintf("Invoice %s is overdue: %s outstanding", inv.Number, money.Format(inv.Balance, inv.Currency)))
	}
	if changed > 0 {
		s.logger.Info("invoices marked overdue", slog.Int("count", changed))
	}
	return changed, nil
}

func (s *Service) mutate(ctx context.Context, id, actorID int64, action string, fn func(Invoice) (Invoice, error)) (Invoice, error) {
	itemsChanged := action == actionItemsUpdated || action == actionRecalculated
	var out Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		next, err := fn(inv)
		if err != nil {
			return err
		}
		if itemsChanged {
			next = Settle(next, s.now())
			if err := tx.ReplaceItems(ctx, next.ID, next.Items); err != nil {
				return err
			}
		}
		if err := tx.Update(ctx, next); err != nil {
			return err
		}
		out = next
		return nil
	})
	if err != nil {
		s.countIllegal(err)
		return Invoice{}, err
	}
	s.audit(ctx, actorID, action, out.ID, map[string]any{"status": string(out.Status)})
	return out, nil
}

func (s *Service) countIllegal(err error) {
	if s.metrics != nil && errors.Is(err, shared.ErrIllegalTransition) {
		s.metrics.IllegalTransition("invoice")
	}
}

func (s *Service) audit(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) {
	if s.auditor == nil {
		return
	}
	err := s.auditor.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "invoice",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
		At:       s.now(),
	})
	if err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

func (s *Service) publish(ctx context.Context, evt events.Event, customerID int64, summary string) {
	evt.CustomerID = customerID
	evt.Summary = summary
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.logger.Warn("publish event failed", slog.String("kind", string(evt.Kind)), slog.Any("error", err))
	}
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
