package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/torqueworks/torqueworks/internal/events"
	"github.com/torqueworks/torqueworks/internal/invoicing"
	"github.com/torqueworks/torqueworks/internal/shared"
	"github.com/torqueworks/torqueworks/internal/workorders"
)

// WorkOrders is the slice of the work order service the pipeline drives.
type WorkOrders interface {
	Get(ctx context.Context, id int64) (workorders.WorkOrder, error)
	MarkInvoiced(ctx context.Context, id, invoiceID, actorID int64) (workorders.WorkOrder, error)
	RelinkInvoice(ctx context.Context, id, invoiceID, actorID int64) (workorders.WorkOrder, error)
}

// Invoices is the slice of the invoice service the pipeline drives.
type Invoices interface {
	Terms() invoicing.Terms
	ListByWorkOrder(ctx context.Context, workOrderID int64) ([]invoicing.Invoice, error)
	Create(ctx context.Context, draft invoicing.Invoice, actorID int64) (invoicing.Invoice, error)
	Replace(ctx context.Context, replaceIDs []int64, draft invoicing.Invoice, actorID int64, reason string) (invoicing.Invoice, []invoicing.Invoice, error)
}

// Options control a generation run.
type Options struct {
	// Replace cancels the unpaid invoices already covering the order.
	Replace bool
	ActorID int64
}

// Result is the outcome of a generation run.
type Result struct {
	Invoice   invoicing.Invoice    `json:"invoice"`
	WorkOrder workorders.WorkOrder `json:"work_order"`
	Replaced  []string             `json:"replaced,omitempty"`
}

// Pipeline generates invoices from completed work orders.
type Pipeline struct {
	orders   WorkOrders
	invoices Invoices
	logger   *slog.Logger
	now      func() time.Time
}

// NewPipeline wires the pipeline.
func NewPipeline(orders WorkOrders, invoices Invoices, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{orders: orders, invoices: invoices, logger: logger, now: time.Now}
}

// GenerateFromWorkOrder invoices a completed work order and marks it
// invoiced.
//
// An order that already has a live invoice fails with ErrInvoiceExists unless
// opts.Replace is set, in which case the old invoices are cancelled in the
// same transaction that stores the new one. Invoices with payments are never
// replaced. When an earlier run stored the
// invoice but did not get to mark the order, the duplicate path links them
// before reporting the duplicate.
func (p *Pipeline) GenerateFromWorkOrder(ctx context.Context, orderID int64, opts Options) (Result, error) {
	order, err := p.orders.Get(ctx, orderID)
	if err != nil {
		return Result{}, err
	}
	if order.Status != workorders.StatusCompleted && order.Status != workorders.StatusInvoiced {
		return Result{}, &shared.IllegalTransitionError{
			Entity: "work_order",
			From:   string(order.Status),
			To:     string(workorders.StatusInvoiced),
			Reason: "only completed work orders can be invoiced",
		}
	}

	existing, err := p.invoices.ListByWorkOrder(ctx, orderID)
	if err != nil {
		return Result{}, fmt.Errorf("list invoices for work order %d: %w", orderID, err)
	}
	live := liveInvoices(existing)

	if !opts.Replace {
		if len(live) > 0 && order.Status == workorders.StatusCompleted {
			p.repairLink(ctx, order, live[len(live)-1], opts.ActorID)
		}
		if len(live) > 0 || order.Status == workorders.StatusInvoiced {
			return Result{}, duplicate(orderID, live)
		}
	}

	draft, err := BuildInvoice(order, p.invoices.Terms(), p.now())
	if err != nil {
		return Result{}, err
	}

	now := p.now()
	ids := make([]int64, 0, len(live))
	for _, inv := range live {
		if _, err := invoicing.Cancel(inv, now); err != nil {
			return Result{}, fmt.Errorf("replace invoice %s: %w", inv.Number, err)
		}
		ids = append(ids, inv.ID)
	}

	var (
		inv      invoicing.Invoice
		replaced []string
	)
	if len(ids) > 0 {
		var cancelled []invoicing.Invoice
		inv, cancelled, err = p.invoices.Replace(ctx, ids, draft, opts.ActorID, "replaced by regenerated invoice")
		for _, old := range cancelled {
			replaced = append(replaced, old.Number)
		}
	} else {
		inv, err = p.invoices.Create(ctx, draft, opts.ActorID)
	}
	if err != nil {
		if errors.Is(err, invoicing.ErrWorkOrderInvoiced) {
			return Result{}, duplicate(orderID, nil)
		}
		return Result{}, err
	}

	var linked workorders.WorkOrder
	if order.Status == workorders.StatusInvoiced {
		linked, err = p.orders.RelinkInvoice(ctx, orderID, inv.ID, opts.ActorID)
	} else {
		linked, err = p.orders.MarkInvoiced(ctx, orderID, inv.ID, opts.ActorID)
	}
	if err != nil {
		p.logger.Error("invoice stored but work order not linked",
			slog.Int64("work_order_id", orderID),
			slog.String("invoice", inv.Number),
			slog.Any("error", err))
		return Result{Invoice: inv}, fmt.Errorf("link work order %d to invoice %s: %w", orderID, inv.Number, err)
	}

	p.logger.Info("invoice generated from work order",
		slog.Int64("work_order_id", orderID),
		slog.String("invoice", inv.Number),
		slog.String("total", inv.Total.StringFixed(2)),
		slog.Int("replaced", len(replaced)))
	return Result{Invoice: inv, WorkOrder: linked, Replaced: replaced}, nil
}

// HandleWorkOrderCompleted consumes workorder.completed events. A work order
// that is already invoiced is not an error.
func (p *Pipeline) HandleWorkOrderCompleted(ctx context.Context, evt events.Event) error {
	if evt.Kind != events.KindWorkOrderCompleted {
		return nil
	}
	res, err := p.GenerateFromWorkOrder(ctx, evt.EntityID, Options{})
	if errors.Is(err, ErrInvoiceExists) {
		p.logger.Debug("work order already invoiced", slog.Int64("work_order_id", evt.EntityID))
		return nil
	}
	if err != nil {
		return err
	}
	p.logger.Info("auto-invoiced work order",
		slog.Int64("work_order_id", evt.EntityID),
		slog.String("invoice", res.Invoice.Number))
	return nil
}

func (p *Pipeline) repairLink(ctx context.Context, order workorders.WorkOrder, inv invoicing.Invoice, actorID int64) {
	if _, err := p.orders.MarkInvoiced(ctx, order.ID, inv.ID, actorID); err != nil {
		p.logger.Warn("link existing invoice failed",
			slog.Int64("work_order_id", order.ID),
			slog.String("invoice", inv.Number),
			slog.Any("error", err))
		return
	}
	p.logger.Info("linked work order to existing invoice",
		slog.Int64("work_order_id", order.ID),
		slog.String("invoice", inv.Number))
}

func liveInvoices(all []invoicing.Invoice) []invoicing.Invoice {
	var out []invoicing.Invoice
	for _, inv := range all {
		if inv.Status != invoicing.StatusCancelled {
			out = append(out, inv)
		}
	}
	return out
}
