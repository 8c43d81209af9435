// Package billing turns completed work orders into invoices.
package billing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/torqueworks/torqueworks/internal/invoicing"
	"github.com/torqueworks/torqueworks/internal/shared"
	"github.com/torqueworks/torqueworks/internal/workorders"
)

// Item metadata keys.
const (
	MetaPartNumber = "part_number"
	MetaServiceRef = "service_ref"
)

// BuildInvoice derives a draft invoice from order. Each service yields a labor
// line when labor costs anything, one line per part, and an overhead line for
// whatever the recorded price adds on top. Totals come from
// invoicing.CalculateTotals.
func BuildInvoice(order workorders.WorkOrder, terms invoicing.Terms, issueDate time.Time) (invoicing.Invoice, error) {
	if len(order.Services) == 0 {
		return invoicing.Invoice{}, shared.Invalid("services", "work order has nothing to bill")
	}
	var items []invoicing.Item
	for i, svc := range order.Services {
		b, err := workorders.AggregateService(svc)
		if err != nil {
			return invoicing.Invoice{}, fmt.Errorf("services[%d]: %w", i, err)
		}
		if b.Labor.Sign() > 0 {
			items = append(items, invoicing.Item{
				Type:        invoicing.ItemLabor,
				Description: svc.Name + " - Labor",
				Quantity:    svc.LaborHours,
				UnitPrice:   svc.LaborRate,
				Metadata:    serviceMeta(svc),
			})
		}
		for _, p := range svc.Parts {
			var meta map[string]string
			if p.PartNumber != "" {
				meta = map[string]string{MetaPartNumber: p.PartNumber}
			}
			items = append(items, invoicing.Item{
				Type:        invoicing.ItemPart,
				Description: p.Name,
				Quantity:    decimal.NewFromInt(int64(p.Quantity)),
				UnitPrice:   p.UnitPrice,
				Metadata:    meta,
			})
		}
		if b.Overhead.Sign() > 0 {
			items = append(items, invoicing.Item{
				Type:        invoicing.ItemOverhead,
				Description: svc.Name + " - Overhead",
				Quantity:    decimal.NewFromInt(1),
				UnitPrice:   b.Overhead,
				Metadata:    serviceMeta(svc),
			})
		}
	}

	issue := dateOnly(issueDate)
	days := terms.PaymentTermsDays
	if order.PaymentTermsDays != nil {
		days = *order.PaymentTermsDays
	}
	inv := invoicing.Invoice{
		CustomerID:    order.CustomerID,
		WorkOrderID:   order.ID,
		AppointmentID: order.AppointmentID,
		Items:         items,
		Currency:      terms.Currency,
		TaxRate:       terms.TaxRate,
		DiscountType:  invoicing.DiscountNone,
		Status:        invoicing.StatusDraft,
		IssueDate:     issue,
		DueDate:       invoicing.DueDate(issue, days),
		Notes:         "Work order " + order.Number,
	}
	return invoicing.CalculateTotals(inv)
}

func serviceMeta(svc workorders.ServiceLine) map[string]string {
	if svc.ServiceRef == "" {
		return nil
	}
	return map[string]string{MetaServiceRef: svc.ServiceRef}
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
