package workorders

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/torqueworks/torqueworks/internal/money"
	"github.com/torqueworks/torqueworks/internal/shared"
)

// Breakdown decomposes a service's price.
type Breakdown struct {
	Labor    decimal.Decimal `json:"labor"`
	Parts    decimal.Decimal `json:"parts"`
	Overhead decimal.Decimal `json:"overhead"`
	Total    decimal.Decimal `json:"total"`
	// Shortfall is how far a recorded total fell below labor plus parts. It is
	// zero unless the recorded total is inconsistent.
	Shortfall decimal.Decimal `json:"shortfall"`
}

// OrderCost sums the breakdowns of every service on an order.
type OrderCost struct {
	Services []Breakdown `json:"services"`
	Totals   Breakdown   `json:"totals"`
}

// AggregateService computes labor, parts and overhead for one service.
// Without a recorded total the overhead is zero and the total is labor plus
// parts. A recorded total below labor plus parts yields zero overhead and is
// reported through Shortfall instead of being trusted.
func AggregateService(svc ServiceLine) (Breakdown, error) {
	if err := validateService(svc, "service"); err != nil {
		return Breakdown{}, err
	}
	labor := money.LineTotal(svc.LaborHours, svc.LaborRate)
	parts := decimal.Zero
	for _, p := range svc.Parts {
		parts = parts.Add(money.LineTotal(decimal.NewFromInt(int64(p.Quantity)), p.UnitPrice))
	}
	direct := labor.Add(parts)
	out := Breakdown{
		Labor:     labor,
		Parts:     parts,
		Overhead:  decimal.Zero,
		Total:     direct,
		Shortfall: decimal.Zero,
	}
	if svc.RecordedTotal == nil {
		return out, nil
	}
	recorded := money.Round2(*svc.RecordedTotal)
	if recorded.GreaterThanOrEqual(direct) {
		out.Overhead = recorded.Sub(direct)
		out.Total = recorded
		return out, nil
	}
	out.Shortfall = direct.Sub(recorded)
	return out, nil
}

// AggregateOrder sums AggregateService across the order.
func AggregateOrder(order WorkOrder) (OrderCost, error) {
	out := OrderCost{
		Services: make([]Breakdown, 0, len(order.Services)),
		Totals: Breakdown{
			Labor: decimal.Zero, Parts: decimal.Zero, Overhead: decimal.Zero,
			Total: decimal.Zero, Shortfall: decimal.Zero,
		},
	}
	for i, svc := range order.Services {
		b, err := AggregateService(svc)
		if err != nil {
			return OrderCost{}, fmt.Errorf("services[%d]: %w", i, err)
		}
		out.Services = append(out.Services, b)
		out.Totals.Labor = out.Totals.Labor.Add(b.Labor)
		out.Totals.Parts = out.Totals.Parts.Add(b.Parts)
		out.Totals.Overhead = out.Totals.Overhead.Add(b.Overhead)
		out.Totals.Total = out.Totals.Total.Add(b.Total)
		out.Totals.Shortfall = out.Totals.Shortfall.Add(b.Shortfall)
	}
	return out, nil
}

// NormalizeService recomputes each part's TotalPrice and the service's
// TotalCost from its inputs.
func NormalizeService(svc ServiceLine) (ServiceLine, error) {
	b, err := AggregateService(svc)
	if err != nil {
		return ServiceLine{}, err
	}
	parts := make([]Part, len(svc.Parts))
	for i, p := range svc.Parts {
		p.TotalPrice = money.LineTotal(decimal.NewFromInt(int64(p.Quantity)), p.UnitPrice)
		parts[i] = p
	}
	svc.Parts = parts
	svc.TotalCost = b.Total
	return svc, nil
}

func validateService(svc ServiceLine, prefix string) error {
	errs := &shared.ValidationError{}
	if svc.Name == "" {
		errs.Add(prefix+".name", "is required")
	}
	if svc.LaborHours.Sign() < 0 {
		errs.Add(prefix+".labor_hours", "must not be negative")
	}
	if svc.LaborRate.Sign() < 0 {
		errs.Add(prefix+".labor_rate", "must not be negative")
	}
	if svc.RecordedTotal != nil && svc.RecordedTotal.Sign() < 0 {
		errs.Add(prefix+".recorded_total", "must not be negative")
	}
	for i, p := range svc.Parts {
		field := fmt.Sprintf("%s.parts[%d]", prefix, i)
		if p.Name == "" {
			errs.Add(field+".name", "is required")
		}
		if p.Quantity < 1 {
			errs.Add(field+".quantity", "must be at least 1")
		}
		if p.UnitPrice.Sign() < 0 {
			errs.Add(field+".unit_price", "must not be negative")
		}
	}
	return errs.OrNil()
}
