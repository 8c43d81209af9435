package invoicing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/torqueworks/torqueworks/internal/money"
	"github.com/torqueworks/torqueworks/internal/shared"
)

var hundred = decimal.NewFromInt(100)

// CalculateTotals recomputes every derived amount of inv and returns the
// result; inv itself is not modified. Each derived field is rounded once to
// cents, so running it on its own output changes nothing.
//
// A discount larger than the subtotal is clamped to the subtotal. A negative
// total or a negative balance (more paid than owed) is reported as a
// FinancialInvariantError rather than corrected.
func CalculateTotals(inv Invoice) (Invoice, error) {
	if err := validateInputs(inv); err != nil {
		return Invoice{}, err
	}
	out := inv
	if out.DiscountType == "" {
		out.DiscountType = DiscountNone
	}

	out.Items = make([]Item, len(inv.Items))
	subtotal := decimal.Zero
	for i, item := range inv.Items {
		item.TotalPrice = money.LineTotal(item.Quantity, item.UnitPrice)
		subtotal = subtotal.Add(item.TotalPrice)
		out.Items[i] = item
	}
	out.Subtotal = subtotal
	out.TaxAmount = money.Percent(subtotal, out.TaxRate)

	switch out.DiscountType {
	case DiscountPercentage:
		out.DiscountAmount = money.Percent(subtotal, out.DiscountValue)
	case DiscountFixed:
		out.DiscountAmount = money.Round2(out.DiscountValue)
	default:
		out.DiscountAmount = decimal.Zero
	}
	out.DiscountAmount = money.Min(out.DiscountAmount, subtotal)

	out.Total = out.Subtotal.Add(out.TaxAmount).Sub(out.DiscountAmount)
	if out.Total.Sign() < 0 {
		return Invoice{}, &shared.FinancialInvariantError{
			Invariant: "total_non_negative",
			Detail:    fmt.Sprintf("derived total %s is negative", out.Total.StringFixed(2)),
		}
	}
	out.Balance = out.Total.Sub(out.PaidAmount)
	if out.Balance.Sign() < 0 {
		return Invoice{}, &shared.FinancialInvariantError{
			Invariant: "balance_non_negative",
			Detail: fmt.Sprintf("paid %s exceeds total %s",
				out.PaidAmount.StringFixed(2), out.Total.StringFixed(2)),
		}
	}
	return out, nil
}

// ValidateItems checks line inputs. Labor lines carry hours and may be
// fractional; every other line needs a quantity of at least one.
func ValidateItems(items []Item) error {
	errs := &shared.ValidationError{}
	validateItems(errs, items)
	return errs.OrNil()
}

func validateItems(errs *shared.ValidationError, items []Item) {
	for i, item := range items {
		field := fmt.Sprintf("items[%d]", i)
		if !item.Type.IsValid() {
			errs.Add(field+".type", "unknown item type %q", item.Type)
		}
		if item.Description == "" {
			errs.Add(field+".description", "is required")
		}
		if item.Type == ItemLabor {
			if item.Quantity.Sign() <= 0 {
				errs.Add(field+".quantity", "must be greater than zero")
			}
		} else if item.Quantity.LessThan(decimal.NewFromInt(1)) {
			errs.Add(field+".quantity", "must be at least 1")
		}
		if item.UnitPrice.Sign() < 0 {
			errs.Add(field+".unit_price", "must not be negative")
		}
	}
}

func validateInputs(inv Invoice) error {
	errs := &shared.ValidationError{}
	validateItems(errs, inv.Items)
	if inv.TaxRate.Sign() < 0 || inv.TaxRate.GreaterThan(hundred) {
		errs.Add("tax_rate", "must be between 0 and 100")
	}
	if inv.DiscountType != "" && !inv.DiscountType.IsValid() {
		errs.Add("discount_type", "unknown discount type %q", inv.DiscountType)
	}
	if inv.DiscountValue.Sign() < 0 {
		errs.Add("discount_value", "must not be negative")
	}
	if inv.PaidAmount.Sign() < 0 {
		errs.Add("paid_amount", "must not be negative")
	}
	return errs.OrNil()
}
