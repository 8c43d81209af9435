package invoicing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/torqueworks/torqueworks/internal/money"
	"github.com/torqueworks/torqueworks/internal/shared"
)

// PaymentInput describes a payment to apply.
type PaymentInput struct {
	Amount     decimal.Decimal `json:"amount"`
	Method     string          `json:"method" validate:"omitempty,oneof=cash card bank_transfer check other"`
	Reference  string          `json:"reference" validate:"max=128"`
	ReceivedAt time.Time       `json:"received_at"`
}

// AddPayment applies a payment and returns the updated invoice plus the
// payment record. The input invoice is not modified.
//
// The invoice becomes paid exactly when its balance reaches zero. Paying more
// than the outstanding balance is a FinancialInvariantError and applies
// nothing.
func AddPayment(inv Invoice, in PaymentInput, actorID int64, now time.Time) (Invoice, Payment, error) {
	if in.Amount.Sign() <= 0 {
		return Invoice{}, Payment{}, shared.Invalid("amount", "must be greater than zero")
	}
	if !money.HasCents(in.Amount) {
		return Invoice{}, Payment{}, shared.Invalid("amount", "must not have more than two decimal places")
	}
	if !inv.Status.AcceptsPayment() {
		return Invoice{}, Payment{}, &shared.IllegalTransitionError{
			Entity: "invoice",
			From:   string(inv.Status),
			To:     string(StatusPaid),
			Reason: fmt.Sprintf("%s invoices accept no payments", inv.Status),
		}
	}

	current, err := CalculateTotals(inv)
	if err != nil {
		return Invoice{}, Payment{}, err
	}
	if in.Amount.GreaterThan(current.Balance) {
		return Invoice{}, Payment{}, &shared.FinancialInvariantError{
			Invariant: "no_overpayment",
			Detail: fmt.Sprintf("payment %s exceeds balance %s",
				in.Amount.StringFixed(2), current.Balance.StringFixed(2)),
		}
	}

	next := current
	next.PaidAmount = current.PaidAmount.Add(in.Amount)
	next.Balance = next.Total.Sub(next.PaidAmount)
	next.UpdatedAt = now
	next = Settle(next, now)

	received := in.ReceivedAt
	if received.IsZero() {
		received = now
	}
	p := Payment{
		InvoiceID:  inv.ID,
		Amount:     in.Amount,
		Method:     in.Method,
		Reference:  in.Reference,
		ReceivedAt: received,
		RecordedBy: actorID,
	}
	next.Payments = append(append(make([]Payment, 0, len(inv.Payments)+1), inv.Payments...), p)
	return next, p, nil
}

// MarkSent moves a draft invoice to sent.
func MarkSent(inv Invoice, now time.Time) (Invoice, error) {
	if inv.Status != StatusDraft {
		return Invoice{}, illegal(inv.Status, StatusSent, "only drafts can be sent")
	}
	inv.Status = StatusSent
	inv.UpdatedAt = now
	return inv, nil
}

// Cancel voids an invoice. Paid, refunded and already cancelled invoices
// cannot be cancelled, nor can one that has received any payment.
func Cancel(inv Invoice, now time.Time) (Invoice, error) {
	if !inv.Status.CanCancel() {
		return Invoice{}, illegal(inv.Status, StatusCancelled, "")
	}
	if inv.PaidAmount.Sign() > 0 {
		return Invoice{}, illegal(inv.Status, StatusCancelled, "invoice has payments")
	}
	inv.Status = StatusCancelled
	inv.UpdatedAt = now
	return inv, nil
}

// MarkOverdue flags a sent invoice whose due date has passed. It reports
// whether anything changed.
func MarkOverdue(inv Invoice, now time.Time) (Invoice, bool) {
	if inv.Status != StatusSent || inv.Balance.Sign() <= 0 {
		return inv, false
	}
	if !inv.DueDate.Before(now) {
		return inv, false
	}
	inv.Status = StatusOverdue
	inv.UpdatedAt = now
	return inv, true
}

func illegal(from, to Status, reason string) error {
	return &shared.IllegalTransitionError{Entity: "invoice", From: string(from), To: string(to), Reason: reason}
}

// Settle marks an invoice that still accepts payments as paid once money has
// been received and nothing remains outstanding. Anything else is returned
// unchanged.
func Settle(inv Invoice, now time.Time) Invoice {
	if !inv.Status.AcceptsPayment() || inv.PaidAmount.Sign() <= 0 || inv.Balance.Sign() > 0 {
		return inv
	}
	inv.Status = StatusPaid
	paid := now
	inv.PaidDate = &paid
	return inv
}
