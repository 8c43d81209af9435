// Package ar reports outstanding customer receivables from issued invoices.
package ar

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/torqueworks/torqueworks/internal/money"
)

// Receivable is an issued invoice with an open balance.
type Receivable struct {
	InvoiceID  int64           `json:"invoice_id"`
	Number     string          `json:"number"`
	CustomerID int64           `json:"customer_id"`
	Status     string          `json:"status"`
	Currency   string          `json:"currency"`
	Total      decimal.Decimal `json:"total"`
	Balance    decimal.Decimal `json:"balance"`
	IssueDate  time.Time       `json:"issue_date"`
	DueDate    time.Time       `json:"due_date"`
	DaysLate   int             `json:"days_late"`
}

// AgingBucket summarises open balances by days past due.
type AgingBucket struct {
	Current   decimal.Decimal `json:"current"`
	Bucket30  decimal.Decimal `json:"days_1_30"`
	Bucket60  decimal.Decimal `json:"days_31_60"`
	Bucket90  decimal.Decimal `json:"days_61_90"`
	Bucket120 decimal.Decimal `json:"days_over_90"`
	Total     decimal.Decimal `json:"total"`
}

// Aging is the receivables report per currency.
type Aging struct {
	AsOf    time.Time              `json:"as_of"`
	Buckets map[string]AgingBucket `json:"buckets"`
}

// DaysPastDue counts whole calendar days between due and asOf; zero or
// negative means not yet due.
func DaysPastDue(due, asOf time.Time) int {
	d := time.Date(due.Year(), due.Month(), due.Day(), 0, 0, 0, 0, time.UTC)
	a := time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, time.UTC)
	return int(a.Sub(d).Hours() / 24)
}

// BuildAging groups receivable balances by currency and due date bucket.
// Balances are summed, never converted between currencies.
func BuildAging(receivables []Receivable, asOf time.Time) Aging {
	out := Aging{AsOf: asOf, Buckets: map[string]AgingBucket{}}
	for _, r := range receivables {
		if !r.Balance.IsPositive() {
			continue
		}
		b := out.Buckets[r.Currency]
		switch days := DaysPastDue(r.DueDate, asOf); {
		case days <= 0:
			b.Current = b.Current.Add(r.Balance)
		case days <= 30:
			b.Bucket30 = b.Bucket30.Add(r.Balance)
		case days <= 60:
			b.Bucket60 = b.Bucket60.Add(r.Balance)
		case days <= 90:
			b.Bucket90 = b.Bucket90.Add(r.Balance)
		default:
			b.Bucket120 = b.Bucket120.Add(r.Balance)
		}
		b.Total = money.Sum(b.Current, b.Bucket30, b.Bucket60, b.Bucket90, b.Bucket120)
		out.Buckets[r.Currency] = b
	}
	return out
}
