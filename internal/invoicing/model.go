// Package invoicing computes invoice financials and applies payments.
//
// Every derived amount (item totals, subtotal, tax, discount, total and
// balance) is recomputed from the invoice's own inputs by CalculateTotals.
// Nothing is recomputed implicitly when a field is written.
package invoicing

import (
	"time"

	"github.com/shopspring/decimal"
)

// ItemType classifies invoice lines.
type ItemType string

const (
	ItemService  ItemType = "service"
	ItemPart     ItemType = "part"
	ItemLabor    ItemType = "labor"
	ItemOverhead ItemType = "overhead"
	ItemOther    ItemType = "other"
)

// IsValid checks if the item type is valid.
func (t ItemType) IsValid() bool {
	switch t {
	case ItemService, ItemPart, ItemLabor, ItemOverhead, ItemOther:
		return true
	default:
		return false
	}
}

// DiscountType selects how DiscountValue is interpreted.
type DiscountType string

const (
	DiscountNone       DiscountType = "none"
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// IsValid checks if the discount type is valid.
func (t DiscountType) IsValid() bool {
	return t == DiscountNone || t == DiscountPercentage || t == DiscountFixed
}

// Status represents the lifecycle of an invoice.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSent      Status = "sent"
	StatusPaid      Status = "paid"
	StatusOverdue   Status = "overdue"
	StatusCancelled Status = "cancelled"
	StatusRefunded  Status = "refunded"
)

// IsValid checks if the status is valid.
func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusSent, StatusPaid, StatusOverdue, StatusCancelled, StatusRefunded:
		return true
	default:
		return false
	}
}

// CanEdit reports whether items and pricing may change.
func (s Status) CanEdit() bool {
	return s == StatusDraft
}

// AcceptsPayment reports whether payments can be applied.
func (s Status) AcceptsPayment() bool {
	return s == StatusDraft || s == StatusSent || s == StatusOverdue
}

// CanCancel reports whether the invoice may be voided.
func (s Status) CanCancel() bool {
	return s == StatusDraft || s == StatusSent || s == StatusOverdue
}

// Item is an invoice line. TotalPrice is derived.
type Item struct {
	ID          int64             `json:"id,omitempty"`
	Type        ItemType          `json:"type"`
	Description string            `json:"description"`
	Quantity    decimal.Decimal   `json:"quantity"`
	UnitPrice   decimal.Decimal   `json:"unit_price"`
	TotalPrice  decimal.Decimal   `json:"total_price"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Payment is a recorded payment against an invoice.
type Payment struct {
	ID         int64           `json:"id"`
	InvoiceID  int64           `json:"invoice_id"`
	Amount     decimal.Decimal `json:"amount"`
	Method     string          `json:"method,omitempty"`
	Reference  string          `json:"reference,omitempty"`
	ReceivedAt time.Time       `json:"received_at"`
	RecordedBy int64           `json:"recorded_by,omitempty"`
}

// Invoice is the billing document.
type Invoice struct {
	ID             int64           `json:"id"`
	Number         string          `json:"invoice_number"`
	CustomerID     int64           `json:"customer_id"`
	WorkOrderID    int64           `json:"work_order_id,omitempty"`
	AppointmentID  int64           `json:"appointment_id,omitempty"`
	Items          []Item          `json:"items"`
	Currency       string          `json:"currency"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	TaxRate        decimal.Decimal `json:"tax_rate"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	DiscountType   DiscountType    `json:"discount_type"`
	DiscountValue  decimal.Decimal `json:"discount_value"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	Total          decimal.Decimal `json:"total"`
	PaidAmount     decimal.Decimal `json:"paid_amount"`
	Balance        decimal.Decimal `json:"balance"`
	Status         Status          `json:"status"`
	IssueDate      time.Time       `json:"issue_date"`
	DueDate        time.Time       `json:"due_date"`
	PaidDate       *time.Time      `json:"paid_date,omitempty"`
	Notes          string          `json:"notes,omitempty"`
	Payments       []Payment       `json:"payments,omitempty"`
	CreatedBy      int64           `json:"created_by,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Terms are the shop defaults applied to new invoices.
type Terms struct {
	TaxRate          decimal.Decimal
	PaymentTermsDays int
	Currency         string
}

// DefaultPaymentTermsDays is net-30.
const DefaultPaymentTermsDays = 30

// DueDate returns issue + days. Zero means due on receipt; negative days fall
// back to net-30.
func DueDate(issue time.Time, days int) time.Time {
	if days < 0 {
		days = DefaultPaymentTermsDays
	}
	return issue.AddDate(0, 0, days)
}
