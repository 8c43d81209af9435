package invoicing

import (
	"time"

	"github.com/shopspring/decimal"
)

// ItemInput is a line in a create or update request.
type ItemInput struct {
	Type        ItemType          `json:"type" validate:"required"`
	Description string            `json:"description" validate:"required,max=255"`
	Quantity    decimal.Decimal   `json:"quantity"`
	UnitPrice   decimal.Decimal   `json:"unit_price"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// CreateRequest creates a manual invoice. Omitted tax rate falls back to the
// shop rate.
type CreateRequest struct {
	CustomerID    int64            `json:"customer_id" validate:"required,gt=0"`
	WorkOrderID   int64            `json:"work_order_id,omitempty"`
	AppointmentID int64            `json:"appointment_id,omitempty"`
	Items         []ItemInput      `json:"items" validate:"required,min=1,dive"`
	TaxRate       *decimal.Decimal `json:"tax_rate,omitempty"`
	DiscountType  DiscountType     `json:"discount_type,omitempty"`
	DiscountValue decimal.Decimal  `json:"discount_value"`
	IssueDate     *time.Time       `json:"issue_date,omitempty"`
	DueDate       *time.Time       `json:"due_date,omitempty"`
	Notes         string           `json:"notes,omitempty" validate:"max=2000"`
}

// ItemsRequest replaces the lines of a draft.
type ItemsRequest struct {
	Items []ItemInput `json:"items" validate:"required,min=1,dive"`
}

// CancelRequest voids an invoice.
type CancelRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

func toItems(in []ItemInput) []Item {
	out := make([]Item, len(in))
	for i, it := range in {
		out[i] = Item{
			Type:        it.Type,
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			Metadata:    it.Metadata,
		}
	}
	return out
}

// Draft converts the request into an unsaved invoice using terms for defaults.
func (r CreateRequest) Draft(terms Terms) Invoice {
	inv := Invoice{
		CustomerID:    r.CustomerID,
		WorkOrderID:   r.WorkOrderID,
		AppointmentID: r.AppointmentID,
		Items:         toItems(r.Items),
		TaxRate:       terms.TaxRate,
		DiscountType:  r.DiscountType,
		DiscountValue: r.DiscountValue,
		Notes:         r.Notes,
	}
	if r.TaxRate != nil {
		inv.TaxRate = *r.TaxRate
	}
	if r.IssueDate != nil {
		inv.IssueDate = *r.IssueDate
	}
	if r.DueDate != nil {
		inv.DueDate = *r.DueDate
	}
	return inv
}
