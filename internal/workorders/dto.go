package workorders

import (
	"github.com/shopspring/decimal"
)

// PartInput describes a part on a new service line. UnitPrice may be omitted
// when PartNumber resolves through the catalog.
type PartInput struct {
	Name       string           `json:"name" validate:"max=200"`
	PartNumber string           `json:"part_number" validate:"max=64"`
	Quantity   int              `json:"quantity" validate:"gte=1"`
	UnitPrice  *decimal.Decimal `json:"unit_price"`
}

// ServiceInput describes a service line. Omitted pricing is filled from the
// catalog entry named by ServiceRef, then from shop defaults.
type ServiceInput struct {
	ServiceRef    string           `json:"service_ref" validate:"max=64"`
	Name          string           `json:"name" validate:"max=200"`
	Description   string           `json:"description" validate:"max=2000"`
	LaborHours    *decimal.Decimal `json:"labor_hours"`
	LaborRate     *decimal.Decimal `json:"labor_rate"`
	RecordedTotal *decimal.Decimal `json:"recorded_total"`
	Parts         []PartInput      `json:"parts" validate:"dive"`
}

// CreateRequest creates a work order directly.
type CreateRequest struct {
	CustomerID       int64          `json:"customer_id" validate:"required,gt=0"`
	VehicleID        int64          `json:"vehicle_id" validate:"gte=0"`
	TechnicianID     int64          `json:"technician_id" validate:"gte=0"`
	Priority         Priority       `json:"priority"`
	PaymentTermsDays *int           `json:"payment_terms_days" validate:"omitempty,gte=0,lte=365"`
	Services         []ServiceInput `json:"services" validate:"required,min=1,dive"`
}

// FromAppointmentRequest approves an appointment into a work order.
type FromAppointmentRequest struct {
	ApproverID int64 `json:"approver_id"`
}

// StatusRequest changes a work order status.
type StatusRequest struct {
	Status Status `json:"status"`
	Notes  string `json:"notes" validate:"max=2000"`
}

// ServicesRequest replaces the service lines of an open order.
type ServicesRequest struct {
	Services []ServiceInput `json:"services" validate:"required,min=1,dive"`
}
