// Package workorders models billable shop work: cost decomposition, the
// lifecycle state machine and creation from approved appointments.
package workorders

import (
	"time"

	"github.com/shopspring/decimal"
)

// Priority ranks work orders on the shop floor.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// IsValid checks if the priority is valid.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	default:
		return false
	}
}

// VehicleSnapshot is copied onto the order at creation; later edits to the
// vehicle record do not change it.
type VehicleSnapshot struct {
	Make         string `json:"make"`
	Model        string `json:"model"`
	Year         int    `json:"year"`
	VIN          string `json:"vin,omitempty"`
	LicensePlate string `json:"license_plate,omitempty"`
	Mileage      int    `json:"mileage,omitempty"`
}

// Part is a part consumed by a service line.
type Part struct {
	Name       string          `json:"name"`
	PartNumber string          `json:"part_number,omitempty"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	TotalPrice decimal.Decimal `json:"total_price"`
}

// ServiceLine is one service performed on the vehicle.
type ServiceLine struct {
	ServiceRef  string          `json:"service_ref,omitempty"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	LaborHours  decimal.Decimal `json:"labor_hours"`
	LaborRate   decimal.Decimal `json:"labor_rate"`
	Parts       []Part          `json:"parts"`
	// RecordedTotal is the quoted or approved price. When set, anything above
	// labor plus parts is billed as overhead.
	RecordedTotal *decimal.Decimal `json:"recorded_total,omitempty"`
	TotalCost     decimal.Decimal  `json:"total_cost"`
}

// Note is an audit entry appended on every status change.
type Note struct {
	ID      int64     `json:"id,omitempty"`
	At      time.Time `json:"at"`
	ActorID int64     `json:"actor_id,omitempty"`
	From    Status    `json:"from,omitempty"`
	To      Status    `json:"to"`
	Text    string    `json:"text,omitempty"`
}

// WorkOrder is the authorized unit of billable work.
type WorkOrder struct {
	ID               int64           `json:"id"`
	Number           string          `json:"work_order_number"`
	CustomerID       int64           `json:"customer_id"`
	CustomerName     string          `json:"customer_name,omitempty"`
	VehicleID        int64           `json:"vehicle_id,omitempty"`
	Vehicle          VehicleSnapshot `json:"vehicle"`
	AppointmentID    int64           `json:"appointment_id,omitempty"`
	Services         []ServiceLine   `json:"services"`
	TechnicianID     int64           `json:"technician_id,omitempty"`
	Status           Status          `json:"status"`
	Priority         Priority        `json:"priority"`
	PaymentTermsDays *int            `json:"payment_terms_days,omitempty"`
	InvoiceID        int64           `json:"invoice_id,omitempty"`
	Notes            []Note          `json:"notes,omitempty"`
	StartedAt        *time.Time      `json:"started_at,omitempty"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
	CreatedBy        int64           `json:"created_by,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// Customer is the directory view of a customer.
type Customer struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	Email            string `json:"email,omitempty"`
	Phone            string `json:"phone,omitempty"`
	PaymentTermsDays *int   `json:"payment_terms_days,omitempty"`
}

// CatalogService is a priced entry of the service catalog.
type CatalogService struct {
	Ref        string
	Name       string
	LaborHours decimal.Decimal
	LaborRate  decimal.Decimal
	// Price is the catalog's flat price, used as the recorded total.
	Price *decimal.Decimal
}

// CatalogPart is a priced inventory part.
type CatalogPart struct {
	PartNumber string
	Name       string
	UnitPrice  decimal.Decimal
}
