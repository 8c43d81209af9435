package scheduling

import (
	"time"

	"github.com/shopspring/decimal"
)

// PartInput is a requested part on an appointment.
type PartInput struct {
	Name       string          `json:"name" validate:"required,max=200"`
	PartNumber string          `json:"part_number" validate:"max=64"`
	Quantity   int             `json:"quantity" validate:"gte=1"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
}

// CreateRequest books a new appointment.
type CreateRequest struct {
	CustomerID               int64           `json:"customer_id" validate:"required,gt=0"`
	VehicleID                int64           `json:"vehicle_id" validate:"gte=0"`
	AssignedResourceID       int64           `json:"assigned_resource_id" validate:"required,gt=0"`
	ServiceDescription       string          `json:"service_description" validate:"required,max=500"`
	ScheduledDate            time.Time       `json:"scheduled_date" validate:"required"`
	ScheduledTime            ClockTime       `json:"scheduled_time"`
	EstimatedDurationMinutes int             `json:"estimated_duration_minutes" validate:"gte=15"`
	EstimatedLabor           decimal.Decimal `json:"estimated_labor"`
	PartsRequired            []PartInput     `json:"parts_required" validate:"dive"`
	Notes                    string          `json:"notes" validate:"max=2000"`
	// RequiresApproval books the appointment as pending_approval; it holds no
	// slot until a work order confirms it.
	RequiresApproval bool `json:"requires_approval"`
}

// RescheduleRequest moves an appointment.
type RescheduleRequest struct {
	AssignedResourceID       int64     `json:"assigned_resource_id" validate:"gte=0"`
	ScheduledDate            time.Time `json:"scheduled_date" validate:"required"`
	ScheduledTime            ClockTime `json:"scheduled_time"`
	EstimatedDurationMinutes int       `json:"estimated_duration_minutes" validate:"gte=15"`
}

// StatusRequest changes an appointment status.
type StatusRequest struct {
	Status Status `json:"status" validate:"required"`
}

// PartsRequest replaces the parts list.
type PartsRequest struct {
	PartsRequired []PartInput `json:"parts_required" validate:"dive"`
}

// AvailabilityRequest describes a slot to probe.
type AvailabilityRequest struct {
	AppointmentID            int64     `json:"appointment_id"`
	AssignedResourceID       int64     `json:"assigned_resource_id" validate:"required,gt=0"`
	ScheduledDate            time.Time `json:"scheduled_date" validate:"required"`
	ScheduledTime            ClockTime `json:"scheduled_time"`
	EstimatedDurationMinutes int       `json:"estimated_duration_minutes" validate:"gte=15"`
}

// AvailabilityResponse reports the outcome of a probe.
type AvailabilityResponse struct {
	Available bool          `json:"available"`
	Conflicts []Appointment `json:"conflicts"`
}

func toParts(in []PartInput) []PartRequirement {
	out := make([]PartRequirement, 0, len(in))
	for _, p := range in {
		out = append(out, PartRequirement(p))
	}
	return out
}
