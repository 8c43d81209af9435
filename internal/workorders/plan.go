package workorders

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/torqueworks/torqueworks/internal/scheduling"
	"github.com/torqueworks/torqueworks/internal/shared"
)

// Defaults carries shop-wide values applied to new work orders.
type Defaults struct {
	LaborRate decimal.Decimal
	Priority  Priority
}

// Plan is the outcome of approving an appointment: the order to insert and the
// appointment as it must be stored alongside it.
type Plan struct {
	Order       WorkOrder
	Appointment scheduling.Appointment
}

// LaborHoursFor converts a booked duration into billable hours, rounding up to
// whole hours.
func LaborHoursFor(minutes int) decimal.Decimal {
	if minutes <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64((minutes + 59) / 60))
}

// PlanFromAppointment builds a work order from an appointment awaiting
// approval. Neither input is modified; a wrong status yields an
// IllegalTransitionError.
func PlanFromAppointment(appt scheduling.Appointment, approverID int64, d Defaults, now time.Time) (Plan, error) {
	if appt.Status != scheduling.StatusPendingApproval {
		return Plan{}, &shared.IllegalTransitionError{
			Entity: "appointment",
			From:   string(appt.Status),
			To:     string(scheduling.StatusConfirmed),
			Reason: "only appointments pending approval can become work orders",
		}
	}
	if approverID <= 0 {
		return Plan{}, shared.Invalid("approver_id", "is required")
	}
	priority := d.Priority
	if !priority.IsValid() {
		priority = PriorityNormal
	}

	parts := make([]Part, 0, len(appt.PartsRequired))
	for _, p := range appt.PartsRequired {
		parts = append(parts, Part{
			Name:       p.Name,
			PartNumber: p.PartNumber,
			Quantity:   p.Quantity,
			UnitPrice:  p.UnitCost,
		})
	}
	svc, err := NormalizeService(ServiceLine{
		Name:       appt.ServiceDescription,
		LaborHours: LaborHoursFor(appt.EstimatedDurationMinutes),
		LaborRate:  d.LaborRate,
		Parts:      parts,
	})
	if err != nil {
		return Plan{}, err
	}

	order := WorkOrder{
		CustomerID:    appt.CustomerID,
		VehicleID:     appt.VehicleID,
		AppointmentID: appt.ID,
		Services:      []ServiceLine{svc},
		TechnicianID:  appt.AssignedResourceID,
		Status:        StatusPending,
		Priority:      priority,
		Notes: []Note{{
			At:      now,
			ActorID: approverID,
			To:      StatusPending,
			Text:    "created from appointment approval",
		}},
		CreatedBy: approverID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	confirmed := appt
	confirmed.Status = scheduling.StatusConfirmed
	confirmed.UpdatedAt = now
	return Plan{Order: order, Appointment: confirmed}, nil
}
