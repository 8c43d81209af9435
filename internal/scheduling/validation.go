package scheduling

import (
	"fmt"

	"github.com/torqueworks/torqueworks/internal/shared"
)

// ValidateAppointment checks the invariants an appointment must satisfy before
// it reaches conflict detection or storage.
func ValidateAppointment(a Appointment) error {
	errs := &shared.ValidationError{}
	if a.AssignedResourceID <= 0 {
		errs.Add("assigned_resource_id", "is required")
	}
	if a.CustomerID <= 0 {
		errs.Add("customer_id", "is required")
	}
	if a.ScheduledDate.IsZero() {
		errs.Add("scheduled_date", "is required")
	}
	if a.ScheduledTime < 0 || a.ScheduledTime.Minutes() > 23*60+59 {
		errs.Add("scheduled_time", "must be within the day")
	}
	if a.EstimatedDurationMinutes < MinDurationMinutes {
		errs.Add("estimated_duration_minutes", "must be at least %d", MinDurationMinutes)
	}
	if !a.Status.IsValid() {
		errs.Add("status", "unknown status %q", a.Status)
	}
	if a.EstimatedCost.Labor.Sign() < 0 {
		errs.Add("estimated_cost.labor", "must not be negative")
	}
	for i, p := range a.PartsRequired {
		if p.Name == "" {
			errs.Add(indexed("parts_required", i, "name"), "is required")
		}
		if p.Quantity < 1 {
			errs.Add(indexed("parts_required", i, "quantity"), "must be at least 1")
		}
		if p.UnitCost.Sign() < 0 {
			errs.Add(indexed("parts_required", i, "unit_cost"), "must not be negative")
		}
	}
	return errs.OrNil()
}

func indexed(prefix string, i int, field string) string {
	return fmt.Sprintf("%s[%d].%s", prefix, i, field)
}
