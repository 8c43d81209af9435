// Package scheduling manages appointments and detects double-booked technicians.
package scheduling

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Status represents the lifecycle of an appointment.
type Status string

const (
	StatusPendingApproval Status = "pending_approval" // Awaiting staff approval, not yet holding the slot
	StatusScheduled       Status = "scheduled"
	StatusConfirmed       Status = "confirmed"
	StatusInProgress      Status = "in_progress"
	StatusCompleted       Status = "completed"
	StatusCancelled       Status = "cancelled"
	StatusNoShow          Status = "no_show"
)

var appointmentTransitions = map[Status][]Status{
	StatusPendingApproval: {StatusConfirmed, StatusCancelled},
	StatusScheduled:       {StatusConfirmed, StatusInProgress, StatusCancelled, StatusNoShow},
	StatusConfirmed:       {StatusInProgress, StatusCancelled, StatusNoShow},
	StatusInProgress:      {StatusCompleted, StatusCancelled},
}

// ParseStatus converts raw input into a Status.
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.IsValid() {
		return "", fmt.Errorf("scheduling: unknown status %q", raw)
	}
	return s, nil
}

// IsValid checks if the status is valid.
func (s Status) IsValid() bool {
	switch s {
	case StatusPendingApproval, StatusScheduled, StatusConfirmed, StatusInProgress,
		StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	default:
		return false
	}
}

// HoldsSlot reports whether an appointment in this status occupies its
// technician's time and therefore takes part in conflict detection.
func (s Status) HoldsSlot() bool {
	return s == StatusScheduled || s == StatusConfirmed || s == StatusInProgress
}

// IsTerminal reports whether no further transitions are allowed.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusNoShow
}

// CanTransitionTo checks the appointment adjacency table.
func (s Status) CanTransitionTo(to Status) bool {
	for _, next := range appointmentTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// ClockTime is a time of day with minute resolution, stored as minutes since midnight.
type ClockTime int

// ParseClock parses "HH:MM" (24h).
func ParseClock(raw string) (ClockTime, error) {
	if len(raw) != 5 || raw[2] != ':' || !isDigits(raw[:2]) || !isDigits(raw[3:]) {
		return 0, fmt.Errorf("scheduling: time %q must be HH:MM", raw)
	}
	h, _ := strconv.Atoi(raw[:2])
	m, _ := strconv.Atoi(raw[3:])
	if h > 23 || m > 59 {
		return 0, fmt.Errorf("scheduling: time %q out of range", raw)
	}
	return ClockTime(h*60 + m), nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// Minutes returns minutes since midnight.
func (c ClockTime) Minutes() int { return int(c) }

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// MarshalJSON renders "HH:MM".
func (c ClockTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON parses "HH:MM".
func (c *ClockTime) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseClock(raw)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Cost splits an amount into parts and labor.
type Cost struct {
	Parts decimal.Decimal `json:"parts"`
	Labor decimal.Decimal `json:"labor"`
	Total decimal.Decimal `json:"total"`
}

// PartRequirement is a part expected to be consumed by the appointment.
type PartRequirement struct {
	Name       string          `json:"name"`
	PartNumber string          `json:"part_number,omitempty"`
	Quantity   int             `json:"quantity"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
}

// Appointment is a scheduled service slot assigned to a technician.
type Appointment struct {
	ID                       int64             `json:"id"`
	CustomerID               int64             `json:"customer_id"`
	VehicleID                int64             `json:"vehicle_id"`
	AssignedResourceID       int64             `json:"assigned_resource_id"`
	ServiceDescription       string            `json:"service_description"`
	ScheduledDate            time.Time         `json:"scheduled_date"`
	ScheduledTime            ClockTime         `json:"scheduled_time"`
	EstimatedDurationMinutes int               `json:"estimated_duration_minutes"`
	Status                   Status            `json:"status"`
	EstimatedCost            Cost              `json:"estimated_cost"`
	ActualCost               Cost              `json:"actual_cost"`
	PartsRequired            []PartRequirement `json:"parts_required"`
	Notes                    string            `json:"notes,omitempty"`
	CreatedBy                int64             `json:"created_by"`
	CreatedAt                time.Time         `json:"created_at"`
	UpdatedAt                time.Time         `json:"updated_at"`
}

// Interval returns the half-open minute range the appointment occupies.
func (a Appointment) Interval() Interval {
	start := a.ScheduledTime.Minutes()
	return Interval{Start: start, End: start + a.EstimatedDurationMinutes}
}

// Day returns the scheduled calendar day at midnight UTC.
func (a Appointment) Day() time.Time {
	return DayOf(a.ScheduledDate)
}

// DayOf truncates t to its calendar day, keeping the wall-clock date.
func DayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// RecomputeEstimate refreshes EstimatedCost after PartsRequired changed.
// Labor is kept as quoted; parts and total are derived.
func RecomputeEstimate(a Appointment) Appointment {
	parts := decimal.Zero
	for _, p := range a.PartsRequired {
		parts = parts.Add(decimal.NewFromInt(int64(p.Quantity)).Mul(p.UnitCost))
	}
	a.EstimatedCost.Parts = parts.Round(2)
	a.EstimatedCost.Total = a.EstimatedCost.Parts.Add(a.EstimatedCost.Labor)
	return a
}
