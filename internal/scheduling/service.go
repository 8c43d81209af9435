package scheduling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/torqueworks/torqueworks/internal/events"
	"github.com/torqueworks/torqueworks/internal/shared"
)

// Metrics receives domain counters.
type Metrics interface {
	ConflictDetected(scope string)
	IllegalTransition(entity string)
}

// Service books and maintains appointments.
type Service struct {
	repo      Repository
	publisher events.Publisher
	metrics   Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// NewService constructs a scheduling service.
func NewService(repo Repository, publisher events.Publisher, logger *slog.Logger) *Service {
	if publisher == nil {
		publisher = events.Discard{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, publisher: publisher, logger: logger, now: time.Now}
}

// SetMetrics attaches domain counters.
func (s *Service) SetMetrics(m Metrics) {
	s.metrics = m
}

// Get returns a single appointment.
func (s *Service) Get(ctx context.Context, id int64) (Appointment, error) {
	return s.repo.Get(ctx, id)
}

// ListByResourceDay returns a technician's appointments for a day.
func (s *Service) ListByResourceDay(ctx context.Context, resourceID int64, day time.Time) ([]Appointment, error) {
	return s.repo.ListByResourceDay(ctx, resourceID, DayOf(day))
}

// CheckAvailability reports what a candidate slot would collide with without
// writing anything.
func (s *Service) CheckAvailability(ctx context.Context, req AvailabilityRequest) ([]Appointment, error) {
	if err := shared.ValidateStruct(req); err != nil {
		return nil, err
	}
	candidate := Appointment{
		ID:                       req.AppointmentID,
		AssignedResourceID:       req.AssignedResourceID,
		ScheduledDate:            DayOf(req.ScheduledDate),
		ScheduledTime:            req.ScheduledTime,
		EstimatedDurationMinutes: req.EstimatedDurationMinutes,
		Status:                   StatusScheduled,
	}
	existing, err := s.repo.ListByResourceDay(ctx, candidate.AssignedResourceID, candidate.Day())
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return FindConflicts(candidate, existing), nil
}

// Create validates and books an appointment. Overlaps with slot-holding
// appointments of the same technician are refused with a ConflictError that
// carries the colliding appointments.
func (s *Service) Create(ctx context.Context, req CreateRequest, actorID int64) (Appointment, error) {
	if err := shared.ValidateStruct(req); err != nil {
		return Appointment{}, err
	}
	status := StatusScheduled
	if req.RequiresApproval {
		status = StatusPendingApproval
	}
	now := s.now()
	appt := RecomputeEstimate(Appointment{
		CustomerID:               req.CustomerID,
		VehicleID:                req.VehicleID,
		AssignedResourceID:       req.AssignedResourceID,
		ServiceDescription:       req.ServiceDescription,
		ScheduledDate:            DayOf(req.ScheduledDate),
		ScheduledTime:            req.ScheduledTime,
		EstimatedDurationMinutes: req.EstimatedDurationMinutes,
		Status:                   status,
		EstimatedCost:            Cost{Labor: req.EstimatedLabor.Round(2)},
		ActualCost:               Cost{Parts: decimal.Zero, Labor: decimal.Zero, Total: decimal.Zero},
		PartsRequired:            toParts(req.PartsRequired),
		Notes:                    req.Notes,
		CreatedBy:                actorID,
		CreatedAt:                now,
		UpdatedAt:                now,
	})
	if err := ValidateAppointment(appt); err != nil {
		return Appointment{}, err
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := s.guardSlot(ctx, tx, appt); err != nil {
			return err
		}
		id, err := tx.Insert(ctx, appt)
		if err != nil {
			return err
		}
		appt.ID = id
		return nil
	})
	if err != nil {
		return Appointment{}, s.mapSlotError(ctx, appt, err)
	}

	s.logger.Info("appointment booked",
		slog.Int64("id", appt.ID),
		slog.Int64("resource_id", appt.AssignedResourceID),
		slog.String("status", string(appt.Status)))
	s.publish(ctx, events.New(events.KindAppointmentScheduled, appt.ID, string(appt.Status), now).
		With("scheduled_date", appt.ScheduledDate.Format("2006-01-02")).
		With("scheduled_time", appt.ScheduledTime.String()), appt.CustomerID)
	return appt, nil
}

// Reschedule moves an appointment to a new slot (and optionally a new
// technician). The appointment's own current slot never conflicts with itself.
func (s *Service) Reschedule(ctx context.Context, id int64, req RescheduleRequest) (Appointment, error) {
	if err := shared.ValidateStruct(req); err != nil {
		return Appointment{}, err
	}
	var out Appointment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		appt, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if appt.Status.IsTerminal() {
			return s.illegal(appt.Status, appt.Status, "cannot reschedule a closed appointment")
		}
		if req.AssignedResourceID > 0 {
			appt.AssignedResourceID = req.AssignedResourceID
		}
		appt.ScheduledDate = DayOf(req.ScheduledDate)
		appt.ScheduledTime = req.ScheduledTime
		appt.EstimatedDurationMinutes = req.EstimatedDurationMinutes
		appt.UpdatedAt = s.now()
		if err := ValidateAppointment(appt); err != nil {
			return err
		}
		if err := s.guardSlot(ctx, tx, appt); err != nil {
			return err
		}
		out = appt
		return tx.Update(ctx, appt)
	})
	if err != nil {
		return Appointment{}, s.mapSlotError(ctx, out, err)
	}
	return out, nil
}

// UpdateStatus applies a guarded status transition. Moving into a slot-holding
// status re-checks the slot.
func (s *Service) UpdateStatus(ctx context.Context, id int64, to Status) (Appointment, error) {
	if !to.IsValid() {
		return Appointment{}, shared.Invalid("status", "unknown status %q", to)
	}
	var out Appointment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		appt, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !appt.Status.CanTransitionTo(to) {
			return s.illegal(appt.Status, to, "")
		}
		from := appt.Status
		appt.Status = to
		appt.UpdatedAt = s.now()
		if to.HoldsSlot() && !from.HoldsSlot() {
			if err := s.guardSlot(ctx, tx, appt); err != nil {
				return err
			}
		}
		out = appt
		return tx.Update(ctx, appt)
	})
	if err != nil {
		return Appointment{}, s.mapSlotError(ctx, out, err)
	}
	if to == StatusConfirmed {
		s.publish(ctx, events.New(events.KindAppointmentConfirmed, out.ID, "", out.UpdatedAt), out.CustomerID)
	}
	return out, nil
}

// UpdateParts replaces the parts list and recomputes the estimate.
func (s *Service) UpdateParts(ctx context.Context, id int64, req PartsRequest) (Appointment, error) {
	if err := shared.ValidateStruct(req); err != nil {
		return Appointment{}, err
	}
	var out Appointment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		appt, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if appt.Status.IsTerminal() {
			return s.illegal(appt.Status, appt.Status, "parts are frozen")
		}
		appt.PartsRequired = toParts(req.PartsRequired)
		appt = RecomputeEstimate(appt)
		appt.UpdatedAt = s.now()
		if err := ValidateAppointment(appt); err != nil {
			return err
		}
		out = appt
		return tx.Update(ctx, appt)
	})
	if err != nil {
		return Appointment{}, err
	}
	return out, nil
}

// guardSlot is the read-then-decide half of double-booking prevention. The
// repository serializes writers per technician-day and the exclusion
// constraint rejects anything that slips through.
func (s *Service) guardSlot(ctx context.Context, tx TxRepository, appt Appointment) error {
	if !appt.Status.HoldsSlot() {
		return nil
	}
	if err := tx.LockResourceDay(ctx, appt.AssignedResourceID, appt.Day()); err != nil {
		return fmt.Errorf("lock resource day: %w", err)
	}
	existing, err := tx.ListByResourceDay(ctx, appt.AssignedResourceID, appt.Day())
	if err != nil {
		return fmt.Errorf("list appointments: %w", err)
	}
	if conflicts := FindConflicts(appt, existing); len(conflicts) > 0 {
		return s.conflict(conflicts)
	}
	return nil
}

func (s *Service) mapSlotError(ctx context.Context, appt Appointment, err error) error {
	if !errors.Is(err, ErrSlotTaken) {
		return err
	}
	existing, lerr := s.repo.ListByResourceDay(ctx, appt.AssignedResourceID, appt.Day())
	if lerr != nil {
		s.logger.Warn("reload conflicts failed", slog.Any("error", lerr))
		existing = nil
	}
	return s.conflict(FindConflicts(appt, existing))
}

func (s *Service) conflict(conflicts []Appointment) error {
	if s.metrics != nil {
		s.metrics.ConflictDetected("appointment")
	}
	return &shared.ConflictError{
		Reason:    fmt.Sprintf("technician already booked (%d overlapping appointments)", len(conflicts)),
		Conflicts: conflicts,
	}
}

func (s *Service) illegal(from, to Status, reason string) error {
	if s.metrics != nil {
		s.metrics.IllegalTransition("appointment")
	}
	return &shared.IllegalTransitionError{Entity: "appointment", From: string(from), To: string(to), Reason: reason}
}

func (s *Service) publish(ctx context.Context, evt events.Event, customerID int64) {
	evt.CustomerID = customerID
	evt.Summary = fmt.Sprintf("%s #%d", evt.Kind, evt.EntityID)
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.logger.Warn("publish event failed", slog.String("kind", string(evt.Kind)), slog.Any("error", err))
	}
}
