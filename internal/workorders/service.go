package workorders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/torqueworks/torqueworks/internal/events"
	"github.com/torqueworks/torqueworks/internal/scheduling"
	"github.com/torqueworks/torqueworks/internal/shared"
)

// Service manages work orders.
type Service struct {
	repo      Repository
	directory CustomerDirectory
	catalog   Catalog
	publisher events.Publisher
	metrics   Metrics
	logger    *slog.Logger
	defaults  Defaults
	now       func() time.Time
}

// NewService constructs a work order service.
func NewService(repo Repository, directory CustomerDirectory, catalog Catalog, defaults Defaults, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		directory: directory,
		catalog:   catalog,
		publisher: events.Discard{},
		logger:    logger,
		defaults:  defaults,
		now:       time.Now,
	}
}

// SetPublisher sets the event publisher.
func (s *Service) SetPublisher(p events.Publisher) {
	if p != nil {
		s.publisher = p
	}
}

// SetMetrics attaches domain counters.
func (s *Service) SetMetrics(m Metrics) {
	s.metrics = m
}

// Get returns a work order with its notes.
func (s *Service) Get(ctx context.Context, id int64) (WorkOrder, error) {
	return s.repo.Get(ctx, id)
}

// Cost returns per-service and order-level breakdowns.
func (s *Service) Cost(ctx context.Context, id int64) (OrderCost, error) {
	order, err := s.repo.Get(ctx, id)
	if err != nil {
		return OrderCost{}, err
	}
	return AggregateOrder(order)
}

// Create builds a work order from explicit input. The customer and vehicle are
// resolved through the directory and missing prices through the catalog.
func (s *Service) Create(ctx context.Context, req CreateRequest, actorID int64) (WorkOrder, error) {
	if err := shared.ValidateStruct(req); err != nil {
		return WorkOrder{}, err
	}
	if req.Priority == "" {
		req.Priority = s.defaults.Priority
	}
	if !req.Priority.IsValid() {
		req.Priority = PriorityNormal
	}

	customer, err := s.directory.Customer(ctx, req.CustomerID)
	if err != nil {
		return WorkOrder{}, fmt.Errorf("resolve customer: %w", err)
	}
	var vehicle VehicleSnapshot
	if req.VehicleID > 0 {
		vehicle, err = s.directory.Vehicle(ctx, req.CustomerID, req.VehicleID)
		if err != nil {
			return WorkOrder{}, fmt.Errorf("resolve vehicle: %w", err)
		}
	}
	services, err := s.resolveServices(ctx, req.Services)
	if err != nil {
		return WorkOrder{}, err
	}

	terms := req.PaymentTermsDays
	if terms == nil {
		terms = customer.PaymentTermsDays
	}
	now := s.now()
	order := WorkOrder{
		CustomerID:       customer.ID,
		CustomerName:     customer.Name,
		VehicleID:        req.VehicleID,
		Vehicle:          vehicle,
		Services:         services,
		TechnicianID:     req.TechnicianID,
		Status:           StatusPending,
		Priority:         req.Priority,
		PaymentTermsDays: terms,
		Notes:            []Note{{At: now, ActorID: actorID, To: StatusPending, Text: "created"}},
		CreatedBy:        actorID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return s.insert(ctx, tx, &order)
	})
	if err != nil {
		return WorkOrder{}, err
	}
	s.logger.Info("work order created", slog.Int64("id", order.ID), slog.String("number", order.Number))
	s.publish(ctx, events.New(events.KindWorkOrderCreated, order.ID, order.Number, now).
		With("number", order.Number), order.CustomerID)
	return order, nil
}

// CreateFromAppointment approves an appointment pending approval. The work
// order is inserted and the appointment confirmed in one transaction; on any
// failure neither changes.
func (s *Service) CreateFromAppointment(ctx context.Context, appointmentID, approverID int64) (WorkOrder, error) {
	var order WorkOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		appts := tx.Appointments()
		appt, err := appts.GetForUpdate(ctx, appointmentID)
		if err != nil {
			if errors.Is(err, scheduling.ErrNotFound) {
				return ErrAppointmentNotFound
			}
			return err
		}
		plan, err := PlanFromAppointment(appt, approverID, s.defaults, s.now())
		if err != nil {
			s.countIllegal(err, "appointment")
			return err
		}

		customer, err := s.directory.Customer(ctx, appt.CustomerID)
		if err != nil {
			return fmt.Errorf("resolve customer: %w", err)
		}
		plan.Order.CustomerName = customer.Name
		plan.Order.PaymentTermsDays = customer.PaymentTermsDays
		if appt.VehicleID > 0 {
			plan.Order.Vehicle, err = s.directory.Vehicle(ctx, appt.CustomerID, appt.VehicleID)
			if err != nil {
				return fmt.Errorf("resolve vehicle: %w", err)
			}
		}

		if err := confirmSlot(ctx, appts, plan.Appointment); err != nil {
			return err
		}
		if err := s.insert(ctx, tx, &plan.Order); err != nil {
			return err
		}
		if err := appts.Update(ctx, plan.Appointment); err != nil {
			if errors.Is(err, scheduling.ErrSlotTaken) {
				return &shared.ConflictError{Reason: "technician slot taken while approving"}
			}
			return fmt.Errorf("confirm appointment: %w", err)
		}
		order = plan.Order
		return nil
	})
	if err != nil {
		return WorkOrder{}, err
	}

	s.logger.Info("work order created from appointment",
		slog.Int64("id", order.ID),
		slog.Int64("appointment_id", appointmentID),
		slog.Int64("approver_id", approverID))
	s.publish(ctx, events.New(events.KindAppointmentConfirmed, appointmentID, "", order.CreatedAt), order.CustomerID)
	s.publish(ctx, events.New(events.KindWorkOrderCreated, order.ID, order.Number, order.CreatedAt).
		With("number", order.Number), order.CustomerID)
	return order, nil
}

// confirmSlot re-runs conflict detection for an appointment that is about to
// start holding its slot.
func confirmSlot(ctx context.Context, appts scheduling.TxRepository, appt scheduling.Appointment) error {
	if err := appts.LockResourceDay(ctx, appt.AssignedResourceID, appt.Day()); err != nil {
		return err
	}
	existing, err := appts.ListByResourceDay(ctx, appt.AssignedResourceID, appt.Day())
	if err != nil {
		return err
	}
	if conflicts := scheduling.FindConflicts(appt, existing); len(conflicts) > 0 {
		return &shared.ConflictError{Reason: "technician already booked", Conflicts: conflicts}
	}
	return nil
}

// UpdateStatus applies a guarded transition and records an audit note.
// Completing an order publishes workorder.completed; invoice generation reacts
// to it. The invoiced status is reserved for the billing pipeline.
func (s *Service) UpdateStatus(ctx context.Context, id int64, to Status, text string, actorID int64) (WorkOrder, error) {
	if to == StatusInvoiced {
		return WorkOrder{}, shared.Invalid("status", "invoiced is set by invoice generation")
	}
	order, err := s.transition(ctx, id, to, text, actorID, 0)
	if err != nil {
		return WorkOrder{}, err
	}
	if to == StatusCompleted {
		s.publish(ctx, events.New(events.KindWorkOrderCompleted, order.ID, "", order.UpdatedAt).
			With("number", order.Number), order.CustomerID)
	}
	return order, nil
}

// MarkInvoiced moves a completed order to invoiced and links the invoice.
func (s *Service) MarkInvoiced(ctx context.Context, id, invoiceID, actorID int64) (WorkOrder, error) {
	if invoiceID <= 0 {
		return WorkOrder{}, shared.Invalid("invoice_id", "is required")
	}
	return s.transition(ctx, id, StatusInvoiced, fmt.Sprintf("invoice #%d generated", invoiceID), actorID, invoiceID)
}

// RelinkInvoice points an invoiced order at a replacement invoice. The status
// stays invoiced; a note records the swap.
func (s *Service) RelinkInvoice(ctx context.Context, id, invoiceID, actorID int64) (WorkOrder, error) {
	if invoiceID <= 0 {
		return WorkOrder{}, shared.Invalid("invoice_id", "is required")
	}
	var out WorkOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if order.Status != StatusInvoiced {
			return &shared.IllegalTransitionError{
				Entity: "work_order",
				From:   string(order.Status),
				To:     string(StatusInvoiced),
				Reason: "only invoiced orders can be relinked",
			}
		}
		now := s.now()
		note := Note{
			At:      now,
			ActorID: actorID,
			From:    order.Status,
			To:      order.Status,
			Text:    fmt.Sprintf("invoice #%d replaced by #%d", order.InvoiceID, invoiceID),
		}
		order.InvoiceID = invoiceID
		order.UpdatedAt = now
		order.Notes = append(append(make([]Note, 0, len(order.Notes)+1), order.Notes...), note)
		if err := tx.UpdateStatus(ctx, order, StatusInvoiced); err != nil {
			return err
		}
		if err := tx.InsertNote(ctx, order.ID, note); err != nil {
			return err
		}
		out = order
		return nil
	})
	if err != nil {
		return WorkOrder{}, err
	}
	return out, nil
}

// UpdateServices replaces the service lines of an order that is still open.
func (s *Service) UpdateServices(ctx context.Context, id int64, req ServicesRequest) (WorkOrder, error) {
	if err := shared.ValidateStruct(req); err != nil {
		return WorkOrder{}, err
	}
	services, err := s.resolveServices(ctx, req.Services)
	if err != nil {
		return WorkOrder{}, err
	}
	var out WorkOrder
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := EnsureMutable(order); err != nil {
			s.countIllegal(err, "work_order")
			return err
		}
		order.Services = services
		order.UpdatedAt = s.now()
		if err := tx.UpdateServices(ctx, order); err != nil {
			return err
		}
		out = order
		return nil
	})
	if err != nil {
		return WorkOrder{}, err
	}
	return out, nil
}

func (s *Service) transition(ctx context.Context, id int64, to Status, text string, actorID, invoiceID int64) (WorkOrder, error) {
	var out WorkOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		next, err := Transition(order, to, text, actorID, s.now())
		if err != nil {
			s.countIllegal(err, "work_order")
			return err
		}
		if invoiceID > 0 {
			next.InvoiceID = invoiceID
		}
		if err := tx.UpdateStatus(ctx, next, order.Status); err != nil {
			return err
		}
		if err := tx.InsertNote(ctx, next.ID, next.Notes[len(next.Notes)-1]); err != nil {
			return err
		}
		out = next
		return nil
	})
	if err != nil {
		return WorkOrder{}, err
	}
	s.logger.Info("work order status changed",
		slog.Int64("id", out.ID),
		slog.String("status", string(out.Status)))
	return out, nil
}

func (s *Service) insert(ctx context.Context, tx TxRepository, order *WorkOrder) error {
	number, err := tx.NextNumber(ctx, order.CreatedAt)
	if err != nil {
		return fmt.Errorf("allocate work order number: %w", err)
	}
	order.Number = number
	id, err := tx.Insert(ctx, *order)
	if err != nil {
		return err
	}
	order.ID = id
	for i := range order.Notes {
		if err := tx.InsertNote(ctx, id, order.Notes[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) resolveServices(ctx context.Context, in []ServiceInput) ([]ServiceLine, error) {
	out := make([]ServiceLine, 0, len(in))
	for i, si := range in {
		line := ServiceLine{
			ServiceRef:    si.ServiceRef,
			Name:          si.Name,
			Description:   si.Description,
			RecordedTotal: si.RecordedTotal,
		}
		var entry *CatalogService
		if si.ServiceRef != "" {
			found, err := s.catalog.Service(ctx, si.ServiceRef)
			if err != nil {
				return nil, fmt.Errorf("services[%d]: resolve %q: %w", i, si.ServiceRef, err)
			}
			entry = &found
		}
		switch {
		case si.LaborHours != nil:
			line.LaborHours = *si.LaborHours
		case entry != nil:
			line.LaborHours = entry.LaborHours
		default:
			line.LaborHours = decimal.Zero
		}
		switch {
		case si.LaborRate != nil:
			line.LaborRate = *si.LaborRate
		case entry != nil && !entry.LaborRate.IsZero():
			line.LaborRate = entry.LaborRate
		default:
			line.LaborRate = s.defaults.LaborRate
		}
		if entry != nil {
			if line.Name == "" {
				line.Name = entry.Name
			}
			if line.RecordedTotal == nil && entry.Price != nil {
				price := *entry.Price
				line.RecordedTotal = &price
			}
		}

		for j, pi := range si.Parts {
			part := Part{Name: pi.Name, PartNumber: pi.PartNumber, Quantity: pi.Quantity}
			if pi.UnitPrice != nil {
				part.UnitPrice = *pi.UnitPrice
			} else {
				if pi.PartNumber == "" {
					return nil, shared.Invalid(fmt.Sprintf("services[%d].parts[%d].unit_price", i, j), "is required without part_number")
				}
				found, err := s.catalog.Part(ctx, pi.PartNumber)
				if err != nil {
					return nil, fmt.Errorf("services[%d].parts[%d]: resolve %q: %w", i, j, pi.PartNumber, err)
				}
				part.UnitPrice = found.UnitPrice
				if part.Name == "" {
					part.Name = found.Name
				}
			}
			line.Parts = append(line.Parts, part)
		}
		if line.Parts == nil {
			line.Parts = []Part{}
		}

		normalized, err := NormalizeService(line)
		if err != nil {
			return nil, fmt.Errorf("services[%d]: %w", i, err)
		}
		out = append(out, normalized)
	}
	return out, nil
}

func (s *Service) countIllegal(err error, entity string) {
	if s.metrics != nil && errors.Is(err, shared.ErrIllegalTransition) {
		s.metrics.IllegalTransition(entity)
	}
}

func (s *Service) publish(ctx context.Context, evt events.Event, customerID int64) {
	evt.CustomerID = customerID
	evt.Summary = fmt.Sprintf("%s #%d", evt.Kind, evt.EntityID)
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.logger.Warn("publish event failed", slog.String("kind", string(evt.Kind)), slog.Any("error", err))
	}
}
