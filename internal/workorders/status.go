package workorders

import (
	"fmt"
	"time"

	"github.com/torqueworks/torqueworks/internal/shared"
)

// Status represents the lifecycle of a work order.
type Status string

const (
	StatusPending      Status = "pending"
	StatusInProgress   Status = "in_progress"
	StatusWaitingParts Status = "waiting_parts"
	StatusCompleted    Status = "completed"
	StatusCancelled    Status = "cancelled"
	StatusInvoiced     Status = "invoiced"
)

var transitions = map[Status][]Status{
	StatusPending:      {StatusInProgress, StatusCancelled},
	StatusInProgress:   {StatusWaitingParts, StatusCompleted, StatusCancelled},
	StatusWaitingParts: {StatusInProgress, StatusCancelled},
	StatusCompleted:    {StatusInvoiced},
}

// ParseStatus converts raw input into a Status.
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.IsValid() {
		return "", shared.Invalid("status", "unknown status %q", raw)
	}
	return s, nil
}

// IsValid checks if the status is valid.
func (s Status) IsValid() bool {
	_, ok := transitions[s]
	return ok || s == StatusCancelled || s == StatusInvoiced
}

// IsTerminal reports whether the order accepts no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusCancelled || s == StatusInvoiced
}

// CanEdit reports whether services may still change.
func (s Status) CanEdit() bool {
	return s == StatusPending || s == StatusInProgress || s == StatusWaitingParts
}

// CanTransitionTo checks the adjacency table.
func (s Status) CanTransitionTo(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition moves order to status to. The input is never modified; on
// success a copy carrying the new status and an appended audit note is
// returned.
func Transition(order WorkOrder, to Status, text string, actorID int64, at time.Time) (WorkOrder, error) {
	if !to.IsValid() {
		return WorkOrder{}, shared.Invalid("status", "unknown status %q", to)
	}
	if !order.Status.CanTransitionTo(to) {
		reason := ""
		if order.Status == StatusInvoiced {
			reason = "invoiced work orders are immutable"
		}
		return WorkOrder{}, &shared.IllegalTransitionError{
			Entity: "work_order",
			From:   string(order.Status),
			To:     string(to),
			Reason: reason,
		}
	}

	next := order
	next.Notes = append(make([]Note, 0, len(order.Notes)+1), order.Notes...)
	next.Notes = append(next.Notes, Note{At: at, ActorID: actorID, From: order.Status, To: to, Text: text})
	next.Status = to
	next.UpdatedAt = at
	switch to {
	case StatusInProgress:
		if next.StartedAt == nil {
			started := at
			next.StartedAt = &started
		}
	case StatusCompleted:
		completed := at
		next.CompletedAt = &completed
	}
	return next, nil
}

// EnsureMutable rejects edits of orders that are closed for changes.
func EnsureMutable(order WorkOrder) error {
	if order.Status.CanEdit() {
		return nil
	}
	return &shared.IllegalTransitionError{
		Entity: "work_order",
		From:   string(order.Status),
		To:     string(order.Status),
		Reason: fmt.Sprintf("work order %s cannot be modified", order.Status),
	}
}
