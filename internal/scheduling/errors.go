package scheduling

import (
	"errors"
	"fmt"

	"github.com/torqueworks/torqueworks/internal/shared"
)

// Domain errors for appointments.
var (
	// ErrNotFound indicates the requested appointment was not found.
	ErrNotFound = fmt.Errorf("appointment %w", shared.ErrNotFound)
	// ErrSlotTaken is returned by repositories when the storage-level
	// overlap constraint rejects a write.
	ErrSlotTaken = errors.New("appointment slot already taken")
)

// MinDurationMinutes is the shortest bookable appointment.
const MinDurationMinutes = 15
