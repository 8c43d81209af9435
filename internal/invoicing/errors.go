package invoicing

import (
	"fmt"

	"github.com/torqueworks/torqueworks/internal/shared"
)

// Domain errors for invoices.
var (
	// ErrNotFound indicates the requested invoice was not found.
	ErrNotFound = fmt.Errorf("invoice %w", shared.ErrNotFound)
	// ErrWorkOrderInvoiced is returned when a live invoice already references
	// the work order.
	ErrWorkOrderInvoiced = fmt.Errorf("invoice already exists for work order: %w", shared.ErrConflict)
)
