package workorders

import (
	"errors"
	"fmt"

	"github.com/torqueworks/torqueworks/internal/shared"
)

// Domain errors for work orders.
var (
	// ErrNotFound indicates the requested work order was not found.
	ErrNotFound = fmt.Errorf("work order %w", shared.ErrNotFound)
	// ErrAppointmentNotFound indicates the source appointment is missing.
	ErrAppointmentNotFound = fmt.Errorf("appointment %w", shared.ErrNotFound)
	// ErrCustomerNotFound is returned by directories for unknown customers.
	ErrCustomerNotFound = fmt.Errorf("customer %w", shared.ErrNotFound)
	// ErrVehicleNotFound is returned by directories for unknown vehicles.
	ErrVehicleNotFound = fmt.Errorf("vehicle %w", shared.ErrNotFound)
	// ErrCatalogNotFound is returned for unknown catalog services or parts.
	ErrCatalogNotFound = fmt.Errorf("catalog entry %w", shared.ErrNotFound)
	// ErrStaleStatus means another writer changed the status first.
	ErrStaleStatus = errors.New("work order status changed concurrently")
)
