package billing

import (
	"fmt"

	"github.com/torqueworks/torqueworks/internal/invoicing"
	"github.com/torqueworks/torqueworks/internal/shared"
)

// ErrInvoiceExists is returned when a live invoice already covers the work
// order and replacement was not requested.
var ErrInvoiceExists = fmt.Errorf("invoice already exists for work order: %w", shared.ErrConflict)

func duplicate(orderID int64, live []invoicing.Invoice) error {
	numbers := make([]string, 0, len(live))
	for _, inv := range live {
		numbers = append(numbers, inv.Number)
	}
	return fmt.Errorf("%w: %w", ErrInvoiceExists, &shared.ConflictError{
		Reason:    fmt.Sprintf("work order %d already invoiced %v", orderID, numbers),
		Conflicts: live,
	})
}
