package workorders

import "context"

// CustomerDirectory resolves customers and snapshots their vehicles.
type CustomerDirectory interface {
	Customer(ctx context.Context, id int64) (Customer, error)
	Vehicle(ctx context.Context, customerID, vehicleID int64) (VehicleSnapshot, error)
}

// Catalog resolves service and part references to authoritative pricing.
type Catalog interface {
	Service(ctx context.Context, ref string) (CatalogService, error)
	Part(ctx context.Context, partNumber string) (CatalogPart, error)
}

// Metrics receives domain counters.
type Metrics interface {
	IllegalTransition(entity string)
}
