// Package directory resolves customers, vehicles and catalog pricing from
// Postgres for the work order service.
package directory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/torqueworks/torqueworks/internal/workorders"
)

// Store reads the customers, vehicles, service_catalog and inventory_parts
// tables.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore constructs a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Customer implements workorders.CustomerDirectory.
func (s *Store) Customer(ctx context.Context, id int64) (workorders.Customer, error) {
	var c workorders.Customer
	var email, phone *string
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, email, phone, payment_terms_days
		FROM customers WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &email, &phone, &c.PaymentTermsDays)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return workorders.Customer{}, workorders.ErrCustomerNotFound
		}
		return workorders.Customer{}, err
	}
	if email != nil {
		c.Email = *email
	}
	if phone != nil {
		c.Phone = *phone
	}
	return c, nil
}

// Vehicle implements workorders.CustomerDirectory. A vehicle owned by another
// customer is reported as not found.
func (s *Store) Vehicle(ctx context.Context, customerID, vehicleID int64) (workorders.VehicleSnapshot, error) {
	var v workorders.VehicleSnapshot
	err := s.pool.QueryRow(ctx, `
		SELECT make, model, year, COALESCE(vin, ''), COALESCE(license_plate, ''), COALESCE(mileage, 0)
		FROM vehicles WHERE id = $1 AND customer_id = $2`, vehicleID, customerID).
		Scan(&v.Make, &v.Model, &v.Year, &v.VIN, &v.LicensePlate, &v.Mileage)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return workorders.VehicleSnapshot{}, workorders.ErrVehicleNotFound
		}
		return workorders.VehicleSnapshot{}, err
	}
	return v, nil
}

// Service implements workorders.Catalog for active catalog entries.
func (s *Store) Service(ctx context.Context, ref string) (workorders.CatalogService, error) {
	var (
		svc   workorders.CatalogService
		price *decimal.Decimal
	)
	err := s.pool.QueryRow(ctx, `
		SELECT ref, name, labor_hours, labor_rate, price
		FROM service_catalog WHERE ref = $1 AND active`, ref).
		Scan(&svc.Ref, &svc.Name, &svc.LaborHours, &svc.LaborRate, &price)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return workorders.CatalogService{}, workorders.ErrCatalogNotFound
		}
		return workorders.CatalogService{}, err
	}
	svc.Price = price
	return svc, nil
}

// Part implements workorders.Catalog for active inventory parts.
func (s *Store) Part(ctx context.Context, partNumber string) (workorders.CatalogPart, error) {
	var p workorders.CatalogPart
	err := s.pool.QueryRow(ctx, `
		SELECT part_number, name, unit_price
		FROM inventory_parts WHERE part_number = $1 AND active`, partNumber).
		Scan(&p.PartNumber, &p.Name, &p.UnitPrice)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return workorders.CatalogPart{}, workorders.ErrCatalogNotFound
		}
		return workorders.CatalogPart{}, err
	}
	return p, nil
}
