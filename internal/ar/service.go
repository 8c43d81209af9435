package ar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ErrCustomerRequired is returned for statements without a customer.
var ErrCustomerRequired = errors.New("ar: customer id required")

// Repository lists open receivables.
type Repository interface {
	Outstanding(ctx context.Context, customerID int64) ([]Receivable, error)
}

// Statement lists a customer's open invoices.
type Statement struct {
	CustomerID int64                      `json:"customer_id"`
	AsOf       time.Time                  `json:"as_of"`
	Invoices   []Receivable               `json:"invoices"`
	Balance    map[string]decimal.Decimal `json:"balance"`
}

// Service builds receivables reports.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService constructs the receivables service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Aging groups every open balance as of asOf. A zero asOf means now.
func (s *Service) Aging(ctx context.Context, asOf time.Time) (Aging, error) {
	if asOf.IsZero() {
		asOf = s.now().UTC()
	}
	open, err := s.repo.Outstanding(ctx, 0)
	if err != nil {
		return Aging{}, fmt.Errorf("list outstanding: %w", err)
	}
	return BuildAging(open, asOf), nil
}

// CustomerStatement lists the open invoices of one customer.
func (s *Service) CustomerStatement(ctx context.Context, customerID int64, asOf time.Time) (Statement, error) {
	if customerID <= 0 {
		return Statement{}, ErrCustomerRequired
	}
	if asOf.IsZero() {
		asOf = s.now().UTC()
	}
	open, err := s.repo.Outstanding(ctx, customerID)
	if err != nil {
		return Statement{}, fmt.Errorf("list outstanding: %w", err)
	}
	st := Statement{CustomerID: customerID, AsOf: asOf, Invoices: make([]Receivable, 0, len(open)), Balance: map[string]decimal.Decimal{}}
	for _, r := range open {
		if days := DaysPastDue(r.DueDate, asOf); days > 0 {
			r.DaysLate = days
		}
		st.Invoices = append(st.Invoices, r)
		st.Balance[r.Currency] = st.Balance[r.Currency].Add(r.Balance)
	}
	return st, nil
}
