package billing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/torqueworks/torqueworks/internal/invoicing"
	"github.com/torqueworks/torqueworks/internal/shared"
	"github.com/torqueworks/torqueworks/internal/workorders"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

var issueDay = time.Date(2025, 1, 10, 16, 45, 0, 0, time.UTC)

func brakeOrder() workorders.WorkOrder {
	return workorders.WorkOrder{
		ID:            21,
		Number:        "WO-20250110-0003",
		CustomerID:    3,
		AppointmentID: 8,
		Status:        workorders.StatusCompleted,
		Services: []workorders.ServiceLine{{
			ServiceRef:    "BRK",
			Name:          "Brake job",
			LaborHours:    dec("2"),
			LaborRate:     dec("100"),
			Parts:         []workorders.Part{{Name: "Brake pads", PartNumber: "BP-1", Quantity: 2, UnitPrice: dec("15")}},
			RecordedTotal: decPtr("250"),
		}},
	}
}

func shopTerms() invoicing.Terms {
	return invoicing.Terms{TaxRate: dec("8"), PaymentTermsDays: 30, Currency: "USD"}
}

func TestBuildInvoiceEmitsLaborPartsAndOverhead(t *testing.T) {
	inv, err := BuildInvoice(brakeOrder(), shopTerms(), issueDay)
	require.NoError(t, err)

	require.Len(t, inv.Items, 3)
	labor, part, overhead := inv.Items[0], inv.Items[1], inv.Items[2]

	assert.Equal(t, invoicing.ItemLabor, labor.Type)
	assert.Equal(t, "Brake job - Labor", labor.Description)
	assert.True(t, labor.TotalPrice.Equal(dec("200")))
	assert.Equal(t, "BRK", labor.Metadata[MetaServiceRef])

	assert.Equal(t, invoicing.ItemPart, part.Type)
	assert.Equal(t, "BP-1", part.Metadata[MetaPartNumber])
	assert.True(t, part.TotalPrice.Equal(dec("30")))

	assert.Equal(t, invoicing.ItemOverhead, overhead.Type)
	assert.True(t, overhead.Quantity.Equal(dec("1")))
	assert.True(t, overhead.TotalPrice.Equal(dec("20")))

	assert.True(t, inv.Subtotal.Equal(dec("250")))
	assert.True(t, inv.TaxAmount.Equal(dec("20")))
	assert.True(t, inv.Total.Equal(dec("270")))
	assert.Equal(t, int64(21), inv.WorkOrderID)
	assert.Equal(t, time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC), inv.IssueDate)
	assert.Equal(t, time.Date(2025, 2, 9, 0, 0, 0, 0, time.UTC), inv.DueDate)
}

func TestBuildInvoiceSkipsFreeLaborAndMissingOverhead(t *testing.T) {
	order := brakeOrder()
	order.Services[0].LaborHours = decimal.Zero
	order.Services[0].RecordedTotal = nil

	inv, err := BuildInvoice(order, shopTerms(), issueDay)
	require.NoError(t, err)
	require.Len(t, inv.Items, 1)
	assert.Equal(t, invoicing.ItemPart, inv.Items[0].Type)
}

func TestBuildInvoiceHonoursOrderTerms(t *testing.T) {
	order := brakeOrder()
	days := 7
	order.PaymentTermsDays = &days

	inv, err := BuildInvoice(order, shopTerms(), issueDay)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 17, 0, 0, 0, 0, time.UTC), inv.DueDate)
}

func TestBuildInvoiceRejectsEmptyOrder(t *testing.T) {
	order := brakeOrder()
	order.Services = nil
	_, err := BuildInvoice(order, shopTerms(), issueDay)
	require.ErrorIs(t, err, shared.ErrValidation)
}
