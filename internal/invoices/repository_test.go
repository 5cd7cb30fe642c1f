package invoices_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kitchenledger/kitchenledger/internal/invoices"
	"github.com/kitchenledger/kitchenledger/internal/masterdata"
	"github.com/kitchenledger/kitchenledger/internal/platform/db/dbtest"
)

type seed struct {
	supplier, bottle, water uuid.UUID
}

func seedMasterdata(t *testing.T, pool *pgxpool.Pool) seed {
	t.Helper()
	ctx := context.Background()
	var s seed
	require.NoError(t, pool.QueryRow(ctx, `INSERT INTO suppliers (name) VALUES ('Metro Cash & Carry') RETURNING id`).Scan(&s.supplier))
	require.NoError(t, pool.QueryRow(ctx, `INSERT INTO product_units (name, symbol) VALUES ('Bottle', 'btl') RETURNING id`).Scan(&s.bottle))
	require.NoError(t, pool.QueryRow(ctx,
		`INSERT INTO products (name, purchase_unit_id) VALUES ('Mineral Water (500ml)', $1) RETURNING id`, s.bottle).Scan(&s.water))
	return s
}

func date(s string) *time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return &t
}

func str(s string) *string { return &s }

func TestPostgresInvoiceLifecycle(t *testing.T) {
	pool := dbtest.Open(t)
	s := seedMasterdata(t, pool)
	ctx := context.Background()
	svc := invoices.NewService(invoices.NewRepository(pool), masterdata.NewCatalog(pool), nil, nil)

	vat := decimal.NewFromInt(20)
	created, err := svc.Create(ctx, invoices.CreateInput{
		Header: invoices.HeaderPatch{
			InvoiceNumber: str("INV-12345"),
			SupplierID:    &s.supplier,
			InvoiceDate:   date("2023-01-15"),
			DueDate:       date("2023-02-14"),
		},
		Items: []invoices.NewItem{{
			ProductID:          s.water,
			Quantity:           decimal.NewFromInt(10),
			UnitID:             s.bottle,
			UnitPrice:          decimal.RequireFromString("12.99"),
			DiscountPercentage: decimal.NewFromInt(5),
			VATRate:            &vat,
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, "148.08", created.TotalGross.StringFixed(2))
	require.Len(t, created.Items, 1)
	assert.Equal(t, "24.68", created.Items[0].VATAmount.StringFixed(2))

	_, err = svc.Create(ctx, invoices.CreateInput{Header: invoices.HeaderPatch{
		InvoiceNumber: str("INV-12345"),
		SupplierID:    &s.supplier,
		InvoiceDate:   date("2023-01-15"),
		DueDate:       date("2023-02-14"),
	}})
	require.ErrorIs(t, err, invoices.ErrDuplicateNumber)

	item, err := svc.AddItem(ctx, created.ID, invoices.NewItem{
		ProductID: s.water,
		Quantity:  decimal.NewFromInt(6),
		UnitID:    s.bottle,
		UnitPrice: decimal.RequireFromString("0.50"),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, item.Position)
	assert.Equal(t, "20.00", item.VATRate.StringFixed(2))

	detail, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "151.68", detail.TotalGross.StringFixed(2))

	require.NoError(t, svc.RemoveItem(ctx, created.ID, created.Items[0].ID))
	detail, err = svc.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, detail.Items, 1)
	assert.Equal(t, "3.60", detail.TotalGross.StringFixed(2))

	count, err := svc.FlagOverdue(ctx, time.Date(2023, 2, 20, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	overdue := invoices.StatusOverdue
	list, err := svc.List(ctx, invoices.ListFilter{Status: &overdue})
	require.NoError(t, err)
	require.Len(t, list, 1)

	_, err = svc.Delete(ctx, created.ID)
	require.NoError(t, err)
	var remaining int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM invoice_items`).Scan(&remaining))
	assert.Zero(t, remaining)
}

func TestPostgresStoredAmountsMatchStoredSourceFields(t *testing.T) {
	pool := dbtest.Open(t)
	s := seedMasterdata(t, pool)
	ctx := context.Background()
	svc := invoices.NewService(invoices.NewRepository(pool), masterdata.NewCatalog(pool), nil, nil)
	header := invoices.HeaderPatch{
		InvoiceNumber: str("INV-SCALE"),
		SupplierID:    &s.supplier,
		InvoiceDate:   date("2023-01-15"),
		DueDate:       date("2023-02-14"),
	}

	_, err := svc.Create(ctx, invoices.CreateInput{Header: header, Items: []invoices.NewItem{{
		ProductID: s.water,
		Quantity:  decimal.NewFromInt(3),
		UnitID:    s.bottle,
		UnitPrice: decimal.RequireFromString("1.005"),
	}}})
	require.ErrorIs(t, err, invoices.ErrValidation)
	var count int
	require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM invoices`).Scan(&count))
	assert.Zero(t, count)

	vat := decimal.RequireFromString("5.5")
	created, err := svc.Create(ctx, invoices.CreateInput{Header: header, Items: []invoices.NewItem{{
		ProductID:          s.water,
		Quantity:           decimal.RequireFromString("3.125"),
		UnitID:             s.bottle,
		UnitPrice:          decimal.RequireFromString("1.01"),
		DiscountPercentage: decimal.RequireFromString("2.5"),
		VATRate:            &vat,
	}}})
	require.NoError(t, err)

	stored, err := invoices.NewRepository(pool).GetInvoice(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, stored.Items, 1)
	it := stored.Items[0]
	want := invoices.ComputeAmounts(it.Quantity, it.UnitPrice, it.DiscountPercentage, it.VATRate)
	assert.True(t, want.Subtotal.Equal(it.Subtotal), "subtotal %s vs %s", want.Subtotal, it.Subtotal)
	assert.True(t, want.DiscountAmount.Equal(it.DiscountAmount), "discount %s vs %s", want.DiscountAmount, it.DiscountAmount)
	assert.True(t, want.NetAmount.Equal(it.NetAmount), "net %s vs %s", want.NetAmount, it.NetAmount)
	assert.True(t, want.VATAmount.Equal(it.VATAmount), "vat %s vs %s", want.VATAmount, it.VATAmount)
	assert.True(t, want.GrossAmount.Equal(it.GrossAmount), "gross %s vs %s", want.GrossAmount, it.GrossAmount)
	assert.True(t, it.GrossAmount.Equal(stored.TotalGross))
}
