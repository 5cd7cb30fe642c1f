package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/kitchenledger/kitchenledger/internal/app"
	"github.com/kitchenledger/kitchenledger/internal/invoices"
	"github.com/kitchenledger/kitchenledger/internal/masterdata"
	"github.com/kitchenledger/kitchenledger/internal/platform/db"
)

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	ctx := context.Background()
	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns, MaxConnLifetime: cfg.PGMaxConnLifetime})
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	fmt.Println("→ Seeding master data...")
	refs, err := seedMasterData(ctx, pool)
	if err != nil {
		log.Fatalf("seed master data: %v", err)
	}

	fmt.Println("→ Seeding sample invoices...")
	if err := seedInvoices(ctx, pool, refs); err != nil {
		log.Fatalf("seed invoices: %v", err)
	}

	fmt.Println("✓ Seed complete at", time.Now().Format(time.RFC3339))
}

type seedRefs struct {
	suppliers map[string]uuid.UUID
	units     map[string]uuid.UUID
	products  map[string]uuid.UUID
}

func seedMasterData(ctx context.Context, pool *pgxpool.Pool) (seedRefs, error) {
	refs := seedRefs{
		suppliers: make(map[string]uuid.UUID),
		units:     make(map[string]uuid.UUID),
		products:  make(map[string]uuid.UUID),
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return refs, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	suppliers := []struct {
		taxID   string
		name    string
		contact string
		email   string
	}{
		{"GB123456789", "Fresh Farm Produce Ltd", "Ann Hollis", "orders@freshfarm.example"},
		{"GB987654321", "Harbour Fish Co", "Tom Reyes", "sales@harbourfish.example"},
		{"GB555000111", "Mill Lane Dry Goods", "Priya Shah", "accounts@milllane.example"},
	}
	for _, s := range suppliers {
		var id uuid.UUID
		err := tx.QueryRow(ctx, `
			INSERT INTO suppliers (name, contact_name, email, tax_id)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (tax_id) DO UPDATE SET name = EXCLUDED.name
			RETURNING id`, s.name, s.contact, s.email, s.taxID).Scan(&id)
		if err != nil {
			return refs, fmt.Errorf("supplier %s: %w", s.taxID, err)
		}
		refs.suppliers[s.taxID] = id
	}

	units := []struct {
		name   string
		symbol string
		base   bool
	}{
		{"Kilogram", "kg", true},
		{"Litre", "l", true},
		{"Case", "case", false},
		{"Each", "ea", true},
	}
	for _, u := range units {
		var id uuid.UUID
		err := tx.QueryRow(ctx, `
			INSERT INTO product_units (name, symbol, is_base_unit)
			VALUES ($1, $2, $3)
			ON CONFLICT (name) DO UPDATE SET symbol = EXCLUDED.symbol
			RETURNING id`, u.name, u.symbol, u.base).Scan(&id)
		if err != nil {
			return refs, fmt.Errorf("unit %s: %w", u.symbol, err)
		}
		refs.units[u.symbol] = id
	}

	products := []struct {
		code string
		name string
		unit string
		vat  *decimal.Decimal
	}{
		{"FLR-25", "Plain Flour", "kg", nil},
		{"OIL-OLV", "Olive Oil", "l", ptr(decimal.NewFromInt(20))},
		{"SAL-FIL", "Salmon Fillet", "kg", ptr(decimal.Zero)},
		{"TOM-CAN", "Chopped Tomatoes", "case", ptr(decimal.NewFromInt(5))},
	}
	for _, p := range products {
		var id uuid.UUID
		err := tx.QueryRow(ctx, `
			INSERT INTO products (name, code, purchase_unit_id, vat_rate)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name
			RETURNING id`, p.name, p.code, refs.units[p.unit], decimal.NullDecimal{Decimal: deref(p.vat), Valid: p.vat != nil}).Scan(&id)
		if err != nil {
			return refs, fmt.Errorf("product %s: %w", p.code, err)
		}
		refs.products[p.code] = id
	}

	return refs, tx.Commit(ctx)
}

// seedInvoices goes through the service so stored totals match what the API computes.
func seedInvoices(ctx context.Context, pool *pgxpool.Pool, refs seedRefs) error {
	svc := invoices.NewService(invoices.NewRepository(pool), masterdata.NewCatalog(pool), nil, nil)

	today := invoices.DateOnly(time.Now())
	samples := []struct {
		number   string
		supplier string
		issued   time.Time
		items    []invoices.NewItem
	}{
		{
			number:   "FF-1001",
			supplier: "GB123456789",
			issued:   today.AddDate(0, 0, -45),
			items: []invoices.NewItem{
				{ProductID: refs.products["FLR-25"], Quantity: decimal.NewFromInt(25), UnitID: refs.units["kg"], UnitPrice: decimal.RequireFromString("0.89")},
				{ProductID: refs.products["TOM-CAN"], Quantity: decimal.NewFromInt(4), UnitID: refs.units["case"], UnitPrice: decimal.RequireFromString("18.50"), VATRate: ptr(decimal.NewFromInt(5))},
			},
		},
		{
			number:   "HF-2040",
			supplier: "GB987654321",
			issued:   today.AddDate(0, 0, -3),
			items: []invoices.NewItem{
				{ProductID: refs.products["SAL-FIL"], Quantity: decimal.RequireFromString("7.5"), UnitID: refs.units["kg"], UnitPrice: decimal.RequireFromString("21.40"), DiscountPercentage: decimal.NewFromInt(5), VATRate: ptr(decimal.Zero)},
			},
		},
		{
			number:   "ML-0310",
			supplier: "GB555000111",
			issued:   today.AddDate(0, 0, -10),
			items: []invoices.NewItem{
				{ProductID: refs.products["OIL-OLV"], Quantity: decimal.NewFromInt(10), UnitID: refs.units["l"], UnitPrice: decimal.RequireFromString("12.99"), DiscountPercentage: decimal.NewFromInt(5), VATRate: ptr(decimal.NewFromInt(20))},
			},
		},
	}

	for _, s := range samples {
		supplierID := refs.suppliers[s.supplier]
		due := s.issued.AddDate(0, 0, 30)
		_, err := svc.Create(ctx, invoices.CreateInput{
			Header: invoices.HeaderPatch{
				InvoiceNumber: ptr(s.number),
				SupplierID:    &supplierID,
				InvoiceDate:   &s.issued,
				DueDate:       &due,
				ReceivedDate:  &s.issued,
			},
			Items: s.items,
		})
		if errors.Is(err, invoices.ErrDuplicateNumber) {
			fmt.Println("  skip", s.number, "(exists)")
			continue
		}
		if err != nil {
			return fmt.Errorf("invoice %s: %w", s.number, err)
		}
	}

	flagged, err := svc.FlagOverdue(ctx, today)
	if err != nil {
		return err
	}
	fmt.Println("  overdue flagged:", flagged)
	return nil
}

func ptr[T any](v T) *T { return &v }

func deref(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}
