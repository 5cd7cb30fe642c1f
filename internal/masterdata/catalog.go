// Package masterdata resolves suppliers, products and units referenced by
// invoices. Record maintenance for these tables happens elsewhere.
package masterdata

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kitchenledger/kitchenledger/internal/invoices"
)

var _ invoices.Catalog = (*Catalog)(nil)

// Catalog reads master data rows by id.
type Catalog struct {
	db *pgxpool.Pool
}

// NewCatalog creates a Postgres-backed catalog.
func NewCatalog(db *pgxpool.Pool) *Catalog {
	return &Catalog{db: db}
}

// Products returns the products among ids that exist.
func (c *Catalog) Products(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]invoices.ProductRef, error) {
	out := make(map[uuid.UUID]invoices.ProductRef, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := c.db.Query(ctx, `SELECT id, name, vat_rate FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p invoices.ProductRef
		if err := rows.Scan(&p.ID, &p.Name, &p.VATRate); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

// Units returns the measurement units among ids that exist.
func (c *Catalog) Units(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]invoices.UnitRef, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]invoices.UnitRef{}, nil
	}
	rows, err := c.db.Query(ctx, `SELECT id, name, symbol FROM product_units WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("query units: %w", err)
	}
	units, err := pgx.CollectRows(rows, pgx.RowToStructByPos[invoices.UnitRef])
	if err != nil {
		return nil, fmt.Errorf("scan units: %w", err)
	}
	out := make(map[uuid.UUID]invoices.UnitRef, len(units))
	for _, u := range units {
		out[u.ID] = u
	}
	return out, nil
}

// Suppliers returns the suppliers among ids that exist.
func (c *Catalog) Suppliers(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]invoices.SupplierRef, error) {
	out := make(map[uuid.UUID]invoices.SupplierRef, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := c.db.Query(ctx, `SELECT id, name, contact_name, email, phone, tax_id FROM suppliers WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("query suppliers: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var s invoices.SupplierRef
		if err := rows.Scan(&s.ID, &s.Name, &s.ContactName, &s.Email, &s.Phone, &s.TaxID); err != nil {
			return nil, fmt.Errorf("scan supplier: %w", err)
		}
		out[s.ID] = s
	}
	return out, rows.Err()
}
