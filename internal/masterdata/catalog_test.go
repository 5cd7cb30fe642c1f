package masterdata

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kitchenledger/kitchenledger/internal/platform/db/dbtest"
)

func TestCatalogResolvesExistingRows(t *testing.T) {
	pool := dbtest.Open(t)
	ctx := context.Background()

	var supplierID, unitID, waterID, flourID uuid.UUID
	require.NoError(t, pool.QueryRow(ctx,
		`INSERT INTO suppliers (name, email) VALUES ('Metro Cash & Carry', 'orders@metro.test') RETURNING id`).Scan(&supplierID))
	require.NoError(t, pool.QueryRow(ctx,
		`INSERT INTO product_units (name, symbol) VALUES ('Bottle', 'btl') RETURNING id`).Scan(&unitID))
	require.NoError(t, pool.QueryRow(ctx,
		`INSERT INTO products (name, purchase_unit_id, vat_rate) VALUES ('Mineral Water (500ml)', $1, 5.5) RETURNING id`, unitID).Scan(&waterID))
	require.NoError(t, pool.QueryRow(ctx,
		`INSERT INTO products (name, purchase_unit_id) VALUES ('Flour T55', $1) RETURNING id`, unitID).Scan(&flourID))

	catalog := NewCatalog(pool)
	missing := uuid.New()

	products, err := catalog.Products(ctx, []uuid.UUID{waterID, flourID, missing})
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "5.5", products[waterID].VATRate.Decimal.String())
	assert.True(t, products[waterID].VATRate.Valid)
	assert.False(t, products[flourID].VATRate.Valid)

	units, err := catalog.Units(ctx, []uuid.UUID{unitID, missing})
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, "btl", units[unitID].Symbol)

	suppliers, err := catalog.Suppliers(ctx, []uuid.UUID{supplierID})
	require.NoError(t, err)
	require.Contains(t, suppliers, supplierID)
	assert.Equal(t, "orders@metro.test", *suppliers[supplierID].Email)
	assert.Nil(t, suppliers[supplierID].Phone)

	empty, err := catalog.Products(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
