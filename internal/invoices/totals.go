package invoices

import "github.com/shopspring/decimal"

// MoneyScale is the number of fraction digits stored for every amount and
// unit price.
const MoneyScale = 2

// Column precision of stored source fields.
const (
	QuantityScale = 3
	PercentScale  = 2
)

var (
	// MaxQuantity is the largest NUMERIC(10,3) value.
	MaxQuantity = decimal.RequireFromString("9999999.999")
	// MaxUnitPrice is the largest NUMERIC(10,2) value.
	MaxUnitPrice = decimal.RequireFromString("99999999.99")
	// MaxAmount is the largest NUMERIC(12,2) value, the bound for every line
	// amount and invoice total.
	MaxAmount = decimal.RequireFromString("9999999999.99")
)

// Amounts are the derived monetary fields of one line item.
type Amounts struct {
	Subtotal       decimal.Decimal
	DiscountAmount decimal.Decimal
	NetAmount      decimal.Decimal
	VATAmount      decimal.Decimal
	GrossAmount    decimal.Decimal
}

// Totals are the invoice-level sums of item Amounts.
type Totals struct {
	Subtotal      decimal.Decimal
	TotalDiscount decimal.Decimal
	TotalNet      decimal.Decimal
	TotalVAT      decimal.Decimal
	TotalGross    decimal.Decimal
}

// ComputeAmounts derives line amounts from the source fields.
//
// Each product is taken at full precision and rounded half away from zero to
// MoneyScale when assigned. Net and gross are exact differences and sums of
// already rounded fields, so NetAmount+VATAmount == GrossAmount and
// Subtotal-NetAmount == DiscountAmount hold without tolerance.
func ComputeAmounts(quantity, unitPrice, discountPct, vatRate decimal.Decimal) Amounts {
	subtotal := quantity.Mul(unitPrice).Round(MoneyScale)
	discount := percentOf(subtotal, discountPct)
	net := subtotal.Sub(discount)
	vat := percentOf(net, vatRate)
	return Amounts{
		Subtotal:       subtotal,
		DiscountAmount: discount,
		NetAmount:      net,
		VATAmount:      vat,
		GrossAmount:    net.Add(vat),
	}
}

// percentOf returns base*pct/100 rounded to MoneyScale. The division is a
// decimal shift and loses nothing.
func percentOf(base, pct decimal.Decimal) decimal.Decimal {
	return base.Mul(pct).Shift(-2).Round(MoneyScale)
}

// Recalculate refreshes the item's derived amounts from its source fields.
func (it *Item) Recalculate() {
	it.Amounts = ComputeAmounts(it.Quantity, it.UnitPrice, it.DiscountPercentage, it.VATRate)
}

// SumTotals adds up the amounts of items. An empty slice yields zero totals.
func SumTotals(items []Item) Totals {
	var t Totals
	for _, it := range items {
		t.Subtotal = t.Subtotal.Add(it.Subtotal)
		t.TotalDiscount = t.TotalDiscount.Add(it.DiscountAmount)
		t.TotalNet = t.TotalNet.Add(it.NetAmount)
		t.TotalVAT = t.TotalVAT.Add(it.VATAmount)
		t.TotalGross = t.TotalGross.Add(it.GrossAmount)
	}
	return t
}

// RecomputeTotals sets the invoice aggregates from its current items. Items
// must already carry computed amounts.
func (inv *Invoice) RecomputeTotals() {
	inv.Totals = SumTotals(inv.Items)
}
