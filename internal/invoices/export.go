package invoices

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const registerSheet = "Invoices"

var registerHeader = []any{
	"Invoice Number", "Supplier", "Invoice Date", "Due Date", "Status",
	"Subtotal", "Discount", "Net", "VAT", "Gross",
}

// Export writes the invoices matching filter to w as an XLSX register.
func (s *Service) Export(ctx context.Context, filter ListFilter, w io.Writer) error {
	invoices, err := s.List(ctx, filter)
	if err != nil {
		return err
	}
	ids := make([]uuid.UUID, 0, len(invoices))
	for _, inv := range invoices {
		ids = append(ids, inv.SupplierID)
	}
	suppliers, err := s.catalog.Suppliers(ctx, uniqueIDs(ids))
	if err != nil {
		return fmt.Errorf("export suppliers: %w", err)
	}
	return WriteRegister(w, invoices, suppliers)
}

// WriteRegister renders one row per invoice followed by a totals row.
func WriteRegister(w io.Writer, invoices []Invoice, suppliers map[uuid.UUID]SupplierRef) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), registerSheet); err != nil {
		return fmt.Errorf("register sheet: %w", err)
	}
	if err := f.SetSheetRow(registerSheet, "A1", &registerHeader); err != nil {
		return fmt.Errorf("register header: %w", err)
	}

	var sum Totals
	row := 2
	for _, inv := range invoices {
		supplier := unknownSupplier
		if s, ok := suppliers[inv.SupplierID]; ok {
			supplier = s.Name
		}
		values := []any{
			inv.InvoiceNumber,
			supplier,
			inv.InvoiceDate.Format(dateLayout),
			inv.DueDate.Format(dateLayout),
			string(inv.PaymentStatus),
			cellAmount(inv.Subtotal),
			cellAmount(inv.TotalDiscount),
			cellAmount(inv.TotalNet),
			cellAmount(inv.TotalVAT),
			cellAmount(inv.TotalGross),
		}
		if err := f.SetSheetRow(registerSheet, cellName(1, row), &values); err != nil {
			return fmt.Errorf("register row %d: %w", row, err)
		}
		sum.Subtotal = sum.Subtotal.Add(inv.Subtotal)
		sum.TotalDiscount = sum.TotalDiscount.Add(inv.TotalDiscount)
		sum.TotalNet = sum.TotalNet.Add(inv.TotalNet)
		sum.TotalVAT = sum.TotalVAT.Add(inv.TotalVAT)
		sum.TotalGross = sum.TotalGross.Add(inv.TotalGross)
		row++
	}

	totals := []any{
		"TOTAL", "", "", "", "",
		cellAmount(sum.Subtotal),
		cellAmount(sum.TotalDiscount),
		cellAmount(sum.TotalNet),
		cellAmount(sum.TotalVAT),
		cellAmount(sum.TotalGross),
	}
	if err := f.SetSheetRow(registerSheet, cellName(1, row), &totals); err != nil {
		return fmt.Errorf("register totals: %w", err)
	}

	if err := styleRegister(f, row); err != nil {
		return err
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write register: %w", err)
	}
	return nil
}

const unknownSupplier = "Unknown Supplier"

func styleRegister(f *excelize.File, lastRow int) error {
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	amount, err := f.NewStyle(&excelize.Style{NumFmt: 4})
	if err != nil {
		return err
	}
	boldAmount, err := f.NewStyle(&excelize.Style{NumFmt: 4, Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(registerSheet, "A1", "J1", bold); err != nil {
		return err
	}
	if lastRow > 2 {
		if err := f.SetCellStyle(registerSheet, "F2", cellName(10, lastRow-1), amount); err != nil {
			return err
		}
	}
	if err := f.SetCellStyle(registerSheet, cellName(1, lastRow), cellName(5, lastRow), bold); err != nil {
		return err
	}
	if err := f.SetCellStyle(registerSheet, cellName(6, lastRow), cellName(10, lastRow), boldAmount); err != nil {
		return err
	}
	if err := f.SetColWidth(registerSheet, "A", "B", 24); err != nil {
		return err
	}
	if err := f.SetColWidth(registerSheet, "C", "J", 13); err != nil {
		return err
	}
	return f.SetPanes(registerSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
}

func cellName(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}

// cellAmount converts an exact two-place amount for a numeric cell.
func cellAmount(d decimal.Decimal) float64 {
	return d.Round(MoneyScale).InexactFloat64()
}
