package invoices

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentStatus is the flat payment state of an invoice. Any status may be
// set from any other; only MarkPaid has dedicated behaviour.
type PaymentStatus string

const (
	StatusPending   PaymentStatus = "pending"
	StatusPartial   PaymentStatus = "partial"
	StatusPaid      PaymentStatus = "paid"
	StatusOverdue   PaymentStatus = "overdue"
	StatusCancelled PaymentStatus = "cancelled"
)

// Valid reports whether s is a known status.
func (s PaymentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusPartial, StatusPaid, StatusOverdue, StatusCancelled:
		return true
	}
	return false
}

// DefaultVATRate applies when neither the request nor the product carries a rate.
var DefaultVATRate = decimal.NewFromInt(20)

// Header holds the non-monetary invoice fields.
type Header struct {
	InvoiceNumber    string
	Reference        *string
	SupplierID       uuid.UUID
	OrderDate        *time.Time
	OrderNumber      *string
	DeliveryDate     *time.Time
	DeliveryNote     *string
	InvoiceDate      time.Time
	DueDate          time.Time
	ReceivedDate     *time.Time
	PaymentStatus    PaymentStatus
	PaymentDate      *time.Time
	PaymentReference *string
	PaymentMethod    *string
	Notes            *string
}

// Invoice is a supplier invoice with its current line items.
type Invoice struct {
	ID uuid.UUID
	Header
	Totals
	Items     []Item
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Item is one product line on an invoice. Amounts are derived from the four
// source fields by Recalculate and are never set directly.
type Item struct {
	ID                 uuid.UUID
	InvoiceID          uuid.UUID
	Position           int
	ProductID          uuid.UUID
	Description        *string
	Quantity           decimal.Decimal
	UnitID             uuid.UUID
	UnitPrice          decimal.Decimal
	DiscountPercentage decimal.Decimal
	VATRate            decimal.Decimal
	Amounts
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Item returns the item with the given id.
func (inv *Invoice) Item(id uuid.UUID) (*Item, bool) {
	for i := range inv.Items {
		if inv.Items[i].ID == id {
			return &inv.Items[i], true
		}
	}
	return nil, false
}

func (inv *Invoice) nextPosition() int {
	next := 1
	for _, it := range inv.Items {
		if it.Position >= next {
			next = it.Position + 1
		}
	}
	return next
}

// ProductRef is the slice of product data the invoice layer needs.
type ProductRef struct {
	ID      uuid.UUID
	Name    string
	VATRate decimal.NullDecimal
}

// UnitRef identifies a measurement unit.
type UnitRef struct {
	ID     uuid.UUID
	Name   string
	Symbol string
}

// SupplierRef summarises a supplier for invoice detail views.
type SupplierRef struct {
	ID          uuid.UUID
	Name        string
	ContactName *string
	Email       *string
	Phone       *string
	TaxID       *string
}

// Detail is an invoice enriched with supplier and catalog names.
type Detail struct {
	Invoice
	Supplier *SupplierRef
	Products map[uuid.UUID]ProductRef
	Units    map[uuid.UUID]UnitRef
}

// ListFilter narrows invoice listings. Set fields combine with AND.
type ListFilter struct {
	SupplierID  *uuid.UUID
	Status      *PaymentStatus
	StartDate   *time.Time
	EndDate     *time.Time
	Overdue     bool
	DueThisWeek bool
	// Today anchors the overdue and due-this-week predicates.
	Today time.Time
}

// EndOfWeek returns the Sunday closing the week that contains day.
func EndOfWeek(day time.Time) time.Time {
	offset := (7 - int(day.Weekday())) % 7
	return day.AddDate(0, 0, offset)
}

// Matches applies the filter to a single invoice. Repositories that cannot
// push a predicate down use it to post-filter.
func (f ListFilter) Matches(inv Invoice) bool {
	if f.SupplierID != nil && inv.SupplierID != *f.SupplierID {
		return false
	}
	if f.Status != nil && inv.PaymentStatus != *f.Status {
		return false
	}
	if f.StartDate != nil && inv.InvoiceDate.Before(*f.StartDate) {
		return false
	}
	if f.EndDate != nil && inv.InvoiceDate.After(*f.EndDate) {
		return false
	}
	open := inv.PaymentStatus == StatusPending || inv.PaymentStatus == StatusPartial
	if f.Overdue && !(open && inv.DueDate.Before(f.Today)) {
		return false
	}
	if f.DueThisWeek {
		end := EndOfWeek(f.Today)
		if !open || inv.DueDate.Before(f.Today) || inv.DueDate.After(end) {
			return false
		}
	}
	return true
}

// DateOnly truncates t to midnight UTC of its calendar day.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
