package invoices

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// Fallback labels for catalog rows that no longer resolve.
const (
	unknownProduct = "Unknown Product"
	unknownUnit    = "Unknown Unit"
	unknownSymbol  = "?"
)

type headerRequest struct {
	InvoiceNumber    *string `json:"invoice_number" validate:"omitempty,min=1,max=100"`
	Reference        *string `json:"reference" validate:"omitempty,max=100"`
	SupplierID       *string `json:"supplier_id" validate:"omitempty,uuid"`
	OrderDate        *string `json:"order_date" validate:"omitempty,datetime=2006-01-02"`
	OrderNumber      *string `json:"order_number" validate:"omitempty,max=100"`
	DeliveryDate     *string `json:"delivery_date" validate:"omitempty,datetime=2006-01-02"`
	DeliveryNote     *string `json:"delivery_note" validate:"omitempty,max=100"`
	InvoiceDate      *string `json:"invoice_date" validate:"omitempty,datetime=2006-01-02"`
	DueDate          *string `json:"due_date" validate:"omitempty,datetime=2006-01-02"`
	ReceivedDate     *string `json:"received_date" validate:"omitempty,datetime=2006-01-02"`
	PaymentStatus    *string `json:"payment_status" validate:"omitempty,oneof=pending partial paid overdue cancelled"`
	PaymentDate      *string `json:"payment_date" validate:"omitempty,datetime=2006-01-02"`
	PaymentReference *string `json:"payment_reference" validate:"omitempty,max=100"`
	PaymentMethod    *string `json:"payment_method" validate:"omitempty,max=50"`
	Notes            *string `json:"notes"`
}

// patch converts a validated request. Parsing cannot fail past validation.
func (r headerRequest) patch() HeaderPatch {
	p := HeaderPatch{
		InvoiceNumber:    r.InvoiceNumber,
		Reference:        r.Reference,
		SupplierID:       parseUUID(r.SupplierID),
		OrderDate:        parseDate(r.OrderDate),
		OrderNumber:      r.OrderNumber,
		DeliveryDate:     parseDate(r.DeliveryDate),
		DeliveryNote:     r.DeliveryNote,
		InvoiceDate:      parseDate(r.InvoiceDate),
		DueDate:          parseDate(r.DueDate),
		ReceivedDate:     parseDate(r.ReceivedDate),
		PaymentDate:      parseDate(r.PaymentDate),
		PaymentReference: r.PaymentReference,
		PaymentMethod:    r.PaymentMethod,
		Notes:            r.Notes,
	}
	if r.PaymentStatus != nil {
		status := PaymentStatus(*r.PaymentStatus)
		p.PaymentStatus = &status
	}
	return p
}

type createRequest struct {
	headerRequest
	Items []itemRequest `json:"items" validate:"omitempty,dive"`
}

type itemRequest struct {
	ProductID          string           `json:"product_id" validate:"required,uuid"`
	Description        *string          `json:"description" validate:"omitempty,max=255"`
	Quantity           *decimal.Decimal `json:"quantity" validate:"required,gte=0,lte=9999999.999"`
	UnitID             string           `json:"unit_id" validate:"required,uuid"`
	UnitPrice          *decimal.Decimal `json:"unit_price" validate:"required,gte=-99999999.99,lte=99999999.99"`
	DiscountPercentage *decimal.Decimal `json:"discount_percentage" validate:"omitempty,gte=0,lte=100"`
	VATRate            *decimal.Decimal `json:"vat_rate" validate:"omitempty,gte=0,lte=100"`
}

func (r itemRequest) newItem() NewItem {
	item := NewItem{
		ProductID:   uuid.MustParse(r.ProductID),
		Description: r.Description,
		Quantity:    *r.Quantity,
		UnitID:      uuid.MustParse(r.UnitID),
		UnitPrice:   *r.UnitPrice,
		VATRate:     r.VATRate,
	}
	if r.DiscountPercentage != nil {
		item.DiscountPercentage = *r.DiscountPercentage
	}
	return item
}

func newItems(reqs []itemRequest) []NewItem {
	items := make([]NewItem, 0, len(reqs))
	for _, r := range reqs {
		items = append(items, r.newItem())
	}
	return items
}

type itemPatchRequest struct {
	ProductID          *string          `json:"product_id" validate:"omitempty,uuid"`
	Description        *string          `json:"description" validate:"omitempty,max=255"`
	Quantity           *decimal.Decimal `json:"quantity" validate:"omitempty,gte=0,lte=9999999.999"`
	UnitID             *string          `json:"unit_id" validate:"omitempty,uuid"`
	UnitPrice          *decimal.Decimal `json:"unit_price" validate:"omitempty,gte=-99999999.99,lte=99999999.99"`
	DiscountPercentage *decimal.Decimal `json:"discount_percentage" validate:"omitempty,gte=0,lte=100"`
	VATRate            *decimal.Decimal `json:"vat_rate" validate:"omitempty,gte=0,lte=100"`
}

func (r itemPatchRequest) patch() ItemPatch {
	return ItemPatch{
		ProductID:          parseUUID(r.ProductID),
		Description:        r.Description,
		Quantity:           r.Quantity,
		UnitID:             parseUUID(r.UnitID),
		UnitPrice:          r.UnitPrice,
		DiscountPercentage: r.DiscountPercentage,
		VATRate:            r.VATRate,
	}
}

type itemUpdateRequest struct {
	ID string `json:"id" validate:"required,uuid"`
	itemPatchRequest
}

type mutateRequest struct {
	Header        *headerRequest      `json:"header"`
	UpdateItems   []itemUpdateRequest `json:"update_items" validate:"omitempty,dive"`
	AddItems      []itemRequest       `json:"add_items" validate:"omitempty,dive"`
	RemoveItemIDs []string            `json:"remove_item_ids" validate:"omitempty,dive,uuid"`
}

func (r mutateRequest) mutation() Mutation {
	var m Mutation
	if r.Header != nil {
		h := r.Header.patch()
		m.Header = &h
	}
	for _, u := range r.UpdateItems {
		m.Update = append(m.Update, ItemChange{ItemID: uuid.MustParse(u.ID), ItemPatch: u.patch()})
	}
	m.Add = newItems(r.AddItems)
	for _, id := range r.RemoveItemIDs {
		m.Remove = append(m.Remove, uuid.MustParse(id))
	}
	return m
}

type markPaidRequest struct {
	PaymentDate      *string `json:"payment_date" validate:"omitempty,datetime=2006-01-02"`
	PaymentReference *string `json:"payment_reference" validate:"omitempty,max=100"`
}

func parseUUID(s *string) *uuid.UUID {
	if s == nil {
		return nil
	}
	id := uuid.MustParse(*s)
	return &id
}

func parseDate(s *string) *time.Time {
	if s == nil {
		return nil
	}
	t, err := time.Parse(dateLayout, *s)
	if err != nil {
		return nil
	}
	return &t
}

func formatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(dateLayout)
	return &s
}

func money(d decimal.Decimal) string {
	return d.StringFixed(MoneyScale)
}

type supplierResponse struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	ContactName *string   `json:"contact_name,omitempty"`
	Email       *string   `json:"email,omitempty"`
	Phone       *string   `json:"phone,omitempty"`
	TaxID       *string   `json:"tax_id,omitempty"`
}

type itemResponse struct {
	ID                 uuid.UUID `json:"id"`
	InvoiceID          uuid.UUID `json:"invoice_id"`
	Position           int       `json:"position"`
	ProductID          uuid.UUID `json:"product_id"`
	ProductName        string    `json:"product_name"`
	Description        *string   `json:"description"`
	Quantity           string    `json:"quantity"`
	UnitID             uuid.UUID `json:"unit_id"`
	UnitName           string    `json:"unit_name"`
	UnitSymbol         string    `json:"unit_symbol"`
	UnitPrice          string    `json:"unit_price"`
	DiscountPercentage string    `json:"discount_percentage"`
	VATRate            string    `json:"vat_rate"`
	Subtotal           string    `json:"subtotal"`
	DiscountAmount     string    `json:"discount_amount"`
	NetAmount          string    `json:"net_amount"`
	VATAmount          string    `json:"vat_amount"`
	GrossAmount        string    `json:"gross_amount"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

type invoiceResponse struct {
	ID               uuid.UUID         `json:"id"`
	InvoiceNumber    string            `json:"invoice_number"`
	Reference        *string           `json:"reference"`
	SupplierID       uuid.UUID         `json:"supplier_id"`
	Supplier         *supplierResponse `json:"supplier,omitempty"`
	OrderDate        *string           `json:"order_date"`
	OrderNumber      *string           `json:"order_number"`
	DeliveryDate     *string           `json:"delivery_date"`
	DeliveryNote     *string           `json:"delivery_note"`
	InvoiceDate      string            `json:"invoice_date"`
	DueDate          string            `json:"due_date"`
	ReceivedDate     *string           `json:"received_date"`
	PaymentStatus    PaymentStatus     `json:"payment_status"`
	PaymentDate      *string           `json:"payment_date"`
	PaymentReference *string           `json:"payment_reference"`
	PaymentMethod    *string           `json:"payment_method"`
	Notes            *string           `json:"notes"`
	Subtotal         string            `json:"subtotal"`
	TotalDiscount    string            `json:"total_discount"`
	TotalNet         string            `json:"total_net"`
	TotalVAT         string            `json:"total_vat"`
	TotalGross       string            `json:"total_gross"`
	Items            []itemResponse    `json:"items,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

func newInvoiceResponse(inv Invoice) invoiceResponse {
	return invoiceResponse{
		ID:               inv.ID,
		InvoiceNumber:    inv.InvoiceNumber,
		Reference:        inv.Reference,
		SupplierID:       inv.SupplierID,
		OrderDate:        formatDate(inv.OrderDate),
		OrderNumber:      inv.OrderNumber,
		DeliveryDate:     formatDate(inv.DeliveryDate),
		DeliveryNote:     inv.DeliveryNote,
		InvoiceDate:      inv.InvoiceDate.Format(dateLayout),
		DueDate:          inv.DueDate.Format(dateLayout),
		ReceivedDate:     formatDate(inv.ReceivedDate),
		PaymentStatus:    inv.PaymentStatus,
		PaymentDate:      formatDate(inv.PaymentDate),
		PaymentReference: inv.PaymentReference,
		PaymentMethod:    inv.PaymentMethod,
		Notes:            inv.Notes,
		Subtotal:         money(inv.Subtotal),
		TotalDiscount:    money(inv.TotalDiscount),
		TotalNet:         money(inv.TotalNet),
		TotalVAT:         money(inv.TotalVAT),
		TotalGross:       money(inv.TotalGross),
		CreatedAt:        inv.CreatedAt,
		UpdatedAt:        inv.UpdatedAt,
	}
}

func newDetailResponse(d Detail) invoiceResponse {
	resp := newInvoiceResponse(d.Invoice)
	if s := d.Supplier; s != nil {
		resp.Supplier = &supplierResponse{
			ID:          s.ID,
			Name:        s.Name,
			ContactName: s.ContactName,
			Email:       s.Email,
			Phone:       s.Phone,
			TaxID:       s.TaxID,
		}
	}
	resp.Items = newItemResponses(d)
	return resp
}

func newItemResponses(d Detail) []itemResponse {
	items := make([]itemResponse, 0, len(d.Items))
	for _, it := range d.Items {
		items = append(items, newItemResponse(it, d.Products, d.Units))
	}
	return items
}

func newItemResponse(it Item, products map[uuid.UUID]ProductRef, units map[uuid.UUID]UnitRef) itemResponse {
	resp := itemResponse{
		ID:                 it.ID,
		InvoiceID:          it.InvoiceID,
		Position:           it.Position,
		ProductID:          it.ProductID,
		ProductName:        unknownProduct,
		Description:        it.Description,
		Quantity:           it.Quantity.String(),
		UnitID:             it.UnitID,
		UnitName:           unknownUnit,
		UnitSymbol:         unknownSymbol,
		UnitPrice:          money(it.UnitPrice),
		DiscountPercentage: it.DiscountPercentage.StringFixed(2),
		VATRate:            it.VATRate.StringFixed(2),
		Subtotal:           money(it.Subtotal),
		DiscountAmount:     money(it.DiscountAmount),
		NetAmount:          money(it.NetAmount),
		VATAmount:          money(it.VATAmount),
		GrossAmount:        money(it.GrossAmount),
		CreatedAt:          it.CreatedAt,
		UpdatedAt:          it.UpdatedAt,
	}
	if p, ok := products[it.ProductID]; ok {
		resp.ProductName = p.Name
	}
	if u, ok := units[it.UnitID]; ok {
		resp.UnitName = u.Name
		resp.UnitSymbol = u.Symbol
	}
	return resp
}
