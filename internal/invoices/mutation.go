package invoices

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	zero    = decimal.Zero
	hundred = decimal.NewFromInt(100)
)

// HeaderPatch changes header fields. Nil fields are left untouched.
type HeaderPatch struct {
	InvoiceNumber    *string
	Reference        *string
	SupplierID       *uuid.UUID
	OrderDate        *time.Time
	OrderNumber      *string
	DeliveryDate     *time.Time
	DeliveryNote     *string
	InvoiceDate      *time.Time
	DueDate          *time.Time
	ReceivedDate     *time.Time
	PaymentStatus    *PaymentStatus
	PaymentDate      *time.Time
	PaymentReference *string
	PaymentMethod    *string
	Notes            *string
}

func (p HeaderPatch) applyTo(h *Header) {
	setString(&h.InvoiceNumber, p.InvoiceNumber)
	setOpt(&h.Reference, p.Reference)
	if p.SupplierID != nil {
		h.SupplierID = *p.SupplierID
	}
	setOpt(&h.OrderDate, p.OrderDate)
	setOpt(&h.OrderNumber, p.OrderNumber)
	setOpt(&h.DeliveryDate, p.DeliveryDate)
	setOpt(&h.DeliveryNote, p.DeliveryNote)
	if p.InvoiceDate != nil {
		h.InvoiceDate = *p.InvoiceDate
	}
	if p.DueDate != nil {
		h.DueDate = *p.DueDate
	}
	setOpt(&h.ReceivedDate, p.ReceivedDate)
	if p.PaymentStatus != nil {
		h.PaymentStatus = *p.PaymentStatus
	}
	setOpt(&h.PaymentDate, p.PaymentDate)
	setOpt(&h.PaymentReference, p.PaymentReference)
	setOpt(&h.PaymentMethod, p.PaymentMethod)
	setOpt(&h.Notes, p.Notes)
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setOpt[T any](dst **T, v *T) {
	if v != nil {
		cp := *v
		*dst = &cp
	}
}

// ItemPatch changes source fields of an existing item.
type ItemPatch struct {
	ProductID          *uuid.UUID
	Description        *string
	Quantity           *decimal.Decimal
	UnitID             *uuid.UUID
	UnitPrice          *decimal.Decimal
	DiscountPercentage *decimal.Decimal
	VATRate            *decimal.Decimal
}

func (p ItemPatch) applyTo(it *Item) {
	if p.ProductID != nil {
		it.ProductID = *p.ProductID
	}
	setOpt(&it.Description, p.Description)
	if p.Quantity != nil {
		it.Quantity = *p.Quantity
	}
	if p.UnitID != nil {
		it.UnitID = *p.UnitID
	}
	if p.UnitPrice != nil {
		it.UnitPrice = *p.UnitPrice
	}
	if p.DiscountPercentage != nil {
		it.DiscountPercentage = *p.DiscountPercentage
	}
	if p.VATRate != nil {
		it.VATRate = *p.VATRate
	}
}

// ItemChange pairs an existing item with its patch.
type ItemChange struct {
	ItemID uuid.UUID
	ItemPatch
}

// NewItem describes a line to insert. Description defaults to the product
// name and VATRate to the product rate, then DefaultVATRate.
type NewItem struct {
	ProductID          uuid.UUID
	Description        *string
	Quantity           decimal.Decimal
	UnitID             uuid.UUID
	UnitPrice          decimal.Decimal
	DiscountPercentage decimal.Decimal
	VATRate            *decimal.Decimal
}

// References holds the catalog rows a mutation points at, keyed by id.
type References struct {
	Products  map[uuid.UUID]ProductRef
	Units     map[uuid.UUID]UnitRef
	Suppliers map[uuid.UUID]SupplierRef
}

// Mutation is one batch of header and item changes applied as a unit:
// header patch, item updates, inserts, removals, then a single totals
// recompute.
type Mutation struct {
	Header *HeaderPatch
	Update []ItemChange
	Add    []NewItem
	Remove []uuid.UUID

	creating bool
}

// CreateMutation builds the mutation that populates a new invoice.
func CreateMutation(header HeaderPatch, items []NewItem) Mutation {
	return Mutation{Header: &header, Add: items, creating: true}
}

// Empty reports whether the mutation changes nothing.
func (m Mutation) Empty() bool {
	return m.Header == nil && len(m.Update) == 0 && len(m.Add) == 0 && len(m.Remove) == 0
}

// ProductIDs lists products referenced by the mutation.
func (m Mutation) ProductIDs() []uuid.UUID {
	var ids []uuid.UUID
	for _, a := range m.Add {
		ids = append(ids, a.ProductID)
	}
	for _, u := range m.Update {
		if u.ProductID != nil {
			ids = append(ids, *u.ProductID)
		}
	}
	return uniqueIDs(ids)
}

// UnitIDs lists units referenced by the mutation.
func (m Mutation) UnitIDs() []uuid.UUID {
	var ids []uuid.UUID
	for _, a := range m.Add {
		ids = append(ids, a.UnitID)
	}
	for _, u := range m.Update {
		if u.UnitID != nil {
			ids = append(ids, *u.UnitID)
		}
	}
	return uniqueIDs(ids)
}

// SupplierIDs lists suppliers referenced by the mutation.
func (m Mutation) SupplierIDs() []uuid.UUID {
	if m.Header == nil || m.Header.SupplierID == nil {
		return nil
	}
	return []uuid.UUID{*m.Header.SupplierID}
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func (m Mutation) addField() string {
	if m.creating {
		return "items"
	}
	return "add_items"
}

// Validate checks the whole batch against inv without changing it. Item ids
// that do not belong to inv yield ErrItemNotFound; every other problem is
// collected into a *ValidationError.
func (m Mutation) Validate(inv Invoice, refs References) error {
	targeted := make(map[uuid.UUID]string, len(m.Update)+len(m.Remove))
	for i, u := range m.Update {
		if _, ok := inv.Item(u.ItemID); !ok {
			return fmt.Errorf("%w: %s", ErrItemNotFound, u.ItemID)
		}
		targeted[u.ItemID] = fmt.Sprintf("update_items[%d]", i)
	}
	for _, id := range m.Remove {
		if _, ok := inv.Item(id); !ok {
			return fmt.Errorf("%w: %s", ErrItemNotFound, id)
		}
	}

	errs := fieldErrors{}

	header := inv.Header
	if m.Header != nil {
		m.Header.applyTo(&header)
	}
	validateHeader(header, errs)
	if m.Header != nil && m.Header.SupplierID != nil {
		if _, ok := refs.Suppliers[*m.Header.SupplierID]; !ok {
			errs.add("supplier_id", "supplier not found")
		}
	}

	for i, u := range m.Update {
		field := fmt.Sprintf("update_items[%d]", i)
		current, _ := inv.Item(u.ItemID)
		next := *current
		u.ItemPatch.applyTo(&next)
		validateLine(field, next.Quantity, next.UnitPrice, next.DiscountPercentage, next.VATRate, errs)
		if u.ProductID != nil {
			if _, ok := refs.Products[*u.ProductID]; !ok {
				errs.add(field+".product_id", "product not found")
			}
		}
		if u.UnitID != nil {
			if _, ok := refs.Units[*u.UnitID]; !ok {
				errs.add(field+".unit_id", "unit not found")
			}
		}
	}

	for i, a := range m.Add {
		field := fmt.Sprintf("%s[%d]", m.addField(), i)
		vat := zero
		if a.VATRate != nil {
			vat = *a.VATRate
		}
		validateLine(field, a.Quantity, a.UnitPrice, a.DiscountPercentage, vat, errs)
		if _, ok := refs.Products[a.ProductID]; !ok {
			errs.add(field+".product_id", "product not found")
		}
		if _, ok := refs.Units[a.UnitID]; !ok {
			errs.add(field+".unit_id", "unit not found")
		}
	}

	seen := make(map[uuid.UUID]bool, len(m.Remove))
	for i, id := range m.Remove {
		field := fmt.Sprintf("remove_item_ids[%d]", i)
		if seen[id] {
			errs.add(field, "item listed more than once")
		}
		seen[id] = true
		if prior, ok := targeted[id]; ok {
			errs.add(field, "item is also updated by "+prior)
		}
	}

	if len(errs) == 0 {
		m.validateAmounts(inv, refs, errs)
	}
	return errs.err()
}

// validateAmounts computes the lines and totals the batch would produce and
// rejects any that the amount columns cannot hold.
func (m Mutation) validateAmounts(inv Invoice, refs References, errs fieldErrors) {
	removed := make(map[uuid.UUID]bool, len(m.Remove))
	for _, id := range m.Remove {
		removed[id] = true
	}
	updated := make(map[uuid.UUID]int, len(m.Update))
	for i, u := range m.Update {
		updated[u.ItemID] = i
	}

	lines := make([]Item, 0, len(inv.Items)+len(m.Add))
	for _, it := range inv.Items {
		if removed[it.ID] {
			continue
		}
		if i, ok := updated[it.ID]; ok {
			m.Update[i].ItemPatch.applyTo(&it)
			it.Recalculate()
			validateLineAmounts(fmt.Sprintf("update_items[%d]", i), it.Amounts, errs)
		}
		lines = append(lines, it)
	}
	for i, a := range m.Add {
		it := Item{
			Quantity:           a.Quantity,
			UnitPrice:          a.UnitPrice,
			DiscountPercentage: a.DiscountPercentage,
			VATRate:            resolveVAT(a.VATRate, refs.Products[a.ProductID]),
		}
		it.Recalculate()
		validateLineAmounts(fmt.Sprintf("%s[%d]", m.addField(), i), it.Amounts, errs)
		lines = append(lines, it)
	}

	totals := SumTotals(lines)
	for field, v := range map[string]decimal.Decimal{
		"subtotal":       totals.Subtotal,
		"total_discount": totals.TotalDiscount,
		"total_net":      totals.TotalNet,
		"total_vat":      totals.TotalVAT,
		"total_gross":    totals.TotalGross,
	} {
		if v.Abs().GreaterThan(MaxAmount) {
			errs.add(field, "exceeds "+MaxAmount.StringFixed(MoneyScale))
		}
	}
}

func validateLineAmounts(field string, a Amounts, errs fieldErrors) {
	for name, v := range map[string]decimal.Decimal{
		"subtotal":        a.Subtotal,
		"discount_amount": a.DiscountAmount,
		"net_amount":      a.NetAmount,
		"vat_amount":      a.VATAmount,
		"gross_amount":    a.GrossAmount,
	} {
		if v.Abs().GreaterThan(MaxAmount) {
			errs.add(field+"."+name, "exceeds "+MaxAmount.StringFixed(MoneyScale))
		}
	}
}

func validateHeader(h Header, errs fieldErrors) {
	if strings.TrimSpace(h.InvoiceNumber) == "" {
		errs.add("invoice_number", "is required")
	}
	if h.SupplierID == uuid.Nil {
		errs.add("supplier_id", "is required")
	}
	if h.InvoiceDate.IsZero() {
		errs.add("invoice_date", "is required")
	}
	if h.DueDate.IsZero() {
		errs.add("due_date", "is required")
	}
	if !h.InvoiceDate.IsZero() && !h.DueDate.IsZero() && h.DueDate.Before(h.InvoiceDate) {
		errs.add("due_date", "must not be before invoice_date")
	}
	if !h.PaymentStatus.Valid() {
		errs.add("payment_status", "must be one of: pending partial paid overdue cancelled")
	}
}

func validateLine(field string, qty, price, discount, vat decimal.Decimal, errs fieldErrors) {
	switch {
	case qty.IsNegative():
		errs.add(field+".quantity", "must be greater than or equal to 0")
	case qty.GreaterThan(MaxQuantity):
		errs.add(field+".quantity", "must not exceed "+MaxQuantity.String())
	case exceedsScale(qty, QuantityScale):
		errs.add(field+".quantity", fmt.Sprintf("must have at most %d decimal places", QuantityScale))
	}
	switch {
	case price.Abs().GreaterThan(MaxUnitPrice):
		errs.add(field+".unit_price", "must be between -"+MaxUnitPrice.String()+" and "+MaxUnitPrice.String())
	case exceedsScale(price, MoneyScale):
		errs.add(field+".unit_price", fmt.Sprintf("must have at most %d decimal places", MoneyScale))
	}
	validatePercent(field+".discount_percentage", discount, errs)
	validatePercent(field+".vat_rate", vat, errs)
}

func validatePercent(field string, pct decimal.Decimal, errs fieldErrors) {
	switch {
	case pct.IsNegative() || pct.GreaterThan(hundred):
		errs.add(field, "must be between 0 and 100")
	case exceedsScale(pct, PercentScale):
		errs.add(field, fmt.Sprintf("must have at most %d decimal places", PercentScale))
	}
}

// exceedsScale reports whether d carries non-zero digits beyond places.
func exceedsScale(d decimal.Decimal, places int32) bool {
	return !d.Equal(d.Truncate(places))
}

// Changeset records the rows a successful Apply touched.
type Changeset struct {
	Updated []Item
	Added   []Item
	Removed []uuid.UUID
}

// Apply validates the batch and, only when it is valid, applies it to inv in
// order: header, item updates, inserts, removals. Totals are recomputed once
// at the end. On error inv is unchanged.
func (m Mutation) Apply(inv *Invoice, refs References, newID func() uuid.UUID, now time.Time) (Changeset, error) {
	if err := m.Validate(*inv, refs); err != nil {
		return Changeset{}, err
	}
	if newID == nil {
		newID = uuid.New
	}

	var cs Changeset
	if m.Header != nil {
		m.Header.applyTo(&inv.Header)
	}

	for _, u := range m.Update {
		it, _ := inv.Item(u.ItemID)
		u.ItemPatch.applyTo(it)
		it.Recalculate()
		it.UpdatedAt = now
		cs.Updated = append(cs.Updated, *it)
	}

	for _, a := range m.Add {
		product := refs.Products[a.ProductID]
		it := Item{
			ID:                 newID(),
			InvoiceID:          inv.ID,
			Position:           inv.nextPosition(),
			ProductID:          a.ProductID,
			Description:        a.Description,
			Quantity:           a.Quantity,
			UnitID:             a.UnitID,
			UnitPrice:          a.UnitPrice,
			DiscountPercentage: a.DiscountPercentage,
			VATRate:            resolveVAT(a.VATRate, product),
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if it.Description == nil || strings.TrimSpace(*it.Description) == "" {
			name := product.Name
			it.Description = &name
		}
		it.Recalculate()
		inv.Items = append(inv.Items, it)
		cs.Added = append(cs.Added, it)
	}

	if len(m.Remove) > 0 {
		drop := make(map[uuid.UUID]bool, len(m.Remove))
		for _, id := range m.Remove {
			drop[id] = true
		}
		kept := inv.Items[:0]
		for _, it := range inv.Items {
			if drop[it.ID] {
				cs.Removed = append(cs.Removed, it.ID)
				continue
			}
			kept = append(kept, it)
		}
		inv.Items = kept
	}

	inv.RecomputeTotals()
	inv.UpdatedAt = now
	return cs, nil
}

func resolveVAT(requested *decimal.Decimal, product ProductRef) decimal.Decimal {
	switch {
	case requested != nil:
		return *requested
	case product.VATRate.Valid:
		return product.VATRate.Decimal
	default:
		return DefaultVATRate
	}
}
