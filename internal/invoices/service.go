package invoices

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Catalog resolves master data referenced by invoices. Implementations return
// only the rows that exist.
type Catalog interface {
	Products(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]ProductRef, error)
	Units(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]UnitRef, error)
	Suppliers(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]SupplierRef, error)
}

// IdempotencyGuard rejects replayed create requests.
type IdempotencyGuard interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key, module string) error
}

const idempotencyModule = "invoices.create"

// Service implements invoice use cases on top of the totals engine.
type Service struct {
	repo    Repository
	catalog Catalog
	cache   *Cache
	guard   IdempotencyGuard
	clock   func() time.Time
	newID   func() uuid.UUID
}

// NewService wires the invoice service. cache and guard may be nil.
func NewService(repo Repository, catalog Catalog, cache *Cache, guard IdempotencyGuard) *Service {
	return &Service{
		repo:    repo,
		catalog: catalog,
		cache:   cache,
		guard:   guard,
		clock:   time.Now,
		newID:   uuid.New,
	}
}

func (s *Service) today() time.Time {
	return DateOnly(s.clock())
}

// CreateInput carries a new invoice and its initial items.
type CreateInput struct {
	IdempotencyKey string
	Header         HeaderPatch
	Items          []NewItem
}

// MarkPaidInput carries optional payment details.
type MarkPaidInput struct {
	PaymentDate      *time.Time
	PaymentReference *string
}

// List returns invoices matching filter, without items.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Invoice, error) {
	if filter.Today.IsZero() {
		filter.Today = s.today()
	}
	return s.repo.ListInvoices(ctx, filter)
}

// Get returns the enriched invoice detail.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Detail, error) {
	if cached, ok := s.cache.Get(ctx, id); ok {
		return cached, nil
	}
	gen := s.cache.Generation(ctx, id)
	inv, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	detail, err := s.enrich(ctx, inv)
	if err != nil {
		return Detail{}, err
	}
	s.cache.Set(ctx, detail, gen)
	return detail, nil
}

// Create validates and stores a new invoice with its items in one
// transaction.
func (s *Service) Create(ctx context.Context, input CreateInput) (Detail, error) {
	m := CreateMutation(input.Header, input.Items)
	refs, err := s.resolve(ctx, m)
	if err != nil {
		return Detail{}, err
	}

	inv := Invoice{ID: s.newID(), Header: Header{PaymentStatus: StatusPending}}
	now := s.clock()
	inv.CreatedAt = now
	if _, err := m.Apply(&inv, refs, s.newID, now); err != nil {
		return Detail{}, err
	}

	if input.IdempotencyKey != "" && s.guard != nil {
		if err := s.guard.CheckAndInsert(ctx, input.IdempotencyKey, idempotencyModule); err != nil {
			return Detail{}, err
		}
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		taken, err := tx.NumberTaken(ctx, inv.InvoiceNumber, uuid.Nil)
		if err != nil {
			return err
		}
		if taken {
			return ErrDuplicateNumber
		}
		if err := tx.InsertInvoice(ctx, inv); err != nil {
			return err
		}
		return tx.InsertItems(ctx, inv.Items)
	})
	if err != nil {
		if input.IdempotencyKey != "" && s.guard != nil {
			_ = s.guard.Delete(ctx, input.IdempotencyKey, idempotencyModule)
		}
		return Detail{}, err
	}
	return s.Get(ctx, inv.ID)
}

// Mutate applies a batch of header and item changes to an invoice as one
// unit and recomputes its totals once.
func (s *Service) Mutate(ctx context.Context, id uuid.UUID, m Mutation) (Detail, error) {
	if _, err := s.mutate(ctx, id, m); err != nil {
		return Detail{}, err
	}
	return s.Get(ctx, id)
}

// UpdateHeader patches header fields only.
func (s *Service) UpdateHeader(ctx context.Context, id uuid.UUID, patch HeaderPatch) (Detail, error) {
	return s.Mutate(ctx, id, Mutation{Header: &patch})
}

// AddItem inserts one line and returns it with computed amounts.
func (s *Service) AddItem(ctx context.Context, id uuid.UUID, item NewItem) (Item, error) {
	cs, err := s.mutate(ctx, id, Mutation{Add: []NewItem{item}})
	if err != nil {
		return Item{}, err
	}
	return cs.Added[0], nil
}

// UpdateItem patches one line and returns it with recomputed amounts.
func (s *Service) UpdateItem(ctx context.Context, id, itemID uuid.UUID, patch ItemPatch) (Item, error) {
	cs, err := s.mutate(ctx, id, Mutation{Update: []ItemChange{{ItemID: itemID, ItemPatch: patch}}})
	if err != nil {
		return Item{}, err
	}
	return cs.Updated[0], nil
}

// RemoveItem deletes one line that must belong to the invoice.
func (s *Service) RemoveItem(ctx context.Context, id, itemID uuid.UUID) error {
	_, err := s.mutate(ctx, id, Mutation{Remove: []uuid.UUID{itemID}})
	return err
}

// MarkPaid sets the invoice to paid. The payment date defaults to today and
// the reference is only overwritten when supplied.
func (s *Service) MarkPaid(ctx context.Context, id uuid.UUID, input MarkPaidInput) (Detail, error) {
	paid := StatusPaid
	date := s.today()
	if input.PaymentDate != nil {
		date = DateOnly(*input.PaymentDate)
	}
	patch := HeaderPatch{PaymentStatus: &paid, PaymentDate: &date}
	if input.PaymentReference != nil && *input.PaymentReference != "" {
		patch.PaymentReference = input.PaymentReference
	}
	return s.Mutate(ctx, id, Mutation{Header: &patch})
}

// Delete removes an invoice and its items, returning the removed invoice.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) (Invoice, error) {
	var deleted Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.LockInvoice(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.DeleteInvoice(ctx, id); err != nil {
			return err
		}
		deleted = inv
		return nil
	})
	if err != nil {
		return Invoice{}, err
	}
	s.cache.Invalidate(ctx, id)
	return deleted, nil
}

// FlagOverdue moves pending and partial invoices due before asOf to overdue.
func (s *Service) FlagOverdue(ctx context.Context, asOf time.Time) (int, error) {
	var ids []uuid.UUID
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		ids, err = tx.FlagOverdue(ctx, DateOnly(asOf), s.clock())
		return err
	})
	if err != nil {
		return 0, err
	}
	s.cache.Invalidate(ctx, ids...)
	return len(ids), nil
}

func (s *Service) mutate(ctx context.Context, id uuid.UUID, m Mutation) (Changeset, error) {
	refs, err := s.resolve(ctx, m)
	if err != nil {
		return Changeset{}, err
	}

	var cs Changeset
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.LockInvoice(ctx, id)
		if err != nil {
			return err
		}
		previousNumber := inv.InvoiceNumber

		cs, err = m.Apply(&inv, refs, s.newID, s.clock())
		if err != nil {
			return err
		}

		if inv.InvoiceNumber != previousNumber {
			taken, err := tx.NumberTaken(ctx, inv.InvoiceNumber, inv.ID)
			if err != nil {
				return err
			}
			if taken {
				return ErrDuplicateNumber
			}
		}

		if err := tx.UpdateItems(ctx, cs.Updated); err != nil {
			return err
		}
		if err := tx.InsertItems(ctx, cs.Added); err != nil {
			return err
		}
		if err := tx.DeleteItems(ctx, inv.ID, cs.Removed); err != nil {
			return err
		}
		return tx.UpdateInvoice(ctx, inv)
	})
	if err != nil {
		return Changeset{}, err
	}
	s.cache.Invalidate(ctx, id)
	return cs, nil
}

// resolve loads every catalog row the mutation references, before any write.
func (s *Service) resolve(ctx context.Context, m Mutation) (References, error) {
	var refs References
	var err error
	if refs.Products, err = s.catalog.Products(ctx, m.ProductIDs()); err != nil {
		return References{}, fmt.Errorf("resolve products: %w", err)
	}
	if refs.Units, err = s.catalog.Units(ctx, m.UnitIDs()); err != nil {
		return References{}, fmt.Errorf("resolve units: %w", err)
	}
	if refs.Suppliers, err = s.catalog.Suppliers(ctx, m.SupplierIDs()); err != nil {
		return References{}, fmt.Errorf("resolve suppliers: %w", err)
	}
	return refs, nil
}

func (s *Service) enrich(ctx context.Context, inv Invoice) (Detail, error) {
	productIDs := make([]uuid.UUID, 0, len(inv.Items))
	unitIDs := make([]uuid.UUID, 0, len(inv.Items))
	for _, it := range inv.Items {
		productIDs = append(productIDs, it.ProductID)
		unitIDs = append(unitIDs, it.UnitID)
	}
	products, err := s.catalog.Products(ctx, uniqueIDs(productIDs))
	if err != nil {
		return Detail{}, fmt.Errorf("enrich products: %w", err)
	}
	units, err := s.catalog.Units(ctx, uniqueIDs(unitIDs))
	if err != nil {
		return Detail{}, fmt.Errorf("enrich units: %w", err)
	}
	suppliers, err := s.catalog.Suppliers(ctx, []uuid.UUID{inv.SupplierID})
	if err != nil {
		return Detail{}, fmt.Errorf("enrich supplier: %w", err)
	}

	detail := Detail{Invoice: inv, Products: products, Units: units}
	if sup, ok := suppliers[inv.SupplierID]; ok {
		detail.Supplier = &sup
	}
	return detail, nil
}

// IsNotFound reports whether err means the invoice or item does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrInvoiceNotFound) || errors.Is(err, ErrItemNotFound)
}
