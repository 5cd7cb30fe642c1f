package invoices

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kitchenledger/kitchenledger/internal/platform/db"
)

// Repository defines invoice data access.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error

	GetInvoice(ctx context.Context, id uuid.UUID) (Invoice, error)
	ListInvoices(ctx context.Context, filter ListFilter) ([]Invoice, error)
}

// TxRepository defines operations within a transaction.
type TxRepository interface {
	LockInvoice(ctx context.Context, id uuid.UUID) (Invoice, error)
	NumberTaken(ctx context.Context, number string, excludeID uuid.UUID) (bool, error)

	InsertInvoice(ctx context.Context, inv Invoice) error
	UpdateInvoice(ctx context.Context, inv Invoice) error
	DeleteInvoice(ctx context.Context, id uuid.UUID) error

	InsertItems(ctx context.Context, items []Item) error
	UpdateItems(ctx context.Context, items []Item) error
	DeleteItems(ctx context.Context, invoiceID uuid.UUID, ids []uuid.UUID) error

	FlagOverdue(ctx context.Context, asOf, now time.Time) ([]uuid.UUID, error)
}

var _ Repository = (*pgRepository)(nil)
var _ TxRepository = (*pgTxRepository)(nil)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a Postgres-backed invoice repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

func (r *pgRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgTxRepository{tx: tx})
	})
}

const invoiceColumns = `id, invoice_number, reference, supplier_id, order_date, order_number,
	delivery_date, delivery_note, invoice_date, due_date, received_date, payment_status,
	payment_date, payment_reference, payment_method, notes,
	subtotal, total_discount, total_net, total_vat, total_gross, created_at, updated_at`

const itemColumns = `id, invoice_id, position, product_id, description, quantity, unit_id,
	unit_price, discount_percentage, vat_rate,
	subtotal, discount_amount, net_amount, vat_amount, gross_amount, created_at, updated_at`

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	var status string
	err := row.Scan(
		&inv.ID, &inv.InvoiceNumber, &inv.Reference, &inv.SupplierID, &inv.OrderDate, &inv.OrderNumber,
		&inv.DeliveryDate, &inv.DeliveryNote, &inv.InvoiceDate, &inv.DueDate, &inv.ReceivedDate, &status,
		&inv.PaymentDate, &inv.PaymentReference, &inv.PaymentMethod, &inv.Notes,
		&inv.Subtotal, &inv.TotalDiscount, &inv.TotalNet, &inv.TotalVAT, &inv.TotalGross, &inv.CreatedAt, &inv.UpdatedAt,
	)
	inv.PaymentStatus = PaymentStatus(status)
	return inv, err
}

func scanItem(row pgx.Row) (Item, error) {
	var it Item
	err := row.Scan(
		&it.ID, &it.InvoiceID, &it.Position, &it.ProductID, &it.Description, &it.Quantity, &it.UnitID,
		&it.UnitPrice, &it.DiscountPercentage, &it.VATRate,
		&it.Subtotal, &it.DiscountAmount, &it.NetAmount, &it.VATAmount, &it.GrossAmount, &it.CreatedAt, &it.UpdatedAt,
	)
	return it, err
}

func loadInvoice(ctx context.Context, q querier, id uuid.UUID, lock bool) (Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	inv, err := scanInvoice(q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, ErrInvoiceNotFound
	}
	if err != nil {
		return Invoice{}, fmt.Errorf("load invoice: %w", err)
	}

	rows, err := q.Query(ctx, `SELECT `+itemColumns+` FROM invoice_items WHERE invoice_id = $1 ORDER BY position`, id)
	if err != nil {
		return Invoice{}, fmt.Errorf("load invoice items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return Invoice{}, fmt.Errorf("scan invoice item: %w", err)
		}
		inv.Items = append(inv.Items, it)
	}
	return inv, rows.Err()
}

func (r *pgRepository) GetInvoice(ctx context.Context, id uuid.UUID) (Invoice, error) {
	return loadInvoice(ctx, r.pool, id, false)
}

func (r *pgRepository) ListInvoices(ctx context.Context, filter ListFilter) ([]Invoice, error) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filter.SupplierID != nil {
		conds = append(conds, "supplier_id = "+arg(*filter.SupplierID))
	}
	if filter.Status != nil {
		conds = append(conds, "payment_status = "+arg(string(*filter.Status)))
	}
	if filter.StartDate != nil {
		conds = append(conds, "invoice_date >= "+arg(*filter.StartDate))
	}
	if filter.EndDate != nil {
		conds = append(conds, "invoice_date <= "+arg(*filter.EndDate))
	}
	if filter.Overdue || filter.DueThisWeek {
		conds = append(conds, "payment_status IN ('pending', 'partial')")
	}
	if filter.Overdue {
		conds = append(conds, "due_date < "+arg(filter.Today))
	}
	if filter.DueThisWeek {
		conds = append(conds, "due_date BETWEEN "+arg(filter.Today)+" AND "+arg(EndOfWeek(filter.Today)))
	}

	query := `SELECT ` + invoiceColumns + ` FROM invoices`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	if filter.Overdue || filter.DueThisWeek || filter.Status != nil {
		query += " ORDER BY due_date, invoice_number"
	} else {
		query += " ORDER BY invoice_date DESC, invoice_number"
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	defer rows.Close()

	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invoice: %w", err)
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

type pgTxRepository struct {
	tx pgx.Tx
}

func (r *pgTxRepository) LockInvoice(ctx context.Context, id uuid.UUID) (Invoice, error) {
	return loadInvoice(ctx, r.tx, id, true)
}

func (r *pgTxRepository) NumberTaken(ctx context.Context, number string, excludeID uuid.UUID) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM invoices WHERE invoice_number = $1 AND id <> $2)`,
		number, excludeID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check invoice number: %w", err)
	}
	return exists, nil
}

func (r *pgTxRepository) InsertInvoice(ctx context.Context, inv Invoice) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO invoices (`+invoiceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)`,
		inv.ID, inv.InvoiceNumber, inv.Reference, inv.SupplierID, inv.OrderDate, inv.OrderNumber,
		inv.DeliveryDate, inv.DeliveryNote, inv.InvoiceDate, inv.DueDate, inv.ReceivedDate, string(inv.PaymentStatus),
		inv.PaymentDate, inv.PaymentReference, inv.PaymentMethod, inv.Notes,
		inv.Subtotal, inv.TotalDiscount, inv.TotalNet, inv.TotalVAT, inv.TotalGross, inv.CreatedAt, inv.UpdatedAt,
	)
	return mapWriteError("insert invoice", err)
}

func (r *pgTxRepository) UpdateInvoice(ctx context.Context, inv Invoice) error {
	tag, err := r.tx.Exec(ctx, `UPDATE invoices SET
		invoice_number = $2, reference = $3, supplier_id = $4, order_date = $5, order_number = $6,
		delivery_date = $7, delivery_note = $8, invoice_date = $9, due_date = $10, received_date = $11,
		payment_status = $12, payment_date = $13, payment_reference = $14, payment_method = $15, notes = $16,
		subtotal = $17, total_discount = $18, total_net = $19, total_vat = $20, total_gross = $21, updated_at = $22
		WHERE id = $1`,
		inv.ID, inv.InvoiceNumber, inv.Reference, inv.SupplierID, inv.OrderDate, inv.OrderNumber,
		inv.DeliveryDate, inv.DeliveryNote, inv.InvoiceDate, inv.DueDate, inv.ReceivedDate,
		string(inv.PaymentStatus), inv.PaymentDate, inv.PaymentReference, inv.PaymentMethod, inv.Notes,
		inv.Subtotal, inv.TotalDiscount, inv.TotalNet, inv.TotalVAT, inv.TotalGross, inv.UpdatedAt,
	)
	if err != nil {
		return mapWriteError("update invoice", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}

func (r *pgTxRepository) DeleteInvoice(ctx context.Context, id uuid.UUID) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM invoices WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete invoice: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}

func (r *pgTxRepository) InsertItems(ctx context.Context, items []Item) error {
	if len(items) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, it := range items {
		batch.Queue(`INSERT INTO invoice_items (`+itemColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
			it.ID, it.InvoiceID, it.Position, it.ProductID, it.Description, it.Quantity, it.UnitID,
			it.UnitPrice, it.DiscountPercentage, it.VATRate,
			it.Subtotal, it.DiscountAmount, it.NetAmount, it.VATAmount, it.GrossAmount, it.CreatedAt, it.UpdatedAt,
		)
	}
	if err := r.tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert invoice items: %w", err)
	}
	return nil
}

func (r *pgTxRepository) UpdateItems(ctx context.Context, items []Item) error {
	for _, it := range items {
		tag, err := r.tx.Exec(ctx, `UPDATE invoice_items SET
			product_id = $3, description = $4, quantity = $5, unit_id = $6, unit_price = $7,
			discount_percentage = $8, vat_rate = $9, subtotal = $10, discount_amount = $11,
			net_amount = $12, vat_amount = $13, gross_amount = $14, updated_at = $15
			WHERE id = $1 AND invoice_id = $2`,
			it.ID, it.InvoiceID, it.ProductID, it.Description, it.Quantity, it.UnitID, it.UnitPrice,
			it.DiscountPercentage, it.VATRate, it.Subtotal, it.DiscountAmount,
			it.NetAmount, it.VATAmount, it.GrossAmount, it.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("update invoice item: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: %s", ErrItemNotFound, it.ID)
		}
	}
	return nil
}

func (r *pgTxRepository) DeleteItems(ctx context.Context, invoiceID uuid.UUID, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	tag, err := r.tx.Exec(ctx, `DELETE FROM invoice_items WHERE invoice_id = $1 AND id = ANY($2)`, invoiceID, ids)
	if err != nil {
		return fmt.Errorf("delete invoice items: %w", err)
	}
	if int(tag.RowsAffected()) != len(ids) {
		return ErrItemNotFound
	}
	return nil
}

func (r *pgTxRepository) FlagOverdue(ctx context.Context, asOf, now time.Time) ([]uuid.UUID, error) {
	rows, err := r.tx.Query(ctx, `UPDATE invoices SET payment_status = 'overdue', updated_at = $2
		WHERE payment_status IN ('pending', 'partial') AND due_date < $1
		RETURNING id`, asOf, now)
	if err != nil {
		return nil, fmt.Errorf("flag overdue invoices: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("collect overdue invoices: %w", err)
	}
	return ids, nil
}

func mapWriteError(op string, err error) error {
	if err == nil {
		return nil
	}
	if constraint, ok := db.UniqueViolation(err); ok && constraint == "invoices_invoice_number_key" {
		return ErrDuplicateNumber
	}
	return fmt.Errorf("%s: %w", op, err)
}
