package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/RobNhz/zaptec-invoice-app/models"
)

// NextInvoiceNumber must be called inside the transaction that inserts the
// invoice so numbers stay gap-free and unique.
func (s *Store) NextInvoiceNumber(ctx context.Context, q Querier) (int64, error) {
	var next int64
	err := s.querier(q).QueryRowContext(ctx, `SELECT COALESCE(MAX(invoice_number), 0) + 1 FROM invoices`).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("failed to compute invoice number: %w", err)
	}
	return next, nil
}

func (s *Store) InvoiceExists(ctx context.Context, q Querier, ownerID, periodStart, periodEnd string) (bool, error) {
	var count int
	err := s.querier(q).QueryRowContext(ctx, `
		SELECT COUNT(*) FROM invoices
		WHERE owner_id = ? AND period_start = ? AND period_end = ?
	`, ownerID, periodStart, periodEnd).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check invoice: %w", err)
	}
	return count > 0, nil
}

// PeriodInvoiced reports whether any invoice covers exactly this period.
func (s *Store) PeriodInvoiced(ctx context.Context, periodStart, periodEnd string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM invoices WHERE period_start = ? AND period_end = ?
	`, periodStart, periodEnd).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check period: %w", err)
	}
	return count > 0, nil
}

// InsertInvoice writes the invoice row and its items.
func (s *Store) InsertInvoice(ctx context.Context, q Querier, inv models.Invoice) error {
	q = s.querier(q)

	_, err := q.ExecContext(ctx, `
		INSERT INTO invoices (
			invoice_id, invoice_number, owner_id, period_start, period_end,
			total_amount, currency, document_ref, generated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, inv.ID, inv.InvoiceNumber, inv.OwnerID, inv.PeriodStart, inv.PeriodEnd,
		inv.TotalAmount, inv.Currency, inv.DocumentRef, inv.GeneratedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to create invoice: %w", err)
	}

	for i, item := range inv.Items {
		_, err := q.ExecContext(ctx, `
			INSERT INTO invoice_items (
				invoice_id, position, description, period, quantity, quantity_text,
				unit_price, total_price, item_type
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, inv.ID, i, item.Description, item.Period, item.Quantity, item.QuantityText,
			item.UnitPrice, item.TotalPrice, item.ItemType)
		if err != nil {
			return fmt.Errorf("failed to insert invoice item: %w", err)
		}
	}

	return nil
}

const invoiceColumns = `invoice_id, invoice_number, owner_id, period_start, period_end,
	total_amount, currency, document_ref, generated_at`

func scanInvoice(row interface{ Scan(...any) error }) (models.Invoice, error) {
	var inv models.Invoice
	err := row.Scan(&inv.ID, &inv.InvoiceNumber, &inv.OwnerID, &inv.PeriodStart, &inv.PeriodEnd,
		&inv.TotalAmount, &inv.Currency, &inv.DocumentRef, &inv.GeneratedAt)
	return inv, err
}

// ListInvoices returns all invoices, newest first, without items.
func (s *Store) ListInvoices(ctx context.Context) ([]models.Invoice, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+invoiceColumns+` FROM invoices
		ORDER BY generated_at DESC, invoice_number DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query invoices: %w", err)
	}
	defer rows.Close()

	invoices := []models.Invoice{}
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

// GetInvoice loads an invoice with its items and owner.
func (s *Store) GetInvoice(ctx context.Context, invoiceID string) (*models.Invoice, error) {
	inv, err := scanInvoice(s.db.QueryRowContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE invoice_id = ?`, invoiceID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query invoice %s: %w", invoiceID, err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, invoice_id, description, period, quantity, quantity_text, unit_price, total_price, item_type
		FROM invoice_items WHERE invoice_id = ?
		ORDER BY position
	`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query invoice items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item models.InvoiceItem
		if err := rows.Scan(&item.ID, &item.InvoiceID, &item.Description, &item.Period, &item.Quantity,
			&item.QuantityText, &item.UnitPrice, &item.TotalPrice, &item.ItemType); err != nil {
			return nil, fmt.Errorf("failed to scan invoice item: %w", err)
		}
		inv.Items = append(inv.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Release the single connection before the owner lookup.
	rows.Close()

	owner, err := s.GetOwner(ctx, inv.OwnerID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	inv.Owner = owner

	return &inv, nil
}
