package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/example/aal-logistics/api-go/internal/model"
)

const invoiceColumns = `id, invoice_number, client_id, job_id, status, currency, notes, issued_at, due_at, created_at, updated_at`

func (s *Store) CreateInvoice(ctx context.Context, inv model.Invoice) (model.Invoice, error) {
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	inv.CreatedAt = now
	inv.UpdatedAt = now

	_, err := s.exec(ctx, `
		INSERT INTO invoices (id, invoice_number, client_id, job_id, status, currency, notes, issued_at, due_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, inv.ID, inv.InvoiceNumber, inv.ClientID, nullableString(inv.JobID), string(inv.Status), inv.Currency, inv.Notes,
		nullableTime(inv.IssuedAt), nullableTime(inv.DueAt), inv.CreatedAt, inv.UpdatedAt)
	if err != nil {
		return model.Invoice{}, fmt.Errorf("create invoice %s: %w", inv.InvoiceNumber, err)
	}
	return inv, nil
}

// GetInvoice loads the invoice row without line items. Inside a postgres
// transaction the row is locked until commit.
func (s *Store) GetInvoice(ctx context.Context, id string) (model.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = ?`
	if s.inTx(ctx) && s.db.DriverName() == DriverPostgres {
		query += ` FOR UPDATE`
	}
	var inv model.Invoice
	if err := s.get(ctx, &inv, query, id); err != nil {
		return model.Invoice{}, err
	}
	return inv, nil
}

// UpdateInvoiceFields applies the non-nil fields of patch.
func (s *Store) UpdateInvoiceFields(ctx context.Context, id string, patch model.InvoicePatch) error {
	var status *string
	if patch.Status != nil {
		v := string(*patch.Status)
		status = &v
	}
	res, err := s.exec(ctx, `
		UPDATE invoices
		SET updated_at = ?,
		    status = COALESCE(?, status),
		    currency = COALESCE(?, currency),
		    notes = COALESCE(?, notes),
		    issued_at = COALESCE(?, issued_at),
		    due_at = COALESCE(?, due_at)
		WHERE id = ?
	`,
		time.Now().UTC(),
		nullableString(status),
		nullableString(patch.Currency),
		nullableString(patch.Notes),
		nullableTime(patch.IssuedAt),
		nullableTime(patch.DueAt),
		id,
	)
	if err != nil {
		return fmt.Errorf("update invoice %s: %w", id, err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return model.ErrNotFound
	}
	return nil
}

// DeleteLineItems removes every line item of an invoice.
func (s *Store) DeleteLineItems(ctx context.Context, invoiceID string) (int64, error) {
	res, err := s.exec(ctx, `DELETE FROM invoice_line_items WHERE invoice_id = ?`, invoiceID)
	if err != nil {
		return 0, fmt.Errorf("delete line items of %s: %w", invoiceID, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// InsertLineItems stores items in order, numbering positions from 1.
func (s *Store) InsertLineItems(ctx context.Context, invoiceID string, items []model.LineItemInput) ([]model.LineItem, error) {
	out := make([]model.LineItem, 0, len(items))
	for i, in := range items {
		li := model.LineItem{
			ID:          uuid.NewString(),
			InvoiceID:   invoiceID,
			Position:    i + 1,
			Description: in.Description,
			Quantity:    in.Quantity,
			UnitPrice:   in.UnitPrice,
		}
		_, err := s.exec(ctx, `
			INSERT INTO invoice_line_items (id, invoice_id, position, description, quantity, unit_price)
			VALUES (?, ?, ?, ?, ?, ?)
		`, li.ID, li.InvoiceID, li.Position, li.Description, li.Quantity.String(), li.UnitPrice.String())
		if err != nil {
			return nil, fmt.Errorf("insert line item %d of %s: %w", li.Position, invoiceID, err)
		}
		out = append(out, li)
	}
	return out, nil
}

func (s *Store) ListLineItems(ctx context.Context, invoiceID string) ([]model.LineItem, error) {
	items := []model.LineItem{}
	err := s.selectAll(ctx, &items, `
		SELECT id, invoice_id, position, description, quantity, unit_price
		FROM invoice_line_items
		WHERE invoice_id = ?
		ORDER BY position ASC
	`, invoiceID)
	if err != nil {
		return nil, err
	}
	return items, nil
}

func nullableTime(v *time.Time) any {
	if v == nil {
		return nil
	}
	return v.UTC()
}
