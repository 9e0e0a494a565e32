package invoices

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/example/aal-logistics/api-go/internal/metrics"
	"github.com/example/aal-logistics/api-go/internal/model"
)

type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
	CreateInvoice(ctx context.Context, inv model.Invoice) (model.Invoice, error)
	GetInvoice(ctx context.Context, id string) (model.Invoice, error)
	UpdateInvoiceFields(ctx context.Context, id string, patch model.InvoicePatch) error
	DeleteLineItems(ctx context.Context, invoiceID string) (int64, error)
	InsertLineItems(ctx context.Context, invoiceID string, items []model.LineItemInput) ([]model.LineItem, error)
	ListLineItems(ctx context.Context, invoiceID string) ([]model.LineItem, error)
}

// Composer writes invoices together with their line items. Line items are
// never patched one by one: an update either keeps the whole set or
// replaces it.
type Composer struct {
	store Store
	log   logrus.FieldLogger
}

func NewComposer(store Store, log logrus.FieldLogger) *Composer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Composer{store: store, log: log}
}

func (c *Composer) CreateInvoice(ctx context.Context, in model.NewInvoice) (model.Invoice, error) {
	if err := in.Validate(); err != nil {
		return model.Invoice{}, err
	}
	if in.Status == "" {
		in.Status = model.InvoiceDraft
	}
	if in.Currency == "" {
		in.Currency = "USD"
	}

	var out model.Invoice
	err := c.store.InTx(ctx, func(ctx context.Context) error {
		inv, err := c.store.CreateInvoice(ctx, model.Invoice{
			InvoiceNumber: in.InvoiceNumber,
			ClientID:      in.ClientID,
			JobID:         in.JobID,
			Status:        in.Status,
			Currency:      in.Currency,
			Notes:         in.Notes,
			IssuedAt:      in.IssuedAt,
			DueAt:         in.DueAt,
		})
		if err != nil {
			return err
		}
		inv.LineItems, err = c.store.InsertLineItems(ctx, inv.ID, in.LineItems)
		if err != nil {
			return err
		}
		inv.Total = model.InvoiceTotal(inv.LineItems)
		out = inv
		return nil
	})
	if err != nil {
		return model.Invoice{}, err
	}
	c.log.WithFields(logrus.Fields{"invoice_id": out.ID, "line_items": len(out.LineItems)}).Info("invoice created")
	return out, nil
}

// UpdateInvoice applies fields and, when lineItems is non-nil, replaces the
// invoice's line items with exactly *lineItems (possibly none). A nil
// lineItems leaves the existing items alone. Everything happens in one
// transaction; on error the invoice is left as it was.
func (c *Composer) UpdateInvoice(ctx context.Context, id string, fields model.InvoicePatch, lineItems *[]model.LineItemInput) (model.Invoice, error) {
	if err := fields.Validate(); err != nil {
		return model.Invoice{}, err
	}
	if lineItems != nil {
		if err := model.ValidateLineItems(*lineItems); err != nil {
			return model.Invoice{}, err
		}
	}

	var (
		out     model.Invoice
		removed int64
	)
	err := c.store.InTx(ctx, func(ctx context.Context) error {
		if _, err := c.store.GetInvoice(ctx, id); err != nil {
			return fmt.Errorf("invoice %s: %w", id, err)
		}
		if err := c.store.UpdateInvoiceFields(ctx, id, fields); err != nil {
			return err
		}
		if lineItems != nil {
			var err error
			if removed, err = c.store.DeleteLineItems(ctx, id); err != nil {
				return err
			}
			if _, err := c.store.InsertLineItems(ctx, id, *lineItems); err != nil {
				return err
			}
		}
		inv, err := c.load(ctx, id)
		if err != nil {
			return err
		}
		out = inv
		return nil
	})
	if err != nil {
		return model.Invoice{}, err
	}

	entry := c.log.WithField("invoice_id", id)
	if lineItems != nil {
		metrics.RecordLineItemReplacement()
		entry = entry.WithFields(logrus.Fields{"removed": removed, "inserted": len(*lineItems)})
	}
	entry.Info("invoice updated")
	return out, nil
}

func (c *Composer) GetInvoice(ctx context.Context, id string) (model.Invoice, error) {
	return c.load(ctx, id)
}

func (c *Composer) load(ctx context.Context, id string) (model.Invoice, error) {
	inv, err := c.store.GetInvoice(ctx, id)
	if err != nil {
		return model.Invoice{}, err
	}
	inv.LineItems, err = c.store.ListLineItems(ctx, id)
	if err != nil {
		return model.Invoice{}, err
	}
	inv.Total = model.InvoiceTotal(inv.LineItems)
	return inv, nil
}
