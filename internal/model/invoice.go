package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type InvoiceStatus string

const (
	InvoiceDraft  InvoiceStatus = "DRAFT"
	InvoiceIssued InvoiceStatus = "ISSUED"
	InvoicePaid   InvoiceStatus = "PAID"
	InvoiceVoid   InvoiceStatus = "VOID"
)

func (s InvoiceStatus) Valid() bool {
	switch s {
	case InvoiceDraft, InvoiceIssued, InvoicePaid, InvoiceVoid:
		return true
	}
	return false
}

// Invoice owns an ordered set of line items. Items never outlive their invoice.
type Invoice struct {
	ID            string        `json:"id" db:"id"`
	InvoiceNumber string        `json:"invoiceNumber" db:"invoice_number"`
	ClientID      string        `json:"clientId" db:"client_id"`
	JobID         *string       `json:"jobId,omitempty" db:"job_id"`
	Status        InvoiceStatus `json:"status" db:"status"`
	Currency      string        `json:"currency" db:"currency"`
	Notes         string        `json:"notes" db:"notes"`
	IssuedAt      *time.Time    `json:"issuedAt,omitempty" db:"issued_at"`
	DueAt         *time.Time    `json:"dueAt,omitempty" db:"due_at"`
	CreatedAt     time.Time     `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time     `json:"updatedAt" db:"updated_at"`

	LineItems []LineItem      `json:"lineItems" db:"-"`
	Total     decimal.Decimal `json:"total" db:"-"`
}

type LineItem struct {
	ID          string          `json:"id" db:"id"`
	InvoiceID   string          `json:"invoiceId" db:"invoice_id"`
	Position    int             `json:"position" db:"position"`
	Description string          `json:"description" db:"description"`
	Quantity    decimal.Decimal `json:"quantity" db:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice" db:"unit_price"`
}

func (li LineItem) Amount() decimal.Decimal {
	return li.Quantity.Mul(li.UnitPrice)
}

// LineItemInput is a line item as submitted by a caller, before it has an identity.
type LineItemInput struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
}

func (in LineItemInput) Validate() error {
	if strings.TrimSpace(in.Description) == "" {
		return fmt.Errorf("%w: line item description is required", ErrValidation)
	}
	if !in.Quantity.IsPositive() {
		return fmt.Errorf("%w: line item quantity must be positive", ErrValidation)
	}
	if in.UnitPrice.IsNegative() {
		return fmt.Errorf("%w: line item unit price must not be negative", ErrValidation)
	}
	return nil
}

// NewInvoice is the input for invoice creation.
type NewInvoice struct {
	InvoiceNumber string          `json:"invoiceNumber"`
	ClientID      string          `json:"clientId"`
	JobID         *string         `json:"jobId,omitempty"`
	Status        InvoiceStatus   `json:"status"`
	Currency      string          `json:"currency"`
	Notes         string          `json:"notes"`
	IssuedAt      *time.Time      `json:"issuedAt,omitempty"`
	DueAt         *time.Time      `json:"dueAt,omitempty"`
	LineItems     []LineItemInput `json:"lineItems"`
}

func (in NewInvoice) Validate() error {
	if strings.TrimSpace(in.InvoiceNumber) == "" {
		return fmt.Errorf("%w: invoiceNumber is required", ErrValidation)
	}
	if strings.TrimSpace(in.ClientID) == "" {
		return fmt.Errorf("%w: clientId is required", ErrValidation)
	}
	if in.Status != "" && !in.Status.Valid() {
		return fmt.Errorf("%w: invalid status %q", ErrValidation, in.Status)
	}
	if in.Currency != "" {
		if err := validateCurrency(in.Currency); err != nil {
			return err
		}
	}
	return ValidateLineItems(in.LineItems)
}

// InvoicePatch is used for partial updates of the invoice's own fields.
type InvoicePatch struct {
	Status   *InvoiceStatus `json:"status,omitempty"`
	Currency *string        `json:"currency,omitempty"`
	Notes    *string        `json:"notes,omitempty"`
	IssuedAt *time.Time     `json:"issuedAt,omitempty"`
	DueAt    *time.Time     `json:"dueAt,omitempty"`
}

func (p InvoicePatch) Validate() error {
	if p.Status != nil && !p.Status.Valid() {
		return fmt.Errorf("%w: invalid status %q", ErrValidation, *p.Status)
	}
	if p.Currency != nil {
		return validateCurrency(*p.Currency)
	}
	return nil
}

func ValidateLineItems(items []LineItemInput) error {
	for i, item := range items {
		if err := item.Validate(); err != nil {
			return fmt.Errorf("line item %d: %w", i+1, err)
		}
	}
	return nil
}

// InvoiceTotal sums the line item amounts.
func InvoiceTotal(items []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Amount())
	}
	return total
}

func validateCurrency(code string) error {
	if len(code) != 3 || strings.ToUpper(code) != code {
		return fmt.Errorf("%w: currency must be a 3-letter upper-case code", ErrValidation)
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return fmt.Errorf("%w: currency must be a 3-letter upper-case code", ErrValidation)
		}
	}
	return nil
}
