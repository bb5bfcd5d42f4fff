// Package erp holds the tenant-scoped CRUD entities: organizations,
// clients, products and invoices. Every entity belongs to exactly one
// organization and all reads/writes are filtered by the caller's
// organization; a cross-tenant id behaves like a missing one.
package erp

import (
	"errors"
	"time"
)

var (
	ErrInvalidInput = errors.New("erp: invalid input")
	ErrNotFound     = errors.New("erp: not found")
	ErrConflict     = errors.New("erp: resource conflict")
)

// InvoiceStatus is the invoice lifecycle state.
type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "draft"
	InvoiceStatusPending   InvoiceStatus = "pending"
	InvoiceStatusPaid      InvoiceStatus = "paid"
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
)

// Valid reports whether s is a known status.
func (s InvoiceStatus) Valid() bool {
	switch s {
	case InvoiceStatusDraft, InvoiceStatusPending, InvoiceStatusPaid, InvoiceStatusCancelled:
		return true
	}
	return false
}

// Organization is the tenant boundary.
type Organization struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Client is a tenant-scoped customer record.
type Client struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email,omitempty"`
	Phone          string    `json:"phone,omitempty"`
	Address        string    `json:"address,omitempty"`
	TaxNumber      string    `json:"tax_number,omitempty"`
	IsActive       bool      `json:"is_active"`
	OrganizationID string    `json:"organization_id"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Product is a tenant-scoped catalog entry.
type Product struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Description     string    `json:"description,omitempty"`
	SKU             string    `json:"sku"`
	UnitPrice       float64   `json:"unit_price"`
	QuantityInStock int       `json:"quantity_in_stock"`
	ReorderLevel    int       `json:"reorder_level"`
	IsActive        bool      `json:"is_active"`
	OrganizationID  string    `json:"organization_id"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// InvoiceItem is a single line of an invoice. Subtotal is always
// quantity * unit_price, recomputed server-side.
type InvoiceItem struct {
	ID        string  `json:"id"`
	InvoiceID string  `json:"invoice_id"`
	ProductID string  `json:"product_id"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	Subtotal  float64 `json:"subtotal"`
}

// Invoice aggregates items; subtotal, tax_amount and total are derived from
// the items and the tax rate, never accepted from the client.
type Invoice struct {
	ID             string        `json:"id"`
	InvoiceNumber  string        `json:"invoice_number"`
	Status         InvoiceStatus `json:"status"`
	IssueDate      time.Time     `json:"issue_date"`
	DueDate        time.Time     `json:"due_date"`
	Subtotal       float64       `json:"subtotal"`
	TaxRate        float64       `json:"tax_rate"`
	TaxAmount      float64       `json:"tax_amount"`
	Total          float64       `json:"total"`
	Notes          string        `json:"notes,omitempty"`
	ClientID       string        `json:"client_id"`
	OrganizationID string        `json:"organization_id"`
	Items          []InvoiceItem `json:"items"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// Sparse patch structs; nil fields are left untouched.

type OrganizationUpdate struct {
	Name        *string
	Description *string
}

type ClientUpdate struct {
	Name      *string
	Email     *string
	Phone     *string
	Address   *string
	TaxNumber *string
	IsActive  *bool
}

type ProductUpdate struct {
	Name            *string
	Description     *string
	SKU             *string
	UnitPrice       *float64
	QuantityInStock *int
	ReorderLevel    *int
	IsActive        *bool
}

// ItemInput is an invoice line as submitted by the client.
type ItemInput struct {
	ProductID string  `json:"product_id"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

type InvoiceUpdate struct {
	InvoiceNumber *string
	Status        *InvoiceStatus
	IssueDate     *time.Time
	DueDate       *time.Time
	TaxRate       *float64
	Notes         *string
	ClientID      *string
	Items         []ItemInput // nil means leave items alone
}
