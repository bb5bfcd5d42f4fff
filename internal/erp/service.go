package erp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	defaultListLimit = 100
	maxListLimit     = 500
)

// Service applies validation and derives invoice totals before touching
// the store. All methods take the caller's organization id; the store
// enforces tenant isolation underneath.
type Service struct {
	store Store
	now   func() time.Time
}

type Option func(*Service)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store: store,
		now:   time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func clampPage(skip, limit int) (int, int) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return skip, limit
}

// Organizations ------------------------------------------------------------

func (s *Service) CreateOrganization(ctx context.Context, name, description string) (*Organization, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: organization name is required", ErrInvalidInput)
	}
	org := &Organization{Name: name, Description: strings.TrimSpace(description)}
	if err := s.store.CreateOrganization(ctx, org); err != nil {
		return nil, err
	}
	return s.store.GetOrganization(ctx, org.ID)
}

func (s *Service) GetOrganization(ctx context.Context, id string) (*Organization, error) {
	return s.store.GetOrganization(ctx, id)
}

func (s *Service) UpdateOrganization(ctx context.Context, id string, upd OrganizationUpdate) (*Organization, error) {
	if upd.Name != nil && strings.TrimSpace(*upd.Name) == "" {
		return nil, fmt.Errorf("%w: organization name cannot be empty", ErrInvalidInput)
	}
	return s.store.UpdateOrganization(ctx, id, upd)
}

// DeleteOrganization removes an organization outright. It exists for
// compensation when binding the creating user fails; there is no public
// delete route.
func (s *Service) DeleteOrganization(ctx context.Context, id string) error {
	return s.store.DeleteOrganization(ctx, id)
}

// Clients ------------------------------------------------------------------

// ClientParams carries the writable client fields.
type ClientParams struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Address   string `json:"address"`
	TaxNumber string `json:"tax_number"`
}

func (s *Service) CreateClient(ctx context.Context, orgID string, p ClientParams) (*Client, error) {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return nil, fmt.Errorf("%w: client name is required", ErrInvalidInput)
	}
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))
	if p.Email != "" {
		if _, err := s.store.FindClientByEmail(ctx, orgID, p.Email); err == nil {
			return nil, fmt.Errorf("%w: a client with this email already exists", ErrConflict)
		} else if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	c := &Client{
		Name:           p.Name,
		Email:          p.Email,
		Phone:          strings.TrimSpace(p.Phone),
		Address:        strings.TrimSpace(p.Address),
		TaxNumber:      strings.TrimSpace(p.TaxNumber),
		IsActive:       true,
		OrganizationID: orgID,
	}
	if err := s.store.CreateClient(ctx, c); err != nil {
		return nil, err
	}
	return s.store.GetClient(ctx, orgID, c.ID)
}

func (s *Service) ListClients(ctx context.Context, orgID string, skip, limit int) ([]*Client, error) {
	skip, limit = clampPage(skip, limit)
	return s.store.ListClients(ctx, orgID, skip, limit)
}

func (s *Service) GetClient(ctx context.Context, orgID, id string) (*Client, error) {
	return s.store.GetClient(ctx, orgID, id)
}

func (s *Service) UpdateClient(ctx context.Context, orgID, id string, upd ClientUpdate) (*Client, error) {
	if upd.Name != nil && strings.TrimSpace(*upd.Name) == "" {
		return nil, fmt.Errorf("%w: client name cannot be empty", ErrInvalidInput)
	}
	if upd.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*upd.Email))
		upd.Email = &email
	}
	return s.store.UpdateClient(ctx, orgID, id, upd)
}

func (s *Service) DeleteClient(ctx context.Context, orgID, id string) error {
	return s.store.DeleteClient(ctx, orgID, id)
}

// Products -----------------------------------------------------------------

// ProductParams carries the writable product fields.
type ProductParams struct {
	Name            string  `json:"name"`
	Description     string  `json:"description"`
	SKU             string  `json:"sku"`
	UnitPrice       float64 `json:"unit_price"`
	QuantityInStock int     `json:"quantity_in_stock"`
	ReorderLevel    int     `json:"reorder_level"`
}

func (s *Service) CreateProduct(ctx context.Context, orgID string, p ProductParams) (*Product, error) {
	p.Name = strings.TrimSpace(p.Name)
	p.SKU = strings.TrimSpace(p.SKU)
	switch {
	case p.Name == "":
		return nil, fmt.Errorf("%w: product name is required", ErrInvalidInput)
	case p.SKU == "":
		return nil, fmt.Errorf("%w: product sku is required", ErrInvalidInput)
	case p.UnitPrice < 0:
		return nil, fmt.Errorf("%w: unit price cannot be negative", ErrInvalidInput)
	case p.QuantityInStock < 0:
		return nil, fmt.Errorf("%w: quantity in stock cannot be negative", ErrInvalidInput)
	}
	prod := &Product{
		Name:            p.Name,
		Description:     strings.TrimSpace(p.Description),
		SKU:             p.SKU,
		UnitPrice:       p.UnitPrice,
		QuantityInStock: p.QuantityInStock,
		ReorderLevel:    p.ReorderLevel,
		IsActive:        true,
		OrganizationID:  orgID,
	}
	if err := s.store.CreateProduct(ctx, prod); err != nil {
		return nil, err
	}
	return s.store.GetProduct(ctx, orgID, prod.ID)
}

func (s *Service) ListProducts(ctx context.Context, orgID string, skip, limit int) ([]*Product, error) {
	skip, limit = clampPage(skip, limit)
	return s.store.ListProducts(ctx, orgID, skip, limit)
}

func (s *Service) GetProduct(ctx context.Context, orgID, id string) (*Product, error) {
	return s.store.GetProduct(ctx, orgID, id)
}

func (s *Service) UpdateProduct(ctx context.Context, orgID, id string, upd ProductUpdate) (*Product, error) {
	if upd.Name != nil && strings.TrimSpace(*upd.Name) == "" {
		return nil, fmt.Errorf("%w: product name cannot be empty", ErrInvalidInput)
	}
	if upd.UnitPrice != nil && *upd.UnitPrice < 0 {
		return nil, fmt.Errorf("%w: unit price cannot be negative", ErrInvalidInput)
	}
	if upd.QuantityInStock != nil && *upd.QuantityInStock < 0 {
		return nil, fmt.Errorf("%w: quantity in stock cannot be negative", ErrInvalidInput)
	}
	return s.store.UpdateProduct(ctx, orgID, id, upd)
}

func (s *Service) DeleteProduct(ctx context.Context, orgID, id string) error {
	return s.store.DeleteProduct(ctx, orgID, id)
}

// Invoices -----------------------------------------------------------------

// InvoiceParams carries the writable invoice fields. Totals are never
// accepted from the caller; they are derived from the items and tax rate.
type InvoiceParams struct {
	InvoiceNumber string      `json:"invoice_number"`
	Status        string      `json:"status"`
	IssueDate     time.Time   `json:"issue_date"`
	DueDate       time.Time   `json:"due_date"`
	TaxRate       float64     `json:"tax_rate"`
	Notes         string      `json:"notes"`
	ClientID      string      `json:"client_id"`
	Items         []ItemInput `json:"items"`
}

func validateItems(items []ItemInput) error {
	if len(items) == 0 {
		return fmt.Errorf("%w: invoice needs at least one item", ErrInvalidInput)
	}
	for i, it := range items {
		if it.ProductID == "" {
			return fmt.Errorf("%w: item %d has no product", ErrInvalidInput, i)
		}
		if it.Quantity <= 0 {
			return fmt.Errorf("%w: item %d quantity must be positive", ErrInvalidInput, i)
		}
		if it.UnitPrice < 0 {
			return fmt.Errorf("%w: item %d unit price cannot be negative", ErrInvalidInput, i)
		}
	}
	return nil
}

func buildItems(items []ItemInput) ([]InvoiceItem, float64) {
	out := make([]InvoiceItem, 0, len(items))
	var subtotal float64
	for _, it := range items {
		line := float64(it.Quantity) * it.UnitPrice
		subtotal += line
		out = append(out, InvoiceItem{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			Subtotal:  line,
		})
	}
	return out, subtotal
}

func (inv *Invoice) recompute() {
	var subtotal float64
	for _, it := range inv.Items {
		subtotal += it.Subtotal
	}
	inv.Subtotal = subtotal
	inv.TaxAmount = subtotal * inv.TaxRate
	inv.Total = inv.Subtotal + inv.TaxAmount
}

func (s *Service) CreateInvoice(ctx context.Context, orgID string, p InvoiceParams) (*Invoice, error) {
	p.InvoiceNumber = strings.TrimSpace(p.InvoiceNumber)
	if p.InvoiceNumber == "" {
		return nil, fmt.Errorf("%w: invoice number is required", ErrInvalidInput)
	}
	status := InvoiceStatus(p.Status)
	if p.Status == "" {
		status = InvoiceStatusDraft
	}
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown invoice status %q", ErrInvalidInput, p.Status)
	}
	if p.TaxRate < 0 {
		return nil, fmt.Errorf("%w: tax rate cannot be negative", ErrInvalidInput)
	}
	if err := validateItems(p.Items); err != nil {
		return nil, err
	}
	// The referenced client must exist in the caller's organization.
	if _, err := s.store.GetClient(ctx, orgID, p.ClientID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: client %s", ErrNotFound, p.ClientID)
		}
		return nil, err
	}
	issue := p.IssueDate
	if issue.IsZero() {
		issue = s.now().UTC()
	}
	items, _ := buildItems(p.Items)
	inv := &Invoice{
		InvoiceNumber:  p.InvoiceNumber,
		Status:         status,
		IssueDate:      issue,
		DueDate:        p.DueDate,
		TaxRate:        p.TaxRate,
		Notes:          strings.TrimSpace(p.Notes),
		ClientID:       p.ClientID,
		OrganizationID: orgID,
		Items:          items,
	}
	inv.recompute()
	if err := s.store.CreateInvoice(ctx, inv); err != nil {
		return nil, err
	}
	return s.store.GetInvoice(ctx, orgID, inv.ID)
}

func (s *Service) ListInvoices(ctx context.Context, orgID string, skip, limit int) ([]*Invoice, error) {
	skip, limit = clampPage(skip, limit)
	return s.store.ListInvoices(ctx, orgID, skip, limit)
}

func (s *Service) GetInvoice(ctx context.Context, orgID, id string) (*Invoice, error) {
	return s.store.GetInvoice(ctx, orgID, id)
}

func (s *Service) UpdateInvoice(ctx context.Context, orgID, id string, upd InvoiceUpdate) (*Invoice, error) {
	inv, err := s.store.GetInvoice(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if upd.InvoiceNumber != nil {
		n := strings.TrimSpace(*upd.InvoiceNumber)
		if n == "" {
			return nil, fmt.Errorf("%w: invoice number cannot be empty", ErrInvalidInput)
		}
		inv.InvoiceNumber = n
	}
	if upd.Status != nil {
		if !upd.Status.Valid() {
			return nil, fmt.Errorf("%w: unknown invoice status %q", ErrInvalidInput, *upd.Status)
		}
		inv.Status = *upd.Status
	}
	if upd.IssueDate != nil {
		inv.IssueDate = *upd.IssueDate
	}
	if upd.DueDate != nil {
		inv.DueDate = *upd.DueDate
	}
	if upd.TaxRate != nil {
		if *upd.TaxRate < 0 {
			return nil, fmt.Errorf("%w: tax rate cannot be negative", ErrInvalidInput)
		}
		inv.TaxRate = *upd.TaxRate
	}
	if upd.Notes != nil {
		inv.Notes = strings.TrimSpace(*upd.Notes)
	}
	if upd.ClientID != nil {
		if _, err := s.store.GetClient(ctx, orgID, *upd.ClientID); err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, fmt.Errorf("%w: client %s", ErrNotFound, *upd.ClientID)
			}
			return nil, err
		}
		inv.ClientID = *upd.ClientID
	}
	replaceItems := upd.Items != nil
	if replaceItems {
		if err := validateItems(upd.Items); err != nil {
			return nil, err
		}
		inv.Items, _ = buildItems(upd.Items)
	}
	inv.recompute()
	if err := s.store.UpdateInvoice(ctx, orgID, id, inv, replaceItems); err != nil {
		return nil, err
	}
	return s.store.GetInvoice(ctx, orgID, id)
}

func (s *Service) DeleteInvoice(ctx context.Context, orgID, id string) error {
	return s.store.DeleteInvoice(ctx, orgID, id)
}
