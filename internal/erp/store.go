package erp

import "context"

// Store describes persistence for the tenant-scoped entities. Every lookup
// and mutation carries the caller's organization id; implementations must
// return ErrNotFound for ids belonging to another organization.
type Store interface {
	CreateOrganization(ctx context.Context, org *Organization) error
	GetOrganization(ctx context.Context, id string) (*Organization, error)
	UpdateOrganization(ctx context.Context, id string, upd OrganizationUpdate) (*Organization, error)
	DeleteOrganization(ctx context.Context, id string) error

	CreateClient(ctx context.Context, c *Client) error
	ListClients(ctx context.Context, orgID string, skip, limit int) ([]*Client, error)
	GetClient(ctx context.Context, orgID, id string) (*Client, error)
	FindClientByEmail(ctx context.Context, orgID, email string) (*Client, error)
	UpdateClient(ctx context.Context, orgID, id string, upd ClientUpdate) (*Client, error)
	DeleteClient(ctx context.Context, orgID, id string) error

	CreateProduct(ctx context.Context, p *Product) error
	ListProducts(ctx context.Context, orgID string, skip, limit int) ([]*Product, error)
	GetProduct(ctx context.Context, orgID, id string) (*Product, error)
	UpdateProduct(ctx context.Context, orgID, id string, upd ProductUpdate) (*Product, error)
	DeleteProduct(ctx context.Context, orgID, id string) error

	// CreateInvoice writes the invoice and its items in one transaction.
	CreateInvoice(ctx context.Context, inv *Invoice) error
	ListInvoices(ctx context.Context, orgID string, skip, limit int) ([]*Invoice, error)
	GetInvoice(ctx context.Context, orgID, id string) (*Invoice, error)
	// UpdateInvoice replaces the item set when items is non-nil and applies
	// the header patch, all in one transaction.
	UpdateInvoice(ctx context.Context, orgID, id string, inv *Invoice, replaceItems bool) error
	DeleteInvoice(ctx context.Context, orgID, id string) error
}
