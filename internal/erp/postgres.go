package erp

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ifiasoft/erp-api/internal/ids"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Organization -------------------------------------------------------------

func (s *PGStore) CreateOrganization(ctx context.Context, org *Organization) error {
	if org.ID == "" {
		org.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into organizations(id, name, description) values($1,$2,$3)`,
		org.ID, org.Name, org.Description)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (s *PGStore) GetOrganization(ctx context.Context, id string) (*Organization, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, name, description, created_at, updated_at from organizations where id=$1`, id)
	var org Organization
	if err := row.Scan(&org.ID, &org.Name, &org.Description, &org.CreatedAt, &org.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &org, nil
}

func (s *PGStore) UpdateOrganization(ctx context.Context, id string, upd OrganizationUpdate) (*Organization, error) {
	res, err := s.db.ExecContext(ctx,
		`update organizations set
			name        = coalesce($2, name),
			description = coalesce($3, description),
			updated_at  = now()
		 where id=$1`,
		id, upd.Name, upd.Description)
	if err != nil {
		return nil, err
	}
	if affected, err := res.RowsAffected(); err != nil {
		return nil, err
	} else if affected == 0 {
		return nil, ErrNotFound
	}
	return s.GetOrganization(ctx, id)
}

func (s *PGStore) DeleteOrganization(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`delete from organizations where id=$1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Client -------------------------------------------------------------------

const clientColumns = `id, name, email, phone, address, tax_number, is_active, organization_id, created_at, updated_at`

func (s *PGStore) CreateClient(ctx context.Context, c *Client) error {
	if c.ID == "" {
		c.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into clients(id, name, email, phone, address, tax_number, is_active, organization_id)
		 values($1,$2,$3,$4,$5,$6,$7,$8)`,
		c.ID, c.Name, c.Email, c.Phone, c.Address, c.TaxNumber, c.IsActive, c.OrganizationID)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func scanClient(row interface{ Scan(...any) error }) (*Client, error) {
	var c Client
	err := row.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Address, &c.TaxNumber,
		&c.IsActive, &c.OrganizationID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *PGStore) ListClients(ctx context.Context, orgID string, skip, limit int) ([]*Client, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+clientColumns+` from clients where organization_id=$1 order by created_at offset $2 limit $3`,
		orgID, skip, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PGStore) GetClient(ctx context.Context, orgID, id string) (*Client, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+clientColumns+` from clients where id=$1 and organization_id=$2`, id, orgID)
	c, err := scanClient(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

func (s *PGStore) FindClientByEmail(ctx context.Context, orgID, email string) (*Client, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+clientColumns+` from clients where email=$1 and organization_id=$2`, email, orgID)
	c, err := scanClient(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

func (s *PGStore) UpdateClient(ctx context.Context, orgID, id string, upd ClientUpdate) (*Client, error) {
	res, err := s.db.ExecContext(ctx,
		`update clients set
			name       = coalesce($3, name),
			email      = coalesce($4, email),
			phone      = coalesce($5, phone),
			address    = coalesce($6, address),
			tax_number = coalesce($7, tax_number),
			is_active  = coalesce($8, is_active),
			updated_at = now()
		 where id=$1 and organization_id=$2`,
		id, orgID, upd.Name, upd.Email, upd.Phone, upd.Address, upd.TaxNumber, upd.IsActive)
	if err != nil {
		return nil, err
	}
	if affected, err := res.RowsAffected(); err != nil {
		return nil, err
	} else if affected == 0 {
		return nil, ErrNotFound
	}
	return s.GetClient(ctx, orgID, id)
}

func (s *PGStore) DeleteClient(ctx context.Context, orgID, id string) error {
	res, err := s.db.ExecContext(ctx,
		`delete from clients where id=$1 and organization_id=$2`, id, orgID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Product ------------------------------------------------------------------

const productColumns = `id, name, description, sku, unit_price, quantity_in_stock, reorder_level, is_active, organization_id, created_at, updated_at`

func (s *PGStore) CreateProduct(ctx context.Context, p *Product) error {
	if p.ID == "" {
		p.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into products(id, name, description, sku, unit_price, quantity_in_stock, reorder_level, is_active, organization_id)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		p.ID, p.Name, p.Description, p.SKU, p.UnitPrice, p.QuantityInStock, p.ReorderLevel, p.IsActive, p.OrganizationID)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func scanProduct(row interface{ Scan(...any) error }) (*Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.SKU, &p.UnitPrice, &p.QuantityInStock,
		&p.ReorderLevel, &p.IsActive, &p.OrganizationID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PGStore) ListProducts(ctx context.Context, orgID string, skip, limit int) ([]*Product, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+productColumns+` from products where organization_id=$1 order by created_at offset $2 limit $3`,
		orgID, skip, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PGStore) GetProduct(ctx context.Context, orgID, id string) (*Product, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+productColumns+` from products where id=$1 and organization_id=$2`, id, orgID)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

func (s *PGStore) UpdateProduct(ctx context.Context, orgID, id string, upd ProductUpdate) (*Product, error) {
	res, err := s.db.ExecContext(ctx,
		`update products set
			name              = coalesce($3, name),
			description       = coalesce($4, description),
			sku               = coalesce($5, sku),
			unit_price        = coalesce($6, unit_price),
			quantity_in_stock = coalesce($7, quantity_in_stock),
			reorder_level     = coalesce($8, reorder_level),
			is_active         = coalesce($9, is_active),
			updated_at        = now()
		 where id=$1 and organization_id=$2`,
		id, orgID, upd.Name, upd.Description, upd.SKU, upd.UnitPrice, upd.QuantityInStock,
		upd.ReorderLevel, upd.IsActive)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, err
	}
	if affected, err := res.RowsAffected(); err != nil {
		return nil, err
	} else if affected == 0 {
		return nil, ErrNotFound
	}
	return s.GetProduct(ctx, orgID, id)
}

func (s *PGStore) DeleteProduct(ctx context.Context, orgID, id string) error {
	res, err := s.db.ExecContext(ctx,
		`delete from products where id=$1 and organization_id=$2`, id, orgID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Invoice ------------------------------------------------------------------

const invoiceColumns = `id, invoice_number, status, issue_date, due_date, subtotal, tax_rate, tax_amount, total, notes, client_id, organization_id, created_at, updated_at`

func (s *PGStore) CreateInvoice(ctx context.Context, inv *Invoice) error {
	if inv.ID == "" {
		inv.ID = ids.New()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`insert into invoices(id, invoice_number, status, issue_date, due_date, subtotal, tax_rate, tax_amount, total, notes, client_id, organization_id)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		inv.ID, inv.InvoiceNumber, string(inv.Status), inv.IssueDate, inv.DueDate, inv.Subtotal,
		inv.TaxRate, inv.TaxAmount, inv.Total, inv.Notes, inv.ClientID, inv.OrganizationID)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return err
	}
	if err := insertItems(ctx, tx, inv.ID, inv.Items); err != nil {
		return err
	}
	return tx.Commit()
}

func insertItems(ctx context.Context, tx *sql.Tx, invoiceID string, items []InvoiceItem) error {
	for i := range items {
		if items[i].ID == "" {
			items[i].ID = ids.New()
		}
		items[i].InvoiceID = invoiceID
		_, err := tx.ExecContext(ctx,
			`insert into invoice_items(id, invoice_id, product_id, quantity, unit_price, subtotal)
			 values($1,$2,$3,$4,$5,$6)`,
			items[i].ID, invoiceID, items[i].ProductID, items[i].Quantity, items[i].UnitPrice, items[i].Subtotal)
		if err != nil {
			return err
		}
	}
	return nil
}

func scanInvoice(row interface{ Scan(...any) error }) (*Invoice, error) {
	var (
		inv    Invoice
		status string
	)
	err := row.Scan(&inv.ID, &inv.InvoiceNumber, &status, &inv.IssueDate, &inv.DueDate,
		&inv.Subtotal, &inv.TaxRate, &inv.TaxAmount, &inv.Total, &inv.Notes,
		&inv.ClientID, &inv.OrganizationID, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return nil, err
	}
	inv.Status = InvoiceStatus(status)
	return &inv, nil
}

func (s *PGStore) ListInvoices(ctx context.Context, orgID string, skip, limit int) ([]*Invoice, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+invoiceColumns+` from invoices where organization_id=$1 order by created_at offset $2 limit $3`,
		orgID, skip, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, inv := range out {
		items, err := s.listItems(ctx, inv.ID)
		if err != nil {
			return nil, err
		}
		inv.Items = items
	}
	return out, nil
}

func (s *PGStore) GetInvoice(ctx context.Context, orgID, id string) (*Invoice, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+invoiceColumns+` from invoices where id=$1 and organization_id=$2`, id, orgID)
	inv, err := scanInvoice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	items, err := s.listItems(ctx, inv.ID)
	if err != nil {
		return nil, err
	}
	inv.Items = items
	return inv, nil
}

func (s *PGStore) listItems(ctx context.Context, invoiceID string) ([]InvoiceItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, invoice_id, product_id, quantity, unit_price, subtotal from invoice_items
		 where invoice_id=$1 order by id`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []InvoiceItem
	for rows.Next() {
		var it InvoiceItem
		if err := rows.Scan(&it.ID, &it.InvoiceID, &it.ProductID, &it.Quantity, &it.UnitPrice, &it.Subtotal); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *PGStore) UpdateInvoice(ctx context.Context, orgID, id string, inv *Invoice, replaceItems bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`update invoices set
			invoice_number=$3, status=$4, issue_date=$5, due_date=$6,
			subtotal=$7, tax_rate=$8, tax_amount=$9, total=$10, notes=$11, client_id=$12,
			updated_at=now()
		 where id=$1 and organization_id=$2`,
		id, orgID, inv.InvoiceNumber, string(inv.Status), inv.IssueDate, inv.DueDate,
		inv.Subtotal, inv.TaxRate, inv.TaxAmount, inv.Total, inv.Notes, inv.ClientID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return err
	}
	if affected, err := res.RowsAffected(); err != nil {
		return err
	} else if affected == 0 {
		return ErrNotFound
	}

	if replaceItems {
		if _, err := tx.ExecContext(ctx, `delete from invoice_items where invoice_id=$1`, id); err != nil {
			return err
		}
		if err := insertItems(ctx, tx, id, inv.Items); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *PGStore) DeleteInvoice(ctx context.Context, orgID, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `delete from invoice_items where invoice_id=$1`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `delete from invoices where id=$1 and organization_id=$2`, id, orgID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}
