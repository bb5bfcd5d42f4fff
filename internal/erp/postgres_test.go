package erp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
)

func newMockStore(t *testing.T) (*PGStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewPGStore(db), mock
}

func TestGetClientFiltersByOrganization(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`select .+ from clients where id=\$1 and organization_id=\$2`).
		WithArgs("client-1", "org-b").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.GetClient(context.Background(), "org-b", "client-1")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestCreateClientMapsUniqueViolation(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`insert into clients`).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := store.CreateClient(context.Background(), &Client{
		Name:           "Umbrella",
		Email:          "buyer@umbrella.test",
		OrganizationID: "org-a",
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestCreateInvoiceWritesItemsInOneTx(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`insert into invoices`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`insert into invoice_items`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`insert into invoice_items`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	inv := &Invoice{
		InvoiceNumber:  "INV-001",
		Status:         InvoiceStatusDraft,
		IssueDate:      time.Now(),
		DueDate:        time.Now().Add(24 * time.Hour),
		ClientID:       "client-1",
		OrganizationID: "org-a",
		Items: []InvoiceItem{
			{ProductID: "p-1", Quantity: 2, UnitPrice: 10, Subtotal: 20},
			{ProductID: "p-2", Quantity: 1, UnitPrice: 5, Subtotal: 5},
		},
	}
	if err := store.CreateInvoice(context.Background(), inv); err != nil {
		t.Fatalf("CreateInvoice failed: %v", err)
	}
	if inv.ID == "" {
		t.Fatal("expected generated invoice id")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestCreateInvoiceRollsBackOnItemFailure(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`insert into invoices`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`insert into invoice_items`).WillReturnError(errors.New("constraint"))
	mock.ExpectRollback()

	inv := &Invoice{
		InvoiceNumber:  "INV-001",
		Status:         InvoiceStatusDraft,
		IssueDate:      time.Now(),
		DueDate:        time.Now(),
		ClientID:       "client-1",
		OrganizationID: "org-a",
		Items:          []InvoiceItem{{ProductID: "p-1", Quantity: 1, UnitPrice: 1, Subtotal: 1}},
	}
	if err := store.CreateInvoice(context.Background(), inv); err == nil {
		t.Fatal("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestDeleteProductMissing(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`delete from products where id=\$1 and organization_id=\$2`).
		WithArgs("ghost", "org-a").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.DeleteProduct(context.Background(), "org-a", "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
