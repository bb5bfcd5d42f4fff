package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/ifiasoft/erp-api/internal/audit"
	"github.com/ifiasoft/erp-api/internal/erp"
)

// Organizations -------------------------------------------------------------

type createOrganizationRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type updateOrganizationRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

// handleOrganizations creates an organization and binds the caller to it.
func (a *API) handleOrganizations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	if user.OrganizationID != "" {
		writeError(w, r, http.StatusConflict, "user already belongs to an organization")
		return
	}
	var req createOrganizationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	org, err := a.erp.CreateOrganization(r.Context(), req.Name, req.Description)
	if err != nil {
		handleERPError(w, r, err)
		return
	}
	if err := a.auth.AssignOrganization(r.Context(), user.ID, org.ID); err != nil {
		// Don't leave a memberless organization behind.
		if derr := a.erp.DeleteOrganization(r.Context(), org.ID); derr != nil {
			_ = audit.LogEvent(r.Context(), "org.orphaned", map[string]any{
				"organization_id": org.ID,
			})
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	_ = audit.LogEvent(r.Context(), "org.create", map[string]any{
		"organization_id": org.ID,
		"name":            org.Name,
	})
	writeJSON(w, http.StatusCreated, org)
}

func (a *API) handleOrganizationByID(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "/organizations/")
	if !ok {
		return
	}
	user, ok := requireOrganization(w, r)
	if !ok {
		return
	}
	// Members only see their own organization.
	if id != user.OrganizationID {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		org, err := a.erp.GetOrganization(r.Context(), id)
		if err != nil {
			handleERPError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, org)
	case http.MethodPatch:
		var req updateOrganizationRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		org, err := a.erp.UpdateOrganization(r.Context(), id, erp.OrganizationUpdate{
			Name:        req.Name,
			Description: req.Description,
		})
		if err != nil {
			handleERPError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, org)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch)
	}
}

// Clients -------------------------------------------------------------------

type updateClientRequest struct {
	Name      *string `json:"name"`
	Email     *string `json:"email"`
	Phone     *string `json:"phone"`
	Address   *string `json:"address"`
	TaxNumber *string `json:"tax_number"`
	IsActive  *bool   `json:"is_active"`
}

func (a *API) handleClients(w http.ResponseWriter, r *http.Request) {
	user, ok := requireOrganization(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		skip, limit, err := parsePage(r)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		clients, err := a.erp.ListClients(r.Context(), user.OrganizationID, skip, limit)
		if err != nil {
			handleERPError(w, r, err)
			return
		}
		if clients == nil {
			clients = []*erp.Client{}
		}
		writeJSON(w, http.StatusOK, clients)
	case http.MethodPost:
		var req erp.ClientParams
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		client, err := a.erp.CreateClient(r.Context(), user.OrganizationID, req)
		if err != nil {
			handleERPError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, client)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleClientByID(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "/clients/")
	if !ok {
		return
	}
	user, ok := requireOrganization(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		client, err := a.erp.GetClient(r.Context(), user.OrganizationID, id)
		if err != nil {
			handleERPError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, client)
	case http.MethodPatch:
		var req updateClientRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		client, err := a.erp.UpdateClient(r.Context(), user.OrganizationID, id, erp.ClientUpdate{
			Name:      req.Name,
			Email:     req.Email,
			Phone:     req.Phone,
			Address:   req.Address,
			TaxNumber: req.TaxNumber,
			IsActive:  req.IsActive,
		})
		if err != nil {
			handleERPError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, client)
	case http.MethodDelete:
		if err := a.erp.DeleteClient(r.Context(), user.OrganizationID, id); err != nil {
			handleERPError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

// Products ------------------------------------------------------------------

type updateProductRequest struct {
	Name            *string  `json:"name"`
	Description     *string  `json:"description"`
	SKU             *string  `json:"sku"`
	UnitPrice       *float64 `json:"unit_price"`
	QuantityInStock *int     `json:"quantity_in_stock"`
	ReorderLevel    *int     `json:"reorder_level"`
	IsActive        *bool    `json:"is_active"`
}

func (a *API) handleProducts(w http.ResponseWriter, r *http.Request) {
	user, ok := requireOrganization(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		skip, limit, err := parsePage(r)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		products, err := a.erp.ListProducts(r.Context(), user.OrganizationID, skip, limit)
		if err != nil {
			handleERPError(w, r, err)
			return
		}
		if products == nil {
			products = []*erp.Product{}
		}
		writeJSON(w, http.StatusOK, products)
	case http.MethodPost:
		var req erp.ProductParams
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		product, err := a.erp.CreateProduct(r.Context(), user.OrganizationID, req)
		if err != nil {
			handleERPError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, product)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleProductByID(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "/products/")
	if !ok {
		return
	}
	user, ok := requireOrganization(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		product, err := a.erp.GetProduct(r.Context(), user.OrganizationID, id)
		if err != nil {
			handleERPError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, product)
	case http.MethodPatch:
		var req updateProductRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		product, err := a.erp.UpdateProduct(r.Context(), user.OrganizationID, id, erp.ProductUpdate{
			Name:            req.Name,
			Description:     req.Description,
			SKU:             req.SKU,
			UnitPrice:       req.UnitPrice,
			QuantityInStock: req.QuantityInStock,
			ReorderLevel:    req.ReorderLevel,
			IsActive:        req.IsActive,
		})
		if err != nil {
			handleERPError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, product)
	case http.MethodDelete:
		if err := a.erp.DeleteProduct(r.Context(), user.OrganizationID, id); err != nil {
			handleERPError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

// Invoices ------------------------------------------------------------------

type updateInvoiceRequest struct {
	InvoiceNumber *string         `json:"invoice_number"`
	Status        *string         `json:"status"`
	IssueDate     *time.Time      `json:"issue_date"`
	DueDate       *time.Time      `json:"due_date"`
	TaxRate       *float64        `json:"tax_rate"`
	Notes         *string         `json:"notes"`
	ClientID      *string         `json:"client_id"`
	Items         []erp.ItemInput `json:"items"`
}

func (a *API) handleInvoices(w http.ResponseWriter, r *http.Request) {
	user, ok := requireOrganization(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		skip, limit, err := parsePage(r)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		invoices, err := a.erp.ListInvoices(r.Context(), user.OrganizationID, skip, limit)
		if err != nil {
			handleERPError(w, r, err)
			return
		}
		if invoices == nil {
			invoices = []*erp.Invoice{}
		}
		writeJSON(w, http.StatusOK, invoices)
	case http.MethodPost:
		var req erp.InvoiceParams
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		invoice, err := a.erp.CreateInvoice(r.Context(), user.OrganizationID, req)
		if err != nil {
			handleERPError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "invoice.create", map[string]any{
			"invoice_id": invoice.ID,
			"total":      invoice.Total,
		})
		writeJSON(w, http.StatusCreated, invoice)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleInvoiceByID(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "/invoices/")
	if !ok {
		return
	}
	user, ok := requireOrganization(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		invoice, err := a.erp.GetInvoice(r.Context(), user.OrganizationID, id)
		if err != nil {
			handleERPError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, invoice)
	case http.MethodPatch:
		var req updateInvoiceRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		upd := erp.InvoiceUpdate{
			InvoiceNumber: req.InvoiceNumber,
			IssueDate:     req.IssueDate,
			DueDate:       req.DueDate,
			TaxRate:       req.TaxRate,
			Notes:         req.Notes,
			ClientID:      req.ClientID,
			Items:         req.Items,
		}
		if req.Status != nil {
			st := erp.InvoiceStatus(*req.Status)
			upd.Status = &st
		}
		invoice, err := a.erp.UpdateInvoice(r.Context(), user.OrganizationID, id, upd)
		if err != nil {
			handleERPError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, invoice)
	case http.MethodDelete:
		if err := a.erp.DeleteInvoice(r.Context(), user.OrganizationID, id); err != nil {
			handleERPError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

// pathID extracts the trailing id segment from prefix-routed paths.
func pathID(w http.ResponseWriter, r *http.Request, prefix string) (string, bool) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return "", false
	}
	return id, true
}
