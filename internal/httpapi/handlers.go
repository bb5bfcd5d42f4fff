// Package httpapi is the HTTP JSON surface of the ERP service.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ifiasoft/erp-api/internal/auth"
	"github.com/ifiasoft/erp-api/internal/config"
	"github.com/ifiasoft/erp-api/internal/erp"
	"github.com/ifiasoft/erp-api/internal/obs"
)

// ReadyProbe checks downstream readiness (DB ping).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API wires the auth and ERP services to the router.
type API struct {
	mux        *http.ServeMux
	auth       *auth.Service
	erp        *erp.Service
	cfg        *config.Config
	readyProbe ReadyProbe
	version    string
}

func New(authSvc *auth.Service, erpSvc *erp.Service, cfg *config.Config, rp ReadyProbe, version string) *API {
	a := &API{
		mux:        http.NewServeMux(),
		auth:       authSvc,
		erp:        erpSvc,
		cfg:        cfg,
		readyProbe: rp,
		version:    version,
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)

	a.mux.HandleFunc("/auth/register", a.handleRegister)
	a.mux.HandleFunc("/auth/token", a.handleLogin)
	a.mux.HandleFunc("/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("/auth/logout", a.handleLogout)
	a.mux.HandleFunc("/auth/verify-email/", a.handleVerifyEmail)
	a.mux.HandleFunc("/auth/user/me", a.handleUserMe)
	a.mux.HandleFunc("/auth/user/", a.handleUser)

	a.mux.HandleFunc("/organizations", a.handleOrganizations)
	a.mux.HandleFunc("/organizations/", a.handleOrganizationByID)
	a.mux.HandleFunc("/clients", a.handleClients)
	a.mux.HandleFunc("/clients/", a.handleClientByID)
	a.mux.HandleFunc("/products", a.handleProducts)
	a.mux.HandleFunc("/products/", a.handleProductByID)
	a.mux.HandleFunc("/invoices", a.handleInvoices)
	a.mux.HandleFunc("/invoices/", a.handleInvoiceByID)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/", a.Root)

	return a
}

// Handler returns the full middleware chain around the router.
func (a *API) Handler() http.Handler {
	h := http.Handler(a.mux)
	h = a.withAuth(h)
	h = obs.Instrument(h)
	h = LoggingJSON(h)
	h = RateLimit(h, a.cfg.RateLimitBurst, a.cfg.RateLimitPerSec)
	h = MaxBodyBytes(h, 1<<20)
	h = CORS(h, a.cfg.Origins())
	h = SecurityHeaders(h)
	h = RequestID(h)
	return h
}

// --- service handlers ---

func (a *API) Root(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "erp-api",
		"version": a.version,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "erp-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func parsePage(r *http.Request) (skip, limit int, err error) {
	q := r.URL.Query()
	skip, err = parseNonNegativeInt(q.Get("skip"), 0)
	if err != nil {
		return 0, 0, errors.New("skip must be a non-negative integer")
	}
	limit, err = parseNonNegativeInt(q.Get("limit"), 100)
	if err != nil {
		return 0, 0, errors.New("limit must be a non-negative integer")
	}
	return skip, limit, nil
}

func parseNonNegativeInt(raw string, def int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val < 0 {
		return 0, errors.New("invalid integer")
	}
	return val, nil
}

// handleERPError maps service errors to status codes. A cross-tenant id is
// indistinguishable from a missing one (404).
func handleERPError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, erp.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, erp.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, erp.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "resource not found")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
