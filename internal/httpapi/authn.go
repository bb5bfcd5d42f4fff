package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ifiasoft/erp-api/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = []string{
	"/",
	"/auth/register",
	"/auth/token",
	"/auth/refresh",
	"/metrics",
	"/healthz",
	"/readyz",
}

var publicPrefixes = []string{
	"/auth/verify-email/",
}

// withAuth resolves the bearer token to a user and stores it in the request
// context. Public paths pass through untouched.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}

		user, err := a.auth.ResolveUser(r.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrInvalidToken):
				writeError(w, r, http.StatusUnauthorized, "invalid or expired token")
			default:
				writeError(w, r, http.StatusInternalServerError, "authentication error")
			}
			return
		}

		ctx := auth.ContextWithUser(r.Context(), user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// currentUser pulls the authenticated user out of the context. The auth
// middleware sets it for every non-public path.
func currentUser(w http.ResponseWriter, r *http.Request) (*auth.User, bool) {
	u, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return nil, false
	}
	return u, true
}

// requireOrganization is currentUser plus a membership check; the ERP
// routes are meaningless without a tenant.
func requireOrganization(w http.ResponseWriter, r *http.Request) (*auth.User, bool) {
	u, ok := currentUser(w, r)
	if !ok {
		return nil, false
	}
	if u.OrganizationID == "" {
		writeError(w, r, http.StatusForbidden, "user does not belong to an organization")
		return nil, false
	}
	return u, true
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	for _, prefix := range publicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
