package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ifiasoft/erp-api/internal/audit"
	"github.com/ifiasoft/erp-api/internal/auth"
)

type registerRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	Salutation string `json:"salutation"`
	FirstName  string `json:"first_name"`
	MiddleName string `json:"middle_name"`
	LastName   string `json:"last_name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type updateProfileRequest struct {
	Salutation *string `json:"salutation"`
	FirstName  *string `json:"first_name"`
	MiddleName *string `json:"middle_name"`
	LastName   *string `json:"last_name"`
}

type userResponse struct {
	ID              string    `json:"id"`
	Email           string    `json:"email"`
	Salutation      string    `json:"salutation,omitempty"`
	FirstName       string    `json:"first_name"`
	MiddleName      string    `json:"middle_name,omitempty"`
	LastName        string    `json:"last_name,omitempty"`
	FullName        string    `json:"full_name"`
	IsActive        bool      `json:"is_active"`
	IsEmailVerified bool      `json:"is_email_verified"`
	OrganizationID  string    `json:"organization_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type tokenResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

type userAuthResponse struct {
	User  userResponse  `json:"user"`
	Token tokenResponse `json:"token"`
}

func toUserResponse(u *auth.User) userResponse {
	return userResponse{
		ID:              u.ID,
		Email:           u.Email,
		Salutation:      u.Salutation,
		FirstName:       u.FirstName,
		MiddleName:      u.MiddleName,
		LastName:        u.LastName,
		FullName:        u.FullName(),
		IsActive:        u.IsActive,
		IsEmailVerified: u.IsEmailVerified,
		OrganizationID:  u.OrganizationID,
		CreatedAt:       u.CreatedAt,
		UpdatedAt:       u.UpdatedAt,
	}
}

func toTokenResponse(pair auth.TokenPair) tokenResponse {
	return tokenResponse{Access: pair.AccessToken, Refresh: pair.RefreshToken}
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, pair, err := a.auth.Register(r.Context(), auth.RegisterParams{
		Email:      req.Email,
		Password:   req.Password,
		Salutation: req.Salutation,
		FirstName:  req.FirstName,
		MiddleName: req.MiddleName,
		LastName:   req.LastName,
	})
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrEmailTaken):
			writeError(w, r, http.StatusBadRequest, "email already registered")
		case errors.Is(err, auth.ErrInvalidInput):
			writeError(w, r, http.StatusBadRequest, err.Error())
		default:
			writeError(w, r, http.StatusInternalServerError, "internal error")
		}
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.register", map[string]any{
		"user_id": user.ID,
		"email":   user.Email,
	})
	writeJSON(w, http.StatusCreated, userAuthResponse{
		User:  toUserResponse(user),
		Token: toTokenResponse(pair),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	pair, user, err := a.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrEmailNotVerified):
			writeError(w, r, http.StatusForbidden, "email address is not verified")
		case errors.Is(err, auth.ErrInvalidCredentials):
			writeError(w, r, http.StatusUnauthorized, "incorrect email or password")
		default:
			writeError(w, r, http.StatusInternalServerError, "internal error")
		}
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{
		"user_id": user.ID,
	})
	writeJSON(w, http.StatusOK, userAuthResponse{
		User:  toUserResponse(user),
		Token: toTokenResponse(pair),
	})
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.RefreshToken) == "" {
		writeError(w, r, http.StatusBadRequest, "refresh_token is required")
		return
	}
	pair, err := a.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidToken):
			writeError(w, r, http.StatusUnauthorized, "invalid or expired refresh token")
		default:
			writeError(w, r, http.StatusInternalServerError, "internal error")
		}
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.refresh", nil)
	writeJSON(w, http.StatusOK, toTokenResponse(pair))
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	revoked, err := a.auth.Logout(r.Context(), user.ID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.logout", map[string]any{
		"revoked": revoked,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "successfully logged out",
	})
}

func (a *API) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	token := strings.Trim(strings.TrimPrefix(r.URL.Path, "/auth/verify-email/"), "/")
	if token == "" || strings.Contains(token, "/") {
		writeError(w, r, http.StatusBadRequest, "invalid verification token")
		return
	}
	if err := a.auth.VerifyEmail(r.Context(), token); err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidVerificationToken):
			writeError(w, r, http.StatusBadRequest, "invalid verification token")
		default:
			writeError(w, r, http.StatusInternalServerError, "internal error")
		}
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.email_verified", nil)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "email successfully verified",
	})
}

func (a *API) handleUserMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// handleUser covers /auth/user/: PATCH updates the profile, DELETE
// deactivates the account and revokes every session.
func (a *API) handleUser(w http.ResponseWriter, r *http.Request) {
	if strings.Trim(strings.TrimPrefix(r.URL.Path, "/auth/user/"), "/") != "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodPatch:
		var req updateProfileRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		updated, err := a.auth.UpdateProfile(r.Context(), user.ID, auth.UserUpdate{
			Salutation: req.Salutation,
			FirstName:  req.FirstName,
			MiddleName: req.MiddleName,
			LastName:   req.LastName,
		})
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, toUserResponse(updated))
	case http.MethodDelete:
		if err := a.auth.DeleteAccount(r.Context(), user.ID); err != nil {
			writeError(w, r, http.StatusInternalServerError, "internal error")
			return
		}
		_ = audit.LogEvent(r.Context(), "auth.account_deleted", nil)
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodPatch, http.MethodDelete)
	}
}
