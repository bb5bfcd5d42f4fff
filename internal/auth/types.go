package auth

import (
	"strings"
	"time"
)

// User is the identity record. PasswordHash and the verification token never
// leave the server.
type User struct {
	ID                string    `json:"id"`
	Email             string    `json:"email"`
	PasswordHash      string    `json:"-"`
	Salutation        string    `json:"salutation,omitempty"`
	FirstName         string    `json:"first_name"`
	MiddleName        string    `json:"middle_name,omitempty"`
	LastName          string    `json:"last_name,omitempty"`
	IsActive          bool      `json:"is_active"`
	IsAdmin           bool      `json:"is_admin"`
	IsEmailVerified   bool      `json:"is_email_verified"`
	VerificationToken string    `json:"-"`
	OrganizationID    string    `json:"organization_id,omitempty"`
	RoleID            string    `json:"role_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// FullName joins the non-empty name parts with single spaces.
func (u *User) FullName() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{u.FirstName, u.MiddleName, u.LastName} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// TokenRecord is one row per issued credential, keyed by jti. Rows are
// append-only: the only mutation ever applied is flipping Revoked to true.
type TokenRecord struct {
	JTI       string
	TokenType string
	UserID    string
	Revoked   bool
	ExpiresAt time.Time
	CreatedAt time.Time
}

// UserUpdate is a sparse profile patch. Nil fields are left untouched.
type UserUpdate struct {
	Salutation *string
	FirstName  *string
	MiddleName *string
	LastName   *string
}

// TokenPair carries a freshly minted access/refresh pair.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}
