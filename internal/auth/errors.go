package auth

import "errors"

var (
	// ErrInvalidCredentials is returned for unknown email and wrong password
	// alike, so callers cannot probe which addresses are registered.
	ErrInvalidCredentials = errors.New("auth: incorrect email or password")

	// ErrEmailTaken indicates the email is already registered.
	ErrEmailTaken = errors.New("auth: email already registered")

	// ErrEmailNotVerified gates login when verification is required.
	ErrEmailNotVerified = errors.New("auth: email not verified")

	// ErrInvalidToken covers malformed, expired, signature-invalid, revoked
	// and not-found-in-store tokens. The cases are deliberately not
	// distinguished to the client.
	ErrInvalidToken = errors.New("auth: invalid token")

	// ErrInvalidVerificationToken indicates an unknown or already redeemed
	// verification token.
	ErrInvalidVerificationToken = errors.New("auth: invalid verification token")

	// ErrInvalidInput indicates a malformed or incomplete request payload.
	ErrInvalidInput = errors.New("auth: invalid input")

	// ErrNotFound indicates an absent record.
	ErrNotFound = errors.New("auth: not found")

	// ErrDuplicateJTI indicates a jti collision on insert. Identifiers are
	// 122-bit random, so hitting this means a programming error.
	ErrDuplicateJTI = errors.New("auth: duplicate jti")
)
