package auth

import "context"

// UserStore manages identity records.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByVerificationToken(ctx context.Context, token string) (*User, error)
	// MarkEmailVerified flips the verified flag and clears the one-time
	// verification token in a single statement.
	MarkEmailVerified(ctx context.Context, userID string) error
	UpdateProfile(ctx context.Context, userID string, upd UserUpdate) (*User, error)
	// AssignOrganization links the user to an organization once they
	// create or join one.
	AssignOrganization(ctx context.Context, userID, orgID string) error
	Deactivate(ctx context.Context, userID string) error
}

// TokenStore is the sole reader/writer of token rows.
type TokenStore interface {
	// Insert persists the given records in one transaction, so a crash
	// cannot leave half of an access/refresh pair behind. A jti collision
	// yields ErrDuplicateJTI.
	Insert(ctx context.Context, recs ...TokenRecord) error

	// FindActive returns the record iff it exists with the expected kind,
	// is unrevoked and unexpired; otherwise ErrNotFound.
	FindActive(ctx context.Context, jti, tokenType string) (TokenRecord, error)

	// Consume atomically revokes an active record of the expected kind and
	// returns its owner. Concurrent calls on the same jti are serialized by
	// the conditional update: at most one succeeds, the rest get
	// ErrNotFound.
	Consume(ctx context.Context, jti, tokenType string) (string, error)

	// Revoke marks a record revoked. Idempotent.
	Revoke(ctx context.Context, jti string) error

	// RevokeAllForUser revokes every unrevoked, unexpired record owned by
	// the user in one set-based update and returns the affected count.
	RevokeAllForUser(ctx context.Context, userID string) (int64, error)
}

// Store bundles the persistence surfaces of the auth subsystem.
type Store interface {
	Users() UserStore
	Tokens() TokenStore
}
