package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ifiasoft/erp-api/internal/obs"

	"golang.org/x/crypto/bcrypt"
)

const (
	defaultAccessTTL  = 30 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
)

// Mailer is the outbound verification-mail sink. Send failures are logged
// and never fail the triggering operation.
type Mailer interface {
	SendVerificationMail(ctx context.Context, email, token string) error
}

// Service orchestrates token issuance, refresh rotation, logout and the
// registration/verification flow.
//
// Precondition (not enforced): the refresh TTL exceeds the access TTL.
type Service struct {
	store  Store
	codec  *Codec
	mailer Mailer
	now    func() time.Time

	accessTTL       time.Duration
	refreshTTL      time.Duration
	bcryptCost      int
	requireVerified bool
	sendVerifyMail  bool
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithAccessTTL configures the access token lifetime.
func WithAccessTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.accessTTL = ttl
		}
	}
}

// WithRefreshTTL configures the refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
	}
}

// WithBcryptCost configures the password hash cost factor.
func WithBcryptCost(cost int) ServiceOption {
	return func(s *Service) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			s.bcryptCost = cost
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
			s.codec.now = fn
		}
	}
}

// WithVerificationGate toggles whether login requires a verified email.
func WithVerificationGate(enabled bool) ServiceOption {
	return func(s *Service) { s.requireVerified = enabled }
}

// WithVerificationMail toggles the verification mail on registration.
func WithVerificationMail(enabled bool) ServiceOption {
	return func(s *Service) { s.sendVerifyMail = enabled }
}

// WithMailer sets the outbound mail sink.
func WithMailer(m Mailer) ServiceOption {
	return func(s *Service) { s.mailer = m }
}

// NewService constructs the session manager.
func NewService(store Store, codec *Codec, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	if codec == nil {
		return nil, errors.New("auth: codec is required")
	}
	svc := &Service{
		store:           store,
		codec:           codec,
		now:             time.Now,
		accessTTL:       defaultAccessTTL,
		refreshTTL:      defaultRefreshTTL,
		bcryptCost:      bcrypt.DefaultCost,
		requireVerified: true,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// IssuePair mints a fresh access/refresh pair for the user and persists both
// records in one transaction.
func (s *Service) IssuePair(ctx context.Context, userID string) (TokenPair, error) {
	now := s.now().UTC()
	accessJTI := uuid.NewString()
	refreshJTI := uuid.NewString()

	accessToken, err := s.codec.Encode(userID, accessJTI, TokenTypeAccess, s.accessTTL)
	if err != nil {
		return TokenPair{}, fmt.Errorf("encode access token: %w", err)
	}
	refreshToken, err := s.codec.Encode(userID, refreshJTI, TokenTypeRefresh, s.refreshTTL)
	if err != nil {
		return TokenPair{}, fmt.Errorf("encode refresh token: %w", err)
	}

	accessExp := now.Add(s.accessTTL)
	refreshExp := now.Add(s.refreshTTL)
	err = s.store.Tokens().Insert(ctx,
		TokenRecord{JTI: accessJTI, TokenType: TokenTypeAccess, UserID: userID, ExpiresAt: accessExp},
		TokenRecord{JTI: refreshJTI, TokenType: TokenTypeRefresh, UserID: userID, ExpiresAt: refreshExp},
	)
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// Login authenticates email+password and issues a token pair. Unknown email
// and wrong password fail identically.
func (s *Service) Login(ctx context.Context, email, password string) (TokenPair, *User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return TokenPair{}, nil, ErrInvalidCredentials
	}
	user, err := s.store.Users().FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, nil, ErrInvalidCredentials
		}
		return TokenPair{}, nil, err
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return TokenPair{}, nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return TokenPair{}, nil, ErrInvalidCredentials
	}
	if s.requireVerified && !user.IsEmailVerified {
		return TokenPair{}, nil, ErrEmailNotVerified
	}
	pair, err := s.IssuePair(ctx, user.ID)
	if err != nil {
		return TokenPair{}, nil, err
	}
	return pair, user, nil
}

// Refresh rotates a refresh token: the presented token is atomically revoked
// and a brand-new pair is issued. A second presentation of the same token,
// concurrent or later, fails ErrInvalidToken.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, err := s.codec.Decode(refreshToken)
	if err != nil {
		return TokenPair{}, ErrInvalidToken
	}
	if claims.TokenType != TokenTypeRefresh {
		return TokenPair{}, ErrInvalidToken
	}
	// Decode alone is insufficient: revocation state lives in the store.
	userID, err := s.store.Tokens().Consume(ctx, claims.ID, TokenTypeRefresh)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, ErrInvalidToken
		}
		return TokenPair{}, err
	}
	return s.IssuePair(ctx, userID)
}

// ResolveUser resolves the owning user of a bearer access token. Refresh
// tokens presented as bearer credentials are rejected.
func (s *Service) ResolveUser(ctx context.Context, bearer string) (*User, error) {
	claims, err := s.codec.Decode(bearer)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != TokenTypeAccess {
		return nil, ErrInvalidToken
	}
	if _, err := s.store.Tokens().FindActive(ctx, claims.ID, TokenTypeAccess); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	user, err := s.store.Users().Find(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrInvalidToken
	}
	return user, nil
}

// Logout revokes every still-valid token owned by the user. Logging out
// twice is a no-op the second time.
func (s *Service) Logout(ctx context.Context, userID string) (int64, error) {
	return s.store.Tokens().RevokeAllForUser(ctx, userID)
}

// RegisterParams carries the registration payload.
type RegisterParams struct {
	Email      string
	Password   string
	Salutation string
	FirstName  string
	MiddleName string
	LastName   string
}

// Register creates a user, stores a one-time verification token and issues
// an initial token pair. The verification mail is fire-and-forget: a send
// failure is logged, never surfaced.
func (s *Service) Register(ctx context.Context, params RegisterParams) (*User, TokenPair, error) {
	email := strings.TrimSpace(params.Email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, TokenPair{}, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if _, err := s.store.Users().FindByEmail(ctx, email); err == nil {
		return nil, TokenPair{}, ErrEmailTaken
	} else if !errors.Is(err, ErrNotFound) {
		return nil, TokenPair{}, err
	}

	if strings.TrimSpace(params.Password) == "" {
		return nil, TokenPair{}, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	hash, err := HashPassword(params.Password, s.bcryptCost)
	if err != nil {
		return nil, TokenPair{}, err
	}
	verificationToken, err := newVerificationToken()
	if err != nil {
		return nil, TokenPair{}, err
	}

	user := &User{
		Email:             email,
		PasswordHash:      hash,
		Salutation:        strings.TrimSpace(params.Salutation),
		FirstName:         strings.TrimSpace(params.FirstName),
		MiddleName:        strings.TrimSpace(params.MiddleName),
		LastName:          strings.TrimSpace(params.LastName),
		IsActive:          true,
		VerificationToken: verificationToken,
	}
	if user.FirstName == "" {
		return nil, TokenPair{}, fmt.Errorf("%w: first name is required", ErrInvalidInput)
	}
	if err := s.store.Users().Create(ctx, user); err != nil {
		return nil, TokenPair{}, err
	}

	if s.sendVerifyMail && s.mailer != nil {
		if err := s.mailer.SendVerificationMail(ctx, user.Email, verificationToken); err != nil {
			obs.LogRequest(map[string]any{
				"ts":    s.now().UTC().Format(time.RFC3339Nano),
				"level": "warn",
				"msg":   "verification mail failed",
				"error": err.Error(),
			})
		}
	}

	pair, err := s.IssuePair(ctx, user.ID)
	if err != nil {
		return nil, TokenPair{}, err
	}
	return user, pair, nil
}

// VerifyEmail redeems a one-time verification token.
func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrInvalidVerificationToken
	}
	user, err := s.store.Users().FindByVerificationToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrInvalidVerificationToken
		}
		return err
	}
	return s.store.Users().MarkEmailVerified(ctx, user.ID)
}

// UpdateProfile applies a sparse profile patch.
func (s *Service) UpdateProfile(ctx context.Context, userID string, upd UserUpdate) (*User, error) {
	return s.store.Users().UpdateProfile(ctx, userID, upd)
}

// AssignOrganization binds the user to the given organization.
func (s *Service) AssignOrganization(ctx context.Context, userID, orgID string) error {
	return s.store.Users().AssignOrganization(ctx, userID, orgID)
}

// DeleteAccount soft-deletes the user and revokes all of their tokens.
func (s *Service) DeleteAccount(ctx context.Context, userID string) error {
	if err := s.store.Users().Deactivate(ctx, userID); err != nil {
		return err
	}
	_, err := s.store.Tokens().RevokeAllForUser(ctx, userID)
	return err
}

func newVerificationToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
