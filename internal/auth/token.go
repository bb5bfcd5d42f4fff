package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "ifiasoft-erp"

// Token kinds persisted alongside every issued credential.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Claims are the JWT claims carried by both token kinds.
type Claims struct {
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// Codec encodes and decodes signed, expiring tokens. It holds the single
// server-wide HS256 secret and never consults the session store; revocation
// checks are layered on top by the Service.
type Codec struct {
	secret []byte
	now    func() time.Time
}

// NewCodec constructs a Codec from the server secret.
func NewCodec(secret string) (*Codec, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: token secret is required")
	}
	return &Codec{secret: []byte(secret), now: time.Now}, nil
}

// Encode signs a token for userID with the given jti, kind and ttl. Expiry
// is absolute: now + ttl.
func (c *Codec) Encode(userID, jti, tokenType string, ttl time.Duration) (string, error) {
	if userID == "" || jti == "" {
		return "", errors.New("auth: subject and jti are required")
	}
	if tokenType != TokenTypeAccess && tokenType != TokenTypeRefresh {
		return "", errors.New("auth: unknown token type")
	}
	if ttl <= 0 {
		return "", errors.New("auth: ttl must be greater than zero")
	}

	now := c.now().UTC()
	claims := Claims{
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", err
	}
	return signed, nil
}

// Decode verifies signature and expiry atomically and returns the claims.
// Every failure mode (malformed, bad signature, expired, missing claim)
// collapses to ErrInvalidToken.
func (c *Codec) Decode(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return c.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithExpirationRequired(), jwt.WithTimeFunc(func() time.Time { return c.now() }))
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" || strings.TrimSpace(claims.ID) == "" {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != TokenTypeAccess && claims.TokenType != TokenTypeRefresh {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
