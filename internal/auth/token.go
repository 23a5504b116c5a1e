package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const defaultIssuer = "qrdine"

// RoleClaim is the current-role snapshot carried inside an access token.
type RoleClaim struct {
	UserType     UserType `json:"user_type"`
	RoleTemplate string   `json:"role_template"`
	RestaurantID string   `json:"restaurant_id,omitempty"`
}

// AccessClaims is the self-contained payload of an access token: identity,
// session binding, current role and the permission snapshot resolved at
// issue time. Validity is signature plus expiry; no store lookup.
type AccessClaims struct {
	SessionID   string    `json:"sid"`
	Role        RoleClaim `json:"role"`
	Permissions []string  `json:"permissions"`
	jwt.RegisteredClaims
}

// UserID returns the token subject.
func (c *AccessClaims) UserID() string {
	return c.Subject
}

// HasPermission reports membership in the permission snapshot.
func (c *AccessClaims) HasPermission(key string) bool {
	for _, p := range c.Permissions {
		if p == key {
			return true
		}
	}
	return false
}

// TokenCodec signs and verifies access tokens with HS256. The key is
// read-only shared state loaded once at construction.
type TokenCodec struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenCodec constructs a codec for the given signing secret.
func NewTokenCodec(secret []byte, issuer string, ttl time.Duration, now func() time.Time) (*TokenCodec, error) {
	if len(secret) == 0 {
		return nil, errors.New("auth: signing secret is required")
	}
	if strings.TrimSpace(issuer) == "" {
		issuer = defaultIssuer
	}
	if ttl <= 0 {
		ttl = defaultAccessTTL
	}
	if now == nil {
		now = time.Now
	}
	return &TokenCodec{secret: secret, issuer: issuer, ttl: ttl, now: now}, nil
}

// TTL returns the configured access token lifetime.
func (c *TokenCodec) TTL() time.Duration {
	return c.ttl
}

// Issue signs an access token for the given identity, session and role
// snapshot. Pure function of the key and inputs.
func (c *TokenCodec) Issue(userID, sessionID string, role RoleClaim, permissions []string) (string, time.Time, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(sessionID) == "" {
		return "", time.Time{}, errors.New("auth: user and session are required")
	}
	now := c.now().UTC()
	exp := now.Add(c.ttl)
	claims := AccessClaims{
		SessionID:   sessionID,
		Role:        role,
		Permissions: permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Verify checks signature integrity and expiry. A valid signature with a
// past expiry fails with ErrTokenExpired; anything else malformed fails
// with ErrTokenInvalid.
func (c *TokenCodec) Verify(raw string) (*AccessClaims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrTokenInvalid
	}
	parsed, err := jwt.ParseWithClaims(raw, &AccessClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrTokenInvalid
		}
		return c.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return c.now().UTC() }), jwt.WithIssuer(c.issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	claims, ok := parsed.Claims.(*AccessClaims)
	if !ok || !parsed.Valid {
		return nil, ErrTokenInvalid
	}
	if strings.TrimSpace(claims.Subject) == "" || strings.TrimSpace(claims.SessionID) == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
