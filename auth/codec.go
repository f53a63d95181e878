// Package auth implements the credential codec and identity resolution:
// password hashing with bcrypt and signed, time-limited identity tokens
// using HS256 JWTs.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// Errors returned by the codec and resolver. Callers match with errors.Is and
// translate into the API taxonomy at the boundary.
var (
	// ErrInvalidToken indicates a token with a bad signature, a missing
	// subject claim, or one past its expiry.
	ErrInvalidToken = errors.New("auth: invalid token")

	// ErrUnauthenticated indicates a bearer identity that could not be
	// resolved to a known user.
	ErrUnauthenticated = errors.New("auth: unauthenticated")
)

// DefaultTokenTTL is how long issued tokens remain valid unless configured.
const DefaultTokenTTL = 30 * time.Minute

// DefaultBcryptCost is the bcrypt work factor used when none is configured.
const DefaultBcryptCost = bcrypt.DefaultCost

// DefaultLeeway is the grace period applied to expiry checks. It prevents
// false expiration errors from clock drift between systems while keeping the
// effective lifetime extension negligible.
const DefaultLeeway = 5 * time.Second

// Hasher hashes and verifies passwords with bcrypt. The cost factor is
// tunable; hashing is intentionally expensive and must never run while
// holding a shared resource lock.
type Hasher struct {
	cost int
}

// NewHasher creates a password hasher with the given bcrypt cost. A
// non-positive cost uses bcrypt's default; out-of-range costs are clamped.
func NewHasher(cost int) *Hasher {
	switch {
	case cost <= 0:
		cost = bcrypt.DefaultCost
	case cost < bcrypt.MinCost:
		cost = bcrypt.MinCost
	case cost > bcrypt.MaxCost:
		cost = bcrypt.MaxCost
	}
	return &Hasher{cost: cost}
}

// Hash produces a salted one-way transform of password. Output differs across
// calls for the same input; every output verifies against that input.
func (h *Hasher) Hash(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashed), nil
}

// Verify reports whether password matches hash.
func (h *Hasher) Verify(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Claims is the validated claim set extracted from an identity token.
type Claims struct {
	Subject   string // username
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenCodec issues and verifies signed identity tokens. The signing key is
// process-wide configuration; constructing a codec without one fails, which
// callers treat as a fatal startup condition.
type TokenCodec struct {
	key    []byte
	ttl    time.Duration
	leeway time.Duration
	now    func() time.Time
}

// NewTokenCodec creates a token codec with the given signing key and TTL.
// A non-positive ttl uses DefaultTokenTTL.
func NewTokenCodec(key []byte, ttl time.Duration) (*TokenCodec, error) {
	if len(key) == 0 {
		return nil, errors.New("auth: signing key is required")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenCodec{
		key:    key,
		ttl:    ttl,
		leeway: DefaultLeeway,
		now:    time.Now,
	}, nil
}

// SetNow overrides the codec's clock. Intended for tests.
func (c *TokenCodec) SetNow(now func() time.Time) {
	if now != nil {
		c.now = now
	}
}

// TTL returns the configured token lifetime.
func (c *TokenCodec) TTL() time.Duration {
	return c.ttl
}

// Issue produces a signed token embedding the subject and an expiry of
// now+TTL.
func (c *TokenCodec) Issue(subject string) (string, error) {
	if subject == "" {
		return "", errors.New("auth: token subject is required")
	}

	now := c.now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a token, returning its claims. It fails with
// ErrInvalidToken when the signature is invalid, the token is expired, or the
// subject claim is missing.
func (c *TokenCodec) Verify(tokenString string) (*Claims, error) {
	var parsed jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(tokenString, &parsed,
		func(token *jwt.Token) (any, error) {
			return c.key, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(c.leeway),
		jwt.WithTimeFunc(func() time.Time { return c.now() }),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if parsed.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject claim", ErrInvalidToken)
	}

	claims := &Claims{Subject: parsed.Subject}
	if parsed.IssuedAt != nil {
		claims.IssuedAt = parsed.IssuedAt.Time
	}
	if parsed.ExpiresAt != nil {
		claims.ExpiresAt = parsed.ExpiresAt.Time
	}
	return claims, nil
}
