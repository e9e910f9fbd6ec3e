package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token verification failures, classified for the HTTP boundary. Anything
// that is not missing or expired reads as malformed so the response does not
// reveal which check failed.
var (
	ErrTokenMissing   = errors.New("auth: token missing")
	ErrTokenExpired   = errors.New("auth: token expired")
	ErrTokenMalformed = errors.New("auth: token malformed")
)

// Claims is the verified content of a session token.
type Claims struct {
	UserID    int64
	ExpiresAt time.Time
}

// Tokens issues and verifies HS256 session tokens. One instance is built at
// startup and shared by the login handler and the bearer middleware.
type Tokens struct {
	signingKey []byte
	issuer     string
	ttl        time.Duration
}

// NewTokens configures the token service. A non-positive ttl falls back to
// one hour.
func NewTokens(signingKey, issuer string, ttl time.Duration) *Tokens {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Tokens{signingKey: []byte(signingKey), issuer: issuer, ttl: ttl}
}

// TTL reports the configured token lifetime.
func (t *Tokens) TTL() time.Duration { return t.ttl }

// Issue signs a token for userID valid for the configured TTL.
func (t *Tokens) Issue(userID int64) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(t.ttl)

	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(userID, 10),
		Issuer:    t.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.signingKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Verify parses and validates a token. Failures come back as ErrTokenMissing,
// ErrTokenExpired or ErrTokenMalformed; the wrapped detail is for logs only.
func (t *Tokens) Verify(tokenStr string) (Claims, error) {
	if tokenStr == "" {
		return Claims{}, ErrTokenMissing
	}

	parsed, err := jwt.ParseWithClaims(tokenStr, &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return t.signingKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}

	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || !parsed.Valid {
		return Claims{}, ErrTokenMalformed
	}
	if t.issuer != "" && claims.Issuer != t.issuer {
		return Claims{}, fmt.Errorf("%w: issuer mismatch", ErrTokenMalformed)
	}
	if claims.ExpiresAt == nil {
		return Claims{}, fmt.Errorf("%w: no expiry", ErrTokenMalformed)
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: non-numeric subject", ErrTokenMalformed)
	}

	return Claims{UserID: userID, ExpiresAt: claims.ExpiresAt.Time}, nil
}
