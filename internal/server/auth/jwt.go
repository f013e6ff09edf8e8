// Package auth contains the credential primitives of the server: access token
// signing, refresh token generation and password hashing.
package auth

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims of an access token. The user id travels in the standard sub claim.
type Claims struct {
	jwt.RegisteredClaims
}

func (c *Claims) UserID() string {
	return c.Subject
}

// TokenSigner issues and verifies HS256 access tokens.
type TokenSigner struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenSigner(secret []byte, issuer string, ttl time.Duration) *TokenSigner {
	return &TokenSigner{secret: secret, issuer: issuer, ttl: ttl, now: time.Now}
}

// WithClock replaces the time source, for tests.
func (s *TokenSigner) WithClock(now func() time.Time) *TokenSigner {
	s.now = now
	return s
}

// Generate signs a token for userID and returns it with its expiry.
func (s *TokenSigner) Generate(userID string) (string, time.Time, error) {
	issuedAt := s.now().Truncate(jwt.TimePrecision)
	expiresAt := issuedAt.Add(s.ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	})

	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}

	return tokenString, expiresAt, nil
}

// Parse verifies the signature and claims of tokenString. It returns
// common.ErrTokenExpired once the clock is past exp (a token is still valid
// at exactly exp) and common.ErrInvalidToken for anything else.
func (s *TokenSigner) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}

	// exp is checked below: the library rejects a token at exactly exp.
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}

	if claims.ExpiresAt == nil || claims.Subject == "" {
		return nil, common.ErrInvalidToken
	}
	if s.issuer != "" && claims.Issuer != s.issuer {
		return nil, common.ErrInvalidToken
	}
	if s.now().After(claims.ExpiresAt.Time) {
		return nil, common.ErrTokenExpired
	}

	return claims, nil
}
