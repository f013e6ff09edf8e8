// Package services contains the server-side authentication flows: account
// creation, signin, session refresh and signout on top of the repositories
// and the credential primitives in package auth.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/dbx"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/auth"
	"github.com/dmitrijs2005/gophauth/internal/server/config"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/repomanager"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// SessionState names the stages a client session goes through. Transitions
// are implied by the AuthService operations and only show up in logs.
type SessionState string

const (
	StateAnonymous     SessionState = "anonymous"
	StateAuthenticated SessionState = "authenticated"
	StateAccessExpired SessionState = "access_expired"
	StateRevoked       SessionState = "revoked"
)

// Session is the result of a successful signup or signin.
type Session struct {
	User   *models.User
	Tokens *TokenPair
}

// dummyPassword is hashed once at startup so unknown emails still cost a
// full password verification.
const dummyPassword = "gophauth-timing-equaliser"

type AuthService struct {
	repomanager repomanager.RepositoryManager
	hasher      auth.PasswordHasher
	tokens      *TokenIssuer
	validate    *validator.Validate
	minLen      int
	maxLen      int
	dummyDigest string
	log         logging.Logger
	now         func() time.Time
}

func NewAuthService(m repomanager.RepositoryManager, hasher auth.PasswordHasher, tokens *TokenIssuer, cfg *config.Config, log logging.Logger) (*AuthService, error) {
	dummy, err := hasher.Hash(dummyPassword)
	if err != nil {
		return nil, fmt.Errorf("prepare dummy digest: %w", err)
	}

	return &AuthService{
		repomanager: m,
		hasher:      hasher,
		tokens:      tokens,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		minLen:      cfg.PasswordMinLength,
		maxLen:      cfg.PasswordMaxLength,
		dummyDigest: dummy,
		log:         log,
		now:         time.Now,
	}, nil
}

// Signup creates an account and opens its first session. The account and
// the refresh token are written in one transaction.
func (s *AuthService) Signup(ctx context.Context, email, password string) (*Session, error) {
	email = NormalizeEmail(email)
	if err := s.validateSignup(email, password); err != nil {
		return nil, err
	}

	digest, err := s.hasher.Hash(password)
	if err != nil {
		return nil, internalError("hash password", err)
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: digest,
		CreatedAt:    s.now().UTC(),
	}

	session, err := dbx.WithTxResult(ctx, s.repomanager.DB(), nil, func(ctx context.Context, tx dbx.DBTX) (*Session, error) {
		u, err := s.repomanager.Users(tx).Create(ctx, user)
		if err != nil {
			return nil, err
		}
		pair, err := s.tokens.IssuePair(ctx, tx, u.ID)
		if err != nil {
			return nil, err
		}
		return &Session{User: u, Tokens: pair}, nil
	})
	if err != nil {
		if errors.Is(err, common.ErrAlreadyExists) {
			return nil, common.ErrDuplicateAccount
		}
		return nil, internalError("signup", err)
	}

	s.log.Info(ctx, "account created",
		"user_id", user.ID, "family_id", session.Tokens.FamilyID,
		"from", StateAnonymous, "to", StateAuthenticated)
	return session, nil
}

// Signin checks credentials and opens a new session. Unknown email and wrong
// password are indistinguishable to the caller.
func (s *AuthService) Signin(ctx context.Context, email, password string) (*Session, error) {
	email = NormalizeEmail(email)

	var fields []FieldError
	if email == "" {
		fields = append(fields, FieldError{Field: "email", Code: "required", Message: "email is required"})
	}
	if password == "" {
		fields = append(fields, FieldError{Field: "password", Code: "required", Message: "password is required"})
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	user, err := s.repomanager.Users(s.repomanager.DB()).GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.hasher.Verify(password, s.dummyDigest)
			s.log.Info(ctx, "signin failed", "reason", "unknown email")
			return nil, common.ErrInvalidCredentials
		}
		return nil, internalError("load user", err)
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		s.log.Info(ctx, "signin failed", "reason", "wrong password", "user_id", user.ID)
		return nil, common.ErrInvalidCredentials
	}

	pair, err := s.tokens.IssuePair(ctx, s.repomanager.DB(), user.ID)
	if err != nil {
		return nil, internalError("issue tokens", err)
	}

	s.log.Info(ctx, "signed in",
		"user_id", user.ID, "family_id", pair.FamilyID,
		"from", StateAnonymous, "to", StateAuthenticated)
	return &Session{User: user, Tokens: pair}, nil
}

// Refresh rotates refreshToken. Any rejection is reported as
// common.ErrSessionExpired wrapping common.ErrInvalidSession; the caller has
// to sign in again.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	pair, err := s.tokens.Rotate(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, common.ErrInvalidSession) {
			s.log.Info(ctx, "refresh rejected", "from", StateAccessExpired, "to", StateRevoked)
			return nil, fmt.Errorf("%w: %w", common.ErrSessionExpired, err)
		}
		return nil, internalError("refresh", err)
	}

	s.log.Debug(ctx, "session refreshed",
		"user_id", pair.UserID, "family_id", pair.FamilyID,
		"from", StateAccessExpired, "to", StateAuthenticated)
	return pair, nil
}

// Signout revokes refreshToken. Missing, unknown or already revoked tokens
// succeed; only storage failures are reported.
func (s *AuthService) Signout(ctx context.Context, refreshToken string) error {
	if err := s.tokens.Revoke(ctx, refreshToken); err != nil {
		return internalError("signout", err)
	}
	s.log.Debug(ctx, "signed out", "to", StateRevoked)
	return nil
}

// CurrentUser resolves the account behind accessToken.
func (s *AuthService) CurrentUser(ctx context.Context, accessToken string) (*models.User, error) {
	claims, err := s.tokens.VerifyAccessToken(accessToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrUnauthenticated, err)
	}

	user, err := s.repomanager.Users(s.repomanager.DB()).GetByID(ctx, claims.UserID())
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, fmt.Errorf("%w: user no longer exists", common.ErrUnauthenticated)
		}
		return nil, internalError("load user", err)
	}
	return user, nil
}

// NormalizeEmail lower-cases and trims an address so lookups and the unique
// index agree.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *AuthService) validateSignup(email, password string) error {
	var fields []FieldError

	if err := s.validate.Var(email, "required,email,max=254"); err != nil {
		fields = append(fields, FieldError{Field: "email", Code: "invalid_email", Message: "email must be a valid address"})
	}

	// validator counts runes; the upper bound is in bytes because bcrypt
	// ignores everything past 72 bytes.
	if err := s.validate.Var(password, fmt.Sprintf("required,min=%d", s.minLen)); err != nil || len(password) > s.maxLen {
		fields = append(fields, FieldError{
			Field:   "password",
			Code:    "invalid_length",
			Message: fmt.Sprintf("password must be between %d and %d characters", s.minLen, s.maxLen),
		})
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func internalError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, common.ErrorInternal, err)
}
