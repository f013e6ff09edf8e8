package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/dbx"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/auth"
	"github.com/dmitrijs2005/gophauth/internal/server/config"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken           string
	AccessTokenExpiresAt  time.Time
	RefreshToken          string
	RefreshTokenExpiresAt time.Time
	UserID                string
	FamilyID              string
}

// TokenIssuer mints access tokens and manages the refresh token lifecycle:
// issue, rotation on use and revocation.
type TokenIssuer struct {
	repomanager repomanager.RepositoryManager
	signer      *auth.TokenSigner
	refreshTTL  time.Duration
	reusePolicy string
	log         logging.Logger
	now         func() time.Time
}

func NewTokenIssuer(m repomanager.RepositoryManager, signer *auth.TokenSigner, cfg *config.Config, log logging.Logger) *TokenIssuer {
	return &TokenIssuer{
		repomanager: m,
		signer:      signer,
		refreshTTL:  cfg.RefreshTokenValidityDuration,
		reusePolicy: cfg.ReusePolicy,
		log:         log,
		now:         time.Now,
	}
}

func (s *TokenIssuer) IssueAccessToken(userID string) (string, time.Time, error) {
	return s.signer.Generate(userID)
}

// VerifyAccessToken returns common.ErrInvalidToken or common.ErrTokenExpired
// for tokens that cannot be used.
func (s *TokenIssuer) VerifyAccessToken(token string) (*auth.Claims, error) {
	return s.signer.Parse(token)
}

// IssueRefreshToken stores a new refresh token of familyID through db and
// returns the raw value with its record.
func (s *TokenIssuer) IssueRefreshToken(ctx context.Context, db dbx.DBTX, userID, familyID string) (string, *models.RefreshToken, error) {
	raw, hash, err := auth.GenerateRefreshToken()
	if err != nil {
		return "", nil, err
	}

	now := s.now().UTC()
	rec := &models.RefreshToken{
		ID:        uuid.NewString(),
		FamilyID:  familyID,
		UserID:    userID,
		TokenHash: hash,
		CreatedAt: now,
		ExpiresAt: now.Add(s.refreshTTL),
	}
	if err := s.repomanager.RefreshTokens(db).Create(ctx, rec); err != nil {
		return "", nil, err
	}
	return raw, rec, nil
}

// IssuePair starts a new session family for userID.
func (s *TokenIssuer) IssuePair(ctx context.Context, db dbx.DBTX, userID string) (*TokenPair, error) {
	pair, _, err := s.issuePair(ctx, db, userID, uuid.NewString())
	return pair, err
}

func (s *TokenIssuer) issuePair(ctx context.Context, db dbx.DBTX, userID, familyID string) (*TokenPair, *models.RefreshToken, error) {
	access, accessExp, err := s.IssueAccessToken(userID)
	if err != nil {
		return nil, nil, err
	}
	raw, rec, err := s.IssueRefreshToken(ctx, db, userID, familyID)
	if err != nil {
		return nil, nil, err
	}
	return &TokenPair{
		AccessToken:           access,
		AccessTokenExpiresAt:  accessExp,
		RefreshToken:          raw,
		RefreshTokenExpiresAt: rec.ExpiresAt,
		UserID:                userID,
		FamilyID:              familyID,
	}, rec, nil
}

// Rotate redeems presented and returns a new pair in the same family. The
// presented token is consumed by a single conditional update, so of several
// concurrent calls with one token exactly one succeeds; the rest get
// common.ErrInvalidSession, as do unknown, expired and revoked tokens.
func (s *TokenIssuer) Rotate(ctx context.Context, presented string) (*TokenPair, error) {
	if presented == "" {
		return nil, common.ErrInvalidSession
	}

	hash := auth.HashRefreshToken(presented)
	now := s.now().UTC()

	pair, err := dbx.WithTxResult(ctx, s.repomanager.DB(), nil, func(ctx context.Context, tx dbx.DBTX) (*TokenPair, error) {
		repo := s.repomanager.RefreshTokens(tx)

		old, err := repo.Consume(ctx, hash, now)
		if err != nil {
			return nil, err
		}

		pair, rec, err := s.issuePair(ctx, tx, old.UserID, old.FamilyID)
		if err != nil {
			return nil, err
		}
		if err := repo.SetReplacement(ctx, old.ID, rec.ID); err != nil {
			return nil, err
		}
		return pair, nil
	})

	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.handleRejectedRefresh(ctx, hash, now)
			return nil, common.ErrInvalidSession
		}
		return nil, fmt.Errorf("rotate refresh token: %w", err)
	}

	s.log.Debug(ctx, "refresh token rotated", "user_id", pair.UserID, "family_id", pair.FamilyID)
	return pair, nil
}

// handleRejectedRefresh explains why a refresh token could not be consumed.
// A token that was already rotated away is being replayed, which may mean
// it was stolen; under the revoke-family policy the whole session dies.
func (s *TokenIssuer) handleRejectedRefresh(ctx context.Context, hash string, now time.Time) {
	repo := s.repomanager.RefreshTokens(s.repomanager.DB())

	rec, err := repo.Find(ctx, hash)
	if err != nil {
		if !errors.Is(err, common.ErrorNotFound) {
			s.log.Error(ctx, "lookup of rejected refresh token failed", "error", err)
			return
		}
		s.log.Debug(ctx, "unknown refresh token presented")
		return
	}

	switch {
	case rec.ReplacedBy != nil:
		s.log.Warn(ctx, "refresh token reuse detected",
			"user_id", rec.UserID, "family_id", rec.FamilyID, "policy", s.reusePolicy)
		if s.reusePolicy != config.ReuseRevokeFamily {
			return
		}
		n, err := repo.RevokeFamily(ctx, rec.FamilyID, now)
		if err != nil {
			s.log.Error(ctx, "revoke token family failed", "family_id", rec.FamilyID, "error", err)
			return
		}
		s.log.Warn(ctx, "token family revoked", "user_id", rec.UserID, "family_id", rec.FamilyID, "revoked", n)
	case rec.Revoked:
		s.log.Info(ctx, "revoked refresh token presented", "user_id", rec.UserID, "family_id", rec.FamilyID)
	default:
		s.log.Info(ctx, "expired refresh token presented", "user_id", rec.UserID, "family_id", rec.FamilyID)
	}
}

// Revoke invalidates presented. Unknown and already revoked tokens are fine.
func (s *TokenIssuer) Revoke(ctx context.Context, presented string) error {
	if presented == "" {
		return nil
	}
	repo := s.repomanager.RefreshTokens(s.repomanager.DB())
	if err := repo.Revoke(ctx, auth.HashRefreshToken(presented), s.now().UTC()); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}
