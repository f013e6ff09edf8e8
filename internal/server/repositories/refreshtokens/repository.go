// Package refreshtokens declares the refresh token store and its Postgres,
// SQLite and Redis implementations.
package refreshtokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/server/models"
)

// Repository stores refresh token records keyed by the SHA-256 of the raw
// token value.
type Repository interface {
	// Create stores a new, unrevoked record.
	Create(ctx context.Context, token *models.RefreshToken) error

	// Consume atomically marks the token revoked and returns the record as it
	// was before the update. It returns common.ErrorNotFound when the token is
	// unknown, already revoked or expired at now, so two concurrent calls for
	// the same hash can never both succeed.
	Consume(ctx context.Context, tokenHash string, now time.Time) (*models.RefreshToken, error)

	// Find returns the record regardless of its state, or common.ErrorNotFound.
	Find(ctx context.Context, tokenHash string) (*models.RefreshToken, error)

	// SetReplacement links the record id to the token that superseded it.
	SetReplacement(ctx context.Context, id string, replacedBy string) error

	// Revoke marks the token revoked. Unknown or already revoked tokens are
	// not an error.
	Revoke(ctx context.Context, tokenHash string, now time.Time) error

	// RevokeFamily revokes every active token of a session family and returns
	// how many were revoked.
	RevokeFamily(ctx context.Context, familyID string, now time.Time) (int64, error)
}
