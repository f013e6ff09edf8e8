package refreshtokens

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runContract exercises the behaviour every Repository implementation must
// share. userID must reference an existing user for stores with foreign keys.
func runContract(t *testing.T, repo Repository, userID string) {
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Millisecond)

	newToken := func(family string) *models.RefreshToken {
		return &models.RefreshToken{
			ID:        uuid.NewString(),
			FamilyID:  family,
			UserID:    userID,
			TokenHash: uuid.NewString(),
			CreatedAt: base,
			ExpiresAt: base.Add(time.Hour),
		}
	}

	t.Run("create and find", func(t *testing.T) {
		rt := newToken(uuid.NewString())
		require.NoError(t, repo.Create(ctx, rt))

		got, err := repo.Find(ctx, rt.TokenHash)
		require.NoError(t, err)
		assert.Equal(t, rt.ID, got.ID)
		assert.Equal(t, rt.FamilyID, got.FamilyID)
		assert.Equal(t, rt.UserID, got.UserID)
		assert.True(t, rt.ExpiresAt.Equal(got.ExpiresAt))
		assert.False(t, got.Revoked)
		assert.Nil(t, got.RevokedAt)
		assert.Nil(t, got.ReplacedBy)

		_, err = repo.Find(ctx, "missing")
		assert.ErrorIs(t, err, common.ErrorNotFound)
	})

	t.Run("consume once", func(t *testing.T) {
		rt := newToken(uuid.NewString())
		require.NoError(t, repo.Create(ctx, rt))

		got, err := repo.Consume(ctx, rt.TokenHash, base.Add(time.Minute))
		require.NoError(t, err)
		assert.Equal(t, rt.ID, got.ID)
		assert.False(t, got.Revoked)

		_, err = repo.Consume(ctx, rt.TokenHash, base.Add(2*time.Minute))
		assert.ErrorIs(t, err, common.ErrorNotFound)

		after, err := repo.Find(ctx, rt.TokenHash)
		require.NoError(t, err)
		assert.True(t, after.Revoked)
		require.NotNil(t, after.RevokedAt)
	})

	t.Run("consume expired", func(t *testing.T) {
		rt := newToken(uuid.NewString())
		require.NoError(t, repo.Create(ctx, rt))

		_, err := repo.Consume(ctx, rt.TokenHash, rt.ExpiresAt)
		assert.ErrorIs(t, err, common.ErrorNotFound, "expired exactly at ExpiresAt")

		_, err = repo.Consume(ctx, rt.TokenHash, rt.ExpiresAt.Add(-time.Millisecond))
		assert.NoError(t, err)
	})

	t.Run("consume unknown", func(t *testing.T) {
		_, err := repo.Consume(ctx, "unknown", base)
		assert.ErrorIs(t, err, common.ErrorNotFound)
	})

	t.Run("set replacement", func(t *testing.T) {
		fam := uuid.NewString()
		old, next := newToken(fam), newToken(fam)
		require.NoError(t, repo.Create(ctx, old))
		require.NoError(t, repo.Create(ctx, next))
		require.NoError(t, repo.SetReplacement(ctx, old.ID, next.ID))

		got, err := repo.Find(ctx, old.TokenHash)
		require.NoError(t, err)
		require.NotNil(t, got.ReplacedBy)
		assert.Equal(t, next.ID, *got.ReplacedBy)
	})

	t.Run("revoke is idempotent", func(t *testing.T) {
		rt := newToken(uuid.NewString())
		require.NoError(t, repo.Create(ctx, rt))

		require.NoError(t, repo.Revoke(ctx, rt.TokenHash, base))
		require.NoError(t, repo.Revoke(ctx, rt.TokenHash, base))
		require.NoError(t, repo.Revoke(ctx, "never-issued", base))

		_, err := repo.Consume(ctx, rt.TokenHash, base)
		assert.ErrorIs(t, err, common.ErrorNotFound)
	})

	t.Run("revoke family", func(t *testing.T) {
		fam, other := uuid.NewString(), uuid.NewString()
		a, b, c := newToken(fam), newToken(fam), newToken(other)
		for _, rt := range []*models.RefreshToken{a, b, c} {
			require.NoError(t, repo.Create(ctx, rt))
		}
		require.NoError(t, repo.Revoke(ctx, a.TokenHash, base))

		n, err := repo.RevokeFamily(ctx, fam, base)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		_, err = repo.Consume(ctx, b.TokenHash, base)
		assert.ErrorIs(t, err, common.ErrorNotFound)
		_, err = repo.Consume(ctx, c.TokenHash, base)
		assert.NoError(t, err, "other families are untouched")
	})

	t.Run("concurrent consume has one winner", func(t *testing.T) {
		rt := newToken(uuid.NewString())
		require.NoError(t, repo.Create(ctx, rt))

		const n = 8
		var wg sync.WaitGroup
		var wins, losses atomic.Int32
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := repo.Consume(ctx, rt.TokenHash, base)
				switch {
				case err == nil:
					wins.Add(1)
				case err == common.ErrorNotFound:
					losses.Add(1)
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), wins.Load())
		assert.Equal(t, int32(n-1), losses.Load())
	})
}
