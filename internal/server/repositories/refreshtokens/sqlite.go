package refreshtokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/dbx"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
)

// SQLiteRepository implements Repository on SQLite; times are unix nanoseconds.
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Create(ctx context.Context, t *models.RefreshToken) error {
	query := `
		INSERT INTO refresh_tokens (id, family_id, user_id, token_hash, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query, t.ID, t.FamilyID, t.UserID, t.TokenHash, t.CreatedAt.UnixNano(), t.ExpiresAt.UnixNano())
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Consume(ctx context.Context, tokenHash string, now time.Time) (*models.RefreshToken, error) {
	query := `
		UPDATE refresh_tokens
		SET revoked = 1, revoked_at = ?2
		WHERE token_hash = ?1 AND revoked = 0 AND expires_at > ?2
		RETURNING ` + columns

	t, err := scanSQLite(r.db.QueryRowContext(ctx, query, tokenHash, now.UnixNano()))
	if err != nil {
		return nil, err
	}
	t.Revoked = false
	t.RevokedAt = nil
	return t, nil
}

func (r *SQLiteRepository) Find(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	query := `SELECT ` + columns + ` FROM refresh_tokens WHERE token_hash = ?`
	return scanSQLite(r.db.QueryRowContext(ctx, query, tokenHash))
}

func (r *SQLiteRepository) SetReplacement(ctx context.Context, id string, replacedBy string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE refresh_tokens SET replaced_by = ? WHERE id = ?`, replacedBy, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Revoke(ctx context.Context, tokenHash string, now time.Time) error {
	query := `UPDATE refresh_tokens SET revoked = 1, revoked_at = ? WHERE token_hash = ? AND revoked = 0`
	if _, err := r.db.ExecContext(ctx, query, now.UnixNano(), tokenHash); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) RevokeFamily(ctx context.Context, familyID string, now time.Time) (int64, error) {
	query := `UPDATE refresh_tokens SET revoked = 1, revoked_at = ? WHERE family_id = ? AND revoked = 0`
	res, err := r.db.ExecContext(ctx, query, now.UnixNano(), familyID)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func scanSQLite(row *sql.Row) (*models.RefreshToken, error) {
	t := &models.RefreshToken{}
	var createdAt, expiresAt int64
	var revokedAt sql.NullInt64
	var replacedBy sql.NullString

	err := row.Scan(&t.ID, &t.FamilyID, &t.UserID, &t.TokenHash, &createdAt, &expiresAt, &t.Revoked, &revokedAt, &replacedBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	t.CreatedAt = time.Unix(0, createdAt).UTC()
	t.ExpiresAt = time.Unix(0, expiresAt).UTC()
	if revokedAt.Valid {
		at := time.Unix(0, revokedAt.Int64).UTC()
		t.RevokedAt = &at
	}
	if replacedBy.Valid {
		t.ReplacedBy = &replacedBy.String
	}
	return t, nil
}
