package refreshtokens

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

var rowColumns = []string{"id", "family_id", "user_id", "token_hash", "created_at", "expires_at", "revoked", "revoked_at", "replaced_by"}

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^\s*INSERT\s+INTO\s+refresh_tokens\b.*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4,\s*\$5,\s*\$6\)\s*$`

	now := time.Now().UTC()
	rt := &models.RefreshToken{ID: "t1", FamilyID: "f1", UserID: "u1", TokenHash: "h1", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}

	mock.ExpectExec(q).
		WithArgs("t1", "f1", "u1", "h1", now, now.Add(time.Hour)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Create(context.Background(), rt); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreate_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`INSERT\s+INTO\s+refresh_tokens`).WillReturnError(errors.New("db down"))

	err := repo.Create(context.Background(), &models.RefreshToken{})
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestConsume_ReturnsPreviousState(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)UPDATE\s+refresh_tokens\s+SET\s+revoked\s*=\s*TRUE,\s*revoked_at\s*=\s*\$2\s+` +
		`WHERE\s+token_hash\s*=\s*\$1\s+AND\s+revoked\s*=\s*FALSE\s+AND\s+expires_at\s*>\s*\$2\s+RETURNING\s+id,`

	now := time.Now().UTC()
	created := now.Add(-time.Hour)
	rows := sqlmock.NewRows(rowColumns).
		AddRow("t1", "f1", "u1", "h1", created, now.Add(time.Hour), true, now, nil)

	mock.ExpectQuery(q).WithArgs("h1", now).WillReturnRows(rows)

	got, err := repo.Consume(context.Background(), "h1", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != "t1" || got.FamilyID != "f1" || got.UserID != "u1" {
		t.Fatalf("unexpected row: %+v", got)
	}
	if got.Revoked || got.RevokedAt != nil || got.ReplacedBy != nil {
		t.Fatalf("expected pre-update state, got %+v", got)
	}
}

func TestConsume_NoRowIsNotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`UPDATE\s+refresh_tokens`).
		WithArgs("gone", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(rowColumns))

	_, err := repo.Consume(context.Background(), "gone", time.Now())
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("expected ErrorNotFound, got %v", err)
	}
}

func TestFind_RevokedWithReplacement(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^SELECT\s+id,.*FROM\s+refresh_tokens\s+WHERE\s+token_hash\s*=\s*\$1$`

	now := time.Now().UTC()
	rows := sqlmock.NewRows(rowColumns).
		AddRow("t1", "f1", "u1", "h1", now, now.Add(time.Hour), true, now, "t2")
	mock.ExpectQuery(q).WithArgs("h1").WillReturnRows(rows)

	got, err := repo.Find(context.Background(), "h1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Revoked || got.RevokedAt == nil || !got.RevokedAt.Equal(now) {
		t.Fatalf("expected revoked row, got %+v", got)
	}
	if got.ReplacedBy == nil || *got.ReplacedBy != "t2" {
		t.Fatalf("expected replaced_by t2, got %+v", got.ReplacedBy)
	}
}

func TestFind_NotFoundAndDBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT`).WithArgs("nope").WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`SELECT`).WithArgs("boom").WillReturnError(errors.New("db down"))

	if _, err := repo.Find(context.Background(), "nope"); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("expected ErrorNotFound, got %v", err)
	}
	if _, err := repo.Find(context.Background(), "boom"); err == nil || errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("expected db error, got %v", err)
	}
}

func TestSetReplacement(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE\s+refresh_tokens\s+SET\s+replaced_by\s*=\s*\$2\s+WHERE\s+id\s*=\s*\$1`).
		WithArgs("t1", "t2").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.SetReplacement(context.Background(), "t1", "t2"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRevoke_IdempotentQuery(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)UPDATE\s+refresh_tokens\s+SET\s+revoked\s*=\s*TRUE.*WHERE\s+token_hash\s*=\s*\$1\s+AND\s+revoked\s*=\s*FALSE`

	mock.ExpectExec(q).WithArgs("h1", sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs("h1", sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 0))

	for i := 0; i < 2; i++ {
		if err := repo.Revoke(context.Background(), "h1", time.Now()); err != nil {
			t.Fatalf("revoke #%d: %v", i, err)
		}
	}
}

func TestRevokeFamily_ReturnsCount(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)UPDATE\s+refresh_tokens.*WHERE\s+family_id\s*=\s*\$1`).
		WithArgs("f1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(`(?s)UPDATE\s+refresh_tokens.*WHERE\s+family_id\s*=\s*\$1`).
		WithArgs("f2", sqlmock.AnyArg()).
		WillReturnError(errors.New("db down"))

	n, err := repo.RevokeFamily(context.Background(), "f1", time.Now())
	if err != nil || n != 3 {
		t.Fatalf("RevokeFamily = %d, %v", n, err)
	}
	if _, err := repo.RevokeFamily(context.Background(), "f2", time.Now()); err == nil {
		t.Fatal("expected error")
	}
}
