// Package users declares the credential store and its SQL implementations.
package users

import (
	"context"

	"github.com/dmitrijs2005/gophauth/internal/server/models"
)

// Repository persists user accounts. Email uniqueness is enforced by the
// database; implementations never check-then-insert.
type Repository interface {
	// Create inserts user and returns common.ErrAlreadyExists when the email
	// is taken.
	Create(ctx context.Context, user *models.User) (*models.User, error)

	// GetByEmail returns common.ErrorNotFound when no account matches.
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	// GetByID returns common.ErrorNotFound when no account matches.
	GetByID(ctx context.Context, id string) (*models.User, error)
}
