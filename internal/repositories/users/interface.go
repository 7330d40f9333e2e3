// Package users persists the vault owner's master-password material.
package users

import (
	"context"

	"github.com/dmitrijs2005/filevault/internal/models"
)

// Repository stores the single vault owner row.
type Repository interface {
	// Get returns the owner row or common.ErrNotFound when the vault has
	// not been set up yet.
	Get(ctx context.Context) (*models.User, error)

	// Create inserts u and returns its id.
	Create(ctx context.Context, u *models.User) (int64, error)

	// UpdateCredentials replaces verifier, salt and wrapped key of user id.
	UpdateCredentials(ctx context.Context, id int64, passwordHash, salt, wrappedKey []byte) error
}
