package folders

import (
	"context"

	"github.com/dmitrijs2005/filevault/internal/models"
)

// Repository describes persistence operations for folder rows.
type Repository interface {
	// Create inserts f and returns the id assigned by the database.
	Create(ctx context.Context, f *models.Folder) (int64, error)

	// Update rewrites name and description of the row and returns the
	// number of affected rows.
	Update(ctx context.Context, id int64, name, description string) (int64, error)

	// Delete removes the row and returns the number of affected rows.
	Delete(ctx context.Context, id int64) (int64, error)

	// GetByID returns common.ErrNotFound if no row matches.
	GetByID(ctx context.Context, id int64) (*models.Folder, error)

	// GetAll returns every folder ordered by name.
	GetAll(ctx context.Context) ([]models.Folder, error)
}
