package files

import (
	"context"
	"time"

	"github.com/dmitrijs2005/filevault/internal/models"
)

// Repository describes persistence operations for file rows. Mutations
// return the number of affected rows so callers can tell "no such row"
// apart from a failure.
type Repository interface {
	// Create inserts f and returns the id assigned by the database.
	Create(ctx context.Context, f *models.EncryptedFile) (int64, error)

	// GetByID returns common.ErrNotFound if no row matches.
	GetByID(ctx context.Context, id int64) (*models.EncryptedFile, error)

	// GetByFolderID lists the files of one folder ordered by original name.
	GetByFolderID(ctx context.Context, folderID int64) ([]models.EncryptedFile, error)

	// GetAll lists every file ordered by original name.
	GetAll(ctx context.Context) ([]models.EncryptedFile, error)

	UpdateName(ctx context.Context, id int64, name string) (int64, error)
	UpdateFolder(ctx context.Context, id int64, folderID int64) (int64, error)
	TouchLastAccess(ctx context.Context, id int64, at time.Time) (int64, error)

	Delete(ctx context.Context, id int64) (int64, error)
	DeleteByFolderID(ctx context.Context, folderID int64) (int64, error)

	// BlobPathsByFolderID returns the non-empty blob paths of a folder's files.
	BlobPathsByFolderID(ctx context.Context, folderID int64) ([]string, error)
}
