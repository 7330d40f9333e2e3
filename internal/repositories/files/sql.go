package files

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/dbx"
	"github.com/dmitrijs2005/filevault/internal/models"
)

const selectColumns = `SELECT id, folder_id, original_name, encrypted_path, size_bytes, mime_type, created_at, last_access FROM files`

type fileRow struct {
	ID            int64        `db:"id"`
	FolderID      int64        `db:"folder_id"`
	OriginalName  string       `db:"original_name"`
	EncryptedPath string       `db:"encrypted_path"`
	SizeBytes     int64        `db:"size_bytes"`
	MimeType      string       `db:"mime_type"`
	CreatedAt     sql.NullTime `db:"created_at"`
	LastAccess    sql.NullTime `db:"last_access"`
}

func nullableTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func (r fileRow) toModel() models.EncryptedFile {
	return models.EncryptedFile{
		ID:            r.ID,
		FolderID:      r.FolderID,
		OriginalName:  r.OriginalName,
		EncryptedPath: r.EncryptedPath,
		SizeBytes:     r.SizeBytes,
		MimeType:      r.MimeType,
		CreatedAt:     nullableTime(r.CreatedAt),
		LastAccess:    nullableTime(r.LastAccess),
	}
}

type SQLRepository struct {
	db dbx.DBTX
}

func NewSQLRepository(db dbx.DBTX) *SQLRepository {
	return &SQLRepository{db: db}
}

func (r *SQLRepository) Create(ctx context.Context, f *models.EncryptedFile) (int64, error) {
	var created sql.NullTime
	if f.CreatedAt != nil {
		created = sql.NullTime{Time: *f.CreatedAt, Valid: true}
	}

	var id int64
	err := r.db.QueryRowContext(ctx, r.db.Rebind(`
		INSERT INTO files (folder_id, original_name, encrypted_path, size_bytes, mime_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id
	`), f.FolderID, f.OriginalName, f.EncryptedPath, f.SizeBytes, f.MimeType, created).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert file: %w", err)
	}
	return id, nil
}

func (r *SQLRepository) GetByID(ctx context.Context, id int64) (*models.EncryptedFile, error) {
	var row fileRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(selectColumns+` WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file %d: %w", id, err)
	}
	f := row.toModel()
	return &f, nil
}

func (r *SQLRepository) list(ctx context.Context, query string, args ...any) ([]models.EncryptedFile, error) {
	var rows []fileRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	result := make([]models.EncryptedFile, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toModel())
	}
	return result, nil
}

func (r *SQLRepository) GetByFolderID(ctx context.Context, folderID int64) ([]models.EncryptedFile, error) {
	return r.list(ctx, selectColumns+` WHERE folder_id = ? ORDER BY original_name, id`, folderID)
}

func (r *SQLRepository) GetAll(ctx context.Context) ([]models.EncryptedFile, error) {
	return r.list(ctx, selectColumns+` ORDER BY original_name, id`)
}

func (r *SQLRepository) exec(ctx context.Context, what string, query string, args ...any) (int64, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("failed to %s: %w", what, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

func (r *SQLRepository) UpdateName(ctx context.Context, id int64, name string) (int64, error) {
	return r.exec(ctx, "rename file", `UPDATE files SET original_name = ? WHERE id = ?`, name, id)
}

func (r *SQLRepository) UpdateFolder(ctx context.Context, id int64, folderID int64) (int64, error) {
	return r.exec(ctx, "move file", `UPDATE files SET folder_id = ? WHERE id = ?`, folderID, id)
}

func (r *SQLRepository) TouchLastAccess(ctx context.Context, id int64, at time.Time) (int64, error) {
	return r.exec(ctx, "update last access", `UPDATE files SET last_access = ? WHERE id = ?`, at, id)
}

func (r *SQLRepository) Delete(ctx context.Context, id int64) (int64, error) {
	return r.exec(ctx, "delete file", `DELETE FROM files WHERE id = ?`, id)
}

func (r *SQLRepository) DeleteByFolderID(ctx context.Context, folderID int64) (int64, error) {
	return r.exec(ctx, "delete folder files", `DELETE FROM files WHERE folder_id = ?`, folderID)
}

func (r *SQLRepository) BlobPathsByFolderID(ctx context.Context, folderID int64) ([]string, error) {
	var paths []string
	err := r.db.SelectContext(ctx, &paths, r.db.Rebind(`
		SELECT encrypted_path FROM files WHERE folder_id = ? AND encrypted_path <> ''
	`), folderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list blob paths: %w", err)
	}
	return paths, nil
}
