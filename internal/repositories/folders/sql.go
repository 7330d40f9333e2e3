package folders

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

type folderRow struct {
	ID          int64         `db:"id"`
	Name        string        `db:"name"`
	Description string        `db:"description"`
	ParentID    sql.NullInt64 `db:"parent_id"`
	CreatedAt   time.Time     `db:"created_at"`
}

func (r folderRow) toModel() models.Folder {
	f := models.Folder{ID: r.ID, Name: r.Name, Description: r.Description, CreatedAt: r.CreatedAt}
	if r.ParentID.Valid {
		f.ParentID = models.Int64Ptr(r.ParentID.Int64)
	}
	return f
}

type SQLRepository struct {
	db dbx.DBTX
}

func NewSQLRepository(db dbx.DBTX) *SQLRepository {
	return &SQLRepository{db: db}
}

func (r *SQLRepository) Create(ctx context.Context, f *models.Folder) (int64, error) {
	var parent sql.NullInt64
	if f.ParentID != nil {
		parent = sql.NullInt64{Int64: *f.ParentID, Valid: true}
	}

	var id int64
	err := r.db.QueryRowContext(ctx, r.db.Rebind(`
		INSERT INTO folders (name, description, parent_id, created_at)
		VALUES (?, ?, ?, ?)
		RETURNING id
	`), f.Name, f.Description, parent, f.CreatedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert folder: %w", err)
	}
	return id, nil
}

func (r *SQLRepository) Update(ctx context.Context, id int64, name, description string) (int64, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE folders SET name = ?, description = ? WHERE id = ?`), name, description, id)
	if err != nil {
		return 0, fmt.Errorf("failed to update folder %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

func (r *SQLRepository) Delete(ctx context.Context, id int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM folders WHERE id = ?`), id)
	if err != nil {
		return 0, fmt.Errorf("failed to delete folder %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

func (r *SQLRepository) GetByID(ctx context.Context, id int64) (*models.Folder, error) {
	var row folderRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(`
		SELECT id, name, description, parent_id, created_at FROM folders WHERE id = ?
	`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get folder %d: %w", id, err)
	}
	f := row.toModel()
	return &f, nil
}

func (r *SQLRepository) GetAll(ctx context.Context) ([]models.Folder, error) {
	var rows []folderRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, name, description, parent_id, created_at FROM folders ORDER BY name, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}

	result := make([]models.Folder, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toModel())
	}
	return result, nil
}
