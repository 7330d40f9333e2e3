package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/dbx"
	"github.com/dmitrijs2005/filevault/internal/models"
)

type SQLRepository struct {
	db dbx.DBTX
}

func NewSQLRepository(db dbx.DBTX) *SQLRepository {
	return &SQLRepository{db: db}
}

func (r *SQLRepository) Get(ctx context.Context) (*models.User, error) {
	var u models.User
	err := r.db.QueryRowContext(ctx, `
		SELECT id, password_hash, salt, wrapped_key, created_at FROM users ORDER BY id LIMIT 1
	`).Scan(&u.ID, &u.PasswordHash, &u.Salt, &u.WrappedKey, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

func (r *SQLRepository) Create(ctx context.Context, u *models.User) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, r.db.Rebind(`
		INSERT INTO users (password_hash, salt, wrapped_key, created_at)
		VALUES (?, ?, ?, ?)
		RETURNING id
	`), u.PasswordHash, u.Salt, u.WrappedKey, u.CreatedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert user: %w", err)
	}
	return id, nil
}

func (r *SQLRepository) UpdateCredentials(ctx context.Context, id int64, passwordHash, salt, wrappedKey []byte) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE users SET password_hash = ?, salt = ?, wrapped_key = ? WHERE id = ?
	`), passwordHash, salt, wrappedKey, id)
	if err != nil {
		return fmt.Errorf("failed to update user credentials: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}
