// Package settings is a small key/value store backed by the settings table.
package settings

import "context"

// Well-known keys.
const (
	KeyCurrentFolder = "ui.current_folder"
)

type Repository interface {
	// Get returns ("", false, nil) when the key is absent.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) (map[string]string, error)
	Clear(ctx context.Context) error
}
