package models

import "time"

// EncryptedFile is the metadata row paired with one encrypted blob on disk.
// EncryptedPath is empty only for placeholder rows that were never
// materialized.
type EncryptedFile struct {
	ID            int64      `json:"id"`
	FolderID      int64      `json:"folder_id"`
	OriginalName  string     `json:"original_name"`
	EncryptedPath string     `json:"-"`
	SizeBytes     int64      `json:"size_bytes"`
	MimeType      string     `json:"mime_type"`
	CreatedAt     *time.Time `json:"created_at"`
	LastAccess    *time.Time `json:"last_access"`
}

// Materialized reports whether a blob was ever written for the file.
func (f EncryptedFile) Materialized() bool {
	return f.EncryptedPath != ""
}
