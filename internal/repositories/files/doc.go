// Package files persists encrypted file metadata rows. Blob lifecycle is
// handled by internal/filestore.
package files
