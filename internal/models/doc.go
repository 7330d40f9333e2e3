// Package models contains the records shared by the vault layers: virtual
// folders, encrypted file metadata and the vault owner.
package models
