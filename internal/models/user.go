package models

import "time"

// User holds the master-password material of the vault owner. PasswordHash
// is the key verifier, never the password or the key.
type User struct {
	ID           int64
	PasswordHash []byte
	Salt         []byte
	WrappedKey   []byte
	CreatedAt    time.Time
}
