// Package common defines shared constants and sentinel errors used across
// the vault layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Validation errors: blank or duplicate names, bad identifiers, weak passwords.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrIllegalState is returned when an operation is not allowed in the
	// current state, e.g. a non-recursive delete of a folder with subfolders.
	ErrIllegalState = errors.New("illegal state")

	// Auth errors.
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidToken = errors.New("invalid token")

	// Vault lifecycle errors.
	ErrAlreadyInitialized = errors.New("vault already initialized")
	ErrNotInitialized     = errors.New("vault not initialized")
	ErrLocked             = errors.New("vault is locked")
)
