package common

const (
	// AuthorizationHeader carries the control API token.
	AuthorizationHeader = "Authorization"

	// DefaultMimeType is stored when a file's content type cannot be detected.
	DefaultMimeType = "application/octet-stream"

	// MinPasswordLength is the shortest master password accepted.
	MinPasswordLength = 8
)
