// Package folders persists virtual folder rows. It knows nothing about the
// in-memory tree; see internal/folders for that.
package folders
