package models

import (
	"strings"
	"time"
)

// SyntheticRootID is the id of the display-only root that groups top-level
// folders. It is never persisted.
const SyntheticRootID int64 = -1

// Folder is a virtual folder: a named grouping record with no filesystem
// counterpart. Hierarchy is expressed through ParentID only; children are
// resolved by the folder manager on demand.
type Folder struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	ParentID    *int64    `json:"parent_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// IsTopLevel reports whether f has no parent.
func (f Folder) IsTopLevel() bool {
	return f.ParentID == nil
}

// HasParent reports whether f is a direct child of id.
func (f Folder) HasParent(id *int64) bool {
	if f.ParentID == nil || id == nil {
		return f.ParentID == nil && id == nil
	}
	return *f.ParentID == *id
}

// SameName compares folder names the way sibling uniqueness does.
func SameName(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// SyntheticRoot returns the display-only root node.
func SyntheticRoot() Folder {
	return Folder{ID: SyntheticRootID, Name: "/"}
}

// Int64Ptr is a small helper for optional ids.
func Int64Ptr(v int64) *int64 {
	return &v
}
