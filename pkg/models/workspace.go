package models

import (
	"time"

	"github.com/google/uuid"
)

// Workspace is a project-level container that owns estimates.
type Workspace struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
}

// IsDeleted reports whether the workspace has been soft-deleted.
func (w *Workspace) IsDeleted() bool {
	return w.DeletedAt != nil
}
