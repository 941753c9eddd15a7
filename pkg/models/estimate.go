package models

import (
	"time"

	"github.com/google/uuid"
)

// Estimate is a spreadsheet-like document scoped to a workspace.
type Estimate struct {
	ID          uuid.UUID  `json:"id"`
	WorkspaceID uuid.UUID  `json:"workspaceId"`
	CreatedByID uuid.UUID  `json:"createdById"`
	Name        string     `json:"name"`
	Description *string    `json:"description"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	DeletedAt   *time.Time `json:"deletedAt,omitempty"`
}

// EstimateFull is an estimate with its column schema and row count.
type EstimateFull struct {
	Estimate
	Columns  []*EstimateColumn `json:"columns"`
	RowCount int               `json:"rowCount"`
}
