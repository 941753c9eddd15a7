package models

import (
	"time"

	"github.com/google/uuid"
)

// EstimateRow is an ordered record within an estimate's table.
// Order is not unique.
type EstimateRow struct {
	ID         uuid.UUID `json:"id"`
	EstimateID uuid.UUID `json:"estimateId"`
	Order      int       `json:"order"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Cell is the value at the intersection of one row and one column. Values are
// always stored as text regardless of the column's data type.
type Cell struct {
	ID        uuid.UUID `json:"id"`
	RowID     uuid.UUID `json:"rowId"`
	ColumnID  uuid.UUID `json:"columnId"`
	Value     *string   `json:"value"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// RowWithCells is a freshly created row together with its backfilled cells.
type RowWithCells struct {
	EstimateRow
	Cells []*Cell `json:"cells"`
}
