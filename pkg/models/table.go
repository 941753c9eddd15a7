package models

import (
	"time"

	"github.com/google/uuid"
)

// TableColumn is a column as seen by a specific caller.
type TableColumn struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	DataType      DataType  `json:"dataType"`
	Order         int       `json:"order"`
	Required      bool      `json:"required"`
	CanEdit       bool      `json:"canEdit"`
	AllowedValues []string  `json:"allowedValues"`
}

// TableRow is a row carrying only the cells of visible columns.
type TableRow struct {
	ID        uuid.UUID `json:"id"`
	Order     int       `json:"order"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Cells     []*Cell   `json:"cells"`
}

// TableData is the role-filtered projection of an estimate's table.
type TableData struct {
	Columns []*TableColumn `json:"columns"`
	Rows    []*TableRow    `json:"rows"`
}
