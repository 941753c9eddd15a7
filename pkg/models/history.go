package models

import (
	"time"

	"github.com/google/uuid"
)

// ColumnHistoryAction classifies a column history entry.
type ColumnHistoryAction string

const (
	ColumnActionCreated           ColumnHistoryAction = "CREATED"
	ColumnActionUpdated           ColumnHistoryAction = "UPDATED"
	ColumnActionPermissionChanged ColumnHistoryAction = "PERMISSION_CHANGED"
)

// ColumnHistory is one append-only change record for a column.
// OldValue, NewValue and Metadata are text; structured payloads are JSON.
type ColumnHistory struct {
	ID        uuid.UUID           `json:"id"`
	ColumnID  uuid.UUID           `json:"columnId"`
	UserID    uuid.UUID           `json:"userId"`
	Action    ColumnHistoryAction `json:"action"`
	Field     *string             `json:"field"`
	OldValue  *string             `json:"oldValue"`
	NewValue  *string             `json:"newValue"`
	Metadata  *string             `json:"metadata"`
	CreatedAt time.Time           `json:"createdAt"`
}

// ColumnHistoryEntry is a history record enriched with the acting user.
type ColumnHistoryEntry struct {
	ColumnHistory
	User *UserIdentity `json:"user"`
}

// CellHistory is one append-only value change record for a cell.
type CellHistory struct {
	ID        uuid.UUID `json:"id"`
	CellID    uuid.UUID `json:"cellId"`
	UserID    uuid.UUID `json:"userId"`
	OldValue  *string   `json:"oldValue"`
	NewValue  *string   `json:"newValue"`
	Reason    *string   `json:"reason"`
	CreatedAt time.Time `json:"createdAt"`
}

// CellHistoryEntry is a cell history record enriched with the acting user.
type CellHistoryEntry struct {
	CellHistory
	User *UserIdentity `json:"user"`
}
