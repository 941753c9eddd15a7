package models

import (
	"time"

	"github.com/google/uuid"
)

// DataType governs how a column's string-encoded cell values are interpreted.
type DataType string

const (
	DataTypeString  DataType = "STRING"
	DataTypeNumber  DataType = "NUMBER"
	DataTypeEnum    DataType = "ENUM"
	DataTypeBoolean DataType = "BOOLEAN"
	DataTypeDate    DataType = "DATE"
)

// ValidDataTypes contains all valid column data types.
var ValidDataTypes = []DataType{DataTypeString, DataTypeNumber, DataTypeEnum, DataTypeBoolean, DataTypeDate}

// IsValidDataType checks if the given data type is valid.
func IsValidDataType(dataType string) bool {
	for _, d := range ValidDataTypes {
		if string(d) == dataType {
			return true
		}
	}
	return false
}

// EstimateColumn is a typed, ordered field definition on an estimate's table.
// AllowedValues holds the JSON-encoded enum choices exactly as stored.
type EstimateColumn struct {
	ID            uuid.UUID `json:"id"`
	EstimateID    uuid.UUID `json:"estimateId"`
	CreatedByID   uuid.UUID `json:"createdById"`
	Name          string    `json:"name"`
	DataType      DataType  `json:"dataType"`
	Order         int       `json:"order"`
	Required      bool      `json:"required"`
	AllowedValues *string   `json:"allowedValues"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// ColumnFull is the administrative view of a column: creator and every
// permission record, not filtered by role.
type ColumnFull struct {
	EstimateColumn
	CreatedBy   *UserIdentity           `json:"createdBy"`
	Permissions []*ColumnRolePermission `json:"permissions"`
}

// ColumnSnapshot is the serialized form of a column's field set recorded in
// the CREATED history entry.
type ColumnSnapshot struct {
	Name          string   `json:"name"`
	DataType      DataType `json:"dataType"`
	Order         int      `json:"order"`
	Required      bool     `json:"required"`
	AllowedValues []string `json:"allowedValues"`
}

// Snapshot returns the column's current field set.
func (c *EstimateColumn) Snapshot() ColumnSnapshot {
	return ColumnSnapshot{
		Name:          c.Name,
		DataType:      c.DataType,
		Order:         c.Order,
		Required:      c.Required,
		AllowedValues: DecodeAllowedValues(c.AllowedValues),
	}
}
