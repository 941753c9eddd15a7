package models

import (
	"time"

	"github.com/google/uuid"
)

// ColumnRolePermission is the explicit access record for one role on one
// column. At most one exists per (column, role).
type ColumnRolePermission struct {
	ID        uuid.UUID `json:"id"`
	ColumnID  uuid.UUID `json:"columnId"`
	Role      Role      `json:"role"`
	CanView   bool      `json:"canView"`
	CanEdit   bool      `json:"canEdit"`
	CanCreate bool      `json:"canCreate"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// EffectivePermission is the resolved access of a role to a column.
type EffectivePermission struct {
	CanView bool `json:"canView"`
	CanEdit bool `json:"canEdit"`
}

// ResolveEffectivePermission combines an optional explicit record with the
// role defaults. ADMIN always gets full access and its records are ignored.
// Without a record MANAGER may view and edit, WORKER may do neither.
// The same rule backs the table projection and cell edit checks.
func ResolveEffectivePermission(role Role, record *ColumnRolePermission) EffectivePermission {
	if role == RoleAdmin {
		return EffectivePermission{CanView: true, CanEdit: true}
	}
	if record != nil {
		return EffectivePermission{CanView: record.CanView, CanEdit: record.CanEdit}
	}
	if role == RoleManager {
		return EffectivePermission{CanView: true, CanEdit: true}
	}
	return EffectivePermission{}
}

// PermissionSnapshot is the serialized before/after state of a permission
// record in PERMISSION_CHANGED history entries.
type PermissionSnapshot struct {
	Role      Role `json:"role"`
	CanView   bool `json:"canView"`
	CanEdit   bool `json:"canEdit"`
	CanCreate bool `json:"canCreate"`
}

// Snapshot returns the record's current state.
func (p *ColumnRolePermission) Snapshot() PermissionSnapshot {
	return PermissionSnapshot{
		Role:      p.Role,
		CanView:   p.CanView,
		CanEdit:   p.CanEdit,
		CanCreate: p.CanCreate,
	}
}

// PermissionMetadata identifies the permission record a history entry is about.
type PermissionMetadata struct {
	PermissionID uuid.UUID `json:"permissionId"`
	Role         Role      `json:"role"`
}
