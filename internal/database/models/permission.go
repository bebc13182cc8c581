package models

import "github.com/google/uuid"

// Resource types an object permission can reference.
const (
	ResourceOrganization = "organization"
	ResourceSite         = "site"
)

// ObjectPermission is one (subject, permission, resource) tuple. Tuples are
// a projection of membership/role state and must never outlive the
// membership that granted them.
type ObjectPermission struct {
	Base
	UserID       uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_perm_tuple;index:idx_perm_user" json:"user_id"`
	Permission   string    `gorm:"not null;uniqueIndex:idx_perm_tuple" json:"permission"`
	ResourceType string    `gorm:"not null;uniqueIndex:idx_perm_tuple" json:"resource_type"`
	ResourceID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_perm_tuple;index:idx_perm_resource" json:"resource_id"`
}

func (ObjectPermission) TableName() string {
	return "object_permissions"
}
