package models

import "github.com/google/uuid"

// Audit actions
const (
	AuditActionCreate = "create"
	AuditActionUpdate = "update"
	AuditActionDelete = "delete"
)

// ChangeRecord is one immutable entry in the per-entity change history.
// Records are written inside the transaction that performed the mutation
// and are never updated or replayed.
type ChangeRecord struct {
	Base
	EntityType string     `gorm:"not null;index:idx_change_entity" json:"entity_type"`
	EntityID   uuid.UUID  `gorm:"type:uuid;not null;index:idx_change_entity" json:"entity_id"`
	Action     string     `gorm:"not null" json:"action"`
	ActorID    *uuid.UUID `gorm:"type:uuid;index" json:"actor_id,omitempty"`
	Before     JSONMap    `gorm:"type:jsonb" json:"before,omitempty"`
	After      JSONMap    `gorm:"type:jsonb" json:"after,omitempty"`
}

func (ChangeRecord) TableName() string {
	return "change_records"
}
