package models

import (
	"time"

	"github.com/google/uuid"
)

// OrganizationInvitation is a pending, token-addressed offer to join an
// organization. It has no stored state machine: acceptance is a flag and
// expiry is derived from the clock.
type OrganizationInvitation struct {
	Base
	OrganizationID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_org_email" json:"organization_id"`
	InvitedByID    uuid.UUID `gorm:"type:uuid;not null" json:"invited_by"`

	Email string `gorm:"not null;uniqueIndex:idx_org_email" json:"email"`
	Role  string `gorm:"not null;default:'member'" json:"role"`

	Token      string     `gorm:"uniqueIndex;not null" json:"-"`
	IsAccepted bool       `gorm:"default:false;index:idx_invitation_accepted" json:"is_accepted"`
	AcceptedBy *uuid.UUID `gorm:"type:uuid" json:"accepted_by,omitempty"`
	AcceptedAt *time.Time `json:"accepted_at,omitempty"`
	ExpiresAt  time.Time  `gorm:"not null;index" json:"expires_at"`

	Message  string  `json:"message,omitempty"`
	Metadata JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`

	// Relationships
	Organization *Organization `gorm:"foreignKey:OrganizationID" json:"organization,omitempty"`
}

func (OrganizationInvitation) TableName() string {
	return "organization_invitations"
}

func (i *OrganizationInvitation) IsExpired(now time.Time) bool {
	if i.ExpiresAt.IsZero() {
		return false
	}
	return now.After(i.ExpiresAt)
}

// IsValid reports whether the invitation can still be accepted.
func (i *OrganizationInvitation) IsValid(now time.Time) bool {
	return !i.IsAccepted && !i.IsExpired(now)
}
