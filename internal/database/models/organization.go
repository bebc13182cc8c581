package models

import (
	"time"

	"github.com/google/uuid"
)

// Subscription plans
const (
	PlanFree         = "free"
	PlanBasic        = "basic"
	PlanProfessional = "professional"
	PlanEnterprise   = "enterprise"
)

// Membership roles
const (
	RoleMember = "member"
	RoleOwner  = "owner"
)

// Site environment roles
const (
	SiteRoleProduction  = "production"
	SiteRoleStaging     = "staging"
	SiteRoleDevelopment = "development"
	SiteRoleTesting     = "testing"
)

type Organization struct {
	Base
	Name        string `gorm:"not null" json:"name"`
	Slug        string `gorm:"uniqueIndex;not null" json:"slug"`
	Description string `json:"description,omitempty"`

	// Contact information
	Website string `json:"website,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
	Address string `json:"address,omitempty"`

	// Subscription and limits
	Plan       string `gorm:"default:'free'" json:"plan"`
	MaxSites   int    `gorm:"default:1" json:"max_sites"`
	MaxMembers int    `gorm:"default:5" json:"max_members"`

	// Status and verification
	IsActive   bool       `gorm:"default:true" json:"is_active"`
	IsVerified bool       `gorm:"default:false" json:"is_verified"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`

	Settings JSONMap `gorm:"type:jsonb" json:"settings,omitempty"`

	// Relationships
	Members     []OrganizationMember     `gorm:"foreignKey:OrganizationID" json:"-"`
	Sites       []OrganizationSite       `gorm:"foreignKey:OrganizationID" json:"-"`
	Invitations []OrganizationInvitation `gorm:"foreignKey:OrganizationID" json:"-"`
}

func (Organization) TableName() string {
	return "organizations"
}

type OrganizationMember struct {
	Base
	OrganizationID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_org_member" json:"organization_id"`
	UserID         uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_org_member" json:"user_id"`
	Role           string    `gorm:"not null;default:'member';index:idx_org_role" json:"role"`

	// Member profile
	Title      string `json:"title,omitempty"`
	Department string `json:"department,omitempty"`
	Phone      string `json:"phone,omitempty"`

	IsActive   bool       `gorm:"default:true" json:"is_active"`
	JoinedAt   time.Time  `gorm:"autoCreateTime" json:"joined_at"`
	LastActive *time.Time `json:"last_active,omitempty"`

	// Relationships
	Organization *Organization `gorm:"foreignKey:OrganizationID" json:"organization,omitempty"`
	User         *User         `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (OrganizationMember) TableName() string {
	return "organization_members"
}

func (m *OrganizationMember) IsOwner() bool {
	return m.Role == RoleOwner
}

// OrganizationSite links an organization to a tenant site with an
// environment role. At most one row per organization carries IsPrimary.
type OrganizationSite struct {
	Base
	OrganizationID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_org_site" json:"organization_id"`
	SiteID         uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_org_site" json:"site_id"`

	IsPrimary    bool    `gorm:"default:false" json:"is_primary"`
	SiteRole     string  `gorm:"default:'production'" json:"site_role"`
	SiteSettings JSONMap `gorm:"type:jsonb" json:"site_settings,omitempty"`
	IsActive     bool    `gorm:"default:true" json:"is_active"`

	// Relationships
	Organization *Organization `gorm:"foreignKey:OrganizationID" json:"organization,omitempty"`
	Site         *Site         `gorm:"foreignKey:SiteID" json:"site,omitempty"`
}

func (OrganizationSite) TableName() string {
	return "organization_sites"
}
