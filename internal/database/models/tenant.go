package models

import (
	"time"

	"github.com/google/uuid"
)

// Site is an isolated tenant namespace (one schema per customer
// deployment), reachable through one or more domains. Sites are linked to
// organizations through OrganizationSite rows, never owned directly.
type Site struct {
	Base
	SchemaName  string `gorm:"uniqueIndex;not null" json:"schema_name"`
	Name        string `gorm:"not null" json:"name"`
	Description string `json:"description,omitempty"`
	IsActive    bool   `gorm:"default:true" json:"is_active"`

	// Schema provisioning is performed out of band by the worker; the
	// timestamp records when it completed.
	Provisioned   bool       `gorm:"default:false" json:"provisioned"`
	ProvisionedAt *time.Time `json:"provisioned_at,omitempty"`

	// Relationships
	Domains []Domain `gorm:"foreignKey:SiteID" json:"domains,omitempty"`
}

func (Site) TableName() string {
	return "sites"
}

type Domain struct {
	Base
	SiteID    uuid.UUID `gorm:"type:uuid;not null;index" json:"site_id"`
	Domain    string    `gorm:"uniqueIndex;not null" json:"domain"`
	IsPrimary bool      `gorm:"default:false" json:"is_primary"`

	Site *Site `gorm:"foreignKey:SiteID" json:"-"`
}

func (Domain) TableName() string {
	return "domains"
}
