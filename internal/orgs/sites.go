package orgs

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/hugh/taruvi/internal/audit"
	"github.com/hugh/taruvi/internal/database/models"
	"github.com/hugh/taruvi/internal/permissions"
	"gorm.io/gorm"
)

// AddSite links a tenant site to the organization. The site quota is a
// read-check-write soft limit like the member quota.
func (s *Service) AddSite(ctx context.Context, actorID, orgID, siteID uuid.UUID, siteRole string) (*models.OrganizationSite, error) {
	if err := s.requireOrgPermission(ctx, actorID, orgID, permissions.PermManageOrganization); err != nil {
		return nil, err
	}
	if siteRole == "" {
		siteRole = models.SiteRoleProduction
	}

	var orgSite models.OrganizationSite
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var org models.Organization
		if err := tx.First(&org, "id = ?", orgID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		var site models.Site
		if err := tx.First(&site, "id = ?", siteID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		var existing int64
		if err := tx.Model(&models.OrganizationSite{}).
			Where("organization_id = ? AND site_id = ?", orgID, siteID).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return ErrDuplicateSite
		}

		var siteCount int64
		if err := tx.Model(&models.OrganizationSite{}).
			Where("organization_id = ?", orgID).
			Count(&siteCount).Error; err != nil {
			return err
		}
		if siteCount >= int64(org.MaxSites) {
			return ErrQuotaExceeded
		}

		orgSite = models.OrganizationSite{
			OrganizationID: orgID,
			SiteID:         siteID,
			SiteRole:       siteRole,
			IsActive:       true,
		}
		orgSite.CreatedByID = &actorID
		if err := tx.Create(&orgSite).Error; err != nil {
			return err
		}

		return s.recorder.WithTx(tx).Record(ctx, audit.EntityOrgSite, orgSite.ID, models.AuditActionCreate, &actorID, nil, orgSite)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("site linked", "org_id", orgID, "site_id", siteID, "site_role", siteRole)
	return &orgSite, nil
}

// ListSites returns the organization's site links with tenant details.
func (s *Service) ListSites(ctx context.Context, actorID, orgID uuid.UUID) ([]models.OrganizationSite, error) {
	if err := s.requireOrgPermission(ctx, actorID, orgID, permissions.PermViewOrganization); err != nil {
		return nil, err
	}

	var sites []models.OrganizationSite
	err := s.db.WithContext(ctx).
		Preload("Site").
		Where("organization_id = ?", orgID).
		Order("created_at").
		Find(&sites).Error
	if err != nil {
		return nil, err
	}
	return sites, nil
}

// SetPrimarySite marks one site link as the organization's primary. The
// previous primary is cleared in the same transaction so at most one link
// carries the flag (last write wins).
func (s *Service) SetPrimarySite(ctx context.Context, actorID, orgID, siteID uuid.UUID) (*models.OrganizationSite, error) {
	if err := s.requireOrgPermission(ctx, actorID, orgID, permissions.PermManageOrganization); err != nil {
		return nil, err
	}

	var orgSite models.OrganizationSite
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("organization_id = ? AND site_id = ?", orgID, siteID).
			First(&orgSite).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		if err := tx.Model(&models.OrganizationSite{}).
			Where("organization_id = ? AND is_primary = ? AND id <> ?", orgID, true, orgSite.ID).
			Update("is_primary", false).Error; err != nil {
			return err
		}

		before := orgSite
		orgSite.IsPrimary = true
		orgSite.ModifiedByID = &actorID
		if err := tx.Save(&orgSite).Error; err != nil {
			return err
		}

		return s.recorder.WithTx(tx).Record(ctx, audit.EntityOrgSite, orgSite.ID, models.AuditActionUpdate, &actorID, before, orgSite)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("primary site set", "org_id", orgID, "site_id", siteID)
	return &orgSite, nil
}

// GrantSiteAccess grants site permissions to an active member. Unrecognized
// permission names are dropped, not rejected; the granted subset is
// returned.
func (s *Service) GrantSiteAccess(ctx context.Context, actorID, orgID, userID, siteID uuid.UUID, perms []string) ([]string, error) {
	if err := s.requireOrgPermission(ctx, actorID, orgID, permissions.PermManageOrganization); err != nil {
		return nil, err
	}

	granted := permissions.FilterSitePermissions(perms)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.requireActiveMemberAndSite(tx, orgID, userID, siteID); err != nil {
			return err
		}

		txPerms := s.perms.WithTx(tx)
		for _, perm := range granted {
			if err := txPerms.Grant(ctx, userID, perm, models.ResourceSite, siteID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("site access granted", "org_id", orgID, "site_id", siteID, "user_id", userID, "permissions", granted)
	return granted, nil
}

// RevokeSiteAccess removes site permissions from a member. Like grants,
// unknown names are filtered and revoking an absent grant is a no-op.
func (s *Service) RevokeSiteAccess(ctx context.Context, actorID, orgID, userID, siteID uuid.UUID, perms []string) ([]string, error) {
	if err := s.requireOrgPermission(ctx, actorID, orgID, permissions.PermManageOrganization); err != nil {
		return nil, err
	}

	revoked := permissions.FilterSitePermissions(perms)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.requireActiveMemberAndSite(tx, orgID, userID, siteID); err != nil {
			return err
		}

		txPerms := s.perms.WithTx(tx)
		for _, perm := range revoked {
			if err := txPerms.Revoke(ctx, userID, perm, models.ResourceSite, siteID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("site access revoked", "org_id", orgID, "site_id", siteID, "user_id", userID, "permissions", revoked)
	return revoked, nil
}

// MemberSitePermissions lists every active member of the organization with
// the permissions they hold on one of its sites.
type MemberSitePermissions struct {
	UserID      uuid.UUID `json:"user_id"`
	Role        string    `json:"role"`
	Permissions []string  `json:"permissions"`
}

func (s *Service) ListSitePermissions(ctx context.Context, actorID, orgID, siteID uuid.UUID) ([]MemberSitePermissions, error) {
	if err := s.requireOrgPermission(ctx, actorID, orgID, permissions.PermViewOrganization); err != nil {
		return nil, err
	}

	var linked int64
	if err := s.db.WithContext(ctx).Model(&models.OrganizationSite{}).
		Where("organization_id = ? AND site_id = ?", orgID, siteID).
		Count(&linked).Error; err != nil {
		return nil, err
	}
	if linked == 0 {
		return nil, ErrSiteNotLinked
	}

	var members []models.OrganizationMember
	if err := s.db.WithContext(ctx).
		Where("organization_id = ? AND is_active = ?", orgID, true).
		Find(&members).Error; err != nil {
		return nil, err
	}

	result := make([]MemberSitePermissions, 0, len(members))
	for _, m := range members {
		perms, err := s.perms.ListForSubject(ctx, m.UserID, models.ResourceSite, siteID)
		if err != nil {
			return nil, err
		}
		result = append(result, MemberSitePermissions{
			UserID:      m.UserID,
			Role:        m.Role,
			Permissions: perms,
		})
	}
	return result, nil
}

func (s *Service) requireActiveMemberAndSite(tx *gorm.DB, orgID, userID, siteID uuid.UUID) error {
	var memberCount int64
	if err := tx.Model(&models.OrganizationMember{}).
		Where("organization_id = ? AND user_id = ? AND is_active = ?", orgID, userID, true).
		Count(&memberCount).Error; err != nil {
		return err
	}
	if memberCount == 0 {
		return ErrNotMember
	}

	var siteCount int64
	if err := tx.Model(&models.OrganizationSite{}).
		Where("organization_id = ? AND site_id = ?", orgID, siteID).
		Count(&siteCount).Error; err != nil {
		return err
	}
	if siteCount == 0 {
		return ErrSiteNotLinked
	}
	return nil
}
