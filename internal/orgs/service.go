// Package orgs is the membership lifecycle manager: it owns every mutation
// of organizations, memberships and site links, and keeps the permission
// ledger consistent with role state inside the same transaction.
package orgs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/taruvi/internal/audit"
	"github.com/hugh/taruvi/internal/database/models"
	"github.com/hugh/taruvi/internal/permissions"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Service struct {
	db       *gorm.DB
	perms    *permissions.Store
	recorder *audit.Recorder
	logger   *slog.Logger
}

func NewService(db *gorm.DB, perms *permissions.Store, recorder *audit.Recorder, logger *slog.Logger) *Service {
	return &Service{
		db:       db,
		perms:    perms,
		recorder: recorder,
		logger:   logger,
	}
}

// Permissions returns the store backing this service, for read-side checks.
func (s *Service) Permissions() *permissions.Store {
	return s.perms
}

// lockForUpdate takes row locks so concurrent role changes and removals
// serialize on the organization's membership set. sqlite (tests) has no
// row locks; writes there are serialized by the single connection.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

func validRole(role string) bool {
	return role == models.RoleMember || role == models.RoleOwner
}

func (s *Service) requireOrgPermission(ctx context.Context, actorID, orgID uuid.UUID, perm string) error {
	ok, err := s.perms.Check(ctx, actorID, perm, models.ResourceOrganization, orgID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrPermissionDenied
	}
	return nil
}

type CreateOrganizationInput struct {
	Name        string
	Description string
	Website     string
	Email       string
	Plan        string
	MaxSites    int
	MaxMembers  int
}

// CreateOrganization creates the organization, makes the creator its owner
// and grants the full owner permission set, atomically.
func (s *Service) CreateOrganization(ctx context.Context, ownerID uuid.UUID, input CreateOrganizationInput) (*models.Organization, error) {
	plan := input.Plan
	if plan == "" {
		plan = models.PlanFree
	}
	maxSites := input.MaxSites
	if maxSites <= 0 {
		maxSites = 1
	}
	maxMembers := input.MaxMembers
	if maxMembers <= 0 {
		maxMembers = 5
	}

	var org models.Organization
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		slug, err := uniqueSlug(tx, input.Name)
		if err != nil {
			return err
		}

		org = models.Organization{
			Name:        input.Name,
			Slug:        slug,
			Description: input.Description,
			Website:     input.Website,
			Email:       input.Email,
			Plan:        plan,
			MaxSites:    maxSites,
			MaxMembers:  maxMembers,
			IsActive:    true,
		}
		org.CreatedByID = &ownerID
		if err := tx.Create(&org).Error; err != nil {
			return err
		}

		member := models.OrganizationMember{
			OrganizationID: org.ID,
			UserID:         ownerID,
			Role:           models.RoleOwner,
			IsActive:       true,
		}
		member.CreatedByID = &ownerID
		if err := tx.Create(&member).Error; err != nil {
			return err
		}

		if err := s.perms.WithTx(tx).GrantRole(ctx, ownerID, org.ID, models.RoleOwner); err != nil {
			return err
		}

		rec := s.recorder.WithTx(tx)
		if err := rec.Record(ctx, audit.EntityOrganization, org.ID, models.AuditActionCreate, &ownerID, nil, org); err != nil {
			return err
		}
		return rec.Record(ctx, audit.EntityMember, member.ID, models.AuditActionCreate, &ownerID, nil, member)
	})
	if err != nil {
		return nil, fmt.Errorf("creating organization: %w", err)
	}

	s.logger.Info("organization created", "org_id", org.ID, "slug", org.Slug, "owner", ownerID)
	return &org, nil
}

// GetOrganization returns an organization by slug if the actor can view it.
func (s *Service) GetOrganization(ctx context.Context, actorID uuid.UUID, slug string) (*models.Organization, error) {
	var org models.Organization
	if err := s.db.WithContext(ctx).Where("slug = ?", slug).First(&org).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := s.requireOrgPermission(ctx, actorID, org.ID, permissions.PermViewOrganization); err != nil {
		return nil, err
	}
	return &org, nil
}

// ListOrganizations returns the organizations the actor can view.
func (s *Service) ListOrganizations(ctx context.Context, actorID uuid.UUID) ([]models.Organization, error) {
	orgIDs, err := s.perms.ListResources(ctx, actorID, models.ResourceOrganization, permissions.PermViewOrganization)
	if err != nil {
		return nil, err
	}
	if len(orgIDs) == 0 {
		return []models.Organization{}, nil
	}

	var orgList []models.Organization
	if err := s.db.WithContext(ctx).Where("id IN ?", orgIDs).Order("name").Find(&orgList).Error; err != nil {
		return nil, err
	}
	return orgList, nil
}

// AddMember adds a user to the organization with the given role and grants
// the role's permission set. The quota check is read-check-write: racing
// adds can transiently exceed max_members, which is accepted for a soft
// limit.
func (s *Service) AddMember(ctx context.Context, actorID, orgID, userID uuid.UUID, role string) (*models.OrganizationMember, error) {
	if !validRole(role) {
		return nil, ErrInvalidRole
	}
	if err := s.requireOrgPermission(ctx, actorID, orgID, permissions.PermManageOrganization); err != nil {
		return nil, err
	}

	var member models.OrganizationMember
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var org models.Organization
		if err := tx.First(&org, "id = ?", orgID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		var user models.User
		if err := tx.First(&user, "id = ?", userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		var existing int64
		if err := tx.Model(&models.OrganizationMember{}).
			Where("organization_id = ? AND user_id = ?", orgID, userID).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return ErrAlreadyMember
		}

		var memberCount int64
		if err := tx.Model(&models.OrganizationMember{}).
			Where("organization_id = ?", orgID).
			Count(&memberCount).Error; err != nil {
			return err
		}
		if memberCount >= int64(org.MaxMembers) {
			return ErrQuotaExceeded
		}

		member = models.OrganizationMember{
			OrganizationID: orgID,
			UserID:         userID,
			Role:           role,
			IsActive:       true,
		}
		member.CreatedByID = &actorID
		if err := tx.Create(&member).Error; err != nil {
			return err
		}

		if err := s.perms.WithTx(tx).GrantRole(ctx, userID, orgID, role); err != nil {
			return err
		}

		return s.recorder.WithTx(tx).Record(ctx, audit.EntityMember, member.ID, models.AuditActionCreate, &actorID, nil, member)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("member added", "org_id", orgID, "user_id", userID, "role", role)
	return &member, nil
}

// ListMembers returns the organization's members with user details.
func (s *Service) ListMembers(ctx context.Context, actorID, orgID uuid.UUID) ([]models.OrganizationMember, error) {
	if err := s.requireOrgPermission(ctx, actorID, orgID, permissions.PermViewOrganization); err != nil {
		return nil, err
	}

	var members []models.OrganizationMember
	err := s.db.WithContext(ctx).
		Preload("User").
		Where("organization_id = ?", orgID).
		Order("joined_at").
		Find(&members).Error
	if err != nil {
		return nil, err
	}
	return members, nil
}

// GetMember looks up one membership row by organization and user.
func (s *Service) GetMember(ctx context.Context, orgID, userID uuid.UUID) (*models.OrganizationMember, error) {
	var member models.OrganizationMember
	err := s.db.WithContext(ctx).
		Where("organization_id = ? AND user_id = ?", orgID, userID).
		First(&member).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &member, nil
}

// ChangeRole updates a member's role and reconciles permission grants.
// The membership set is locked for the check-and-mutate so two demotions
// of the last two owners cannot both pass the owner-count check.
func (s *Service) ChangeRole(ctx context.Context, actorID uuid.UUID, orgID, userID uuid.UUID, newRole string) (*models.OrganizationMember, error) {
	if !validRole(newRole) {
		return nil, ErrInvalidRole
	}
	if err := s.requireOrgPermission(ctx, actorID, orgID, permissions.PermManageOrganization); err != nil {
		return nil, err
	}

	var member models.OrganizationMember
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var members []models.OrganizationMember
		if err := lockForUpdate(tx).
			Where("organization_id = ?", orgID).
			Find(&members).Error; err != nil {
			return err
		}

		found := false
		owners := 0
		for _, m := range members {
			if m.IsOwner() {
				owners++
			}
			if m.UserID == userID {
				member = m
				found = true
			}
		}
		if !found {
			return ErrNotFound
		}
		if member.Role == newRole {
			return nil
		}
		if member.IsOwner() && newRole == models.RoleMember && owners == 1 {
			return ErrLastOwner
		}

		before := member
		member.Role = newRole
		member.ModifiedByID = &actorID
		if err := tx.Save(&member).Error; err != nil {
			return err
		}

		if err := s.perms.WithTx(tx).SyncRole(ctx, userID, orgID, newRole); err != nil {
			return err
		}

		return s.recorder.WithTx(tx).Record(ctx, audit.EntityMember, member.ID, models.AuditActionUpdate, &actorID, before, member)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("member role changed", "org_id", orgID, "user_id", userID, "role", newRole)
	return &member, nil
}

// RemoveMember deletes a membership and revokes every permission the user
// held on the organization and on each of its sites, atomically. Removal
// is destructive; there is no soft-delete state.
func (s *Service) RemoveMember(ctx context.Context, actorID uuid.UUID, orgID, userID uuid.UUID) error {
	if err := s.requireOrgPermission(ctx, actorID, orgID, permissions.PermManageOrganization); err != nil {
		return err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var members []models.OrganizationMember
		if err := lockForUpdate(tx).
			Where("organization_id = ?", orgID).
			Find(&members).Error; err != nil {
			return err
		}

		var member *models.OrganizationMember
		owners := 0
		for i := range members {
			if members[i].IsOwner() {
				owners++
			}
			if members[i].UserID == userID {
				member = &members[i]
			}
		}
		if member == nil {
			return ErrNotFound
		}
		if member.IsOwner() && owners == 1 {
			return ErrLastOwner
		}

		txPerms := s.perms.WithTx(tx)
		if err := txPerms.RevokeAllOnResource(ctx, userID, models.ResourceOrganization, orgID); err != nil {
			return err
		}

		// Cascade: drop site grants tied to this membership.
		var orgSites []models.OrganizationSite
		if err := tx.Where("organization_id = ?", orgID).Find(&orgSites).Error; err != nil {
			return err
		}
		for _, os := range orgSites {
			if err := txPerms.RevokeAllOnResource(ctx, userID, models.ResourceSite, os.SiteID); err != nil {
				return err
			}
		}

		if err := tx.Delete(&models.OrganizationMember{}, "id = ?", member.ID).Error; err != nil {
			return err
		}

		return s.recorder.WithTx(tx).Record(ctx, audit.EntityMember, member.ID, models.AuditActionDelete, &actorID, member, nil)
	})
	if err != nil {
		return err
	}

	s.logger.Info("member removed", "org_id", orgID, "user_id", userID)
	return nil
}

// OwnerCount reports how many owners the organization currently has.
func (s *Service) OwnerCount(ctx context.Context, orgID uuid.UUID) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.OrganizationMember{}).
		Where("organization_id = ? AND role = ?", orgID, models.RoleOwner).
		Count(&count).Error
	return count, err
}

// UpdateLastActive stamps a member's activity time. Best-effort; failures
// are logged, not surfaced.
func (s *Service) UpdateLastActive(ctx context.Context, orgID, userID uuid.UUID) {
	now := time.Now()
	err := s.db.WithContext(ctx).
		Model(&models.OrganizationMember{}).
		Where("organization_id = ? AND user_id = ?", orgID, userID).
		Update("last_active", now).Error
	if err != nil {
		s.logger.Warn("updating member activity", "org_id", orgID, "user_id", userID, "error", err)
	}
}
