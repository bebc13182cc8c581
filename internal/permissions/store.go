package permissions

import (
	"context"

	"github.com/google/uuid"
	"github.com/hugh/taruvi/internal/database/models"
	"gorm.io/gorm"
)

// Store persists permission tuples. Mutations are expected to run inside
// the transaction of the domain mutation that motivated them; use WithTx to
// bind a store to that transaction.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// WithTx returns a store bound to tx so grants and revokes commit or roll
// back together with the caller's domain writes.
func (s *Store) WithTx(tx *gorm.DB) *Store {
	return &Store{db: tx}
}

// Grant records a permission tuple. Granting an existing tuple is a no-op.
func (s *Store) Grant(ctx context.Context, userID uuid.UUID, permission, resourceType string, resourceID uuid.UUID) error {
	tuple := models.ObjectPermission{
		UserID:       userID,
		Permission:   permission,
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
	return s.db.WithContext(ctx).
		Where(models.ObjectPermission{
			UserID:       userID,
			Permission:   permission,
			ResourceType: resourceType,
			ResourceID:   resourceID,
		}).
		FirstOrCreate(&tuple).Error
}

// Revoke removes a permission tuple. Revoking an absent tuple is a no-op.
func (s *Store) Revoke(ctx context.Context, userID uuid.UUID, permission, resourceType string, resourceID uuid.UUID) error {
	return s.db.WithContext(ctx).
		Where("user_id = ? AND permission = ? AND resource_type = ? AND resource_id = ?",
			userID, permission, resourceType, resourceID).
		Delete(&models.ObjectPermission{}).Error
}

func (s *Store) Check(ctx context.Context, userID uuid.UUID, permission, resourceType string, resourceID uuid.UUID) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.ObjectPermission{}).
		Where("user_id = ? AND permission = ? AND resource_type = ? AND resource_id = ?",
			userID, permission, resourceType, resourceID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListForSubject returns the permissions userID holds on one resource.
func (s *Store) ListForSubject(ctx context.Context, userID uuid.UUID, resourceType string, resourceID uuid.UUID) ([]string, error) {
	var perms []string
	err := s.db.WithContext(ctx).
		Model(&models.ObjectPermission{}).
		Where("user_id = ? AND resource_type = ? AND resource_id = ?", userID, resourceType, resourceID).
		Order("permission").
		Pluck("permission", &perms).Error
	if err != nil {
		return nil, err
	}
	return perms, nil
}

// ListSubjects returns the users holding permission on one resource.
func (s *Store) ListSubjects(ctx context.Context, resourceType string, resourceID uuid.UUID, permission string) ([]uuid.UUID, error) {
	var userIDs []uuid.UUID
	err := s.db.WithContext(ctx).
		Model(&models.ObjectPermission{}).
		Where("resource_type = ? AND resource_id = ? AND permission = ?", resourceType, resourceID, permission).
		Pluck("user_id", &userIDs).Error
	if err != nil {
		return nil, err
	}
	return userIDs, nil
}

// ListResources returns the resource IDs of the given type on which userID
// holds any of the given permissions.
func (s *Store) ListResources(ctx context.Context, userID uuid.UUID, resourceType string, anyOf ...string) ([]uuid.UUID, error) {
	var resourceIDs []uuid.UUID
	q := s.db.WithContext(ctx).
		Model(&models.ObjectPermission{}).
		Where("user_id = ? AND resource_type = ?", userID, resourceType)
	if len(anyOf) > 0 {
		q = q.Where("permission IN ?", anyOf)
	}
	err := q.Distinct().Pluck("resource_id", &resourceIDs).Error
	if err != nil {
		return nil, err
	}
	return resourceIDs, nil
}

// GrantRole grants the full permission set for role on an organization.
func (s *Store) GrantRole(ctx context.Context, userID, orgID uuid.UUID, role string) error {
	for _, perm := range ForRole(role) {
		if err := s.Grant(ctx, userID, perm, models.ResourceOrganization, orgID); err != nil {
			return err
		}
	}
	return nil
}

// SyncRole reconciles org grants with a member's new role: the role's set
// is granted, management permissions outside it are revoked. View survives
// every transition while the membership exists.
func (s *Store) SyncRole(ctx context.Context, userID, orgID uuid.UUID, role string) error {
	want := make(map[string]bool)
	for _, perm := range ForRole(role) {
		want[perm] = true
		if err := s.Grant(ctx, userID, perm, models.ResourceOrganization, orgID); err != nil {
			return err
		}
	}
	for _, perm := range ManagementPermissions() {
		if want[perm] {
			continue
		}
		if err := s.Revoke(ctx, userID, perm, models.ResourceOrganization, orgID); err != nil {
			return err
		}
	}
	return nil
}

// RevokeAllOnResource removes every tuple userID holds on one resource.
func (s *Store) RevokeAllOnResource(ctx context.Context, userID uuid.UUID, resourceType string, resourceID uuid.UUID) error {
	return s.db.WithContext(ctx).
		Where("user_id = ? AND resource_type = ? AND resource_id = ?", userID, resourceType, resourceID).
		Delete(&models.ObjectPermission{}).Error
}
