// Package invitations implements the token-based invitation workflow:
// issuance, acceptance, resend, cancellation and the periodic expiry
// sweep. Email delivery is a fire-and-forget side channel through the task
// queue; it is never part of the domain transaction.
package invitations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/hugh/taruvi/internal/audit"
	"github.com/hugh/taruvi/internal/database/models"
	"github.com/hugh/taruvi/internal/permissions"
	"github.com/hugh/taruvi/internal/tasks"
	"gorm.io/gorm"
)

var (
	ErrPermissionDenied    = errors.New("permission denied")
	ErrNotFound            = errors.New("invitation not found")
	ErrDuplicateInvitation = errors.New("a pending invitation already exists for this email")
	ErrAlreadyMember       = errors.New("email belongs to an active member")
	ErrInvalidToken        = errors.New("no invitation matches this token")
	ErrNotValid            = errors.New("invitation is no longer valid")
	ErrEmailMismatch       = errors.New("user email does not match invitation email")
	ErrQuotaExceeded       = errors.New("organization member quota exceeded")
	ErrNotPending          = errors.New("invitation is not pending")
	ErrInvalidRole         = errors.New("invalid role")

	// ErrEnqueue is returned when the domain mutation committed but the
	// notification could not be handed to the task queue. The invitation
	// exists and is valid; only the email is lost.
	ErrEnqueue = errors.New("notification enqueue failed")
)

// Enqueuer is the slice of asynq.Client the workflow needs; tests pass a
// fake or nil.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type Service struct {
	db       *gorm.DB
	perms    *permissions.Store
	recorder *audit.Recorder
	queue    Enqueuer
	logger   *slog.Logger
	ttl      time.Duration

	// now is injectable so expiry behavior is testable against a fake
	// clock.
	now func() time.Time
}

func NewService(db *gorm.DB, perms *permissions.Store, recorder *audit.Recorder, queue Enqueuer, ttl time.Duration, logger *slog.Logger) *Service {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Service{
		db:       db,
		perms:    perms,
		recorder: recorder,
		queue:    queue,
		logger:   logger,
		ttl:      ttl,
		now:      time.Now,
	}
}

// WithClock overrides the workflow clock. Test hook.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type CreateInput struct {
	Email   string
	Role    string
	Message string
}

// Create issues an invitation and enqueues the invitation email. The email
// is outside the transaction: an enqueue failure surfaces as ErrEnqueue
// but the invitation stands.
func (s *Service) Create(ctx context.Context, actorID, orgID uuid.UUID, input CreateInput) (*models.OrganizationInvitation, error) {
	role := input.Role
	if role == "" {
		role = models.RoleMember
	}
	if role != models.RoleMember && role != models.RoleOwner {
		return nil, ErrInvalidRole
	}
	email := strings.ToLower(strings.TrimSpace(input.Email))

	if err := s.requireInvitePermission(ctx, actorID, orgID); err != nil {
		return nil, err
	}

	now := s.now()
	var invitation models.OrganizationInvitation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var org models.Organization
		if err := tx.First(&org, "id = ?", orgID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		// Reject if the email already belongs to an active member.
		var memberCount int64
		if err := tx.Model(&models.OrganizationMember{}).
			Joins("JOIN users ON users.id = organization_members.user_id").
			Where("organization_members.organization_id = ? AND organization_members.is_active = ? AND LOWER(users.email) = ?",
				orgID, true, email).
			Count(&memberCount).Error; err != nil {
			return err
		}
		if memberCount > 0 {
			return ErrAlreadyMember
		}

		// One live invitation per (organization, email). Terminal rows
		// (accepted or expired) are cleared so the unique index does not
		// block a fresh invitation.
		var existing models.OrganizationInvitation
		err := tx.Where("organization_id = ? AND email = ?", orgID, email).First(&existing).Error
		switch {
		case err == nil:
			if existing.IsValid(now) {
				return ErrDuplicateInvitation
			}
			if err := tx.Delete(&models.OrganizationInvitation{}, "id = ?", existing.ID).Error; err != nil {
				return err
			}
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		// Pending invitations count toward the member quota: reject once
		// members plus live invitations would exceed max_members.
		var members int64
		if err := tx.Model(&models.OrganizationMember{}).
			Where("organization_id = ?", orgID).
			Count(&members).Error; err != nil {
			return err
		}
		var pending int64
		if err := tx.Model(&models.OrganizationInvitation{}).
			Where("organization_id = ? AND is_accepted = ? AND expires_at > ?", orgID, false, now).
			Count(&pending).Error; err != nil {
			return err
		}
		if members+pending > int64(org.MaxMembers) {
			return ErrQuotaExceeded
		}

		token, err := newToken()
		if err != nil {
			return err
		}

		invitation = models.OrganizationInvitation{
			OrganizationID: orgID,
			InvitedByID:    actorID,
			Email:          email,
			Role:           role,
			Token:          token,
			ExpiresAt:      now.Add(s.ttl),
			Message:        input.Message,
		}
		invitation.CreatedByID = &actorID
		if err := tx.Create(&invitation).Error; err != nil {
			return err
		}

		return s.recorder.WithTx(tx).Record(ctx, audit.EntityInvitation, invitation.ID, models.AuditActionCreate, &actorID, nil, invitation)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("invitation created", "org_id", orgID, "email", email, "role", role)

	if err := s.enqueueInvitationEmail(ctx, invitation.ID); err != nil {
		return &invitation, err
	}
	return &invitation, nil
}

// Accept converts a valid invitation into a membership, granting the
// role's permission set in the same transaction. Accepting a terminal
// invitation fails; no duplicate membership is ever created.
func (s *Service) Accept(ctx context.Context, token string, userID uuid.UUID) (*models.OrganizationMember, error) {
	now := s.now()

	var member models.OrganizationMember
	var welcomeMemberID uuid.UUID
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var invitation models.OrganizationInvitation
		if err := tx.Where("token = ?", token).First(&invitation).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInvalidToken
			}
			return err
		}
		if !invitation.IsValid(now) {
			return ErrNotValid
		}

		var user models.User
		if err := tx.First(&user, "id = ?", userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if !strings.EqualFold(user.Email, invitation.Email) {
			return ErrEmailMismatch
		}

		var org models.Organization
		if err := tx.First(&org, "id = ?", invitation.OrganizationID).Error; err != nil {
			return err
		}

		var existing models.OrganizationMember
		err := tx.Where("organization_id = ? AND user_id = ?", org.ID, userID).First(&existing).Error
		switch {
		case err == nil:
			// Reactivate a dormant membership rather than duplicating it.
			member = existing
			if !member.IsActive {
				before := member
				member.IsActive = true
				member.Role = invitation.Role
				member.ModifiedByID = &userID
				if err := tx.Save(&member).Error; err != nil {
					return err
				}
				if err := s.recorder.WithTx(tx).Record(ctx, audit.EntityMember, member.ID, models.AuditActionUpdate, &userID, before, member); err != nil {
					return err
				}
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			var memberCount int64
			if err := tx.Model(&models.OrganizationMember{}).
				Where("organization_id = ?", org.ID).
				Count(&memberCount).Error; err != nil {
				return err
			}
			if memberCount >= int64(org.MaxMembers) {
				return ErrQuotaExceeded
			}

			member = models.OrganizationMember{
				OrganizationID: org.ID,
				UserID:         userID,
				Role:           invitation.Role,
				IsActive:       true,
			}
			member.CreatedByID = &invitation.InvitedByID
			if err := tx.Create(&member).Error; err != nil {
				return err
			}
			if err := s.recorder.WithTx(tx).Record(ctx, audit.EntityMember, member.ID, models.AuditActionCreate, &userID, nil, member); err != nil {
				return err
			}
		default:
			return err
		}

		if err := s.perms.WithTx(tx).SyncRole(ctx, userID, org.ID, member.Role); err != nil {
			return err
		}

		before := invitation
		invitation.IsAccepted = true
		invitation.AcceptedBy = &userID
		invitation.AcceptedAt = &now
		invitation.ModifiedByID = &userID
		if err := tx.Save(&invitation).Error; err != nil {
			return err
		}
		welcomeMemberID = member.ID

		return s.recorder.WithTx(tx).Record(ctx, audit.EntityInvitation, invitation.ID, models.AuditActionUpdate, &userID, before, invitation)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("invitation accepted", "org_id", member.OrganizationID, "user_id", userID, "role", member.Role)

	// Welcome email is best-effort; a queue outage never undoes the join.
	if s.queue != nil {
		task, err := tasks.NewWelcomeEmailTask(tasks.WelcomeEmailPayload{MemberID: welcomeMemberID})
		if err == nil {
			_, err = s.queue.EnqueueContext(ctx, task, asynq.Queue("low"))
		}
		if err != nil {
			s.logger.Warn("enqueueing welcome email", "member_id", welcomeMemberID, "error", err)
		}
	}

	return &member, nil
}

// Resend rotates a pending invitation's token, invalidating the old link,
// and re-enqueues the email.
func (s *Service) Resend(ctx context.Context, actorID, invitationID uuid.UUID) (*models.OrganizationInvitation, error) {
	now := s.now()

	var invitation models.OrganizationInvitation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&invitation, "id = ?", invitationID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		if err := s.requireInvitePermission(ctx, actorID, invitation.OrganizationID); err != nil {
			return err
		}
		if !invitation.IsValid(now) {
			return ErrNotPending
		}

		token, err := newToken()
		if err != nil {
			return err
		}

		before := invitation
		invitation.Token = token
		invitation.ExpiresAt = now.Add(s.ttl)
		invitation.ModifiedByID = &actorID
		if err := tx.Save(&invitation).Error; err != nil {
			return err
		}

		return s.recorder.WithTx(tx).Record(ctx, audit.EntityInvitation, invitation.ID, models.AuditActionUpdate, &actorID, before, invitation)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("invitation resent", "invitation_id", invitationID)

	if err := s.enqueueInvitationEmail(ctx, invitation.ID); err != nil {
		return &invitation, err
	}
	return &invitation, nil
}

// Cancel deletes a pending invitation. Accepted invitations are terminal
// and cannot be cancelled.
func (s *Service) Cancel(ctx context.Context, actorID, invitationID uuid.UUID) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var invitation models.OrganizationInvitation
		if err := tx.First(&invitation, "id = ?", invitationID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		if err := s.requireInvitePermission(ctx, actorID, invitation.OrganizationID); err != nil {
			return err
		}
		if invitation.IsAccepted {
			return ErrNotPending
		}

		if err := tx.Delete(&models.OrganizationInvitation{}, "id = ?", invitation.ID).Error; err != nil {
			return err
		}

		return s.recorder.WithTx(tx).Record(ctx, audit.EntityInvitation, invitation.ID, models.AuditActionDelete, &actorID, invitation, nil)
	})
	if err != nil {
		return err
	}

	s.logger.Info("invitation cancelled", "invitation_id", invitationID)
	return nil
}

// List returns an organization's invitations, newest first.
func (s *Service) List(ctx context.Context, actorID, orgID uuid.UUID) ([]models.OrganizationInvitation, error) {
	if err := s.requireInvitePermission(ctx, actorID, orgID); err != nil {
		return nil, err
	}

	var list []models.OrganizationInvitation
	err := s.db.WithContext(ctx).
		Where("organization_id = ?", orgID).
		Order("created_at DESC").
		Find(&list).Error
	if err != nil {
		return nil, err
	}
	return list, nil
}

// SweepExpired deletes every unaccepted invitation past its expiry. Pure
// garbage collection; runs periodically from the worker.
func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("is_accepted = ? AND expires_at < ?", false, s.now()).
		Delete(&models.OrganizationInvitation{})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		s.logger.Info("expired invitations swept", "deleted", res.RowsAffected)
	}
	return res.RowsAffected, nil
}

func (s *Service) requireInvitePermission(ctx context.Context, actorID, orgID uuid.UUID) error {
	for _, perm := range []string{permissions.PermInviteMembers, permissions.PermManageOrganization} {
		ok, err := s.perms.Check(ctx, actorID, perm, models.ResourceOrganization, orgID)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return ErrPermissionDenied
}

func (s *Service) enqueueInvitationEmail(ctx context.Context, invitationID uuid.UUID) error {
	if s.queue == nil {
		return nil
	}
	task, err := tasks.NewInvitationEmailTask(tasks.InvitationEmailPayload{InvitationID: invitationID})
	if err == nil {
		_, err = s.queue.EnqueueContext(ctx, task, asynq.MaxRetry(3), asynq.Queue("critical"))
	}
	if err != nil {
		s.logger.Error("enqueueing invitation email", "invitation_id", invitationID, "error", err)
		return fmt.Errorf("%w: %v", ErrEnqueue, err)
	}
	return nil
}
