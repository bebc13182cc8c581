package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/hugh/taruvi/internal/database/models"
	"github.com/hugh/taruvi/internal/mailer"
	"gorm.io/gorm"
)

// Handler executes queued jobs. Delivery failures return errors so asynq
// retries them with exponential backoff; domain state is never rolled back
// from here.
type Handler struct {
	db          *gorm.DB
	mail        mailer.Mailer
	logger      *slog.Logger
	frontendURL string
}

func NewHandler(db *gorm.DB, mail mailer.Mailer, frontendURL string, logger *slog.Logger) *Handler {
	return &Handler{
		db:          db,
		mail:        mail,
		logger:      logger,
		frontendURL: frontendURL,
	}
}

func (h *Handler) RegisterHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeInvitationEmail, h.HandleInvitationEmail)
	mux.HandleFunc(TypeWelcomeEmail, h.HandleWelcomeEmail)
	mux.HandleFunc(TypeNotificationEmail, h.HandleNotificationEmail)
	mux.HandleFunc(TypeInvitationSweep, h.HandleInvitationSweep)
	mux.HandleFunc(TypeTenantProvision, h.HandleTenantProvision)
}

func (h *Handler) HandleInvitationEmail(ctx context.Context, t *asynq.Task) error {
	var payload InvitationEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	var invitation models.OrganizationInvitation
	err := h.db.WithContext(ctx).
		Preload("Organization").
		First(&invitation, "id = ?", payload.InvitationID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Cancelled or swept before delivery; nothing to send.
			h.logger.Warn("invitation gone before email delivery", "invitation_id", payload.InvitationID)
			return nil
		}
		return err
	}

	if !invitation.IsValid(time.Now()) {
		h.logger.Warn("skipping email for invalid invitation", "invitation_id", invitation.ID)
		return nil
	}

	orgName := ""
	if invitation.Organization != nil {
		orgName = invitation.Organization.Name
	}

	acceptURL := fmt.Sprintf("%s/accept-invitation/%s", h.frontendURL, invitation.Token)
	subject := fmt.Sprintf("Invitation to join %s on Taruvi", orgName)
	body := fmt.Sprintf(
		"You have been invited to join %s as a %s.\n\nAccept your invitation:\n%s\n",
		orgName, invitation.Role, acceptURL,
	)
	if invitation.Message != "" {
		body += "\n" + invitation.Message + "\n"
	}

	if err := h.mail.Send(ctx, subject, body, []string{invitation.Email}); err != nil {
		h.logger.Error("sending invitation email", "invitation_id", invitation.ID, "error", err)
		return err
	}

	h.logger.Info("invitation email sent", "invitation_id", invitation.ID, "email", invitation.Email)
	return nil
}

func (h *Handler) HandleWelcomeEmail(ctx context.Context, t *asynq.Task) error {
	var payload WelcomeEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	var member models.OrganizationMember
	err := h.db.WithContext(ctx).
		Preload("Organization").
		Preload("User").
		First(&member, "id = ?", payload.MemberID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			h.logger.Warn("member gone before welcome email", "member_id", payload.MemberID)
			return nil
		}
		return err
	}
	if member.User == nil || member.Organization == nil {
		return fmt.Errorf("member %s missing user or organization", member.ID)
	}

	subject := fmt.Sprintf("Welcome to %s!", member.Organization.Name)
	body := fmt.Sprintf(
		"Hi %s,\n\nWelcome to %s! You've joined as a %s.\n\nYou can now access the organization's resources and collaborate with other members.\n",
		member.User.Name, member.Organization.Name, member.Role,
	)

	if err := h.mail.Send(ctx, subject, body, []string{member.User.Email}); err != nil {
		h.logger.Error("sending welcome email", "member_id", member.ID, "error", err)
		return err
	}

	h.logger.Info("welcome email sent", "member_id", member.ID, "email", member.User.Email)
	return nil
}

func (h *Handler) HandleNotificationEmail(ctx context.Context, t *asynq.Task) error {
	var payload NotificationEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	var user models.User
	if err := h.db.WithContext(ctx).First(&user, "id = ?", payload.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			h.logger.Warn("user gone before notification email", "user_id", payload.UserID)
			return nil
		}
		return err
	}

	message := payload.Message
	if payload.OrganizationID != nil {
		var org models.Organization
		if err := h.db.WithContext(ctx).First(&org, "id = ?", *payload.OrganizationID).Error; err == nil {
			message = fmt.Sprintf("Organization: %s\n\n%s", org.Name, message)
		}
	}

	if err := h.mail.Send(ctx, payload.Subject, message, []string{user.Email}); err != nil {
		h.logger.Error("sending notification email", "user_id", user.ID, "error", err)
		return err
	}

	h.logger.Info("notification email sent", "user_id", user.ID, "subject", payload.Subject)
	return nil
}

// HandleInvitationSweep garbage-collects unaccepted invitations past their
// expiry.
func (h *Handler) HandleInvitationSweep(ctx context.Context, t *asynq.Task) error {
	res := h.db.WithContext(ctx).
		Where("is_accepted = ? AND expires_at < ?", false, time.Now()).
		Delete(&models.OrganizationInvitation{})
	if res.Error != nil {
		return res.Error
	}

	h.logger.Info("expired invitations swept", "deleted", res.RowsAffected)
	return nil
}

// HandleTenantProvision marks a registered tenant as provisioned. Schema
// DDL runs through the migration tooling, not here; this records the
// transition once it has happened.
func (h *Handler) HandleTenantProvision(ctx context.Context, t *asynq.Task) error {
	var payload TenantProvisionPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	var site models.Site
	if err := h.db.WithContext(ctx).First(&site, "id = ?", payload.SiteID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			h.logger.Warn("site gone before provisioning", "site_id", payload.SiteID)
			return nil
		}
		return err
	}
	if site.Provisioned {
		return nil
	}

	now := time.Now()
	err := h.db.WithContext(ctx).
		Model(&models.Site{}).
		Where("id = ?", site.ID).
		Updates(map[string]interface{}{"provisioned": true, "provisioned_at": now}).Error
	if err != nil {
		return err
	}

	h.logger.Info("tenant provisioned", "site_id", site.ID, "schema", site.SchemaName)
	return nil
}
