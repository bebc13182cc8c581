package tasks

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Task type names
const (
	TypeInvitationEmail   = "email:invitation"
	TypeWelcomeEmail      = "email:welcome"
	TypeNotificationEmail = "email:notification"
	TypeInvitationSweep   = "invitations:sweep"
	TypeTenantProvision   = "tenant:provision"
)

// InvitationEmailPayload identifies the invitation whose email to send.
// The handler re-reads and revalidates the invitation at delivery time, so
// the payload carries only the ID.
type InvitationEmailPayload struct {
	InvitationID uuid.UUID `json:"invitation_id"`
}

func NewInvitationEmailTask(payload InvitationEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeInvitationEmail, data), nil
}

// WelcomeEmailPayload identifies the new member to welcome.
type WelcomeEmailPayload struct {
	MemberID uuid.UUID `json:"member_id"`
}

func NewWelcomeEmailTask(payload WelcomeEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeWelcomeEmail, data), nil
}

// NotificationEmailPayload carries an ad hoc notification for one user,
// optionally prefixed with organization context.
type NotificationEmailPayload struct {
	UserID         uuid.UUID  `json:"user_id"`
	Subject        string     `json:"subject"`
	Message        string     `json:"message"`
	OrganizationID *uuid.UUID `json:"organization_id,omitempty"`
}

func NewNotificationEmailTask(payload NotificationEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeNotificationEmail, data), nil
}

// InvitationSweepPayload is empty - the sweep covers all organizations.
type InvitationSweepPayload struct{}

func NewInvitationSweepTask() *asynq.Task {
	return asynq.NewTask(TypeInvitationSweep, nil)
}

// TenantProvisionPayload identifies the tenant whose schema to provision.
type TenantProvisionPayload struct {
	SiteID uuid.UUID `json:"site_id"`
}

func NewTenantProvisionTask(payload TenantProvisionPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeTenantProvision, data), nil
}
