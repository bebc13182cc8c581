package tasks_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/taruvi/internal/database/models"
	"github.com/hugh/taruvi/internal/tasks"
	"github.com/hugh/taruvi/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type sentMail struct {
	subject    string
	body       string
	recipients []string
}

type recordingMailer struct {
	sent []sentMail
}

func (m *recordingMailer) Send(ctx context.Context, subject, body string, recipients []string) error {
	m.sent = append(m.sent, sentMail{subject: subject, body: body, recipients: recipients})
	return nil
}

func setupHandler(t *testing.T) (*gorm.DB, *tasks.Handler, *recordingMailer) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })

	mail := &recordingMailer{}
	h := tasks.NewHandler(db, mail, "https://app.example.com", testutil.SilentLogger())
	return db, h, mail
}

func createOrg(t *testing.T, db *gorm.DB, name, slug string) *models.Organization {
	t.Helper()
	org := &models.Organization{Name: name, Slug: slug}
	require.NoError(t, db.Create(org).Error)
	return org
}

func TestHandleInvitationEmail(t *testing.T) {
	db, h, mail := setupHandler(t)
	ctx := context.Background()

	org := createOrg(t, db, "Acme Corp", "acme-corp")
	inv := &models.OrganizationInvitation{
		OrganizationID: org.ID,
		InvitedByID:    uuid.New(),
		Email:          "newhire@example.com",
		Role:           models.RoleMember,
		Token:          "tok-123",
		Message:        "Looking forward to working with you.",
		ExpiresAt:      time.Now().Add(24 * time.Hour),
	}
	require.NoError(t, db.Create(inv).Error)

	task, err := tasks.NewInvitationEmailTask(tasks.InvitationEmailPayload{InvitationID: inv.ID})
	require.NoError(t, err)
	require.NoError(t, h.HandleInvitationEmail(ctx, task))

	require.Len(t, mail.sent, 1)
	sent := mail.sent[0]
	assert.Equal(t, []string{"newhire@example.com"}, sent.recipients)
	assert.Contains(t, sent.subject, "Acme Corp")
	assert.Contains(t, sent.body, "https://app.example.com/accept-invitation/tok-123")
	assert.Contains(t, sent.body, "Looking forward to working with you.")
}

func TestHandleInvitationEmail_GoneOrInvalid(t *testing.T) {
	db, h, mail := setupHandler(t)
	ctx := context.Background()

	// Deleted before delivery: succeed without sending so asynq does not
	// retry forever.
	task, err := tasks.NewInvitationEmailTask(tasks.InvitationEmailPayload{InvitationID: uuid.New()})
	require.NoError(t, err)
	require.NoError(t, h.HandleInvitationEmail(ctx, task))
	assert.Empty(t, mail.sent)

	// Expired before delivery: same.
	org := createOrg(t, db, "Acme", "acme")
	inv := &models.OrganizationInvitation{
		OrganizationID: org.ID,
		InvitedByID:    uuid.New(),
		Email:          "late@example.com",
		Role:           models.RoleMember,
		Token:          "tok-expired",
		ExpiresAt:      time.Now().Add(-time.Hour),
	}
	require.NoError(t, db.Create(inv).Error)

	task, err = tasks.NewInvitationEmailTask(tasks.InvitationEmailPayload{InvitationID: inv.ID})
	require.NoError(t, err)
	require.NoError(t, h.HandleInvitationEmail(ctx, task))
	assert.Empty(t, mail.sent)
}

func TestHandleWelcomeEmail(t *testing.T) {
	db, h, mail := setupHandler(t)
	ctx := context.Background()

	user := testutil.CreateTestUser(t, db)
	org := createOrg(t, db, "Acme Corp", "acme-corp")
	member := &models.OrganizationMember{
		OrganizationID: org.ID,
		UserID:         user.ID,
		Role:           models.RoleMember,
		IsActive:       true,
	}
	require.NoError(t, db.Create(member).Error)

	task, err := tasks.NewWelcomeEmailTask(tasks.WelcomeEmailPayload{MemberID: member.ID})
	require.NoError(t, err)
	require.NoError(t, h.HandleWelcomeEmail(ctx, task))

	require.Len(t, mail.sent, 1)
	assert.Equal(t, []string{user.Email}, mail.sent[0].recipients)
	assert.Contains(t, mail.sent[0].subject, "Acme Corp")
	assert.Contains(t, mail.sent[0].body, user.Name)
}

func TestHandleNotificationEmail(t *testing.T) {
	db, h, mail := setupHandler(t)
	ctx := context.Background()

	user := testutil.CreateTestUser(t, db)
	org := createOrg(t, db, "Acme Corp", "acme-corp")

	task, err := tasks.NewNotificationEmailTask(tasks.NotificationEmailPayload{
		UserID:         user.ID,
		Subject:        "Role changed",
		Message:        "You are now an owner.",
		OrganizationID: &org.ID,
	})
	require.NoError(t, err)
	require.NoError(t, h.HandleNotificationEmail(ctx, task))

	require.Len(t, mail.sent, 1)
	assert.Equal(t, "Role changed", mail.sent[0].subject)
	assert.Contains(t, mail.sent[0].body, "Organization: Acme Corp")
	assert.Contains(t, mail.sent[0].body, "You are now an owner.")
}

func TestHandleInvitationSweep(t *testing.T) {
	db, h, _ := setupHandler(t)
	ctx := context.Background()

	org := createOrg(t, db, "Acme", "acme")
	now := time.Now()
	acceptedAt := now.Add(-48 * time.Hour)
	rows := []*models.OrganizationInvitation{
		{OrganizationID: org.ID, InvitedByID: uuid.New(), Email: "stale@example.com", Token: "t1", ExpiresAt: now.Add(-time.Hour)},
		{OrganizationID: org.ID, InvitedByID: uuid.New(), Email: "fresh@example.com", Token: "t2", ExpiresAt: now.Add(time.Hour)},
		{OrganizationID: org.ID, InvitedByID: uuid.New(), Email: "done@example.com", Token: "t3", ExpiresAt: now.Add(-time.Hour), IsAccepted: true, AcceptedAt: &acceptedAt},
	}
	for _, r := range rows {
		require.NoError(t, db.Create(r).Error)
	}

	require.NoError(t, h.HandleInvitationSweep(ctx, tasks.NewInvitationSweepTask()))

	var remaining []models.OrganizationInvitation
	require.NoError(t, db.Order("email").Find(&remaining).Error)
	require.Len(t, remaining, 2)
	// Accepted rows survive the sweep as history; only pending-expired go.
	assert.Equal(t, "done@example.com", remaining[0].Email)
	assert.Equal(t, "fresh@example.com", remaining[1].Email)
}

func TestHandleTenantProvision(t *testing.T) {
	db, h, _ := setupHandler(t)
	ctx := context.Background()

	site := &models.Site{SchemaName: "acme_prod", Name: "Acme", IsActive: true}
	require.NoError(t, db.Create(site).Error)

	task, err := tasks.NewTenantProvisionTask(tasks.TenantProvisionPayload{SiteID: site.ID})
	require.NoError(t, err)
	require.NoError(t, h.HandleTenantProvision(ctx, task))

	var stored models.Site
	require.NoError(t, db.First(&stored, "id = ?", site.ID).Error)
	assert.True(t, stored.Provisioned)
	require.NotNil(t, stored.ProvisionedAt)
	first := *stored.ProvisionedAt

	// Redelivery is a no-op.
	require.NoError(t, h.HandleTenantProvision(ctx, task))
	require.NoError(t, db.First(&stored, "id = ?", site.ID).Error)
	assert.Equal(t, first, *stored.ProvisionedAt)

	// Unknown site: done, not retried.
	task, err = tasks.NewTenantProvisionTask(tasks.TenantProvisionPayload{SiteID: uuid.New()})
	require.NoError(t, err)
	require.NoError(t, h.HandleTenantProvision(ctx, task))
}
