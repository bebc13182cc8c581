package tenants_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/hugh/taruvi/internal/audit"
	"github.com/hugh/taruvi/internal/database/models"
	"github.com/hugh/taruvi/internal/tenants"
	"github.com/hugh/taruvi/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type recordingEnqueuer struct {
	tasks []*asynq.Task
}

func (r *recordingEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	r.tasks = append(r.tasks, task)
	return &asynq.TaskInfo{ID: uuid.New().String(), Type: task.Type()}, nil
}

func setupTenants(t *testing.T) (*gorm.DB, *tenants.Service, *recordingEnqueuer) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })

	queue := &recordingEnqueuer{}
	svc := tenants.NewService(db, audit.NewRecorder(db), queue, testutil.SilentLogger())
	return db, svc, queue
}

func TestRegisterTenant(t *testing.T) {
	_, svc, queue := setupTenants(t)
	ctx := context.Background()
	actor := uuid.New()

	site, err := svc.RegisterTenant(ctx, actor, "acme_prod", "Acme Production", "")
	require.NoError(t, err)
	assert.Equal(t, "acme_prod", site.SchemaName)
	assert.False(t, site.Provisioned)

	// Provisioning handed to the worker
	require.Len(t, queue.tasks, 1)
	assert.Equal(t, "tenant:provision", queue.tasks[0].Type())

	_, err = svc.RegisterTenant(ctx, actor, "acme_prod", "Duplicate", "")
	assert.ErrorIs(t, err, tenants.ErrDuplicateSchema)
}

func TestRegisterTenant_InvalidSchemaName(t *testing.T) {
	_, svc, _ := setupTenants(t)
	ctx := context.Background()
	actor := uuid.New()

	for _, name := range []string{"", "9starts-with-digit", "Has-Upper", "has-dash", "pg catalog"} {
		_, err := svc.RegisterTenant(ctx, actor, name, "Bad", "")
		assert.ErrorIs(t, err, tenants.ErrInvalidSchema, "schema %q", name)
	}
}

func TestRegisterDomain(t *testing.T) {
	_, svc, _ := setupTenants(t)
	ctx := context.Background()
	actor := uuid.New()

	site, err := svc.RegisterTenant(ctx, actor, "acme", "Acme", "")
	require.NoError(t, err)

	d, err := svc.RegisterDomain(ctx, actor, site.ID, "acme.example.com", true)
	require.NoError(t, err)
	assert.True(t, d.IsPrimary)

	// Domains are globally unique, even across tenants
	other, err := svc.RegisterTenant(ctx, actor, "other", "Other", "")
	require.NoError(t, err)
	_, err = svc.RegisterDomain(ctx, actor, other.ID, "acme.example.com", false)
	assert.ErrorIs(t, err, tenants.ErrDuplicateDomain)
}

func TestRegisterDomain_PrimarySwitch(t *testing.T) {
	db, svc, _ := setupTenants(t)
	ctx := context.Background()
	actor := uuid.New()

	site, err := svc.RegisterTenant(ctx, actor, "acme", "Acme", "")
	require.NoError(t, err)

	_, err = svc.RegisterDomain(ctx, actor, site.ID, "old.example.com", true)
	require.NoError(t, err)
	_, err = svc.RegisterDomain(ctx, actor, site.ID, "new.example.com", true)
	require.NoError(t, err)

	// The newest primary wins; exactly one row carries the flag
	var primaries int64
	db.Model(&models.Domain{}).Where("site_id = ? AND is_primary = ?", site.ID, true).Count(&primaries)
	assert.Equal(t, int64(1), primaries)

	primary, err := svc.PrimaryDomain(ctx, site.ID)
	require.NoError(t, err)
	assert.Equal(t, "new.example.com", primary.Domain)
}

func TestPrimaryDomain_NoneMarked(t *testing.T) {
	_, svc, _ := setupTenants(t)
	ctx := context.Background()
	actor := uuid.New()

	site, err := svc.RegisterTenant(ctx, actor, "acme", "Acme", "")
	require.NoError(t, err)
	_, err = svc.RegisterDomain(ctx, actor, site.ID, "acme.example.com", false)
	require.NoError(t, err)

	_, err = svc.PrimaryDomain(ctx, site.ID)
	assert.ErrorIs(t, err, tenants.ErrNotFound)
}

func TestMarkProvisioned_Idempotent(t *testing.T) {
	db, svc, _ := setupTenants(t)
	ctx := context.Background()
	actor := uuid.New()

	site, err := svc.RegisterTenant(ctx, actor, "acme", "Acme", "")
	require.NoError(t, err)

	require.NoError(t, svc.MarkProvisioned(ctx, site.ID))

	var stored models.Site
	require.NoError(t, db.First(&stored, "id = ?", site.ID).Error)
	assert.True(t, stored.Provisioned)
	require.NotNil(t, stored.ProvisionedAt)
	first := *stored.ProvisionedAt

	// A second call leaves the original timestamp alone
	require.NoError(t, svc.MarkProvisioned(ctx, site.ID))
	require.NoError(t, db.First(&stored, "id = ?", site.ID).Error)
	assert.Equal(t, first, *stored.ProvisionedAt)
}

func TestListTenants_Paged(t *testing.T) {
	_, svc, _ := setupTenants(t)
	ctx := context.Background()
	actor := uuid.New()

	for _, name := range []string{"alpha", "bravo", "charlie"} {
		_, err := svc.RegisterTenant(ctx, actor, name, name, "")
		require.NoError(t, err)
	}

	page, total, err := svc.ListTenants(ctx, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, page, 2)
	assert.Equal(t, "alpha", page[0].SchemaName)
	assert.Equal(t, "bravo", page[1].SchemaName)

	page, total, err = svc.ListTenants(ctx, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, page, 1)
	assert.Equal(t, "charlie", page[0].SchemaName)
}

func TestGetTenant_NotFound(t *testing.T) {
	_, svc, _ := setupTenants(t)

	_, err := svc.GetTenant(context.Background(), uuid.New())
	assert.ErrorIs(t, err, tenants.ErrNotFound)
}
