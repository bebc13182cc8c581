package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/hugh/taruvi/internal/auth"
	"github.com/hugh/taruvi/internal/database/models"
	"github.com/hugh/taruvi/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupAuth(t *testing.T) (*gorm.DB, *auth.Service) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })

	jwtService := auth.NewJWTService("test-secret", 24*time.Hour)
	svc := auth.NewService(db, jwtService, testutil.NewOrgService(db))
	return db, svc
}

func TestRegister(t *testing.T) {
	db, svc := setupAuth(t)
	ctx := context.Background()

	resp, err := svc.Register(ctx, auth.RegisterInput{
		Email:    "jordan@example.com",
		Password: "Password123",
		Name:     "Jordan",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "jordan@example.com", resp.User.Email)

	// Registration seeds a default organization owned by the new user.
	var member models.OrganizationMember
	require.NoError(t, db.Preload("Organization").
		First(&member, "user_id = ?", resp.User.ID).Error)
	assert.Equal(t, models.RoleOwner, member.Role)
	assert.Equal(t, "Jordan's Team", member.Organization.Name)

	_, err = svc.Register(ctx, auth.RegisterInput{
		Email:    "jordan@example.com",
		Password: "Password123",
		Name:     "Jordan Again",
	})
	assert.ErrorIs(t, err, auth.ErrUserExists)
}

func TestRegister_ExplicitOrgName(t *testing.T) {
	db, svc := setupAuth(t)

	resp, err := svc.Register(context.Background(), auth.RegisterInput{
		Email:    "sam@example.com",
		Password: "Password123",
		Name:     "Sam",
		OrgName:  "Acme Corp",
	})
	require.NoError(t, err)

	var member models.OrganizationMember
	require.NoError(t, db.Preload("Organization").
		First(&member, "user_id = ?", resp.User.ID).Error)
	assert.Equal(t, "Acme Corp", member.Organization.Name)
}

func TestLogin(t *testing.T) {
	_, svc := setupAuth(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, auth.RegisterInput{
		Email:    "jordan@example.com",
		Password: "Password123",
		Name:     "Jordan",
	})
	require.NoError(t, err)

	resp, err := svc.Login(ctx, auth.LoginInput{Email: "jordan@example.com", Password: "Password123"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)

	_, err = svc.Login(ctx, auth.LoginInput{Email: "jordan@example.com", Password: "wrong"})
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	// Unknown emails get the same error as bad passwords.
	_, err = svc.Login(ctx, auth.LoginInput{Email: "nobody@example.com", Password: "Password123"})
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestLogin_InactiveUser(t *testing.T) {
	db, svc := setupAuth(t)
	ctx := context.Background()

	resp, err := svc.Register(ctx, auth.RegisterInput{
		Email:    "jordan@example.com",
		Password: "Password123",
		Name:     "Jordan",
	})
	require.NoError(t, err)

	require.NoError(t, db.Model(&models.User{}).
		Where("id = ?", resp.User.ID).
		Update("is_active", false).Error)

	_, err = svc.Login(ctx, auth.LoginInput{Email: "jordan@example.com", Password: "Password123"})
	assert.ErrorIs(t, err, auth.ErrInactiveUser)
}
