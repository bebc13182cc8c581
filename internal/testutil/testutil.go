package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/taruvi/internal/audit"
	"github.com/hugh/taruvi/internal/auth"
	"github.com/hugh/taruvi/internal/database/models"
	"github.com/hugh/taruvi/internal/orgs"
	"github.com/hugh/taruvi/internal/permissions"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SetupTestDB creates an in-memory SQLite database for testing
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	// A named shared-cache DSN keeps the schema visible across the pool's
	// connections; a plain ":memory:" gives every new connection its own
	// empty database.
	dsn := "file:" + uuid.New().String() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	// Run migrations
	err = db.AutoMigrate(
		&models.User{},
		&models.Organization{},
		&models.OrganizationMember{},
		&models.OrganizationSite{},
		&models.OrganizationInvitation{},
		&models.Site{},
		&models.Domain{},
		&models.ObjectPermission{},
		&models.ChangeRecord{},
	)
	if err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return db
}

// CleanupTestDB closes the test database connection
func CleanupTestDB(t *testing.T, db *gorm.DB) {
	t.Helper()
	sqlDB, err := db.DB()
	if err != nil {
		t.Logf("warning: failed to get sql.DB: %v", err)
		return
	}
	sqlDB.Close()
}

// SilentLogger returns a logger that discards output
func SilentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// NewOrgService wires a lifecycle manager against the test database
func NewOrgService(db *gorm.DB) *orgs.Service {
	return orgs.NewService(db, permissions.NewStore(db), audit.NewRecorder(db), SilentLogger())
}

// CreateTestUser creates a test user with a unique email
func CreateTestUser(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()

	hash, err := auth.HashPassword("testpassword123")
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	user := &models.User{
		Base: models.Base{
			ID: uuid.New(),
		},
		Email:        "test-" + uuid.New().String()[:8] + "@example.com",
		PasswordHash: hash,
		Name:         "Test User",
		IsActive:     true,
	}

	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}

	return user
}

// CreateTestOrg creates an organization owned by the given user, going
// through the lifecycle manager so role grants are in place
func CreateTestOrg(t *testing.T, svc *orgs.Service, ownerID uuid.UUID) *models.Organization {
	t.Helper()

	org, err := svc.CreateOrganization(context.Background(), ownerID, orgs.CreateOrganizationInput{
		Name: "Test Organization " + uuid.New().String()[:8],
	})
	if err != nil {
		t.Fatalf("failed to create test organization: %v", err)
	}

	return org
}

// CreateTestSite creates a tenant site row directly
func CreateTestSite(t *testing.T, db *gorm.DB) *models.Site {
	t.Helper()

	site := &models.Site{
		Base: models.Base{
			ID: uuid.New(),
		},
		SchemaName: "tenant_" + uuid.New().String()[:8],
		Name:       "Test Site",
		IsActive:   true,
	}

	if err := db.Create(site).Error; err != nil {
		t.Fatalf("failed to create test site: %v", err)
	}

	return site
}

// CreateTestJWTService creates a JWT service for testing
func CreateTestJWTService() *auth.JWTService {
	return auth.NewJWTService("test-secret-key-for-testing", 24*time.Hour)
}

// GenerateTestToken generates a valid JWT token for the given user
func GenerateTestToken(t *testing.T, jwtService *auth.JWTService, user *models.User) string {
	t.Helper()

	token, err := jwtService.GenerateToken(user.ID, user.Email)
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}

	return token
}

// AuthenticatedRequest creates an HTTP request with authentication
func AuthenticatedRequest(t *testing.T, method, path string, body interface{}, token string) *http.Request {
	t.Helper()

	var reqBody *bytes.Buffer
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return req
}

// UnauthenticatedRequest creates an HTTP request without authentication
func UnauthenticatedRequest(t *testing.T, method, path string, body interface{}) *http.Request {
	t.Helper()
	return AuthenticatedRequest(t, method, path, body, "")
}

// AssertStatus checks if the response has the expected status code
func AssertStatus(t *testing.T, rr *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if rr.Code != expected {
		t.Errorf("expected status %d, got %d. Body: %s", expected, rr.Code, rr.Body.String())
	}
}

// ParseJSONResponse parses the response body into the given struct
func ParseJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()

	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to parse response body: %v. Body: %s", err, rr.Body.String())
	}
}

// TestContext creates a context with a timeout for tests
func TestContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// TestSetup holds all the common test dependencies
type TestSetup struct {
	DB         *gorm.DB
	Orgs       *orgs.Service
	JWTService *auth.JWTService
	Owner      *models.User
	Org        *models.Organization
	Token      string
}

// NewTestContext creates a complete test setup with DB, owner, org, and token
func NewTestContext(t *testing.T) *TestSetup {
	t.Helper()

	db := SetupTestDB(t)
	svc := NewOrgService(db)
	jwtService := CreateTestJWTService()
	owner := CreateTestUser(t, db)
	org := CreateTestOrg(t, svc, owner.ID)
	token := GenerateTestToken(t, jwtService, owner)

	return &TestSetup{
		DB:         db,
		Orgs:       svc,
		JWTService: jwtService,
		Owner:      owner,
		Org:        org,
		Token:      token,
	}
}

// Cleanup closes the test database
func (ts *TestSetup) Cleanup() {
	if ts.DB != nil {
		sqlDB, err := ts.DB.DB()
		if err == nil {
			sqlDB.Close()
		}
	}
}
