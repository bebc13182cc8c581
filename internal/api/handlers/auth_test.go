package handlers_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hugh/taruvi/internal/api/dto"
	"github.com/hugh/taruvi/internal/api/handlers"
	"github.com/hugh/taruvi/internal/auth"
	"github.com/hugh/taruvi/internal/testutil"
	"github.com/stretchr/testify/assert"
)

func setupAuthTestRouter(t *testing.T) (*chi.Mux, *testutil.TestSetup) {
	tc := testutil.NewTestContext(t)

	authService := auth.NewService(tc.DB, tc.JWTService, tc.Orgs)
	handler := handlers.NewAuthHandler(authService)

	r := chi.NewRouter()
	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Post("/register", handler.Register)
		r.Post("/login", handler.Login)
		r.Post("/logout", handler.Logout)
	})

	return r, tc
}

func TestAuthHandler_Register(t *testing.T) {
	router, tc := setupAuthTestRouter(t)
	defer tc.Cleanup()

	tests := []struct {
		name       string
		body       map[string]interface{}
		wantStatus int
	}{
		{
			name: "register new user",
			body: map[string]interface{}{
				"email":    "jordan@example.com",
				"password": "Password123",
				"name":     "Jordan",
			},
			wantStatus: http.StatusCreated,
		},
		{
			name: "duplicate email",
			body: map[string]interface{}{
				"email":    "jordan@example.com",
				"password": "Password123",
				"name":     "Jordan Again",
			},
			wantStatus: http.StatusConflict,
		},
		{
			name: "missing email",
			body: map[string]interface{}{
				"password": "Password123",
				"name":     "Jordan",
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "weak password",
			body: map[string]interface{}{
				"email":    "weak@example.com",
				"password": "short",
				"name":     "Jordan",
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "missing name",
			body: map[string]interface{}{
				"email":    "noname@example.com",
				"password": "Password123",
			},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := testutil.UnauthenticatedRequest(t, "POST", "/api/v1/auth/register", tt.body)
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code, "Body: %s", rr.Body.String())

			if tt.wantStatus == http.StatusCreated {
				var resp dto.AuthResponse
				testutil.ParseJSONResponse(t, rr, &resp)
				assert.NotEmpty(t, resp.Token)
				assert.Equal(t, "jordan@example.com", resp.User.Email)

				// Token also set as an HttpOnly cookie
				cookies := rr.Result().Cookies()
				var found bool
				for _, c := range cookies {
					if c.Name == "token" && c.Value != "" {
						found = true
						assert.True(t, c.HttpOnly)
					}
				}
				assert.True(t, found, "token cookie should be set")
			}
		})
	}
}

func TestAuthHandler_Login(t *testing.T) {
	router, tc := setupAuthTestRouter(t)
	defer tc.Cleanup()

	register := map[string]interface{}{
		"email":    "jordan@example.com",
		"password": "Password123",
		"name":     "Jordan",
	}
	req := testutil.UnauthenticatedRequest(t, "POST", "/api/v1/auth/register", register)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	testutil.AssertStatus(t, rr, http.StatusCreated)

	tests := []struct {
		name       string
		body       map[string]interface{}
		wantStatus int
	}{
		{
			name:       "valid credentials",
			body:       map[string]interface{}{"email": "jordan@example.com", "password": "Password123"},
			wantStatus: http.StatusOK,
		},
		{
			name:       "wrong password",
			body:       map[string]interface{}{"email": "jordan@example.com", "password": "Wrong12345"},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "unknown email",
			body:       map[string]interface{}{"email": "nobody@example.com", "password": "Password123"},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "missing password",
			body:       map[string]interface{}{"email": "jordan@example.com"},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := testutil.UnauthenticatedRequest(t, "POST", "/api/v1/auth/login", tt.body)
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code, "Body: %s", rr.Body.String())
		})
	}
}

func TestAuthHandler_Logout(t *testing.T) {
	router, tc := setupAuthTestRouter(t)
	defer tc.Cleanup()

	req := testutil.UnauthenticatedRequest(t, "POST", "/api/v1/auth/logout", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	testutil.AssertStatus(t, rr, http.StatusOK)

	// Cookie cleared
	var cleared bool
	for _, c := range rr.Result().Cookies() {
		if c.Name == "token" && c.MaxAge < 0 {
			cleared = true
		}
	}
	assert.True(t, cleared, "token cookie should be expired")
}
