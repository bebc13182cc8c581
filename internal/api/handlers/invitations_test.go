package handlers_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hugh/taruvi/internal/api/handlers"
	"github.com/hugh/taruvi/internal/api/middleware"
	"github.com/hugh/taruvi/internal/audit"
	"github.com/hugh/taruvi/internal/database/models"
	"github.com/hugh/taruvi/internal/invitations"
	"github.com/hugh/taruvi/internal/permissions"
	"github.com/hugh/taruvi/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupInvitationTestRouter(t *testing.T) (*chi.Mux, *testutil.TestSetup) {
	tc := testutil.NewTestContext(t)

	// Nil queue: handlers tolerate undelivered email.
	invService := invitations.NewService(
		tc.DB,
		permissions.NewStore(tc.DB),
		audit.NewRecorder(tc.DB),
		nil,
		7*24*time.Hour,
		testutil.SilentLogger(),
	)

	r := chi.NewRouter()
	r.Use(middleware.Auth(tc.JWTService))

	handler := handlers.NewInvitationHandler(tc.DB, invService)
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/organizations/{slug}/invitations", func(r chi.Router) {
			r.Get("/", handler.List)
			r.Post("/", handler.Create)
		})
		r.Route("/invitations", func(r chi.Router) {
			r.Post("/accept", handler.Accept)
			r.Post("/{id}/resend", handler.Resend)
			r.Delete("/{id}", handler.Cancel)
		})
	})

	return r, tc
}

func TestInvitationHandler_Create(t *testing.T) {
	router, tc := setupInvitationTestRouter(t)
	defer tc.Cleanup()

	base := "/api/v1/organizations/" + tc.Org.Slug + "/invitations"

	tests := []struct {
		name       string
		body       map[string]interface{}
		wantStatus int
	}{
		{
			name:       "create invitation",
			body:       map[string]interface{}{"email": "newhire@example.com"},
			wantStatus: http.StatusCreated,
		},
		{
			name:       "duplicate pending invitation",
			body:       map[string]interface{}{"email": "newhire@example.com"},
			wantStatus: http.StatusConflict,
		},
		{
			name:       "missing email",
			body:       map[string]interface{}{"role": "member"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "invalid email",
			body:       map[string]interface{}{"email": "not-an-email"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "invalid role",
			body:       map[string]interface{}{"email": "other@example.com", "role": "superuser"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "email of active member",
			body:       map[string]interface{}{"email": tc.Owner.Email},
			wantStatus: http.StatusConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := testutil.AuthenticatedRequest(t, "POST", base, tt.body, tc.Token)
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code, "Body: %s", rr.Body.String())

			if tt.wantStatus == http.StatusCreated {
				var resp handlers.InvitationResponse
				testutil.ParseJSONResponse(t, rr, &resp)
				assert.Equal(t, "newhire@example.com", resp.Email)
				assert.False(t, resp.IsAccepted)
			}
		})
	}
}

func TestInvitationHandler_List(t *testing.T) {
	router, tc := setupInvitationTestRouter(t)
	defer tc.Cleanup()

	base := "/api/v1/organizations/" + tc.Org.Slug + "/invitations"

	body := map[string]interface{}{"email": "a@example.com"}
	req := testutil.AuthenticatedRequest(t, "POST", base, body, tc.Token)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	testutil.AssertStatus(t, rr, http.StatusCreated)

	req = testutil.AuthenticatedRequest(t, "GET", base, nil, tc.Token)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	testutil.AssertStatus(t, rr, http.StatusOK)

	var list []handlers.InvitationResponse
	testutil.ParseJSONResponse(t, rr, &list)
	require.Len(t, list, 1)
	assert.Equal(t, "a@example.com", list[0].Email)

	// Plain members cannot read the invitation list
	member := testutil.CreateTestUser(t, tc.DB)
	_, err := tc.Orgs.AddMember(testutil.TestContext(t), tc.Owner.ID, tc.Org.ID, member.ID, models.RoleMember)
	require.NoError(t, err)
	memberToken := testutil.GenerateTestToken(t, tc.JWTService, member)

	req = testutil.AuthenticatedRequest(t, "GET", base, nil, memberToken)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	testutil.AssertStatus(t, rr, http.StatusForbidden)
}

func TestInvitationHandler_AcceptFlow(t *testing.T) {
	router, tc := setupInvitationTestRouter(t)
	defer tc.Cleanup()

	invitee := testutil.CreateTestUser(t, tc.DB)
	inviteeToken := testutil.GenerateTestToken(t, tc.JWTService, invitee)

	base := "/api/v1/organizations/" + tc.Org.Slug + "/invitations"
	body := map[string]interface{}{"email": invitee.Email}
	req := testutil.AuthenticatedRequest(t, "POST", base, body, tc.Token)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	testutil.AssertStatus(t, rr, http.StatusCreated)

	var created handlers.InvitationResponse
	testutil.ParseJSONResponse(t, rr, &created)

	// The response never carries the token; read it from the store like
	// the email link would.
	var inv models.OrganizationInvitation
	require.NoError(t, tc.DB.First(&inv, "id = ?", created.ID).Error)

	t.Run("wrong user cannot accept", func(t *testing.T) {
		stranger := testutil.CreateTestUser(t, tc.DB)
		strangerToken := testutil.GenerateTestToken(t, tc.JWTService, stranger)

		req := testutil.AuthenticatedRequest(t, "POST", "/api/v1/invitations/accept",
			map[string]interface{}{"token": inv.Token}, strangerToken)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		testutil.AssertStatus(t, rr, http.StatusForbidden)
	})

	t.Run("accept", func(t *testing.T) {
		req := testutil.AuthenticatedRequest(t, "POST", "/api/v1/invitations/accept",
			map[string]interface{}{"token": inv.Token}, inviteeToken)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		testutil.AssertStatus(t, rr, http.StatusOK)

		var member handlers.MemberResponse
		testutil.ParseJSONResponse(t, rr, &member)
		assert.Equal(t, invitee.ID.String(), member.UserID)
		assert.Equal(t, models.RoleMember, member.Role)
	})

	t.Run("token cannot be replayed", func(t *testing.T) {
		req := testutil.AuthenticatedRequest(t, "POST", "/api/v1/invitations/accept",
			map[string]interface{}{"token": inv.Token}, inviteeToken)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		testutil.AssertStatus(t, rr, http.StatusBadRequest)
	})

	t.Run("unknown token", func(t *testing.T) {
		req := testutil.AuthenticatedRequest(t, "POST", "/api/v1/invitations/accept",
			map[string]interface{}{"token": "no-such-token"}, inviteeToken)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		testutil.AssertStatus(t, rr, http.StatusNotFound)
	})

	t.Run("missing token", func(t *testing.T) {
		req := testutil.AuthenticatedRequest(t, "POST", "/api/v1/invitations/accept",
			map[string]interface{}{}, inviteeToken)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		testutil.AssertStatus(t, rr, http.StatusBadRequest)
	})
}

func TestInvitationHandler_ResendAndCancel(t *testing.T) {
	router, tc := setupInvitationTestRouter(t)
	defer tc.Cleanup()

	base := "/api/v1/organizations/" + tc.Org.Slug + "/invitations"
	body := map[string]interface{}{"email": "pending@example.com"}
	req := testutil.AuthenticatedRequest(t, "POST", base, body, tc.Token)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	testutil.AssertStatus(t, rr, http.StatusCreated)

	var created handlers.InvitationResponse
	testutil.ParseJSONResponse(t, rr, &created)

	var before models.OrganizationInvitation
	require.NoError(t, tc.DB.First(&before, "id = ?", created.ID).Error)

	t.Run("resend rotates token", func(t *testing.T) {
		req := testutil.AuthenticatedRequest(t, "POST", "/api/v1/invitations/"+created.ID+"/resend", nil, tc.Token)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		testutil.AssertStatus(t, rr, http.StatusOK)

		var after models.OrganizationInvitation
		require.NoError(t, tc.DB.First(&after, "id = ?", created.ID).Error)
		assert.NotEqual(t, before.Token, after.Token)
	})

	t.Run("invalid id", func(t *testing.T) {
		req := testutil.AuthenticatedRequest(t, "POST", "/api/v1/invitations/not-a-uuid/resend", nil, tc.Token)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		testutil.AssertStatus(t, rr, http.StatusBadRequest)
	})

	t.Run("cancel", func(t *testing.T) {
		req := testutil.AuthenticatedRequest(t, "DELETE", "/api/v1/invitations/"+created.ID, nil, tc.Token)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		testutil.AssertStatus(t, rr, http.StatusOK)

		var count int64
		tc.DB.Model(&models.OrganizationInvitation{}).Where("id = ?", created.ID).Count(&count)
		assert.Equal(t, int64(0), count)
	})

	t.Run("cancel gone invitation", func(t *testing.T) {
		req := testutil.AuthenticatedRequest(t, "DELETE", "/api/v1/invitations/"+created.ID, nil, tc.Token)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		testutil.AssertStatus(t, rr, http.StatusNotFound)
	})
}
