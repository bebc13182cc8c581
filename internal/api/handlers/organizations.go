package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hugh/taruvi/internal/api/dto"
	"github.com/hugh/taruvi/internal/api/middleware"
	"github.com/hugh/taruvi/internal/api/validation"
	"github.com/hugh/taruvi/internal/database/models"
	"github.com/hugh/taruvi/internal/orgs"
	"gorm.io/gorm"
)

type OrganizationHandler struct {
	db   *gorm.DB
	orgs *orgs.Service
}

func NewOrganizationHandler(db *gorm.DB, orgService *orgs.Service) *OrganizationHandler {
	return &OrganizationHandler{db: db, orgs: orgService}
}

// resolveOrgSlug maps a URL slug to the organization ID. Authorization
// stays with the service operations; resolution alone reveals nothing
// beyond slug existence.
func resolveOrgSlug(db *gorm.DB, r *http.Request) (uuid.UUID, error) {
	slug := chi.URLParam(r, "slug")
	var org models.Organization
	if err := db.WithContext(r.Context()).Select("id").Where("slug = ?", slug).First(&org).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return uuid.Nil, orgs.ErrNotFound
		}
		return uuid.Nil, err
	}
	return org.ID, nil
}

// writeOrgError maps lifecycle manager sentinels to HTTP statuses.
func writeOrgError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, orgs.ErrPermissionDenied):
		writeJSON(w, http.StatusForbidden, dto.ErrorResponse{Error: "Permission denied"})
	case errors.Is(err, orgs.ErrNotFound):
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Organization not found"})
	case errors.Is(err, orgs.ErrNotMember):
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Member not found"})
	case errors.Is(err, orgs.ErrSiteNotLinked):
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Site is not linked to this organization"})
	case errors.Is(err, orgs.ErrAlreadyMember):
		writeJSON(w, http.StatusConflict, dto.ErrorResponse{Error: "User is already a member"})
	case errors.Is(err, orgs.ErrDuplicateSite):
		writeJSON(w, http.StatusConflict, dto.ErrorResponse{Error: "Site is already linked"})
	case errors.Is(err, orgs.ErrQuotaExceeded):
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Organization quota exceeded"})
	case errors.Is(err, orgs.ErrLastOwner):
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Organization must keep at least one owner"})
	case errors.Is(err, orgs.ErrInvalidRole):
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid role"})
	default:
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Internal server error"})
	}
}

type CreateOrganizationRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Website     string `json:"website,omitempty"`
	Email       string `json:"email,omitempty"`
	Plan        string `json:"plan,omitempty"`
	MaxSites    int    `json:"max_sites,omitempty"`
	MaxMembers  int    `json:"max_members,omitempty"`
}

func (r CreateOrganizationRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if r.Name == "" {
		errors["name"] = "Name is required"
	}
	if r.Email != "" && !validation.IsValidEmail(r.Email) {
		errors["email"] = "Invalid email format"
	}
	return errors
}

// Create handles POST /api/v1/organizations
func (h *OrganizationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateOrganizationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errs})
		return
	}

	actorID := middleware.GetUserID(r.Context())
	org, err := h.orgs.CreateOrganization(r.Context(), actorID, orgs.CreateOrganizationInput{
		Name:        req.Name,
		Description: req.Description,
		Website:     req.Website,
		Email:       req.Email,
		Plan:        req.Plan,
		MaxSites:    req.MaxSites,
		MaxMembers:  req.MaxMembers,
	})
	if err != nil {
		writeOrgError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, org)
}

// List handles GET /api/v1/organizations
func (h *OrganizationHandler) List(w http.ResponseWriter, r *http.Request) {
	actorID := middleware.GetUserID(r.Context())
	orgList, err := h.orgs.ListOrganizations(r.Context(), actorID)
	if err != nil {
		writeOrgError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orgList)
}

// Get handles GET /api/v1/organizations/{slug}
func (h *OrganizationHandler) Get(w http.ResponseWriter, r *http.Request) {
	actorID := middleware.GetUserID(r.Context())
	org, err := h.orgs.GetOrganization(r.Context(), actorID, chi.URLParam(r, "slug"))
	if err != nil {
		writeOrgError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, org)
}

type MemberResponse struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	Email      string     `json:"email,omitempty"`
	Name       string     `json:"name,omitempty"`
	Role       string     `json:"role"`
	Title      string     `json:"title,omitempty"`
	Department string     `json:"department,omitempty"`
	JoinedAt   time.Time  `json:"joined_at"`
	LastActive *time.Time `json:"last_active,omitempty"`
}

func memberToResponse(m *models.OrganizationMember) MemberResponse {
	resp := MemberResponse{
		ID:         m.ID.String(),
		UserID:     m.UserID.String(),
		Role:       m.Role,
		Title:      m.Title,
		Department: m.Department,
		JoinedAt:   m.JoinedAt,
		LastActive: m.LastActive,
	}
	if m.User != nil {
		resp.Email = m.User.Email
		resp.Name = m.User.Name
	}
	return resp
}

// ListMembers handles GET /api/v1/organizations/{slug}/members
func (h *OrganizationHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	orgID, err := resolveOrgSlug(h.db, r)
	if err != nil {
		writeOrgError(w, err)
		return
	}

	actorID := middleware.GetUserID(r.Context())
	members, err := h.orgs.ListMembers(r.Context(), actorID, orgID)
	if err != nil {
		writeOrgError(w, err)
		return
	}

	resp := make([]MemberResponse, 0, len(members))
	for i := range members {
		resp = append(resp, memberToResponse(&members[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

type AddMemberRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role,omitempty"`
}

// AddMember handles POST /api/v1/organizations/{slug}/members
func (h *OrganizationHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	var req AddMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid user ID"})
		return
	}

	orgID, err := resolveOrgSlug(h.db, r)
	if err != nil {
		writeOrgError(w, err)
		return
	}

	actorID := middleware.GetUserID(r.Context())
	member, err := h.orgs.AddMember(r.Context(), actorID, orgID, userID, req.Role)
	if err != nil {
		writeOrgError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, memberToResponse(member))
}

type ChangeRoleRequest struct {
	Role string `json:"role"`
}

// ChangeRole handles PUT /api/v1/organizations/{slug}/members/{userID}/role
func (h *OrganizationHandler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	var req ChangeRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid user ID"})
		return
	}

	orgID, err := resolveOrgSlug(h.db, r)
	if err != nil {
		writeOrgError(w, err)
		return
	}

	actorID := middleware.GetUserID(r.Context())
	member, err := h.orgs.ChangeRole(r.Context(), actorID, orgID, userID, req.Role)
	if err != nil {
		writeOrgError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, memberToResponse(member))
}

// RemoveMember handles DELETE /api/v1/organizations/{slug}/members/{userID}
func (h *OrganizationHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid user ID"})
		return
	}

	orgID, err := resolveOrgSlug(h.db, r)
	if err != nil {
		writeOrgError(w, err)
		return
	}

	actorID := middleware.GetUserID(r.Context())
	if err := h.orgs.RemoveMember(r.Context(), actorID, orgID, userID); err != nil {
		writeOrgError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Member removed"})
}
