package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hugh/taruvi/internal/api/dto"
	"github.com/hugh/taruvi/internal/api/middleware"
	"github.com/hugh/taruvi/internal/database/models"
	"github.com/hugh/taruvi/internal/orgs"
	"gorm.io/gorm"
)

type SiteHandler struct {
	db   *gorm.DB
	orgs *orgs.Service
}

func NewSiteHandler(db *gorm.DB, orgService *orgs.Service) *SiteHandler {
	return &SiteHandler{db: db, orgs: orgService}
}

type SiteLinkResponse struct {
	ID         string `json:"id"`
	SiteID     string `json:"site_id"`
	SchemaName string `json:"schema_name,omitempty"`
	SiteName   string `json:"site_name,omitempty"`
	IsPrimary  bool   `json:"is_primary"`
	SiteRole   string `json:"site_role"`
}

func siteLinkToResponse(link *models.OrganizationSite) SiteLinkResponse {
	resp := SiteLinkResponse{
		ID:        link.ID.String(),
		SiteID:    link.SiteID.String(),
		IsPrimary: link.IsPrimary,
		SiteRole:  link.SiteRole,
	}
	if link.Site != nil {
		resp.SchemaName = link.Site.SchemaName
		resp.SiteName = link.Site.Name
	}
	return resp
}

// List handles GET /api/v1/organizations/{slug}/sites
func (h *SiteHandler) List(w http.ResponseWriter, r *http.Request) {
	orgID, err := resolveOrgSlug(h.db, r)
	if err != nil {
		writeOrgError(w, err)
		return
	}

	actorID := middleware.GetUserID(r.Context())
	links, err := h.orgs.ListSites(r.Context(), actorID, orgID)
	if err != nil {
		writeOrgError(w, err)
		return
	}

	resp := make([]SiteLinkResponse, 0, len(links))
	for i := range links {
		resp = append(resp, siteLinkToResponse(&links[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

type AddSiteRequest struct {
	SiteID   string `json:"site_id"`
	SiteRole string `json:"site_role,omitempty"`
}

// Add handles POST /api/v1/organizations/{slug}/sites
func (h *SiteHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req AddSiteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}
	siteID, err := uuid.Parse(req.SiteID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid site ID"})
		return
	}

	orgID, err := resolveOrgSlug(h.db, r)
	if err != nil {
		writeOrgError(w, err)
		return
	}

	actorID := middleware.GetUserID(r.Context())
	link, err := h.orgs.AddSite(r.Context(), actorID, orgID, siteID, req.SiteRole)
	if err != nil {
		writeOrgError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, siteLinkToResponse(link))
}

// SetPrimary handles PUT /api/v1/organizations/{slug}/sites/{siteID}/primary
func (h *SiteHandler) SetPrimary(w http.ResponseWriter, r *http.Request) {
	siteID, err := uuid.Parse(chi.URLParam(r, "siteID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid site ID"})
		return
	}

	orgID, err := resolveOrgSlug(h.db, r)
	if err != nil {
		writeOrgError(w, err)
		return
	}

	actorID := middleware.GetUserID(r.Context())
	link, err := h.orgs.SetPrimarySite(r.Context(), actorID, orgID, siteID)
	if err != nil {
		writeOrgError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, siteLinkToResponse(link))
}

// ListPermissions handles GET /api/v1/organizations/{slug}/sites/{siteID}/permissions
func (h *SiteHandler) ListPermissions(w http.ResponseWriter, r *http.Request) {
	siteID, err := uuid.Parse(chi.URLParam(r, "siteID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid site ID"})
		return
	}

	orgID, err := resolveOrgSlug(h.db, r)
	if err != nil {
		writeOrgError(w, err)
		return
	}

	actorID := middleware.GetUserID(r.Context())
	perms, err := h.orgs.ListSitePermissions(r.Context(), actorID, orgID, siteID)
	if err != nil {
		writeOrgError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, perms)
}

type SiteAccessRequest struct {
	UserID      string   `json:"user_id"`
	Permissions []string `json:"permissions"`
}

// GrantAccess handles POST /api/v1/organizations/{slug}/sites/{siteID}/access
func (h *SiteHandler) GrantAccess(w http.ResponseWriter, r *http.Request) {
	h.changeAccess(w, r, h.orgs.GrantSiteAccess, "granted")
}

// RevokeAccess handles DELETE /api/v1/organizations/{slug}/sites/{siteID}/access
func (h *SiteHandler) RevokeAccess(w http.ResponseWriter, r *http.Request) {
	h.changeAccess(w, r, h.orgs.RevokeSiteAccess, "revoked")
}

type accessFunc func(ctx context.Context, actorID, orgID, userID, siteID uuid.UUID, perms []string) ([]string, error)

func (h *SiteHandler) changeAccess(w http.ResponseWriter, r *http.Request, op accessFunc, verb string) {
	var req SiteAccessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid user ID"})
		return
	}
	siteID, err := uuid.Parse(chi.URLParam(r, "siteID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid site ID"})
		return
	}

	orgID, err := resolveOrgSlug(h.db, r)
	if err != nil {
		writeOrgError(w, err)
		return
	}

	actorID := middleware.GetUserID(r.Context())
	applied, err := op(r.Context(), actorID, orgID, userID, siteID, req.Permissions)
	if err != nil {
		writeOrgError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		verb: applied,
	})
}
