package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/hugh/taruvi/internal/api/dto"
	"github.com/hugh/taruvi/internal/api/middleware"
	"github.com/hugh/taruvi/internal/database/models"
	"github.com/hugh/taruvi/internal/permissions"
	"gorm.io/gorm"
)

type PermissionHandler struct {
	db    *gorm.DB
	perms *permissions.Store
}

func NewPermissionHandler(db *gorm.DB, perms *permissions.Store) *PermissionHandler {
	return &PermissionHandler{db: db, perms: perms}
}

type PermissionCheckResponse struct {
	Permission   string `json:"permission"`
	ResourceType string `json:"resource_type"`
	ResourceID   string `json:"resource_id"`
	Allowed      bool   `json:"allowed"`
}

// Check handles GET /api/v1/permissions/check?permission=...&resource_type=...&resource_id=...
// It answers for the calling user only.
func (h *PermissionHandler) Check(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	permission := q.Get("permission")
	resourceType := q.Get("resource_type")
	resourceID, err := uuid.Parse(q.Get("resource_id"))
	if permission == "" || resourceType == "" || err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "permission, resource_type and a valid resource_id are required"})
		return
	}
	if resourceType != models.ResourceOrganization && resourceType != models.ResourceSite {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Unknown resource type"})
		return
	}

	userID := middleware.GetUserID(r.Context())
	allowed, err := h.perms.Check(r.Context(), userID, permission, resourceType, resourceID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, PermissionCheckResponse{
		Permission:   permission,
		ResourceType: resourceType,
		ResourceID:   resourceID.String(),
		Allowed:      allowed,
	})
}

type SitePermissionEntry struct {
	SiteID      string   `json:"site_id"`
	Permissions []string `json:"permissions"`
}

// MySitePermissions handles GET /api/v1/sites/permissions and lists every
// site-scoped permission the calling user holds, grouped by site.
func (h *PermissionHandler) MySitePermissions(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var rows []models.ObjectPermission
	err := h.db.WithContext(r.Context()).
		Where("user_id = ? AND resource_type = ?", userID, models.ResourceSite).
		Order("resource_id, permission").
		Find(&rows).Error
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Internal server error"})
		return
	}

	entries := make([]SitePermissionEntry, 0)
	for _, row := range rows {
		if n := len(entries); n > 0 && entries[n-1].SiteID == row.ResourceID.String() {
			entries[n-1].Permissions = append(entries[n-1].Permissions, row.Permission)
			continue
		}
		entries = append(entries, SitePermissionEntry{
			SiteID:      row.ResourceID.String(),
			Permissions: []string{row.Permission},
		})
	}

	writeJSON(w, http.StatusOK, entries)
}
