package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hugh/taruvi/internal/api/dto"
	"github.com/hugh/taruvi/internal/api/middleware"
	"github.com/hugh/taruvi/internal/api/validation"
	"github.com/hugh/taruvi/internal/tenants"
)

type TenantHandler struct {
	tenants *tenants.Service
}

func NewTenantHandler(tenantService *tenants.Service) *TenantHandler {
	return &TenantHandler{tenants: tenantService}
}

func writeTenantError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, tenants.ErrNotFound):
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Tenant not found"})
	case errors.Is(err, tenants.ErrDuplicateSchema):
		writeJSON(w, http.StatusConflict, dto.ErrorResponse{Error: "Schema name is already in use"})
	case errors.Is(err, tenants.ErrDuplicateDomain):
		writeJSON(w, http.StatusConflict, dto.ErrorResponse{Error: "Domain is already registered"})
	case errors.Is(err, tenants.ErrInvalidSchema):
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid schema name"})
	default:
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Internal server error"})
	}
}

type RegisterTenantRequest struct {
	SchemaName  string `json:"schema_name"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

func (r RegisterTenantRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if r.SchemaName == "" {
		errors["schema_name"] = "Schema name is required"
	} else if !validation.IsValidSchemaName(r.SchemaName) {
		errors["schema_name"] = "Schema name must be a lowercase identifier"
	}
	if r.Name == "" {
		errors["name"] = "Name is required"
	}
	return errors
}

// Register handles POST /api/v1/tenants
func (h *TenantHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterTenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errs})
		return
	}

	actorID := middleware.GetUserID(r.Context())
	site, err := h.tenants.RegisterTenant(r.Context(), actorID, req.SchemaName, req.Name, req.Description)
	if err != nil {
		writeTenantError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, site)
}

// List handles GET /api/v1/tenants
func (h *TenantHandler) List(w http.ResponseWriter, r *http.Request) {
	params := dto.PaginationParams{
		Page:    queryInt(r, "page"),
		PerPage: queryInt(r, "per_page"),
	}
	params.Normalize()

	sites, total, err := h.tenants.ListTenants(r.Context(), params.PerPage, params.Offset())
	if err != nil {
		writeTenantError(w, err)
		return
	}

	totalPages := int((total + int64(params.PerPage) - 1) / int64(params.PerPage))
	writeJSON(w, http.StatusOK, dto.PaginatedResponse{
		Data:       sites,
		Total:      total,
		Page:       params.Page,
		PerPage:    params.PerPage,
		TotalPages: totalPages,
	})
}

func queryInt(r *http.Request, key string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(key))
	return n
}

// Get handles GET /api/v1/tenants/{id}
func (h *TenantHandler) Get(w http.ResponseWriter, r *http.Request) {
	siteID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid tenant ID"})
		return
	}

	site, err := h.tenants.GetTenant(r.Context(), siteID)
	if err != nil {
		writeTenantError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, site)
}

type RegisterDomainRequest struct {
	Domain    string `json:"domain"`
	IsPrimary bool   `json:"is_primary,omitempty"`
}

func (r RegisterDomainRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if r.Domain == "" {
		errors["domain"] = "Domain is required"
	} else if !validation.IsValidDomain(r.Domain) {
		errors["domain"] = "Invalid domain format"
	}
	return errors
}

// RegisterDomain handles POST /api/v1/tenants/{id}/domains
func (h *TenantHandler) RegisterDomain(w http.ResponseWriter, r *http.Request) {
	var req RegisterDomainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errs})
		return
	}

	siteID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid tenant ID"})
		return
	}

	actorID := middleware.GetUserID(r.Context())
	domain, err := h.tenants.RegisterDomain(r.Context(), actorID, siteID, req.Domain, req.IsPrimary)
	if err != nil {
		writeTenantError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, domain)
}
