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
	"github.com/hugh/taruvi/internal/invitations"
	"gorm.io/gorm"
)

type InvitationHandler struct {
	db          *gorm.DB
	invitations *invitations.Service
}

func NewInvitationHandler(db *gorm.DB, invService *invitations.Service) *InvitationHandler {
	return &InvitationHandler{db: db, invitations: invService}
}

func writeInvitationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, invitations.ErrPermissionDenied):
		writeJSON(w, http.StatusForbidden, dto.ErrorResponse{Error: "Permission denied"})
	case errors.Is(err, invitations.ErrEmailMismatch):
		writeJSON(w, http.StatusForbidden, dto.ErrorResponse{Error: "Invitation was issued for a different email address"})
	case errors.Is(err, invitations.ErrNotFound):
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Invitation not found"})
	case errors.Is(err, invitations.ErrInvalidToken):
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Invitation not found"})
	case errors.Is(err, invitations.ErrDuplicateInvitation):
		writeJSON(w, http.StatusConflict, dto.ErrorResponse{Error: "A pending invitation already exists for this email"})
	case errors.Is(err, invitations.ErrAlreadyMember):
		writeJSON(w, http.StatusConflict, dto.ErrorResponse{Error: "Email belongs to an active member"})
	case errors.Is(err, invitations.ErrNotValid):
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invitation has expired or was already accepted"})
	case errors.Is(err, invitations.ErrNotPending):
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invitation is not pending"})
	case errors.Is(err, invitations.ErrQuotaExceeded):
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Organization member quota exceeded"})
	case errors.Is(err, invitations.ErrInvalidRole):
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid role"})
	default:
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Internal server error"})
	}
}

type InvitationResponse struct {
	ID         string     `json:"id"`
	Email      string     `json:"email"`
	Role       string     `json:"role"`
	Message    string     `json:"message,omitempty"`
	IsAccepted bool       `json:"is_accepted"`
	ExpiresAt  time.Time  `json:"expires_at"`
	AcceptedAt *time.Time `json:"accepted_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

func invitationToResponse(inv *models.OrganizationInvitation) InvitationResponse {
	return InvitationResponse{
		ID:         inv.ID.String(),
		Email:      inv.Email,
		Role:       inv.Role,
		Message:    inv.Message,
		IsAccepted: inv.IsAccepted,
		ExpiresAt:  inv.ExpiresAt,
		AcceptedAt: inv.AcceptedAt,
		CreatedAt:  inv.CreatedAt,
	}
}

type CreateInvitationRequest struct {
	Email   string `json:"email"`
	Role    string `json:"role,omitempty"`
	Message string `json:"message,omitempty"`
}

func (r CreateInvitationRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if r.Email == "" {
		errors["email"] = "Email is required"
	} else if !validation.IsValidEmail(r.Email) {
		errors["email"] = "Invalid email format"
	}
	return errors
}

// Create handles POST /api/v1/organizations/{slug}/invitations
func (h *InvitationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateInvitationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errs})
		return
	}

	orgID, err := resolveOrgSlug(h.db, r)
	if err != nil {
		writeOrgError(w, err)
		return
	}

	actorID := middleware.GetUserID(r.Context())
	inv, err := h.invitations.Create(r.Context(), actorID, orgID, invitations.CreateInput{
		Email:   req.Email,
		Role:    req.Role,
		Message: req.Message,
	})
	if err != nil && !errors.Is(err, invitations.ErrEnqueue) {
		writeInvitationError(w, err)
		return
	}

	// The invitation stands even when the email could not be queued;
	// a resend can recover delivery.
	writeJSON(w, http.StatusCreated, invitationToResponse(inv))
}

// List handles GET /api/v1/organizations/{slug}/invitations
func (h *InvitationHandler) List(w http.ResponseWriter, r *http.Request) {
	orgID, err := resolveOrgSlug(h.db, r)
	if err != nil {
		writeOrgError(w, err)
		return
	}

	actorID := middleware.GetUserID(r.Context())
	invs, err := h.invitations.List(r.Context(), actorID, orgID)
	if err != nil {
		writeInvitationError(w, err)
		return
	}

	resp := make([]InvitationResponse, 0, len(invs))
	for i := range invs {
		resp = append(resp, invitationToResponse(&invs[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

type AcceptInvitationRequest struct {
	Token string `json:"token"`
}

// Accept handles POST /api/v1/invitations/accept
func (h *InvitationHandler) Accept(w http.ResponseWriter, r *http.Request) {
	var req AcceptInvitationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}
	if req.Token == "" {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Token is required"})
		return
	}

	userID := middleware.GetUserID(r.Context())
	member, err := h.invitations.Accept(r.Context(), req.Token, userID)
	if err != nil && !errors.Is(err, invitations.ErrEnqueue) {
		writeInvitationError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, memberToResponse(member))
}

// Resend handles POST /api/v1/invitations/{id}/resend
func (h *InvitationHandler) Resend(w http.ResponseWriter, r *http.Request) {
	invID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid invitation ID"})
		return
	}

	actorID := middleware.GetUserID(r.Context())
	inv, err := h.invitations.Resend(r.Context(), actorID, invID)
	if err != nil && !errors.Is(err, invitations.ErrEnqueue) {
		writeInvitationError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, invitationToResponse(inv))
}

// Cancel handles DELETE /api/v1/invitations/{id}
func (h *InvitationHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	invID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid invitation ID"})
		return
	}

	actorID := middleware.GetUserID(r.Context())
	if err := h.invitations.Cancel(r.Context(), actorID, invID); err != nil {
		writeInvitationError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Invitation cancelled"})
}
