package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/hibiken/asynq"
	"github.com/hugh/taruvi/internal/api/handlers"
	"github.com/hugh/taruvi/internal/api/middleware"
	"github.com/hugh/taruvi/internal/auth"
	"github.com/hugh/taruvi/internal/invitations"
	"github.com/hugh/taruvi/internal/orgs"
	"github.com/hugh/taruvi/internal/tenants"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Router struct {
	chi.Router
}

type RouterConfig struct {
	DB                *gorm.DB
	Redis             *redis.Client
	Logger            *slog.Logger
	JWTService        *auth.JWTService
	AuthService       *auth.Service
	OrgService        *orgs.Service
	InvitationService *invitations.Service
	TenantService     *tenants.Service
	Inspector         *asynq.Inspector
	AllowedOrigins    []string // CORS allowed origins
	RateLimitReqs     int      // Rate limit requests per window
	RateLimitSecs     int      // Rate limit window in seconds
}

func NewRouter(cfg RouterConfig) *Router {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logging(cfg.Logger))

	// Rate limiting - applied globally to prevent abuse
	if cfg.RateLimitReqs > 0 {
		r.Use(middleware.RateLimit(cfg.RateLimitReqs, cfg.RateLimitSecs))
	}

	// CORS - restrict to configured origins, or allow all in development
	allowedOrigins := cfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		// Default to localhost for development - configure in production
		allowedOrigins = []string{"http://localhost:3000", "http://localhost:8080"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(cfg.DB, cfg.Redis)
	authHandler := handlers.NewAuthHandler(cfg.AuthService)
	orgHandler := handlers.NewOrganizationHandler(cfg.DB, cfg.OrgService)
	siteHandler := handlers.NewSiteHandler(cfg.DB, cfg.OrgService)
	invitationHandler := handlers.NewInvitationHandler(cfg.DB, cfg.InvitationService)
	tenantHandler := handlers.NewTenantHandler(cfg.TenantService)
	permissionHandler := handlers.NewPermissionHandler(cfg.DB, cfg.OrgService.Permissions())

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public auth endpoints
		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/logout", authHandler.Logout)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWTService))

			// User endpoints
			r.Get("/me", func(w http.ResponseWriter, r *http.Request) {
				userID := middleware.GetUserID(r.Context())
				user, err := cfg.AuthService.GetUserByID(r.Context(), userID)
				if err != nil {
					http.Error(w, "User not found", http.StatusNotFound)
					return
				}
				writeJSON(w, http.StatusOK, user)
			})

			// Organization endpoints
			r.Route("/organizations", func(r chi.Router) {
				r.Get("/", orgHandler.List)
				r.Post("/", orgHandler.Create)

				r.Route("/{slug}", func(r chi.Router) {
					r.Get("/", orgHandler.Get)

					r.Route("/members", func(r chi.Router) {
						r.Get("/", orgHandler.ListMembers)
						r.Post("/", orgHandler.AddMember)
						r.Put("/{userID}/role", orgHandler.ChangeRole)
						r.Delete("/{userID}", orgHandler.RemoveMember)
					})

					r.Route("/sites", func(r chi.Router) {
						r.Get("/", siteHandler.List)
						r.Post("/", siteHandler.Add)
						r.Put("/{siteID}/primary", siteHandler.SetPrimary)
						r.Get("/{siteID}/permissions", siteHandler.ListPermissions)
						r.Post("/{siteID}/access", siteHandler.GrantAccess)
						r.Delete("/{siteID}/access", siteHandler.RevokeAccess)
					})

					r.Route("/invitations", func(r chi.Router) {
						r.Get("/", invitationHandler.List)
						r.Post("/", invitationHandler.Create)
					})
				})
			})

			// Invitation endpoints addressed by ID or token
			r.Route("/invitations", func(r chi.Router) {
				r.Post("/accept", invitationHandler.Accept)
				r.Post("/{id}/resend", invitationHandler.Resend)
				r.Delete("/{id}", invitationHandler.Cancel)
			})

			// Tenant directory endpoints
			r.Route("/tenants", func(r chi.Router) {
				r.Get("/", tenantHandler.List)
				r.Post("/", tenantHandler.Register)
				r.Get("/{id}", tenantHandler.Get)
				r.Post("/{id}/domains", tenantHandler.RegisterDomain)
			})

			// Permission read side
			r.Get("/permissions/check", permissionHandler.Check)
			r.Get("/sites/permissions", permissionHandler.MySitePermissions)

			// Task status
			if cfg.Inspector != nil {
				taskHandler := handlers.NewTaskHandler(cfg.Inspector)
				r.Get("/tasks/{id}", taskHandler.Get)
			}
		})
	})

	return &Router{r}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
