// Package tenants is the tenant directory: it maps schema names to tenant
// sites and their domains. Schema DDL itself is provisioned out of band by
// the worker; the directory only records the state transitions.
package tenants

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/hugh/taruvi/internal/audit"
	"github.com/hugh/taruvi/internal/database/models"
	"github.com/hugh/taruvi/internal/tasks"
	"gorm.io/gorm"
)

var (
	ErrNotFound        = errors.New("tenant not found")
	ErrDuplicateSchema = errors.New("schema name is already in use")
	ErrDuplicateDomain = errors.New("domain is already registered")
	ErrInvalidSchema   = errors.New("invalid schema name")
)

var schemaNameRe = regexp.MustCompile(`^[a-z][a-z0-9_]{0,62}$`)

// Enqueuer is the slice of asynq.Client the directory needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type Service struct {
	db       *gorm.DB
	recorder *audit.Recorder
	queue    Enqueuer
	logger   *slog.Logger
}

func NewService(db *gorm.DB, recorder *audit.Recorder, queue Enqueuer, logger *slog.Logger) *Service {
	return &Service{
		db:       db,
		recorder: recorder,
		queue:    queue,
		logger:   logger,
	}
}

// RegisterTenant records a new tenant site and hands schema provisioning
// to the worker.
func (s *Service) RegisterTenant(ctx context.Context, actorID uuid.UUID, schemaName, name, description string) (*models.Site, error) {
	if !schemaNameRe.MatchString(schemaName) {
		return nil, ErrInvalidSchema
	}

	var site models.Site
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&models.Site{}).
			Where("schema_name = ?", schemaName).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return ErrDuplicateSchema
		}

		site = models.Site{
			SchemaName:  schemaName,
			Name:        name,
			Description: description,
			IsActive:    true,
		}
		site.CreatedByID = &actorID
		if err := tx.Create(&site).Error; err != nil {
			return err
		}

		return s.recorder.WithTx(tx).Record(ctx, audit.EntitySite, site.ID, models.AuditActionCreate, &actorID, nil, site)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("tenant registered", "site_id", site.ID, "schema", schemaName)

	// Provisioning is asynchronous; a queue outage leaves the tenant
	// registered but unprovisioned, to be retried by hand.
	if s.queue != nil {
		task, err := tasks.NewTenantProvisionTask(tasks.TenantProvisionPayload{SiteID: site.ID})
		if err == nil {
			_, err = s.queue.EnqueueContext(ctx, task, asynq.MaxRetry(5), asynq.Queue("critical"))
		}
		if err != nil {
			s.logger.Error("enqueueing tenant provisioning", "site_id", site.ID, "error", err)
		}
	}

	return &site, nil
}

// GetTenant returns one tenant with its domains.
func (s *Service) GetTenant(ctx context.Context, siteID uuid.UUID) (*models.Site, error) {
	var site models.Site
	err := s.db.WithContext(ctx).Preload("Domains").First(&site, "id = ?", siteID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &site, nil
}

// ListTenants returns one page of tenant sites with their domains, plus
// the total count. The directory is global, so it pages where the
// org-scoped listings do not.
func (s *Service) ListTenants(ctx context.Context, limit, offset int) ([]models.Site, int64, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&models.Site{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var sites []models.Site
	err := s.db.WithContext(ctx).
		Preload("Domains").
		Order("schema_name").
		Limit(limit).
		Offset(offset).
		Find(&sites).Error
	if err != nil {
		return nil, 0, err
	}
	return sites, total, nil
}

// RegisterDomain attaches a domain to a tenant. When the new domain is
// primary, any previous primary is cleared in the same transaction so the
// one-primary-per-tenant invariant holds at write time.
func (s *Service) RegisterDomain(ctx context.Context, actorID, siteID uuid.UUID, domain string, isPrimary bool) (*models.Domain, error) {
	var d models.Domain
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var site models.Site
		if err := tx.First(&site, "id = ?", siteID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		var existing int64
		if err := tx.Model(&models.Domain{}).
			Where("domain = ?", domain).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return ErrDuplicateDomain
		}

		if isPrimary {
			if err := tx.Model(&models.Domain{}).
				Where("site_id = ? AND is_primary = ?", siteID, true).
				Update("is_primary", false).Error; err != nil {
				return err
			}
		}

		d = models.Domain{
			SiteID:    siteID,
			Domain:    domain,
			IsPrimary: isPrimary,
		}
		d.CreatedByID = &actorID
		if err := tx.Create(&d).Error; err != nil {
			return err
		}

		return s.recorder.WithTx(tx).Record(ctx, audit.EntityDomain, d.ID, models.AuditActionCreate, &actorID, nil, d)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("domain registered", "site_id", siteID, "domain", domain, "primary", isPrimary)
	return &d, nil
}

// PrimaryDomain returns the tenant's primary domain, or ErrNotFound when
// none is marked.
func (s *Service) PrimaryDomain(ctx context.Context, siteID uuid.UUID) (*models.Domain, error) {
	var d models.Domain
	err := s.db.WithContext(ctx).
		Where("site_id = ? AND is_primary = ?", siteID, true).
		First(&d).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

// MarkProvisioned records that the tenant's schema exists. Called from the
// worker once provisioning completes; idempotent.
func (s *Service) MarkProvisioned(ctx context.Context, siteID uuid.UUID) error {
	now := time.Now()
	res := s.db.WithContext(ctx).
		Model(&models.Site{}).
		Where("id = ? AND provisioned = ?", siteID, false).
		Updates(map[string]interface{}{"provisioned": true, "provisioned_at": now})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		s.logger.Info("tenant provisioned", "site_id", siteID)
	}
	return nil
}
