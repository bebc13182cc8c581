// Package audit writes the append-only change history required for
// compliance review. Every mutation of an organization, membership, site
// link, invitation or domain produces one immutable record carrying the
// actor and before/after snapshots. Records are written in the same
// transaction as the mutation and are never read back for replay.
package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/hugh/taruvi/internal/database/models"
	"gorm.io/gorm"
)

// Entity type names used in change records.
const (
	EntityOrganization = "organization"
	EntityMember       = "organization_member"
	EntityOrgSite      = "organization_site"
	EntityInvitation   = "organization_invitation"
	EntitySite         = "site"
	EntityDomain       = "domain"
)

type Recorder struct {
	db *gorm.DB
}

func NewRecorder(db *gorm.DB) *Recorder {
	return &Recorder{db: db}
}

// WithTx binds the recorder to an open transaction so the history entry
// commits atomically with the mutation it describes.
func (r *Recorder) WithTx(tx *gorm.DB) *Recorder {
	return &Recorder{db: tx}
}

// Record appends one change entry. before and after may be nil (creation
// has no before, deletion no after); non-nil values are snapshotted to
// JSON at call time.
func (r *Recorder) Record(ctx context.Context, entityType string, entityID uuid.UUID, action string, actorID *uuid.UUID, before, after interface{}) error {
	beforeMap, err := snapshot(before)
	if err != nil {
		return fmt.Errorf("snapshot before state: %w", err)
	}
	afterMap, err := snapshot(after)
	if err != nil {
		return fmt.Errorf("snapshot after state: %w", err)
	}

	record := models.ChangeRecord{
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		ActorID:    actorID,
		Before:     beforeMap,
		After:      afterMap,
	}
	return r.db.WithContext(ctx).Create(&record).Error
}

func snapshot(v interface{}) (models.JSONMap, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m models.JSONMap
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}
