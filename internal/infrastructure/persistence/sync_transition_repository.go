package persistence

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ledgerlink/backend/internal/domain/sync"
	"github.com/ledgerlink/backend/internal/infrastructure/persistence/models"
)

// GormSyncTransitionRepository implements TransitionRepository using GORM.
// Rows are append-only; nothing here updates or deletes.
type GormSyncTransitionRepository struct {
	db *gorm.DB
}

// NewGormSyncTransitionRepository creates a new GormSyncTransitionRepository
func NewGormSyncTransitionRepository(db *gorm.DB) *GormSyncTransitionRepository {
	return &GormSyncTransitionRepository{db: db}
}

// Append adds one transition to the history log
func (r *GormSyncTransitionRepository) Append(ctx context.Context, t *sync.Transition) error {
	var model models.SyncTransitionModel
	model.FromDomain(t)
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return err
	}
	t.ID = model.ID
	return nil
}

// ListByOwner returns transitions for an owner in append order
func (r *GormSyncTransitionRepository) ListByOwner(ctx context.Context, tenantID uuid.UUID, ownerID uuid.UUID) ([]sync.Transition, error) {
	var transitionModels []models.SyncTransitionModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND owner_id = ?", tenantID, ownerID).
		Order("id ASC").
		Find(&transitionModels).Error; err != nil {
		return nil, err
	}

	transitions := make([]sync.Transition, len(transitionModels))
	for i, model := range transitionModels {
		transitions[i] = model.ToDomain()
	}
	return transitions, nil
}

// Ensure GormSyncTransitionRepository implements TransitionRepository
var _ sync.TransitionRepository = (*GormSyncTransitionRepository)(nil)
