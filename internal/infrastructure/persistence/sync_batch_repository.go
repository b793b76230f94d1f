package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ledgerlink/backend/internal/domain/sync"
	"github.com/ledgerlink/backend/internal/infrastructure/persistence/models"
)

// GormSyncBatchRepository implements BatchRepository using GORM
type GormSyncBatchRepository struct {
	db *gorm.DB
}

// NewGormSyncBatchRepository creates a new GormSyncBatchRepository
func NewGormSyncBatchRepository(db *gorm.DB) *GormSyncBatchRepository {
	return &GormSyncBatchRepository{db: db}
}

// Save creates or updates a batch
func (r *GormSyncBatchRepository) Save(ctx context.Context, batch *sync.SyncBatch) error {
	model := models.SyncBatchModelFromDomain(batch)
	return r.db.WithContext(ctx).Save(model).Error
}

// FindByID finds a batch by id within a tenant
func (r *GormSyncBatchRepository) FindByID(ctx context.Context, tenantID uuid.UUID, id uuid.UUID) (*sync.SyncBatch, error) {
	var model models.SyncBatchModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, sync.ErrBatchNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Ensure GormSyncBatchRepository implements BatchRepository
var _ sync.BatchRepository = (*GormSyncBatchRepository)(nil)
