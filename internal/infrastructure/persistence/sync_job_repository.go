package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ledgerlink/backend/internal/domain/sync"
	"github.com/ledgerlink/backend/internal/infrastructure/persistence/models"
)

// GormSyncJobRepository implements JobRepository using GORM
type GormSyncJobRepository struct {
	db *gorm.DB
}

// NewGormSyncJobRepository creates a new GormSyncJobRepository
func NewGormSyncJobRepository(db *gorm.DB) *GormSyncJobRepository {
	return &GormSyncJobRepository{db: db}
}

// Save creates or updates a job
func (r *GormSyncJobRepository) Save(ctx context.Context, job *sync.SyncJob) error {
	model := models.SyncJobModelFromDomain(job)
	return r.db.WithContext(ctx).Save(model).Error
}

// FindByID finds a job by id within a tenant
func (r *GormSyncJobRepository) FindByID(ctx context.Context, tenantID uuid.UUID, id uuid.UUID) (*sync.SyncJob, error) {
	var model models.SyncJobModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, sync.ErrJobNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByIDs loads multiple jobs preserving the requested order
func (r *GormSyncJobRepository) FindByIDs(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]sync.SyncJob, error) {
	if len(ids) == 0 {
		return []sync.SyncJob{}, nil
	}

	var jobModels []models.SyncJobModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id IN ?", tenantID, ids).
		Find(&jobModels).Error; err != nil {
		return nil, err
	}

	byID := make(map[uuid.UUID]*models.SyncJobModel, len(jobModels))
	for i := range jobModels {
		byID[jobModels[i].ID] = &jobModels[i]
	}

	jobs := make([]sync.SyncJob, 0, len(ids))
	for _, id := range ids {
		model, ok := byID[id]
		if !ok {
			return nil, sync.ErrJobNotFound
		}
		jobs = append(jobs, *model.ToDomain())
	}
	return jobs, nil
}

// Ensure GormSyncJobRepository implements JobRepository
var _ sync.JobRepository = (*GormSyncJobRepository)(nil)
