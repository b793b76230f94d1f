package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ledgerlink/backend/internal/domain/sync"
	"github.com/ledgerlink/backend/internal/infrastructure/persistence/models"
)

// GormSyncMappingRepository implements MappingRepository using GORM
type GormSyncMappingRepository struct {
	db *gorm.DB
}

// NewGormSyncMappingRepository creates a new GormSyncMappingRepository
func NewGormSyncMappingRepository(db *gorm.DB) *GormSyncMappingRepository {
	return &GormSyncMappingRepository{db: db}
}

// FindByLocalID finds a mapping by local record id
func (r *GormSyncMappingRepository) FindByLocalID(ctx context.Context, tenantID uuid.UUID, entityType sync.EntityType, localID uuid.UUID) (*sync.SyncMapping, error) {
	var model models.SyncMappingModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND entity_type = ? AND local_id = ?", tenantID, entityType, localID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, sync.ErrMappingNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByRemoteID finds a mapping by remote record id
func (r *GormSyncMappingRepository) FindByRemoteID(ctx context.Context, tenantID uuid.UUID, entityType sync.EntityType, remoteID string) (*sync.SyncMapping, error) {
	var model models.SyncMappingModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND entity_type = ? AND remote_id = ?", tenantID, entityType, remoteID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, sync.ErrMappingNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Upsert atomically creates or updates a mapping. Rebinding either identity
// side fails with ErrMappingConflict; the transaction plus the unique indexes
// on both sides make the check-then-write safe under concurrency.
func (r *GormSyncMappingRepository) Upsert(ctx context.Context, mapping *sync.SyncMapping) (*sync.SyncMapping, error) {
	if err := mapping.Validate(); err != nil {
		return nil, err
	}

	var saved *sync.SyncMapping
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.SyncMappingModel
		err := tx.Where("tenant_id = ? AND entity_type = ? AND local_id = ?",
			mapping.TenantID, mapping.EntityType, mapping.LocalID).
			First(&existing).Error
		switch {
		case err == nil:
			if existing.RemoteID != mapping.RemoteID {
				return sync.ErrMappingConflict
			}
			mapping.ID = existing.ID
			mapping.CreatedAt = existing.CreatedAt
		case errors.Is(err, gorm.ErrRecordNotFound):
			// fresh mapping
		default:
			return err
		}

		// The remote side must not be bound to a different local record
		var bound int64
		if err := tx.Model(&models.SyncMappingModel{}).
			Where("tenant_id = ? AND entity_type = ? AND remote_id = ? AND local_id <> ?",
				mapping.TenantID, mapping.EntityType, mapping.RemoteID, mapping.LocalID).
			Count(&bound).Error; err != nil {
			return err
		}
		if bound > 0 {
			return sync.ErrMappingConflict
		}

		model := models.SyncMappingModelFromDomain(mapping)
		if err := tx.Save(model).Error; err != nil {
			return err
		}
		saved = model.ToDomain()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// Rebind repoints an existing mapping at a new remote identity. The RemoteID
// may change here; the remote-side uniqueness check still applies so two local
// records can never share one remote record.
func (r *GormSyncMappingRepository) Rebind(ctx context.Context, mapping *sync.SyncMapping) (*sync.SyncMapping, error) {
	if err := mapping.Validate(); err != nil {
		return nil, err
	}

	var saved *sync.SyncMapping
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.SyncMappingModel
		if err := tx.Where("tenant_id = ? AND entity_type = ? AND local_id = ?",
			mapping.TenantID, mapping.EntityType, mapping.LocalID).
			First(&existing).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return sync.ErrMappingNotFound
			}
			return err
		}
		mapping.ID = existing.ID
		mapping.CreatedAt = existing.CreatedAt

		var bound int64
		if err := tx.Model(&models.SyncMappingModel{}).
			Where("tenant_id = ? AND entity_type = ? AND remote_id = ? AND local_id <> ?",
				mapping.TenantID, mapping.EntityType, mapping.RemoteID, mapping.LocalID).
			Count(&bound).Error; err != nil {
			return err
		}
		if bound > 0 {
			return sync.ErrMappingConflict
		}

		model := models.SyncMappingModelFromDomain(mapping)
		if err := tx.Save(model).Error; err != nil {
			return err
		}
		saved = model.ToDomain()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// Unlink removes the mapping for a local record
func (r *GormSyncMappingRepository) Unlink(ctx context.Context, tenantID uuid.UUID, entityType sync.EntityType, localID uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Delete(&models.SyncMappingModel{}, "tenant_id = ? AND entity_type = ? AND local_id = ?", tenantID, entityType, localID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return sync.ErrMappingNotFound
	}
	return nil
}

// FindAll lists mappings for a tenant with optional filters
func (r *GormSyncMappingRepository) FindAll(ctx context.Context, tenantID uuid.UUID, filter sync.MappingFilter) ([]sync.SyncMapping, error) {
	var mappingModels []models.SyncMappingModel
	query := r.applyFilter(r.db.WithContext(ctx).Model(&models.SyncMappingModel{}).Where("tenant_id = ?", tenantID), filter)

	if err := query.Find(&mappingModels).Error; err != nil {
		return nil, err
	}

	mappings := make([]sync.SyncMapping, len(mappingModels))
	for i, model := range mappingModels {
		mappings[i] = *model.ToDomain()
	}
	return mappings, nil
}

// Count counts mappings matching the filter
func (r *GormSyncMappingRepository) Count(ctx context.Context, tenantID uuid.UUID, filter sync.MappingFilter) (int64, error) {
	var count int64
	query := r.applyFilterWithoutPagination(
		r.db.WithContext(ctx).Model(&models.SyncMappingModel{}).Where("tenant_id = ?", tenantID), filter)

	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// applyFilter applies filter options to the query
func (r *GormSyncMappingRepository) applyFilter(query *gorm.DB, filter sync.MappingFilter) *gorm.DB {
	query = r.applyFilterWithoutPagination(query, filter)

	if filter.Page > 0 && filter.PageSize > 0 {
		offset := (filter.Page - 1) * filter.PageSize
		query = query.Offset(offset).Limit(filter.PageSize)
	}

	return query.Order("last_synced_at DESC")
}

// applyFilterWithoutPagination applies filter options without pagination
func (r *GormSyncMappingRepository) applyFilterWithoutPagination(query *gorm.DB, filter sync.MappingFilter) *gorm.DB {
	if filter.EntityType != nil && filter.EntityType.IsValid() {
		query = query.Where("entity_type = ?", *filter.EntityType)
	}
	if filter.SyncedSince != nil {
		query = query.Where("last_synced_at >= ?", *filter.SyncedSince)
	}
	return query
}

// Ensure GormSyncMappingRepository implements MappingRepository
var _ sync.MappingRepository = (*GormSyncMappingRepository)(nil)
