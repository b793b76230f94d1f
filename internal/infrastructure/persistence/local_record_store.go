package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ledgerlink/backend/internal/domain/sync"
	"github.com/ledgerlink/backend/internal/infrastructure/persistence/models"
)

// GormLocalRecordStore implements LocalStore using GORM. Records live in a
// single JSONB-backed table keyed by tenant, entity type and local id.
type GormLocalRecordStore struct {
	db *gorm.DB
}

// NewGormLocalRecordStore creates a new GormLocalRecordStore
func NewGormLocalRecordStore(db *gorm.DB) *GormLocalRecordStore {
	return &GormLocalRecordStore{db: db}
}

// GetByID loads one local record
func (s *GormLocalRecordStore) GetByID(ctx context.Context, tenantID uuid.UUID, entityType sync.EntityType, localID uuid.UUID) (*sync.Record, error) {
	var model models.LocalRecordModel
	if err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND entity_type = ? AND local_id = ?", tenantID, entityType, localID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, sync.ErrLocalRecordNotFound
		}
		return nil, err
	}
	return model.ToDomain()
}

// Save creates or updates a local record and returns the stored version
func (s *GormLocalRecordStore) Save(ctx context.Context, tenantID uuid.UUID, record *sync.Record) (*sync.Record, error) {
	if err := record.Validate(); err != nil {
		return nil, err
	}

	var model models.LocalRecordModel
	if err := model.FromDomain(tenantID, record); err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Save(&model).Error; err != nil {
		return nil, err
	}
	return model.ToDomain()
}

// List returns all local records of one entity type
func (s *GormLocalRecordStore) List(ctx context.Context, tenantID uuid.UUID, entityType sync.EntityType) ([]sync.Record, error) {
	var recordModels []models.LocalRecordModel
	if err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND entity_type = ?", tenantID, entityType).
		Order("updated_at ASC").
		Find(&recordModels).Error; err != nil {
		return nil, err
	}

	records := make([]sync.Record, 0, len(recordModels))
	for i := range recordModels {
		record, err := recordModels[i].ToDomain()
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}
	return records, nil
}

// Ensure GormLocalRecordStore implements LocalStore
var _ sync.LocalStore = (*GormLocalRecordStore)(nil)
