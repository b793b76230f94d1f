package sync

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// SyncMapping Entity
// ---------------------------------------------------------------------------

// SyncMapping represents the durable correspondence between one local record
// and one remote record. At most one mapping exists per
// (tenant, entityType, localID) and per (tenant, entityType, remoteID);
// the repository enforces uniqueness on both sides.
type SyncMapping struct {
	// ID is the unique identifier of this mapping
	ID uuid.UUID
	// TenantID is the tenant this mapping belongs to
	TenantID uuid.UUID
	// EntityType identifies the kind of record mapped
	EntityType EntityType
	// LocalID is the CRM record id
	LocalID uuid.UUID
	// RemoteID is the record id in the accounting system
	RemoteID string
	// LastLocalHash is the content fingerprint of the local record as of the
	// last successful push; used to skip no-op pushes.
	LastLocalHash string
	// LastRemoteVersion is the opaque version/timestamp token from the remote side
	LastRemoteVersion string
	// LastSyncedAt is when the last successful sync finished
	LastSyncedAt time.Time
	// SyncDirection is the default direction for this mapping
	SyncDirection Direction
	// CreatedAt is when this mapping was created
	CreatedAt time.Time
	// UpdatedAt is when this mapping was last updated
	UpdatedAt time.Time
}

// NewSyncMapping creates a new mapping after a first successful push or pull
func NewSyncMapping(tenantID uuid.UUID, entityType EntityType, localID uuid.UUID, remoteID string, direction Direction) (*SyncMapping, error) {
	if tenantID == uuid.Nil {
		return nil, ErrInvalidTenantID
	}
	if !entityType.IsValid() {
		return nil, ErrInvalidEntityType
	}
	if localID == uuid.Nil {
		return nil, ErrInvalidLocalID
	}
	if remoteID == "" {
		return nil, ErrInvalidRemoteID
	}
	if !direction.IsValid() {
		return nil, ErrInvalidDirection
	}

	now := time.Now()
	return &SyncMapping{
		ID:            uuid.New(),
		TenantID:      tenantID,
		EntityType:    entityType,
		LocalID:       localID,
		RemoteID:      remoteID,
		SyncDirection: direction,
		LastSyncedAt:  now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// Validate validates the mapping
func (m *SyncMapping) Validate() error {
	if m.TenantID == uuid.Nil {
		return ErrInvalidTenantID
	}
	if !m.EntityType.IsValid() {
		return ErrInvalidEntityType
	}
	if m.LocalID == uuid.Nil {
		return ErrInvalidLocalID
	}
	if m.RemoteID == "" {
		return ErrInvalidRemoteID
	}
	return nil
}

// RecordSync updates the mapping after a successful sync in either direction
func (m *SyncMapping) RecordSync(localHash, remoteVersion string) {
	now := time.Now()
	m.LastLocalHash = localHash
	m.LastRemoteVersion = remoteVersion
	m.LastSyncedAt = now
	m.UpdatedAt = now
}

// ---------------------------------------------------------------------------
// MappingRepository port
// ---------------------------------------------------------------------------

// MappingFilter defines filter criteria for listing mappings
type MappingFilter struct {
	// EntityType filters by entity type (optional)
	EntityType *EntityType
	// SyncedSince filters mappings synced at or after this time (optional)
	SyncedSince *time.Time
	// Page number (1-indexed)
	Page int
	// Page size
	PageSize int
}

// MappingRepository is the port for the mapping store. Every operation is
// scoped by tenant; no query may span tenants.
type MappingRepository interface {
	// FindByLocalID finds a mapping by local record id
	FindByLocalID(ctx context.Context, tenantID uuid.UUID, entityType EntityType, localID uuid.UUID) (*SyncMapping, error)

	// FindByRemoteID finds a mapping by remote record id
	FindByRemoteID(ctx context.Context, tenantID uuid.UUID, entityType EntityType, remoteID string) (*SyncMapping, error)

	// Upsert atomically creates or updates a mapping keyed on
	// (tenant, entityType, localID). If a mapping already exists with a
	// different RemoteID — or the RemoteID is already bound to a different
	// local record — it fails with ErrMappingConflict rather than overwriting.
	Upsert(ctx context.Context, mapping *SyncMapping) (*SyncMapping, error)

	// Rebind repoints an existing mapping at a new remote identity after the
	// mapped remote record vanished and had to be recreated. Unlike Upsert it
	// permits the RemoteID to change; the mapping must already exist and the
	// new RemoteID must not be bound to a different local record.
	Rebind(ctx context.Context, mapping *SyncMapping) (*SyncMapping, error)

	// Unlink removes the mapping for a local record. Unlinking is the only
	// way a mapping is ever deleted.
	Unlink(ctx context.Context, tenantID uuid.UUID, entityType EntityType, localID uuid.UUID) error

	// FindAll lists mappings for a tenant with optional filters
	FindAll(ctx context.Context, tenantID uuid.UUID, filter MappingFilter) ([]SyncMapping, error)

	// Count counts mappings matching the filter
	Count(ctx context.Context, tenantID uuid.UUID, filter MappingFilter) (int64, error)
}
