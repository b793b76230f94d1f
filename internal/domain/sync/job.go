package sync

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// SyncJob Entity
// ---------------------------------------------------------------------------

// SyncJob is one unit of sync work: a single record, standalone or inside a
// batch. It is owned exclusively by the orchestrator/batch processor for its
// lifetime and becomes immutable once completed or permanently failed.
type SyncJob struct {
	ID         uuid.UUID
	TenantID   uuid.UUID
	EntityType EntityType
	// LocalID is set for toRemote and for fromRemote once the record is resolved
	LocalID *uuid.UUID
	// RemoteID is set for fromRemote and after a successful push
	RemoteID  *string
	Direction Direction
	Status    Status
	// Attempt counts executions; incremented on every inProgress transition
	Attempt int
	// LastError is the classified failure from the most recent attempt
	LastError *ClassifiedError
	// Detail carries non-error outcomes such as "skipped-local-newer"
	Detail string
	// BatchID links the job to its batch, nil for single-record syncs
	BatchID     *uuid.UUID
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// NewSyncJob creates a job in the idle state
func NewSyncJob(tenantID uuid.UUID, entityType EntityType, localID *uuid.UUID, remoteID *string, direction Direction) (*SyncJob, error) {
	if tenantID == uuid.Nil {
		return nil, ErrInvalidTenantID
	}
	if !entityType.IsValid() {
		return nil, ErrInvalidEntityType
	}
	if !direction.IsValid() {
		return nil, ErrInvalidDirection
	}
	if localID == nil && remoteID == nil {
		return nil, ErrInvalidLocalID
	}
	return &SyncJob{
		ID:         uuid.New(),
		TenantID:   tenantID,
		EntityType: entityType,
		LocalID:    localID,
		RemoteID:   remoteID,
		Direction:  direction,
		Status:     StatusIdle,
		CreatedAt:  time.Now(),
	}, nil
}

// transition moves the job to next, enforcing state machine legality
func (j *SyncJob) transition(next Status) error {
	if !j.Status.CanTransitionTo(next) {
		return ErrInvalidTransition
	}
	j.Status = next
	return nil
}

// Enqueue moves the job to queued
func (j *SyncJob) Enqueue() error {
	return j.transition(StatusQueued)
}

// Start moves the job to inProgress and counts the attempt
func (j *SyncJob) Start() error {
	if err := j.transition(StatusInProgress); err != nil {
		return err
	}
	j.Attempt++
	return nil
}

// Complete moves the job to its terminal completed state. Detail records
// non-error outcomes such as a skipped pull.
func (j *SyncJob) Complete(detail string) error {
	if err := j.transition(StatusCompleted); err != nil {
		return err
	}
	now := time.Now()
	j.CompletedAt = &now
	j.Detail = detail
	j.LastError = nil
	return nil
}

// Fail records a classified failure. Transient failures may be re-queued via
// Requeue; permanent ones leave the job immutable.
func (j *SyncJob) Fail(cerr *ClassifiedError) error {
	if err := j.transition(StatusFailed); err != nil {
		return err
	}
	now := time.Now()
	j.CompletedAt = &now
	j.LastError = cerr
	return nil
}

// Requeue moves a failed job back to queued for another attempt
func (j *SyncJob) Requeue() error {
	if err := j.transition(StatusQueued); err != nil {
		return err
	}
	j.CompletedAt = nil
	return nil
}

// InFlightKey identifies the record this job is syncing. At most one job per
// key may be queued or in progress at any time.
func (j *SyncJob) InFlightKey() string {
	id := ""
	if j.LocalID != nil {
		id = j.LocalID.String()
	} else if j.RemoteID != nil {
		id = "r:" + *j.RemoteID
	}
	return j.TenantID.String() + ":" + string(j.EntityType) + ":" + id
}

// ---------------------------------------------------------------------------
// SyncBatch Entity
// ---------------------------------------------------------------------------

// SyncBatch aggregates SyncJobs submitted together ("sync all"). The invariant
// succeededCount + failedCount + pendingCount == totalCount holds at all
// times; the batch finishes only when pendingCount reaches zero.
type SyncBatch struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	EntityType     EntityType
	Direction      Direction
	JobIDs         []uuid.UUID
	TotalCount     int
	SucceededCount int
	FailedCount    int
	Status         Status
	CreatedAt      time.Time
	CompletedAt    *time.Time
}

// NewSyncBatch creates a batch in the queued state for the given jobs
func NewSyncBatch(tenantID uuid.UUID, entityType EntityType, direction Direction, jobIDs []uuid.UUID) (*SyncBatch, error) {
	if tenantID == uuid.Nil {
		return nil, ErrInvalidTenantID
	}
	if !entityType.IsValid() {
		return nil, ErrInvalidEntityType
	}
	if !direction.IsValid() {
		return nil, ErrInvalidDirection
	}
	ids := make([]uuid.UUID, len(jobIDs))
	copy(ids, jobIDs)
	return &SyncBatch{
		ID:         uuid.New(),
		TenantID:   tenantID,
		EntityType: entityType,
		Direction:  direction,
		JobIDs:     ids,
		TotalCount: len(ids),
		Status:     StatusQueued,
		CreatedAt:  time.Now(),
	}, nil
}

// PendingCount returns the number of jobs not yet resolved
func (b *SyncBatch) PendingCount() int {
	return b.TotalCount - b.SucceededCount - b.FailedCount
}

// Start moves the batch to inProgress
func (b *SyncBatch) Start() error {
	if b.Status != StatusQueued {
		return ErrInvalidTransition
	}
	b.Status = StatusInProgress
	return nil
}

// RecordJobResult folds one job outcome into the counters and finishes the
// batch when no jobs remain pending.
func (b *SyncBatch) RecordJobResult(succeeded bool) error {
	if b.PendingCount() == 0 {
		return ErrBatchAlreadyFinished
	}
	if succeeded {
		b.SucceededCount++
	} else {
		b.FailedCount++
	}
	if b.PendingCount() == 0 {
		b.finish()
	}
	return nil
}

// finish sets the terminal status from the counters
func (b *SyncBatch) finish() {
	now := time.Now()
	b.CompletedAt = &now
	switch {
	case b.FailedCount == 0:
		b.Status = StatusCompleted
	case b.SucceededCount == 0:
		b.Status = StatusFailed
	default:
		b.Status = StatusPartial
	}
}

// IsFinished returns true once all jobs are resolved
func (b *SyncBatch) IsFinished() bool {
	return b.PendingCount() == 0 && b.TotalCount > 0
}

// ---------------------------------------------------------------------------
// Job/Batch persistence ports
// ---------------------------------------------------------------------------

// JobRepository persists sync jobs. Rows are append-mostly: only the
// current-state pointer fields change after creation.
type JobRepository interface {
	// Save creates or updates a job
	Save(ctx context.Context, job *SyncJob) error

	// FindByID finds a job by id within a tenant
	FindByID(ctx context.Context, tenantID uuid.UUID, id uuid.UUID) (*SyncJob, error)

	// FindByIDs loads multiple jobs preserving the requested order
	FindByIDs(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]SyncJob, error)
}

// BatchRepository persists sync batches
type BatchRepository interface {
	// Save creates or updates a batch
	Save(ctx context.Context, batch *SyncBatch) error

	// FindByID finds a batch by id within a tenant
	FindByID(ctx context.Context, tenantID uuid.UUID, id uuid.UUID) (*SyncBatch, error)
}
