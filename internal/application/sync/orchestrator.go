package sync

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ledgerlink/backend/internal/domain/sync"
)

// OrchestratorConfig holds orchestration settings
type OrchestratorConfig struct {
	// InFlightTTL bounds how long a record stays locked if a job is lost
	InFlightTTL time.Duration
	// BatchPageSize caps how many records one syncAll enumerates per page
	BatchPageSize int
}

// DefaultOrchestratorConfig returns the standard orchestration settings
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		InFlightTTL:   10 * time.Minute,
		BatchPageSize: 500,
	}
}

// Orchestrator is the single entry point for sync requests. It owns job and
// batch creation, duplicate suppression via the in-flight registry, status
// queries and mapping management.
type Orchestrator struct {
	config    OrchestratorConfig
	jobs      sync.JobRepository
	batches   sync.BatchRepository
	mappings  sync.MappingRepository
	tracker   sync.StatusTracker
	processor sync.BatchProcessor
	inflight  sync.InFlightRegistry
	local     sync.LocalStore
	remote    sync.RemoteClient
	logger    *zap.Logger
}

// NewOrchestrator creates a sync orchestrator
func NewOrchestrator(
	config OrchestratorConfig,
	jobs sync.JobRepository,
	batches sync.BatchRepository,
	mappings sync.MappingRepository,
	tracker sync.StatusTracker,
	processor sync.BatchProcessor,
	inflight sync.InFlightRegistry,
	local sync.LocalStore,
	remote sync.RemoteClient,
	logger *zap.Logger,
) *Orchestrator {
	if config.InFlightTTL <= 0 {
		config.InFlightTTL = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		config:    config,
		jobs:      jobs,
		batches:   batches,
		mappings:  mappings,
		tracker:   tracker,
		processor: processor,
		inflight:  inflight,
		local:     local,
		remote:    remote,
		logger:    logger,
	}
}

// ---------------------------------------------------------------------------
// Single record sync
// ---------------------------------------------------------------------------

// SyncOne synchronizes a single record and waits for the outcome. Submitting
// a record that already has a job in flight does not start new work: the
// existing job is returned with the Deduplicated flag set.
func (o *Orchestrator) SyncOne(ctx context.Context, tenantID uuid.UUID, req SyncOneRequest) (*JobResponse, error) {
	job, err := sync.NewSyncJob(tenantID, req.EntityType, req.LocalID, req.RemoteID, req.Direction)
	if err != nil {
		return nil, err
	}

	holder, acquired, err := o.inflight.Acquire(ctx, job.InFlightKey(), job.ID, o.config.InFlightTTL)
	if err != nil {
		return nil, err
	}
	if !acquired {
		existing, err := o.jobs.FindByID(ctx, tenantID, holder)
		if err != nil {
			return nil, err
		}
		resp := NewJobResponse(existing)
		resp.Deduplicated = true
		return resp, nil
	}

	if err := o.enqueue(ctx, job); err != nil {
		o.releaseQuietly(ctx, job)
		return nil, err
	}

	// RunJob owns the retry loop and releases the in-flight key; a classified
	// failure is an outcome, not a transport error.
	runErr := o.processor.RunJob(ctx, job)
	if runErr != nil {
		if _, ok := sync.AsClassified(runErr); !ok {
			return nil, runErr
		}
	}
	return NewJobResponse(job), nil
}

// ---------------------------------------------------------------------------
// Batch sync
// ---------------------------------------------------------------------------

// SyncAll enumerates every record of one entity type and schedules a batch.
// The call returns once the batch is queued; progress is observed via
// GetStatus. Records that already have a job in flight are left out.
func (o *Orchestrator) SyncAll(ctx context.Context, tenantID uuid.UUID, req SyncAllRequest) (*BatchResponse, error) {
	if !req.EntityType.IsValid() {
		return nil, sync.ErrInvalidEntityType
	}
	if !req.Direction.IsValid() {
		return nil, sync.ErrInvalidDirection
	}

	jobs, err := o.enumerateJobs(ctx, tenantID, req)
	if err != nil {
		return nil, err
	}

	batch, err := sync.NewSyncBatch(tenantID, req.EntityType, req.Direction, jobIDs(jobs))
	if err != nil {
		return nil, err
	}
	for _, job := range jobs {
		job.BatchID = &batch.ID
		if err := o.enqueue(ctx, job); err != nil {
			o.releaseQuietly(ctx, job)
			return nil, err
		}
	}
	if err := o.batches.Save(ctx, batch); err != nil {
		return nil, err
	}

	o.logger.Info("Batch scheduled",
		zap.String("batch_id", batch.ID.String()),
		zap.String("tenant_id", tenantID.String()),
		zap.String("entity_type", req.EntityType.String()),
		zap.String("direction", req.Direction.String()),
		zap.Int("total", batch.TotalCount),
	)

	go o.runBatch(context.WithoutCancel(ctx), batch, jobs)

	return NewBatchResponse(batch), nil
}

// enumerateJobs builds the job list for a batch, skipping records whose
// in-flight key is already held.
func (o *Orchestrator) enumerateJobs(ctx context.Context, tenantID uuid.UUID, req SyncAllRequest) ([]*sync.SyncJob, error) {
	var jobs []*sync.SyncJob

	addJob := func(localID *uuid.UUID, remoteID *string) error {
		job, err := sync.NewSyncJob(tenantID, req.EntityType, localID, remoteID, req.Direction)
		if err != nil {
			return err
		}
		_, acquired, err := o.inflight.Acquire(ctx, job.InFlightKey(), job.ID, o.config.InFlightTTL)
		if err != nil {
			return err
		}
		if !acquired {
			// Another job already owns this record; the batch skips it
			return nil
		}
		jobs = append(jobs, job)
		return nil
	}

	if req.Direction == sync.DirectionFromRemote {
		payloads, err := o.remote.List(ctx, tenantID, req.EntityType, sync.RemoteListFilter{
			UpdatedSince: req.UpdatedSince,
			PageSize:     o.config.BatchPageSize,
		})
		if err != nil {
			return nil, err
		}
		for i := range payloads {
			remoteID := payloads[i].RemoteID
			if err := addJob(nil, &remoteID); err != nil {
				return nil, err
			}
		}
		return jobs, nil
	}

	records, err := o.local.List(ctx, tenantID, req.EntityType)
	if err != nil {
		return nil, err
	}
	for i := range records {
		localID := records[i].LocalID
		if err := addJob(&localID, nil); err != nil {
			return nil, err
		}
	}
	return jobs, nil
}

// runBatch drives a scheduled batch in the background
func (o *Orchestrator) runBatch(ctx context.Context, batch *sync.SyncBatch, jobs []*sync.SyncJob) {
	if err := o.processor.RunBatch(ctx, batch, jobs); err != nil {
		o.logger.Error("Batch run failed",
			zap.String("batch_id", batch.ID.String()),
			zap.String("tenant_id", batch.TenantID.String()),
			zap.Error(err),
		)
	}
}

// ---------------------------------------------------------------------------
// Status, cancel, retry
// ---------------------------------------------------------------------------

// GetStatus answers a status query for a job or batch id, including the full
// transition history.
func (o *Orchestrator) GetStatus(ctx context.Context, tenantID uuid.UUID, id uuid.UUID) (*StatusResponse, error) {
	history, err := o.tracker.History(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	if job, err := o.jobs.FindByID(ctx, tenantID, id); err == nil {
		return &StatusResponse{
			Job:     NewJobResponse(job),
			History: NewTransitionResponses(history),
		}, nil
	} else if !errors.Is(err, sync.ErrJobNotFound) {
		return nil, err
	}

	batch, err := o.batches.FindByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	return &StatusResponse{
		Batch:   NewBatchResponse(batch),
		History: NewTransitionResponses(history),
	}, nil
}

// CancelBatch stops scheduling of a batch's remaining jobs. Jobs already in
// progress run to completion; the batch still terminates with exact counters.
func (o *Orchestrator) CancelBatch(ctx context.Context, tenantID uuid.UUID, batchID uuid.UUID) (*BatchResponse, error) {
	batch, err := o.batches.FindByID(ctx, tenantID, batchID)
	if err != nil {
		return nil, err
	}
	if batch.IsFinished() {
		return nil, sync.ErrBatchAlreadyFinished
	}
	o.processor.Cancel(batch.ID)
	return NewBatchResponse(batch), nil
}

// RetryFailed schedules a new batch containing fresh jobs for every failed
// job of a finished batch. The original batch stays immutable.
func (o *Orchestrator) RetryFailed(ctx context.Context, tenantID uuid.UUID, batchID uuid.UUID) (*BatchResponse, error) {
	batch, err := o.batches.FindByID(ctx, tenantID, batchID)
	if err != nil {
		return nil, err
	}
	if !batch.IsFinished() {
		return nil, sync.ErrBatchNotFinished
	}

	previous, err := o.jobs.FindByIDs(ctx, tenantID, batch.JobIDs)
	if err != nil {
		return nil, err
	}

	var retryJobs []*sync.SyncJob
	for i := range previous {
		if previous[i].Status != sync.StatusFailed {
			continue
		}
		job, err := sync.NewSyncJob(tenantID, previous[i].EntityType, previous[i].LocalID, previous[i].RemoteID, previous[i].Direction)
		if err != nil {
			return nil, err
		}
		_, acquired, err := o.inflight.Acquire(ctx, job.InFlightKey(), job.ID, o.config.InFlightTTL)
		if err != nil {
			return nil, err
		}
		if !acquired {
			continue
		}
		retryJobs = append(retryJobs, job)
	}
	if len(retryJobs) == 0 {
		return nil, sync.ErrJobNotFound
	}

	retryBatch, err := sync.NewSyncBatch(tenantID, batch.EntityType, batch.Direction, jobIDs(retryJobs))
	if err != nil {
		return nil, err
	}
	for _, job := range retryJobs {
		job.BatchID = &retryBatch.ID
		if err := o.enqueue(ctx, job); err != nil {
			o.releaseQuietly(ctx, job)
			return nil, err
		}
	}
	if err := o.batches.Save(ctx, retryBatch); err != nil {
		return nil, err
	}

	go o.runBatch(context.WithoutCancel(ctx), retryBatch, retryJobs)

	return NewBatchResponse(retryBatch), nil
}

// ---------------------------------------------------------------------------
// Mapping management
// ---------------------------------------------------------------------------

// Unlink removes the mapping for a local record. The next push of the record
// creates a brand-new remote record.
func (o *Orchestrator) Unlink(ctx context.Context, tenantID uuid.UUID, entityType sync.EntityType, localID uuid.UUID) error {
	if !entityType.IsValid() {
		return sync.ErrInvalidEntityType
	}
	if localID == uuid.Nil {
		return sync.ErrInvalidLocalID
	}
	return o.mappings.Unlink(ctx, tenantID, entityType, localID)
}

// ListMappings returns a paged mapping listing for a tenant
func (o *Orchestrator) ListMappings(ctx context.Context, tenantID uuid.UUID, req MappingListRequest) (*MappingListResponse, error) {
	if req.Page <= 0 {
		req.Page = 1
	}
	if req.PageSize <= 0 || req.PageSize > 200 {
		req.PageSize = 50
	}
	filter := sync.MappingFilter{
		EntityType:  req.EntityType,
		SyncedSince: req.SyncedSince,
		Page:        req.Page,
		PageSize:    req.PageSize,
	}

	mappings, err := o.mappings.FindAll(ctx, tenantID, filter)
	if err != nil {
		return nil, err
	}
	total, err := o.mappings.Count(ctx, tenantID, filter)
	if err != nil {
		return nil, err
	}

	items := make([]MappingResponse, len(mappings))
	for i := range mappings {
		items[i] = NewMappingResponse(&mappings[i])
	}
	return &MappingListResponse{
		Items:    items,
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
	}, nil
}

// ---------------------------------------------------------------------------
// Internals
// ---------------------------------------------------------------------------

// enqueue moves a fresh job to queued, records the transition and persists it
func (o *Orchestrator) enqueue(ctx context.Context, job *sync.SyncJob) error {
	from := job.Status
	if err := job.Enqueue(); err != nil {
		return err
	}
	if err := o.tracker.RecordTransition(ctx, &sync.Transition{
		OwnerID:    job.ID,
		OwnerKind:  sync.OwnerKindJob,
		TenantID:   job.TenantID,
		EntityType: job.EntityType,
		FromState:  from,
		ToState:    sync.StatusQueued,
	}); err != nil {
		return err
	}
	return o.jobs.Save(ctx, job)
}

func (o *Orchestrator) releaseQuietly(ctx context.Context, job *sync.SyncJob) {
	if err := o.inflight.Release(ctx, job.InFlightKey(), job.ID); err != nil {
		o.logger.Warn("Failed to release in-flight key",
			zap.String("job_id", job.ID.String()),
			zap.Error(err),
		)
	}
}

func jobIDs(jobs []*sync.SyncJob) []uuid.UUID {
	ids := make([]uuid.UUID, len(jobs))
	for i, job := range jobs {
		ids[i] = job.ID
	}
	return ids
}
