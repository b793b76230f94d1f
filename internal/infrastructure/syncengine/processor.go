package syncengine

import (
	"context"
	stdsync "sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ledgerlink/backend/internal/domain/sync"
	"github.com/ledgerlink/backend/internal/infrastructure/telemetry"
)

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

// ProcessorConfig holds tuning knobs for the batch processor
type ProcessorConfig struct {
	// ChunkSize is the number of jobs dispatched per chunk
	ChunkSize int
	// WorkersPerTenant bounds concurrent remote calls per tenant
	WorkersPerTenant int
	// JobTimeout is the wall-clock limit for one job attempt
	JobTimeout time.Duration
	// RateLimitPause is how long a chunk pauses after a rate-limit failure
	// before dispatching further jobs.
	RateLimitPause time.Duration
	// Backoff drives the retry loop of individual jobs
	Backoff BackoffPolicy
}

// DefaultProcessorConfig returns the standard processor configuration
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		ChunkSize:        10,
		WorkersPerTenant: 4,
		JobTimeout:       30 * time.Second,
		RateLimitPause:   10 * time.Second,
		Backoff:          DefaultBackoffPolicy(),
	}
}

// Validate validates the configuration
func (c *ProcessorConfig) Validate() error {
	if c.ChunkSize <= 0 || c.WorkersPerTenant <= 0 || c.JobTimeout <= 0 {
		return ErrInvalidConfig
	}
	if c.Backoff.MaxAttempts <= 0 {
		return ErrInvalidConfig
	}
	return nil
}

// ---------------------------------------------------------------------------
// Chunk gate
// ---------------------------------------------------------------------------

// chunkGate pauses job dispatch within a batch after a rate-limit failure.
// Every worker consults the gate before starting a job, so one 429 delays the
// remaining jobs of the chunk instead of letting them pile onto a throttled
// remote.
type chunkGate struct {
	mu        stdsync.Mutex
	notBefore time.Time
}

// pause blocks dispatch until now + d, keeping the latest deadline if one is
// already set further out.
func (g *chunkGate) pause(d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	until := time.Now().Add(d)
	if until.After(g.notBefore) {
		g.notBefore = until
	}
}

// wait sleeps until the gate opens or the context ends
func (g *chunkGate) wait(ctx context.Context) error {
	for {
		g.mu.Lock()
		remaining := time.Until(g.notBefore)
		g.mu.Unlock()
		if remaining <= 0 {
			return nil
		}
		timer := time.NewTimer(remaining)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// ---------------------------------------------------------------------------
// Processor
// ---------------------------------------------------------------------------

// Processor drives sync jobs against the remote system: retry loops with
// exponential backoff for single jobs, chunked dispatch with bounded
// per-tenant concurrency and rate-limit-aware pausing for batches.
type Processor struct {
	config   ProcessorConfig
	executor sync.JobExecutor
	tracker  sync.StatusTracker
	jobs     sync.JobRepository
	batches  sync.BatchRepository
	inflight sync.InFlightRegistry
	logger   *zap.Logger

	// sleep is swapped in tests to avoid real waiting
	sleep func(ctx context.Context, d time.Duration) error

	tenantMu   stdsync.Mutex
	tenantSems map[uuid.UUID]chan struct{}

	cancelMu  stdsync.Mutex
	cancelled map[uuid.UUID]bool
}

// NewProcessor creates a batch processor
func NewProcessor(
	config ProcessorConfig,
	executor sync.JobExecutor,
	tracker sync.StatusTracker,
	jobs sync.JobRepository,
	batches sync.BatchRepository,
	inflight sync.InFlightRegistry,
	logger *zap.Logger,
) (*Processor, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		config:     config,
		executor:   executor,
		tracker:    tracker,
		jobs:       jobs,
		batches:    batches,
		inflight:   inflight,
		logger:     logger,
		sleep:      sleepCtx,
		tenantSems: make(map[uuid.UUID]chan struct{}),
		cancelled:  make(map[uuid.UUID]bool),
	}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// tenantSemaphore returns the per-tenant concurrency limiter
func (p *Processor) tenantSemaphore(tenantID uuid.UUID) chan struct{} {
	p.tenantMu.Lock()
	defer p.tenantMu.Unlock()
	sem, ok := p.tenantSems[tenantID]
	if !ok {
		sem = make(chan struct{}, p.config.WorkersPerTenant)
		p.tenantSems[tenantID] = sem
	}
	return sem
}

// isCancelled reports whether Cancel was called for the batch
func (p *Processor) isCancelled(batchID uuid.UUID) bool {
	p.cancelMu.Lock()
	defer p.cancelMu.Unlock()
	return p.cancelled[batchID]
}

// Cancel stops scheduling of not-yet-started jobs of a batch. Jobs already in
// progress run to completion; descheduled jobs fail with the cancelled class.
func (p *Processor) Cancel(batchID uuid.UUID) {
	p.cancelMu.Lock()
	p.cancelled[batchID] = true
	p.cancelMu.Unlock()
	p.logger.Info("Batch cancellation requested", zap.String("batch_id", batchID.String()))
}

// ---------------------------------------------------------------------------
// Single job execution
// ---------------------------------------------------------------------------

// RunJob drives one queued job through its full retry loop and returns the
// final classified error, or nil on success.
func (p *Processor) RunJob(ctx context.Context, job *sync.SyncJob) error {
	return p.runJob(ctx, job, nil)
}

// runJob executes the retry loop. gate is non-nil for batch jobs and pauses
// sibling dispatch on rate-limit failures.
func (p *Processor) runJob(ctx context.Context, job *sync.SyncJob, gate *chunkGate) error {
	defer p.releaseInFlight(ctx, job)

	for {
		if gate != nil {
			if err := gate.wait(ctx); err != nil {
				return p.deschedule(ctx, job)
			}
		}

		if err := p.startAttempt(ctx, job); err != nil {
			return err
		}

		attemptCtx, cancel := context.WithTimeout(ctx, p.config.JobTimeout)
		execErr := p.executor.Execute(attemptCtx, job)
		cancel()

		if execErr == nil {
			return p.completeJob(ctx, job)
		}

		cerr := Classify(execErr)
		if cerr.Class.IsRateLimit() && gate != nil {
			gate.pause(p.config.RateLimitPause)
		}

		if err := p.failJob(ctx, job, cerr); err != nil {
			return err
		}

		if !p.config.Backoff.ShouldRetry(cerr, job.Attempt) {
			p.logger.Warn("Sync job permanently failed",
				zap.String("job_id", job.ID.String()),
				zap.String("tenant_id", job.TenantID.String()),
				zap.String("error_class", string(cerr.Class)),
				zap.Int("attempts", job.Attempt),
			)
			return cerr
		}

		if err := p.requeueJob(ctx, job); err != nil {
			return err
		}
		if err := p.sleep(ctx, p.config.Backoff.Delay(job.Attempt)); err != nil {
			return p.deschedule(ctx, job)
		}
	}
}

// startAttempt moves the job to inProgress and persists the transition
func (p *Processor) startAttempt(ctx context.Context, job *sync.SyncJob) error {
	from := job.Status
	if err := job.Start(); err != nil {
		return err
	}
	if err := p.recordJobTransition(ctx, job, from, sync.StatusInProgress, "", nil); err != nil {
		return err
	}
	return p.jobs.Save(ctx, job)
}

// completeJob moves the job to completed and persists the transition
func (p *Processor) completeJob(ctx context.Context, job *sync.SyncJob) error {
	from := job.Status
	detail := job.Detail
	if err := job.Complete(detail); err != nil {
		return err
	}
	if err := p.recordJobTransition(ctx, job, from, sync.StatusCompleted, detail, nil); err != nil {
		return err
	}
	return p.jobs.Save(ctx, job)
}

// failJob moves the job to failed with its classified error
func (p *Processor) failJob(ctx context.Context, job *sync.SyncJob, cerr *sync.ClassifiedError) error {
	from := job.Status
	if err := job.Fail(cerr); err != nil {
		return err
	}
	if err := p.recordJobTransition(ctx, job, from, sync.StatusFailed, cerr.Code, cerr); err != nil {
		return err
	}
	return p.jobs.Save(ctx, job)
}

// requeueJob moves a transiently failed job back to queued
func (p *Processor) requeueJob(ctx context.Context, job *sync.SyncJob) error {
	from := job.Status
	if err := job.Requeue(); err != nil {
		return err
	}
	if err := p.recordJobTransition(ctx, job, from, sync.StatusQueued, "retry", nil); err != nil {
		return err
	}
	return p.jobs.Save(ctx, job)
}

// deschedule fails a job that never ran because the batch was cancelled or
// the context ended.
func (p *Processor) deschedule(ctx context.Context, job *sync.SyncJob) error {
	cerr := sync.NewCancelledError()
	from := job.Status
	if err := job.Fail(cerr); err != nil {
		return err
	}
	// Persist with a fresh context: the job context is already done.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := p.recordJobTransition(saveCtx, job, from, sync.StatusFailed, cerr.Code, cerr); err != nil {
		return err
	}
	if err := p.jobs.Save(saveCtx, job); err != nil {
		return err
	}
	return cerr
}

func (p *Processor) recordJobTransition(ctx context.Context, job *sync.SyncJob, from, to sync.Status, detail string, cerr *sync.ClassifiedError) error {
	return p.tracker.RecordTransition(ctx, &sync.Transition{
		OwnerID:    job.ID,
		OwnerKind:  sync.OwnerKindJob,
		TenantID:   job.TenantID,
		EntityType: job.EntityType,
		FromState:  from,
		ToState:    to,
		Detail:     detail,
		Error:      cerr,
	})
}

// releaseInFlight frees the job's record key once the job reaches a terminal
// outcome for this run.
func (p *Processor) releaseInFlight(ctx context.Context, job *sync.SyncJob) {
	if p.inflight == nil {
		return
	}
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := p.inflight.Release(releaseCtx, job.InFlightKey(), job.ID); err != nil {
		p.logger.Warn("Failed to release in-flight key",
			zap.String("job_id", job.ID.String()),
			zap.String("key", job.InFlightKey()),
			zap.Error(err),
		)
	}
}

// ---------------------------------------------------------------------------
// Batch execution
// ---------------------------------------------------------------------------

// RunBatch executes all jobs of a batch in chunks and finalizes the batch
// counters. It returns once every job is resolved; the batch status reflects
// the aggregate outcome (completed, failed or partial).
func (p *Processor) RunBatch(ctx context.Context, batch *sync.SyncBatch, jobs []*sync.SyncJob) error {
	defer func() {
		p.cancelMu.Lock()
		delete(p.cancelled, batch.ID)
		p.cancelMu.Unlock()
	}()

	from := batch.Status
	if err := batch.Start(); err != nil {
		return err
	}
	if err := p.recordBatchTransition(ctx, batch, from, sync.StatusInProgress, ""); err != nil {
		return err
	}
	if err := p.batches.Save(ctx, batch); err != nil {
		return err
	}

	p.logger.Info("Batch started",
		zap.String("batch_id", batch.ID.String()),
		zap.String("tenant_id", batch.TenantID.String()),
		zap.String("entity_type", batch.EntityType.String()),
		zap.Int("total", batch.TotalCount),
		zap.Int("chunk_size", p.config.ChunkSize),
	)

	var batchMu stdsync.Mutex
	sem := p.tenantSemaphore(batch.TenantID)

	// Profiling labels let batch work be sliced per tenant in the profiler UI
	telemetry.NewProfilingScope(nil).
		WithOperation("batch_sync").
		WithTenantID(batch.TenantID.String()).
		Run(ctx, func(ctx context.Context) {
			for start := 0; start < len(jobs); start += p.config.ChunkSize {
				end := start + p.config.ChunkSize
				if end > len(jobs) {
					end = len(jobs)
				}
				chunk := jobs[start:end]
				gate := &chunkGate{}

				var wg stdsync.WaitGroup
				for _, job := range chunk {
					if p.isCancelled(batch.ID) || ctx.Err() != nil {
						err := p.deschedule(ctx, job)
						p.foldResult(ctx, batch, &batchMu, err == nil)
						continue
					}

					wg.Add(1)
					go func(job *sync.SyncJob) {
						defer wg.Done()
						select {
						case sem <- struct{}{}:
						case <-ctx.Done():
							err := p.deschedule(ctx, job)
							p.foldResult(ctx, batch, &batchMu, err == nil)
							return
						}
						defer func() { <-sem }()

						var err error
						if p.isCancelled(batch.ID) {
							err = p.deschedule(ctx, job)
						} else {
							err = p.runJob(ctx, job, gate)
						}
						p.foldResult(ctx, batch, &batchMu, err == nil)
					}(job)
				}
				wg.Wait()
			}
		})

	batchMu.Lock()
	finalStatus := batch.Status
	batchMu.Unlock()

	if err := p.recordBatchTransition(ctx, batch, sync.StatusInProgress, finalStatus, ""); err != nil {
		p.logger.Warn("Failed to record final batch transition",
			zap.String("batch_id", batch.ID.String()),
			zap.Error(err),
		)
	}
	if err := p.batches.Save(ctx, batch); err != nil {
		return err
	}

	p.logger.Info("Batch finished",
		zap.String("batch_id", batch.ID.String()),
		zap.String("status", finalStatus.String()),
		zap.Int("succeeded", batch.SucceededCount),
		zap.Int("failed", batch.FailedCount),
	)
	return nil
}

// foldResult records one job outcome into the batch counters and persists the
// updated counts so status queries see live progress.
func (p *Processor) foldResult(ctx context.Context, batch *sync.SyncBatch, mu *stdsync.Mutex, succeeded bool) {
	mu.Lock()
	defer mu.Unlock()
	if err := batch.RecordJobResult(succeeded); err != nil {
		p.logger.Warn("Dropped job result for finished batch",
			zap.String("batch_id", batch.ID.String()),
			zap.Error(err),
		)
		return
	}
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := p.batches.Save(saveCtx, batch); err != nil {
		p.logger.Warn("Failed to persist batch progress",
			zap.String("batch_id", batch.ID.String()),
			zap.Error(err),
		)
	}
}

func (p *Processor) recordBatchTransition(ctx context.Context, batch *sync.SyncBatch, from, to sync.Status, detail string) error {
	return p.tracker.RecordTransition(ctx, &sync.Transition{
		OwnerID:    batch.ID,
		OwnerKind:  sync.OwnerKindBatch,
		TenantID:   batch.TenantID,
		EntityType: batch.EntityType,
		FromState:  from,
		ToState:    to,
		Detail:     detail,
	})
}

// Ensure Processor implements sync.BatchProcessor
var _ sync.BatchProcessor = (*Processor)(nil)
