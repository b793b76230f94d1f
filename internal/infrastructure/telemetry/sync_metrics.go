package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/ledgerlink/backend/internal/domain/shared"
	"github.com/ledgerlink/backend/internal/domain/sync"
)

// =============================================================================
// Sync Metrics
// =============================================================================

// SyncMetrics records sync engine outcomes from status change events.
// It subscribes to the event bus so recording never sits on the hot path
// of the workers.
type SyncMetrics struct {
	transitions *Counter
	completed   *Counter
	failed      *Counter
	logger      *zap.Logger
}

// NewSyncMetrics creates the sync outcome instruments on the given meter.
func NewSyncMetrics(meter metric.Meter, logger *zap.Logger) (*SyncMetrics, error) {
	transitions, err := NewCounter(meter,
		"sync_transitions_total",
		"Total number of recorded job and batch status transitions",
		"{transition}")
	if err != nil {
		return nil, err
	}

	completed, err := NewCounter(meter,
		"sync_completed_total",
		"Total number of jobs and batches that reached a terminal success state",
		"{owner}")
	if err != nil {
		return nil, err
	}

	failed, err := NewCounter(meter,
		"sync_failed_total",
		"Total number of jobs and batches that reached the failed state",
		"{owner}")
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{
		transitions: transitions,
		completed:   completed,
		failed:      failed,
		logger:      logger,
	}, nil
}

// EventTypes returns the event types this handler subscribes to.
func (m *SyncMetrics) EventTypes() []string {
	return []string{
		sync.EventTypeJobStatusChanged,
		sync.EventTypeBatchStatusChanged,
	}
}

// Handle records counters for a status change event. Unknown event types are
// ignored so a widened subscription never breaks metric collection.
func (m *SyncMetrics) Handle(ctx context.Context, event shared.DomainEvent) error {
	changed, ok := event.(*sync.StatusChangedEvent)
	if !ok {
		m.logger.Debug("Ignoring non-status event in sync metrics",
			zap.String("event_type", event.EventType()))
		return nil
	}

	attrs := []attribute.KeyValue{
		AttrTenantID.String(changed.TenantID().String()),
		AttrOwnerKind.String(string(changed.OwnerKind)),
		AttrEntityType.String(string(changed.EntityType)),
		AttrSyncState.String(string(changed.ToState)),
	}
	m.transitions.Inc(ctx, attrs...)

	switch {
	case changed.ToState == sync.StatusCompleted:
		m.completed.Inc(ctx,
			AttrTenantID.String(changed.TenantID().String()),
			AttrOwnerKind.String(string(changed.OwnerKind)),
			AttrEntityType.String(string(changed.EntityType)),
		)
	case changed.ToState == sync.StatusFailed:
		m.failed.Inc(ctx,
			AttrTenantID.String(changed.TenantID().String()),
			AttrOwnerKind.String(string(changed.OwnerKind)),
			AttrEntityType.String(string(changed.EntityType)),
			AttrErrorClass.String(string(changed.ErrorClass)),
		)
	}

	return nil
}

var _ shared.EventHandler = (*SyncMetrics)(nil)
