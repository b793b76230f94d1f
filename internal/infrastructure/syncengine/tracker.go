package syncengine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ledgerlink/backend/internal/domain/shared"
	"github.com/ledgerlink/backend/internal/domain/sync"
)

// Tracker is the single writer of the status history log. Every job and batch
// transition flows through RecordTransition, which enforces the state machine,
// appends to the immutable log and notifies event consumers without blocking.
type Tracker struct {
	transitions sync.TransitionRepository
	publisher   shared.EventPublisher
	logger      *zap.Logger
}

// NewTracker creates a status tracker. publisher may be nil when event
// delivery is not wired (tests, CLI tooling).
func NewTracker(transitions sync.TransitionRepository, publisher shared.EventPublisher, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		transitions: transitions,
		publisher:   publisher,
		logger:      logger,
	}
}

// RecordTransition validates the edge, appends it to the history and emits a
// status event. The event publish is fire-and-forget: a slow or failing
// consumer can never stall sync progress.
func (t *Tracker) RecordTransition(ctx context.Context, transition *sync.Transition) error {
	if transition.OwnerID == uuid.Nil || transition.TenantID == uuid.Nil {
		return sync.ErrInvalidTenantID
	}
	if !transition.FromState.CanTransitionTo(transition.ToState) {
		t.logger.Warn("Rejected illegal status transition",
			zap.String("owner_id", transition.OwnerID.String()),
			zap.String("from", transition.FromState.String()),
			zap.String("to", transition.ToState.String()),
		)
		return sync.ErrInvalidTransition
	}
	if transition.OccurredAt.IsZero() {
		transition.OccurredAt = time.Now()
	}

	if err := t.transitions.Append(ctx, transition); err != nil {
		return err
	}

	t.logger.Debug("Status transition recorded",
		zap.String("owner_id", transition.OwnerID.String()),
		zap.String("owner_kind", string(transition.OwnerKind)),
		zap.String("tenant_id", transition.TenantID.String()),
		zap.String("from", transition.FromState.String()),
		zap.String("to", transition.ToState.String()),
		zap.String("detail", transition.Detail),
	)

	if t.publisher != nil {
		event := sync.NewStatusChangedEvent(transition)
		go func() {
			// Detach from the request context so cancellation of the sync
			// call does not drop the notification.
			publishCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := t.publisher.Publish(publishCtx, event); err != nil {
				t.logger.Warn("Failed to publish status event",
					zap.String("event_type", event.EventType()),
					zap.String("owner_id", transition.OwnerID.String()),
					zap.Error(err),
				)
			}
		}()
	}

	return nil
}

// History returns the ordered transition log for a job or batch
func (t *Tracker) History(ctx context.Context, tenantID uuid.UUID, ownerID uuid.UUID) ([]sync.Transition, error) {
	if tenantID == uuid.Nil {
		return nil, sync.ErrInvalidTenantID
	}
	return t.transitions.ListByOwner(ctx, tenantID, ownerID)
}

// Ensure Tracker implements sync.StatusTracker
var _ sync.StatusTracker = (*Tracker)(nil)
