// Package command contains write operations (CQRS - Commands) of the
// blood request lifecycle.
package command

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/bloodlink/donor-hub/internal/domain/donor"
	"github.com/bloodlink/donor-hub/internal/domain/request"
	"github.com/bloodlink/donor-hub/internal/domain/shared"
	"github.com/bloodlink/donor-hub/pkg/logger"
	"github.com/bloodlink/donor-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE
// Owns every state change of a blood request. Each operation follows the
// same order of checks: load, authorize, current status, arguments, then a
// conditional write that fails if another writer got there first.
// ══════════════════════════════════════════════════════════════════════════════

// IDGenerator produces new request IDs.
type IDGenerator func() request.ID

// NewUUID generates random UUID request IDs.
func NewUUID() request.ID {
	return request.ID(uuid.NewString())
}

// Lifecycle handles Create, Accept, Reject, Cancel and Complete.
type Lifecycle struct {
	store     request.Store
	publisher shared.EventPublisher
	clock     timeutil.Clock
	newID     IDGenerator
	log       *logger.Logger
}

// LifecycleOption configures a Lifecycle.
type LifecycleOption func(*Lifecycle)

// WithPublisher sets the event publisher. Defaults to shared.NopPublisher.
func WithPublisher(p shared.EventPublisher) LifecycleOption {
	return func(l *Lifecycle) { l.publisher = p }
}

// WithClock overrides the time source used for timestamps.
func WithClock(c timeutil.Clock) LifecycleOption {
	return func(l *Lifecycle) { l.clock = c }
}

// WithIDGenerator overrides request ID generation.
func WithIDGenerator(g IDGenerator) LifecycleOption {
	return func(l *Lifecycle) { l.newID = g }
}

// WithLogger sets the logger.
func WithLogger(log *logger.Logger) LifecycleOption {
	return func(l *Lifecycle) { l.log = log }
}

// NewLifecycle creates a lifecycle handler over store.
func NewLifecycle(store request.Store, opts ...LifecycleOption) *Lifecycle {
	l := &Lifecycle{
		store:     store,
		publisher: shared.NopPublisher{},
		clock:     timeutil.SystemClock,
		newID:     NewUUID,
		log:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.log = l.log.With(logger.Component("lifecycle"))
	return l
}

// ══════════════════════════════════════════════════════════════════════════════
// SHARED TRANSITION PATH
// ══════════════════════════════════════════════════════════════════════════════

// transition is the common path for Accept, Reject and Cancel.
func (l *Lifecycle) transition(ctx context.Context, op string, id request.ID, actor donor.ID, target request.Status, note *string) (*request.BloodRequest, error) {
	current, err := l.store.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := current.Authorize(actor, target); err != nil {
		return nil, err
	}
	if err := current.CheckTransition(target); err != nil {
		return nil, err
	}

	patch := request.Patch{
		Status:    target,
		Note:      note,
		UpdatedAt: l.clock.Now(),
	}
	updated, err := l.store.UpdateRequestStatus(ctx, id, current.Status, patch)
	if err != nil {
		return nil, lostRace(op, err)
	}

	l.log.Info("request transitioned",
		logger.Operation(op),
		logger.BloodRequestID(id.String()),
		logger.ActorID(actor.String()),
		logger.RequestStatus(target.String()),
	)
	l.publish(updated, actor, target)
	return updated, nil
}

// lostRace turns a failed conditional write into InvalidTransition.
func lostRace(op string, err error) error {
	if errors.Is(err, shared.ErrConflict) {
		return shared.WrapError("request", op, shared.ErrInvalidTransition,
			"request status changed before this transition was applied", err)
	}
	return err
}

// publish emits the lifecycle event. Failures are logged only.
func (l *Lifecycle) publish(r *request.BloodRequest, actor donor.ID, target request.Status) {
	event := shared.NewRequestTransitionedEvent(
		target.EventType(),
		r.ID.String(),
		r.RequesterID.String(),
		r.DonorID.String(),
		r.Status.String(),
		actor.String(),
		r.UpdatedAt,
	)
	event.Note = r.Note
	if r.Rating != nil {
		event.Rating = *r.Rating
	}

	if err := l.publisher.Publish(event); err != nil {
		l.log.Warn("failed to publish request event",
			logger.String("event_type", string(event.EventType())),
			logger.BloodRequestID(r.ID.String()),
			logger.Err(err),
		)
	}
}

// optionalNote returns nil for an empty note so the stored value is untouched.
func optionalNote(note string) *string {
	if note == "" {
		return nil
	}
	return &note
}
