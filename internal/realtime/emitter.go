package realtime

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tasksync/tasksync-api/internal/platform/logger"
)

// Pusher delivers an encoded event to every open connection of one user.
// Implemented by Registry; abstracted so the emitter can be tested against a
// recording fake.
type Pusher interface {
	// Push delivers the payload to the user's delivery room.
	// Returns ErrNoRoom if the user has no open room.
	Push(ctx context.Context, userID uuid.UUID, payload []byte) error
}

// Emitter translates persisted task mutations into push events, one per
// recipient room. It must be invoked only after the mutation has been durably
// committed — never speculatively — and with recipient sets snapshotted at
// commit time.
//
// Emission never returns an error: per-recipient failures are logged and
// counted, an offline recipient is a counted no-op, and nothing at this layer
// retries or queues. Re-emitting the same mutation is safe because recipients
// apply events by task identifier, which is naturally idempotent.
type Emitter struct {
	pusher  Pusher
	logger  *slog.Logger
	metrics *Metrics
	now     func() time.Time // Injectable for testing
}

// NewEmitter creates a mutation emitter that fans out through the given pusher.
func NewEmitter(pusher Pusher, logger *slog.Logger, metrics *Metrics) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = NopMetrics()
	}
	return &Emitter{
		pusher:  pusher,
		logger:  logger.With(slog.String("component", "mutation_emitter")),
		metrics: metrics,
		now:     time.Now,
	}
}

// TaskCreated pushes task_created to the owner. The shared set is empty at
// creation time, since sharing only happens as a separate explicit action.
func (e *Emitter) TaskCreated(ctx context.Context, view *TaskView) {
	event := NewTaskEvent(EventTaskCreated, view, e.now().UTC())
	e.fanOut(ctx, event, []uuid.UUID{view.Owner.ID})
}

// TaskUpdated pushes the full updated task, tagged task_updated, to the owner
// and every currently shared user. It applies uniformly whether the update
// changed fields, status, or priority.
func (e *Emitter) TaskUpdated(ctx context.Context, view *TaskView) {
	event := NewTaskEvent(EventTaskUpdated, view, e.now().UTC())
	e.fanOut(ctx, event, viewRecipients(view))
}

// TaskDeleted pushes a minimal task_deleted (identifier only, no task body)
// to the owner and the shared set as it existed immediately before deletion.
func (e *Emitter) TaskDeleted(ctx context.Context, taskID, ownerID uuid.UUID, sharedBefore []uuid.UUID) {
	event := NewTaskIDEvent(EventTaskDeleted, taskID, e.now().UTC())
	recipients := append([]uuid.UUID{ownerID}, sharedBefore...)
	e.fanOut(ctx, event, recipients)
}

// TaskShared pushes task_shared with the full task body to the newly added
// users only — they need the full object to materialize it for the first
// time — and re-pushes task_updated to the owner, whose view must reflect the
// new shared-user list.
func (e *Emitter) TaskShared(ctx context.Context, view *TaskView, newlyShared []uuid.UUID) {
	now := e.now().UTC()

	shared := NewTaskEvent(EventTaskShared, view, now)
	e.fanOut(ctx, shared, newlyShared)

	updated := NewTaskEvent(EventTaskUpdated, view, now)
	e.fanOut(ctx, updated, []uuid.UUID{view.Owner.ID})
}

// TaskUnshared pushes task_unshared carrying only the task identifier to the
// removed users — they no longer have visibility rights to the body — and,
// separately, task_updated with the refreshed shared list to the owner and
// all remaining shared users.
func (e *Emitter) TaskUnshared(ctx context.Context, view *TaskView, removed []uuid.UUID) {
	now := e.now().UTC()

	unshared := NewTaskIDEvent(EventTaskUnshared, view.ID, now)
	e.fanOut(ctx, unshared, removed)

	updated := NewTaskEvent(EventTaskUpdated, view, now)
	e.fanOut(ctx, updated, viewRecipients(view))
}

// fanOut delivers one event to each recipient's room. Each recipient's
// delivery is independent and isolated: a failure pushing to one never
// prevents pushing to the others.
func (e *Emitter) fanOut(ctx context.Context, event *Event, recipients []uuid.UUID) {
	log := logger.FromContextOrDefault(ctx, e.logger)

	payload, err := event.Encode()
	if err != nil {
		// Should be unreachable: events are plain structs.
		log.Error("failed to encode push event",
			slog.String("event", string(event.Event)),
			slog.String("error", err.Error()))
		e.metrics.EventsDropped.WithLabelValues(DropReasonEncode).Inc()
		return
	}

	for _, userID := range dedupe(recipients) {
		err := e.pusher.Push(ctx, userID, payload)
		switch {
		case err == nil:
			e.metrics.EventsEmitted.WithLabelValues(string(event.Event)).Inc()
		case errors.Is(err, ErrNoRoom):
			// Offline recipient: deliberate no-op, reload-on-reconnect is
			// the correctness backstop.
			e.metrics.EventsDropped.WithLabelValues(DropReasonOffline).Inc()
			log.Debug("recipient offline, push skipped",
				slog.String("event", string(event.Event)),
				slog.String("recipient", userID.String()))
		default:
			e.metrics.EventsDropped.WithLabelValues(DropReasonClosed).Inc()
			log.Warn("failed to push event to recipient",
				slog.String("event", string(event.Event)),
				slog.String("recipient", userID.String()),
				slog.String("error", err.Error()))
		}
	}
}

// viewRecipients is the owner plus the view's current shared set.
func viewRecipients(view *TaskView) []uuid.UUID {
	recipients := make([]uuid.UUID, 0, len(view.SharedWith)+1)
	recipients = append(recipients, view.Owner.ID)
	for _, ref := range view.SharedWith {
		recipients = append(recipients, ref.ID)
	}
	return recipients
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
