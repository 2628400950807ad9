// Package realtime implements the push layer that propagates task mutations
// to connected clients: the connection gate, per-user delivery rooms, and the
// mutation emitter.
//
// Delivery is at-most-once by design. A recipient with no open room is
// skipped, and nothing is queued or replayed; clients are expected to perform
// a full reload after every (re)connection to correct for missed events.
package realtime

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/tasksync/tasksync-api/internal/domain"
)

// EventType identifies the kind of push event.
type EventType string

// Push event types.
const (
	// EventConnected is the join confirmation sent to a client immediately
	// after admission, carrying its room key and connection ID.
	EventConnected EventType = "connected"

	EventTaskCreated  EventType = "task_created"
	EventTaskUpdated  EventType = "task_updated"
	EventTaskDeleted  EventType = "task_deleted"
	EventTaskShared   EventType = "task_shared"
	EventTaskUnshared EventType = "task_unshared"
)

// UserRef is a displayable reference to a user, embedded in task views so
// recipients can render owner and shared-user identities without extra lookups.
type UserRef struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
}

// TaskView is the full task representation pushed to clients. Unlike the
// domain Task it resolves owner and shared users to displayable identities.
type TaskView struct {
	ID          uuid.UUID           `json:"id"`
	Title       string              `json:"title"`
	Description string              `json:"description,omitempty"`
	Status      domain.TaskStatus   `json:"status"`
	Priority    domain.TaskPriority `json:"priority"`
	DueDate     *time.Time          `json:"due_date,omitempty"`
	Tags        []string            `json:"tags,omitempty"`
	Owner       UserRef             `json:"owner"`
	SharedWith  []UserRef           `json:"shared_with"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// NewUserRef builds a UserRef from a domain user.
func NewUserRef(user *domain.User) UserRef {
	return UserRef{
		ID:          user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
	}
}

// NewTaskView builds the push representation of a task from its post-commit
// domain record, its owner, and the resolved shared users.
func NewTaskView(task *domain.Task, owner *domain.User, shared []*domain.User) *TaskView {
	refs := make([]UserRef, 0, len(shared))
	for _, u := range shared {
		refs = append(refs, NewUserRef(u))
	}
	return &TaskView{
		ID:          task.ID,
		Title:       task.Title,
		Description: task.Description,
		Status:      task.Status,
		Priority:    task.Priority,
		DueDate:     task.DueDate,
		Tags:        task.Tags,
		Owner:       NewUserRef(owner),
		SharedWith:  refs,
		CreatedAt:   task.CreatedAt,
		UpdatedAt:   task.UpdatedAt,
	}
}

// Event is the push envelope. Full-body events carry Task; minimal events
// (task_deleted, task_unshared) carry only TaskID. The connected event carries
// the room key and connection ID instead.
type Event struct {
	Event        EventType `json:"event"`
	Task         *TaskView `json:"task,omitempty"`
	TaskID       string    `json:"task_id,omitempty"`
	RoomKey      string    `json:"room,omitempty"`
	ConnectionID string    `json:"connection_id,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// NewTaskEvent builds a full-body event for the given type and task view.
func NewTaskEvent(eventType EventType, view *TaskView, now time.Time) *Event {
	return &Event{
		Event:     eventType,
		Task:      view,
		TaskID:    view.ID.String(),
		Timestamp: now,
	}
}

// NewTaskIDEvent builds a minimal event carrying only the task identifier,
// used when the recipient no longer has (or never needs) the task body.
func NewTaskIDEvent(eventType EventType, taskID uuid.UUID, now time.Time) *Event {
	return &Event{
		Event:     eventType,
		TaskID:    taskID.String(),
		Timestamp: now,
	}
}

// NewConnectedEvent builds the join confirmation for a freshly admitted connection.
func NewConnectedEvent(roomKey uuid.UUID, connectionID string, now time.Time) *Event {
	return &Event{
		Event:        EventConnected,
		RoomKey:      roomKey.String(),
		ConnectionID: connectionID,
		Timestamp:    now,
	}
}

// Encode serializes the event for transport.
func (e *Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeEvent parses a transport frame back into an Event.
func DecodeEvent(data []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, err
	}
	return &event, nil
}
