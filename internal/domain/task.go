package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Task-specific validation errors
var (
	// ErrTaskIDEmpty is returned when a task ID is empty or nil.
	ErrTaskIDEmpty = errors.New("task ID cannot be empty")

	// ErrTaskOwnerEmpty is returned when a task's owner ID is empty or nil.
	ErrTaskOwnerEmpty = errors.New("task owner ID cannot be empty")

	// ErrTaskTitleEmpty is returned when a task's title is empty.
	ErrTaskTitleEmpty = errors.New("task title cannot be empty")

	// ErrTaskTitleTooLong is returned when a task's title exceeds the limit.
	ErrTaskTitleTooLong = errors.New("task title cannot exceed 200 characters")

	// ErrInvalidTaskStatus is returned when a task status is not a known value.
	ErrInvalidTaskStatus = errors.New("invalid task status")

	// ErrInvalidTaskPriority is returned when a task priority is not a known value.
	ErrInvalidTaskPriority = errors.New("invalid task priority")

	// ErrSelfShare is returned when a task's owner appears in its own shared set.
	ErrSelfShare = errors.New("task cannot be shared with its owner")

	// ErrDueDateTooSoon is returned when a due date is in the past or less
	// than the minimum lead time away at write time.
	ErrDueDateTooSoon = errors.New("due date must be at least one minute in the future")
)

// TaskStatus represents the workflow state of a task.
type TaskStatus string

// Valid task statuses.
const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in-progress"
	TaskStatusCompleted  TaskStatus = "completed"
)

// IsValid reports whether the status is one of the known values.
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted:
		return true
	}
	return false
}

// TaskPriority represents the urgency of a task.
type TaskPriority string

// Valid task priorities.
const (
	TaskPriorityLow    TaskPriority = "low"
	TaskPriorityMedium TaskPriority = "medium"
	TaskPriorityHigh   TaskPriority = "high"
)

// IsValid reports whether the priority is one of the known values.
func (p TaskPriority) IsValid() bool {
	switch p {
	case TaskPriorityLow, TaskPriorityMedium, TaskPriorityHigh:
		return true
	}
	return false
}

// MinDueDateLead is the practical floor for due dates: a due date supplied at
// create or update time must be at least this far in the future.
const MinDueDateLead = time.Minute

// Task represents a task record owned by exactly one user and optionally
// shared with others. The owner is immutable after creation; SharedWith is a
// visibility relation mutable by the owner only.
type Task struct {
	ID          uuid.UUID    `json:"id"`
	OwnerID     uuid.UUID    `json:"owner_id"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Status      TaskStatus   `json:"status"`
	Priority    TaskPriority `json:"priority"`
	DueDate     *time.Time   `json:"due_date,omitempty"`
	Tags        []string     `json:"tags,omitempty"`
	SharedWith  []uuid.UUID  `json:"shared_with"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// NewTask creates a new Task with the given owner and attributes. It generates
// a new UUID for the task ID, sets status to pending, and stamps the
// creation/update timestamps. Returns an error if validation fails, including
// the due-date floor check against the current time.
func NewTask(
	ownerID uuid.UUID,
	title, description string,
	priority TaskPriority,
	dueDate *time.Time,
	tags []string,
) (*Task, error) {
	now := time.Now().UTC()

	task := &Task{
		ID:          uuid.New(),
		OwnerID:     ownerID,
		Title:       title,
		Description: description,
		Status:      TaskStatusPending,
		Priority:    priority,
		DueDate:     dueDate,
		Tags:        tags,
		SharedWith:  []uuid.UUID{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := task.Validate(); err != nil {
		return nil, err
	}
	if err := ValidateDueDate(dueDate, now); err != nil {
		return nil, err
	}

	return task, nil
}

// Validate checks if the Task has valid data.
// Returns an error if any field fails validation.
//
// The due-date floor is intentionally not checked here: it is a write-time
// rule, and already-persisted tasks with past due dates remain valid.
func (t *Task) Validate() error {
	if t.ID == uuid.Nil {
		return ErrTaskIDEmpty
	}
	if t.OwnerID == uuid.Nil {
		return ErrTaskOwnerEmpty
	}
	if t.Title == "" {
		return ErrTaskTitleEmpty
	}
	if len(t.Title) > 200 {
		return ErrTaskTitleTooLong
	}
	if !t.Status.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidTaskStatus, t.Status)
	}
	if !t.Priority.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidTaskPriority, t.Priority)
	}
	for _, id := range t.SharedWith {
		if id == t.OwnerID {
			return ErrSelfShare
		}
	}
	return nil
}

// ValidateDueDate enforces the write-time due-date floor: a due date, if set,
// must be at least MinDueDateLead past the reference time. A nil due date is
// always valid.
func ValidateDueDate(dueDate *time.Time, now time.Time) error {
	if dueDate == nil {
		return nil
	}
	if dueDate.Before(now.Add(MinDueDateLead)) {
		return ErrDueDateTooSoon
	}
	return nil
}

// IsSharedWith reports whether the task is currently shared with the given user.
func (t *Task) IsSharedWith(userID uuid.UUID) bool {
	for _, id := range t.SharedWith {
		if id == userID {
			return true
		}
	}
	return false
}

// VisibleTo reports whether the given user may read the task: the owner and
// every currently-shared user have visibility.
func (t *Task) VisibleTo(userID uuid.UUID) bool {
	return t.OwnerID == userID || t.IsSharedWith(userID)
}

// Touch updates the UpdatedAt timestamp to the current time.
func (t *Task) Touch() {
	t.UpdatedAt = time.Now().UTC()
}
