package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tasksync/tasksync-api/internal/domain"
	"github.com/tasksync/tasksync-api/internal/platform/logger"
	"github.com/tasksync/tasksync-api/internal/realtime"
	"github.com/tasksync/tasksync-api/internal/store"
)

// MutationEmitter is the post-commit push hook. Satisfied by *realtime.Emitter.
// Services call it only after a mutation has durably committed; the emitter
// never fails the calling operation.
type MutationEmitter interface {
	TaskCreated(ctx context.Context, view *realtime.TaskView)
	TaskUpdated(ctx context.Context, view *realtime.TaskView)
	TaskDeleted(ctx context.Context, taskID, ownerID uuid.UUID, sharedBefore []uuid.UUID)
	TaskShared(ctx context.Context, view *realtime.TaskView, newlyShared []uuid.UUID)
	TaskUnshared(ctx context.Context, view *realtime.TaskView, removed []uuid.UUID)
}

// CreateTaskInput carries the caller-supplied fields for task creation.
type CreateTaskInput struct {
	Title       string
	Description string
	Priority    domain.TaskPriority
	DueDate     *time.Time
	Tags        []string
}

// UpdateTaskInput carries a partial update; nil fields are left unchanged.
// ClearDueDate removes an existing due date.
type UpdateTaskInput struct {
	Title        *string
	Description  *string
	Status       *domain.TaskStatus
	Priority     *domain.TaskPriority
	DueDate      *time.Time
	ClearDueDate bool
	Tags         *[]string
}

// TaskService defines the task CRUD and sharing operations.
type TaskService interface {
	// Create persists a new task owned by ownerID and pushes task_created to
	// the owner's room.
	Create(ctx context.Context, ownerID uuid.UUID, input CreateTaskInput) (*domain.Task, error)

	// Get returns the task if the user owns it or has it shared with them;
	// ErrNotVisible otherwise.
	Get(ctx context.Context, userID, taskID uuid.UUID) (*domain.Task, error)

	// ListOwned returns the user's own tasks, newest first.
	ListOwned(ctx context.Context, userID uuid.UUID) ([]*domain.Task, error)

	// ListShared returns tasks shared with the user, newest first.
	ListShared(ctx context.Context, userID uuid.UUID) ([]*domain.Task, error)

	// Update applies a partial update (owner only) and pushes task_updated to
	// the owner and all currently shared users.
	Update(ctx context.Context, userID, taskID uuid.UUID, input UpdateTaskInput) (*domain.Task, error)

	// Delete removes the task (owner only) and pushes task_deleted to the
	// owner and the shared set as it existed immediately before deletion.
	Delete(ctx context.Context, userID, taskID uuid.UUID) error

	// Share adds the user identified by email to the task's shared set
	// (owner only). The new user receives task_shared with the full body;
	// the owner receives task_updated. Sharing with the owner is rejected
	// with domain.ErrSelfShare before anything is persisted or emitted.
	// Re-sharing with an already-shared user is a no-op.
	Share(ctx context.Context, ownerID, taskID uuid.UUID, email string) (*domain.Task, error)

	// Unshare removes the user identified by email from the shared set
	// (owner only). The removed user receives task_unshared with the task
	// identifier; the owner and remaining shared users receive task_updated.
	// Unsharing a user who is not shared is a no-op.
	Unshare(ctx context.Context, ownerID, taskID uuid.UUID, email string) (*domain.Task, error)
}

// taskService is the store-backed implementation of TaskService.
type taskService struct {
	tasks   store.TaskStore
	users   store.UserStore
	db      *sql.DB
	emitter MutationEmitter
	logger  *slog.Logger
}

// NewTaskService creates a TaskService over the given stores and emitter.
// db may be nil when the stores are already atomic, as in tests; sharing
// mutations then run without an explicit transaction.
func NewTaskService(
	tasks store.TaskStore,
	users store.UserStore,
	db *sql.DB,
	emitter MutationEmitter,
	log *slog.Logger,
) TaskService {
	if log == nil {
		log = slog.Default()
	}
	return &taskService{
		tasks:   tasks,
		users:   users,
		db:      db,
		emitter: emitter,
		logger:  log.With(slog.String("component", "task_service")),
	}
}

// inTaskTx runs fn against a transactional task store when a database handle
// is available, so multi-statement mutations commit or roll back as a unit.
func (s *taskService) inTaskTx(ctx context.Context, fn func(tasks store.TaskStore) error) error {
	if s.db == nil {
		return fn(s.tasks)
	}
	return store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		return fn(s.tasks.WithTx(tx))
	})
}

func (s *taskService) Create(ctx context.Context, ownerID uuid.UUID, input CreateTaskInput) (*domain.Task, error) {
	task, err := domain.NewTask(ownerID, input.Title, input.Description, input.Priority, input.DueDate, input.Tags)
	if err != nil {
		return nil, err
	}

	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, err
	}

	// Commit succeeded; emission failures must not fail the request.
	if view, err := s.buildView(ctx, task); err == nil {
		s.emitter.TaskCreated(ctx, view)
	} else {
		s.logViewError(ctx, task.ID, err)
	}
	return task, nil
}

func (s *taskService) Get(ctx context.Context, userID, taskID uuid.UUID) (*domain.Task, error) {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !task.VisibleTo(userID) {
		return nil, ErrNotVisible
	}
	return task, nil
}

func (s *taskService) ListOwned(ctx context.Context, userID uuid.UUID) ([]*domain.Task, error) {
	return s.tasks.ListByOwner(ctx, userID)
}

func (s *taskService) ListShared(ctx context.Context, userID uuid.UUID) ([]*domain.Task, error) {
	return s.tasks.ListSharedWith(ctx, userID)
}

func (s *taskService) Update(ctx context.Context, userID, taskID uuid.UUID, input UpdateTaskInput) (*domain.Task, error) {
	task, err := s.ownedTask(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}

	if input.Title != nil {
		task.Title = *input.Title
	}
	if input.Description != nil {
		task.Description = *input.Description
	}
	if input.Status != nil {
		task.Status = *input.Status
	}
	if input.Priority != nil {
		task.Priority = *input.Priority
	}
	if input.Tags != nil {
		task.Tags = *input.Tags
	}
	switch {
	case input.ClearDueDate:
		task.DueDate = nil
	case input.DueDate != nil:
		// The floor applies only when the due date is being (re)set.
		if err := domain.ValidateDueDate(input.DueDate, time.Now().UTC()); err != nil {
			return nil, err
		}
		task.DueDate = input.DueDate
	}
	task.Touch()

	if err := task.Validate(); err != nil {
		return nil, err
	}
	if err := s.tasks.Update(ctx, task); err != nil {
		return nil, err
	}

	if view, err := s.buildView(ctx, task); err == nil {
		s.emitter.TaskUpdated(ctx, view)
	} else {
		s.logViewError(ctx, task.ID, err)
	}
	return task, nil
}

func (s *taskService) Delete(ctx context.Context, userID, taskID uuid.UUID) error {
	task, err := s.ownedTask(ctx, userID, taskID)
	if err != nil {
		return err
	}

	// Snapshot the shared set before deletion; it is the recipient set for
	// the task_deleted event.
	sharedBefore := append([]uuid.UUID(nil), task.SharedWith...)

	if err := s.tasks.Delete(ctx, taskID); err != nil {
		return err
	}

	s.emitter.TaskDeleted(ctx, taskID, task.OwnerID, sharedBefore)
	return nil
}

func (s *taskService) Share(ctx context.Context, ownerID, taskID uuid.UUID, email string) (*domain.Task, error) {
	task, err := s.ownedTask(ctx, ownerID, taskID)
	if err != nil {
		return nil, err
	}

	target, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	// Self-share is rejected before any persistence or emission.
	if target.ID == task.OwnerID {
		return nil, domain.ErrSelfShare
	}
	if task.IsSharedWith(target.ID) {
		return task, nil
	}

	task.SharedWith = append(task.SharedWith, target.ID)
	task.Touch()
	err = s.inTaskTx(ctx, func(tasks store.TaskStore) error {
		if err := tasks.AddShare(ctx, taskID, target.ID); err != nil {
			return err
		}
		return tasks.Update(ctx, task)
	})
	if err != nil {
		return nil, err
	}

	if view, err := s.buildView(ctx, task); err == nil {
		s.emitter.TaskShared(ctx, view, []uuid.UUID{target.ID})
	} else {
		s.logViewError(ctx, task.ID, err)
	}
	return task, nil
}

func (s *taskService) Unshare(ctx context.Context, ownerID, taskID uuid.UUID, email string) (*domain.Task, error) {
	task, err := s.ownedTask(ctx, ownerID, taskID)
	if err != nil {
		return nil, err
	}

	target, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if !task.IsSharedWith(target.ID) {
		return task, nil
	}

	remaining := make([]uuid.UUID, 0, len(task.SharedWith)-1)
	for _, id := range task.SharedWith {
		if id != target.ID {
			remaining = append(remaining, id)
		}
	}
	task.SharedWith = remaining
	task.Touch()
	err = s.inTaskTx(ctx, func(tasks store.TaskStore) error {
		if err := tasks.RemoveShare(ctx, taskID, target.ID); err != nil {
			return err
		}
		return tasks.Update(ctx, task)
	})
	if err != nil {
		return nil, err
	}

	if view, err := s.buildView(ctx, task); err == nil {
		s.emitter.TaskUnshared(ctx, view, []uuid.UUID{target.ID})
	} else {
		s.logViewError(ctx, task.ID, err)
	}
	return task, nil
}

// ownedTask loads a task and enforces that userID is its owner.
func (s *taskService) ownedTask(ctx context.Context, userID, taskID uuid.UUID) (*domain.Task, error) {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.OwnerID != userID {
		if task.IsSharedWith(userID) {
			return nil, ErrNotOwner
		}
		return nil, ErrNotVisible
	}
	return task, nil
}

// buildView resolves the post-commit task into its push representation, with
// owner and shared users resolved to displayable identities.
func (s *taskService) buildView(ctx context.Context, task *domain.Task) (*realtime.TaskView, error) {
	owner, err := s.users.GetByID(ctx, task.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve task owner: %w", err)
	}
	shared, err := s.users.GetByIDs(ctx, task.SharedWith)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve shared users: %w", err)
	}
	return realtime.NewTaskView(task, owner, shared), nil
}

func (s *taskService) logViewError(ctx context.Context, taskID uuid.UUID, err error) {
	log := logger.FromContextOrDefault(ctx, s.logger)
	if errors.Is(err, context.Canceled) {
		return
	}
	log.Error("failed to build push view, event not emitted",
		slog.String("task_id", taskID.String()),
		slog.String("error", err.Error()))
}
