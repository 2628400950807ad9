package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/tasksync/tasksync-api/internal/domain"
)

// TaskStore defines the interface for task data persistence.
// All read methods return tasks with the SharedWith set fully loaded.
type TaskStore interface {
	// Create saves a new task to the store.
	// Returns ErrInvalidEntity if the owner does not exist and validation
	// errors from the domain Task if data is invalid.
	Create(ctx context.Context, task *domain.Task) error

	// GetByID retrieves a task by its unique ID.
	// Returns ErrTaskNotFound if the task does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// Update modifies an existing task's mutable fields (title, description,
	// status, priority, due date, tags). The owner and shared set are not
	// touched; sharing changes go through AddShare/RemoveShare.
	// Returns ErrTaskNotFound if the task does not exist.
	Update(ctx context.Context, task *domain.Task) error

	// Delete removes a task from the store by its ID. Share rows cascade.
	// Returns ErrTaskNotFound if the task does not exist.
	Delete(ctx context.Context, id uuid.UUID) error

	// ListByOwner retrieves all tasks owned by the given user, newest first.
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*domain.Task, error)

	// ListSharedWith retrieves all tasks shared with the given user, newest first.
	ListSharedWith(ctx context.Context, userID uuid.UUID) ([]*domain.Task, error)

	// AddShare records that the task is shared with the given user.
	// Adding an existing share is a no-op. Returns ErrTaskNotFound or
	// ErrInvalidEntity if the task or user does not exist.
	AddShare(ctx context.Context, taskID, userID uuid.UUID) error

	// RemoveShare removes the given user from the task's shared set.
	// Removing a non-existent share is a no-op.
	RemoveShare(ctx context.Context, taskID, userID uuid.UUID) error

	// WithTx returns a new TaskStore instance that uses the provided
	// transaction. The transaction is created and managed by the caller.
	WithTx(tx *sql.Tx) TaskStore
}
