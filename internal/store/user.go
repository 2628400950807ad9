package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/tasksync/tasksync-api/internal/domain"
)

// UserStore defines the interface for user data persistence.
type UserStore interface {
	// Create saves a new user to the store. The user must already carry a
	// hashed password. Returns ErrEmailExists if the email is already taken
	// and validation errors from the domain User if data is invalid.
	Create(ctx context.Context, user *domain.User) error

	// GetByID retrieves a user by their unique ID.
	// Returns ErrUserNotFound if the user does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)

	// GetByEmail retrieves a user by their email address (case-insensitive).
	// Returns ErrUserNotFound if the user does not exist.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)

	// GetByIDs retrieves the users for the given set of IDs. Missing IDs are
	// silently omitted from the result; the caller decides whether absence
	// matters. The result order is unspecified.
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*domain.User, error)

	// Update modifies an existing user's profile fields (display name,
	// picture, bio, phone, location). Returns ErrUserNotFound if the user
	// does not exist.
	Update(ctx context.Context, user *domain.User) error

	// Delete removes a user from the store by their ID. The database cascades
	// the deletion to owned tasks and share rows; callers that need the
	// affected task set for event emission must snapshot it first.
	// Returns ErrUserNotFound if the user does not exist.
	Delete(ctx context.Context, id uuid.UUID) error

	// WithTx returns a new UserStore instance that uses the provided
	// transaction. The transaction is created and managed by the caller.
	WithTx(tx *sql.Tx) UserStore
}
