package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/tasksync/tasksync-api/internal/domain"
	"github.com/tasksync/tasksync-api/internal/platform/logger"
	"github.com/tasksync/tasksync-api/internal/realtime"
	"github.com/tasksync/tasksync-api/internal/service/auth"
	"github.com/tasksync/tasksync-api/internal/store"
)

// UpdateProfileInput carries a partial profile update; nil fields are left
// unchanged.
type UpdateProfileInput struct {
	DisplayName *string
	PictureURL  *string
	Bio         *string
	Phone       *string
	Location    *string
}

// UserService defines account lifecycle operations.
type UserService interface {
	// Register creates a new account with a bcrypt-hashed password. Returns
	// store.ErrEmailExists when the email is already registered.
	Register(ctx context.Context, email, displayName, password string) (*domain.User, error)

	// Authenticate verifies email and password, returning the user on
	// success and ErrInvalidCredentials on any mismatch.
	Authenticate(ctx context.Context, email, password string) (*domain.User, error)

	// Get returns the user by ID.
	Get(ctx context.Context, id uuid.UUID) (*domain.User, error)

	// UpdateProfile applies a partial profile update.
	UpdateProfile(ctx context.Context, id uuid.UUID, input UpdateProfileInput) (*domain.User, error)

	// Delete removes the account and all its owned tasks, and withdraws the
	// user from every task shared with them. Users who had the deleted
	// user's tasks shared with them receive task_deleted for each; for
	// tasks the deleted user was shared on, the remaining audience sees the
	// withdrawal as a share-set change.
	Delete(ctx context.Context, id uuid.UUID) error
}

// userService is the store-backed implementation of UserService.
type userService struct {
	users    store.UserStore
	tasks    store.TaskStore
	verifier auth.PasswordVerifier
	emitter  MutationEmitter
	logger   *slog.Logger
}

// NewUserService creates a UserService over the given stores.
func NewUserService(
	users store.UserStore,
	tasks store.TaskStore,
	verifier auth.PasswordVerifier,
	emitter MutationEmitter,
	log *slog.Logger,
) UserService {
	if log == nil {
		log = slog.Default()
	}
	return &userService{
		users:    users,
		tasks:    tasks,
		verifier: verifier,
		emitter:  emitter,
		logger:   log.With(slog.String("component", "user_service")),
	}
}

func (s *userService) Register(ctx context.Context, email, displayName, password string) (*domain.User, error) {
	user, err := domain.NewUser(email, displayName, password)
	if err != nil {
		return nil, err
	}

	hashed, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	user.HashedPassword = hashed
	user.Password = ""

	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *userService) Authenticate(ctx context.Context, email, password string) (*domain.User, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := s.verifier.Compare(user.HashedPassword, password); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

func (s *userService) Get(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return s.users.GetByID(ctx, id)
}

func (s *userService) UpdateProfile(ctx context.Context, id uuid.UUID, input UpdateProfileInput) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.DisplayName != nil {
		user.DisplayName = *input.DisplayName
	}
	if input.PictureURL != nil {
		user.PictureURL = *input.PictureURL
	}
	if input.Bio != nil {
		user.Bio = *input.Bio
	}
	if input.Phone != nil {
		user.Phone = *input.Phone
	}
	if input.Location != nil {
		user.Location = *input.Location
	}

	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *userService) Delete(ctx context.Context, id uuid.UUID) error {
	// Snapshot affected tasks before the cascade so the recipient sets
	// reflect the state immediately before deletion.
	owned, err := s.tasks.ListByOwner(ctx, id)
	if err != nil {
		return err
	}
	sharedWithUser, err := s.tasks.ListSharedWith(ctx, id)
	if err != nil {
		return err
	}

	// The database cascade removes owned tasks and share rows.
	if err := s.users.Delete(ctx, id); err != nil {
		return err
	}

	log := logger.FromContextOrDefault(ctx, s.logger)

	for _, task := range owned {
		s.emitter.TaskDeleted(ctx, task.ID, task.OwnerID, task.SharedWith)
	}

	// Tasks the deleted user was shared on lose a member; the owner and
	// remaining shared users see the updated shared set.
	for _, task := range sharedWithUser {
		remaining := make([]uuid.UUID, 0, len(task.SharedWith))
		for _, uid := range task.SharedWith {
			if uid != id {
				remaining = append(remaining, uid)
			}
		}
		task.SharedWith = remaining

		view, err := s.buildRemainderView(ctx, task)
		if err != nil {
			log.Error("failed to build push view after account deletion",
				slog.String("task_id", task.ID.String()),
				slog.String("error", err.Error()))
			continue
		}
		s.emitter.TaskUnshared(ctx, view, []uuid.UUID{id})
	}

	log.Info("user account deleted",
		slog.String("user_id", id.String()),
		slog.Int("owned_tasks_removed", len(owned)),
		slog.Int("shares_withdrawn", len(sharedWithUser)))
	return nil
}

func (s *userService) buildRemainderView(ctx context.Context, task *domain.Task) (*realtime.TaskView, error) {
	owner, err := s.users.GetByID(ctx, task.OwnerID)
	if err != nil {
		return nil, err
	}
	shared, err := s.users.GetByIDs(ctx, task.SharedWith)
	if err != nil {
		return nil, err
	}
	return realtime.NewTaskView(task, owner, shared), nil
}
