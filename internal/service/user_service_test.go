package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tasksync/tasksync-api/internal/domain"
	"github.com/tasksync/tasksync-api/internal/realtime"
	"github.com/tasksync/tasksync-api/internal/service/auth"
	"github.com/tasksync/tasksync-api/internal/store"
)

func setupUserService(t *testing.T) (*fakeTaskStore, *fakeUserStore, *recordingEmitter, UserService) {
	t.Helper()
	tasks := newFakeTaskStore()
	users := newFakeUserStore()
	emitter := &recordingEmitter{}
	svc := NewUserService(users, tasks, auth.NewBcryptVerifier(), emitter, nil)
	return tasks, users, emitter, svc
}

func TestUserServiceRegister(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("hashes the password and clears the plaintext", func(t *testing.T) {
		t.Parallel()
		_, _, _, svc := setupUserService(t)

		user, err := svc.Register(ctx, "new@example.com", "New User", "a-long-password")
		require.NoError(t, err)
		assert.Empty(t, user.Password)
		assert.NotEmpty(t, user.HashedPassword)
		assert.NotEqual(t, "a-long-password", user.HashedPassword)
		assert.Equal(t, "new@example.com", user.Email)
	})

	t.Run("duplicate email", func(t *testing.T) {
		t.Parallel()
		_, _, _, svc := setupUserService(t)

		_, err := svc.Register(ctx, "dup@example.com", "First", "a-long-password")
		require.NoError(t, err)
		_, err = svc.Register(ctx, "dup@example.com", "Second", "a-long-password")
		assert.ErrorIs(t, err, store.ErrEmailExists)
	})

	t.Run("short password", func(t *testing.T) {
		t.Parallel()
		_, _, _, svc := setupUserService(t)

		_, err := svc.Register(ctx, "short@example.com", "Short", "tiny")
		assert.Error(t, err)
	})
}

func TestUserServiceAuthenticate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	_, _, _, svc := setupUserService(t)
	registered, err := svc.Register(ctx, "login@example.com", "Login User", "correct-password")
	require.NoError(t, err)

	t.Run("valid credentials", func(t *testing.T) {
		user, err := svc.Authenticate(ctx, "login@example.com", "correct-password")
		require.NoError(t, err)
		assert.Equal(t, registered.ID, user.ID)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := svc.Authenticate(ctx, "login@example.com", "wrong-password")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("unknown email maps to the same error", func(t *testing.T) {
		_, err := svc.Authenticate(ctx, "ghost@example.com", "correct-password")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})
}

func TestUserServiceDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("cascades and notifies affected users", func(t *testing.T) {
		t.Parallel()
		tasks, users, emitter, svc := setupUserService(t)
		taskSvc := NewTaskService(tasks, users, nil, emitter, nil)

		leaver := newTestUser(t, "leaver@example.com")
		friend := newTestUser(t, "friend@example.com")
		users.add(leaver)
		users.add(friend)

		// A task the leaver owns and shares with friend.
		owned, err := taskSvc.Create(ctx, leaver.ID, CreateTaskInput{Title: "Owned", Priority: domain.TaskPriorityLow})
		require.NoError(t, err)
		_, err = taskSvc.Share(ctx, leaver.ID, owned.ID, "friend@example.com")
		require.NoError(t, err)

		// A task friend owns and shares with the leaver.
		borrowed, err := taskSvc.Create(ctx, friend.ID, CreateTaskInput{Title: "Borrowed", Priority: domain.TaskPriorityLow})
		require.NoError(t, err)
		_, err = taskSvc.Share(ctx, friend.ID, borrowed.ID, "leaver@example.com")
		require.NoError(t, err)

		before := emitter.callCount()
		require.NoError(t, svc.Delete(ctx, leaver.ID))

		_, err = users.GetByID(ctx, leaver.ID)
		assert.ErrorIs(t, err, store.ErrUserNotFound)

		// One task_deleted for the owned task, one task_unshared for the
		// withdrawn share.
		calls := emitter.callCount() - before
		require.Equal(t, 2, calls)

		var sawDeleted, sawUnshared bool
		for i := before; i < emitter.callCount(); i++ {
			call := emitter.call(i)
			switch call.kind {
			case realtime.EventTaskDeleted:
				sawDeleted = true
				assert.Equal(t, owned.ID, call.taskID)
				assert.Equal(t, leaver.ID, call.ownerID)
				assert.Equal(t, []uuid.UUID{friend.ID}, call.recipients)
			case realtime.EventTaskUnshared:
				sawUnshared = true
				assert.Equal(t, borrowed.ID, call.taskID)
				assert.Equal(t, []uuid.UUID{leaver.ID}, call.recipients)
				assert.Empty(t, call.view.SharedWith)
			}
		}
		assert.True(t, sawDeleted)
		assert.True(t, sawUnshared)
	})

	t.Run("missing user", func(t *testing.T) {
		t.Parallel()
		_, _, _, svc := setupUserService(t)
		err := svc.Delete(ctx, uuid.New())
		assert.ErrorIs(t, err, store.ErrUserNotFound)
	})
}

func TestUserServiceUpdateProfile(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	_, users, _, svc := setupUserService(t)
	user := newTestUser(t, "profile@example.com")
	users.add(user)

	name := "Renamed"
	bio := "Building things"
	updated, err := svc.UpdateProfile(ctx, user.ID, UpdateProfileInput{DisplayName: &name, Bio: &bio})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.DisplayName)
	assert.Equal(t, "Building things", updated.Bio)
	assert.Equal(t, "profile@example.com", updated.Email)
}
