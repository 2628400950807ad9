package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/tasksync/tasksync-api/internal/domain"
	"github.com/tasksync/tasksync-api/internal/realtime"
	"github.com/tasksync/tasksync-api/internal/store"
)

// fakeTaskStore is an in-memory TaskStore for service tests.
type fakeTaskStore struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*domain.Task

	failCreate error
	failUpdate error
	failDelete error
}

func newFakeTaskStore() *fakeTaskStore {
	return &fakeTaskStore{tasks: make(map[uuid.UUID]*domain.Task)}
}

func copyTask(t *domain.Task) *domain.Task {
	dup := *t
	dup.SharedWith = append([]uuid.UUID(nil), t.SharedWith...)
	dup.Tags = append([]string(nil), t.Tags...)
	return &dup
}

func (f *fakeTaskStore) Create(ctx context.Context, task *domain.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate != nil {
		return f.failCreate
	}
	f.tasks[task.ID] = copyTask(task)
	return nil
}

func (f *fakeTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	task, ok := f.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	return copyTask(task), nil
}

func (f *fakeTaskStore) Update(ctx context.Context, task *domain.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpdate != nil {
		return f.failUpdate
	}
	existing, ok := f.tasks[task.ID]
	if !ok {
		return store.ErrTaskNotFound
	}
	dup := copyTask(task)
	dup.SharedWith = append([]uuid.UUID(nil), existing.SharedWith...)
	f.tasks[task.ID] = dup
	return nil
}

func (f *fakeTaskStore) Delete(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDelete != nil {
		return f.failDelete
	}
	if _, ok := f.tasks[id]; !ok {
		return store.ErrTaskNotFound
	}
	delete(f.tasks, id)
	return nil
}

func (f *fakeTaskStore) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Task
	for _, task := range f.tasks {
		if task.OwnerID == ownerID {
			out = append(out, copyTask(task))
		}
	}
	return out, nil
}

func (f *fakeTaskStore) ListSharedWith(ctx context.Context, userID uuid.UUID) ([]*domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Task
	for _, task := range f.tasks {
		if task.IsSharedWith(userID) {
			out = append(out, copyTask(task))
		}
	}
	return out, nil
}

func (f *fakeTaskStore) AddShare(ctx context.Context, taskID, userID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	task, ok := f.tasks[taskID]
	if !ok {
		return store.ErrTaskNotFound
	}
	if !task.IsSharedWith(userID) {
		task.SharedWith = append(task.SharedWith, userID)
	}
	return nil
}

func (f *fakeTaskStore) RemoveShare(ctx context.Context, taskID, userID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	task, ok := f.tasks[taskID]
	if !ok {
		return store.ErrTaskNotFound
	}
	remaining := task.SharedWith[:0]
	for _, id := range task.SharedWith {
		if id != userID {
			remaining = append(remaining, id)
		}
	}
	task.SharedWith = remaining
	return nil
}

func (f *fakeTaskStore) WithTx(tx *sql.Tx) store.TaskStore { return f }

// fakeUserStore is an in-memory UserStore for service tests.
type fakeUserStore struct {
	mu    sync.Mutex
	users map[uuid.UUID]*domain.User

	failDelete error
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[uuid.UUID]*domain.User)}
}

func (f *fakeUserStore) add(u *domain.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[u.ID] = u
}

func (f *fakeUserStore) Create(ctx context.Context, user *domain.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		if existing.Email == user.Email {
			return store.ErrEmailExists
		}
	}
	f.users[user.ID] = user
	return nil
}

func (f *fakeUserStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	return user, nil
}

func (f *fakeUserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if strings.EqualFold(user.Email, email) {
			return user, nil
		}
	}
	return nil, store.ErrUserNotFound
}

func (f *fakeUserStore) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*domain.User, 0, len(ids))
	for _, id := range ids {
		if user, ok := f.users[id]; ok {
			out = append(out, user)
		}
	}
	return out, nil
}

func (f *fakeUserStore) Update(ctx context.Context, user *domain.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[user.ID]; !ok {
		return store.ErrUserNotFound
	}
	f.users[user.ID] = user
	return nil
}

func (f *fakeUserStore) Delete(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDelete != nil {
		return f.failDelete
	}
	if _, ok := f.users[id]; !ok {
		return store.ErrUserNotFound
	}
	delete(f.users, id)
	return nil
}

func (f *fakeUserStore) WithTx(tx *sql.Tx) store.UserStore { return f }

// emittedCall records one emitter invocation for assertions.
type emittedCall struct {
	kind       realtime.EventType
	view       *realtime.TaskView
	taskID     uuid.UUID
	ownerID    uuid.UUID
	recipients []uuid.UUID
}

// recordingEmitter captures emitter calls without pushing anything.
type recordingEmitter struct {
	mu    sync.Mutex
	calls []emittedCall
}

func (r *recordingEmitter) record(c emittedCall) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, c)
}

func (r *recordingEmitter) TaskCreated(ctx context.Context, view *realtime.TaskView) {
	r.record(emittedCall{kind: realtime.EventTaskCreated, view: view, taskID: view.ID})
}

func (r *recordingEmitter) TaskUpdated(ctx context.Context, view *realtime.TaskView) {
	r.record(emittedCall{kind: realtime.EventTaskUpdated, view: view, taskID: view.ID})
}

func (r *recordingEmitter) TaskDeleted(ctx context.Context, taskID, ownerID uuid.UUID, sharedBefore []uuid.UUID) {
	r.record(emittedCall{kind: realtime.EventTaskDeleted, taskID: taskID, ownerID: ownerID, recipients: sharedBefore})
}

func (r *recordingEmitter) TaskShared(ctx context.Context, view *realtime.TaskView, newlyShared []uuid.UUID) {
	r.record(emittedCall{kind: realtime.EventTaskShared, view: view, taskID: view.ID, recipients: newlyShared})
}

func (r *recordingEmitter) TaskUnshared(ctx context.Context, view *realtime.TaskView, removed []uuid.UUID) {
	r.record(emittedCall{kind: realtime.EventTaskUnshared, view: view, taskID: view.ID, recipients: removed})
}

func (r *recordingEmitter) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func (r *recordingEmitter) call(i int) emittedCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[i]
}

var errStoreDown = errors.New("store unavailable")
