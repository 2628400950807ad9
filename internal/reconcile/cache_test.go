package reconcile

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tasksync/tasksync-api/internal/domain"
	"github.com/tasksync/tasksync-api/internal/realtime"
)

func testView(t *testing.T, title string) *realtime.TaskView {
	t.Helper()
	now := time.Now().UTC()
	return &realtime.TaskView{
		ID:        uuid.New(),
		Title:     title,
		Status:    domain.TaskStatusPending,
		Priority:  domain.TaskPriorityMedium,
		Owner:     realtime.UserRef{ID: uuid.New(), Email: "owner@example.com"},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestTaskCacheApply(t *testing.T) {
	t.Parallel()

	t.Run("full-body events insert and replace", func(t *testing.T) {
		t.Parallel()
		cache := NewTaskCache()
		view := testView(t, "First")

		cache.Apply(realtime.NewTaskEvent(realtime.EventTaskCreated, view, time.Now()))
		require.Equal(t, 1, cache.Len())

		renamed := *view
		renamed.Title = "Renamed"
		cache.Apply(realtime.NewTaskEvent(realtime.EventTaskUpdated, &renamed, time.Now()))

		got, ok := cache.Get(view.ID.String())
		require.True(t, ok)
		assert.Equal(t, "Renamed", got.Title)
		assert.Equal(t, 1, cache.Len())
	})

	t.Run("identifier-only events remove", func(t *testing.T) {
		t.Parallel()
		cache := NewTaskCache()
		view := testView(t, "Removable")
		cache.Apply(realtime.NewTaskEvent(realtime.EventTaskShared, view, time.Now()))
		require.Equal(t, 1, cache.Len())

		cache.Apply(realtime.NewTaskIDEvent(realtime.EventTaskDeleted, view.ID, time.Now()))
		assert.Zero(t, cache.Len())
	})

	t.Run("applying the same event twice converges", func(t *testing.T) {
		t.Parallel()
		cache := NewTaskCache()
		view := testView(t, "Twice")
		event := realtime.NewTaskEvent(realtime.EventTaskUpdated, view, time.Now())

		cache.Apply(event)
		cache.Apply(event)
		assert.Equal(t, 1, cache.Len())

		removal := realtime.NewTaskIDEvent(realtime.EventTaskUnshared, view.ID, time.Now())
		cache.Apply(removal)
		cache.Apply(removal)
		assert.Zero(t, cache.Len())
	})

	t.Run("removal of an unknown task is a no-op", func(t *testing.T) {
		t.Parallel()
		cache := NewTaskCache()
		cache.Apply(realtime.NewTaskIDEvent(realtime.EventTaskDeleted, uuid.New(), time.Now()))
		assert.Zero(t, cache.Len())
	})

	t.Run("join confirmation is ignored", func(t *testing.T) {
		t.Parallel()
		cache := NewTaskCache()
		cache.Apply(realtime.NewConnectedEvent(uuid.New(), "conn-1", time.Now()))
		assert.Zero(t, cache.Len())
	})
}

func TestTaskCacheReplace(t *testing.T) {
	t.Parallel()

	cache := NewTaskCache()
	stale := testView(t, "Stale")
	cache.Apply(realtime.NewTaskEvent(realtime.EventTaskCreated, stale, time.Now()))

	fresh := []*realtime.TaskView{testView(t, "A"), testView(t, "B")}
	cache.Replace(fresh)

	assert.Equal(t, 2, cache.Len())
	_, ok := cache.Get(stale.ID.String())
	assert.False(t, ok)

	snapshot := cache.Snapshot()
	assert.Len(t, snapshot, 2)
}
