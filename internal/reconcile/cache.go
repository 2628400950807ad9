// Package reconcile implements the client-side view of the push stream: an
// idempotent task cache keyed by task identifier and a reconnecting stream
// client that reloads the full task set after every (re)connection.
//
// The reload backstop is what makes at-most-once delivery acceptable: any
// event missed while disconnected is corrected by the next reload, and any
// event applied twice converges to the same cache state.
package reconcile

import (
	"sync"

	"github.com/tasksync/tasksync-api/internal/realtime"
)

// TaskCache is the client's materialized task set. All mutations are applied
// by task identifier, so replaying or re-receiving an event is harmless.
type TaskCache struct {
	mu    sync.RWMutex
	tasks map[string]*realtime.TaskView
}

// NewTaskCache creates an empty cache.
func NewTaskCache() *TaskCache {
	return &TaskCache{tasks: make(map[string]*realtime.TaskView)}
}

// Apply folds one push event into the cache. Full-body events insert or
// replace the task wholesale; identifier-only events (task_deleted,
// task_unshared) remove it. Events the cache does not materialize, such as
// the join confirmation, are ignored.
func (c *TaskCache) Apply(event *realtime.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch event.Event {
	case realtime.EventTaskCreated, realtime.EventTaskUpdated, realtime.EventTaskShared:
		if event.Task != nil {
			c.tasks[event.Task.ID.String()] = event.Task
		}
	case realtime.EventTaskDeleted, realtime.EventTaskUnshared:
		delete(c.tasks, event.TaskID)
	}
}

// Replace swaps the cache contents for the given task set. Used after the
// full reload that follows every (re)connection.
func (c *TaskCache) Replace(views []*realtime.TaskView) {
	next := make(map[string]*realtime.TaskView, len(views))
	for _, view := range views {
		next[view.ID.String()] = view
	}

	c.mu.Lock()
	c.tasks = next
	c.mu.Unlock()
}

// Get returns the cached view for the given task ID, if present.
func (c *TaskCache) Get(taskID string) (*realtime.TaskView, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	view, ok := c.tasks[taskID]
	return view, ok
}

// Len returns the number of cached tasks.
func (c *TaskCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tasks)
}

// Snapshot returns a copy of the current task set in unspecified order.
func (c *TaskCache) Snapshot() []*realtime.TaskView {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*realtime.TaskView, 0, len(c.tasks))
	for _, view := range c.tasks {
		out = append(out, view)
	}
	return out
}
