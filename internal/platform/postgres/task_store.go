package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/tasksync/tasksync-api/internal/domain"
	"github.com/tasksync/tasksync-api/internal/platform/logger"
	"github.com/tasksync/tasksync-api/internal/store"
)

// PostgresTaskStore implements the store.TaskStore interface
// using a PostgreSQL database as the storage backend.
//
// Tasks live in the tasks table; the shared-with relation lives in
// task_shares (task_id, user_id). Read methods hydrate SharedWith so that
// callers always see the full visibility set.
type PostgresTaskStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresTaskStore creates a new PostgreSQL implementation of the
// TaskStore interface. It accepts a database connection or transaction that
// should be initialized and managed by the caller.
func NewPostgresTaskStore(db store.DBTX, logger *slog.Logger) *PostgresTaskStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresTaskStore{
		db:     db,
		logger: logger.With(slog.String("component", "task_store")),
	}
}

// Ensure PostgresTaskStore implements store.TaskStore interface
var _ store.TaskStore = (*PostgresTaskStore)(nil)

const taskColumns = "id, owner_id, title, description, status, priority, due_date, tags, created_at, updated_at"

// Create implements store.TaskStore.Create
func (s *PostgresTaskStore) Create(ctx context.Context, task *domain.Task) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := task.Validate(); err != nil {
		return err
	}

	tags, err := marshalTags(task.Tags)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO tasks (` + taskColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = s.db.ExecContext(ctx, query,
		task.ID,
		task.OwnerID,
		task.Title,
		task.Description,
		task.Status,
		task.Priority,
		task.DueDate,
		tags,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: owner %s not found", store.ErrInvalidEntity, task.OwnerID)
		}
		log.Error("failed to create task",
			slog.String("error", err.Error()),
			slog.String("task_id", task.ID.String()))
		return err
	}

	log.Info("task created",
		slog.String("task_id", task.ID.String()),
		slog.String("owner_id", task.OwnerID.String()))
	return nil
}

// GetByID implements store.TaskStore.GetByID
func (s *PostgresTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`

	task, err := scanTaskRow(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrTaskNotFound
		}
		return nil, err
	}

	if err := s.loadShares(ctx, []*domain.Task{task}); err != nil {
		return nil, err
	}
	return task, nil
}

// Update implements store.TaskStore.Update
func (s *PostgresTaskStore) Update(ctx context.Context, task *domain.Task) error {
	if err := task.Validate(); err != nil {
		return err
	}

	tags, err := marshalTags(task.Tags)
	if err != nil {
		return err
	}

	query := `
		UPDATE tasks
		SET title = $1, description = $2, status = $3, priority = $4, due_date = $5, tags = $6, updated_at = $7
		WHERE id = $8
	`
	result, err := s.db.ExecContext(ctx, query,
		task.Title,
		task.Description,
		task.Status,
		task.Priority,
		task.DueDate,
		tags,
		task.UpdatedAt,
		task.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	return requireRowAffected(result, store.ErrTaskNotFound)
}

// Delete implements store.TaskStore.Delete
// Share rows are removed by ON DELETE CASCADE.
func (s *PostgresTaskStore) Delete(ctx context.Context, id uuid.UUID) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	result, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	if err := requireRowAffected(result, store.ErrTaskNotFound); err != nil {
		return err
	}

	log.Info("task deleted", slog.String("task_id", id.String()))
	return nil
}

// ListByOwner implements store.TaskStore.ListByOwner
func (s *PostgresTaskStore) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE owner_id = $1 ORDER BY created_at DESC`
	return s.listTasks(ctx, query, ownerID)
}

// ListSharedWith implements store.TaskStore.ListSharedWith
func (s *PostgresTaskStore) ListSharedWith(ctx context.Context, userID uuid.UUID) ([]*domain.Task, error) {
	query := `
		SELECT ` + qualifiedTaskColumns("t") + `
		FROM tasks t
		JOIN task_shares ts ON ts.task_id = t.id
		WHERE ts.user_id = $1
		ORDER BY t.created_at DESC
	`
	return s.listTasks(ctx, query, userID)
}

// AddShare implements store.TaskStore.AddShare
func (s *PostgresTaskStore) AddShare(ctx context.Context, taskID, userID uuid.UUID) error {
	query := `
		INSERT INTO task_shares (task_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (task_id, user_id) DO NOTHING
	`
	if _, err := s.db.ExecContext(ctx, query, taskID, userID); err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: task %s or user %s not found", store.ErrInvalidEntity, taskID, userID)
		}
		return fmt.Errorf("failed to add share: %w", err)
	}
	return nil
}

// RemoveShare implements store.TaskStore.RemoveShare
func (s *PostgresTaskStore) RemoveShare(ctx context.Context, taskID, userID uuid.UUID) error {
	query := `DELETE FROM task_shares WHERE task_id = $1 AND user_id = $2`
	if _, err := s.db.ExecContext(ctx, query, taskID, userID); err != nil {
		return fmt.Errorf("failed to remove share: %w", err)
	}
	return nil
}

// WithTx implements store.TaskStore.WithTx
func (s *PostgresTaskStore) WithTx(tx *sql.Tx) store.TaskStore {
	return &PostgresTaskStore{db: tx, logger: s.logger}
}

func (s *PostgresTaskStore) listTasks(ctx context.Context, query string, arg interface{}) ([]*domain.Task, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	tasks := []*domain.Task{}
	for rows.Next() {
		task, err := scanTaskRow(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.loadShares(ctx, tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// loadShares hydrates SharedWith for the given tasks with a single query.
func (s *PostgresTaskStore) loadShares(ctx context.Context, tasks []*domain.Task) error {
	if len(tasks) == 0 {
		return nil
	}

	byID := make(map[uuid.UUID]*domain.Task, len(tasks))
	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		t.SharedWith = []uuid.UUID{}
		byID[t.ID] = t
		ids = append(ids, t.ID.String())
	}

	query := `SELECT task_id, user_id FROM task_shares WHERE task_id = ANY($1) ORDER BY user_id`
	rows, err := s.db.QueryContext(ctx, query, ids)
	if err != nil {
		return fmt.Errorf("failed to query task shares: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var taskID, userID uuid.UUID
		if err := rows.Scan(&taskID, &userID); err != nil {
			return err
		}
		if t, ok := byID[taskID]; ok {
			t.SharedWith = append(t.SharedWith, userID)
		}
	}
	return rows.Err()
}

func scanTaskRow(row rowScanner) (*domain.Task, error) {
	var task domain.Task
	var tags []byte
	var dueDate sql.NullTime

	err := row.Scan(
		&task.ID,
		&task.OwnerID,
		&task.Title,
		&task.Description,
		&task.Status,
		&task.Priority,
		&dueDate,
		&tags,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if dueDate.Valid {
		t := dueDate.Time
		task.DueDate = &t
	}
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &task.Tags); err != nil {
			return nil, fmt.Errorf("failed to decode task tags: %w", err)
		}
	}
	return &task, nil
}

// marshalTags encodes the tag list as JSONB, normalizing nil to an empty array.
func marshalTags(tags []string) ([]byte, error) {
	if tags == nil {
		tags = []string{}
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return nil, fmt.Errorf("failed to encode task tags: %w", err)
	}
	return data, nil
}

func qualifiedTaskColumns(alias string) string {
	return alias + ".id, " + alias + ".owner_id, " + alias + ".title, " + alias + ".description, " +
		alias + ".status, " + alias + ".priority, " + alias + ".due_date, " + alias + ".tags, " +
		alias + ".created_at, " + alias + ".updated_at"
}
