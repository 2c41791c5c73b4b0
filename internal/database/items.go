package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/benvon/smart-voice/internal/models"
	"github.com/benvon/smart-voice/internal/patterns"
)

// ItemRepository persists the items extracted from voice notes.
type ItemRepository struct {
	db *DB
}

// NewItemRepository creates a new item repository
func NewItemRepository(db *DB) *ItemRepository {
	return &ItemRepository{db: db}
}

const taskColumns = `id, user_id, source_recording_id, title, description, priority,
	to_char(due_date, 'YYYY-MM-DD'), due_time, category, tags, status,
	created_at, updated_at, completed_at`

func scanTask(row interface{ Scan(...any) error }) (*models.Task, error) {
	t := &models.Task{}
	var completedAt sql.NullTime
	err := row.Scan(
		&t.ID,
		&t.UserID,
		&t.SourceRecordingID,
		&t.Title,
		&t.Description,
		&t.Priority,
		&t.DueDate,
		&t.DueTime,
		&t.Category,
		pq.Array(&t.Tags),
		&t.Status,
		&t.CreatedAt,
		&t.UpdatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}
	if completedAt.Valid {
		t.CompletedAt = &completedAt.Time
	}
	return t, nil
}

// CreateTask inserts a task. A zero ID is assigned.
func (r *ItemRepository) CreateTask(ctx context.Context, t *models.Task) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.Status == "" {
		t.Status = models.TaskStatusPending
	}
	now := time.Now()
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO tasks (id, user_id, source_recording_id, title, description, priority,
			due_date, due_time, category, tags, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::date, $8, $9, $10, $11, $12, $12)
		RETURNING created_at, updated_at
	`,
		t.ID,
		t.UserID,
		t.SourceRecordingID,
		t.Title,
		t.Description,
		t.Priority,
		t.DueDate,
		t.DueTime,
		t.Category,
		pq.Array(nonNil(t.Tags)),
		t.Status,
		now,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

// GetTask retrieves a task owned by userID.
func (r *ItemRepository) GetTask(ctx context.Context, userID, id uuid.UUID) (*models.Task, error) {
	t, err := scanTask(r.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1 AND user_id = $2`, id, userID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("task not found: %w", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return t, nil
}

// CompleteTask marks a task completed and returns it. Completing an already
// completed task keeps the original completion time.
func (r *ItemRepository) CompleteTask(ctx context.Context, userID, id uuid.UUID, at time.Time) (*models.Task, error) {
	t, err := scanTask(r.db.QueryRowContext(ctx, `
		UPDATE tasks
		SET status = $3, completed_at = COALESCE(completed_at, $4), updated_at = $4
		WHERE id = $1 AND user_id = $2
		RETURNING `+taskColumns,
		id, userID, models.TaskStatusCompleted, at))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("task not found: %w", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to complete task: %w", err)
	}
	return t, nil
}

// UpdateTask applies the non-nil fields of changes. Tags replace the
// task's tags when set.
func (r *ItemRepository) UpdateTask(ctx context.Context, userID, id uuid.UUID, changes *patterns.Changes, at time.Time) (*models.Task, error) {
	var priority, category *string
	if changes.Priority != nil {
		p := string(*changes.Priority)
		priority = &p
	}
	category = changes.Category
	var tags any
	if changes.Tags != nil {
		tags = pq.Array(changes.Tags)
	}
	t, err := scanTask(r.db.QueryRowContext(ctx, `
		UPDATE tasks
		SET priority = COALESCE($3, priority),
			category = COALESCE($4, category),
			tags = COALESCE($5, tags),
			updated_at = $6
		WHERE id = $1 AND user_id = $2
		RETURNING `+taskColumns,
		id, userID, priority, category, tags, at))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("task not found: %w", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}
	return t, nil
}

// ListTasks returns a user's tasks, newest first, optionally by status.
func (r *ItemRepository) ListTasks(ctx context.Context, userID uuid.UUID, status *models.TaskStatus, limit int) ([]*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE user_id = $1`
	args := []any{userID}
	if status != nil {
		query += ` AND status = $2`
		args = append(args, *status)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args)+1)
	args = append(args, limitArg(limit))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	return out, nil
}

// CreateReminder inserts a reminder. A zero ID is assigned.
func (r *ItemRepository) CreateReminder(ctx context.Context, rem *models.Reminder) error {
	if rem.ID == uuid.Nil {
		rem.ID = uuid.New()
	}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO reminders (id, user_id, source_recording_id, title, description, reminder_time,
			is_recurring, recurrence_pattern, tags, priority, type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at
	`,
		rem.ID,
		rem.UserID,
		rem.SourceRecordingID,
		rem.Title,
		rem.Description,
		rem.ReminderTime,
		rem.IsRecurring,
		rem.RecurrencePattern,
		pq.Array(nonNil(rem.Tags)),
		rem.Priority,
		rem.Type,
		time.Now(),
	).Scan(&rem.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create reminder: %w", err)
	}
	return nil
}

// CreateHealthNote inserts a health note. A zero ID is assigned.
func (r *ItemRepository) CreateHealthNote(ctx context.Context, n *models.HealthNote) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO health_notes (id, user_id, source_recording_id, content, category, tags, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, n.ID, n.UserID, n.SourceRecordingID, n.Content, n.Category, pq.Array(nonNil(n.Tags)), time.Now()).Scan(&n.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create health note: %w", err)
	}
	return nil
}
