package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

func (s *PostgresStore) InsertTask(ctx context.Context, q DBTX, task Task) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, `
		INSERT INTO tasks (project_id, title, description, status, priority, start_date, due_date, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, task.ProjectID, task.Title, task.Description, task.Status, task.Priority, task.StartDate, task.DueDate, task.CreatedBy).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert task: %w", err)
	}
	return id, nil
}

// GetTask reads through q when given, so in-flight transactions see
// their own writes; callers outside a transaction pass nil.
func (s *PostgresStore) GetTask(ctx context.Context, q DBTX, taskID int64) (*Task, error) {
	if q == nil {
		q = s.db
	}
	var item Task
	err := q.QueryRowContext(ctx, `
		SELECT t.id, t.project_id, t.title, t.description, t.status, t.priority, t.start_date, t.due_date, t.created_by, t.created_at,
			COALESCE((
				SELECT pl.progress FROM progress_logs pl
				WHERE pl.task_id = t.id
				ORDER BY pl.created_at DESC
				LIMIT 1
			), 0)
		FROM tasks t
		WHERE t.id=$1 AND t.deleted_at IS NULL
	`, taskID).Scan(&item.ID, &item.ProjectID, &item.Title, &item.Description, &item.Status, &item.Priority, &item.StartDate, &item.DueDate, &item.CreatedBy, &item.CreatedAt, &item.LatestProgress)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return &item, nil
}

type TaskFilter struct {
	ProjectID int64
	Status    string
	Title     string
}

func (s *PostgresStore) ListTasks(ctx context.Context, filter TaskFilter) ([]Task, error) {
	sb := strings.Builder{}
	sb.WriteString(`
		SELECT t.id, t.project_id, t.title, t.description, t.status, t.priority, t.start_date, t.due_date, t.created_by, t.created_at,
			COALESCE((
				SELECT pl.progress FROM progress_logs pl
				WHERE pl.task_id = t.id
				ORDER BY pl.created_at DESC
				LIMIT 1
			), 0)
		FROM tasks t
		WHERE t.deleted_at IS NULL`)
	params := make([]any, 0, 3)
	if filter.ProjectID != 0 {
		params = append(params, filter.ProjectID)
		sb.WriteString(" AND t.project_id = $" + strconv.Itoa(len(params)))
	}
	if filter.Status != "" {
		params = append(params, filter.Status)
		sb.WriteString(" AND t.status = $" + strconv.Itoa(len(params)))
	}
	if filter.Title != "" {
		params = append(params, "%"+filter.Title+"%")
		sb.WriteString(" AND t.title ILIKE $" + strconv.Itoa(len(params)))
	}
	sb.WriteString(" ORDER BY t.created_at DESC")

	rows, err := s.db.QueryContext(ctx, sb.String(), params...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	items := make([]Task, 0)
	for rows.Next() {
		var item Task
		if err := rows.Scan(&item.ID, &item.ProjectID, &item.Title, &item.Description, &item.Status, &item.Priority, &item.StartDate, &item.DueDate, &item.CreatedBy, &item.CreatedAt, &item.LatestProgress); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) TasksByAssignee(ctx context.Context, userID int64) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT t.id, t.project_id, t.title, t.description, t.status, t.priority, t.start_date, t.due_date, t.created_by, t.created_at, 0::numeric
		FROM tasks t
		JOIN task_assignees ta ON ta.task_id = t.id AND ta.deleted_at IS NULL
		WHERE ta.user_id=$1 AND t.deleted_at IS NULL
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list tasks by assignee: %w", err)
	}
	defer rows.Close()

	items := make([]Task, 0)
	for rows.Next() {
		var item Task
		if err := rows.Scan(&item.ID, &item.ProjectID, &item.Title, &item.Description, &item.Status, &item.Priority, &item.StartDate, &item.DueDate, &item.CreatedBy, &item.CreatedAt, &item.LatestProgress); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateTask(ctx context.Context, q DBTX, taskID int64, update TaskUpdate) error {
	sets := make([]string, 0, 6)
	params := []any{taskID}
	add := func(column string, value any) {
		params = append(params, value)
		sets = append(sets, column+" = $"+strconv.Itoa(len(params)))
	}
	if update.Title != nil {
		add("title", *update.Title)
	}
	if update.Description != nil {
		add("description", *update.Description)
	}
	if update.Status != nil {
		add("status", *update.Status)
	}
	if update.Priority != nil {
		add("priority", *update.Priority)
	}
	if update.StartDate != nil {
		add("start_date", *update.StartDate)
	}
	if update.DueDate != nil {
		add("due_date", *update.DueDate)
	}
	if len(sets) == 0 {
		return nil
	}
	query := "UPDATE tasks SET " + strings.Join(sets, ", ") + ", updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL"
	if _, err := q.ExecContext(ctx, query, params...); err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return nil
}

func (s *PostgresStore) SoftDeleteTask(ctx context.Context, q DBTX, taskID int64) error {
	_, err := q.ExecContext(ctx, `UPDATE tasks SET deleted_at=NOW() WHERE id=$1 AND deleted_at IS NULL`, taskID)
	if err != nil {
		return fmt.Errorf("soft delete task: %w", err)
	}
	return nil
}

// TaskIDInProject resolves a task reference scoped to one project;
// cross-project ids resolve to nothing.
func (s *PostgresStore) TaskIDInProject(ctx context.Context, taskID, projectID int64) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM tasks WHERE id=$1 AND project_id=$2 AND deleted_at IS NULL
	`, taskID, projectID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("resolve task in project: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) GetTaskRole(ctx context.Context, taskID, userID int64) (TaskRole, error) {
	var role TaskRole
	err := s.db.QueryRowContext(ctx, `
		SELECT t.created_by = $2, ta.id IS NOT NULL
		FROM tasks t
		LEFT JOIN task_assignees ta ON ta.task_id = t.id AND ta.user_id = $2 AND ta.deleted_at IS NULL
		WHERE t.id=$1 AND t.deleted_at IS NULL
		LIMIT 1
	`, taskID, userID).Scan(&role.IsCreator, &role.IsAssigned)
	if errors.Is(err, sql.ErrNoRows) {
		return TaskRole{}, nil
	}
	if err != nil {
		return TaskRole{}, fmt.Errorf("read task role: %w", err)
	}
	return role, nil
}

// ActiveAssignment returns the live assignment row for the pair, if any.
func (s *PostgresStore) ActiveAssignment(ctx context.Context, q DBTX, taskID, userID int64) (*TaskAssignee, error) {
	var a TaskAssignee
	err := q.QueryRowContext(ctx, `
		SELECT id, task_id, user_id, created_at
		FROM task_assignees
		WHERE task_id=$1 AND user_id=$2 AND deleted_at IS NULL
	`, taskID, userID).Scan(&a.ID, &a.TaskID, &a.UserID, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup assignment: %w", err)
	}
	return &a, nil
}

func (s *PostgresStore) InsertAssignment(ctx context.Context, q DBTX, taskID, userID int64) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, `
		INSERT INTO task_assignees (task_id, user_id)
		VALUES ($1, $2)
		RETURNING id
	`, taskID, userID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert assignment: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) AssigneeIDs(ctx context.Context, taskID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id FROM task_assignees
		WHERE task_id=$1 AND deleted_at IS NULL
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list assignees: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

// DeleteAssignments hard-deletes every assignee of a task; used by the
// delete-all-then-recreate edit pattern.
func (s *PostgresStore) DeleteAssignments(ctx context.Context, q DBTX, taskID int64) (int64, error) {
	result, err := q.ExecContext(ctx, `DELETE FROM task_assignees WHERE task_id=$1`, taskID)
	if err != nil {
		return 0, fmt.Errorf("delete assignments: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete assignments rows: %w", err)
	}
	return affected, nil
}

func (s *PostgresStore) InsertProgressLog(ctx context.Context, q DBTX, taskID int64, progress float64, updatedBy int64) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, `
		INSERT INTO progress_logs (task_id, progress, updated_by)
		VALUES ($1, $2, $3)
		RETURNING id
	`, taskID, progress, updatedBy).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert progress log: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) InsertActivity(ctx context.Context, q DBTX, entry ActivityEntry) (ActivityEntry, error) {
	err := q.QueryRowContext(ctx, `
		INSERT INTO activity_logs (task_id, actor_id, detail)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, entry.TaskID, entry.ActorID, entry.Detail).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return ActivityEntry{}, fmt.Errorf("insert activity: %w", err)
	}
	return entry, nil
}

func (s *PostgresStore) ListActivity(ctx context.Context, taskID int64) ([]ActivityEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.task_id, a.actor_id, COALESCE(u.name, 'System'), a.detail, a.created_at
		FROM activity_logs a
		LEFT JOIN users u ON u.id = a.actor_id
		WHERE a.task_id=$1 AND a.deleted_at IS NULL
		ORDER BY a.created_at DESC
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	items := make([]ActivityEntry, 0)
	for rows.Next() {
		var item ActivityEntry
		if err := rows.Scan(&item.ID, &item.TaskID, &item.ActorID, &item.ActorName, &item.Detail, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) SoftDeleteActivityForTask(ctx context.Context, q DBTX, taskID int64) error {
	_, err := q.ExecContext(ctx, `UPDATE activity_logs SET deleted_at=NOW() WHERE task_id=$1 AND deleted_at IS NULL`, taskID)
	if err != nil {
		return fmt.Errorf("soft delete activity: %w", err)
	}
	return nil
}

// ProjectIDForTask resolves the owning project of a task, for
// post-commit fan-out.
func (s *PostgresStore) ProjectIDForTask(ctx context.Context, taskID int64) (int64, error) {
	var projectID int64
	err := s.db.QueryRowContext(ctx, `SELECT project_id FROM tasks WHERE id=$1`, taskID).Scan(&projectID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("resolve task project: %w", err)
	}
	return projectID, nil
}
