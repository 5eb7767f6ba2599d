package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

func (s *PostgresStore) InsertComment(ctx context.Context, q DBTX, c Comment) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, `
		INSERT INTO task_comments (task_id, user_id, content)
		VALUES ($1, $2, $3)
		RETURNING id
	`, c.TaskID, c.UserID, c.Content).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert comment: %w", err)
	}
	return id, nil
}

// GetComment reads through q when given, so in-flight transactions see
// their own writes; callers outside a transaction pass nil.
func (s *PostgresStore) GetComment(ctx context.Context, q DBTX, commentID int64) (*Comment, error) {
	if q == nil {
		q = s.db
	}
	var c Comment
	err := q.QueryRowContext(ctx, `
		SELECT c.id, c.task_id, c.user_id, u.name, c.content, c.created_at, c.updated_at
		FROM task_comments c
		JOIN users u ON u.id = c.user_id
		WHERE c.id=$1 AND c.deleted_at IS NULL
	`, commentID).Scan(&c.ID, &c.TaskID, &c.UserID, &c.UserName, &c.Content, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get comment: %w", err)
	}
	return &c, nil
}

func (s *PostgresStore) ListTaskComments(ctx context.Context, taskID int64) ([]Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.task_id, c.user_id, u.name, c.content, c.created_at, c.updated_at
		FROM task_comments c
		JOIN users u ON u.id = c.user_id
		WHERE c.task_id=$1 AND c.deleted_at IS NULL
		ORDER BY c.created_at DESC
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	items := make([]Comment, 0)
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ID, &c.TaskID, &c.UserID, &c.UserName, &c.Content, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		items = append(items, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateCommentContent(ctx context.Context, commentID int64, content string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE task_comments SET content=$2, updated_at=NOW()
		WHERE id=$1 AND deleted_at IS NULL
	`, commentID, content)
	if err != nil {
		return false, fmt.Errorf("update comment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update comment result: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) SoftDeleteComment(ctx context.Context, commentID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE task_comments SET deleted_at=NOW()
		WHERE id=$1 AND deleted_at IS NULL
	`, commentID)
	if err != nil {
		return false, fmt.Errorf("soft delete comment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("soft delete comment result: %w", err)
	}
	return affected > 0, nil
}
