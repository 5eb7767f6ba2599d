package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
)

func (s *PostgresStore) InsertNotification(ctx context.Context, q DBTX, n Notification) (Notification, error) {
	err := q.QueryRowContext(ctx, `
		INSERT INTO notifications (recipient_id, actor_id, type, reference_type, reference_id, message, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`, n.RecipientID, n.ActorID, n.Type, n.ReferenceType, n.ReferenceID, n.Message, n.Status).Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return Notification{}, fmt.Errorf("insert notification: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) GetNotification(ctx context.Context, notificationID int64) (*Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT n.id, n.recipient_id, n.actor_id, COALESCE(u.name, ''), n.type, n.reference_type, n.reference_id, n.message, n.status, n.created_at
		FROM notifications n
		LEFT JOIN users u ON u.id = n.actor_id
		WHERE n.id=$1 AND n.deleted_at IS NULL
	`, notificationID)
	if err != nil {
		return nil, fmt.Errorf("get notification: %w", err)
	}
	defer rows.Close()
	items, err := scanNotifications(rows)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

func (s *PostgresStore) ListNotifications(ctx context.Context, filter NotificationFilter) ([]Notification, error) {
	sb := strings.Builder{}
	sb.WriteString(`
		SELECT n.id, n.recipient_id, n.actor_id, COALESCE(u.name, ''), n.type, n.reference_type, n.reference_id, n.message, n.status, n.created_at
		FROM notifications n
		LEFT JOIN users u ON u.id = n.actor_id
		WHERE n.deleted_at IS NULL`)
	params := make([]any, 0, 3)
	if filter.RecipientID != 0 {
		params = append(params, filter.RecipientID)
		sb.WriteString(" AND n.recipient_id = $" + strconv.Itoa(len(params)))
	}
	if filter.Type != "" {
		params = append(params, filter.Type)
		sb.WriteString(" AND n.type = $" + strconv.Itoa(len(params)))
	}
	if filter.Status != "" {
		params = append(params, filter.Status)
		sb.WriteString(" AND n.status = $" + strconv.Itoa(len(params)))
	}
	sb.WriteString(" ORDER BY n.created_at DESC")

	rows, err := s.db.QueryContext(ctx, sb.String(), params...)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()
	return scanNotifications(rows)
}

func (s *PostgresStore) MarkNotificationRead(ctx context.Context, notificationID int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE notifications SET status='read' WHERE id=$1`, notificationID)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	return nil
}

func (s *PostgresStore) MarkAllNotificationsRead(ctx context.Context, recipientID int64) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET status='read'
		WHERE recipient_id=$1 AND deleted_at IS NULL
	`, recipientID)
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark all read rows: %w", err)
	}
	return affected, nil
}

// MarkNewNotificationsUnread demotes freshly delivered rows to unread
// once the badge count has been consumed.
func (s *PostgresStore) MarkNewNotificationsUnread(ctx context.Context, recipientID int64) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET status='unread'
		WHERE recipient_id=$1 AND status='new' AND deleted_at IS NULL
	`, recipientID)
	if err != nil {
		return 0, fmt.Errorf("mark new unread: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark new unread rows: %w", err)
	}
	return affected, nil
}

func (s *PostgresStore) SoftDeleteNotification(ctx context.Context, notificationID int64) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET deleted_at=NOW() WHERE id=$1 AND deleted_at IS NULL
	`, notificationID)
	if err != nil {
		return false, fmt.Errorf("soft delete notification: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("soft delete notification rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) RestoreNotification(ctx context.Context, notificationID int64) (bool, error) {
	result, err := s.db.ExecContext(ctx, `UPDATE notifications SET deleted_at=NULL WHERE id=$1`, notificationID)
	if err != nil {
		return false, fmt.Errorf("restore notification: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("restore notification rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) SoftDeleteAllNotifications(ctx context.Context, recipientID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET deleted_at=NOW() WHERE recipient_id=$1 AND deleted_at IS NULL
	`, recipientID)
	if err != nil {
		return fmt.Errorf("soft delete all notifications: %w", err)
	}
	return nil
}

func (s *PostgresStore) NewNotificationCount(ctx context.Context, recipientID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM notifications
		WHERE recipient_id=$1 AND status='new' AND deleted_at IS NULL
	`, recipientID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count new notifications: %w", err)
	}
	return count, nil
}

func scanNotifications(rows *sql.Rows) ([]Notification, error) {
	items := make([]Notification, 0)
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.ActorID, &n.ActorName, &n.Type, &n.ReferenceType, &n.ReferenceID, &n.Message, &n.Status, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		items = append(items, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return items, nil
}
