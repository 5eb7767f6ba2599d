package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

func (s *PostgresStore) InsertChannel(ctx context.Context, q DBTX, channel ChatChannel) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, `
		INSERT INTO chat_channels (project_id, name, description, created_by)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, channel.ProjectID, channel.Name, channel.Description, channel.CreatedBy).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert channel: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) GetChannel(ctx context.Context, channelID int64) (*ChatChannel, error) {
	var item ChatChannel
	err := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, name, description, created_by, created_at
		FROM chat_channels
		WHERE id=$1 AND deleted_at IS NULL
	`, channelID).Scan(&item.ID, &item.ProjectID, &item.Name, &item.Description, &item.CreatedBy, &item.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get channel: %w", err)
	}
	return &item, nil
}

func (s *PostgresStore) ChannelsByUser(ctx context.Context, userID, projectID int64) ([]ChatChannel, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.project_id, c.name, c.description, c.created_by, c.created_at
		FROM chat_channels c
		JOIN chat_channel_members cm ON cm.channel_id = c.id
		WHERE cm.user_id=$1 AND c.project_id=$2 AND c.deleted_at IS NULL AND cm.deleted_at IS NULL
		ORDER BY c.created_at ASC
	`, userID, projectID)
	if err != nil {
		return nil, fmt.Errorf("list channels by user: %w", err)
	}
	defer rows.Close()

	items := make([]ChatChannel, 0)
	for rows.Next() {
		var item ChatChannel
		if err := rows.Scan(&item.ID, &item.ProjectID, &item.Name, &item.Description, &item.CreatedBy, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate channels: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateChannel(ctx context.Context, channelID int64, name, description string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE chat_channels
		SET name = COALESCE(NULLIF($2, ''), name),
		    description = COALESCE(NULLIF($3, ''), description)
		WHERE id=$1 AND deleted_at IS NULL
	`, channelID, name, description)
	if err != nil {
		return fmt.Errorf("update channel: %w", err)
	}
	return nil
}

func (s *PostgresStore) SoftDeleteChannel(ctx context.Context, channelID int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE chat_channels SET deleted_at=NOW() WHERE id=$1 AND deleted_at IS NULL`, channelID)
	if err != nil {
		return fmt.Errorf("soft delete channel: %w", err)
	}
	return nil
}

// UpsertChannelMember adds the user to the channel, reviving a
// soft-deleted membership row when one exists.
func (s *PostgresStore) UpsertChannelMember(ctx context.Context, q DBTX, channelID, userID int64) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO chat_channel_members (channel_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (channel_id, user_id) DO UPDATE SET deleted_at=NULL
	`, channelID, userID)
	if err != nil {
		return fmt.Errorf("upsert channel member: %w", err)
	}
	return nil
}

func (s *PostgresStore) SoftDeleteChannelMember(ctx context.Context, channelID, userID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE chat_channel_members SET deleted_at=NOW()
		WHERE channel_id=$1 AND user_id=$2 AND deleted_at IS NULL
	`, channelID, userID)
	if err != nil {
		return fmt.Errorf("soft delete channel member: %w", err)
	}
	return nil
}

func (s *PostgresStore) ChannelMembers(ctx context.Context, channelID int64) ([]ChannelMember, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.name, u.email
		FROM chat_channel_members ccm
		JOIN users u ON u.id = ccm.user_id
		WHERE ccm.channel_id=$1 AND ccm.deleted_at IS NULL
		ORDER BY u.name ASC
	`, channelID)
	if err != nil {
		return nil, fmt.Errorf("list channel members: %w", err)
	}
	defer rows.Close()

	items := make([]ChannelMember, 0)
	for rows.Next() {
		var m ChannelMember
		if err := rows.Scan(&m.UserID, &m.Name, &m.Email); err != nil {
			return nil, fmt.Errorf("scan channel member: %w", err)
		}
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate channel members: %w", err)
	}
	return items, nil
}

// ChannelMemberIDs reads through the given handle so sentinel mention
// expansion inside a transaction sees rows written by that transaction.
func (s *PostgresStore) ChannelMemberIDs(ctx context.Context, q DBTX, channelID int64) ([]int64, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT user_id FROM chat_channel_members
		WHERE channel_id=$1 AND deleted_at IS NULL
	`, channelID)
	if err != nil {
		return nil, fmt.Errorf("list channel member ids: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

func (s *PostgresStore) InsertMessage(ctx context.Context, q DBTX, channelID, senderID int64, content string, haveFile bool) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, `
		INSERT INTO chat_messages (channel_id, sender_id, content, have_file)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, channelID, senderID, content, haveFile).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert message: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) GetMessage(ctx context.Context, q DBTX, messageID int64) (*ChatMessage, error) {
	var m ChatMessage
	err := q.QueryRowContext(ctx, `
		SELECT m.id, m.channel_id, m.sender_id, u.name, COALESCE(u.avatar_url, ''), m.content, m.have_file, m.created_at
		FROM chat_messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.id=$1
	`, messageID).Scan(&m.ID, &m.ChannelID, &m.SenderID, &m.SenderName, &m.SenderAvatar, &m.Content, &m.HaveFile, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	return &m, nil
}

func (s *PostgresStore) ListMessages(ctx context.Context, channelID int64, limit, offset int) ([]ChatMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.channel_id, m.sender_id, u.name, COALESCE(u.avatar_url, ''), m.content, m.have_file, m.created_at
		FROM chat_messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.channel_id=$1 AND m.deleted_at IS NULL
		ORDER BY m.created_at ASC
		LIMIT $2 OFFSET $3
	`, channelID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	items := make([]ChatMessage, 0)
	for rows.Next() {
		var m ChatMessage
		if err := rows.Scan(&m.ID, &m.ChannelID, &m.SenderID, &m.SenderName, &m.SenderAvatar, &m.Content, &m.HaveFile, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertMention(ctx context.Context, q DBTX, messageID, userID int64) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO chat_mentions (message_id, mentioned_user_id)
		VALUES ($1, $2)
		ON CONFLICT (message_id, mentioned_user_id) DO NOTHING
	`, messageID, userID)
	if err != nil {
		return fmt.Errorf("insert mention: %w", err)
	}
	return nil
}

func (s *PostgresStore) MentionsByMessage(ctx context.Context, messageID int64) ([]MentionedUser, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT cm.mentioned_user_id, u.name
		FROM chat_mentions cm
		JOIN users u ON u.id = cm.mentioned_user_id
		WHERE cm.message_id=$1
	`, messageID)
	if err != nil {
		return nil, fmt.Errorf("list mentions: %w", err)
	}
	defer rows.Close()

	items := make([]MentionedUser, 0)
	for rows.Next() {
		var m MentionedUser
		if err := rows.Scan(&m.ID, &m.Name); err != nil {
			return nil, fmt.Errorf("scan mention: %w", err)
		}
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mentions: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertFile(ctx context.Context, q DBTX, file Attachment) error {
	var projectID, taskID sql.NullInt64
	if file.ProjectID != 0 {
		projectID = sql.NullInt64{Int64: file.ProjectID, Valid: true}
	}
	if file.TaskID != 0 {
		taskID = sql.NullInt64{Int64: file.TaskID, Valid: true}
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO files (id, file_name, file_type, file_url, size, created_by, project_id, task_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, file.ID, file.FileName, file.FileType, file.FileURL, file.Size, file.CreatedBy, projectID, taskID)
	if err != nil {
		return fmt.Errorf("insert file: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertMessageFile(ctx context.Context, q DBTX, messageID int64, fileID string) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO chat_message_files (message_id, file_id)
		VALUES ($1, $2)
	`, messageID, fileID)
	if err != nil {
		return fmt.Errorf("insert message file: %w", err)
	}
	return nil
}

func (s *PostgresStore) FilesByMessage(ctx context.Context, messageID int64) ([]Attachment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.id, f.file_name, f.file_type, f.file_url, f.size, f.created_by, COALESCE(f.project_id, 0), COALESCE(f.task_id, 0), f.created_at
		FROM chat_message_files cmf
		JOIN files f ON f.id = cmf.file_id
		WHERE cmf.message_id=$1 AND f.deleted_at IS NULL
	`, messageID)
	if err != nil {
		return nil, fmt.Errorf("list message files: %w", err)
	}
	defer rows.Close()

	items := make([]Attachment, 0)
	for rows.Next() {
		var f Attachment
		if err := rows.Scan(&f.ID, &f.FileName, &f.FileType, &f.FileURL, &f.Size, &f.CreatedBy, &f.ProjectID, &f.TaskID, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message file: %w", err)
		}
		items = append(items, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate message files: %w", err)
	}
	return items, nil
}

// ChannelProjectID reads through the transaction handle; message sends
// need the owning project before the channel row is visible outside.
func (s *PostgresStore) ChannelProjectID(ctx context.Context, q DBTX, channelID int64) (int64, error) {
	var projectID int64
	err := q.QueryRowContext(ctx, `
		SELECT project_id FROM chat_channels WHERE id=$1 AND deleted_at IS NULL
	`, channelID).Scan(&projectID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("resolve channel project: %w", err)
	}
	return projectID, nil
}
