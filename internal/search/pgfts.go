package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true — if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search executes a UNION ALL query across tasks and chat messages
// using plainto_tsquery and ts_rank, with ts_headline for snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	tsQuery := "plainto_tsquery('english', $1)"
	args := []any{q.Text}
	argN := 2

	var subQueries []string

	if q.FilterType == "" || q.FilterType == ResultTask {
		taskWhere := fmt.Sprintf("to_tsvector('english', t.title || ' ' || t.description) @@ %s AND t.deleted_at IS NULL", tsQuery)
		if q.FilterProjectID != "" {
			taskWhere += fmt.Sprintf(" AND t.project_id = $%d::bigint", argN)
			args = append(args, q.FilterProjectID)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'task'::text AS type, t.id::text, t.title,
				ts_headline('english', coalesce(t.description, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				t.project_id::text, ''::text AS channel_id,
				ts_rank(to_tsvector('english', t.title || ' ' || t.description), %s) AS rank
			FROM tasks t
			WHERE %s`, tsQuery, tsQuery, taskWhere))
	}

	if q.FilterType == "" || q.FilterType == ResultMessage {
		msgWhere := fmt.Sprintf("to_tsvector('english', m.content) @@ %s AND m.deleted_at IS NULL", tsQuery)
		if q.FilterProjectID != "" {
			msgWhere += fmt.Sprintf(" AND c.project_id = $%d::bigint", argN)
			args = append(args, q.FilterProjectID)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'message'::text AS type, m.id::text, u.name AS title,
				ts_headline('english', m.content, %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				c.project_id::text, m.channel_id::text AS channel_id,
				ts_rank(to_tsvector('english', m.content), %s) AS rank
			FROM chat_messages m
			JOIN chat_channels c ON c.id = m.channel_id
			JOIN users u ON u.id = m.sender_id
			WHERE %s`, tsQuery, tsQuery, msgWhere))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub",
		strings.Join(subQueries, " UNION ALL "))

	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, project_id, channel_id
		FROM (%s) sub
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`,
		strings.Join(subQueries, " UNION ALL "),
		limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.ProjectID, &r.ChannelID); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all searchable records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]TaskRecord, []MessageRecord, error) {
	taskRows, err := p.db.QueryContext(ctx, `
		SELECT id::text, title, description, project_id::text, status, priority
		FROM tasks
		WHERE deleted_at IS NULL
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load tasks: %w", err)
	}
	defer taskRows.Close()

	tasks := make([]TaskRecord, 0)
	for taskRows.Next() {
		var t TaskRecord
		if err := taskRows.Scan(&t.ID, &t.Title, &t.Description, &t.ProjectID, &t.Status, &t.Priority); err != nil {
			return nil, nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := taskRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate tasks: %w", err)
	}

	msgRows, err := p.db.QueryContext(ctx, `
		SELECT m.id::text, m.content, m.channel_id::text, c.project_id::text, u.name
		FROM chat_messages m
		JOIN chat_channels c ON c.id = m.channel_id
		JOIN users u ON u.id = m.sender_id
		WHERE m.deleted_at IS NULL
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load messages: %w", err)
	}
	defer msgRows.Close()

	messages := make([]MessageRecord, 0)
	for msgRows.Next() {
		var m MessageRecord
		if err := msgRows.Scan(&m.ID, &m.Content, &m.ChannelID, &m.ProjectID, &m.SenderName); err != nil {
			return nil, nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := msgRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate messages: %w", err)
	}

	return tasks, messages, nil
}
