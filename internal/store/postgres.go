package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// Begin opens a unit of work owned by the caller.
func (s *PostgresStore) Begin(ctx context.Context) (*UnitOfWork, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin unit of work: %w", err)
	}
	return NewUnitOfWork(tx, tx), nil
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) GetUser(ctx context.Context, userID int64) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, COALESCE(avatar_url, ''), created_at
		FROM users
		WHERE id=$1 AND deleted_at IS NULL
	`, userID).Scan(&user.ID, &user.Name, &user.Email, &user.AvatarURL, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// UserName returns the display name for message templating. A missing
// user yields a generic placeholder rather than an error.
func (s *PostgresStore) UserName(ctx context.Context, userID int64) (string, error) {
	var name string
	err := s.db.QueryRowContext(ctx, `SELECT name FROM users WHERE id=$1`, userID).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "Someone", nil
	}
	if err != nil {
		return "", fmt.Errorf("lookup user name: %w", err)
	}
	return name, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, COALESCE(avatar_url, ''), COALESCE(password_hash, ''), created_at
		FROM users
		WHERE email=$1 AND deleted_at IS NULL
	`, email).Scan(&user.ID, &user.Name, &user.Email, &user.AvatarURL, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) InsertUser(ctx context.Context, user User) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (name, email, password_hash)
		VALUES ($1, $2, $3)
		RETURNING id
	`, user.Name, user.Email, user.PasswordHash).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert user: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) InsertProject(ctx context.Context, q DBTX, project Project) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, `
		INSERT INTO projects (name, description, start_date, end_date, status, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, project.Name, project.Description, project.StartDate, project.EndDate, project.Status, project.CreatedBy).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert project: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) GetProject(ctx context.Context, projectID int64) (Project, error) {
	var item Project
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, status, start_date, end_date, created_by, created_at
		FROM projects
		WHERE id=$1 AND deleted_at IS NULL
	`, projectID).Scan(&item.ID, &item.Name, &item.Description, &item.Status, &item.StartDate, &item.EndDate, &item.CreatedBy, &item.CreatedAt)
	if err != nil {
		return Project{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListProjectsByUser(ctx context.Context, userID int64) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT p.id, p.name, p.description, p.status, p.start_date, p.end_date, p.created_by, p.created_at
		FROM projects p
		LEFT JOIN project_members pm ON pm.project_id = p.id AND pm.deleted_at IS NULL
		WHERE (p.created_by = $1 OR (pm.user_id = $1 AND pm.status = 'accepted'))
		  AND p.deleted_at IS NULL
		ORDER BY p.created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list projects by user: %w", err)
	}
	defer rows.Close()

	items := make([]Project, 0)
	for rows.Next() {
		var item Project
		if err := rows.Scan(&item.ID, &item.Name, &item.Description, &item.Status, &item.StartDate, &item.EndDate, &item.CreatedBy, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateProject(ctx context.Context, q DBTX, projectID int64, name, description, status string, startDate, endDate *sql.NullTime) error {
	_, err := q.ExecContext(ctx, `
		UPDATE projects
		SET name = COALESCE(NULLIF($2, ''), name),
		    description = COALESCE(NULLIF($3, ''), description),
		    status = COALESCE(NULLIF($4, ''), status),
		    start_date = COALESCE($5, start_date),
		    end_date = COALESCE($6, end_date),
		    updated_at = NOW()
		WHERE id=$1 AND deleted_at IS NULL
	`, projectID, name, description, status, startDate, endDate)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	return nil
}

func (s *PostgresStore) SoftDeleteProject(ctx context.Context, q DBTX, projectID int64) error {
	_, err := q.ExecContext(ctx, `UPDATE projects SET deleted_at=NOW() WHERE id=$1 AND deleted_at IS NULL`, projectID)
	if err != nil {
		return fmt.Errorf("soft delete project: %w", err)
	}
	return nil
}

// ListActiveProjects returns non-deleted projects still marked in
// progress, for the deadline sweep.
func (s *PostgresStore) ListActiveProjects(ctx context.Context) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, status, start_date, end_date, created_by, created_at
		FROM projects
		WHERE deleted_at IS NULL AND status = 'in_progress'
	`)
	if err != nil {
		return nil, fmt.Errorf("list active projects: %w", err)
	}
	defer rows.Close()

	items := make([]Project, 0)
	for rows.Next() {
		var item Project
		if err := rows.Scan(&item.ID, &item.Name, &item.Description, &item.Status, &item.StartDate, &item.EndDate, &item.CreatedBy, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate active projects: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ProjectOwnerIDs(ctx context.Context, projectID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id FROM project_members
		WHERE project_id=$1 AND role='owner' AND deleted_at IS NULL
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list project owners: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

// ActiveMember returns the non-declined, non-deleted membership row for
// the pair, if any.
func (s *PostgresStore) ActiveMember(ctx context.Context, q DBTX, projectID, userID int64) (*ProjectMember, error) {
	var m ProjectMember
	var invitedBy sql.NullInt64
	err := q.QueryRowContext(ctx, `
		SELECT id, project_id, user_id, role, status, invited_by, created_at
		FROM project_members
		WHERE project_id=$1 AND user_id=$2 AND status <> 'declined' AND deleted_at IS NULL
	`, projectID, userID).Scan(&m.ID, &m.ProjectID, &m.UserID, &m.Role, &m.Status, &invitedBy, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup member: %w", err)
	}
	m.InvitedBy = invitedBy.Int64
	return &m, nil
}

func (s *PostgresStore) GetMember(ctx context.Context, q DBTX, memberID int64) (*ProjectMember, error) {
	var m ProjectMember
	var invitedBy sql.NullInt64
	err := q.QueryRowContext(ctx, `
		SELECT id, project_id, user_id, role, status, invited_by, created_at
		FROM project_members
		WHERE id=$1 AND status <> 'declined' AND deleted_at IS NULL
	`, memberID).Scan(&m.ID, &m.ProjectID, &m.UserID, &m.Role, &m.Status, &invitedBy, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get member: %w", err)
	}
	m.InvitedBy = invitedBy.Int64
	return &m, nil
}

func (s *PostgresStore) InsertMember(ctx context.Context, q DBTX, m ProjectMember) (int64, error) {
	var invitedBy sql.NullInt64
	if m.InvitedBy != 0 {
		invitedBy = sql.NullInt64{Int64: m.InvitedBy, Valid: true}
	}
	var id int64
	err := q.QueryRowContext(ctx, `
		INSERT INTO project_members (project_id, user_id, role, status, invited_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, m.ProjectID, m.UserID, m.Role, m.Status, invitedBy).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert member: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) UpdateMemberStatus(ctx context.Context, q DBTX, memberID int64, status string) error {
	_, err := q.ExecContext(ctx, `UPDATE project_members SET status=$2, updated_at=NOW() WHERE id=$1`, memberID, status)
	if err != nil {
		return fmt.Errorf("update member status: %w", err)
	}
	return nil
}

func (s *PostgresStore) SoftDeleteMember(ctx context.Context, q DBTX, memberID int64) error {
	_, err := q.ExecContext(ctx, `UPDATE project_members SET deleted_at=NOW() WHERE id=$1`, memberID)
	if err != nil {
		return fmt.Errorf("soft delete member: %w", err)
	}
	return nil
}

// SoftDeleteProjectAssignments clears a user's task assignments across a
// project, part of the member-removal cascade.
func (s *PostgresStore) SoftDeleteProjectAssignments(ctx context.Context, q DBTX, projectID, userID int64) error {
	_, err := q.ExecContext(ctx, `
		UPDATE task_assignees ta
		SET deleted_at = NOW()
		FROM tasks t
		WHERE ta.task_id = t.id
		  AND t.project_id = $1
		  AND ta.user_id = $2
		  AND ta.deleted_at IS NULL
	`, projectID, userID)
	if err != nil {
		return fmt.Errorf("soft delete project assignments: %w", err)
	}
	return nil
}

// SoftDeleteChannelMemberships removes a user from every chat channel of
// a project, part of the member-removal cascade.
func (s *PostgresStore) SoftDeleteChannelMemberships(ctx context.Context, q DBTX, projectID, userID int64) error {
	_, err := q.ExecContext(ctx, `
		UPDATE chat_channel_members ccm
		SET deleted_at = NOW()
		FROM chat_channels cc
		WHERE ccm.channel_id = cc.id
		  AND cc.project_id = $1
		  AND ccm.user_id = $2
		  AND ccm.deleted_at IS NULL
	`, projectID, userID)
	if err != nil {
		return fmt.Errorf("soft delete channel memberships: %w", err)
	}
	return nil
}

// AcceptedMemberIDs re-queries the membership table on every call; the
// delivery layer depends on this freshness and must not cache the result.
func (s *PostgresStore) AcceptedMemberIDs(ctx context.Context, projectID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id FROM project_members
		WHERE project_id=$1 AND status='accepted' AND deleted_at IS NULL
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list accepted members: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

func (s *PostgresStore) ListProjectMembers(ctx context.Context, projectID int64) ([]ProjectMember, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pm.id, pm.project_id, pm.user_id, pm.role, pm.status, COALESCE(pm.invited_by, 0), pm.created_at, u.name
		FROM project_members pm
		JOIN users u ON u.id = pm.user_id
		WHERE pm.project_id=$1 AND pm.status='accepted' AND pm.deleted_at IS NULL AND u.deleted_at IS NULL
		ORDER BY pm.created_at ASC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list project members: %w", err)
	}
	defer rows.Close()

	items := make([]ProjectMember, 0)
	for rows.Next() {
		var m ProjectMember
		if err := rows.Scan(&m.ID, &m.ProjectID, &m.UserID, &m.Role, &m.Status, &m.InvitedBy, &m.CreatedAt, &m.UserName); err != nil {
			return nil, fmt.Errorf("scan project member: %w", err)
		}
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate project members: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListInvites(ctx context.Context, userID int64) ([]MemberInvite, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pm.id, pm.project_id, pm.user_id, pm.role, pm.status, COALESCE(pm.invited_by, 0), pm.created_at, u.name, p.name
		FROM project_members pm
		JOIN users u ON u.id = pm.invited_by
		JOIN projects p ON p.id = pm.project_id
		WHERE pm.user_id=$1 AND pm.status='invited' AND pm.deleted_at IS NULL
		ORDER BY pm.created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list invites: %w", err)
	}
	defer rows.Close()

	items := make([]MemberInvite, 0)
	for rows.Next() {
		var inv MemberInvite
		if err := rows.Scan(&inv.ID, &inv.ProjectID, &inv.UserID, &inv.Role, &inv.Status, &inv.InvitedBy, &inv.CreatedAt, &inv.InvitedByName, &inv.ProjectName); err != nil {
			return nil, fmt.Errorf("scan invite: %w", err)
		}
		items = append(items, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate invites: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) IsMember(ctx context.Context, projectID, userID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM project_members
			WHERE project_id=$1 AND user_id=$2 AND status <> 'declined' AND deleted_at IS NULL
		)
	`, projectID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) ProjectRole(ctx context.Context, projectID, userID int64) (string, error) {
	var role string
	err := s.db.QueryRowContext(ctx, `
		SELECT role FROM project_members
		WHERE project_id=$1 AND user_id=$2 AND status='accepted' AND deleted_at IS NULL
		LIMIT 1
	`, projectID, userID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read project role: %w", err)
	}
	return role, nil
}

func scanIDs(rows *sql.Rows) ([]int64, error) {
	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ids: %w", err)
	}
	return ids, nil
}
