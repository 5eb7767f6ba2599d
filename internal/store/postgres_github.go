package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

func (s *PostgresStore) UpsertInstallation(ctx context.Context, q DBTX, installationID int64, accountLogin string) error {
	if q == nil {
		q = s.db
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO github_installations (installation_id, account_login)
		VALUES ($1, $2)
		ON CONFLICT (installation_id) DO UPDATE SET account_login=EXCLUDED.account_login
	`, installationID, accountLogin)
	if err != nil {
		return fmt.Errorf("upsert installation: %w", err)
	}
	return nil
}

// LinkInstallation binds an installation to a project, replacing any
// previous binding for that project.
func (s *PostgresStore) LinkInstallation(ctx context.Context, q DBTX, projectID, installationID int64) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO project_installations (project_id, installation_id)
		VALUES ($1, $2)
		ON CONFLICT (project_id) DO UPDATE SET installation_id=EXCLUDED.installation_id
	`, projectID, installationID)
	if err != nil {
		return fmt.Errorf("link installation: %w", err)
	}
	return nil
}

func (s *PostgresStore) UnlinkInstallation(ctx context.Context, q DBTX, projectID int64) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM project_repositories WHERE project_id=$1`, projectID); err != nil {
		return fmt.Errorf("unlink repositories: %w", err)
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM project_installations WHERE project_id=$1`, projectID); err != nil {
		return fmt.Errorf("unlink installation: %w", err)
	}
	return nil
}

func (s *PostgresStore) InstallationByProject(ctx context.Context, projectID int64) (*Installation, error) {
	var inst Installation
	err := s.db.QueryRowContext(ctx, `
		SELECT gi.installation_id, gi.account_login
		FROM project_installations pi
		JOIN github_installations gi ON gi.installation_id = pi.installation_id
		WHERE pi.project_id=$1
	`, projectID).Scan(&inst.InstallationID, &inst.AccountLogin)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("installation by project: %w", err)
	}
	return &inst, nil
}

// ReplaceProjectRepositories swaps the tracked repository set for a
// project in one transaction.
func (s *PostgresStore) ReplaceProjectRepositories(ctx context.Context, q DBTX, projectID int64, repos []Repository) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM project_repositories WHERE project_id=$1`, projectID); err != nil {
		return fmt.Errorf("clear repositories: %w", err)
	}
	for _, r := range repos {
		_, err := q.ExecContext(ctx, `
			INSERT INTO project_repositories (project_id, repo_id, full_name, html_url, is_private)
			VALUES ($1, $2, $3, $4, $5)
		`, projectID, r.RepoID, r.FullName, r.HTMLURL, r.IsPrivate)
		if err != nil {
			return fmt.Errorf("insert repository: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) ListProjectRepositories(ctx context.Context, projectID int64) ([]Repository, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, repo_id, full_name, html_url, is_private
		FROM project_repositories
		WHERE project_id=$1
		ORDER BY full_name ASC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list repositories: %w", err)
	}
	defer rows.Close()

	items := make([]Repository, 0)
	for rows.Next() {
		var r Repository
		if err := rows.Scan(&r.ID, &r.ProjectID, &r.RepoID, &r.FullName, &r.HTMLURL, &r.IsPrivate); err != nil {
			return nil, fmt.Errorf("scan repository: %w", err)
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate repositories: %w", err)
	}
	return items, nil
}

// ProjectIDsByRepoFullName resolves which projects track a repository;
// webhook fan-out targets every one of them.
func (s *PostgresStore) ProjectIDsByRepoFullName(ctx context.Context, fullName string) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT project_id FROM project_repositories WHERE full_name=$1
	`, fullName)
	if err != nil {
		return nil, fmt.Errorf("projects by repo: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

func (s *PostgresStore) TaskStatusCounts(ctx context.Context, projectID int64) ([]StatusCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM tasks
		WHERE project_id=$1 AND deleted_at IS NULL
		GROUP BY status
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("status counts: %w", err)
	}
	defer rows.Close()

	items := make([]StatusCount, 0)
	for rows.Next() {
		var c StatusCount
		if err := rows.Scan(&c.Status, &c.Count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		items = append(items, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status counts: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) TaskPriorityCounts(ctx context.Context, projectID int64) ([]PriorityCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT priority, COUNT(*) FROM tasks
		WHERE project_id=$1 AND deleted_at IS NULL
		GROUP BY priority
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("priority counts: %w", err)
	}
	defer rows.Close()

	items := make([]PriorityCount, 0)
	for rows.Next() {
		var c PriorityCount
		if err := rows.Scan(&c.Priority, &c.Count); err != nil {
			return nil, fmt.Errorf("scan priority count: %w", err)
		}
		items = append(items, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate priority counts: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) MemberWorkloads(ctx context.Context, projectID int64) ([]MemberWorkload, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.name, COUNT(ta.id)
		FROM project_members pm
		JOIN users u ON u.id = pm.user_id
		LEFT JOIN task_assignees ta ON ta.user_id = pm.user_id AND ta.deleted_at IS NULL
			AND ta.task_id IN (SELECT id FROM tasks WHERE project_id=$1 AND deleted_at IS NULL)
		WHERE pm.project_id=$1 AND pm.status='accepted' AND pm.deleted_at IS NULL
		GROUP BY u.name
		ORDER BY u.name ASC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("member workloads: %w", err)
	}
	defer rows.Close()

	items := make([]MemberWorkload, 0)
	total := 0
	for rows.Next() {
		var w MemberWorkload
		if err := rows.Scan(&w.Name, &w.AssignedTasks); err != nil {
			return nil, fmt.Errorf("scan workload: %w", err)
		}
		total += w.AssignedTasks
		items = append(items, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workloads: %w", err)
	}
	if total > 0 {
		for i := range items {
			items[i].WorkloadPercent = items[i].AssignedTasks * 100 / total
		}
	}
	return items, nil
}
