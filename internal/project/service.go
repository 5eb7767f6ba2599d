package project

import (
	"context"
	"database/sql"

	"teamflow/api/internal/notify"
	"teamflow/api/internal/store"
)

type Store interface {
	InsertProject(ctx context.Context, q store.DBTX, project store.Project) (int64, error)
	GetProject(ctx context.Context, projectID int64) (store.Project, error)
	ListProjectsByUser(ctx context.Context, userID int64) ([]store.Project, error)
	UpdateProject(ctx context.Context, q store.DBTX, projectID int64, name, description, status string, startDate, endDate *sql.NullTime) error
	SoftDeleteProject(ctx context.Context, q store.DBTX, projectID int64) error
	AcceptedMemberIDs(ctx context.Context, projectID int64) ([]int64, error)
	ProjectRole(ctx context.Context, projectID, userID int64) (string, error)
	TaskStatusCounts(ctx context.Context, projectID int64) ([]store.StatusCount, error)
	TaskPriorityCounts(ctx context.Context, projectID int64) ([]store.PriorityCount, error)
	MemberWorkloads(ctx context.Context, projectID int64) ([]store.MemberWorkload, error)
}

// Inviter enrolls one user in a project inside the given unit of work.
type Inviter interface {
	Invite(ctx context.Context, uow *store.UnitOfWork, m store.ProjectMember) (store.ProjectMember, bool, error)
}

type Notifier interface {
	Create(ctx context.Context, uow *store.UnitOfWork, d notify.Descriptor) (store.Notification, error)
}

type Service struct {
	st       Store
	txm      store.TxManager
	inviter  Inviter
	notifier Notifier
}

func NewService(st Store, txm store.TxManager, inviter Inviter, notifier Notifier) *Service {
	return &Service{st: st, txm: txm, inviter: inviter, notifier: notifier}
}

// Invitee names a user to bring into a new project.
type Invitee struct {
	UserID int64
	Role   string
}

// Create stores the project, enrolls the creator as an accepted owner,
// and invites the initial members, all in one transaction.
func (s *Service) Create(ctx context.Context, p store.Project, invitees []Invitee) (store.Project, error) {
	uow, err := s.txm.Begin(ctx)
	if err != nil {
		return store.Project{}, err
	}
	defer uow.Rollback()

	if p.Status == "" {
		p.Status = "in_progress"
	}

	id, err := s.st.InsertProject(ctx, uow.DB(), p)
	if err != nil {
		return store.Project{}, err
	}
	p.ID = id

	_, _, err = s.inviter.Invite(ctx, uow, store.ProjectMember{
		ProjectID: id,
		UserID:    p.CreatedBy,
		Role:      "owner",
		Status:    store.MemberAccepted,
	})
	if err != nil {
		return store.Project{}, err
	}

	for _, inv := range invitees {
		if inv.UserID == p.CreatedBy {
			continue
		}
		role := inv.Role
		if role == "" {
			role = "member"
		}
		_, _, err := s.inviter.Invite(ctx, uow, store.ProjectMember{
			ProjectID: id,
			UserID:    inv.UserID,
			Role:      role,
			Status:    store.MemberInvited,
			InvitedBy: p.CreatedBy,
		})
		if err != nil {
			return store.Project{}, err
		}
	}

	if err := uow.Commit(); err != nil {
		return store.Project{}, err
	}
	return p, nil
}

func (s *Service) Get(ctx context.Context, projectID int64) (store.Project, error) {
	return s.st.GetProject(ctx, projectID)
}

func (s *Service) ListByUser(ctx context.Context, userID int64) ([]store.Project, error) {
	return s.st.ListProjectsByUser(ctx, userID)
}

// Update edits the project and notifies every accepted member except
// the actor, in the same transaction as the edit.
func (s *Service) Update(ctx context.Context, projectID, actorID int64, name, description, status string, startDate, endDate *sql.NullTime) (store.Project, error) {
	uow, err := s.txm.Begin(ctx)
	if err != nil {
		return store.Project{}, err
	}
	defer uow.Rollback()

	if err := s.st.UpdateProject(ctx, uow.DB(), projectID, name, description, status, startDate, endDate); err != nil {
		return store.Project{}, err
	}

	if err := s.notifyMembers(ctx, uow, projectID, actorID, ""); err != nil {
		return store.Project{}, err
	}

	if err := uow.Commit(); err != nil {
		return store.Project{}, err
	}
	return s.st.GetProject(ctx, projectID)
}

// Delete hides the project and tells every other accepted member.
func (s *Service) Delete(ctx context.Context, projectID, actorID int64) error {
	uow, err := s.txm.Begin(ctx)
	if err != nil {
		return err
	}
	defer uow.Rollback()

	if err := s.st.SoftDeleteProject(ctx, uow.DB(), projectID); err != nil {
		return err
	}

	if err := s.notifyMembers(ctx, uow, projectID, actorID, "The project was deleted"); err != nil {
		return err
	}

	return uow.Commit()
}

func (s *Service) notifyMembers(ctx context.Context, uow *store.UnitOfWork, projectID, actorID int64, message string) error {
	memberIDs, err := s.st.AcceptedMemberIDs(ctx, projectID)
	if err != nil {
		return err
	}
	for _, userID := range memberIDs {
		if userID == actorID {
			continue
		}
		_, err := s.notifier.Create(ctx, uow, notify.Descriptor{
			RecipientID:   userID,
			ActorID:       actorID,
			Type:          notify.TypeProjectUpdated,
			ReferenceType: notify.RefProject,
			ReferenceID:   projectID,
			Message:       message,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) Role(ctx context.Context, projectID, userID int64) (string, error) {
	return s.st.ProjectRole(ctx, projectID, userID)
}

// Report aggregates one project's task and staffing numbers.
type Report struct {
	Project        store.Project          `json:"project"`
	TotalTasks     int                    `json:"total_tasks"`
	CompletionRate int                    `json:"completion_rate"`
	MemberCount    int                    `json:"member_count"`
	TaskStatus     []store.StatusCount    `json:"task_status"`
	Priority       []store.PriorityCount  `json:"priority"`
	Workload       []store.MemberWorkload `json:"workload"`
}

func (s *Service) Report(ctx context.Context, projectID int64) (*Report, error) {
	p, err := s.st.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	statusCounts, err := s.st.TaskStatusCounts(ctx, projectID)
	if err != nil {
		return nil, err
	}
	priorityCounts, err := s.st.TaskPriorityCounts(ctx, projectID)
	if err != nil {
		return nil, err
	}
	workload, err := s.st.MemberWorkloads(ctx, projectID)
	if err != nil {
		return nil, err
	}
	memberIDs, err := s.st.AcceptedMemberIDs(ctx, projectID)
	if err != nil {
		return nil, err
	}

	total, done := 0, 0
	for _, c := range statusCounts {
		total += c.Count
		if c.Status == "done" {
			done += c.Count
		}
	}
	rate := 0
	if total > 0 {
		rate = done * 100 / total
	}

	return &Report{
		Project:        p,
		TotalTasks:     total,
		CompletionRate: rate,
		MemberCount:    len(memberIDs),
		TaskStatus:     statusCounts,
		Priority:       priorityCounts,
		Workload:       workload,
	}, nil
}
