package task

import (
	"context"
	"fmt"
	"strings"

	"teamflow/api/internal/assign"
	"teamflow/api/internal/store"
)

type Store interface {
	InsertTask(ctx context.Context, q store.DBTX, task store.Task) (int64, error)
	GetTask(ctx context.Context, q store.DBTX, taskID int64) (*store.Task, error)
	ListTasks(ctx context.Context, filter store.TaskFilter) ([]store.Task, error)
	TasksByAssignee(ctx context.Context, userID int64) ([]store.Task, error)
	UpdateTask(ctx context.Context, q store.DBTX, taskID int64, update store.TaskUpdate) error
	SoftDeleteTask(ctx context.Context, q store.DBTX, taskID int64) error
	InsertProgressLog(ctx context.Context, q store.DBTX, taskID int64, progress float64, updatedBy int64) (int64, error)
	GetTaskRole(ctx context.Context, taskID, userID int64) (store.TaskRole, error)
}

type Assigner interface {
	Create(ctx context.Context, uow *store.UnitOfWork, req assign.Request) (store.TaskAssignee, error)
	Clear(ctx context.Context, uow *store.UnitOfWork, taskID int64) (int64, error)
}

type ActivityLog interface {
	Append(ctx context.Context, uow *store.UnitOfWork, projectID, taskID, actorID int64, detail string) (store.ActivityEntry, error)
	DeleteAllForTask(ctx context.Context, uow *store.UnitOfWork, taskID int64) error
}

type Broadcaster interface {
	SendToProject(ctx context.Context, projectID int64, event string, payload any)
}

type Service struct {
	st       Store
	txm      store.TxManager
	assigner Assigner
	activity ActivityLog
	bcast    Broadcaster
}

func NewService(st Store, txm store.TxManager, assigner Assigner, activity ActivityLog, bcast Broadcaster) *Service {
	return &Service{st: st, txm: txm, assigner: assigner, activity: activity, bcast: bcast}
}

var fieldLabels = map[string]string{
	"title":       "title",
	"description": "description",
	"status":      "status",
	"priority":    "priority",
	"start_date":  "start date",
	"due_date":    "due date",
}

func formatFields(keys []string) string {
	labels := make([]string, 0, len(keys))
	for _, k := range keys {
		if label, ok := fieldLabels[k]; ok {
			labels = append(labels, label)
		} else {
			labels = append(labels, k)
		}
	}
	return strings.Join(labels, ", ")
}

type taskUpdatedPayload struct {
	ProjectID int64    `json:"project_id"`
	TaskID    int64    `json:"task_id"`
	Progress  *float64 `json:"progress_value,omitempty"`
}

// Create stores the task and assigns the initial members in the same
// transaction; members already assigned elsewhere are skipped by the
// assigner's idempotency.
func (s *Service) Create(ctx context.Context, t store.Task, memberIDs []int64) (store.Task, error) {
	uow, err := s.txm.Begin(ctx)
	if err != nil {
		return store.Task{}, err
	}
	defer uow.Rollback()

	if t.Status == "" {
		t.Status = "todo"
	}
	if t.Priority == "" {
		t.Priority = "medium"
	}

	id, err := s.st.InsertTask(ctx, uow.DB(), t)
	if err != nil {
		return store.Task{}, err
	}
	t.ID = id

	for _, userID := range memberIDs {
		_, err := s.assigner.Create(ctx, uow, assign.Request{
			ProjectID: t.ProjectID,
			TaskID:    id,
			UserID:    userID,
			ActorID:   t.CreatedBy,
		})
		if err != nil {
			return store.Task{}, err
		}
	}

	projectID, taskID := t.ProjectID, id
	uow.AfterCommit(func() {
		s.bcast.SendToProject(context.Background(), projectID, "task_updated", taskUpdatedPayload{
			ProjectID: projectID,
			TaskID:    taskID,
		})
	})

	if err := uow.Commit(); err != nil {
		return store.Task{}, err
	}
	return t, nil
}

func (s *Service) Get(ctx context.Context, taskID int64) (*store.Task, error) {
	return s.st.GetTask(ctx, nil, taskID)
}

func (s *Service) List(ctx context.Context, filter store.TaskFilter) ([]store.Task, error) {
	return s.st.ListTasks(ctx, filter)
}

func (s *Service) ListByAssignee(ctx context.Context, userID int64) ([]store.Task, error) {
	return s.st.TasksByAssignee(ctx, userID)
}

// Update edits the task, appends an audit entry naming the changed
// fields, and announces the change to the project after commit.
func (s *Service) Update(ctx context.Context, taskID, actorID int64, update store.TaskUpdate, changedFields []string) error {
	uow, err := s.txm.Begin(ctx)
	if err != nil {
		return err
	}
	defer uow.Rollback()

	old, err := s.st.GetTask(ctx, uow.DB(), taskID)
	if err != nil {
		return err
	}
	if old == nil {
		return fmt.Errorf("task %d not found", taskID)
	}

	if err := s.st.UpdateTask(ctx, uow.DB(), taskID, update); err != nil {
		return err
	}

	detail := "Updated: " + formatFields(changedFields)
	if _, err := s.activity.Append(ctx, uow, old.ProjectID, taskID, actorID, detail); err != nil {
		return err
	}

	projectID := old.ProjectID
	uow.AfterCommit(func() {
		s.bcast.SendToProject(context.Background(), projectID, "task_updated", taskUpdatedPayload{
			ProjectID: projectID,
			TaskID:    taskID,
		})
	})

	return uow.Commit()
}

// LogProgress clamps the value to 0..100, records it, and audits the
// change.
func (s *Service) LogProgress(ctx context.Context, taskID, actorID int64, value float64) (float64, error) {
	if value < 0 {
		value = 0
	}
	if value > 100 {
		value = 100
	}

	uow, err := s.txm.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer uow.Rollback()

	t, err := s.st.GetTask(ctx, uow.DB(), taskID)
	if err != nil {
		return 0, err
	}
	if t == nil {
		return 0, fmt.Errorf("task %d not found", taskID)
	}

	if _, err := s.st.InsertProgressLog(ctx, uow.DB(), taskID, value, actorID); err != nil {
		return 0, err
	}

	detail := fmt.Sprintf("Progress updated: %.1f%%", value)
	if _, err := s.activity.Append(ctx, uow, t.ProjectID, taskID, actorID, detail); err != nil {
		return 0, err
	}

	projectID, progress := t.ProjectID, value
	uow.AfterCommit(func() {
		s.bcast.SendToProject(context.Background(), projectID, "task_updated", taskUpdatedPayload{
			ProjectID: projectID,
			TaskID:    taskID,
			Progress:  &progress,
		})
	})

	if err := uow.Commit(); err != nil {
		return 0, err
	}
	return value, nil
}

// Delete hides the task and its history, then tells the project.
func (s *Service) Delete(ctx context.Context, taskID, actorID int64) (*store.Task, error) {
	uow, err := s.txm.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer uow.Rollback()

	t, err := s.st.GetTask(ctx, uow.DB(), taskID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, nil
	}

	if err := s.st.SoftDeleteTask(ctx, uow.DB(), taskID); err != nil {
		return nil, err
	}
	if err := s.activity.DeleteAllForTask(ctx, uow, taskID); err != nil {
		return nil, err
	}

	projectID := t.ProjectID
	uow.AfterCommit(func() {
		s.bcast.SendToProject(context.Background(), projectID, "task_updated", taskUpdatedPayload{
			ProjectID: projectID,
			TaskID:    taskID,
		})
	})

	if err := uow.Commit(); err != nil {
		return nil, err
	}
	return t, nil
}

// ClearAssignees removes everyone from the task and audits it.
func (s *Service) ClearAssignees(ctx context.Context, taskID, actorID int64) (int64, error) {
	uow, err := s.txm.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer uow.Rollback()

	t, err := s.st.GetTask(ctx, uow.DB(), taskID)
	if err != nil {
		return 0, err
	}
	if t == nil {
		return 0, fmt.Errorf("task %d not found", taskID)
	}

	affected, err := s.assigner.Clear(ctx, uow, taskID)
	if err != nil {
		return 0, err
	}
	if _, err := s.activity.Append(ctx, uow, t.ProjectID, taskID, actorID, "Updated assignees"); err != nil {
		return 0, err
	}

	if err := uow.Commit(); err != nil {
		return 0, err
	}
	return affected, nil
}

func (s *Service) Role(ctx context.Context, taskID, userID int64) (store.TaskRole, error) {
	return s.st.GetTaskRole(ctx, taskID, userID)
}
