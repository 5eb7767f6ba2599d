package assign

import (
	"context"

	"teamflow/api/internal/notify"
	"teamflow/api/internal/store"
)

type Store interface {
	ActiveAssignment(ctx context.Context, q store.DBTX, taskID, userID int64) (*store.TaskAssignee, error)
	InsertAssignment(ctx context.Context, q store.DBTX, taskID, userID int64) (int64, error)
	AssigneeIDs(ctx context.Context, taskID int64) ([]int64, error)
	DeleteAssignments(ctx context.Context, q store.DBTX, taskID int64) (int64, error)
}

type Notifier interface {
	Create(ctx context.Context, uow *store.UnitOfWork, d notify.Descriptor) (store.Notification, error)
}

type Broadcaster interface {
	SendToProject(ctx context.Context, projectID int64, event string, payload any)
}

type Service struct {
	st       Store
	txm      store.TxManager
	notifier Notifier
	bcast    Broadcaster
}

func NewService(st Store, txm store.TxManager, notifier Notifier, bcast Broadcaster) *Service {
	return &Service{st: st, txm: txm, notifier: notifier, bcast: bcast}
}

// Request names who assigns whom to which task.
type Request struct {
	ProjectID int64
	TaskID    int64
	UserID    int64
	ActorID   int64
}

type taskUpdatedPayload struct {
	ProjectID int64 `json:"project_id"`
	TaskID    int64 `json:"task_id"`
}

// Create assigns the user to the task. Assigning an already-assigned
// user is a no-op: the existing row comes back marked skipped and no
// notification or broadcast fires. Self-assignment also skips the
// notification.
func (s *Service) Create(ctx context.Context, uow *store.UnitOfWork, req Request) (store.TaskAssignee, error) {
	uow, owned, err := store.Enlist(ctx, s.txm, uow)
	if err != nil {
		return store.TaskAssignee{}, err
	}
	if owned {
		defer uow.Rollback()
	}

	existing, err := s.st.ActiveAssignment(ctx, uow.DB(), req.TaskID, req.UserID)
	if err != nil {
		return store.TaskAssignee{}, err
	}
	if existing != nil {
		if owned {
			if err := uow.Commit(); err != nil {
				return store.TaskAssignee{}, err
			}
		}
		existing.Skipped = true
		return *existing, nil
	}

	id, err := s.st.InsertAssignment(ctx, uow.DB(), req.TaskID, req.UserID)
	if err != nil {
		return store.TaskAssignee{}, err
	}

	if req.ActorID != req.UserID {
		_, err = s.notifier.Create(ctx, uow, notify.Descriptor{
			RecipientID:   req.UserID,
			ActorID:       req.ActorID,
			Type:          notify.TypeTaskAssigned,
			ReferenceType: notify.RefTask,
			ReferenceID:   req.TaskID,
		})
		if err != nil {
			return store.TaskAssignee{}, err
		}
	}

	if req.ProjectID != 0 {
		projectID, taskID := req.ProjectID, req.TaskID
		uow.AfterCommit(func() {
			s.bcast.SendToProject(context.Background(), projectID, "task_updated", taskUpdatedPayload{
				ProjectID: projectID,
				TaskID:    taskID,
			})
		})
	}

	if owned {
		if err := uow.Commit(); err != nil {
			return store.TaskAssignee{}, err
		}
	}
	return store.TaskAssignee{ID: id, TaskID: req.TaskID, UserID: req.UserID}, nil
}

func (s *Service) Assignees(ctx context.Context, taskID int64) ([]int64, error) {
	return s.st.AssigneeIDs(ctx, taskID)
}

// Clear removes every assignment from a task inside the caller's unit
// of work. Used when a task is deleted or reassigned wholesale.
func (s *Service) Clear(ctx context.Context, uow *store.UnitOfWork, taskID int64) (int64, error) {
	return s.st.DeleteAssignments(ctx, uow.DB(), taskID)
}
