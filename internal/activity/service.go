package activity

import (
	"context"
	"time"

	"teamflow/api/internal/store"
)

type Store interface {
	InsertActivity(ctx context.Context, q store.DBTX, entry store.ActivityEntry) (store.ActivityEntry, error)
	ListActivity(ctx context.Context, taskID int64) ([]store.ActivityEntry, error)
	SoftDeleteActivityForTask(ctx context.Context, q store.DBTX, taskID int64) error
}

// Broadcaster fans an event out to the current members of a project.
type Broadcaster interface {
	SendToProject(ctx context.Context, projectID int64, event string, payload any)
}

// Service appends immutable audit entries to a task's history and
// streams them to the project after the surrounding write commits.
type Service struct {
	store store.TxManager
	st    Store
	bcast Broadcaster
}

func NewService(st Store, txm store.TxManager, bcast Broadcaster) *Service {
	return &Service{st: st, store: txm, bcast: bcast}
}

type streamPayload struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Detail    string    `json:"detail"`
	CreatedAt time.Time `json:"created_at"`
}

// Append records one entry inside the caller's unit of work. The
// project broadcast is deferred to after commit; a rolled-back entry
// is never announced.
func (s *Service) Append(ctx context.Context, uow *store.UnitOfWork, projectID, taskID, actorID int64, detail string) (store.ActivityEntry, error) {
	uow, owned, err := store.Enlist(ctx, s.store, uow)
	if err != nil {
		return store.ActivityEntry{}, err
	}
	if owned {
		defer uow.Rollback()
	}

	entry, err := s.st.InsertActivity(ctx, uow.DB(), store.ActivityEntry{
		TaskID:  taskID,
		ActorID: actorID,
		Detail:  detail,
	})
	if err != nil {
		return store.ActivityEntry{}, err
	}

	saved := entry
	uow.AfterCommit(func() {
		s.bcast.SendToProject(context.Background(), projectID, "activity", streamPayload{
			ID:        saved.ID,
			UserID:    saved.ActorID,
			Detail:    saved.Detail,
			CreatedAt: saved.CreatedAt,
		})
	})

	if owned {
		if err := uow.Commit(); err != nil {
			return store.ActivityEntry{}, err
		}
	}
	return entry, nil
}

func (s *Service) List(ctx context.Context, taskID int64) ([]store.ActivityEntry, error) {
	return s.st.ListActivity(ctx, taskID)
}

// DeleteAllForTask hides a task's history when the task itself is
// removed. Runs inside the caller's unit of work.
func (s *Service) DeleteAllForTask(ctx context.Context, uow *store.UnitOfWork, taskID int64) error {
	return s.st.SoftDeleteActivityForTask(ctx, uow.DB(), taskID)
}
