package comment

import (
	"context"
	"fmt"

	"teamflow/api/internal/notify"
	"teamflow/api/internal/store"
)

type Store interface {
	GetTask(ctx context.Context, q store.DBTX, taskID int64) (*store.Task, error)
	InsertComment(ctx context.Context, q store.DBTX, c store.Comment) (int64, error)
	GetComment(ctx context.Context, q store.DBTX, commentID int64) (*store.Comment, error)
	ListTaskComments(ctx context.Context, taskID int64) ([]store.Comment, error)
	UpdateCommentContent(ctx context.Context, commentID int64, content string) (bool, error)
	SoftDeleteComment(ctx context.Context, commentID int64) (bool, error)
}

type Notifier interface {
	Create(ctx context.Context, uow *store.UnitOfWork, d notify.Descriptor) (store.Notification, error)
}

// ActivityLog appends one line to the task's timeline.
type ActivityLog interface {
	Append(ctx context.Context, uow *store.UnitOfWork, projectID, taskID, actorID int64, detail string) (store.ActivityEntry, error)
}

type Broadcaster interface {
	SendToProject(ctx context.Context, projectID int64, event string, payload any)
}

// Service manages task comments. Adding one notifies the task's
// creator and lands on the activity timeline, all in the same
// transaction as the comment row.
type Service struct {
	st       Store
	txm      store.TxManager
	notifier Notifier
	activity ActivityLog
	bcast    Broadcaster
}

func NewService(st Store, txm store.TxManager, notifier Notifier, activity ActivityLog, bcast Broadcaster) *Service {
	return &Service{st: st, txm: txm, notifier: notifier, activity: activity, bcast: bcast}
}

// commentPayload is what the project hears on the "comment" event.
type commentPayload struct {
	Action string        `json:"action"`
	Data   store.Comment `json:"data"`
}

// Add stores the comment, tells the task's creator unless they wrote
// it themselves, and appends a timeline entry. The project hears the
// new comment once everything commits.
func (s *Service) Add(ctx context.Context, uow *store.UnitOfWork, c store.Comment) (*store.Comment, error) {
	uow, owned, err := store.Enlist(ctx, s.txm, uow)
	if err != nil {
		return nil, err
	}
	if owned {
		defer uow.Rollback()
	}

	task, err := s.st.GetTask(ctx, uow.DB(), c.TaskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, nil
	}

	id, err := s.st.InsertComment(ctx, uow.DB(), c)
	if err != nil {
		return nil, err
	}

	if task.CreatedBy != 0 && task.CreatedBy != c.UserID {
		_, err = s.notifier.Create(ctx, uow, notify.Descriptor{
			RecipientID:   task.CreatedBy,
			ActorID:       c.UserID,
			Type:          notify.TypeCommentAdded,
			ReferenceType: notify.RefTask,
			ReferenceID:   c.TaskID,
		})
		if err != nil {
			return nil, err
		}
	}

	if _, err := s.activity.Append(ctx, uow, task.ProjectID, c.TaskID, c.UserID, "New comment"); err != nil {
		return nil, err
	}

	full, err := s.st.GetComment(ctx, uow.DB(), id)
	if err != nil {
		return nil, err
	}
	if full == nil {
		return nil, fmt.Errorf("comment %d vanished before read-back", id)
	}

	projectID := task.ProjectID
	delivered := *full
	uow.AfterCommit(func() {
		s.bcast.SendToProject(context.Background(), projectID, "comment", commentPayload{Action: "create", Data: delivered})
	})

	if owned {
		if err := uow.Commit(); err != nil {
			return nil, err
		}
	}
	return full, nil
}

func (s *Service) Get(ctx context.Context, commentID int64) (*store.Comment, error) {
	return s.st.GetComment(ctx, nil, commentID)
}

func (s *Service) ListByTask(ctx context.Context, taskID int64) ([]store.Comment, error) {
	return s.st.ListTaskComments(ctx, taskID)
}

// Update edits the comment body; only the author may edit.
func (s *Service) Update(ctx context.Context, commentID, userID int64, content string) (*store.Comment, error) {
	existing, err := s.st.GetComment(ctx, nil, commentID)
	if err != nil {
		return nil, err
	}
	if existing == nil || existing.UserID != userID {
		return nil, nil
	}

	if _, err := s.st.UpdateCommentContent(ctx, commentID, content); err != nil {
		return nil, err
	}
	return s.st.GetComment(ctx, nil, commentID)
}

// Delete hides the comment; only the author may delete.
func (s *Service) Delete(ctx context.Context, commentID, userID int64) (bool, error) {
	existing, err := s.st.GetComment(ctx, nil, commentID)
	if err != nil {
		return false, err
	}
	if existing == nil || existing.UserID != userID {
		return false, nil
	}
	return s.st.SoftDeleteComment(ctx, commentID)
}
