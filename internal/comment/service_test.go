package comment

import (
	"context"
	"testing"

	"teamflow/api/internal/notify"
	"teamflow/api/internal/store"
)

type stubTx struct {
	committed  bool
	rolledBack bool
}

func (t *stubTx) Commit() error   { t.committed = true; return nil }
func (t *stubTx) Rollback() error { t.rolledBack = true; return nil }

type fakeTxManager struct {
	tx *stubTx
}

func (m *fakeTxManager) Begin(ctx context.Context) (*store.UnitOfWork, error) {
	m.tx = &stubTx{}
	return store.NewUnitOfWork(m.tx, nil), nil
}

type fakeStore struct {
	Store
	task     *store.Task
	comments map[int64]*store.Comment
	nextID   int64
	deleted  []int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		task:     &store.Task{ID: 3, ProjectID: 10, CreatedBy: 7},
		comments: make(map[int64]*store.Comment),
		nextID:   200,
	}
}

func (f *fakeStore) GetTask(ctx context.Context, q store.DBTX, taskID int64) (*store.Task, error) {
	if f.task == nil || f.task.ID != taskID {
		return nil, nil
	}
	return f.task, nil
}

func (f *fakeStore) InsertComment(ctx context.Context, q store.DBTX, c store.Comment) (int64, error) {
	f.nextID++
	c.ID = f.nextID
	c.UserName = "Alice"
	f.comments[c.ID] = &c
	return c.ID, nil
}

func (f *fakeStore) GetComment(ctx context.Context, q store.DBTX, commentID int64) (*store.Comment, error) {
	c := f.comments[commentID]
	if c == nil {
		return nil, nil
	}
	copied := *c
	return &copied, nil
}

func (f *fakeStore) UpdateCommentContent(ctx context.Context, commentID int64, content string) (bool, error) {
	c := f.comments[commentID]
	if c == nil {
		return false, nil
	}
	c.Content = content
	return true, nil
}

func (f *fakeStore) SoftDeleteComment(ctx context.Context, commentID int64) (bool, error) {
	if f.comments[commentID] == nil {
		return false, nil
	}
	delete(f.comments, commentID)
	f.deleted = append(f.deleted, commentID)
	return true, nil
}

type fakeNotifier struct {
	created []notify.Descriptor
}

func (n *fakeNotifier) Create(ctx context.Context, uow *store.UnitOfWork, d notify.Descriptor) (store.Notification, error) {
	n.created = append(n.created, d)
	return store.Notification{}, nil
}

type fakeActivity struct {
	details []string
}

func (a *fakeActivity) Append(ctx context.Context, uow *store.UnitOfWork, projectID, taskID, actorID int64, detail string) (store.ActivityEntry, error) {
	a.details = append(a.details, detail)
	return store.ActivityEntry{TaskID: taskID, ActorID: actorID, Detail: detail}, nil
}

type fakeBroadcaster struct {
	sent []struct {
		projectID int64
		event     string
	}
}

func (b *fakeBroadcaster) SendToProject(ctx context.Context, projectID int64, event string, payload any) {
	b.sent = append(b.sent, struct {
		projectID int64
		event     string
	}{projectID, event})
}

func newTestService() (*Service, *fakeStore, *fakeNotifier, *fakeActivity, *fakeBroadcaster) {
	st := newFakeStore()
	notifier := &fakeNotifier{}
	activity := &fakeActivity{}
	bcast := &fakeBroadcaster{}
	return NewService(st, &fakeTxManager{}, notifier, activity, bcast), st, notifier, activity, bcast
}

func TestAddNotifiesTaskCreatorAndLogsActivity(t *testing.T) {
	svc, _, notifier, activity, bcast := newTestService()

	c, err := svc.Add(context.Background(), nil, store.Comment{TaskID: 3, UserID: 2, Content: "looks good"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if c == nil || c.ID == 0 {
		t.Fatalf("expected stored comment, got %+v", c)
	}

	if len(notifier.created) != 1 {
		t.Fatalf("expected one notification, got %d", len(notifier.created))
	}
	d := notifier.created[0]
	if d.RecipientID != 7 || d.ActorID != 2 || d.Type != notify.TypeCommentAdded || d.ReferenceType != notify.RefTask {
		t.Fatalf("unexpected descriptor %+v", d)
	}

	if len(activity.details) != 1 || activity.details[0] != "New comment" {
		t.Fatalf("unexpected activity %v", activity.details)
	}

	if len(bcast.sent) != 1 || bcast.sent[0].projectID != 10 || bcast.sent[0].event != "comment" {
		t.Fatalf("expected comment broadcast to project 10, got %+v", bcast.sent)
	}
}

func TestAddByTaskCreatorSkipsNotification(t *testing.T) {
	svc, _, notifier, activity, _ := newTestService()

	if _, err := svc.Add(context.Background(), nil, store.Comment{TaskID: 3, UserID: 7, Content: "note"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if len(notifier.created) != 0 {
		t.Fatalf("creator commenting on own task must not self-notify")
	}
	if len(activity.details) != 1 {
		t.Fatalf("timeline entry still expected, got %v", activity.details)
	}
}

func TestAddUnknownTask(t *testing.T) {
	svc, _, notifier, _, bcast := newTestService()

	c, err := svc.Add(context.Background(), nil, store.Comment{TaskID: 99, UserID: 2, Content: "hello"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if c != nil {
		t.Fatalf("expected nil for unknown task, got %+v", c)
	}
	if len(notifier.created) != 0 || len(bcast.sent) != 0 {
		t.Fatalf("unknown task must not notify or broadcast")
	}
}

func TestAddBroadcastWaitsForOuterCommit(t *testing.T) {
	svc, _, _, _, bcast := newTestService()

	outer := store.NewUnitOfWork(&stubTx{}, nil)
	if _, err := svc.Add(context.Background(), outer, store.Comment{TaskID: 3, UserID: 2, Content: "wip"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if len(bcast.sent) != 0 {
		t.Fatalf("broadcast escaped before the outer commit")
	}
	if err := outer.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if len(bcast.sent) != 1 {
		t.Fatalf("expected broadcast after outer commit, got %d", len(bcast.sent))
	}
}

func TestUpdateOnlyByAuthor(t *testing.T) {
	svc, st, _, _, _ := newTestService()

	c, err := svc.Add(context.Background(), nil, store.Comment{TaskID: 3, UserID: 2, Content: "draft"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	updated, err := svc.Update(context.Background(), c.ID, 5, "hijacked")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated != nil {
		t.Fatalf("non-author edit must be refused")
	}
	if st.comments[c.ID].Content != "draft" {
		t.Fatalf("content changed by non-author")
	}

	updated, err = svc.Update(context.Background(), c.ID, 2, "final")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated == nil || updated.Content != "final" {
		t.Fatalf("author edit lost: %+v", updated)
	}
}

func TestDeleteOnlyByAuthor(t *testing.T) {
	svc, st, _, _, _ := newTestService()

	c, err := svc.Add(context.Background(), nil, store.Comment{TaskID: 3, UserID: 2, Content: "temp"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	ok, err := svc.Delete(context.Background(), c.ID, 5)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if ok {
		t.Fatalf("non-author delete must be refused")
	}

	ok, err = svc.Delete(context.Background(), c.ID, 2)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !ok || len(st.deleted) != 1 {
		t.Fatalf("author delete did not land")
	}
}
