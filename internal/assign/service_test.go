package assign

import (
	"context"
	"testing"

	"teamflow/api/internal/notify"
	"teamflow/api/internal/store"
)

type stubTx struct{}

func (stubTx) Commit() error   { return nil }
func (stubTx) Rollback() error { return nil }

type fakeTxManager struct{}

func (fakeTxManager) Begin(ctx context.Context) (*store.UnitOfWork, error) {
	return store.NewUnitOfWork(stubTx{}, nil), nil
}

type fakeStore struct {
	existing *store.TaskAssignee
	inserted int
}

func (f *fakeStore) ActiveAssignment(ctx context.Context, q store.DBTX, taskID, userID int64) (*store.TaskAssignee, error) {
	return f.existing, nil
}

func (f *fakeStore) InsertAssignment(ctx context.Context, q store.DBTX, taskID, userID int64) (int64, error) {
	f.inserted++
	return 21, nil
}

func (f *fakeStore) AssigneeIDs(ctx context.Context, taskID int64) ([]int64, error) {
	return nil, nil
}

func (f *fakeStore) DeleteAssignments(ctx context.Context, q store.DBTX, taskID int64) (int64, error) {
	return 0, nil
}

type fakeNotifier struct {
	created []notify.Descriptor
}

func (n *fakeNotifier) Create(ctx context.Context, uow *store.UnitOfWork, d notify.Descriptor) (store.Notification, error) {
	n.created = append(n.created, d)
	return store.Notification{ID: 1}, nil
}

type fakeBroadcaster struct {
	events []string
}

func (b *fakeBroadcaster) SendToProject(ctx context.Context, projectID int64, event string, payload any) {
	b.events = append(b.events, event)
}

func TestCreateAssignsAndNotifies(t *testing.T) {
	st := &fakeStore{}
	notifier := &fakeNotifier{}
	bcast := &fakeBroadcaster{}
	svc := NewService(st, fakeTxManager{}, notifier, bcast)

	got, err := svc.Create(context.Background(), nil, Request{
		ProjectID: 10, TaskID: 4, UserID: 7, ActorID: 2,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if got.Skipped {
		t.Fatalf("fresh assignment should not be skipped")
	}
	if st.inserted != 1 {
		t.Fatalf("expected one insert, got %d", st.inserted)
	}
	if len(notifier.created) != 1 || notifier.created[0].Type != "task_assigned" {
		t.Fatalf("expected task_assigned notification, got %+v", notifier.created)
	}
	if notifier.created[0].RecipientID != 7 {
		t.Fatalf("notification should target the assignee")
	}
	if len(bcast.events) != 1 || bcast.events[0] != "task_updated" {
		t.Fatalf("expected task_updated broadcast, got %v", bcast.events)
	}
}

func TestCreateExistingAssignmentIsSkipped(t *testing.T) {
	st := &fakeStore{existing: &store.TaskAssignee{ID: 3, TaskID: 4, UserID: 7}}
	notifier := &fakeNotifier{}
	bcast := &fakeBroadcaster{}
	svc := NewService(st, fakeTxManager{}, notifier, bcast)

	got, err := svc.Create(context.Background(), nil, Request{
		ProjectID: 10, TaskID: 4, UserID: 7, ActorID: 2,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !got.Skipped {
		t.Fatalf("duplicate assignment must be marked skipped")
	}
	if got.ID != 3 {
		t.Fatalf("expected existing row id 3, got %d", got.ID)
	}
	if st.inserted != 0 {
		t.Fatalf("duplicate must not insert")
	}
	if len(notifier.created) != 0 {
		t.Fatalf("duplicate must not notify")
	}
	if len(bcast.events) != 0 {
		t.Fatalf("duplicate must not broadcast")
	}
}

func TestCreateSelfAssignmentSkipsNotification(t *testing.T) {
	st := &fakeStore{}
	notifier := &fakeNotifier{}
	bcast := &fakeBroadcaster{}
	svc := NewService(st, fakeTxManager{}, notifier, bcast)

	if _, err := svc.Create(context.Background(), nil, Request{
		ProjectID: 10, TaskID: 4, UserID: 2, ActorID: 2,
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(notifier.created) != 0 {
		t.Fatalf("self-assignment must not notify")
	}
	if len(bcast.events) != 1 {
		t.Fatalf("self-assignment still broadcasts task_updated")
	}
}
