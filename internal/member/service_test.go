package member

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
	Store
	active          *store.ProjectMember
	member          *store.ProjectMember
	inserted        []store.ProjectMember
	statusUpdates   []string
	removedMember   bool
	clearedTasks    bool
	clearedChannels bool
}

func (f *fakeStore) ActiveMember(ctx context.Context, q store.DBTX, projectID, userID int64) (*store.ProjectMember, error) {
	return f.active, nil
}

func (f *fakeStore) GetMember(ctx context.Context, q store.DBTX, memberID int64) (*store.ProjectMember, error) {
	return f.member, nil
}

func (f *fakeStore) InsertMember(ctx context.Context, q store.DBTX, m store.ProjectMember) (int64, error) {
	f.inserted = append(f.inserted, m)
	return 5, nil
}

func (f *fakeStore) UpdateMemberStatus(ctx context.Context, q store.DBTX, memberID int64, status string) error {
	f.statusUpdates = append(f.statusUpdates, status)
	return nil
}

func (f *fakeStore) SoftDeleteMember(ctx context.Context, q store.DBTX, memberID int64) error {
	f.removedMember = true
	return nil
}

func (f *fakeStore) SoftDeleteProjectAssignments(ctx context.Context, q store.DBTX, projectID, userID int64) error {
	f.clearedTasks = true
	return nil
}

func (f *fakeStore) SoftDeleteChannelMemberships(ctx context.Context, q store.DBTX, projectID, userID int64) error {
	f.clearedChannels = true
	return nil
}

type fakeNotifier struct {
	created []notify.Descriptor
}

func (n *fakeNotifier) Create(ctx context.Context, uow *store.UnitOfWork, d notify.Descriptor) (store.Notification, error) {
	n.created = append(n.created, d)
	return store.Notification{}, nil
}

type fakeBroadcaster struct {
	projects []int64
}

func (b *fakeBroadcaster) SendToProject(ctx context.Context, projectID int64, event string, payload any) {
	b.projects = append(b.projects, projectID)
}

func TestInviteNotifiesInvitee(t *testing.T) {
	st := &fakeStore{}
	notifier := &fakeNotifier{}
	svc := NewService(st, fakeTxManager{}, notifier, &fakeBroadcaster{})

	m, skipped, err := svc.Invite(context.Background(), nil, store.ProjectMember{
		ProjectID: 10, UserID: 7, InvitedBy: 2,
	})
	if err != nil {
		t.Fatalf("invite: %v", err)
	}
	if skipped {
		t.Fatalf("fresh invite should not be skipped")
	}
	if m.ID != 5 || m.Role != "member" || m.Status != store.MemberInvited {
		t.Fatalf("unexpected member %+v", m)
	}
	if len(notifier.created) != 1 {
		t.Fatalf("expected one notification")
	}
	d := notifier.created[0]
	if d.Type != "project_invite" || d.RecipientID != 7 || d.ActorID != 2 {
		t.Fatalf("unexpected notification %+v", d)
	}
}

func TestInviteDuplicateIsSkipped(t *testing.T) {
	st := &fakeStore{active: &store.ProjectMember{ID: 9, ProjectID: 10, UserID: 7, Status: store.MemberAccepted}}
	notifier := &fakeNotifier{}
	svc := NewService(st, fakeTxManager{}, notifier, &fakeBroadcaster{})

	m, skipped, err := svc.Invite(context.Background(), nil, store.ProjectMember{ProjectID: 10, UserID: 7, InvitedBy: 2})
	if err != nil {
		t.Fatalf("invite: %v", err)
	}
	if !skipped {
		t.Fatalf("existing membership must be skipped")
	}
	if m.ID != 9 {
		t.Fatalf("expected existing member back, got %+v", m)
	}
	if len(st.inserted) != 0 || len(notifier.created) != 0 {
		t.Fatalf("duplicate invite must not insert or notify")
	}
}

func TestAcceptInviteNotifiesInviter(t *testing.T) {
	st := &fakeStore{member: &store.ProjectMember{
		ID: 5, ProjectID: 10, UserID: 7, InvitedBy: 2, Status: store.MemberInvited,
	}}
	notifier := &fakeNotifier{}
	bcast := &fakeBroadcaster{}
	svc := NewService(st, fakeTxManager{}, notifier, bcast)

	m, err := svc.AcceptInvite(context.Background(), 5, 7)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if m == nil || m.Status != store.MemberAccepted {
		t.Fatalf("expected accepted member, got %+v", m)
	}
	if len(st.statusUpdates) != 1 || st.statusUpdates[0] != store.MemberAccepted {
		t.Fatalf("status not updated: %v", st.statusUpdates)
	}
	if len(notifier.created) != 1 || notifier.created[0].Type != "project_accepted" || notifier.created[0].RecipientID != 2 {
		t.Fatalf("inviter not notified: %+v", notifier.created)
	}
	if len(bcast.projects) != 1 || bcast.projects[0] != 10 {
		t.Fatalf("project not told about new member: %v", bcast.projects)
	}
}

func TestAcceptInviteWrongUserIsRejected(t *testing.T) {
	st := &fakeStore{member: &store.ProjectMember{
		ID: 5, ProjectID: 10, UserID: 7, InvitedBy: 2, Status: store.MemberInvited,
	}}
	svc := NewService(st, fakeTxManager{}, &fakeNotifier{}, &fakeBroadcaster{})

	m, err := svc.AcceptInvite(context.Background(), 5, 99)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if m != nil {
		t.Fatalf("only the invitee may accept")
	}
	if len(st.statusUpdates) != 0 {
		t.Fatalf("status must not change")
	}
}

func TestDeclineInviteNotifiesInviter(t *testing.T) {
	st := &fakeStore{member: &store.ProjectMember{
		ID: 5, ProjectID: 10, UserID: 7, InvitedBy: 2, Status: store.MemberInvited,
	}}
	notifier := &fakeNotifier{}
	bcast := &fakeBroadcaster{}
	svc := NewService(st, fakeTxManager{}, notifier, bcast)

	m, err := svc.DeclineInvite(context.Background(), 5, 7)
	if err != nil {
		t.Fatalf("decline: %v", err)
	}
	if m == nil || m.Status != store.MemberDeclined {
		t.Fatalf("expected declined member, got %+v", m)
	}
	if len(notifier.created) != 1 || notifier.created[0].Type != "project_declined" {
		t.Fatalf("inviter not notified: %+v", notifier.created)
	}
	if len(bcast.projects) != 0 {
		t.Fatalf("decline must not broadcast to the project")
	}
}

func TestRemoveCascadesInOneTransaction(t *testing.T) {
	st := &fakeStore{member: &store.ProjectMember{
		ID: 5, ProjectID: 10, UserID: 7, Status: store.MemberAccepted,
	}}
	bcast := &fakeBroadcaster{}
	svc := NewService(st, fakeTxManager{}, &fakeNotifier{}, bcast)

	ok, err := svc.Remove(context.Background(), 5)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if !ok {
		t.Fatalf("expected removal to succeed")
	}
	if !st.removedMember || !st.clearedTasks || !st.clearedChannels {
		t.Fatalf("cascade incomplete: member=%v tasks=%v channels=%v",
			st.removedMember, st.clearedTasks, st.clearedChannels)
	}
	if len(bcast.projects) != 1 || bcast.projects[0] != 10 {
		t.Fatalf("project not notified after removal")
	}
}

func TestRemoveMissingMember(t *testing.T) {
	svc := NewService(&fakeStore{}, fakeTxManager{}, &fakeNotifier{}, &fakeBroadcaster{})
	ok, err := svc.Remove(context.Background(), 404)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if ok {
		t.Fatalf("missing member cannot be removed")
	}
}
