package project

import (
	"context"
	"database/sql"
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
	memberIDs []int64
	statuses  []store.StatusCount
	updated   bool
	deleted   bool
}

func (f *fakeStore) InsertProject(ctx context.Context, q store.DBTX, p store.Project) (int64, error) {
	return 10, nil
}

func (f *fakeStore) GetProject(ctx context.Context, projectID int64) (store.Project, error) {
	return store.Project{ID: projectID, Name: "Apollo"}, nil
}

func (f *fakeStore) UpdateProject(ctx context.Context, q store.DBTX, projectID int64, name, description, status string, startDate, endDate *sql.NullTime) error {
	f.updated = true
	return nil
}

func (f *fakeStore) SoftDeleteProject(ctx context.Context, q store.DBTX, projectID int64) error {
	f.deleted = true
	return nil
}

func (f *fakeStore) AcceptedMemberIDs(ctx context.Context, projectID int64) ([]int64, error) {
	return f.memberIDs, nil
}

func (f *fakeStore) TaskStatusCounts(ctx context.Context, projectID int64) ([]store.StatusCount, error) {
	return f.statuses, nil
}

func (f *fakeStore) TaskPriorityCounts(ctx context.Context, projectID int64) ([]store.PriorityCount, error) {
	return nil, nil
}

func (f *fakeStore) MemberWorkloads(ctx context.Context, projectID int64) ([]store.MemberWorkload, error) {
	return nil, nil
}

type fakeInviter struct {
	invited []store.ProjectMember
}

func (i *fakeInviter) Invite(ctx context.Context, uow *store.UnitOfWork, m store.ProjectMember) (store.ProjectMember, bool, error) {
	i.invited = append(i.invited, m)
	return m, false, nil
}

type fakeNotifier struct {
	created []notify.Descriptor
}

func (n *fakeNotifier) Create(ctx context.Context, uow *store.UnitOfWork, d notify.Descriptor) (store.Notification, error) {
	n.created = append(n.created, d)
	return store.Notification{}, nil
}

func TestCreateEnrollsOwnerAndInvitees(t *testing.T) {
	st := &fakeStore{}
	inviter := &fakeInviter{}
	svc := NewService(st, fakeTxManager{}, inviter, &fakeNotifier{})

	p, err := svc.Create(context.Background(), store.Project{Name: "Apollo", CreatedBy: 2}, []Invitee{
		{UserID: 7}, {UserID: 2}, {UserID: 8, Role: "viewer"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if p.ID != 10 {
		t.Fatalf("expected project id 10, got %d", p.ID)
	}
	// Owner first, then the two invitees; the creator in the invite
	// list is skipped.
	if len(inviter.invited) != 3 {
		t.Fatalf("expected 3 memberships, got %d", len(inviter.invited))
	}
	owner := inviter.invited[0]
	if owner.UserID != 2 || owner.Role != "owner" || owner.Status != store.MemberAccepted {
		t.Fatalf("unexpected owner membership %+v", owner)
	}
	if inviter.invited[1].Status != store.MemberInvited || inviter.invited[1].InvitedBy != 2 {
		t.Fatalf("unexpected invitee %+v", inviter.invited[1])
	}
	if inviter.invited[2].Role != "viewer" {
		t.Fatalf("invitee role lost: %+v", inviter.invited[2])
	}
}

func TestUpdateNotifiesOtherMembers(t *testing.T) {
	st := &fakeStore{memberIDs: []int64{2, 7, 8}}
	notifier := &fakeNotifier{}
	svc := NewService(st, fakeTxManager{}, &fakeInviter{}, notifier)

	_, err := svc.Update(context.Background(), 10, 2, "Apollo 2", "", "", nil, nil)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !st.updated {
		t.Fatalf("project not updated")
	}
	if len(notifier.created) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(notifier.created))
	}
	for _, d := range notifier.created {
		if d.RecipientID == 2 {
			t.Fatalf("actor must not be notified")
		}
		if d.Type != "project_updated" {
			t.Fatalf("unexpected type %q", d.Type)
		}
	}
}

func TestDeleteNotifiesWithExplicitMessage(t *testing.T) {
	st := &fakeStore{memberIDs: []int64{2, 7}}
	notifier := &fakeNotifier{}
	svc := NewService(st, fakeTxManager{}, &fakeInviter{}, notifier)

	if err := svc.Delete(context.Background(), 10, 2); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !st.deleted {
		t.Fatalf("project not deleted")
	}
	if len(notifier.created) != 1 || notifier.created[0].Message != "The project was deleted" {
		t.Fatalf("unexpected notifications %+v", notifier.created)
	}
}

func TestReportComputesCompletionRate(t *testing.T) {
	st := &fakeStore{
		memberIDs: []int64{1, 2},
		statuses: []store.StatusCount{
			{Status: "todo", Count: 2},
			{Status: "done", Count: 6},
		},
	}
	svc := NewService(st, fakeTxManager{}, &fakeInviter{}, &fakeNotifier{})

	report, err := svc.Report(context.Background(), 10)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if report.TotalTasks != 8 {
		t.Fatalf("total tasks %d", report.TotalTasks)
	}
	if report.CompletionRate != 75 {
		t.Fatalf("completion rate %d", report.CompletionRate)
	}
	if report.MemberCount != 2 {
		t.Fatalf("member count %d", report.MemberCount)
	}
}
