package github

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"testing"

	"teamflow/api/internal/store"
)

type fakeStore struct {
	projectIDs []int64
	tasks      map[int64]map[int64]bool // projectID -> taskID
}

func (f *fakeStore) ProjectIDsByRepoFullName(ctx context.Context, fullName string) ([]int64, error) {
	return f.projectIDs, nil
}

func (f *fakeStore) TaskIDInProject(ctx context.Context, taskID, projectID int64) (int64, error) {
	if f.tasks[projectID][taskID] {
		return taskID, nil
	}
	return 0, nil
}

type fakeActivity struct {
	entries []struct {
		projectID int64
		taskID    int64
		detail    string
	}
}

func (a *fakeActivity) Append(ctx context.Context, uow *store.UnitOfWork, projectID, taskID, actorID int64, detail string) (store.ActivityEntry, error) {
	a.entries = append(a.entries, struct {
		projectID int64
		taskID    int64
		detail    string
	}{projectID, taskID, detail})
	return store.ActivityEntry{}, nil
}

type fakeBroadcaster struct {
	events []string
}

func (b *fakeBroadcaster) SendToProject(ctx context.Context, projectID int64, event string, payload any) {
	b.events = append(b.events, event)
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	svc := NewWebhookService("s3cret", "main", &fakeStore{}, &fakeActivity{}, &fakeBroadcaster{})
	body := []byte(`{"zen":"keep it simple"}`)

	if err := svc.VerifySignature(sign("s3cret", body), body); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}
	if err := svc.VerifySignature(sign("wrong", body), body); err == nil {
		t.Fatalf("forged signature accepted")
	}
	if err := svc.VerifySignature("", body); err == nil {
		t.Fatalf("missing signature accepted")
	}
}

func pushBody(t *testing.T, ref, compare, headMsg string, commits []commit) []byte {
	t.Helper()
	p := pushPayload{Ref: ref, Compare: compare, Commits: commits}
	p.Repository.FullName = "acme/api"
	p.Pusher.Name = "alice"
	if headMsg != "" {
		p.HeadCommit = &commit{Message: headMsg}
	} else if len(commits) > 0 {
		p.HeadCommit = &commits[len(commits)-1]
	}
	body, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return body
}

func newPushService(st *fakeStore) (*WebhookService, *fakeActivity, *fakeBroadcaster) {
	activity := &fakeActivity{}
	bcast := &fakeBroadcaster{}
	return NewWebhookService("s3cret", "main", st, activity, bcast), activity, bcast
}

func TestPushOnMainAnnotatesReferencedTasks(t *testing.T) {
	st := &fakeStore{projectIDs: []int64{10}, tasks: map[int64]map[int64]bool{10: {42: true}}}
	svc, activity, bcast := newPushService(st)

	body := pushBody(t, "refs/heads/main", "", "", []commit{
		{Message: "fix login redirect #42"},
	})
	res, err := svc.ProcessEvent(context.Background(), "push", body)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(res.ProjectIDs) != 1 {
		t.Fatalf("expected one project, got %v", res.ProjectIDs)
	}
	if len(activity.entries) != 1 || activity.entries[0].taskID != 42 {
		t.Fatalf("task not annotated: %+v", activity.entries)
	}
	if activity.entries[0].detail != "New commit: fix login redirect #42" {
		t.Fatalf("unexpected detail %q", activity.entries[0].detail)
	}
	// git_push always, git_commit per commit on main.
	if len(bcast.events) != 2 || bcast.events[0] != "git_push" || bcast.events[1] != "git_commit" {
		t.Fatalf("unexpected events %v", bcast.events)
	}
}

func TestPushOnFeatureBranchOnlyBroadcasts(t *testing.T) {
	st := &fakeStore{projectIDs: []int64{10}, tasks: map[int64]map[int64]bool{10: {42: true}}}
	svc, activity, bcast := newPushService(st)

	body := pushBody(t, "refs/heads/feature", "", "", []commit{{Message: "wip #42"}})
	if _, err := svc.ProcessEvent(context.Background(), "push", body); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(activity.entries) != 0 {
		t.Fatalf("feature branch must not annotate tasks")
	}
	if len(bcast.events) != 1 || bcast.events[0] != "git_push" {
		t.Fatalf("unexpected events %v", bcast.events)
	}
}

func TestPushMergeFromPullRequestIsSuppressed(t *testing.T) {
	st := &fakeStore{projectIDs: []int64{10}, tasks: map[int64]map[int64]bool{10: {42: true}}}

	cases := []struct {
		name string
		body []byte
	}{
		{"compare url", pushBody(t, "refs/heads/main", "https://github.com/acme/api/pull/7", "", []commit{{Message: "#42"}})},
		{"merge commit message", pushBody(t, "refs/heads/main", "", "Merge pull request #7 from acme/feature", []commit{{Message: "#42"}})},
		{"multiple commits", pushBody(t, "refs/heads/main", "", "", []commit{{Message: "#42"}, {Message: "more"}})},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, activity, _ := newPushService(st)
			if _, err := svc.ProcessEvent(context.Background(), "push", tc.body); err != nil {
				t.Fatalf("process: %v", err)
			}
			if len(activity.entries) != 0 {
				t.Fatalf("merge push must not annotate tasks: %+v", activity.entries)
			}
		})
	}
}

func TestPushCrossProjectTaskRefIgnored(t *testing.T) {
	// Task 42 exists only in project 20; project 10 tracks the same
	// repository but must not record the reference.
	st := &fakeStore{
		projectIDs: []int64{10, 20},
		tasks:      map[int64]map[int64]bool{20: {42: true}},
	}
	svc, activity, _ := newPushService(st)

	body := pushBody(t, "refs/heads/main", "", "", []commit{{Message: "done #42"}})
	if _, err := svc.ProcessEvent(context.Background(), "push", body); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(activity.entries) != 1 || activity.entries[0].projectID != 20 {
		t.Fatalf("expected annotation only in project 20: %+v", activity.entries)
	}
}

func TestPullRequestMergedToMain(t *testing.T) {
	st := &fakeStore{projectIDs: []int64{10}, tasks: map[int64]map[int64]bool{10: {7: true}}}
	svc, activity, bcast := newPushService(st)

	var p pullRequestPayload
	p.Action = "closed"
	p.Repository.FullName = "acme/api"
	p.PullRequest.Title = "Ship feature #7"
	p.PullRequest.Merged = true
	p.PullRequest.Base.Ref = "main"
	body, _ := json.Marshal(p)

	if _, err := svc.ProcessEvent(context.Background(), "pull_request", body); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(activity.entries) != 1 || activity.entries[0].detail != "Pull request merged: Ship feature #7" {
		t.Fatalf("unexpected entries %+v", activity.entries)
	}
	if len(bcast.events) != 1 || bcast.events[0] != "git_event" {
		t.Fatalf("unexpected events %v", bcast.events)
	}
}

func TestPullRequestClosedWithoutMergeIgnored(t *testing.T) {
	st := &fakeStore{projectIDs: []int64{10}}
	svc, activity, bcast := newPushService(st)

	var p pullRequestPayload
	p.Action = "closed"
	p.Repository.FullName = "acme/api"
	p.PullRequest.Merged = false
	body, _ := json.Marshal(p)

	if _, err := svc.ProcessEvent(context.Background(), "pull_request", body); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(activity.entries) != 0 || len(bcast.events) != 0 {
		t.Fatalf("closed-unmerged PR must be ignored")
	}
}

func TestIssuesEventBroadcasts(t *testing.T) {
	st := &fakeStore{projectIDs: []int64{10}}
	svc, _, bcast := newPushService(st)

	var p issuesPayload
	p.Action = "opened"
	p.Repository.FullName = "acme/api"
	p.Issue.Title = "Crash on start"
	body, _ := json.Marshal(p)

	if _, err := svc.ProcessEvent(context.Background(), "issues", body); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(bcast.events) != 1 || bcast.events[0] != "git_event" {
		t.Fatalf("unexpected events %v", bcast.events)
	}
}

func TestUnlinkedRepositoryIsAcknowledged(t *testing.T) {
	svc, activity, bcast := newPushService(&fakeStore{})

	body := pushBody(t, "refs/heads/main", "", "", []commit{{Message: "#1"}})
	res, err := svc.ProcessEvent(context.Background(), "push", body)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(res.ProjectIDs) != 0 {
		t.Fatalf("expected no projects")
	}
	if len(activity.entries) != 0 || len(bcast.events) != 0 {
		t.Fatalf("unlinked repo must be a no-op")
	}
}
