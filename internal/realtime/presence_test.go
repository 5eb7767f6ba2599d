package realtime

import (
	"context"
	"testing"
)

type fakeConn struct {
	events []string
	closed bool
}

func (c *fakeConn) Send(event string, payload any) error {
	c.events = append(c.events, event)
	return nil
}

func (c *fakeConn) Close() { c.closed = true }

func TestRegisterReplacesPreviousConnection(t *testing.T) {
	reg := NewRegistry()
	first := &fakeConn{}
	second := &fakeConn{}

	reg.Register(7, first)
	reg.Register(7, second)

	if !first.closed {
		t.Fatalf("expected replaced connection to be closed")
	}
	if second.closed {
		t.Fatalf("new connection must stay open")
	}

	reg.SendToUser(7, "notification", map[string]any{"id": 1})
	if len(first.events) != 0 {
		t.Fatalf("replaced connection received %d events", len(first.events))
	}
	if len(second.events) != 1 || second.events[0] != "notification" {
		t.Fatalf("expected one notification event, got %v", second.events)
	}
}

func TestUnregisterOnlyRemovesCurrentConnection(t *testing.T) {
	reg := NewRegistry()
	stale := &fakeConn{}
	current := &fakeConn{}

	reg.Register(3, stale)
	reg.Register(3, current)

	// The stale connection disconnects after being replaced; the
	// current one must survive.
	reg.Unregister(3, stale)
	if !reg.Online(3) {
		t.Fatalf("user should still be online via current connection")
	}

	reg.Unregister(3, current)
	if reg.Online(3) {
		t.Fatalf("user should be offline after current connection leaves")
	}
}

func TestSendToUserOfflineIsNoop(t *testing.T) {
	reg := NewRegistry()
	reg.SendToUser(42, "notification", nil)
	if reg.OnlineCount() != 0 {
		t.Fatalf("registry should be empty")
	}
}

type fakeMembers struct {
	ids   []int64
	calls int
}

func (m *fakeMembers) AcceptedMemberIDs(ctx context.Context, projectID int64) ([]int64, error) {
	m.calls++
	return m.ids, nil
}

func TestSendToProjectQueriesMembershipEachTime(t *testing.T) {
	reg := NewRegistry()
	alice := &fakeConn{}
	bob := &fakeConn{}
	reg.Register(1, alice)
	reg.Register(2, bob)

	members := &fakeMembers{ids: []int64{1, 2}}
	res := NewResolver(members, reg)

	res.SendToProject(context.Background(), 10, "task_updated", nil)
	if len(alice.events) != 1 || len(bob.events) != 1 {
		t.Fatalf("expected both members to receive the event")
	}

	// Bob is removed from the project; the next send must not reach him.
	members.ids = []int64{1}
	res.SendToProject(context.Background(), 10, "task_updated", nil)
	if len(alice.events) != 2 {
		t.Fatalf("expected alice to receive second event")
	}
	if len(bob.events) != 1 {
		t.Fatalf("removed member received project event")
	}
	if members.calls != 2 {
		t.Fatalf("membership should be resolved per send, got %d calls", members.calls)
	}
}
