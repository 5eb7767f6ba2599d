package realtime

import (
	"context"
	"log"
)

// MemberSource resolves the accepted members of a project.
type MemberSource interface {
	AcceptedMemberIDs(ctx context.Context, projectID int64) ([]int64, error)
}

// Resolver routes events to the users behind a project or an explicit
// recipient list. Project membership is re-queried on every send, so a
// user removed a moment ago no longer receives project traffic.
type Resolver struct {
	members MemberSource
	reg     *Registry
}

func NewResolver(members MemberSource, reg *Registry) *Resolver {
	return &Resolver{members: members, reg: reg}
}

func (r *Resolver) SendToUser(userID int64, event string, payload any) {
	r.reg.SendToUser(userID, event, payload)
}

func (r *Resolver) SendToUsers(userIDs []int64, event string, payload any) {
	for _, id := range userIDs {
		r.reg.SendToUser(id, event, payload)
	}
}

func (r *Resolver) SendToProject(ctx context.Context, projectID int64, event string, payload any) {
	ids, err := r.members.AcceptedMemberIDs(ctx, projectID)
	if err != nil {
		log.Printf("realtime: resolve project %d members: %v", projectID, err)
		return
	}
	r.SendToUsers(ids, event, payload)
}
