package member

import (
	"context"
	"fmt"
	"log"
	"strings"

	"teamflow/api/internal/notify"
	"teamflow/api/internal/store"
)

type Store interface {
	ActiveMember(ctx context.Context, q store.DBTX, projectID, userID int64) (*store.ProjectMember, error)
	GetMember(ctx context.Context, q store.DBTX, memberID int64) (*store.ProjectMember, error)
	InsertMember(ctx context.Context, q store.DBTX, m store.ProjectMember) (int64, error)
	UpdateMemberStatus(ctx context.Context, q store.DBTX, memberID int64, status string) error
	SoftDeleteMember(ctx context.Context, q store.DBTX, memberID int64) error
	SoftDeleteProjectAssignments(ctx context.Context, q store.DBTX, projectID, userID int64) error
	SoftDeleteChannelMemberships(ctx context.Context, q store.DBTX, projectID, userID int64) error
	ListProjectMembers(ctx context.Context, projectID int64) ([]store.ProjectMember, error)
	ListInvites(ctx context.Context, userID int64) ([]store.MemberInvite, error)
}

type Notifier interface {
	Create(ctx context.Context, uow *store.UnitOfWork, d notify.Descriptor) (store.Notification, error)
}

type Broadcaster interface {
	SendToProject(ctx context.Context, projectID int64, event string, payload any)
}

// InviteMailer delivers the invitation email.
type InviteMailer interface {
	SendProjectInvite(to, userName, inviterName, projectName, inviteURL string) error
}

// Directory resolves the names and addresses an invite email needs.
type Directory interface {
	GetUser(ctx context.Context, userID int64) (store.User, error)
	GetProject(ctx context.Context, projectID int64) (store.Project, error)
}

// Service manages the project membership lifecycle: invite, accept or
// decline, and removal with its cascade.
type Service struct {
	st       Store
	txm      store.TxManager
	notifier Notifier
	bcast    Broadcaster

	mailer  InviteMailer
	dir     Directory
	baseURL string
}

func NewService(st Store, txm store.TxManager, notifier Notifier, bcast Broadcaster) *Service {
	return &Service{st: st, txm: txm, notifier: notifier, bcast: bcast}
}

// EnableInviteMail turns on email delivery for new invites. Without it
// invites still work, the recipient just only sees the in-app
// notification.
func (s *Service) EnableInviteMail(mailer InviteMailer, dir Directory, baseURL string) {
	s.mailer = mailer
	s.dir = dir
	s.baseURL = strings.TrimRight(baseURL, "/")
}

type projectPayload struct {
	ProjectID int64 `json:"project_id"`
}

// Invite adds a user to a project in invited state. A user who already
// holds a non-declined membership is returned as-is with Skipped set;
// a declined invite does not block re-inviting.
func (s *Service) Invite(ctx context.Context, uow *store.UnitOfWork, m store.ProjectMember) (store.ProjectMember, bool, error) {
	uow, owned, err := store.Enlist(ctx, s.txm, uow)
	if err != nil {
		return store.ProjectMember{}, false, err
	}
	if owned {
		defer uow.Rollback()
	}

	if m.Role == "" {
		m.Role = "member"
	}
	if m.Status == "" {
		m.Status = store.MemberInvited
	}

	existing, err := s.st.ActiveMember(ctx, uow.DB(), m.ProjectID, m.UserID)
	if err != nil {
		return store.ProjectMember{}, false, err
	}
	if existing != nil {
		if owned {
			if err := uow.Commit(); err != nil {
				return store.ProjectMember{}, false, err
			}
		}
		return *existing, true, nil
	}

	id, err := s.st.InsertMember(ctx, uow.DB(), m)
	if err != nil {
		return store.ProjectMember{}, false, err
	}
	m.ID = id

	if m.InvitedBy != 0 && m.Status == store.MemberInvited {
		_, err = s.notifier.Create(ctx, uow, notify.Descriptor{
			RecipientID:   m.UserID,
			ActorID:       m.InvitedBy,
			Type:          notify.TypeProjectInvite,
			ReferenceType: notify.RefProject,
			ReferenceID:   m.ProjectID,
		})
		if err != nil {
			return store.ProjectMember{}, false, err
		}
	}

	if s.mailer != nil && m.Status == store.MemberInvited {
		invite := m
		uow.AfterCommit(func() {
			go s.sendInviteMail(invite)
		})
	}

	if owned {
		if err := uow.Commit(); err != nil {
			return store.ProjectMember{}, false, err
		}
	}
	return m, false, nil
}

func (s *Service) sendInviteMail(m store.ProjectMember) {
	ctx := context.Background()
	user, err := s.dir.GetUser(ctx, m.UserID)
	if err != nil {
		log.Printf("invite mail: lookup user %d: %v", m.UserID, err)
		return
	}
	inviterName := ""
	if m.InvitedBy != 0 {
		if inviter, err := s.dir.GetUser(ctx, m.InvitedBy); err == nil {
			inviterName = inviter.Name
		}
	}
	p, err := s.dir.GetProject(ctx, m.ProjectID)
	if err != nil {
		log.Printf("invite mail: lookup project %d: %v", m.ProjectID, err)
		return
	}
	url := fmt.Sprintf("%s/invites/%d", s.baseURL, m.ID)
	if err := s.mailer.SendProjectInvite(user.Email, user.Name, inviterName, p.Name, url); err != nil {
		log.Printf("invite mail: send to %s: %v", user.Email, err)
	}
}

// AcceptInvite marks the membership accepted and tells the inviter.
// Only the invited user may accept, and only while still invited.
func (s *Service) AcceptInvite(ctx context.Context, memberID, userID int64) (*store.ProjectMember, error) {
	return s.resolveInvite(ctx, memberID, userID, store.MemberAccepted, notify.TypeProjectAccepted)
}

// DeclineInvite marks the membership declined and tells the inviter.
func (s *Service) DeclineInvite(ctx context.Context, memberID, userID int64) (*store.ProjectMember, error) {
	return s.resolveInvite(ctx, memberID, userID, store.MemberDeclined, notify.TypeProjectDeclined)
}

func (s *Service) resolveInvite(ctx context.Context, memberID, userID int64, status string, notifType notify.Type) (*store.ProjectMember, error) {
	uow, err := s.txm.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer uow.Rollback()

	m, err := s.st.GetMember(ctx, uow.DB(), memberID)
	if err != nil {
		return nil, err
	}
	if m == nil || m.UserID != userID || m.Status != store.MemberInvited {
		return nil, nil
	}

	if err := s.st.UpdateMemberStatus(ctx, uow.DB(), memberID, status); err != nil {
		return nil, err
	}

	if m.InvitedBy != 0 && m.InvitedBy != userID {
		_, err = s.notifier.Create(ctx, uow, notify.Descriptor{
			RecipientID:   m.InvitedBy,
			ActorID:       userID,
			Type:          notifType,
			ReferenceType: notify.RefProject,
			ReferenceID:   m.ProjectID,
		})
		if err != nil {
			return nil, err
		}
	}

	if status == store.MemberAccepted {
		projectID := m.ProjectID
		uow.AfterCommit(func() {
			s.bcast.SendToProject(context.Background(), projectID, "task_updated", projectPayload{ProjectID: projectID})
		})
	}

	if err := uow.Commit(); err != nil {
		return nil, err
	}
	m.Status = status
	return m, nil
}

// Remove takes a member out of the project and, in the same
// transaction, clears their task assignments and channel memberships
// there. The project hears task_updated once it all commits.
func (s *Service) Remove(ctx context.Context, memberID int64) (bool, error) {
	uow, err := s.txm.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer uow.Rollback()

	m, err := s.st.GetMember(ctx, uow.DB(), memberID)
	if err != nil {
		return false, err
	}
	if m == nil {
		return false, nil
	}

	if err := s.st.SoftDeleteMember(ctx, uow.DB(), memberID); err != nil {
		return false, err
	}
	if err := s.st.SoftDeleteProjectAssignments(ctx, uow.DB(), m.ProjectID, m.UserID); err != nil {
		return false, err
	}
	if err := s.st.SoftDeleteChannelMemberships(ctx, uow.DB(), m.ProjectID, m.UserID); err != nil {
		return false, err
	}

	projectID := m.ProjectID
	uow.AfterCommit(func() {
		s.bcast.SendToProject(context.Background(), projectID, "task_updated", projectPayload{ProjectID: projectID})
	})

	if err := uow.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) ListMembers(ctx context.Context, projectID int64) ([]store.ProjectMember, error) {
	return s.st.ListProjectMembers(ctx, projectID)
}

func (s *Service) ListInvites(ctx context.Context, userID int64) ([]store.MemberInvite, error) {
	return s.st.ListInvites(ctx, userID)
}
