package github

import (
	"context"
	"errors"

	"teamflow/api/internal/store"
)

var ErrAlreadyLinked = errors.New("project already has an installation linked")

type LinkStore interface {
	UpsertInstallation(ctx context.Context, q store.DBTX, installationID int64, accountLogin string) error
	LinkInstallation(ctx context.Context, q store.DBTX, projectID, installationID int64) error
	UnlinkInstallation(ctx context.Context, q store.DBTX, projectID int64) error
	InstallationByProject(ctx context.Context, projectID int64) (*store.Installation, error)
	ReplaceProjectRepositories(ctx context.Context, q store.DBTX, projectID int64, repos []store.Repository) error
	ListProjectRepositories(ctx context.Context, projectID int64) ([]store.Repository, error)
}

// LinkService binds GitHub app installations to projects. A project
// holds at most one installation; the link must be removed before a
// new one can take its place.
type LinkService struct {
	st  LinkStore
	txm store.TxManager
}

func NewLinkService(st LinkStore, txm store.TxManager) *LinkService {
	return &LinkService{st: st, txm: txm}
}

func (s *LinkService) SaveInstallation(ctx context.Context, installationID int64, accountLogin string) error {
	return s.st.UpsertInstallation(ctx, nil, installationID, accountLogin)
}

func (s *LinkService) Link(ctx context.Context, projectID, installationID int64, accountLogin string) error {
	existing, err := s.st.InstallationByProject(ctx, projectID)
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrAlreadyLinked
	}

	uow, err := s.txm.Begin(ctx)
	if err != nil {
		return err
	}
	defer uow.Rollback()

	if err := s.st.UpsertInstallation(ctx, uow.DB(), installationID, accountLogin); err != nil {
		return err
	}
	if err := s.st.LinkInstallation(ctx, uow.DB(), projectID, installationID); err != nil {
		return err
	}
	return uow.Commit()
}

// Unlink removes the installation and the repositories tracked through
// it in one transaction.
func (s *LinkService) Unlink(ctx context.Context, projectID int64) error {
	uow, err := s.txm.Begin(ctx)
	if err != nil {
		return err
	}
	defer uow.Rollback()

	if err := s.st.UnlinkInstallation(ctx, uow.DB(), projectID); err != nil {
		return err
	}
	return uow.Commit()
}

func (s *LinkService) Installation(ctx context.Context, projectID int64) (*store.Installation, error) {
	return s.st.InstallationByProject(ctx, projectID)
}

// SaveRepositories replaces the tracked repository set for a project.
func (s *LinkService) SaveRepositories(ctx context.Context, projectID int64, repos []store.Repository) error {
	uow, err := s.txm.Begin(ctx)
	if err != nil {
		return err
	}
	defer uow.Rollback()

	if err := s.st.ReplaceProjectRepositories(ctx, uow.DB(), projectID, repos); err != nil {
		return err
	}
	return uow.Commit()
}

func (s *LinkService) Repositories(ctx context.Context, projectID int64) ([]store.Repository, error) {
	return s.st.ListProjectRepositories(ctx, projectID)
}
