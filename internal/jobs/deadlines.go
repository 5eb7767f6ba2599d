// Package jobs runs periodic background work.
package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"teamflow/api/internal/notify"
	"teamflow/api/internal/store"
)

// DeadlineStore reads the projects a sweep inspects and who owns them.
type DeadlineStore interface {
	ListActiveProjects(ctx context.Context) ([]store.Project, error)
	ProjectOwnerIDs(ctx context.Context, projectID int64) ([]int64, error)
}

// Notifier creates notifications inside a unit of work.
type Notifier interface {
	Create(ctx context.Context, uow *store.UnitOfWork, d notify.Descriptor) (store.Notification, error)
}

// DeadlineSweeper warns project owners as end dates approach: three
// days out, one day out, on the day, and once overdue.
type DeadlineSweeper struct {
	st       DeadlineStore
	txm      store.TxManager
	notifier Notifier
	interval time.Duration
	done     chan struct{}
}

func NewDeadlineSweeper(st DeadlineStore, txm store.TxManager, notifier Notifier, interval time.Duration) *DeadlineSweeper {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &DeadlineSweeper{
		st:       st,
		txm:      txm,
		notifier: notifier,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start runs the sweep on a ticker until Stop is called or ctx ends.
func (s *DeadlineSweeper) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.done:
				return
			case <-ticker.C:
				if err := s.Sweep(ctx); err != nil {
					log.Printf("jobs: deadline sweep: %v", err)
				}
			}
		}
	}()
}

// Stop halts the ticker loop.
func (s *DeadlineSweeper) Stop() {
	close(s.done)
}

// Sweep inspects in-progress projects and notifies the owners of each
// one whose end date sits on a warning threshold. A failed project
// logs and does not stop the rest of the sweep.
func (s *DeadlineSweeper) Sweep(ctx context.Context) error {
	projects, err := s.st.ListActiveProjects(ctx)
	if err != nil {
		return fmt.Errorf("load active projects: %w", err)
	}

	now := time.Now()
	for _, p := range projects {
		if p.EndDate == nil {
			continue
		}
		message := deadlineMessage(p.Name, daysUntil(now, *p.EndDate))
		if message == "" {
			continue
		}
		if err := s.notifyOwners(ctx, p, message); err != nil {
			log.Printf("jobs: notify project %d: %v", p.ID, err)
		}
	}
	return nil
}

func (s *DeadlineSweeper) notifyOwners(ctx context.Context, p store.Project, message string) error {
	owners, err := s.st.ProjectOwnerIDs(ctx, p.ID)
	if err != nil {
		return err
	}
	if len(owners) == 0 {
		return nil
	}

	uow, err := s.txm.Begin(ctx)
	if err != nil {
		return err
	}
	defer uow.Rollback()

	for _, userID := range owners {
		_, err := s.notifier.Create(ctx, uow, notify.Descriptor{
			RecipientID:   userID,
			ActorID:       p.CreatedBy,
			Type:          notify.TypeDeadlineWarning,
			ReferenceType: notify.RefProject,
			ReferenceID:   p.ID,
			Message:       message,
		})
		if err != nil {
			return err
		}
	}
	return uow.Commit()
}

// daysUntil counts whole calendar days from now to the end date,
// negative once the date has passed.
func daysUntil(now, end time.Time) int {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	endDay := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, now.Location())
	return int(endDay.Sub(today).Hours() / 24)
}

func deadlineMessage(name string, daysLeft int) string {
	switch {
	case daysLeft == 3:
		return fmt.Sprintf("Project %q is due in 3 days.", name)
	case daysLeft == 1:
		return fmt.Sprintf("Project %q is due tomorrow.", name)
	case daysLeft == 0:
		return fmt.Sprintf("Project %q reaches its deadline today.", name)
	case daysLeft < 0:
		return fmt.Sprintf("Project %q is %d days overdue.", name, -daysLeft)
	default:
		return ""
	}
}
