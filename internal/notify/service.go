package notify

import (
	"context"
	"fmt"
	"time"

	"teamflow/api/internal/store"
)

// Descriptor is a request to notify one user about one thing. Message
// is optional; when empty the service renders the default template for
// the type/reference pair.
type Descriptor struct {
	RecipientID   int64
	ActorID       int64
	Type          Type
	ReferenceType ReferenceType
	ReferenceID   int64
	Message       string
}

type Store interface {
	UserName(ctx context.Context, userID int64) (string, error)
	InsertNotification(ctx context.Context, q store.DBTX, n store.Notification) (store.Notification, error)
	GetNotification(ctx context.Context, notificationID int64) (*store.Notification, error)
	ListNotifications(ctx context.Context, filter store.NotificationFilter) ([]store.Notification, error)
	MarkNotificationRead(ctx context.Context, notificationID int64) error
	MarkAllNotificationsRead(ctx context.Context, recipientID int64) (int64, error)
	MarkNewNotificationsUnread(ctx context.Context, recipientID int64) (int64, error)
	SoftDeleteNotification(ctx context.Context, notificationID int64) (bool, error)
	RestoreNotification(ctx context.Context, notificationID int64) (bool, error)
	SoftDeleteAllNotifications(ctx context.Context, recipientID int64) error
	NewNotificationCount(ctx context.Context, recipientID int64) (int, error)
}

// Pusher delivers a named event to one user's live connection.
type Pusher interface {
	SendToUser(userID int64, event string, payload any)
}

type Service struct {
	store  Store
	txm    store.TxManager
	pusher Pusher
}

func NewService(st Store, txm store.TxManager, pusher Pusher) *Service {
	return &Service{store: st, txm: txm, pusher: pusher}
}

// pushPayload is what the client sees on the "notification" event.
type pushPayload struct {
	ID            int64     `json:"id"`
	Type          string    `json:"type"`
	Title         string    `json:"title"`
	Message       string    `json:"message"`
	ReferenceType string    `json:"reference_type"`
	ReferenceID   int64     `json:"reference_id"`
	CreatedAt     time.Time `json:"created_at"`
}

// Create persists the notification inside the caller's unit of work and
// schedules the live push for after commit. If uow is nil the service
// opens and commits its own.
func (s *Service) Create(ctx context.Context, uow *store.UnitOfWork, d Descriptor) (store.Notification, error) {
	uow, owned, err := store.Enlist(ctx, s.txm, uow)
	if err != nil {
		return store.Notification{}, err
	}
	if owned {
		defer uow.Rollback()
	}

	message := d.Message
	if message == "" {
		actorName, err := s.store.UserName(ctx, d.ActorID)
		if err != nil {
			return store.Notification{}, fmt.Errorf("resolve actor: %w", err)
		}
		message = messageFor(actorName, d.Type, d.ReferenceType)
	}

	n, err := s.store.InsertNotification(ctx, uow.DB(), store.Notification{
		RecipientID:   d.RecipientID,
		ActorID:       d.ActorID,
		Type:          string(d.Type),
		ReferenceType: string(d.ReferenceType),
		ReferenceID:   d.ReferenceID,
		Message:       message,
		Status:        store.NotificationNew,
	})
	if err != nil {
		return store.Notification{}, err
	}

	// Delivery waits for the transaction: a rolled-back notification
	// must never reach a client.
	recipient := n
	uow.AfterCommit(func() {
		s.push(recipient)
	})

	if owned {
		if err := uow.Commit(); err != nil {
			return store.Notification{}, fmt.Errorf("commit notification: %w", err)
		}
	}
	return n, nil
}

func (s *Service) push(n store.Notification) {
	s.pusher.SendToUser(n.RecipientID, "notification", pushPayload{
		ID:            n.ID,
		Type:          n.Type,
		Title:         "New notification",
		Message:       n.Message,
		ReferenceType: n.ReferenceType,
		ReferenceID:   n.ReferenceID,
		CreatedAt:     n.CreatedAt,
	})
}

func (s *Service) Get(ctx context.Context, notificationID int64) (*store.Notification, error) {
	return s.store.GetNotification(ctx, notificationID)
}

func (s *Service) List(ctx context.Context, filter store.NotificationFilter) ([]store.Notification, error) {
	return s.store.ListNotifications(ctx, filter)
}

func (s *Service) MarkRead(ctx context.Context, notificationID int64) (*store.Notification, error) {
	if err := s.store.MarkNotificationRead(ctx, notificationID); err != nil {
		return nil, err
	}
	return s.store.GetNotification(ctx, notificationID)
}

func (s *Service) MarkAllRead(ctx context.Context, recipientID int64) (int64, error) {
	return s.store.MarkAllNotificationsRead(ctx, recipientID)
}

// MarkNewUnread demotes "new" rows to "unread" after the client has
// consumed the badge count.
func (s *Service) MarkNewUnread(ctx context.Context, recipientID int64) (int64, error) {
	return s.store.MarkNewNotificationsUnread(ctx, recipientID)
}

func (s *Service) Delete(ctx context.Context, notificationID int64) (bool, error) {
	return s.store.SoftDeleteNotification(ctx, notificationID)
}

func (s *Service) Restore(ctx context.Context, notificationID int64) (bool, error) {
	return s.store.RestoreNotification(ctx, notificationID)
}

func (s *Service) DeleteAll(ctx context.Context, recipientID int64) error {
	return s.store.SoftDeleteAllNotifications(ctx, recipientID)
}

func (s *Service) NewCount(ctx context.Context, recipientID int64) (int, error) {
	return s.store.NewNotificationCount(ctx, recipientID)
}
