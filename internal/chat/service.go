package chat

import (
	"context"
	"fmt"

	"teamflow/api/internal/files"
	"teamflow/api/internal/notify"
	"teamflow/api/internal/store"
)

type Store interface {
	InsertChannel(ctx context.Context, q store.DBTX, channel store.ChatChannel) (int64, error)
	GetChannel(ctx context.Context, channelID int64) (*store.ChatChannel, error)
	ChannelsByUser(ctx context.Context, userID, projectID int64) ([]store.ChatChannel, error)
	UpdateChannel(ctx context.Context, channelID int64, name, description string) error
	SoftDeleteChannel(ctx context.Context, channelID int64) error
	UpsertChannelMember(ctx context.Context, q store.DBTX, channelID, userID int64) error
	SoftDeleteChannelMember(ctx context.Context, channelID, userID int64) error
	ChannelMembers(ctx context.Context, channelID int64) ([]store.ChannelMember, error)
	ChannelMemberIDs(ctx context.Context, q store.DBTX, channelID int64) ([]int64, error)
	InsertMessage(ctx context.Context, q store.DBTX, channelID, senderID int64, content string, haveFile bool) (int64, error)
	GetMessage(ctx context.Context, q store.DBTX, messageID int64) (*store.ChatMessage, error)
	ListMessages(ctx context.Context, channelID int64, limit, offset int) ([]store.ChatMessage, error)
	InsertMention(ctx context.Context, q store.DBTX, messageID, userID int64) error
	MentionsByMessage(ctx context.Context, messageID int64) ([]store.MentionedUser, error)
	InsertMessageFile(ctx context.Context, q store.DBTX, messageID int64, fileID string) error
	FilesByMessage(ctx context.Context, messageID int64) ([]store.Attachment, error)
	ChannelProjectID(ctx context.Context, q store.DBTX, channelID int64) (int64, error)
}

type Notifier interface {
	Create(ctx context.Context, uow *store.UnitOfWork, d notify.Descriptor) (store.Notification, error)
}

// Broadcaster delivers a named event to an explicit recipient list.
type Broadcaster interface {
	SendToUsers(userIDs []int64, event string, payload any)
}

// FileCreator persists one attachment and returns its stored form.
type FileCreator interface {
	Create(ctx context.Context, uow *store.UnitOfWork, createdBy, projectID int64, up files.Upload) (store.Attachment, error)
}

// Service owns channels, their membership, and messages with mentions
// and attachments.
type Service struct {
	st       Store
	txm      store.TxManager
	notifier Notifier
	bcast    Broadcaster
	files    FileCreator
}

func NewService(st Store, txm store.TxManager, notifier Notifier, bcast Broadcaster, fc FileCreator) *Service {
	return &Service{st: st, txm: txm, notifier: notifier, bcast: bcast, files: fc}
}

// CreateChannel opens a channel and enrolls the creator plus the given
// members in one transaction.
func (s *Service) CreateChannel(ctx context.Context, channel store.ChatChannel, members []int64) (store.ChatChannel, error) {
	uow, err := s.txm.Begin(ctx)
	if err != nil {
		return store.ChatChannel{}, err
	}
	defer uow.Rollback()

	id, err := s.st.InsertChannel(ctx, uow.DB(), channel)
	if err != nil {
		return store.ChatChannel{}, err
	}
	channel.ID = id

	if err := s.st.UpsertChannelMember(ctx, uow.DB(), id, channel.CreatedBy); err != nil {
		return store.ChatChannel{}, err
	}
	for _, userID := range members {
		if userID == channel.CreatedBy {
			continue
		}
		if err := s.st.UpsertChannelMember(ctx, uow.DB(), id, userID); err != nil {
			return store.ChatChannel{}, err
		}
	}
	channel.Members = members

	if err := uow.Commit(); err != nil {
		return store.ChatChannel{}, err
	}
	return channel, nil
}

func (s *Service) GetChannel(ctx context.Context, channelID int64) (*store.ChatChannel, error) {
	return s.st.GetChannel(ctx, channelID)
}

func (s *Service) ChannelsByUser(ctx context.Context, userID, projectID int64) ([]store.ChatChannel, error) {
	return s.st.ChannelsByUser(ctx, userID, projectID)
}

func (s *Service) UpdateChannel(ctx context.Context, channelID int64, name, description string) (*store.ChatChannel, error) {
	if err := s.st.UpdateChannel(ctx, channelID, name, description); err != nil {
		return nil, err
	}
	return s.st.GetChannel(ctx, channelID)
}

func (s *Service) DeleteChannel(ctx context.Context, channelID int64) error {
	return s.st.SoftDeleteChannel(ctx, channelID)
}

// AddMember enrolls a user, reviving a previously removed membership
// instead of inserting a second row.
func (s *Service) AddMember(ctx context.Context, channelID, userID int64) error {
	uow, err := s.txm.Begin(ctx)
	if err != nil {
		return err
	}
	defer uow.Rollback()
	if err := s.st.UpsertChannelMember(ctx, uow.DB(), channelID, userID); err != nil {
		return err
	}
	return uow.Commit()
}

func (s *Service) RemoveMember(ctx context.Context, channelID, userID int64) error {
	return s.st.SoftDeleteChannelMember(ctx, channelID, userID)
}

func (s *Service) Members(ctx context.Context, channelID int64) ([]store.ChannelMember, error) {
	return s.st.ChannelMembers(ctx, channelID)
}

// AddMessage stores the message and its mentions, then delivers it to
// the channel's members once everything commits.
func (s *Service) AddMessage(ctx context.Context, channelID, senderID int64, content string) (*store.ChatMessage, error) {
	return s.addMessage(ctx, channelID, senderID, content, nil)
}

// AddMessageWithFiles does the same, plus uploads the attachments and
// links them to the message inside the one transaction.
func (s *Service) AddMessageWithFiles(ctx context.Context, channelID, senderID int64, content string, uploads []files.Upload) (*store.ChatMessage, error) {
	return s.addMessage(ctx, channelID, senderID, content, uploads)
}

func (s *Service) addMessage(ctx context.Context, channelID, senderID int64, content string, uploads []files.Upload) (*store.ChatMessage, error) {
	uow, err := s.txm.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer uow.Rollback()

	projectID, err := s.st.ChannelProjectID(ctx, uow.DB(), channelID)
	if err != nil {
		return nil, err
	}
	if projectID == 0 {
		return nil, fmt.Errorf("channel %d not found", channelID)
	}

	messageID, err := s.st.InsertMessage(ctx, uow.DB(), channelID, senderID, content, len(uploads) > 0)
	if err != nil {
		return nil, err
	}

	if err := s.addMentions(ctx, uow, channelID, messageID, senderID, content); err != nil {
		return nil, err
	}

	var attached []store.Attachment
	for _, up := range uploads {
		file, err := s.files.Create(ctx, uow, senderID, projectID, up)
		if err != nil {
			return nil, err
		}
		if err := s.st.InsertMessageFile(ctx, uow.DB(), messageID, file.ID); err != nil {
			return nil, err
		}
		attached = append(attached, file)
	}

	msg, err := s.st.GetMessage(ctx, uow.DB(), messageID)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, fmt.Errorf("message %d vanished before read-back", messageID)
	}
	msg.Files = attached
	if msg.Files == nil {
		msg.Files = []store.Attachment{}
	}
	if msg.Mentions == nil {
		msg.Mentions = []store.MentionedUser{}
	}

	memberIDs, err := s.st.ChannelMemberIDs(ctx, uow.DB(), channelID)
	if err != nil {
		return nil, err
	}

	delivered := *msg
	uow.AfterCommit(func() {
		s.bcast.SendToUsers(memberIDs, "chat_message", delivered)
	})

	if err := uow.Commit(); err != nil {
		return nil, err
	}
	return msg, nil
}

// addMentions records mention rows and notifies everyone named. "@All"
// notifies the whole channel except the sender without writing mention
// rows; self-mentions are ignored either way.
func (s *Service) addMentions(ctx context.Context, uow *store.UnitOfWork, channelID, messageID, senderID int64, content string) error {
	ids, all := extractMentionIDs(content)
	if all {
		memberIDs, err := s.st.ChannelMemberIDs(ctx, uow.DB(), channelID)
		if err != nil {
			return err
		}
		for _, userID := range memberIDs {
			if userID == senderID {
				continue
			}
			_, err := s.notifier.Create(ctx, uow, notify.Descriptor{
				RecipientID:   userID,
				ActorID:       senderID,
				Type:          notify.TypeMention,
				ReferenceType: notify.RefChatMessage,
				ReferenceID:   messageID,
				Message:       "You were mentioned in a conversation (@All)",
			})
			if err != nil {
				return err
			}
		}
		return nil
	}

	for _, userID := range ids {
		if userID == senderID {
			continue
		}
		if err := s.st.InsertMention(ctx, uow.DB(), messageID, userID); err != nil {
			return err
		}
		_, err := s.notifier.Create(ctx, uow, notify.Descriptor{
			RecipientID:   userID,
			ActorID:       senderID,
			Type:          notify.TypeMention,
			ReferenceType: notify.RefChatMessage,
			ReferenceID:   messageID,
			Message:       "You were mentioned in a conversation",
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Messages returns a page of channel history with mentions and files
// attached.
func (s *Service) Messages(ctx context.Context, channelID int64, limit, offset int) ([]store.ChatMessage, error) {
	msgs, err := s.st.ListMessages(ctx, channelID, limit, offset)
	if err != nil {
		return nil, err
	}
	for i := range msgs {
		mentions, err := s.st.MentionsByMessage(ctx, msgs[i].ID)
		if err != nil {
			return nil, err
		}
		msgs[i].Mentions = mentions
		if msgs[i].Mentions == nil {
			msgs[i].Mentions = []store.MentionedUser{}
		}
		msgs[i].Files = []store.Attachment{}
		if msgs[i].HaveFile {
			attached, err := s.st.FilesByMessage(ctx, msgs[i].ID)
			if err != nil {
				return nil, err
			}
			if attached != nil {
				msgs[i].Files = attached
			}
		}
	}
	return msgs, nil
}
