package chat

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"teamflow/api/internal/files"
	"teamflow/api/internal/notify"
	"teamflow/api/internal/store"
)

func TestExtractMentionIDs(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantIDs []int64
		wantAll bool
	}{
		{"empty", "", nil, false},
		{"no mentions", "just a message", nil, false},
		{"single", "hey <@user:12>", []int64{12}, false},
		{"multiple", "<@user:1> and <@user:2>", []int64{1, 2}, false},
		{"deduplicated", "<@user:5> again <@user:5>", []int64{5}, false},
		{"all sentinel", "heads up @All", nil, true},
		{"all wins over users", "@All and <@user:3>", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids, all := extractMentionIDs(tt.content)
			if all != tt.wantAll {
				t.Fatalf("all=%v, want %v", all, tt.wantAll)
			}
			if !reflect.DeepEqual(ids, tt.wantIDs) {
				t.Fatalf("ids=%v, want %v", ids, tt.wantIDs)
			}
		})
	}
}

type stubTx struct{}

func (stubTx) Commit() error   { return nil }
func (stubTx) Rollback() error { return nil }

type fakeTxManager struct{}

func (fakeTxManager) Begin(ctx context.Context) (*store.UnitOfWork, error) {
	return store.NewUnitOfWork(stubTx{}, nil), nil
}

type fakeStore struct {
	Store
	projectID  int64
	memberIDs  []int64
	messages   map[int64]*store.ChatMessage
	nextID     int64
	mentions   []int64
	msgFiles   []string
	lastInsert struct {
		content  string
		haveFile bool
	}
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		projectID: 10,
		memberIDs: []int64{1, 2, 3},
		messages:  make(map[int64]*store.ChatMessage),
		nextID:    100,
	}
}

func (f *fakeStore) ChannelProjectID(ctx context.Context, q store.DBTX, channelID int64) (int64, error) {
	return f.projectID, nil
}

func (f *fakeStore) ChannelMemberIDs(ctx context.Context, q store.DBTX, channelID int64) ([]int64, error) {
	return f.memberIDs, nil
}

func (f *fakeStore) InsertMessage(ctx context.Context, q store.DBTX, channelID, senderID int64, content string, haveFile bool) (int64, error) {
	f.nextID++
	f.messages[f.nextID] = &store.ChatMessage{
		ID: f.nextID, ChannelID: channelID, SenderID: senderID,
		Content: content, HaveFile: haveFile, SenderName: "Alice",
	}
	f.lastInsert.content = content
	f.lastInsert.haveFile = haveFile
	return f.nextID, nil
}

func (f *fakeStore) GetMessage(ctx context.Context, q store.DBTX, messageID int64) (*store.ChatMessage, error) {
	m := f.messages[messageID]
	if m == nil {
		return nil, nil
	}
	copied := *m
	return &copied, nil
}

func (f *fakeStore) InsertMention(ctx context.Context, q store.DBTX, messageID, userID int64) error {
	f.mentions = append(f.mentions, userID)
	return nil
}

func (f *fakeStore) InsertMessageFile(ctx context.Context, q store.DBTX, messageID int64, fileID string) error {
	f.msgFiles = append(f.msgFiles, fileID)
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
	sent []struct {
		ids   []int64
		event string
	}
}

func (b *fakeBroadcaster) SendToUsers(userIDs []int64, event string, payload any) {
	b.sent = append(b.sent, struct {
		ids   []int64
		event string
	}{userIDs, event})
}

type fakeFiles struct {
	created []files.Upload
	failAt  int
	err     error
}

func (f *fakeFiles) Create(ctx context.Context, uow *store.UnitOfWork, createdBy, projectID int64, up files.Upload) (store.Attachment, error) {
	if f.failAt > 0 && len(f.created)+1 == f.failAt {
		return store.Attachment{}, f.err
	}
	f.created = append(f.created, up)
	return store.Attachment{ID: "file-" + up.FileName, FileName: up.FileName}, nil
}

func newTestService() (*Service, *fakeStore, *fakeNotifier, *fakeBroadcaster, *fakeFiles) {
	st := newFakeStore()
	notifier := &fakeNotifier{}
	bcast := &fakeBroadcaster{}
	fc := &fakeFiles{}
	return NewService(st, fakeTxManager{}, notifier, bcast, fc), st, notifier, bcast, fc
}

func TestAddMessageNotifiesMentionedUsers(t *testing.T) {
	svc, st, notifier, bcast, _ := newTestService()

	msg, err := svc.AddMessage(context.Background(), 5, 1, "ping <@user:2> and <@user:3>")
	if err != nil {
		t.Fatalf("add message: %v", err)
	}
	if msg.HaveFile {
		t.Fatalf("plain message should not claim files")
	}
	if !reflect.DeepEqual(st.mentions, []int64{2, 3}) {
		t.Fatalf("mention rows %v", st.mentions)
	}
	if len(notifier.created) != 2 {
		t.Fatalf("expected 2 mention notifications, got %d", len(notifier.created))
	}
	for _, d := range notifier.created {
		if d.Type != "mention" || d.ReferenceType != "chat_message" {
			t.Fatalf("unexpected descriptor %+v", d)
		}
	}
	if len(bcast.sent) != 1 || bcast.sent[0].event != "chat_message" {
		t.Fatalf("expected one chat_message broadcast, got %+v", bcast.sent)
	}
	if !reflect.DeepEqual(bcast.sent[0].ids, []int64{1, 2, 3}) {
		t.Fatalf("broadcast targets %v", bcast.sent[0].ids)
	}
}

func TestAddMessageAllMentionSkipsSenderAndRows(t *testing.T) {
	svc, st, notifier, _, _ := newTestService()

	if _, err := svc.AddMessage(context.Background(), 5, 1, "@All standup in 5"); err != nil {
		t.Fatalf("add message: %v", err)
	}
	if len(st.mentions) != 0 {
		t.Fatalf("@All must not write mention rows, got %v", st.mentions)
	}
	if len(notifier.created) != 2 {
		t.Fatalf("expected notifications for everyone but the sender, got %d", len(notifier.created))
	}
	for _, d := range notifier.created {
		if d.RecipientID == 1 {
			t.Fatalf("sender must not be notified")
		}
		if d.Message != "You were mentioned in a conversation (@All)" {
			t.Fatalf("unexpected message %q", d.Message)
		}
	}
}

func TestAddMessageSelfMentionIgnored(t *testing.T) {
	svc, st, notifier, _, _ := newTestService()

	if _, err := svc.AddMessage(context.Background(), 5, 2, "note to self <@user:2>"); err != nil {
		t.Fatalf("add message: %v", err)
	}
	if len(st.mentions) != 0 || len(notifier.created) != 0 {
		t.Fatalf("self-mention must be ignored")
	}
}

func TestAddMessageWithFilesLinksAttachments(t *testing.T) {
	svc, st, _, bcast, fc := newTestService()

	msg, err := svc.AddMessageWithFiles(context.Background(), 5, 1, "design doc", []files.Upload{
		{FileName: "spec.pdf", FileType: "application/pdf", Size: 1024},
	})
	if err != nil {
		t.Fatalf("add message with files: %v", err)
	}
	if !st.lastInsert.haveFile {
		t.Fatalf("message row must be flagged have_file")
	}
	if len(fc.created) != 1 {
		t.Fatalf("expected one file upload")
	}
	if !reflect.DeepEqual(st.msgFiles, []string{"file-spec.pdf"}) {
		t.Fatalf("message-file links %v", st.msgFiles)
	}
	if len(msg.Files) != 1 || msg.Files[0].FileName != "spec.pdf" {
		t.Fatalf("returned message missing attachment: %+v", msg.Files)
	}
	if len(bcast.sent) != 1 {
		t.Fatalf("expected broadcast after commit")
	}
}

type recordingTx struct {
	committed  bool
	rolledBack bool
}

func (t *recordingTx) Commit() error   { t.committed = true; return nil }
func (t *recordingTx) Rollback() error { t.rolledBack = true; return nil }

type recordingTxManager struct {
	tx *recordingTx
}

func (m *recordingTxManager) Begin(ctx context.Context) (*store.UnitOfWork, error) {
	m.tx = &recordingTx{}
	return store.NewUnitOfWork(m.tx, nil), nil
}

func TestAddMessageFailedUploadRollsBackEverything(t *testing.T) {
	st := newFakeStore()
	notifier := &fakeNotifier{}
	bcast := &fakeBroadcaster{}
	fc := &fakeFiles{failAt: 2, err: errors.New("object store unavailable")}
	txm := &recordingTxManager{}
	svc := NewService(st, txm, notifier, bcast, fc)

	_, err := svc.AddMessageWithFiles(context.Background(), 5, 1, "ping <@user:2>", []files.Upload{
		{FileName: "a.png"}, {FileName: "b.png"}, {FileName: "c.png"},
	})
	if err == nil {
		t.Fatalf("expected upload failure to surface")
	}

	if txm.tx.committed {
		t.Fatalf("transaction committed despite failed upload")
	}
	if !txm.tx.rolledBack {
		t.Fatalf("transaction must roll back when an upload fails")
	}
	if len(fc.created) != 1 {
		t.Fatalf("uploads after the failure must not run, got %d", len(fc.created))
	}
	if len(bcast.sent) != 0 {
		t.Fatalf("rolled-back message must not be broadcast")
	}
}

func TestAddMessageUnknownChannel(t *testing.T) {
	svc, st, _, bcast, _ := newTestService()
	st.projectID = 0

	if _, err := svc.AddMessage(context.Background(), 99, 1, "hello"); err == nil {
		t.Fatalf("expected error for unknown channel")
	}
	if len(bcast.sent) != 0 {
		t.Fatalf("failed send must not broadcast")
	}
}
