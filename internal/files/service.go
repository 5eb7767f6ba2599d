package files

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"teamflow/api/internal/store"
	"teamflow/api/internal/util"
)

// Upload is one incoming file attachment.
type Upload struct {
	FileName string
	FileType string
	Size     int64
	Content  io.Reader
	TaskID   int64
}

type Store interface {
	InsertFile(ctx context.Context, q store.DBTX, file store.Attachment) error
	FilesByMessage(ctx context.Context, messageID int64) ([]store.Attachment, error)
}

// Service stores attachment bytes in object storage and their metadata
// in the database. The metadata write joins the caller's unit of work;
// the object upload happens first so a failed transaction leaves only
// an orphaned object, never a dangling row.
type Service struct {
	client  *minio.Client
	bucket  string
	baseURL string
	st      Store
}

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// BaseURL is the public prefix clients use to fetch objects.
	BaseURL string
}

func NewService(cfg Config, st Store) (*Service, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect object storage: %w", err)
	}
	return &Service{client: client, bucket: cfg.Bucket, baseURL: strings.TrimRight(cfg.BaseURL, "/"), st: st}, nil
}

func (s *Service) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket: %w", err)
	}
	return nil
}

// Create uploads the object and records its metadata through the given
// unit of work.
func (s *Service) Create(ctx context.Context, uow *store.UnitOfWork, createdBy, projectID int64, up Upload) (store.Attachment, error) {
	id := util.NewID("file")
	key := id + "/" + up.FileName

	_, err := s.client.PutObject(ctx, s.bucket, key, up.Content, up.Size, minio.PutObjectOptions{
		ContentType: up.FileType,
	})
	if err != nil {
		return store.Attachment{}, fmt.Errorf("upload object: %w", err)
	}

	file := store.Attachment{
		ID:        id,
		FileName:  up.FileName,
		FileType:  up.FileType,
		FileURL:   fmt.Sprintf("%s/%s/%s", s.baseURL, s.bucket, key),
		Size:      up.Size,
		CreatedBy: createdBy,
		ProjectID: projectID,
		TaskID:    up.TaskID,
	}
	if err := s.st.InsertFile(ctx, uow.DB(), file); err != nil {
		return store.Attachment{}, err
	}
	return file, nil
}

func (s *Service) ByMessage(ctx context.Context, messageID int64) ([]store.Attachment, error) {
	return s.st.FilesByMessage(ctx, messageID)
}
