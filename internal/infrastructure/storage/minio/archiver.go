// Package minio archives the full decision trail of every terminal
// classification to object storage. Archives are written best effort and
// read by humans during disputes, never by the request path.
package minio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/turtacn/tariffwise/internal/classify/engine"
	"github.com/turtacn/tariffwise/internal/config"
	"github.com/turtacn/tariffwise/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/tariffwise/pkg/errors"
)

// objectStore abstracts the MinIO client surface the archiver needs.
type objectStore interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader *bytes.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
}

// minioStore adapts *minio.Client to objectStore.
type minioStore struct {
	client *minio.Client
}

func (s *minioStore) PutObject(ctx context.Context, bucket, object string, reader *bytes.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	return s.client.PutObject(ctx, bucket, object, reader, size, opts)
}

func (s *minioStore) BucketExists(ctx context.Context, bucket string) (bool, error) {
	return s.client.BucketExists(ctx, bucket)
}

func (s *minioStore) MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error {
	return s.client.MakeBucket(ctx, bucket, opts)
}

// Archiver stores audit records as JSON objects. It implements
// engine.AuditArchiver.
type Archiver struct {
	store  objectStore
	bucket string
	logger logging.Logger
}

// NewArchiver dials object storage and ensures the audit bucket exists.
func NewArchiver(ctx context.Context, cfg config.MinIOConfig, logger logging.Logger) (*Archiver, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New(errors.ErrCodeValidation, "minio: endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New(errors.ErrCodeValidation, "minio: bucket is required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeExternalService, "minio: failed to create client")
	}

	a := &Archiver{
		store:  &minioStore{client: client},
		bucket: cfg.Bucket,
		logger: logger.Named("audit-archive"),
	}
	if err := a.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

// newArchiverWithStore injects a store. Test constructor.
func newArchiverWithStore(store objectStore, bucket string, logger logging.Logger) *Archiver {
	return &Archiver{store: store, bucket: bucket, logger: logger.Named("audit-archive")}
}

func (a *Archiver) ensureBucket(ctx context.Context) error {
	exists, err := a.store.BucketExists(ctx, a.bucket)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeExternalService, "minio: failed to check audit bucket")
	}
	if exists {
		return nil
	}
	if err := a.store.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
		return errors.Wrap(err, errors.ErrCodeExternalService, "minio: failed to create audit bucket")
	}
	a.logger.Info("audit bucket created", logging.String("bucket", a.bucket))
	return nil
}

// Archive writes one decision trail under a date-partitioned key so
// retention jobs can expire whole prefixes.
func (a *Archiver) Archive(ctx context.Context, rec engine.AuditRecord) error {
	payload, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "minio: failed to encode audit record")
	}

	key := archiveKey(rec)
	_, err = a.store.PutObject(ctx, a.bucket, key,
		bytes.NewReader(payload), int64(len(payload)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeExternalService, "minio: failed to archive record")
	}

	a.logger.Debug("audit record archived", logging.String("key", key))
	return nil
}

// archiveKey renders classifications/<yyyy>/<mm>/<dd>/<conversation>.json.
func archiveKey(rec engine.AuditRecord) string {
	ts := rec.CompletedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	id := rec.ConversationID
	if id == "" {
		id = fmt.Sprintf("anonymous-%d", ts.UnixNano())
	}
	return fmt.Sprintf("classifications/%04d/%02d/%02d/%s.json",
		ts.Year(), int(ts.Month()), ts.Day(), id)
}
