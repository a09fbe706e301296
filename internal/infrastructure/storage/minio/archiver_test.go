package minio

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/tariffwise/internal/classify/engine"
	"github.com/turtacn/tariffwise/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/tariffwise/pkg/types/classify"
)

type fakeStore struct {
	objects map[string][]byte
	buckets map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string][]byte{}, buckets: map[string]bool{"audit": true}}
}

func (s *fakeStore) PutObject(_ context.Context, bucket, object string, reader *bytes.Reader, _ int64, _ minio.PutObjectOptions) (minio.UploadInfo, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	s.objects[bucket+"/"+object] = data
	return minio.UploadInfo{Bucket: bucket, Key: object}, nil
}

func (s *fakeStore) BucketExists(_ context.Context, bucket string) (bool, error) {
	return s.buckets[bucket], nil
}

func (s *fakeStore) MakeBucket(_ context.Context, bucket string, _ minio.MakeBucketOptions) error {
	s.buckets[bucket] = true
	return nil
}

func TestArchiveWritesDatePartitionedJSON(t *testing.T) {
	store := newFakeStore()
	archiver := newArchiverWithStore(store, "audit", logging.NewNopLogger())

	rec := engine.AuditRecord{
		ConversationID: "conv-42",
		Query:          "wooden office chair",
		Result: classify.ClassificationResult{
			Code:       "9401.61",
			Confidence: 88,
		},
		CompletedAt: time.Date(2026, 8, 15, 9, 30, 0, 0, time.UTC),
	}
	require.NoError(t, archiver.Archive(context.Background(), rec))

	data, ok := store.objects["audit/classifications/2026/08/15/conv-42.json"]
	require.True(t, ok, "expected date-partitioned key, got %v", keys(store.objects))

	var decoded engine.AuditRecord
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "9401.61", decoded.Result.Code)
	assert.Equal(t, "wooden office chair", decoded.Query)
}

func TestArchiveKeyFallsBackForMissingFields(t *testing.T) {
	key := archiveKey(engine.AuditRecord{})
	assert.Contains(t, key, "classifications/")
	assert.Contains(t, key, "anonymous-")
}

func TestEnsureBucketCreatesMissing(t *testing.T) {
	store := newFakeStore()
	archiver := newArchiverWithStore(store, "fresh-bucket", logging.NewNopLogger())

	require.NoError(t, archiver.ensureBucket(context.Background()))
	assert.True(t, store.buckets["fresh-bucket"])
}

func keys(m map[string][]byte) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
