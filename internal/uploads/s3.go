package uploads

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/OFFIS-RIT/testcase-agent/internal/storage"
	"github.com/OFFIS-RIT/testcase-agent/pkg/logger"
)

// objectStore is the part of storage.Bucket the S3 backend needs.
type objectStore interface {
	GetObject(ctx context.Context, key string) ([]byte, error)
	PutObject(ctx context.Context, key, contentType string, data []byte) error
	ListKeys(ctx context.Context, prefix string) ([]string, error)
}

var s3Prefixes = map[Kind]string{
	KindPRD:       "prds/",
	KindTestcases: "testcases/",
}

// S3Backend stores each upload as a JSON object under prds/ or testcases/.
type S3Backend struct {
	bucket objectStore
}

func NewS3Backend(bucket *storage.Bucket) *S3Backend {
	return &S3Backend{bucket: bucket}
}

func objectKey(kind Kind, id string) string {
	return s3Prefixes[kind] + id + ".json"
}

func (b *S3Backend) Put(ctx context.Context, kind Kind, rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return b.bucket.PutObject(ctx, objectKey(kind, rec.ID), "application/json", data)
}

func (b *S3Backend) Get(ctx context.Context, kind Kind, id string) (*Record, error) {
	data, err := b.bucket.GetObject(ctx, objectKey(kind, id))
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode upload %s: %w", id, err)
	}
	return &rec, nil
}

func (b *S3Backend) List(ctx context.Context, kind Kind) ([]Record, error) {
	keys, err := b.bucket.ListKeys(ctx, s3Prefixes[kind])
	if err != nil {
		return nil, err
	}

	out := make([]Record, 0, len(keys))
	for _, key := range keys {
		if !strings.HasSuffix(key, ".json") {
			continue
		}
		id := strings.TrimSuffix(path.Base(key), ".json")
		rec, err := b.Get(ctx, kind, id)
		if err != nil {
			logger.Warn("[Uploads] Skipping unreadable object", "key", key, "err", err)
			continue
		}
		out = append(out, *rec)
	}
	return out, nil
}
