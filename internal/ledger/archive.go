// Copyright 2026 The Aiverse Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	log "github.com/sirupsen/logrus"

	"github.com/aiverse/hybridstack/internal/config"
)

// Archiver exports aged cost records to S3-compatible object storage as
// gzip-compressed JSONL and prunes them from the durable log. Dashboards
// query by day and month, so records past the retention window only need to
// exist in the archive.
type Archiver struct {
	store  *SQLStore
	client *minio.Client
	bucket string
	maxAge time.Duration
}

// NewArchiver builds an archiver from configuration.
func NewArchiver(cfg config.ArchiveConfig, store *SQLStore) (*Archiver, error) {
	if store == nil {
		return nil, fmt.Errorf("archiver requires a durable store")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(os.Getenv(cfg.AccessKeyEnv), os.Getenv(cfg.SecretKeyEnv), ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object storage client: %w", err)
	}
	return &Archiver{
		store:  store,
		client: client,
		bucket: cfg.Bucket,
		maxAge: time.Duration(cfg.RetentionDays) * 24 * time.Hour,
	}, nil
}

// Run exports all records older than the retention window and deletes them
// from SQLite on success. Returns the number of records archived.
func (a *Archiver) Run(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-a.maxAge)

	records, err := a.store.RecordsBefore(cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to read records for archival: %w", err)
	}
	if len(records) == 0 {
		return 0, nil
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	enc := json.NewEncoder(gz)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return 0, fmt.Errorf("failed to encode record: %w", err)
		}
	}
	if err := gz.Close(); err != nil {
		return 0, fmt.Errorf("failed to finish compression: %w", err)
	}

	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return 0, fmt.Errorf("failed to check archive bucket: %w", err)
	}
	if !exists {
		if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
			return 0, fmt.Errorf("failed to create archive bucket: %w", err)
		}
	}

	name := fmt.Sprintf("cost-records/%s.jsonl.gz", time.Now().UTC().Format("2006-01-02T15-04-05"))
	_, err = a.client.PutObject(ctx, a.bucket, name, &buf, int64(buf.Len()), minio.PutObjectOptions{
		ContentType: "application/gzip",
	})
	if err != nil {
		return 0, fmt.Errorf("failed to upload archive: %w", err)
	}

	deleted, err := a.store.DeleteBefore(cutoff)
	if err != nil {
		// The export succeeded; the rows will be retried next cycle and the
		// archive objects are timestamped, so this is not fatal.
		log.Errorf("archived %d records but failed to prune them: %v", len(records), err)
	}

	log.Infof("archived %d cost records to %s/%s (pruned %d)", len(records), a.bucket, name, deleted)
	return len(records), nil
}
