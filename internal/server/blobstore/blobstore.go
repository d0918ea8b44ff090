// Package blobstore stores uploaded file contents by key.
package blobstore

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
)

// Store is an object store. Get of an unknown key returns common.ErrorNotFound.
type Store interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// NewStorageKey returns a unique key partitioned by upload date.
func NewStorageKey(now time.Time) string {
	return fmt.Sprintf("files/%d/%02d/%02d/%s", now.Year(), now.Month(), now.Day(), uuid.New())
}
