// Package remote abstracts the storage backend that synced files are
// transferred to and from. The sync engine only ever sees this
// interface, transport concerns like auth and retries live below it.
package remote

import (
	"context"
	"io"
	"time"
)

// ObjectInfo describes one stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
}

// Store is the capability the sync engine consumes.
type Store interface {
	// Upload streams body to key. size is a content-length hint and
	// must match the number of readable bytes.
	Upload(ctx context.Context, key string, body io.Reader, size int64, progress Progress) error

	// Download streams the object at key into sink.
	Download(ctx context.Context, key string, sink io.Writer, progress Progress) error

	// Delete removes the object at key. With recursive set, key is
	// treated as a prefix and everything under it is removed.
	Delete(ctx context.Context, key string, recursive bool) error

	// List returns all objects under prefix.
	List(ctx context.Context, prefix string) ([]*ObjectInfo, error)

	// CreateFolder creates an empty folder marker at key.
	CreateFolder(ctx context.Context, key string) error

	// Copy duplicates srcKey to dstKey.
	Copy(ctx context.Context, srcKey, dstKey string) error

	// Move renames srcKey to dstKey.
	Move(ctx context.Context, srcKey, dstKey string) error
}
