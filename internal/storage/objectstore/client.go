package objectstore

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/andresuchdata/cloudpath/internal/storage"
)

// Entry is one row of a bucket listing.
type Entry struct {
	Key        string
	Size       int64
	ETag       string
	ModifiedAt time.Time
	// IsPrefix marks common prefixes and zero-byte "dir/" placeholders.
	IsPrefix bool
}

// Client is the S3 surface the store needs. Implementations return
// storage.ErrNotFound (possibly wrapped) for missing keys.
type Client interface {
	// List returns entries under prefix. Non-recursive listings fold
	// deeper keys into IsPrefix entries ending in "/".
	List(ctx context.Context, prefix string, recursive bool) ([]Entry, error)
	Stat(ctx context.Context, key string) (Entry, error)
	Copy(ctx context.Context, srcKey, dstKey string) error
	Remove(ctx context.Context, key string) error
	RemoveMany(ctx context.Context, keys []string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Put(ctx context.Context, key string, r io.Reader, size int64) (string, error)
	GetTagging(ctx context.Context, key string) (storage.TagSet, error)
	PutTagging(ctx context.Context, key string, tags storage.TagSet) error
	Close() error
}

// normalizeEndpoint returns the endpoint as a URL with scheme, plus the bare
// host[:port] and whether TLS is on.
func normalizeEndpoint(raw string, useSSL bool) (endpointURL, host string, secure bool, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", "", false, fmt.Errorf("object store endpoint must be provided")
	}

	switch {
	case strings.HasPrefix(raw, "https://"):
		secure = true
		host = strings.TrimPrefix(raw, "https://")
	case strings.HasPrefix(raw, "http://"):
		host = strings.TrimPrefix(raw, "http://")
	default:
		secure = useSSL
		host = strings.TrimPrefix(raw, "//")
	}
	host = strings.TrimSuffix(host, "/")

	scheme := "https"
	if !secure {
		scheme = "http"
	}
	return fmt.Sprintf("%s://%s", scheme, host), host, secure, nil
}

func contentType(key string) string {
	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
