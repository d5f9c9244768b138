package storage

import (
	"context"
	"io"
	"time"
)

// Kind distinguishes files from folder-like entries in a listing.
type Kind string

const (
	KindFile   Kind = "file"
	KindFolder Kind = "folder"
)

// RemoteObject represents metadata for a remote file/object. It is a snapshot
// taken from one listing call and is never cached beyond that call.
type RemoteObject struct {
	Key        string    `json:"key" yaml:"key"`
	Name       string    `json:"name" yaml:"name"`
	Kind       Kind      `json:"kind" yaml:"kind"`
	BackendID  string    `json:"backendId" yaml:"backendId"`
	Size       int64     `json:"size,omitempty" yaml:"size,omitempty"`
	MimeType   string    `json:"mimeType,omitempty" yaml:"mimeType,omitempty"`
	ModifiedAt time.Time `json:"modifiedAt,omitempty" yaml:"modifiedAt,omitempty"`
}

func (o RemoteObject) IsFolder() bool {
	return o.Kind == KindFolder
}

// Tag is a single object-store tag.
type Tag struct {
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value" yaml:"value"`
}

// TagSet is ordered; writing one replaces any tags already on the object.
type TagSet []Tag

// Backend captures the operations a remote store must provide for the
// resolver, the bulk engine and the file service.
type Backend interface {
	// Name returns the backend identifier ("s3", "drive").
	Name() string

	// Resolve turns a path reference into zero or more concrete objects.
	// An unmatched reference yields an empty slice and a nil error.
	Resolve(ctx context.Context, ref PathRef, match Predicate) ([]RemoteObject, error)

	// ListFolders returns the folder-like entries directly under prefix.
	ListFolders(ctx context.Context, prefix string) ([]RemoteObject, error)

	// CopyObject copies src to dstKey, overwriting whatever is there.
	CopyObject(ctx context.Context, src RemoteObject, dstKey string) (RemoteObject, error)

	// DeleteObject removes a single object.
	DeleteObject(ctx context.Context, obj RemoteObject) error

	// DeleteObjects removes objs, in one call when the backend supports
	// multi-key deletion. Objects already gone are not an error.
	DeleteObjects(ctx context.Context, objs []RemoteObject) error

	// Upload writes r to key and returns a location descriptor.
	Upload(ctx context.Context, key string, r io.Reader, size int64) (string, error)

	// Open returns a reader for obj's content.
	Open(ctx context.Context, obj RemoteObject) (io.ReadCloser, error)

	// Exists reports whether key names an object. A missing object is
	// (false, nil).
	Exists(ctx context.Context, key string) (bool, error)

	// Close releases client resources.
	Close() error
}

// Tagger is implemented by backends with object tagging.
type Tagger interface {
	GetTags(ctx context.Context, key string) (TagSet, error)
	PutTags(ctx context.Context, key string, tags TagSet) error
}
