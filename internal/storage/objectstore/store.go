package objectstore

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/andresuchdata/cloudpath/internal/config"
	"github.com/andresuchdata/cloudpath/internal/storage"
	"github.com/andresuchdata/cloudpath/pkg/logger"
	"github.com/rs/zerolog"
)

const backendName = "s3"

// Store is the object-store backend: a flat bucket addressed by key.
type Store struct {
	client Client
	bucket string
	log    zerolog.Logger
}

// New builds a Store using the driver named in cfg ("minio", "aws" or
// "memory"). The caller owns the Store and must Close it.
func New(ctx context.Context, cfg config.ObjectStoreConfig) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("object store bucket must be provided")
	}

	var (
		client Client
		err    error
	)
	switch strings.ToLower(cfg.Driver) {
	case "", "minio":
		client, err = NewMinioClient(cfg)
	case "aws":
		client, err = NewAWSClient(ctx, cfg)
	case "memory":
		client = NewMemoryClient(cfg.Bucket)
	default:
		return nil, fmt.Errorf("unknown object store driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	return NewWithClient(client, cfg.Bucket), nil
}

// NewWithClient wraps an existing Client.
func NewWithClient(client Client, bucket string) *Store {
	return &Store{
		client: client,
		bucket: bucket,
		log:    logger.With("objectstore").With().Str("bucket", bucket).Logger(),
	}
}

func (s *Store) Name() string {
	return backendName
}

// Resolve lists the bucket for ref. Exact refs list the containing
// directory and keep the entry whose name equals the last segment; prefix
// refs list everything under the prefix and apply match.
func (s *Store) Resolve(ctx context.Context, ref storage.PathRef, match storage.Predicate) ([]storage.RemoteObject, error) {
	switch ref.Kind {
	case storage.RefObject:
		return []storage.RemoteObject{*ref.Object}, nil

	case storage.RefExact:
		dir, name := storage.DirName(ref.Path), storage.BaseName(ref.Path)
		entries, err := s.client.List(ctx, dirPrefix(dir), false)
		if err != nil {
			return nil, storage.WrapBackend(backendName, "list", dir, err)
		}
		var found []storage.RemoteObject
		for _, e := range entries {
			if e.IsPrefix || storage.BaseName(e.Key) != name {
				continue
			}
			obj := toObject(e)
			if match.Match(obj.Key) {
				found = append(found, obj)
			}
		}
		if len(found) == 0 {
			s.log.Warn().Str("key", ref.Path).Msg("file not found")
		}
		return found, nil

	default:
		entries, err := s.client.List(ctx, dirPrefix(ref.Path), true)
		if err != nil {
			return nil, storage.WrapBackend(backendName, "list", ref.Path, err)
		}
		objs := make([]storage.RemoteObject, 0, len(entries))
		for _, e := range entries {
			obj := toObject(e)
			if match.Match(obj.Key) {
				objs = append(objs, obj)
			}
		}
		if len(objs) == 0 {
			s.log.Warn().Str("prefix", ref.Path).Msg("no objects under prefix")
		}
		return objs, nil
	}
}

func (s *Store) ListFolders(ctx context.Context, prefix string) ([]storage.RemoteObject, error) {
	prefix = storage.NormalizePath(prefix)
	entries, err := s.client.List(ctx, dirPrefix(prefix), false)
	if err != nil {
		return nil, storage.WrapBackend(backendName, "list", prefix, err)
	}
	var folders []storage.RemoteObject
	for _, e := range entries {
		if !e.IsPrefix || strings.TrimSuffix(e.Key, "/") == prefix {
			continue
		}
		folders = append(folders, toObject(e))
	}
	return folders, nil
}

func (s *Store) CopyObject(ctx context.Context, src storage.RemoteObject, dstKey string) (storage.RemoteObject, error) {
	dstKey = storage.NormalizePath(dstKey)
	if err := s.client.Copy(ctx, src.BackendID, dstKey); err != nil {
		return storage.RemoteObject{}, storage.WrapBackend(backendName, "copy", src.Key, err)
	}
	s.log.Debug().Str("src", src.Key).Str("dst", dstKey).Msg("copied object")
	return storage.RemoteObject{
		Key:       dstKey,
		Name:      storage.BaseName(dstKey),
		Kind:      storage.KindFile,
		BackendID: dstKey,
		Size:      src.Size,
		MimeType:  src.MimeType,
	}, nil
}

func (s *Store) DeleteObject(ctx context.Context, obj storage.RemoteObject) error {
	if err := s.client.Remove(ctx, obj.BackendID); err != nil && !storage.IsNotFound(err) {
		return storage.WrapBackend(backendName, "delete", obj.Key, err)
	}
	return nil
}

// DeleteObjects removes every object with one multi-key delete.
func (s *Store) DeleteObjects(ctx context.Context, objs []storage.RemoteObject) error {
	if len(objs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(objs))
	for _, o := range objs {
		keys = append(keys, o.BackendID)
	}
	if err := s.client.RemoveMany(ctx, keys); err != nil {
		return storage.WrapBackend(backendName, "delete-many", "", err)
	}
	s.log.Debug().Int("count", len(keys)).Msg("deleted objects")
	return nil
}

func (s *Store) Upload(ctx context.Context, key string, r io.Reader, size int64) (string, error) {
	key = storage.NormalizePath(key)
	loc, err := s.client.Put(ctx, key, r, size)
	if err != nil {
		return "", storage.WrapBackend(backendName, "put", key, err)
	}
	return loc, nil
}

func (s *Store) Open(ctx context.Context, obj storage.RemoteObject) (io.ReadCloser, error) {
	rc, err := s.client.Get(ctx, obj.BackendID)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, err
		}
		return nil, storage.WrapBackend(backendName, "get", obj.Key, err)
	}
	return rc, nil
}

// Exists heads the key. Missing keys are (false, nil).
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	key = storage.NormalizePath(key)
	if _, err := s.client.Stat(ctx, key); err != nil {
		if storage.IsNotFound(err) {
			return false, nil
		}
		return false, storage.WrapBackend(backendName, "head", key, err)
	}
	return true, nil
}

func (s *Store) GetTags(ctx context.Context, key string) (storage.TagSet, error) {
	key = storage.NormalizePath(key)
	set, err := s.client.GetTagging(ctx, key)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, err
		}
		return nil, storage.WrapBackend(backendName, "get-tags", key, err)
	}
	return set, nil
}

// PutTags replaces the object's tag set.
func (s *Store) PutTags(ctx context.Context, key string, set storage.TagSet) error {
	key = storage.NormalizePath(key)
	if err := s.client.PutTagging(ctx, key, set); err != nil {
		if storage.IsNotFound(err) {
			return err
		}
		return storage.WrapBackend(backendName, "put-tags", key, err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

// dirPrefix turns a normalized directory into an S3 listing prefix.
func dirPrefix(dir string) string {
	if dir == "" {
		return ""
	}
	return dir + "/"
}

func toObject(e Entry) storage.RemoteObject {
	kind := storage.KindFile
	if e.IsPrefix {
		kind = storage.KindFolder
	}
	return storage.RemoteObject{
		Key:        strings.TrimSuffix(e.Key, "/"),
		Name:       storage.BaseName(e.Key),
		Kind:       kind,
		BackendID:  e.Key,
		Size:       e.Size,
		MimeType:   contentTypeFor(kind, e.Key),
		ModifiedAt: e.ModifiedAt,
	}
}

func contentTypeFor(kind storage.Kind, key string) string {
	if kind == storage.KindFolder {
		return ""
	}
	return contentType(key)
}

var (
	_ storage.Backend = (*Store)(nil)
	_ storage.Tagger  = (*Store)(nil)
)
