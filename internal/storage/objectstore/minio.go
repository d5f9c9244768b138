package objectstore

import (
	"context"
	"io"
	"net/http"
	"path"
	"sort"
	"strings"

	"github.com/andresuchdata/cloudpath/internal/config"
	"github.com/andresuchdata/cloudpath/internal/storage"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/tags"
	"github.com/pkg/errors"
)

// MinioClient implements Client with minio-go, which speaks to AWS S3 and
// any S3-compatible service.
type MinioClient struct {
	client *minio.Client
	bucket string
}

// NewMinioClient builds a MinioClient from the object store config.
func NewMinioClient(cfg config.ObjectStoreConfig) (*MinioClient, error) {
	_, host, secure, err := normalizeEndpoint(cfg.Endpoint, cfg.UseSSL)
	if err != nil {
		return nil, err
	}

	lookup := minio.BucketLookupAuto
	if cfg.ForcePathStyle {
		lookup = minio.BucketLookupPath
	}

	client, err := minio.New(host, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       secure,
		Region:       cfg.Region,
		BucketLookup: lookup,
	})
	if err != nil {
		return nil, errors.Wrap(err, "minio client")
	}

	return &MinioClient{client: client, bucket: cfg.Bucket}, nil
}

func (c *MinioClient) List(ctx context.Context, prefix string, recursive bool) ([]Entry, error) {
	// cancel stops the listing goroutine if we bail out early
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var entries []Entry
	for obj := range c.client.ListObjects(ctx, c.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: recursive,
	}) {
		if obj.Err != nil {
			return nil, errors.Wrap(minioErr(obj.Err), "list objects")
		}
		entries = append(entries, Entry{
			Key:        obj.Key,
			Size:       obj.Size,
			ETag:       obj.ETag,
			ModifiedAt: obj.LastModified,
			IsPrefix:   strings.HasSuffix(obj.Key, "/"),
		})
	}
	return entries, nil
}

func (c *MinioClient) Stat(ctx context.Context, key string) (Entry, error) {
	info, err := c.client.StatObject(ctx, c.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return Entry{}, minioErr(err)
	}
	return Entry{
		Key:        info.Key,
		Size:       info.Size,
		ETag:       info.ETag,
		ModifiedAt: info.LastModified,
	}, nil
}

func (c *MinioClient) Copy(ctx context.Context, srcKey, dstKey string) error {
	_, err := c.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: c.bucket, Object: dstKey},
		minio.CopySrcOptions{Bucket: c.bucket, Object: srcKey},
	)
	return minioErr(err)
}

func (c *MinioClient) Remove(ctx context.Context, key string) error {
	return minioErr(c.client.RemoveObject(ctx, c.bucket, key, minio.RemoveObjectOptions{}))
}

// RemoveMany issues a multi-object delete; minio-go splits it into requests
// of at most 1000 keys.
func (c *MinioClient) RemoveMany(ctx context.Context, keys []string) error {
	objectsCh := make(chan minio.ObjectInfo, len(keys))
	for _, key := range keys {
		objectsCh <- minio.ObjectInfo{Key: key}
	}
	close(objectsCh)

	var firstErr error
	for rErr := range c.client.RemoveObjects(ctx, c.bucket, objectsCh, minio.RemoveObjectsOptions{}) {
		if rErr.Err != nil && firstErr == nil {
			firstErr = errors.Wrapf(minioErr(rErr.Err), "remove %s", rErr.ObjectName)
		}
	}
	return firstErr
}

func (c *MinioClient) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := c.client.GetObject(ctx, c.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, minioErr(err)
	}
	// GetObject is lazy; Stat surfaces a missing key before the caller reads.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, minioErr(err)
	}
	return obj, nil
}

func (c *MinioClient) Put(ctx context.Context, key string, r io.Reader, size int64) (string, error) {
	info, err := c.client.PutObject(ctx, c.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType(key),
	})
	if err != nil {
		return "", minioErr(err)
	}
	if info.Location != "" {
		return info.Location, nil
	}
	u := *c.client.EndpointURL()
	u.Path = path.Join("/", c.bucket, key)
	return u.String(), nil
}

func (c *MinioClient) GetTagging(ctx context.Context, key string) (storage.TagSet, error) {
	t, err := c.client.GetObjectTagging(ctx, c.bucket, key, minio.GetObjectTaggingOptions{})
	if err != nil {
		return nil, minioErr(err)
	}
	m := t.ToMap()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// S3 returns tags unordered; sort for stable output
	sort.Strings(keys)

	set := make(storage.TagSet, 0, len(keys))
	for _, k := range keys {
		set = append(set, storage.Tag{Key: k, Value: m[k]})
	}
	return set, nil
}

func (c *MinioClient) PutTagging(ctx context.Context, key string, set storage.TagSet) error {
	m := make(map[string]string, len(set))
	for _, tag := range set {
		m[tag.Key] = tag.Value
	}
	t, err := tags.NewTags(m, true)
	if err != nil {
		return errors.Wrapf(storage.ErrInvalidArgument, "tags: %v", err)
	}
	return minioErr(c.client.PutObjectTagging(ctx, c.bucket, key, t, minio.PutObjectTaggingOptions{}))
}

func (c *MinioClient) Close() error {
	return nil
}

func minioErr(err error) error {
	if err == nil {
		return nil
	}
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound {
		return errors.Wrap(storage.ErrNotFound, resp.Message)
	}
	return err
}

var _ Client = (*MinioClient)(nil)
