package objectstore

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/andresuchdata/cloudpath/internal/storage"
	"github.com/pkg/errors"
)

type memObject struct {
	data       []byte
	tags       storage.TagSet
	modifiedAt time.Time
}

// MemoryClient is an in-process bucket. It backs the "memory" driver for
// local runs and the package tests.
type MemoryClient struct {
	mu      sync.RWMutex
	bucket  string
	objects map[string]memObject
	now     func() time.Time
}

func NewMemoryClient(bucket string) *MemoryClient {
	return &MemoryClient{
		bucket:  bucket,
		objects: make(map[string]memObject),
		now:     time.Now,
	}
}

// Keys returns every key in lexical order.
func (c *MemoryClient) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sortedKeysLocked()
}

func (c *MemoryClient) List(_ context.Context, prefix string, recursive bool) ([]Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	seen := make(map[string]bool)
	var entries []Entry
	for _, key := range c.sortedKeysLocked() {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if !recursive {
			rest := strings.TrimPrefix(key, prefix)
			if i := strings.Index(rest, "/"); i >= 0 && i < len(rest)-1 {
				cp := prefix + rest[:i+1]
				if !seen[cp] {
					seen[cp] = true
					entries = append(entries, Entry{Key: cp, IsPrefix: true})
				}
				continue
			}
		}
		obj := c.objects[key]
		entries = append(entries, Entry{
			Key:        key,
			Size:       int64(len(obj.data)),
			ModifiedAt: obj.modifiedAt,
			IsPrefix:   strings.HasSuffix(key, "/"),
		})
	}
	return entries, nil
}

func (c *MemoryClient) Stat(_ context.Context, key string) (Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	obj, ok := c.objects[key]
	if !ok {
		return Entry{}, errors.Wrap(storage.ErrNotFound, key)
	}
	return Entry{Key: key, Size: int64(len(obj.data)), ModifiedAt: obj.modifiedAt}, nil
}

func (c *MemoryClient) Copy(_ context.Context, srcKey, dstKey string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	obj, ok := c.objects[srcKey]
	if !ok {
		return errors.Wrap(storage.ErrNotFound, srcKey)
	}
	c.objects[dstKey] = memObject{
		data:       append([]byte(nil), obj.data...),
		tags:       append(storage.TagSet(nil), obj.tags...),
		modifiedAt: c.now(),
	}
	return nil
}

func (c *MemoryClient) Remove(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.objects, key)
	return nil
}

func (c *MemoryClient) RemoveMany(_ context.Context, keys []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		delete(c.objects, key)
	}
	return nil
}

func (c *MemoryClient) Get(_ context.Context, key string) (io.ReadCloser, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	obj, ok := c.objects[key]
	if !ok {
		return nil, errors.Wrap(storage.ErrNotFound, key)
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (c *MemoryClient) Put(_ context.Context, key string, r io.Reader, _ int64) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", errors.Wrap(err, "read upload body")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.objects[key] = memObject{data: data, modifiedAt: c.now()}
	return "mem://" + c.bucket + "/" + key, nil
}

func (c *MemoryClient) GetTagging(_ context.Context, key string) (storage.TagSet, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	obj, ok := c.objects[key]
	if !ok {
		return nil, errors.Wrap(storage.ErrNotFound, key)
	}
	return append(storage.TagSet{}, obj.tags...), nil
}

func (c *MemoryClient) PutTagging(_ context.Context, key string, set storage.TagSet) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	obj, ok := c.objects[key]
	if !ok {
		return errors.Wrap(storage.ErrNotFound, key)
	}
	obj.tags = append(storage.TagSet{}, set...)
	c.objects[key] = obj
	return nil
}

func (c *MemoryClient) Close() error {
	return nil
}

func (c *MemoryClient) sortedKeysLocked() []string {
	keys := make([]string, 0, len(c.objects))
	for k := range c.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var _ Client = (*MemoryClient)(nil)
