package objectstore

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/andresuchdata/cloudpath/internal/config"
	"github.com/andresuchdata/cloudpath/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedStore(t *testing.T, keys ...string) (*Store, *MemoryClient) {
	t.Helper()
	mc := NewMemoryClient("test-bucket")
	for _, k := range keys {
		_, err := mc.Put(context.Background(), k, strings.NewReader("body of "+k), -1)
		require.NoError(t, err)
	}
	return NewWithClient(mc, "test-bucket"), mc
}

func keysOf(objs []storage.RemoteObject) []string {
	out := make([]string, 0, len(objs))
	for _, o := range objs {
		out = append(out, o.Key)
	}
	return out
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	s, _ := seedStore(t,
		"docs/report.pdf",
		"docs/report.pdf.bak",
		"docs/a/b.txt",
		"other/report.pdf",
		"top.txt",
	)

	t.Run("exact_matches_single_object", func(t *testing.T) {
		objs, err := s.Resolve(ctx, storage.Exact("docs/report.pdf"), nil)
		require.NoError(t, err)
		require.Len(t, objs, 1)
		assert.Equal(t, "docs/report.pdf", objs[0].Key)
		assert.Equal(t, "report.pdf", objs[0].Name)
		assert.Equal(t, storage.KindFile, objs[0].Kind)
		assert.Equal(t, "application/pdf", objs[0].MimeType)
	})

	t.Run("exact_backslash_path", func(t *testing.T) {
		objs, err := s.Resolve(ctx, storage.Exact(`docs\report.pdf`), nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"docs/report.pdf"}, keysOf(objs))
	})

	t.Run("exact_at_root", func(t *testing.T) {
		objs, err := s.Resolve(ctx, storage.Exact("top.txt"), nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"top.txt"}, keysOf(objs))
	})

	t.Run("exact_missing_is_empty", func(t *testing.T) {
		objs, err := s.Resolve(ctx, storage.Exact("docs/missing.pdf"), nil)
		require.NoError(t, err)
		assert.Empty(t, objs)
	})

	t.Run("prefix_is_recursive", func(t *testing.T) {
		objs, err := s.Resolve(ctx, storage.Prefix("docs"), nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"docs/a/b.txt", "docs/report.pdf", "docs/report.pdf.bak"}, keysOf(objs))
	})

	t.Run("prefix_does_not_match_sibling", func(t *testing.T) {
		objs, err := s.Resolve(ctx, storage.Prefix("doc"), nil)
		require.NoError(t, err)
		assert.Empty(t, objs)
	})

	t.Run("prefix_with_predicate", func(t *testing.T) {
		objs, err := s.Resolve(ctx, storage.Prefix("docs"), storage.Contains(".bak"))
		require.NoError(t, err)
		assert.Equal(t, []string{"docs/report.pdf.bak"}, keysOf(objs))
	})

	t.Run("empty_prefix_lists_bucket", func(t *testing.T) {
		objs, err := s.Resolve(ctx, storage.Prefix(""), nil)
		require.NoError(t, err)
		assert.Len(t, objs, 5)
	})

	t.Run("object_ref_needs_no_listing", func(t *testing.T) {
		obj := storage.RemoteObject{Key: "ghost/key", BackendID: "ghost/key"}
		objs, err := s.Resolve(ctx, storage.Object(obj), nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"ghost/key"}, keysOf(objs))
	})
}

func TestListFolders(t *testing.T) {
	ctx := context.Background()
	s, _ := seedStore(t, "a/x.txt", "a/b/y.txt", "c/z.txt", "root.txt")

	folders, err := s.ListFolders(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, keysOf(folders))
	for _, f := range folders {
		assert.True(t, f.IsFolder())
	}

	folders, err = s.ListFolders(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"a/b"}, keysOf(folders))
}

func TestCopyAndDelete(t *testing.T) {
	ctx := context.Background()
	s, mc := seedStore(t, "src/one.txt", "src/two.txt")

	objs, err := s.Resolve(ctx, storage.Exact("src/one.txt"), nil)
	require.NoError(t, err)
	require.Len(t, objs, 1)

	copied, err := s.CopyObject(ctx, objs[0], `dst\one.txt`)
	require.NoError(t, err)
	assert.Equal(t, "dst/one.txt", copied.Key)

	rc, err := s.Open(ctx, copied)
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "body of src/one.txt", string(body))

	all, err := s.Resolve(ctx, storage.Prefix("src"), nil)
	require.NoError(t, err)
	require.NoError(t, s.DeleteObjects(ctx, all))
	assert.Equal(t, []string{"dst/one.txt"}, mc.Keys())

	// deleting twice is fine
	require.NoError(t, s.DeleteObject(ctx, copied))
	require.NoError(t, s.DeleteObject(ctx, copied))
	assert.Empty(t, mc.Keys())
}

func TestCopyMissingSourceIsBackendError(t *testing.T) {
	s, _ := seedStore(t)
	_, err := s.CopyObject(context.Background(), storage.RemoteObject{Key: "nope", BackendID: "nope"}, "dst")
	require.Error(t, err)

	var be *storage.BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "s3", be.Backend)
	assert.Equal(t, "copy", be.Op)
	assert.True(t, storage.IsNotFound(err))
}

func TestUploadExistsAndTags(t *testing.T) {
	ctx := context.Background()
	s, _ := seedStore(t)

	loc, err := s.Upload(ctx, "/reports//q1.csv", strings.NewReader("a,b"), 3)
	require.NoError(t, err)
	assert.Equal(t, "mem://test-bucket/reports/q1.csv", loc)

	ok, err := s.Exists(ctx, "reports/q1.csv")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Exists(ctx, "reports/q2.csv")
	require.NoError(t, err)
	assert.False(t, ok)

	set := storage.TagSet{{Key: "team", Value: "ops"}, {Key: "tier", Value: "gold"}}
	require.NoError(t, s.PutTags(ctx, "reports/q1.csv", set))

	got, err := s.GetTags(ctx, "reports/q1.csv")
	require.NoError(t, err)
	assert.Equal(t, set, got)

	require.NoError(t, s.PutTags(ctx, "reports/q1.csv", storage.TagSet{{Key: "team", Value: "data"}}))
	got, err = s.GetTags(ctx, "reports/q1.csv")
	require.NoError(t, err)
	assert.Equal(t, storage.TagSet{{Key: "team", Value: "data"}}, got)

	_, err = s.GetTags(ctx, "reports/missing.csv")
	assert.True(t, storage.IsNotFound(err))
}

func TestNewSelectsDriver(t *testing.T) {
	ctx := context.Background()

	s, err := New(ctx, config.ObjectStoreConfig{Driver: "memory", Bucket: "b"})
	require.NoError(t, err)
	assert.Equal(t, "s3", s.Name())
	require.NoError(t, s.Close())

	_, err = New(ctx, config.ObjectStoreConfig{Driver: "memory"})
	assert.Error(t, err)

	_, err = New(ctx, config.ObjectStoreConfig{Driver: "ftp", Bucket: "b"})
	assert.ErrorContains(t, err, "unknown object store driver")
}

func TestNormalizeEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		useSSL     bool
		wantURL    string
		wantHost   string
		wantSecure bool
		wantErr    bool
	}{
		{name: "https_scheme", raw: "https://s3.example.com/", wantURL: "https://s3.example.com", wantHost: "s3.example.com", wantSecure: true},
		{name: "http_scheme", raw: "http://localhost:9000", useSSL: true, wantURL: "http://localhost:9000", wantHost: "localhost:9000"},
		{name: "bare_host_ssl", raw: "s3.amazonaws.com", useSSL: true, wantURL: "https://s3.amazonaws.com", wantHost: "s3.amazonaws.com", wantSecure: true},
		{name: "bare_host_plain", raw: "minio:9000", wantURL: "http://minio:9000", wantHost: "minio:9000"},
		{name: "empty", raw: "  ", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, host, secure, err := normalizeEndpoint(tt.raw, tt.useSSL)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantURL, u)
			assert.Equal(t, tt.wantHost, host)
			assert.Equal(t, tt.wantSecure, secure)
		})
	}
}

func TestCopySource(t *testing.T) {
	assert.Equal(t, "bkt/a%20b/c~d.txt", copySource("bkt", "a b/c~d.txt"))
}
