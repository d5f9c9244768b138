package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPathHelpers(t *testing.T) {
	tests := []struct {
		in, norm, base, dir string
	}{
		{in: "docs/report.pdf", norm: "docs/report.pdf", base: "report.pdf", dir: "docs"},
		{in: `docs\sub\report.pdf`, norm: "docs/sub/report.pdf", base: "report.pdf", dir: "docs/sub"},
		{in: "/docs//report.pdf", norm: "docs/report.pdf", base: "report.pdf", dir: "docs"},
		{in: "docs/", norm: "docs", base: "docs", dir: ""},
		{in: "report.pdf", norm: "report.pdf", base: "report.pdf", dir: ""},
		{in: "", norm: "", base: "", dir: ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.norm, NormalizePath(tt.in))
			assert.Equal(t, tt.base, BaseName(tt.in))
			assert.Equal(t, tt.dir, DirName(tt.in))
		})
	}
}

func TestJoinPath(t *testing.T) {
	assert.Equal(t, "archive/report.pdf", JoinPath("archive/", "report.pdf"))
	assert.Equal(t, "archive/sub/report.pdf", JoinPath(`archive\`, "sub/report.pdf"))
	assert.Equal(t, "report.pdf", JoinPath("", "report.pdf"))
	assert.Equal(t, "archive", JoinPath("archive", ""))
}

func TestHasTrailingSeparator(t *testing.T) {
	assert.True(t, HasTrailingSeparator("docs/"))
	assert.True(t, HasTrailingSeparator(`docs\`))
	assert.False(t, HasTrailingSeparator("docs"))
	assert.False(t, HasTrailingSeparator(""))
}

func TestParseRef(t *testing.T) {
	tests := []struct {
		in   string
		kind RefKind
		path string
	}{
		{in: "docs/report.pdf", kind: RefExact, path: "docs/report.pdf"},
		{in: "docs/", kind: RefPrefix, path: "docs"},
		{in: `docs\old\`, kind: RefPrefix, path: "docs/old"},
		{in: "", kind: RefPrefix, path: ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			ref := ParseRef(tt.in)
			assert.Equal(t, tt.kind, ref.Kind)
			assert.Equal(t, tt.path, ref.Path)
		})
	}

	assert.Equal(t, RefPrefix, RefOf("prefix", "docs").Kind)
	assert.Equal(t, RefExact, RefOf("exact", "docs/").Kind)
	assert.Equal(t, RefPrefix, RefOf("", "docs/").Kind)

	obj := RemoteObject{Key: "docs/a.txt", Name: "a.txt"}
	ref := Object(obj)
	assert.Equal(t, RefObject, ref.Kind)
	assert.Equal(t, "docs/a.txt", ref.String())
	assert.Equal(t, "docs/", Prefix("docs").String())
	assert.Equal(t, "prefix", RefPrefix.String())
}
