package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPredicates(t *testing.T) {
	glob, err := Glob("docs/**/*.pdf")
	require.NoError(t, err)
	re, err := Regex(`^docs/`)
	require.NoError(t, err)

	tests := []struct {
		name string
		pred Predicate
		key  string
		want bool
	}{
		{"nil matches", All(), "anything", true},
		{"contains", Contains("~"), "docs/a~b.txt", true},
		{"contains miss", Contains("~"), "docs/ab.txt", false},
		{"empty contains matches", Contains(""), "x", true},
		{"glob nested", glob, "docs/2024/q1/report.pdf", true},
		{"glob direct", glob, "docs/report.pdf", true},
		{"glob other ext", glob, "docs/report.txt", false},
		{"regex", re, "docs/x", true},
		{"regex miss", re, "mydocs/x", false},
		{"and", And(Contains("q1"), glob), "docs/q1/report.pdf", true},
		{"and miss", And(Contains("q2"), glob), "docs/q1/report.pdf", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.pred.Match(tt.key))
		})
	}
}

func TestBadPatterns(t *testing.T) {
	_, err := Regex("(")
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = Glob("docs/[")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	p, err := Glob("")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestFilter(t *testing.T) {
	objs := []RemoteObject{{Key: "a/1.txt"}, {Key: "b/2.txt"}, {Key: "a/3.pdf"}}
	assert.Equal(t, objs, Filter(objs, nil))
	assert.Equal(t, []RemoteObject{{Key: "a/1.txt"}, {Key: "a/3.pdf"}}, Filter(objs, Contains("a/")))
	assert.Empty(t, Filter(objs, Contains("zzz")))
}
