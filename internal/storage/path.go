package storage

import "strings"

// SplitPath splits p on either separator so Windows and POSIX style paths
// resolve identically. Empty segments are dropped.
func SplitPath(p string) []string {
	return strings.FieldsFunc(p, isSeparator)
}

// NormalizePath rewrites p with forward slashes only, dropping empty
// segments. A trailing separator is not preserved.
func NormalizePath(p string) string {
	return strings.Join(SplitPath(p), "/")
}

// BaseName returns the last path segment of p.
func BaseName(p string) string {
	parts := SplitPath(p)
	if len(parts) == 0 {
		return ""
	}
	return parts[len(parts)-1]
}

// DirName returns everything but the last path segment of p.
func DirName(p string) string {
	parts := SplitPath(p)
	if len(parts) <= 1 {
		return ""
	}
	return strings.Join(parts[:len(parts)-1], "/")
}

// JoinPath joins dir and name with a single forward slash.
func JoinPath(dir, name string) string {
	dir = NormalizePath(dir)
	name = NormalizePath(name)
	switch {
	case dir == "":
		return name
	case name == "":
		return dir
	}
	return dir + "/" + name
}

// HasTrailingSeparator reports whether p ends in '/' or '\'.
func HasTrailingSeparator(p string) bool {
	return p != "" && isSeparator(rune(p[len(p)-1]))
}

func isSeparator(r rune) bool {
	return r == '/' || r == '\\'
}
