package storage

import "fmt"

// RefKind says how a PathRef should be resolved.
type RefKind int

const (
	// RefExact names a single object by its full path.
	RefExact RefKind = iota
	// RefPrefix names a directory-like grouping of objects.
	RefPrefix
	// RefObject carries an already resolved object; resolving it needs no
	// remote call.
	RefObject
)

func (k RefKind) String() string {
	switch k {
	case RefExact:
		return "exact"
	case RefPrefix:
		return "prefix"
	case RefObject:
		return "object"
	}
	return fmt.Sprintf("RefKind(%d)", int(k))
}

// PathRef is a caller's statement of intent: one object, a prefix, or a
// descriptor it already holds.
type PathRef struct {
	Kind   RefKind
	Path   string
	Object *RemoteObject
}

// Exact refers to the single object at key.
func Exact(key string) PathRef {
	return PathRef{Kind: RefExact, Path: NormalizePath(key)}
}

// Prefix refers to every object under p.
func Prefix(p string) PathRef {
	return PathRef{Kind: RefPrefix, Path: NormalizePath(p)}
}

// Object wraps a resolved descriptor.
func Object(obj RemoteObject) PathRef {
	return PathRef{Kind: RefObject, Path: obj.Key, Object: &obj}
}

// ParseRef maps user input onto a PathRef: a trailing separator (or an
// empty path, meaning the root) makes it a prefix, anything else is exact.
func ParseRef(s string) PathRef {
	if s == "" || HasTrailingSeparator(s) {
		return Prefix(s)
	}
	return Exact(s)
}

// RefOf builds a PathRef from an explicit kind name ("exact", "prefix") and
// falls back to ParseRef for anything else.
func RefOf(kind, p string) PathRef {
	switch kind {
	case "exact", "file":
		return Exact(p)
	case "prefix", "dir":
		return Prefix(p)
	}
	return ParseRef(p)
}

func (r PathRef) IsPrefix() bool {
	return r.Kind == RefPrefix
}

func (r PathRef) String() string {
	if r.Kind == RefPrefix && r.Path != "" {
		return r.Path + "/"
	}
	return r.Path
}
