package storage

import (
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"
)

// Predicate filters a listing on the object key. A nil Predicate matches
// everything.
type Predicate func(key string) bool

// Match applies p, treating nil as match-all.
func (p Predicate) Match(key string) bool {
	return p == nil || p(key)
}

// All matches every key.
func All() Predicate {
	return nil
}

// Contains matches keys holding s as a literal substring.
func Contains(s string) Predicate {
	if s == "" {
		return nil
	}
	return func(key string) bool {
		return strings.Contains(key, s)
	}
}

// Regex matches keys against expr anywhere in the key.
func Regex(expr string) (Predicate, error) {
	if expr == "" {
		return nil, nil
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidArgument, "bad pattern %q: %v", expr, err)
	}
	return re.MatchString, nil
}

// Glob matches the whole key against a doublestar pattern such as
// "docs/**/*.pdf".
func Glob(pattern string) (Predicate, error) {
	if pattern == "" {
		return nil, nil
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, errors.Wrapf(ErrInvalidArgument, "bad glob %q", pattern)
	}
	return func(key string) bool {
		ok, _ := doublestar.Match(pattern, key)
		return ok
	}, nil
}

// And matches when every non-nil predicate matches.
func And(preds ...Predicate) Predicate {
	var active []Predicate
	for _, p := range preds {
		if p != nil {
			active = append(active, p)
		}
	}
	switch len(active) {
	case 0:
		return nil
	case 1:
		return active[0]
	}
	return func(key string) bool {
		for _, p := range active {
			if !p(key) {
				return false
			}
		}
		return true
	}
}

// Filter keeps the objects whose key matches p, preserving order.
func Filter(objs []RemoteObject, p Predicate) []RemoteObject {
	if p == nil {
		return objs
	}
	out := make([]RemoteObject, 0, len(objs))
	for _, o := range objs {
		if p(o.Key) {
			out = append(out, o)
		}
	}
	return out
}
