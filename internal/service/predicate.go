package service

import "github.com/andresuchdata/cloudpath/internal/storage"

// Filter is the user-facing form of a listing predicate.
type Filter struct {
	Contains string
	Regex    string
	Glob     string
}

// Predicate combines every non-empty filter field.
func (f Filter) Predicate() (storage.Predicate, error) {
	re, err := storage.Regex(f.Regex)
	if err != nil {
		return nil, err
	}
	glob, err := storage.Glob(f.Glob)
	if err != nil {
		return nil, err
	}
	return storage.And(storage.Contains(f.Contains), re, glob), nil
}
