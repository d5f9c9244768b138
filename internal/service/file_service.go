package service

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/andresuchdata/cloudpath/internal/bulk"
	"github.com/andresuchdata/cloudpath/internal/metrics"
	"github.com/andresuchdata/cloudpath/internal/plan"
	"github.com/andresuchdata/cloudpath/internal/storage"
	"github.com/andresuchdata/cloudpath/pkg/logger"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// FileService exposes the path-oriented operations of one backend. Missing
// objects are logged and reported as empty results, never as errors.
type FileService struct {
	backend storage.Backend
	journal bulk.Journal
	engine  *bulk.Engine
	log     zerolog.Logger
}

// New wraps backend. journal may be nil; when set, bulk plans are journaled
// and can be resumed. The journal may be shared, so Close leaves it open.
func New(backend storage.Backend, journal bulk.Journal) *FileService {
	return &FileService{
		backend: backend,
		journal: journal,
		engine:  bulk.NewEngine(backend, journal),
		log:     logger.With("service").With().Str("backend", backend.Name()).Logger(),
	}
}

func (s *FileService) Backend() string {
	return s.backend.Name()
}

func (s *FileService) Close() error {
	return s.backend.Close()
}

func (s *FileService) observe(op string, err error) {
	metrics.Operations.WithLabelValues(s.backend.Name(), op, metrics.Outcome(err)).Inc()
}

// swallowNotFound logs a missing object and clears the error.
func (s *FileService) swallowNotFound(err error, op, key string) error {
	if storage.IsNotFound(err) {
		s.log.Warn().Str("op", op).Str("key", key).Msg("not found")
		return nil
	}
	return err
}

// lookup resolves key to exactly one object, or nil when it does not exist.
func (s *FileService) lookup(ctx context.Context, key string) (*storage.RemoteObject, error) {
	objs, err := s.backend.Resolve(ctx, storage.Exact(key), nil)
	if err != nil || len(objs) == 0 {
		return nil, err
	}
	return &objs[0], nil
}

// CopyFile copies src to dst. A dst ending in a separator keeps src's name.
func (s *FileService) CopyFile(ctx context.Context, src, dst string) (obj *storage.RemoteObject, err error) {
	defer func() { s.observe("copy", err) }()

	from, err := s.lookup(ctx, src)
	if err != nil || from == nil {
		return nil, err
	}

	target := storage.ParseRef(dst)
	key := target.Path
	if target.IsPrefix() {
		key = storage.JoinPath(target.Path, from.Name)
	}

	copied, err := s.backend.CopyObject(ctx, *from, key)
	if err != nil {
		return nil, s.swallowNotFound(err, "copy", dst)
	}
	s.log.Info().Str("src", from.Key).Str("dst", copied.Key).Msg("copied file")
	return &copied, nil
}

// PushFile uploads a local file and returns its location.
func (s *FileService) PushFile(ctx context.Context, localPath, dst string) (loc string, err error) {
	defer func() { s.observe("push", err) }()

	f, err := os.Open(localPath)
	if err != nil {
		return "", errors.Wrapf(storage.ErrInvalidArgument, "open %s: %v", localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", errors.Wrap(err, "stat local file")
	}
	if info.IsDir() {
		return "", errors.Wrapf(storage.ErrInvalidArgument, "%s is a directory", localPath)
	}

	target := storage.ParseRef(dst)
	key := target.Path
	if target.IsPrefix() {
		key = storage.JoinPath(target.Path, filepath.Base(localPath))
	}

	loc, err = s.backend.Upload(ctx, key, f, info.Size())
	if err != nil {
		return "", s.swallowNotFound(err, "push", key)
	}
	s.log.Info().Str("src", localPath).Str("dst", key).Str("location", loc).Msg("pushed file")
	return loc, nil
}

// PullFile downloads src to localPath and returns the absolute path written.
// An existing directory receives the file under its remote name.
func (s *FileService) PullFile(ctx context.Context, src, localPath string) (out string, err error) {
	defer func() { s.observe("pull", err) }()

	obj, err := s.lookup(ctx, src)
	if err != nil || obj == nil {
		return "", err
	}

	target := localPath
	if info, statErr := os.Stat(localPath); statErr == nil && info.IsDir() {
		target = filepath.Join(localPath, obj.Name)
	}
	target, err = filepath.Abs(target)
	if err != nil {
		return "", errors.Wrap(err, "resolve local path")
	}

	rc, err := s.backend.Open(ctx, *obj)
	if err != nil {
		return "", s.swallowNotFound(err, "pull", src)
	}
	defer rc.Close()

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", errors.Wrap(err, "create local directory")
	}
	f, err := os.Create(target)
	if err != nil {
		return "", errors.Wrap(err, "create local file")
	}
	if _, err := io.Copy(f, rc); err != nil {
		f.Close()
		return "", errors.Wrapf(err, "download %s", src)
	}
	if err := f.Close(); err != nil {
		return "", errors.Wrap(err, "close local file")
	}

	s.log.Info().Str("src", obj.Key).Str("dst", target).Msg("pulled file")
	return target, nil
}

// StreamFile copies src's content into w and returns the object streamed.
func (s *FileService) StreamFile(ctx context.Context, src string, w io.Writer) (obj *storage.RemoteObject, err error) {
	defer func() { s.observe("stream", err) }()

	obj, err = s.lookup(ctx, src)
	if err != nil || obj == nil {
		return nil, err
	}

	rc, err := s.backend.Open(ctx, *obj)
	if err != nil {
		return nil, s.swallowNotFound(err, "stream", src)
	}
	defer rc.Close()

	if _, err := io.Copy(w, rc); err != nil {
		return nil, errors.Wrapf(err, "stream %s", src)
	}
	return obj, nil
}

// FileExists reports whether key names an object. Only transport or auth
// failures are errors.
func (s *FileService) FileExists(ctx context.Context, key string) (ok bool, err error) {
	defer func() { s.observe("exists", err) }()

	ok, err = s.backend.Exists(ctx, key)
	if err != nil {
		return false, s.swallowNotFound(err, "exists", key)
	}
	return ok, nil
}

// ListFiles lists everything under prefix that match accepts.
func (s *FileService) ListFiles(ctx context.Context, prefix string, match storage.Predicate) (objs []storage.RemoteObject, err error) {
	defer func() { s.observe("list", err) }()

	objs, err = s.backend.Resolve(ctx, storage.Prefix(prefix), match)
	if err != nil {
		return nil, s.swallowNotFound(err, "list", prefix)
	}
	return objs, nil
}

func (s *FileService) ListFolders(ctx context.Context, prefix string) (objs []storage.RemoteObject, err error) {
	defer func() { s.observe("folders", err) }()

	objs, err = s.backend.ListFolders(ctx, prefix)
	if err != nil {
		return nil, s.swallowNotFound(err, "folders", prefix)
	}
	return objs, nil
}

// AddTags replaces key's tag set.
func (s *FileService) AddTags(ctx context.Context, key string, tags storage.TagSet) (err error) {
	defer func() { s.observe("put-tags", err) }()

	tagger, ok := s.backend.(storage.Tagger)
	if !ok {
		return errors.Wrapf(storage.ErrUnsupported, "%s tags", s.backend.Name())
	}
	return s.swallowNotFound(tagger.PutTags(ctx, key, tags), "put-tags", key)
}

func (s *FileService) GetTags(ctx context.Context, key string) (tags storage.TagSet, err error) {
	defer func() { s.observe("get-tags", err) }()

	tagger, ok := s.backend.(storage.Tagger)
	if !ok {
		return nil, errors.Wrapf(storage.ErrUnsupported, "%s tags", s.backend.Name())
	}
	tags, err = tagger.GetTags(ctx, key)
	if err != nil {
		return nil, s.swallowNotFound(err, "get-tags", key)
	}
	return tags, nil
}

// RenameFile substitutes every occurrence of from with to in the keys under
// path (or in path itself when it names one object).
func (s *FileService) RenameFile(ctx context.Context, path, from, to string, dryRun bool) (p *plan.Plan, err error) {
	defer func() { s.observe("rename", err) }()
	return s.engine.Rename(ctx, storage.ParseRef(path), from, to, dryRun)
}

// MoveFile re-roots src under dst.
func (s *FileService) MoveFile(ctx context.Context, src, dst string, dryRun bool) (p *plan.Plan, err error) {
	defer func() { s.observe("move", err) }()
	return s.engine.Move(ctx, storage.ParseRef(src), storage.ParseRef(dst), dryRun)
}

// DeleteFile removes a single object.
func (s *FileService) DeleteFile(ctx context.Context, key string) error {
	return s.DeleteFiles(ctx, key)
}

// DeleteFiles removes the named objects. One key is a single delete; a
// sequence of keys always goes to the backend's bulk delete, even when only
// one of them resolves. Unknown keys are logged and skipped.
func (s *FileService) DeleteFiles(ctx context.Context, keys ...string) (err error) {
	defer func() { s.observe("delete", err) }()

	var objs []storage.RemoteObject
	for _, key := range keys {
		obj, err := s.lookup(ctx, key)
		if err != nil {
			return err
		}
		if obj == nil {
			continue
		}
		objs = append(objs, *obj)
	}

	switch {
	case len(objs) == 0:
		return nil
	case len(keys) == 1:
		err = s.backend.DeleteObject(ctx, objs[0])
	default:
		err = s.backend.DeleteObjects(ctx, objs)
	}
	if err != nil {
		return s.swallowNotFound(err, "delete", "")
	}
	s.log.Info().Int("count", len(objs)).Msg("deleted files")
	return nil
}

// Plans lists journaled plans, newest first.
func (s *FileService) Plans(ctx context.Context, limit int) ([]plan.Summary, error) {
	if s.journal == nil {
		return nil, bulk.ErrNoJournal
	}
	return s.journal.ListPlans(ctx, limit)
}

// Plan loads one journaled plan.
func (s *FileService) Plan(ctx context.Context, id string) (*plan.Plan, error) {
	if s.journal == nil {
		return nil, bulk.ErrNoJournal
	}
	return s.journal.GetPlan(ctx, id)
}

// ResumePlan finishes an interrupted or failed plan.
func (s *FileService) ResumePlan(ctx context.Context, id string) (p *plan.Plan, err error) {
	defer func() { s.observe("resume", err) }()
	return s.engine.Resume(ctx, id)
}
