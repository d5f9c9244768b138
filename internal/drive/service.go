package drive

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/andresuchdata/cloudpath/internal/config"
	"github.com/andresuchdata/cloudpath/internal/storage"
	"github.com/andresuchdata/cloudpath/pkg/logger"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/sync/singleflight"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

const backendName = "drive"

// Service is the Google Drive backend. Paths are "folder/name": the folder
// is looked up by name directly under the root folder, one level deep.
type Service struct {
	api    API
	root   string
	tokens oauth2.TokenSource
	group  singleflight.Group
	log    zerolog.Logger
}

func NewService(ctx context.Context, cfg config.DriveConfig) (*Service, error) {
	creds, err := cfg.Credentials()
	if err != nil {
		return nil, err
	}

	jwt, err := google.JWTConfigFromJSON(creds, drive.DriveScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse service account key: %w", err)
	}

	tokens := oauth2.ReuseTokenSource(nil, jwt.TokenSource(ctx))
	srv, err := drive.NewService(ctx, option.WithHTTPClient(oauth2.NewClient(ctx, tokens)))
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve Drive client: %w", err)
	}

	return NewWithAPI(NewAPI(srv), cfg.RootFolder, tokens), nil
}

// NewWithAPI builds a Service over api. tokens may be nil, which skips the
// access check.
func NewWithAPI(api API, rootFolder string, tokens oauth2.TokenSource) *Service {
	if rootFolder == "" {
		rootFolder = "root"
	}
	return &Service{
		api:    api,
		root:   rootFolder,
		tokens: tokens,
		log:    logger.With("drive").With().Str("root", rootFolder).Logger(),
	}
}

func (s *Service) Name() string {
	return backendName
}

// checkAccess makes sure a valid token can be obtained before a call.
func (s *Service) checkAccess() error {
	if s.tokens == nil {
		return nil
	}
	if _, err := s.tokens.Token(); err != nil {
		return storage.WrapBackend(backendName, "auth", "", err)
	}
	return nil
}

// folderID maps a directory path to a folder id. Only the last segment is
// looked up, among the folders directly under the root.
func (s *Service) folderID(ctx context.Context, dir string) (string, error) {
	name := storage.BaseName(dir)
	if name == "" {
		return s.root, nil
	}

	v, err, _ := s.group.Do(name, func() (interface{}, error) {
		folders, err := s.api.List(ctx, Query{Parent: s.root, Name: name, FoldersOnly: true})
		if err != nil {
			return "", storage.WrapBackend(backendName, "find-folder", dir, err)
		}
		if len(folders) == 0 {
			return "", errors.Wrapf(storage.ErrNotFound, "folder %s", dir)
		}
		return folders[0].Id, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// children lists the entries of dir, optionally only those named name.
func (s *Service) children(ctx context.Context, dir, name string, foldersOnly bool) ([]storage.RemoteObject, error) {
	id, err := s.folderID(ctx, dir)
	if err != nil {
		return nil, err
	}
	files, err := s.api.List(ctx, Query{Parent: id, Name: name, FoldersOnly: foldersOnly})
	if err != nil {
		return nil, storage.WrapBackend(backendName, "list", dir, err)
	}
	objs := make([]storage.RemoteObject, 0, len(files))
	for _, f := range files {
		if name != "" && f.Name != name {
			continue
		}
		objs = append(objs, toObject(dir, f))
	}
	return objs, nil
}

func (s *Service) Resolve(ctx context.Context, ref storage.PathRef, match storage.Predicate) ([]storage.RemoteObject, error) {
	if ref.Kind == storage.RefObject {
		return []storage.RemoteObject{*ref.Object}, nil
	}
	if err := s.checkAccess(); err != nil {
		return nil, err
	}

	var (
		objs []storage.RemoteObject
		err  error
	)
	if ref.Kind == storage.RefExact {
		objs, err = s.children(ctx, storage.DirName(ref.Path), storage.BaseName(ref.Path), false)
	} else {
		objs, err = s.children(ctx, ref.Path, "", false)
	}
	if err != nil {
		if storage.IsNotFound(err) {
			s.log.Warn().Str("path", ref.String()).Msg("folder not found")
			return nil, nil
		}
		return nil, err
	}

	objs = storage.Filter(objs, match)
	if len(objs) == 0 {
		s.log.Warn().Str("path", ref.String()).Msg("file not found")
	}
	return objs, nil
}

func (s *Service) ListFolders(ctx context.Context, prefix string) ([]storage.RemoteObject, error) {
	if err := s.checkAccess(); err != nil {
		return nil, err
	}
	folders, err := s.children(ctx, storage.NormalizePath(prefix), "", true)
	if err != nil {
		if storage.IsNotFound(err) {
			s.log.Warn().Str("prefix", prefix).Msg("folder not found")
			return nil, nil
		}
		return nil, err
	}
	return folders, nil
}

// CopyObject copies src into the folder named by dstKey's directory, under
// dstKey's base name.
func (s *Service) CopyObject(ctx context.Context, src storage.RemoteObject, dstKey string) (storage.RemoteObject, error) {
	if err := s.checkAccess(); err != nil {
		return storage.RemoteObject{}, err
	}
	dstKey = storage.NormalizePath(dstKey)
	dir := storage.DirName(dstKey)

	parent, err := s.folderID(ctx, dir)
	if err != nil {
		return storage.RemoteObject{}, storage.WrapBackend(backendName, "copy", src.Key, err)
	}

	f, err := s.api.Copy(ctx, src.BackendID, &drive.File{
		Name:    storage.BaseName(dstKey),
		Parents: []string{parent},
	})
	if err != nil {
		return storage.RemoteObject{}, storage.WrapBackend(backendName, "copy", src.Key, err)
	}
	s.log.Debug().Str("src", src.Key).Str("dst", dstKey).Str("id", f.Id).Msg("copied file")
	return toObject(dir, f), nil
}

func (s *Service) DeleteObject(ctx context.Context, obj storage.RemoteObject) error {
	if err := s.checkAccess(); err != nil {
		return err
	}
	if err := s.api.Delete(ctx, obj.BackendID); err != nil {
		if storage.IsNotFound(err) {
			s.log.Warn().Str("key", obj.Key).Str("id", obj.BackendID).Msg("file already deleted")
			return nil
		}
		return storage.WrapBackend(backendName, "delete", obj.Key, err)
	}
	return nil
}

// DeleteObjects deletes one file at a time; Drive has no batch delete.
// A failure after the first delete is a *storage.PartialDeleteError.
func (s *Service) DeleteObjects(ctx context.Context, objs []storage.RemoteObject) error {
	deleted := make([]string, 0, len(objs))
	for _, obj := range objs {
		err := ctx.Err()
		if err == nil {
			err = s.DeleteObject(ctx, obj)
		}
		if err != nil {
			if len(deleted) == 0 {
				return err
			}
			return &storage.PartialDeleteError{Deleted: deleted, Err: err}
		}
		deleted = append(deleted, obj.Key)
	}
	return nil
}

// Upload creates a new file and returns its web link, or its id when Drive
// does not provide one.
func (s *Service) Upload(ctx context.Context, key string, r io.Reader, _ int64) (string, error) {
	if err := s.checkAccess(); err != nil {
		return "", err
	}
	key = storage.NormalizePath(key)

	parent, err := s.folderID(ctx, storage.DirName(key))
	if err != nil {
		return "", storage.WrapBackend(backendName, "create", key, err)
	}

	f, err := s.api.Create(ctx, &drive.File{
		Name:    storage.BaseName(key),
		Parents: []string{parent},
	}, r)
	if err != nil {
		return "", storage.WrapBackend(backendName, "create", key, err)
	}
	if f.WebViewLink != "" {
		return f.WebViewLink, nil
	}
	return f.Id, nil
}

// Open downloads obj. Google-native documents are exported as PDF.
func (s *Service) Open(ctx context.Context, obj storage.RemoteObject) (io.ReadCloser, error) {
	if obj.IsFolder() {
		return nil, errors.Wrapf(storage.ErrInvalidArgument, "%s is a folder", obj.Key)
	}
	if err := s.checkAccess(); err != nil {
		return nil, err
	}

	var (
		rc  io.ReadCloser
		err error
	)
	if strings.HasPrefix(obj.MimeType, nativePrefix) {
		rc, err = s.api.Export(ctx, obj.BackendID, exportMime)
	} else {
		rc, err = s.api.Download(ctx, obj.BackendID)
	}
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, err
		}
		return nil, storage.WrapBackend(backendName, "download", obj.Key, err)
	}
	return rc, nil
}

func (s *Service) Exists(ctx context.Context, key string) (bool, error) {
	objs, err := s.Resolve(ctx, storage.Exact(key), nil)
	if err != nil {
		return false, err
	}
	return len(objs) > 0, nil
}

func (s *Service) Close() error {
	return nil
}

func toObject(dir string, f *drive.File) storage.RemoteObject {
	kind := storage.KindFile
	if f.MimeType == folderMimeType {
		kind = storage.KindFolder
	}
	modified, _ := time.Parse(time.RFC3339, f.ModifiedTime)
	return storage.RemoteObject{
		Key:        storage.JoinPath(dir, f.Name),
		Name:       f.Name,
		Kind:       kind,
		BackendID:  f.Id,
		Size:       f.Size,
		MimeType:   f.MimeType,
		ModifiedAt: modified,
	}
}

var _ storage.Backend = (*Service)(nil)
