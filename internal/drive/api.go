package drive

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/andresuchdata/cloudpath/internal/storage"
	"github.com/pkg/errors"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
)

const (
	folderMimeType = "application/vnd.google-apps.folder"
	// nativePrefix marks Google Docs/Sheets/Slides, which have no binary
	// content and must be exported.
	nativePrefix = "application/vnd.google-apps."
	exportMime   = "application/pdf"

	listFields = "nextPageToken, files(id, name, mimeType, modifiedTime, size, parents)"
	fileFields = "id, name, mimeType, modifiedTime, size, parents, webViewLink"
)

// Query selects the children of one folder.
type Query struct {
	Parent      string
	Name        string
	FoldersOnly bool
}

// String renders q in the Drive search syntax.
func (q Query) String() string {
	parts := []string{
		fmt.Sprintf("'%s' in parents", escape(q.Parent)),
		"trashed=false",
	}
	if q.Name != "" {
		parts = append(parts, fmt.Sprintf("name='%s'", escape(q.Name)))
	}
	if q.FoldersOnly {
		parts = append(parts, fmt.Sprintf("mimeType='%s'", folderMimeType))
	}
	return strings.Join(parts, " and ")
}

func escape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

// API is the slice of the Drive v3 files resource the backend uses.
// Implementations return storage.ErrNotFound (possibly wrapped) on 404.
type API interface {
	List(ctx context.Context, q Query) ([]*drive.File, error)
	Copy(ctx context.Context, fileID string, meta *drive.File) (*drive.File, error)
	Delete(ctx context.Context, fileID string) error
	Create(ctx context.Context, meta *drive.File, media io.Reader) (*drive.File, error)
	Download(ctx context.Context, fileID string) (io.ReadCloser, error)
	Export(ctx context.Context, fileID, mimeType string) (io.ReadCloser, error)
}

type serviceAPI struct {
	srv *drive.Service
}

// NewAPI adapts a Drive client to API.
func NewAPI(srv *drive.Service) API {
	return &serviceAPI{srv: srv}
}

func (a *serviceAPI) List(ctx context.Context, q Query) ([]*drive.File, error) {
	var files []*drive.File
	err := a.srv.Files.List().
		Q(q.String()).
		Fields(listFields).
		PageSize(1000).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Pages(ctx, func(page *drive.FileList) error {
			files = append(files, page.Files...)
			return nil
		})
	if err != nil {
		return nil, driveErr(err)
	}
	return files, nil
}

func (a *serviceAPI) Copy(ctx context.Context, fileID string, meta *drive.File) (*drive.File, error) {
	f, err := a.srv.Files.Copy(fileID, meta).
		Context(ctx).
		Fields(fileFields).
		SupportsAllDrives(true).
		Do()
	return f, driveErr(err)
}

func (a *serviceAPI) Delete(ctx context.Context, fileID string) error {
	return driveErr(a.srv.Files.Delete(fileID).Context(ctx).SupportsAllDrives(true).Do())
}

func (a *serviceAPI) Create(ctx context.Context, meta *drive.File, media io.Reader) (*drive.File, error) {
	f, err := a.srv.Files.Create(meta).
		Media(media).
		Context(ctx).
		Fields(fileFields).
		SupportsAllDrives(true).
		Do()
	return f, driveErr(err)
}

func (a *serviceAPI) Download(ctx context.Context, fileID string) (io.ReadCloser, error) {
	resp, err := a.srv.Files.Get(fileID).Context(ctx).SupportsAllDrives(true).Download()
	if err != nil {
		return nil, driveErr(err)
	}
	return resp.Body, nil
}

func (a *serviceAPI) Export(ctx context.Context, fileID, mimeType string) (io.ReadCloser, error) {
	resp, err := a.srv.Files.Export(fileID, mimeType).Context(ctx).Download()
	if err != nil {
		return nil, driveErr(err)
	}
	return resp.Body, nil
}

func driveErr(err error) error {
	if err == nil {
		return nil
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusNotFound {
		return errors.Wrap(storage.ErrNotFound, gerr.Message)
	}
	return err
}
