package drive

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/andresuchdata/cloudpath/internal/storage"
	"github.com/gorilla/mux"
)

// Handler serves read-only folder browsing for a Drive backend.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Router returns a mux router serving the browse routes under prefix.
func (h *Handler) Router(prefix string) *mux.Router {
	router := mux.NewRouter()
	h.RegisterRoutes(router.PathPrefix(prefix).Subrouter())
	return router
}

func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/files", h.ListFiles).Methods("GET")
	router.HandleFunc("/folders", h.ListFolders).Methods("GET")
	router.HandleFunc("/download", h.DownloadFile).Methods("GET")
}

func (h *Handler) ListFiles(w http.ResponseWriter, r *http.Request) {
	files, err := h.service.Resolve(r.Context(), storage.Prefix(r.URL.Query().Get("path")), nil)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, nonNil(files))
}

func (h *Handler) ListFolders(w http.ResponseWriter, r *http.Request) {
	folders, err := h.service.ListFolders(r.Context(), r.URL.Query().Get("path"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, nonNil(folders))
}

func (h *Handler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		http.Error(w, "path parameter is required", http.StatusBadRequest)
		return
	}

	objs, err := h.service.Resolve(r.Context(), storage.Exact(path), nil)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	if len(objs) == 0 {
		http.Error(w, fmt.Sprintf("file not found: %s", path), http.StatusNotFound)
		return
	}

	obj := objs[0]
	rc, err := h.service.Open(r.Context(), obj)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	defer rc.Close()

	contentType := obj.MimeType
	switch {
	case strings.HasPrefix(contentType, nativePrefix):
		contentType = exportMime
	case contentType == "":
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", obj.Name))
	_, _ = io.Copy(w, rc)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func nonNil(objs []storage.RemoteObject) []storage.RemoteObject {
	if objs == nil {
		return []storage.RemoteObject{}
	}
	return objs
}
