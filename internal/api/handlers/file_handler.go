package handlers

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/andresuchdata/cloudpath/internal/service"
	"github.com/andresuchdata/cloudpath/internal/storage"
	"github.com/andresuchdata/cloudpath/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

type FileHandler struct {
	svc *service.FileService
	log zerolog.Logger
}

func NewFileHandler(svc *service.FileService) *FileHandler {
	return &FileHandler{
		svc: svc,
		log: logger.With("http").With().Str("backend", svc.Backend()).Logger(),
	}
}

// Register mounts the file routes on group.
func (h *FileHandler) Register(group *gin.RouterGroup) {
	group.GET("/files", h.ListFiles)
	group.DELETE("/files", h.DeleteFiles)
	group.GET("/folders", h.ListFolders)
	group.GET("/exists", h.Exists)
	group.GET("/tags", h.GetTags)
	group.PUT("/tags", h.PutTags)
	group.GET("/stream", h.Stream)
	group.POST("/push", h.Push)
	group.POST("/copy", h.Copy)
	group.POST("/rename", h.Rename)
	group.POST("/move", h.Move)
}

// ListFiles returns the objects under ?prefix, filtered by ?contains,
// ?regex and ?glob.
func (h *FileHandler) ListFiles(c *gin.Context) {
	match, err := service.Filter{
		Contains: c.Query("contains"),
		Regex:    c.Query("regex"),
		Glob:     c.Query("glob"),
	}.Predicate()
	if err != nil {
		respondError(c, err)
		return
	}

	objs, err := h.svc.ListFiles(c.Request.Context(), c.Query("prefix"), match)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(objs))
}

func (h *FileHandler) ListFolders(c *gin.Context) {
	objs, err := h.svc.ListFolders(c.Request.Context(), c.Query("prefix"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(objs))
}

func (h *FileHandler) Exists(c *gin.Context) {
	key := c.Query("key")
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "key is required"})
		return
	}
	ok, err := h.svc.FileExists(c.Request.Context(), key)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "exists": ok})
}

func (h *FileHandler) GetTags(c *gin.Context) {
	key := c.Query("key")
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "key is required"})
		return
	}
	tags, err := h.svc.GetTags(c.Request.Context(), key)
	if err != nil {
		respondError(c, err)
		return
	}
	if tags == nil {
		tags = storage.TagSet{}
	}
	c.JSON(http.StatusOK, tags)
}

type putTagsRequest struct {
	Key  string         `json:"key" binding:"required"`
	Tags storage.TagSet `json:"tags"`
}

func (h *FileHandler) PutTags(c *gin.Context) {
	var req putTagsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.svc.AddTags(c.Request.Context(), req.Key, req.Tags); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteFiles removes every ?key given.
func (h *FileHandler) DeleteFiles(c *gin.Context) {
	keys := c.QueryArray("key")
	if len(keys) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at least one key is required"})
		return
	}
	if err := h.svc.DeleteFiles(c.Request.Context(), keys...); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *FileHandler) Stream(c *gin.Context) {
	key := c.Query("key")
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "key is required"})
		return
	}

	c.Header("Content-Type", "application/octet-stream")
	obj, err := h.svc.StreamFile(c.Request.Context(), key, c.Writer)
	if err != nil {
		if c.Writer.Written() {
			h.log.Error().Err(err).Str("key", key).Msg("stream interrupted")
			return
		}
		respondError(c, err)
		return
	}
	if obj == nil {
		notFound(c, key)
	}
}

// Push accepts a multipart "file" and stores it at the "dst" form field.
func (h *FileHandler) Push(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	dst := c.PostForm("dst")

	dir, err := os.MkdirTemp("", "cloudpath-upload-")
	if err != nil {
		respondError(c, err)
		return
	}
	defer os.RemoveAll(dir)

	localPath := filepath.Join(dir, filepath.Base(file.Filename))
	if err := c.SaveUploadedFile(file, localPath); err != nil {
		h.log.Error().Err(err).Str("filename", file.Filename).Msg("failed to save uploaded file")
		respondError(c, err)
		return
	}

	loc, err := h.svc.PushFile(c.Request.Context(), localPath, dst)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"location": loc})
}

type copyRequest struct {
	Src string `json:"src" binding:"required"`
	Dst string `json:"dst" binding:"required"`
}

func (h *FileHandler) Copy(c *gin.Context) {
	var req copyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	obj, err := h.svc.CopyFile(c.Request.Context(), req.Src, req.Dst)
	if err != nil {
		respondError(c, err)
		return
	}
	if obj == nil {
		notFound(c, req.Src)
		return
	}
	c.JSON(http.StatusOK, obj)
}

type renameRequest struct {
	Path   string `json:"path"`
	From   string `json:"from" binding:"required"`
	To     string `json:"to"`
	DryRun bool   `json:"dryRun"`
}

func (h *FileHandler) Rename(c *gin.Context) {
	var req renameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := h.svc.RenameFile(c.Request.Context(), req.Path, req.From, req.To, req.DryRun)
	respondPlan(c, p, err)
}

type moveRequest struct {
	Src    string `json:"src"`
	Dst    string `json:"dst"`
	DryRun bool   `json:"dryRun"`
}

func (h *FileHandler) Move(c *gin.Context) {
	var req moveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := h.svc.MoveFile(c.Request.Context(), req.Src, req.Dst, req.DryRun)
	respondPlan(c, p, err)
}

func nonNil(objs []storage.RemoteObject) []storage.RemoteObject {
	if objs == nil {
		return []storage.RemoteObject{}
	}
	return objs
}
