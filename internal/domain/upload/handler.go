package upload

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"

	"portfolio/internal/pkg/response"
	"portfolio/internal/pkg/validator"
)

// Handler exposes the pipeline over HTTP.
type Handler struct {
	service *Service
	store   *DiskStore
}

func NewHandler(service *Service, store *DiskStore) *Handler {
	return &Handler{service: service, store: store}
}

// Upload handles POST /api/upload and POST /api/upload/:folder.
// The path parameter wins over a "folder" form field; without either the
// folder is inferred from the MIME type.
func (h *Handler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(c, ErrFileTooLarge)
			return
		}
		h.writeError(c, ErrNoFile)
		return
	}

	folder := c.Param("folder")
	if folder == "" {
		folder = c.PostForm("folder")
	}

	src, err := fileHeader.Open()
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to read uploaded file")
		return
	}
	defer src.Close()

	file, err := h.service.Upload(c.Request.Context(), Incoming{
		OriginalName: fileHeader.Filename,
		MimeType:     fileHeader.Header.Get("Content-Type"),
		Size:         fileHeader.Size,
		Folder:       folder,
		Content:      src,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, file)
}

// List returns a handler for GET /api/{table}. Newest first.
func (h *Handler) List(table string) gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := ListFilter{Folder: c.Query("folder")}
		if raw := c.Query("limit"); raw != "" {
			limit, err := strconv.Atoi(raw)
			if err != nil || limit < 0 {
				response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be a non-negative integer")
				return
			}
			filter.Limit = limit
		}

		files, err := h.service.List(c.Request.Context(), table, filter)
		if err != nil {
			h.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, files)
	}
}

// Get returns a handler for GET /api/{table}/:id.
func (h *Handler) Get(table string) gin.HandlerFunc {
	return func(c *gin.Context) {
		file, err := h.service.Get(c.Request.Context(), table, c.Param("id"))
		if err != nil {
			h.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, file)
	}
}

// UpdateMetadata returns a handler for PATCH /api/{table}/:id.
func (h *Handler) UpdateMetadata(table string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req MetadataUpdate
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid JSON body")
			return
		}
		if errs := validator.Validate(req); errs != nil {
			response.ErrorWithDetails(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid metadata", errs)
			return
		}

		file, err := h.service.UpdateMetadata(c.Request.Context(), table, c.Param("id"), req)
		if err != nil {
			h.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, file)
	}
}

// Delete returns a handler for DELETE /api/{table}/:id.
func (h *Handler) Delete(table string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := h.service.Delete(c.Request.Context(), table, c.Param("id")); err != nil {
			h.writeError(c, err)
			return
		}
		response.Message(c, http.StatusOK, "deleted")
	}
}

// Stats handles GET /api/stats.
func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}

	var files, bytes int64
	tables := make([]gin.H, 0, len(stats))
	for _, st := range stats {
		files += st.Files
		bytes += st.Bytes
		tables = append(tables, gin.H{
			"table":      st.Table,
			"files":      st.Files,
			"bytes":      st.Bytes,
			"bytesHuman": humanize.IBytes(uint64(st.Bytes)),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"tables":     tables,
		"files":      files,
		"bytes":      bytes,
		"bytesHuman": humanize.IBytes(uint64(bytes)),
	})
}

// Serve streams a stored file for GET/HEAD <prefix>/*filepath. No access
// control: anything under the storage root is public.
func (h *Handler) Serve(c *gin.Context) {
	rel := c.Param("filepath")
	if len(rel) > 0 && rel[0] == '/' {
		rel = rel[1:]
	}

	abs, _, err := h.store.Stat(rel)
	if err != nil {
		response.Error(c, http.StatusNotFound, "NOT_FOUND", "file not found")
		return
	}
	c.File(abs)
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNoFile), errors.Is(err, ErrEmptyFile),
		errors.Is(err, ErrInvalidFolder), errors.Is(err, ErrFolderNotAllowed),
		errors.Is(err, ErrNoChanges):
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	case errors.Is(err, ErrFileTooLarge):
		response.Error(c, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", err.Error())
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrUnknownTable):
		response.Error(c, http.StatusNotFound, "NOT_FOUND", "file not found")
	case errors.Is(err, ErrPathConflict):
		response.Error(c, http.StatusConflict, "PATH_CONFLICT", err.Error())
	case errors.Is(err, ErrPlacement):
		response.Error(c, http.StatusInternalServerError, "PLACEMENT_FAILED", "failed to store file")
	case errors.Is(err, ErrCatalogWrite):
		response.Error(c, http.StatusInternalServerError, "CATALOG_WRITE_FAILED", "failed to record file")
	default:
		_ = c.Error(err)
		response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}
