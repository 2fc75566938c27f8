package handlers

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/orrn/taskprinter/internal/assets"
	"github.com/orrn/taskprinter/internal/core"
)

// multipartOverhead is the room left for multipart headers and boundaries
// above the configured file size limit.
const multipartOverhead = 64 << 10

// UploadResponse names the stored file. Use Name as the flair_value of an
// image flair.
type UploadResponse struct {
	Name      string `json:"name"`
	FlairType string `json:"flair_type"`
	Size      int64  `json:"size"`
}

type UploadHandler struct {
	config core.ConfigSource
	logger *slog.Logger
}

func NewUploadHandler(source core.ConfigSource, logger *slog.Logger) *UploadHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &UploadHandler{config: source, logger: logger}
}

// UploadImage stores the multipart "file" field in the uploads directory
// under a generated name.
func (h *UploadHandler) UploadImage(c *gin.Context) {
	cfg, err := h.config()
	if err != nil {
		h.logger.Error("failed to load config", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "config_error", Message: "Failed to load configuration"})
		return
	}
	limit := cfg.Limits.MaxUploadSize

	if c.Request.ContentLength > limit+multipartOverhead {
		respondTooLarge(c, limit)
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+multipartOverhead)

	file, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondTooLarge(c, limit)
			return
		}
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "missing_file", Message: "A multipart field named file is required"})
		return
	}
	if file.Size > limit {
		respondTooLarge(c, limit)
		return
	}

	name, err := assets.UploadName(file.Filename)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "unsupported_type", Message: "Upload must be one of: png, jpg, jpeg, gif, bmp"})
		return
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_image", Message: "Failed to read upload"})
		return
	}
	_, _, err = image.DecodeConfig(src)
	src.Close()
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_image", Message: "File is not a readable image"})
		return
	}

	if err := os.MkdirAll(cfg.Uploads.Dir, 0o755); err != nil {
		h.logger.Error("failed to create uploads dir", "dir", cfg.Uploads.Dir, "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "storage_error", Message: "Failed to store upload"})
		return
	}
	if err := c.SaveUploadedFile(file, filepath.Join(cfg.Uploads.Dir, name)); err != nil {
		h.logger.Error("failed to save upload", "name", name, "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "storage_error", Message: "Failed to store upload"})
		return
	}

	h.logger.Info("image uploaded", "name", name, "size", file.Size)
	c.JSON(http.StatusCreated, UploadResponse{Name: name, FlairType: "image", Size: file.Size})
}

func respondTooLarge(c *gin.Context, limit int64) {
	c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{
		Error:   "file_too_large",
		Message: fmt.Sprintf("Uploads are limited to %d bytes", limit),
	})
}

func RegisterUploadRoutes(r *gin.RouterGroup, h *UploadHandler) {
	r.POST("/uploads", h.UploadImage)
}
