package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"mobius/internal/microservices/http-api/dto"
	"mobius/internal/microservices/http-api/service"
	"mobius/internal/progress"
)

// UploadHandler accepts model uploads from the browser form. The body is
// streamed part by part rather than buffered, so the size ceiling is enforced
// from Content-Length before any bytes are read.
type UploadHandler struct {
	uploadService service.UploadService
	bus           progress.Bus
	tmpDir        string
	maxBytes      int64
	log           *slog.Logger
}

func NewUploadHandler(uploadService service.UploadService, bus progress.Bus, tmpDir string, maxBytes int64, log *slog.Logger) *UploadHandler {
	return &UploadHandler{
		uploadService: uploadService,
		bus:           bus,
		tmpDir:        tmpDir,
		maxBytes:      maxBytes,
		log:           log,
	}
}

// Upload handles POST /upload. Multipart form: file part "fileID", text field
// "fileName". Responds with {"success":true,"model_id":N} on success and
// {"success":false,"model_id":-1} on any failure.
func (h *UploadHandler) Upload(c *gin.Context) {
	userID := c.GetString("userID")

	if err := h.uploadService.ValidateSize(c.Request.ContentLength); err != nil {
		status := http.StatusRequestEntityTooLarge
		if errors.Is(err, service.ErrEmptyFile) {
			status = http.StatusBadRequest
		}
		h.fail(c, status, err)
		return
	}

	reader, err := c.Request.MultipartReader()
	if err != nil {
		h.fail(c, http.StatusBadRequest, err)
		return
	}

	var (
		fileName string
		tmpPath  string
	)
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			h.fail(c, http.StatusBadRequest, err)
			return
		}

		switch part.FormName() {
		case "fileName":
			name, err := io.ReadAll(io.LimitReader(part, 256))
			if err != nil {
				h.fail(c, http.StatusBadRequest, err)
				return
			}
			fileName = string(name)
		case "fileID":
			if fileName == "" {
				fileName = part.FileName()
			}
			tmpPath, err = h.spool(c.Request.Context(), userID, part, c.Request.ContentLength)
			if err != nil {
				h.fail(c, http.StatusRequestEntityTooLarge, err)
				return
			}
		}
		part.Close()
	}

	if tmpPath == "" {
		h.fail(c, http.StatusBadRequest, errors.New("no file part in request"))
		return
	}
	defer os.Remove(tmpPath)

	if err := h.uploadService.ValidateFilename(fileName); err != nil {
		h.fail(c, http.StatusBadRequest, err)
		return
	}

	model, err := h.uploadService.SaveModel(c.Request.Context(), userID, fileName, tmpPath)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, service.ErrEmptyFile) {
			status = http.StatusBadRequest
		}
		h.fail(c, status, err)
		return
	}

	// The progress page treats 100 as terminal.
	if err := h.bus.Publish(c.Request.Context(), userID, progress.Update{Progress: 100}); err != nil {
		h.log.Warn("failed to publish final upload progress", "user", userID, "error", err)
	}

	c.JSON(http.StatusCreated, dto.UploadResponse{Success: true, ModelID: model.ID})
}

// spool streams the file part to a temp file, publishing percent progress as
// bytes arrive. Copy is capped one byte past the limit so an oversize body
// that lied in Content-Length is still caught.
func (h *UploadHandler) spool(ctx context.Context, userID string, part io.Reader, total int64) (string, error) {
	if err := os.MkdirAll(h.tmpDir, 0o755); err != nil {
		return "", err
	}
	tmpPath := filepath.Join(h.tmpDir, uuid.New().String())
	out, err := os.Create(tmpPath)
	if err != nil {
		return "", err
	}
	defer out.Close()

	var written int64
	lastPercent := -1
	buf := make([]byte, 32*1024)
	for {
		n, err := part.Read(buf)
		if n > 0 {
			written += int64(n)
			if written > h.maxBytes {
				os.Remove(tmpPath)
				return "", service.ErrFileTooLarge
			}
			if _, werr := out.Write(buf[:n]); werr != nil {
				os.Remove(tmpPath)
				return "", werr
			}
			if percent := int(written * 100 / total); percent != lastPercent {
				lastPercent = percent
				if perr := h.bus.Publish(ctx, userID, progress.Update{Progress: percent}); perr != nil {
					h.log.Warn("failed to publish upload progress", "user", userID, "error", perr)
				}
			}
		}
		if err == io.EOF {
			return tmpPath, nil
		}
		if err != nil {
			os.Remove(tmpPath)
			return "", err
		}
	}
}

func (h *UploadHandler) fail(c *gin.Context, status int, err error) {
	h.log.Warn("upload rejected", "status", status, "error", err)
	c.JSON(status, dto.UploadResponse{Success: false, ModelID: -1})
}
