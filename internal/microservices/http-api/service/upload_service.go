package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gorm.io/gorm"

	"mobius/internal/microservices/http-api/models"
	"mobius/internal/microservices/http-api/repository"
)

var (
	ErrFilenameRequired = errors.New("filename is required")
	ErrFilenameTooLong  = errors.New("filename is too long")
	ErrFileTooLarge     = errors.New("file exceeds the upload size limit")
	ErrEmptyFile        = errors.New("file is empty")
	ErrModelNotFound    = errors.New("model not found")
)

// UploadService stores uploaded 3D models.
type UploadService interface {
	// ValidateFilename applies the same rules the upload form shows inline.
	ValidateFilename(name string) error
	// ValidateSize rejects an upload before any bytes are read.
	ValidateSize(contentLength int64) error
	// SaveModel reads the spooled upload at path into the database and
	// removes the temp file. Returns the stored model.
	SaveModel(ctx context.Context, userID, filename, path string) (*models.Model, error)
	ListModels(ctx context.Context, userID string) ([]models.Model, error)
	// DeleteModel removes the user's model. A model owned by someone else is
	// reported as missing so ids cannot be probed.
	DeleteModel(ctx context.Context, userID string, id int64) error
}

type uploadService struct {
	modelRepo      repository.ModelRepository
	maxFilenameLen int
	maxUploadBytes int64
	log            *slog.Logger
}

func NewUploadService(modelRepo repository.ModelRepository, maxFilenameLen int, maxUploadBytes int64, log *slog.Logger) UploadService {
	return &uploadService{
		modelRepo:      modelRepo,
		maxFilenameLen: maxFilenameLen,
		maxUploadBytes: maxUploadBytes,
		log:            log,
	}
}

func (s *uploadService) ValidateFilename(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrFilenameRequired
	}
	if len(name) > s.maxFilenameLen {
		return fmt.Errorf("%w: %d characters, limit is %d", ErrFilenameTooLong, len(name), s.maxFilenameLen)
	}
	return nil
}

func (s *uploadService) ValidateSize(contentLength int64) error {
	if contentLength <= 0 {
		return ErrEmptyFile
	}
	if contentLength > s.maxUploadBytes {
		return fmt.Errorf("%w: %d bytes, limit is %d", ErrFileTooLarge, contentLength, s.maxUploadBytes)
	}
	return nil
}

func (s *uploadService) SaveModel(ctx context.Context, userID, filename, path string) (*models.Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read uploaded file: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}

	model := &models.Model{
		UserID: userID,
		Name:   filename,
		Data:   data,
		Size:   int64(len(data)),
	}
	if err := s.modelRepo.Create(ctx, model); err != nil {
		return nil, err
	}

	if err := os.Remove(path); err != nil {
		s.log.Error("unable to delete spooled upload", "path", path, "error", err)
	}

	s.log.Debug("model saved", "model", model.ID, "user", userID, "name", filename)
	return model, nil
}

func (s *uploadService) ListModels(ctx context.Context, userID string) ([]models.Model, error) {
	return s.modelRepo.ListByUser(ctx, userID)
}

func (s *uploadService) DeleteModel(ctx context.Context, userID string, id int64) error {
	model, err := s.modelRepo.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrModelNotFound
	}
	if err != nil {
		return err
	}
	if model.UserID != userID {
		return ErrModelNotFound
	}

	if err := s.modelRepo.Delete(ctx, id); err != nil {
		return err
	}
	s.log.Debug("model deleted", "model", id, "user", userID)
	return nil
}
