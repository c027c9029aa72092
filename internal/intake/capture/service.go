package capture

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	commonerrors "claims-intake/internal/common/errors"
	"claims-intake/internal/common/logger"
	"claims-intake/internal/models"
)

// Uploader stores an evidence photo and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, key, contentType string, data []byte) (string, error)
}

// Service vets captured evidence photos and pushes them to object storage.
type Service struct {
	logger   logger.Logger
	uploader Uploader
	maxBytes int64
	now      func() time.Time
}

// NewService creates a capture service with the given size limit.
func NewService(log logger.Logger, uploader Uploader, maxBytes int64) *Service {
	return &Service{
		logger:   log,
		uploader: uploader,
		maxBytes: maxBytes,
		now:      time.Now,
	}
}

// Inspect checks that the payload is an acceptable evidence photo and
// returns the content type the upload should carry. The declared type wins
// when present; otherwise the content is sniffed.
func (s *Service) Inspect(fileName, declaredType string, data []byte) (string, *commonerrors.StandardError) {
	if int64(len(data)) > s.maxBytes {
		return "", commonerrors.NewEvidenceTooLargeError(int64(len(data)), s.maxBytes)
	}

	contentType := strings.TrimSpace(declaredType)
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	if !strings.HasPrefix(contentType, "image/") {
		return "", commonerrors.NewUnsupportedMediaTypeError(contentType)
	}

	return contentType, nil
}

// Store uploads a vetted photo under a timestamp-prefixed key and returns
// the metadata the rest of the intake works with.
func (s *Service) Store(ctx context.Context, fileName, contentType string, data []byte) (*models.UploadMetadata, *commonerrors.StandardError) {
	uploadedAt := s.now()
	key := fmt.Sprintf("%d-%s", uploadedAt.UnixMilli(), fileName)

	imageURL, err := s.uploader.Upload(ctx, key, contentType, data)
	if err != nil {
		s.logger.WithError(err).WithFields(map[string]interface{}{
			"storage_key": key,
			"size_bytes":  len(data),
		}).Error("Evidence upload failed", nil)
		return nil, commonerrors.NewStorageUploadError(err)
	}

	s.logger.WithFields(map[string]interface{}{
		"storage_key": key,
		"image_url":   imageURL,
	}).Info("Evidence photo stored", nil)

	return &models.UploadMetadata{
		ImageURL:    imageURL,
		StorageKey:  key,
		FileName:    fileName,
		ContentType: contentType,
		SizeBytes:   int64(len(data)),
		UploadedAt:  uploadedAt,
	}, nil
}
