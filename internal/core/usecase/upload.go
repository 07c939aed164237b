package usecase

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/notarization-api/internal/core/domain"
	"github.com/kirillkom/notarization-api/internal/core/ports"
)

// FileUploader validates in-memory uploads and pushes them to blob storage.
type FileUploader struct {
	storage   ports.BlobStorage
	inspector ports.FileInspector
}

func NewFileUploader(storage ports.BlobStorage, inspector ports.FileInspector) *FileUploader {
	return &FileUploader{
		storage:   storage,
		inspector: inspector,
	}
}

func (u *FileUploader) Store(ctx context.Context, prefix string, uploads []domain.Upload) ([]domain.File, error) {
	const op = "store uploads"
	if len(uploads) == 0 {
		return nil, domain.Errorf(domain.ErrInvalidInput, op, "at least one file is required")
	}
	if len(uploads) > domain.MaxUploadFilesPerCall {
		return nil, domain.Errorf(domain.ErrInvalidInput, op, "at most %d files per request", domain.MaxUploadFilesPerCall)
	}

	for _, up := range uploads {
		if err := domain.ValidateUploadHeader(up.Filename, up.ContentType, up.Size()); err != nil {
			return nil, err
		}
		if up.IsPDF() && u.inspector != nil {
			if err := u.inspector.Inspect(ctx, up); err != nil {
				return nil, err
			}
		}
	}

	files := make([]domain.File, 0, len(uploads))
	for _, up := range uploads {
		key := fmt.Sprintf("%s/%s_%s", strings.Trim(prefix, "/"), uuid.NewString(), sanitizeFilename(up.Filename))
		contentType := domain.CanonicalContentType(up.Filename)

		url, err := u.storage.Save(ctx, key, contentType, bytes.NewReader(up.Data), up.Size())
		if err != nil {
			return nil, fmt.Errorf("save %s to blob storage: %w", up.Filename, err)
		}
		files = append(files, domain.File{
			Filename:    filepath.Base(up.Filename),
			StorageURL:  url,
			ContentType: contentType,
			Size:        up.Size(),
			CreatedAt:   time.Now().UTC(),
		})
	}
	return files, nil
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." {
		return "file.bin"
	}
	return base
}
