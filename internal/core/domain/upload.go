package domain

import (
	"path/filepath"
	"strings"
)

const (
	MaxUploadFileSize     int64 = 5 << 20
	MaxUploadFilesPerCall       = 10
)

var allowedUploadTypes = map[string][]string{
	".jpeg": {"image/jpeg"},
	".jpg":  {"image/jpeg"},
	".png":  {"image/png"},
	".pdf":  {"application/pdf"},
}

// Upload is one in-memory file received at the boundary.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

func (u Upload) Size() int64 { return int64(len(u.Data)) }

func (u Upload) IsPDF() bool {
	return strings.EqualFold(filepath.Ext(u.Filename), ".pdf")
}

// ValidateUploadHeader checks name, declared type and size before the body is read.
func ValidateUploadHeader(filename, contentType string, size int64) error {
	const op = "validate upload"
	if strings.TrimSpace(filename) == "" {
		return Errorf(ErrInvalidInput, op, "file name is required")
	}
	if size <= 0 {
		return Errorf(ErrInvalidInput, op, "file %s is empty", filename)
	}
	if size > MaxUploadFileSize {
		return Errorf(ErrInvalidInput, op, "file %s exceeds %d bytes", filename, MaxUploadFileSize)
	}
	ext := strings.ToLower(filepath.Ext(filename))
	mimes, ok := allowedUploadTypes[ext]
	if !ok {
		return Errorf(ErrInvalidInput, op, "file %s: only jpeg, jpg, png and pdf are allowed", filename)
	}
	if contentType = normalizeMIME(contentType); contentType != "" && contentType != "application/octet-stream" {
		if !containsMIME(mimes, contentType) {
			return Errorf(ErrInvalidInput, op, "file %s: content type %s does not match extension", filename, contentType)
		}
	}
	return nil
}

// ValidateUploadContent compares sniffed bytes with the extension.
func ValidateUploadContent(u Upload, sniffed string) error {
	if err := ValidateUploadHeader(u.Filename, u.ContentType, u.Size()); err != nil {
		return err
	}
	mimes := allowedUploadTypes[strings.ToLower(filepath.Ext(u.Filename))]
	if !containsMIME(mimes, normalizeMIME(sniffed)) {
		return Errorf(ErrInvalidInput, "validate upload", "file %s: content is %s", u.Filename, sniffed)
	}
	return nil
}

// CanonicalContentType returns the stored type for an allowed extension.
func CanonicalContentType(filename string) string {
	mimes := allowedUploadTypes[strings.ToLower(filepath.Ext(filename))]
	if len(mimes) == 0 {
		return "application/octet-stream"
	}
	return mimes[0]
}

func normalizeMIME(v string) string {
	v, _, _ = strings.Cut(v, ";")
	return strings.ToLower(strings.TrimSpace(v))
}

func containsMIME(list []string, v string) bool {
	for _, m := range list {
		if m == v {
			return true
		}
	}
	return false
}
