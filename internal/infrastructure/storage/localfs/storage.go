package localfs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// Storage keeps uploads on disk and serves them back under publicURL.
type Storage struct {
	basePath  string
	publicURL string
}

func New(basePath, publicURL string) (*Storage, error) {
	if basePath == "" {
		basePath = "./data/storage"
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Storage{
		basePath:  basePath,
		publicURL: strings.TrimRight(publicURL, "/"),
	}, nil
}

func (s *Storage) Save(_ context.Context, key, _ string, data io.Reader, size int64) (string, error) {
	path, rel, err := s.resolve(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create key dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}
	defer f.Close()

	written, err := io.Copy(f, data)
	if err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	if size >= 0 && written != size {
		return "", fmt.Errorf("write file: wrote %d of %d bytes", written, size)
	}
	return s.publicURL + rel, nil
}

func (s *Storage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	path, _, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	return f, nil
}

// Handler serves stored files; mount it under the public URL path with the prefix stripped.
func (s *Storage) Handler() http.Handler {
	return http.FileServer(http.Dir(s.basePath))
}

// resolve confines key to basePath and returns the file path and the slash-rooted key.
func (s *Storage) resolve(key string) (string, string, error) {
	clean := filepath.Clean("/" + key)
	if clean == string(filepath.Separator) {
		return "", "", fmt.Errorf("invalid storage key %q", key)
	}
	return filepath.Join(s.basePath, clean), filepath.ToSlash(clean), nil
}
