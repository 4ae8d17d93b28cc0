// Package storage keeps generated artifact bytes on the local filesystem. The
// database rows only hold the storage key.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

var errNoStore = errors.New("storage: no store configured")

// FileStore maps slash-separated keys to files under a root directory.
type FileStore struct {
	root string
}

// NewFileStore creates root if needed.
func NewFileStore(root string) (*FileStore, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, errors.New("storage: base path is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure base path: %w", err)
	}
	return &FileStore{root: root}, nil
}

// Write stores data under key and returns the cleaned key. The file is
// written to a temp name and renamed, so a reader never sees a partial image.
func (s *FileStore) Write(ctx context.Context, key string, data []byte) (string, error) {
	clean, full, err := s.resolve(ctx, key)
	if err != nil {
		return "", err
	}
	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("storage: ensure directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("storage: create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("storage: write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("storage: close file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("storage: chmod file: %w", err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("storage: publish file: %w", err)
	}
	return clean, nil
}

// Read returns the bytes stored under key. A missing key wraps fs.ErrNotExist.
func (s *FileStore) Read(ctx context.Context, key string) ([]byte, error) {
	_, full, err := s.resolve(ctx, key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("storage: read file: %w", err)
	}
	return data, nil
}

// Delete removes key. Deleting a missing key succeeds.
func (s *FileStore) Delete(ctx context.Context, key string) error {
	_, full, err := s.resolve(ctx, key)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("storage: delete file: %w", err)
	}
	return nil
}

func (s *FileStore) resolve(ctx context.Context, key string) (clean, full string, err error) {
	if s == nil {
		return "", "", errNoStore
	}
	if err := ctx.Err(); err != nil {
		return "", "", err
	}
	if clean, err = sanitizeKey(key); err != nil {
		return "", "", err
	}
	return clean, filepath.Join(s.root, filepath.FromSlash(clean)), nil
}

// sanitizeKey normalizes separators and rejects keys that escape the root.
func sanitizeKey(key string) (string, error) {
	key = strings.ReplaceAll(strings.TrimSpace(key), `\`, "/")
	if key == "" {
		return "", errors.New("storage: key is required")
	}
	clean := path.Clean(strings.TrimLeft(key, "/"))
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("storage: invalid key %q", key)
	}
	return clean, nil
}

// ArtifactKey buckets artifacts by month: generations/YYYY/MM/<id>.<ext>.
func ArtifactKey(recordID, mimeType string, createdAt time.Time) string {
	ext := "png"
	switch strings.ToLower(strings.TrimSpace(mimeType)) {
	case "image/jpeg", "image/jpg":
		ext = "jpg"
	case "image/webp":
		ext = "webp"
	}
	return fmt.Sprintf("generations/%s/%s.%s", createdAt.UTC().Format("2006/01"), recordID, ext)
}
