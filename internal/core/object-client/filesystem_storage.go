package objectclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/markdave123-py/documind/internal/core"
)

var ErrInvalidKey = errors.New("invalid storage key")

// FilesystemClient stores blobs as files under a base directory, keys
// mapping directly to relative paths.
type FilesystemClient struct {
	basePath string
	log      *zap.Logger
}

var _ core.ObjectClient = (*FilesystemClient)(nil)

func NewFilesystemClient(basePath string, log *zap.Logger) (*FilesystemClient, error) {
	if basePath == "" {
		return nil, fmt.Errorf("storage root required")
	}
	absPath, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	if err := os.MkdirAll(absPath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &FilesystemClient{basePath: absPath, log: log.Named("filesystem")}, nil
}

func (f *FilesystemClient) UploadFile(ctx context.Context, key string, data io.Reader, size int64, contentType string) (string, error) {
	path, err := f.fullPath(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create directory: %w", err)
	}

	tmpPath := path + ".tmp"
	out, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(out, data); err != nil {
		out.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("rename temp file: %w", err)
	}
	return key, nil
}

func (f *FilesystemClient) GetFile(ctx context.Context, key string) ([]byte, error) {
	path, err := f.fullPath(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, core.NewError(core.ErrNotFound, fmt.Sprintf("object %s not found", key), err)
		}
		return nil, fmt.Errorf("read file: %w", err)
	}
	return data, nil
}

// DeleteFiles removes each key, ignoring ones already gone, and prunes empty
// per-user directories.
func (f *FilesystemClient) DeleteFiles(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		path, err := f.fullPath(key)
		if err != nil {
			return err
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove file: %w", err)
		}

		dir := filepath.Dir(path)
		if dir == f.basePath || !strings.HasPrefix(dir, f.basePath) {
			continue
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			f.log.Warn("failed to read directory for cleanup", zap.String("dir", dir), zap.Error(err))
			continue
		}
		if len(entries) == 0 {
			if err := os.Remove(dir); err != nil && !errors.Is(err, fs.ErrNotExist) {
				f.log.Warn("failed to remove empty directory", zap.String("dir", dir), zap.Error(err))
			}
		}
	}
	return nil
}

func (f *FilesystemClient) fullPath(key string) (string, error) {
	if key == "" {
		return "", ErrInvalidKey
	}
	cleaned := filepath.Clean(key)
	if strings.HasPrefix(cleaned, "..") || filepath.IsAbs(cleaned) {
		return "", ErrInvalidKey
	}
	full := filepath.Join(f.basePath, cleaned)
	if !strings.HasPrefix(full, f.basePath+string(filepath.Separator)) {
		return "", ErrInvalidKey
	}
	return full, nil
}
