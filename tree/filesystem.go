package tree

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

var _ Tree = (*FileSystem)(nil)

// FileSystem implements Tree using the local filesystem, adapted from the
// teacher's storage.FileSystem with the ETag content-addressing
// operations (Exists/Remove/Symlink/ReadLink) added.
type FileSystem struct {
	basePath string
}

// NewFileSystem creates a new FileSystem tree rooted at basePath.
func NewFileSystem(basePath string) *FileSystem {
	return &FileSystem{basePath: basePath}
}

func (fs *FileSystem) full(path string) string {
	return filepath.Join(fs.basePath, path)
}

func (fs *FileSystem) Read(ctx context.Context, path string) (io.ReadCloser, bool, error) {
	file, err := os.Open(fs.full(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return file, true, nil
}

func (fs *FileSystem) Write(ctx context.Context, path string, data io.ReadCloser) error {
	defer data.Close()

	fullPath := fs.full(path)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("tree: creating directory: %w", err)
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return fmt.Errorf("tree: creating file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(file, data); err != nil {
		return fmt.Errorf("tree: writing file: %w", err)
	}
	return nil
}

func (fs *FileSystem) Exists(ctx context.Context, path string) (bool, error) {
	_, err := os.Lstat(fs.full(path))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (fs *FileSystem) Remove(ctx context.Context, path string) error {
	err := os.Remove(fs.full(path))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("tree: removing %q: %w", path, err)
	}
	return nil
}

func (fs *FileSystem) Symlink(ctx context.Context, path, target string) error {
	fullPath := fs.full(path)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("tree: creating directory: %w", err)
	}
	if err := os.Symlink(target, fullPath); err != nil {
		return fmt.Errorf("tree: symlinking %q -> %q: %w", path, target, err)
	}
	return nil
}

func (fs *FileSystem) ReadLink(ctx context.Context, path string) (string, bool, error) {
	target, err := os.Readlink(fs.full(path))
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, err
	}
	return target, true, nil
}
