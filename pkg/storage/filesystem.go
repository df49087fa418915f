package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
)

// FileSystemStorage implements Gateway on a local directory. All access goes
// through an os.Root, so symlinks cannot lead outside the directory.
type FileSystemStorage struct {
	rootDir string
	root    *os.Root
}

// NewFileSystemStorage creates a new filesystem-based storage
func NewFileSystemStorage(rootDir string) (*FileSystemStorage, error) {
	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create root directory: %w", err)
	}
	root, err := os.OpenRoot(rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open root directory: %w", err)
	}
	return &FileSystemStorage{rootDir: rootDir, root: root}, nil
}

// Close releases the root directory handle
func (s *FileSystemStorage) Close() error {
	return s.root.Close()
}

// List implements Gateway.List
func (s *FileSystemStorage) List(ctx context.Context, p string) ([]Entry, error) {
	key, err := CleanPath(p)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, failed("local", "list", key, err)
	}

	dir, err := s.root.Open(rootName(key))
	if err != nil {
		return nil, failed("local", "list", key, err)
	}
	defer dir.Close()

	dirEntries, err := dir.ReadDir(-1)
	if err != nil {
		return nil, failed("local", "list", key, err)
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		info, err := de.Info()
		if err != nil {
			// removed while listing
			continue
		}
		entry := Entry{
			Name:    de.Name(),
			Path:    joinPath(key, de.Name()),
			IsDir:   de.IsDir(),
			ModTime: info.ModTime().UTC(),
		}
		if !entry.IsDir {
			entry.Size = info.Size()
		}
		entries = append(entries, entry)
	}
	SortEntries(entries)
	return entries, nil
}

// Upload implements Gateway.Upload
func (s *FileSystemStorage) Upload(ctx context.Context, p string, r io.Reader) error {
	key, err := cleanFilePath(p)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return failed("local", "upload", key, err)
	}

	if dir := path.Dir(key); dir != "." {
		if err := s.root.MkdirAll(dir, 0o755); err != nil {
			return failed("local", "upload", key, err)
		}
	}

	f, err := s.root.OpenFile(key, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return failed("local", "upload", key, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return failed("local", "upload", key, err)
	}
	if err := f.Close(); err != nil {
		return failed("local", "upload", key, err)
	}
	return nil
}

// Download implements Gateway.Download
func (s *FileSystemStorage) Download(ctx context.Context, p string) (io.ReadCloser, error) {
	key, err := cleanFilePath(p)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, failed("local", "download", key, err)
	}

	f, err := s.root.Open(key)
	if err != nil {
		return nil, failed("local", "download", key, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, failed("local", "download", key, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, failed("local", "download", key, errors.New("is a directory"))
	}
	return f, nil
}

// Delete implements Gateway.Delete
func (s *FileSystemStorage) Delete(ctx context.Context, p string) error {
	key, err := cleanFilePath(p)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return failed("local", "delete", key, err)
	}

	if _, err := s.root.Lstat(key); err != nil {
		return failed("local", "delete", key, err)
	}
	if err := s.root.RemoveAll(key); err != nil {
		return failed("local", "delete", key, err)
	}
	return nil
}

// CreateFolder implements Gateway.CreateFolder
func (s *FileSystemStorage) CreateFolder(ctx context.Context, p string) error {
	key, err := cleanFilePath(p)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return failed("local", "create_folder", key, err)
	}

	if err := s.root.MkdirAll(key, 0o755); err != nil {
		return failed("local", "create_folder", key, err)
	}
	return nil
}

func rootName(key string) string {
	if key == "" {
		return "."
	}
	return key
}
