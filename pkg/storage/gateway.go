package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"
)

var (
	// ErrOperationFailed wraps every backend failure. The cause stays in the
	// chain for logs but is never shown to clients.
	ErrOperationFailed = errors.New("operation failed")
	// ErrInvalidPath is returned for paths that are malformed or leave the root
	ErrInvalidPath = errors.New("invalid path")

	errNotFolder = errors.New("not a folder")
	errIsFolder  = errors.New("is a folder")
)

// Entry is one item of a folder listing
type Entry struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	IsDir   bool      `json:"is_dir"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time,omitempty"`
}

// Gateway is the contract shared by every file backend. Paths are relative to
// the backend root; "/" and "" both name the root.
type Gateway interface {
	// List returns the direct children of a folder, folders first, then by name
	List(ctx context.Context, p string) ([]Entry, error)
	// Upload stores the content of r at p, replacing any existing file. It
	// fails when p is a folder or a file sits above p.
	Upload(ctx context.Context, p string, r io.Reader) error
	// Download opens the file at p. The caller closes the reader.
	Download(ctx context.Context, p string) (io.ReadCloser, error)
	// Delete removes a file, or a folder with everything in it
	Delete(ctx context.Context, p string) error
	// CreateFolder creates a folder and any missing parents. It fails when p
	// or any parent is a file.
	CreateFolder(ctx context.Context, p string) error
}

// CleanPath normalizes p to a slash-separated path relative to the root,
// without leading or trailing slashes. The root is "". Any ".." segment is
// rejected rather than resolved.
func CleanPath(p string) (string, error) {
	if strings.ContainsRune(p, 0) || strings.Contains(p, "\\") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
		}
	}
	cleaned := strings.Trim(path.Clean("/"+p), "/")
	return cleaned, nil
}

// cleanFilePath is CleanPath for operations that cannot target the root
func cleanFilePath(p string) (string, error) {
	cleaned, err := CleanPath(p)
	if err != nil {
		return "", err
	}
	if cleaned == "" {
		return "", fmt.Errorf("%w: root is not a file", ErrInvalidPath)
	}
	return cleaned, nil
}

// failed wraps a backend error as ErrOperationFailed
func failed(backend, op, p string, err error) error {
	return fmt.Errorf("%w: %s %s %q: %w", ErrOperationFailed, backend, op, p, err)
}

// SortEntries orders entries folders first, then by name
func SortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].IsDir != entries[j].IsDir {
			return entries[i].IsDir
		}
		return entries[i].Name < entries[j].Name
	})
}

// parentPaths returns the folders above key, outermost first
func parentPaths(key string) []string {
	var parents []string
	for i, c := range key {
		if c == '/' {
			parents = append(parents, key[:i])
		}
	}
	return parents
}

func joinPath(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}
