package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/platinummonkey/agora/pkg/observability"
	"github.com/studio-b12/gowebdav"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// WebDAVConfig configures the WebDAV backend
type WebDAVConfig struct {
	URL      string        `env:"URL"`
	Username string        `env:"USERNAME"`
	Password string        `env:"PASSWORD"`
	Root     string        `env:"ROOT" envDefault:"/"`
	Timeout  time.Duration `env:"TIMEOUT" envDefault:"30s"`
}

// WebDAVBackend implements Gateway against a WebDAV server
type WebDAVBackend struct {
	client *gowebdav.Client
	root   string
}

// NewWebDAVBackend creates a WebDAV backend. No request is made until first use.
func NewWebDAVBackend(cfg WebDAVConfig) (*WebDAVBackend, error) {
	if cfg.URL == "" {
		return nil, errors.New("webdav url is required")
	}
	root, err := CleanPath(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("webdav root: %w", err)
	}

	client := gowebdav.NewClient(cfg.URL, cfg.Username, cfg.Password)
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}
	return &WebDAVBackend{client: client, root: root}, nil
}

func (b *WebDAVBackend) remote(key string) string {
	return "/" + joinPath(b.root, key)
}

// startSpan covers one gateway call. gowebdav takes no context, so
// cancellation is only observed before the first request is sent.
func (b *WebDAVBackend) startSpan(ctx context.Context, op, key string) (context.Context, trace.Span) {
	return observability.StartSpan(ctx, "pkg/storage", "WebDAV."+op,
		attribute.String("webdav.operation", op),
		attribute.String("webdav.path", b.remote(key)),
	)
}

// stat returns nil info and no error when nothing exists at key
func (b *WebDAVBackend) stat(key string) (os.FileInfo, error) {
	info, err := b.client.Stat(b.remote(key))
	if gowebdav.IsErrNotFound(err) {
		return nil, nil
	}
	return info, err
}

// checkParents fails with errNotFolder when a file sits at any folder above key
func (b *WebDAVBackend) checkParents(key string) error {
	for _, parent := range parentPaths(key) {
		info, err := b.stat(parent)
		if err != nil {
			return err
		}
		if info == nil {
			return nil
		}
		if !info.IsDir() {
			return fmt.Errorf("%w: %s", errNotFolder, parent)
		}
	}
	return nil
}

// List implements Gateway.List
func (b *WebDAVBackend) List(ctx context.Context, p string) (entries []Entry, err error) {
	key, err := CleanPath(p)
	if err != nil {
		return nil, err
	}
	ctx, span := b.startSpan(ctx, "List", key)
	defer func() { observability.EndSpan(span, err) }()
	if err := ctx.Err(); err != nil {
		return nil, failed("webdav", "list", key, err)
	}

	infos, err := b.client.ReadDir(b.remote(key))
	if err != nil {
		return nil, failed("webdav", "list", key, err)
	}

	entries = make([]Entry, 0, len(infos))
	for _, info := range infos {
		name := strings.Trim(info.Name(), "/")
		if name == "" {
			continue
		}
		entry := Entry{
			Name:  name,
			Path:  joinPath(key, name),
			IsDir: info.IsDir(),
		}
		if !entry.IsDir {
			entry.Size = info.Size()
			entry.ModTime = info.ModTime().UTC()
		}
		entries = append(entries, entry)
	}
	span.SetAttributes(attribute.Int("webdav.entries", len(entries)))
	SortEntries(entries)
	return entries, nil
}

// Upload implements Gateway.Upload
func (b *WebDAVBackend) Upload(ctx context.Context, p string, r io.Reader) (err error) {
	key, err := cleanFilePath(p)
	if err != nil {
		return err
	}
	ctx, span := b.startSpan(ctx, "Upload", key)
	defer func() { observability.EndSpan(span, err) }()
	if err := ctx.Err(); err != nil {
		return failed("webdav", "upload", key, err)
	}

	if err := b.checkParents(key); err != nil {
		return failed("webdav", "upload", key, err)
	}
	info, err := b.stat(key)
	if err != nil {
		return failed("webdav", "upload", key, err)
	}
	if info != nil && info.IsDir() {
		return failed("webdav", "upload", key, errIsFolder)
	}

	if parent := path.Dir(key); parent != "." {
		if err := b.client.MkdirAll(b.remote(parent), 0o755); err != nil {
			return failed("webdav", "upload", key, err)
		}
	}
	if err := b.client.WriteStream(b.remote(key), r, 0o644); err != nil {
		return failed("webdav", "upload", key, err)
	}
	return nil
}

// Download implements Gateway.Download
func (b *WebDAVBackend) Download(ctx context.Context, p string) (rc io.ReadCloser, err error) {
	key, err := cleanFilePath(p)
	if err != nil {
		return nil, err
	}
	ctx, span := b.startSpan(ctx, "Download", key)
	defer func() { observability.EndSpan(span, err) }()
	if err := ctx.Err(); err != nil {
		return nil, failed("webdav", "download", key, err)
	}

	rc, err = b.client.ReadStream(b.remote(key))
	if err != nil {
		return nil, failed("webdav", "download", key, err)
	}
	return rc, nil
}

// Delete implements Gateway.Delete
func (b *WebDAVBackend) Delete(ctx context.Context, p string) (err error) {
	key, err := cleanFilePath(p)
	if err != nil {
		return err
	}
	ctx, span := b.startSpan(ctx, "Delete", key)
	defer func() { observability.EndSpan(span, err) }()
	if err := ctx.Err(); err != nil {
		return failed("webdav", "delete", key, err)
	}

	// DELETE succeeds on a missing resource, so check first
	info, err := b.stat(key)
	if err != nil {
		return failed("webdav", "delete", key, err)
	}
	if info == nil {
		return failed("webdav", "delete", key, os.ErrNotExist)
	}
	if err := b.client.RemoveAll(b.remote(key)); err != nil {
		return failed("webdav", "delete", key, err)
	}
	return nil
}

// CreateFolder implements Gateway.CreateFolder
func (b *WebDAVBackend) CreateFolder(ctx context.Context, p string) (err error) {
	key, err := cleanFilePath(p)
	if err != nil {
		return err
	}
	ctx, span := b.startSpan(ctx, "CreateFolder", key)
	defer func() { observability.EndSpan(span, err) }()
	if err := ctx.Err(); err != nil {
		return failed("webdav", "create_folder", key, err)
	}

	// MKCOL on an existing file reports success, so look first
	if err := b.checkParents(key); err != nil {
		return failed("webdav", "create_folder", key, err)
	}
	info, err := b.stat(key)
	if err != nil {
		return failed("webdav", "create_folder", key, err)
	}
	if info != nil {
		if !info.IsDir() {
			return failed("webdav", "create_folder", key, errNotFolder)
		}
		return nil
	}

	if err := b.client.MkdirAll(b.remote(key), 0o755); err != nil {
		return failed("webdav", "create_folder", key, err)
	}
	return nil
}

// HealthCheck verifies the configured root is reachable
func (b *WebDAVBackend) HealthCheck(ctx context.Context) (err error) {
	_, span := b.startSpan(ctx, "HealthCheck", "")
	defer func() { observability.EndSpan(span, err) }()
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := b.client.Stat(b.remote("")); err != nil {
		return fmt.Errorf("webdav health check failed: %w", err)
	}
	return nil
}
