package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFileSystem(t *testing.T) (*FileSystemStorage, string) {
	t.Helper()
	dir := t.TempDir()
	fs, err := NewFileSystemStorage(dir)
	require.NoError(t, err)
	t.Cleanup(func() { fs.Close() })
	return fs, dir
}

func TestFileSystemStorage_Gateway(t *testing.T) {
	fs, _ := newTestFileSystem(t)
	exerciseGateway(t, fs)
}

func TestFileSystemStorage_CreatesRoot(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "root")
	fs, err := NewFileSystemStorage(dir)
	require.NoError(t, err)
	defer fs.Close()

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestFileSystemStorage_WritesUnderRoot(t *testing.T) {
	fs, dir := newTestFileSystem(t)
	ctx := context.Background()

	require.NoError(t, fs.Upload(ctx, "a/b/c.txt", strings.NewReader("abc")))

	data, err := os.ReadFile(filepath.Join(dir, "a", "b", "c.txt"))
	require.NoError(t, err)
	assert.Equal(t, "abc", string(data))
}

func TestFileSystemStorage_SymlinkEscape(t *testing.T) {
	fs, dir := newTestFileSystem(t)
	ctx := context.Background()

	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret.txt"), []byte("secret"), 0o644))
	if err := os.Symlink(outside, filepath.Join(dir, "link")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	_, err := fs.Download(ctx, "link/secret.txt")
	assert.ErrorIs(t, err, ErrOperationFailed)

	err = fs.Upload(ctx, "link/planted.txt", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrOperationFailed)
	_, err = os.Stat(filepath.Join(outside, "planted.txt"))
	assert.True(t, os.IsNotExist(err))
}
